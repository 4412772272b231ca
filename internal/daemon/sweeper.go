// Package daemon hosts the background jobs of the service, currently the
// periodic sweep deleting sessions idle past their TTL.
package daemon

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/hgi-dev/spackbridge/internal/logfields"
)

// SessionStore is the slice of the session manager the sweeper needs.
type SessionStore interface {
	DeleteIdle(cutoff time.Time) (int, error)
}

// Sweeper periodically deletes sessions whose last use is older than the
// configured TTL.
type Sweeper struct {
	scheduler gocron.Scheduler
	sessions  SessionStore
	ttl       time.Duration
	interval  time.Duration
}

func NewSweeper(sessions SessionStore, ttl, interval time.Duration) (*Sweeper, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	return &Sweeper{scheduler: s, sessions: sessions, ttl: ttl, interval: interval}, nil
}

// Start schedules the sweep job and begins the scheduler.
func (s *Sweeper) Start() error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(s.sweep),
		gocron.WithName("session-sweep"),
	)
	if err != nil {
		return fmt.Errorf("failed to create session sweep job: %w", err)
	}
	slog.Info("Starting session sweeper",
		slog.Duration("ttl", s.ttl),
		slog.Duration("interval", s.interval))
	s.scheduler.Start()
	return nil
}

// Stop gracefully shuts down the scheduler.
func (s *Sweeper) Stop() error {
	slog.Info("Stopping session sweeper")
	return s.scheduler.Shutdown()
}

// sweep is called by gocron on every interval tick.
func (s *Sweeper) sweep() {
	cutoff := time.Now().Add(-s.ttl)
	deleted, err := s.sessions.DeleteIdle(cutoff)
	if err != nil {
		slog.Error("Session sweep failed", logfields.Error(err))
		return
	}
	if deleted > 0 {
		slog.Info("Swept idle sessions", slog.Int("deleted", deleted))
	}
}
