// Package events fans install progress out to NATS JetStream so external
// consumers (dashboards, notification bots) can follow builds without
// holding an SSE connection open. Disabled by default.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/hgi-dev/spackbridge/internal/config"
	"github.com/hgi-dev/spackbridge/internal/spack"
)

// Publisher delivers progress events to a JetStream subject.
type Publisher struct {
	conn    *nats.Conn
	js      jetstream.JetStream
	subject string
}

// NewPublisher connects to NATS per the events config. Returns an error when
// events are disabled; callers treat a nil publisher as "no fanout".
func NewPublisher(cfg config.EventsConfig) (*Publisher, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("event fanout is disabled")
	}

	conn, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	slog.Info("NATS publisher initialized",
		slog.String("url", cfg.NATSURL),
		slog.String("subject", cfg.Subject))
	return &Publisher{conn: conn, js: js, subject: cfg.Subject}, nil
}

// Publish sends one progress event. Delivery is best effort from the
// caller's perspective; a lost event never fails an install.
func (p *Publisher) Publish(event spack.ProgressEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := p.js.Publish(ctx, p.subject, data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	slog.Debug("published progress event",
		slog.String("type", string(event.Type)),
		slog.String("package", event.Package))
	return nil
}

// Close closes the NATS connection.
func (p *Publisher) Close() error {
	if p.conn != nil {
		p.conn.Close()
	}
	return nil
}
