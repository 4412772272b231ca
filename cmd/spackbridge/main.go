// Command spackbridge runs the spack bridge service: an HTTP API over a
// spack installation with per-user sessions, recipe management, a git
// pull-request workflow, and SSE install streaming.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hgi-dev/spackbridge/internal/config"
	"github.com/hgi-dev/spackbridge/internal/daemon"
	"github.com/hgi-dev/spackbridge/internal/events"
	"github.com/hgi-dev/spackbridge/internal/gitflow"
	"github.com/hgi-dev/spackbridge/internal/metrics"
	"github.com/hgi-dev/spackbridge/internal/recipe"
	"github.com/hgi-dev/spackbridge/internal/sandbox"
	"github.com/hgi-dev/spackbridge/internal/server/handlers"
	"github.com/hgi-dev/spackbridge/internal/server/httpserver"
	"github.com/hgi-dev/spackbridge/internal/session"
	"github.com/hgi-dev/spackbridge/internal/spack"
	"github.com/hgi-dev/spackbridge/internal/version"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"config.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Serve struct {
	} `cmd:"" default:"1" help:"Start the spackbridge HTTP service"`

	Version struct {
	} `cmd:"" help:"Print version information"`
}

func main() {
	ctx := kong.Parse(&CLI)

	switch ctx.Command() {
	case "version":
		fmt.Printf("spackbridge %s (built %s, commit %s)\n", version.Version, version.BuildTime, version.GitCommit)
	case "serve":
		if err := runServe(CLI.Config, CLI.Verbose); err != nil {
			slog.Error("Service failed", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Unknown command", "command", ctx.Command())
		os.Exit(1)
	}
}

// runtimeState feeds the monitoring handlers.
type runtimeState struct {
	start    time.Time
	sessions *session.Manager
	spackExe string
	recorder metrics.Recorder
}

func (r *runtimeState) StartTime() time.Time { return r.start }

func (r *runtimeState) ActiveSessions() int {
	contexts, err := r.sessions.List()
	if err != nil {
		return 0
	}
	r.recorder.SetActiveSessions(len(contexts))
	return len(contexts)
}

func (r *runtimeState) SpackExecutable() string { return r.spackExe }

func runServe(configPath string, verbose bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	logger := config.SetupLogging(cfg.Logging, verbose)
	slog.SetDefault(logger)

	registry := prometheus.NewRegistry()
	recorder := metrics.NewPrometheusRecorder(registry)

	sessions, err := session.NewManager(cfg.Sessions, cfg.Spack.GlobalRepo)
	if err != nil {
		return fmt.Errorf("initialize session manager: %w", err)
	}
	defer func() {
		if cerr := sessions.Close(); cerr != nil {
			slog.Error("session manager close failed", "error", cerr)
		}
	}()

	wrapper := sandbox.NewBuilder(cfg.Singularity, cfg.Spack.Executable, sessions)
	spackService := spack.NewService(cfg.Spack, wrapper)
	spackService.SetRecorder(recorder)
	recipes := recipe.NewManager(sessions, cfg.Spack.GlobalRepo, spackService)
	workflow := gitflow.NewWorkflow(cfg.Git, sessions, recipes)

	var sink handlers.EventSink
	if cfg.Events.Enabled {
		publisher, perr := events.NewPublisher(cfg.Events)
		if perr != nil {
			return fmt.Errorf("initialize event publisher: %w", perr)
		}
		defer publisher.Close()
		sink = publisher
	}

	sweeper, err := daemon.NewSweeper(sessions, cfg.Sessions.TTL(), cfg.Sessions.SweepInterval())
	if err != nil {
		return fmt.Errorf("initialize session sweeper: %w", err)
	}
	if err := sweeper.Start(); err != nil {
		return fmt.Errorf("start session sweeper: %w", err)
	}
	defer func() {
		if serr := sweeper.Stop(); serr != nil {
			slog.Error("sweeper shutdown failed", "error", serr)
		}
	}()

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	watcher, err := config.NewWatcher(configPath, func(updated *config.Config) {
		slog.Info("configuration reloaded", "path", configPath)
		newLogger := config.SetupLogging(updated.Logging, verbose)
		slog.SetDefault(newLogger)
	})
	if err != nil {
		slog.Warn("config watcher unavailable", "error", err)
	} else {
		if werr := watcher.Start(runCtx); werr != nil {
			slog.Warn("config watcher failed to start", "error", werr)
		} else {
			defer watcher.Stop()
		}
	}

	srv := httpserver.New(cfg, httpserver.Options{
		Spack:    spackService,
		Streamer: spackService,
		Sessions: sessions,
		Recipes:  recipes,
		Git:      workflow,
		Runtime: &runtimeState{
			start:    time.Now(),
			sessions: sessions,
			spackExe: cfg.Spack.Executable,
			recorder: recorder,
		},
		Gate:      sessions,
		EventSink: sink,
		Recorder:  recorder,
		Gatherer:  registry,
	})

	if err := srv.Start(runCtx); err != nil {
		return err
	}
	slog.Info("spackbridge started",
		slog.String("version", version.Version),
		slog.String("spack", cfg.Spack.Executable))

	<-runCtx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}
