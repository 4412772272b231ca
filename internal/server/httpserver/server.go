// Package httpserver wires the spackbridge HTTP surface: the public API
// server (packages, sessions, recipes, git workflow, SSE install stream)
// and the admin server (health, status, Prometheus metrics).
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hgi-dev/spackbridge/internal/config"
	derrors "github.com/hgi-dev/spackbridge/internal/foundation/errors"
	"github.com/hgi-dev/spackbridge/internal/metrics"
	"github.com/hgi-dev/spackbridge/internal/server/handlers"
	smw "github.com/hgi-dev/spackbridge/internal/server/middleware"
)

// Options carries the collaborators the server exposes over HTTP.
type Options struct {
	Spack    handlers.SpackService
	Streamer handlers.InstallStreamer
	Sessions handlers.SessionStore
	Recipes  handlers.RecipeStore
	Git      handlers.GitWorkflow
	Runtime  handlers.Runtime

	// Gate touches and serializes sessions around command handling.
	// Optional; nil disables both.
	Gate handlers.SessionGate
	// EventSink mirrors streamed events to an external broker. Optional.
	EventSink handlers.EventSink
	// Recorder feeds the request and stream counters. Optional.
	Recorder metrics.Recorder
	// Gatherer backs the admin /metrics endpoint. Optional.
	Gatherer prometheus.Gatherer
}

// Server manages the API and admin HTTP listeners.
type Server struct {
	cfg  *config.Config
	opts Options

	apiServer   *http.Server
	adminServer *http.Server

	errorAdapter *derrors.HTTPErrorAdapter

	spackHandlers      *handlers.SpackHandlers
	streamHandlers     *handlers.StreamHandlers
	sessionHandlers    *handlers.SessionHandlers
	recipeHandlers     *handlers.RecipeHandlers
	gitHandlers        *handlers.GitHandlers
	monitoringHandlers *handlers.MonitoringHandlers

	mchain func(http.Handler) http.Handler
}

// New constructs a new HTTP server wiring instance.
func New(cfg *config.Config, opts Options) *Server {
	if opts.Recorder == nil {
		opts.Recorder = metrics.NoopRecorder{}
	}

	s := &Server{
		cfg:          cfg,
		opts:         opts,
		errorAdapter: derrors.NewHTTPErrorAdapter(slog.Default()),
	}

	s.spackHandlers = handlers.NewSpackHandlers(opts.Spack, opts.Gate, s.errorAdapter)
	s.streamHandlers = handlers.NewStreamHandlers(opts.Streamer, opts.Gate, opts.EventSink, opts.Recorder, s.errorAdapter)
	s.sessionHandlers = handlers.NewSessionHandlers(opts.Sessions, opts.Gate, s.errorAdapter)
	s.recipeHandlers = handlers.NewRecipeHandlers(opts.Recipes, opts.Gate, s.errorAdapter)
	s.gitHandlers = handlers.NewGitHandlers(opts.Git, opts.Gate, s.errorAdapter)
	s.monitoringHandlers = handlers.NewMonitoringHandlers(opts.Runtime, s.errorAdapter)

	s.mchain = smw.Chain(slog.Default(), s.errorAdapter, opts.Recorder)

	return s
}

// APIHandler returns the fully routed API handler, middleware applied.
// Exposed for tests.
func (s *Server) APIHandler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/packages", s.spackHandlers.HandleList)
	mux.HandleFunc("GET /api/v1/packages/{name}", s.spackHandlers.HandleInfo)
	mux.HandleFunc("GET /api/v1/packages/{name}/versions", s.spackHandlers.HandleVersions)
	mux.HandleFunc("POST /api/v1/packages/checksum", s.spackHandlers.HandleChecksum)
	mux.HandleFunc("POST /api/v1/packages/template", s.spackHandlers.HandleCreateTemplate)

	mux.HandleFunc("POST /api/v1/install", s.spackHandlers.HandleInstall)
	mux.HandleFunc("GET /api/v1/install/stream", s.streamHandlers.HandleInstallStream)
	mux.HandleFunc("POST /api/v1/uninstall", s.spackHandlers.HandleUninstall)

	mux.HandleFunc("POST /api/v1/sessions", s.sessionHandlers.HandleCreate)
	mux.HandleFunc("GET /api/v1/sessions", s.sessionHandlers.HandleList)
	mux.HandleFunc("GET /api/v1/sessions/{id}", s.sessionHandlers.HandleGet)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", s.sessionHandlers.HandleDelete)
	mux.HandleFunc("GET /api/v1/sessions/{id}/files", s.sessionHandlers.HandleFiles)

	mux.HandleFunc("GET /api/v1/sessions/{id}/recipes", s.recipeHandlers.HandleList)
	mux.HandleFunc("POST /api/v1/sessions/{id}/recipes/{name}", s.recipeHandlers.HandleCreate)
	mux.HandleFunc("GET /api/v1/sessions/{id}/recipes/{name}", s.recipeHandlers.HandleRead)
	mux.HandleFunc("PUT /api/v1/sessions/{id}/recipes/{name}", s.recipeHandlers.HandleWrite)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}/recipes/{name}", s.recipeHandlers.HandleDelete)
	mux.HandleFunc("POST /api/v1/sessions/{id}/recipes/{name}/validate", s.recipeHandlers.HandleValidate)
	mux.HandleFunc("GET /api/v1/sessions/{id}/recipes/{name}/info", s.recipeHandlers.HandleInfo)

	mux.HandleFunc("POST /api/v1/git/pull", s.gitHandlers.HandlePull)
	mux.HandleFunc("POST /api/v1/git/commit-info", s.gitHandlers.HandleCommitInfo)
	mux.HandleFunc("POST /api/v1/git/pull-request", s.gitHandlers.HandleCreatePullRequest)

	mux.HandleFunc("GET /api/v1/status", s.monitoringHandlers.HandleStatus)
	mux.HandleFunc("GET /healthz", s.monitoringHandlers.HandleHealthCheck)

	return s.mchain(mux)
}

// AdminHandler returns the admin handler (health plus Prometheus metrics).
// Exposed for tests.
func (s *Server) AdminHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.monitoringHandlers.HandleHealthCheck)
	mux.HandleFunc("GET /status", s.monitoringHandlers.HandleStatus)
	if s.opts.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}
	return s.mchain(mux)
}

// Start binds both listeners and launches the servers. Ports are pre-bound
// so startup fails fast with one aggregate error instead of partial
// initialization.
func (s *Server) Start(ctx context.Context) error {
	type preBind struct {
		name string
		port int
		ln   net.Listener
	}
	binds := []preBind{
		{name: "api", port: s.cfg.Server.APIPort},
		{name: "admin", port: s.cfg.Server.AdminPort},
	}

	var bindErrs []error
	lc := net.ListenConfig{}
	for i := range binds {
		addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, binds[i].port)
		ln, err := lc.Listen(ctx, "tcp", addr)
		if err != nil {
			bindErrs = append(bindErrs, fmt.Errorf("%s port %d: %w", binds[i].name, binds[i].port, err))
			continue
		}
		binds[i].ln = ln
	}
	if len(bindErrs) > 0 {
		for _, b := range binds {
			if b.ln != nil {
				_ = b.ln.Close()
			}
		}
		return fmt.Errorf("http startup failed: %w", errors.Join(bindErrs...))
	}

	s.apiServer = &http.Server{
		Handler:           s.APIHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.adminServer = &http.Server{
		Handler:           s.AdminHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.serve("api", s.apiServer, binds[0].ln)
	s.serve("admin", s.adminServer, binds[1].ln)

	slog.Info("HTTP servers started",
		slog.Int("api_port", s.cfg.Server.APIPort),
		slog.Int("admin_port", s.cfg.Server.AdminPort))
	return nil
}

func (s *Server) serve(kind string, srv *http.Server, ln net.Listener) {
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error(fmt.Sprintf("%s server error", kind), "error", err)
		}
	}()
}

// Stop gracefully shuts down both servers.
func (s *Server) Stop(ctx context.Context) error {
	var errs []error
	if s.adminServer != nil {
		if err := s.adminServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("admin server shutdown: %w", err))
		}
	}
	if s.apiServer != nil {
		if err := s.apiServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("api server shutdown: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	slog.Info("HTTP servers stopped")
	return nil
}
