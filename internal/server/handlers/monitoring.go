package handlers

import (
	"net/http"
	"time"

	"github.com/hgi-dev/spackbridge/internal/foundation/errors"
	"github.com/hgi-dev/spackbridge/internal/server/responses"
	"github.com/hgi-dev/spackbridge/internal/version"
)

// Runtime exposes the operational state the monitoring handlers report.
type Runtime interface {
	StartTime() time.Time
	ActiveSessions() int
	SpackExecutable() string
}

// MonitoringHandlers serves the health and status endpoints.
type MonitoringHandlers struct {
	runtime      Runtime
	errorAdapter *errors.HTTPErrorAdapter
}

// NewMonitoringHandlers creates a monitoring handlers instance.
func NewMonitoringHandlers(runtime Runtime, adapter *errors.HTTPErrorAdapter) *MonitoringHandlers {
	return &MonitoringHandlers{runtime: runtime, errorAdapter: adapter}
}

// HandleHealthCheck handles GET /healthz.
func (h *MonitoringHandlers) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	health := &responses.HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   version.Version,
		Uptime:    time.Since(h.runtime.StartTime()).Seconds(),
	}
	if err := writeJSONPretty(w, r, http.StatusOK, health); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, errors.WrapError(err, errors.CategoryInternal, "failed to write health response").Build())
	}
}

// HandleStatus handles GET /api/v1/status.
func (h *MonitoringHandlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	status := &responses.StatusResponse{
		Status:         "running",
		StartTime:      h.runtime.StartTime(),
		Uptime:         time.Since(h.runtime.StartTime()).Seconds(),
		ActiveSessions: h.runtime.ActiveSessions(),
		SpackPath:      h.runtime.SpackExecutable(),
	}
	if err := writeJSONPretty(w, r, http.StatusOK, status); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, errors.WrapError(err, errors.CategoryInternal, "failed to write status response").Build())
	}
}
