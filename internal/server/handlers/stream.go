package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hgi-dev/spackbridge/internal/foundation/errors"
	"github.com/hgi-dev/spackbridge/internal/logfields"
	"github.com/hgi-dev/spackbridge/internal/metrics"
	"github.com/hgi-dev/spackbridge/internal/spack"
)

// InstallStreamer starts a streaming install and returns its event channel.
type InstallStreamer interface {
	InstallStream(ctx context.Context, sessionID, name, version string, variants []string) (<-chan spack.ProgressEvent, error)
}

// EventSink receives a copy of every streamed event. Delivery failures are
// logged, never surfaced to the HTTP client.
type EventSink interface {
	Publish(event spack.ProgressEvent) error
}

// StreamHandlers serves the SSE install endpoint.
type StreamHandlers struct {
	streamer     InstallStreamer
	gate         SessionGate
	sink         EventSink
	recorder     metrics.Recorder
	errorAdapter *errors.HTTPErrorAdapter
}

// NewStreamHandlers creates a stream handlers instance. gate and sink may
// be nil.
func NewStreamHandlers(streamer InstallStreamer, gate SessionGate, sink EventSink, recorder metrics.Recorder, adapter *errors.HTTPErrorAdapter) *StreamHandlers {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &StreamHandlers{streamer: streamer, gate: gateOrNoop(gate), sink: sink, recorder: recorder, errorAdapter: adapter}
}

// HandleInstallStream handles GET /api/v1/install/stream. Query parameters:
// session_id, package_name, version, variants (comma separated). Events are
// framed as server-sent events, one "data:" line per JSON-encoded event,
// flushed as they arrive. Closing the connection cancels the install.
func (h *StreamHandlers) HandleInstallStream(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	name := q.Get("package_name")
	if name == "" {
		h.errorAdapter.WriteErrorResponse(w, r, errors.ValidationError("package_name is required").Build())
		return
	}
	var variants []string
	if raw := q.Get("variants"); raw != "" {
		for _, v := range strings.Split(raw, ",") {
			if v = strings.TrimSpace(v); v != "" {
				variants = append(variants, v)
			}
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.errorAdapter.WriteErrorResponse(w, r,
			errors.NewError(errors.CategoryInternal, "streaming unsupported by connection").Build())
		return
	}

	// Held until the stream drains, so a second mutating command against the
	// same session waits for this install to finish.
	unlock := lockSession(h.gate, q.Get("session_id"))
	defer unlock()

	// Session resolution and process spawn errors surface as a normal HTTP
	// error. Once streaming starts, failures travel inside the event stream.
	events, err := h.streamer.InstallStream(r.Context(), q.Get("session_id"), name, q.Get("version"), variants)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for event := range events {
		h.recorder.IncStreamEvent(string(event.Type))
		if h.sink != nil {
			if perr := h.sink.Publish(event); perr != nil {
				slog.Warn("event fanout failed", logfields.Error(perr))
			}
		}

		payload, merr := json.Marshal(event)
		if merr != nil {
			slog.Error("failed to encode progress event", logfields.Error(merr))
			continue
		}
		if _, werr := fmt.Fprintf(w, "data: %s\n\n", payload); werr != nil {
			// Client went away; the request context cancellation tears the
			// install down, we just stop writing.
			slog.Debug("SSE client disconnected", logfields.Error(werr))
			return
		}
		flusher.Flush()
	}
}
