// Package metrics defines the observability hooks for command execution,
// installs and the HTTP surface, with a Prometheus-backed implementation and
// a no-op default.
package metrics

import "time"

// Recorder defines the hooks the rest of the system calls. Implementations
// may forward to Prometheus or drop everything (NoopRecorder).
type Recorder interface {
	ObserveCommandDuration(operation string, d time.Duration, success bool)
	IncInstallOutcome(outcome string) // success|failed|timeout
	IncStreamEvent(eventType string)
	SetActiveSessions(n int)
	IncHTTPRequest(method, route string, status int)
	ObserveHTTPDuration(route string, d time.Duration)
}

// NoopRecorder is a Recorder that does nothing, used when metrics are not
// wired up (tests, library use).
type NoopRecorder struct{}

func (NoopRecorder) ObserveCommandDuration(string, time.Duration, bool) {}
func (NoopRecorder) IncInstallOutcome(string)                           {}
func (NoopRecorder) IncStreamEvent(string)                              {}
func (NoopRecorder) SetActiveSessions(int)                              {}
func (NoopRecorder) IncHTTPRequest(string, string, int)                 {}
func (NoopRecorder) ObserveHTTPDuration(string, time.Duration)          {}
