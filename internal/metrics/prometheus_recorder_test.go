package metrics

import (
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.ObserveCommandDuration("install", 150*time.Millisecond, true)
	pr.IncInstallOutcome("success")
	pr.IncStreamEvent("output")
	pr.SetActiveSessions(3)
	pr.IncHTTPRequest("GET", "/spack/packages", 200)
	pr.ObserveHTTPDuration("/spack/packages", 20*time.Millisecond)

	// Basic scrape to ensure metrics encode without panic
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(mfs) == 0 {
		t.Fatalf("expected metrics, got none")
	}
}

func TestNoopRecorderIsSafe(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.ObserveCommandDuration("info", time.Millisecond, false)
	r.IncInstallOutcome("failed")
	r.IncStreamEvent("complete")
	r.SetActiveSessions(0)
	r.IncHTTPRequest("POST", "/sessions", 201)
	r.ObserveHTTPDuration("/sessions", time.Millisecond)
}
