package metrics

import (
	"strconv"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once            sync.Once
	commandDuration *prom.HistogramVec
	installOutcome  *prom.CounterVec
	streamEvents    *prom.CounterVec
	activeSessions  prom.Gauge
	httpRequests    *prom.CounterVec
	httpDuration    *prom.HistogramVec
}

// NewPrometheusRecorder constructs and registers metrics on reg (a private
// registry is created when nil).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.commandDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "spackbridge",
			Name:      "command_duration_seconds",
			Help:      "Duration of spack command invocations",
			Buckets:   prom.DefBuckets,
		}, []string{"operation", "result"})
		pr.installOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "spackbridge",
			Name:      "install_outcomes_total",
			Help:      "Install outcomes by final status",
		}, []string{"outcome"})
		pr.streamEvents = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "spackbridge",
			Name:      "stream_events_total",
			Help:      "Progress events emitted by streaming installs",
		}, []string{"type"})
		pr.activeSessions = prom.NewGauge(prom.GaugeOpts{
			Namespace: "spackbridge",
			Name:      "active_sessions",
			Help:      "Number of sessions currently registered",
		})
		pr.httpRequests = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "spackbridge",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"})
		pr.httpDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "spackbridge",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request handling duration",
			Buckets:   prom.DefBuckets,
		}, []string{"route"})
		reg.MustRegister(
			pr.commandDuration,
			pr.installOutcome,
			pr.streamEvents,
			pr.activeSessions,
			pr.httpRequests,
			pr.httpDuration,
		)
	})
	return pr
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

func (pr *PrometheusRecorder) ObserveCommandDuration(operation string, d time.Duration, success bool) {
	pr.commandDuration.WithLabelValues(operation, result(success)).Observe(d.Seconds())
}

func (pr *PrometheusRecorder) IncInstallOutcome(outcome string) {
	pr.installOutcome.WithLabelValues(outcome).Inc()
}

func (pr *PrometheusRecorder) IncStreamEvent(eventType string) {
	pr.streamEvents.WithLabelValues(eventType).Inc()
}

func (pr *PrometheusRecorder) SetActiveSessions(n int) {
	pr.activeSessions.Set(float64(n))
}

func (pr *PrometheusRecorder) IncHTTPRequest(method, route string, status int) {
	pr.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

func (pr *PrometheusRecorder) ObserveHTTPDuration(route string, d time.Duration) {
	pr.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}
