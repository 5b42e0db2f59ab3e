package loadgen

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "reviewload"

// Metrics exposes run progress as Prometheus collectors
type Metrics struct {
	requests        *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	activeSessions  prometheus.Gauge
	openPullRequest prometheus.Gauge
	seededUsers     prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "requests_total",
			Help:      "Requests issued by virtual users, by task and outcome.",
		}, []string{"task", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "request_duration_seconds",
			Help:      "Latency of requests issued by virtual users.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"task"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "active_sessions",
			Help:      "Virtual users currently running.",
		}),
		openPullRequest: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "tracked_pull_requests",
			Help:      "Open pull requests tracked in the shared registry.",
		}),
		seededUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "seeded_users",
			Help:      "Users registered by successful team seeding.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.duration, m.activeSessions, m.openPullRequest, m.seededUsers)
	}
	return m
}

// Observe records one task result
func (m *Metrics) Observe(result TaskResult) {
	m.requests.WithLabelValues(string(result.Task), string(result.Outcome)).Inc()
	m.duration.WithLabelValues(string(result.Task)).Observe(float64(result.DurationMs) / 1000)
}

// SetRegistry publishes the registry sizes
func (m *Metrics) SetRegistry(counts Counts) {
	m.openPullRequest.Set(float64(counts.PullRequests))
	m.seededUsers.Set(float64(counts.Users))
}

// SetActiveSessions publishes the number of running sessions
func (m *Metrics) SetActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}
