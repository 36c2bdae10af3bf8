package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	global *Metrics
	once   sync.Once
)

// Metrics holds the Prometheus collectors for the vault service.
//
// All metrics are prefixed with "ghost_":
//   - ghost_http_requests_total{method,route,code}
//   - ghost_http_request_duration_seconds{method,route}
//   - ghost_ai_generations_total{kind,result}
//   - ghost_emails_total{template,result}
//   - ghost_interest_decisions_total{status}
//   - ghost_events_dropped_total
type Metrics struct {
	HTTPRequests      *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
	AIGenerations     *prometheus.CounterVec
	Emails            *prometheus.CounterVec
	InterestDecisions *prometheus.CounterVec
	EventsDropped     prometheus.Counter
}

// Get returns the process-wide metrics, registering them on first use.
func Get() *Metrics {
	once.Do(func() {
		global = &Metrics{
			HTTPRequests: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ghost_http_requests_total",
					Help: "Total HTTP requests by method, route pattern and status code",
				},
				[]string{"method", "route", "code"},
			),
			HTTPDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "ghost_http_request_duration_seconds",
					Help:    "HTTP request latency in seconds",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"method", "route"},
			),
			AIGenerations: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ghost_ai_generations_total",
					Help: "AI text generations by kind (ghost_log, thumbnail_prompt) and result (ok, fallback)",
				},
				[]string{"kind", "result"},
			),
			Emails: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ghost_emails_total",
					Help: "Transactional emails by template (haunt, approval) and result (sent, failed, skipped)",
				},
				[]string{"template", "result"},
			),
			InterestDecisions: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ghost_interest_decisions_total",
					Help: "Interest status decisions by resulting status",
				},
				[]string{"status"},
			),
			EventsDropped: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "ghost_events_dropped_total",
					Help: "Events dropped because a subscriber was not keeping up",
				},
			),
		}
	})
	return global
}
