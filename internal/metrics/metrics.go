// Package metrics records delivery outcomes as Prometheus series.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mbarradev-debug/divisapp-sub000/pkg/webpush"
)

const namespace = "push"

// Metrics holds the collectors exported by the service.
type Metrics struct {
	registry *prometheus.Registry

	attempts *prometheus.CounterVec
	duration *prometheus.HistogramVec
	removed  *prometheus.CounterVec
	skipped  prometheus.Counter
	consumed *prometheus.CounterVec
}

// New creates the collectors on a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "delivery_attempts_total",
				Help:      "Delivery attempts by outcome and error code.",
			},
			[]string{"outcome", "error_code"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "delivery_attempt_duration_seconds",
				Help:      "Time spent on one delivery attempt, encryption included.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		removed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "subscriptions_removed_total",
				Help:      "Subscriptions deleted by cleanup, by reason.",
			},
			[]string{"reason"},
		),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_skipped_total",
			Help:      "Events skipped because they expired before dispatch.",
		}),
		consumed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "intake_messages_total",
				Help:      "Delivery requests consumed from the broker, by status.",
			},
			[]string{"status"},
		),
	}
	m.registry.MustRegister(
		m.attempts,
		m.duration,
		m.removed,
		m.skipped,
		m.consumed,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveAttempt records one attempt. It matches webpush.WithOnAttempt.
func (m *Metrics) ObserveAttempt(_ context.Context, a webpush.AttemptResult) {
	outcome := "success"
	if !a.Success {
		outcome = "failure"
	}
	m.attempts.WithLabelValues(outcome, string(a.ErrorCode)).Inc()
	m.duration.WithLabelValues(outcome).Observe(a.Duration.Seconds())
}

// ObserveSkipped records an expired event. It matches webpush.WithOnSkipped.
func (m *Metrics) ObserveSkipped(_ context.Context, _ webpush.Event) {
	m.skipped.Inc()
}

// ObserveRemoved records deleted subscriptions. It matches webpush.WithOnRemoved.
func (m *Metrics) ObserveRemoved(_ context.Context, reason string, n int) {
	if n <= 0 {
		return
	}
	m.removed.WithLabelValues(reason).Add(float64(n))
}

// ObserveConsumed records one broker message by its handling status.
func (m *Metrics) ObserveConsumed(status string) {
	m.consumed.WithLabelValues(status).Inc()
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

