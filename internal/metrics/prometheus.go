// Package metrics exposes session events as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"volley/internal/core"
)

const namespace = "volley"

// Emitter is a core.Emitter backed by Prometheus collectors on its own
// registry.
type Emitter struct {
	registry *prometheus.Registry

	events          *prometheus.CounterVec
	errors          *prometheus.CounterVec
	counters        *prometheus.CounterVec
	rates           *prometheus.CounterVec
	activeSessions  prometheus.Gauge
	sessionDuration prometheus.Histogram
}

func NewEmitter() *Emitter {
	e := &Emitter{
		registry: prometheus.NewRegistry(),

		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_total",
				Help:      "Session lifecycle events by name",
			},
			[]string{"event"},
		),

		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Error events by code or message",
			},
			[]string{"code"},
		),

		counters: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "counter_total",
				Help:      "Named counters published by sessions and processors",
			},
			[]string{"name"},
		),

		rates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_total",
				Help:      "Occurrences of named rates; use rate() for per-second values",
			},
			[]string{"name"},
		),

		activeSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "sessions",
				Name:      "active",
				Help:      "Sessions started but not yet completed",
			},
		),

		sessionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "duration_seconds",
				Help:      "Session duration from connect to close",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
		),
	}

	e.registry.MustRegister(
		e.events,
		e.errors,
		e.counters,
		e.rates,
		e.activeSessions,
		e.sessionDuration,
		collectors.NewGoCollector(),
	)
	return e
}

func (e *Emitter) Event(name string, payload any) {
	e.events.WithLabelValues(name).Inc()

	switch name {
	case core.EventStarted:
		e.activeSessions.Inc()
	case core.EventError:
		e.errors.WithLabelValues(core.ErrorKey(payload)).Inc()
	case core.EventCompleted:
		e.activeSessions.Dec()
		if res, ok := payload.(core.SessionResult); ok {
			e.sessionDuration.Observe(res.Duration.Seconds())
		}
	}
}

func (e *Emitter) Counter(name string, delta int64) {
	if delta < 0 {
		return
	}
	e.counters.WithLabelValues(name).Add(float64(delta))
}

func (e *Emitter) Rate(name string) {
	e.rates.WithLabelValues(name).Inc()
}

// Registry returns the registry the emitter's collectors are registered on.
func (e *Emitter) Registry() *prometheus.Registry {
	return e.registry
}

// Handler serves /metrics and /health.
func (e *Emitter) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return mux
}
