// Package observability exposes Prometheus metrics for the engines and stores.
package observability

import (
	"errors"
	"net/http"
	"time"

	"github.com/aretw0/callflow/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors. Each instance registers on its own registry
// so tests and multiple servers never collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	Events        *prometheus.CounterVec
	Saves         *prometheus.CounterVec
	StoreOps      *prometheus.CounterVec
	StoreDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers the collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callflow_events_total",
				Help: "Engine events by type and operation.",
			},
			[]string{"type", "op"},
		),
		Saves: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callflow_saves_total",
				Help: "Finished saves by outcome (ok, conflict, unauthorized, error).",
			},
			[]string{"outcome"},
		),
		StoreOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callflow_store_operations_total",
				Help: "Document store calls by operation and result.",
			},
			[]string{"op", "result"},
		),
		StoreDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "callflow_store_operation_duration_seconds",
				Help:    "Latency of document store calls.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
	}
	m.registry.MustRegister(
		m.Events, m.Saves, m.StoreOps, m.StoreDuration,
		prometheus.NewGoCollector(),
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Observe is a domain.Observer recording engine events.
func (m *Metrics) Observe(e domain.Event) {
	m.Events.WithLabelValues(string(e.Type), e.Op).Inc()
	switch e.Type {
	case domain.EventSaveSucceeded:
		m.Saves.WithLabelValues("ok").Inc()
	case domain.EventSaveFailed:
		m.Saves.WithLabelValues(Outcome(e.Err)).Inc()
	}
}

// ObserveStore records one store call.
func (m *Metrics) ObserveStore(op string, started time.Time, err error) {
	m.StoreDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
	m.StoreOps.WithLabelValues(op, Outcome(err)).Inc()
}

// Outcome classifies an error for metric labels.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrVersionConflict):
		return "conflict"
	case errors.Is(err, domain.ErrUnauthorized), errors.Is(err, domain.ErrCredentialRequired):
		return "unauthorized"
	case errors.Is(err, domain.ErrDocumentNotFound):
		return "not_found"
	default:
		return "error"
	}
}
