package middleware

import (
	"context"
	"time"

	"github.com/aretw0/callflow/pkg/observability"
	"github.com/aretw0/callflow/pkg/ports"
)

type metricsMiddleware struct {
	next    ports.DocumentStore
	metrics *observability.Metrics
}

// NewMetricsMiddleware records the count, result and latency of every store call.
func NewMetricsMiddleware(metrics *observability.Metrics) Middleware {
	return func(next ports.DocumentStore) ports.DocumentStore {
		return &metricsMiddleware{next: next, metrics: metrics}
	}
}

func (m *metricsMiddleware) Get(ctx context.Context, key string) (ports.Object, error) {
	start := time.Now()
	obj, err := m.next.Get(ctx, key)
	m.metrics.ObserveStore("get", start, err)
	return obj, err
}

func (m *metricsMiddleware) Version(ctx context.Context, key string) (string, error) {
	start := time.Now()
	v, err := m.next.Version(ctx, key)
	m.metrics.ObserveStore("version", start, err)
	return v, err
}

func (m *metricsMiddleware) Put(ctx context.Context, req ports.PutRequest) (string, error) {
	start := time.Now()
	v, err := m.next.Put(ctx, req)
	m.metrics.ObserveStore("put", start, err)
	return v, err
}

func (m *metricsMiddleware) List(ctx context.Context, prefix string) ([]string, error) {
	start := time.Now()
	keys, err := list(ctx, m.next, prefix)
	m.metrics.ObserveStore("list", start, err)
	return keys, err
}
