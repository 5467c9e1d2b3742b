// Package telemetry provides Prometheus metrics and OpenTelemetry tracing
// for memory backends and the hybrid sync.
package telemetry

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Hkesd/mcp-memory-service/internal/hybrid"
	"github.com/Hkesd/mcp-memory-service/internal/memory"
	"github.com/Hkesd/mcp-memory-service/internal/tier"
)

const namespace = "memoryd"

// Metrics holds the process metric collectors.
type Metrics struct {
	registry *prometheus.Registry

	ops           *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	substitutions *prometheus.CounterVec
	passes        *prometheus.CounterVec
	mirrored      prometheus.Counter
	deleted       prometheus.Counter

	watchOnce sync.Once
}

// NewMetrics creates a registry with the Go runtime and process collectors
// plus the memoryd collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "operations_total",
			Help:      "Backend operations by kind, operation and outcome.",
		}, []string{"kind", "op", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "operation_duration_seconds",
			Help:      "Backend operation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 9),
		}, []string{"kind", "op"}),
		substitutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tier",
			Name:      "substitutions_total",
			Help:      "Tiers replaced by the baseline store at construction.",
		}, []string{"tier", "driver"}),
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "passes_total",
			Help:      "Hybrid sync passes by outcome.",
		}, []string{"outcome"}),
		mirrored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "mirrored_records_total",
			Help:      "Records upserted into the secondary tier.",
		}),
		deleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "deleted_records_total",
			Help:      "Deletes propagated to the secondary tier.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ops, m.latency, m.substitutions, m.passes, m.mirrored, m.deleted,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveSubstitutions counts tier substitutions.
func (m *Metrics) ObserveSubstitutions(diags []tier.Diagnostic) {
	for _, d := range diags {
		m.substitutions.WithLabelValues(string(d.Tier), d.Driver).Inc()
	}
}

// ObservePass records a sync pass. It has the signature expected by
// hybrid.WithPassObserver.
func (m *Metrics) ObservePass(r hybrid.PassReport) {
	outcome := "ok"
	if !r.OK() {
		outcome = "failed"
	}
	m.passes.WithLabelValues(outcome).Inc()
	m.mirrored.Add(float64(r.Mirrored))
	m.deleted.Add(float64(r.Deleted))
}

// WatchSync exports the sync backlog and failure streak as gauges read
// from status on every scrape. Only the first call registers.
func (m *Metrics) WatchSync(status func() hybrid.SyncStatus) {
	m.watchOnce.Do(func() {
		m.registry.MustRegister(
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "sync",
				Name:      "pending_operations",
				Help:      "Foreground operations waiting to be mirrored.",
			}, func() float64 { return float64(status().Pending) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "sync",
				Name:      "consecutive_failures",
				Help:      "Failed sync passes since the last success.",
			}, func() float64 { return float64(status().ConsecutiveFailures) }),
		)
	})
}

func (m *Metrics) observeOp(kind memory.Kind, op string, seconds float64, err error) {
	m.ops.WithLabelValues(string(kind), op, Outcome(err)).Inc()
	m.latency.WithLabelValues(string(kind), op).Observe(seconds)
}

// Outcome classifies err into a low-cardinality label value.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, memory.ErrNotFound):
		return "not_found"
	case errors.Is(err, memory.ErrInvalidEntry), errors.Is(err, memory.ErrInvalidFilter):
		return "invalid"
	case errors.Is(err, memory.ErrEmbedding), errors.Is(err, memory.ErrDimensionMismatch):
		return "embedding"
	case errors.Is(err, memory.ErrCapacity):
		return "capacity"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case memory.IsTransient(err):
		return "transient"
	default:
		return "error"
	}
}
