// Package metrics provides Prometheus instrumentation for syncfleet's lease, partition, and
// reconciliation lifecycle.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"
)

// Manager manages all Prometheus metrics for syncfleet.
type Manager struct {
	registry *prometheus.Registry
	enabled  bool

	leaseRefreshes    *prometheus.CounterVec
	leaseLost         prometheus.Counter
	partitionsOwned   prometheus.Gauge
	tickDuration      prometheus.Histogram
	partitionRetries  *prometheus.CounterVec
	reconciliations   *prometheus.CounterVec
	reconcileDuration prometheus.Histogram
}

// Config holds metrics configuration.
type Config struct {
	Enabled bool
	Port    int
	Path    string

	TickDurationBuckets      []float64
	ReconcileDurationBuckets []float64
}

// DefaultConfig returns default metrics configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:                  true,
		Port:                     9091,
		Path:                     "/metrics",
		TickDurationBuckets:      []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		ReconcileDurationBuckets: []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	}
}

// NewManager creates a new metrics manager.
func NewManager(cfg Config) *Manager {
	if !cfg.Enabled {
		return &Manager{enabled: false}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Manager{registry: registry, enabled: true}

	m.leaseRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lease_refresh_total",
			Help: "Total lease keep-alive attempts by result",
		},
		[]string{"result"},
	)
	m.leaseLost = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lease_lost_total",
			Help: "Total number of times this node lost its coordination-store lease",
		},
	)
	m.partitionsOwned = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "partitions_owned",
			Help: "Number of partitions this node currently confirms ownership of",
		},
	)
	m.tickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sync_pipeline_tick_duration_seconds",
			Help:    "Duration of one sync pipeline tick, end to end",
			Buckets: cfg.TickDurationBuckets,
		},
	)
	m.partitionRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partition_query_retries_total",
			Help: "Total partition task-query retry attempts by outcome",
		},
		[]string{"outcome"},
	)
	m.reconciliations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciliations_total",
			Help: "Total reconciliation attempts by result",
		},
		[]string{"result"},
	)
	m.reconcileDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reconciliation_duration_seconds",
			Help:    "Duration of a single sync job reconciliation",
			Buckets: cfg.ReconcileDurationBuckets,
		},
	)

	registry.MustRegister(
		m.leaseRefreshes, m.leaseLost, m.partitionsOwned, m.tickDuration,
		m.partitionRetries, m.reconciliations, m.reconcileDuration,
	)

	return m
}

// NoOpManager returns a disabled metrics manager.
func NoOpManager() *Manager {
	return &Manager{enabled: false}
}

// Enabled returns whether metrics collection is enabled.
func (m *Manager) Enabled() bool { return m.enabled }

// Handler returns the HTTP handler for the metrics endpoint.
func (m *Manager) Handler() http.Handler {
	if !m.enabled {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer starts the metrics HTTP server on the configured port until ctx is cancelled.
func (m *Manager) StartServer(ctx context.Context, port int, path string) error {
	if !m.enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	server := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	return server.ListenAndServe()
}

// RecordLeaseRefresh records a lease keep-alive attempt's outcome ("ok" or "lost").
func (m *Manager) RecordLeaseRefresh(result string) {
	if !m.enabled {
		return
	}
	m.leaseRefreshes.WithLabelValues(result).Inc()
}

// RecordLeaseLost records that this node's lease was confirmed lost.
func (m *Manager) RecordLeaseLost() {
	if !m.enabled {
		return
	}
	m.leaseLost.Inc()
}

// SetPartitionsOwned reports how many partitions this node currently confirms ownership of.
func (m *Manager) SetPartitionsOwned(n int) {
	if !m.enabled {
		return
	}
	m.partitionsOwned.Set(float64(n))
}

// ObserveTickDuration records how long a sync pipeline tick took.
func (m *Manager) ObserveTickDuration(d time.Duration) {
	if !m.enabled {
		return
	}
	m.tickDuration.Observe(d.Seconds())
}

// RecordPartitionQueryRetry records a retry outcome ("retried" or "exhausted") for a
// partition's task query.
func (m *Manager) RecordPartitionQueryRetry(outcome string) {
	if !m.enabled {
		return
	}
	m.partitionRetries.WithLabelValues(outcome).Inc()
}

// RecordReconciliation records a reconciliation attempt's result ("ok" or "error"), attaching
// a trace exemplar when the context carries a valid span.
func (m *Manager) RecordReconciliation(ctx context.Context, result string, duration time.Duration) {
	if !m.enabled {
		return
	}

	counter := m.reconciliations.WithLabelValues(result)
	exemplar, hasExemplar := traceExemplarLabels(ctx)
	if hasExemplar {
		if adder, ok := counter.(prometheus.ExemplarAdder); ok {
			adder.AddWithExemplar(1, exemplar)
		} else {
			counter.Inc()
		}
	} else {
		counter.Inc()
	}

	if hasExemplar {
		if observer, ok := any(m.reconcileDuration).(prometheus.ExemplarObserver); ok {
			observer.ObserveWithExemplar(duration.Seconds(), exemplar)
			return
		}
	}
	m.reconcileDuration.Observe(duration.Seconds())
}

func traceExemplarLabels(ctx context.Context) (prometheus.Labels, bool) {
	if ctx == nil {
		return nil, false
	}
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return nil, false
	}
	return prometheus.Labels{
		"trace_id": spanCtx.TraceID().String(),
		"span_id":  spanCtx.SpanID().String(),
	}, true
}
