package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StorageMetrics instruments storage operations across all tiers.
type StorageMetrics struct {
	Ops        *prometheus.CounterVec
	Bytes      *prometheus.CounterVec
	Promotions prometheus.Counter
	Repairs    prometheus.Counter
	Sweeps     prometheus.Counter
	OpDuration *prometheus.HistogramVec
}

// NewStorageMetrics registers storage collectors on reg. A nil reg uses the
// default registry.
func NewStorageMetrics(namespace string, reg prometheus.Registerer) *StorageMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &StorageMetrics{
		Ops: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_operations_total",
			Help:      "Storage operations by backend, operation and result.",
		}, []string{"backend", "op", "result"}),
		Bytes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_bytes_total",
			Help:      "Bytes moved by backend and direction.",
		}, []string{"backend", "direction"}),
		Promotions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tier_promotions_total",
			Help:      "Asynchronous promotions of content into the hot tier.",
		}),
		Repairs: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tier_repairs_total",
			Help:      "Repairs of primary tiers triggered by backup-tier hits.",
		}),
		Sweeps: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tracker_sweep_removed_total",
			Help:      "Access-pattern entries removed by expiry sweeps.",
		}),
		OpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "storage_operation_duration_seconds",
			Help:      "Storage operation latency by backend and operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend", "op"}),
	}
}

// RecordOp records one operation outcome.
func (m *StorageMetrics) RecordOp(backend, op string, err error, started time.Time) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Ops.WithLabelValues(backend, op, result).Inc()
	m.OpDuration.WithLabelValues(backend, op).Observe(time.Since(started).Seconds())
}

// RecordBytes records bytes read from or written to a backend.
func (m *StorageMetrics) RecordBytes(backend, direction string, n int) {
	if m == nil {
		return
	}
	m.Bytes.WithLabelValues(backend, direction).Add(float64(n))
}

// MetricsServer serves the Prometheus scrape endpoint on its own listener.
type MetricsServer struct {
	registry *prometheus.Registry
	srv      *http.Server
	Storage  *StorageMetrics
}

// New creates a metrics server with process and Go runtime collectors plus
// the storage collectors pre-registered. An empty listenAddr disables the
// listener while keeping the collectors usable.
func New(namespace, listenAddr string) (*MetricsServer, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &MetricsServer{
		registry: registry,
		Storage:  NewStorageMetrics(namespace, registry),
	}

	if listenAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		m.srv = &http.Server{
			Addr:         listenAddr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
	}

	return m, nil
}

// RunInBackground starts the scrape listener. Errors other than a clean close
// are logged, not fatal.
func (m *MetricsServer) RunInBackground(log *slog.Logger) {
	if m.srv == nil {
		return
	}
	go func() {
		if err := m.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", "err", err)
		}
	}()
}

// Shutdown stops the scrape listener.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	if m.srv == nil {
		return nil
	}
	return m.srv.Shutdown(ctx)
}
