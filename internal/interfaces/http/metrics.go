package http

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_model/go"

	"github.com/sawpanic/chartpulse/internal/telemetry"
)

// MetricsRegistry holds all Prometheus metrics for ChartPulse. It implements
// telemetry.Observer so the sink mirrors every tracked event into the
// scrape-able registry.
type MetricsRegistry struct {
	// Pipeline operation metrics
	OpDuration *prometheus.HistogramVec
	Operations *prometheus.CounterVec

	// Cache performance metrics
	CacheHitRatio prometheus.Gauge
	CacheHits     *prometheus.CounterVec
	CacheMisses   *prometheus.CounterVec

	// Request metrics
	Requests        *prometheus.CounterVec
	RequestDuration prometheus.Histogram

	registry *prometheus.Registry
}

// opBuckets maps cacheable operations to their cache bucket label.
var opBuckets = map[string]string{
	string(telemetry.OpDataFetch):  telemetry.BucketData,
	string(telemetry.OpChartGen):   telemetry.BucketChart,
	string(telemetry.OpLLMAnalyze): telemetry.BucketAnalysis,
}

// NewMetricsRegistry creates a registry with all ChartPulse metrics. Each
// instance owns its own Prometheus registry.
func NewMetricsRegistry() *MetricsRegistry {
	m := &MetricsRegistry{
		OpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chartpulse_operation_duration_ms",
				Help:    "Duration of each pipeline operation in milliseconds",
				Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 15000, 60000, 180000},
			},
			[]string{"op"},
		),

		Operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chartpulse_operations_total",
				Help: "Total number of pipeline operations by cache outcome",
			},
			[]string{"op", "outcome"},
		),

		CacheHitRatio: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "chartpulse_cache_hit_ratio",
				Help: "Current cache hit ratio across all buckets (0.0 to 1.0)",
			},
		),

		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chartpulse_cache_hits_total",
				Help: "Total number of cache hits by bucket",
			},
			[]string{"bucket"},
		),

		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chartpulse_cache_misses_total",
				Help: "Total number of cache misses by bucket",
			},
			[]string{"bucket"},
		),

		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chartpulse_requests_total",
				Help: "Total number of report requests by status",
			},
			[]string{"status"},
		),

		RequestDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "chartpulse_request_duration_ms",
				Help:    "End-to-end report request duration in milliseconds",
				Buckets: []float64{100, 500, 1000, 5000, 15000, 30000, 60000, 120000, 300000},
			},
		),

		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.OpDuration,
		m.Operations,
		m.CacheHitRatio,
		m.CacheHits,
		m.CacheMisses,
		m.Requests,
		m.RequestDuration,
	)

	return m
}

// Handler exposes the registry for GET /metrics.
func (m *MetricsRegistry) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveOperation implements telemetry.Observer.
func (m *MetricsRegistry) ObserveOperation(op string, durationMS float64, cacheHit bool) {
	m.OpDuration.WithLabelValues(op).Observe(durationMS)

	outcome := "miss"
	if cacheHit {
		outcome = "hit"
	}
	m.Operations.WithLabelValues(op, outcome).Inc()

	bucket, cacheable := opBuckets[op]
	if !cacheable {
		return
	}
	if cacheHit {
		m.CacheHits.WithLabelValues(bucket).Inc()
	} else {
		m.CacheMisses.WithLabelValues(bucket).Inc()
	}
	m.updateCacheHitRatio()
}

// ObserveRequest implements telemetry.Observer.
func (m *MetricsRegistry) ObserveRequest(success bool, totalMS float64) {
	status := "success"
	if !success {
		status = "failure"
	}
	m.Requests.WithLabelValues(status).Inc()
	m.RequestDuration.Observe(totalMS)
}

// updateCacheHitRatio recomputes the overall hit ratio from the per-bucket
// counters.
func (m *MetricsRegistry) updateCacheHitRatio() {
	var hits, misses float64
	for _, bucket := range []string{telemetry.BucketData, telemetry.BucketChart, telemetry.BucketAnalysis} {
		hits += counterValue(m.CacheHits.WithLabelValues(bucket))
		misses += counterValue(m.CacheMisses.WithLabelValues(bucket))
	}
	if total := hits + misses; total > 0 {
		m.CacheHitRatio.Set(hits / total)
	}
}

// counterValue reads a counter's current value through the client model.
func counterValue(c prometheus.Counter) float64 {
	var metric io_prometheus_client.Metric
	if err := c.Write(&metric); err != nil {
		return 0
	}
	return metric.GetCounter().GetValue()
}
