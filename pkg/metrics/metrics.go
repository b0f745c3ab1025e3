package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ShippingMetrics exposes the counters and gauges of the shipping path.
type ShippingMetrics struct {
	EventsEmitted      *prometheus.CounterVec
	BatchesSealed      prometheus.Counter
	BatchesFlushed     prometheus.Counter
	BatchesFailed      prometheus.Counter
	DeadLetterPending  prometheus.Gauge
	DeadLetterDropped  prometheus.Counter
	DeadLetterRecovers prometheus.Counter
	ClusterHealth      prometheus.Gauge
	FlushDuration      prometheus.Histogram
}

func NewShippingMetrics(registerer prometheus.Registerer) *ShippingMetrics {
	factory := promauto.With(registerer)
	return &ShippingMetrics{
		EventsEmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "logship_events_emitted_total",
			Help: "The total number of events routed to each sink",
		}, []string{"sink"}),
		BatchesSealed: factory.NewCounter(prometheus.CounterOpts{
			Name: "logship_batches_sealed_total",
			Help: "The total number of batches sealed by the batching buffer",
		}),
		BatchesFlushed: factory.NewCounter(prometheus.CounterOpts{
			Name: "logship_batches_flushed_total",
			Help: "The total number of batches delivered to the cluster",
		}),
		BatchesFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "logship_batches_failed_total",
			Help: "The total number of batch deliveries that failed",
		}),
		DeadLetterPending: factory.NewGauge(prometheus.GaugeOpts{
			Name: "logship_dead_letter_pending",
			Help: "The number of overflow records awaiting retry",
		}),
		DeadLetterDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "logship_dead_letter_dropped_total",
			Help: "The total number of overflow records dropped after retry exhaustion",
		}),
		DeadLetterRecovers: factory.NewCounter(prometheus.CounterOpts{
			Name: "logship_dead_letter_recovered_total",
			Help: "The total number of overflow records delivered on retry",
		}),
		ClusterHealth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "logship_cluster_health_status",
			Help: "The latest cluster health (0=green, 1=yellow, 2=red, 3=unknown)",
		}),
		FlushDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "logship_flush_duration_seconds",
			Help:    "The duration of bulk deliveries to the cluster",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// NewNopShippingMetrics registers against a throwaway registry, for callers
// that do not export metrics.
func NewNopShippingMetrics() *ShippingMetrics {
	return NewShippingMetrics(prometheus.NewRegistry())
}
