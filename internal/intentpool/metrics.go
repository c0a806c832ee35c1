package intentpool

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const MetricsSubsystem = "intentpool"

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Size of the intent pool.
	Size metrics.Gauge
	// Histogram of intent sizes, in bytes.
	IntentSizeBytes metrics.Histogram
	// Number of intents fully consumed by settlements.
	IntentsFilled metrics.Counter
	// Number of partial fills applied to live intents.
	IntentsPartiallyFilled metrics.Counter
	// Number of intents purged after expiry.
	IntentsExpired metrics.Counter
}

// PrometheusMetrics returns Metrics built using the Prometheus client library.
func PrometheusMetrics(namespace string) *Metrics {
	return &Metrics{
		Size: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "size",
			Help:      "Size of the intent pool (number of live intents).",
		}, []string{}),
		IntentSizeBytes: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "intent_size_bytes",
			Help:      "Intent sizes in bytes.",
			Buckets:   stdprometheus.ExponentialBuckets(1, 3, 17),
		}, []string{}),
		IntentsFilled: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "intents_filled",
			Help:      "Number of intents fully consumed by settlements.",
		}, []string{}),
		IntentsPartiallyFilled: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "intents_partially_filled",
			Help:      "Number of partial fills applied to live intents.",
		}, []string{}),
		IntentsExpired: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "intents_expired",
			Help:      "Number of intents purged after expiry.",
		}, []string{}),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		Size:                   discard.NewGauge(),
		IntentSizeBytes:        discard.NewHistogram(),
		IntentsFilled:          discard.NewCounter(),
		IntentsPartiallyFilled: discard.NewCounter(),
		IntentsExpired:         discard.NewCounter(),
	}
}
