package execution

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const MetricsSubsystem = "execution"

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Number of transactions committed to the store.
	TxsAccepted metrics.Counter
	// Number of transactions rejected before or during predicate evaluation.
	TxsRejected metrics.Counter
	// Number of predicate verdicts that rejected a transaction.
	PredicateRejections metrics.Counter
	// Number of commits retried after losing a store version race.
	CommitRetries metrics.Counter
	// Histogram of end-to-end transaction validation times.
	TxValidationSeconds metrics.Histogram
}

// PrometheusMetrics returns Metrics built using the Prometheus client library.
func PrometheusMetrics(namespace string) *Metrics {
	return &Metrics{
		TxsAccepted: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "txs_accepted",
			Help:      "Number of transactions committed to the store.",
		}, []string{}),
		TxsRejected: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "txs_rejected",
			Help:      "Number of transactions rejected.",
		}, []string{}),
		PredicateRejections: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "predicate_rejections",
			Help:      "Number of predicate verdicts that rejected a transaction.",
		}, []string{}),
		CommitRetries: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "commit_retries",
			Help:      "Number of commits retried after losing a store version race.",
		}, []string{}),
		TxValidationSeconds: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "tx_validation_seconds",
			Help:      "End-to-end transaction validation times.",
			Buckets:   stdprometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{}),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		TxsAccepted:         discard.NewCounter(),
		TxsRejected:         discard.NewCounter(),
		PredicateRejections: discard.NewCounter(),
		CommitRetries:       discard.NewCounter(),
		TxValidationSeconds: discard.NewHistogram(),
	}
}
