package matcher

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const MetricsSubsystem = "matcher"

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Number of trade cycles found across scans.
	CyclesFound metrics.Counter
	// Number of match sets submitted for settlement.
	MatchSetsSubmitted metrics.Counter
	// Histogram of scan round durations.
	ScanSeconds metrics.Histogram
}

// PrometheusMetrics returns Metrics built using the Prometheus client library.
func PrometheusMetrics(namespace string) *Metrics {
	return &Metrics{
		CyclesFound: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "cycles_found",
			Help:      "Number of trade cycles found across scans.",
		}, []string{}),
		MatchSetsSubmitted: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "match_sets_submitted",
			Help:      "Number of match sets submitted for settlement.",
		}, []string{}),
		ScanSeconds: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "scan_seconds",
			Help:      "Scan round durations.",
			Buckets:   stdprometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{}),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		CyclesFound:        discard.NewCounter(),
		MatchSetsSubmitted: discard.NewCounter(),
		ScanSeconds:        discard.NewHistogram(),
	}
}
