package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "arrival_report"

// Metrics holds the Prometheus collectors for report generation.
type Metrics struct {
	ReportsBuilt        *prometheus.CounterVec // labels: outcome={success,error}
	ReportBuildDuration prometheus.Histogram
	StationsFetched     prometheus.Counter
	RecordsFetched      prometheus.Counter
	ReportRows          prometheus.Gauge

	// Closed-month report cache.
	ReportCache *prometheus.CounterVec // labels: result={hit,miss}

	// Downstream publication.
	ReportsPublished *prometheus.CounterVec // labels: outcome={success,error}
	PublishEnabled   prometheus.Gauge

	// Rules file.
	RulesSaves         prometheus.Counter
	RulesRegenerations prometheus.Counter
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()

	prometheus.MustRegister(
		m.ReportsBuilt,
		m.ReportBuildDuration,
		m.StationsFetched,
		m.RecordsFetched,
		m.ReportRows,
		m.ReportCache,
		m.ReportsPublished,
		m.PublishEnabled,
		m.RulesSaves,
		m.RulesRegenerations,
	)

	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		ReportsBuilt: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_built_total",
			Help:      "Monthly reports built, by outcome.",
		}, []string{"outcome"}),
		ReportBuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "report_build_duration_seconds",
			Help:      "Duration of a complete fetch-and-aggregate cycle for one month.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		StationsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stations_fetched_total",
			Help:      "Station roster entries read from the data source.",
		}),
		RecordsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_fetched_total",
			Help:      "Arrival records read from the data source.",
		}),
		ReportRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "report_rows",
			Help:      "Number of station rows in the most recently built report.",
		}),
		ReportCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_cache_total",
			Help:      "Closed-month report cache lookups by result.",
		}, []string{"result"}),
		ReportsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_published_total",
			Help:      "Reports published downstream, by outcome.",
		}, []string{"outcome"}),
		PublishEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "publish_enabled",
			Help:      "1 when report publication to Kafka is enabled, 0 otherwise.",
		}),
		RulesSaves: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rules_saves_total",
			Help:      "Rules file writes.",
		}),
		RulesRegenerations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rules_regenerations_total",
			Help:      "Regenerations of station_daily_expected from the roster.",
		}),
	}
}
