package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for site enrichment.
type Metrics struct {
	PipelineRunning prometheus.Gauge

	// Source and transport metrics.
	SourceResults *prometheus.CounterVec   // labels: source, origin={live,cache,fixture,unavailable}
	CacheLookups  *prometheus.CounterVec   // labels: cache, result={hit,miss,stale,corrupt}
	FetchAttempts *prometheus.CounterVec   // labels: provider, outcome={success,retry,fatal,exhausted,breaker_open}
	FetchDuration *prometheus.HistogramVec // labels: provider

	// Extraction and scoring metrics.
	Extractions       prometheus.Counter
	PartialRecords    prometheus.Counter
	Predictions       *prometheus.CounterVec // labels: category, path
	ModelLoaded       prometheus.Gauge
	SitesEnriched     *prometheus.CounterVec // labels: outcome={scored,rejected,failed}
	EnrichRunDuration prometheus.Histogram
	SinkWriteFailures *prometheus.CounterVec // labels: sink
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)
	prometheus.MustRegister(
		m.PipelineRunning,
		m.SourceResults,
		m.CacheLookups,
		m.FetchAttempts,
		m.FetchDuration,
		m.Extractions,
		m.PartialRecords,
		m.Predictions,
		m.ModelLoaded,
		m.SitesEnriched,
		m.EnrichRunDuration,
		m.SinkWriteFailures,
	)
	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}

func newMetrics(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}
	return &Metrics{
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "towerguard",
			Name:      "pipeline_running",
			Help:      help("1 when the enrichment loop is active, 0 when shut down."),
		}),
		SourceResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "towerguard",
			Name:      "source_results_total",
			Help:      help("Source lookups by source and origin of the returned value."),
		}, []string{"source", "origin"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "towerguard",
			Name:      "cache_lookups_total",
			Help:      help("Cache lookups by cache name and result."),
		}, []string{"cache", "result"}),
		FetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "towerguard",
			Name:      "fetch_attempts_total",
			Help:      help("Provider HTTP attempts by outcome."),
		}, []string{"provider", "outcome"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "towerguard",
			Name:      "fetch_duration_seconds",
			Help:      help("Provider HTTP request duration in seconds, per attempt."),
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"provider"}),
		Extractions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "towerguard",
			Name:      "feature_extractions_total",
			Help:      help("Feature records produced."),
		}),
		PartialRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "towerguard",
			Name:      "feature_partial_records_total",
			Help:      help("Feature records flagged partial."),
		}),
		Predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "towerguard",
			Name:      "predictions_total",
			Help:      help("Predictions by health category and scoring path."),
		}, []string{"category", "path"}),
		ModelLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "towerguard",
			Name:      "model_loaded",
			Help:      help("1 when learned model weights are in use, 0 on the fallback heuristic."),
		}),
		SitesEnriched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "towerguard",
			Name:      "sites_enriched_total",
			Help:      help("Sites processed by batch enrichment, by outcome."),
		}, []string{"outcome"}),
		EnrichRunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "towerguard",
			Name:      "enrich_run_duration_seconds",
			Help:      help("Duration of a complete backfill over all water towers."),
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		SinkWriteFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "towerguard",
			Name:      "sink_write_failures_total",
			Help:      help("Record writes that failed, by sink."),
		}, []string{"sink"}),
	}
}
