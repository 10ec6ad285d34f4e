// Package metrics exposes the pipeline's Prometheus instrumentation,
// grounded on internal/interfaces/http/metrics.go's registry shape but
// measuring confluence-analysis concerns instead of scan-pipeline ones.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
)

// Registry holds every Prometheus collector the pipeline reports.
type Registry struct {
	AnalysesTotal     *prometheus.CounterVec
	AnalysisDuration  prometheus.Histogram
	IndicatorDuration *prometheus.HistogramVec
	IndicatorErrors   *prometheus.CounterVec
	Reliability       prometheus.Histogram

	SignalsGenerated *prometheus.CounterVec
	SignalsFiltered  *prometheus.CounterVec
	SignalsDedup     prometheus.Counter

	TrackerAppends prometheus.Counter
	TrackerErrors  prometheus.Counter

	SinkDelivered prometheus.Counter
	SinkFailed    prometheus.Counter
	QueueDepth    prometheus.Gauge

	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter
}

// NewRegistry builds and registers all collectors.
func NewRegistry() *Registry {
	r := &Registry{
		AnalysesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "confluence_analyses_total",
			Help: "Total number of snapshot analyses performed, by outcome.",
		}, []string{"outcome"}),

		AnalysisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "confluence_analysis_duration_seconds",
			Help:    "Wall-clock duration of a full six-indicator analysis.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),

		IndicatorDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "confluence_indicator_duration_seconds",
			Help:    "Duration of a single indicator family's computation.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"indicator"}),

		IndicatorErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "confluence_indicator_errors_total",
			Help: "Indicator computations that errored or timed out, by indicator and reason.",
		}, []string{"indicator", "reason"}),

		Reliability: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "confluence_reliability_ratio",
			Help:    "Fraction of the six indicators that completed without error per analysis.",
			Buckets: []float64{0, 1.0 / 6, 2.0 / 6, 3.0 / 6, 4.0 / 6, 5.0 / 6, 1},
		}),

		SignalsGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "confluence_signals_generated_total",
			Help: "Signals that passed filtering and cooldown, by type.",
		}, []string{"type"}),

		SignalsFiltered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "confluence_signals_filtered_total",
			Help: "Signals suppressed by the quality filter or cooldown, by reason.",
		}, []string{"reason"}),

		SignalsDedup: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "confluence_signals_dispatched_total",
			Help: "Signals that passed filtering and cooldown and were dispatched.",
		}),

		TrackerAppends: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "confluence_tracker_appends_total",
			Help: "Quality records successfully appended to the JSONL log.",
		}),

		TrackerErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "confluence_tracker_errors_total",
			Help: "Quality record append failures (TrackerIOError).",
		}),

		SinkDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "confluence_sink_delivered_total",
			Help: "Signals successfully delivered to the downstream sink.",
		}),

		SinkFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "confluence_sink_failed_total",
			Help: "Signal deliveries that failed (SinkError), including circuit-open rejections.",
		}),

		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "confluence_dispatcher_queue_depth",
			Help: "Current depth of the sink dispatcher's bounded queue.",
		}),

		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "confluence_cache_hits_total",
			Help: "Per-snapshot cache hits across all indicators.",
		}),

		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "confluence_cache_misses_total",
			Help: "Per-snapshot cache misses across all indicators.",
		}),
	}

	prometheus.MustRegister(
		r.AnalysesTotal, r.AnalysisDuration, r.IndicatorDuration, r.IndicatorErrors, r.Reliability,
		r.SignalsGenerated, r.SignalsFiltered, r.SignalsDedup,
		r.TrackerAppends, r.TrackerErrors,
		r.SinkDelivered, r.SinkFailed, r.QueueDepth,
		r.CacheHits, r.CacheMisses,
	)
	return r
}

// Handler returns the promhttp handler for the /metrics route.
func (r *Registry) Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveIndicator records one indicator's duration and, on error, its
// failure reason.
func (r *Registry) ObserveIndicator(name string, d time.Duration, errReason string) {
	r.IndicatorDuration.WithLabelValues(name).Observe(d.Seconds())
	if errReason != "" {
		r.IndicatorErrors.WithLabelValues(name, errReason).Inc()
	}
}

// ObserveAnalysis records one completed analysis.
func (r *Registry) ObserveAnalysis(d time.Duration, reliability float64, outcome string) {
	r.AnalysisDuration.Observe(d.Seconds())
	r.Reliability.Observe(reliability)
	r.AnalysesTotal.WithLabelValues(outcome).Inc()
}
