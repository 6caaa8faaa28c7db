package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Scan outcome labels
const (
	OutcomeOK           = "ok"
	OutcomeNoCandidates = "no_candidates"
	OutcomeCancelled    = "cancelled"
	OutcomeError        = "error"
)

// Registry holds the Prometheus collectors for scans, symbols and the result cache.
// All methods are nil-safe so a disabled registry costs nothing.
// ⭐ SSOT: every gapscan metric is declared here
type Registry struct {
	reg *prometheus.Registry

	ScanDuration  *prometheus.HistogramVec
	ScansTotal    *prometheus.CounterVec
	ActiveScans   prometheus.Gauge
	SymbolsTotal  *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	StageErrors   *prometheus.CounterVec
	CacheHits     *prometheus.CounterVec
	CacheMisses   *prometheus.CounterVec
	Qualified     prometheus.Gauge
}

// NewRegistry creates a registry with its own prometheus.Registry so tests
// and multiple pipelines never collide on the global default
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		ScanDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gapscan_scan_duration_seconds",
				Help:    "Duration of a full screening scan in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"outcome"},
		),

		ScansTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gapscan_scans_total",
				Help: "Total number of scans by outcome",
			},
			[]string{"outcome"},
		),

		ActiveScans: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gapscan_active_scans",
				Help: "Number of currently running scans",
			},
		),

		SymbolsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gapscan_symbols_total",
				Help: "Symbols evaluated by result (qualified, rejected, skipped, failed)",
			},
			[]string{"result"},
		),

		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gapscan_stage_duration_seconds",
				Help:    "Duration of each per-symbol fetch stage in seconds",
				Buckets: []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"stage"},
		),

		StageErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gapscan_stage_errors_total",
				Help: "Upstream failures by stage",
			},
			[]string{"stage"},
		),

		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gapscan_cache_hits_total",
				Help: "Result cache hits by kind",
			},
			[]string{"kind"},
		),

		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gapscan_cache_misses_total",
				Help: "Result cache misses (computations) by kind",
			},
			[]string{"kind"},
		),

		Qualified: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gapscan_last_scan_qualified",
				Help: "Number of qualifying stocks in the most recent scan",
			},
		),
	}

	r.reg.MustRegister(
		r.ScanDuration,
		r.ScansTotal,
		r.ActiveScans,
		r.SymbolsTotal,
		r.StageDuration,
		r.StageErrors,
		r.CacheHits,
		r.CacheMisses,
		r.Qualified,
	)

	return r
}

// Handler exposes the registry for scraping
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Gatherer returns the underlying gatherer, used by tests
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// ScanStarted marks a scan as running and returns a func that records its end
func (r *Registry) ScanStarted() func(outcome string, qualified int) {
	if r == nil {
		return func(string, int) {}
	}
	start := time.Now()
	r.ActiveScans.Inc()
	return func(outcome string, qualified int) {
		r.ActiveScans.Dec()
		r.ScansTotal.WithLabelValues(outcome).Inc()
		r.ScanDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
		if outcome == OutcomeOK || outcome == OutcomeNoCandidates {
			r.Qualified.Set(float64(qualified))
		}
	}
}

// ObserveStage records one fetch stage duration and whether it failed
func (r *Registry) ObserveStage(stage string, d time.Duration, err error) {
	if r == nil {
		return
	}
	r.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
	if err != nil {
		r.StageErrors.WithLabelValues(stage).Inc()
	}
}

// RecordSymbol counts one evaluated symbol
func (r *Registry) RecordSymbol(result string) {
	if r == nil {
		return
	}
	r.SymbolsTotal.WithLabelValues(result).Inc()
}

// RecordCacheHit counts a cache hit for kind
func (r *Registry) RecordCacheHit(kind string) {
	if r == nil {
		return
	}
	r.CacheHits.WithLabelValues(kind).Inc()
}

// RecordCacheMiss counts a cache miss for kind
func (r *Registry) RecordCacheMiss(kind string) {
	if r == nil {
		return
	}
	r.CacheMisses.WithLabelValues(kind).Inc()
}
