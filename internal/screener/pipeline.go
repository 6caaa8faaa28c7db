package screener

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wonny/gapscan/internal/contracts"
	"github.com/wonny/gapscan/internal/metrics"
	"github.com/wonny/gapscan/internal/resultcache"
	"github.com/wonny/gapscan/pkg/logger"
)

// Defaults
const (
	DefaultWorkers      = 4
	DefaultFetchTimeout = 10 * time.Second
	minHistoryDays      = 30
)

// Symbol results for metrics
const (
	resultQualified = "qualified"
	resultRejected  = "rejected"
	resultSkipped   = "skipped"
	resultFailed    = "failed"
)

// Config is the immutable pipeline configuration
type Config struct {
	Criteria     contracts.FilterCriteria
	Workers      int
	FetchTimeout time.Duration

	// HistoryDays is the calendar window requested from the metric source;
	// 0 derives it from the lookback
	HistoryDays int
}

// Collaborators are the pluggable data sources. Cache and Metrics are optional.
type Collaborators struct {
	Discovery contracts.CandidateDiscovery
	Market    contracts.MetricSource
	Catalysts contracts.CatalystSource
	Floats    contracts.FloatEstimator
	Cache     *resultcache.Cache
	Metrics   *metrics.Registry
}

// Pipeline runs discovery, per-symbol metric gathering, filtering and
// result assembly. It holds no per-scan state; the cache is the only thing
// shared between scans.
// ⭐ SSOT: screening logic lives here only
type Pipeline struct {
	cfg     Config
	deps    Collaborators
	cache   *resultcache.Cache
	metrics *metrics.Registry
	logger  *logger.Logger
	now     func() time.Time
}

// New validates configuration and collaborators and builds a pipeline
func New(cfg Config, deps Collaborators, log *logger.Logger) (*Pipeline, error) {
	if err := cfg.Criteria.Validate(); err != nil {
		return nil, err
	}
	if deps.Discovery == nil || deps.Market == nil || deps.Catalysts == nil || deps.Floats == nil {
		return nil, fmt.Errorf("%w: discovery, market, catalyst and float sources are required", contracts.ErrConfiguration)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.HistoryDays <= 0 {
		cfg.HistoryDays = historyDays(cfg.Criteria.LookbackDays)
	}
	if log == nil {
		log = logger.Nop()
	}

	cache := deps.Cache
	if cache == nil {
		cache = resultcache.New(resultcache.Options{Metrics: deps.Metrics, Logger: log})
	}

	return &Pipeline{
		cfg:     cfg,
		deps:    deps,
		cache:   cache,
		metrics: deps.Metrics,
		logger:  log.WithField("module", "screener"),
		now:     time.Now,
	}, nil
}

// historyDays converts trading-day lookback to a calendar window with room
// for weekends and holidays
func historyDays(lookback int) int {
	days := lookback*3/2 + 5
	if days < minHistoryDays {
		days = minHistoryDays
	}
	return days
}

// Criteria returns the filter configuration
func (p *Pipeline) Criteria() contracts.FilterCriteria {
	return p.cfg.Criteria
}

// Cache returns the result cache shared by scans of this pipeline
func (p *Pipeline) Cache() *resultcache.Cache {
	return p.cache
}

// Scan runs one full scan. Per-symbol failures become warnings; only
// discovery failures and cancellation fail the scan. A cancelled scan
// returns ctx.Err() and no report.
func (p *Pipeline) Scan(ctx context.Context, req Request) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	done := p.metrics.ScanStarted()
	report := &Report{
		Criteria:  p.cfg.Criteria,
		Rejected:  make(map[contracts.Ticker]string),
		StartedAt: p.now(),
	}

	candidates, err := p.discover(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			done(metrics.OutcomeCancelled, 0)
			return nil, ctx.Err()
		}
		done(metrics.OutcomeError, 0)
		return nil, err
	}

	if len(candidates) == 0 {
		report.NoCandidates = true
		report.Candidates = []contracts.Ticker{}
		report.Results = []contracts.ScreenResult{}
		report.FinishedAt = p.now()
		p.logger.Info("No candidates found")
		done(metrics.OutcomeNoCandidates, 0)
		return report, nil
	}
	report.Candidates = candidates

	p.logger.WithField("count", len(candidates)).
		Infof("Scanning the following tickers: %s", contracts.JoinTickers(candidates))

	outcomes := p.evaluateAll(ctx, candidates)
	if ctx.Err() != nil {
		done(metrics.OutcomeCancelled, 0)
		return nil, ctx.Err()
	}

	report.Results = make([]contracts.ScreenResult, 0, len(candidates))
	for i, o := range outcomes {
		t := candidates[i]
		report.Warnings = append(report.Warnings, o.warnings...)
		switch {
		case o.result != nil:
			report.Results = append(report.Results, *o.result)
		case o.skipped:
			report.Skipped = append(report.Skipped, t)
		case o.reason != "":
			report.Rejected[t] = o.reason
		}
	}
	report.FinishedAt = p.now()

	for _, w := range report.Warnings {
		p.logger.WithError(w.Err).WithFields(logger.Fields{
			"ticker": w.Ticker,
			"stage":  w.Stage,
		}).Warn("Symbol degraded")
	}

	p.logger.WithFields(logger.Fields{
		"candidates": len(candidates),
		"qualified":  len(report.Results),
		"rejected":   len(report.Rejected),
		"skipped":    len(report.Skipped),
		"warnings":   len(report.Warnings),
		"duration":   report.Duration(),
	}).Info("Scan completed")

	done(metrics.OutcomeOK, len(report.Results))
	return report, nil
}

func (p *Pipeline) discover(ctx context.Context, req Request) ([]contracts.Ticker, error) {
	limit := p.cfg.Criteria.MaxCandidates
	if len(req.Tickers) > 0 {
		return contracts.UniqueTickers(req.Tickers, limit), nil
	}

	key := resultcache.Key{
		Kind:   resultcache.KindDiscover,
		Params: strconv.Itoa(limit) + "@" + contracts.FingerprintOf(p.deps.Discovery),
	}
	start := time.Now()
	tickers, err := resultcache.Get(ctx, p.cache, key, func(ctx context.Context) ([]contracts.Ticker, error) {
		ctx, cancel := context.WithTimeout(ctx, p.cfg.FetchTimeout)
		defer cancel()
		return p.deps.Discovery.Discover(ctx, limit)
	})
	p.metrics.ObserveStage(string(StageDiscover), time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("discover candidates: %w", err)
	}

	// Guard against sources that ignore the contract
	return contracts.UniqueTickers(tickerStrings(tickers), limit), nil
}

func tickerStrings(ts []contracts.Ticker) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = string(t)
	}
	return out
}

// evaluateAll fans symbols out to a bounded worker pool. Each outcome slot
// is written by exactly one worker, so discovery order is preserved.
func (p *Pipeline) evaluateAll(ctx context.Context, candidates []contracts.Ticker) []outcome {
	outcomes := make([]outcome, len(candidates))

	workers := p.cfg.Workers
	if workers > len(candidates) {
		workers = len(candidates)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					continue
				}
				outcomes[i] = p.evaluateSafe(ctx, candidates[i])
			}
		}()
	}

feed:
	for i := range candidates {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	return outcomes
}

// evaluateSafe isolates one symbol: panics become warnings
func (p *Pipeline) evaluateSafe(ctx context.Context, t contracts.Ticker) (o outcome) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.WithFields(logger.Fields{
				"ticker": t,
				"panic":  r,
				"stack":  string(debug.Stack()),
			}).Error("Symbol evaluation panicked")
			o = outcome{
				reason:   "panic",
				warnings: append(o.warnings, newWarning(t, StageEvaluate, fmt.Errorf("panic: %v", r))),
			}
			p.metrics.RecordSymbol(resultFailed)
		}
	}()

	o = p.evaluate(ctx, t)
	switch {
	case o.result != nil:
		p.metrics.RecordSymbol(resultQualified)
	case o.skipped:
		p.metrics.RecordSymbol(resultSkipped)
	case len(o.warnings) > 0 && o.reason == "":
		p.metrics.RecordSymbol(resultFailed)
	default:
		p.metrics.RecordSymbol(resultRejected)
	}
	return o
}

// evaluate gathers metrics for one symbol and applies the filter.
// Cheap predicates run first so a rejected symbol spends no news quota.
func (p *Pipeline) evaluate(ctx context.Context, t contracts.Ticker) outcome {
	var o outcome
	c := p.cfg.Criteria

	quote, err := p.quote(ctx, t)
	if err != nil {
		if ctx.Err() != nil {
			return o
		}
		o.warnings = append(o.warnings, newWarning(t, StageQuote, err))
		return o
	}
	if !quote.Valid() {
		p.logger.WithError(contracts.ErrInvalidQuote).WithField("ticker", t).Debug("Symbol skipped")
		o.skipped = true
		return o
	}
	if o.reason = c.CheckQuote(quote); o.reason != "" {
		return o
	}

	history, err := p.history(ctx, t)
	if err != nil {
		if ctx.Err() != nil {
			return o
		}
		o.warnings = append(o.warnings, newWarning(t, StageHistory, err))
		history = contracts.VolumeHistory{}
	}
	bundle := contracts.MetricBundle{
		PercentChange:  quote.PercentChange(),
		RelativeVolume: history.RelativeVolume(c.LookbackDays),
	}
	if o.reason = c.CheckRelativeVolume(bundle.RelativeVolume); o.reason != "" {
		return o
	}

	floatMillions, err := p.float(ctx, t)
	if err != nil {
		if ctx.Err() != nil {
			return o
		}
		o.warnings = append(o.warnings, newWarning(t, StageFloat, err))
		o.reason = contracts.RejectFloat
		return o
	}
	bundle.FloatMillions = floatMillions
	if o.reason = c.CheckFloat(floatMillions); o.reason != "" {
		return o
	}

	headline, err := p.catalyst(ctx, t)
	if err != nil {
		if ctx.Err() != nil {
			return o
		}
		o.warnings = append(o.warnings, newWarning(t, StageCatalyst, err))
		headline = nil
	}
	bundle.Headline = headline

	if o.reason = c.Evaluate(quote, bundle); o.reason != "" {
		return o
	}

	o.result = assemble(t, quote, bundle, p.now())
	return o
}

// assemble builds a result row, rounding ratios to cents
func assemble(t contracts.Ticker, q contracts.QuoteSnapshot, m contracts.MetricBundle, at time.Time) *contracts.ScreenResult {
	r := &contracts.ScreenResult{
		Ticker:         t,
		Price:          q.CurrentPrice,
		PercentChange:  round2(m.PercentChange),
		RelativeVolume: round2(m.RelativeVolume),
		FloatMillions:  m.FloatMillions,
		ComputedAt:     at,
	}
	if m.Headline != nil {
		r.Headline = m.Headline.Title
		r.HeadlineURL = m.Headline.URL
	}
	return r
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// fetch runs one cached upstream call. Both the shared computation and
// this caller's wait are bounded by the fetch timeout, so a source that
// ignores its context still cannot stall the worker.
func fetch[T any](ctx context.Context, p *Pipeline, stage Stage, key resultcache.Key, fn func(context.Context) (T, error)) (T, error) {
	start := time.Now()
	waitCtx, cancelWait := context.WithTimeout(ctx, p.cfg.FetchTimeout)
	defer cancelWait()

	v, err := resultcache.Get(waitCtx, p.cache, key, func(ctx context.Context) (T, error) {
		ctx, cancel := context.WithTimeout(ctx, p.cfg.FetchTimeout)
		defer cancel()
		return fn(ctx)
	})
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		err = fmt.Errorf("%s timed out after %s: %w", stage, p.cfg.FetchTimeout, err)
	}
	p.metrics.ObserveStage(string(stage), time.Since(start), err)
	return v, err
}

func (p *Pipeline) quote(ctx context.Context, t contracts.Ticker) (contracts.QuoteSnapshot, error) {
	key := resultcache.Key{Kind: resultcache.KindQuote, Ticker: t}
	return fetch(ctx, p, StageQuote, key, func(ctx context.Context) (contracts.QuoteSnapshot, error) {
		return p.deps.Market.Quote(ctx, t)
	})
}

func (p *Pipeline) history(ctx context.Context, t contracts.Ticker) (contracts.VolumeHistory, error) {
	key := resultcache.Key{Kind: resultcache.KindHistory, Ticker: t, Params: strconv.Itoa(p.cfg.HistoryDays)}
	return fetch(ctx, p, StageHistory, key, func(ctx context.Context) (contracts.VolumeHistory, error) {
		return p.deps.Market.History(ctx, t, p.cfg.HistoryDays)
	})
}

func (p *Pipeline) float(ctx context.Context, t contracts.Ticker) (float64, error) {
	key := resultcache.Key{Kind: resultcache.KindFloat, Ticker: t, Params: contracts.FingerprintOf(p.deps.Floats)}
	return fetch(ctx, p, StageFloat, key, func(ctx context.Context) (float64, error) {
		return p.deps.Floats.Estimate(ctx, t)
	})
}

func (p *Pipeline) catalyst(ctx context.Context, t contracts.Ticker) (*contracts.Headline, error) {
	key := resultcache.Key{Kind: resultcache.KindCatalyst, Ticker: t}
	return fetch(ctx, p, StageCatalyst, key, func(ctx context.Context) (*contracts.Headline, error) {
		return p.deps.Catalysts.LatestHeadline(ctx, t)
	})
}
