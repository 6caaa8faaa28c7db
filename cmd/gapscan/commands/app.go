package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/gapscan/internal/contracts"
	"github.com/wonny/gapscan/internal/external/alpaca"
	"github.com/wonny/gapscan/internal/external/finviz"
	"github.com/wonny/gapscan/internal/external/newsapi"
	"github.com/wonny/gapscan/internal/external/yahoo"
	"github.com/wonny/gapscan/internal/floats"
	"github.com/wonny/gapscan/internal/metrics"
	"github.com/wonny/gapscan/internal/profile"
	"github.com/wonny/gapscan/internal/resultcache"
	"github.com/wonny/gapscan/internal/screener"
	"github.com/wonny/gapscan/pkg/config"
	"github.com/wonny/gapscan/pkg/database"
	"github.com/wonny/gapscan/pkg/httputil"
	"github.com/wonny/gapscan/pkg/logger"
	"github.com/wonny/gapscan/pkg/redis"
)

// cacheKeyPrefix namespaces result-cache entries in Redis
const cacheKeyPrefix = "gapscan:cache"

// app holds the collaborators shared by every scan in this process
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	profile *profile.Profile

	metrics   *metrics.Registry
	cache     *resultcache.Cache
	discovery contracts.CandidateDiscovery
	market    contracts.MetricSource
	catalysts contracts.CatalystSource
	floats    *floats.Table

	redis *redis.Client
	db    *database.DB
}

// appOptions tunes wiring per command
type appOptions struct {
	// VolatileTTL expires intraday cache entries; 0 keeps them for the process lifetime
	VolatileTTL time.Duration
}

// newApp wires config into clients, cache and float table
// ⭐ SSOT: the only place upstream clients are constructed
func newApp(ctx context.Context, cfg *config.Config, log *logger.Logger, opts appOptions) (*app, error) {
	set, err := profile.Load(cfg.Scan.ProfilesPath)
	if err != nil {
		return nil, err
	}
	p, err := set.Get(cfg.Scan.Profile)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log, profile: p}
	if cfg.MetricsEnabled {
		a.metrics = metrics.NewRegistry()
	}

	// 1. Redis (optional): L2 cache + shared rate limits
	a.redis, err = redis.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	var limiter *redis.RateLimiter
	if a.redis.Enabled() {
		limiter = redis.NewRateLimiter(a.redis, "gapscan:ratelimit")
		log.Info("Redis enabled for L2 cache and rate limiting")
	}

	// 2. HTTP clients, one breaker per upstream
	finvizHTTP := newUpstreamClient(cfg, log, cfg.Finviz.RateLimit, limiter, redis.FinvizRateLimit)
	marketHTTP := newUpstreamClient(cfg, log, cfg.MarketData.RateLimit, limiter, redis.YahooRateLimit)
	newsHTTP := newUpstreamClient(cfg, log, 0, limiter, redis.NewsAPIRateLimit)

	// 3. Discovery
	switch p.Discovery {
	case profile.DiscoveryStatic:
		a.discovery = finviz.NewStaticDiscovery(p.Tickers)
	default:
		a.discovery = finviz.NewClient(finvizHTTP, log, cfg.Finviz.ScreenerURL)
	}

	// 4. Market data
	switch cfg.MarketData.Provider {
	case config.ProviderAlpaca:
		a.market = alpaca.NewClient(cfg, log)
	default:
		a.market = yahoo.NewClient(marketHTTP, log, cfg.MarketData.YahooBaseURL)
	}

	// 5. News
	a.catalysts, err = newsapi.NewClient(newsHTTP, log, cfg.News.BaseURL, cfg.News.APIKey, cfg.News.PageSize)
	if err != nil {
		return nil, err
	}

	// 6. Floats: profile policy wins over the environment
	if p.FloatPolicy != "" {
		cfg.Float.UnknownPolicy = p.FloatPolicy
	}
	a.floats, err = floats.NewTableFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.loadFloatOverrides(ctx)

	// 7. Result cache
	cacheOpts := resultcache.Options{
		ComputeTimeout: cfg.Scan.FetchTimeout,
		Metrics:        a.metrics,
		Logger:         log,
	}
	if opts.VolatileTTL > 0 {
		cacheOpts.TTL = make(map[resultcache.Kind]time.Duration, len(resultcache.Volatile))
		for _, k := range resultcache.Volatile {
			cacheOpts.TTL[k] = opts.VolatileTTL
		}
	}
	if a.redis.Enabled() {
		cacheOpts.L2 = redis.NewCache(a.redis, cacheKeyPrefix)
	}
	a.cache = resultcache.New(cacheOpts)

	hash, err := profile.Hash(p)
	if err != nil {
		return nil, fmt.Errorf("hash profile: %w", err)
	}
	log.WithFields(logger.Fields{
		"profile":      p.Name,
		"profile_hash": hash[:12],
		"discovery":    p.Discovery,
		"provider":     cfg.MarketData.Provider,
		"float_policy": a.floats.Policy(),
		"workers":      cfg.Scan.Workers,
	}).Info("Scanner initialized")

	return a, nil
}

// newUpstreamClient builds an HTTP client with its own limiter and breaker.
// With Redis enabled the upstream's shared budget applies across processes.
func newUpstreamClient(cfg *config.Config, log *logger.Logger, rps float64, shared *redis.RateLimiter, budget redis.RateLimitConfig) *httputil.Client {
	c := httputil.New(cfg, log).
		WithLimiter(rps, 1).
		WithCircuitBreaker(budget.Key)

	if shared != nil {
		c.WithRateLimiter(shared, budget)
	}
	return c
}

// loadFloatOverrides merges Postgres float estimates when DATABASE_URL is set.
// A missing or broken database leaves the built-in table in place.
func (a *app) loadFloatOverrides(ctx context.Context) {
	db, err := database.New(ctx, a.cfg)
	if errors.Is(err, database.ErrNotConfigured) {
		return
	}
	if err != nil {
		a.log.WithError(err).Warn("Float overrides unavailable, using built-in table")
		return
	}
	a.db = db

	repo := floats.NewRepository(db.Pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		a.log.WithError(err).Warn("Failed to ensure float schema")
		return
	}
	if err := floats.LoadOverrides(ctx, a.floats, repo, a.log); err != nil {
		a.log.WithError(err).Warn("Failed to load float overrides")
	}
}

// criteria returns the profile criteria
func (a *app) criteria() contracts.FilterCriteria {
	return a.profile.Criteria
}

// newPipeline builds a pipeline for criteria over the shared collaborators
func (a *app) newPipeline(criteria contracts.FilterCriteria) (*screener.Pipeline, error) {
	return screener.New(
		screener.Config{
			Criteria:     criteria,
			Workers:      a.cfg.Scan.Workers,
			FetchTimeout: a.cfg.Scan.FetchTimeout,
		},
		screener.Collaborators{
			Discovery: a.discovery,
			Market:    a.market,
			Catalysts: a.catalysts,
			Floats:    a.floats,
			Cache:     a.cache,
			Metrics:   a.metrics,
		},
		a.log.Component("pipeline"),
	)
}

// Close releases connections
func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.WithError(err).Warn("Failed to close redis")
		}
	}
}
