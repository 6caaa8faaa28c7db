package redis

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// slidingWindow admits a request when fewer than limit requests were seen in
// the last window. It returns {allowed, remaining, retry_after_ms}.
var slidingWindow = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_ms = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local member = ARGV[4]

	redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window_ms)
	local count = redis.call('ZCARD', key)

	if count < limit then
		redis.call('ZADD', key, now, member)
		redis.call('PEXPIRE', key, window_ms)
		return {1, limit - count - 1, 0}
	end

	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	local retry = window_ms
	if oldest[2] then
		retry = tonumber(oldest[2]) + window_ms - now
	end
	return {0, 0, retry}
`)

// Wait polling bounds
const (
	minRetryDelay = 50 * time.Millisecond
	maxRetryDelay = 2 * time.Second
)

// RateLimitConfig defines one upstream's shared budget
type RateLimitConfig struct {
	Key    string        // upstream name, e.g. "finviz"
	Limit  int           // requests allowed per window
	Window time.Duration // window length
}

// Decision is the outcome of one admission check
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Shared budgets per upstream
var (
	// Finviz screener: one page per 2 seconds
	FinvizRateLimit = RateLimitConfig{Key: "finviz", Limit: 1, Window: 2 * time.Second}

	// Yahoo chart API: conservative
	YahooRateLimit = RateLimitConfig{Key: "yahoo", Limit: 5, Window: time.Second}

	// newsapi.org developer plan: 100 requests per day
	NewsAPIRateLimit = RateLimitConfig{Key: "newsapi", Limit: 100, Window: 24 * time.Hour}
)

// RateLimiter is a sliding-window limiter shared by every process using the
// same Redis, so parallel scanners stay inside one upstream budget.
// ⭐ SSOT: cross-process rate limiting lives here only
type RateLimiter struct {
	client *Client
	prefix string
	seq    atomic.Uint64
}

// NewRateLimiter creates a limiter; keys are stored as "<prefix>:<cfg.Key>"
func NewRateLimiter(client *Client, prefix string) *RateLimiter {
	return &RateLimiter{client: client, prefix: prefix}
}

// Allow records one request if the budget allows it
func (r *RateLimiter) Allow(ctx context.Context, cfg RateLimitConfig) (Decision, error) {
	if !r.client.Enabled() {
		return Decision{Allowed: true, Remaining: cfg.Limit}, nil
	}

	now := time.Now().UnixMilli()
	// Members must be unique so two requests in the same millisecond both count
	member := fmt.Sprintf("%d-%d", now, r.seq.Add(1))

	res, err := slidingWindow.Run(ctx, r.client.rdb, []string{r.prefix + ":" + cfg.Key},
		now, cfg.Window.Milliseconds(), cfg.Limit, member,
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit %s: %w", cfg.Key, err)
	}

	return Decision{
		Allowed:    res[0] == 1,
		Remaining:  int(res[1]),
		RetryAfter: time.Duration(res[2]) * time.Millisecond,
	}, nil
}

// Wait blocks until a request is admitted or ctx ends
func (r *RateLimiter) Wait(ctx context.Context, cfg RateLimitConfig) error {
	for {
		d, err := r.Allow(ctx, cfg)
		if err != nil {
			return err
		}
		if d.Allowed {
			return nil
		}

		delay := d.RetryAfter
		if delay < minRetryDelay {
			delay = minRetryDelay
		}
		if delay > maxRetryDelay {
			delay = maxRetryDelay
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
