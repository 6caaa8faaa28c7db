package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/wonny/gapscan/pkg/config"
	"github.com/wonny/gapscan/pkg/logger"
	"github.com/wonny/gapscan/pkg/redis"
)

// DefaultUserAgent is sent when the caller does not set one. Finviz rejects
// the Go default agent.
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"

const defaultTimeout = 30 * time.Second

// ErrCircuitOpen is returned while the upstream breaker is open
var ErrCircuitOpen = errors.New("upstream circuit open")

// StatusError reports a non-2xx response
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d from %s", e.StatusCode, e.URL)
}

// Backoff is an exponential retry policy. Retries == 0 sends each request once.
type Backoff struct {
	Retries int
	Base    time.Duration
	Max     time.Duration
}

// delay returns the wait before retry n (0-based)
func (b Backoff) delay(n int) time.Duration {
	d := b.Base << n
	if d <= 0 || d > b.Max {
		return b.Max
	}
	return d
}

// Client is the upstream HTTP client: throttle, breaker, then retries
// ⭐ SSOT: every outbound HTTP request goes through this client
type Client struct {
	http    *http.Client
	log     *logger.Logger
	backoff Backoff

	local   *rate.Limiter
	shared  *redis.RateLimiter
	budget  redis.RateLimitConfig
	breaker *gobreaker.CircuitBreaker
}

// New creates a client whose timeout is SCAN_FETCH_TIMEOUT. cfg may be nil.
func New(cfg *config.Config, log *logger.Logger) *Client {
	timeout := defaultTimeout
	if cfg != nil && cfg.Scan.FetchTimeout > 0 {
		timeout = cfg.Scan.FetchTimeout
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		log:     log,
		backoff: Backoff{Retries: 2, Base: 500 * time.Millisecond, Max: 5 * time.Second},
	}
}

// WithRetry sets the retry count and first delay
func (c *Client) WithRetry(retries int, base time.Duration) *Client {
	c.backoff.Retries = retries
	c.backoff.Base = base
	return c
}

// DisableRetry sends each request exactly once
func (c *Client) DisableRetry() *Client {
	c.backoff.Retries = 0
	return c
}

// WithLimiter sets an in-process token bucket; rps <= 0 removes it
func (c *Client) WithLimiter(rps float64, burst int) *Client {
	if rps <= 0 {
		c.local = nil
		return c
	}
	c.local = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	return c
}

// WithRateLimiter adds a Redis budget shared by every gapscan process
func (c *Client) WithRateLimiter(limiter *redis.RateLimiter, budget redis.RateLimitConfig) *Client {
	c.shared = limiter
	c.budget = budget
	return c
}

// WithCircuitBreaker makes a dead provider fail fast. It trips after five
// consecutive failures, or when more than half of at least 20 requests failed.
func (c *Client) WithCircuitBreaker(name string) *Client {
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(n gobreaker.Counts) bool {
			return n.ConsecutiveFailures >= 5 ||
				(n.Requests >= 20 && n.TotalFailures*2 > n.Requests)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.WithFields(logger.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})
	return c
}

// BreakerState returns the breaker state name, or "none"
func (c *Client) BreakerState() string {
	if c.breaker == nil {
		return "none"
	}
	return c.breaker.State().String()
}

// Get issues a GET for url
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	return c.Do(ctx, req)
}

// GetJSON decodes a 200 response into dest
func (c *Client) GetJSON(ctx context.Context, req *http.Request, dest interface{}) error {
	body, err := c.GetBody(ctx, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// GetBody returns the body of a 200 response; any other status is a *StatusError
func (c *Client) GetBody(ctx context.Context, req *http.Request) ([]byte, error) {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: req.URL.Redacted()}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}

// Do sends req through the throttle, breaker and retry loop. A 5xx counts
// against the breaker but is still returned to the caller as a response.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if req.Context() != ctx {
		req = req.WithContext(ctx)
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", DefaultUserAgent)
	}

	if c.breaker == nil {
		return c.send(req)
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.send(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return resp, &StatusError{StatusCode: resp.StatusCode, URL: req.URL.Redacted()}
		}
		return resp, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %s", ErrCircuitOpen, c.breaker.Name())
	}
	if resp, ok := out.(*http.Response); ok && resp != nil {
		return resp, nil
	}
	return nil, err
}

// throttle blocks until both the local and shared budgets admit a request
func (c *Client) throttle(ctx context.Context) error {
	if c.local != nil {
		if err := c.local.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait failed: %w", err)
		}
	}
	if c.shared != nil {
		if err := c.shared.Wait(ctx, c.budget); err != nil {
			return fmt.Errorf("rate limit wait failed: %w", err)
		}
	}
	return nil
}

func (c *Client) send(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	if err := c.throttle(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	log := c.log.WithFields(logger.Fields{"method": req.Method, "url": req.URL.Redacted()})

	var (
		resp *http.Response
		err  error
	)
	for attempt := 0; ; attempt++ {
		resp, err = c.http.Do(req)
		if err == nil && !retryable(resp.StatusCode) {
			break
		}
		if attempt >= c.backoff.Retries || ctx.Err() != nil {
			break
		}

		wait := c.backoff.delay(attempt)
		if resp != nil {
			if ra := retryAfter(resp); ra > 0 && ra <= c.backoff.Max {
				wait = ra
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
		log.WithFields(logger.Fields{"attempt": attempt + 1, "delay": wait}).Debug("Retrying HTTP request")

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	if err != nil {
		log.WithError(err).WithField("duration", time.Since(start)).Debug("HTTP request failed")
		return nil, err
	}
	log.WithFields(logger.Fields{
		"status_code": resp.StatusCode,
		"duration":    time.Since(start),
	}).Debug("HTTP request completed")
	return resp, nil
}

// retryable reports whether a status is worth another attempt
func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

// retryAfter parses a Retry-After header given in seconds
func retryAfter(resp *http.Response) time.Duration {
	secs, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
