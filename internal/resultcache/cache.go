package resultcache

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/wonny/gapscan/internal/contracts"
	"github.com/wonny/gapscan/internal/metrics"
	"github.com/wonny/gapscan/pkg/logger"
	"github.com/wonny/gapscan/pkg/redis"
)

// Kind names a family of cached computations
type Kind string

// Cached computation kinds
const (
	KindDiscover Kind = "discover"
	KindQuote    Kind = "quote"
	KindHistory  Kind = "history"
	KindFloat    Kind = "float"
	KindCatalyst Kind = "catalyst"
)

// defaultL2TTL bounds how stale a shared result may be per kind
var defaultL2TTL = map[Kind]time.Duration{
	KindDiscover: redis.TTLMedium,
	KindQuote:    redis.TTLShort,
	KindHistory:  redis.TTLLong,
	KindFloat:    redis.TTLDaily,
	KindCatalyst: redis.TTLMedium,
}

// Volatile kinds change intraday; watch mode resets them between scans
var Volatile = []Kind{KindDiscover, KindQuote, KindHistory, KindCatalyst}

// Key identifies one computation. Params carries every argument other than
// the ticker that changes the result (e.g. the history period).
type Key struct {
	Kind   Kind
	Ticker contracts.Ticker
	Params string
}

// String renders "kind:TICKER:params"
func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%s", k.Kind, k.Ticker, k.Params)
}

// Store is the cross-process tier; *redis.Cache implements it. Values
// round-trip through JSON, so T must be JSON-encodable.
type Store interface {
	Enabled() bool
	Get(ctx context.Context, k string, dest interface{}) (bool, error)
	Set(ctx context.Context, k string, value interface{}, ttl time.Duration) error
	Flush(ctx context.Context, match string) (int, error)
}

var _ Store = (*redis.Cache)(nil)

// Options configures a Cache
type Options struct {
	// ComputeTimeout bounds one shared computation; 0 means the caller's
	// compute func is responsible for its own deadline
	ComputeTimeout time.Duration

	// TTL per kind; missing or 0 means entries never expire
	TTL map[Kind]time.Duration

	// L2 is an optional cross-process cache; its errors never fail a call
	L2 Store

	// L2TTL overrides the per-kind L2 expiry
	L2TTL map[Kind]time.Duration

	Metrics *metrics.Registry
	Logger  *logger.Logger
}

// Stats is a point-in-time view of cache usage
type Stats struct {
	Entries  int   `json:"entries"`
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
	Computes int64 `json:"computes"`
	L2Hits   int64 `json:"l2_hits"`
}

type entry struct {
	value    interface{}
	storedAt time.Time
}

// Cache memoizes per-symbol fetches for the lifetime of the process.
// Concurrent callers of the same key share one computation; failures are
// never stored.
// ⭐ SSOT: the only memo of upstream results
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	group   singleflight.Group
	opts    Options
	log     *logger.Logger

	hits     atomic.Int64
	misses   atomic.Int64
	computes atomic.Int64
	l2Hits   atomic.Int64
}

// New creates an empty cache
func New(opts Options) *Cache {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	l2TTL := make(map[Kind]time.Duration, len(defaultL2TTL))
	for k, v := range defaultL2TTL {
		l2TTL[k] = v
	}
	for k, v := range opts.L2TTL {
		if v > 0 {
			l2TTL[k] = v
		}
	}
	opts.L2TTL = l2TTL
	return &Cache{
		entries: make(map[string]entry),
		opts:    opts,
		log:     log,
	}
}

// Get returns the cached value for key, computing it at most once across
// concurrent callers. A caller whose ctx ends stops waiting with ctx.Err()
// while the shared computation continues for the others.
func Get[T any](ctx context.Context, c *Cache, key Key, compute func(context.Context) (T, error)) (T, error) {
	var zero T
	k := key.String()

	if v, ok := c.lookup(k, key.Kind); ok {
		c.hits.Add(1)
		c.opts.Metrics.RecordCacheHit(string(key.Kind))
		return cast[T](k, v)
	}

	ch := c.group.DoChan(k, func() (v interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				c.log.WithFields(logger.Fields{
					"key":   k,
					"panic": r,
					"stack": string(debug.Stack()),
				}).Error("Cached computation panicked")
				err = fmt.Errorf("computation %s panicked: %v", k, r)
			}
		}()

		// Another flight may have stored it between our lookup and now
		if v, ok := c.lookup(k, key.Kind); ok {
			return v, nil
		}

		computeCtx := context.WithoutCancel(ctx)
		if c.opts.ComputeTimeout > 0 {
			var cancel context.CancelFunc
			computeCtx, cancel = context.WithTimeout(computeCtx, c.opts.ComputeTimeout)
			defer cancel()
		}

		l2 := c.l2()
		if l2 != nil {
			var cached T
			found, err := l2.Get(computeCtx, k, &cached)
			if err != nil {
				c.log.WithError(err).WithField("key", k).Debug("L2 cache get failed")
			}
			if found {
				c.l2Hits.Add(1)
				c.store(k, cached)
				return cached, nil
			}
		}

		c.computes.Add(1)
		result, err := compute(computeCtx)
		if err != nil {
			return nil, err
		}

		c.store(k, result)
		if l2 != nil {
			if err := l2.Set(computeCtx, k, result, c.opts.L2TTL[key.Kind]); err != nil {
				c.log.WithError(err).WithField("key", k).Debug("L2 cache set failed")
			}
		}
		return result, nil
	})

	c.misses.Add(1)
	c.opts.Metrics.RecordCacheMiss(string(key.Kind))

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return cast[T](k, res.Val)
	}
}

// l2 returns the shared tier, or nil when none is usable
func (c *Cache) l2() Store {
	if c.opts.L2 == nil || !c.opts.L2.Enabled() {
		return nil
	}
	return c.opts.L2
}

func cast[T any](k string, v interface{}) (T, error) {
	typed, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("cache entry %s holds %T, want %T", k, v, zero)
	}
	return typed, nil
}

func (c *Cache) lookup(k string, kind Kind) (interface{}, bool) {
	c.mu.RLock()
	e, ok := c.entries[k]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}

	if ttl := c.opts.TTL[kind]; ttl > 0 && time.Since(e.storedAt) > ttl {
		c.mu.Lock()
		if cur, still := c.entries[k]; still && cur.storedAt.Equal(e.storedAt) {
			delete(c.entries, k)
		}
		c.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

func (c *Cache) store(k string, v interface{}) {
	c.mu.Lock()
	c.entries[k] = entry{value: v, storedAt: time.Now()}
	c.mu.Unlock()
}

// Contains reports whether key has a stored result
func (c *Cache) Contains(key Key) bool {
	_, ok := c.lookup(key.String(), key.Kind)
	return ok
}

// Stats returns current counters
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	n := len(c.entries)
	c.mu.RUnlock()

	return Stats{
		Entries:  n,
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
		Computes: c.computes.Load(),
		L2Hits:   c.l2Hits.Load(),
	}
}

// Reset drops every stored result. In-flight computations still complete
// and store their result.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
}

// ResetKinds drops stored results of the given kinds only
func (c *Cache) ResetKinds(kinds ...Kind) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k := range c.entries {
		for _, kind := range kinds {
			if strings.HasPrefix(k, string(kind)+":") {
				delete(c.entries, k)
				removed++
				break
			}
		}
	}
	return removed
}

// Evict drops every result of kind for ticker, whatever its params, from
// memory and from L2. Used when a stored input such as a float override
// changes outside the scan.
func (c *Cache) Evict(ctx context.Context, kind Kind, ticker contracts.Ticker) (int, error) {
	prefix := Key{Kind: kind, Ticker: ticker}.String()

	c.mu.Lock()
	removed := 0
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
			removed++
		}
	}
	c.mu.Unlock()

	l2 := c.l2()
	if l2 == nil {
		return removed, nil
	}
	n, err := l2.Flush(ctx, prefix)
	return removed + n, err
}

// Invalidate drops results of the given kinds from memory and from L2.
// No kinds means everything. L2 failures are returned after the memory
// entries are gone.
func (c *Cache) Invalidate(ctx context.Context, kinds ...Kind) (int, error) {
	if len(kinds) == 0 {
		c.mu.Lock()
		removed := len(c.entries)
		c.entries = make(map[string]entry)
		c.mu.Unlock()

		if l2 := c.l2(); l2 != nil {
			_, err := l2.Flush(ctx, "")
			return removed, err
		}
		return removed, nil
	}

	removed := c.ResetKinds(kinds...)
	l2 := c.l2()
	if l2 == nil {
		return removed, nil
	}
	for _, kind := range kinds {
		if _, err := l2.Flush(ctx, string(kind)+":"); err != nil {
			return removed, err
		}
	}
	return removed, nil
}
