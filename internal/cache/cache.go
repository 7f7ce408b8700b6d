// Package cache memoizes fetch results by (ticker, start, end) for a bounded
// time.
//
// Successful results live for the caller's ttl. Successful-but-empty results
// live for at most EmptyTTL so a late-arriving trading day shows up soon.
// Failed fetches are never stored: a provider outage must not pin an empty
// chart for the rest of the ttl.
package cache

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"StockDash/internal/collector"
	"StockDash/internal/logger"
	"StockDash/internal/metrics"
	"StockDash/internal/model"
)

const (
	// DefaultTTL is used when GetOrFetch is called with ttl <= 0.
	DefaultTTL = time.Hour

	// DefaultEmptyTTL caps how long a no-data result is kept.
	DefaultEmptyTTL = 5 * time.Minute
)

// SeriesCache wraps a Source with a ttl-bounded Store. Concurrent lookups of
// one key share a single fetch.
type SeriesCache struct {
	source   collector.Source
	store    Store
	group    singleflight.Group
	emptyTTL time.Duration
	now      func() time.Time
	log      *logger.Logger
}

// Option configures a SeriesCache.
type Option func(*SeriesCache)

// WithStore sets the backing store. The default is a MemoryStore.
func WithStore(s Store) Option { return func(c *SeriesCache) { c.store = s } }

// WithEmptyTTL caps the lifetime of no-data results.
func WithEmptyTTL(d time.Duration) Option { return func(c *SeriesCache) { c.emptyTTL = d } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(c *SeriesCache) { c.now = now } }

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option { return func(c *SeriesCache) { c.log = l } }

// New creates a cache in front of source.
func New(source collector.Source, opts ...Option) *SeriesCache {
	c := &SeriesCache{
		source:   source,
		emptyTTL: DefaultEmptyTTL,
		now:      time.Now,
		log:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.store == nil {
		c.store = NewMemoryStore()
	}
	return c
}

// Key builds the cache key. Dates always go through DateRange.Key so a
// date and a timestamp on the same day share a key and different days never do.
func Key(ticker string, rng model.DateRange) string {
	return ticker + "|" + rng.Key()
}

// GetOrFetch returns the cached result for (ticker, rng) if it is younger
// than ttl, otherwise fetches from the source and stores the result
// according to its outcome. The returned series is the caller's own copy.
func (c *SeriesCache) GetOrFetch(ctx context.Context, ticker string, rng model.DateRange, ttl time.Duration) collector.FetchResult {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	key := Key(ticker, rng)
	log := c.log.Ctx(ctx).With(logger.NewField("key", key))

	if res, ok := c.lookup(ctx, log, key, ttl); ok {
		return res
	}

	v, _, shared := c.group.Do(key, func() (any, error) {
		if res, ok := c.lookup(ctx, log, key, ttl); ok {
			return res, nil
		}
		metrics.CacheMisses.Inc()
		res := c.source.Fetch(ctx, ticker, rng)
		c.put(ctx, log, key, res, ttl)
		return res, nil
	})
	if shared {
		log.Debug("joined in-flight fetch")
	}
	res := v.(collector.FetchResult)
	res.Series = res.Series.Clone()
	return res
}

func (c *SeriesCache) lookup(ctx context.Context, log *logger.Logger, key string, ttl time.Duration) (collector.FetchResult, bool) {
	e, ok, err := c.store.Get(ctx, key)
	if err != nil {
		log.Warn("cache read failed, treating as miss", logger.NewField("error", err.Error()))
		return collector.FetchResult{}, false
	}
	if !ok {
		return collector.FetchResult{}, false
	}
	now := c.now()
	if e.Expired(now) || now.Sub(e.InsertedAt) > ttl {
		return collector.FetchResult{}, false
	}
	metrics.CacheHits.Inc()
	log.Debug("cache hit", logger.NewField("outcome", e.Result.Outcome.String()))
	return e.Result, true
}

func (c *SeriesCache) put(ctx context.Context, log *logger.Logger, key string, res collector.FetchResult, ttl time.Duration) {
	switch res.Outcome {
	case collector.OutcomeData:
	case collector.OutcomeEmpty:
		ttl = min(ttl, c.emptyTTL)
	default:
		log.Info("not caching failed fetch", logger.NewField("message", res.Message))
		return
	}
	e := Entry{Result: res, InsertedAt: c.now(), TTL: ttl}
	if err := c.store.Set(ctx, key, e); err != nil {
		log.Warn("cache write failed", logger.NewField("error", err.Error()))
	}
}

// Sweep removes expired entries from the store and returns how many went.
func (c *SeriesCache) Sweep(ctx context.Context) (int, error) {
	n, err := c.store.DeleteExpired(ctx, c.now())
	if err != nil {
		return 0, err
	}
	metrics.CacheEvictions.Add(float64(n))
	return n, nil
}

// Close releases the backing store.
func (c *SeriesCache) Close() error {
	return c.store.Close()
}
