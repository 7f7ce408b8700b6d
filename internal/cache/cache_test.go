package cache

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StockDash/internal/collector"
	"StockDash/internal/metrics"
	"StockDash/internal/model"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type countingSource struct {
	calls   atomic.Int64
	results []collector.FetchResult // returned in order, last one repeats
	release chan struct{}
}

func (s *countingSource) Fetch(_ context.Context, _ string, _ model.DateRange) collector.FetchResult {
	n := int(s.calls.Add(1))
	if s.release != nil {
		<-s.release
	}
	if n > len(s.results) {
		n = len(s.results)
	}
	return s.results[n-1]
}

func dataResult() collector.FetchResult {
	bars := []model.OHLCV{{Time: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 100}}
	return collector.FetchResult{Outcome: collector.OutcomeData, Series: model.FromBars("AAPL", bars)}
}

var rng2024 = model.DateRange{
	Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC),
}

func newTestCache(src collector.Source, clock *fakeClock, opts ...Option) *SeriesCache {
	return New(src, append([]Option{WithClock(clock.Now)}, opts...)...)
}

func TestGetOrFetch_TTL(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)}
	src := &countingSource{results: []collector.FetchResult{dataResult()}}
	c := newTestCache(src, clock)
	ctx := context.Background()

	first := c.GetOrFetch(ctx, "AAPL", rng2024, time.Hour)
	clock.Advance(59 * time.Minute)
	second := c.GetOrFetch(ctx, "AAPL", rng2024, time.Hour)

	assert.EqualValues(t, 1, src.calls.Load())
	assert.Equal(t, first.Outcome, second.Outcome)
	assert.Equal(t, first.Series, second.Series)

	clock.Advance(2 * time.Minute)
	c.GetOrFetch(ctx, "AAPL", rng2024, time.Hour)
	assert.EqualValues(t, 2, src.calls.Load())
}

func TestGetOrFetch_CountsHitsAndMisses(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)}
	c := newTestCache(&countingSource{results: []collector.FetchResult{dataResult()}}, clock)
	hits, misses := testutil.ToFloat64(metrics.CacheHits), testutil.ToFloat64(metrics.CacheMisses)

	c.GetOrFetch(context.Background(), "METRICS", rng2024, time.Hour)
	c.GetOrFetch(context.Background(), "METRICS", rng2024, time.Hour)

	assert.Equal(t, misses+1, testutil.ToFloat64(metrics.CacheMisses))
	assert.Equal(t, hits+1, testutil.ToFloat64(metrics.CacheHits))
}

func TestGetOrFetch_DefaultTTL(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)}
	src := &countingSource{results: []collector.FetchResult{dataResult()}}
	c := newTestCache(src, clock)

	c.GetOrFetch(context.Background(), "AAPL", rng2024, 0)
	clock.Advance(DefaultTTL - time.Second)
	c.GetOrFetch(context.Background(), "AAPL", rng2024, 0)
	assert.EqualValues(t, 1, src.calls.Load())
}

func TestKey_NoAliasing(t *testing.T) {
	loc := time.UTC
	a := model.NewDateRange(time.Date(2024, 1, 1, 0, 0, 0, 0, loc), time.Date(2024, 2, 1, 0, 0, 0, 0, loc), loc)
	sameDayLater := model.NewDateRange(time.Date(2024, 1, 1, 15, 4, 5, 0, loc), time.Date(2024, 2, 1, 23, 59, 0, 0, loc), loc)
	otherStart := model.NewDateRange(time.Date(2024, 1, 2, 0, 0, 0, 0, loc), time.Date(2024, 2, 1, 0, 0, 0, 0, loc), loc)
	otherEnd := model.NewDateRange(time.Date(2024, 1, 1, 0, 0, 0, 0, loc), time.Date(2024, 2, 2, 0, 0, 0, 0, loc), loc)
	// "2024-1-11" vs "2024-11-1" style collisions cannot occur with zero-padded dates.
	jan11 := model.NewDateRange(time.Date(2024, 1, 11, 0, 0, 0, 0, loc), time.Date(2024, 12, 1, 0, 0, 0, 0, loc), loc)
	nov1 := model.NewDateRange(time.Date(2024, 11, 1, 0, 0, 0, 0, loc), time.Date(2024, 12, 1, 0, 0, 0, 0, loc), loc)

	assert.Equal(t, Key("AAPL", a), Key("AAPL", sameDayLater))
	assert.NotEqual(t, Key("AAPL", a), Key("AAPL", otherStart))
	assert.NotEqual(t, Key("AAPL", a), Key("AAPL", otherEnd))
	assert.NotEqual(t, Key("AAPL", a), Key("MSFT", a))
	assert.NotEqual(t, Key("AAPL", jan11), Key("AAPL", nov1))
	assert.Equal(t, "AAPL|2024-01-01:2024-02-01", Key("AAPL", a))
}

func TestGetOrFetch_DistinctRangesFetchSeparately(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)}
	src := &countingSource{results: []collector.FetchResult{dataResult()}}
	c := newTestCache(src, clock)
	ctx := context.Background()

	other := rng2024
	other.End = other.End.AddDate(0, 0, -1)
	c.GetOrFetch(ctx, "AAPL", rng2024, time.Hour)
	c.GetOrFetch(ctx, "AAPL", other, time.Hour)
	assert.EqualValues(t, 2, src.calls.Load())

	sameDay := model.DateRange{Start: rng2024.Start.Add(9 * time.Hour), End: rng2024.End.Add(16 * time.Hour)}
	c.GetOrFetch(ctx, "AAPL", sameDay, time.Hour)
	assert.EqualValues(t, 2, src.calls.Load())
}

func TestGetOrFetch_FailureNotCached(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)}
	src := &countingSource{results: []collector.FetchResult{
		{Outcome: collector.OutcomeFailed, Message: "Error loading data: timeout"},
		dataResult(),
	}}
	c := newTestCache(src, clock)
	ctx := context.Background()

	res := c.GetOrFetch(ctx, "AAPL", rng2024, time.Hour)
	assert.Equal(t, collector.OutcomeFailed, res.Outcome)

	res = c.GetOrFetch(ctx, "AAPL", rng2024, time.Hour)
	assert.Equal(t, collector.OutcomeData, res.Outcome)
	assert.EqualValues(t, 2, src.calls.Load())
}

func TestGetOrFetch_EmptyCachedShortTerm(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)}
	src := &countingSource{results: []collector.FetchResult{{Outcome: collector.OutcomeEmpty, Message: "no data"}}}
	c := newTestCache(src, clock, WithEmptyTTL(5*time.Minute))
	ctx := context.Background()

	c.GetOrFetch(ctx, "AAPL", rng2024, time.Hour)
	clock.Advance(4 * time.Minute)
	res := c.GetOrFetch(ctx, "AAPL", rng2024, time.Hour)
	assert.Equal(t, collector.OutcomeEmpty, res.Outcome)
	assert.EqualValues(t, 1, src.calls.Load())

	clock.Advance(2 * time.Minute)
	c.GetOrFetch(ctx, "AAPL", rng2024, time.Hour)
	assert.EqualValues(t, 2, src.calls.Load())
}

func TestGetOrFetch_ConcurrentSingleFetch(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)}
	src := &countingSource{results: []collector.FetchResult{dataResult()}, release: make(chan struct{})}
	c := newTestCache(src, clock)

	var wg sync.WaitGroup
	results := make([]collector.FetchResult, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.GetOrFetch(context.Background(), "AAPL", rng2024, time.Hour)
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(src.release)
	wg.Wait()

	assert.EqualValues(t, 1, src.calls.Load())
	for _, r := range results {
		assert.Equal(t, collector.OutcomeData, r.Outcome)
		assert.Equal(t, 1, r.Series.Len())
	}
}

func TestGetOrFetch_ReturnsPrivateCopy(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)}
	c := newTestCache(&countingSource{results: []collector.FetchResult{dataResult()}}, clock)
	ctx := context.Background()

	first := c.GetOrFetch(ctx, "AAPL", rng2024, time.Hour)
	first.Series.Columns[0].Values[0] = -1

	second := c.GetOrFetch(ctx, "AAPL", rng2024, time.Hour)
	assert.Equal(t, 1.0, second.Series.Columns[0].Values[0])
}

func TestSweep(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)}
	store := NewMemoryStore()
	c := newTestCache(&countingSource{results: []collector.FetchResult{dataResult()}}, clock, WithStore(store))
	ctx := context.Background()

	c.GetOrFetch(ctx, "AAPL", rng2024, time.Hour)
	n, err := c.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	clock.Advance(2 * time.Hour)
	n, err = c.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, store.Len())
}

func TestCodec_RoundTripKeepsNaN(t *testing.T) {
	res := dataResult()
	res.Series.SetColumn("SMA_50", []float64{math.NaN()})
	in := Entry{Result: res, InsertedAt: time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC), TTL: time.Hour}

	data, err := encodeEntry(in)
	require.NoError(t, err)
	out, err := decodeEntry(data)
	require.NoError(t, err)

	assert.Equal(t, in.TTL, out.TTL)
	assert.True(t, in.InsertedAt.Equal(out.InsertedAt))
	assert.Equal(t, collector.OutcomeData, out.Result.Outcome)
	require.Len(t, out.Result.Series.Columns, 6)
	assert.Equal(t, "AAPL", out.Result.Series.Columns[0].Key.Symbol)
	sma, ok := out.Result.Series.Column("SMA_50")
	require.True(t, ok)
	assert.True(t, math.IsNaN(sma[0]))
	assert.Equal(t, "2024-01-02", out.Result.Series.Dates[0].Format(model.DateLayout))
}

func TestCodec_EmptyResult(t *testing.T) {
	data, err := encodeEntry(Entry{Result: collector.FetchResult{Outcome: collector.OutcomeEmpty, Message: "no data"}, TTL: time.Minute})
	require.NoError(t, err)
	out, err := decodeEntry(data)
	require.NoError(t, err)
	assert.Equal(t, collector.OutcomeEmpty, out.Result.Outcome)
	assert.Equal(t, "no data", out.Result.Message)
	assert.Nil(t, out.Result.Series)
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	ctx := context.Background()

	now := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Set(ctx, "AAPL|a", Entry{Result: dataResult(), InsertedAt: now, TTL: time.Hour}))
	require.NoError(t, store.Set(ctx, "AAPL|b", Entry{Result: dataResult(), InsertedAt: now, TTL: time.Minute}))

	e, ok, err := store.Get(ctx, "AAPL|a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, e.Result.Series.Len())

	_, ok, err = store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := store.DeleteExpired(ctx, now.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NoError(t, store.Close())

	// entries survive a reopen
	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()
	clock := &fakeClock{now: now.Add(30 * time.Minute)}
	src := &countingSource{results: []collector.FetchResult{dataResult()}}
	c := newTestCache(src, clock, WithStore(reopened))
	_ = c.GetOrFetch(ctx, "AAPL", rng2024, time.Hour) // different key -> fetch
	assert.EqualValues(t, 1, src.calls.Load())

	e, ok, err = reopened.Get(ctx, "AAPL|a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, e.Expired(clock.Now()))
}

// memRedis stands in for a Redis server, implementing only GET and SET.
type memRedis struct {
	redis.Cmdable

	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
	err  error
}

func newMemRedis() *memRedis {
	return &memRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memRedis) Get(_ context.Context, key string) *redis.StringCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return redis.NewStringResult("", m.err)
	}
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *memRedis) Set(_ context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return redis.NewStatusResult("", m.err)
	}
	b, ok := value.([]byte)
	if !ok {
		return redis.NewStatusResult("", errors.Errorf("unexpected value type %T", value))
	}
	m.data[key] = string(b)
	m.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func TestRedisStore_FromClient(t *testing.T) {
	ctx := context.Background()
	rdb := newMemRedis()
	closed := false
	store := NewRedisStoreFromClient(rdb, "", func() error { closed = true; return nil })

	e := Entry{Result: dataResult(), InsertedAt: time.Now(), TTL: 90 * time.Second}
	require.NoError(t, store.Set(ctx, "AAPL|x", e))
	assert.Contains(t, rdb.data, "stockdash:series:AAPL|x")
	assert.Equal(t, 90*time.Second, rdb.ttls["stockdash:series:AAPL|x"])

	got, ok, err := store.Get(ctx, "AAPL|x")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, collector.OutcomeData, got.Result.Outcome)
	assert.Equal(t, 1, got.Result.Series.Len())
	assert.Equal(t, e.TTL, got.TTL)

	_, ok, err = store.Get(ctx, "AAPL|missing")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := store.DeleteExpired(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, store.Close())
	assert.True(t, closed)
}

func TestRedisStore_CustomPrefixAndErrors(t *testing.T) {
	ctx := context.Background()
	rdb := newMemRedis()
	store := NewRedisStoreFromClient(rdb, "test:", nil)

	require.NoError(t, store.Set(ctx, "MSFT|y", Entry{Result: dataResult(), InsertedAt: time.Now(), TTL: time.Minute}))
	assert.Contains(t, rdb.data, "test:MSFT|y")
	require.NoError(t, store.Close())

	rdb.data["test:bad"] = "not an entry"
	_, ok, err := store.Get(ctx, "bad")
	assert.Error(t, err)
	assert.False(t, ok)

	rdb.err = errors.New("connection refused")
	_, _, err = store.Get(ctx, "MSFT|y")
	assert.ErrorContains(t, err, "redis get")
	err = store.Set(ctx, "MSFT|y", Entry{Result: dataResult(), TTL: time.Minute})
	assert.ErrorContains(t, err, "redis set")
}

func TestRedisStore_BacksCache(t *testing.T) {
	ctx := context.Background()
	store := NewRedisStoreFromClient(newMemRedis(), "", nil)
	clock := &fakeClock{now: time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)}

	src := &countingSource{results: []collector.FetchResult{dataResult()}}
	first := newTestCache(src, clock, WithStore(store))
	_ = first.GetOrFetch(ctx, "AAPL", rng2024, time.Hour)

	// a second process sharing the server sees the entry
	second := newTestCache(src, clock, WithStore(store))
	res := second.GetOrFetch(ctx, "AAPL", rng2024, time.Hour)
	assert.Equal(t, collector.OutcomeData, res.Outcome)
	assert.EqualValues(t, 1, src.calls.Load())
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("STOCKDASH_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("STOCKDASH_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	store, err := NewRedisStore(ctx, RedisConfig{Addr: addr, Prefix: "stockdash:test:"})
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Set(ctx, "AAPL|x", Entry{Result: dataResult(), InsertedAt: time.Now(), TTL: time.Minute}))
	e, ok, err := store.Get(ctx, "AAPL|x")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, collector.OutcomeData, e.Result.Outcome)

	_, ok, err = store.Get(ctx, "AAPL|missing")
	require.NoError(t, err)
	assert.False(t, ok)
}
