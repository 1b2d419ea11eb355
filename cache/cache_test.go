package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gautam1sharma/sopcompliance/storage"
	"github.com/gautam1sharma/sopcompliance/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// failingStore fails every operation with err.
type failingStore struct {
	err   error
	calls atomic.Int32
}

func (s *failingStore) Get(context.Context, string) ([]byte, error) {
	s.calls.Add(1)
	return nil, s.err
}

func (s *failingStore) Set(context.Context, string, []byte, time.Duration) error {
	s.calls.Add(1)
	return s.err
}

func (s *failingStore) Delete(context.Context, string) error {
	s.calls.Add(1)
	return s.err
}

func (s *failingStore) Scan(context.Context, string, func(string, []byte) error) error {
	s.calls.Add(1)
	return s.err
}

func (s *failingStore) Close() error { return nil }

func newStore(t *testing.T) storage.Store {
	t.Helper()
	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newCache(t *testing.T, store storage.Store, clock *fakeClock) *Cache {
	t.Helper()
	opts := []Option{WithStore(store)}
	if clock != nil {
		opts = append(opts, WithClock(clock.Now))
	}
	c, err := New(opts...)
	require.NoError(t, err)
	return c
}

func TestNew_InvalidOptions(t *testing.T) {
	_, err := New(WithClock(nil))
	assert.Error(t, err)

	_, err = New(WithJanitorInterval(0))
	assert.Error(t, err)

	c, err := New(WithLogger(nil))
	require.NoError(t, err)
	assert.Nil(t, c.Store())
}

func TestCache_MemoryOnly(t *testing.T) {
	c := newCache(t, nil, nil)
	ctx := context.Background()

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)

	c.Set(ctx, "k", []byte("v"), time.Hour)
	payload, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), payload)

	c.Invalidate(ctx, "k")
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.FastHits)
	assert.Equal(t, int64(2), stats.Misses)
	assert.Equal(t, int64(1), stats.Writes)
}

func TestCache_ZeroTTLNeverReturned(t *testing.T) {
	store := newStore(t)
	c := newCache(t, store, nil)
	ctx := context.Background()

	t.Run("fresh key", func(t *testing.T) {
		c.Set(ctx, "zero", []byte("v"), 0)
		_, ok := c.Get(ctx, "zero")
		assert.False(t, ok)
	})

	t.Run("negative ttl", func(t *testing.T) {
		c.Set(ctx, "negative", []byte("v"), -time.Minute)
		_, ok := c.Get(ctx, "negative")
		assert.False(t, ok)
	})

	t.Run("replaces live entry", func(t *testing.T) {
		c.Set(ctx, "live", []byte("old"), time.Hour)
		c.Set(ctx, "live", []byte("new"), 0)
		_, ok := c.Get(ctx, "live")
		assert.False(t, ok)

		_, err := store.Get(ctx, "live")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("zero ttl entry found in durable tier", func(t *testing.T) {
		entry := storage.NewEntry("planted", []byte("v"), 0, time.Now())
		require.NoError(t, store.Set(ctx, "planted", storage.MarshalEntry(entry), 0))

		_, ok := c.Get(ctx, "planted")
		assert.False(t, ok)
		_, err := store.Get(ctx, "planted")
		assert.ErrorIs(t, err, storage.ErrNotFound, "expired entry is deleted on access")
	})
}

func TestCache_Expiry(t *testing.T) {
	clock := newFakeClock()
	store := newStore(t)
	c := newCache(t, store, clock)
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v"), time.Hour)

	clock.Advance(time.Hour)
	_, ok := c.Get(ctx, "k")
	assert.True(t, ok, "entry is fresh at exactly its ttl")

	clock.Advance(time.Second)
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok)

	_, err := store.Get(ctx, "k")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Equal(t, 0, c.Stats().FastEntries)
	assert.Equal(t, int64(1), c.Stats().Evictions)
}

func TestCache_ReadThrough(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	writer := newCache(t, store, nil)
	writer.Set(ctx, "embeddings:m:h", []byte("vec"), time.Hour)

	// a second process sharing the durable tier
	reader := newCache(t, store, nil)

	payload, ok := reader.Get(ctx, "embeddings:m:h")
	require.True(t, ok)
	assert.Equal(t, []byte("vec"), payload)
	assert.Equal(t, int64(1), reader.Stats().DurableHits)
	assert.Equal(t, 1, reader.Stats().FastEntries)

	payload, ok = reader.Get(ctx, "embeddings:m:h")
	require.True(t, ok)
	assert.Equal(t, []byte("vec"), payload)
	assert.Equal(t, int64(1), reader.Stats().FastHits)
	assert.Equal(t, int64(1), reader.Stats().DurableHits)
}

func TestCache_Corruption(t *testing.T) {
	store := newStore(t)
	c := newCache(t, store, nil)
	ctx := context.Background()

	t.Run("garbage bytes", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "bad", []byte("garbage"), time.Hour))

		_, ok := c.Get(ctx, "bad")
		assert.False(t, ok)

		_, err := store.Get(ctx, "bad")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("key mismatch", func(t *testing.T) {
		entry := storage.NewEntry("other", []byte("v"), time.Hour, time.Now())
		require.NoError(t, store.Set(ctx, "mismatch", storage.MarshalEntry(entry), time.Hour))

		_, ok := c.Get(ctx, "mismatch")
		assert.False(t, ok)
	})

	assert.Equal(t, int64(2), c.Stats().Corruptions)
}

func TestCache_WriteFailureIsAbsorbed(t *testing.T) {
	store := &failingStore{err: storage.ErrStorageClosed}
	c := newCache(t, store, nil)
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v"), time.Hour)

	payload, ok := c.Get(ctx, "k")
	require.True(t, ok, "fast tier still serves the value")
	assert.Equal(t, []byte("v"), payload)
	assert.Equal(t, int64(1), c.Stats().WriteFailures)

	_, ok = c.Get(ctx, "missing")
	assert.False(t, ok, "read failures are misses")
}

func TestCache_UnexpectedWriteErrorIsAbsorbed(t *testing.T) {
	store := &failingStore{err: errors.New("boom")}
	c := newCache(t, store, nil)

	assert.NotPanics(t, func() {
		c.Set(context.Background(), "k", []byte("v"), time.Hour)
	})
	assert.Equal(t, int64(1), c.Stats().WriteFailures)
}

func TestCache_Vectors(t *testing.T) {
	store := newStore(t)
	c := newCache(t, store, nil)
	ctx := context.Background()

	vectors := [][]float32{{0.6, 0.8}, {1, 0}}
	c.SetVectors(ctx, "doc", vectors, time.Hour)

	got, ok := c.GetVectors(ctx, "doc")
	require.True(t, ok)
	assert.Equal(t, vectors, got)

	c.Set(ctx, "doc", []byte{0xff}, time.Hour)
	_, ok = c.GetVectors(ctx, "doc")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "doc")
	assert.False(t, ok, "undecodable vectors are invalidated")
}

func TestCache_JSON(t *testing.T) {
	c := newCache(t, nil, nil)
	ctx := context.Background()

	type record struct {
		Name  string  `json:"name"`
		Score float64 `json:"score"`
	}

	c.SetJSON(ctx, "r", record{Name: "x", Score: 0.5}, time.Hour)

	var got record
	require.True(t, c.GetJSON(ctx, "r", &got))
	assert.Equal(t, record{Name: "x", Score: 0.5}, got)

	c.Set(ctx, "r", []byte("{not json"), time.Hour)
	assert.False(t, c.GetJSON(ctx, "r", &got))
	_, ok := c.Get(ctx, "r")
	assert.False(t, ok)

	c.SetJSON(ctx, "bad", make(chan int), time.Hour)
	assert.Equal(t, int64(1), c.Stats().WriteFailures)
}

func TestCache_GetOrCompute(t *testing.T) {
	c := newCache(t, nil, nil)
	ctx := context.Background()

	t.Run("concurrent misses compute once", func(t *testing.T) {
		var computed atomic.Int32
		release := make(chan struct{})
		fn := func(context.Context) ([]byte, error) {
			computed.Add(1)
			<-release
			return []byte("value"), nil
		}

		var wg sync.WaitGroup
		results := make([][]byte, 8)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				v, err := c.GetOrCompute(ctx, "shared", time.Hour, fn)
				assert.NoError(t, err)
				results[i] = v
			}(i)
		}
		time.Sleep(50 * time.Millisecond)
		close(release)
		wg.Wait()

		assert.Equal(t, int32(1), computed.Load())
		for _, v := range results {
			assert.Equal(t, []byte("value"), v)
		}
	})

	t.Run("errors are not cached", func(t *testing.T) {
		failure := errors.New("model down")
		_, err := c.GetOrCompute(ctx, "failing", time.Hour, func(context.Context) ([]byte, error) {
			return nil, failure
		})
		assert.ErrorIs(t, err, failure)

		v, err := c.GetOrCompute(ctx, "failing", time.Hour, func(context.Context) ([]byte, error) {
			return []byte("ok"), nil
		})
		require.NoError(t, err)
		assert.Equal(t, []byte("ok"), v)
	})
}

func TestCache_CleanupExpired(t *testing.T) {
	clock := newFakeClock()
	store := newStore(t)
	c := newCache(t, store, clock)
	ctx := context.Background()

	c.Set(ctx, "short", []byte("1"), time.Minute)
	c.Set(ctx, "long", []byte("2"), time.Hour)
	require.NoError(t, store.Set(ctx, "corrupt", []byte("junk"), 0))

	clock.Advance(2 * time.Minute)

	removed, err := c.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed, "expired and corrupted keys, each counted once")

	_, err = store.Get(ctx, "short")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = store.Get(ctx, "corrupt")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, ok := c.Get(ctx, "long")
	assert.True(t, ok)

	removed, err = c.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestCache_CleanupExpiredErrors(t *testing.T) {
	t.Run("cancelled context propagates", func(t *testing.T) {
		store := newStore(t)
		c := newCache(t, store, nil)
		c.Set(context.Background(), "k", []byte("v"), time.Hour)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := c.CleanupExpired(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("storage failure is absorbed", func(t *testing.T) {
		c := newCache(t, &failingStore{err: storage.ErrStorageClosed}, nil)
		_, err := c.CleanupExpired(context.Background())
		assert.NoError(t, err)
	})

	t.Run("unexpected failure propagates", func(t *testing.T) {
		boom := errors.New("boom")
		c := newCache(t, &failingStore{err: boom}, nil)
		_, err := c.CleanupExpired(context.Background())
		assert.ErrorIs(t, err, boom)
	})
}

func TestCache_Clear(t *testing.T) {
	store := newStore(t)
	c := newCache(t, store, nil)
	ctx := context.Background()

	c.Set(ctx, "a", []byte("1"), time.Hour)
	c.Set(ctx, "b", []byte("2"), time.Hour)

	require.NoError(t, c.Clear(ctx))

	assert.Equal(t, 0, c.Stats().FastEntries)
	stats, err := c.DurableStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Entries)
}

func TestCache_DurableStats(t *testing.T) {
	clock := newFakeClock()
	store := newStore(t)
	c := newCache(t, store, clock)
	ctx := context.Background()

	c.Set(ctx, "a", []byte("1"), time.Minute)
	c.Set(ctx, "b", []byte("2"), time.Hour)
	require.NoError(t, store.Set(ctx, "c", []byte("junk"), 0))
	clock.Advance(5 * time.Minute)

	stats, err := c.DurableStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Entries)
	assert.Equal(t, 1, stats.Expired)
	assert.Equal(t, 1, stats.Corrupt)
	assert.Greater(t, stats.Bytes, int64(0))

	memOnly := newCache(t, nil, nil)
	stats, err = memOnly.DurableStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, DurableStats{}, stats)
}

func TestStats_HitRate(t *testing.T) {
	assert.Equal(t, 0.0, Stats{}.HitRate())
	assert.Equal(t, 0.75, Stats{FastHits: 2, DurableHits: 1, Misses: 1}.HitRate())
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "catalog:iso27001", CatalogKey("iso27001"))
	assert.Equal(t, "embeddings:m:abc", EmbeddingKey("m", "abc"))
	assert.Equal(t, "doc_embeddings:m:abc", DocumentEmbeddingKey("m", "abc"))
	assert.Equal(t, "compliance:rerank:abc", ResultKey("rerank", "abc"))
}

func TestTTLClasses(t *testing.T) {
	assert.Equal(t, 7*24*time.Hour, TTLCatalog)
	assert.Equal(t, 24*time.Hour, TTLEmbeddings)
	assert.Equal(t, time.Hour, TTLResults)
}
