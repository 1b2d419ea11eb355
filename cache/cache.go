// Copyright 2025 The sopcompliance Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/gautam1sharma/sopcompliance/storage"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultJanitorInterval is how often go-cache reclaims expired fast-tier items.
	DefaultJanitorInterval = 10 * time.Minute
)

// ComputeFunc produces a payload on a cache miss.
type ComputeFunc func(ctx context.Context) ([]byte, error)

// Option configures a Cache.
type Option func(*Cache) error

// WithStore sets the durable tier. A nil store keeps the cache memory-only.
func WithStore(store storage.Store) Option {
	return func(c *Cache) error {
		c.store = store
		return nil
	}
}

// WithClock sets the time source used for entry creation and expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) error {
		if now == nil {
			return errors.New("cache: clock cannot be nil")
		}
		c.now = now
		return nil
	}
}

// WithJanitorInterval sets how often the fast tier drops expired items.
func WithJanitorInterval(interval time.Duration) Option {
	return func(c *Cache) error {
		if interval <= 0 {
			return errors.New("cache: janitor interval must be positive")
		}
		c.janitorInterval = interval
		return nil
	}
}

// WithLogger sets the logger. If nil, uses the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) error {
		if logger == nil {
			logger = slog.Default().With("component", "cache")
		}
		c.logger = logger
		return nil
	}
}

// Cache is a two-tier TTL cache keyed by content-derived strings.
// It is safe for concurrent use.
type Cache struct {
	fast            *gocache.Cache
	store           storage.Store
	now             func() time.Time
	janitorInterval time.Duration
	group           singleflight.Group
	logger          *slog.Logger

	fastHits      atomic.Int64
	durableHits   atomic.Int64
	misses        atomic.Int64
	writes        atomic.Int64
	writeFailures atomic.Int64
	evictions     atomic.Int64
	corruptions   atomic.Int64
}

// New creates a cache. Without WithStore the cache is memory-only.
func New(opts ...Option) (*Cache, error) {
	c := &Cache{
		now:             time.Now,
		janitorInterval: DefaultJanitorInterval,
		logger:          slog.Default().With("component", "cache"),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	// Entries carry their own TTL; items without one never expire in go-cache.
	c.fast = gocache.New(gocache.NoExpiration, c.janitorInterval)
	return c, nil
}

// Store returns the durable tier, or nil for a memory-only cache.
func (c *Cache) Store() storage.Store {
	return c.store
}

// Get returns the payload stored under key. Expired entries are deleted and
// reported as misses. Durable hits repopulate the fast tier.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	now := c.now()

	if item, ok := c.fast.Get(key); ok {
		entry := item.(*storage.Entry)
		if !entry.Expired(now) {
			c.fastHits.Add(1)
			return entry.Payload, true
		}
		c.fast.Delete(key)
		c.evictions.Add(1)
		c.deleteDurable(ctx, key)
		c.misses.Add(1)
		return nil, false
	}

	entry, ok := c.getDurable(ctx, key, now)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}

	c.fast.Set(key, entry, fastExpiration(entry, now))
	c.durableHits.Add(1)
	return entry.Payload, true
}

func (c *Cache) getDurable(ctx context.Context, key string, now time.Time) (*storage.Entry, bool) {
	if c.store == nil {
		return nil, false
	}

	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			c.logFailure("durable read failed", key, err)
		}
		return nil, false
	}

	entry, err := storage.UnmarshalEntry(data)
	if err == nil && entry.Key != key {
		err = storage.ErrSerializationFailed
	}
	if err != nil {
		c.logger.Warn("deleting corrupted cache entry", "key", key, "err", err)
		c.corruptions.Add(1)
		c.deleteDurable(ctx, key)
		return nil, false
	}

	if entry.Expired(now) {
		c.evictions.Add(1)
		c.deleteDurable(ctx, key)
		return nil, false
	}
	return entry, true
}

// Set stores payload under key in both tiers. It never fails: durable write
// errors are logged and counted. A ttl of zero or less removes any existing
// entry, since the new one would already be expired.
func (c *Cache) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) {
	c.writes.Add(1)
	if ttl <= 0 {
		c.Invalidate(ctx, key)
		return
	}

	now := c.now()
	entry := storage.NewEntry(key, payload, ttl, now)
	c.fast.Set(key, entry, ttl)

	if c.store == nil {
		return
	}
	if err := c.store.Set(ctx, key, storage.MarshalEntry(entry), ttl); err != nil {
		c.writeFailures.Add(1)
		c.logFailure("durable write failed", key, err)
	}
}

// Invalidate removes key from both tiers.
func (c *Cache) Invalidate(ctx context.Context, key string) {
	c.fast.Delete(key)
	c.deleteDurable(ctx, key)
}

func (c *Cache) deleteDurable(ctx context.Context, key string) {
	if c.store == nil {
		return
	}
	if err := c.store.Delete(ctx, key); err != nil {
		c.logFailure("durable delete failed", key, err)
	}
}

// GetVectors returns vectors stored with SetVectors.
// An undecodable payload is invalidated and reported as a miss.
func (c *Cache) GetVectors(ctx context.Context, key string) ([][]float32, bool) {
	payload, ok := c.Get(ctx, key)
	if !ok {
		return nil, false
	}
	vectors, err := storage.UnmarshalVectors(payload)
	if err != nil {
		c.logger.Warn("deleting undecodable vectors", "key", key, "err", err)
		c.corruptions.Add(1)
		c.Invalidate(ctx, key)
		return nil, false
	}
	return vectors, true
}

// SetVectors stores vectors under key.
func (c *Cache) SetVectors(ctx context.Context, key string, vectors [][]float32, ttl time.Duration) {
	c.Set(ctx, key, storage.MarshalVectors(vectors), ttl)
}

// GetJSON decodes the JSON payload under key into v.
// An undecodable payload is invalidated and reported as a miss.
func (c *Cache) GetJSON(ctx context.Context, key string, v any) bool {
	payload, ok := c.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(payload, v); err != nil {
		c.logger.Warn("deleting undecodable JSON", "key", key, "err", err)
		c.corruptions.Add(1)
		c.Invalidate(ctx, key)
		return false
	}
	return true
}

// SetJSON stores v as JSON under key. Values that cannot be encoded are
// logged and skipped.
func (c *Cache) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) {
	payload, err := json.Marshal(v)
	if err != nil {
		c.writeFailures.Add(1)
		c.logger.Error("failed to encode cache value", "key", key, "err", err)
		return
	}
	c.Set(ctx, key, payload, ttl)
}

// GetOrCompute returns the cached payload or computes, stores and returns it.
// Concurrent callers missing on the same key share one computation.
// Errors from fn are returned and nothing is cached.
func (c *Cache) GetOrCompute(ctx context.Context, key string, ttl time.Duration, fn ComputeFunc) ([]byte, error) {
	if payload, ok := c.Get(ctx, key); ok {
		return payload, nil
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		// another caller may have filled the key while we waited
		if payload, ok := c.Get(ctx, key); ok {
			return payload, nil
		}
		payload, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, payload, ttl)
		return payload, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// CleanupExpired removes expired and corrupted entries from both tiers and
// returns the number of distinct keys removed. Entries the durable store
// cannot read are skipped. Errors other than storage I/O (for example a
// cancelled context) stop the pass and are returned.
func (c *Cache) CleanupExpired(ctx context.Context) (int, error) {
	now := c.now()
	removed := make(map[string]struct{})

	for key, item := range c.fast.Items() {
		entry := item.Object.(*storage.Entry)
		if entry.Expired(now) {
			c.fast.Delete(key)
			removed[key] = struct{}{}
		}
	}

	if c.store != nil {
		var stale []string
		err := c.store.Scan(ctx, "", func(key string, value []byte) error {
			entry, err := storage.UnmarshalEntry(value)
			if err != nil {
				c.corruptions.Add(1)
				stale = append(stale, key)
				return nil
			}
			if entry.Expired(now) {
				stale = append(stale, key)
			}
			return nil
		})
		if err != nil && !absorbable(err) {
			return len(removed), err
		}
		if err != nil {
			c.logger.Warn("durable scan incomplete", "err", err)
		}

		for _, key := range stale {
			if err := c.store.Delete(ctx, key); err != nil {
				if !absorbable(err) {
					return len(removed), err
				}
				c.logger.Warn("failed to delete stale entry", "key", key, "err", err)
				continue
			}
			c.fast.Delete(key)
			removed[key] = struct{}{}
		}
	}

	c.evictions.Add(int64(len(removed)))
	if len(removed) > 0 {
		c.logger.Debug("removed expired cache entries", "count", len(removed))
	}
	return len(removed), nil
}

// Clear removes every entry from both tiers.
func (c *Cache) Clear(ctx context.Context) error {
	c.fast.Flush()
	if c.store == nil {
		return nil
	}
	var keys []string
	if err := c.store.Scan(ctx, "", func(key string, _ []byte) error {
		keys = append(keys, key)
		return nil
	}); err != nil {
		return err
	}
	for _, key := range keys {
		if err := c.store.Delete(ctx, key); err != nil {
			return err
		}
	}
	c.logger.Info("cache cleared", "durable_entries", len(keys))
	return nil
}

// logFailure logs storage errors at warn and anything unexpected at error.
func (c *Cache) logFailure(msg, key string, err error) {
	if absorbable(err) {
		c.logger.Warn(msg, "key", key, "err", err)
		return
	}
	c.logger.Error(msg, "key", key, "err", err)
}

// fastExpiration maps an entry's remaining lifetime onto go-cache's expiration.
func fastExpiration(entry *storage.Entry, now time.Time) time.Duration {
	if remaining := entry.Remaining(now); remaining > 0 {
		return remaining
	}
	return gocache.NoExpiration
}

// absorbable reports whether err is a storage-level failure the cache may
// swallow, as opposed to cancellation or a programming error.
func absorbable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var pathErr *fs.PathError
	var netErr net.Error
	switch {
	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, storage.ErrStorageClosed),
		errors.Is(err, storage.ErrSerializationFailed),
		errors.Is(err, storage.ErrTruncatedData),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.As(err, &pathErr),
		errors.As(err, &netErr):
		return true
	}
	return false
}
