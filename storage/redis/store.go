// Package redis implements storage.Store on Redis.
//
// Entries are namespaced under a key prefix and use Redis key expiry for
// positive TTLs, so the server reclaims stale entries even when no sweeper runs.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gautam1sharma/sopcompliance/storage"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultPrefix namespaces cache keys inside the Redis keyspace.
	DefaultPrefix = "sopc:"

	scanBatch = 100
)

// Option configures a Store.
type Option func(*Store) error

// WithPrefix sets the key namespace.
func WithPrefix(prefix string) Option {
	return func(s *Store) error {
		s.prefix = prefix
		return nil
	}
}

// WithLogger sets the logger. If nil, uses the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) error {
		if logger != nil {
			s.logger = logger
		}
		return nil
	}
}

// Store implements storage.Store using a go-redis client.
type Store struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

var _ storage.Store = (*Store)(nil)

// NewStore connects to Redis. url is either a redis:// URL or a host:port address.
// The connection is verified with PING.
func NewStore(ctx context.Context, url string, opts ...Option) (storage.Store, error) {
	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		redisOpts = &redis.Options{Addr: url}
	}
	client := redis.NewClient(redisOpts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", redisOpts.Addr, err)
	}
	return NewStoreWithClient(client, opts...)
}

// NewStoreWithClient wraps an existing client. Closing the store closes the client.
func NewStoreWithClient(client *redis.Client, opts ...Option) (storage.Store, error) {
	s := &Store{
		client: client,
		prefix: DefaultPrefix,
		logger: slog.Default().With("component", "redis-store"),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) key(key string) string {
	return s.prefix + key
}

// Get returns the value stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		return nil, mapError(err)
	}
	return value, nil
}

// Set stores value under key. A positive ttl becomes the Redis key expiry.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return mapError(s.client.Set(ctx, s.key(key), value, ttl).Err())
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	return mapError(s.client.Del(ctx, s.key(key)).Err())
}

// Scan walks keys matching prefix with SCAN, which never blocks the server.
// Keys deleted between SCAN and GET are skipped.
func (s *Store) Scan(ctx context.Context, prefix string, fn func(key string, value []byte) error) error {
	iter := s.client.Scan(ctx, 0, escapeGlob(s.key(prefix))+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		full := iter.Val()
		value, err := s.client.Get(ctx, full).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			s.logger.Debug("skipping unreadable entry", "key", full, "err", err)
			continue
		}
		if err := fn(strings.TrimPrefix(full, s.prefix), value); err != nil {
			return err
		}
	}
	return mapError(iter.Err())
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.Nil):
		return storage.ErrNotFound
	case errors.Is(err, redis.ErrClosed):
		return fmt.Errorf("%w: %w", storage.ErrStorageClosed, err)
	default:
		return err
	}
}

// escapeGlob escapes the characters SCAN MATCH treats as pattern syntax.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
