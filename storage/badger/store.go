package badger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gautam1sharma/sopcompliance/storage"
)

// Store implements storage.Store on top of a Backend.
// Keys written with a positive TTL are reclaimed by badger itself.
type Store struct {
	backend     *Backend
	ownsBackend bool
	logger      *slog.Logger
}

var _ storage.Store = (*Store)(nil)

// NewStore opens (or creates) a badger database at path and returns a store
// that owns it.
func NewStore(path string) (storage.Store, error) {
	backend, err := OpenBackend(path, false)
	if err != nil {
		return nil, err
	}
	return newStore(backend, true), nil
}

// NewStoreWithBackend returns a store over an existing backend.
// Closing the store does not close the backend.
func NewStoreWithBackend(backend *Backend) storage.Store {
	return newStore(backend, false)
}

func newStore(backend *Backend, owns bool) *Store {
	return &Store{
		backend:     backend,
		ownsBackend: owns,
		logger:      slog.Default().With("component", "badger-store"),
	}
}

// Backend returns the underlying backend.
func (s *Store) Backend() *Backend {
	return s.backend
}

// Get returns the value stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if s.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}
	var value []byte
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeCacheKey(key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.ErrNotFound
			}
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	}, false)
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Set stores value under key using badger's native TTL when ttl is positive.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s.backend.IsClosed() {
		return storage.ErrStorageClosed
	}
	return s.backend.WithTx(func(tx *badger.Txn) error {
		entry := badger.NewEntry(makeCacheKey(key), value)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		if err := tx.SetEntry(entry); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if s.backend.IsClosed() {
		return storage.ErrStorageClosed
	}
	return s.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Delete(makeCacheKey(key)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// Scan iterates keys with the given prefix inside a read-only transaction.
// The snapshot isolation of the transaction means concurrent writers are
// neither blocked nor observed. Values that fail to load are skipped.
func (s *Store) Scan(ctx context.Context, prefix string, fn func(key string, value []byte) error) error {
	if s.backend.IsClosed() {
		return storage.ErrStorageClosed
	}
	return s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeCacheKey(prefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := iter.Item()
			key := cacheKeyFromBytes(item.Key())

			var fnErr error
			err := item.Value(func(val []byte) error {
				fnErr = fn(key, val)
				return nil
			})
			if err != nil {
				s.logger.Debug("skipping unreadable entry", "key", key, "err", err)
				continue
			}
			if fnErr != nil {
				return fnErr
			}
		}
		return nil
	}, false)
}

// CollectGarbage reclaims value log space held by deleted and expired keys.
func (s *Store) CollectGarbage() error {
	return s.backend.CollectGarbage()
}

// Close closes the store, and the backend when the store owns it.
func (s *Store) Close() error {
	if !s.ownsBackend {
		return nil
	}
	return s.backend.Close()
}
