// Copyright 2025 Poiesic Systems
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

// Package storage provides the durable storage abstraction for the sopcompliance cache.
//
// This package defines the Store interface that decouples the durable cache
// tier from any particular backend, together with the Entry record and its
// binary encoding. Backends live in subpackages:
//
//   - storage/badger: embedded BadgerDB, native TTL per key
//   - storage/redis: Redis via go-redis, native key expiry
//
// # Constructor Return Type Pattern
//
// Public constructors return the storage.Store interface:
//
//	store, err := badger.NewStore(path)  // returns storage.Store
//
// Internal helpers may return concrete types since they're only used within
// the implementation package.
//
// # Entries
//
// The cache writes entries produced by MarshalEntry. Stores treat them as
// opaque blobs; freshness is decided by Entry.Expired, never by the backend,
// so an entry a backend has not yet reclaimed is still rejected once stale.
//
// # Thread Safety
//
// All Store implementations must be thread-safe and support concurrent
// access from multiple goroutines. Scan must tolerate concurrent writes.
package storage
