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

package storage

import (
	"context"
	"time"
)

// Store is a durable key to blob store with TTL-qualified writes.
// Implementations must be thread-safe and support concurrent access.
type Store interface {
	// Get returns the stored value.
	// Returns ErrNotFound if the key doesn't exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key. A positive ttl lets the backend reclaim the
	// key on its own; zero keeps it until deleted.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Scan calls fn for every key with the given prefix.
	// The value slice is only valid for the duration of the call.
	// Returning an error from fn stops the scan and is returned by Scan.
	Scan(ctx context.Context, prefix string, fn func(key string, value []byte) error) error

	// Close closes the store and releases resources.
	Close() error
}

// Entry is one cached payload together with the data needed to decide
// whether it is still fresh.
type Entry struct {
	Key       string
	Payload   []byte
	CreatedAt time.Time
	TTL       time.Duration
}

// NewEntry creates an entry stamped with now.
func NewEntry(key string, payload []byte, ttl time.Duration, now time.Time) *Entry {
	return &Entry{
		Key:       key,
		Payload:   payload,
		CreatedAt: now,
		TTL:       ttl,
	}
}

// Expired reports whether the entry must no longer be returned.
// An entry with a TTL of zero or less is always expired.
func (e *Entry) Expired(now time.Time) bool {
	return e.TTL <= 0 || now.Sub(e.CreatedAt) > e.TTL
}

// ExpiresAt returns the instant after which the entry is expired.
func (e *Entry) ExpiresAt() time.Time {
	return e.CreatedAt.Add(e.TTL)
}

// Remaining returns the time left before expiry, or zero if already expired.
func (e *Entry) Remaining(now time.Time) time.Duration {
	if e.Expired(now) {
		return 0
	}
	return e.ExpiresAt().Sub(now)
}
