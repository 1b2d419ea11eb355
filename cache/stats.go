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

	"github.com/gautam1sharma/sopcompliance/storage"
)

// Stats holds counters accumulated since the cache was created.
type Stats struct {
	FastHits      int64 `json:"fast_hits"`
	DurableHits   int64 `json:"durable_hits"`
	Misses        int64 `json:"misses"`
	Writes        int64 `json:"writes"`
	WriteFailures int64 `json:"write_failures"`
	Evictions     int64 `json:"evictions"`
	Corruptions   int64 `json:"corruptions"`
	FastEntries   int   `json:"fast_entries"`
}

// Hits returns fast plus durable hits.
func (s Stats) Hits() int64 {
	return s.FastHits + s.DurableHits
}

// HitRate returns hits over lookups, or 0 before the first lookup.
func (s Stats) HitRate() float64 {
	lookups := s.Hits() + s.Misses
	if lookups == 0 {
		return 0
	}
	return float64(s.Hits()) / float64(lookups)
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	return Stats{
		FastHits:      c.fastHits.Load(),
		DurableHits:   c.durableHits.Load(),
		Misses:        c.misses.Load(),
		Writes:        c.writes.Load(),
		WriteFailures: c.writeFailures.Load(),
		Evictions:     c.evictions.Load(),
		Corruptions:   c.corruptions.Load(),
		FastEntries:   c.fast.ItemCount(),
	}
}

// DurableStats describes the content of the durable tier.
type DurableStats struct {
	Entries int   `json:"entries"`
	Expired int   `json:"expired"`
	Corrupt int   `json:"corrupt"`
	Bytes   int64 `json:"bytes"`
}

// DurableStats scans the durable tier. A memory-only cache reports zeros.
func (c *Cache) DurableStats(ctx context.Context) (DurableStats, error) {
	var stats DurableStats
	if c.store == nil {
		return stats, nil
	}
	now := c.now()
	err := c.store.Scan(ctx, "", func(_ string, value []byte) error {
		stats.Entries++
		stats.Bytes += int64(len(value))
		entry, err := storage.UnmarshalEntry(value)
		switch {
		case err != nil:
			stats.Corrupt++
		case entry.Expired(now):
			stats.Expired++
		}
		return nil
	})
	return stats, err
}
