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

// Package cache implements the two-tier content-addressed cache.
//
// The fast tier is an in-process go-cache map checked first. The durable tier
// is any storage.Store, consulted on a fast miss and used to repopulate the
// fast tier. Both tiers hold storage.Entry values, and freshness is always
// decided by Entry.Expired against the cache clock.
//
// Writes never fail the caller: a durable write failure only means the value
// is recomputed next time. Corrupted durable entries are deleted and reported
// as misses.
//
// # Usage
//
//	store, err := badger.NewStore(dir)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	c, err := cache.New(cache.WithStore(store))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	c.SetVectors(ctx, cache.EmbeddingKey(model, core.ContentHash(text)), vectors, cache.TTLEmbeddings)
//	vectors, ok := c.GetVectors(ctx, key)
//
// A Sweeper removes expired durable entries on a fixed interval.
package cache
