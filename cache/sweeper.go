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
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultSweepInterval is how often the sweeper cleans the cache.
const DefaultSweepInterval = time.Hour

// ErrSweeperRunning is returned by Start when the sweeper is already running.
var ErrSweeperRunning = errors.New("sweeper already running")

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithSweeperLogger sets the logger. If nil, uses the default logger.
func WithSweeperLogger(logger *slog.Logger) SweeperOption {
	return func(s *Sweeper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Sweeper periodically removes expired entries from a Cache.
// It runs one goroutine between Start and Stop.
type Sweeper struct {
	cache    *Cache
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper creates a sweeper for cache. A non-positive interval uses
// DefaultSweepInterval.
func NewSweeper(cache *Cache, interval time.Duration, opts ...SweeperOption) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	s := &Sweeper{
		cache:    cache,
		interval: interval,
		logger:   slog.Default().With("component", "cache-sweeper"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the sweep loop. The loop ends when Stop is called or ctx is
// cancelled.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrSweeperRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)

	s.logger.Debug("sweeper started", "interval", s.interval)
	return nil
}

func (s *Sweeper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("sweep failed", "err", err)
			}
		}
	}
}

// Stop ends the sweep loop and waits for it to exit. It is safe to call
// Stop on a sweeper that is not running.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Debug("sweeper stopped")
}

// Running reports whether the sweep loop is active.
func (s *Sweeper) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// RunOnce performs a single cleanup pass.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	start := time.Now()
	removed, err := s.cache.CleanupExpired(ctx)
	if err != nil {
		return removed, err
	}
	s.logger.Info("sweep complete", "removed", removed, "duration", time.Since(start))
	return removed, nil
}
