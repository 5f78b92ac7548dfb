package cache

import (
	"context"
	"sync"
	"time"
)

type bucket struct {
	windowStart time.Time
	count       int64
}

// MemoryRateStore is the in-process fixed-window counter used when no Redis
// URL is configured. Counts are mutated under one mutex, which makes the
// increment-and-compare atomic for concurrent requests on the same key.
type MemoryRateStore struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	nowFn   func() time.Time
	done    chan struct{}
	closed  sync.Once
}

// NewMemoryRateStore creates the store and starts a sweeper that evicts
// buckets idle for several window lengths, bounding memory by active
// client cardinality rather than historical traffic.
func NewMemoryRateStore(sweepEvery time.Duration) *MemoryRateStore {
	s := &MemoryRateStore{
		buckets: make(map[string]*bucket),
		nowFn:   time.Now,
		done:    make(chan struct{}),
	}
	if sweepEvery > 0 {
		go s.sweepLoop(sweepEvery)
	}
	return s
}

func (s *MemoryRateStore) Incr(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	now := s.nowFn()

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	if !ok || now.Sub(b.windowStart) >= window {
		b = &bucket{windowStart: now}
		s.buckets[key] = b
	}
	b.count++
	resetIn := window - now.Sub(b.windowStart)
	return b.count, resetIn, nil
}

// Close stops the sweeper goroutine.
func (s *MemoryRateStore) Close() {
	s.closed.Do(func() { close(s.done) })
}

func (s *MemoryRateStore) sweepLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweep(every)
		}
	}
}

// sweep drops buckets whose window ended at least three sweep intervals ago.
func (s *MemoryRateStore) sweep(every time.Duration) {
	cutoff := s.nowFn().Add(-3 * every)
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, b := range s.buckets {
		if b.windowStart.Before(cutoff) {
			delete(s.buckets, key)
		}
	}
}
