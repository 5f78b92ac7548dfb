package ports

import (
	"context"
	"time"
)

// RateCounterStore is the fixed-window counter behind the rate limiter.
//
// Incr atomically increments the counter for key, starting a fresh window of
// the given length when none is active, and returns the post-increment count
// together with the time remaining until the window resets. Implementations
// must be safe for concurrent callers hitting the same key and must evict
// idle keys once their window has lapsed so memory stays bounded.
type RateCounterStore interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int64, resetIn time.Duration, err error)
}
