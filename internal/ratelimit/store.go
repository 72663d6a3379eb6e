package ratelimit

import (
	"context"
	"time"
)

// Store is the fixed-window counter backend. Incr bumps the counter for key,
// starting a new window when none is live, and reports the count plus the
// time left in the window. Swapping the memory store for the Redis one moves
// the counters to shared backing without touching any call site.
type Store interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int64, expiresIn time.Duration, err error)
}
