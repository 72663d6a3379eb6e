package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"log/slog"
)

// Policy is one route class's fixed-window cap.
type Policy struct {
	Limit  int
	Window time.Duration
}

type Decision struct {
	Allowed bool
	// RetryAfter is the remaining window time, reported from the window
	// boundary rather than the caller's arrival order.
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds up so a client that honors the hint never lands
// inside the same window again.
func (d Decision) RetryAfterSeconds() int {
	return int(math.Ceil(d.RetryAfter.Seconds()))
}

type Limiter struct {
	store   Store
	classes map[string]Policy
	logger  *slog.Logger
}

func New(store Store, classes map[string]Policy, logger *slog.Logger) *Limiter {
	return &Limiter{store: store, classes: classes, logger: logger}
}

// Admit counts the request against its (caller, class) window. A store error
// fails open: availability of the storefront wins over strictness of the
// limiter, and the error is logged and visible in metrics.
func (l *Limiter) Admit(ctx context.Context, callerKey, class string) Decision {
	policy, ok := l.classes[class]
	if !ok || policy.Limit <= 0 {
		return Decision{Allowed: true}
	}

	key := fmt.Sprintf("%s:%s", class, callerKey)
	count, expiresIn, err := l.store.Incr(ctx, key, policy.Window)
	if err != nil {
		l.logger.Error("rate limit store error", slog.String("class", class), slog.Any("error", err))
		return Decision{Allowed: true}
	}

	if count > int64(policy.Limit) {
		return Decision{Allowed: false, RetryAfter: expiresIn}
	}
	return Decision{Allowed: true}
}
