// Package throttle holds the token-bucket limiters that pace calls to external providers.
package throttle

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// PerMinute returns a limiter allowing n calls per minute with a burst of one.
// A non-positive n disables limiting and returns nil.
func PerMinute(n int) *rate.Limiter {
	if n <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), 1)
}

// Wait blocks until l admits one call. A nil limiter never blocks.
func Wait(ctx context.Context, l *rate.Limiter, provider string) error {
	if l == nil {
		return nil
	}
	if err := l.Wait(ctx); err != nil {
		return fmt.Errorf("%s rate limiter: %w", provider, err)
	}
	return nil
}

// WithTimeout bounds a provider call. A zero timeout leaves ctx unchanged.
func WithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
