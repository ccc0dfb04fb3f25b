package search

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"curator/internal/throttle"
)

// ThrottledProvider paces and bounds every call to the wrapped provider.
type ThrottledProvider struct {
	inner   Provider
	limiter *rate.Limiter
	timeout time.Duration
}

// NewThrottledProvider wraps p with a per-minute token bucket and a per-call timeout.
// Zero values disable the respective control.
func NewThrottledProvider(p Provider, requestsPerMinute int, timeout time.Duration) *ThrottledProvider {
	return &ThrottledProvider{
		inner:   p,
		limiter: throttle.PerMinute(requestsPerMinute),
		timeout: timeout,
	}
}

// GetName returns the wrapped provider's name
func (t *ThrottledProvider) GetName() string {
	return t.inner.GetName()
}

// Search waits for a token, then delegates under the call timeout
func (t *ThrottledProvider) Search(ctx context.Context, query string, config Config) ([]Result, error) {
	if err := throttle.Wait(ctx, t.limiter, t.inner.GetName()); err != nil {
		return nil, err
	}
	callCtx, cancel := throttle.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.inner.Search(callCtx, query, config)
}
