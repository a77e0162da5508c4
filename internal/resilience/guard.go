package resilience

import (
	"context"
	"time"
)

// Guard combines a circuit breaker and a retry policy for one external
// capability. Every attempt passes through the breaker; only transient
// network errors are retried.
type Guard struct {
	Breaker *CircuitBreaker
	Retry   *RetryConfig
}

// NewGuard builds a guard from the service configuration values
func NewGuard(name string, maxFailures int, resetTimeout time.Duration, retry *RetryConfig) *Guard {
	return &Guard{
		Breaker: NewCircuitBreaker(name, maxFailures, resetTimeout),
		Retry:   retry,
	}
}

// Do runs fn under the guard. A nil guard runs fn once.
func (g *Guard) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if g == nil {
		return fn(ctx)
	}
	attempt := fn
	if g.Breaker != nil {
		attempt = func(ctx context.Context) error {
			return g.Breaker.Call(ctx, fn)
		}
	}
	return Retry(ctx, attempt, g.Retry, IsRetryableNetworkError)
}
