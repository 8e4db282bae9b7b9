package crawler

import (
	"context"
	"time"
)

// defaultBackoffStep is the unit of the linear backoff between attempts.
const defaultBackoffStep = 600 * time.Millisecond

// LinearRetryPolicy retries network failures a bounded number of times,
// waiting step*attempt before each retry.
type LinearRetryPolicy struct {
	maxRetries int
	step       time.Duration
}

// NewLinearRetryPolicy builds a policy allowing maxRetries extra attempts.
func NewLinearRetryPolicy(maxRetries int, step time.Duration) *LinearRetryPolicy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if step < 0 {
		step = 0
	}
	return &LinearRetryPolicy{maxRetries: maxRetries, step: step}
}

// MaxAttempts is the total number of attempts, first one included.
func (p *LinearRetryPolicy) MaxAttempts() int {
	return p.maxRetries + 1
}

// ShouldRetry decides whether another attempt follows attempt (1-based).
// Cancellation of the caller's context stops retrying; the error itself
// is not inspected since every transport failure is retryable.
func (p *LinearRetryPolicy) ShouldRetry(ctx context.Context, err error, attempt int) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	return attempt < p.MaxAttempts()
}

// Backoff returns the wait after the given failed attempt (1-based).
func (p *LinearRetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	return p.step * time.Duration(attempt)
}
