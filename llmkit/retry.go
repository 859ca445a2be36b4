package llmkit

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy controls how failed provider calls are reissued. Delays are
// expressed in seconds so policies read naturally in configuration.
type RetryPolicy struct {
	MaxRetries        int     // reissues after the initial call
	BaseDelay         float64 // delay before the first reissue, seconds
	MaxDelay          float64 // ceiling for any single delay, seconds
	BackoffMultiplier float64 // growth factor between reissues
	Jitter            bool
	OnRetry           func(err error, attempt int, delay time.Duration)
}

// DefaultRetryPolicy is the policy the run loop uses unless the caller
// supplies one.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        2,
		BaseDelay:         1.0,
		MaxDelay:          60.0,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
}

// Delay returns the backoff before reissue attempt n (0-indexed).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := p.BaseDelay * math.Pow(p.BackoffMultiplier, float64(attempt))
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter {
		// +/- 50%
		d *= 0.5 + rand.Float64()
	}
	return time.Duration(d * float64(time.Second))
}

// nextDelay picks the wait before the next attempt, preferring a server
// Retry-After hint over the computed backoff. ok is false when the server
// asked for a longer wait than the policy tolerates; the caller should give
// up rather than sleep past MaxDelay.
func (p RetryPolicy) nextDelay(err error, attempt int) (delay time.Duration, ok bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter != nil {
		hinted := time.Duration(*rl.RetryAfter * float64(time.Second))
		if hinted > time.Duration(p.MaxDelay*float64(time.Second)) {
			return 0, false
		}
		return hinted, true
	}
	return p.Delay(attempt), true
}

// Retry reissues fn until it succeeds, fails with a non-retryable error, or
// exhausts the policy. Cancellation during a backoff wait surfaces as an
// AbortError.
func Retry[T any](ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if attempt >= policy.MaxRetries || !IsRetryable(err) {
			return zero, err
		}
		delay, ok := policy.nextDelay(err, attempt)
		if !ok {
			return zero, err
		}
		if policy.OnRetry != nil {
			policy.OnRetry(err, attempt+1, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, &AbortError{BaseError: BaseError{Message: "request cancelled during retry", Cause: ctx.Err()}}
		case <-timer.C:
		}
	}
}
