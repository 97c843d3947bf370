package graph

import (
	"math/rand"
	"time"
)

// NodePolicy configures the execution behavior of a specific node.
//
// Zero fields fall back to the engine defaults set through Options.
type NodePolicy struct {
	// Timeout is the maximum execution time of one attempt.
	// If zero, the engine's default node timeout is used.
	Timeout time.Duration

	// RetryPolicy overrides the engine's retry policy for this node.
	RetryPolicy *RetryPolicy
}

// RetryPolicy defines automatic retry configuration for transient node failures.
//
// Delays grow exponentially with jitter so concurrent runs hitting the same
// rate-limited service do not retry in lockstep.
type RetryPolicy struct {
	// MaxAttempts is the maximum number of attempts, including the first.
	// Must be >= 1. A value of 1 means no retries.
	MaxAttempts int

	// BaseDelay is the base delay for exponential backoff between retries.
	BaseDelay time.Duration

	// MaxDelay caps the exponential component. Zero means no cap.
	MaxDelay time.Duration

	// Retryable decides whether an error is worth another attempt.
	// If nil, IsRetryable is used.
	Retryable func(error) bool
}

// DefaultRetryPolicy retries retryable errors up to three attempts in total.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   250 * time.Millisecond,
		MaxDelay:    2 * time.Second,
	}
}

// Validate checks if the RetryPolicy configuration is valid.
//   - MaxAttempts must be >= 1
//   - MaxDelay must be >= BaseDelay when both are set
func (rp *RetryPolicy) Validate() error {
	if rp.MaxAttempts < 1 {
		return ErrInvalidRetryPolicy
	}
	if rp.BaseDelay < 0 || rp.MaxDelay < 0 {
		return ErrInvalidRetryPolicy
	}
	if rp.MaxDelay > 0 && rp.BaseDelay > 0 && rp.MaxDelay < rp.BaseDelay {
		return ErrInvalidRetryPolicy
	}
	return nil
}

func (rp *RetryPolicy) shouldRetry(err error) bool {
	if rp.Retryable != nil {
		return rp.Retryable(err)
	}
	return IsRetryable(err)
}

// computeBackoff calculates the delay before retry number attempt (zero-based):
//
//	delay = min(base * 2^attempt, maxDelay) + jitter(0, base)
func computeBackoff(attempt int, base, maxDelay time.Duration, rng *rand.Rand) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt > 30 {
		attempt = 30
	}

	exponentialDelay := base * (1 << attempt)
	if maxDelay > 0 && exponentialDelay > maxDelay {
		exponentialDelay = maxDelay
	}

	var jitter time.Duration
	if rng != nil {
		jitter = time.Duration(rng.Int63n(int64(base)))
	} else {
		jitter = time.Duration(rand.Int63n(int64(base))) // #nosec G404 -- jitter for retry timing, not security
	}

	return exponentialDelay + jitter
}
