package storage

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/hashicorp/go-multierror"
)

// RetryPolicy configures how failed storage calls are retried.
type RetryPolicy struct {
	// MaxAttempts is the maximum number of attempts, including the first.
	MaxAttempts int

	// InitialBackoff is the pause after the first failure.
	InitialBackoff time.Duration

	// MaxBackoff caps the pause between attempts.
	MaxBackoff time.Duration

	// BackoffFactor multiplies the pause after each failure.
	BackoffFactor float64

	// Jitter randomizes each pause by up to this fraction (0.0-1.0).
	Jitter float64
}

// DefaultRetry suits networked backends such as postgres.
var DefaultRetry = RetryPolicy{
	MaxAttempts:    3,
	InitialBackoff: 100 * time.Millisecond,
	MaxBackoff:     2 * time.Second,
	BackoffFactor:  2.0,
	Jitter:         0.1,
}

// NoRetry makes a single attempt.
var NoRetry = RetryPolicy{MaxAttempts: 1}

// RetryError reports a call that still failed after more than one attempt.
type RetryError struct {
	Attempts int
	Err      error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryError) Unwrap() error {
	return e.Err
}

// Permanent reports whether retrying err cannot help: the key is invalid,
// the store is closed, the key is absent or the context is done.
func Permanent(err error) bool {
	return errors.Is(err, ErrInvalidKey) ||
		errors.Is(err, ErrStoreClosed) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Retry calls fn until it succeeds, fails permanently, the policy's
// attempts are used up or ctx is done. Failures after more than one
// attempt are returned as a *RetryError.
func Retry(ctx context.Context, p RetryPolicy, fn func(context.Context) error) error {
	attempts := max(p.MaxAttempts, 1)
	backoff := p.InitialBackoff

	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if Permanent(err) || attempt == attempts {
			if attempt == 1 {
				return err
			}
			return &RetryError{Attempts: attempt, Err: err}
		}

		timer := time.NewTimer(jittered(backoff, p.Jitter))
		select {
		case <-ctx.Done():
			timer.Stop()
			return &RetryError{Attempts: attempt, Err: multierror.Append(err, ctx.Err())}
		case <-timer.C:
		}

		if p.BackoffFactor > 0 {
			backoff = time.Duration(float64(backoff) * p.BackoffFactor)
		}
		if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
			backoff = p.MaxBackoff
		}
	}
}

// jittered returns base +/- base*jitter*random.
func jittered(base time.Duration, jitter float64) time.Duration {
	if jitter <= 0 || base <= 0 {
		return base
	}
	delta := float64(base) * jitter * (rand.Float64()*2 - 1)
	return time.Duration(float64(base) + delta)
}
