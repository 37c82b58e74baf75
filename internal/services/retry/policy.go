// Package retry provides the retry policy and the generic retry handler
// used around connection and deployment steps that may fail transiently.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"time"
)

// Marker interfaces consulted by the default classifier. Error types
// elsewhere in the repository implement these structurally; this package
// never imports them.
type transientError interface {
	error
	IsTransient() bool
}

type retryableError interface {
	error
	IsRetryable() bool
}

type permanentError interface {
	error
	IsPermanent() bool
}

// Policy describes how a failing operation is retried.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// InitialDelay is the pause before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the inter-retry pause when backoff is exponential.
	MaxDelay time.Duration

	// BackoffMultiplier scales the delay per attempt when
	// ExponentialBackoff is set.
	BackoffMultiplier float64

	// ExponentialBackoff selects exponential growth; otherwise every
	// pause equals InitialDelay.
	ExponentialBackoff bool

	// Classify overrides the default retryability classification when
	// non-nil.
	Classify func(error) bool
}

// DefaultPolicy is a transient-aware policy suitable for connection
// attempts: 3 retries, 1s → 2s → 4s capped at 30s.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:         3,
		InitialDelay:       time.Second,
		MaxDelay:           30 * time.Second,
		BackoffMultiplier:  2.0,
		ExponentialBackoff: true,
	}
}

// Delay returns the pause before the retry following the given zero-based
// attempt. A negative attempt is a programming error and is rejected.
func (p Policy) Delay(attempt int) (time.Duration, error) {
	if attempt < 0 {
		return 0, fmt.Errorf("attempt must be non-negative, got %d", attempt)
	}
	if !p.ExponentialBackoff {
		return p.InitialDelay, nil
	}

	d := float64(p.InitialDelay) * math.Pow(p.BackoffMultiplier, float64(attempt))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay, nil
	}
	// Clamp before converting: past MaxInt64 the conversion is undefined,
	// and an uncapped policy must never collapse to a zero delay.
	if d >= float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64), nil
	}
	return time.Duration(d), nil
}

// IsRetryable classifies err with the custom predicate when one is set,
// falling back to the default classification.
func (p Policy) IsRetryable(err error) bool {
	if p.Classify != nil {
		return p.Classify(err)
	}
	return DefaultClassify(err)
}

// DefaultClassify implements the standard retryability rules:
//   - cancellation is never retried
//   - errors carrying an IsPermanent marker (auth, build, profile
//     validation) are never retried
//   - errors carrying an IsTransient or IsRetryable marker decide for
//     themselves
//   - network timeouts and low-level I/O failures are retried
//   - everything else is not retried
func DefaultClassify(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var perm permanentError
	if errors.As(err, &perm) {
		return !perm.IsPermanent()
	}
	var trans transientError
	if errors.As(err, &trans) {
		return trans.IsTransient()
	}
	var retr retryableError
	if errors.As(err, &retr) {
		return retr.IsRetryable()
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	if os.IsTimeout(err) {
		return true
	}

	return false
}
