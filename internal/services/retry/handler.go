package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Handler executes operations under a Policy.
type Handler struct {
	policy Policy
	log    zerolog.Logger
}

// NewHandler builds a handler; the logger receives one event per attempt
// and per retry decision.
func NewHandler(policy Policy, log zerolog.Logger) *Handler {
	return &Handler{policy: policy, log: log}
}

// Execute invokes op until it succeeds, the policy is exhausted, or ctx is
// cancelled. Total attempts = MaxRetries + 1. Non-retryable failures
// propagate immediately; after exhaustion the last error is returned.
// Cancellation during a backoff pause returns a cancellation error rather
// than the operation's own failure.
func (h *Handler) Execute(ctx context.Context, name string, op func(ctx context.Context) error) error {
	var lastErr error

	attempts := h.policy.MaxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s cancelled: %w", name, err)
		}

		err := op(ctx)
		if err == nil {
			if attempt > 0 {
				h.log.Info().Str("operation", name).Int("attempt", attempt+1).Msg("operation succeeded after retry")
			}
			return nil
		}
		lastErr = err

		if !h.policy.IsRetryable(err) {
			h.log.Debug().Str("operation", name).Err(err).Msg("error not retryable")
			return err
		}
		if attempt == attempts-1 {
			break
		}

		delay, derr := h.policy.Delay(attempt)
		if derr != nil {
			return derr
		}
		h.log.Warn().
			Str("operation", name).
			Int("attempt", attempt+1).
			Int("max_attempts", attempts).
			Dur("delay", delay).
			Err(err).
			Msg("attempt failed, retrying")

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s cancelled during retry wait: %w", name, ctx.Err())
		case <-time.After(delay):
		}
	}

	h.log.Error().Str("operation", name).Int("attempts", attempts).Err(lastErr).Msg("all attempts failed")
	return lastErr
}
