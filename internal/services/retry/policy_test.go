package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransientErr struct{ transient bool }

func (e *fakeTransientErr) Error() string     { return "transient failure" }
func (e *fakeTransientErr) IsTransient() bool { return e.transient }

type fakePermanentErr struct{}

func (e *fakePermanentErr) Error() string     { return "permanent failure" }
func (e *fakePermanentErr) IsPermanent() bool { return true }

type fakeRetryableErr struct{ retryable bool }

func (e *fakeRetryableErr) Error() string     { return "retryable failure" }
func (e *fakeRetryableErr) IsRetryable() bool { return e.retryable }

// TestPolicyDelay tests the backoff delay computation
func TestPolicyDelay(t *testing.T) {
	t.Run("Should grow exponentially from the initial delay", func(t *testing.T) {
		p := Policy{
			InitialDelay:       time.Second,
			MaxDelay:           30 * time.Second,
			BackoffMultiplier:  2.0,
			ExponentialBackoff: true,
		}

		d0, err := p.Delay(0)
		require.NoError(t, err)
		d1, err := p.Delay(1)
		require.NoError(t, err)
		d2, err := p.Delay(2)
		require.NoError(t, err)

		assert.Equal(t, time.Second, d0)
		assert.Equal(t, 2*time.Second, d1)
		assert.Equal(t, 4*time.Second, d2)
	})

	t.Run("Should never decrease as attempts grow", func(t *testing.T) {
		p := DefaultPolicy()
		var prev time.Duration
		for attempt := 0; attempt < 12; attempt++ {
			d, err := p.Delay(attempt)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, d, prev, "delay shrank at attempt %d", attempt)
			prev = d
		}
	})

	t.Run("Should cap at MaxDelay", func(t *testing.T) {
		p := DefaultPolicy()

		d, err := p.Delay(10)
		require.NoError(t, err)
		assert.Equal(t, p.MaxDelay, d)

		// Large enough to overflow the float computation.
		d, err = p.Delay(500)
		require.NoError(t, err)
		assert.Equal(t, p.MaxDelay, d)
	})

	t.Run("Should clamp an overflowing delay when no cap is set", func(t *testing.T) {
		p := Policy{
			InitialDelay:       time.Second,
			BackoffMultiplier:  2.0,
			ExponentialBackoff: true,
		}

		d, err := p.Delay(500)
		require.NoError(t, err)
		assert.Equal(t, time.Duration(math.MaxInt64), d)
	})

	t.Run("Should return a constant delay without exponential backoff", func(t *testing.T) {
		p := Policy{InitialDelay: 250 * time.Millisecond}

		for attempt := 0; attempt < 5; attempt++ {
			d, err := p.Delay(attempt)
			require.NoError(t, err)
			assert.Equal(t, 250*time.Millisecond, d)
		}
	})

	t.Run("Should reject a negative attempt", func(t *testing.T) {
		p := DefaultPolicy()
		_, err := p.Delay(-1)
		assert.Error(t, err)
	})
}

// TestDefaultClassify tests the retryability classification rules
func TestDefaultClassify(t *testing.T) {
	t.Run("Should never retry nil or cancellation", func(t *testing.T) {
		assert.False(t, DefaultClassify(nil))
		assert.False(t, DefaultClassify(context.Canceled))
		assert.False(t, DefaultClassify(context.DeadlineExceeded))
		assert.False(t, DefaultClassify(fmt.Errorf("wrapped: %w", context.Canceled)))
	})

	t.Run("Should never retry permanent errors", func(t *testing.T) {
		assert.False(t, DefaultClassify(&fakePermanentErr{}))
		assert.False(t, DefaultClassify(fmt.Errorf("connect: %w", &fakePermanentErr{})))
	})

	t.Run("Should let transient markers decide", func(t *testing.T) {
		assert.True(t, DefaultClassify(&fakeTransientErr{transient: true}))
		assert.False(t, DefaultClassify(&fakeTransientErr{transient: false}))
	})

	t.Run("Should let retryable markers decide", func(t *testing.T) {
		assert.True(t, DefaultClassify(&fakeRetryableErr{retryable: true}))
		assert.False(t, DefaultClassify(&fakeRetryableErr{retryable: false}))
	})

	t.Run("Should retry network op errors", func(t *testing.T) {
		opErr := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
		assert.True(t, DefaultClassify(opErr))
		assert.True(t, DefaultClassify(fmt.Errorf("upload: %w", opErr)))
	})

	t.Run("Should not retry unknown errors", func(t *testing.T) {
		assert.False(t, DefaultClassify(errors.New("something unexpected")))
	})

	t.Run("Should prefer a custom classifier when set", func(t *testing.T) {
		p := Policy{Classify: func(err error) bool { return true }}
		assert.True(t, p.IsRetryable(errors.New("anything")))
	})
}
