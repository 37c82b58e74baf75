package deploy

import "fmt"

// StageError wraps a failure inside one deployment stage. Retryable is the
// isRetryable marker the retry policy consults.
type StageError struct {
	Stage     Stage
	Err       error
	Retryable bool
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// IsRetryable reports whether the stage may be retried.
func (e *StageError) IsRetryable() bool { return e.Retryable }
