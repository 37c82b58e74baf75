package remote

import "fmt"

// ConnectionError wraps a failure to reach or talk to the deployment
// server. Transient marks failures worth retrying (timeouts, 5xx, resets);
// the retry policy consults it through the IsTransient marker.
type ConnectionError struct {
	Host      string
	Op        string
	Err       error
	Transient bool
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection %s failed for %s: %v", e.Op, e.Host, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// IsTransient reports whether the failure is expected to clear on retry.
func (e *ConnectionError) IsTransient() bool { return e.Transient }

// AuthError is raised on credential rejection. Never retryable.
type AuthError struct {
	Host     string
	Username string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed for %s@%s", e.Username, e.Host)
}

// IsPermanent marks the error as never retryable.
func (e *AuthError) IsPermanent() bool { return true }
