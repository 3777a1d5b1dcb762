package llm

import (
	"errors"
	"fmt"
)

// ErrUnconfigured is returned when no API credential is configured.
// Never retried; user-actionable.
var ErrUnconfigured = errors.New("no API credential configured")

// RemoteRejectedError is a non-2xx response from the remote API. The server
// message is surfaced verbatim where available.
type RemoteRejectedError struct {
	StatusCode int
	Message    string
}

func (e *RemoteRejectedError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("API error: %d", e.StatusCode)
}

// NetworkError is a transport-level failure (DNS, timeout, reset).
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// IsRemoteRejected reports whether err is a remote rejection and returns it.
func IsRemoteRejected(err error) (*RemoteRejectedError, bool) {
	var rr *RemoteRejectedError
	if errors.As(err, &rr) {
		return rr, true
	}
	return nil, false
}
