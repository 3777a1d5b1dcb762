package speech

import (
	"errors"
	"fmt"
)

// ErrUnsupported is reported when the requested backend cannot run at
// all: no local synthesizer is installed, or the cloud backend is
// selected without an API key or voice configured.
var ErrUnsupported = errors.New("speech: no synthesis backend available")

// RemoteRejectedError is a non-success response from the cloud
// synthesis service.
type RemoteRejectedError struct {
	StatusCode int
	Message    string
}

func (e *RemoteRejectedError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("speech service returned status %d", e.StatusCode)
}

// NetworkError wraps a transport failure reaching the cloud service.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("speech service unreachable: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// PlaybackError wraps a failure in the audio output path after
// synthesis succeeded.
type PlaybackError struct {
	Err error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("audio playback failed: %v", e.Err)
}

func (e *PlaybackError) Unwrap() error { return e.Err }
