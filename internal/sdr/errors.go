package sdr

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrStreamOverflow marks a receive call on which the device dropped samples.
	// The capture loop absorbs it and retries.
	ErrStreamOverflow = errors.New("stream overflow")

	// ErrTooManyOverflows is returned when consecutive overflows exceed the session threshold
	ErrTooManyOverflows = errors.New("too many consecutive overflows")

	// ErrSessionBusy is returned when a session is asked to capture while already capturing
	ErrSessionBusy = errors.New("session is already capturing")
)

// SyncTimeoutError is returned when a reference edge is not observed in time during the handshake
type SyncTimeoutError struct {
	Stage    string        // Handshake stage waiting for the edge
	Timeout  time.Duration // Timeout that elapsed
	LastEdge float64       // Last edge time the receiver reported
}

func (e *SyncTimeoutError) Error() string {
	return fmt.Sprintf("no reference edge within %s while %s (last edge at %.9f s)", e.Timeout, e.Stage, e.LastEdge)
}

// StreamFatalError terminates a capture. Written is the number of samples collected before it.
type StreamFatalError struct {
	Code    RxErrorCode
	Written int
	Err     error
}

func (e *StreamFatalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("stream failed after %d samples (%s): %s", e.Written, e.Code, e.Err.Error())
	}
	return fmt.Sprintf("stream failed after %d samples: %s", e.Written, e.Code)
}

func (e *StreamFatalError) Unwrap() error {
	return e.Err
}
