package sdr

import "time"

// ReferenceSource selects where a receiver takes its clock (10 MHz) or time (PPS) reference from.
type ReferenceSource string

const (
	SourceInternal ReferenceSource = "internal"
	SourceExternal ReferenceSource = "external"
)

// StreamCommand is a command issued to a sample stream
type StreamCommand int

const (
	StartContinuous StreamCommand = iota
	StopContinuous
)

func (c StreamCommand) String() string {
	switch c {
	case StartContinuous:
		return "start_cont"
	case StopContinuous:
		return "stop_cont"
	default:
		return "unknown"
	}
}

// RxErrorCode is the status reported by a single receive call
type RxErrorCode int

const (
	RxErrorNone RxErrorCode = iota
	RxErrorOverflow
	RxErrorTimeout
	RxErrorLateCommand
	RxErrorBrokenChain
	RxErrorAlignment
	RxErrorBadPacket
)

func (c RxErrorCode) String() string {
	switch c {
	case RxErrorNone:
		return "none"
	case RxErrorOverflow:
		return "overflow"
	case RxErrorTimeout:
		return "timeout"
	case RxErrorLateCommand:
		return "late_command"
	case RxErrorBrokenChain:
		return "broken_chain"
	case RxErrorAlignment:
		return "alignment"
	case RxErrorBadPacket:
		return "bad_packet"
	default:
		return "unknown"
	}
}

// RxMetadata describes the outcome of a receive call
type RxMetadata struct {
	ErrorCode RxErrorCode
	Message   string // Optional driver diagnostic
}

// Receiver is the control surface of one physical radio receiver. Device times are
// absolute seconds on the receiver's own time base.
type Receiver interface {
	ID() string // Unique device identifier (serial number or similar)

	SetSampleRate(rate float64) error
	SetCenterFrequency(freq float64) error
	SetGain(gain float64) error
	SetClockSource(src ReferenceSource) error
	SetTimeSource(src ReferenceSource) error

	TimeNow() (float64, error)      // Current device time
	SetTimeNow(t float64) error     // Set device time immediately
	TimeLastPPS() (float64, error)  // Device time latched at the last reference edge
	SetTimeNextPPS(t float64) error // Arm t to be latched at the next reference edge
	OpenStream() (Stream, error)    // Open a receive stream
	Close() error
}

// Stream is a receive stream opened on a Receiver. Receive blocks for at most timeout and
// fills buf from the start; it is never called concurrently.
type Stream interface {
	IssueCommand(cmd StreamCommand) error
	Receive(buf []complex64, timeout time.Duration) (int, RxMetadata)
	Close() error
}

// LockSensor is implemented by receivers that can report whether they are locked to an
// external reference.
type LockSensor interface {
	ReferenceLocked() (bool, error)
}
