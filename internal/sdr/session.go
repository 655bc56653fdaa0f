package sdr

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/JYK2001/tdoa-gpsdo/internal/iq"
)

const (
	// OverflowThreshold defines the number of consecutive overflows tolerated by a capture
	OverflowThreshold = 1000
)

// CaptureState is the state of the capture loop of a Session
type CaptureState int32

const (
	StateIdle CaptureState = iota
	StateStreaming
	StateStopped
	StateError
)

func (s CaptureState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateStopped:
		return "stopped"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Metrics receives counters and timings from a Session
type Metrics interface {
	RecordSamples(receiver string, n int)
	RecordOverflow(receiver string)
	RecordStreamError(receiver, code string)
	RecordLatency(op string, seconds float64)
}

type nopMetrics struct{}

func (nopMetrics) RecordSamples(string, int)        {}
func (nopMetrics) RecordOverflow(string)            {}
func (nopMetrics) RecordStreamError(string, string) {}
func (nopMetrics) RecordLatency(string, float64)    {}

// RecordingSink persists completed recordings
type RecordingSink interface {
	Save(ctx context.Context, rec *iq.Recording) error
}

// WithLogger sets the logger for the session
func WithLogger(logger *slog.Logger) func(s *Session) {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithSourceID sets the source identifier stamped on recordings. Defaults to the receiver ID.
func WithSourceID(id string) func(s *Session) {
	return func(s *Session) {
		s.sourceID = id
	}
}

// WithClock sets the host clock used for polling and timeouts
func WithClock(clock Clock) func(s *Session) {
	return func(s *Session) {
		s.clock = clock
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(m Metrics) func(s *Session) {
	return func(s *Session) {
		s.metrics = m
	}
}

// WithRecordingSink sets where completed recordings are persisted
func WithRecordingSink(sink RecordingSink) func(s *Session) {
	return func(s *Session) {
		s.sink = sink
	}
}

// WithOverflowThreshold sets the number of consecutive overflows after which a capture fails.
// Zero disables the limit.
func WithOverflowThreshold(threshold int) func(s *Session) {
	return func(s *Session) {
		s.overflowThreshold = threshold
	}
}

// Session carries one receiver through configuration, time synchronization and capture.
// Sessions share no mutable state, so several may run concurrently against different receivers.
type Session struct {
	rx       Receiver
	config   ReceiverConfig
	sourceID string

	clock   Clock
	metrics Metrics
	sink    RecordingSink
	logger  *slog.Logger

	overflowThreshold int
	state             atomic.Int32

	mu           sync.Mutex
	anchor       float64
	synchronized bool
}

// NewSession validates config, applies it to the receiver and returns a Session with a
// discard logger unless one is provided.
func NewSession(rx Receiver, config ReceiverConfig, options ...func(s *Session)) (*Session, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // nil logger

	s := Session{
		rx:                rx,
		config:            config,
		sourceID:          rx.ID(),
		clock:             SystemClock{},
		metrics:           nopMetrics{},
		logger:            logger,
		overflowThreshold: OverflowThreshold,
	}

	for _, option := range options {
		option(&s)
	}

	s.logger = s.logger.With(
		slog.String("receiver", rx.ID()),
		slog.String("sourceID", s.sourceID),
	)

	if err := s.config.Apply(rx); err != nil {
		return nil, fmt.Errorf("configuring receiver %s: %w", rx.ID(), err)
	}

	s.logger.Info("receiver configured",
		slog.Float64("sampleRate", config.SampleRate),
		slog.Float64("centerFrequency", config.CenterFrequency),
		slog.Float64("gain", config.Gain),
		slog.String("clockSource", string(config.ClockSource)),
		slog.String("timeSource", string(config.TimeSource)))

	return &s, nil
}

// ReceiverID returns the identifier of the underlying receiver
func (s *Session) ReceiverID() string {
	return s.rx.ID()
}

// SourceID returns the identifier stamped on recordings
func (s *Session) SourceID() string {
	return s.sourceID
}

// Config returns a copy of the receiver configuration
func (s *Session) Config() ReceiverConfig {
	return s.config
}

// State returns the state of the capture loop
func (s *Session) State() CaptureState {
	return CaptureState(s.state.Load())
}

// Anchor returns the device time recorded by the last successful handshake
func (s *Session) Anchor() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.anchor, s.synchronized
}

func (s *Session) setAnchor(anchor float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.anchor = anchor
	s.synchronized = true
}

// Close releases the receiver
func (s *Session) Close() error {
	return s.rx.Close()
}
