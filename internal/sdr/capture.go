package sdr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/JYK2001/tdoa-gpsdo/internal/iq"
)

const (
	DefaultBufferCapacity = 32768
	DefaultPerCallTimeout = time.Second
)

// CaptureOptions controls a bounded capture
type CaptureOptions struct {
	NumSamples     int           // Exact number of samples to collect
	BufferCapacity int           // Size of the staging buffer handed to each receive call
	PerCallTimeout time.Duration // Upper bound on a single receive call
}

func (o *CaptureOptions) Validate() error {
	if o.NumSamples <= 0 {
		return fmt.Errorf("sdr.CaptureOptions: number of samples must be positive: %d given", o.NumSamples)
	}
	if o.BufferCapacity <= 0 {
		return fmt.Errorf("sdr.CaptureOptions: buffer capacity must be positive: %d given", o.BufferCapacity)
	}
	if o.PerCallTimeout <= 0 {
		return fmt.Errorf("sdr.CaptureOptions: per-call timeout must be positive: %s given", o.PerCallTimeout)
	}
	return nil
}

// SamplesFor converts a capture duration into a sample count at the given rate
func SamplesFor(d time.Duration, sampleRate float64) int {
	return int(math.Round(d.Seconds() * sampleRate))
}

// Capture starts a continuous stream and collects exactly opts.NumSamples samples.
//
// Overflows are logged and the receive call is retried without advancing the write offset.
// Any other receive error ends the capture; the samples collected so far are returned
// together with a *StreamFatalError. The stream is stopped on every exit path once started.
// A completed recording is handed to the session's RecordingSink, if any.
func (s *Session) Capture(ctx context.Context, opts CaptureOptions) (*iq.Recording, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	if CaptureState(s.state.Swap(int32(StateStreaming))) == StateStreaming {
		return nil, ErrSessionBusy
	}

	if _, ok := s.Anchor(); !ok {
		s.logger.Warn("capturing without time synchronization")
	}

	stream, err := s.rx.OpenStream()
	if err != nil {
		s.state.Store(int32(StateError))
		return nil, fmt.Errorf("opening stream: %w", err)
	}
	defer func() {
		if cErr := stream.Close(); cErr != nil {
			s.logger.Warn(fmt.Sprintf("closing stream: %s", cErr.Error()))
		}
	}()

	if err = stream.IssueCommand(StartContinuous); err != nil {
		s.state.Store(int32(StateError))
		return nil, fmt.Errorf("starting stream: %w", err)
	}

	rec, err := s.drain(ctx, stream, opts)

	if sErr := stream.IssueCommand(StopContinuous); sErr != nil {
		s.logger.Warn(fmt.Sprintf("stopping stream: %s", sErr.Error()))
	}

	if err != nil {
		s.state.Store(int32(StateError))

		var fatal *StreamFatalError
		if errors.As(err, &fatal) {
			s.metrics.RecordStreamError(s.rx.ID(), fatal.Code.String())
		}
		return rec, err
	}

	s.state.Store(int32(StateStopped))

	if end, tErr := s.rx.TimeNow(); tErr == nil {
		s.logger.Info("capture finished",
			slog.Float64("startTimestamp", rec.StartTimestamp),
			slog.Float64("endTimestamp", end),
			slog.String("samples", humanize.Comma(int64(rec.Len()))),
			slog.String("size", humanize.IBytes(rec.SizeBytes())))
	}

	if s.sink != nil {
		if err = s.sink.Save(ctx, rec); err != nil {
			return rec, fmt.Errorf("persisting recording: %w", err)
		}
	}

	return rec, nil
}

// drain runs the receive loop. The returned recording is never nil once the stream is started.
func (s *Session) drain(ctx context.Context, stream Stream, opts CaptureOptions) (*iq.Recording, error) {
	buffer := make([]complex64, opts.BufferCapacity)
	samples := make([]complex64, opts.NumSamples)

	rec := &iq.Recording{
		SampleRate: s.config.SampleRate,
		SourceID:   s.sourceID,
	}

	start, err := s.rx.TimeNow()
	if err != nil {
		return rec, fmt.Errorf("reading device time: %w", err)
	}
	rec.StartTimestamp = start

	s.logger.Info("capture started",
		slog.Float64("startTimestamp", start),
		slog.String("samples", humanize.Comma(int64(opts.NumSamples))))

	var written, overflows int
	for written < opts.NumSamples {
		if err = ctx.Err(); err != nil {
			rec.Samples = samples[:written]
			return rec, fmt.Errorf("capture aborted after %d samples: %w", written, err)
		}

		n, md := stream.Receive(buffer, opts.PerCallTimeout)

		switch md.ErrorCode {
		case RxErrorNone:
		case RxErrorOverflow:
			overflows++
			s.metrics.RecordOverflow(s.rx.ID())
			s.logger.Warn(ErrStreamOverflow.Error(), slog.Int("written", written), slog.Int("consecutive", overflows))

			if s.overflowThreshold > 0 && overflows >= s.overflowThreshold {
				rec.Samples = samples[:written]
				return rec, &StreamFatalError{Code: md.ErrorCode, Written: written, Err: ErrTooManyOverflows}
			}
			continue
		default:
			rec.Samples = samples[:written]

			var cause error
			if md.Message != "" {
				cause = errors.New(md.Message)
			}
			return rec, &StreamFatalError{Code: md.ErrorCode, Written: written, Err: cause}
		}

		overflows = 0

		n = max(0, min(n, len(buffer), opts.NumSamples-written))
		copy(samples[written:], buffer[:n])
		written += n

		s.metrics.RecordSamples(s.rx.ID(), n)
	}

	rec.Samples = samples
	return rec, nil
}
