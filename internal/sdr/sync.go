package sdr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"
)

const (
	DefaultSettleDelay  = time.Second
	DefaultEdgeTimeout  = 2 * time.Second
	DefaultPollInterval = time.Millisecond

	// armTolerance is how far the edge latched after arming may be from the armed value
	armTolerance = 1e-6
)

// SyncOptions controls the time synchronization handshake.
//
// The reference edge period and the polling interval bound how accurately the anchor is known:
// the armed value is latched by hardware exactly at the edge, while the anchor read back after
// detecting that edge lags it by at most one PollInterval plus the device read latency.
// Recordings are placed on the shared axis by their own start timestamps, which inherit only
// the hardware latch accuracy.
type SyncOptions struct {
	Baseline     float64       // Device time written before waiting for edges
	SettleDelay  time.Duration // Wait after resetting the device time
	FutureOffset float64       // Absolute device time armed for the edge after the observed one
	EdgeTimeout  time.Duration // Maximum wait for each reference edge
	PollInterval time.Duration // Interval between last-edge reads
}

// DefaultSyncOptions returns options matching a 1 PPS reference
func DefaultSyncOptions() SyncOptions {
	return SyncOptions{
		SettleDelay:  DefaultSettleDelay,
		EdgeTimeout:  DefaultEdgeTimeout,
		PollInterval: DefaultPollInterval,
	}
}

func (o *SyncOptions) Validate() error {
	if math.IsNaN(o.Baseline) || math.IsInf(o.Baseline, 0) {
		return errors.New("sdr.SyncOptions: baseline must be finite")
	}
	if math.IsNaN(o.FutureOffset) || math.IsInf(o.FutureOffset, 0) {
		return errors.New("sdr.SyncOptions: future offset must be finite")
	}
	if o.SettleDelay < 0 {
		return fmt.Errorf("sdr.SyncOptions: settle delay cannot be negative: %s given", o.SettleDelay)
	}
	if o.EdgeTimeout <= 0 {
		return fmt.Errorf("sdr.SyncOptions: edge timeout must be positive: %s given", o.EdgeTimeout)
	}
	if o.PollInterval <= 0 || o.PollInterval >= o.EdgeTimeout {
		return fmt.Errorf("sdr.SyncOptions: poll interval must be positive and shorter than the edge timeout: %s given", o.PollInterval)
	}
	return nil
}

// Synchronize binds the device clock to the shared reference edge and returns the anchor
// timestamp, the device time at which capture can begin.
//
// The clock is armed right after a fresh edge is observed, so the arm command always lands
// between two edges and takes effect at the following one. A second wait confirms the
// armed value is in effect before the anchor is read.
func (s *Session) Synchronize(ctx context.Context, opts SyncOptions) (anchor float64, err error) {
	if err = opts.Validate(); err != nil {
		return 0, err
	}

	started := s.clock.Now()
	defer func() {
		if err == nil {
			s.metrics.RecordLatency("synchronize", s.clock.Now().Sub(started).Seconds())
		}
	}()

	if err = s.rx.SetTimeNow(opts.Baseline); err != nil {
		return 0, fmt.Errorf("resetting device time: %w", err)
	}

	if err = s.clock.Sleep(ctx, opts.SettleDelay); err != nil {
		return 0, fmt.Errorf("waiting for device to settle: %w", err)
	}

	t0, err := s.rx.TimeLastPPS()
	if err != nil {
		return 0, fmt.Errorf("reading last reference edge: %w", err)
	}

	s.logger.Debug("waiting for reference edge", slog.Float64("lastEdge", t0))

	t1, err := s.waitForEdge(ctx, "waiting for a fresh reference edge", opts.EdgeTimeout, opts.PollInterval,
		func(t float64) bool { return t > t0 })
	if err != nil {
		return 0, err
	}

	if err = s.rx.SetTimeNextPPS(opts.FutureOffset); err != nil {
		return 0, fmt.Errorf("arming device time: %w", err)
	}

	armedAt, err := s.rx.TimeLastPPS()
	if err != nil {
		return 0, fmt.Errorf("reading last reference edge: %w", err)
	}

	s.logger.Debug("device time armed",
		slog.Float64("edge", t1),
		slog.Float64("futureOffset", opts.FutureOffset))

	// an armed value equal to the current latch only shows as the device time stepping back
	var nowErr error
	prevNow := armedAt
	latched, err := s.waitForEdge(ctx, "confirming the armed device time", opts.EdgeTimeout, opts.PollInterval,
		func(t float64) bool {
			if t != armedAt {
				return true
			}
			now, err := s.rx.TimeNow()
			if err != nil {
				nowErr = err
				return true
			}
			stepped := now < prevNow
			prevNow = now
			return stepped
		})
	if err != nil {
		return 0, err
	}
	if nowErr != nil {
		return 0, fmt.Errorf("reading device time: %w", nowErr)
	}

	if math.Abs(latched-opts.FutureOffset) > armTolerance {
		s.logger.Warn("armed time not observed at reference edge",
			slog.Float64("latched", latched),
			slog.Float64("futureOffset", opts.FutureOffset))
	}

	if anchor, err = s.rx.TimeNow(); err != nil {
		return 0, fmt.Errorf("reading device time: %w", err)
	}

	s.setAnchor(anchor)
	s.logger.Info("device time synchronized",
		slog.Float64("edge", latched),
		slog.Float64("anchor", anchor))

	return anchor, nil
}

// waitForEdge polls the last reference edge until observed accepts it or timeout elapses
func (s *Session) waitForEdge(ctx context.Context, stage string, timeout, poll time.Duration, observed func(float64) bool) (float64, error) {
	deadline := s.clock.Now().Add(timeout)

	for {
		t, err := s.rx.TimeLastPPS()
		if err != nil {
			return 0, fmt.Errorf("reading last reference edge: %w", err)
		}

		if observed(t) {
			return t, nil
		}

		if !s.clock.Now().Before(deadline) {
			return 0, &SyncTimeoutError{Stage: stage, Timeout: timeout, LastEdge: t}
		}

		if err = s.clock.Sleep(ctx, poll); err != nil {
			return 0, fmt.Errorf("%s: %w", stage, err)
		}
	}
}
