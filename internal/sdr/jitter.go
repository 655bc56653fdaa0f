package sdr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	DefaultJitterEdges        = 100
	DefaultLockAttempts       = 10
	DefaultLockInterval       = time.Second
	DefaultJitterPollInterval = 50 * time.Microsecond
)

// JitterOptions controls a reference edge stability measurement
type JitterOptions struct {
	Count         int           // Number of edge intervals to measure
	NominalPeriod float64       // Expected edge period in seconds
	EdgeTimeout   time.Duration // Maximum wait for each edge
	PollInterval  time.Duration // Interval between last-edge reads
}

// DefaultJitterOptions returns options for a 1 PPS reference
func DefaultJitterOptions() JitterOptions {
	return JitterOptions{
		Count:         DefaultJitterEdges,
		NominalPeriod: 1.0,
		EdgeTimeout:   DefaultEdgeTimeout,
		PollInterval:  DefaultJitterPollInterval,
	}
}

func (o *JitterOptions) Validate() error {
	if o.Count <= 0 {
		return fmt.Errorf("sdr.JitterOptions: edge count must be positive: %d given", o.Count)
	}
	if o.NominalPeriod <= 0 {
		return fmt.Errorf("sdr.JitterOptions: nominal period must be positive: %g given", o.NominalPeriod)
	}
	if o.EdgeTimeout <= 0 || o.PollInterval <= 0 || o.PollInterval >= o.EdgeTimeout {
		return errors.New("sdr.JitterOptions: poll interval must be positive and shorter than the edge timeout")
	}
	return nil
}

// JitterEdge is one observed reference edge
type JitterEdge struct {
	Index     int
	HostTime  time.Time // Host clock when the edge was observed
	EdgeTime  float64   // Device time latched at the edge
	Deviation float64   // Interval error against the nominal period, in nanoseconds
}

// JitterReport summarizes edge interval errors, all in nanoseconds
type JitterReport struct {
	ClockSource ReferenceSource
	TimeSource  ReferenceSource
	Edges       []JitterEdge

	Average    float64
	PeakToPeak float64
	MaxAdvance float64 // Most negative deviation
	MaxDelay   float64 // Most positive deviation
}

// WaitReferenceLock polls the receiver lock sensor. When the receiver never reports a lock,
// the session falls back to internal clock and time sources and false is returned.
// Receivers without a lock sensor are assumed locked.
func (s *Session) WaitReferenceLock(ctx context.Context, attempts int, interval time.Duration) (bool, error) {
	sensor, ok := s.rx.(LockSensor)
	if !ok {
		s.logger.Debug("receiver has no reference lock sensor")
		return true, nil
	}

	for i := 0; i < attempts; i++ {
		locked, err := sensor.ReferenceLocked()
		if err != nil {
			return false, fmt.Errorf("reading reference lock sensor: %w", err)
		}
		if locked {
			s.logger.Info("reference locked", slog.Int("attempt", i+1))
			return true, nil
		}

		if i < attempts-1 {
			if err = s.clock.Sleep(ctx, interval); err != nil {
				return false, err
			}
		}
	}

	s.logger.Warn("external reference not locked, switching to internal clock and time sources")

	if err := s.rx.SetClockSource(SourceInternal); err != nil {
		return false, fmt.Errorf("setting clock source: %w", err)
	}
	if err := s.rx.SetTimeSource(SourceInternal); err != nil {
		return false, fmt.Errorf("setting time source: %w", err)
	}

	s.config.ClockSource = SourceInternal
	s.config.TimeSource = SourceInternal

	return false, nil
}

// MeasureJitter observes opts.Count consecutive reference edges and reports how far each
// interval deviates from the nominal period.
func (s *Session) MeasureJitter(ctx context.Context, opts JitterOptions) (*JitterReport, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	last, err := s.rx.TimeLastPPS()
	if err != nil {
		return nil, fmt.Errorf("reading last reference edge: %w", err)
	}

	// the first interval starts at a fresh edge, the latched value may be arbitrarily old
	prev, err := s.waitForEdge(ctx, "waiting for a first reference edge", opts.EdgeTimeout, opts.PollInterval,
		func(t float64) bool { return t != last })
	if err != nil {
		return nil, err
	}

	report := JitterReport{
		ClockSource: s.config.ClockSource,
		TimeSource:  s.config.TimeSource,
		Edges:       make([]JitterEdge, 0, opts.Count),
	}
	deviations := make([]float64, 0, opts.Count)

	for i := 0; i < opts.Count; i++ {
		curr, err := s.waitForEdge(ctx, "measuring reference edge jitter", opts.EdgeTimeout, opts.PollInterval,
			func(t float64) bool { return t != prev })
		if err != nil {
			return nil, err
		}

		deviation := (curr - prev - opts.NominalPeriod) * 1e9
		report.Edges = append(report.Edges, JitterEdge{
			Index:     i,
			HostTime:  s.clock.Now(),
			EdgeTime:  curr,
			Deviation: deviation,
		})
		deviations = append(deviations, deviation)
		prev = curr

		if (i+1)%10 == 0 {
			s.logger.Info("measuring reference edges", slog.Int("done", i+1), slog.Int("total", opts.Count))
		}
	}

	report.Average = stat.Mean(deviations, nil)
	report.MaxAdvance = floats.Min(deviations)
	report.MaxDelay = floats.Max(deviations)
	report.PeakToPeak = report.MaxDelay - report.MaxAdvance

	return &report, nil
}
