package sdr_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/JYK2001/tdoa-gpsdo/internal/sdr"
	"github.com/JYK2001/tdoa-gpsdo/internal/sdr/sim"
)

func jitterOptions(count int) sdr.JitterOptions {
	opts := sdr.DefaultJitterOptions()
	opts.Count = count
	opts.PollInterval = time.Millisecond
	return opts
}

func TestMeasureJitter_CleanReference(t *testing.T) {
	cfg := sim.DefaultConfig("rx")
	cfg.PPSPhase = 400 * time.Millisecond

	s, _, _ := newSimSession(t, cfg)

	report, err := s.MeasureJitter(context.Background(), jitterOptions(5))
	if err != nil {
		t.Fatalf("MeasureJitter() error = %v", err)
	}

	if len(report.Edges) != 5 {
		t.Fatalf("edges = %d, want 5", len(report.Edges))
	}
	for _, e := range report.Edges {
		if math.Abs(e.Deviation) > 1e-3 {
			t.Errorf("edge %d deviation = %v ns, want 0", e.Index, e.Deviation)
		}
	}
	if math.Abs(report.PeakToPeak) > 1e-3 {
		t.Errorf("PeakToPeak = %v ns, want 0", report.PeakToPeak)
	}
}

func TestMeasureJitter_NoisyReference(t *testing.T) {
	cfg := sim.DefaultConfig("rx")
	cfg.PPSPhase = 500 * time.Millisecond
	cfg.PPSJitter = 40 * time.Nanosecond

	s, _, _ := newSimSession(t, cfg)

	report, err := s.MeasureJitter(context.Background(), jitterOptions(30))
	if err != nil {
		t.Fatalf("MeasureJitter() error = %v", err)
	}

	if report.PeakToPeak <= 0 {
		t.Errorf("PeakToPeak = %v, want positive", report.PeakToPeak)
	}
	if report.MaxAdvance >= 0 || report.MaxDelay <= 0 {
		t.Errorf("MaxAdvance = %v, MaxDelay = %v, want opposite signs", report.MaxAdvance, report.MaxDelay)
	}
	if report.PeakToPeak != report.MaxDelay-report.MaxAdvance {
		t.Errorf("PeakToPeak = %v, want MaxDelay - MaxAdvance", report.PeakToPeak)
	}
	// interval errors of a jittered edge train are bounded by twice the edge excursion
	if math.Abs(report.MaxAdvance) > 1000 || report.MaxDelay > 1000 {
		t.Errorf("deviations out of range: %+v", report)
	}
	if math.Abs(report.Average) > 40 {
		t.Errorf("Average = %v ns", report.Average)
	}
}

func TestWaitReferenceLock(t *testing.T) {
	tests := []struct {
		name      string
		lockAfter int
		locked    bool
		source    sdr.ReferenceSource
	}{
		{"locks on third read", 2, true, sdr.SourceExternal},
		{"never locks", -1, false, sdr.SourceInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := sim.DefaultConfig("rx")
			cfg.LockAfter = tt.lockAfter

			clock := sim.NewVirtualClock(epoch)
			rx, err := sim.New(cfg, clock)
			if err != nil {
				t.Fatal(err)
			}

			rc := receiverConfig()
			rc.ClockSource, rc.TimeSource = sdr.SourceExternal, sdr.SourceExternal

			s, err := sdr.NewSession(rx, rc, sdr.WithClock(clock))
			if err != nil {
				t.Fatal(err)
			}

			locked, err := s.WaitReferenceLock(context.Background(), 5, time.Second)
			if err != nil {
				t.Fatalf("WaitReferenceLock() error = %v", err)
			}
			if locked != tt.locked {
				t.Errorf("locked = %v, want %v", locked, tt.locked)
			}
			if c := s.Config(); c.ClockSource != tt.source || c.TimeSource != tt.source {
				t.Errorf("sources = %s/%s, want %s", c.ClockSource, c.TimeSource, tt.source)
			}
		})
	}
}

func TestWaitReferenceLock_NoSensor(t *testing.T) {
	s := newFakeSession(t, &fakeReceiver{})

	locked, err := s.WaitReferenceLock(context.Background(), 1, time.Millisecond)
	if err != nil || !locked {
		t.Errorf("WaitReferenceLock() = %v, %v, want true", locked, err)
	}
}
