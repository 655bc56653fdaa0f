package sdr_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/JYK2001/tdoa-gpsdo/internal/sdr"
	"github.com/JYK2001/tdoa-gpsdo/internal/sdr/sim"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newSimSession(t *testing.T, cfg sim.Config) (*sdr.Session, *sim.Receiver, *sim.VirtualClock) {
	t.Helper()

	clock := sim.NewVirtualClock(epoch)
	rx, err := sim.New(cfg, clock)
	if err != nil {
		t.Fatalf("sim.New() error = %v", err)
	}

	s, err := sdr.NewSession(rx, receiverConfig(), sdr.WithClock(clock))
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	return s, rx, clock
}

func syncOptions(futureOffset float64) sdr.SyncOptions {
	opts := sdr.DefaultSyncOptions()
	opts.FutureOffset = futureOffset
	return opts
}

func TestSynchronize_Anchor(t *testing.T) {
	s, rx, clock := newSimSession(t, sim.DefaultConfig("rx"))

	anchor, err := s.Synchronize(context.Background(), syncOptions(5))
	if err != nil {
		t.Fatalf("Synchronize() error = %v", err)
	}

	// armed at the edge following the fresh one observed after settling
	if anchor != 5 {
		t.Errorf("anchor = %v, want 5", anchor)
	}
	if got, ok := s.Anchor(); !ok || got != anchor {
		t.Errorf("Anchor() = %v, %v", got, ok)
	}
	if elapsed := clock.Now().Sub(epoch); elapsed != 3*time.Second {
		t.Errorf("handshake took %s of reference time, want 3s", elapsed)
	}

	last, err := rx.TimeLastPPS()
	if err != nil {
		t.Fatal(err)
	}
	if last != 5 {
		t.Errorf("TimeLastPPS() = %v, want the armed value", last)
	}
}

func TestSynchronize_OffsetEqualsObservedEdge(t *testing.T) {
	s, rx, clock := newSimSession(t, sim.DefaultConfig("rx"))

	// the fresh edge observed after settling latches 2, the armed edge latches 2 again
	anchor, err := s.Synchronize(context.Background(), syncOptions(2))
	if err != nil {
		t.Fatalf("Synchronize() error = %v", err)
	}

	if anchor != 2 {
		t.Errorf("anchor = %v, want 2", anchor)
	}
	if elapsed := clock.Now().Sub(epoch); elapsed != 3*time.Second {
		t.Errorf("handshake took %s of reference time, want 3s", elapsed)
	}

	clock.Advance(time.Second)
	last, err := rx.TimeLastPPS()
	if err != nil {
		t.Fatal(err)
	}
	if last != 3 {
		t.Errorf("TimeLastPPS() one period later = %v, want 3", last)
	}
}

func TestSynchronize_EdgeSequences(t *testing.T) {
	tests := []struct {
		name   string
		phase  time.Duration
		jitter time.Duration
		seed   int64
		offset float64
	}{
		{"aligned edges", 0, 0, 1, 10},
		{"late phase", 730 * time.Millisecond, 0, 1, 10},
		{"just before settle end", 999 * time.Millisecond, 0, 1, 0},
		{"jitter", 250 * time.Millisecond, 30 * time.Nanosecond, 3, 100},
		{"jitter seed", 500 * time.Millisecond, 50 * time.Millisecond, 9, 1},
		{"offset below baseline", 100 * time.Millisecond, 0, 1, -20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := sim.DefaultConfig("rx")
			cfg.PPSPhase = tt.phase
			cfg.PPSJitter = tt.jitter
			cfg.Seed = tt.seed

			s, rx, clock := newSimSession(t, cfg)
			opts := syncOptions(tt.offset)

			anchor, err := s.Synchronize(context.Background(), opts)
			if err != nil {
				t.Fatalf("Synchronize() error = %v", err)
			}

			edge, err := rx.TimeLastPPS()
			if err != nil {
				t.Fatal(err)
			}

			if edge != tt.offset {
				t.Errorf("latched edge = %v, want armed value %v", edge, tt.offset)
			}
			if anchor < edge {
				t.Errorf("anchor %v precedes the armed edge %v", anchor, edge)
			}
			if anchor-edge > opts.PollInterval.Seconds()+1e-9 {
				t.Errorf("anchor %v lags the armed edge %v by more than one poll interval", anchor, edge)
			}

			// device time tracks reference time from the armed edge on
			clock.Advance(1500 * time.Millisecond)
			now, err := rx.TimeNow()
			if err != nil {
				t.Fatal(err)
			}
			if d := now - anchor; math.Abs(d-1.5) > 1e-9 {
				t.Errorf("device time advanced %v, want 1.5", d)
			}
		})
	}
}

func TestSynchronize_Timeout(t *testing.T) {
	cfg := sim.DefaultConfig("rx")
	cfg.PPSPeriod = 10 * time.Second

	s, _, _ := newSimSession(t, cfg)

	_, err := s.Synchronize(context.Background(), syncOptions(1))

	var timeout *sdr.SyncTimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("Synchronize() error = %v, want *SyncTimeoutError", err)
	}
	if timeout.Timeout != sdr.DefaultEdgeTimeout {
		t.Errorf("Timeout = %s", timeout.Timeout)
	}
	if _, ok := s.Anchor(); ok {
		t.Errorf("session reports an anchor after a failed handshake")
	}
}

func TestSynchronize_Cancelled(t *testing.T) {
	s, _, _ := newSimSession(t, sim.DefaultConfig("rx"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Synchronize(ctx, syncOptions(1)); !errors.Is(err, context.Canceled) {
		t.Errorf("Synchronize() error = %v, want context.Canceled", err)
	}
}

func TestSyncOptions_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(o *sdr.SyncOptions)
	}{
		{"NaN offset", func(o *sdr.SyncOptions) { o.FutureOffset = math.NaN() }},
		{"infinite baseline", func(o *sdr.SyncOptions) { o.Baseline = math.Inf(1) }},
		{"negative settle", func(o *sdr.SyncOptions) { o.SettleDelay = -1 }},
		{"no timeout", func(o *sdr.SyncOptions) { o.EdgeTimeout = 0 }},
		{"poll longer than timeout", func(o *sdr.SyncOptions) { o.PollInterval = 3 * time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := sdr.DefaultSyncOptions()
			tt.mutate(&opts)
			if err := opts.Validate(); err == nil {
				t.Errorf("Validate() expected error")
			}
		})
	}
}
