package storage

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *SqliteStore {
	t.Helper()

	s := NewSqliteStore(filepath.Join(t.TempDir(), "catalog.db"))
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return s
}

func TestSqliteStore_Sessions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	config := map[string]any{"sampleRate": 40e6}
	id, err := s.CreateSession(ctx, "run-1", "rx-a", "sim", config)
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if _, err = s.CreateSession(ctx, "run-1", "rx-b", "sim", nil); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	if err = s.SetSessionAnchor(ctx, id, 1.000002); err != nil {
		t.Fatalf("SetSessionAnchor() error = %v", err)
	}
	if err = s.SetSessionAnchor(ctx, 999, 1); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("SetSessionAnchor() unknown session error = %v, want sql.ErrNoRows", err)
	}

	sess, err := s.Session(ctx, id)
	if err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	if sess.ReceiverID != "rx-a" || sess.RunID != "run-1" || sess.Backend != "sim" {
		t.Errorf("Session() = %+v", sess)
	}
	if sess.AnchorTimestamp == nil || *sess.AnchorTimestamp != 1.000002 {
		t.Errorf("AnchorTimestamp = %v, want 1.000002", sess.AnchorTimestamp)
	}
	if sess.Config == nil || *sess.Config != `{"sampleRate":40000000}` {
		t.Errorf("Config = %v", sess.Config)
	}
	if sess.StartTime.IsZero() {
		t.Errorf("StartTime is zero")
	}

	sessions, err := s.Sessions(ctx)
	if err != nil {
		t.Fatalf("Sessions() error = %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("Sessions() = %d, want 2", len(sessions))
	}
	if sessions[1].Config != nil || sessions[1].AnchorTimestamp != nil {
		t.Errorf("second session should have no config and no anchor: %+v", sessions[1])
	}
}

func TestSqliteStore_Captures(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a, err := s.CreateSession(ctx, "run", "rx-a", "sim", nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.CreateSession(ctx, "run", "rx-b", "sim", nil)
	if err != nil {
		t.Fatal(err)
	}

	gain := 30.0
	captures := []*Capture{
		{SessionID: a, Path: "a.cf32", SourceID: "rx-a", StartTimestamp: 2.5, SampleRate: 40e6, NumSamples: 100, Gain: &gain},
		{SessionID: b, Path: "b.cf32", SourceID: "rx-b", StartTimestamp: 2.1, SampleRate: 40e6, NumSamples: 100, Overflows: 3},
		{SessionID: a, Path: "a2.cf32", SourceID: "rx-a", StartTimestamp: 7, SampleRate: 40e6, NumSamples: 50},
	}
	for _, c := range captures {
		if _, err = s.StoreCapture(ctx, c); err != nil {
			t.Fatalf("StoreCapture() error = %v", err)
		}
	}

	if _, err = s.StoreCapture(ctx, &Capture{SessionID: 42, Path: "x", SourceID: "x", SampleRate: 1}); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("StoreCapture() unknown session error = %v, want sql.ErrNoRows", err)
	}

	tests := []struct {
		name  string
		opts  []CaptureFilter
		paths []string
	}{
		{"all", nil, []string{"b.cf32", "a.cf32", "a2.cf32"}},
		{"session", []CaptureFilter{WithSession(a)}, []string{"a.cf32", "a2.cf32"}},
		{"source", []CaptureFilter{WithSource("rx-b")}, []string{"b.cf32"}},
		{"range", []CaptureFilter{WithStartRange(2, 3)}, []string{"b.cf32", "a.cf32"}},
		{"combined", []CaptureFilter{WithSource("rx-a"), WithStartRange(5, 10)}, []string{"a2.cf32"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Captures(ctx, tt.opts...)
			if err != nil {
				t.Fatalf("Captures() error = %v", err)
			}
			if len(got) != len(tt.paths) {
				t.Fatalf("Captures() = %d rows, want %d", len(got), len(tt.paths))
			}
			for i, c := range got {
				if c.Path != tt.paths[i] {
					t.Errorf("row %d path = %s, want %s", i, c.Path, tt.paths[i])
				}
			}
		})
	}

	got, err := s.Captures(ctx, WithSource("rx-b"))
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Overflows != 3 || got[0].Gain != nil {
		t.Errorf("capture = %+v, want 3 overflows and no gain", got[0])
	}
}

func TestSqliteStore_Measurements(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	m := &Measurement{
		FileA:         "a.cf32",
		FileB:         "b.cf32",
		SampleRate:    40e6,
		NumSamples:    1200,
		Method:        "fft",
		PeakLag:       37,
		DelaySeconds:  9.25e-7,
		PeakRatio:     120.5,
		LowConfidence: false,
	}
	if _, err := s.StoreMeasurement(ctx, m); err != nil {
		t.Fatalf("StoreMeasurement() error = %v", err)
	}
	if _, err := s.StoreMeasurement(ctx, &Measurement{FileA: "c", FileB: "d", SampleRate: 1, Method: "direct", PeakRatio: 2, LowConfidence: true}); err != nil {
		t.Fatalf("StoreMeasurement() error = %v", err)
	}

	got, err := s.Measurements(ctx)
	if err != nil {
		t.Fatalf("Measurements() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Measurements() = %d, want 2", len(got))
	}
	if got[0].PeakLag != 37 || got[0].DelaySeconds != 9.25e-7 || got[0].LowConfidence {
		t.Errorf("first measurement = %+v", got[0])
	}
	if !got[1].LowConfidence || got[1].Method != "direct" {
		t.Errorf("second measurement = %+v", got[1])
	}
}
