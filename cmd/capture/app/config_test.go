package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const twoReceivers = `
capture:
  numSamples: 5000
receivers:
  - name: rx-a
    receiver:
      sampleRate: 20000000
  - name: rx-b
    sim:
      propagationDelay: 1.0e-6
storage:
  catalog: none
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "capture.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNewConfigFromCLI_File(t *testing.T) {
	c, err := NewConfigFromCLI([]string{"-c", writeConfig(t, twoReceivers)})
	if err != nil {
		t.Fatalf("NewConfigFromCLI() error = %v", err)
	}

	if len(c.Receivers) != 2 {
		t.Fatalf("len(Receivers) = %d, want 2", len(c.Receivers))
	}
	if got := c.Receivers[0].Receiver.SampleRate; got != 20e6 {
		t.Errorf("rx-a sample rate = %g, want 20e6", got)
	}
	if got := c.Receivers[1].Receiver.SampleRate; got != 40e6 {
		t.Errorf("rx-b sample rate = %g, want default 40e6", got)
	}
	if got := c.Receivers[1].Sim.Serial; got != "rx-b" {
		t.Errorf("rx-b serial = %q, want station name", got)
	}
	if c.Storage.Catalog != CatalogDisabled {
		t.Errorf("Catalog = %q, want %q", c.Storage.Catalog, CatalogDisabled)
	}
	if c.Storage.DataDirectory != "data" || c.Settings.LogLevel != "info" {
		t.Errorf("defaults not applied: %+v %+v", c.Storage, c.Settings)
	}
	if c.Sync.Attempts != 1 || c.Sync.EdgeTimeout != 2*time.Second || c.Sync.PollInterval != time.Millisecond {
		t.Errorf("sync defaults not applied: %+v", c.Sync)
	}
	if c.Capture.MaxConsecutiveOverflows == nil || *c.Capture.MaxConsecutiveOverflows != 1000 {
		t.Errorf("MaxConsecutiveOverflows = %v, want 1000", c.Capture.MaxConsecutiveOverflows)
	}
}

func TestNewConfigFromCLI_Overrides(t *testing.T) {
	c, err := NewConfigFromCLI([]string{
		"-c", writeConfig(t, twoReceivers),
		"-rate", "5e6",
		"-freq", "915e6",
		"-gain", "12",
		"-duration", "2ms",
		"-log-level", "debug",
	})
	if err != nil {
		t.Fatalf("NewConfigFromCLI() error = %v", err)
	}

	for _, r := range c.Receivers {
		if r.Receiver.SampleRate != 5e6 || r.Receiver.CenterFrequency != 915e6 || r.Receiver.Gain != 12 {
			t.Errorf("%s: overrides not applied: %+v", r.Name, r.Receiver)
		}
	}
	if c.Capture.NumSamples != 0 || c.Capture.Duration != 2*time.Millisecond {
		t.Errorf("Capture = %+v, want duration replacing the sample count", c.Capture)
	}
	if got := c.Capture.Options(5e6).NumSamples; got != 10000 {
		t.Errorf("Options().NumSamples = %d, want 10000", got)
	}
	if c.Settings.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", c.Settings.LogLevel)
	}
}

func TestNewConfigFromCLI_Default(t *testing.T) {
	c, err := NewConfigFromCLI([]string{"-samples", "1000", "-o", "out.cf32"})
	if err != nil {
		t.Fatalf("NewConfigFromCLI() error = %v", err)
	}

	if len(c.Receivers) != 1 || c.Receivers[0].Name != defaultReceiver {
		t.Fatalf("Receivers = %+v, want the default simulated receiver", c.Receivers)
	}
	if c.Receivers[0].Output != "out.cf32" {
		t.Errorf("Output = %q, want out.cf32", c.Receivers[0].Output)
	}
}

func TestNewConfigFromCLI_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no sample count", nil},
		{"output with two receivers", []string{"-c", writeConfig(t, twoReceivers), "-o", "out.cf32"}},
		{"missing file", []string{"-c", filepath.Join(t.TempDir(), "missing.yaml")}},
		{"unknown flag", []string{"-bogus"}},
		{"bad log level", []string{"-samples", "10", "-log-level", "verbose"}},
		{"bad rate", []string{"-samples", "10", "-rate", "-1"}},
		{"no receivers", []string{"-c", writeConfig(t, "capture:\n  numSamples: 10\n")}},
		{"duplicate receivers", []string{"-c", writeConfig(t, "capture:\n  numSamples: 10\nreceivers:\n  - name: a\n  - name: a\n")}},
		{"both bounds", []string{"-c", writeConfig(t, "capture:\n  numSamples: 10\n  duration: 1ms\nreceivers:\n  - name: a\n")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewConfigFromCLI(tt.args); err == nil {
				t.Error("NewConfigFromCLI() succeeded, want error")
			}
		})
	}
}
