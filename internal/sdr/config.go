package sdr

import (
	"errors"
	"fmt"
	"math"
)

const (
	MaxSampleRate = 250e6
	MaxGain       = 90
)

// ReceiverConfig is the radio configuration applied before a capture session starts.
// It is copied into the Session and never changed afterwards.
type ReceiverConfig struct {
	SampleRate      float64         `yaml:"sampleRate" json:"sampleRate" default:"40000000"`
	CenterFrequency float64         `yaml:"centerFrequency" json:"centerFrequency" default:"2400000000"`
	Gain            float64         `yaml:"gain" json:"gain" default:"40"`
	ClockSource     ReferenceSource `yaml:"clockSource" json:"clockSource" default:"external"`
	TimeSource      ReferenceSource `yaml:"timeSource" json:"timeSource" default:"external"`
}

func (c *ReceiverConfig) Validate() error {
	if math.IsNaN(c.SampleRate) || c.SampleRate <= 0 || c.SampleRate > MaxSampleRate {
		return fmt.Errorf("sdr.ReceiverConfig: sample rate must be in (0, %g] Hz: %g given", MaxSampleRate, c.SampleRate)
	}

	if math.IsNaN(c.CenterFrequency) || c.CenterFrequency <= 0 {
		return fmt.Errorf("sdr.ReceiverConfig: center frequency must be positive: %g given", c.CenterFrequency)
	}

	if math.IsNaN(c.Gain) || c.Gain < 0 || c.Gain > MaxGain {
		return fmt.Errorf("sdr.ReceiverConfig: gain must be between 0 and %d dB: %g given", MaxGain, c.Gain)
	}

	if !validSource(c.ClockSource) {
		return errors.New("sdr.ReceiverConfig: clock source must be 'internal' or 'external'")
	}

	if !validSource(c.TimeSource) {
		return errors.New("sdr.ReceiverConfig: time source must be 'internal' or 'external'")
	}

	return nil
}

func validSource(s ReferenceSource) bool {
	return s == SourceInternal || s == SourceExternal
}

// Apply configures the receiver. References are selected first so the rate and tuning
// are derived from the final clock.
func (c *ReceiverConfig) Apply(rx Receiver) error {
	if err := c.Validate(); err != nil {
		return err
	}

	steps := []struct {
		msg string
		fn  func() error
	}{
		{"setting clock source", func() error { return rx.SetClockSource(c.ClockSource) }},
		{"setting time source", func() error { return rx.SetTimeSource(c.TimeSource) }},
		{"setting sample rate", func() error { return rx.SetSampleRate(c.SampleRate) }},
		{"setting center frequency", func() error { return rx.SetCenterFrequency(c.CenterFrequency) }},
		{"setting gain", func() error { return rx.SetGain(c.Gain) }},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			return fmt.Errorf("%s: %w", step.msg, err)
		}
	}

	return nil
}
