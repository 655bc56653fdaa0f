package iq

import (
	"time"
)

// Recording is a timestamped sequence of complex baseband samples captured by one receiver.
// A Recording is immutable once its capture session ends; operations that derive new sample
// sequences (alignment, truncation) return new Recording values.
type Recording struct {
	Samples        []complex64 `json:"-"`              // Interleaved I/Q samples in arrival order
	StartTimestamp float64     `json:"startTimestamp"` // Absolute device time of the first sample, in seconds
	SampleRate     float64     `json:"sampleRate"`     // Samples per second
	SourceID       string      `json:"sourceID"`       // Receiver the samples came from
}

// Len returns the number of samples in the recording.
func (r *Recording) Len() int {
	return len(r.Samples)
}

// Duration returns the time span covered by the samples.
func (r *Recording) Duration() time.Duration {
	if r.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(r.Samples)) / r.SampleRate * float64(time.Second))
}

// EndTimestamp returns the absolute device time just past the last sample.
func (r *Recording) EndTimestamp() float64 {
	if r.SampleRate <= 0 {
		return r.StartTimestamp
	}
	return r.StartTimestamp + float64(len(r.Samples))/r.SampleRate
}

// SizeBytes is the on-disk size of the samples in the interleaved float32 layout.
func (r *Recording) SizeBytes() uint64 {
	return uint64(len(r.Samples)) * 8
}
