package storage

import (
	"time"
)

// Session is one capture run of one receiver
type Session struct {
	ID              int64
	StartTime       time.Time
	RunID           string
	ReceiverID      string
	Backend         string
	AnchorTimestamp *float64
	Config          *string
}

// Capture catalogs a persisted recording
type Capture struct {
	ID              int64
	SessionID       int64
	Path            string
	SourceID        string
	StartTimestamp  float64
	SampleRate      float64
	CenterFrequency float64
	Gain            *float64
	NumSamples      int64
	Overflows       int64
	CreatedAt       time.Time
}

// Measurement is a stored delay estimate between two recordings
type Measurement struct {
	ID            int64
	FileA         string
	FileB         string
	SampleRate    float64
	NumSamples    int64
	Method        string
	PeakLag       int64
	DelaySeconds  float64
	PeakRatio     float64
	LowConfidence bool
	CreatedAt     time.Time
}
