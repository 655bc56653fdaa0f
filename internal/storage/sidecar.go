package storage

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// SidecarExt is appended to a sample file path to name its descriptor
const SidecarExt = ".yaml"

// Descriptor is the sidecar record stored next to every sample file. The sample file has no
// header, so the descriptor is the only place its timing and rate are kept.
type Descriptor struct {
	Format          string    `yaml:"format"`
	SampleCount     int       `yaml:"sampleCount"`
	StartTimestamp  float64   `yaml:"startTimestamp"`
	SampleRate      float64   `yaml:"sampleRate"`
	SourceID        string    `yaml:"sourceID"`
	CenterFrequency float64   `yaml:"centerFrequency,omitempty"`
	Gain            *float64  `yaml:"gain,omitempty"`
	AnchorTimestamp *float64  `yaml:"anchorTimestamp,omitempty"`
	RunID           string    `yaml:"runID,omitempty"`
	CreatedAt       time.Time `yaml:"createdAt"`
}

// SidecarPath returns the descriptor path of a sample file
func SidecarPath(path string) string {
	return path + SidecarExt
}

func (d *Descriptor) Validate() error {
	if d.Format != FormatCF32LE {
		return fmt.Errorf("storage.Descriptor: unsupported format '%s'", d.Format)
	}
	if d.SampleCount < 0 {
		return fmt.Errorf("storage.Descriptor: sample count cannot be negative: %d given", d.SampleCount)
	}
	if math.IsNaN(d.StartTimestamp) || math.IsInf(d.StartTimestamp, 0) {
		return errors.New("storage.Descriptor: start timestamp must be finite")
	}
	if math.IsNaN(d.SampleRate) || math.IsInf(d.SampleRate, 0) || d.SampleRate <= 0 {
		return fmt.Errorf("storage.Descriptor: sample rate must be positive: %g given", d.SampleRate)
	}
	if d.SourceID == "" {
		return errors.New("storage.Descriptor: source ID is required")
	}
	return nil
}

func writeDescriptor(path string, d *Descriptor) error {
	p, err := yaml.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshaling descriptor: %w", err)
	}
	return writeFileAtomic(path, func(f *os.File) error {
		_, err := f.Write(p)
		return err
	})
}

func readDescriptor(path string) (*Descriptor, error) {
	p, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var d Descriptor
	if err = yaml.Unmarshal(p, &d); err != nil {
		return nil, fmt.Errorf("parsing descriptor %s: %w", path, err)
	}
	if err = d.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &d, nil
}
