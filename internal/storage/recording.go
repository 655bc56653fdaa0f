package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/JYK2001/tdoa-gpsdo/internal/iq"
)

// ErrNoSidecar is returned when a sample file has no descriptor next to it
var ErrNoSidecar = errors.New("recording has no sidecar descriptor")

// DescriptorOption adds optional metadata to a recording descriptor
type DescriptorOption func(d *Descriptor)

func WithCenterFrequency(freq float64) DescriptorOption {
	return func(d *Descriptor) {
		d.CenterFrequency = freq
	}
}

func WithGain(gain float64) DescriptorOption {
	return func(d *Descriptor) {
		d.Gain = &gain
	}
}

// WithAnchor records the device time returned by the synchronization handshake
func WithAnchor(anchor float64) DescriptorOption {
	return func(d *Descriptor) {
		d.AnchorTimestamp = &anchor
	}
}

func WithRunID(id string) DescriptorOption {
	return func(d *Descriptor) {
		d.RunID = id
	}
}

// Options returns the optional metadata of d, for carrying it over to a derived recording
func (d *Descriptor) Options() []DescriptorOption {
	var options []DescriptorOption
	if d.CenterFrequency != 0 {
		options = append(options, WithCenterFrequency(d.CenterFrequency))
	}
	if d.Gain != nil {
		options = append(options, WithGain(*d.Gain))
	}
	if d.AnchorTimestamp != nil {
		options = append(options, WithAnchor(*d.AnchorTimestamp))
	}
	if d.RunID != "" {
		options = append(options, WithRunID(d.RunID))
	}
	return options
}

// WriteRecording writes rec as a raw cf32_le sample file at path and its descriptor at
// SidecarPath(path). Both files are written to temporary names and renamed into place.
func WriteRecording(path string, rec *iq.Recording, options ...DescriptorOption) (*Descriptor, error) {
	if rec == nil {
		return nil, errors.New("recording is nil")
	}

	d := &Descriptor{
		Format:         FormatCF32LE,
		SampleCount:    rec.Len(),
		StartTimestamp: rec.StartTimestamp,
		SampleRate:     rec.SampleRate,
		SourceID:       rec.SourceID,
		CreatedAt:      time.Now().UTC(),
	}
	for _, option := range options {
		option(d)
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	err := writeFileAtomic(path, func(f *os.File) error {
		return WriteSamples(f, rec.Samples)
	})
	if err != nil {
		return nil, fmt.Errorf("writing samples to %s: %w", path, err)
	}

	if err = writeDescriptor(SidecarPath(path), d); err != nil {
		return nil, fmt.Errorf("writing descriptor for %s: %w", path, err)
	}

	return d, nil
}

// ReadRecording loads a sample file together with its descriptor. The sample count of the
// file must match the descriptor.
func ReadRecording(path string) (*iq.Recording, *Descriptor, error) {
	d, err := readDescriptor(SidecarPath(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("%s: %w", path, ErrNoSidecar)
		}
		return nil, nil, err
	}

	count, err := CountSamples(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	if count != d.SampleCount {
		return nil, nil, fmt.Errorf("%s: descriptor declares %d samples but file holds %d", path, d.SampleCount, count)
	}

	samples, err := readSampleFile(path, count)
	if err != nil {
		return nil, nil, err
	}

	return &iq.Recording{
		Samples:        samples,
		StartTimestamp: d.StartTimestamp,
		SampleRate:     d.SampleRate,
		SourceID:       d.SourceID,
	}, d, nil
}

// ReadRawRecording loads a sample file without a descriptor. Timing and rate are supplied by
// the caller; the source ID defaults to the file name.
func ReadRawRecording(path string, startTimestamp, sampleRate float64, sourceID string) (*iq.Recording, error) {
	count, err := CountSamples(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	samples, err := readSampleFile(path, count)
	if err != nil {
		return nil, err
	}

	if sourceID == "" {
		sourceID = filepath.Base(path)
	}

	return &iq.Recording{
		Samples:        samples,
		StartTimestamp: startTimestamp,
		SampleRate:     sampleRate,
		SourceID:       sourceID,
	}, nil
}

// HasSidecar reports whether a descriptor exists for the sample file
func HasSidecar(path string) bool {
	_, err := os.Stat(SidecarPath(path))
	return err == nil
}

func readSampleFile(path string, count int) (samples []complex64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer closeWithError(f, &err)

	if samples, err = ReadSamples(f, count); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return samples, nil
}

func writeFileAtomic(path string, write func(f *os.File) error) (err error) {
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	if err = write(f); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}

	return os.Rename(tmp, path)
}

// FileStore persists completed recordings to a single path
type FileStore struct {
	path   string
	logger *slog.Logger

	mu      sync.Mutex
	options []DescriptorOption
	saved   *Descriptor
}

// NewFileStore returns a store writing to path
func NewFileStore(path string, logger *slog.Logger, options ...DescriptorOption) *FileStore {
	return &FileStore{
		path:    path,
		logger:  logger,
		options: options,
	}
}

// Path returns the sample file path
func (s *FileStore) Path() string {
	return s.path
}

// Annotate adds descriptor metadata that becomes known after the store is created
func (s *FileStore) Annotate(options ...DescriptorOption) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.options = append(s.options, options...)
}

// Descriptor returns the descriptor of the last saved recording, or nil
func (s *FileStore) Descriptor() *Descriptor {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.saved
}

func (s *FileStore) Save(ctx context.Context, rec *iq.Recording) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := WriteRecording(s.path, rec, s.options...)
	if err != nil {
		return err
	}
	s.saved = d

	s.logger.Info("recording saved",
		slog.String("path", s.path),
		slog.String("sidecar", SidecarPath(s.path)),
		slog.Int("samples", d.SampleCount))

	return nil
}
