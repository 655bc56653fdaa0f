package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/JYK2001/tdoa-gpsdo/internal/align"
	"github.com/JYK2001/tdoa-gpsdo/internal/iq"
	"github.com/JYK2001/tdoa-gpsdo/internal/storage"
)

// Output describes one aligned recording
type Output struct {
	Input    string
	Path     string
	SourceID string
	Dropped  int
	Samples  int
}

type input struct {
	path       string
	recording  *iq.Recording
	descriptor *storage.Descriptor // nil for raw files
}

// Run aligns the input recordings and writes them to the output directory. Recordings of a
// cataloged capture run are added to the inputs when config.RunID is set.
func Run(ctx context.Context, config *Config, out io.Writer, logger *slog.Logger) error {
	if config.RunID != "" {
		paths, err := runInputs(ctx, config.Catalog, config.RunID)
		if err != nil {
			return err
		}
		logger.Info("recordings found in catalog",
			slog.String("run", config.RunID),
			slog.Int("recordings", len(paths)))

		resolved := *config
		resolved.Inputs = append(slices.Clone(config.Inputs), paths...)
		config = &resolved
	}

	if err := config.checkInputs(); err != nil {
		return err
	}

	if err := os.MkdirAll(config.OutputDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	outputs, origin, err := alignFiles(ctx, config, logger)
	if err != nil {
		return err
	}

	return report(out, origin, outputs)
}

func alignFiles(ctx context.Context, config *Config, logger *slog.Logger) ([]Output, float64, error) {
	inputs, err := loadInputs(config)
	if err != nil {
		return nil, 0, err
	}

	paths, err := outputPaths(config.OutputDir, inputs)
	if err != nil {
		return nil, 0, err
	}

	recordings := make([]*iq.Recording, len(inputs))
	declared := config.Timestamps
	if declared == nil {
		declared = make([]float64, len(inputs))
	}
	for i, in := range inputs {
		recordings[i] = in.recording
		if config.Timestamps == nil {
			declared[i] = in.recording.StartTimestamp
		}
	}

	set, err := align.NewAlignmentSet(recordings, declared)
	if err != nil {
		return nil, 0, err
	}

	offsets, err := set.Offsets()
	if err != nil {
		return nil, 0, err
	}

	aligned, err := align.Align(set)
	if err != nil {
		return nil, 0, err
	}

	origin := set.Origin()
	logger.Info("recordings aligned",
		slog.Float64("origin", origin),
		slog.Int("recordings", len(aligned)))

	outputs := make([]Output, len(aligned))
	for i, rec := range aligned {
		if err = ctx.Err(); err != nil {
			return nil, 0, err
		}

		in, path := inputs[i], paths[i]

		var options []storage.DescriptorOption
		if in.descriptor != nil {
			options = in.descriptor.Options()
		}
		if _, err = storage.WriteRecording(path, rec, options...); err != nil {
			return nil, 0, fmt.Errorf("writing aligned recording: %w", err)
		}

		outputs[i] = Output{
			Input:    in.path,
			Path:     path,
			SourceID: rec.SourceID,
			Dropped:  offsets[i],
			Samples:  rec.Len(),
		}

		logger.Debug("aligned recording written",
			slog.String("path", path),
			slog.Int("dropped", offsets[i]),
			slog.String("size", humanize.IBytes(rec.SizeBytes())))
	}

	return outputs, origin, nil
}

// runInputs lists the recordings cataloged for the capture run whose identifier starts with runID
func runInputs(ctx context.Context, catalogPath, runID string) (paths []string, err error) {
	if _, err = os.Stat(catalogPath); err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}

	catalog := storage.NewSqliteStore(catalogPath)
	defer func() {
		if cErr := catalog.Close(); cErr != nil {
			err = errors.Join(err, fmt.Errorf("closing catalog: %w", cErr))
		}
	}()

	sessions, err := catalog.Sessions(ctx)
	if err != nil {
		return nil, err
	}

	var matched []*storage.Session
	runs := make(map[string]struct{})
	for _, sess := range sessions {
		if strings.HasPrefix(sess.RunID, runID) {
			matched = append(matched, sess)
			runs[sess.RunID] = struct{}{}
		}
	}

	switch {
	case len(runs) == 0:
		return nil, fmt.Errorf("run %s not found in %s", runID, catalogPath)
	case len(runs) > 1:
		return nil, fmt.Errorf("run %s is ambiguous: %d runs match", runID, len(runs))
	}

	for _, sess := range matched {
		captures, err := catalog.Captures(ctx, storage.WithSession(sess.ID))
		if err != nil {
			return nil, err
		}
		for _, c := range captures {
			paths = append(paths, c.Path)
		}
	}

	if len(paths) == 0 {
		return nil, fmt.Errorf("run %s has no cataloged recordings", runID)
	}
	return paths, nil
}

func loadInputs(config *Config) ([]input, error) {
	inputs := make([]input, len(config.Inputs))

	for i, path := range config.Inputs {
		inputs[i].path = path

		if storage.HasSidecar(path) {
			rec, d, err := storage.ReadRecording(path)
			if err != nil {
				return nil, err
			}
			if config.SampleRate > 0 && config.SampleRate != rec.SampleRate {
				return nil, fmt.Errorf("%s: sample rate %g differs from the given %g", path, rec.SampleRate, config.SampleRate)
			}
			inputs[i].recording, inputs[i].descriptor = rec, d
			continue
		}

		if config.Timestamps == nil || config.SampleRate <= 0 {
			return nil, fmt.Errorf("%s: %w: give -t and -fs for raw files", path, storage.ErrNoSidecar)
		}

		var sourceID string
		if config.SourceIDs != nil {
			sourceID = config.SourceIDs[i]
		}
		rec, err := storage.ReadRawRecording(path, config.Timestamps[i], config.SampleRate, sourceID)
		if err != nil {
			return nil, err
		}
		inputs[i].recording = rec
	}

	return inputs, nil
}

// outputPaths places every output in dir under its input's file name. It fails when an output
// would replace an input or another output.
func outputPaths(dir string, inputs []input) ([]string, error) {
	paths := make([]string, len(inputs))
	seen := make(map[string]string, len(inputs))

	for i, in := range inputs {
		path := filepath.Join(dir, filepath.Base(in.path))
		for _, other := range inputs {
			if samePath(path, other.path) {
				return nil, fmt.Errorf("output %s would overwrite input %s", path, other.path)
			}
		}

		key := absPath(path)
		if prev, ok := seen[key]; ok {
			return nil, fmt.Errorf("inputs %s and %s would both be written to %s", prev, in.path, path)
		}
		seen[key] = in.path
		paths[i] = path
	}

	return paths, nil
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}

func samePath(a, b string) bool {
	return absPath(a) == absPath(b)
}

func report(out io.Writer, origin float64, outputs []Output) error {
	if _, err := fmt.Fprintf(out, "Common start: %.9f s\n\n", origin); err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, err := fmt.Fprintln(w, "SOURCE\tDROPPED\tSAMPLES\tOUTPUT")
	for _, o := range outputs {
		_, wErr := fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", o.SourceID, humanize.Comma(int64(o.Dropped)), humanize.Comma(int64(o.Samples)), o.Path)
		err = errors.Join(err, wErr)
	}
	return errors.Join(err, w.Flush())
}
