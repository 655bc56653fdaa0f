package app

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/JYK2001/tdoa-gpsdo/internal/correlate"
	"github.com/JYK2001/tdoa-gpsdo/internal/iq"
	"github.com/JYK2001/tdoa-gpsdo/internal/storage"
	"github.com/JYK2001/tdoa-gpsdo/internal/telemetry"
)

const (
	CorrelationPlot = "correlation.png"
	SignalsPlot     = "signals.png"
)

// Run estimates the delay between the two input recordings and writes the report to out
func Run(ctx context.Context, config *Config, out io.Writer, logger *slog.Logger) error {
	recA, recB, err := loadRecordings(config, logger)
	if err != nil {
		return err
	}

	sampleRate := config.SampleRate
	if sampleRate == 0 {
		sampleRate = recA.SampleRate
	}

	recorder := telemetry.New()

	started := time.Now()
	result, err := correlate.EstimateDelay(recA, recB, sampleRate, correlate.WithMethod(config.Method))
	if err != nil {
		return fmt.Errorf("estimating delay: %w", err)
	}
	recorder.RecordLatency("estimate", time.Since(started).Seconds())
	recorder.RecordEstimate(result.DelaySeconds, result.PeakRatio)

	assessment := correlate.Assess(result, config.Threshold)

	logger.Info("delay estimated",
		slog.String("method", string(result.Method)),
		slog.Int("samples", result.N),
		slog.Int("lag", result.PeakLag),
		slog.Float64("delay", result.DelaySeconds),
		slog.Float64("peakRatio", result.PeakRatio))

	report := Report{
		FileA:      config.FileA,
		FileB:      config.FileB,
		RecA:       recA,
		RecB:       recB,
		Result:     result,
		Assessment: assessment,
	}
	if err = report.Write(out); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}

	if config.Visualize {
		if err = renderPlots(config.PlotDir, recA, recB, result, logger); err != nil {
			return fmt.Errorf("rendering plots: %w", err)
		}
	}

	if config.DBPath != "" {
		if err = storeMeasurement(ctx, config, result, assessment); err != nil {
			return err
		}
	}

	if config.Metrics != "" {
		if err = recorder.WriteTextfile(config.Metrics); err != nil {
			return fmt.Errorf("writing metrics: %w", err)
		}
	}

	return nil
}

func loadRecordings(config *Config, logger *slog.Logger) (*iq.Recording, *iq.Recording, error) {
	var recs [2]*iq.Recording
	for i, path := range []string{config.FileA, config.FileB} {
		rec, _, err := storage.ReadRecording(path)
		if errors.Is(err, storage.ErrNoSidecar) {
			if config.SampleRate <= 0 {
				return nil, nil, fmt.Errorf("%w: give -fs for raw files", err)
			}
			rec, err = storage.ReadRawRecording(path, 0, config.SampleRate, "")
		}
		if err != nil {
			return nil, nil, err
		}
		recs[i] = rec
	}

	if a, b := recs[0].StartTimestamp, recs[1].StartTimestamp; a != b && recs[0].SampleRate > 0 {
		if math.Abs(a-b)*recs[0].SampleRate >= 0.5 {
			logger.Warn("recordings start at different device times, align them first",
				slog.Float64("startA", a),
				slog.Float64("startB", b))
		}
	}

	return recs[0], recs[1], nil
}

func renderPlots(dir string, recA, recB *iq.Recording, result *correlate.Result, logger *slog.Logger) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	renderer := NewPlotRenderer(PlotConfig{})

	peak := result.DelaySeconds
	correlation := Plot{
		Title:  fmt.Sprintf("|correlation| vs lag, peak at %d samples", result.PeakLag),
		XUnit:  "s",
		Series: []Series{{Label: "|c[k]|", Color: colorA, X: result.LagSeconds(), Y: result.Magnitudes()}},
		Marker: &peak,
	}

	signals := Plot{
		Title: "Aligned signals, I channel",
		XUnit: "s",
		Series: []Series{
			inPhase(recA, result.N, result.SampleRate, colorA),
			inPhase(recB, result.N, result.SampleRate, colorB),
		},
	}

	for _, p := range []struct {
		name string
		plot *Plot
	}{
		{CorrelationPlot, &correlation},
		{SignalsPlot, &signals},
	} {
		img, err := renderer.Render(p.plot)
		if err != nil {
			return err
		}

		path := filepath.Join(dir, p.name)
		if err = savePNG(path, img); err != nil {
			return err
		}
		logger.Info("plot saved", slog.String("path", path))
	}

	return nil
}

// inPhase returns the real part of the first n samples against time from the common start
func inPhase(rec *iq.Recording, n int, sampleRate float64, c color.Color) Series {
	x, y := make([]float64, n), make([]float64, n)
	for i := 0; i < n; i++ {
		x[i] = float64(i) / sampleRate
		y[i] = float64(real(rec.Samples[i]))
	}
	return Series{Label: rec.SourceID, Color: c, X: x, Y: y}
}

func storeMeasurement(ctx context.Context, config *Config, result *correlate.Result, assessment correlate.Assessment) (err error) {
	catalog := storage.NewSqliteStore(config.DBPath)
	defer func() {
		if cErr := catalog.Close(); cErr != nil {
			err = errors.Join(err, fmt.Errorf("closing catalog: %w", cErr))
		}
	}()

	_, err = catalog.StoreMeasurement(ctx, &storage.Measurement{
		FileA:         config.FileA,
		FileB:         config.FileB,
		SampleRate:    result.SampleRate,
		NumSamples:    int64(result.N),
		Method:        string(result.Method),
		PeakLag:       int64(result.PeakLag),
		DelaySeconds:  result.DelaySeconds,
		PeakRatio:     result.PeakRatio,
		LowConfidence: assessment.LowConfidence,
	})
	if err != nil {
		return fmt.Errorf("storing measurement: %w", err)
	}
	return nil
}
