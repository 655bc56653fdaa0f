package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/JYK2001/tdoa-gpsdo/internal/sdr"
	"github.com/JYK2001/tdoa-gpsdo/internal/station"
	"github.com/JYK2001/tdoa-gpsdo/internal/telemetry"
)

// Run waits for the reference lock, measures the reference edge jitter and reports it
func Run(ctx context.Context, config *Config, out io.Writer, logger *slog.Logger) error {
	_, err := Check(ctx, config, time.Now(), out, logger)
	return err
}

// Check runs the measurement against a receiver whose simulated reference axis starts at epoch
func Check(ctx context.Context, config *Config, epoch time.Time, out io.Writer, logger *slog.Logger) (*sdr.JitterReport, error) {
	rx, clock, err := station.Open(&config.Station, epoch)
	if err != nil {
		return nil, err
	}

	recorder := telemetry.New()
	session, err := sdr.NewSession(rx, config.Station.Receiver,
		sdr.WithLogger(logger.With(slog.String("station", config.Station.Name))),
		sdr.WithClock(clock),
		sdr.WithMetrics(recorder))
	if err != nil {
		_ = rx.Close()
		return nil, err
	}
	defer session.Close()

	locked, err := session.WaitReferenceLock(ctx, config.Jitter.LockAttempts, config.Jitter.LockInterval)
	if err != nil {
		return nil, err
	}
	if !locked {
		logger.Warn("measuring against the internal reference")
	}

	report, err := session.MeasureJitter(ctx, config.Jitter.Options())
	if err != nil {
		return nil, fmt.Errorf("measuring jitter: %w", err)
	}

	if err = writeSummary(out, config.Station.Name, report); err != nil {
		return nil, err
	}

	if config.Output != "" {
		if err = writeCSV(config.Output, report); err != nil {
			return nil, fmt.Errorf("writing %s: %w", config.Output, err)
		}
		logger.Info("edge results saved", slog.String("path", config.Output))
	}

	if config.Metrics != "" {
		recorder.RecordJitter(config.Station.Name, report.Average, report.PeakToPeak, report.MaxAdvance, report.MaxDelay)
		if err = recorder.WriteTextfile(config.Metrics); err != nil {
			return nil, fmt.Errorf("writing metrics: %w", err)
		}
	}

	return report, nil
}

func writeSummary(out io.Writer, name string, r *sdr.JitterReport) error {
	_, err := fmt.Fprintf(out,
		"Station:        %s\nClock source:   %s\nTime source:    %s\nEdges:          %d\n"+
			"Average:        %.3f ns\nPeak to peak:   %.3f ns\nMax advance:    %.3f ns\nMax delay:      %.3f ns\n",
		name, r.ClockSource, r.TimeSource, len(r.Edges),
		r.Average, r.PeakToPeak, r.MaxAdvance, r.MaxDelay)
	return err
}

func writeCSV(path string, r *sdr.JitterReport) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()

	w := csv.NewWriter(f)
	if err = w.Write([]string{"index", "host_time", "edge_time", "deviation_ns"}); err != nil {
		return err
	}

	for _, e := range r.Edges {
		record := []string{
			strconv.Itoa(e.Index),
			e.HostTime.UTC().Format(time.RFC3339Nano),
			strconv.FormatFloat(e.EdgeTime, 'f', 9, 64),
			strconv.FormatFloat(e.Deviation, 'f', 3, 64),
		}
		if err = w.Write(record); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}
