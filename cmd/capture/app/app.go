package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/JYK2001/tdoa-gpsdo/internal/storage"
	"github.com/JYK2001/tdoa-gpsdo/internal/telemetry"
)

// Run captures from every configured receiver and persists the recordings. Partial
// recordings of failed receivers are kept in memory only and reported.
func Run(ctx context.Context, config *Config, logger *slog.Logger) (err error) {
	if err = os.MkdirAll(config.Storage.DataDirectory, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	options := []func(*Orchestrator){}

	catalog := createCatalog(&config.Storage)
	if catalog != nil {
		defer func() {
			if cErr := catalog.Close(); cErr != nil {
				err = errors.Join(err, fmt.Errorf("closing catalog: %w", cErr))
			}
		}()
		options = append(options, WithCatalog(catalog))
	}

	recorder := telemetry.New()
	options = append(options, WithTelemetry(recorder))

	o := NewOrchestrator(config, logger, options...)
	defer func() {
		if cErr := o.Close(); cErr != nil {
			err = errors.Join(err, cErr)
		}
	}()

	for i := range config.Receivers {
		if err = o.AddStation(&config.Receivers[i]); err != nil {
			return fmt.Errorf("failed to create receivers: %w", err)
		}
	}

	results, err := o.Run(ctx)
	report(results, logger)

	if config.Metrics.Textfile != "" {
		if mErr := recorder.WriteTextfile(config.Metrics.Textfile); mErr != nil {
			logger.Warn(fmt.Sprintf("writing metrics: %s", mErr.Error()))
		}
	}

	return err
}

func createCatalog(config *StorageConfig) *storage.SqliteStore {
	if config.Catalog == "" || config.Catalog == CatalogDisabled {
		return nil
	}

	path := config.Catalog
	if !filepath.IsAbs(path) {
		path = filepath.Join(config.DataDirectory, path)
	}
	return storage.NewSqliteStore(path)
}

func report(results []*Result, logger *slog.Logger) {
	for _, r := range results {
		attrs := []any{
			slog.String("station", r.Station),
			slog.String("path", r.Path),
			slog.Bool("synchronized", r.Synced),
			slog.Int64("overflows", r.Overflows),
		}
		if r.Synced {
			attrs = append(attrs, slog.Float64("anchor", r.Anchor))
		}
		if r.Recording != nil {
			attrs = append(attrs,
				slog.Float64("startTimestamp", r.Recording.StartTimestamp),
				slog.String("samples", humanize.Comma(int64(r.Recording.Len()))))
		}

		if r.Err != nil {
			logger.Error("capture failed", append(attrs, slog.String("error", r.Err.Error()))...)
			continue
		}
		logger.Info("capture complete", attrs...)
	}
}
