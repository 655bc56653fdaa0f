package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/JYK2001/tdoa-gpsdo/internal/iq"
	"github.com/JYK2001/tdoa-gpsdo/internal/sdr"
	"github.com/JYK2001/tdoa-gpsdo/internal/station"
	"github.com/JYK2001/tdoa-gpsdo/internal/storage"
	"github.com/JYK2001/tdoa-gpsdo/internal/telemetry"
)

// WithCatalog sets the catalog the capture sessions and recordings are indexed in
func WithCatalog(catalog storage.Catalog) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.catalog = catalog
	}
}

// WithTelemetry sets the metrics recorder shared by all sessions
func WithTelemetry(recorder *telemetry.Recorder) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.telemetry = recorder
	}
}

// WithRunID overrides the generated run identifier
func WithRunID(id string) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.runID = id
	}
}

// WithEpoch sets the instant the simulated reference axis of every receiver starts at
func WithEpoch(epoch time.Time) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.epoch = epoch
	}
}

// Result is the outcome of one receiver of a capture run
type Result struct {
	Station   string
	Path      string
	Recording *iq.Recording // Partial when Err is a stream failure
	Anchor    float64
	Synced    bool
	Overflows int64
	Err       error
}

type receiver struct {
	config    *station.Config
	session   *sdr.Session
	store     *storage.FileStore
	metrics   *overflowCounter
	logger    *slog.Logger
	sessionID int64
}

// Orchestrator synchronizes and captures from all receivers of a run concurrently. A fatal
// error on one receiver cancels the others.
type Orchestrator struct {
	config    *Config
	receivers []*receiver
	names     map[string]struct{}

	runID     string
	epoch     time.Time
	logger    *slog.Logger
	catalog   storage.Catalog
	telemetry *telemetry.Recorder

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewOrchestrator creates a new Orchestrator
func NewOrchestrator(config *Config, logger *slog.Logger, options ...func(*Orchestrator)) *Orchestrator {
	o := Orchestrator{
		config: config,
		names:  make(map[string]struct{}),
		runID:  uuid.NewString(),
		epoch:  time.Now(),
		logger: logger,
	}

	for _, option := range options {
		option(&o)
	}

	o.logger = o.logger.With(slog.String("run", o.runID))
	return &o
}

// RunID returns the identifier shared by all recordings of the run
func (o *Orchestrator) RunID() string {
	return o.runID
}

// AddStation opens the receiver of the station and registers it with the Orchestrator
func (o *Orchestrator) AddStation(config *station.Config) error {
	if _, ok := o.names[config.Name]; ok {
		return fmt.Errorf("station %s already exists", config.Name)
	}

	rx, clock, err := station.Open(config, o.epoch)
	if err != nil {
		return err
	}

	logger := o.logger.With(slog.String("station", config.Name))
	store := storage.NewFileStore(o.outputPath(config), logger,
		storage.WithRunID(o.runID),
		storage.WithCenterFrequency(config.Receiver.CenterFrequency),
		storage.WithGain(config.Receiver.Gain))

	metrics := &overflowCounter{Metrics: discardMetrics{}}
	if o.telemetry != nil {
		metrics.Metrics = o.telemetry
	}

	session, err := sdr.NewSession(rx, config.Receiver,
		sdr.WithLogger(logger),
		sdr.WithSourceID(config.Name),
		sdr.WithClock(clock),
		sdr.WithMetrics(metrics),
		sdr.WithRecordingSink(store),
		sdr.WithOverflowThreshold(*o.config.Capture.MaxConsecutiveOverflows))
	if err != nil {
		_ = rx.Close()
		return err
	}

	o.names[config.Name] = struct{}{}
	o.receivers = append(o.receivers, &receiver{
		config:  config,
		session: session,
		store:   store,
		metrics: metrics,
		logger:  logger,
	})

	return nil
}

// Close releases the receivers of all registered stations
func (o *Orchestrator) Close() error {
	var errs []error
	for _, r := range o.receivers {
		if err := r.session.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing station %s: %w", r.config.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (o *Orchestrator) outputPath(config *station.Config) string {
	if config.Output != "" {
		return config.Output
	}
	return filepath.Join(o.config.Storage.DataDirectory, fmt.Sprintf("%s_%s.cf32", shortID(o.runID), config.Name))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Run synchronizes every receiver and captures from all of them concurrently. Results are
// returned in the order the stations were added, together with the joined receiver errors.
func (o *Orchestrator) Run(ctx context.Context) ([]*Result, error) {
	if len(o.receivers) == 0 {
		return nil, fmt.Errorf("no receivers to capture from")
	}

	if o.catalog != nil {
		for _, r := range o.receivers {
			sessionID, err := o.catalog.CreateSession(ctx, o.runID, r.config.Name, r.config.Backend, r.config)
			if err != nil {
				return nil, fmt.Errorf("creating session for station %s: %w", r.config.Name, err)
			}
			r.sessionID = sessionID
		}
	}

	ctx, o.cancel = context.WithCancel(ctx)
	defer o.cancel()

	startGate := make(chan struct{})
	results := make([]*Result, len(o.receivers))

	for i, r := range o.receivers {
		results[i] = &Result{Station: r.config.Name, Path: r.store.Path()}

		o.wg.Add(1)
		go o.capture(ctx, r, results[i], startGate)
	}

	close(startGate) // Start the capture goroutines

	o.wg.Wait()

	var errs []error
	for _, res := range results {
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("station %s: %w", res.Station, res.Err))
		}
	}

	return results, errors.Join(errs...)
}

func (o *Orchestrator) capture(ctx context.Context, r *receiver, result *Result, startGate chan struct{}) {
	defer o.wg.Done()

	<-startGate

	fail := func(err error) {
		result.Err = err
		r.logger.Error(err.Error())
		o.cancel() // signal to other goroutines about fatal
	}

	if o.config.Sync.WaitLock {
		if _, err := r.session.WaitReferenceLock(ctx, o.config.Sync.LockAttempts, o.config.Sync.LockInterval); err != nil {
			fail(fmt.Errorf("waiting for reference lock: %w", err))
			return
		}
	}

	if !o.config.Sync.Skip {
		anchor, err := o.synchronize(ctx, r)
		if err != nil {
			fail(err)
			return
		}

		result.Anchor, result.Synced = anchor, true
		r.store.Annotate(storage.WithAnchor(anchor))

		if o.telemetry != nil {
			o.telemetry.RecordAnchor(r.config.Name, anchor)
		}
		if o.catalog != nil {
			if err = o.catalog.SetSessionAnchor(ctx, r.sessionID, anchor); err != nil {
				fail(fmt.Errorf("recording anchor: %w", err))
				return
			}
		}
	}

	rec, err := r.session.Capture(ctx, o.config.Capture.Options(r.config.Receiver.SampleRate))
	result.Recording = rec
	result.Overflows = r.metrics.overflows.Load()
	if err != nil {
		fail(err)
		return
	}

	if o.catalog != nil {
		if err = o.storeCapture(ctx, r, rec); err != nil {
			fail(err)
		}
	}
}

// synchronize runs the handshake up to Sync.Attempts times, retrying only on edge timeouts
func (o *Orchestrator) synchronize(ctx context.Context, r *receiver) (anchor float64, err error) {
	opts := o.config.Sync.Options()

	for attempt := 1; attempt <= o.config.Sync.Attempts; attempt++ {
		if anchor, err = r.session.Synchronize(ctx, opts); err == nil {
			return anchor, nil
		}

		var timeout *sdr.SyncTimeoutError
		if !errors.As(err, &timeout) {
			break
		}

		r.logger.Warn("synchronization attempt timed out",
			slog.Int("attempt", attempt),
			slog.Int("attempts", o.config.Sync.Attempts),
			slog.String("stage", timeout.Stage))
	}

	return 0, fmt.Errorf("synchronizing: %w", err)
}

func (o *Orchestrator) storeCapture(ctx context.Context, r *receiver, rec *iq.Recording) error {
	c := storage.Capture{
		SessionID:       r.sessionID,
		Path:            r.store.Path(),
		SourceID:        rec.SourceID,
		StartTimestamp:  rec.StartTimestamp,
		SampleRate:      rec.SampleRate,
		CenterFrequency: r.config.Receiver.CenterFrequency,
		NumSamples:      int64(rec.Len()),
		Overflows:       r.metrics.overflows.Load(),
	}
	gain := r.config.Receiver.Gain
	c.Gain = &gain

	if _, err := o.catalog.StoreCapture(ctx, &c); err != nil {
		return fmt.Errorf("cataloging capture: %w", err)
	}
	return nil
}

// overflowCounter counts overflows of one session on top of the shared recorder
type overflowCounter struct {
	sdr.Metrics
	overflows atomic.Int64
}

func (c *overflowCounter) RecordOverflow(receiver string) {
	c.overflows.Add(1)
	c.Metrics.RecordOverflow(receiver)
}

type discardMetrics struct{}

func (discardMetrics) RecordSamples(string, int)        {}
func (discardMetrics) RecordOverflow(string)            {}
func (discardMetrics) RecordStreamError(string, string) {}
func (discardMetrics) RecordLatency(string, float64)    {}
