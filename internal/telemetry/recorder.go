// Package telemetry exports capture, synchronization and estimation metrics through Prometheus.
package telemetry

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tdoa"

// Recorder implements sdr.Metrics using Prometheus. Each Recorder owns its registry, so
// several may coexist in one process.
type Recorder struct {
	registry *prometheus.Registry

	samplesTotal   *prometheus.CounterVec
	overflowsTotal *prometheus.CounterVec
	streamErrors   *prometheus.CounterVec
	latency        *prometheus.HistogramVec

	anchor    *prometheus.GaugeVec
	peakRatio prometheus.Gauge
	delay     prometheus.Gauge
	jitter    *prometheus.GaugeVec
}

// New creates a recorder with a fresh registry
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		samplesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "samples_received_total",
				Help:      "Total number of samples written into recordings",
			},
			[]string{"receiver"},
		),
		overflowsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stream_overflows_total",
				Help:      "Total number of receive calls that reported an overflow",
			},
			[]string{"receiver"},
		),
		streamErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stream_errors_total",
				Help:      "Total number of captures ended by a fatal stream error",
			},
			[]string{"receiver", "code"},
		),
		latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of operations in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		anchor: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sync_anchor_seconds",
				Help:      "Device time returned by the last synchronization handshake",
			},
			[]string{"receiver"},
		),
		peakRatio: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "correlation_peak_ratio",
				Help:      "Peak over mean correlation magnitude of the last delay estimate",
			},
		),
		delay: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "delay_seconds",
				Help:      "Last estimated delay, positive when recording A lags recording B",
			},
		),
		jitter: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pps_jitter_nanoseconds",
				Help:      "Reference edge interval error statistics",
			},
			[]string{"receiver", "stat"},
		),
	}
}

// Registry returns the registry holding all metrics of the recorder
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) RecordSamples(receiver string, n int) {
	r.samplesTotal.WithLabelValues(receiver).Add(float64(n))
}

func (r *Recorder) RecordOverflow(receiver string) {
	r.overflowsTotal.WithLabelValues(receiver).Inc()
}

func (r *Recorder) RecordStreamError(receiver, code string) {
	r.streamErrors.WithLabelValues(receiver, code).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordAnchor(receiver string, anchor float64) {
	r.anchor.WithLabelValues(receiver).Set(anchor)
}

// RecordEstimate records the outcome of a delay estimation
func (r *Recorder) RecordEstimate(delaySeconds, peakRatio float64) {
	r.delay.Set(delaySeconds)
	r.peakRatio.Set(peakRatio)
}

// RecordJitter records reference edge statistics in nanoseconds
func (r *Recorder) RecordJitter(receiver string, average, peakToPeak, maxAdvance, maxDelay float64) {
	r.jitter.WithLabelValues(receiver, "average").Set(average)
	r.jitter.WithLabelValues(receiver, "peak_to_peak").Set(peakToPeak)
	r.jitter.WithLabelValues(receiver, "max_advance").Set(maxAdvance)
	r.jitter.WithLabelValues(receiver, "max_delay").Set(maxDelay)
}

// WriteTextfile writes all metrics in the text exposition format, suitable for the node
// exporter textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}
