// Package correlate estimates the relative delay between two time-aligned recordings from the
// peak of their cross-correlation.
//
// The correlation at lag k is
//
//	c[k] = sum over n of a[n] * conj(b[n-k])
//
// evaluated for the N lags -N/2 ... N-1-N/2 (integer division), where N is the common length
// of both inputs. A positive peak lag means recording A lags recording B: the signal arrived
// at receiver A later.
package correlate

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/JYK2001/tdoa-gpsdo/internal/iq"
)

// rateTolerance is the relative difference under which two sample rates are treated as equal
const rateTolerance = 1e-9

// Method selects how the correlation is evaluated
type Method string

const (
	MethodFFT    Method = "fft"
	MethodDirect Method = "direct" // O(N^2), intended for short inputs and cross-checks
)

func ParseMethod(s string) (Method, error) {
	switch m := Method(s); m {
	case MethodFFT, MethodDirect:
		return m, nil
	default:
		return "", fmt.Errorf("unknown correlation method '%s'", s)
	}
}

// Result is the outcome of one delay estimation
type Result struct {
	Method     Method
	SampleRate float64
	N          int // Common length both inputs were truncated to

	Correlation []complex128 // Correlation value per lag
	Lags        []int        // Lag in samples, matching Correlation

	PeakIndex    int
	PeakLag      int
	DelaySeconds float64
	PeakRatio    float64 // Peak magnitude over mean magnitude
}

// DelayMicroseconds returns the delay in microseconds
func (r *Result) DelayMicroseconds() float64 {
	return r.DelaySeconds * 1e6
}

// Magnitudes returns |Correlation|
func (r *Result) Magnitudes() []float64 {
	return magnitudes(r.Correlation)
}

// LagSeconds returns the lag axis in seconds
func (r *Result) LagSeconds() []float64 {
	out := make([]float64, len(r.Lags))
	for i, l := range r.Lags {
		out[i] = float64(l) / r.SampleRate
	}
	return out
}

type options struct {
	method Method
}

// Option configures EstimateDelay
type Option func(o *options)

// WithMethod selects the correlation method. Defaults to MethodFFT.
func WithMethod(m Method) Option {
	return func(o *options) {
		o.method = m
	}
}

// EstimateDelay correlates two recordings sampled at sampleRate. Both recordings must carry
// that rate in their own metadata.
func EstimateDelay(recA, recB *iq.Recording, sampleRate float64, opts ...Option) (*Result, error) {
	if recA == nil || recB == nil {
		return nil, inputError("recording is missing")
	}
	if err := validateRate(sampleRate); err != nil {
		return nil, err
	}

	for _, rec := range []*iq.Recording{recA, recB} {
		if math.Abs(rec.SampleRate-sampleRate) > rateTolerance*sampleRate {
			return nil, inputError("recording %s has sample rate %g, expected %g", rec.SourceID, rec.SampleRate, sampleRate)
		}
	}

	return EstimateDelaySamples(recA.Samples, recB.Samples, sampleRate, opts...)
}

// EstimateDelaySamples correlates two raw sample sequences. The longer input is truncated to
// the length of the shorter one.
func EstimateDelaySamples(a, b []complex64, sampleRate float64, opts ...Option) (*Result, error) {
	o := options{method: MethodFFT}
	for _, opt := range opts {
		opt(&o)
	}

	if err := validateRate(sampleRate); err != nil {
		return nil, err
	}

	n := min(len(a), len(b))
	if n == 0 {
		return nil, inputError("no samples to correlate (lengths %d and %d)", len(a), len(b))
	}
	a, b = a[:n], b[:n]

	var corr []complex128
	switch o.method {
	case MethodFFT:
		corr = correlateFFT(a, b)
	case MethodDirect:
		corr = correlateDirect(a, b)
	default:
		return nil, fmt.Errorf("unknown correlation method '%s'", o.method)
	}

	mags := magnitudes(corr)
	mean := stat.Mean(mags, nil)
	if math.IsNaN(mean) || math.IsInf(mean, 0) {
		return nil, inputError("samples are not finite")
	}
	if mean == 0 {
		return nil, inputError("correlation is identically zero")
	}

	peak := floats.MaxIdx(mags)
	lags := sameLags(n)

	return &Result{
		Method:       o.method,
		SampleRate:   sampleRate,
		N:            n,
		Correlation:  corr,
		Lags:         lags,
		PeakIndex:    peak,
		PeakLag:      lags[peak],
		DelaySeconds: float64(lags[peak]) / sampleRate,
		PeakRatio:    mags[peak] / mean,
	}, nil
}

func validateRate(sampleRate float64) error {
	if math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) || sampleRate <= 0 {
		return inputError("sample rate must be positive: %g given", sampleRate)
	}
	return nil
}

// sameLags returns the n lags of a "same" size correlation of two length-n inputs
func sameLags(n int) []int {
	lags := make([]int, n)
	for i := range lags {
		lags[i] = i - n/2
	}
	return lags
}

func magnitudes(c []complex128) []float64 {
	out := make([]float64, len(c))
	for i, v := range c {
		out[i] = cmplx.Abs(v)
	}
	return out
}
