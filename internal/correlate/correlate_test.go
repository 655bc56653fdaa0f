package correlate

import (
	"errors"
	"math"
	"math/cmplx"
	"math/rand"
	"testing"

	"github.com/JYK2001/tdoa-gpsdo/internal/iq"
)

// chirp returns n samples of a unit-amplitude linear sweep from f0 to -f0 cycles per sample
func chirp(n int, f0 float64) []complex64 {
	out := make([]complex64, n)
	k := -2 * f0 / float64(n)
	for i := range out {
		x := float64(i)
		phase := 2 * math.Pi * (f0*x + k*x*x/2)
		out[i] = complex64(cmplx.Exp(complex(0, phase)))
	}
	return out
}

// qpsk returns n random unit-power symbols on a slow carrier
func qpsk(rng *rand.Rand, n int) []complex64 {
	points := []complex128{1, 1i, -1, -1i}
	out := make([]complex64, n)
	for i := range out {
		carrier := cmplx.Exp(complex(0, 2*math.Pi*0.01*float64(i)))
		out[i] = complex64(points[rng.Intn(4)] * carrier)
	}
	return out
}

func addNoise(rng *rand.Rand, x []complex64, stddev float64) []complex64 {
	out := make([]complex64, len(x))
	for i, v := range x {
		out[i] = v + complex(float32(rng.NormFloat64()*stddev), float32(rng.NormFloat64()*stddev))
	}
	return out
}

func TestEstimateDelay_ChirpScenario(t *testing.T) {
	const (
		fs    = 40e6
		lead  = 37
		total = 1200
	)

	c := chirp(200, -0.4)

	a := make([]complex64, total)
	copy(a[1000:], c)

	b := make([]complex64, total)
	copy(b[1000-lead:], c)

	recA := &iq.Recording{Samples: a, SampleRate: fs, SourceID: "a"}
	recB := &iq.Recording{Samples: b, SampleRate: fs, SourceID: "b"}

	for _, method := range []Method{MethodFFT, MethodDirect} {
		t.Run(string(method), func(t *testing.T) {
			r, err := EstimateDelay(recA, recB, fs, WithMethod(method))
			if err != nil {
				t.Fatalf("EstimateDelay() error = %v", err)
			}

			if r.PeakLag != lead {
				t.Errorf("PeakLag = %d, want %d", r.PeakLag, lead)
			}
			if math.Abs(r.DelaySeconds-9.25e-7) > 1e-15 {
				t.Errorf("DelaySeconds = %g, want 9.25e-7", r.DelaySeconds)
			}
			if math.Abs(r.DelayMicroseconds()-0.925) > 1e-9 {
				t.Errorf("DelayMicroseconds() = %g, want 0.925", r.DelayMicroseconds())
			}
			if r.PeakRatio <= RecommendedPeakRatio {
				t.Errorf("PeakRatio = %g, want > %g", r.PeakRatio, RecommendedPeakRatio)
			}
			if r.N != total || len(r.Lags) != total || len(r.Correlation) != total {
				t.Errorf("N = %d, lags = %d, correlation = %d, want %d", r.N, len(r.Lags), len(r.Correlation), total)
			}
			if r.Lags[0] != -600 || r.Lags[total-1] != 599 {
				t.Errorf("lag range = [%d, %d], want [-600, 599]", r.Lags[0], r.Lags[total-1])
			}
		})
	}

	// swapping the inputs flips the sign
	r, err := EstimateDelay(recB, recA, fs)
	if err != nil {
		t.Fatalf("EstimateDelay() error = %v", err)
	}
	if r.PeakLag != -lead {
		t.Errorf("swapped PeakLag = %d, want %d", r.PeakLag, -lead)
	}
}

func TestEstimateDelay_RoundTrip(t *testing.T) {
	const (
		n  = 4096
		fs = 10e6
	)

	rng := rand.New(rand.NewSource(11))
	noise := math.Sqrt(0.01 / 2) // 20 dB SNR for unit-power symbols

	for _, d := range []int{0, 1, -1, 37, -37, 250, -700, n/4 - 1, -(n/4 - 1)} {
		src := qpsk(rng, n+abs(d))

		// B is A delayed by d samples
		var a, b []complex64
		if d >= 0 {
			a, b = src[d:d+n], src[:n]
		} else {
			a, b = src[:n], src[-d:-d+n]
		}
		a, b = addNoise(rng, a, noise), addNoise(rng, b, noise)

		r, err := EstimateDelaySamples(a, b, fs)
		if err != nil {
			t.Fatalf("d=%d: EstimateDelaySamples() error = %v", d, err)
		}

		// B lags A, so the lag is negative
		if r.PeakLag != -d {
			t.Errorf("d=%d: PeakLag = %d, want %d", d, r.PeakLag, -d)
		}
		if want := float64(-d) / fs; math.Abs(r.DelaySeconds-want) > 1/fs {
			t.Errorf("d=%d: DelaySeconds = %g, want %g", d, r.DelaySeconds, want)
		}
		if r.PeakRatio <= 10 {
			t.Errorf("d=%d: PeakRatio = %g, want > 10", d, r.PeakRatio)
		}
	}
}

func TestEstimateDelay_UncorrelatedNoise(t *testing.T) {
	const (
		n      = 4096
		trials = 20
	)

	rng := rand.New(rand.NewSource(5))
	zero := make([]complex64, n)

	low := 0
	for i := 0; i < trials; i++ {
		r, err := EstimateDelaySamples(addNoise(rng, zero, 1), addNoise(rng, zero, 1), 1e6)
		if err != nil {
			t.Fatalf("EstimateDelaySamples() error = %v", err)
		}
		if r.PeakRatio < DefaultConfidenceThreshold {
			low++
		}
	}

	if low < trials*9/10 {
		t.Errorf("%d of %d noise trials below %g, want at least 90%%", low, trials, DefaultConfidenceThreshold)
	}
}

func TestEstimateDelay_MethodsAgree(t *testing.T) {
	rng := rand.New(rand.NewSource(8))

	for _, n := range []int{1, 2, 3, 7, 64, 127, 500} {
		a := addNoise(rng, make([]complex64, n), 1)
		b := addNoise(rng, make([]complex64, n), 1)

		fft, err := EstimateDelaySamples(a, b, 1, WithMethod(MethodFFT))
		if err != nil {
			t.Fatalf("n=%d: fft error = %v", n, err)
		}
		direct, err := EstimateDelaySamples(a, b, 1, WithMethod(MethodDirect))
		if err != nil {
			t.Fatalf("n=%d: direct error = %v", n, err)
		}

		peak := cmplx.Abs(direct.Correlation[direct.PeakIndex])
		for i := range direct.Correlation {
			if diff := cmplx.Abs(fft.Correlation[i] - direct.Correlation[i]); diff > 1e-9*peak*float64(n) {
				t.Fatalf("n=%d lag %d: fft %v, direct %v", n, direct.Lags[i], fft.Correlation[i], direct.Correlation[i])
			}
		}
		if fft.PeakLag != direct.PeakLag {
			t.Errorf("n=%d: fft peak lag %d, direct %d", n, fft.PeakLag, direct.PeakLag)
		}
	}
}

func TestEstimateDelay_TruncatesToShorter(t *testing.T) {
	a := chirp(300, 0.3)
	b := append(chirp(300, 0.3), make([]complex64, 50)...)

	r, err := EstimateDelaySamples(a, b, 1e6, WithMethod(MethodDirect))
	if err != nil {
		t.Fatalf("EstimateDelaySamples() error = %v", err)
	}
	if r.N != 300 || r.PeakLag != 0 {
		t.Errorf("N = %d, PeakLag = %d, want 300 and 0", r.N, r.PeakLag)
	}
}

func TestEstimateDelay_InputErrors(t *testing.T) {
	ok := &iq.Recording{Samples: chirp(10, 0.1), SampleRate: 1e6, SourceID: "ok"}

	tests := []struct {
		name string
		a, b *iq.Recording
		fs   float64
	}{
		{"missing recording", ok, nil, 1e6},
		{"zero rate", ok, ok, 0},
		{"negative rate", ok, ok, -1},
		{"NaN rate", ok, ok, math.NaN()},
		{"metadata mismatch", ok, &iq.Recording{Samples: chirp(10, 0.1), SampleRate: 2e6}, 1e6},
		{"empty", ok, &iq.Recording{SampleRate: 1e6}, 1e6},
		{"all zero", ok, &iq.Recording{Samples: make([]complex64, 10), SampleRate: 1e6}, 1e6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EstimateDelay(tt.a, tt.b, tt.fs)

			var inputErr *CorrelationInputError
			if !errors.As(err, &inputErr) {
				t.Errorf("EstimateDelay() error = %v, want *CorrelationInputError", err)
			}
		})
	}

	if _, err := EstimateDelaySamples(ok.Samples, ok.Samples, 1, WithMethod("bogus")); err == nil {
		t.Errorf("expected unknown method error")
	}
}

func TestParseMethod(t *testing.T) {
	tests := []struct {
		in      string
		want    Method
		wantErr bool
	}{
		{"fft", MethodFFT, false},
		{"direct", MethodDirect, false},
		{"FFT", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMethod(tt.in)
			if (err != nil) != tt.wantErr || got != tt.want {
				t.Errorf("ParseMethod(%q) = %q, %v", tt.in, got, err)
			}
		})
	}
}

func TestAssess(t *testing.T) {
	tests := []struct {
		name        string
		ratio       float64
		threshold   float64
		low         bool
		recommended bool
	}{
		{"strong", 42, 0, false, true},
		{"moderate", 7, 0, false, false},
		{"weak", 3, 0, true, false},
		{"custom threshold", 7, 8, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Assess(&Result{PeakRatio: tt.ratio}, tt.threshold)
			if a.LowConfidence != tt.low || a.Recommended != tt.recommended {
				t.Errorf("Assess() = %+v", a)
			}
			if a.LowConfidence && len(a.Causes) == 0 {
				t.Errorf("low-confidence assessment without causes")
			}
			if tt.threshold <= 0 && a.Threshold != DefaultConfidenceThreshold {
				t.Errorf("Threshold = %g, want default", a.Threshold)
			}
		})
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
