package correlate

import (
	"gonum.org/v1/gonum/dsp/fourier"
)

// correlateFFT evaluates the "same" correlation through a zero-padded FFT. Padding to at least
// 2n-1 points keeps the circular correlation free of wrap-around.
func correlateFFT(a, b []complex64) []complex128 {
	n := len(a)
	m := nextPow2(2*n - 1)

	fft := fourier.NewCmplxFFT(m)
	fa := fft.Coefficients(nil, widen(a, m))
	fb := fft.Coefficients(nil, widen(b, m))

	for i := range fa {
		fa[i] *= complex(real(fb[i]), -imag(fb[i]))
	}

	// Sequence does not scale by 1/m
	circular := fft.Sequence(nil, fa)
	scale := complex(1/float64(m), 0)

	out := make([]complex128, n)
	for i := range out {
		lag := i - n/2
		out[i] = circular[(lag+m)%m] * scale
	}
	return out
}

func widen(x []complex64, size int) []complex128 {
	out := make([]complex128, size)
	for i, v := range x {
		out[i] = complex128(v)
	}
	return out
}

func nextPow2(n int) int {
	p := 2
	for p < n {
		p <<= 1
	}
	return p
}
