package correlate

// correlateDirect evaluates the "same" correlation lag by lag
func correlateDirect(a, b []complex64) []complex128 {
	n := len(a)
	out := make([]complex128, n)

	for i := range out {
		lag := i - n/2

		var sum complex128
		for k := max(0, lag); k < min(n, n+lag); k++ {
			y := complex128(b[k-lag])
			sum += complex128(a[k]) * complex(real(y), -imag(y))
		}
		out[i] = sum
	}
	return out
}
