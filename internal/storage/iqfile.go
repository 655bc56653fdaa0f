package storage

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

const (
	// FormatCF32LE is interleaved little-endian float32 I/Q, one complex64 per sample
	FormatCF32LE = "cf32_le"

	bytesPerSample = 8
	chunkSamples   = 1 << 14
)

// ErrTruncatedSamples is returned when a sample file does not hold a whole number of samples
var ErrTruncatedSamples = errors.New("sample file is truncated")

// WriteSamples encodes samples in the cf32_le layout
func WriteSamples(w io.Writer, samples []complex64) error {
	bw := bufio.NewWriter(w)
	chunk := make([]byte, chunkSamples*bytesPerSample)

	for len(samples) > 0 {
		n := min(len(samples), chunkSamples)
		for i, s := range samples[:n] {
			binary.LittleEndian.PutUint32(chunk[i*bytesPerSample:], math.Float32bits(real(s)))
			binary.LittleEndian.PutUint32(chunk[i*bytesPerSample+4:], math.Float32bits(imag(s)))
		}
		if _, err := bw.Write(chunk[:n*bytesPerSample]); err != nil {
			return fmt.Errorf("writing samples: %w", err)
		}
		samples = samples[n:]
	}

	return bw.Flush()
}

// ReadSamples decodes exactly n samples in the cf32_le layout
func ReadSamples(r io.Reader, n int) ([]complex64, error) {
	br := bufio.NewReader(r)
	samples := make([]complex64, n)
	chunk := make([]byte, chunkSamples*bytesPerSample)

	for read := 0; read < n; {
		m := min(n-read, chunkSamples)
		if _, err := io.ReadFull(br, chunk[:m*bytesPerSample]); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("%w: expected %d samples", ErrTruncatedSamples, n)
			}
			return nil, fmt.Errorf("reading samples: %w", err)
		}
		for i := 0; i < m; i++ {
			re := math.Float32frombits(binary.LittleEndian.Uint32(chunk[i*bytesPerSample:]))
			im := math.Float32frombits(binary.LittleEndian.Uint32(chunk[i*bytesPerSample+4:]))
			samples[read+i] = complex(re, im)
		}
		read += m
	}

	return samples, nil
}

// CountSamples returns the number of samples stored in a cf32_le file
func CountSamples(path string) (int, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if stat.Size()%bytesPerSample != 0 {
		return 0, fmt.Errorf("%w: %d bytes is not a multiple of %d", ErrTruncatedSamples, stat.Size(), bytesPerSample)
	}
	return int(stat.Size() / bytesPerSample), nil
}
