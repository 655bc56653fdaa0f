package app

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/JYK2001/tdoa-gpsdo/internal/correlate"
	"github.com/JYK2001/tdoa-gpsdo/internal/iq"
)

// Report is the human readable outcome of one estimation
type Report struct {
	FileA, FileB string
	RecA, RecB   *iq.Recording
	Result       *correlate.Result
	Assessment   correlate.Assessment
}

func (r *Report) Write(out io.Writer) error {
	res := r.Result

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	lines := []string{
		fmt.Sprintf("File A:\t%s (%s)", filepath.Base(r.FileA), r.RecA.SourceID),
		fmt.Sprintf("File B:\t%s (%s)", filepath.Base(r.FileB), r.RecB.SourceID),
		fmt.Sprintf("Sample rate:\t%s", humanize.SIWithDigits(res.SampleRate, 3, "Hz")),
		fmt.Sprintf("Samples:\t%s (%s)", humanize.Comma(int64(res.N)), res.Method),
		fmt.Sprintf("Delay:\t%d samples", res.PeakLag),
		fmt.Sprintf("\t%.6e s", res.DelaySeconds),
		fmt.Sprintf("\t%.4f µs", res.DelayMicroseconds()),
		fmt.Sprintf("Peak ratio:\t%.2f (recommended > %g)", res.PeakRatio, correlate.RecommendedPeakRatio),
	}

	var err error
	for _, line := range lines {
		_, wErr := fmt.Fprintln(w, line)
		err = errors.Join(err, wErr)
	}
	if err = errors.Join(err, w.Flush()); err != nil {
		return err
	}

	if _, err = fmt.Fprintf(out, "\n%s\n", r.direction()); err != nil {
		return err
	}

	if !r.Assessment.LowConfidence {
		return nil
	}

	if _, err = fmt.Fprintf(out, "\nWARNING: low confidence, peak ratio %.2f is below %g\n", res.PeakRatio, r.Assessment.Threshold); err != nil {
		return err
	}
	for _, cause := range r.Assessment.Causes {
		if _, err = fmt.Fprintf(out, "  - %s\n", cause); err != nil {
			return err
		}
	}
	return nil
}

func (r *Report) direction() string {
	a, b := r.RecA.SourceID, r.RecB.SourceID
	switch {
	case r.Result.PeakLag > 0:
		return fmt.Sprintf("The signal reached %s %s after %s.", a, humanize.SIWithDigits(r.Result.DelaySeconds, 3, "s"), b)
	case r.Result.PeakLag < 0:
		return fmt.Sprintf("The signal reached %s %s after %s.", b, humanize.SIWithDigits(-r.Result.DelaySeconds, 3, "s"), a)
	default:
		return fmt.Sprintf("The signal reached %s and %s at the same time.", a, b)
	}
}
