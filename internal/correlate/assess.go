package correlate

const (
	// DefaultConfidenceThreshold is the peak ratio below which an estimate is flagged
	DefaultConfidenceThreshold = 5.0

	// RecommendedPeakRatio is the peak ratio of a clearly trustworthy estimate
	RecommendedPeakRatio = 10.0
)

// LowConfidenceCauses lists what typically produces a weak correlation peak
var LowConfidenceCauses = []string{
	"the signals may not be correlated at all",
	"trimming may have lost the overlapping time span",
	"try filtering or moving the trim point",
}

// Assessment grades a Result against a peak ratio threshold. A low-confidence estimate is
// still a valid result.
type Assessment struct {
	Threshold     float64
	LowConfidence bool
	Recommended   bool // Peak ratio reaches RecommendedPeakRatio
	Causes        []string
}

// Assess grades r. A non-positive threshold selects DefaultConfidenceThreshold.
func Assess(r *Result, threshold float64) Assessment {
	if threshold <= 0 {
		threshold = DefaultConfidenceThreshold
	}

	a := Assessment{
		Threshold:   threshold,
		Recommended: r.PeakRatio >= RecommendedPeakRatio,
	}
	if r.PeakRatio < threshold {
		a.LowConfidence = true
		a.Causes = LowConfidenceCauses
	}
	return a
}
