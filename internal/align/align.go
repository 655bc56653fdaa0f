// Package align trims recordings of different absolute start times to one common origin.
package align

import (
	"math"
	"slices"

	"github.com/JYK2001/tdoa-gpsdo/internal/iq"
)

// rateTolerance is the relative difference under which two sample rates are treated as equal
const rateTolerance = 1e-9

// Entry pairs a recording with the externally known instant its first sample was captured
type Entry struct {
	Recording     *iq.Recording
	DeclaredStart float64
}

// AlignmentSet is a batch of recordings to normalize to one origin
type AlignmentSet struct {
	Entries []Entry
}

// NewAlignmentSet pairs recordings with declared start timestamps by position
func NewAlignmentSet(recordings []*iq.Recording, declared []float64) (*AlignmentSet, error) {
	if len(recordings) != len(declared) {
		return nil, inputError(-1, "%d recordings but %d declared timestamps", len(recordings), len(declared))
	}

	set := AlignmentSet{Entries: make([]Entry, len(recordings))}
	for i, rec := range recordings {
		set.Entries[i] = Entry{Recording: rec, DeclaredStart: declared[i]}
	}
	return &set, nil
}

// Origin returns the common start instant, the latest declared start of the set
func (s *AlignmentSet) Origin() float64 {
	origin := math.Inf(-1)
	for _, e := range s.Entries {
		origin = math.Max(origin, e.DeclaredStart)
	}
	return origin
}

// Offsets returns the number of leading samples dropped from each recording
func (s *AlignmentSet) Offsets() ([]int, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}

	origin := s.Origin()
	offsets := make([]int, len(s.Entries))

	for i, e := range s.Entries {
		offset := math.Round((origin - e.DeclaredStart) * e.Recording.SampleRate)
		if math.IsNaN(offset) || math.IsInf(offset, 0) {
			return nil, inputError(i, "offset is not finite")
		}
		if offset <= 0 {
			continue
		}
		if offset >= float64(e.Recording.Len()) {
			return nil, inputError(i, "offset of %.0f samples leaves nothing of a %d sample recording", offset, e.Recording.Len())
		}
		offsets[i] = int(offset)
	}

	return offsets, nil
}

func (s *AlignmentSet) validate() error {
	if s == nil || len(s.Entries) == 0 {
		return inputError(-1, "no recordings")
	}

	rate := 0.0
	for i, e := range s.Entries {
		if e.Recording == nil {
			return inputError(i, "recording is missing")
		}
		if math.IsNaN(e.DeclaredStart) || math.IsInf(e.DeclaredStart, 0) {
			return inputError(i, "declared start %g is not finite", e.DeclaredStart)
		}

		r := e.Recording.SampleRate
		if math.IsNaN(r) || math.IsInf(r, 0) || r <= 0 {
			return inputError(i, "sample rate %g is not positive", r)
		}
		if i == 0 {
			rate = r
		} else if math.Abs(r-rate) > rateTolerance*rate {
			return inputError(i, "sample rate %g differs from %g", r, rate)
		}
	}

	return nil
}

// Align trims every recording of the set to start at the set's origin. The whole set is
// validated before anything is trimmed; inputs are never modified and every output owns
// its samples.
func Align(set *AlignmentSet) ([]*iq.Recording, error) {
	offsets, err := set.Offsets()
	if err != nil {
		return nil, err
	}

	origin := set.Origin()
	out := make([]*iq.Recording, len(set.Entries))

	for i, e := range set.Entries {
		out[i] = &iq.Recording{
			Samples:        slices.Clone(e.Recording.Samples[offsets[i]:]),
			StartTimestamp: origin,
			SampleRate:     e.Recording.SampleRate,
			SourceID:       e.Recording.SourceID,
		}
	}

	return out, nil
}
