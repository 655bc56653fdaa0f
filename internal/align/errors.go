package align

import (
	"fmt"
)

// AlignmentInputError rejects an AlignmentSet before any recording is trimmed
type AlignmentInputError struct {
	Index  int // Offending entry, or -1 when the set as a whole is invalid
	Reason string
}

func (e *AlignmentInputError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("alignment input: %s", e.Reason)
	}
	return fmt.Sprintf("alignment input %d: %s", e.Index, e.Reason)
}

func inputError(index int, format string, args ...any) *AlignmentInputError {
	return &AlignmentInputError{Index: index, Reason: fmt.Sprintf(format, args...)}
}
