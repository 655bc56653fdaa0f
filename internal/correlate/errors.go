package correlate

import (
	"fmt"
)

// CorrelationInputError is returned instead of a result when the inputs cannot yield a
// meaningful delay
type CorrelationInputError struct {
	Reason string
}

func (e *CorrelationInputError) Error() string {
	return fmt.Sprintf("correlation input: %s", e.Reason)
}

func inputError(format string, args ...any) *CorrelationInputError {
	return &CorrelationInputError{Reason: fmt.Sprintf(format, args...)}
}
