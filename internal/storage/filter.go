package storage

import (
	"strings"
)

// CaptureFilter narrows a Captures query
type CaptureFilter func(q *captureQuery)

type captureQuery struct {
	conditions []string
	args       []any
}

// WithSession selects captures of one session
func WithSession(sessionID int64) CaptureFilter {
	return func(q *captureQuery) {
		q.conditions = append(q.conditions, "session_id = ?")
		q.args = append(q.args, sessionID)
	}
}

// WithSource selects captures stamped with the given source ID
func WithSource(sourceID string) CaptureFilter {
	return func(q *captureQuery) {
		q.conditions = append(q.conditions, "source_id = ?")
		q.args = append(q.args, sourceID)
	}
}

// WithStartRange selects captures whose start timestamp lies in [from, to]
func WithStartRange(from, to float64) CaptureFilter {
	return func(q *captureQuery) {
		q.conditions = append(q.conditions, "start_timestamp BETWEEN ? AND ?")
		q.args = append(q.args, from, to)
	}
}

func buildCaptureQuery(opts ...CaptureFilter) (string, []any) {
	var q captureQuery
	for _, opt := range opts {
		opt(&q)
	}

	var sb strings.Builder
	sb.WriteString(selectCapturesSQL)

	if len(q.conditions) > 0 {
		sb.WriteString("\nWHERE ")
		sb.WriteString(strings.Join(q.conditions, " AND "))
	}
	sb.WriteString("\nORDER BY start_timestamp, id")

	return sb.String(), q.args
}
