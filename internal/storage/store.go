package storage

import (
	"context"

	_ "github.com/mattn/go-sqlite3"
)

// Catalog indexes capture sessions, the recordings they produce and the delay measurements
// computed from them. Sample data stays in the recording files; the catalog only keeps
// their metadata and paths.
type Catalog interface {
	// CreateSession registers a capture run of one receiver and returns its identifier.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - runID: Identifier shared by all receivers of one capture run
	//   - receiverID: Serial or identifier of the receiver
	//   - backend: Receiver backend name (e.g., "sim")
	//   - config: Optional receiver configuration. Can be string, []byte, or JSON-serializable object
	//
	// Returns:
	//   - sessionID: Unique identifier for the created session
	//   - error: If session creation fails or context is cancelled
	CreateSession(ctx context.Context, runID, receiverID, backend string, config any) (sessionID int64, err error)

	// SetSessionAnchor records the device time returned by the synchronization handshake.
	SetSessionAnchor(ctx context.Context, sessionID int64, anchor float64) error

	// Session retrieves a session by its ID.
	//
	// Returns:
	//   - session: Pointer to session data
	//   - error: If retrieval fails, the session does not exist or context is cancelled
	Session(ctx context.Context, id int64) (session *Session, err error)

	// Sessions returns all sessions ordered by start time.
	Sessions(ctx context.Context) (sessions []*Session, err error)

	// StoreCapture catalogs a persisted recording.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - c: Capture metadata; ID and CreatedAt are assigned by the store
	//
	// Returns:
	//   - captureID: Unique identifier for the stored capture
	//   - error: If storage fails or context is cancelled
	StoreCapture(ctx context.Context, c *Capture) (captureID int64, err error)

	// Captures lists cataloged recordings, optionally filtered (WithSession, WithSource,
	// WithStartRange). Results are ordered by start timestamp.
	Captures(ctx context.Context, opts ...CaptureFilter) (captures []*Capture, err error)

	// StoreMeasurement saves a delay estimate.
	StoreMeasurement(ctx context.Context, m *Measurement) (measurementID int64, err error)

	// Measurements returns all stored delay estimates in insertion order.
	Measurements(ctx context.Context) (measurements []*Measurement, err error)

	// Close releases all database connections and resources.
	// It is safe to call Close multiple times.
	Close() error
}

var _ Catalog = (*SqliteStore)(nil)
