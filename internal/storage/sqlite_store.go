package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"
)

// SqliteStore is a Catalog backed by a Sqlite database
type SqliteStore struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewSqliteStore returns a store for the database at dbPath. Connections are opened lazily;
// the schema is created with the first write.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath}
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}
		// stations share one writer
		db.SetMaxOpenConns(1)

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

func (s *SqliteStore) CreateSession(ctx context.Context, runID, receiverID, backend string, config any) (sessionID int64, err error) {
	configData, err := toNullString(config)
	if err != nil {
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, insertSessionSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	result, err := stmt.ExecContext(ctx, time.Now().UTC(), runID, receiverID, backend, configData)
	if err != nil {
		err = fmt.Errorf("inserting session: %w", err)
		return
	}

	sessionID, err = result.LastInsertId()
	if err != nil {
		err = fmt.Errorf("getting session ID: %w", err)
	}
	return
}

func (s *SqliteStore) SetSessionAnchor(ctx context.Context, sessionID int64, anchor float64) error {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	result, err := db.ExecContext(ctx, updateSessionAnchorSQL, anchor, sessionID)
	if err != nil {
		return fmt.Errorf("updating session anchor: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("session %d: %w", sessionID, sql.ErrNoRows)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var sess Session
	var anchor sql.NullFloat64
	var config sql.NullString

	if err := row.Scan(&sess.ID, &sess.StartTime, &sess.RunID, &sess.ReceiverID, &sess.Backend, &anchor, &config); err != nil {
		return nil, err
	}

	sess.AnchorTimestamp = fromNullFloat64(anchor)
	sess.Config = fromNullString(config)
	return &sess, nil
}

func (s *SqliteStore) Session(ctx context.Context, id int64) (session *Session, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, selectSessionSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	if session, err = scanSession(stmt.QueryRowContext(ctx, id)); err != nil {
		err = fmt.Errorf("scanning session: %w", err)
	}
	return
}

func (s *SqliteStore) Sessions(ctx context.Context) (sessions []*Session, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectSessionsSQL+"\nORDER BY start_time, id")
	if err != nil {
		err = fmt.Errorf("querying sessions: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var sess *Session
		if sess, err = scanSession(rows); err != nil {
			err = fmt.Errorf("scanning session: %w", err)
			return
		}
		sessions = append(sessions, sess)
	}
	err = rows.Err()
	return
}

// StoreCapture inserts the capture in a transaction that also verifies the owning session exists
func (s *SqliteStore) StoreCapture(ctx context.Context, c *Capture) (captureID int64, err error) {
	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		err = fmt.Errorf("beginning transaction: %w", err)
		return
	}
	defer rollbackWithError(tx, &err)

	var exists int
	if err = tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions WHERE id = ?", c.SessionID).Scan(&exists); err != nil {
		err = fmt.Errorf("looking up session: %w", err)
		return
	}
	if exists == 0 {
		err = fmt.Errorf("session %d: %w", c.SessionID, sql.ErrNoRows)
		return
	}

	result, err := tx.ExecContext(ctx, insertCaptureSQL,
		c.SessionID,
		c.Path,
		c.SourceID,
		c.StartTimestamp,
		c.SampleRate,
		c.CenterFrequency,
		toNullFloat64(c.Gain),
		c.NumSamples,
		c.Overflows,
		time.Now().UTC(),
	)
	if err != nil {
		err = fmt.Errorf("inserting capture: %w", err)
		return
	}

	if captureID, err = result.LastInsertId(); err != nil {
		err = fmt.Errorf("getting capture ID: %w", err)
		return
	}

	if err = tx.Commit(); err != nil {
		err = fmt.Errorf("committing transaction: %w", err)
	}
	return
}

func (s *SqliteStore) Captures(ctx context.Context, opts ...CaptureFilter) (captures []*Capture, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	query, args := buildCaptureQuery(opts...)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		err = fmt.Errorf("querying captures: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var c Capture
		var gain sql.NullFloat64
		if err = rows.Scan(&c.ID, &c.SessionID, &c.Path, &c.SourceID, &c.StartTimestamp, &c.SampleRate,
			&c.CenterFrequency, &gain, &c.NumSamples, &c.Overflows, &c.CreatedAt); err != nil {
			err = fmt.Errorf("scanning capture: %w", err)
			return
		}
		c.Gain = fromNullFloat64(gain)
		captures = append(captures, &c)
	}
	err = rows.Err()
	return
}

func (s *SqliteStore) StoreMeasurement(ctx context.Context, m *Measurement) (measurementID int64, err error) {
	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, insertMeasurementSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	result, err := stmt.ExecContext(ctx,
		m.FileA,
		m.FileB,
		m.SampleRate,
		m.NumSamples,
		m.Method,
		m.PeakLag,
		m.DelaySeconds,
		m.PeakRatio,
		m.LowConfidence,
		time.Now().UTC(),
	)
	if err != nil {
		err = fmt.Errorf("inserting measurement: %w", err)
		return
	}

	measurementID, err = result.LastInsertId()
	if err != nil {
		err = fmt.Errorf("getting measurement ID: %w", err)
	}
	return
}

func (s *SqliteStore) Measurements(ctx context.Context) (measurements []*Measurement, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectMeasurementsSQL)
	if err != nil {
		err = fmt.Errorf("querying measurements: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var m Measurement
		if err = rows.Scan(&m.ID, &m.FileA, &m.FileB, &m.SampleRate, &m.NumSamples, &m.Method,
			&m.PeakLag, &m.DelaySeconds, &m.PeakRatio, &m.LowConfidence, &m.CreatedAt); err != nil {
			err = fmt.Errorf("scanning measurement: %w", err)
			return
		}
		measurements = append(measurements, &m)
	}
	err = rows.Err()
	return
}

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.writeDB != nil {
			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		s.closeErr = errors.Join(writeErr, readErr)
	})

	return s.closeErr
}
