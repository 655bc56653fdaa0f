package storage

import (
	_ "embed"
)

const (
	insertSessionSQL = `
INSERT INTO sessions (start_time,
                      run_id,
                      receiver_id,
                      backend,
                      config)
VALUES (?, ?, ?, ?, ?)`

	updateSessionAnchorSQL = `
UPDATE sessions
SET anchor_timestamp = ?
WHERE id = ?`

	selectSessionsSQL = `
SELECT id,
       start_time,
       run_id,
       receiver_id,
       backend,
       anchor_timestamp,
       config
FROM sessions`

	selectSessionSQL = selectSessionsSQL + `
WHERE id = ?`

	insertCaptureSQL = `
INSERT INTO captures (session_id,
                      path,
                      source_id,
                      start_timestamp,
                      sample_rate,
                      center_frequency,
                      gain,
                      num_samples,
                      overflows,
                      created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectCapturesSQL = `
SELECT id,
       session_id,
       path,
       source_id,
       start_timestamp,
       sample_rate,
       center_frequency,
       gain,
       num_samples,
       overflows,
       created_at
FROM captures`

	insertMeasurementSQL = `
INSERT INTO measurements (file_a,
                          file_b,
                          sample_rate,
                          num_samples,
                          method,
                          peak_lag,
                          delay_seconds,
                          peak_ratio,
                          low_confidence,
                          created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectMeasurementsSQL = `
SELECT id,
       file_a,
       file_b,
       sample_rate,
       num_samples,
       method,
       peak_lag,
       delay_seconds,
       peak_ratio,
       low_confidence,
       created_at
FROM measurements
ORDER BY created_at, id`
)

//go:embed schema.sql
var initSchemaSQL string
