// Copyright 2025 Matthew Gall <me@matthewgall.dev>
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"database/sql"
	"errors"
	"time"

	"github.com/mattn/go-sqlite3"
)

// Store is the SQLite-backed consumption store. One logical table keyed by
// (meter_serial, interval_start); a second insert with the same key is
// counted as skipped, never overwritten. Single-writer: concurrent writers
// against the same file are not supported.
type Store struct {
	db   *sql.DB
	path string
}

// OpenStore opens (or creates) the consumption database at the given path
// and ensures the schema exists. Schema creation is idempotent, so reopening
// an existing database is always safe. Use ":memory:" for tests.
func OpenStore(path string) (*Store, error) {
	if path == "" {
		return nil, &ValidationError{Field: "db_path", Message: "database path is required"}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, &StoreError{Op: "open", Path: path, Err: err}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database location the store was opened with.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) initSchema() error {
	// The UNIQUE constraint on (meter_serial, interval_start) also serves
	// as the lookup index for latest-interval queries.
	schema := `
	CREATE TABLE IF NOT EXISTS consumption (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		meter_serial TEXT NOT NULL,
		meter_type TEXT NOT NULL,
		interval_start TEXT NOT NULL,
		interval_end TEXT NOT NULL,
		consumption_kwh REAL NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE(meter_serial, interval_start)
	)`

	if _, err := s.db.Exec(schema); err != nil {
		return &StoreError{Op: "init", Path: s.path, Err: err}
	}
	return nil
}

// InsertBatch inserts the given records, stamping created_at at insert time.
// A record whose (meter_serial, interval_start) key already exists is
// skipped and the existing row is left untouched. An empty batch is a no-op
// returning (0, 0).
func (s *Store) InsertBatch(records []IntervalRecord) (inserted, skipped int, err error) {
	if len(records) == 0 {
		return 0, 0, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, 0, &StoreError{Op: "insert", Path: s.path, Err: err}
	}

	stmt, err := tx.Prepare(`
		INSERT INTO consumption
		(meter_serial, meter_type, interval_start, interval_end, consumption_kwh, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return 0, 0, &StoreError{Op: "insert", Path: s.path, Err: err}
	}
	defer stmt.Close()

	createdAt := time.Now().Format(time.RFC3339)

	for _, record := range records {
		_, execErr := stmt.Exec(
			record.MeterSerial,
			record.MeterType,
			record.IntervalStart,
			record.IntervalEnd,
			record.ConsumptionKWh,
			createdAt,
		)
		if execErr != nil {
			var sqliteErr sqlite3.Error
			if errors.As(execErr, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
				// Duplicate interval, already stored
				skipped++
				continue
			}
			tx.Rollback()
			return 0, 0, &StoreError{Op: "insert", Path: s.path, Err: execErr}
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, &StoreError{Op: "insert", Path: s.path, Err: err}
	}

	return inserted, skipped, nil
}

// LatestIntervalStart returns the most recent interval_start stored for a
// meter, or ok=false when the meter has no records. ISO-8601 text sorts
// lexicographically in chronological order, so MAX on the TEXT column is
// correct.
func (s *Store) LatestIntervalStart(meterSerial string) (latest string, ok bool, err error) {
	row := s.db.QueryRow(`
		SELECT interval_start
		FROM consumption
		WHERE meter_serial = ?
		ORDER BY interval_start DESC
		LIMIT 1
	`, meterSerial)

	if err := row.Scan(&latest); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, &StoreError{Op: "latest_interval", Path: s.path, Err: err}
	}

	return latest, true, nil
}

// Count returns the number of stored records, filtered to one meter when
// meterSerial is non-empty.
func (s *Store) Count(meterSerial string) (int, error) {
	query := "SELECT COUNT(*) FROM consumption"
	var args []interface{}

	if meterSerial != "" {
		query += " WHERE meter_serial = ?"
		args = append(args, meterSerial)
	}

	var count int
	if err := s.db.QueryRow(query, args...).Scan(&count); err != nil {
		return 0, &StoreError{Op: "count", Path: s.path, Err: err}
	}

	return count, nil
}

// Query returns stored records ordered ascending by interval_start. All
// filters are optional and conjunctive; the start/end range applies to
// interval_start and is inclusive on both bounds.
func (s *Store) Query(meterSerial, start, end string) ([]IntervalRecord, error) {
	query := `
		SELECT id, meter_serial, meter_type, interval_start, interval_end, consumption_kwh, created_at
		FROM consumption
		WHERE 1=1
	`
	var args []interface{}

	if meterSerial != "" {
		query += " AND meter_serial = ?"
		args = append(args, meterSerial)
	}
	if start != "" {
		query += " AND interval_start >= ?"
		args = append(args, start)
	}
	if end != "" {
		query += " AND interval_start <= ?"
		args = append(args, end)
	}

	query += " ORDER BY interval_start"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, &StoreError{Op: "query", Path: s.path, Err: err}
	}
	defer rows.Close()

	var records []IntervalRecord
	for rows.Next() {
		var r IntervalRecord
		if err := rows.Scan(&r.ID, &r.MeterSerial, &r.MeterType, &r.IntervalStart, &r.IntervalEnd, &r.ConsumptionKWh, &r.CreatedAt); err != nil {
			return nil, &StoreError{Op: "query", Path: s.path, Err: err}
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "query", Path: s.path, Err: err}
	}

	return records, nil
}
