package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite is the durable backend. Each record is one row; the id and
// timestamp columns double as the enumeration index, so listing never
// deserializes payloads. Capacity is enforced per Put by trimming the
// oldest rows beyond maxRecords (zero disables trimming).
type SQLite struct {
	db  *sql.DB
	max int
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS records (
	id   TEXT PRIMARY KEY,
	ts   INTEGER NOT NULL,
	data BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_records_ts ON records(ts);
`

// OpenSQLite opens (or creates) a SQLite-backed store at path.
// maxRecords bounds the table size; 0 means unbounded.
func OpenSQLite(path string, maxRecords int) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	// A single writer keeps Put ordering deterministic and avoids
	// SQLITE_BUSY under concurrent flushes.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: init schema: %w", err)
	}
	return &SQLite{db: db, max: maxRecords}, nil
}

// Put inserts or replaces a record, then trims rows beyond capacity.
func (s *SQLite) Put(rec Record) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO records (id, ts, data) VALUES (?, ?, ?)`,
		rec.ID, rec.Timestamp.UnixNano(), rec.Data,
	)
	if err != nil {
		return fmt.Errorf("store: put %s: %w", rec.ID, err)
	}
	if s.max > 0 {
		_, err = s.db.Exec(
			`DELETE FROM records WHERE id IN (
				SELECT id FROM records ORDER BY ts DESC LIMIT -1 OFFSET ?)`,
			s.max,
		)
		if err != nil {
			return fmt.Errorf("store: trim: %w", err)
		}
	}
	return nil
}

// Get returns the record with the given id or ErrNotFound.
func (s *SQLite) Get(id string) (Record, error) {
	var ts int64
	rec := Record{ID: id}
	err := s.db.QueryRow(`SELECT ts, data FROM records WHERE id = ?`, id).
		Scan(&ts, &rec.Data)
	if err == sql.ErrNoRows {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("store: get %s: %w", id, err)
	}
	rec.Timestamp = time.Unix(0, ts)
	return rec, nil
}

// All returns every record, oldest first.
func (s *SQLite) All() ([]Record, error) {
	return s.query(`SELECT id, ts, data FROM records ORDER BY ts ASC`)
}

// Recent returns up to n of the newest records, oldest first.
func (s *SQLite) Recent(n int) ([]Record, error) {
	recs, err := s.query(
		`SELECT id, ts, data FROM records ORDER BY ts DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	// Newest-first from the query; flip to chronological.
	for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
		recs[i], recs[j] = recs[j], recs[i]
	}
	return recs, nil
}

func (s *SQLite) query(q string, args ...any) ([]Record, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var ts int64
		if err := rows.Scan(&rec.ID, &ts, &rec.Data); err != nil {
			return nil, fmt.Errorf("store: scan: %w", err)
		}
		rec.Timestamp = time.Unix(0, ts)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Delete removes one record. Unknown ids are a no-op.
func (s *SQLite) Delete(id string) error {
	if _, err := s.db.Exec(`DELETE FROM records WHERE id = ?`, id); err != nil {
		return fmt.Errorf("store: delete %s: %w", id, err)
	}
	return nil
}

// Clear removes every record.
func (s *SQLite) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM records`); err != nil {
		return fmt.Errorf("store: clear: %w", err)
	}
	return nil
}

// Count returns the number of stored records.
func (s *SQLite) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
