// Package store defines the pluggable key-value backend for captured
// requests and aggregated errors, plus the two bundled implementations
// (bounded in-memory, SQLite). Engines treat eviction as a capacity
// concern only and never depend on a particular policy for correctness.
package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a record id is unknown to the backend,
// including ids already evicted under capacity or TTL pressure.
var ErrNotFound = errors.New("store: record not found")

// Record is one stored entity. Data holds the JSON encoding of the
// engine-level type; backends never interpret it.
type Record struct {
	ID        string
	Timestamp time.Time
	Data      []byte
}

// Store is the backend contract consumed by the capture engine and the
// error aggregator. Implementations must be safe for concurrent use.
type Store interface {
	// Put inserts or replaces a record. Capacity pressure is resolved
	// by silent eviction, never by rejecting the new record.
	Put(rec Record) error

	// Get returns the record with the given id or ErrNotFound.
	Get(id string) (Record, error)

	// All returns every live record, oldest first.
	All() ([]Record, error)

	// Recent returns up to n of the newest records, oldest first.
	Recent(n int) ([]Record, error)

	// Delete removes one record. Deleting an unknown id is a no-op.
	Delete(id string) error

	// Clear removes every record.
	Clear() error

	// Count returns the number of live records.
	Count() (int, error)

	// Close releases backend resources.
	Close() error
}
