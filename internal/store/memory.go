package store

import (
	"sync"
	"time"
)

// Memory is the bounded in-memory backend. Records are evicted FIFO
// once MaxRecords is exceeded, and lazily once older than TTL (zero
// TTL disables expiry). It is the default backend: capture must stay
// cheap enough to sit on a live request path.
type Memory struct {
	mu    sync.RWMutex
	byID  map[string]Record
	order []string // insertion order, oldest first
	max   int
	ttl   time.Duration
	now   func() time.Time
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithTTL sets a time-to-live after which records are dropped.
func WithTTL(ttl time.Duration) MemoryOption {
	return func(m *Memory) { m.ttl = ttl }
}

// withClock overrides the time source. Tests only.
func withClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

// NewMemory creates a bounded in-memory store holding at most
// maxRecords entries. maxRecords below 1 defaults to 1000.
func NewMemory(maxRecords int, opts ...MemoryOption) *Memory {
	if maxRecords < 1 {
		maxRecords = 1000
	}
	m := &Memory{
		byID: make(map[string]Record),
		max:  maxRecords,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Put inserts or replaces a record, evicting the oldest on overflow.
func (m *Memory) Put(rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sweepLocked()

	if _, exists := m.byID[rec.ID]; !exists {
		m.order = append(m.order, rec.ID)
	}
	m.byID[rec.ID] = rec

	for len(m.order) > m.max {
		oldest := m.order[0]
		m.order = m.order[1:]
		delete(m.byID, oldest)
	}
	return nil
}

// Get returns the record with the given id or ErrNotFound.
func (m *Memory) Get(id string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.byID[id]
	if !ok || m.expiredLocked(rec) {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// All returns every live record, oldest first.
func (m *Memory) All() ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Record, 0, len(m.order))
	for _, id := range m.order {
		if rec, ok := m.byID[id]; ok && !m.expiredLocked(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Recent returns up to n of the newest records, oldest first.
func (m *Memory) Recent(n int) ([]Record, error) {
	all, err := m.All()
	if err != nil {
		return nil, err
	}
	if n < len(all) {
		all = all[len(all)-n:]
	}
	return all, nil
}

// Delete removes one record. Unknown ids are a no-op.
func (m *Memory) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byID[id]; !ok {
		return nil
	}
	delete(m.byID, id)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

// Clear removes every record.
func (m *Memory) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID = make(map[string]Record)
	m.order = nil
	return nil
}

// Count returns the number of live records.
func (m *Memory) Count() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked()
	return len(m.order), nil
}

// Close is a no-op for the in-memory backend.
func (m *Memory) Close() error { return nil }

// Sweep drops expired records eagerly. The capture flush worker calls
// this periodically so expiry does not depend on read traffic.
func (m *Memory) Sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked()
}

func (m *Memory) expiredLocked(rec Record) bool {
	return m.ttl > 0 && m.now().Sub(rec.Timestamp) > m.ttl
}

// sweepLocked removes expired records from the front of the order
// queue. Records are inserted in time order, so expiry is a prefix.
func (m *Memory) sweepLocked() {
	if m.ttl == 0 {
		return
	}
	for len(m.order) > 0 {
		rec, ok := m.byID[m.order[0]]
		if ok && !m.expiredLocked(rec) {
			break
		}
		delete(m.byID, m.order[0])
		m.order = m.order[1:]
	}
}
