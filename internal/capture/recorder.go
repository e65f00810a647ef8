package capture

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/devlens/devlens/internal/event"
	"github.com/devlens/devlens/internal/redact"
	"github.com/devlens/devlens/internal/store"
)

const (
	// defaultQueueSize bounds the persistence queue between the host
	// request path and the flush worker.
	defaultQueueSize = 1024
)

// Recorder captures request/response pairs. Begin and Complete sit on
// the host's request path, so both only touch an in-process map and a
// non-blocking queue; persistence happens on the flush worker.
type Recorder struct {
	store     store.Store
	sanitizer *redact.Sanitizer
	bus       *event.Bus

	mu      sync.Mutex
	pending map[string]*RecordedRequest

	flushQ  chan store.Record
	dropped atomic.Int64

	now func() time.Time
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithClock overrides the recorder's time source. Tests only.
func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) { r.now = now }
}

// NewRecorder creates a Recorder persisting to st and publishing
// capture events on bus.
func NewRecorder(st store.Store, san *redact.Sanitizer, bus *event.Bus, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		store:     st,
		sanitizer: san,
		bus:       bus,
		pending:   make(map[string]*RecordedRequest),
		flushQ:    make(chan store.Record, defaultQueueSize),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Begin records the start of a request and returns its id. O(1): the
// partial record goes into the pending map only. Never fails past the
// boundary — the host request path must not be disturbed.
func (r *Recorder) Begin(meta RequestMeta) string {
	now := r.now()
	rec := &RecordedRequest{
		ID:        newRequestID(now),
		Timestamp: now,
		Method:    meta.Method,
		URL:       meta.URL,
		Headers:   r.sanitizer.Headers(meta.Headers),
		Query:     r.sanitizer.Headers(meta.Query),
		Params:    meta.Params,
		Body:      meta.Body,
	}

	r.mu.Lock()
	r.pending[rec.ID] = rec
	r.mu.Unlock()

	r.bus.Publish(event.RequestRecorded, *rec)
	return rec.ID
}

// Complete attaches the response to a pending capture and hands the
// finished record to the flush worker. Unknown ids (already evicted,
// or never begun) are logged and ignored.
func (r *Recorder) Complete(id string, resp ResponseMeta, endTime time.Time) {
	r.mu.Lock()
	rec, ok := r.pending[id]
	if ok {
		delete(r.pending, id)
	}
	r.mu.Unlock()

	if !ok {
		fmt.Fprintf(os.Stderr, "capture: complete for unknown request %s\n", id)
		return
	}

	rec.Duration = endTime.Sub(rec.Timestamp)
	rec.Response = &RecordedResponse{
		StatusCode: resp.StatusCode,
		Headers:    r.sanitizer.Headers(resp.Headers),
		Body:       resp.Body,
		Timestamp:  endTime,
	}

	r.enqueue(*rec)
	r.bus.Publish(event.RequestCompleted, *rec)
}

// Record stores a fully-formed request (used by live replay to persist
// the derived record).
func (r *Recorder) Record(rec RecordedRequest) {
	r.enqueue(rec)
	r.bus.Publish(event.RequestCompleted, rec)
}

// enqueue hands a record to the flush worker without ever blocking.
// A full queue drops the record; captures are advisory data.
func (r *Recorder) enqueue(rec RecordedRequest) {
	data, err := json.Marshal(rec)
	if err != nil {
		fmt.Fprintf(os.Stderr, "capture: marshal %s: %v\n", rec.ID, err)
		return
	}
	select {
	case r.flushQ <- store.Record{ID: rec.ID, Timestamp: rec.Timestamp, Data: data}:
	default:
		r.dropped.Add(1)
	}
}

// Dropped reports how many completed captures were discarded because
// the flush queue was full.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// PendingCount reports captures begun but not yet completed.
func (r *Recorder) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Get returns a stored request by id. Pending (incomplete) captures
// are visible too, so inspector clients see in-flight traffic.
func (r *Recorder) Get(id string) (RecordedRequest, error) {
	r.mu.Lock()
	if rec, ok := r.pending[id]; ok {
		cp := *rec
		r.mu.Unlock()
		return cp, nil
	}
	r.mu.Unlock()

	raw, err := r.store.Get(id)
	if err != nil {
		return RecordedRequest{}, err
	}
	return decodeRecord(raw)
}

// Recent returns up to n of the newest completed captures, oldest first.
func (r *Recorder) Recent(n int) ([]RecordedRequest, error) {
	raw, err := r.store.Recent(n)
	if err != nil {
		return nil, err
	}
	return decodeRecords(raw)
}

// All returns every completed capture, oldest first.
func (r *Recorder) All() ([]RecordedRequest, error) {
	raw, err := r.store.All()
	if err != nil {
		return nil, err
	}
	return decodeRecords(raw)
}

// Delete removes one stored capture.
func (r *Recorder) Delete(id string) error {
	return r.store.Delete(id)
}

// Clear removes all stored captures.
func (r *Recorder) Clear() error {
	return r.store.Clear()
}

// Count returns the number of completed captures in the store.
func (r *Recorder) Count() (int, error) {
	return r.store.Count()
}

// Export renders every stored capture as a single JSON document.
func (r *Recorder) Export() ([]byte, error) {
	recs, err := r.All()
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(recs, "", "  ")
}

func decodeRecord(raw store.Record) (RecordedRequest, error) {
	var rec RecordedRequest
	if err := json.Unmarshal(raw.Data, &rec); err != nil {
		return RecordedRequest{}, fmt.Errorf("capture: decode %s: %w", raw.ID, err)
	}
	return rec, nil
}

func decodeRecords(raw []store.Record) ([]RecordedRequest, error) {
	out := make([]RecordedRequest, 0, len(raw))
	for _, rr := range raw {
		rec, err := decodeRecord(rr)
		if err != nil {
			// One corrupt record must not hide the rest.
			fmt.Fprintf(os.Stderr, "%v\n", err)
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// newRequestID builds a collision-free id from monotonic time plus a
// random suffix.
func newRequestID(now time.Time) string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("req-%d", now.UnixNano())
	}
	return fmt.Sprintf("req-%d-%s", now.UnixNano(), hex.EncodeToString(b))
}
