package transport

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/devlens/devlens/internal/protocol"
)

// ErrSessionClosed is returned by Send after the session is torn down.
var ErrSessionClosed = errors.New("transport: session closed")

// Session is one connected inspector client. Outbound delivery is
// rate-limited per one-second window; overflow goes to a bounded
// drop-oldest queue that flushes in order at the window boundary.
type Session struct {
	ID string

	conn     Conn
	limit    int
	queueCap int
	window   time.Duration
	now      func() time.Time
	onClose  func(*Session)

	mu          sync.Mutex
	queue       []protocol.Message
	windowStart time.Time
	windowCount int
	flushTimer  *time.Timer
	closed      bool
	missedPings int
	clientName  string
	clientVer   string

	dropped int64
}

func newSession(conn Conn, limit, queueCap int, window time.Duration, now func() time.Time, onClose func(*Session)) *Session {
	return &Session{
		ID:       newSessionID(),
		conn:     conn,
		limit:    limit,
		queueCap: queueCap,
		window:   window,
		now:      now,
		onClose:  onClose,
	}
}

func newSessionID() string {
	var b [6]byte
	_, _ = rand.Read(b[:])
	return fmt.Sprintf("sess-%s", hex.EncodeToString(b[:]))
}

// Send delivers msg, preserving per-session order. Under the window
// budget and with an empty queue it writes immediately; otherwise the
// message is queued (oldest dropped past capacity) and a flush is
// scheduled for the window boundary. A failed write re-queues the
// message rather than returning an error.
func (s *Session) Send(msg protocol.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	s.rollWindowLocked()

	if len(s.queue) == 0 && s.windowCount < s.limit {
		s.windowCount++
		if err := s.conn.WriteMessage(msg); err != nil {
			s.enqueueLocked(msg)
			s.scheduleFlushLocked()
		}
		return nil
	}

	s.enqueueLocked(msg)
	s.scheduleFlushLocked()
	return nil
}

func (s *Session) rollWindowLocked() {
	now := s.now()
	if now.Sub(s.windowStart) >= s.window {
		s.windowStart = now
		s.windowCount = 0
	}
}

func (s *Session) enqueueLocked(msg protocol.Message) {
	if len(s.queue) >= s.queueCap {
		copy(s.queue, s.queue[1:])
		s.queue = s.queue[:len(s.queue)-1]
		s.dropped++
	}
	s.queue = append(s.queue, msg)
}

func (s *Session) scheduleFlushLocked() {
	if s.flushTimer != nil || s.closed {
		return
	}
	delay := s.window - s.now().Sub(s.windowStart)
	if delay < 0 {
		delay = 0
	}
	s.flushTimer = time.AfterFunc(delay, s.flush)
}

// flush drains as much of the queue as the fresh window allows, in
// order, re-scheduling itself while a backlog remains.
func (s *Session) flush() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.flushTimer = nil
	if s.closed {
		return
	}
	s.rollWindowLocked()

	for len(s.queue) > 0 && s.windowCount < s.limit {
		msg := s.queue[0]
		s.queue = s.queue[1:]
		s.windowCount++
		if err := s.conn.WriteMessage(msg); err != nil {
			s.queue = append([]protocol.Message{msg}, s.queue...)
			break
		}
	}
	if len(s.queue) > 0 {
		s.scheduleFlushLocked()
	}
}

// QueueLen reports the current backlog size.
func (s *Session) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Dropped reports messages discarded by queue overflow.
func (s *Session) Dropped() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// setClient records the identity a client reported in its handshake.
func (s *Session) setClient(name, version string) {
	s.mu.Lock()
	s.clientName = name
	s.clientVer = version
	s.mu.Unlock()
}

// Client reports the handshake-declared client name and version, empty
// until the client introduces itself.
func (s *Session) Client() (name, version string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientName, s.clientVer
}

// markAlive resets the heartbeat miss counter. Called on every
// inbound frame.
func (s *Session) markAlive() {
	s.mu.Lock()
	s.missedPings = 0
	s.mu.Unlock()
}

// sweepHeartbeat sends one liveness probe and reports whether the
// session has already missed two consecutive acknowledgments.
func (s *Session) sweepHeartbeat() (dead bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return true
	}
	if s.missedPings >= 2 {
		s.mu.Unlock()
		return true
	}
	s.missedPings++
	s.mu.Unlock()

	probe, err := protocol.NewMessage(protocol.EvtHeartbeat, nil)
	if err == nil {
		_ = s.Send(probe)
	}
	return false
}

// Close tears the session down exactly once: the queue is discarded,
// the flush timer cancelled, the connection closed, and the session
// deregistered. Safe under concurrent disconnect signals.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.queue = nil
	if s.flushTimer != nil {
		s.flushTimer.Stop()
		s.flushTimer = nil
	}
	s.mu.Unlock()

	err := s.conn.Close()
	if s.onClose != nil {
		s.onClose(s)
	}
	return err
}
