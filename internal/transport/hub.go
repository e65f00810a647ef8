package transport

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/devlens/devlens/internal/event"
	"github.com/devlens/devlens/internal/protocol"
)

// Config tunes the hub. Zero values take defaults.
type Config struct {
	RateLimit      int           // messages per window per session
	QueueCap       int           // per-session backlog capacity
	RateWindow     time.Duration // delivery accounting window
	HeartbeatEvery time.Duration

	ServerVersion string
	ConfigHash    string
	Features      []string
}

const (
	defaultRateLimit      = 100
	defaultQueueCap       = 256
	defaultRateWindow     = time.Second
	defaultHeartbeatEvery = 30 * time.Second
)

// Hub owns the session registry. All registry mutation goes through
// Connect and session teardown; broadcast iterates a snapshot so
// connects and disconnects never race the iteration.
type Hub struct {
	cfg        Config
	dispatcher *Dispatcher
	now        func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session

	stopOnce    sync.Once
	stopped     chan struct{}
	unsubscribe []func()
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithHubClock overrides the hub's time source. Tests only.
func WithHubClock(now func() time.Time) HubOption {
	return func(h *Hub) { h.now = now }
}

// NewHub creates a hub dispatching commands through d and relaying
// engine events from bus to every connected session.
func NewHub(bus *event.Bus, d *Dispatcher, cfg Config, opts ...HubOption) *Hub {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.QueueCap <= 0 {
		cfg.QueueCap = defaultQueueCap
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = defaultRateWindow
	}
	if cfg.HeartbeatEvery <= 0 {
		cfg.HeartbeatEvery = defaultHeartbeatEvery
	}

	h := &Hub{
		cfg:        cfg,
		dispatcher: d,
		now:        time.Now,
		sessions:   make(map[string]*Session),
		stopped:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	if bus != nil {
		h.relayEvents(bus)
	}
	return h
}

// relayEvents forwards engine signals outward as protocol events.
func (h *Hub) relayEvents(bus *event.Bus) {
	relay := func(evtType string) event.Handler {
		return func(e event.Event) {
			msg, err := protocol.NewMessage(evtType, e.Payload)
			if err != nil {
				fmt.Fprintf(os.Stderr, "transport: relay %s: %v\n", evtType, err)
				return
			}
			h.Broadcast(msg, nil)
		}
	}

	pairs := []struct {
		kind event.Kind
		typ  string
	}{
		{event.RequestRecorded, protocol.EvtRequestRecorded},
		{event.RequestCompleted, protocol.EvtRequestResponse},
		{event.ErrorTracked, protocol.EvtErrorTracked},
		{event.ErrorSpike, protocol.EvtErrorSpikeAlert},
		{event.MetricsAlert, protocol.EvtPerfUpdate},
		{event.MetricsSnapshot, protocol.EvtMetricsUpdate},
	}
	for _, p := range pairs {
		h.unsubscribe = append(h.unsubscribe, bus.Subscribe(relay(p.typ), p.kind))
	}
}

// Connect registers conn as a new session, acknowledges the
// handshake, and starts its read loop.
func (h *Hub) Connect(conn Conn) *Session {
	s := newSession(conn, h.cfg.RateLimit, h.cfg.QueueCap, h.cfg.RateWindow, h.now, h.remove)

	h.mu.Lock()
	h.sessions[s.ID] = s
	h.mu.Unlock()

	ack, err := protocol.NewMessage(protocol.EvtHandshakeAck, protocol.HandshakeAckPayload{
		ProtocolVersion: protocol.Version,
		ServerVersion:   h.cfg.ServerVersion,
		SessionID:       s.ID,
		ConfigHash:      h.cfg.ConfigHash,
		Features:        h.cfg.Features,
	})
	if err == nil {
		_ = s.Send(ack)
	}

	go h.readLoop(s)
	return s
}

func (h *Hub) remove(s *Session) {
	h.mu.Lock()
	delete(h.sessions, s.ID)
	h.mu.Unlock()
}

// readLoop consumes inbound frames until the peer goes away. A parse
// failure answers with a structured error on this session only; the
// connection survives.
func (h *Hub) readLoop(s *Session) {
	defer s.Close()

	for {
		raw, err := s.conn.ReadFrame()
		if err != nil {
			return
		}
		s.markAlive()

		msg, err := protocol.Parse(raw)
		if err != nil {
			h.sendError(s, protocol.Message{}, "bad-request", err.Error())
			continue
		}
		h.dispatcher.Handle(h, s, msg)
	}
}

func (h *Hub) sendError(s *Session, cmd protocol.Message, code, detail string) {
	reply, err := protocol.Reply(cmd, protocol.EvtError, protocol.ErrorPayload{
		Code:    code,
		Message: detail,
	})
	if err != nil {
		return
	}
	_ = s.Send(reply)
}

// Broadcast sends msg to every live session matching pred (or all
// when pred is nil), iterating a snapshot of the registry.
func (h *Hub) Broadcast(msg protocol.Message, pred func(*Session) bool) {
	for _, s := range h.snapshot() {
		if pred != nil && !pred(s) {
			continue
		}
		_ = s.Send(msg)
	}
}

func (h *Hub) snapshot() []*Session {
	h.mu.RLock()
	out := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		out = append(out, s)
	}
	h.mu.RUnlock()
	return out
}

// SessionCount reports the number of registered sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Run drives the heartbeat sweep until ctx is cancelled, then shuts
// the hub down.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.HeartbeatEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.Shutdown()
			return
		case <-ticker.C:
			h.sweep()
		}
	}
}

// sweep probes every session and tears down the ones that missed two
// consecutive acknowledgments.
func (h *Hub) sweep() {
	for _, s := range h.snapshot() {
		if s.sweepHeartbeat() {
			_ = s.Close()
		}
	}
}

// Serve accepts connections from l until it is closed, registering
// each as an NDJSON session.
func (h *Hub) Serve(l net.Listener) error {
	for {
		raw, err := l.Accept()
		if err != nil {
			select {
			case <-h.stopped:
				return nil
			default:
				return fmt.Errorf("transport: accept: %w", err)
			}
		}
		h.Connect(NewNDJSONConn(raw))
	}
}

// Shutdown notifies every session of the impending termination and
// closes them. Idempotent; leaves no queued timers behind.
func (h *Hub) Shutdown() {
	h.stopOnce.Do(func() {
		close(h.stopped)
		for _, unsub := range h.unsubscribe {
			unsub()
		}

		notice, err := protocol.NewMessage(protocol.EvtShutdown, nil)
		for _, s := range h.snapshot() {
			if err == nil {
				_ = s.Send(notice)
			}
			_ = s.Close()
		}
	})
}
