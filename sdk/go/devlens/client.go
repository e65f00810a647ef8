package devlens

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/devlens/devlens/internal/protocol"
)

// ErrClosed is returned by calls made after Close.
var ErrClosed = errors.New("devlens: client closed")

// ServerError is a structured error event answering a command.
type ServerError struct {
	Code   string
	Detail string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("devlens: server error %s: %s", e.Code, e.Detail)
}

// Client is one inspector connection. Safe for concurrent use.
type Client struct {
	cfg  clientConfig
	conn net.Conn
	r    *bufio.Reader

	wmu sync.Mutex
	w   *bufio.Writer

	mu      sync.Mutex
	pending map[string]chan protocol.Message
	closed  bool

	nextID atomic.Int64

	// Events receives unsolicited server events (request-recorded,
	// error-tracked, metrics-update, ...). Consumed slowly, events
	// are dropped, never blocking the connection.
	Events <-chan protocol.Message
	events chan protocol.Message

	// Handshake is the server's acknowledgment, available after Dial.
	Handshake protocol.HandshakeAckPayload
}

// Dial connects to a devlens engine and completes the handshake.
func Dial(addr string, opts ...Option) (*Client, error) {
	cfg := clientConfig{
		clientName:    "devlens-go",
		clientVersion: "0.3.0",
		dialTimeout:   5 * time.Second,
		callTimeout:   10 * time.Second,
		eventBuffer:   128,
	}
	for _, o := range opts {
		o(&cfg)
	}

	conn := cfg.conn
	if conn == nil {
		var err error
		conn, err = net.DialTimeout("tcp", addr, cfg.dialTimeout)
		if err != nil {
			return nil, fmt.Errorf("devlens: dial %s: %w", addr, err)
		}
	}

	c := &Client{
		cfg:     cfg,
		conn:    conn,
		r:       bufio.NewReaderSize(conn, 64<<10),
		w:       bufio.NewWriterSize(conn, 64<<10),
		pending: make(map[string]chan protocol.Message),
		events:  make(chan protocol.Message, cfg.eventBuffer),
	}
	c.Events = c.events

	// The server acks unconditionally on connect.
	ack, err := c.readMessage()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("devlens: handshake: %w", err)
	}
	if ack.Type != protocol.EvtHandshakeAck {
		conn.Close()
		return nil, fmt.Errorf("devlens: unexpected handshake reply %q", ack.Type)
	}
	if err := protocol.DecodePayload(ack, &c.Handshake); err != nil {
		conn.Close()
		return nil, err
	}

	go c.readLoop()

	// Introduce the client so the server can attribute the session.
	reply, err := c.Call(context.Background(), protocol.CmdHandshake, protocol.HandshakePayload{
		ClientName:    cfg.clientName,
		ClientVersion: cfg.clientVersion,
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("devlens: handshake: %w", err)
	}
	if err := protocol.DecodePayload(reply, &c.Handshake); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) readMessage() (protocol.Message, error) {
	line, err := c.r.ReadBytes('\n')
	if err != nil {
		return protocol.Message{}, err
	}
	var m protocol.Message
	if err := json.Unmarshal(line, &m); err != nil {
		return protocol.Message{}, fmt.Errorf("devlens: malformed frame: %w", err)
	}
	return m, nil
}

func (c *Client) writeMessage(m protocol.Message) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if _, err := c.w.Write(raw); err != nil {
		return err
	}
	if err := c.w.WriteByte('\n'); err != nil {
		return err
	}
	return c.w.Flush()
}

// readLoop routes correlated replies to their waiters and everything
// else to the Events channel.
func (c *Client) readLoop() {
	defer c.teardown()

	for {
		m, err := c.readMessage()
		if err != nil {
			return
		}

		// Heartbeat probes are answered inline to keep the session
		// registered.
		if m.Type == protocol.EvtHeartbeat {
			ping, err := protocol.NewMessage(protocol.CmdPing, nil)
			if err == nil {
				_ = c.writeMessage(ping)
			}
			continue
		}

		if m.CorrelationID != "" {
			c.mu.Lock()
			ch, ok := c.pending[m.CorrelationID]
			if ok {
				delete(c.pending, m.CorrelationID)
			}
			c.mu.Unlock()
			if ok {
				ch <- m
				continue
			}
		}

		select {
		case c.events <- m:
		default:
		}
	}
}

func (c *Client) teardown() {
	c.mu.Lock()
	c.closed = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()
	close(c.events)
}

// Call sends one command and waits for its correlated reply. An error
// event answering the command is surfaced as *ServerError.
func (c *Client) Call(ctx context.Context, cmdType string, payload any) (protocol.Message, error) {
	msg, err := protocol.NewMessage(cmdType, payload)
	if err != nil {
		return protocol.Message{}, err
	}
	msg.CorrelationID = "c-" + strconv.FormatInt(c.nextID.Add(1), 10)

	ch := make(chan protocol.Message, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return protocol.Message{}, ErrClosed
	}
	c.pending[msg.CorrelationID] = ch
	c.mu.Unlock()

	if err := c.writeMessage(msg); err != nil {
		c.mu.Lock()
		delete(c.pending, msg.CorrelationID)
		c.mu.Unlock()
		return protocol.Message{}, fmt.Errorf("devlens: send %s: %w", cmdType, err)
	}

	if c.cfg.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.callTimeout)
		defer cancel()
	}

	select {
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, msg.CorrelationID)
		c.mu.Unlock()
		return protocol.Message{}, ctx.Err()
	case reply, ok := <-ch:
		if !ok {
			return protocol.Message{}, ErrClosed
		}
		if reply.Type == protocol.EvtError {
			var p protocol.ErrorPayload
			if err := protocol.DecodePayload(reply, &p); err != nil {
				return protocol.Message{}, err
			}
			return protocol.Message{}, &ServerError{Code: p.Code, Detail: p.Message}
		}
		return reply, nil
	}
}

// Close tears the connection down. Pending calls fail with ErrClosed.
func (c *Client) Close() error {
	return c.conn.Close()
}
