// Package transport multiplexes inspector sessions over framed
// duplex connections: ordered rate-limited delivery, broadcast over
// a registry snapshot, heartbeat liveness, and command dispatch.
package transport

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"github.com/devlens/devlens/internal/protocol"
)

// Conn is one framed duplex connection to an inspector client.
// ReadFrame returns raw bytes so a malformed frame can be answered
// with a structured error instead of killing the read loop.
type Conn interface {
	ReadFrame() ([]byte, error)
	WriteMessage(protocol.Message) error
	Close() error
}

// maxFrameSize bounds a single inbound frame.
const maxFrameSize = 4 << 20

// ndjsonConn frames messages as newline-delimited JSON over a
// net.Conn. Writes are serialized; reads belong to one goroutine.
type ndjsonConn struct {
	raw net.Conn
	r   *bufio.Reader

	wmu sync.Mutex
	w   *bufio.Writer
}

// NewNDJSONConn wraps a stream connection with NDJSON framing.
func NewNDJSONConn(raw net.Conn) Conn {
	return &ndjsonConn{
		raw: raw,
		r:   bufio.NewReaderSize(raw, 64<<10),
		w:   bufio.NewWriterSize(raw, 64<<10),
	}
}

func (c *ndjsonConn) ReadFrame() ([]byte, error) {
	line, err := c.r.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	if len(line) > maxFrameSize {
		return nil, fmt.Errorf("transport: frame exceeds %d bytes", maxFrameSize)
	}
	return line, nil
}

func (c *ndjsonConn) WriteMessage(m protocol.Message) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("transport: marshal frame: %w", err)
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

func (c *ndjsonConn) Close() error {
	return c.raw.Close()
}
