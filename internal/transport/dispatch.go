package transport

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"runtime/pprof"
	"sync"
	"time"

	"github.com/devlens/devlens/internal/capture"
	"github.com/devlens/devlens/internal/errtrack"
	"github.com/devlens/devlens/internal/metrics"
	"github.com/devlens/devlens/internal/protocol"
)

const defaultListLimit = 100

// Dispatcher routes validated commands to the engines and answers
// with the matching event type, echoing the command's correlation id.
// Internal failures never escape: they become an error event on the
// originating session only.
type Dispatcher struct {
	rec *capture.Recorder
	rep *capture.Replayer
	agg *errtrack.Aggregator
	col *metrics.Collector

	profMu    sync.Mutex
	profBuf   *bytes.Buffer
	profStart time.Time
}

// NewDispatcher wires the engines a hub dispatches into.
func NewDispatcher(rec *capture.Recorder, rep *capture.Replayer, agg *errtrack.Aggregator, col *metrics.Collector) *Dispatcher {
	return &Dispatcher{rec: rec, rep: rep, agg: agg, col: col}
}

// Handle executes one command. Panics in handlers are recovered and
// converted to a structured error reply.
func (d *Dispatcher) Handle(h *Hub, s *Session, cmd protocol.Message) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "transport: handler panic on %s: %v\n", cmd.Type, r)
			h.sendError(s, cmd, "internal", fmt.Sprintf("command %s failed", cmd.Type))
		}
	}()

	switch cmd.Type {
	case protocol.CmdHandshake:
		var p protocol.HandshakePayload
		if !d.decode(h, s, cmd, &p) {
			return
		}
		s.setClient(p.ClientName, p.ClientVersion)
		d.reply(h, s, cmd, protocol.EvtHandshakeAck, protocol.HandshakeAckPayload{
			ProtocolVersion: protocol.Version,
			ServerVersion:   h.cfg.ServerVersion,
			SessionID:       s.ID,
			ConfigHash:      h.cfg.ConfigHash,
			Features:        h.cfg.Features,
		})

	case protocol.CmdPing:
		d.reply(h, s, cmd, protocol.EvtPong, nil)

	case protocol.CmdFetchMetrics:
		d.reply(h, s, cmd, protocol.EvtMetricsUpdate, d.col.Snapshot())

	case protocol.CmdFetchRoutes:
		d.reply(h, s, cmd, protocol.EvtRoutesList, d.col.RouteBreakdown())

	case protocol.CmdFetchRequests:
		var p protocol.FetchRequestsPayload
		if !d.decode(h, s, cmd, &p) {
			return
		}
		limit := p.Limit
		if limit <= 0 {
			limit = defaultListLimit
		}
		reqs, err := d.rec.Recent(limit)
		if err != nil {
			h.sendError(s, cmd, "storage", err.Error())
			return
		}
		d.reply(h, s, cmd, protocol.EvtRequestsList, reqs)

	case protocol.CmdFetchRequest:
		var p protocol.RequestIDPayload
		if !d.decode(h, s, cmd, &p) {
			return
		}
		req, err := d.rec.Get(p.ID)
		if err != nil {
			h.sendError(s, cmd, "not-found", fmt.Sprintf("request %s not found", p.ID))
			return
		}
		d.reply(h, s, cmd, protocol.EvtRequestDetails, req)

	case protocol.CmdClearRequests:
		if err := d.rec.Clear(); err != nil {
			h.sendError(s, cmd, "storage", err.Error())
			return
		}
		d.reply(h, s, cmd, protocol.EvtRequestsList, []capture.RecordedRequest{})

	case protocol.CmdDeleteRequest:
		var p protocol.RequestIDPayload
		if !d.decode(h, s, cmd, &p) {
			return
		}
		if err := d.rec.Delete(p.ID); err != nil {
			h.sendError(s, cmd, "storage", err.Error())
			return
		}
		reqs, err := d.rec.Recent(defaultListLimit)
		if err != nil {
			h.sendError(s, cmd, "storage", err.Error())
			return
		}
		d.reply(h, s, cmd, protocol.EvtRequestsList, reqs)

	case protocol.CmdExportRequests:
		doc, err := d.rec.Export()
		if err != nil {
			h.sendError(s, cmd, "storage", err.Error())
			return
		}
		d.reply(h, s, cmd, protocol.EvtRequestsExport, json.RawMessage(doc))

	case protocol.CmdReplayRequest:
		var p protocol.ReplayPayload
		if !d.decode(h, s, cmd, &p) {
			return
		}
		mode := capture.ReplayMode(p.Mode)
		if mode == "" {
			mode = capture.ReplayLive
		}
		ov := capture.Overrides{
			Headers: p.Overrides.Headers,
			Query:   p.Overrides.Query,
			Body:    p.Overrides.Body,
		}
		result := d.rep.Replay(context.Background(), p.ID, ov, mode)
		d.reply(h, s, cmd, protocol.EvtReplayResult, result)

	case protocol.CmdCompareReplay:
		d.handleCompare(h, s, cmd)

	case protocol.CmdGenerateTest:
		d.handleGenerateTest(h, s, cmd)

	case protocol.CmdFetchErrors:
		var p protocol.ErrorFilterPayload
		if !d.decode(h, s, cmd, &p) {
			return
		}
		d.reply(h, s, cmd, protocol.EvtErrorsList, d.agg.List(filterFromPayload(p)))

	case protocol.CmdFetchErrorInfo:
		var p protocol.ErrorHashPayload
		if !d.decode(h, s, cmd, &p) {
			return
		}
		g, ok := d.agg.Get(p.Hash)
		if !ok {
			h.sendError(s, cmd, "not-found", fmt.Sprintf("error %s not found", p.Hash))
			return
		}
		d.reply(h, s, cmd, protocol.EvtErrorDetails, g)

	case protocol.CmdFetchErrStats:
		d.reply(h, s, cmd, protocol.EvtErrorStats, d.agg.Stats())

	case protocol.CmdResolveError:
		d.handleStatusChange(h, s, cmd, d.agg.Resolve)

	case protocol.CmdIgnoreError:
		d.handleStatusChange(h, s, cmd, d.agg.Ignore)

	case protocol.CmdClearErrors:
		d.agg.Clear()
		d.reply(h, s, cmd, protocol.EvtErrorStats, d.agg.Stats())

	case protocol.CmdExportErrors:
		d.reply(h, s, cmd, protocol.EvtErrorsList, d.agg.List(errtrack.Filter{}))

	case protocol.CmdStartProfiling:
		d.handleStartProfiling(h, s, cmd)

	case protocol.CmdStopProfiling:
		d.handleStopProfiling(h, s, cmd)

	default:
		// Parse already rejected unknown types; this is unreachable
		// unless the namespaces drift.
		h.sendError(s, cmd, "bad-request", fmt.Sprintf("unhandled command %s", cmd.Type))
	}
}

// decode unmarshals the command payload, answering with a structured
// error on this session when the payload is malformed.
func (d *Dispatcher) decode(h *Hub, s *Session, cmd protocol.Message, dst any) bool {
	if err := protocol.DecodePayload(cmd, dst); err != nil {
		h.sendError(s, cmd, "bad-payload", err.Error())
		return false
	}
	return true
}

func (d *Dispatcher) reply(h *Hub, s *Session, cmd protocol.Message, evtType string, payload any) {
	msg, err := protocol.Reply(cmd, evtType, payload)
	if err != nil {
		h.sendError(s, cmd, "internal", err.Error())
		return
	}
	_ = s.Send(msg)
}

func (d *Dispatcher) handleCompare(h *Hub, s *Session, cmd protocol.Message) {
	var p protocol.ComparePayload
	if !d.decode(h, s, cmd, &p) {
		return
	}
	original, err := d.rec.Get(p.OriginalID)
	if err != nil {
		h.sendError(s, cmd, "not-found", fmt.Sprintf("request %s not found", p.OriginalID))
		return
	}
	replay, err := d.rec.Get(p.ReplayID)
	if err != nil {
		h.sendError(s, cmd, "not-found", fmt.Sprintf("request %s not found", p.ReplayID))
		return
	}
	if original.Response == nil {
		h.sendError(s, cmd, "conflict", fmt.Sprintf("request %s has no recorded response yet", p.OriginalID))
		return
	}
	if replay.Response == nil {
		h.sendError(s, cmd, "conflict", fmt.Sprintf("request %s has no recorded response yet", p.ReplayID))
		return
	}
	d.reply(h, s, cmd, protocol.EvtReplayComparison, capture.Compare(original.Response, replay.Response))
}

func (d *Dispatcher) handleStatusChange(h *Hub, s *Session, cmd protocol.Message, apply func(string) bool) {
	var p protocol.ErrorHashPayload
	if !d.decode(h, s, cmd, &p) {
		return
	}
	if !apply(p.Hash) {
		h.sendError(s, cmd, "not-found", fmt.Sprintf("error %s not found", p.Hash))
		return
	}
	g, _ := d.agg.Get(p.Hash)
	d.reply(h, s, cmd, protocol.EvtErrorDetails, g)
}

func (d *Dispatcher) handleStartProfiling(h *Hub, s *Session, cmd protocol.Message) {
	d.profMu.Lock()
	defer d.profMu.Unlock()

	if d.profBuf != nil {
		h.sendError(s, cmd, "conflict", "profiling already in progress")
		return
	}
	buf := &bytes.Buffer{}
	if err := pprof.StartCPUProfile(buf); err != nil {
		h.sendError(s, cmd, "internal", err.Error())
		return
	}
	d.profBuf = buf
	d.profStart = time.Now()
	d.reply(h, s, cmd, protocol.EvtProfilingStarted, map[string]any{
		"startedAt": d.profStart.UTC(),
	})
}

func (d *Dispatcher) handleStopProfiling(h *Hub, s *Session, cmd protocol.Message) {
	d.profMu.Lock()
	defer d.profMu.Unlock()

	if d.profBuf == nil {
		h.sendError(s, cmd, "conflict", "no profiling session in progress")
		return
	}
	pprof.StopCPUProfile()
	profile := d.profBuf.Bytes()
	elapsed := time.Since(d.profStart)
	d.profBuf = nil

	d.reply(h, s, cmd, protocol.EvtProfilingStopped, map[string]any{
		"durationMs": elapsed.Milliseconds(),
		"profile":    base64.StdEncoding.EncodeToString(profile),
	})
}

func filterFromPayload(p protocol.ErrorFilterPayload) errtrack.Filter {
	return errtrack.Filter{
		Status:   errtrack.Status(p.Status),
		Severity: errtrack.Severity(p.Severity),
		Route:    p.Route,
		Type:     p.Type,
		From:     p.From,
		To:       p.To,
		MinCount: p.MinCount,
		Search:   p.Search,
	}
}
