// Package protocol defines the framed inspector message protocol:
// a tagged envelope with two disjoint type namespaces, client
// commands and server events, validated before dispatch.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Version is the protocol version reported in the handshake ack.
const Version = "1"

// Client -> server command types.
const (
	CmdHandshake      = "handshake"
	CmdPing           = "ping"
	CmdFetchMetrics   = "fetch-metrics"
	CmdFetchRoutes    = "fetch-routes"
	CmdFetchRequests  = "fetch-requests"
	CmdFetchRequest   = "fetch-request"
	CmdClearRequests  = "clear-requests"
	CmdDeleteRequest  = "delete-request"
	CmdExportRequests = "export-requests"
	CmdReplayRequest  = "replay-request"
	CmdCompareReplay  = "compare-replay"
	CmdGenerateTest   = "generate-test"
	CmdFetchErrors    = "fetch-errors"
	CmdFetchErrorInfo = "fetch-error-details"
	CmdFetchErrStats  = "fetch-error-stats"
	CmdResolveError   = "resolve-error"
	CmdIgnoreError    = "ignore-error"
	CmdClearErrors    = "clear-errors"
	CmdExportErrors   = "export-errors"
	CmdStartProfiling = "start-profiling"
	CmdStopProfiling  = "stop-profiling"
)

// Server -> client event types.
const (
	EvtHandshakeAck     = "handshake-ack"
	EvtPong             = "pong"
	EvtHeartbeat        = "heartbeat"
	EvtShutdown         = "shutdown"
	EvtMetricsUpdate    = "metrics-update"
	EvtRoutesList       = "routes-list"
	EvtRequestRecorded  = "request-recorded"
	EvtRequestResponse  = "request-response"
	EvtRequestsList     = "requests-list"
	EvtRequestDetails   = "request-details"
	EvtRequestsExport   = "requests-export"
	EvtLogEntry         = "log-entry"
	EvtPerfUpdate       = "performance-update"
	EvtPerfMetrics      = "performance-metrics"
	EvtProfilingStarted = "profiling-started"
	EvtProfilingStopped = "profiling-stopped"
	EvtReplayResult     = "replay-result"
	EvtReplayComparison = "replay-comparison"
	EvtTestGenerated    = "test-generated"
	EvtErrorTracked     = "error-tracked"
	EvtErrorsList       = "errors-list"
	EvtErrorDetails     = "error-details"
	EvtErrorStats       = "error-stats"
	EvtErrorSpikeAlert  = "error-spike-alert"
	EvtError            = "error"
)

func typeSet(types ...string) map[string]bool {
	set := make(map[string]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return set
}

var commandTypes = typeSet(
	CmdHandshake, CmdPing,
	CmdFetchMetrics, CmdFetchRoutes,
	CmdFetchRequests, CmdFetchRequest,
	CmdClearRequests, CmdDeleteRequest, CmdExportRequests,
	CmdReplayRequest, CmdCompareReplay, CmdGenerateTest,
	CmdFetchErrors, CmdFetchErrorInfo, CmdFetchErrStats,
	CmdResolveError, CmdIgnoreError, CmdClearErrors,
	CmdExportErrors,
	CmdStartProfiling, CmdStopProfiling,
)

var eventTypes = typeSet(
	EvtHandshakeAck, EvtPong,
	EvtHeartbeat, EvtShutdown,
	EvtMetricsUpdate, EvtRoutesList,
	EvtRequestRecorded, EvtRequestResponse,
	EvtRequestsList, EvtRequestDetails, EvtRequestsExport,
	EvtLogEntry, EvtPerfUpdate, EvtPerfMetrics,
	EvtProfilingStarted, EvtProfilingStopped,
	EvtReplayResult, EvtReplayComparison, EvtTestGenerated,
	EvtErrorTracked, EvtErrorsList, EvtErrorDetails,
	EvtErrorStats, EvtErrorSpikeAlert,
	EvtError,
)

// Message is the wire envelope. Payload stays raw until the dispatch
// layer decodes it against the type-specific struct.
type Message struct {
	Type          string          `json:"type"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlationId,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// IsCommand reports whether t belongs to the client->server namespace.
func IsCommand(t string) bool { return commandTypes[t] }

// IsEvent reports whether t belongs to the server->client namespace.
func IsEvent(t string) bool { return eventTypes[t] }

// NewMessage builds an envelope with a marshalled payload. A nil
// payload produces an empty payload field.
func NewMessage(msgType string, payload any) (Message, error) {
	m := Message{Type: msgType, Timestamp: time.Now().UTC()}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Message{}, fmt.Errorf("protocol: marshal %s payload: %w", msgType, err)
		}
		m.Payload = raw
	}
	return m, nil
}

// Reply builds an event answering cmd, echoing its correlation id.
func Reply(cmd Message, eventType string, payload any) (Message, error) {
	m, err := NewMessage(eventType, payload)
	if err != nil {
		return Message{}, err
	}
	m.CorrelationID = cmd.CorrelationID
	return m, nil
}

// Parse decodes and validates one inbound frame. Unknown or
// server-namespace types are rejected: clients may only send commands.
func Parse(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("protocol: malformed frame: %w", err)
	}
	if m.Type == "" {
		return Message{}, fmt.Errorf("protocol: frame missing type")
	}
	if !commandTypes[m.Type] {
		return Message{}, fmt.Errorf("protocol: unknown command type %q", m.Type)
	}
	return m, nil
}

// DecodePayload unmarshals m's payload into dst. An absent payload
// decodes as the zero value.
func DecodePayload(m Message, dst any) error {
	if len(m.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(m.Payload, dst); err != nil {
		return fmt.Errorf("protocol: decode %s payload: %w", m.Type, err)
	}
	return nil
}
