package protocol

import "time"

// HandshakePayload identifies a connecting inspector client.
type HandshakePayload struct {
	ClientName    string `json:"clientName,omitempty"`
	ClientVersion string `json:"clientVersion,omitempty"`
}

// HandshakeAckPayload is the server's connect acknowledgment.
type HandshakeAckPayload struct {
	ProtocolVersion string   `json:"protocolVersion"`
	ServerVersion   string   `json:"serverVersion"`
	SessionID       string   `json:"sessionId"`
	ConfigHash      string   `json:"configHash,omitempty"`
	Features        []string `json:"features,omitempty"`
}

// FetchRequestsPayload bounds a request listing. Zero means the
// server default.
type FetchRequestsPayload struct {
	Limit int `json:"limit,omitempty"`
}

// RequestIDPayload addresses one recorded request.
type RequestIDPayload struct {
	ID string `json:"id"`
}

// OverridesPayload carries replay field overrides. Nil body means
// keep the original.
type OverridesPayload struct {
	Headers map[string]string `json:"headers,omitempty"`
	Query   map[string]string `json:"query,omitempty"`
	Body    *string           `json:"body,omitempty"`
}

// ReplayPayload asks the server to re-execute a recorded request.
type ReplayPayload struct {
	ID        string           `json:"id"`
	Mode      string           `json:"mode,omitempty"` // live | mock
	Overrides OverridesPayload `json:"overrides,omitempty"`
}

// ComparePayload asks for a structural diff between an original
// response and a replay's response.
type ComparePayload struct {
	OriginalID string `json:"originalId"`
	ReplayID   string `json:"replayId"`
}

// GenerateTestPayload asks for a test skeleton derived from a
// recorded request.
type GenerateTestPayload struct {
	ID        string `json:"id"`
	Framework string `json:"framework,omitempty"`
}

// ErrorFilterPayload narrows an error listing. Zero fields match
// everything.
type ErrorFilterPayload struct {
	Status   string    `json:"status,omitempty"`
	Severity string    `json:"severity,omitempty"`
	Route    string    `json:"route,omitempty"`
	Type     string    `json:"type,omitempty"`
	From     time.Time `json:"from,omitempty"`
	To       time.Time `json:"to,omitempty"`
	MinCount int       `json:"minCount,omitempty"`
	Search   string    `json:"search,omitempty"`
}

// ErrorHashPayload addresses one aggregated error group.
type ErrorHashPayload struct {
	Hash string `json:"hash"`
}

// ErrorPayload is the generic error event body, sent only to the
// session whose command failed.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
