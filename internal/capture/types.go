// Package capture records HTTP traffic flowing through the host
// framework, replays stored requests against a live or mock target,
// and computes structural comparisons between responses.
package capture

import "time"

// RecordedRequest is one captured HTTP exchange. The id is immutable;
// Response and Duration are written exactly once, at completion.
// Replays never mutate a stored request — they produce a new one with
// a derived id.
type RecordedRequest struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Method    string            `json:"method"`
	URL       string            `json:"url"`
	Headers   map[string]string `json:"headers"`
	Query     map[string]string `json:"query,omitempty"`
	Params    map[string]string `json:"params,omitempty"`
	Body      string            `json:"body,omitempty"`
	Duration  time.Duration     `json:"duration,omitempty"`
	Response  *RecordedResponse `json:"response,omitempty"`

	// ReplayOf holds the id of the original request when this record
	// was produced by a live replay.
	ReplayOf string `json:"replayOf,omitempty"`
}

// RecordedResponse is the response half of a captured exchange.
type RecordedResponse struct {
	StatusCode int               `json:"statusCode"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// RequestMeta is what the host framework hands to Begin. Body capture
// is best-effort: hosts may omit it rather than buffer large payloads.
type RequestMeta struct {
	Method  string
	URL     string
	Headers map[string]string
	Query   map[string]string
	Params  map[string]string
	Body    string
}

// ResponseMeta is what the host framework hands to Complete.
type ResponseMeta struct {
	StatusCode int
	Headers    map[string]string
	Body       string
}

// ReplayMode selects how Replay executes.
type ReplayMode string

const (
	// ReplayLive re-executes the request against the configured target.
	ReplayLive ReplayMode = "live"
	// ReplayMock returns the stored response without any outbound call.
	ReplayMock ReplayMode = "mock"
)

// Overrides are merged over the original request before a live replay.
type Overrides struct {
	Headers map[string]string `json:"headers,omitempty"`
	Query   map[string]string `json:"query,omitempty"`
	Body    *string           `json:"body,omitempty"`
}

// ReplayResult carries the outcome of a replay. Failures are reported
// in Error rather than raised past the call boundary.
type ReplayResult struct {
	Original RecordedRequest   `json:"original"`
	Response *RecordedResponse `json:"response,omitempty"`
	Timing   time.Duration     `json:"timing"`
	Mocked   bool              `json:"mocked"`
	Error    string            `json:"error,omitempty"`
}
