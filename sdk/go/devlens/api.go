package devlens

import (
	"context"
	"encoding/json"

	"github.com/devlens/devlens/internal/capture"
	"github.com/devlens/devlens/internal/errtrack"
	"github.com/devlens/devlens/internal/metrics"
	"github.com/devlens/devlens/internal/protocol"
)

// Ping round-trips a keep-alive.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Call(ctx, protocol.CmdPing, nil)
	return err
}

// FetchMetrics returns the current metrics snapshot.
func (c *Client) FetchMetrics(ctx context.Context) (metrics.Snapshot, error) {
	var snap metrics.Snapshot
	reply, err := c.Call(ctx, protocol.CmdFetchMetrics, nil)
	if err != nil {
		return snap, err
	}
	return snap, protocol.DecodePayload(reply, &snap)
}

// FetchRoutes returns the per-route breakdown, busiest first.
func (c *Client) FetchRoutes(ctx context.Context) ([]metrics.RouteSummary, error) {
	var routes []metrics.RouteSummary
	reply, err := c.Call(ctx, protocol.CmdFetchRoutes, nil)
	if err != nil {
		return nil, err
	}
	return routes, protocol.DecodePayload(reply, &routes)
}

// FetchRequests lists up to limit recent captures, oldest first. A
// non-positive limit uses the server default.
func (c *Client) FetchRequests(ctx context.Context, limit int) ([]capture.RecordedRequest, error) {
	var reqs []capture.RecordedRequest
	reply, err := c.Call(ctx, protocol.CmdFetchRequests, protocol.FetchRequestsPayload{Limit: limit})
	if err != nil {
		return nil, err
	}
	return reqs, protocol.DecodePayload(reply, &reqs)
}

// FetchRequest returns one capture by id.
func (c *Client) FetchRequest(ctx context.Context, id string) (capture.RecordedRequest, error) {
	var req capture.RecordedRequest
	reply, err := c.Call(ctx, protocol.CmdFetchRequest, protocol.RequestIDPayload{ID: id})
	if err != nil {
		return req, err
	}
	return req, protocol.DecodePayload(reply, &req)
}

// DeleteRequest removes one capture.
func (c *Client) DeleteRequest(ctx context.Context, id string) error {
	_, err := c.Call(ctx, protocol.CmdDeleteRequest, protocol.RequestIDPayload{ID: id})
	return err
}

// ClearRequests removes every capture.
func (c *Client) ClearRequests(ctx context.Context) error {
	_, err := c.Call(ctx, protocol.CmdClearRequests, nil)
	return err
}

// ExportRequests returns all captures as one JSON document.
func (c *Client) ExportRequests(ctx context.Context) (json.RawMessage, error) {
	reply, err := c.Call(ctx, protocol.CmdExportRequests, nil)
	if err != nil {
		return nil, err
	}
	return reply.Payload, nil
}

// ReplayOptions mirror the replay command payload.
type ReplayOptions struct {
	Mode    string // "live" or "mock"; empty means live
	Headers map[string]string
	Query   map[string]string
	Body    *string
}

// Replay re-executes a captured request.
func (c *Client) Replay(ctx context.Context, id string, opts ReplayOptions) (capture.ReplayResult, error) {
	var result capture.ReplayResult
	reply, err := c.Call(ctx, protocol.CmdReplayRequest, protocol.ReplayPayload{
		ID:   id,
		Mode: opts.Mode,
		Overrides: protocol.OverridesPayload{
			Headers: opts.Headers,
			Query:   opts.Query,
			Body:    opts.Body,
		},
	})
	if err != nil {
		return result, err
	}
	return result, protocol.DecodePayload(reply, &result)
}

// CompareReplay diffs the responses of an original capture and a
// replay-derived capture.
func (c *Client) CompareReplay(ctx context.Context, originalID, replayID string) (capture.Comparison, error) {
	var cmp capture.Comparison
	reply, err := c.Call(ctx, protocol.CmdCompareReplay, protocol.ComparePayload{
		OriginalID: originalID,
		ReplayID:   replayID,
	})
	if err != nil {
		return cmp, err
	}
	return cmp, protocol.DecodePayload(reply, &cmp)
}

// ErrorFilter narrows FetchErrors.
type ErrorFilter struct {
	Status   string
	Severity string
	Route    string
	Type     string
	MinCount int
	Search   string
}

// FetchErrors lists aggregated error groups.
func (c *Client) FetchErrors(ctx context.Context, f ErrorFilter) ([]errtrack.Group, error) {
	var groups []errtrack.Group
	reply, err := c.Call(ctx, protocol.CmdFetchErrors, protocol.ErrorFilterPayload{
		Status:   f.Status,
		Severity: f.Severity,
		Route:    f.Route,
		Type:     f.Type,
		MinCount: f.MinCount,
		Search:   f.Search,
	})
	if err != nil {
		return nil, err
	}
	return groups, protocol.DecodePayload(reply, &groups)
}

// FetchErrorDetails returns one error group by hash.
func (c *Client) FetchErrorDetails(ctx context.Context, hash string) (errtrack.Group, error) {
	var g errtrack.Group
	reply, err := c.Call(ctx, protocol.CmdFetchErrorInfo, protocol.ErrorHashPayload{Hash: hash})
	if err != nil {
		return g, err
	}
	return g, protocol.DecodePayload(reply, &g)
}

// ErrorStats summarizes the aggregator.
func (c *Client) ErrorStats(ctx context.Context) (errtrack.Stats, error) {
	var st errtrack.Stats
	reply, err := c.Call(ctx, protocol.CmdFetchErrStats, nil)
	if err != nil {
		return st, err
	}
	return st, protocol.DecodePayload(reply, &st)
}

// ResolveError marks a group resolved.
func (c *Client) ResolveError(ctx context.Context, hash string) (errtrack.Group, error) {
	var g errtrack.Group
	reply, err := c.Call(ctx, protocol.CmdResolveError, protocol.ErrorHashPayload{Hash: hash})
	if err != nil {
		return g, err
	}
	return g, protocol.DecodePayload(reply, &g)
}

// IgnoreError marks a group ignored.
func (c *Client) IgnoreError(ctx context.Context, hash string) (errtrack.Group, error) {
	var g errtrack.Group
	reply, err := c.Call(ctx, protocol.CmdIgnoreError, protocol.ErrorHashPayload{Hash: hash})
	if err != nil {
		return g, err
	}
	return g, protocol.DecodePayload(reply, &g)
}

// GenerateTest asks the server for a test skeleton derived from a
// capture. Supported frameworks: "go", "curl".
func (c *Client) GenerateTest(ctx context.Context, id, framework string) (string, error) {
	reply, err := c.Call(ctx, protocol.CmdGenerateTest, protocol.GenerateTestPayload{
		ID:        id,
		Framework: framework,
	})
	if err != nil {
		return "", err
	}
	var out struct {
		Code string `json:"code"`
	}
	if err := protocol.DecodePayload(reply, &out); err != nil {
		return "", err
	}
	return out.Code, nil
}
