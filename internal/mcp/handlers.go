package mcp

import (
	"context"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/devlens/devlens/internal/capture"
	"github.com/devlens/devlens/internal/errtrack"
	"github.com/devlens/devlens/internal/metrics"
)

// --- Input/Output types ---

// FetchMetricsInput selects how much history to include.
type FetchMetricsInput struct {
	History int `json:"history,omitempty" jsonschema:"number of recent periodic snapshots to include (0 for none)"`
}

// FetchMetricsOutput carries the current metrics snapshot and,
// when requested, recent periodic snapshots oldest first.
type FetchMetricsOutput struct {
	Snapshot metrics.Snapshot   `json:"snapshot"`
	History  []metrics.Snapshot `json:"history,omitempty"`
}

// ListErrorsInput defines filters for the devlens_list_errors tool.
type ListErrorsInput struct {
	Status   string `json:"status,omitempty" jsonschema:"filter by status (active/resolved/ignored)"`
	Severity string `json:"severity,omitempty" jsonschema:"filter by severity (critical/warning/info)"`
	Route    string `json:"route,omitempty" jsonschema:"filter by route the error occurred on"`
	Type     string `json:"type,omitempty" jsonschema:"filter by error type name"`
	MinCount int    `json:"min_count,omitempty" jsonschema:"minimum occurrence count"`
	Search   string `json:"search,omitempty" jsonschema:"free-text search over message and stack"`
}

// ListErrorsOutput lists matching error groups.
type ListErrorsOutput struct {
	Errors []errtrack.Group `json:"errors"`
	Total  int              `json:"total"`
}

// ListRequestsInput bounds the listing.
type ListRequestsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum number of requests to return (default 50)"`
}

// ListRequestsOutput lists captured requests.
type ListRequestsOutput struct {
	Requests []capture.RecordedRequest `json:"requests"`
	Total    int                       `json:"total"`
}

// ReplayRequestInput defines parameters for the replay tool.
type ReplayRequestInput struct {
	ID   string `json:"id" jsonschema:"id of the captured request to replay"`
	Mode string `json:"mode,omitempty" jsonschema:"replay mode: mock (default) or live"`
}

// ReplayRequestOutput carries the replay outcome.
type ReplayRequestOutput struct {
	Result capture.ReplayResult `json:"result"`
}

// --- Handlers ---

func (s *Server) handleFetchMetrics(ctx context.Context, req *mcpsdk.CallToolRequest, input FetchMetricsInput) (*mcpsdk.CallToolResult, FetchMetricsOutput, error) {
	out := FetchMetricsOutput{Snapshot: s.col.Snapshot()}
	if input.History > 0 {
		hist := s.col.History()
		if len(hist) > input.History {
			hist = hist[len(hist)-input.History:]
		}
		out.History = hist
	}
	return nil, out, nil
}

func (s *Server) handleListErrors(ctx context.Context, req *mcpsdk.CallToolRequest, input ListErrorsInput) (*mcpsdk.CallToolResult, ListErrorsOutput, error) {
	groups := s.agg.List(errtrack.Filter{
		Status:   errtrack.Status(input.Status),
		Severity: errtrack.Severity(input.Severity),
		Route:    input.Route,
		Type:     input.Type,
		MinCount: input.MinCount,
		Search:   input.Search,
	})
	return nil, ListErrorsOutput{Errors: groups, Total: len(groups)}, nil
}

func (s *Server) handleListRequests(ctx context.Context, req *mcpsdk.CallToolRequest, input ListRequestsInput) (*mcpsdk.CallToolResult, ListRequestsOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 50
	}
	reqs, err := s.rec.Recent(limit)
	if err != nil {
		return nil, ListRequestsOutput{}, fmt.Errorf("list requests: %w", err)
	}
	return nil, ListRequestsOutput{Requests: reqs, Total: len(reqs)}, nil
}

func (s *Server) handleReplayRequest(ctx context.Context, req *mcpsdk.CallToolRequest, input ReplayRequestInput) (*mcpsdk.CallToolResult, ReplayRequestOutput, error) {
	mode := capture.ReplayMode(input.Mode)
	if mode == "" {
		mode = capture.ReplayMock
	}
	result := s.rep.Replay(ctx, input.ID, capture.Overrides{}, mode)
	if result.Error != "" {
		return &mcpsdk.CallToolResult{IsError: true}, ReplayRequestOutput{Result: result}, nil
	}
	return nil, ReplayRequestOutput{Result: result}, nil
}
