// Package mcp exposes the observability engines as Model Context
// Protocol tools, so AI-assistant clients can inspect captured
// traffic, errors, and metrics over stdio.
package mcp

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/devlens/devlens/internal/capture"
	"github.com/devlens/devlens/internal/errtrack"
	"github.com/devlens/devlens/internal/metrics"
)

// Server wraps the MCP SDK server around the devlens engines.
type Server struct {
	mcpServer *mcpsdk.Server
	rec       *capture.Recorder
	rep       *capture.Replayer
	agg       *errtrack.Aggregator
	col       *metrics.Collector
}

// New creates an MCP server over the given engines.
func New(version string, rec *capture.Recorder, rep *capture.Replayer, agg *errtrack.Aggregator, col *metrics.Collector) *Server {
	s := &Server{
		rec: rec,
		rep: rep,
		agg: agg,
		col: col,
	}

	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "devlens",
			Version: version,
		},
		nil,
	)

	s.registerTools()
	return s
}

// Run starts the MCP server on stdio transport. Blocks until ctx is
// cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// registerTools adds all devlens tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "devlens_fetch_metrics",
		Description: "Fetch the current metrics snapshot: latency percentiles, throughput, memory trend, and per-route breakdown.",
	}, s.handleFetchMetrics)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "devlens_list_errors",
		Description: "List aggregated error groups, optionally filtered by status, severity, route, type, minimum count, or free-text search.",
	}, s.handleListErrors)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "devlens_list_requests",
		Description: "List recently captured HTTP requests, newest last.",
	}, s.handleListRequests)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "devlens_replay_request",
		Description: "Replay a captured request by id. Mock mode returns the stored response without any outbound call; live mode re-executes it.",
	}, s.handleReplayRequest)
}
