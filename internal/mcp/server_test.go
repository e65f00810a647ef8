package mcp

import (
	"context"
	"testing"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/devlens/devlens/internal/capture"
	"github.com/devlens/devlens/internal/errtrack"
	"github.com/devlens/devlens/internal/event"
	"github.com/devlens/devlens/internal/metrics"
	"github.com/devlens/devlens/internal/redact"
	"github.com/devlens/devlens/internal/store"
)

func newTestServer(t *testing.T) (*Server, *capture.Recorder, *errtrack.Aggregator, *metrics.Collector) {
	t.Helper()
	bus := event.NewBus()
	rec := capture.NewRecorder(store.NewMemory(100), redact.NewSanitizer(), bus)

	fl := capture.NewFlusher(rec, 1000, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	go fl.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-fl.Done()
	})

	rep := capture.NewReplayer(rec)
	agg := errtrack.New(bus, errtrack.Config{})
	col := metrics.NewCollector(bus, metrics.Config{})
	return New("test", rec, rep, agg, col), rec, agg, col
}

func completeAndFlush(t *testing.T, rec *capture.Recorder, id string, status int) {
	t.Helper()
	rec.Complete(id, capture.ResponseMeta{StatusCode: status, Body: `{"ok":true}`}, time.Now())
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := rec.Get(id); err == nil {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("capture never reached the store")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestFetchMetrics(t *testing.T) {
	s, _, _, col := newTestServer(t)

	col.RecordRequestEnd("/users", "GET", 40*time.Millisecond, false)
	col.RecordRequestEnd("/users", "GET", 60*time.Millisecond, true)

	_, out, err := s.handleFetchMetrics(context.Background(), &mcpsdk.CallToolRequest{}, FetchMetricsInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Snapshot.TotalRequests != 2 || out.Snapshot.TotalErrors != 1 {
		t.Fatalf("unexpected snapshot totals: %+v", out.Snapshot)
	}
	if len(out.Snapshot.Routes) != 1 {
		t.Fatalf("expected one route entry, got %d", len(out.Snapshot.Routes))
	}
}

func TestFetchMetricsWithHistory(t *testing.T) {
	s, _, _, col := newTestServer(t)

	col.RecordRequestEnd("/users", "GET", 40*time.Millisecond, false)
	col.CaptureSnapshot()
	col.RecordRequestEnd("/users", "GET", 60*time.Millisecond, false)
	col.CaptureSnapshot()
	col.RecordRequestEnd("/users", "GET", 80*time.Millisecond, false)
	col.CaptureSnapshot()

	_, out, err := s.handleFetchMetrics(context.Background(), &mcpsdk.CallToolRequest{},
		FetchMetricsInput{History: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.History) != 2 {
		t.Fatalf("expected 2 historical snapshots, got %d", len(out.History))
	}
	if out.History[0].TotalRequests != 2 || out.History[1].TotalRequests != 3 {
		t.Fatalf("history not oldest-first: %+v", out.History)
	}

	_, none, err := s.handleFetchMetrics(context.Background(), &mcpsdk.CallToolRequest{}, FetchMetricsInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(none.History) != 0 {
		t.Fatalf("history must be opt-in, got %d snapshots", len(none.History))
	}
}

func TestListErrorsFiltered(t *testing.T) {
	s, _, agg, _ := newTestServer(t)

	agg.Track(errtrack.ErrorInfo{Type: "TypeError", Message: "boom", Stack: "at a (/a.js:1:1)"},
		errtrack.Context{Route: "/users", StatusCode: 500})
	agg.Track(errtrack.ErrorInfo{Type: "ValidationError", Message: "bad email", Stack: "at b (/b.js:1:1)"},
		errtrack.Context{Route: "/orders", StatusCode: 400})

	_, out, err := s.handleListErrors(context.Background(), &mcpsdk.CallToolRequest{},
		ListErrorsInput{Severity: "critical"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Total != 1 || out.Errors[0].Type != "TypeError" {
		t.Fatalf("severity filter wrong: %+v", out)
	}

	_, all, err := s.handleListErrors(context.Background(), &mcpsdk.CallToolRequest{}, ListErrorsInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if all.Total != 2 {
		t.Fatalf("empty filter must match all: %+v", all)
	}
}

func TestListRequests(t *testing.T) {
	s, rec, _, _ := newTestServer(t)

	id := rec.Begin(capture.RequestMeta{Method: "GET", URL: "http://app.local/users"})
	completeAndFlush(t, rec, id, 200)

	_, out, err := s.handleListRequests(context.Background(), &mcpsdk.CallToolRequest{}, ListRequestsInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Total != 1 || out.Requests[0].ID != id {
		t.Fatalf("unexpected listing: %+v", out)
	}
}

func TestReplayMockThroughTool(t *testing.T) {
	s, rec, _, _ := newTestServer(t)

	id := rec.Begin(capture.RequestMeta{Method: "GET", URL: "http://app.local/users"})
	completeAndFlush(t, rec, id, 200)

	result, out, err := s.handleReplayRequest(context.Background(), &mcpsdk.CallToolRequest{},
		ReplayRequestInput{ID: id})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil && result.IsError {
		t.Fatalf("expected success, got error result: %+v", out.Result)
	}
	if !out.Result.Mocked || out.Result.Response == nil || out.Result.Response.StatusCode != 200 {
		t.Fatalf("unexpected replay result: %+v", out.Result)
	}
}

func TestReplayUnknownIDIsErrorResult(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	result, out, err := s.handleReplayRequest(context.Background(), &mcpsdk.CallToolRequest{},
		ReplayRequestInput{ID: "no-such"})
	if err != nil {
		t.Fatalf("replay failures must be in-band: %v", err)
	}
	if result == nil || !result.IsError {
		t.Fatal("expected IsError result for unknown id")
	}
	if out.Result.Error == "" {
		t.Fatal("expected error detail in result")
	}
}
