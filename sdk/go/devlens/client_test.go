package devlens

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devlens/devlens/internal/config"
	"github.com/devlens/devlens/internal/engine"
	"github.com/devlens/devlens/internal/protocol"
)

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Transport.Listen = "127.0.0.1:0"
	cfg.Capture.FlushPerSec = 1000

	e, err := engine.New(cfg, "sha256:test")
	require.NoError(t, err)
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(func() { _ = e.Stop() })
	return e
}

func dialTest(t *testing.T, e *engine.Engine) *Client {
	t.Helper()
	c, err := Dial(e.Addr(),
		WithCallTimeout(2*time.Second),
		WithClientName("sdk-tests", "0.0.1"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// captureOne records a completed request through the host hooks and
// waits for it to reach the store.
func captureOne(t *testing.T, e *engine.Engine, c *Client, url string) string {
	t.Helper()
	id := e.OnRequest("GET", url, map[string]string{"X-Api-Key": "hunter2"}, nil, nil, "")
	e.OnResponse(id, "/users/:id", "GET", 200, nil, `{"name":"ada"}`, 20*time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := c.FetchRequest(context.Background(), id); err == nil {
			return id
		}
		if time.Now().After(deadline) {
			t.Fatal("capture never became fetchable")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDialHandshake(t *testing.T) {
	e := newTestEngine(t)
	c := dialTest(t, e)

	assert.Equal(t, protocol.Version, c.Handshake.ProtocolVersion)
	assert.Equal(t, "sha256:test", c.Handshake.ConfigHash)
	assert.NotEmpty(t, c.Handshake.SessionID)
	assert.Contains(t, c.Handshake.Features, "replay")

	require.NoError(t, c.Ping(context.Background()))
}

func TestFetchAndReplayRoundtrip(t *testing.T) {
	e := newTestEngine(t)
	c := dialTest(t, e)
	id := captureOne(t, e, c, "http://app.local/users/1")

	req, err := c.FetchRequest(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "GET", req.Method)
	assert.NotEqual(t, "hunter2", req.Headers["X-Api-Key"], "secrets must be redacted")

	reqs, err := c.FetchRequests(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, reqs, 1)

	result, err := c.Replay(context.Background(), id, ReplayOptions{Mode: "mock"})
	require.NoError(t, err)
	assert.True(t, result.Mocked)
	require.NotNil(t, result.Response)
	assert.Equal(t, 200, result.Response.StatusCode)

	code, err := c.GenerateTest(context.Background(), id, "go")
	require.NoError(t, err)
	assert.Contains(t, code, "http.NewRequest")

	doc, err := c.ExportRequests(context.Background())
	require.NoError(t, err)
	var exported []json.RawMessage
	require.NoError(t, json.Unmarshal(doc, &exported))
	assert.Len(t, exported, 1)
}

func TestErrorWorkflow(t *testing.T) {
	e := newTestEngine(t)
	c := dialTest(t, e)

	hash := e.OnError("TypeError", "x is undefined", "at users (/app/u.js:3:1)", "/users", "GET", "", 500)
	require.NotEmpty(t, hash)

	groups, err := c.FetchErrors(context.Background(), ErrorFilter{Severity: "critical"})
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, hash, groups[0].Hash)

	g, err := c.ResolveError(context.Background(), hash)
	require.NoError(t, err)
	assert.Equal(t, "resolved", string(g.Status))

	st, err := c.ErrorStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, st.UniqueErrors)
}

func TestMetricsOverWire(t *testing.T) {
	e := newTestEngine(t)
	c := dialTest(t, e)

	for i := 0; i < 4; i++ {
		e.Metrics().RecordRequestEnd("/orders", "POST", 15*time.Millisecond, false)
	}

	snap, err := c.FetchMetrics(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 4, snap.TotalRequests)

	routes, err := c.FetchRoutes(context.Background())
	require.NoError(t, err)
	require.Len(t, routes, 1)
	assert.Equal(t, "/orders", routes[0].Route)
}

func TestServerErrorSurface(t *testing.T) {
	e := newTestEngine(t)
	c := dialTest(t, e)

	_, err := c.FetchRequest(context.Background(), "no-such-id")
	var se *ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "not-found", se.Code)
}

func TestEventsChannelReceivesBroadcasts(t *testing.T) {
	e := newTestEngine(t)
	c := dialTest(t, e)

	id := e.OnRequest("GET", "http://app.local/live", nil, nil, nil, "")
	e.OnResponse(id, "/live", "GET", 204, nil, "", time.Millisecond)

	deadline := time.After(2 * time.Second)
	var sawRecorded bool
	for !sawRecorded {
		select {
		case m, ok := <-c.Events:
			require.True(t, ok, "events channel closed early")
			if m.Type == protocol.EvtRequestRecorded {
				sawRecorded = true
			}
		case <-deadline:
			t.Fatal("request-recorded event never arrived")
		}
	}
}

func TestCallAfterCloseFails(t *testing.T) {
	e := newTestEngine(t)
	c := dialTest(t, e)

	require.NoError(t, c.Close())

	deadline := time.Now().Add(2 * time.Second)
	for {
		err := c.Ping(context.Background())
		if errors.Is(err, ErrClosed) {
			return
		}
		require.Error(t, err, "ping on a closed client must fail")
		if time.Now().After(deadline) {
			t.Fatalf("expected ErrClosed eventually, got %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
