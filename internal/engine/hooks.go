package engine

import (
	"fmt"
	"os"
	"time"

	"github.com/devlens/devlens/internal/capture"
	"github.com/devlens/devlens/internal/errtrack"
)

// Host hooks. These are the only entry points a web framework calls
// from its request path; none of them may panic past this boundary or
// block on transport or storage.

// OnRequest records the start of one inbound request and returns the
// capture id the host threads through to OnResponse.
func (e *Engine) OnRequest(method, url string, headers, query, params map[string]string, body string) (id string) {
	defer e.recoverHook("OnRequest")
	return e.recorder.Begin(capture.RequestMeta{
		Method:  method,
		URL:     url,
		Headers: headers,
		Query:   query,
		Params:  params,
		Body:    body,
	})
}

// OnResponse completes a capture and feeds the metrics collector.
// route is the matched route pattern (e.g. "/users/:id"), which keeps
// per-route stats from exploding across path parameters.
func (e *Engine) OnResponse(id, route, method string, statusCode int, headers map[string]string, body string, latency time.Duration) {
	defer e.recoverHook("OnResponse")
	e.recorder.Complete(id, capture.ResponseMeta{
		StatusCode: statusCode,
		Headers:    headers,
		Body:       body,
	}, time.Now())
	e.metrics.RecordRequestEnd(route, method, latency, statusCode >= 400)
}

// OnError tracks one uncaught error against its request context.
func (e *Engine) OnError(errType, message, stack string, route, method, requestID string, statusCode int) (hash string) {
	defer e.recoverHook("OnError")
	return e.errors.Track(
		errtrack.ErrorInfo{Type: errType, Message: message, Stack: stack},
		errtrack.Context{
			Route:      route,
			Method:     method,
			RequestID:  requestID,
			StatusCode: statusCode,
		},
	)
}

// recoverHook keeps internal failures from propagating into the host
// request path.
func (e *Engine) recoverHook(name string) {
	if r := recover(); r != nil {
		fmt.Fprintf(os.Stderr, "devlens: %s hook failed: %v\n", name, r)
	}
}
