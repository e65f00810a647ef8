package capture

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultReplayTimeout bounds a live replay. On expiry the replay is
// reported as a failed ReplayResult, never left hanging.
const DefaultReplayTimeout = 30 * time.Second

// maxReplayBody caps how much of a replayed response body is retained.
const maxReplayBody = 1 << 20 // 1 MiB

// Doer executes outbound HTTP requests. *http.Client satisfies it;
// tests substitute a counting fake.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Replayer re-executes stored requests. In mock mode it returns the
// stored response with no outbound call; in live mode it merges
// overrides over the original and executes against the target.
type Replayer struct {
	rec     *Recorder
	client  Doer
	target  string // base URL overriding the original host; empty keeps the original
	timeout time.Duration
}

// ReplayerOption configures a Replayer.
type ReplayerOption func(*Replayer)

// WithTarget redirects live replays to a different base URL
// (scheme://host[:port]), keeping the original path and query.
func WithTarget(base string) ReplayerOption {
	return func(rp *Replayer) { rp.target = base }
}

// WithTimeout overrides the default replay timeout.
func WithTimeout(d time.Duration) ReplayerOption {
	return func(rp *Replayer) { rp.timeout = d }
}

// WithDoer substitutes the outbound transport. Tests only.
func WithDoer(d Doer) ReplayerOption {
	return func(rp *Replayer) { rp.client = d }
}

// NewReplayer creates a Replayer reading originals from rec.
func NewReplayer(rec *Recorder, opts ...ReplayerOption) *Replayer {
	rp := &Replayer{
		rec:     rec,
		client:  &http.Client{},
		timeout: DefaultReplayTimeout,
	}
	for _, opt := range opts {
		opt(rp)
	}
	return rp
}

// Replay re-executes the stored request identified by id. Failures of
// any kind are captured in the result's Error field; Replay itself
// only errors on an unknown id... and even that is reported in-band so
// command handlers have a single path.
func (rp *Replayer) Replay(ctx context.Context, id string, ov Overrides, mode ReplayMode) ReplayResult {
	original, err := rp.rec.Get(id)
	if err != nil {
		return ReplayResult{Error: "request not found: " + id}
	}

	if mode == ReplayMock {
		if original.Response == nil {
			return ReplayResult{Original: original, Mocked: true, Error: "no stored response to mock"}
		}
		resp := *original.Response
		return ReplayResult{Original: original, Response: &resp, Mocked: true}
	}

	return rp.replayLive(ctx, original, ov)
}

func (rp *Replayer) replayLive(ctx context.Context, original RecordedRequest, ov Overrides) ReplayResult {
	result := ReplayResult{Original: original}

	target, err := rp.buildURL(original, ov)
	if err != nil {
		result.Error = "build url: " + err.Error()
		return result
	}

	body := original.Body
	if ov.Body != nil {
		body = *ov.Body
	}

	ctx, cancel := context.WithTimeout(ctx, rp.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, original.Method, target, strings.NewReader(body))
	if err != nil {
		result.Error = "build request: " + err.Error()
		return result
	}
	for k, v := range original.Headers {
		req.Header.Set(k, v)
	}
	for k, v := range ov.Headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := rp.client.Do(req)
	result.Timing = time.Since(start)
	if err != nil {
		result.Error = "execute: " + err.Error()
		return result
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxReplayBody))
	if err != nil {
		result.Error = "read response: " + err.Error()
		return result
	}

	now := time.Now()
	result.Response = &RecordedResponse{
		StatusCode: resp.StatusCode,
		Headers:    flattenHeader(rp.rec.sanitizer.Values(resp.Header)),
		Body:       string(respBody),
		Timestamp:  now,
	}

	// A live replay yields a new recorded request with a derived id;
	// the original is never touched.
	derived := RecordedRequest{
		ID:        original.ID + "-replay-" + newRequestID(now)[4:],
		Timestamp: start,
		Method:    original.Method,
		URL:       target,
		Headers:   rp.rec.sanitizer.Headers(mergeMaps(original.Headers, ov.Headers)),
		Query:     mergeMaps(original.Query, ov.Query),
		Body:      body,
		Duration:  result.Timing,
		Response:  result.Response,
		ReplayOf:  original.ID,
	}
	rp.rec.Record(derived)

	return result
}

// buildURL merges query overrides into the original URL and rebases it
// onto the configured target when one is set.
func (rp *Replayer) buildURL(original RecordedRequest, ov Overrides) (string, error) {
	u, err := url.Parse(original.URL)
	if err != nil {
		return "", err
	}

	if len(ov.Query) > 0 {
		q := u.Query()
		for k, v := range ov.Query {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}

	if rp.target != "" {
		base, err := url.Parse(rp.target)
		if err != nil {
			return "", err
		}
		u.Scheme = base.Scheme
		u.Host = base.Host
	}
	return u.String(), nil
}

func flattenHeader(h map[string][]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, vs := range h {
		if len(vs) > 0 {
			out[k] = vs[0]
		}
	}
	return out
}

func mergeMaps(base, overrides map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(overrides))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}
