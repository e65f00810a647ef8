package transport

import (
	"fmt"
	"sort"
	"strings"

	"github.com/devlens/devlens/internal/capture"
	"github.com/devlens/devlens/internal/protocol"
)

func (d *Dispatcher) handleGenerateTest(h *Hub, s *Session, cmd protocol.Message) {
	var p protocol.GenerateTestPayload
	if !d.decode(h, s, cmd, &p) {
		return
	}
	req, err := d.rec.Get(p.ID)
	if err != nil {
		h.sendError(s, cmd, "not-found", fmt.Sprintf("request %s not found", p.ID))
		return
	}
	if req.Response == nil {
		h.sendError(s, cmd, "conflict", fmt.Sprintf("request %s has no recorded response yet", p.ID))
		return
	}

	framework := p.Framework
	if framework == "" {
		framework = "go"
	}
	var code string
	switch framework {
	case "go":
		code = generateGoTest(req)
	case "curl":
		code = generateCurl(req)
	default:
		h.sendError(s, cmd, "bad-payload", fmt.Sprintf("unknown test framework %q", framework))
		return
	}

	d.reply(h, s, cmd, protocol.EvtTestGenerated, map[string]any{
		"framework": framework,
		"requestId": req.ID,
		"code":      code,
	})
}

// generateGoTest renders a net/http test skeleton asserting the
// recorded status code.
func generateGoTest(req capture.RecordedRequest) string {
	var b strings.Builder
	name := testName(req)

	fmt.Fprintf(&b, "func Test%s(t *testing.T) {\n", name)
	if req.Body != "" {
		fmt.Fprintf(&b, "\tbody := strings.NewReader(%q)\n", req.Body)
		fmt.Fprintf(&b, "\treq, err := http.NewRequest(%q, %q, body)\n", req.Method, req.URL)
	} else {
		fmt.Fprintf(&b, "\treq, err := http.NewRequest(%q, %q, nil)\n", req.Method, req.URL)
	}
	b.WriteString("\tif err != nil {\n\t\tt.Fatal(err)\n\t}\n")
	for _, k := range sortedKeys(req.Headers) {
		fmt.Fprintf(&b, "\treq.Header.Set(%q, %q)\n", k, req.Headers[k])
	}
	b.WriteString("\n\tresp, err := http.DefaultClient.Do(req)\n")
	b.WriteString("\tif err != nil {\n\t\tt.Fatal(err)\n\t}\n")
	b.WriteString("\tdefer resp.Body.Close()\n\n")
	fmt.Fprintf(&b, "\tif resp.StatusCode != %d {\n", req.Response.StatusCode)
	fmt.Fprintf(&b, "\t\tt.Fatalf(\"expected status %d, got %%d\", resp.StatusCode)\n", req.Response.StatusCode)
	b.WriteString("\t}\n}\n")
	return b.String()
}

func generateCurl(req capture.RecordedRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "curl -X %s", req.Method)
	for _, k := range sortedKeys(req.Headers) {
		fmt.Fprintf(&b, " \\\n  -H %q", k+": "+req.Headers[k])
	}
	if req.Body != "" {
		fmt.Fprintf(&b, " \\\n  -d %q", req.Body)
	}
	fmt.Fprintf(&b, " \\\n  %q\n", req.URL)
	return b.String()
}

func testName(req capture.RecordedRequest) string {
	name := capitalize(strings.ToLower(req.Method))
	for _, part := range strings.FieldsFunc(req.URL, func(r rune) bool {
		return r == '/' || r == ':' || r == '.' || r == '?' || r == '&' || r == '=' || r == '-'
	}) {
		if part == "" || strings.HasPrefix(part, "http") {
			continue
		}
		name += capitalize(part)
	}
	return name
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
