package errtrack

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// sourcePosition matches trailing :line or :line:column markers on a
// stack frame, including those inside parentheses.
var sourcePosition = regexp.MustCompile(`:\d+(?::\d+)?`)

// defaultInternalPatterns are path fragments identifying frames inside
// the framework or runtime internals. Those frames are dropped so the
// hash keys on the application's own call sequence.
var defaultInternalPatterns = []string{
	"node_modules/",
	"internal/process",
	"internal/modules",
	"runtime/",
	"devlens/",
}

// NormalizeStack reduces a raw stack trace to the ordered sequence of
// origin frames: source positions stripped, internal frames dropped,
// whitespace canonicalized. Two errors raised from the same call path
// normalize identically even when line numbers drift between builds.
func NormalizeStack(stack string, internalPatterns []string) string {
	if internalPatterns == nil {
		internalPatterns = defaultInternalPatterns
	}

	lines := strings.Split(stack, "\n")
	frames := make([]string, 0, len(lines))
	for _, line := range lines {
		frame := strings.TrimSpace(line)
		if frame == "" {
			continue
		}
		if isInternalFrame(frame, internalPatterns) {
			continue
		}
		frames = append(frames, sourcePosition.ReplaceAllString(frame, ""))
	}
	return strings.Join(frames, "\n")
}

func isInternalFrame(frame string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(frame, p) {
			return true
		}
	}
	return false
}

// HashStack digests a normalized stack (plus the error type) into the
// group identity. Dynamic values in the message never contribute, so
// "user 17 not found" and "user 42 not found" from the same call path
// collapse into one group.
func HashStack(errType, normalizedStack string) string {
	h := sha256.New()
	h.Write([]byte(errType))
	h.Write([]byte{0})
	h.Write([]byte(normalizedStack))
	return hex.EncodeToString(h.Sum(nil))[:16]
}
