package errtrack

import (
	"strings"
	"testing"
)

const stackA = `TypeError: x is undefined
    at handleUser (/app/src/routes/users.js:42:13)
    at dispatch (/app/node_modules/router/lib/layer.js:95:5)
    at process (/app/src/middleware/auth.js:17:9)`

// stackB is stackA after an unrelated edit shifted line numbers.
const stackB = `TypeError: x is undefined
    at handleUser (/app/src/routes/users.js:57:22)
    at dispatch (/app/node_modules/router/lib/layer.js:95:5)
    at process (/app/src/middleware/auth.js:19:3)`

func TestNormalizeStripsPositions(t *testing.T) {
	got := NormalizeStack(stackA, nil)

	if strings.Contains(got, ":42") || strings.Contains(got, ":13") {
		t.Fatalf("source positions survived normalization:\n%s", got)
	}
	if !strings.Contains(got, "handleUser (/app/src/routes/users.js)") {
		t.Fatalf("origin frame mangled:\n%s", got)
	}
}

func TestNormalizeDropsInternalFrames(t *testing.T) {
	got := NormalizeStack(stackA, nil)
	if strings.Contains(got, "node_modules") {
		t.Fatalf("internal frame survived:\n%s", got)
	}
	// Frame order of the surviving origin frames is preserved.
	first := strings.Index(got, "handleUser")
	second := strings.Index(got, "process (")
	if first < 0 || second < 0 || first > second {
		t.Fatalf("frame order lost:\n%s", got)
	}
}

func TestHashStableAcrossLineNumbers(t *testing.T) {
	hashA := HashStack("TypeError", NormalizeStack(stackA, nil))
	hashB := HashStack("TypeError", NormalizeStack(stackB, nil))
	if hashA != hashB {
		t.Fatalf("same logical error hashed differently: %s vs %s", hashA, hashB)
	}
}

func TestHashDistinguishesTypeAndFrames(t *testing.T) {
	norm := NormalizeStack(stackA, nil)
	if HashStack("TypeError", norm) == HashStack("RangeError", norm) {
		t.Fatal("different types produced the same hash")
	}

	other := NormalizeStack(strings.Replace(stackA, "handleUser", "handleOrder", 1), nil)
	if HashStack("TypeError", norm) == HashStack("TypeError", other) {
		t.Fatal("different frames produced the same hash")
	}
}

func TestCustomInternalPatterns(t *testing.T) {
	got := NormalizeStack(stackA, []string{"/middleware/"})
	if strings.Contains(got, "middleware") {
		t.Fatalf("custom internal frame survived:\n%s", got)
	}
	if !strings.Contains(got, "node_modules") {
		t.Fatal("custom patterns should replace the defaults, not extend them")
	}
}
