package capture

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Comparison is the structural diff of two recorded responses.
// Compare is a pure function: no side effects, no stored state.
type Comparison struct {
	Identical   bool       `json:"identical"`
	StatusEqual bool       `json:"statusEqual"`
	OldStatus   int        `json:"oldStatus"`
	NewStatus   int        `json:"newStatus"`
	Headers     HeaderDiff `json:"headers"`
	Body        BodyDiff   `json:"body"`
	Summary     string     `json:"summary"`
}

// HeaderDiff describes header set changes, keyed case-insensitively.
type HeaderDiff struct {
	Added    map[string]string    `json:"added,omitempty"`
	Removed  map[string]string    `json:"removed,omitempty"`
	Modified map[string]ValuePair `json:"modified,omitempty"`
}

// ValuePair holds the before/after of a modified value.
type ValuePair struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// Empty reports whether no header changed.
func (h HeaderDiff) Empty() bool {
	return len(h.Added) == 0 && len(h.Removed) == 0 && len(h.Modified) == 0
}

// BodyDiff describes body changes. For structured (JSON) bodies the
// Differences list is a recursive field-level diff; for mismatched
// types a single type-changed entry is reported.
type BodyDiff struct {
	Identical   bool          `json:"identical"`
	TypeChanged bool          `json:"typeChanged,omitempty"`
	Differences []FieldChange `json:"differences,omitempty"`
}

// FieldChange is one structural difference at a JSON path.
type FieldChange struct {
	Path string `json:"path"`
	Kind string `json:"kind"` // added | removed | changed | type-changed
	Old  any    `json:"old,omitempty"`
	New  any    `json:"new,omitempty"`
}

// Compare diffs two recorded responses: status equality, header set
// changes (case-insensitive keys), and a structural body diff.
func Compare(a, b *RecordedResponse) Comparison {
	cmp := Comparison{
		StatusEqual: a.StatusCode == b.StatusCode,
		OldStatus:   a.StatusCode,
		NewStatus:   b.StatusCode,
		Headers:     diffHeaders(a.Headers, b.Headers),
		Body:        diffBodies(a.Body, b.Body),
	}
	cmp.Identical = cmp.StatusEqual && cmp.Headers.Empty() && cmp.Body.Identical
	cmp.Summary = summarize(cmp)
	return cmp
}

func diffHeaders(old, new map[string]string) HeaderDiff {
	diff := HeaderDiff{}

	oldLower := lowerKeyed(old)
	newLower := lowerKeyed(new)

	for k, nv := range newLower {
		ov, ok := oldLower[k]
		switch {
		case !ok:
			if diff.Added == nil {
				diff.Added = make(map[string]string)
			}
			diff.Added[k] = nv
		case ov != nv:
			if diff.Modified == nil {
				diff.Modified = make(map[string]ValuePair)
			}
			diff.Modified[k] = ValuePair{Old: ov, New: nv}
		}
	}
	for k, ov := range oldLower {
		if _, ok := newLower[k]; !ok {
			if diff.Removed == nil {
				diff.Removed = make(map[string]string)
			}
			diff.Removed[k] = ov
		}
	}
	return diff
}

func lowerKeyed(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[strings.ToLower(k)] = v
	}
	return out
}

func diffBodies(old, new string) BodyDiff {
	if old == new {
		return BodyDiff{Identical: true}
	}

	oldVal, oldOK := parseJSON(old)
	newVal, newOK := parseJSON(new)

	// Both structured: recursive diff.
	if oldOK && newOK {
		diffs := diffValues("$", oldVal, newVal, nil)
		return BodyDiff{Identical: len(diffs) == 0, Differences: diffs}
	}

	// One structured, one not: the body type itself changed.
	if oldOK != newOK {
		return BodyDiff{
			TypeChanged: true,
			Differences: []FieldChange{{Path: "$", Kind: "type-changed", Old: old, New: new}},
		}
	}

	// Plain text on both sides.
	return BodyDiff{
		Differences: []FieldChange{{Path: "$", Kind: "changed", Old: old, New: new}},
	}
}

func parseJSON(s string) (any, bool) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || (trimmed[0] != '{' && trimmed[0] != '[') {
		return nil, false
	}
	var v any
	if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
		return nil, false
	}
	return v, true
}

// diffValues walks two decoded JSON values and appends differences.
func diffValues(path string, old, new any, acc []FieldChange) []FieldChange {
	switch ov := old.(type) {
	case map[string]any:
		nv, ok := new.(map[string]any)
		if !ok {
			return append(acc, FieldChange{Path: path, Kind: "type-changed", Old: old, New: new})
		}
		return diffMaps(path, ov, nv, acc)

	case []any:
		nv, ok := new.([]any)
		if !ok {
			return append(acc, FieldChange{Path: path, Kind: "type-changed", Old: old, New: new})
		}
		return diffSlices(path, ov, nv, acc)

	default:
		if !reflect.DeepEqual(old, new) {
			return append(acc, FieldChange{Path: path, Kind: "changed", Old: old, New: new})
		}
		return acc
	}
}

func diffMaps(path string, old, new map[string]any, acc []FieldChange) []FieldChange {
	keys := make([]string, 0, len(old)+len(new))
	seen := make(map[string]bool, len(old)+len(new))
	for k := range old {
		keys = append(keys, k)
		seen[k] = true
	}
	for k := range new {
		if !seen[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		child := path + "." + k
		ov, inOld := old[k]
		nv, inNew := new[k]
		switch {
		case !inOld:
			acc = append(acc, FieldChange{Path: child, Kind: "added", New: nv})
		case !inNew:
			acc = append(acc, FieldChange{Path: child, Kind: "removed", Old: ov})
		default:
			acc = diffValues(child, ov, nv, acc)
		}
	}
	return acc
}

func diffSlices(path string, old, new []any, acc []FieldChange) []FieldChange {
	n := len(old)
	if len(new) > n {
		n = len(new)
	}
	for i := 0; i < n; i++ {
		child := path + "[" + strconv.Itoa(i) + "]"
		switch {
		case i >= len(old):
			acc = append(acc, FieldChange{Path: child, Kind: "added", New: new[i]})
		case i >= len(new):
			acc = append(acc, FieldChange{Path: child, Kind: "removed", Old: old[i]})
		default:
			acc = diffValues(child, old[i], new[i], acc)
		}
	}
	return acc
}

// summarize renders a one-line human-readable digest of a comparison.
func summarize(c Comparison) string {
	if c.Identical {
		return "responses are identical"
	}

	var parts []string
	if !c.StatusEqual {
		parts = append(parts, fmt.Sprintf("status %d -> %d", c.OldStatus, c.NewStatus))
	}
	if !c.Headers.Empty() {
		parts = append(parts, fmt.Sprintf("headers: %d added, %d removed, %d modified",
			len(c.Headers.Added), len(c.Headers.Removed), len(c.Headers.Modified)))
	}
	if !c.Body.Identical {
		switch {
		case c.Body.TypeChanged:
			parts = append(parts, "body type changed")
		default:
			parts = append(parts, fmt.Sprintf("body: %d difference(s)", len(c.Body.Differences)))
		}
	}
	return strings.Join(parts, "; ")
}
