package errtrack

import "strings"

// matches applies every set filter field; zero fields match all.
// Caller holds the aggregator lock.
func matches(g *group, f Filter) bool {
	if f.Status != "" && g.status != f.Status {
		return false
	}
	if f.Severity != "" && g.severity != f.Severity {
		return false
	}
	if f.Type != "" && g.errType != f.Type {
		return false
	}
	if f.Route != "" {
		if _, ok := g.routes[f.Route]; !ok {
			return false
		}
	}
	if !f.From.IsZero() && g.lastSeen.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && g.firstSeen.After(f.To) {
		return false
	}
	if f.MinCount > 0 && g.count < f.MinCount {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(g.message), needle) &&
			!strings.Contains(strings.ToLower(g.stack), needle) {
			return false
		}
	}
	return true
}
