// Package errtrack deduplicates runtime errors by normalized stack
// identity and annotates each group with rate trends and spike
// detection.
package errtrack

import "time"

// Status is the operator-driven lifecycle state of an error group.
type Status string

const (
	StatusActive   Status = "active"
	StatusResolved Status = "resolved"
	StatusIgnored  Status = "ignored"
)

// Severity classifies how loudly a group should be surfaced.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Trend describes the rate-of-change of a group's occurrences.
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendStable     Trend = "stable"
	TrendDecreasing Trend = "decreasing"
)

// Occurrence is a single sighting of an error within a group.
type Occurrence struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"requestId,omitempty"`
	Route     string    `json:"route,omitempty"`
	Method    string    `json:"method,omitempty"`
}

// Group is a deduplicated error: every occurrence whose normalized
// stack hashes identically collapses into one Group. Readers always
// receive consistent snapshots; no partial update is observable.
type Group struct {
	Hash        string         `json:"hash"`
	Type        string         `json:"type"`
	Message     string         `json:"message"`
	Stack       string         `json:"stack"`
	Count       int            `json:"count"`
	FirstSeen   time.Time      `json:"firstSeen"`
	LastSeen    time.Time      `json:"lastSeen"`
	Occurrences []Occurrence   `json:"occurrences"`
	Routes      map[string]int `json:"routes"`
	Status      Status         `json:"status"`
	Severity    Severity       `json:"severity"`
	Trend       Trend          `json:"trend"`
}

// ErrorInfo is what the host hands to Track for one raised error.
type ErrorInfo struct {
	Type    string
	Message string
	Stack   string
}

// Context carries request-side details of one occurrence.
type Context struct {
	Route      string
	Method     string
	RequestID  string
	StatusCode int
	Timestamp  time.Time
}

// Filter selects groups in List. Zero fields match everything.
type Filter struct {
	Status   Status
	Severity Severity
	Route    string
	Type     string
	From     time.Time
	To       time.Time
	MinCount int
	Search   string // free text over message and stack
}

// Stats summarizes the aggregator for the fetch-error-stats command.
type Stats struct {
	UniqueErrors int              `json:"uniqueErrors"`
	TotalCount   int              `json:"totalCount"`
	ByStatus     map[Status]int   `json:"byStatus"`
	BySeverity   map[Severity]int `json:"bySeverity"`
}
