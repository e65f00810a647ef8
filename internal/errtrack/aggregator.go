package errtrack

import (
	"sync"
	"time"

	"github.com/devlens/devlens/internal/event"
	"github.com/devlens/devlens/internal/ring"
)

// Config holds the aggregator's tunables. Zero values take defaults.
type Config struct {
	// OccurrenceCap bounds the per-group occurrence ring.
	OccurrenceCap int
	// MaxGroups caps unique error groups before eviction.
	MaxGroups int
	// SpikeWindow is the short-run window for burst detection.
	SpikeWindow time.Duration
	// SpikeMultiplier scales the expected window count into the spike
	// threshold. The long-run average rate formula behaves erratically
	// for very young groups, so this is a tunable, not a guarantee;
	// minSpikeAge additionally gates young groups.
	SpikeMultiplier float64
	// CriticalTypes are error types always classified critical.
	CriticalTypes []string
	// InternalPatterns override the stack frames dropped during
	// normalization.
	InternalPatterns []string
}

const (
	defaultOccurrenceCap   = 50
	defaultMaxGroups       = 500
	defaultSpikeWindow     = 5 * time.Minute
	defaultSpikeMultiplier = 10.0

	// trendSample is how many occurrences form each trend window.
	trendSample = 10
	// trendFasterRatio / trendSlowerRatio bound the stable band.
	trendFasterRatio = 0.7
	trendSlowerRatio = 1.3

	// minSpikeAge is the minimum active duration before spike
	// evaluation; younger groups produce unstable average rates.
	minSpikeAge = time.Minute
)

var defaultCriticalTypes = []string{
	"ReferenceError", "SyntaxError", "SystemError", "OutOfMemoryError",
}

// group is the internal mutable state behind a Group snapshot.
type group struct {
	hash        string
	errType     string
	message     string
	stack       string
	count       int
	firstSeen   time.Time
	lastSeen    time.Time
	occurrences *ring.Buffer[Occurrence]
	routes      map[string]int
	status      Status
	severity    Severity
	trend       Trend
	lastSpike   time.Time
}

// Aggregator deduplicates errors into groups. All mutation goes
// through its single-writer API under one lock, so a group's count,
// occurrences, and trend always change together.
type Aggregator struct {
	mu     sync.Mutex
	groups map[string]*group
	bus    *event.Bus
	cfg    Config
	now    func() time.Time
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithClock overrides the aggregator's time source. Tests only.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// New creates an Aggregator publishing signals on bus.
func New(bus *event.Bus, cfg Config, opts ...Option) *Aggregator {
	if cfg.OccurrenceCap <= 0 {
		cfg.OccurrenceCap = defaultOccurrenceCap
	}
	if cfg.MaxGroups <= 0 {
		cfg.MaxGroups = defaultMaxGroups
	}
	if cfg.SpikeWindow <= 0 {
		cfg.SpikeWindow = defaultSpikeWindow
	}
	if cfg.SpikeMultiplier <= 0 {
		cfg.SpikeMultiplier = defaultSpikeMultiplier
	}
	if cfg.CriticalTypes == nil {
		cfg.CriticalTypes = defaultCriticalTypes
	}
	a := &Aggregator{
		groups: make(map[string]*group),
		bus:    bus,
		cfg:    cfg,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// SetSpikeTuning adjusts the spike detector at runtime, used by
// config hot-reload. Non-positive values keep the current setting.
func (a *Aggregator) SetSpikeTuning(window time.Duration, multiplier float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if window > 0 {
		a.cfg.SpikeWindow = window
	}
	if multiplier > 0 {
		a.cfg.SpikeMultiplier = multiplier
	}
}

// Track records one error occurrence and returns the group hash.
// Called from the host's error path: it never panics past the
// boundary and never blocks on anything slower than a mutex.
func (a *Aggregator) Track(info ErrorInfo, ctx Context) string {
	ts := ctx.Timestamp
	if ts.IsZero() {
		ts = a.now()
	}

	normalized := NormalizeStack(info.Stack, a.cfg.InternalPatterns)
	hash := HashStack(info.Type, normalized)

	var snapshot Group
	var isNew, spiked bool

	a.mu.Lock()
	g, ok := a.groups[hash]
	if !ok {
		isNew = true
		g = &group{
			hash:        hash,
			errType:     info.Type,
			message:     info.Message,
			stack:       info.Stack,
			firstSeen:   ts,
			occurrences: ring.New[Occurrence](a.cfg.OccurrenceCap),
			routes:      make(map[string]int),
			status:      StatusActive,
			trend:       TrendStable,
		}
		a.groups[hash] = g
	}

	g.count++
	g.lastSeen = ts
	g.message = info.Message // keep the freshest surface message
	g.occurrences.Push(Occurrence{
		Timestamp: ts,
		RequestID: ctx.RequestID,
		Route:     ctx.Route,
		Method:    ctx.Method,
	})
	if ctx.Route != "" {
		g.routes[ctx.Route]++
	}
	g.severity = a.classify(info.Type, ctx.StatusCode)
	g.trend = computeTrend(g.occurrences.Items())
	spiked = a.checkSpikeLocked(g, ts)
	if isNew {
		a.evictLocked()
	}
	snapshot = g.snapshot()
	a.mu.Unlock()

	if isNew {
		a.bus.Publish(event.NewErrorType, snapshot)
	}
	a.bus.Publish(event.ErrorTracked, snapshot)
	if spiked {
		a.bus.Publish(event.ErrorSpike, snapshot)
	}
	return hash
}

// classify maps type membership and HTTP status onto a severity.
func (a *Aggregator) classify(errType string, status int) Severity {
	for _, t := range a.cfg.CriticalTypes {
		if t == errType {
			return SeverityCritical
		}
	}
	if status >= 500 {
		return SeverityCritical
	}
	// 4xx and everything else default to warning.
	return SeverityWarning
}

// computeTrend compares the average inter-arrival interval of the most
// recent trendSample occurrences against the preceding window.
func computeTrend(occ []Occurrence) Trend {
	if len(occ) < 2*trendSample {
		return TrendStable
	}

	recent := occ[len(occ)-trendSample:]
	previous := occ[len(occ)-2*trendSample : len(occ)-trendSample]

	recentAvg := avgInterval(recent)
	previousAvg := avgInterval(previous)
	if previousAvg <= 0 {
		return TrendStable
	}

	ratio := recentAvg / previousAvg
	switch {
	case ratio < trendFasterRatio:
		return TrendIncreasing // errors arriving faster
	case ratio > trendSlowerRatio:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

func avgInterval(occ []Occurrence) float64 {
	if len(occ) < 2 {
		return 0
	}
	span := occ[len(occ)-1].Timestamp.Sub(occ[0].Timestamp)
	return span.Seconds() / float64(len(occ)-1)
}

// checkSpikeLocked evaluates the burst condition: the count inside the
// trailing SpikeWindow against SpikeMultiplier times the long-run
// average scaled to that window. At most one signal per window.
func (a *Aggregator) checkSpikeLocked(g *group, now time.Time) bool {
	if g.count < trendSample {
		return false
	}
	activeFor := g.lastSeen.Sub(g.firstSeen)
	if activeFor < minSpikeAge {
		return false
	}
	if !g.lastSpike.IsZero() && now.Sub(g.lastSpike) < a.cfg.SpikeWindow {
		return false
	}

	perMinute := float64(g.count) / activeFor.Minutes()
	expected := perMinute * a.cfg.SpikeWindow.Minutes()

	cutoff := now.Add(-a.cfg.SpikeWindow)
	recent := 0
	for _, o := range g.occurrences.Items() {
		if o.Timestamp.After(cutoff) {
			recent++
		}
	}

	if float64(recent) > a.cfg.SpikeMultiplier*expected {
		g.lastSpike = now
		return true
	}
	return false
}

// evictLocked enforces MaxGroups: resolved/ignored groups go first,
// then the group with the oldest lastSeen.
func (a *Aggregator) evictLocked() {
	for len(a.groups) > a.cfg.MaxGroups {
		var victim *group
		for _, g := range a.groups {
			if victim == nil {
				victim = g
				continue
			}
			vClosed := victim.status != StatusActive
			gClosed := g.status != StatusActive
			switch {
			case gClosed && !vClosed:
				victim = g
			case gClosed == vClosed && g.lastSeen.Before(victim.lastSeen):
				victim = g
			}
		}
		delete(a.groups, victim.hash)
	}
}

// snapshot copies the group into an immutable view. Caller holds mu.
func (g *group) snapshot() Group {
	routes := make(map[string]int, len(g.routes))
	for r, c := range g.routes {
		routes[r] = c
	}
	return Group{
		Hash:        g.hash,
		Type:        g.errType,
		Message:     g.message,
		Stack:       g.stack,
		Count:       g.count,
		FirstSeen:   g.firstSeen,
		LastSeen:    g.lastSeen,
		Occurrences: g.occurrences.Items(),
		Routes:      routes,
		Status:      g.status,
		Severity:    g.severity,
		Trend:       g.trend,
	}
}

// Get returns a snapshot of one group.
func (a *Aggregator) Get(hash string) (Group, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	g, ok := a.groups[hash]
	if !ok {
		return Group{}, false
	}
	return g.snapshot(), true
}

// List returns snapshots of every group matching the filter,
// unsorted; callers sort as needed.
func (a *Aggregator) List(f Filter) []Group {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Group, 0, len(a.groups))
	for _, g := range a.groups {
		if matches(g, f) {
			out = append(out, g.snapshot())
		}
	}
	return out
}

// Resolve marks a group resolved. Idempotent; unknown hashes are a
// no-op returning false.
func (a *Aggregator) Resolve(hash string) bool {
	return a.setStatus(hash, StatusResolved)
}

// Ignore marks a group ignored. Idempotent.
func (a *Aggregator) Ignore(hash string) bool {
	return a.setStatus(hash, StatusIgnored)
}

func (a *Aggregator) setStatus(hash string, s Status) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	g, ok := a.groups[hash]
	if !ok {
		return false
	}
	g.status = s
	return true
}

// Clear drops every group.
func (a *Aggregator) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.groups = make(map[string]*group)
}

// Stats summarizes all groups.
func (a *Aggregator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	st := Stats{
		UniqueErrors: len(a.groups),
		ByStatus:     make(map[Status]int),
		BySeverity:   make(map[Severity]int),
	}
	for _, g := range a.groups {
		st.TotalCount += g.count
		st.ByStatus[g.status]++
		st.BySeverity[g.severity]++
	}
	return st
}
