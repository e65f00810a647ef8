package metrics

import (
	"sort"
	"time"
)

// Percentiles holds interpolated latency percentiles in milliseconds.
type Percentiles struct {
	P50 float64 `json:"p50"`
	P90 float64 `json:"p90"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
}

// Throughput is the request/error rate over the trailing one-second
// window.
type Throughput struct {
	RequestsPerSecond int `json:"requestsPerSecond"`
	ErrorsPerSecond   int `json:"errorsPerSecond"`
}

// MemoryTrend classifies recent heap growth.
type MemoryTrend string

const (
	MemoryGrowing    MemoryTrend = "growing"
	MemoryStable     MemoryTrend = "stable"
	MemoryDecreasing MemoryTrend = "decreasing"
)

// RouteSummary is the per-(method,route) breakdown entry.
type RouteSummary struct {
	Method    string      `json:"method"`
	Route     string      `json:"route"`
	Count     int64       `json:"count"`
	Errors    int64       `json:"errors"`
	ErrorRate float64     `json:"errorRate"`
	Latency   Percentiles `json:"latency"`
}

// Snapshot is a point-in-time view of the collector.
type Snapshot struct {
	At            time.Time      `json:"at"`
	TotalRequests int64          `json:"totalRequests"`
	TotalErrors   int64          `json:"totalErrors"`
	Latency       Percentiles    `json:"latency"`
	Throughput    Throughput     `json:"throughput"`
	HeapInUse     uint64         `json:"heapInUse"`
	HeapSys       uint64         `json:"heapSys"`
	MemTrend      MemoryTrend    `json:"memTrend"`
	Routes        []RouteSummary `json:"routes"`
}

// memTrendSample is how many samples form each trend window.
const memTrendSample = 10

// memTrendBand is the relative change treated as stable (±5%).
const memTrendBand = 0.05

// LatencyPercentiles computes percentiles over a sorted copy of the
// current global latency ring. The live ring is never mutated or held
// during the sort.
func (c *Collector) LatencyPercentiles() Percentiles {
	samples := c.latencies.Items()
	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = float64(s.Value.Microseconds()) / 1000.0
	}
	return computePercentiles(values)
}

// computePercentiles sorts values and interpolates the fixed ranks.
func computePercentiles(values []float64) Percentiles {
	if len(values) == 0 {
		return Percentiles{}
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}

	return Percentiles{
		P50: percentile(sorted, 50),
		P90: percentile(sorted, 90),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
	}
}

// percentile interpolates linearly between the adjacent ranks of a
// sorted sample set.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lower := int(rank)
	if lower >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := rank - float64(lower)
	return sorted[lower] + frac*(sorted[lower+1]-sorted[lower])
}

// CurrentThroughput scans the buffered timestamps for the trailing
// one-second window.
func (c *Collector) CurrentThroughput() Throughput {
	cutoff := c.now().Add(-time.Second)
	return Throughput{
		RequestsPerSecond: countAfter(c.requestTimes.Items(), cutoff),
		ErrorsPerSecond:   countAfter(c.errorTimes.Items(), cutoff),
	}
}

func countAfter(times []time.Time, cutoff time.Time) int {
	// Timestamps are chronological; walk backwards and stop at the
	// first one outside the window.
	n := 0
	for i := len(times) - 1; i >= 0; i-- {
		if !times[i].After(cutoff) {
			break
		}
		n++
	}
	return n
}

// CurrentMemoryTrend compares the average of the most recent ten heap
// samples against the prior ten.
func (c *Collector) CurrentMemoryTrend() MemoryTrend {
	samples := c.memory.Items()
	if len(samples) < 2*memTrendSample {
		return MemoryStable
	}

	recent := samples[len(samples)-memTrendSample:]
	previous := samples[len(samples)-2*memTrendSample : len(samples)-memTrendSample]

	prevAvg := avgHeap(previous)
	if prevAvg == 0 {
		return MemoryStable
	}
	change := (avgHeap(recent) - prevAvg) / prevAvg

	switch {
	case change > memTrendBand:
		return MemoryGrowing
	case change < -memTrendBand:
		return MemoryDecreasing
	default:
		return MemoryStable
	}
}

func avgHeap(samples []MemorySample) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s.HeapInUse)
	}
	return sum / float64(len(samples))
}

// RouteBreakdown returns per-route summaries sorted by request count,
// busiest first.
func (c *Collector) RouteBreakdown() []RouteSummary {
	c.mu.RLock()
	out := make([]RouteSummary, 0, len(c.routes))
	for _, rs := range c.routes {
		lat := rs.latencies.Items()
		values := make([]float64, len(lat))
		for i, d := range lat {
			values[i] = float64(d.Microseconds()) / 1000.0
		}
		sum := RouteSummary{
			Method:  rs.Method,
			Route:   rs.Route,
			Count:   rs.Count,
			Errors:  rs.Errors,
			Latency: computePercentiles(values),
		}
		if rs.Count > 0 {
			sum.ErrorRate = float64(rs.Errors) / float64(rs.Count)
		}
		out = append(out, sum)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

// Snapshot assembles the full point-in-time view.
func (c *Collector) Snapshot() Snapshot {
	snap := Snapshot{
		At:            c.now(),
		TotalRequests: c.requestTimes.Total(),
		TotalErrors:   c.errorTimes.Total(),
		Latency:       c.LatencyPercentiles(),
		Throughput:    c.CurrentThroughput(),
		MemTrend:      c.CurrentMemoryTrend(),
		Routes:        c.RouteBreakdown(),
	}
	if mem := c.memory.Last(1); len(mem) == 1 {
		snap.HeapInUse = mem[0].HeapInUse
		snap.HeapSys = mem[0].HeapSys
	}
	return snap
}
