package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/devlens/devlens/internal/event"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestCollector(cfg Config) (*Collector, *testClock, *event.Bus) {
	clock := &testClock{now: time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)}
	bus := event.NewBus()
	return NewCollector(bus, cfg, WithClock(clock.Now)), clock, bus
}

func TestPercentileInterpolation(t *testing.T) {
	c, _, _ := newTestCollector(Config{})

	// 10, 20, ..., 100 milliseconds.
	for i := 1; i <= 10; i++ {
		c.RecordRequestEnd("/x", "GET", time.Duration(i*10)*time.Millisecond, false)
	}

	p := c.LatencyPercentiles()
	if p.P50 != 55 {
		t.Fatalf("P50 of [10..100] must interpolate to 55, got %v", p.P50)
	}
	if p.P90 != 91 {
		t.Fatalf("P90 of [10..100] must interpolate to 91, got %v", p.P90)
	}
	if p.Min != 10 || p.Max != 100 {
		t.Fatalf("min/max wrong: %v/%v", p.Min, p.Max)
	}
	if p.Avg != 55 {
		t.Fatalf("avg wrong: %v", p.Avg)
	}
}

func TestPercentilesEmptyAndSingle(t *testing.T) {
	c, _, _ := newTestCollector(Config{})

	if p := c.LatencyPercentiles(); p != (Percentiles{}) {
		t.Fatalf("empty collector must report zero percentiles: %+v", p)
	}

	c.RecordRequestEnd("/x", "GET", 42*time.Millisecond, false)
	p := c.LatencyPercentiles()
	if p.P50 != 42 || p.P99 != 42 {
		t.Fatalf("single sample must dominate every rank: %+v", p)
	}
}

func TestThroughputWindow(t *testing.T) {
	c, clock, _ := newTestCollector(Config{})

	// Three requests outside the window, then five inside it.
	for i := 0; i < 3; i++ {
		c.RecordRequestEnd("/x", "GET", time.Millisecond, false)
	}
	clock.Advance(2 * time.Second)
	for i := 0; i < 5; i++ {
		clock.Advance(100 * time.Millisecond)
		c.RecordRequestEnd("/x", "GET", time.Millisecond, i == 0)
	}

	tp := c.CurrentThroughput()
	if tp.RequestsPerSecond != 5 {
		t.Fatalf("expected 5 requests in window, got %d", tp.RequestsPerSecond)
	}
	if tp.ErrorsPerSecond != 1 {
		t.Fatalf("expected 1 error in window, got %d", tp.ErrorsPerSecond)
	}
}

func TestMemoryTrend(t *testing.T) {
	heap := uint64(100 << 20)
	c, clock, _ := newTestCollector(Config{})
	c.readMem = func() MemorySample {
		return MemorySample{HeapInUse: heap, HeapSys: 512 << 20, At: clock.Now()}
	}

	if c.CurrentMemoryTrend() != MemoryStable {
		t.Fatal("no history must read as stable")
	}

	for i := 0; i < 10; i++ {
		c.SampleMemory()
		clock.Advance(10 * time.Second)
	}
	// Second window 20% above the first: growing.
	heap = uint64(120 << 20)
	for i := 0; i < 10; i++ {
		c.SampleMemory()
		clock.Advance(10 * time.Second)
	}
	if got := c.CurrentMemoryTrend(); got != MemoryGrowing {
		t.Fatalf("expected growing, got %s", got)
	}

	// Next window back down well below the band: decreasing.
	heap = uint64(90 << 20)
	for i := 0; i < 10; i++ {
		c.SampleMemory()
		clock.Advance(10 * time.Second)
	}
	if got := c.CurrentMemoryTrend(); got != MemoryDecreasing {
		t.Fatalf("expected decreasing, got %s", got)
	}
}

func TestMemoryTrendBandIsStable(t *testing.T) {
	heap := uint64(100 << 20)
	c, clock, _ := newTestCollector(Config{})
	c.readMem = func() MemorySample {
		return MemorySample{HeapInUse: heap, HeapSys: 512 << 20, At: clock.Now()}
	}

	for i := 0; i < 10; i++ {
		c.SampleMemory()
	}
	// +3% stays inside the ±5% band.
	heap = uint64(float64(heap) * 1.03)
	for i := 0; i < 10; i++ {
		c.SampleMemory()
	}
	if got := c.CurrentMemoryTrend(); got != MemoryStable {
		t.Fatalf("3%% growth must read as stable, got %s", got)
	}
}

func TestSlowRequestAlert(t *testing.T) {
	c, _, bus := newTestCollector(Config{SlowRequestThreshold: 500 * time.Millisecond})

	var alerts []Alert
	bus.Subscribe(func(e event.Event) {
		alerts = append(alerts, e.Payload.(Alert))
	}, event.MetricsAlert)

	c.RecordRequestEnd("/fast", "GET", 100*time.Millisecond, false)
	c.RecordRequestEnd("/slow", "GET", 900*time.Millisecond, false)

	if len(alerts) != 1 {
		t.Fatalf("expected one alert, got %d", len(alerts))
	}
	if alerts[0].Kind != "slow-request" || alerts[0].Route != "/slow" {
		t.Fatalf("unexpected alert: %+v", alerts[0])
	}
}

func TestRouteErrorRateAlert(t *testing.T) {
	c, _, bus := newTestCollector(Config{RouteMinSamples: 10, RouteErrorRate: 0.25})

	var alerts []Alert
	bus.Subscribe(func(e event.Event) {
		alerts = append(alerts, e.Payload.(Alert))
	}, event.MetricsAlert)

	// Nine requests with failures: below the sample floor, no alert yet.
	for i := 0; i < 9; i++ {
		c.RecordRequestEnd("/orders", "POST", time.Millisecond, i%2 == 0)
	}
	if len(alerts) != 0 {
		t.Fatalf("alert before sample floor: %+v", alerts)
	}

	// Tenth request crosses the floor with rate above threshold.
	c.RecordRequestEnd("/orders", "POST", time.Millisecond, true)
	if len(alerts) == 0 {
		t.Fatal("expected a route-error-rate alert")
	}
	if alerts[0].Kind != "route-error-rate" {
		t.Fatalf("unexpected alert kind: %s", alerts[0].Kind)
	}
}

func TestHeapUsageAlert(t *testing.T) {
	c, clock, bus := newTestCollector(Config{HeapUsageRatio: 0.8})
	c.readMem = func() MemorySample {
		return MemorySample{HeapInUse: 900 << 20, HeapSys: 1024 << 20, At: clock.Now()}
	}

	var alerts []Alert
	bus.Subscribe(func(e event.Event) {
		alerts = append(alerts, e.Payload.(Alert))
	}, event.MetricsAlert)

	c.SampleMemory()
	if len(alerts) != 1 || alerts[0].Kind != "heap-usage" {
		t.Fatalf("expected one heap-usage alert, got %+v", alerts)
	}
}

func TestRouteBreakdownOrdering(t *testing.T) {
	c, _, _ := newTestCollector(Config{})

	for i := 0; i < 5; i++ {
		c.RecordRequestEnd("/busy", "GET", 10*time.Millisecond, false)
	}
	c.RecordRequestEnd("/quiet", "GET", 10*time.Millisecond, true)
	c.RecordRequestEnd("/busy", "POST", 10*time.Millisecond, false)

	routes := c.RouteBreakdown()
	if len(routes) != 3 {
		t.Fatalf("expected 3 route entries, got %d", len(routes))
	}
	if routes[0].Route != "/busy" || routes[0].Method != "GET" || routes[0].Count != 5 {
		t.Fatalf("busiest route must sort first: %+v", routes[0])
	}
	for _, r := range routes {
		if r.Route == "/quiet" && r.ErrorRate != 1 {
			t.Fatalf("expected error rate 1 for /quiet, got %v", r.ErrorRate)
		}
	}
}

func TestSnapshotTotalsSurviveRingWrap(t *testing.T) {
	c, _, _ := newTestCollector(Config{LatencyCap: 8, TimestampCap: 8})

	for i := 0; i < 50; i++ {
		c.RecordRequestEnd("/x", "GET", time.Millisecond, i%5 == 0)
	}

	snap := c.Snapshot()
	if snap.TotalRequests != 50 {
		t.Fatalf("totals must count past evicted samples: %d", snap.TotalRequests)
	}
	if snap.TotalErrors != 10 {
		t.Fatalf("expected 10 total errors, got %d", snap.TotalErrors)
	}
}

func TestWriteExposition(t *testing.T) {
	c, _, _ := newTestCollector(Config{})

	c.RecordRequestEnd("/users", "GET", 25*time.Millisecond, false)
	c.RecordRequestEnd("/users", "GET", 75*time.Millisecond, true)
	c.SampleMemory()

	var sb strings.Builder
	if err := c.WriteExposition(&sb); err != nil {
		t.Fatalf("exposition failed: %v", err)
	}
	out := sb.String()

	for _, want := range []string{
		"# TYPE devlens_requests_total counter",
		"devlens_requests_total 2",
		"devlens_request_errors_total 1",
		`devlens_request_latency_ms{quantile="0.5"} 50`,
		`devlens_route_requests_total{method="GET",route="/users"} 2`,
		"devlens_heap_inuse_bytes",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("exposition missing %q\n%s", want, out)
		}
	}
}
