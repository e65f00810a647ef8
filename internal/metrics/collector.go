// Package metrics is the low-overhead telemetry collector: latency
// percentiles, throughput, memory trend, and per-route breakdowns,
// all backed by fixed-capacity ring buffers.
package metrics

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/devlens/devlens/internal/event"
	"github.com/devlens/devlens/internal/ring"
)

// Config holds the collector's capacities and alert thresholds.
// Zero values take defaults.
type Config struct {
	LatencyCap   int // global latency ring
	TimestampCap int // request/error timestamp rings
	MemoryCap    int // memory sample ring
	SnapshotCap  int // historical snapshots; default covers 24h at 5m
	PerRouteCap  int // latency samples kept per (method,route)

	SnapshotEvery time.Duration
	MemoryEvery   time.Duration

	// Alert thresholds. Alerts are advisory and never block callers.
	SlowRequestThreshold time.Duration
	RouteErrorRate       float64 // 0..1
	RouteMinSamples      int
	HeapUsageRatio       float64 // heap-in-use over heap-from-OS
}

const (
	defaultLatencyCap   = 1000
	defaultTimestampCap = 5000
	defaultMemoryCap    = 60
	defaultSnapshotCap  = 288 // 24h at 5-minute granularity
	defaultPerRouteCap  = 100

	defaultSnapshotEvery = 5 * time.Minute
	defaultMemoryEvery   = 10 * time.Second

	defaultSlowRequest     = 2 * time.Second
	defaultRouteErrorRate  = 0.25
	defaultRouteMinSamples = 20
	defaultHeapUsageRatio  = 0.9
)

// LatencySample is one request latency observation.
type LatencySample struct {
	Value time.Duration
	At    time.Time
}

// MemorySample is one heap observation.
type MemorySample struct {
	HeapInUse uint64
	HeapSys   uint64
	At        time.Time
}

// routeStats accumulates per-(method,route) telemetry.
type routeStats struct {
	Method    string
	Route     string
	Count     int64
	Errors    int64
	latencies *ring.Buffer[time.Duration]
}

// Collector ingests request-end events. RecordRequestEnd is O(1)
// amortized and safe to call from the host's hot path.
type Collector struct {
	cfg Config
	bus *event.Bus

	latencies    *ring.Buffer[LatencySample]
	requestTimes *ring.Buffer[time.Time]
	errorTimes   *ring.Buffer[time.Time]
	memory       *ring.Buffer[MemorySample]
	snapshots    *ring.Buffer[Snapshot]

	mu     sync.RWMutex
	routes map[string]*routeStats

	startedAt time.Time
	now       func() time.Time
	readMem   func() MemorySample
}

// Option configures a Collector.
type Option func(*Collector)

// WithClock overrides the collector's time source. Tests only.
func WithClock(now func() time.Time) Option {
	return func(c *Collector) { c.now = now }
}

// WithMemReader overrides heap sampling. Tests only.
func WithMemReader(read func() MemorySample) Option {
	return func(c *Collector) { c.readMem = read }
}

// NewCollector creates a Collector publishing alerts and snapshots
// on bus.
func NewCollector(bus *event.Bus, cfg Config, opts ...Option) *Collector {
	if cfg.LatencyCap <= 0 {
		cfg.LatencyCap = defaultLatencyCap
	}
	if cfg.TimestampCap <= 0 {
		cfg.TimestampCap = defaultTimestampCap
	}
	if cfg.MemoryCap <= 0 {
		cfg.MemoryCap = defaultMemoryCap
	}
	if cfg.SnapshotCap <= 0 {
		cfg.SnapshotCap = defaultSnapshotCap
	}
	if cfg.PerRouteCap <= 0 {
		cfg.PerRouteCap = defaultPerRouteCap
	}
	if cfg.SnapshotEvery <= 0 {
		cfg.SnapshotEvery = defaultSnapshotEvery
	}
	if cfg.MemoryEvery <= 0 {
		cfg.MemoryEvery = defaultMemoryEvery
	}
	if cfg.SlowRequestThreshold <= 0 {
		cfg.SlowRequestThreshold = defaultSlowRequest
	}
	if cfg.RouteErrorRate <= 0 {
		cfg.RouteErrorRate = defaultRouteErrorRate
	}
	if cfg.RouteMinSamples <= 0 {
		cfg.RouteMinSamples = defaultRouteMinSamples
	}
	if cfg.HeapUsageRatio <= 0 {
		cfg.HeapUsageRatio = defaultHeapUsageRatio
	}

	c := &Collector{
		cfg:          cfg,
		bus:          bus,
		latencies:    ring.New[LatencySample](cfg.LatencyCap),
		requestTimes: ring.New[time.Time](cfg.TimestampCap),
		errorTimes:   ring.New[time.Time](cfg.TimestampCap),
		memory:       ring.New[MemorySample](cfg.MemoryCap),
		snapshots:    ring.New[Snapshot](cfg.SnapshotCap),
		routes:       make(map[string]*routeStats),
		now:          time.Now,
		readMem:      readRuntimeMem,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.startedAt = c.now()
	return c
}

func readRuntimeMem() MemorySample {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return MemorySample{HeapInUse: ms.HeapInuse, HeapSys: ms.HeapSys, At: time.Now()}
}

// RecordRequestEnd ingests one completed request. Pushes into the
// global rings and the per-(method,route) list, then evaluates the
// advisory alert thresholds.
func (c *Collector) RecordRequestEnd(route, method string, latency time.Duration, isError bool) {
	now := c.now()

	c.latencies.Push(LatencySample{Value: latency, At: now})
	c.requestTimes.Push(now)
	if isError {
		c.errorTimes.Push(now)
	}

	key := method + " " + route
	c.mu.Lock()
	rs, ok := c.routes[key]
	if !ok {
		rs = &routeStats{
			Method:    method,
			Route:     route,
			latencies: ring.New[time.Duration](c.cfg.PerRouteCap),
		}
		c.routes[key] = rs
	}
	rs.Count++
	if isError {
		rs.Errors++
	}
	rs.latencies.Push(latency)
	count, errors := rs.Count, rs.Errors
	c.mu.Unlock()

	c.checkRequestAlerts(route, method, latency, count, errors, now)
}

// SampleMemory takes one heap sample and evaluates the heap alert.
func (c *Collector) SampleMemory() {
	s := c.readMem()
	if s.At.IsZero() {
		s.At = c.now()
	}
	c.memory.Push(s)
	c.checkMemoryAlert(s)
}

// Run drives periodic memory sampling and historical snapshots until
// ctx is cancelled. The tickers are owned here and never leak.
func (c *Collector) Run(ctx context.Context) {
	memTicker := time.NewTicker(c.cfg.MemoryEvery)
	defer memTicker.Stop()
	snapTicker := time.NewTicker(c.cfg.SnapshotEvery)
	defer snapTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-memTicker.C:
			c.SampleMemory()
		case <-snapTicker.C:
			c.CaptureSnapshot()
		}
	}
}

// CaptureSnapshot stores one historical snapshot and announces it on
// the bus.
func (c *Collector) CaptureSnapshot() Snapshot {
	snap := c.Snapshot()
	c.snapshots.Push(snap)
	c.bus.Publish(event.MetricsSnapshot, snap)
	return snap
}

// History returns the stored periodic snapshots, oldest first.
func (c *Collector) History() []Snapshot {
	return c.snapshots.Items()
}
