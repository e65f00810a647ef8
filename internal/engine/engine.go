// Package engine wires the capture, error, metrics, and transport
// components into one embeddable observability engine and exposes
// the hooks a host web framework calls from its request path.
package engine

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/devlens/devlens/internal/capture"
	"github.com/devlens/devlens/internal/config"
	"github.com/devlens/devlens/internal/errtrack"
	"github.com/devlens/devlens/internal/event"
	"github.com/devlens/devlens/internal/metrics"
	"github.com/devlens/devlens/internal/redact"
	"github.com/devlens/devlens/internal/store"
	"github.com/devlens/devlens/internal/transport"
)

// Version is reported to inspector clients in the handshake.
const Version = "0.3.0"

// Engine owns every component and their background workers.
type Engine struct {
	cfg *config.Config

	bus      *event.Bus
	store    store.Store
	recorder *capture.Recorder
	flusher  *capture.Flusher
	replayer *capture.Replayer
	errors   *errtrack.Aggregator
	metrics  *metrics.Collector
	hub      *transport.Hub

	mu       sync.Mutex
	cancel   context.CancelFunc
	listener net.Listener
	started  bool
}

// New builds an engine from cfg. A configured store path selects the
// SQLite backend; otherwise captures live in bounded memory.
func New(cfg *config.Config, configHash string) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	bus := event.NewBus()

	var st store.Store
	var err error
	if cfg.Capture.StorePath != "" {
		st, err = store.OpenSQLite(cfg.Capture.StorePath, cfg.Capture.MaxRequests)
		if err != nil {
			return nil, fmt.Errorf("engine: open capture store: %w", err)
		}
	} else {
		opts := []store.MemoryOption{}
		if cfg.Capture.TTL > 0 {
			opts = append(opts, store.WithTTL(cfg.Capture.TTL.Std()))
		}
		st = store.NewMemory(cfg.Capture.MaxRequests, opts...)
	}

	san := redact.NewSanitizer(cfg.Capture.ExtraSecrets...)
	rec := capture.NewRecorder(st, san, bus)
	flusher := capture.NewFlusher(rec, cfg.Capture.FlushPerSec, time.Minute)

	repOpts := []capture.ReplayerOption{}
	if cfg.Capture.ReplayTarget != "" {
		repOpts = append(repOpts, capture.WithTarget(cfg.Capture.ReplayTarget))
	}
	if cfg.Capture.ReplayTimeout > 0 {
		repOpts = append(repOpts, capture.WithTimeout(cfg.Capture.ReplayTimeout.Std()))
	}
	rep := capture.NewReplayer(rec, repOpts...)

	agg := errtrack.New(bus, errtrack.Config{
		MaxGroups:       cfg.Errors.MaxGroups,
		OccurrenceCap:   cfg.Errors.OccurrenceCap,
		SpikeWindow:     cfg.Errors.SpikeWindow.Std(),
		SpikeMultiplier: cfg.Errors.SpikeMultiplier,
		CriticalTypes:   cfg.Errors.CriticalTypes,
	})

	col := metrics.NewCollector(bus, metrics.Config{
		LatencyCap:           cfg.Metrics.LatencyCap,
		SnapshotEvery:        cfg.Metrics.SnapshotEvery.Std(),
		MemoryEvery:          cfg.Metrics.MemoryEvery.Std(),
		SlowRequestThreshold: cfg.Metrics.SlowRequestThreshold.Std(),
		RouteErrorRate:       cfg.Metrics.RouteErrorRate,
		HeapUsageRatio:       cfg.Metrics.HeapUsageRatio,
	})

	disp := transport.NewDispatcher(rec, rep, agg, col)
	hub := transport.NewHub(bus, disp, transport.Config{
		RateLimit:      cfg.Transport.RateLimit,
		QueueCap:       cfg.Transport.QueueCap,
		HeartbeatEvery: cfg.Transport.HeartbeatEvery.Std(),
		ServerVersion:  Version,
		ConfigHash:     configHash,
		Features:       []string{"capture", "replay", "errors", "metrics", "profiling"},
	})

	return &Engine{
		cfg:      cfg,
		bus:      bus,
		store:    st,
		recorder: rec,
		flusher:  flusher,
		replayer: rep,
		errors:   agg,
		metrics:  col,
		hub:      hub,
	}, nil
}

// Start launches the background workers: persistence flush, metrics
// sampling, heartbeat sweep, and (when configured) the TCP listener
// for inspector clients. Idempotent.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	go e.flusher.Run(ctx)
	go e.metrics.Run(ctx)
	go e.hub.Run(ctx)

	if addr := e.cfg.Transport.Listen; addr != "" {
		l, err := net.Listen("tcp", addr)
		if err != nil {
			cancel()
			return fmt.Errorf("engine: listen %s: %w", addr, err)
		}
		e.listener = l
		go func() {
			if err := e.hub.Serve(l); err != nil {
				fmt.Fprintf(os.Stderr, "inspector listener stopped: %v\n", err)
			}
		}()
	}

	e.started = true
	return nil
}

// Stop cancels the workers, closes the listener and every session,
// drains pending captures to the store, and closes the store.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return nil
	}
	e.started = false

	if e.listener != nil {
		_ = e.listener.Close()
		e.listener = nil
	}
	e.cancel()
	e.hub.Shutdown()
	<-e.flusher.Done()
	return e.store.Close()
}

// ApplyConfig applies the runtime-tunable subset of a freshly loaded
// config: spike detection thresholds. Structural settings (store
// backend, listen address, capacities) need a restart.
func (e *Engine) ApplyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	e.errors.SetSpikeTuning(cfg.Errors.SpikeWindow.Std(), cfg.Errors.SpikeMultiplier)
}

// Addr reports the inspector listener address, empty when not
// listening.
func (e *Engine) Addr() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listener == nil {
		return ""
	}
	return e.listener.Addr().String()
}

// Hub exposes the session hub, e.g. for hosts that accept inspector
// connections on their own listener.
func (e *Engine) Hub() *transport.Hub { return e.hub }

// Recorder exposes the capture engine.
func (e *Engine) Recorder() *capture.Recorder { return e.recorder }

// Replayer exposes the replay engine.
func (e *Engine) Replayer() *capture.Replayer { return e.replayer }

// Errors exposes the error aggregator.
func (e *Engine) Errors() *errtrack.Aggregator { return e.errors }

// Metrics exposes the metrics collector.
func (e *Engine) Metrics() *metrics.Collector { return e.metrics }

// Bus exposes the internal event bus, mainly for tests and embedders
// that want raw signals.
func (e *Engine) Bus() *event.Bus { return e.bus }
