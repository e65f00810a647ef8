package capture

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/devlens/devlens/internal/store"
)

// sweeper is implemented by backends with lazy expiry (store.Memory).
type sweeper interface {
	Sweep()
}

// Flusher drains the recorder's persistence queue in the background so
// storage I/O never sits on the host request path. Writes are paced by
// a token bucket: a burst of traffic becomes a steady trickle of
// storage writes instead of an I/O spike.
type Flusher struct {
	rec     *Recorder
	limiter *rate.Limiter
	sweep   time.Duration
	done    chan struct{}
}

// NewFlusher creates a flush worker for rec. writesPerSec bounds the
// storage write rate (0 disables pacing); sweepEvery is how often TTL
// expiry runs on backends that support it.
func NewFlusher(rec *Recorder, writesPerSec float64, sweepEvery time.Duration) *Flusher {
	var limiter *rate.Limiter
	if writesPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(writesPerSec), int(writesPerSec))
	}
	if sweepEvery <= 0 {
		sweepEvery = time.Minute
	}
	return &Flusher{
		rec:     rec,
		limiter: limiter,
		sweep:   sweepEvery,
		done:    make(chan struct{}),
	}
}

// Run drains the queue until ctx is cancelled, then performs a final
// non-blocking drain so completed captures are not lost on shutdown.
func (f *Flusher) Run(ctx context.Context) {
	defer close(f.done)

	ticker := time.NewTicker(f.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.drainRemaining()
			return

		case raw := <-f.rec.flushQ:
			if f.limiter != nil {
				if err := f.limiter.Wait(ctx); err != nil {
					f.write(raw)
					f.drainRemaining()
					return
				}
			}
			f.write(raw)

		case <-ticker.C:
			if s, ok := f.rec.store.(sweeper); ok {
				s.Sweep()
			}
		}
	}
}

// Done is closed once Run has returned.
func (f *Flusher) Done() <-chan struct{} {
	return f.done
}

func (f *Flusher) drainRemaining() {
	for {
		select {
		case raw := <-f.rec.flushQ:
			f.write(raw)
		default:
			return
		}
	}
}

func (f *Flusher) write(raw store.Record) {
	if err := f.rec.store.Put(raw); err != nil {
		// The in-memory view stays authoritative; a failed write is
		// logged and the host path is unaffected.
		fmt.Fprintf(os.Stderr, "capture: flush %s: %v\n", raw.ID, err)
	}
}
