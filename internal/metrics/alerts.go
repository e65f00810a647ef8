package metrics

import (
	"fmt"
	"time"

	"github.com/devlens/devlens/internal/event"
)

// Alert is an advisory threshold crossing. It is published on the
// event bus and never blocks or fails the recording path.
type Alert struct {
	Kind      string    `json:"kind"` // slow-request | route-error-rate | heap-usage
	Route     string    `json:"route,omitempty"`
	Method    string    `json:"method,omitempty"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	Message   string    `json:"message"`
	At        time.Time `json:"at"`
}

func (c *Collector) checkRequestAlerts(route, method string, latency time.Duration, count, errors int64, now time.Time) {
	if latency > c.cfg.SlowRequestThreshold {
		c.bus.Publish(event.MetricsAlert, Alert{
			Kind:      "slow-request",
			Route:     route,
			Method:    method,
			Value:     float64(latency.Milliseconds()),
			Threshold: float64(c.cfg.SlowRequestThreshold.Milliseconds()),
			Message: fmt.Sprintf("%s %s took %dms (threshold %dms)",
				method, route, latency.Milliseconds(), c.cfg.SlowRequestThreshold.Milliseconds()),
			At: now,
		})
	}

	if count >= int64(c.cfg.RouteMinSamples) {
		rate := float64(errors) / float64(count)
		if rate > c.cfg.RouteErrorRate {
			c.bus.Publish(event.MetricsAlert, Alert{
				Kind:      "route-error-rate",
				Route:     route,
				Method:    method,
				Value:     rate,
				Threshold: c.cfg.RouteErrorRate,
				Message: fmt.Sprintf("%s %s error rate %.0f%% over %d requests",
					method, route, rate*100, count),
				At: now,
			})
		}
	}
}

func (c *Collector) checkMemoryAlert(s MemorySample) {
	if s.HeapSys == 0 {
		return
	}
	ratio := float64(s.HeapInUse) / float64(s.HeapSys)
	if ratio > c.cfg.HeapUsageRatio {
		c.bus.Publish(event.MetricsAlert, Alert{
			Kind:      "heap-usage",
			Value:     ratio,
			Threshold: c.cfg.HeapUsageRatio,
			Message:   fmt.Sprintf("heap usage at %.0f%% of reserved memory", ratio*100),
			At:        s.At,
		})
	}
}
