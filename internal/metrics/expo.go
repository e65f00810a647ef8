package metrics

import (
	"fmt"
	"io"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"
)

// WriteExposition renders the current snapshot in Prometheus text
// exposition format, so external scrapers can consume the collector
// without speaking the inspector protocol.
func (c *Collector) WriteExposition(w io.Writer) error {
	snap := c.Snapshot()

	families := []*dto.MetricFamily{
		counterFamily("devlens_requests_total", "Total requests observed.",
			float64(snap.TotalRequests), nil),
		counterFamily("devlens_request_errors_total", "Total error responses observed.",
			float64(snap.TotalErrors), nil),
		latencyFamily(snap.Latency),
		gaugeFamily("devlens_throughput_rps", "Requests in the trailing one-second window.",
			float64(snap.Throughput.RequestsPerSecond), nil),
		gaugeFamily("devlens_heap_inuse_bytes", "Heap bytes in use at the last sample.",
			float64(snap.HeapInUse), nil),
		routeFamily(snap.Routes),
	}

	for _, mf := range families {
		if len(mf.Metric) == 0 {
			continue
		}
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("metrics: encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

func latencyFamily(p Percentiles) *dto.MetricFamily {
	mf := &dto.MetricFamily{
		Name: proto.String("devlens_request_latency_ms"),
		Help: proto.String("Interpolated request latency percentiles in milliseconds."),
		Type: dto.MetricType_GAUGE.Enum(),
	}
	for _, q := range []struct {
		label string
		value float64
	}{
		{"0.5", p.P50}, {"0.9", p.P90}, {"0.95", p.P95}, {"0.99", p.P99},
	} {
		mf.Metric = append(mf.Metric, &dto.Metric{
			Label: []*dto.LabelPair{{
				Name:  proto.String("quantile"),
				Value: proto.String(q.label),
			}},
			Gauge: &dto.Gauge{Value: proto.Float64(q.value)},
		})
	}
	return mf
}

func routeFamily(routes []RouteSummary) *dto.MetricFamily {
	mf := &dto.MetricFamily{
		Name: proto.String("devlens_route_requests_total"),
		Help: proto.String("Requests observed per route."),
		Type: dto.MetricType_COUNTER.Enum(),
	}
	for _, r := range routes {
		mf.Metric = append(mf.Metric, &dto.Metric{
			Label: []*dto.LabelPair{
				{Name: proto.String("method"), Value: proto.String(r.Method)},
				{Name: proto.String("route"), Value: proto.String(r.Route)},
			},
			Counter: &dto.Counter{Value: proto.Float64(float64(r.Count))},
		})
	}
	return mf
}

func counterFamily(name, help string, value float64, labels map[string]string) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   proto.String(name),
		Help:   proto.String(help),
		Type:   dto.MetricType_COUNTER.Enum(),
		Metric: []*dto.Metric{{Label: labelPairs(labels), Counter: &dto.Counter{Value: proto.Float64(value)}}},
	}
}

func gaugeFamily(name, help string, value float64, labels map[string]string) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   proto.String(name),
		Help:   proto.String(help),
		Type:   dto.MetricType_GAUGE.Enum(),
		Metric: []*dto.Metric{{Label: labelPairs(labels), Gauge: &dto.Gauge{Value: proto.Float64(value)}}},
	}
}

func labelPairs(labels map[string]string) []*dto.LabelPair {
	if len(labels) == 0 {
		return nil
	}
	out := make([]*dto.LabelPair, 0, len(labels))
	for k, v := range labels {
		out = append(out, &dto.LabelPair{Name: proto.String(k), Value: proto.String(v)})
	}
	return out
}
