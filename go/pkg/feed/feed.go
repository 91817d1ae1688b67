package feed

import (
	"context"
	"encoding/json"

	"github.com/prometheus/client_golang/prometheus"

	"breakout-trader/go/pkg/shared"
)

// Source streams tick events into out. Start wires the stream and
// returns; the source closes out when the stream ends and stops when
// ctx is cancelled.
type Source interface {
	Start(ctx context.Context, out chan<- shared.TickEvent) error
}

// Metrics bundle shared by the tick sources.
type Metrics struct {
	events  *prometheus.CounterVec
	decoded prometheus.Counter
	dropped prometheus.Counter
}

func NewMetrics(prefix string) Metrics {
	return Metrics{
		events: shared.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "_feed_events_total", Help: "Feed lifecycle events",
		}, []string{"event"}),
		decoded: shared.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_feed_ticks_total", Help: "Tick events emitted",
		}),
		dropped: shared.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_feed_dropped_total", Help: "Tick events dropped (full queue or bad payload)",
		}),
	}
}

// NopMetrics returns unregistered metrics for tests.
func NopMetrics() Metrics {
	return Metrics{
		events:  prometheus.NewCounterVec(prometheus.CounterOpts{Name: "nop_feed_events_total"}, []string{"event"}),
		decoded: prometheus.NewCounter(prometheus.CounterOpts{Name: "nop_feed_ticks_total"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{Name: "nop_feed_dropped_total"}),
	}
}

func decodeEvent(raw []byte) (shared.TickEvent, error) {
	var ev shared.TickEvent
	err := json.Unmarshal(raw, &ev)
	return ev, err
}
