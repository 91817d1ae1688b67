package session

import (
	"github.com/prometheus/client_golang/prometheus"

	"breakout-trader/go/pkg/shared"
)

// Metrics bundle for one dispatcher.
type Metrics struct {
	ticks   *prometheus.CounterVec
	dropped prometheus.Counter
	rows    prometheus.Counter
	signals *prometheus.CounterVec
	orders  *prometheus.CounterVec
	fills   prometheus.Counter
	holding prometheus.Gauge
}

// NewMetrics registers the dispatcher metrics under the given name
// prefix (one dispatcher per process, so global registration is fine).
func NewMetrics(prefix string) Metrics {
	return Metrics{
		ticks: shared.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "_ticks_total", Help: "Tick events consumed",
		}, []string{"kind"}),
		dropped: shared.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_ticks_dropped_total", Help: "Ticks dropped (out of order or invalid)",
		}),
		rows: shared.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_bars_appended_total", Help: "Chart rows appended",
		}),
		signals: shared.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "_signals_total", Help: "Signals fired",
		}, []string{"side"}),
		orders: shared.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "_orders_total", Help: "Orders issued",
		}, []string{"side", "outcome"}),
		fills: shared.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_fills_total", Help: "Execution confirmations",
		}),
		holding: shared.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "_holding", Help: "1 while a position is held",
		}),
	}
}

// NopMetrics returns unregistered metrics for tests.
func NopMetrics() Metrics {
	return Metrics{
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nop_ticks_total",
		}, []string{"kind"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{Name: "nop_dropped_total"}),
		rows:    prometheus.NewCounter(prometheus.CounterOpts{Name: "nop_rows_total"}),
		signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nop_signals_total",
		}, []string{"side"}),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nop_orders_total",
		}, []string{"side", "outcome"}),
		fills:   prometheus.NewCounter(prometheus.CounterOpts{Name: "nop_fills_total"}),
		holding: prometheus.NewGauge(prometheus.GaugeOpts{Name: "nop_holding"}),
	}
}
