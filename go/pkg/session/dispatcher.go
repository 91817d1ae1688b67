package session

import (
	"context"
	"errors"
	"time"

	"breakout-trader/go/pkg/broker"
	"breakout-trader/go/pkg/chart"
	"breakout-trader/go/pkg/shared"
	"breakout-trader/go/pkg/strategy"
)

// Expected-execution ticks only act inside the closing auction window.
const auctionWindowMin = 10

// Gateway calls triggered by a transition are bounded; a stuck broker
// must not stall the tick stream indefinitely.
const gatewayTimeout = 5 * time.Second

// Recorder receives session facts for persistence or publication.
// All methods are called from the dispatcher goroutine.
type Recorder interface {
	BarClosed(row chart.Row)
	Decision(code string, side broker.Side, price float64, tickTime int)
	Fill(ev shared.TickEvent)
}

// Config fixes a dispatcher to one trading day and instrument class.
type Config struct {
	Date   string // YYYYMMDD
	Class  broker.InstrumentClass
	Window shared.SessionWindow
}

// Dispatcher consumes one instrument group's tick events in arrival
// order and drives the chart, strategy, and position state machine.
// It is single-goroutine by design: a transition reads the row the
// tick just wrote, so tick handling must be atomic end to end.
type Dispatcher struct {
	cfg   Config
	chart *chart.Chart
	strat *strategy.Breakout
	gw    broker.Gateway
	pos   Position
	rec   Recorder // may be nil
	log   shared.Logger
	m     Metrics

	// Halt unsubscribes the feed; set by the runner, called exactly
	// once when the session-end condition is reached.
	Halt func()

	halted bool
}

// New validates that every universe code has chart columns (a missing
// column is a configuration error and must fail at startup, not
// mid-stream) and returns a ready dispatcher.
func New(cfg Config, ch *chart.Chart, strat *strategy.Breakout, gw broker.Gateway,
	initial string, rec Recorder, log shared.Logger, m Metrics) (*Dispatcher, error) {

	for _, code := range ch.Codes() {
		if !ch.HasCode(code) {
			return nil, chart.ErrMissingColumn
		}
	}
	if initial != "" && !ch.HasCode(initial) {
		return nil, chart.ErrMissingColumn
	}
	return &Dispatcher{
		cfg:   cfg,
		chart: ch,
		strat: strat,
		gw:    gw,
		pos:   NewPosition(initial),
		rec:   rec,
		log:   log,
		m:     m,
	}, nil
}

// Position exposes the current state for observability.
func (d *Dispatcher) Position() string { return d.pos.Holding() }

// Halted reports whether the session-end condition was reached.
func (d *Dispatcher) Halted() bool { return d.halted }

// Run processes events until the channel closes, the context is
// cancelled, or the session ends. Events for this group are handled
// strictly in arrival order.
func (d *Dispatcher) Run(ctx context.Context, events <-chan shared.TickEvent) error {
	if d.pos.Flat() {
		d.m.holding.Set(0)
	} else {
		d.m.holding.Set(1)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			d.Handle(ctx, ev)
			if d.halted {
				return nil
			}
		}
	}
}

// Handle routes one event. Exported so tests can drive the dispatcher
// without a channel.
func (d *Dispatcher) Handle(ctx context.Context, ev shared.TickEvent) {
	d.m.ticks.WithLabelValues(ev.Kind.String()).Inc()
	switch ev.Kind {
	case shared.EventCurrent:
		d.onCurrent(ctx, ev)
	case shared.EventExpected:
		d.onExpected(ctx, ev)
	case shared.EventConfirm:
		d.onConfirm(ev)
	}
}

func (d *Dispatcher) onCurrent(ctx context.Context, ev shared.TickEvent) {
	res, err := d.chart.Update(d.cfg.Date, ev.Code, ev.Time, ev.Price)
	if err != nil {
		if errors.Is(err, chart.ErrOutOfOrderTick) {
			d.m.dropped.Inc()
			return
		}
		d.log.Printf("dropping tick %s@%d: %v", ev.Code, ev.Time, err)
		d.m.dropped.Inc()
		return
	}
	if res.Appended {
		d.m.rows.Inc()
		if d.rec != nil && d.chart.Len() >= 2 {
			if closed, ok := d.chart.RowAt(d.chart.Len() - 2); ok {
				d.rec.BarClosed(closed)
			}
		}
	}
	if res.BucketAdvanced() {
		d.evaluate(ctx, ev)
	}
	d.maybeHalt(ev)
}

// onExpected handles indicative auction prices: during the closing
// auction a held position is exited on a sell signal immediately, since
// the market may print no further trades before the auction settles.
// Entries are never taken on indicative prices.
func (d *Dispatcher) onExpected(ctx context.Context, ev shared.TickEvent) {
	if ev.Phase != shared.PhaseClosingAuction {
		return
	}
	if shared.MinuteOfDay(ev.Time) < d.cfg.Window.EndMin-auctionWindowMin {
		return
	}
	if d.pos.Holding() != ev.Code {
		return
	}
	sell, err := d.strat.SellSignal(d.chart, ev.Code, ev.Price, ev.Time)
	if err != nil {
		d.log.Printf("expected-tick sell check %s: %v", ev.Code, err)
		return
	}
	if sell {
		d.exit(ctx, ev)
	}
}

func (d *Dispatcher) onConfirm(ev shared.TickEvent) {
	side := broker.ParseSide(ev.Side)
	status := broker.ParseStatus(d.cfg.Class, ev.Status)
	d.log.Printf("[%s %s] order=%s", side, status, ev.OrderID)
	if status != broker.StatusExecuted {
		return
	}
	d.m.fills.Inc()
	d.log.Printf("[fill] order=%s price=%v qty=%d balance=%v", ev.OrderID, ev.Price, ev.Qty, ev.Balance)
	if d.rec != nil {
		d.rec.Fill(ev)
	}
}

func (d *Dispatcher) evaluate(ctx context.Context, ev shared.TickEvent) {
	switch {
	case d.pos.Flat():
		buy, err := d.strat.BuySignal(d.chart, ev.Code, ev.Price, ev.Time)
		if err != nil {
			d.log.Printf("buy check %s: %v", ev.Code, err)
			return
		}
		if buy {
			d.enter(ctx, ev)
		}
	case d.pos.Holding() == ev.Code:
		sell, err := d.strat.SellSignal(d.chart, ev.Code, ev.Price, ev.Time)
		if err != nil {
			d.log.Printf("sell check %s: %v", ev.Code, err)
			return
		}
		if sell {
			d.exit(ctx, ev)
		}
	}
}

// enter issues a market entry and flips to HOLDING. Order issuance is
// fire and forget: a gateway failure is logged and surfaced through
// metrics but does not roll the transition back.
func (d *Dispatcher) enter(ctx context.Context, ev shared.TickEvent) {
	d.m.signals.WithLabelValues("buy").Inc()
	d.placeOrder(ctx, ev.Code, broker.SideBuy)
	d.pos.Enter(ev.Code)
	d.chart.SetPosition(ev.Code)
	d.m.holding.Set(1)
	if d.rec != nil {
		d.rec.Decision(ev.Code, broker.SideBuy, ev.Price, ev.Time)
	}
	d.log.Printf("enter %s @ %v (%06d)", ev.Code, ev.Price, ev.Time)
}

func (d *Dispatcher) exit(ctx context.Context, ev shared.TickEvent) {
	d.m.signals.WithLabelValues("sell").Inc()
	d.placeOrder(ctx, ev.Code, broker.SideSell)
	d.pos.Exit()
	d.chart.SetPosition("")
	d.m.holding.Set(0)
	if d.rec != nil {
		d.rec.Decision(ev.Code, broker.SideSell, ev.Price, ev.Time)
	}
	d.log.Printf("exit %s @ %v (%06d)", ev.Code, ev.Price, ev.Time)
}

func (d *Dispatcher) placeOrder(ctx context.Context, code string, side broker.Side) {
	ctx, cancel := context.WithTimeout(ctx, gatewayTimeout)
	defer cancel()

	qty, err := d.gw.TradableAmount(ctx, code, side, 0)
	if err != nil {
		d.m.orders.WithLabelValues(side.String(), "error").Inc()
		d.log.Printf("tradable amount %s %s: %v", side, code, err)
		return
	}
	ack, err := d.gw.PlaceOrder(ctx, code, side, qty, 0)
	if err != nil {
		d.m.orders.WithLabelValues(side.String(), "error").Inc()
		d.log.Printf("order %s %s x%d: %v", side, code, qty, err)
		return
	}
	d.m.orders.WithLabelValues(side.String(), "ok").Inc()
	d.log.Printf("order %s %s x%d accepted id=%s", side, code, qty, ack.OrderID)
}

// maybeHalt checks the terminal condition: tick time at or past session
// end and every instrument's cell in the current row populated. The
// halt fires once; an open position is deliberately left for the
// auction-phase exit path.
func (d *Dispatcher) maybeHalt(ev shared.TickEvent) {
	if d.halted {
		return
	}
	if ev.Time < d.cfg.Window.EndHHMMSS() {
		return
	}
	if !d.chart.LastRowComplete() {
		return
	}
	d.halted = true
	d.log.Printf("session end reached at %06d, halting", ev.Time)
	if d.Halt != nil {
		d.Halt()
	}
}
