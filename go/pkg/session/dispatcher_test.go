package session

import (
	"context"
	"errors"
	"testing"

	"breakout-trader/go/pkg/broker"
	"breakout-trader/go/pkg/chart"
	"breakout-trader/go/pkg/shared"
	"breakout-trader/go/pkg/strategy"
)

type orderCall struct {
	code string
	side broker.Side
	qty  int
}

type fakeGateway struct {
	qty      int
	orderErr error
	orders   []orderCall
}

func (f *fakeGateway) BootstrapBars(context.Context, string, int) ([]chart.Bar, error) {
	return nil, nil
}

func (f *fakeGateway) CurrentPosition(context.Context, map[string]string) (string, error) {
	return "", nil
}

func (f *fakeGateway) TradableAmount(context.Context, string, broker.Side, float64) (int, error) {
	return f.qty, nil
}

func (f *fakeGateway) PlaceOrder(_ context.Context, code string, side broker.Side, qty int, _ float64) (broker.OrderAck, error) {
	f.orders = append(f.orders, orderCall{code: code, side: side, qty: qty})
	if f.orderErr != nil {
		return broker.OrderAck{}, f.orderErr
	}
	return broker.OrderAck{OrderID: "1"}, nil
}

func (f *fakeGateway) SessionWindow(context.Context, broker.InstrumentClass) (shared.SessionWindow, error) {
	return shared.SessionWindow{}, nil
}

type recorded struct {
	barsClosed int
	decisions  []orderCall
	fills      int
}

func (r *recorded) BarClosed(chart.Row) { r.barsClosed++ }

func (r *recorded) Decision(code string, side broker.Side, price float64, tickTime int) {
	r.decisions = append(r.decisions, orderCall{code: code, side: side})
}

func (r *recorded) Fill(shared.TickEvent) { r.fills++ }

func testDispatcher(t *testing.T, codes []string, seeded string, initial string) (*Dispatcher, *fakeGateway, *recorded) {
	t.Helper()
	window := shared.NewSessionWindow(900, 1530, 0)
	ch := chart.New(codes, window)
	if seeded != "" {
		bars := make([]chart.Bar, 0, 400)
		for i := 0; i < 400; i++ {
			bars = append(bars, chart.Bar{
				Date: "20230101", Time: i,
				Open: float64(i), High: float64(i + 1), Low: float64(i - 1), Close: float64(i),
			})
		}
		if err := ch.Seed(seeded, bars); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	ch.InitPosition(initial)
	gw := &fakeGateway{qty: 10}
	rec := &recorded{}
	d, err := New(
		Config{Date: "20230101", Class: broker.ClassEquity, Window: window},
		ch, strategy.New(window), gw, initial, rec, shared.NopLogger{}, NopMetrics(),
	)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	return d, gw, rec
}

func current(code string, tm int, price float64) shared.TickEvent {
	return shared.TickEvent{Kind: shared.EventCurrent, Code: code, Time: tm, Price: price, Phase: shared.PhaseRegular}
}

func TestBreakoutEntersPosition(t *testing.T) {
	d, gw, rec := testDispatcher(t, []string{"AAPL"}, "AAPL", "")

	d.Handle(context.Background(), current("AAPL", 123456, 500))

	if len(gw.orders) != 1 || gw.orders[0].side != broker.SideBuy || gw.orders[0].code != "AAPL" {
		t.Fatalf("expected one buy order, got %v", gw.orders)
	}
	if gw.orders[0].qty != 10 {
		t.Fatalf("expected tradable amount passed through, got %d", gw.orders[0].qty)
	}
	if d.Position() != "AAPL" {
		t.Fatalf("expected HOLDING(AAPL), got %q", d.Position())
	}
	if len(rec.decisions) != 1 || rec.decisions[0].side != broker.SideBuy {
		t.Fatalf("decision not recorded: %v", rec.decisions)
	}
}

func TestNoSecondEntryWhileHolding(t *testing.T) {
	d, gw, _ := testDispatcher(t, []string{"AAPL", "MSFT"}, "AAPL", "")
	if err := seedSecond(d, "MSFT"); err != nil {
		t.Fatalf("seed MSFT: %v", err)
	}

	d.Handle(context.Background(), current("AAPL", 123456, 500))
	if d.Position() != "AAPL" {
		t.Fatalf("setup: expected entry, got %q", d.Position())
	}
	// A breakout-priced tick for another instrument must not trade.
	d.Handle(context.Background(), current("MSFT", 123556, 500))

	if len(gw.orders) != 1 {
		t.Fatalf("second entry issued while holding: %v", gw.orders)
	}
	if d.Position() != "AAPL" {
		t.Fatalf("position changed to %q", d.Position())
	}
}

func seedSecond(d *Dispatcher, code string) error {
	bars := make([]chart.Bar, 0, 400)
	for i := 0; i < 400; i++ {
		bars = append(bars, chart.Bar{
			Date: "20230101", Time: i,
			Open: float64(i), High: float64(i + 1), Low: float64(i - 1), Close: float64(i),
		})
	}
	return d.chart.Seed(code, bars)
}

func TestStopLossExitsPosition(t *testing.T) {
	d, gw, _ := testDispatcher(t, []string{"AAPL"}, "AAPL", "AAPL")

	d.Handle(context.Background(), current("AAPL", 123456, 35))

	if len(gw.orders) != 1 || gw.orders[0].side != broker.SideSell {
		t.Fatalf("expected one sell order, got %v", gw.orders)
	}
	if d.Position() != "" {
		t.Fatalf("expected flat, got %q", d.Position())
	}
}

func TestSameBucketTicksEvaluateOnce(t *testing.T) {
	d, gw, _ := testDispatcher(t, []string{"AAPL"}, "AAPL", "")

	d.Handle(context.Background(), current("AAPL", 123410, 500))
	// Same 1235 bucket: chart mutates in place, no re-evaluation.
	d.Handle(context.Background(), current("AAPL", 123430, 40))
	d.Handle(context.Background(), current("AAPL", 123450, 505))

	if len(gw.orders) != 1 {
		t.Fatalf("expected a single entry for the bucket, got %v", gw.orders)
	}
}

func TestOrderFailureStillFlipsPosition(t *testing.T) {
	d, gw, _ := testDispatcher(t, []string{"AAPL"}, "AAPL", "")
	gw.orderErr = broker.ErrGatewayRejected

	d.Handle(context.Background(), current("AAPL", 123456, 500))

	if d.Position() != "AAPL" {
		t.Fatalf("fire-and-forget: position must flip despite rejection, got %q", d.Position())
	}
}

func TestOutOfOrderTickDropped(t *testing.T) {
	d, gw, _ := testDispatcher(t, []string{"AAPL"}, "AAPL", "")

	d.Handle(context.Background(), current("AAPL", 123456, 100))
	before := d.chart.Len()
	d.Handle(context.Background(), current("AAPL", 120000, 500))

	if d.chart.Len() != before {
		t.Fatalf("out-of-order tick changed the chart")
	}
	if len(gw.orders) != 0 {
		t.Fatalf("out-of-order tick must not trade: %v", gw.orders)
	}
}

func TestHaltFiresOnceWhenRowCompleteAtSessionEnd(t *testing.T) {
	d, _, _ := testDispatcher(t, []string{"AAPL", "MSFT"}, "", "")
	halts := 0
	d.Halt = func() { halts++ }

	d.Handle(context.Background(), current("AAPL", 153001, 100))
	if d.Halted() {
		t.Fatalf("halt before all instruments populated")
	}
	d.Handle(context.Background(), current("MSFT", 153005, 50))
	if !d.Halted() {
		t.Fatalf("expected halt once row is complete past session end")
	}
	d.Handle(context.Background(), current("AAPL", 153010, 101))
	if halts != 1 {
		t.Fatalf("halt must fire exactly once, got %d", halts)
	}
}

func TestNoHaltBeforeSessionEnd(t *testing.T) {
	d, _, _ := testDispatcher(t, []string{"AAPL"}, "AAPL", "")
	d.Halt = func() { t.Fatalf("halt before session end") }

	d.Handle(context.Background(), current("AAPL", 123456, 100))
	if d.Halted() {
		t.Fatalf("halted mid-session")
	}
}

func TestExpectedTickExitsDuringClosingAuction(t *testing.T) {
	d, gw, _ := testDispatcher(t, []string{"AAPL"}, "AAPL", "AAPL")

	d.Handle(context.Background(), shared.TickEvent{
		Kind: shared.EventExpected, Code: "AAPL", Time: 152600, Price: 35,
		Phase: shared.PhaseClosingAuction,
	})

	if len(gw.orders) != 1 || gw.orders[0].side != broker.SideSell {
		t.Fatalf("expected auction exit, got %v", gw.orders)
	}
	if d.Position() != "" {
		t.Fatalf("expected flat after auction exit, got %q", d.Position())
	}
}

func TestExpectedTickIgnoredOutsideClosingAuction(t *testing.T) {
	d, gw, _ := testDispatcher(t, []string{"AAPL"}, "AAPL", "AAPL")

	d.Handle(context.Background(), shared.TickEvent{
		Kind: shared.EventExpected, Code: "AAPL", Time: 152600, Price: 35,
		Phase: shared.PhaseIntradayAuction,
	})
	d.Handle(context.Background(), shared.TickEvent{
		Kind: shared.EventExpected, Code: "AAPL", Time: 110000, Price: 35,
		Phase: shared.PhaseClosingAuction,
	})

	if len(gw.orders) != 0 {
		t.Fatalf("expected no orders, got %v", gw.orders)
	}
	if d.Position() != "AAPL" {
		t.Fatalf("position must be untouched, got %q", d.Position())
	}
}

func TestConfirmTickBookkeepingOnly(t *testing.T) {
	d, gw, rec := testDispatcher(t, []string{"AAPL"}, "AAPL", "")
	before := d.chart.Len()

	d.Handle(context.Background(), shared.TickEvent{
		Kind: shared.EventConfirm, Code: "AAPL", Time: 123456,
		OrderID: "42", Side: "2", Status: "1", Price: 150, Qty: 10, Balance: 9000,
	})

	if d.chart.Len() != before {
		t.Fatalf("confirm tick must not feed the chart")
	}
	if len(gw.orders) != 0 {
		t.Fatalf("confirm tick must not trade")
	}
	if rec.fills != 1 {
		t.Fatalf("executed confirmation must be recorded, got %d", rec.fills)
	}
}

func TestRunStopsAfterHalt(t *testing.T) {
	d, _, _ := testDispatcher(t, []string{"AAPL"}, "", "")
	halted := false
	d.Halt = func() { halted = true }

	events := make(chan shared.TickEvent, 4)
	events <- current("AAPL", 153001, 100)
	events <- current("AAPL", 153030, 101)

	if err := d.Run(context.Background(), events); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !halted || !d.Halted() {
		t.Fatalf("expected halted session")
	}
	if len(events) != 1 {
		t.Fatalf("run must stop at the halting tick, %d events left", len(events))
	}
}

func TestRunHonorsContextCancel(t *testing.T) {
	d, _, _ := testDispatcher(t, []string{"AAPL"}, "", "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := d.Run(ctx, make(chan shared.TickEvent)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRecorderSeesClosedBars(t *testing.T) {
	d, _, rec := testDispatcher(t, []string{"AAPL"}, "", "")

	d.Handle(context.Background(), current("AAPL", 100001, 100))
	d.Handle(context.Background(), current("AAPL", 100101, 101))
	d.Handle(context.Background(), current("AAPL", 100201, 102))

	if rec.barsClosed != 2 {
		t.Fatalf("expected 2 closed bars, got %d", rec.barsClosed)
	}
}
