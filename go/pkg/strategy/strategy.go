package strategy

import (
	"fmt"

	"breakout-trader/go/pkg/chart"
	"breakout-trader/go/pkg/shared"
)

// Rule parameters, in completed one-minute bars.
const (
	openGuardMin      = 130  // no entries this long after the open
	closeGuardMin     = 10   // no entries this close to the end; exits forced
	stopWindowBars    = 120  // breakout / stop-loss lookback
	confirmWindowBars = 75   // short confirmation lookback
	baseWindowBars    = 360  // long-run baseline lookback
	drawdownRatio     = 0.96 // exit when price sinks below 96% of the recent ceiling
)

// Breakout evaluates the range-breakout entry and exit rules for one
// instrument group. Futures use the same rules with a wider session
// window; the difference is carried entirely by the window value.
type Breakout struct {
	window shared.SessionWindow
}

func New(window shared.SessionWindow) *Breakout {
	return &Breakout{window: window}
}

// BuySignal reports whether all entry conditions hold for code at the
// given traded price and HHMMSS tick time. Window aggregates run over
// completed bars only and truncate when the history is short; a code
// the chart has no columns for is an error, never a silent false.
func (b *Breakout) BuySignal(c *chart.Chart, code string, price float64, tickTime int) (bool, error) {
	if !c.HasCode(code) {
		return false, fmt.Errorf("%w: %s", chart.ErrMissingColumn, code)
	}
	cur := shared.MinuteOfDay(tickTime)
	if cur <= b.window.StartMin+openGuardMin {
		return false, nil
	}
	if cur >= b.window.EndMin-closeGuardMin {
		return false, nil
	}

	recentFloor, ok1 := c.MinLow(code, stopWindowBars)
	baseFloor, ok2 := c.MinLow(code, baseWindowBars)
	confirmFloor, ok3 := c.MinHigh(code, confirmWindowBars)
	baseHighFloor, ok4 := c.MinHigh(code, baseWindowBars)
	ceiling, ok5 := c.MaxHigh(code, stopWindowBars)
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 {
		return false, nil
	}

	return recentFloor > baseFloor &&
		confirmFloor > baseHighFloor &&
		price > ceiling, nil
}

// SellSignal reports whether any exit condition holds: the session is in
// its final minutes, price breached the recent floor, or price sank below
// the drawdown threshold off the recent ceiling.
func (b *Breakout) SellSignal(c *chart.Chart, code string, price float64, tickTime int) (bool, error) {
	if !c.HasCode(code) {
		return false, fmt.Errorf("%w: %s", chart.ErrMissingColumn, code)
	}
	if shared.MinuteOfDay(tickTime) > b.window.EndMin-closeGuardMin {
		return true, nil
	}
	if floor, ok := c.MinLow(code, stopWindowBars); ok && price < floor {
		return true, nil
	}
	if ceiling, ok := c.MaxHigh(code, stopWindowBars); ok && price < ceiling*drawdownRatio {
		return true, nil
	}
	return false, nil
}
