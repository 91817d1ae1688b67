package broker

import (
	"context"
	"errors"
	"strings"

	"breakout-trader/go/pkg/chart"
	"breakout-trader/go/pkg/shared"
)

var (
	// ErrGatewayTimeout means a brokerage call did not complete in time.
	ErrGatewayTimeout = errors.New("broker: gateway timeout")
	// ErrGatewayRejected means the brokerage refused the order or query.
	ErrGatewayRejected = errors.New("broker: gateway rejected")
)

// InstrumentClass selects the session window and venue segment.
type InstrumentClass int

const (
	ClassEquity InstrumentClass = iota
	ClassFuture
)

func (c InstrumentClass) String() string {
	if c == ClassFuture {
		return "future"
	}
	return "equity"
}

// Side is the order direction. The venue wire codes are "1" for sell
// and "2" for buy.
type Side int

const (
	SideUnknown Side = iota
	SideSell
	SideBuy
)

// ParseSide decodes a venue side code.
func ParseSide(code string) Side {
	switch code {
	case "1":
		return SideSell
	case "2":
		return SideBuy
	}
	return SideUnknown
}

func (s Side) String() string {
	switch s {
	case SideSell:
		return "sell"
	case SideBuy:
		return "buy"
	}
	return "unknown"
}

// OrderStatus is a decoded execution-report status.
type OrderStatus int

const (
	StatusUnknown OrderStatus = iota
	StatusReceived
	StatusConfirmed
	StatusExecuted
	StatusRejected
	StatusModifyConfirmed
	StatusCancelConfirmed
)

func (s OrderStatus) String() string {
	switch s {
	case StatusReceived:
		return "received"
	case StatusConfirmed:
		return "confirmed"
	case StatusExecuted:
		return "executed"
	case StatusRejected:
		return "rejected"
	case StatusModifyConfirmed:
		return "modify-confirmed"
	case StatusCancelConfirmed:
		return "cancel-confirmed"
	}
	return "unknown"
}

// Equity and future streams use different status code tables.
//
//	equity: "1" executed, "2" confirmed, "3" rejected, "4" received
//	future: "1" received, "2" modify-confirmed, "3" cancel-confirmed,
//	        "4" executed, "5" rejected
func ParseStatus(class InstrumentClass, code string) OrderStatus {
	if class == ClassFuture {
		switch code {
		case "1":
			return StatusReceived
		case "2":
			return StatusModifyConfirmed
		case "3":
			return StatusCancelConfirmed
		case "4":
			return StatusExecuted
		case "5":
			return StatusRejected
		}
		return StatusUnknown
	}
	switch code {
	case "1":
		return StatusExecuted
	case "2":
		return StatusConfirmed
	case "3":
		return StatusRejected
	case "4":
		return StatusReceived
	}
	return StatusUnknown
}

// StatusCode renders a decoded status back into the class's wire table.
// Returns "" for statuses the table has no code for.
func StatusCode(class InstrumentClass, s OrderStatus) string {
	if class == ClassFuture {
		switch s {
		case StatusReceived:
			return "1"
		case StatusModifyConfirmed:
			return "2"
		case StatusCancelConfirmed:
			return "3"
		case StatusExecuted:
			return "4"
		case StatusRejected:
			return "5"
		}
		return ""
	}
	switch s {
	case StatusExecuted:
		return "1"
	case StatusConfirmed:
		return "2"
	case StatusRejected:
		return "3"
	case StatusReceived:
		return "4"
	}
	return ""
}

// StatusFromText maps the brokerage's textual order states onto the
// decoded statuses.
func StatusFromText(raw string) OrderStatus {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "COMPLETE":
		return StatusExecuted
	case "OPEN", "TRIGGER PENDING":
		return StatusConfirmed
	case "REJECTED":
		return StatusRejected
	case "CANCELLED":
		return StatusCancelConfirmed
	case "PUT ORDER REQ RECEIVED", "VALIDATION PENDING", "OPEN PENDING":
		return StatusReceived
	case "MODIFY PENDING", "MODIFIED", "MODIFY VALIDATION PENDING":
		return StatusModifyConfirmed
	}
	return StatusUnknown
}

// OrderAck acknowledges an accepted order.
type OrderAck struct {
	OrderID string
}

// Gateway is the brokerage surface the trading session depends on.
// Implementations must be safe for concurrent use: the equity and
// future dispatchers share one gateway.
type Gateway interface {
	// BootstrapBars returns up to count minute bars for code, oldest
	// first, to seed the live chart.
	BootstrapBars(ctx context.Context, code string, count int) ([]chart.Bar, error)

	// CurrentPosition returns the code of a held instrument from the
	// universe, or "" when the account holds none of them.
	CurrentPosition(ctx context.Context, universe map[string]string) (string, error)

	// TradableAmount returns the quantity a market (or limit, when
	// limitPrice > 0) order on the given side could fill.
	TradableAmount(ctx context.Context, code string, side Side, limitPrice float64) (int, error)

	// PlaceOrder submits a market (or limit) order.
	PlaceOrder(ctx context.Context, code string, side Side, qty int, limitPrice float64) (OrderAck, error)

	// SessionWindow returns the trading-day bounds for the class.
	SessionWindow(ctx context.Context, class InstrumentClass) (shared.SessionWindow, error)
}
