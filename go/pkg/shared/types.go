package shared

import "fmt"

// EventKind tags which realtime stream a tick event came from.
type EventKind int

const (
	EventCurrent  EventKind = iota // traded price
	EventExpected                  // indicative auction price
	EventConfirm                   // order execution update
)

func (k EventKind) String() string {
	switch k {
	case EventCurrent:
		return "current"
	case EventExpected:
		return "expected"
	case EventConfirm:
		return "confirm"
	}
	return "unknown"
}

// MarketPhase mirrors the venue's market-type flag carried on price ticks.
type MarketPhase int

const (
	PhaseUnknown MarketPhase = iota
	PhaseRegular
	PhaseOpeningAuction
	PhaseIntradayAuction
	PhaseClosingAuction
)

// TickEvent is the unified event shape consumed by a session dispatcher.
// Current and expected events carry Code/Time/Price/Phase; confirmation
// events additionally carry the order bookkeeping fields.
type TickEvent struct {
	Kind  EventKind   `json:"kind"`
	Code  string      `json:"code"`
	Time  int         `json:"time"` // HHMMSS
	Price float64     `json:"price"`
	Phase MarketPhase `json:"phase"`

	OrderID string  `json:"order_id,omitempty"`
	Side    string  `json:"side,omitempty"`   // venue code: "1" sell, "2" buy
	Status  string  `json:"status,omitempty"` // venue order-status code
	Qty     int64   `json:"qty,omitempty"`
	Balance float64 `json:"balance,omitempty"`
}

// SessionWindow bounds one trading day for an instrument class,
// in minutes since midnight.
type SessionWindow struct {
	StartMin int
	EndMin   int
}

// NewSessionWindow builds a window from HHMM bounds plus a symmetric
// offset (futures trade offsetMin minutes longer on each side).
func NewSessionWindow(startHHMM, endHHMM, offsetMin int) SessionWindow {
	return SessionWindow{
		StartMin: HHMMMinute(startHHMM) - offsetMin,
		EndMin:   HHMMMinute(endHHMM) + offsetMin,
	}
}

// EndHHMM is the closing bucket key.
func (w SessionWindow) EndHHMM() int { return MinuteHHMM(w.EndMin) }

// EndHHMMSS is the session end scaled to tick-time resolution.
func (w SessionWindow) EndHHMMSS() int { return w.EndHHMM() * 100 }

func (w SessionWindow) String() string {
	return fmt.Sprintf("%04d-%04d", MinuteHHMM(w.StartMin), w.EndHHMM())
}

// MinuteOfDay converts an HHMMSS tick time to minutes since midnight.
func MinuteOfDay(hhmmss int) int {
	return (hhmmss/10000)*60 + (hhmmss/100)%100
}

// HHMMMinute converts an HHMM clock value to minutes since midnight.
func HHMMMinute(hhmm int) int { return (hhmm/100)*60 + hhmm%100 }

// MinuteHHMM converts minutes since midnight back to an HHMM clock value.
func MinuteHHMM(min int) int { return (min/60)*100 + min%60 }
