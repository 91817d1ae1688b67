package session

// Position is the per-group position state machine: flat, or holding
// exactly one instrument. Only the dispatcher mutates it; the chart's
// position column mirrors it for the record.
type Position struct {
	code string
}

// NewPosition starts holding code, or flat when code is "".
func NewPosition(code string) Position { return Position{code: code} }

// Flat reports whether nothing is held.
func (p *Position) Flat() bool { return p.code == "" }

// Holding returns the held code, "" when flat.
func (p *Position) Holding() string { return p.code }

// Enter records a long entry.
func (p *Position) Enter(code string) { p.code = code }

// Exit returns to flat.
func (p *Position) Exit() { p.code = "" }
