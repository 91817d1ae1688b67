package chart

import (
	"errors"
	"fmt"
	"sort"

	"breakout-trader/go/pkg/shared"
)

var (
	// ErrMissingColumn means the chart has no columns for the requested code.
	ErrMissingColumn = errors.New("chart: missing instrument column")
	// ErrOutOfOrderTick means the tick's bucket is older than the latest row.
	ErrOutOfOrderTick = errors.New("chart: out of order tick")
)

// Cell is one instrument's OHLC within a row. The zero value is unset:
// no trade for that instrument has been seen in the row's bucket yet.
type Cell struct {
	Open  float64
	High  float64
	Low   float64
	Close float64
	Set   bool
}

// Row is one cross-sectional minute bar for the whole instrument group.
// Cells is parallel to the chart's code list. Position carries the code
// held during this bucket, or "" when flat.
type Row struct {
	Date     string // YYYYMMDD
	Bucket   int    // HHMM, right-closed
	Position string
	Cells    []Cell
}

// Bar is a bootstrap history bar for a single instrument.
type Bar struct {
	Date  string
	Time  int // HHMM bucket, right-closed
	Open  float64
	High  float64
	Low   float64
	Close float64
}

// UpdateResult reports what a tick did to the chart.
type UpdateResult struct {
	Appended  bool // a new bucket row was created
	FirstFill bool // the instrument's cell in the current row was first populated
}

// BucketAdvanced reports whether signal evaluation should run for this tick.
func (r UpdateResult) BucketAdvanced() bool { return r.Appended || r.FirstFill }

type rowKey struct {
	date   string
	bucket int
}

// Chart is the append-only minute-bucketed OHLC table for one instrument
// group. Rows are ordered by (date, bucket) ascending; only the last row
// is ever mutated by live updates.
type Chart struct {
	codes  []string
	index  map[string]int
	keys   map[rowKey]int
	window shared.SessionWindow
	rows   []Row
}

// New builds an empty chart for the given instrument codes.
func New(codes []string, window shared.SessionWindow) *Chart {
	idx := make(map[string]int, len(codes))
	ordered := make([]string, len(codes))
	copy(ordered, codes)
	for i, c := range ordered {
		idx[c] = i
	}
	return &Chart{
		codes:  ordered,
		index:  idx,
		keys:   make(map[rowKey]int),
		window: window,
	}
}

// Codes returns the instrument columns in cell order.
func (c *Chart) Codes() []string { return c.codes }

// HasCode reports whether the chart carries columns for code.
func (c *Chart) HasCode(code string) bool {
	_, ok := c.index[code]
	return ok
}

// Len is the number of rows.
func (c *Chart) Len() int { return len(c.rows) }

// RowAt returns a copy of row i.
func (c *Chart) RowAt(i int) (Row, bool) {
	if i < 0 || i >= len(c.rows) {
		return Row{}, false
	}
	row := c.rows[i]
	cells := make([]Cell, len(row.Cells))
	copy(cells, row.Cells)
	row.Cells = cells
	return row, true
}

// Seed merges a bootstrap history for one instrument into the chart.
// Bars must be oldest-first; rows are aligned across instruments on
// (date, bucket) and re-sorted after the merge.
func (c *Chart) Seed(code string, bars []Bar) error {
	col, ok := c.index[code]
	if !ok {
		return fmt.Errorf("%w: %s", ErrMissingColumn, code)
	}
	for _, b := range bars {
		key := rowKey{date: b.Date, bucket: b.Time}
		i, exists := c.keys[key]
		if !exists {
			i = c.appendRow(b.Date, b.Time)
		}
		c.rows[i].Cells[col] = Cell{Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Set: true}
	}
	sort.SliceStable(c.rows, func(i, j int) bool {
		if c.rows[i].Date != c.rows[j].Date {
			return c.rows[i].Date < c.rows[j].Date
		}
		return c.rows[i].Bucket < c.rows[j].Bucket
	})
	for i, row := range c.rows {
		c.keys[rowKey{date: row.Date, bucket: row.Bucket}] = i
	}
	return nil
}

// InitPosition stamps the startup position onto every row, so the value
// carries forward from the seeded history into live updates.
func (c *Chart) InitPosition(code string) {
	for i := range c.rows {
		c.rows[i].Position = code
	}
}

// Update applies one current-price tick.
//
// The effective bucket is the tick time rounded up to the next full
// minute and clamped to the session's closing bucket, so late prints
// fold into the final bar instead of opening one past session end.
func (c *Chart) Update(date, code string, tickTime int, price float64) (UpdateResult, error) {
	col, ok := c.index[code]
	if !ok {
		return UpdateResult{}, fmt.Errorf("%w: %s", ErrMissingColumn, code)
	}
	if price <= 0 {
		return UpdateResult{}, fmt.Errorf("chart: non-positive price %v for %s", price, code)
	}
	bucket := c.bucketFor(tickTime)

	if len(c.rows) == 0 {
		i := c.appendRow(date, bucket)
		c.rows[i].Cells[col] = fill(price)
		return UpdateResult{Appended: true}, nil
	}

	last := &c.rows[len(c.rows)-1]
	if date < last.Date || (date == last.Date && bucket < last.Bucket) {
		return UpdateResult{}, fmt.Errorf("%w: %s %04d < %04d", ErrOutOfOrderTick, date, bucket, last.Bucket)
	}

	if date != last.Date || bucket > last.Bucket {
		i := c.appendRow(date, bucket)
		c.rows[i].Cells[col] = fill(price)
		return UpdateResult{Appended: true}, nil
	}

	// Same bucket as the last row.
	cell := &last.Cells[col]
	if !cell.Set {
		*cell = fill(price)
		return UpdateResult{FirstFill: true}, nil
	}
	cell.Close = price
	if price > cell.High {
		cell.High = price
	}
	if price < cell.Low {
		cell.Low = price
	}
	return UpdateResult{}, nil
}

// Position is the current position code, "" when flat or empty.
func (c *Chart) Position() string {
	if len(c.rows) == 0 {
		return ""
	}
	return c.rows[len(c.rows)-1].Position
}

// SetPosition records a position transition into the current row.
func (c *Chart) SetPosition(code string) {
	if len(c.rows) == 0 {
		return
	}
	c.rows[len(c.rows)-1].Position = code
}

// LastRowComplete reports whether every instrument's cell in the current
// row is populated. False on an empty chart.
func (c *Chart) LastRowComplete() bool {
	if len(c.rows) == 0 {
		return false
	}
	for _, cell := range c.rows[len(c.rows)-1].Cells {
		if !cell.Set {
			return false
		}
	}
	return true
}

// MinLow is the minimum of the low column over the last n completed
// bars (the in-progress row is excluded; short histories truncate).
// ok is false when no populated cell falls inside the window.
func (c *Chart) MinLow(code string, n int) (float64, bool) {
	return c.aggregate(code, n, func(cell Cell) float64 { return cell.Low }, false)
}

// MinHigh is the minimum of the high column over the last n completed bars.
func (c *Chart) MinHigh(code string, n int) (float64, bool) {
	return c.aggregate(code, n, func(cell Cell) float64 { return cell.High }, false)
}

// MaxHigh is the maximum of the high column over the last n completed bars.
func (c *Chart) MaxHigh(code string, n int) (float64, bool) {
	return c.aggregate(code, n, func(cell Cell) float64 { return cell.High }, true)
}

func (c *Chart) aggregate(code string, n int, field func(Cell) float64, max bool) (float64, bool) {
	col, ok := c.index[code]
	if !ok {
		return 0, false
	}
	end := len(c.rows) - 1 // exclude the forming row
	if end <= 0 {
		return 0, false
	}
	start := end - n
	if start < 0 {
		start = 0
	}
	var best float64
	found := false
	for i := start; i < end; i++ {
		cell := c.rows[i].Cells[col]
		if !cell.Set {
			continue
		}
		v := field(cell)
		if !found || (max && v > best) || (!max && v < best) {
			best = v
			found = true
		}
	}
	return best, found
}

func (c *Chart) bucketFor(tickTime int) int {
	hhmm := tickTime / 100
	end := c.window.EndHHMM()
	switch {
	case hhmm >= end:
		return end
	case hhmm%100 == 59:
		return (hhmm/100 + 1) * 100
	default:
		return hhmm + 1
	}
}

func (c *Chart) appendRow(date string, bucket int) int {
	pos := ""
	if len(c.rows) > 0 {
		pos = c.rows[len(c.rows)-1].Position
	}
	c.rows = append(c.rows, Row{
		Date:     date,
		Bucket:   bucket,
		Position: pos,
		Cells:    make([]Cell, len(c.codes)),
	})
	i := len(c.rows) - 1
	c.keys[rowKey{date: date, bucket: bucket}] = i
	return i
}

func fill(price float64) Cell {
	return Cell{Open: price, High: price, Low: price, Close: price, Set: true}
}
