package chart

import (
	"errors"
	"testing"

	"breakout-trader/go/pkg/shared"
)

func testWindow() shared.SessionWindow {
	return shared.NewSessionWindow(900, 1530, 0)
}

func seededChart(t *testing.T) *Chart {
	t.Helper()
	c := New([]string{"AAPL"}, testWindow())
	err := c.Seed("AAPL", []Bar{
		{Date: "20230101", Time: 930, Open: 150, High: 152, Low: 149, Close: 151},
		{Date: "20230101", Time: 931, Open: 151, High: 153, Low: 150, Close: 152},
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return c
}

func TestUpdateNewMinuteAppendsRow(t *testing.T) {
	c := seededChart(t)

	res, err := c.Update("20230101", "AAPL", 93100, 153.0)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !res.Appended {
		t.Fatalf("expected appended row, got %+v", res)
	}
	if c.Len() != 3 {
		t.Fatalf("expected 3 rows, got %d", c.Len())
	}
	row, _ := c.RowAt(2)
	if row.Bucket != 932 {
		t.Fatalf("expected bucket 932, got %d", row.Bucket)
	}
	cell := row.Cells[0]
	if cell.Open != 153 || cell.High != 153 || cell.Low != 153 || cell.Close != 153 {
		t.Fatalf("expected all fields 153, got %+v", cell)
	}
}

func TestUpdateSameMinuteMutatesLastRow(t *testing.T) {
	c := seededChart(t)

	res, err := c.Update("20230101", "AAPL", 93059, 154.0)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if res.Appended || res.FirstFill {
		t.Fatalf("expected in-place update, got %+v", res)
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 rows, got %d", c.Len())
	}
	row, _ := c.RowAt(1)
	cell := row.Cells[0]
	if cell.Close != 154 {
		t.Fatalf("expected close 154, got %v", cell.Close)
	}
	if cell.High != 154 {
		t.Fatalf("expected high raised to 154, got %v", cell.High)
	}
	if cell.Open != 151 || cell.Low != 150 {
		t.Fatalf("open/low must not move: %+v", cell)
	}
}

func TestUpdateFirstTickOnEmptyChart(t *testing.T) {
	c := New([]string{"AAPL"}, testWindow())

	res, err := c.Update("20230101", "AAPL", 93100, 153.0)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !res.Appended || c.Len() != 1 {
		t.Fatalf("expected single appended row, got %+v len=%d", res, c.Len())
	}
	row, _ := c.RowAt(0)
	if row.Bucket != 932 {
		t.Fatalf("expected bucket 932, got %d", row.Bucket)
	}
	if row.Position != "" {
		t.Fatalf("fresh chart must start flat, got %q", row.Position)
	}
}

func TestUpdateFirstFillInExistingBucket(t *testing.T) {
	c := New([]string{"AAPL", "MSFT"}, testWindow())

	if _, err := c.Update("20230101", "AAPL", 93010, 150.0); err != nil {
		t.Fatalf("update: %v", err)
	}
	res, err := c.Update("20230101", "MSFT", 93030, 310.0)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !res.FirstFill || res.Appended {
		t.Fatalf("expected first fill in same bucket, got %+v", res)
	}
	if c.Len() != 1 {
		t.Fatalf("expected 1 row, got %d", c.Len())
	}
	row, _ := c.RowAt(0)
	if !row.Cells[1].Set || row.Cells[1].Open != 310 {
		t.Fatalf("MSFT cell not populated: %+v", row.Cells[1])
	}
}

func TestOHLCInvariantHoldsAcrossTicks(t *testing.T) {
	c := New([]string{"AAPL"}, testWindow())
	prices := []float64{100, 103, 99, 101, 105, 98, 104, 100.5}
	times := []int{93001, 93010, 93030, 93045, 93110, 93120, 93230, 93240}

	for i := range prices {
		if _, err := c.Update("20230101", "AAPL", times[i], prices[i]); err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
		for r := 0; r < c.Len(); r++ {
			row, _ := c.RowAt(r)
			cell := row.Cells[0]
			if !cell.Set {
				continue
			}
			if cell.Low > cell.Open || cell.Low > cell.Close ||
				cell.High < cell.Open || cell.High < cell.Close {
				t.Fatalf("OHLC invariant broken at row %d: %+v", r, cell)
			}
		}
	}
}

func TestRowCountNeverDecreases(t *testing.T) {
	c := New([]string{"AAPL"}, testWindow())
	times := []int{93001, 93030, 93110, 93115, 93350, 93500}
	prev := 0
	for _, ts := range times {
		if _, err := c.Update("20230101", "AAPL", ts, 100); err != nil {
			t.Fatalf("update: %v", err)
		}
		if c.Len() < prev {
			t.Fatalf("row count shrank: %d -> %d", prev, c.Len())
		}
		prev = c.Len()
	}
}

func TestUpdateClampsToClosingBucket(t *testing.T) {
	c := New([]string{"AAPL"}, testWindow())

	if _, err := c.Update("20230101", "AAPL", 152830, 100); err != nil {
		t.Fatalf("update: %v", err)
	}
	// Post-close prints fold into the final bar.
	res, err := c.Update("20230101", "AAPL", 153210, 101)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 rows, got %d", c.Len())
	}
	if res.Appended != true {
		t.Fatalf("closing bucket should have been appended: %+v", res)
	}
	row, _ := c.RowAt(1)
	if row.Bucket != 1530 {
		t.Fatalf("expected closing bucket 1530, got %d", row.Bucket)
	}
	if _, err := c.Update("20230101", "AAPL", 153455, 102); err != nil {
		t.Fatalf("second post-close tick: %v", err)
	}
	if c.Len() != 2 {
		t.Fatalf("post-close tick must not open a new bucket, got %d rows", c.Len())
	}
}

func TestUpdateRejectsOutOfOrderTick(t *testing.T) {
	c := New([]string{"AAPL"}, testWindow())
	if _, err := c.Update("20230101", "AAPL", 94500, 100); err != nil {
		t.Fatalf("update: %v", err)
	}
	_, err := c.Update("20230101", "AAPL", 93000, 99)
	if !errors.Is(err, ErrOutOfOrderTick) {
		t.Fatalf("expected ErrOutOfOrderTick, got %v", err)
	}
	if c.Len() != 1 {
		t.Fatalf("out-of-order tick must not change the chart, got %d rows", c.Len())
	}
}

func TestUpdateUnknownCode(t *testing.T) {
	c := New([]string{"AAPL"}, testWindow())
	_, err := c.Update("20230101", "TSLA", 93000, 200)
	if !errors.Is(err, ErrMissingColumn) {
		t.Fatalf("expected ErrMissingColumn, got %v", err)
	}
}

func TestSeedAlignsAcrossInstruments(t *testing.T) {
	c := New([]string{"AAPL", "MSFT"}, testWindow())
	if err := c.Seed("AAPL", []Bar{
		{Date: "20230101", Time: 930, Open: 1, High: 2, Low: 1, Close: 2},
		{Date: "20230101", Time: 931, Open: 2, High: 3, Low: 2, Close: 3},
	}); err != nil {
		t.Fatalf("seed AAPL: %v", err)
	}
	if err := c.Seed("MSFT", []Bar{
		{Date: "20230101", Time: 931, Open: 10, High: 11, Low: 10, Close: 11},
		{Date: "20230101", Time: 932, Open: 11, High: 12, Low: 11, Close: 12},
	}); err != nil {
		t.Fatalf("seed MSFT: %v", err)
	}
	if c.Len() != 3 {
		t.Fatalf("expected 3 aligned rows, got %d", c.Len())
	}
	row, _ := c.RowAt(1)
	if row.Bucket != 931 || !row.Cells[0].Set || !row.Cells[1].Set {
		t.Fatalf("bucket 931 should carry both instruments: %+v", row)
	}
	row, _ = c.RowAt(2)
	if row.Cells[0].Set {
		t.Fatalf("AAPL has no 932 bar, cell must stay unset")
	}
}

func TestInitPositionCarriesForward(t *testing.T) {
	c := seededChart(t)
	c.InitPosition("AAPL")
	if c.Position() != "AAPL" {
		t.Fatalf("expected seeded position AAPL, got %q", c.Position())
	}
	if _, err := c.Update("20230101", "AAPL", 93200, 155); err != nil {
		t.Fatalf("update: %v", err)
	}
	if c.Position() != "AAPL" {
		t.Fatalf("position must copy into appended rows, got %q", c.Position())
	}
}

func TestWindowAggregatesExcludeFormingRow(t *testing.T) {
	c := New([]string{"AAPL"}, testWindow())
	bars := make([]Bar, 0, 5)
	for i := 0; i < 5; i++ {
		bars = append(bars, Bar{
			Date: "20230101", Time: 930 + i,
			Open: float64(i), High: float64(i + 1), Low: float64(i - 1), Close: float64(i),
		})
	}
	if err := c.Seed("AAPL", bars); err != nil {
		t.Fatalf("seed: %v", err)
	}
	// Completed bars are 930..933; 934 is the forming row.
	got, ok := c.MaxHigh("AAPL", 10)
	if !ok || got != 4 {
		t.Fatalf("MaxHigh: got %v ok=%v, want 4", got, ok)
	}
	got, ok = c.MinLow("AAPL", 2)
	if !ok || got != 1 {
		t.Fatalf("MinLow(2): got %v ok=%v, want 1", got, ok)
	}
	if _, ok := c.MinLow("TSLA", 2); ok {
		t.Fatalf("unknown code must not aggregate")
	}
}
