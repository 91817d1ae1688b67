package universe

import (
	"context"
	"testing"
	"time"
)

func TestStaticResolve(t *testing.T) {
	got, err := NewStatic("NIFTYBEES=Nifty 50 ETF, BANKBEES=Bank Nifty ETF").Resolve(context.Background())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(got) != 2 || got["NIFTYBEES"] != "Nifty 50 ETF" || got["BANKBEES"] != "Bank Nifty ETF" {
		t.Fatalf("unexpected universe: %v", got)
	}
}

func TestStaticRejectsMalformedPairs(t *testing.T) {
	for _, pairs := range []string{"", "NIFTYBEES", "=nameless"} {
		if _, err := NewStatic(pairs).Resolve(context.Background()); err == nil {
			t.Fatalf("pairs %q: expected error", pairs)
		}
	}
}

type fakeLister struct {
	contracts []Contract
	err       error
}

func (f *fakeLister) ListContracts(context.Context) ([]Contract, error) {
	return f.contracts, f.err
}

func TestFrontMonthPicksNearestExpiry(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2023, 6, d, 0, 0, 0, 0, time.UTC) }
	lister := &fakeLister{contracts: []Contract{
		{Code: "NIFTY23MAYFUT", Name: "NIFTY", Expiry: day(-5)}, // expired
		{Code: "NIFTY23JULFUT", Name: "NIFTY", Expiry: day(27).AddDate(0, 1, 0)},
		{Code: "NIFTY23JUNFUT", Name: "NIFTY", Expiry: day(29)},
		{Code: "BANKNIFTY23JUNFUT", Name: "BANKNIFTY", Expiry: day(29)},
	}}
	fm := NewFrontMonth(lister, []string{"NIFTY", "BANKNIFTY"})
	fm.now = func() time.Time { return day(10) }

	got, err := fm.Resolve(context.Background())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got["NIFTY23JUNFUT"] != "NIFTY" {
		t.Fatalf("expected June front month, got %v", got)
	}
	if got["BANKNIFTY23JUNFUT"] != "BANKNIFTY" {
		t.Fatalf("missing BANKNIFTY front month: %v", got)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 contracts, got %v", got)
	}
}

func TestFrontMonthFailsWhenNoLiveContract(t *testing.T) {
	lister := &fakeLister{contracts: []Contract{
		{Code: "NIFTY23MAYFUT", Name: "NIFTY", Expiry: time.Date(2023, 5, 25, 0, 0, 0, 0, time.UTC)},
	}}
	fm := NewFrontMonth(lister, []string{"NIFTY"})
	fm.now = func() time.Time { return time.Date(2023, 6, 10, 0, 0, 0, 0, time.UTC) }

	if _, err := fm.Resolve(context.Background()); err == nil {
		t.Fatalf("expected error for expired-only contract list")
	}
}
