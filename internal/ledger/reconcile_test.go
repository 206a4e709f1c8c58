package ledger

import (
	"testing"
	"time"
)

func TestDayWindow(t *testing.T) {
	ts := time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC)
	start, end := DayWindow(ts)
	if !start.Equal(time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("start = %v", start)
	}
	if !end.Equal(time.Date(2025, 3, 14, 23, 59, 59, 999000000, time.UTC)) {
		t.Fatalf("end = %v", end)
	}
	if !InWindow(start, start, end) || !InWindow(end, start, end) {
		t.Fatal("window bounds must be inclusive")
	}
	if InWindow(end.Add(time.Millisecond), start, end) {
		t.Fatal("next midnight must fall outside")
	}
}

func TestDayTotals(t *testing.T) {
	entries := []Entry{
		{AccountID: "A", Direction: MoneyIn, Amount: 500},
		{AccountID: "A", Direction: MoneyOut, Amount: 200},
		// Linked side inverts: money out of the primary flows into A.
		{AccountID: "B", LinkedAccountID: "A", Direction: MoneyOut, Amount: 100},
		{AccountID: "B", LinkedAccountID: "A", Direction: MoneyIn, Amount: 50},
		// Unrelated entry is ignored.
		{AccountID: "C", Direction: MoneyIn, Amount: 999},
	}
	in, out := DayTotals(entries, "A")
	if in != 600 {
		t.Fatalf("totalIn = %d", in)
	}
	if out != 250 {
		t.Fatalf("totalOut = %d", out)
	}
}

func TestClassifyDifference(t *testing.T) {
	if ClassifyDifference(0) != CheckMatched {
		t.Fatal("zero must match")
	}
	if ClassifyDifference(-50) != CheckShort {
		t.Fatal("negative must be short")
	}
	if ClassifyDifference(50) != CheckExcess {
		t.Fatal("positive must be excess")
	}
}

func TestAdjustmentFor(t *testing.T) {
	day := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)

	short := AdjustmentFor("u1", "A", -50, day, "")
	if short.Direction != MoneyOut || short.Amount != 50 {
		t.Fatalf("short adjustment = %+v", short)
	}
	if short.Category != AdjustmentCategory {
		t.Fatalf("category = %q", short.Category)
	}
	if short.BalanceImpact != -50 {
		t.Fatalf("impact = %d", short.BalanceImpact)
	}

	excess := AdjustmentFor("u1", "A", 75, day, "drawer over")
	if excess.Direction != MoneyIn || excess.Amount != 75 {
		t.Fatalf("excess adjustment = %+v", excess)
	}
	if excess.Description != "drawer over" {
		t.Fatalf("description = %q", excess.Description)
	}
}
