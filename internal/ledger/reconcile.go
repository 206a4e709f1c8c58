package ledger

import (
	"time"

	"lekha.app/internal/money"
)

// DayWindow returns the inclusive bounds of the calendar day containing
// t, midnight to 23:59:59.999, in t's location.
func DayWindow(t time.Time) (start, end time.Time) {
	y, m, d := t.Date()
	start = time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	end = start.Add(24*time.Hour - time.Millisecond)
	return start, end
}

// SameDay reports whether a and b fall on the same calendar day in a's
// location.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.In(a.Location()).Date()
	return ay == by && am == bm && ad == bd
}

// InWindow reports whether t lies inside [start, end].
func InWindow(t, start, end time.Time) bool {
	return !t.Before(start) && !t.After(end)
}

// DayTotals aggregates money in and out for one account over a slice of
// same-day entries. When the account is the primary side the entry
// counts as written; when it is the linked side the effect inverts
// (money out of the primary is money into the linked account). This is
// the propagation sign rule collapsed to same-day aggregation.
func DayTotals(entries []Entry, accountID string) (totalIn, totalOut money.Amount) {
	for _, e := range entries {
		switch {
		case e.AccountID == accountID:
			if e.Direction == MoneyIn {
				totalIn += e.Amount
			} else {
				totalOut += e.Amount
			}
		case e.LinkedAccountID == accountID:
			if e.Direction == MoneyOut {
				totalIn += e.Amount
			} else {
				totalOut += e.Amount
			}
		}
	}
	return totalIn, totalOut
}

// ClassifyDifference maps a signed variance to a check status.
func ClassifyDifference(diff money.Amount) CheckStatus {
	switch {
	case diff < 0:
		return CheckShort
	case diff > 0:
		return CheckExcess
	}
	return CheckMatched
}

// AdjustmentFor builds the correcting entry that brings an account's
// balance to the counted actual. A shortfall needs a money-out entry, an
// excess a money-in entry. Callers persist it and run normal propagation
// so the correction re-enters the standard path.
func AdjustmentFor(ownerID, accountID string, diff money.Amount, day time.Time, note string) Entry {
	dir := MoneyIn
	if diff < 0 {
		dir = MoneyOut
	}
	desc := "Cash check adjustment"
	if note != "" {
		desc = note
	}
	e := Entry{
		OwnerID:     ownerID,
		Direction:   dir,
		Amount:      diff.Abs(),
		Category:    AdjustmentCategory,
		Description: desc,
		Date:        day,
		AccountID:   accountID,
	}
	e.RecomputeImpact()
	return e
}
