package ledger

import (
	"context"
	"testing"
	"time"

	"lekha.app/internal/audit"
	"lekha.app/internal/money"
)

func newTestEngine(t *testing.T) (*InMemory, *audit.Memory) {
	t.Helper()
	rec := &audit.Memory{}
	return NewInMemory(rec), rec
}

func mustAccount(t *testing.T, s *InMemory, owner, name string, typ AccountType, initial money.Amount) Account {
	t.Helper()
	acc, err := s.CreateAccount(context.Background(), Account{
		OwnerID:        owner,
		Name:           name,
		Type:           typ,
		InitialBalance: initial,
	})
	if err != nil {
		t.Fatalf("create account %s: %v", name, err)
	}
	return acc
}

func mustEntry(t *testing.T, s *InMemory, e Entry) Entry {
	t.Helper()
	if e.Category == "" {
		e.Category = "General"
	}
	if e.Description == "" {
		e.Description = "test entry"
	}
	if e.Date.IsZero() {
		e.Date = time.Now().UTC()
	}
	created, err := s.CreateEntry(context.Background(), e)
	if err != nil {
		t.Fatalf("create entry: %v", err)
	}
	return created
}

func balance(t *testing.T, s *InMemory, owner, id string) money.Amount {
	t.Helper()
	acc, err := s.GetAccount(context.Background(), owner, id)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	return acc.Balance
}

func TestCreateDeleteBulkDeleteScenario(t *testing.T) {
	// Account A (Bank, initial 0): +10000, -3000, delete first, bulk
	// delete the rest -> 10000, 7000, -3000, 0.
	s, _ := newTestEngine(t)
	ctx := context.Background()
	a := mustAccount(t, s, "u1", "Main Bank", AccountBank, 0)

	e1 := mustEntry(t, s, Entry{OwnerID: "u1", Direction: MoneyIn, Amount: 10000, AccountID: a.ID})
	if got := balance(t, s, "u1", a.ID); got != 10000 {
		t.Fatalf("after first entry: %d", got)
	}
	e2 := mustEntry(t, s, Entry{OwnerID: "u1", Direction: MoneyOut, Amount: 3000, AccountID: a.ID})
	if got := balance(t, s, "u1", a.ID); got != 7000 {
		t.Fatalf("after second entry: %d", got)
	}
	if err := s.DeleteEntry(ctx, "u1", e1.ID); err != nil {
		t.Fatal(err)
	}
	if got := balance(t, s, "u1", a.ID); got != -3000 {
		t.Fatalf("after delete: %d", got)
	}
	n, err := s.BulkDeleteEntries(ctx, "u1", []string{e2.ID, "no-such-entry"})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("deleted count = %d", n)
	}
	if got := balance(t, s, "u1", a.ID); got != 0 {
		t.Fatalf("after bulk delete: %d", got)
	}
}

func TestInternalTransferSymmetry(t *testing.T) {
	s, _ := newTestEngine(t)
	a := mustAccount(t, s, "u1", "Bank", AccountBank, 10000)
	b := mustAccount(t, s, "u1", "Cash Drawer", AccountCash, 0)

	mustEntry(t, s, Entry{OwnerID: "u1", Direction: MoneyOut, Amount: 5000, AccountID: a.ID, LinkedAccountID: b.ID})
	if got := balance(t, s, "u1", a.ID); got != 5000 {
		t.Fatalf("A = %d", got)
	}
	if got := balance(t, s, "u1", b.ID); got != 5000 {
		t.Fatalf("B = %d", got)
	}
}

func TestExternalSettlementSameDirection(t *testing.T) {
	s, _ := newTestEngine(t)
	a := mustAccount(t, s, "u1", "Bank", AccountBank, 10000)
	c := mustAccount(t, s, "u1", "Sharma & Sons", AccountOther, 0)

	mustEntry(t, s, Entry{OwnerID: "u1", Direction: MoneyOut, Amount: 2000, AccountID: a.ID, LinkedAccountID: c.ID})
	if got := balance(t, s, "u1", a.ID); got != 8000 {
		t.Fatalf("A = %d", got)
	}
	if got := balance(t, s, "u1", c.ID); got != -2000 {
		t.Fatalf("C = %d", got)
	}
}

func TestUpdateEntryRoundTrip(t *testing.T) {
	// Editing an entry back to its original state must leave the balance
	// unchanged.
	s, _ := newTestEngine(t)
	a := mustAccount(t, s, "u1", "Bank", AccountBank, 0)
	e := mustEntry(t, s, Entry{OwnerID: "u1", Direction: MoneyIn, Amount: 4000, AccountID: a.ID})

	changed := e
	changed.Direction = MoneyOut
	changed.Amount = 1500
	if _, err := s.UpdateEntry(context.Background(), changed); err != nil {
		t.Fatal(err)
	}
	if got := balance(t, s, "u1", a.ID); got != -1500 {
		t.Fatalf("after edit: %d", got)
	}

	back := changed
	back.Direction = e.Direction
	back.Amount = e.Amount
	if _, err := s.UpdateEntry(context.Background(), back); err != nil {
		t.Fatal(err)
	}
	if got := balance(t, s, "u1", a.ID); got != 4000 {
		t.Fatalf("after round trip: %d", got)
	}
}

func TestUpdateEntryReassignAccount(t *testing.T) {
	s, _ := newTestEngine(t)
	a := mustAccount(t, s, "u1", "Bank", AccountBank, 0)
	b := mustAccount(t, s, "u1", "Cash", AccountCash, 0)
	e := mustEntry(t, s, Entry{OwnerID: "u1", Direction: MoneyIn, Amount: 2500, AccountID: a.ID})

	moved := e
	moved.AccountID = b.ID
	if _, err := s.UpdateEntry(context.Background(), moved); err != nil {
		t.Fatal(err)
	}
	if got := balance(t, s, "u1", a.ID); got != 0 {
		t.Fatalf("old account = %d", got)
	}
	if got := balance(t, s, "u1", b.ID); got != 2500 {
		t.Fatalf("new account = %d", got)
	}
}

func TestCreateEntryAtomicOnMissingLinked(t *testing.T) {
	// A failing linked-account lookup must leave the entry unsaved and
	// the primary balance untouched.
	s, _ := newTestEngine(t)
	a := mustAccount(t, s, "u1", "Bank", AccountBank, 0)

	_, err := s.CreateEntry(context.Background(), Entry{
		OwnerID:         "u1",
		Direction:       MoneyOut,
		Amount:          5000,
		Category:        "Transfer",
		Description:     "to missing account",
		Date:            time.Now().UTC(),
		AccountID:       a.ID,
		LinkedAccountID: "missing",
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if got := balance(t, s, "u1", a.ID); got != 0 {
		t.Fatalf("primary balance moved: %d", got)
	}
	entries, _ := s.ListEntries(context.Background(), "u1", "")
	if len(entries) != 0 {
		t.Fatalf("entry persisted: %d", len(entries))
	}
}

func TestOwnershipIsolation(t *testing.T) {
	s, _ := newTestEngine(t)
	a := mustAccount(t, s, "u1", "Bank", AccountBank, 0)
	e := mustEntry(t, s, Entry{OwnerID: "u1", Direction: MoneyIn, Amount: 100, AccountID: a.ID})

	if _, err := s.GetAccount(context.Background(), "u2", a.ID); err != ErrNotFound {
		t.Fatalf("foreign account read: %v", err)
	}
	if err := s.DeleteEntry(context.Background(), "u2", e.ID); err != ErrNotFound {
		t.Fatalf("foreign entry delete: %v", err)
	}
	// An entry cannot target someone else's account.
	_, err := s.CreateEntry(context.Background(), Entry{
		OwnerID: "u2", Direction: MoneyIn, Amount: 100,
		Category: "x", Description: "x", Date: time.Now(), AccountID: a.ID,
	})
	if err == nil {
		t.Fatal("cross-owner entry accepted")
	}
}

func TestEntryValidation(t *testing.T) {
	s, _ := newTestEngine(t)
	ctx := context.Background()
	base := Entry{OwnerID: "u1", Direction: MoneyIn, Amount: 100, Category: "c", Description: "d", Date: time.Now()}

	bad := base
	bad.Amount = 0
	if _, err := s.CreateEntry(ctx, bad); err == nil {
		t.Fatal("zero amount accepted")
	}
	bad = base
	bad.Direction = "sideways"
	if _, err := s.CreateEntry(ctx, bad); err == nil {
		t.Fatal("unknown direction accepted")
	}
	bad = base
	bad.Category = " "
	if _, err := s.CreateEntry(ctx, bad); err == nil {
		t.Fatal("blank category accepted")
	}
}

func TestVirtualEntryNoAccountIsNoop(t *testing.T) {
	s, _ := newTestEngine(t)
	a := mustAccount(t, s, "u1", "Bank", AccountBank, 500)
	mustEntry(t, s, Entry{OwnerID: "u1", Direction: MoneyOut, Amount: 300, Description: "street vendor"})
	if got := balance(t, s, "u1", a.ID); got != 500 {
		t.Fatalf("unattached entry moved a balance: %d", got)
	}
}

func TestCashCheckStatusAndSubmit(t *testing.T) {
	// totalIn=500, totalOut=200, expected=1300 -> opening=1000;
	// actual=1250 -> short 50; autoAdjust brings the balance to 1250.
	s, rec := newTestEngine(t)
	ctx := context.Background()
	a := mustAccount(t, s, "u1", "Drawer", AccountCash, 1000)
	today := time.Now().UTC()

	mustEntry(t, s, Entry{OwnerID: "u1", Direction: MoneyIn, Amount: 500, AccountID: a.ID, Date: today})
	mustEntry(t, s, Entry{OwnerID: "u1", Direction: MoneyOut, Amount: 200, AccountID: a.ID, Date: today})

	snap, err := s.CashCheckStatus(ctx, "u1", a.ID, today)
	if err != nil {
		t.Fatal(err)
	}
	if snap.TotalIn != 500 || snap.TotalOut != 200 {
		t.Fatalf("totals = %d/%d", snap.TotalIn, snap.TotalOut)
	}
	if snap.ExpectedBalance != 1300 {
		t.Fatalf("expected = %d", snap.ExpectedBalance)
	}
	if snap.OpeningBalance != 1000 {
		t.Fatalf("opening = %d", snap.OpeningBalance)
	}
	if snap.AlreadyChecked {
		t.Fatal("no check submitted yet")
	}

	check, err := s.SubmitCashCheck(ctx, CheckRequest{
		OwnerID:       "u1",
		AccountID:     a.ID,
		Day:           today,
		ActualBalance: 1250,
		Reason:        "evening count",
		AutoAdjust:    true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if check.Status != CheckShort || check.Difference != -50 {
		t.Fatalf("check = %+v", check)
	}
	if check.AdjustmentEntryID == "" {
		t.Fatal("adjustment entry missing")
	}
	if got := balance(t, s, "u1", a.ID); got != 1250 {
		t.Fatalf("post-adjust balance = %d", got)
	}
	adj, err := s.GetEntry(ctx, "u1", check.AdjustmentEntryID)
	if err != nil {
		t.Fatal(err)
	}
	if adj.Category != AdjustmentCategory || adj.Direction != MoneyOut || adj.Amount != 50 {
		t.Fatalf("adjustment = %+v", adj)
	}

	snap, _ = s.CashCheckStatus(ctx, "u1", a.ID, today)
	if !snap.AlreadyChecked {
		t.Fatal("alreadyChecked not reported")
	}

	var found bool
	for _, ev := range rec.Events() {
		if ev.Action == "cash_check.submitted" && ev.LedgerID == a.ID {
			found = true
		}
	}
	if !found {
		t.Fatal("activity event not recorded")
	}
}

func TestCashCheckMatchedNoAdjustment(t *testing.T) {
	s, _ := newTestEngine(t)
	a := mustAccount(t, s, "u1", "Drawer", AccountCash, 800)
	check, err := s.SubmitCashCheck(context.Background(), CheckRequest{
		OwnerID: "u1", AccountID: a.ID, Day: time.Now().UTC(),
		ActualBalance: 800, AutoAdjust: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if check.Status != CheckMatched || check.AdjustmentEntryID != "" {
		t.Fatalf("check = %+v", check)
	}
	if got := balance(t, s, "u1", a.ID); got != 800 {
		t.Fatalf("balance moved on matched check: %d", got)
	}
}

func TestCashCheckHistoricalDay(t *testing.T) {
	// Entries dated after the requested day must be peeled off the live
	// balance when reconstructing the end-of-day expected balance.
	s, _ := newTestEngine(t)
	a := mustAccount(t, s, "u1", "Drawer", AccountCash, 0)
	yesterday := time.Now().UTC().AddDate(0, 0, -1)
	today := time.Now().UTC()

	mustEntry(t, s, Entry{OwnerID: "u1", Direction: MoneyIn, Amount: 1000, AccountID: a.ID, Date: yesterday})
	mustEntry(t, s, Entry{OwnerID: "u1", Direction: MoneyOut, Amount: 400, AccountID: a.ID, Date: today})

	snap, err := s.CashCheckStatus(context.Background(), "u1", a.ID, yesterday)
	if err != nil {
		t.Fatal(err)
	}
	if snap.ExpectedBalance != 1000 {
		t.Fatalf("historical expected = %d", snap.ExpectedBalance)
	}
	if snap.OpeningBalance != 0 {
		t.Fatalf("historical opening = %d", snap.OpeningBalance)
	}
}

func TestRecomputeAndRepairIdempotent(t *testing.T) {
	s, _ := newTestEngine(t)
	ctx := context.Background()
	a := mustAccount(t, s, "u1", "Bank", AccountBank, 1000)
	mustEntry(t, s, Entry{OwnerID: "u1", Direction: MoneyIn, Amount: 250, AccountID: a.ID})

	// Simulate drift the way it happens in the wild: a balance written
	// outside the propagation path.
	s.mu.Lock()
	s.accounts[a.ID].Balance = 9999
	s.mu.Unlock()

	res, err := s.RecomputeAndRepair(ctx, "u1", a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Before != 9999 || res.After != 1250 || res.Drift != 9999-1250 {
		t.Fatalf("repair = %+v", res)
	}
	if got := balance(t, s, "u1", a.ID); got != 1250 {
		t.Fatalf("post-repair balance = %d", got)
	}

	again, err := s.RecomputeAndRepair(ctx, "u1", a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if again.Drift != 0 {
		t.Fatalf("second run drift = %d", again.Drift)
	}
}

func TestBalanceInvariantAfterMixedOperations(t *testing.T) {
	s, _ := newTestEngine(t)
	ctx := context.Background()
	a := mustAccount(t, s, "u1", "Bank", AccountBank, 2000)
	b := mustAccount(t, s, "u1", "Cash", AccountCash, 0)
	c := mustAccount(t, s, "u1", "Customer", AccountOther, 0)

	e1 := mustEntry(t, s, Entry{OwnerID: "u1", Direction: MoneyIn, Amount: 700, AccountID: a.ID})
	mustEntry(t, s, Entry{OwnerID: "u1", Direction: MoneyOut, Amount: 300, AccountID: a.ID, LinkedAccountID: b.ID})
	mustEntry(t, s, Entry{OwnerID: "u1", Direction: MoneyOut, Amount: 150, AccountID: b.ID, LinkedAccountID: c.ID})

	upd := e1
	upd.Amount = 900
	if _, err := s.UpdateEntry(ctx, upd); err != nil {
		t.Fatal(err)
	}

	for _, id := range []string{a.ID, b.ID, c.ID} {
		truth, err := s.Recompute(ctx, "u1", id)
		if err != nil {
			t.Fatal(err)
		}
		if got := balance(t, s, "u1", id); got != truth {
			t.Fatalf("invariant broken for %s: stored=%d recomputed=%d", id, got, truth)
		}
	}
}

func TestDeleteAccountBlockedWhileReferenced(t *testing.T) {
	s, _ := newTestEngine(t)
	ctx := context.Background()
	a := mustAccount(t, s, "u1", "Bank", AccountBank, 0)
	e := mustEntry(t, s, Entry{OwnerID: "u1", Direction: MoneyIn, Amount: 100, AccountID: a.ID})

	if err := s.DeleteAccount(ctx, "u1", a.ID); err != ErrAccountInUse {
		t.Fatalf("expected ErrAccountInUse, got %v", err)
	}
	if err := s.DeleteEntry(ctx, "u1", e.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteAccount(ctx, "u1", a.ID); err != nil {
		t.Fatalf("delete after unlink: %v", err)
	}
}
