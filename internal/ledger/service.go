package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"lekha.app/internal/audit"
	"lekha.app/internal/ids"
	"lekha.app/internal/money"
)

// Service defines the ledger balance engine. Every mutation that touches
// more than one stored record executes as a single all-or-nothing unit of
// work: an aborted operation leaves no observable partial state.
type Service interface {
	CreateAccount(ctx context.Context, acc Account) (Account, error)
	GetAccount(ctx context.Context, ownerID, id string) (Account, error)
	ListAccounts(ctx context.Context, ownerID string) ([]Account, error)
	DeleteAccount(ctx context.Context, ownerID, id string) error

	CreateEntry(ctx context.Context, e Entry) (Entry, error)
	GetEntry(ctx context.Context, ownerID, id string) (Entry, error)
	ListEntries(ctx context.Context, ownerID, accountID string) ([]Entry, error)
	UpdateEntry(ctx context.Context, e Entry) (Entry, error)
	DeleteEntry(ctx context.Context, ownerID, id string) error
	BulkDeleteEntries(ctx context.Context, ownerID string, entryIDs []string) (int, error)

	CashCheckStatus(ctx context.Context, ownerID, accountID string, day time.Time) (CheckSnapshot, error)
	SubmitCashCheck(ctx context.Context, req CheckRequest) (CashCheck, error)

	Recompute(ctx context.Context, ownerID, accountID string) (money.Amount, error)
	RecomputeAndRepair(ctx context.Context, ownerID, accountID string) (RepairResult, error)
}

// InMemory implements Service with in-process concurrency safety. It
// carries the complete engine semantics and backs the development mode
// and the test suite; the pg store mirrors it against PostgreSQL.
type InMemory struct {
	mu       sync.RWMutex
	accounts map[string]*Account
	entries  map[string]*Entry
	checks   map[string]*CashCheck // key: accountID + "@" + dayKey
	recorder audit.Recorder
}

var _ Service = (*InMemory)(nil)

// NewInMemory creates an empty engine. recorder may be nil.
func NewInMemory(recorder audit.Recorder) *InMemory {
	return &InMemory{
		accounts: make(map[string]*Account),
		entries:  make(map[string]*Entry),
		checks:   make(map[string]*CashCheck),
		recorder: recorder,
	}
}

func checkKey(accountID string, day time.Time) string {
	return accountID + "@" + day.Format("2006-01-02")
}

func (s *InMemory) record(ctx context.Context, ev audit.Event) {
	if s.recorder == nil {
		return
	}
	_ = s.recorder.Record(ctx, ev)
}

// --- accounts ---

func (s *InMemory) CreateAccount(ctx context.Context, acc Account) (Account, error) {
	if err := acc.Validate(); err != nil {
		return Account{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if acc.LinkedAccountID != "" {
		linked, ok := s.accounts[acc.LinkedAccountID]
		if !ok || linked.OwnerID != acc.OwnerID {
			return Account{}, fmt.Errorf("%w: linked account", ErrNotFound)
		}
	}
	now := time.Now().UTC()
	acc.ID = ids.New()
	acc.Balance = acc.InitialBalance
	acc.CreatedAt = now
	acc.UpdatedAt = now
	stored := acc
	s.accounts[acc.ID] = &stored
	return acc, nil
}

func (s *InMemory) GetAccount(ctx context.Context, ownerID, id string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accounts[id]
	if !ok || acc.OwnerID != ownerID {
		return Account{}, ErrNotFound
	}
	return *acc, nil
}

func (s *InMemory) ListAccounts(ctx context.Context, ownerID string) ([]Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Account
	for _, acc := range s.accounts {
		if acc.OwnerID == ownerID {
			out = append(out, *acc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// DeleteAccount removes an account once nothing references it. Entries
// pointing at the account as primary or linked side block deletion.
func (s *InMemory) DeleteAccount(ctx context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[id]
	if !ok || acc.OwnerID != ownerID {
		return ErrNotFound
	}
	for _, e := range s.entries {
		if e.AccountID == id || e.LinkedAccountID == id {
			return ErrAccountInUse
		}
	}
	for _, other := range s.accounts {
		if other.LinkedAccountID == id {
			other.LinkedAccountID = ""
		}
	}
	delete(s.accounts, id)
	return nil
}

// AccountOwner resolves the owning user of an account regardless of the
// caller. The permission gate uses it to detect the implicit owner role.
func (s *InMemory) AccountOwner(ctx context.Context, id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accounts[id]
	if !ok {
		return "", ErrNotFound
	}
	return acc.OwnerID, nil
}

// --- balance propagation ---

// applyImpact moves the entry's balance impact onto its account(s).
// dir is +1 to apply, -1 to revert. Both account updates happen under
// the same lock; validation precedes any mutation so a failure leaves
// every balance untouched.
func (s *InMemory) applyImpact(e Entry, dir money.Amount) error {
	if e.AccountID == "" {
		return nil // virtual/unattached entry
	}
	primary, ok := s.accounts[e.AccountID]
	if !ok || primary.OwnerID != e.OwnerID {
		return fmt.Errorf("%w: account %s", ErrNotFound, e.AccountID)
	}
	var linked *Account
	if e.LinkedAccountID != "" {
		linked, ok = s.accounts[e.LinkedAccountID]
		if !ok || linked.OwnerID != e.OwnerID {
			return fmt.Errorf("%w: linked account %s", ErrNotFound, e.LinkedAccountID)
		}
	}
	now := time.Now().UTC()
	primary.Balance += e.BalanceImpact * dir
	primary.UpdatedAt = now
	if linked != nil {
		linked.Balance += LinkedImpact(e.BalanceImpact, primary.Type, linked.Type) * dir
		linked.UpdatedAt = now
	}
	return nil
}

// validateImpactTargets checks the accounts an entry touches without
// mutating them, so revert-then-reapply sequences can be guaranteed to
// complete once started.
func (s *InMemory) validateImpactTargets(e Entry) error {
	if e.AccountID == "" {
		return nil
	}
	primary, ok := s.accounts[e.AccountID]
	if !ok || primary.OwnerID != e.OwnerID {
		return fmt.Errorf("%w: account %s", ErrNotFound, e.AccountID)
	}
	if e.LinkedAccountID != "" {
		linked, ok := s.accounts[e.LinkedAccountID]
		if !ok || linked.OwnerID != e.OwnerID {
			return fmt.Errorf("%w: linked account %s", ErrNotFound, e.LinkedAccountID)
		}
	}
	return nil
}

// --- entries ---

func (s *InMemory) CreateEntry(ctx context.Context, e Entry) (Entry, error) {
	e.RecomputeImpact()
	if err := e.Validate(); err != nil {
		return Entry{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.applyImpact(e, +1); err != nil {
		return Entry{}, err
	}
	now := time.Now().UTC()
	e.ID = ids.New()
	e.CreatedAt = now
	e.UpdatedAt = now
	stored := e
	s.entries[e.ID] = &stored
	return e, nil
}

func (s *InMemory) GetEntry(ctx context.Context, ownerID, id string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok || e.OwnerID != ownerID {
		return Entry{}, ErrNotFound
	}
	return *e, nil
}

func (s *InMemory) ListEntries(ctx context.Context, ownerID, accountID string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Entry
	for _, e := range s.entries {
		if e.OwnerID != ownerID {
			continue
		}
		if accountID != "" && e.AccountID != accountID && e.LinkedAccountID != accountID {
			continue
		}
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// UpdateEntry replaces an entry with its new state. The old impact is
// fully reverted before the new impact is applied; both run inside the
// same critical section as the entry swap, so no intermediate state is
// ever observable.
func (s *InMemory) UpdateEntry(ctx context.Context, e Entry) (Entry, error) {
	e.RecomputeImpact()
	if err := e.Validate(); err != nil {
		return Entry{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.entries[e.ID]
	if !ok || old.OwnerID != e.OwnerID {
		return Entry{}, ErrNotFound
	}
	// Check both sides up front: once the revert lands the reapply must
	// not be able to fail.
	if err := s.validateImpactTargets(*old); err != nil {
		return Entry{}, err
	}
	if err := s.validateImpactTargets(e); err != nil {
		return Entry{}, err
	}
	if err := s.applyImpact(*old, -1); err != nil {
		return Entry{}, fmt.Errorf("%w: revert failed: %v", ErrTxAborted, err)
	}
	if err := s.applyImpact(e, +1); err != nil {
		return Entry{}, fmt.Errorf("%w: reapply failed: %v", ErrTxAborted, err)
	}
	e.CreatedAt = old.CreatedAt
	e.UpdatedAt = time.Now().UTC()
	stored := e
	s.entries[e.ID] = &stored
	return e, nil
}

func (s *InMemory) DeleteEntry(ctx context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok || e.OwnerID != ownerID {
		return ErrNotFound
	}
	if err := s.applyImpact(*e, -1); err != nil {
		return err
	}
	delete(s.entries, id)
	return nil
}

// BulkDeleteEntries reverts and removes every matched entry as one batch.
// All targets are validated before any balance moves, so a bad entry in
// the batch aborts the whole operation with nothing applied.
func (s *InMemory) BulkDeleteEntries(ctx context.Context, ownerID string, entryIDs []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*Entry
	for _, id := range entryIDs {
		e, ok := s.entries[id]
		if !ok || e.OwnerID != ownerID {
			continue
		}
		matched = append(matched, e)
	}
	for _, e := range matched {
		if err := s.validateImpactTargets(*e); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrTxAborted, err)
		}
	}
	for _, e := range matched {
		if err := s.applyImpact(*e, -1); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrTxAborted, err)
		}
	}
	for _, e := range matched {
		delete(s.entries, e.ID)
	}
	return len(matched), nil
}

// --- reconciliation ---

func (s *InMemory) CashCheckStatus(ctx context.Context, ownerID, accountID string, day time.Time) (CheckSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked(ownerID, accountID, day)
}

func (s *InMemory) snapshotLocked(ownerID, accountID string, day time.Time) (CheckSnapshot, error) {
	acc, ok := s.accounts[accountID]
	if !ok || acc.OwnerID != ownerID {
		return CheckSnapshot{}, ErrNotFound
	}
	start, end := DayWindow(day)

	var windowed []Entry
	laterEffect := money.Amount(0)
	typeOf := s.typeResolverLocked()
	for _, e := range s.entries {
		if e.OwnerID != ownerID {
			continue
		}
		touches := e.AccountID == accountID || e.LinkedAccountID == accountID
		if touches && InWindow(e.Date, start, end) {
			windowed = append(windowed, *e)
		}
		// Entries dated after the window distort a historical check; peel
		// their effect off the live balance to reconstruct end-of-day state.
		if e.Date.After(end) {
			if eff, okEff := EffectOn(*e, *acc, typeOf); okEff {
				laterEffect += eff
			}
		}
	}

	totalIn, totalOut := DayTotals(windowed, accountID)
	expected := acc.Balance - laterEffect
	_, checked := s.checks[checkKey(accountID, start)]

	return CheckSnapshot{
		AccountID:       accountID,
		Day:             start,
		OpeningBalance:  expected - (totalIn - totalOut),
		TotalIn:         totalIn,
		TotalOut:        totalOut,
		ExpectedBalance: expected,
		AlreadyChecked:  checked,
	}, nil
}

func (s *InMemory) SubmitCashCheck(ctx context.Context, req CheckRequest) (CashCheck, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.snapshotLocked(req.OwnerID, req.AccountID, req.Day)
	if err != nil {
		return CashCheck{}, err
	}
	diff := req.ActualBalance - snap.ExpectedBalance
	now := time.Now().UTC()
	check := CashCheck{
		ID:              ids.New(),
		OwnerID:         req.OwnerID,
		AccountID:       req.AccountID,
		Day:             snap.Day,
		OpeningBalance:  snap.OpeningBalance,
		TotalIn:         snap.TotalIn,
		TotalOut:        snap.TotalOut,
		ExpectedBalance: snap.ExpectedBalance,
		ActualBalance:   req.ActualBalance,
		Difference:      diff,
		Status:          ClassifyDifference(diff),
		Reason:          req.Reason,
		Note:            req.Note,
		CreatedAt:       now,
	}

	if req.AutoAdjust && diff != 0 {
		adj := AdjustmentFor(req.OwnerID, req.AccountID, diff, snap.Day, req.Note)
		if err := adj.Validate(); err != nil {
			return CashCheck{}, fmt.Errorf("%w: %v", ErrTxAborted, err)
		}
		if err := s.applyImpact(adj, +1); err != nil {
			return CashCheck{}, fmt.Errorf("%w: %v", ErrTxAborted, err)
		}
		adj.ID = ids.New()
		adj.CreatedAt = now
		adj.UpdatedAt = now
		stored := adj
		s.entries[adj.ID] = &stored
		check.AdjustmentEntryID = adj.ID
	}

	storedCheck := check
	s.checks[checkKey(req.AccountID, snap.Day)] = &storedCheck

	s.record(ctx, audit.Event{
		LedgerID: req.AccountID,
		UserID:   req.OwnerID,
		Action:   "cash_check.submitted",
		Details: map[string]any{
			"status":     string(check.Status),
			"difference": int64(check.Difference),
			"adjusted":   check.AdjustmentEntryID != "",
		},
		CreatedAt: now,
	})
	return check, nil
}

// --- consistency auditor ---

func (s *InMemory) typeResolverLocked() TypeResolver {
	return func(accountID string) (AccountType, bool) {
		acc, ok := s.accounts[accountID]
		if !ok {
			return "", false
		}
		return acc.Type, true
	}
}

func (s *InMemory) Recompute(ctx context.Context, ownerID, accountID string) (money.Amount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accounts[accountID]
	if !ok || acc.OwnerID != ownerID {
		return 0, ErrNotFound
	}
	var entries []Entry
	for _, e := range s.entries {
		if e.OwnerID == ownerID {
			entries = append(entries, *e)
		}
	}
	return RecomputeBalance(*acc, entries, s.typeResolverLocked()), nil
}

// RecomputeAndRepair overwrites the stored balance with the recomputed
// ground truth when drift is detected. Idempotent: a second run reports
// zero drift and changes nothing.
func (s *InMemory) RecomputeAndRepair(ctx context.Context, ownerID, accountID string) (RepairResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[accountID]
	if !ok || acc.OwnerID != ownerID {
		return RepairResult{}, ErrNotFound
	}
	var entries []Entry
	for _, e := range s.entries {
		if e.OwnerID == ownerID {
			entries = append(entries, *e)
		}
	}
	truth := RecomputeBalance(*acc, entries, s.typeResolverLocked())
	res := RepairResult{
		AccountID: accountID,
		Before:    acc.Balance,
		After:     truth,
		Drift:     acc.Balance - truth,
	}
	if res.Drift != 0 {
		acc.Balance = truth
		acc.UpdatedAt = time.Now().UTC()
		s.record(ctx, audit.Event{
			LedgerID: accountID,
			UserID:   ownerID,
			Action:   "balance.repaired",
			Details: map[string]any{
				"before": int64(res.Before),
				"after":  int64(res.After),
				"drift":  int64(res.Drift),
			},
			CreatedAt: time.Now().UTC(),
		})
	}
	return res, nil
}
