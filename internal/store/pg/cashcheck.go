package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"lekha.app/internal/audit"
	"lekha.app/internal/ids"
	"lekha.app/internal/ledger"
	"lekha.app/internal/money"
)

const dayFormat = "2006-01-02"

// querier lets snapshot computation run either on the pool or inside a
// transaction.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func ownerAccountTypes(ctx context.Context, q querier, ownerID string) (map[string]ledger.AccountType, error) {
	rows, err := q.QueryContext(ctx,
		`select id, type from accounts where owner_id=$1`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	types := make(map[string]ledger.AccountType)
	for rows.Next() {
		var id string
		var t ledger.AccountType
		if err := rows.Scan(&id, &t); err != nil {
			return nil, err
		}
		types[id] = t
	}
	return types, rows.Err()
}

func ownerEntries(ctx context.Context, q querier, ownerID string) ([]ledger.Entry, error) {
	rows, err := q.QueryContext(ctx,
		`select `+entryColumns+` from entries where owner_id=$1 order by date, id`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func resolverFromTypes(types map[string]ledger.AccountType) ledger.TypeResolver {
	return func(accountID string) (ledger.AccountType, bool) {
		t, ok := types[accountID]
		return t, ok
	}
}

// snapshot reconstructs the end-of-day state for one account. Entries
// dated after the window distort a historical check, so their effect is
// peeled off the live balance.
func (s *Store) snapshot(ctx context.Context, q querier, ownerID, accountID string, day time.Time) (ledger.CheckSnapshot, error) {
	row := q.QueryRowContext(ctx,
		`select `+accountColumns+` from accounts where id=$1 and owner_id=$2`, accountID, ownerID)
	acc, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.CheckSnapshot{}, ledger.ErrNotFound
	}
	if err != nil {
		return ledger.CheckSnapshot{}, err
	}
	types, err := ownerAccountTypes(ctx, q, ownerID)
	if err != nil {
		return ledger.CheckSnapshot{}, err
	}
	entries, err := ownerEntries(ctx, q, ownerID)
	if err != nil {
		return ledger.CheckSnapshot{}, err
	}

	start, end := ledger.DayWindow(day)
	typeOf := resolverFromTypes(types)
	var windowed []ledger.Entry
	laterEffect := money.Amount(0)
	for _, e := range entries {
		touches := e.AccountID == accountID || e.LinkedAccountID == accountID
		if touches && ledger.InWindow(e.Date, start, end) {
			windowed = append(windowed, e)
		}
		if e.Date.After(end) {
			if eff, ok := ledger.EffectOn(e, acc, typeOf); ok {
				laterEffect += eff
			}
		}
	}

	totalIn, totalOut := ledger.DayTotals(windowed, accountID)
	expected := acc.Balance - laterEffect

	var checked bool
	err = q.QueryRowContext(ctx,
		`select exists(select 1 from cash_checks where account_id=$1 and day=$2)`,
		accountID, start.Format(dayFormat)).Scan(&checked)
	if err != nil {
		return ledger.CheckSnapshot{}, err
	}

	return ledger.CheckSnapshot{
		AccountID:       accountID,
		Day:             start,
		OpeningBalance:  expected - (totalIn - totalOut),
		TotalIn:         totalIn,
		TotalOut:        totalOut,
		ExpectedBalance: expected,
		AlreadyChecked:  checked,
	}, nil
}

func (s *Store) CashCheckStatus(ctx context.Context, ownerID, accountID string, day time.Time) (ledger.CheckSnapshot, error) {
	return s.snapshot(ctx, s.db, ownerID, accountID, day)
}

// SubmitCashCheck records the count and, when requested, writes the
// correcting entry in the same transaction so the balance and the check
// land together or not at all.
func (s *Store) SubmitCashCheck(ctx context.Context, req ledger.CheckRequest) (ledger.CashCheck, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return ledger.CashCheck{}, err
	}
	defer func() { _ = tx.Rollback() }()

	types, err := lockAccountTypes(ctx, tx, req.OwnerID, req.AccountID)
	if err != nil {
		return ledger.CashCheck{}, abort(err)
	}
	snap, err := s.snapshot(ctx, tx, req.OwnerID, req.AccountID, req.Day)
	if err != nil {
		return ledger.CashCheck{}, abort(err)
	}

	diff := req.ActualBalance - snap.ExpectedBalance
	now := time.Now().UTC()
	check := ledger.CashCheck{
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
		Status:          ledger.ClassifyDifference(diff),
		Reason:          req.Reason,
		Note:            req.Note,
		CreatedAt:       now,
	}

	if req.AutoAdjust && diff != 0 {
		adj := ledger.AdjustmentFor(req.OwnerID, req.AccountID, diff, snap.Day, req.Note)
		if err := adj.Validate(); err != nil {
			return ledger.CashCheck{}, fmt.Errorf("%w: %v", ledger.ErrTxAborted, err)
		}
		if err := shiftBalances(ctx, tx, adj, types, +1); err != nil {
			return ledger.CashCheck{}, abort(err)
		}
		adj.ID = ids.New()
		adj.CreatedAt = now
		adj.UpdatedAt = now
		if err := insertEntry(ctx, tx, adj); err != nil {
			return ledger.CashCheck{}, abort(err)
		}
		check.AdjustmentEntryID = adj.ID
	}

	if _, err := tx.ExecContext(ctx, `
		insert into cash_checks(id, owner_id, account_id, day, opening_balance, total_in, total_out,
			expected_balance, actual_balance, difference, status, reason, note, adjustment_entry_id, created_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,nullif($14,''),$15)
	`, check.ID, check.OwnerID, check.AccountID, check.Day.Format(dayFormat),
		check.OpeningBalance, check.TotalIn, check.TotalOut,
		check.ExpectedBalance, check.ActualBalance, check.Difference,
		check.Status, check.Reason, check.Note, check.AdjustmentEntryID, check.CreatedAt); err != nil {
		return ledger.CashCheck{}, abort(err)
	}
	if err := tx.Commit(); err != nil {
		return ledger.CashCheck{}, err
	}

	_ = s.Record(ctx, audit.Event{
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
