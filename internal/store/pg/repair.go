package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"lekha.app/internal/audit"
	"lekha.app/internal/ledger"
	"lekha.app/internal/money"
)

// Recompute derives the ground-truth balance without touching storage.
func (s *Store) Recompute(ctx context.Context, ownerID, accountID string) (money.Amount, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+accountColumns+` from accounts where id=$1 and owner_id=$2`, accountID, ownerID)
	acc, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ledger.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	types, err := ownerAccountTypes(ctx, s.db, ownerID)
	if err != nil {
		return 0, err
	}
	entries, err := ownerEntries(ctx, s.db, ownerID)
	if err != nil {
		return 0, err
	}
	return ledger.RecomputeBalance(acc, entries, resolverFromTypes(types)), nil
}

// RecomputeAndRepair overwrites the stored balance with the recomputed
// ground truth when drift is detected. The account row stays locked for
// the whole recomputation so concurrent entry writes cannot interleave.
func (s *Store) RecomputeAndRepair(ctx context.Context, ownerID, accountID string) (ledger.RepairResult, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return ledger.RepairResult{}, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`select `+accountColumns+` from accounts where id=$1 and owner_id=$2 for update`,
		accountID, ownerID)
	acc, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.RepairResult{}, ledger.ErrNotFound
	}
	if err != nil {
		return ledger.RepairResult{}, abort(err)
	}
	types, err := ownerAccountTypes(ctx, tx, ownerID)
	if err != nil {
		return ledger.RepairResult{}, abort(err)
	}
	entries, err := ownerEntries(ctx, tx, ownerID)
	if err != nil {
		return ledger.RepairResult{}, abort(err)
	}

	truth := ledger.RecomputeBalance(acc, entries, resolverFromTypes(types))
	res := ledger.RepairResult{
		AccountID: accountID,
		Before:    acc.Balance,
		After:     truth,
		Drift:     acc.Balance - truth,
	}
	if res.Drift != 0 {
		if _, err := tx.ExecContext(ctx, `
			update accounts set balance=$3, updated_at=now() where id=$1 and owner_id=$2
		`, accountID, ownerID, truth); err != nil {
			return ledger.RepairResult{}, abort(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return ledger.RepairResult{}, err
	}

	if res.Drift != 0 {
		_ = s.Record(ctx, audit.Event{
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
