package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"lekha.app/internal/ids"
	"lekha.app/internal/ledger"
)

const entryColumns = `id, owner_id, direction, amount, category, description, date,
	coalesce(account_id,''), coalesce(linked_account_id,''), balance_impact, created_at, updated_at`

func scanEntry(row interface{ Scan(...any) error }) (ledger.Entry, error) {
	var e ledger.Entry
	err := row.Scan(&e.ID, &e.OwnerID, &e.Direction, &e.Amount, &e.Category, &e.Description,
		&e.Date, &e.AccountID, &e.LinkedAccountID, &e.BalanceImpact, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

// lockAccountTypes takes FOR UPDATE locks on the given accounts in
// sorted id order and returns their types. Sorted order keeps two
// concurrent writers touching the same pair from deadlocking.
func lockAccountTypes(ctx context.Context, tx *sql.Tx, ownerID string, accountIDs ...string) (map[string]ledger.AccountType, error) {
	seen := make(map[string]bool, len(accountIDs))
	var order []string
	for _, id := range accountIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		order = append(order, id)
	}
	sort.Strings(order)

	types := make(map[string]ledger.AccountType, len(order))
	for _, id := range order {
		var t ledger.AccountType
		err := tx.QueryRowContext(ctx,
			`select type from accounts where id=$1 and owner_id=$2 for update`,
			id, ownerID).Scan(&t)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: account %s", ledger.ErrNotFound, id)
		}
		if err != nil {
			return nil, err
		}
		types[id] = t
	}
	return types, nil
}

// shiftBalances moves an entry's impact onto its locked account(s).
// sign is +1 to apply, -1 to revert. Callers must hold the row locks
// via lockAccountTypes first.
func shiftBalances(ctx context.Context, tx *sql.Tx, e ledger.Entry, types map[string]ledger.AccountType, sign int64) error {
	if e.AccountID == "" {
		return nil // virtual/unattached entry
	}
	apply := func(accountID string, delta int64) error {
		res, err := tx.ExecContext(ctx, `
			update accounts set balance = balance + $3, updated_at = now()
			where id=$1 and owner_id=$2
		`, accountID, e.OwnerID, delta)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n != 1 {
			return fmt.Errorf("%w: account %s", ledger.ErrNotFound, accountID)
		}
		return nil
	}
	if err := apply(e.AccountID, int64(e.BalanceImpact)*sign); err != nil {
		return err
	}
	if e.LinkedAccountID != "" {
		linked := ledger.LinkedImpact(e.BalanceImpact, types[e.AccountID], types[e.LinkedAccountID])
		if err := apply(e.LinkedAccountID, int64(linked)*sign); err != nil {
			return err
		}
	}
	return nil
}

func insertEntry(ctx context.Context, tx *sql.Tx, e ledger.Entry) error {
	_, err := tx.ExecContext(ctx, `
		insert into entries(id, owner_id, direction, amount, category, description, date,
			account_id, linked_account_id, balance_impact, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,nullif($8,''),nullif($9,''),$10,$11,$12)
	`, e.ID, e.OwnerID, e.Direction, e.Amount, e.Category, e.Description, e.Date,
		e.AccountID, e.LinkedAccountID, e.BalanceImpact, e.CreatedAt, e.UpdatedAt)
	return err
}

func (s *Store) CreateEntry(ctx context.Context, e ledger.Entry) (ledger.Entry, error) {
	e.RecomputeImpact()
	if err := e.Validate(); err != nil {
		return ledger.Entry{}, err
	}
	tx, err := s.begin(ctx)
	if err != nil {
		return ledger.Entry{}, err
	}
	defer func() { _ = tx.Rollback() }()

	types, err := lockAccountTypes(ctx, tx, e.OwnerID, e.AccountID, e.LinkedAccountID)
	if err != nil {
		return ledger.Entry{}, abort(err)
	}
	if err := shiftBalances(ctx, tx, e, types, +1); err != nil {
		return ledger.Entry{}, abort(err)
	}
	now := time.Now().UTC()
	e.ID = ids.New()
	e.CreatedAt = now
	e.UpdatedAt = now
	if err := insertEntry(ctx, tx, e); err != nil {
		return ledger.Entry{}, abort(err)
	}
	if err := tx.Commit(); err != nil {
		return ledger.Entry{}, err
	}
	return e, nil
}

func (s *Store) GetEntry(ctx context.Context, ownerID, id string) (ledger.Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+entryColumns+` from entries where id=$1 and owner_id=$2`, id, ownerID)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Entry{}, ledger.ErrNotFound
	}
	if err != nil {
		return ledger.Entry{}, err
	}
	return e, nil
}

func (s *Store) ListEntries(ctx context.Context, ownerID, accountID string) ([]ledger.Entry, error) {
	query := `select ` + entryColumns + ` from entries where owner_id=$1`
	args := []any{ownerID}
	if accountID != "" {
		query += ` and (account_id=$2 or linked_account_id=$2)`
		args = append(args, accountID)
	}
	query += ` order by date, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
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

// UpdateEntry reverts the stored entry's impact and applies the new one
// in a single transaction. Locks cover the union of old and new
// accounts so the entry can move between accounts atomically.
func (s *Store) UpdateEntry(ctx context.Context, e ledger.Entry) (ledger.Entry, error) {
	e.RecomputeImpact()
	if err := e.Validate(); err != nil {
		return ledger.Entry{}, err
	}
	tx, err := s.begin(ctx)
	if err != nil {
		return ledger.Entry{}, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`select `+entryColumns+` from entries where id=$1 and owner_id=$2 for update`,
		e.ID, e.OwnerID)
	old, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Entry{}, ledger.ErrNotFound
	}
	if err != nil {
		return ledger.Entry{}, abort(err)
	}

	types, err := lockAccountTypes(ctx, tx, e.OwnerID,
		old.AccountID, old.LinkedAccountID, e.AccountID, e.LinkedAccountID)
	if err != nil {
		return ledger.Entry{}, abort(err)
	}
	if err := shiftBalances(ctx, tx, old, types, -1); err != nil {
		return ledger.Entry{}, abort(err)
	}
	if err := shiftBalances(ctx, tx, e, types, +1); err != nil {
		return ledger.Entry{}, abort(err)
	}

	e.CreatedAt = old.CreatedAt
	e.UpdatedAt = time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		update entries set direction=$3, amount=$4, category=$5, description=$6, date=$7,
			account_id=nullif($8,''), linked_account_id=nullif($9,''), balance_impact=$10, updated_at=$11
		where id=$1 and owner_id=$2
	`, e.ID, e.OwnerID, e.Direction, e.Amount, e.Category, e.Description, e.Date,
		e.AccountID, e.LinkedAccountID, e.BalanceImpact, e.UpdatedAt); err != nil {
		return ledger.Entry{}, abort(err)
	}
	if err := tx.Commit(); err != nil {
		return ledger.Entry{}, err
	}
	return e, nil
}

func (s *Store) DeleteEntry(ctx context.Context, ownerID, id string) error {
	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`select `+entryColumns+` from entries where id=$1 and owner_id=$2 for update`, id, ownerID)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.ErrNotFound
	}
	if err != nil {
		return abort(err)
	}

	types, err := lockAccountTypes(ctx, tx, ownerID, e.AccountID, e.LinkedAccountID)
	if err != nil {
		return abort(err)
	}
	if err := shiftBalances(ctx, tx, e, types, -1); err != nil {
		return abort(err)
	}
	if _, err := tx.ExecContext(ctx,
		`delete from entries where id=$1 and owner_id=$2`, id, ownerID); err != nil {
		return abort(err)
	}
	return tx.Commit()
}

// BulkDeleteEntries reverts and removes every matched entry in one
// transaction. Unknown ids are skipped; any failure rolls the whole
// batch back.
func (s *Store) BulkDeleteEntries(ctx context.Context, ownerID string, entryIDs []string) (int, error) {
	if len(entryIDs) == 0 {
		return 0, nil
	}
	tx, err := s.begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	placeholders := make([]string, len(entryIDs))
	args := []any{ownerID}
	for i, id := range entryIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, id)
	}
	rows, err := tx.QueryContext(ctx, `
		select `+entryColumns+` from entries
		where owner_id=$1 and id in (`+strings.Join(placeholders, ",")+`)
		order by id for update
	`, args...)
	if err != nil {
		return 0, abort(err)
	}
	var matched []ledger.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			rows.Close()
			return 0, abort(err)
		}
		matched = append(matched, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, abort(err)
	}
	if len(matched) == 0 {
		return 0, tx.Commit()
	}

	var accountIDs []string
	for _, e := range matched {
		accountIDs = append(accountIDs, e.AccountID, e.LinkedAccountID)
	}
	types, err := lockAccountTypes(ctx, tx, ownerID, accountIDs...)
	if err != nil {
		return 0, abort(err)
	}
	for _, e := range matched {
		if err := shiftBalances(ctx, tx, e, types, -1); err != nil {
			return 0, abort(err)
		}
	}
	if _, err := tx.ExecContext(ctx, `
		delete from entries where owner_id=$1 and id in (`+strings.Join(placeholders, ",")+`)
	`, args...); err != nil {
		return 0, abort(err)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(matched), nil
}
