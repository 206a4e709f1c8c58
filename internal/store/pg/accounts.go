package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"lekha.app/internal/ids"
	"lekha.app/internal/ledger"
)

const accountColumns = `id, owner_id, name, type, balance, initial_balance, credit_limit, coalesce(linked_account_id,''), created_at, updated_at`

func scanAccount(row interface{ Scan(...any) error }) (ledger.Account, error) {
	var a ledger.Account
	err := row.Scan(&a.ID, &a.OwnerID, &a.Name, &a.Type, &a.Balance, &a.InitialBalance,
		&a.CreditLimit, &a.LinkedAccountID, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (s *Store) CreateAccount(ctx context.Context, acc ledger.Account) (ledger.Account, error) {
	if err := acc.Validate(); err != nil {
		return ledger.Account{}, err
	}
	acc.ID = ids.New()
	acc.Balance = acc.InitialBalance
	now := time.Now().UTC()
	acc.CreatedAt = now
	acc.UpdatedAt = now

	tx, err := s.begin(ctx)
	if err != nil {
		return ledger.Account{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if acc.LinkedAccountID != "" {
		var one int
		err := tx.QueryRowContext(ctx,
			`select 1 from accounts where id=$1 and owner_id=$2`,
			acc.LinkedAccountID, acc.OwnerID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.Account{}, ledger.ErrNotFound
		}
		if err != nil {
			return ledger.Account{}, err
		}
	}
	if _, err := tx.ExecContext(ctx, `
		insert into accounts(id, owner_id, name, type, balance, initial_balance, credit_limit, linked_account_id, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,nullif($8,''),$9,$10)
	`, acc.ID, acc.OwnerID, acc.Name, acc.Type, acc.Balance, acc.InitialBalance,
		acc.CreditLimit, acc.LinkedAccountID, acc.CreatedAt, acc.UpdatedAt); err != nil {
		return ledger.Account{}, err
	}
	if err := tx.Commit(); err != nil {
		return ledger.Account{}, err
	}
	return acc, nil
}

func (s *Store) GetAccount(ctx context.Context, ownerID, id string) (ledger.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+accountColumns+` from accounts where id=$1 and owner_id=$2`, id, ownerID)
	acc, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Account{}, ledger.ErrNotFound
	}
	if err != nil {
		return ledger.Account{}, err
	}
	return acc, nil
}

func (s *Store) ListAccounts(ctx context.Context, ownerID string) ([]ledger.Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+accountColumns+` from accounts where owner_id=$1 order by id`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, acc)
	}
	return out, rows.Err()
}

// DeleteAccount removes an account once no entry references it as
// primary or linked side and no access grant remains.
func (s *Store) DeleteAccount(ctx context.Context, ownerID, id string) error {
	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var one int
	err = tx.QueryRowContext(ctx,
		`select 1 from accounts where id=$1 and owner_id=$2 for update`, id, ownerID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.ErrNotFound
	}
	if err != nil {
		return abort(err)
	}

	var refs int
	if err := tx.QueryRowContext(ctx, `
		select count(*) from entries
		where owner_id=$2 and (account_id=$1 or linked_account_id=$1)
	`, id, ownerID).Scan(&refs); err != nil {
		return abort(err)
	}
	if refs > 0 {
		return ledger.ErrAccountInUse
	}
	var grants int
	if err := tx.QueryRowContext(ctx,
		`select count(*) from ledger_access where ledger_id=$1`, id).Scan(&grants); err != nil {
		return abort(err)
	}
	if grants > 0 {
		return ledger.ErrAccountInUse
	}

	if _, err := tx.ExecContext(ctx,
		`update accounts set linked_account_id=null where linked_account_id=$1`, id); err != nil {
		return abort(err)
	}
	if _, err := tx.ExecContext(ctx,
		`delete from accounts where id=$1 and owner_id=$2`, id, ownerID); err != nil {
		return abort(err)
	}
	return tx.Commit()
}

// AccountOwner resolves an account's owner regardless of caller scope;
// the permission gate relies on it for the implicit owner role.
func (s *Store) AccountOwner(ctx context.Context, id string) (string, error) {
	var owner string
	err := s.db.QueryRowContext(ctx, `select owner_id from accounts where id=$1`, id).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ledger.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return owner, nil
}
