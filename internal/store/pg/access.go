package pg

import (
	"context"
	"database/sql"
	"errors"

	"lekha.app/internal/access"
)

func (s *Store) PutGrant(ctx context.Context, g access.Grant) error {
	_, err := s.db.ExecContext(ctx, `
		insert into ledger_access(ledger_id, grantee_kind, grantee_value, role, invited_by, created_at)
		values ($1,$2,$3,$4,$5,$6)
	`, g.LedgerID, g.Grantee.Kind, g.Grantee.Value, g.Role, g.InvitedBy, g.CreatedAt)
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
		return access.ErrConflict
	}
	return err
}

func (s *Store) DeleteGrant(ctx context.Context, ledgerID string, grantee access.GranteeRef) error {
	res, err := s.db.ExecContext(ctx, `
		delete from ledger_access where ledger_id=$1 and grantee_kind=$2 and grantee_value=$3
	`, ledgerID, grantee.Kind, grantee.Value)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return access.ErrNotFound
	}
	return nil
}

// FindGrant returns the first grant matching any of the actor's
// references, preferring the user-id binding over the email one.
func (s *Store) FindGrant(ctx context.Context, ledgerID string, refs []access.GranteeRef) (access.Grant, bool, error) {
	for _, ref := range refs {
		row := s.db.QueryRowContext(ctx, `
			select ledger_id, grantee_kind, grantee_value, role, invited_by, created_at
			from ledger_access where ledger_id=$1 and grantee_kind=$2 and grantee_value=$3
		`, ledgerID, ref.Kind, ref.Value)
		var g access.Grant
		err := row.Scan(&g.LedgerID, &g.Grantee.Kind, &g.Grantee.Value, &g.Role, &g.InvitedBy, &g.CreatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return access.Grant{}, false, err
		}
		return g, true, nil
	}
	return access.Grant{}, false, nil
}

func (s *Store) ListGrants(ctx context.Context, ledgerID string) ([]access.Grant, error) {
	rows, err := s.db.QueryContext(ctx, `
		select ledger_id, grantee_kind, grantee_value, role, invited_by, created_at
		from ledger_access where ledger_id=$1 order by created_at, grantee_value
	`, ledgerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []access.Grant
	for rows.Next() {
		var g access.Grant
		if err := rows.Scan(&g.LedgerID, &g.Grantee.Kind, &g.Grantee.Value, &g.Role, &g.InvitedBy, &g.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}
