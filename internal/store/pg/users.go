package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"lekha.app/internal/auth"
)

func (s *Store) CreateUser(ctx context.Context, u auth.User) error {
	_, err := s.db.ExecContext(ctx, `
		insert into users(id, email, name, password_hash, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6)
	`, u.ID, u.Email, u.Name, u.PasswordHash, u.CreatedAt, u.UpdatedAt)
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
		return auth.ErrAlreadyExists
	}
	return err
}

func (s *Store) FindUser(ctx context.Context, id string) (auth.User, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, email, name, password_hash, created_at, updated_at from users where id=$1
	`, id)
	return scanUser(row)
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (auth.User, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, email, name, password_hash, created_at, updated_at from users where email=$1
	`, strings.TrimSpace(strings.ToLower(email)))
	return scanUser(row)
}

func scanUser(row *sql.Row) (auth.User, error) {
	var u auth.User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.User{}, err
	}
	return u, nil
}
