// Package pg persists the ledger engine in PostgreSQL. Every mutation
// that touches more than one row runs in a single transaction with row
// locks taken in sorted account order, so concurrent writers cannot
// deadlock and no partial state is ever visible.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"lekha.app/internal/access"
	"lekha.app/internal/audit"
	"lekha.app/internal/auth"
	"lekha.app/internal/ledger"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

type Store struct {
	db *sql.DB
}

var (
	_ ledger.Service = (*Store)(nil)
	_ access.Store   = (*Store)(nil)
	_ auth.UserStore = (*Store)(nil)
	_ audit.Recorder = (*Store)(nil)
)

// Open connects with tuned pool defaults; adjust under load tests.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection (used by tests and cmd/admin).
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// begin opens the unit of work every multi-entity mutation runs in.
func (s *Store) begin(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, nil)
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

// abort tags an error from inside a transaction so callers see the
// whole unit of work failed, while domain sentinels stay matchable.
func abort(err error) error {
	if errors.Is(err, ledger.ErrNotFound) || errors.Is(err, ledger.ErrInvalidInput) ||
		errors.Is(err, ledger.ErrConflict) || errors.Is(err, ledger.ErrAccountInUse) {
		return err
	}
	return fmt.Errorf("%w: %v", ledger.ErrTxAborted, err)
}
