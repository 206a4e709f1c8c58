package pg

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"lekha.app/internal/access"
	"lekha.app/internal/auth"
	"lekha.app/internal/ledger"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewWithDB(db), mock
}

func TestCreateEntryInternalTransfer(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectBegin()
	// Accounts lock in sorted id order: acc-a then acc-b.
	mock.ExpectQuery("select type from accounts").
		WithArgs("acc-a", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"type"}).AddRow("cash"))
	mock.ExpectQuery("select type from accounts").
		WithArgs("acc-b", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"type"}).AddRow("bank"))
	mock.ExpectExec("update accounts set balance").
		WithArgs("acc-a", "u1", int64(-5000)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("update accounts set balance").
		WithArgs("acc-b", "u1", int64(5000)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into entries").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	e, err := store.CreateEntry(context.Background(), ledger.Entry{
		OwnerID:         "u1",
		Direction:       ledger.MoneyOut,
		Amount:          5000,
		Category:        "Transfer",
		Description:     "to savings",
		Date:            time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
		AccountID:       "acc-a",
		LinkedAccountID: "acc-b",
	})
	if err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}
	if e.ID == "" {
		t.Fatal("expected generated id")
	}
	if e.BalanceImpact != -5000 {
		t.Fatalf("unexpected impact: %d", e.BalanceImpact)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateEntryMissingLinkedRollsBack(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("select type from accounts").
		WithArgs("acc-a", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"type"}).AddRow("cash"))
	mock.ExpectQuery("select type from accounts").
		WithArgs("acc-gone", "u1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := store.CreateEntry(context.Background(), ledger.Entry{
		OwnerID:         "u1",
		Direction:       ledger.MoneyOut,
		Amount:          1000,
		Category:        "Transfer",
		Description:     "to nowhere",
		Date:            time.Now(),
		AccountID:       "acc-a",
		LinkedAccountID: "acc-gone",
	})
	if !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestBulkDeleteEntriesRevertsBalances(t *testing.T) {
	store, mock := newMock(t)

	now := time.Now().UTC()
	cols := []string{"id", "owner_id", "direction", "amount", "category", "description", "date",
		"account_id", "linked_account_id", "balance_impact", "created_at", "updated_at"}

	mock.ExpectBegin()
	mock.ExpectQuery("select (.+) from entries").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("e1", "u1", "in", int64(10000), "Sales", "cash sale", now, "acc-a", "", int64(10000), now, now).
			AddRow("e2", "u1", "out", int64(3000), "Supplies", "boxes", now, "acc-a", "", int64(-3000), now, now))
	mock.ExpectQuery("select type from accounts").
		WithArgs("acc-a", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"type"}).AddRow("cash"))
	mock.ExpectExec("update accounts set balance").
		WithArgs("acc-a", "u1", int64(-10000)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("update accounts set balance").
		WithArgs("acc-a", "u1", int64(3000)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("delete from entries").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	n, err := store.BulkDeleteEntries(context.Background(), "u1", []string{"e1", "e2", "e-missing"})
	if err != nil {
		t.Fatalf("BulkDeleteEntries: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 deleted, got %d", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPutGrantDuplicate(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectExec("insert into ledger_access").
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	err := store.PutGrant(context.Background(), access.Grant{
		LedgerID:  "acc-a",
		Grantee:   access.GranteeRef{Kind: access.ByEmail, Value: "friend@example.com"},
		Role:      access.RoleEditor,
		InvitedBy: "u1",
		CreatedAt: time.Now().UTC(),
	})
	if !errors.Is(err, access.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectExec("insert into users").
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	err := store.CreateUser(context.Background(), auth.User{
		ID:    "u1",
		Email: "dup@example.com",
		Name:  "Dup",
	})
	if !errors.Is(err, auth.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
