package ledger

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"lekha.app/internal/money"
)

// Direction states whether an entry moves money into or out of its
// primary account.
type Direction string

const (
	MoneyIn  Direction = "in"
	MoneyOut Direction = "out"
)

func (d Direction) Valid() bool { return d == MoneyIn || d == MoneyOut }

// AccountType classifies an account. Cash, bank and credit card accounts
// are the user's own money buckets; Other represents an external
// counterparty (a person or business the user settles with).
type AccountType string

const (
	AccountCash       AccountType = "cash"
	AccountBank       AccountType = "bank"
	AccountCreditCard AccountType = "credit_card"
	AccountOther      AccountType = "other"
)

func (t AccountType) Valid() bool {
	switch t {
	case AccountCash, AccountBank, AccountCreditCard, AccountOther:
		return true
	}
	return false
}

// Entry is a single recorded financial event. BalanceImpact is a cached
// derivation of direction and amount; it is recomputed on every write
// path and never trusted as independently authoritative.
type Entry struct {
	ID              string       `json:"id"`
	OwnerID         string       `json:"owner_id"`
	Direction       Direction    `json:"direction"`
	Amount          money.Amount `json:"amount"`
	Category        string       `json:"category"`
	Description     string       `json:"description"`
	Date            time.Time    `json:"date"`
	AccountID       string       `json:"account_id,omitempty"`
	LinkedAccountID string       `json:"linked_account_id,omitempty"`
	BalanceImpact   money.Amount `json:"balance_impact"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// Account is a named bucket holding a running balance. The invariant the
// whole engine protects: Balance equals InitialBalance plus the summed
// effect of every live entry touching this account.
type Account struct {
	ID              string       `json:"id"`
	OwnerID         string       `json:"owner_id"`
	Name            string       `json:"name"`
	Type            AccountType  `json:"type"`
	Balance         money.Amount `json:"balance"`
	InitialBalance  money.Amount `json:"initial_balance"`
	CreditLimit     money.Amount `json:"credit_limit,omitempty"`
	LinkedAccountID string       `json:"linked_account_id,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// CheckStatus classifies the variance between counted and expected cash.
type CheckStatus string

const (
	CheckMatched CheckStatus = "matched"
	CheckShort   CheckStatus = "short"
	CheckExcess  CheckStatus = "excess"
)

// CashCheck is an immutable reconciliation record for one account and day.
type CashCheck struct {
	ID                string       `json:"id"`
	OwnerID           string       `json:"owner_id"`
	AccountID         string       `json:"account_id"`
	Day               time.Time    `json:"day"`
	OpeningBalance    money.Amount `json:"opening_balance"`
	TotalIn           money.Amount `json:"total_in"`
	TotalOut          money.Amount `json:"total_out"`
	ExpectedBalance   money.Amount `json:"expected_balance"`
	ActualBalance     money.Amount `json:"actual_balance"`
	Difference        money.Amount `json:"difference"`
	Status            CheckStatus  `json:"status"`
	Reason            string       `json:"reason,omitempty"`
	Note              string       `json:"note,omitempty"`
	AdjustmentEntryID string       `json:"adjustment_entry_id,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
}

// CheckSnapshot is the computed state presented before a check is submitted.
type CheckSnapshot struct {
	AccountID       string       `json:"account_id"`
	Day             time.Time    `json:"day"`
	OpeningBalance  money.Amount `json:"opening_balance"`
	TotalIn         money.Amount `json:"total_in"`
	TotalOut        money.Amount `json:"total_out"`
	ExpectedBalance money.Amount `json:"expected_balance"`
	AlreadyChecked  bool         `json:"already_checked"`
}

// CheckRequest carries a submitted cash count.
type CheckRequest struct {
	OwnerID       string
	AccountID     string
	Day           time.Time
	ActualBalance money.Amount
	Reason        string
	Note          string
	AutoAdjust    bool
}

// RepairResult reports one run of the consistency auditor.
type RepairResult struct {
	AccountID string       `json:"account_id"`
	Before    money.Amount `json:"before"`
	After     money.Amount `json:"after"`
	Drift     money.Amount `json:"drift"`
}

var (
	ErrInvalidInput = errors.New("ledger: invalid input")
	ErrNotFound     = errors.New("ledger: not found")
	ErrAccountInUse = errors.New("ledger: account has dependent records")
	ErrTxAborted    = errors.New("ledger: transaction aborted")

	// ErrForbidden and ErrConflict are never raised by the engine
	// itself, which has no notion of an actor and takes the last
	// write. They round out the sentinel set so alternative Service
	// implementations and the HTTP boundary share one error family.
	ErrForbidden = errors.New("ledger: forbidden")
	ErrConflict  = errors.New("ledger: conflict")
)

// AdjustmentCategory marks correcting entries emitted by the
// reconciliation engine.
const AdjustmentCategory = "Cash Adjustment"

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, msg)
}

// Validate checks the entry fields that must hold before any persistence.
func (e Entry) Validate() error {
	if strings.TrimSpace(e.OwnerID) == "" {
		return invalid("owner is required")
	}
	if !e.Direction.Valid() {
		return invalid("unknown direction")
	}
	if !e.Amount.IsPositive() {
		return invalid("amount must be positive")
	}
	if strings.TrimSpace(e.Category) == "" {
		return invalid("category is required")
	}
	if strings.TrimSpace(e.Description) == "" {
		return invalid("description is required")
	}
	if e.Date.IsZero() {
		return invalid("date is required")
	}
	if e.LinkedAccountID != "" && e.AccountID == "" {
		return invalid("linked account requires a primary account")
	}
	if e.LinkedAccountID != "" && e.LinkedAccountID == e.AccountID {
		return invalid("linked account must differ from primary")
	}
	return nil
}

// Validate checks account fields at creation time.
func (a Account) Validate() error {
	if strings.TrimSpace(a.OwnerID) == "" {
		return invalid("owner is required")
	}
	if strings.TrimSpace(a.Name) == "" {
		return invalid("name is required")
	}
	if !a.Type.Valid() {
		return invalid("unknown account type")
	}
	if a.CreditLimit != 0 && a.Type != AccountCreditCard {
		return invalid("credit limit only applies to credit cards")
	}
	return nil
}
