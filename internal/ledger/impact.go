package ledger

import (
	"strings"

	"lekha.app/internal/money"
)

// Impact returns the signed delta an entry with the given direction and
// amount contributes to its primary account.
func Impact(d Direction, amount money.Amount) money.Amount {
	if d == MoneyIn {
		return amount
	}
	return -amount
}

// RecomputeImpact refreshes the cached BalanceImpact from its source
// fields. Called on every write path; the cache is never authoritative.
func (e *Entry) RecomputeImpact() {
	e.BalanceImpact = Impact(e.Direction, e.Amount)
}

// cashEquivalent reports whether t is one of the user's own money buckets.
func cashEquivalent(t AccountType) bool {
	return t == AccountCash || t == AccountBank || t == AccountCreditCard
}

// IsInternalTransfer reports whether an entry spanning the two account
// types moves money between the user's own buckets. Internal transfers
// conserve total money: the linked side moves opposite to the primary.
// External settlements model a bilateral receivable/payable: the linked
// counterparty account moves in the same direction.
func IsInternalTransfer(primary, linked AccountType) bool {
	return cashEquivalent(primary) && cashEquivalent(linked)
}

// LinkedImpact returns the signed delta the entry applies to its linked
// account, given both account types.
func LinkedImpact(impact money.Amount, primary, linked AccountType) money.Amount {
	if IsInternalTransfer(primary, linked) {
		return -impact
	}
	return impact
}

// TypeResolver looks up an account's type by id.
type TypeResolver func(accountID string) (AccountType, bool)

// EffectOn computes the signed delta entry e contributes to account acc,
// or false if the entry does not touch the account. typeOf resolves the
// primary account's type when acc sits on the linked side; an unknown
// primary is treated as a counterparty.
//
// Entries with no primary account normally touch nothing, except the
// legacy virtual-ledger path: an unattached entry counts against an
// Other-typed account whose name matches the entry description
// case-insensitively.
func EffectOn(e Entry, acc Account, typeOf TypeResolver) (money.Amount, bool) {
	switch {
	case e.AccountID != "" && e.AccountID == acc.ID:
		return e.BalanceImpact, true
	case e.LinkedAccountID != "" && e.LinkedAccountID == acc.ID:
		pt, ok := typeOf(e.AccountID)
		if !ok {
			pt = AccountOther
		}
		return LinkedImpact(e.BalanceImpact, pt, acc.Type), true
	case e.AccountID == "" && acc.Type == AccountOther &&
		strings.EqualFold(strings.TrimSpace(e.Description), strings.TrimSpace(acc.Name)):
		return e.BalanceImpact, true
	}
	return 0, false
}

// RecomputeBalance derives an account's balance from first principles:
// initial balance plus the effect of every live entry. This is the ground
// truth the consistency auditor compares the incremental balance against.
func RecomputeBalance(acc Account, entries []Entry, typeOf TypeResolver) money.Amount {
	balance := acc.InitialBalance
	for _, e := range entries {
		if eff, ok := EffectOn(e, acc, typeOf); ok {
			balance += eff
		}
	}
	return balance
}
