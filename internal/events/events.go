// Package events publishes ledger activity to an external broker.
// Publishing is best-effort: the core mutation has already committed by
// the time an event goes out, and a broker failure never rolls it back.
package events

import (
	"context"
	"time"
)

// Event types emitted by the API layer.
const (
	TypeEntryCreated       = "entry.created"
	TypeEntryUpdated       = "entry.updated"
	TypeEntryDeleted       = "entry.deleted"
	TypeCashCheckSubmitted = "cash_check.submitted"
)

// Event is the wire payload for one ledger occurrence.
type Event struct {
	Type      string    `json:"type"`
	OwnerID   string    `json:"owner_id"`
	AccountID string    `json:"account_id,omitempty"`
	EntryID   string    `json:"entry_id,omitempty"`
	Amount    int64     `json:"amount,omitempty"` // minor units
	Status    string    `json:"status,omitempty"`
	At        time.Time `json:"at"`
}

// Publisher delivers events to the configured sink.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Noop discards every event. Used when no broker is configured.
type Noop struct{}

var _ Publisher = Noop{}

func (Noop) Publish(ctx context.Context, ev Event) error { return nil }
func (Noop) Close() error                                { return nil }
