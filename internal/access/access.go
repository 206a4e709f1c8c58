// Package access implements the permission gate for shared ledgers. A
// ledger's owner always holds the owner role implicitly; additional
// collaborators hold grants keyed by user id or, for invitations sent
// before the invitee registered, by email.
package access

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"lekha.app/internal/audit"
)

// Role is the ordered permission level on a shared ledger.
type Role string

const (
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
	RoleOwner  Role = "owner"
)

func (r Role) Valid() bool {
	return r == RoleViewer || r == RoleEditor || r == RoleOwner
}

// Rank orders roles: viewer < editor < owner. Unknown roles rank zero.
func (r Role) Rank() int {
	switch r {
	case RoleViewer:
		return 1
	case RoleEditor:
		return 2
	case RoleOwner:
		return 3
	}
	return 0
}

// RefKind tags how a grantee is identified.
type RefKind string

const (
	ByUserID RefKind = "user_id"
	ByEmail  RefKind = "email"
)

// GranteeRef identifies a grant holder. Grants created before the
// invitee registers are keyed by email and resolve once the user logs
// in with that address.
type GranteeRef struct {
	Kind  RefKind `json:"kind"`
	Value string  `json:"value"`
}

func (g GranteeRef) normalized() GranteeRef {
	g.Value = strings.TrimSpace(g.Value)
	if g.Kind == ByEmail {
		g.Value = strings.ToLower(g.Value)
	}
	return g
}

// Grant is one access record on a ledger.
type Grant struct {
	LedgerID  string     `json:"ledger_id"`
	Grantee   GranteeRef `json:"grantee"`
	Role      Role       `json:"role"`
	InvitedBy string     `json:"invited_by"`
	CreatedAt time.Time  `json:"created_at"`
}

// Actor is the authenticated identity asking for access.
type Actor struct {
	ID    string
	Email string
}

// Refs returns every grantee reference the actor can match.
func (a Actor) Refs() []GranteeRef {
	var refs []GranteeRef
	if a.ID != "" {
		refs = append(refs, GranteeRef{Kind: ByUserID, Value: a.ID})
	}
	if a.Email != "" {
		refs = append(refs, GranteeRef{Kind: ByEmail, Value: strings.ToLower(a.Email)})
	}
	return refs
}

// Decision is the outcome of a permission check.
type Decision struct {
	Granted bool `json:"granted"`
	Role    Role `json:"role,omitempty"`
}

var (
	ErrInvalidInput = errors.New("access: invalid input")
	ErrNotFound     = errors.New("access: not found")
	ErrForbidden    = errors.New("access: forbidden")
	ErrConflict     = errors.New("access: conflict")
)

// Store persists grants.
type Store interface {
	PutGrant(ctx context.Context, g Grant) error // ErrConflict on duplicate grantee
	DeleteGrant(ctx context.Context, ledgerID string, grantee GranteeRef) error
	FindGrant(ctx context.Context, ledgerID string, refs []GranteeRef) (Grant, bool, error)
	ListGrants(ctx context.Context, ledgerID string) ([]Grant, error)
}

// OwnerResolver resolves the owning user of a ledger (account),
// regardless of the caller's own scope.
type OwnerResolver interface {
	AccountOwner(ctx context.Context, ledgerID string) (string, error)
}

// Service is the permission gate. All sharing mutations flow through it
// and land in the activity trail.
type Service struct {
	store    Store
	ledgers  OwnerResolver
	recorder audit.Recorder
}

// NewService wires the gate. recorder may be nil.
func NewService(store Store, ledgers OwnerResolver, recorder audit.Recorder) (*Service, error) {
	if store == nil {
		return nil, errors.New("access: store is required")
	}
	if ledgers == nil {
		return nil, errors.New("access: owner resolver is required")
	}
	return &Service{store: store, ledgers: ledgers, recorder: recorder}, nil
}

func (s *Service) record(ctx context.Context, ev audit.Event) {
	if s.recorder == nil {
		return
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	_ = s.recorder.Record(ctx, ev)
}

// Check resolves whether actor may act on the ledger at the required
// role. The account's owner bypasses grant lookup entirely.
func (s *Service) Check(ctx context.Context, ledgerID string, actor Actor, required Role) (Decision, error) {
	if ledgerID == "" || !required.Valid() {
		return Decision{}, fmt.Errorf("%w: ledger and role are required", ErrInvalidInput)
	}
	ownerID, err := s.ledgers.AccountOwner(ctx, ledgerID)
	if err != nil {
		return Decision{}, err
	}
	if actor.ID != "" && actor.ID == ownerID {
		return Decision{Granted: true, Role: RoleOwner}, nil
	}
	grant, ok, err := s.store.FindGrant(ctx, ledgerID, actor.Refs())
	if err != nil {
		return Decision{}, err
	}
	if !ok {
		return Decision{Granted: false}, nil
	}
	return Decision{
		Granted: grant.Role.Rank() >= required.Rank(),
		Role:    grant.Role,
	}, nil
}

// Require is Check collapsed to an error: ErrNotFound when the actor has
// no relationship to the ledger at all (not leaking existence),
// ErrForbidden when they are a grantee below the required role.
func (s *Service) Require(ctx context.Context, ledgerID string, actor Actor, required Role) error {
	dec, err := s.Check(ctx, ledgerID, actor, required)
	if err != nil {
		return err
	}
	if dec.Granted {
		return nil
	}
	if dec.Role == "" {
		return ErrNotFound
	}
	return ErrForbidden
}

// Invite creates a grant for inviteeEmail. Owner-only; self-invites and
// duplicate grants are rejected.
func (s *Service) Invite(ctx context.Context, ledgerID string, actor Actor, inviteeEmail string, role Role) (Grant, error) {
	inviteeEmail = strings.TrimSpace(strings.ToLower(inviteeEmail))
	if inviteeEmail == "" || !strings.Contains(inviteeEmail, "@") {
		return Grant{}, fmt.Errorf("%w: valid invitee email is required", ErrInvalidInput)
	}
	if !role.Valid() {
		return Grant{}, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	ownerID, err := s.ledgers.AccountOwner(ctx, ledgerID)
	if err != nil {
		return Grant{}, err
	}
	if actor.ID != ownerID {
		return Grant{}, ErrForbidden
	}
	if strings.EqualFold(inviteeEmail, actor.Email) {
		return Grant{}, fmt.Errorf("%w: cannot invite yourself", ErrInvalidInput)
	}
	g := Grant{
		LedgerID:  ledgerID,
		Grantee:   GranteeRef{Kind: ByEmail, Value: inviteeEmail}.normalized(),
		Role:      role,
		InvitedBy: actor.ID,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.PutGrant(ctx, g); err != nil {
		return Grant{}, err
	}
	s.record(ctx, audit.Event{
		LedgerID: ledgerID,
		UserID:   actor.ID,
		Action:   "ledger.invite",
		Details:  map[string]any{"invitee": inviteeEmail, "role": string(role)},
	})
	return g, nil
}

// Revoke removes a grant. Owner-only.
func (s *Service) Revoke(ctx context.Context, ledgerID string, actor Actor, grantee GranteeRef) error {
	ownerID, err := s.ledgers.AccountOwner(ctx, ledgerID)
	if err != nil {
		return err
	}
	if actor.ID != ownerID {
		return ErrForbidden
	}
	if err := s.store.DeleteGrant(ctx, ledgerID, grantee.normalized()); err != nil {
		return err
	}
	s.record(ctx, audit.Event{
		LedgerID: ledgerID,
		UserID:   actor.ID,
		Action:   "ledger.revoke",
		Details:  map[string]any{"grantee": grantee.Value, "kind": string(grantee.Kind)},
	})
	return nil
}

// List returns all grants on a ledger. Visible to the owner and to any
// existing grantee.
func (s *Service) List(ctx context.Context, ledgerID string, actor Actor) ([]Grant, error) {
	ownerID, err := s.ledgers.AccountOwner(ctx, ledgerID)
	if err != nil {
		return nil, err
	}
	if actor.ID != ownerID {
		_, ok, err := s.store.FindGrant(ctx, ledgerID, actor.Refs())
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrNotFound
		}
	}
	return s.store.ListGrants(ctx, ledgerID)
}
