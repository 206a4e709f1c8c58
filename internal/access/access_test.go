package access

import (
	"context"
	"errors"
	"testing"

	"lekha.app/internal/audit"
)

type staticOwners map[string]string

func (o staticOwners) AccountOwner(ctx context.Context, id string) (string, error) {
	owner, ok := o[id]
	if !ok {
		return "", ErrNotFound
	}
	return owner, nil
}

func newGate(t *testing.T) (*Service, *audit.Memory) {
	t.Helper()
	rec := &audit.Memory{}
	svc, err := NewService(NewInMemoryStore(), staticOwners{"L1": "owner-1"}, rec)
	if err != nil {
		t.Fatal(err)
	}
	return svc, rec
}

func TestRoleRank(t *testing.T) {
	if !(RoleViewer.Rank() < RoleEditor.Rank() && RoleEditor.Rank() < RoleOwner.Rank()) {
		t.Fatal("role order broken")
	}
	if Role("superuser").Rank() != 0 {
		t.Fatal("unknown role must rank zero")
	}
}

func TestOwnerBypassesGrants(t *testing.T) {
	gate, _ := newGate(t)
	dec, err := gate.Check(context.Background(), "L1", Actor{ID: "owner-1"}, RoleOwner)
	if err != nil {
		t.Fatal(err)
	}
	if !dec.Granted || dec.Role != RoleOwner {
		t.Fatalf("decision = %+v", dec)
	}
}

func TestInviteAndCheckByEmail(t *testing.T) {
	gate, rec := newGate(t)
	ctx := context.Background()
	owner := Actor{ID: "owner-1", Email: "owner@example.com"}

	if _, err := gate.Invite(ctx, "L1", owner, "Friend@Example.com", RoleEditor); err != nil {
		t.Fatal(err)
	}

	// The invitee had no user id when invited; the grant resolves via
	// the email side of the tagged reference.
	friend := Actor{ID: "user-77", Email: "friend@example.com"}
	dec, err := gate.Check(ctx, "L1", friend, RoleEditor)
	if err != nil {
		t.Fatal(err)
	}
	if !dec.Granted || dec.Role != RoleEditor {
		t.Fatalf("decision = %+v", dec)
	}

	// Editor does not reach owner.
	dec, _ = gate.Check(ctx, "L1", friend, RoleOwner)
	if dec.Granted {
		t.Fatal("editor promoted to owner")
	}

	evs := rec.Events()
	if len(evs) != 1 || evs[0].Action != "ledger.invite" {
		t.Fatalf("activity = %+v", evs)
	}
}

func TestInviteRejections(t *testing.T) {
	gate, _ := newGate(t)
	ctx := context.Background()
	owner := Actor{ID: "owner-1", Email: "owner@example.com"}

	if _, err := gate.Invite(ctx, "L1", Actor{ID: "intruder"}, "x@example.com", RoleViewer); !errors.Is(err, ErrForbidden) {
		t.Fatalf("non-owner invite: %v", err)
	}
	if _, err := gate.Invite(ctx, "L1", owner, "owner@example.com", RoleViewer); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("self invite: %v", err)
	}
	if _, err := gate.Invite(ctx, "L1", owner, "dup@example.com", RoleViewer); err != nil {
		t.Fatal(err)
	}
	if _, err := gate.Invite(ctx, "L1", owner, "dup@example.com", RoleEditor); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate invite: %v", err)
	}
	if _, err := gate.Invite(ctx, "L1", owner, "not-an-email", RoleViewer); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("bad email: %v", err)
	}
	if _, err := gate.Invite(ctx, "L1", owner, "y@example.com", Role("boss")); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("bad role: %v", err)
	}
}

func TestRevoke(t *testing.T) {
	gate, rec := newGate(t)
	ctx := context.Background()
	owner := Actor{ID: "owner-1", Email: "owner@example.com"}
	ref := GranteeRef{Kind: ByEmail, Value: "friend@example.com"}

	if _, err := gate.Invite(ctx, "L1", owner, "friend@example.com", RoleViewer); err != nil {
		t.Fatal(err)
	}
	if err := gate.Revoke(ctx, "L1", Actor{ID: "user-77", Email: "friend@example.com"}, ref); !errors.Is(err, ErrForbidden) {
		t.Fatalf("grantee revoked itself: %v", err)
	}
	if err := gate.Revoke(ctx, "L1", owner, ref); err != nil {
		t.Fatal(err)
	}
	dec, _ := gate.Check(ctx, "L1", Actor{Email: "friend@example.com", ID: "user-77"}, RoleViewer)
	if dec.Granted {
		t.Fatal("grant survived revoke")
	}
	if err := gate.Revoke(ctx, "L1", owner, ref); !errors.Is(err, ErrNotFound) {
		t.Fatalf("double revoke: %v", err)
	}

	var sawRevoke bool
	for _, ev := range rec.Events() {
		if ev.Action == "ledger.revoke" {
			sawRevoke = true
		}
	}
	if !sawRevoke {
		t.Fatal("revoke activity missing")
	}
}

func TestListVisibility(t *testing.T) {
	gate, _ := newGate(t)
	ctx := context.Background()
	owner := Actor{ID: "owner-1", Email: "owner@example.com"}

	if _, err := gate.Invite(ctx, "L1", owner, "friend@example.com", RoleViewer); err != nil {
		t.Fatal(err)
	}
	grants, err := gate.List(ctx, "L1", owner)
	if err != nil || len(grants) != 1 {
		t.Fatalf("owner list: %v %d", err, len(grants))
	}
	if _, err := gate.List(ctx, "L1", Actor{ID: "x", Email: "friend@example.com"}); err != nil {
		t.Fatalf("grantee list: %v", err)
	}
	if _, err := gate.List(ctx, "L1", Actor{ID: "stranger", Email: "s@example.com"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("stranger list: %v", err)
	}
}

func TestRequireDoesNotLeakExistence(t *testing.T) {
	gate, _ := newGate(t)
	ctx := context.Background()
	// A stranger gets not-found, not forbidden.
	if err := gate.Require(ctx, "L1", Actor{ID: "stranger"}, RoleViewer); !errors.Is(err, ErrNotFound) {
		t.Fatalf("stranger: %v", err)
	}
	// A known viewer asking for editor gets forbidden.
	owner := Actor{ID: "owner-1", Email: "owner@example.com"}
	if _, err := gate.Invite(ctx, "L1", owner, "v@example.com", RoleViewer); err != nil {
		t.Fatal(err)
	}
	if err := gate.Require(ctx, "L1", Actor{ID: "u", Email: "v@example.com"}, RoleEditor); !errors.Is(err, ErrForbidden) {
		t.Fatalf("viewer asking editor: %v", err)
	}
}
