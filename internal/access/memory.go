package access

import (
	"context"
	"sync"
)

// InMemoryStore is a map-backed grant store for development and tests.
type InMemoryStore struct {
	mu     sync.RWMutex
	grants map[string]map[GranteeRef]Grant // ledgerID -> grantee -> grant
}

var _ Store = (*InMemoryStore)(nil)

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{grants: make(map[string]map[GranteeRef]Grant)}
}

func (m *InMemoryStore) PutGrant(ctx context.Context, g Grant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byGrantee, ok := m.grants[g.LedgerID]
	if !ok {
		byGrantee = make(map[GranteeRef]Grant)
		m.grants[g.LedgerID] = byGrantee
	}
	if _, exists := byGrantee[g.Grantee]; exists {
		return ErrConflict
	}
	byGrantee[g.Grantee] = g
	return nil
}

func (m *InMemoryStore) DeleteGrant(ctx context.Context, ledgerID string, grantee GranteeRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byGrantee := m.grants[ledgerID]
	if _, ok := byGrantee[grantee]; !ok {
		return ErrNotFound
	}
	delete(byGrantee, grantee)
	return nil
}

func (m *InMemoryStore) FindGrant(ctx context.Context, ledgerID string, refs []GranteeRef) (Grant, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byGrantee := m.grants[ledgerID]
	for _, ref := range refs {
		if g, ok := byGrantee[ref.normalized()]; ok {
			return g, true, nil
		}
	}
	return Grant{}, false, nil
}

func (m *InMemoryStore) ListGrants(ctx context.Context, ledgerID string) ([]Grant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Grant
	for _, g := range m.grants[ledgerID] {
		out = append(out, g)
	}
	return out, nil
}
