package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/gogotex/gogotex/backend/go-collab/internal/document"
)

// MemoryAccessRepo keeps access grants in memory, keyed by document then user.
type MemoryAccessRepo struct {
	mu     sync.RWMutex
	grants map[string]map[string]document.Access
}

func NewMemoryAccessRepo() *MemoryAccessRepo {
	return &MemoryAccessRepo{grants: make(map[string]map[string]document.Access)}
}

// Put creates or replaces the grant for a.DocumentID and a.UserID.
func (m *MemoryAccessRepo) Put(ctx context.Context, a *document.Access) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	users := m.grants[a.DocumentID]
	if users == nil {
		users = make(map[string]document.Access)
		m.grants[a.DocumentID] = users
	}
	if old, ok := users[a.UserID]; ok {
		a.CreatedAt = old.CreatedAt
	}
	users[a.UserID] = *a
	return nil
}

func (m *MemoryAccessRepo) Get(ctx context.Context, docID, userID string) (*document.Access, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.grants[docID][userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

// List returns the grants on docID ordered by user id.
func (m *MemoryAccessRepo) List(ctx context.Context, docID string) ([]*document.Access, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*document.Access, 0, len(m.grants[docID]))
	for _, a := range m.grants[docID] {
		a := a
		out = append(out, &a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (m *MemoryAccessRepo) Delete(ctx context.Context, docID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	users := m.grants[docID]
	if _, ok := users[userID]; !ok {
		return ErrNotFound
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(m.grants, docID)
	}
	return nil
}

// DeleteDocument drops every grant on docID.
func (m *MemoryAccessRepo) DeleteDocument(ctx context.Context, docID string) error {
	m.mu.Lock()
	delete(m.grants, docID)
	m.mu.Unlock()
	return nil
}
