package sessions

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Repository provides presence persistence operations. Get returns (nil, nil)
// for unknown or expired sessions.
type Repository interface {
	Put(ctx context.Context, p *Presence) error
	Get(ctx context.Context, sessionID string) (*Presence, error)
	Delete(ctx context.Context, sessionID string) error
	List(ctx context.Context) ([]*Presence, error)
}

// MemoryRepository keeps presence in process. Used when Redis is not configured.
type MemoryRepository struct {
	mu    sync.Mutex
	store map[string]Presence
	now   func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{store: map[string]Presence{}, now: time.Now}
}

func (r *MemoryRepository) Put(ctx context.Context, p *Presence) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	cp.Rooms = append([]string(nil), p.Rooms...)
	r.store[p.SessionID] = cp
	return nil
}

func (r *MemoryRepository) Get(ctx context.Context, sessionID string) (*Presence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.store[sessionID]
	if !ok {
		return nil, nil
	}
	if r.now().After(p.ExpiresAt) {
		delete(r.store, sessionID)
		return nil, nil
	}
	p.Rooms = append([]string(nil), p.Rooms...)
	return &p, nil
}

func (r *MemoryRepository) Delete(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.store, sessionID)
	return nil
}

func (r *MemoryRepository) List(ctx context.Context) ([]*Presence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	out := make([]*Presence, 0, len(r.store))
	for id, p := range r.store {
		if now.After(p.ExpiresAt) {
			delete(r.store, id)
			continue
		}
		p.Rooms = append([]string(nil), p.Rooms...)
		cp := p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out, nil
}
