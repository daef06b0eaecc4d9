package sessions

import (
	"context"
	"sort"
	"time"

	"github.com/gogotex/gogotex/backend/go-collab/internal/tokens"
)

// Service maintains presence records for live realtime sessions.
type Service struct {
	repo Repository
	ttl  time.Duration
	now  func() time.Time
}

func NewService(r Repository, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Service{repo: r, ttl: ttl, now: time.Now}
}

// Online records a freshly authenticated session.
func (s *Service) Online(ctx context.Context, sessionID string, id *tokens.Identity) error {
	now := s.now().UTC()
	p := &Presence{
		SessionID:   sessionID,
		Rooms:       []string{},
		ConnectedAt: now,
		ExpiresAt:   now.Add(s.ttl),
	}
	if id != nil {
		p.Subject, p.Email, p.Name = id.Subject, id.Email, id.Name
	}
	return s.repo.Put(ctx, p)
}

// Rooms replaces the room list of a session and extends its TTL. Unknown
// sessions are ignored: they either expired or never went online here.
func (s *Service) Rooms(ctx context.Context, sessionID string, rooms []string) error {
	p, err := s.repo.Get(ctx, sessionID)
	if err != nil || p == nil {
		return err
	}
	p.Rooms = append([]string{}, rooms...)
	sort.Strings(p.Rooms)
	p.ExpiresAt = s.now().UTC().Add(s.ttl)
	return s.repo.Put(ctx, p)
}

// Heartbeat extends the TTL of a live session.
func (s *Service) Heartbeat(ctx context.Context, sessionID string) error {
	p, err := s.repo.Get(ctx, sessionID)
	if err != nil || p == nil {
		return err
	}
	p.ExpiresAt = s.now().UTC().Add(s.ttl)
	return s.repo.Put(ctx, p)
}

// Offline removes the session's presence record.
func (s *Service) Offline(ctx context.Context, sessionID string) error {
	return s.repo.Delete(ctx, sessionID)
}

func (s *Service) Get(ctx context.Context, sessionID string) (*Presence, error) {
	return s.repo.Get(ctx, sessionID)
}

func (s *Service) List(ctx context.Context) ([]*Presence, error) {
	return s.repo.List(ctx)
}
