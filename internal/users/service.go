package users

import (
	"context"
	"errors"

	"github.com/gogotex/gogotex/backend/go-collab/internal/models"
	"github.com/gogotex/gogotex/backend/go-collab/internal/tokens"
)

// ErrNoSubject is returned when an identity cannot be mapped to a user.
var ErrNoSubject = errors.New("identity has no subject")

// Service encapsulates user-related business logic
type Service struct {
	repo UserRepository
}

func NewService(r UserRepository) *Service {
	return &Service{repo: r}
}

// ResolveIdentity records the user behind a verified token, creating the
// profile on first sight, and returns the stored profile.
func (s *Service) ResolveIdentity(ctx context.Context, id *tokens.Identity) (*models.User, error) {
	if id == nil || id.Subject == "" {
		return nil, ErrNoSubject
	}
	return s.repo.UpsertBySub(ctx, &models.User{
		Sub:   id.Subject,
		Email: id.Email,
		Name:  id.Name,
	})
}

func (s *Service) GetBySub(ctx context.Context, sub string) (*models.User, error) {
	return s.repo.GetBySub(ctx, sub)
}
