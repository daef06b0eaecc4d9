package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gogotex/gogotex/backend/go-collab/internal/document"
)

var (
	ErrForbidden   = document.ErrForbidden
	ErrInvalidRole = errors.New("invalid role")
)

// AccessRepository stores per-user grants on documents.
type AccessRepository interface {
	Put(ctx context.Context, a *document.Access) error
	Get(ctx context.Context, docID, userID string) (*document.Access, error)
	List(ctx context.Context, docID string) ([]*document.Access, error)
	Delete(ctx context.Context, docID, userID string) error
	DeleteDocument(ctx context.Context, docID string) error
}

// AccessService decides who may read and edit a document. The owner holds
// the creator role; everyone else needs a grant from the owner. Documents
// without an owner, including ids never stored, are open to every user.
type AccessService struct {
	docs   Service
	grants AccessRepository
	now    func() time.Time
}

func NewAccessService(docs Service, grants AccessRepository) *AccessService {
	return &AccessService{docs: docs, grants: grants, now: time.Now}
}

// Role resolves userID's role on docID. An empty role means no access.
func (s *AccessService) Role(ctx context.Context, userID, docID string) (document.Role, error) {
	d, err := s.docs.Get(ctx, docID)
	if errors.Is(err, document.ErrNotFound) {
		return document.RoleCreator, nil
	}
	if err != nil {
		return "", err
	}
	if d.OwnerID == "" || d.OwnerID == userID {
		return document.RoleCreator, nil
	}
	a, err := s.grants.Get(ctx, docID, userID)
	if errors.Is(err, document.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return a.Role, nil
}

// Grant gives userID role on docID. Only the owner may grant.
func (s *AccessService) Grant(ctx context.Context, actorID, docID, userID string, role document.Role) (*document.Access, error) {
	if !role.Grantable() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	d, err := s.owned(ctx, actorID, docID)
	if err != nil {
		return nil, err
	}
	if userID == "" || userID == d.OwnerID {
		return nil, fmt.Errorf("%w: cannot grant to %q", ErrInvalidRole, userID)
	}
	a := &document.Access{DocumentID: docID, UserID: userID, Role: role, GrantedBy: actorID, CreatedAt: s.now().UTC()}
	if err := s.grants.Put(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Revoke removes userID's grant on docID. Only the owner may revoke.
func (s *AccessService) Revoke(ctx context.Context, actorID, docID, userID string) error {
	if _, err := s.owned(ctx, actorID, docID); err != nil {
		return err
	}
	return s.grants.Delete(ctx, docID, userID)
}

// List returns the grants on docID to anyone who may read it.
func (s *AccessService) List(ctx context.Context, actorID, docID string) ([]*document.Access, error) {
	role, err := s.Role(ctx, actorID, docID)
	if err != nil {
		return nil, err
	}
	if !role.CanRead() {
		return nil, ErrForbidden
	}
	return s.grants.List(ctx, docID)
}

// Forget drops every grant on a deleted document.
func (s *AccessService) Forget(ctx context.Context, docID string) error {
	return s.grants.DeleteDocument(ctx, docID)
}

func (s *AccessService) owned(ctx context.Context, actorID, docID string) (*document.Document, error) {
	d, err := s.docs.Get(ctx, docID)
	if err != nil {
		return nil, err
	}
	if d.OwnerID == "" || d.OwnerID != actorID {
		return nil, ErrForbidden
	}
	return d, nil
}
