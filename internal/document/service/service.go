package service

import (
	"context"
	"errors"

	"github.com/gogotex/gogotex/backend/go-collab/internal/document"
	"github.com/gogotex/gogotex/backend/go-collab/internal/document/repository"
	"go.mongodb.org/mongo-driver/mongo"
)

var (
	ErrNotFound = document.ErrNotFound
)

// Service defines the document business operations used by the handler layer.
type Service interface {
	Create(ctx context.Context, d *document.Document) (string, error)
	Get(ctx context.Context, id string) (*document.Document, error)
	List(ctx context.Context) ([]*document.Document, error)
	Update(ctx context.Context, id string, content string, title *string) error
	Delete(ctx context.Context, id string) error
}

// Repository is satisfied by both the memory and the Mongo repositories.
type Repository interface {
	Service
	Load(ctx context.Context, id string) (*document.Document, error)
	Save(ctx context.Context, d *document.Document) error
}

// New returns a Service backed by repo.
func New(repo Repository) Service {
	return &service{repo: repo}
}

// NewMemoryService returns a Service backed by the in-memory repository.
func NewMemoryService() Service {
	return New(repository.NewMemoryRepo())
}

// NewMongoService returns a Service backed by a MongoDB collection.
// Caller is responsible for creating the collection (and client) and passing it in.
func NewMongoService(ctx context.Context, col *mongo.Collection) (Service, error) {
	repo, err := repository.NewMongoRepo(ctx, col)
	if err != nil {
		return nil, err
	}
	return New(repo), nil
}

type service struct {
	repo Repository
}

func (s *service) Create(ctx context.Context, d *document.Document) (string, error) {
	if d.Title == "" {
		d.Title = "Untitled document"
	}
	return s.repo.Create(ctx, d)
}

func (s *service) Get(ctx context.Context, id string) (*document.Document, error) {
	d, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, document.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return d, nil
}

func (s *service) List(ctx context.Context) ([]*document.Document, error) {
	return s.repo.List(ctx)
}

func (s *service) Update(ctx context.Context, id string, content string, title *string) error {
	return s.repo.Update(ctx, id, content, title)
}

func (s *service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}
