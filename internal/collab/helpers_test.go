package collab

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/gogotex/gogotex/backend/go-collab/internal/document"
	"github.com/gogotex/gogotex/backend/go-collab/internal/document/repository"
	"github.com/gogotex/gogotex/backend/go-collab/internal/tokens"
	"github.com/stretchr/testify/assert"
)

// countingStore wraps the memory repository and records every Save.
type countingStore struct {
	*repository.MemoryRepo

	mu      sync.Mutex
	saves   []*document.Document
	loadErr error
	gate    chan struct{} // when set, Save blocks until it is closed
}

func newCountingStore() *countingStore {
	return &countingStore{MemoryRepo: repository.NewMemoryRepo()}
}

func (s *countingStore) Load(ctx context.Context, id string) (*document.Document, error) {
	s.mu.Lock()
	err := s.loadErr
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.MemoryRepo.Load(ctx, id)
}

func (s *countingStore) Save(ctx context.Context, d *document.Document) error {
	s.mu.Lock()
	gate := s.gate
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}
	s.mu.Lock()
	s.saves = append(s.saves, d.Clone())
	s.mu.Unlock()
	return s.MemoryRepo.Save(ctx, d)
}

func (s *countingStore) saved() []*document.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*document.Document(nil), s.saves...)
}

// recSink records delivered events.
type recSink struct {
	mu     sync.Mutex
	events []Event
	closed bool
	full   bool
}

func (s *recSink) Deliver(ev Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.full {
		return false
	}
	s.events = append(s.events, ev)
	return true
}

func (s *recSink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *recSink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// updates returns the document_updated payloads received so far.
func (s *recSink) updates() []DocumentUpdated {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []DocumentUpdated
	for _, ev := range s.events {
		if ev.Name == EventDocumentUpdated {
			out = append(out, ev.Data.(DocumentUpdated))
		}
	}
	return out
}

// names returns the event names received so far, in order.
func (s *recSink) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Name)
	}
	return out
}

// snapshot returns a copy of the events received so far.
func (s *recSink) snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

// fakeVerifier accepts "token-<subject>" and rejects everything else.
type fakeVerifier struct{}

func (fakeVerifier) Verify(ctx context.Context, raw string) (*tokens.Identity, error) {
	var sub string
	if _, err := fmt.Sscanf(raw, "token-%s", &sub); err != nil || sub == "" {
		return nil, fmt.Errorf("%w: unknown token", tokens.ErrInvalid)
	}
	if sub == "expired" {
		return nil, fmt.Errorf("%w: exp passed", tokens.ErrExpired)
	}
	return &tokens.Identity{Subject: sub, Email: sub + "@example.com"}, nil
}

// assertConsistent checks both directions of the membership relation under
// the registry lock. It only reports, so it may run off the test goroutine.
func assertConsistent(t *testing.T, r *Registry) bool {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	ok := true
	for docID, rm := range r.rooms {
		for sid := range rm.members {
			_, in := r.index[sid][docID]
			ok = assert.True(t, in, "%s in members of %s but not in its room index", sid, docID) && ok
		}
	}
	for sid, rooms := range r.index {
		ok = assert.NotEmpty(t, rooms, "empty index entry for %s", sid) && ok
		for docID := range rooms {
			rm := r.rooms[docID]
			if !assert.NotNil(t, rm, "%s indexed in missing room %s", sid, docID) {
				ok = false
				continue
			}
			_, in := rm.members[sid]
			ok = assert.True(t, in, "%s indexed in %s but not a member", sid, docID) && ok
		}
	}
	return ok
}

func ptr[T any](v T) *T { return &v }

var errBoom = errors.New("boom")
