package collab

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gogotex/gogotex/backend/go-collab/internal/document"
	"github.com/gogotex/gogotex/backend/go-collab/internal/models"
	"github.com/gogotex/gogotex/backend/go-collab/internal/tokens"
	"github.com/gogotex/gogotex/backend/go-collab/pkg/logger"
	"github.com/gogotex/gogotex/backend/go-collab/pkg/metrics"
)

// UserResolver maps a verified identity to a stored user profile.
type UserResolver interface {
	ResolveIdentity(ctx context.Context, id *tokens.Identity) (*models.User, error)
}

// PresenceTracker mirrors session membership somewhere other instances can
// see it. Calls are best effort.
type PresenceTracker interface {
	Online(ctx context.Context, sessionID string, id *tokens.Identity) error
	Rooms(ctx context.Context, sessionID string, rooms []string) error
	Heartbeat(ctx context.Context, sessionID string) error
	Offline(ctx context.Context, sessionID string) error
}

// AccessChecker resolves a user's role on a document. An empty role means
// no access.
type AccessChecker interface {
	Role(ctx context.Context, userID, docID string) (document.Role, error)
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

func WithUsers(u UserResolver) ManagerOption {
	return func(m *Manager) { m.users = u }
}

func WithPresence(p PresenceTracker) ManagerOption {
	return func(m *Manager) { m.presence = p }
}

// WithAccess requires read access to join a room and edit access to edit.
// Roles are looked up by token subject.
func WithAccess(a AccessChecker) ManagerOption {
	return func(m *Manager) { m.access = a }
}

// presenceTimeout bounds each presence call so a slow Redis never stalls a session.
const presenceTimeout = 2 * time.Second

// Manager owns session lifecycles: it authenticates connections, routes
// their joins, leaves and edits to the registry and cleans up on disconnect.
type Manager struct {
	verifier tokens.Verifier
	reg      *Registry
	users    UserResolver
	presence PresenceTracker
	access   AccessChecker
	log      *logger.Logger
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(verifier tokens.Verifier, reg *Registry, opts ...ManagerOption) *Manager {
	m := &Manager{
		verifier: verifier,
		reg:      reg,
		log:      logger.Named("session"),
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Registry returns the room registry sessions are routed to.
func (m *Manager) Registry() *Registry { return m.reg }

// Connect authenticates a new connection identified by id. On failure the
// session never exists and the id is free again. An id still held by a live
// or closing session is refused with ErrSessionExists.
func (m *Manager) Connect(ctx context.Context, id, rawToken string, sink Sink) (*Session, error) {
	s := &Session{ID: id, sink: sink, ConnectedAt: m.now().UTC()}
	s.setState(StateConnecting)

	m.mu.Lock()
	if _, taken := m.sessions[id]; taken {
		m.mu.Unlock()
		return nil, ErrSessionExists
	}
	m.sessions[id] = s
	m.mu.Unlock()

	fail := func(err error) (*Session, error) {
		s.setState(StateClosed)
		m.mu.Lock()
		delete(m.sessions, id)
		m.mu.Unlock()
		metrics.AuthFailures.WithLabelValues(Code(err)).Inc()
		m.log.Infof("refused %s: %v", id, err)
		return nil, err
	}

	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return fail(ErrMissingToken)
	}
	ident, err := m.verifier.Verify(ctx, rawToken)
	if err != nil {
		return fail(err)
	}
	s.Identity = ident
	s.UserID = ident.Subject
	if m.users != nil {
		u, err := m.users.ResolveIdentity(ctx, ident)
		if err != nil {
			return fail(fmt.Errorf("resolve user: %w", err))
		}
		if u != nil && u.ID != "" {
			s.UserID = u.ID
		}
	}

	m.reg.Dispatcher().Register(id, s)
	metrics.SessionsActive.Inc()
	if !s.state.CompareAndSwap(int32(StateConnecting), int32(StateAuthenticated)) {
		// disconnected while authenticating
		m.reg.Dispatcher().Unregister(id)
		metrics.SessionsActive.Dec()
		return nil, ErrSessionClosed
	}
	m.track(func(ctx context.Context, p PresenceTracker) error { return p.Online(ctx, id, ident) })
	m.log.Infof("%s authenticated as %s", id, ident.Subject)
	return s, nil
}

// Session returns the live session with the given id.
func (m *Manager) Session(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.State() == StateClosed || s.State() == StateConnecting {
		return nil, false
	}
	return s, true
}

// Sessions returns the number of authenticated sessions.
func (m *Manager) Sessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sessions {
		if st := s.State(); st == StateAuthenticated || st == StateActive {
			n++
		}
	}
	return n
}

// lock acquires the op lock of a usable session. Callers must unlock.
func (m *Manager) lock(id string) (*Session, error) {
	s, ok := m.Session(id)
	if !ok {
		return nil, ErrSessionClosed
	}
	s.ops.Lock()
	if s.State() == StateClosed {
		s.ops.Unlock()
		return nil, ErrSessionClosed
	}
	return s, nil
}

// Join adds the session to the room of docID and returns the snapshot.
func (m *Manager) Join(ctx context.Context, sessionID, docID string) (*document.Document, error) {
	return m.JoinRef(ctx, sessionID, docID, "")
}

// JoinRef is Join with ref echoed on the joined event. The room delivers
// that event to the session before any later update.
func (m *Manager) JoinRef(ctx context.Context, sessionID, docID, ref string) (*document.Document, error) {
	if strings.TrimSpace(docID) == "" {
		return nil, fmt.Errorf("%w: document id required", ErrBadRequest)
	}
	s, err := m.lock(sessionID)
	if err != nil {
		return nil, err
	}
	defer s.ops.Unlock()
	if err := m.authorize(ctx, s, docID, document.Role.CanRead); err != nil {
		return nil, err
	}

	doc, err := m.reg.JoinRef(ctx, docID, s.ID, ref)
	if err != nil {
		return nil, err
	}
	s.activate()
	m.syncRooms(s.ID)
	return doc, nil
}

// Leave removes the session from the room of docID. Leaving a room the
// session is not in is not an error.
func (m *Manager) Leave(ctx context.Context, sessionID, docID string) error {
	s, err := m.lock(sessionID)
	if err != nil {
		return err
	}
	defer s.ops.Unlock()
	m.reg.Leave(docID, s.ID)
	m.syncRooms(s.ID)
	return nil
}

// Edit submits an edit on behalf of the session. SessionID and EditorID are
// filled from the session.
func (m *Manager) Edit(ctx context.Context, sessionID string, sub EditSubmission) (*document.Document, error) {
	if strings.TrimSpace(sub.DocumentID) == "" {
		return nil, fmt.Errorf("%w: document id required", ErrBadRequest)
	}
	s, err := m.lock(sessionID)
	if err != nil {
		return nil, err
	}
	defer s.ops.Unlock()
	if err := m.authorize(ctx, s, sub.DocumentID, document.Role.CanEdit); err != nil {
		metrics.Edits.WithLabelValues(Code(err)).Inc()
		return nil, err
	}
	sub.SessionID = s.ID
	sub.EditorID = s.UserID
	return m.reg.Submit(ctx, sub)
}

// authorize checks the session's role on docID against want. Without an
// access checker everything is allowed.
func (m *Manager) authorize(ctx context.Context, s *Session, docID string, want func(document.Role) bool) error {
	if m.access == nil {
		return nil
	}
	role, err := m.access.Role(ctx, s.Identity.Subject, docID)
	if err != nil {
		return fmt.Errorf("access check: %w", err)
	}
	if !want(role) {
		return fmt.Errorf("%w: %s on %s", ErrForbidden, s.Identity.Subject, docID)
	}
	return nil
}

// Heartbeat refreshes the session's presence record.
func (m *Manager) Heartbeat(sessionID string) {
	if _, ok := m.Session(sessionID); !ok {
		return
	}
	m.track(func(ctx context.Context, p PresenceTracker) error { return p.Heartbeat(ctx, sessionID) })
}

// Disconnect closes the session and removes it from every room. reason is
// recorded for metrics and may be nil. The id becomes reusable only once
// cleanup has finished. Closing an unknown or closed session is a no-op.
func (m *Manager) Disconnect(sessionID string, reason error) {
	m.mu.Lock()
	s := m.sessions[sessionID]
	m.mu.Unlock()
	if s == nil {
		return
	}
	prev, ok := s.markClosed()
	if !ok {
		return
	}
	wasLive := prev == StateAuthenticated || prev == StateActive

	// wait out any operation in flight so a join that completes now is
	// still cleaned up below
	s.ops.Lock()
	rooms := m.reg.RoomsOf(sessionID)
	for _, docID := range rooms {
		m.reg.Leave(docID, sessionID)
	}
	s.ops.Unlock()

	m.reg.Dispatcher().Unregister(sessionID)
	m.track(func(ctx context.Context, p PresenceTracker) error { return p.Offline(ctx, sessionID) })
	if s.sink != nil {
		_ = s.sink.Close()
	}
	if wasLive {
		metrics.SessionsActive.Dec()
	}
	label := "client"
	if reason != nil {
		label = Code(reason)
	}
	metrics.Disconnects.WithLabelValues(label).Inc()
	m.log.Infof("%s closed (%s), left %d rooms", sessionID, label, len(rooms))

	m.mu.Lock()
	if m.sessions[sessionID] == s {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()
}

// Shutdown disconnects every session and drains the registry.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		m.Disconnect(id, ErrShuttingDown)
	}
	return m.reg.Drain(ctx)
}

func (m *Manager) syncRooms(sessionID string) {
	rooms := m.reg.RoomsOf(sessionID)
	m.track(func(ctx context.Context, p PresenceTracker) error { return p.Rooms(ctx, sessionID, rooms) })
}

func (m *Manager) track(fn func(ctx context.Context, p PresenceTracker) error) {
	if m.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()
	if err := fn(ctx, m.presence); err != nil {
		m.log.Warnf("presence update failed: %v", err)
	}
}
