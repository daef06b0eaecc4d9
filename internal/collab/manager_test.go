package collab

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gogotex/gogotex/backend/go-collab/internal/document"
	"github.com/gogotex/gogotex/backend/go-collab/internal/models"
	"github.com/gogotex/gogotex/backend/go-collab/internal/tokens"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, store Store, opts ...ManagerOption) *Manager {
	t.Helper()
	m := NewManager(fakeVerifier{}, NewRegistry(store), opts...)
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	return m
}

func connect(t *testing.T, m *Manager, id, subject string) (*Session, *recSink) {
	t.Helper()
	sink := &recSink{}
	s, err := m.Connect(context.Background(), id, "token-"+subject, sink)
	require.NoError(t, err)
	require.Equal(t, StateAuthenticated, s.State())
	return s, sink
}

func TestManager_TwoEditorsScenario(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, newCountingStore())
	a, sinkA := connect(t, m, "A", "alice")
	_, sinkB := connect(t, m, "B", "bob")

	for _, id := range []string{"A", "B"} {
		d, err := m.Join(ctx, id, "D1")
		require.NoError(t, err)
		require.Equal(t, int64(0), d.Version)
	}
	require.Equal(t, StateActive, a.State())

	d, err := m.Edit(ctx, "A", EditSubmission{DocumentID: "D1", Content: "hello"})
	require.NoError(t, err)
	require.Equal(t, int64(1), d.Version)
	for _, sink := range []*recSink{sinkA, sinkB} {
		ups := sink.updates()
		require.Len(t, ups, 1)
		require.Equal(t, int64(1), ups[0].Document.Version)
		require.Equal(t, "alice", ups[0].EditorID)
	}

	_, err = m.Edit(ctx, "B", EditSubmission{DocumentID: "D1", Content: "stale", BaseVersion: ptr(int64(0))})
	require.ErrorIs(t, err, ErrVersionConflict)
	require.Equal(t, "version_conflict", Code(err))
	require.Len(t, sinkA.updates(), 1, "rejections are never broadcast")

	d, err = m.Edit(ctx, "B", EditSubmission{DocumentID: "D1", Content: "fresh", BaseVersion: ptr(int64(1))})
	require.NoError(t, err)
	require.Equal(t, int64(2), d.Version)
	require.Len(t, sinkA.updates(), 2)
	require.Equal(t, "bob", sinkA.updates()[1].EditorID)
}

func TestManager_DisconnectCleansUpAndFlushesOnce(t *testing.T) {
	ctx := context.Background()
	store := newCountingStore()
	m := newTestManager(t, store)
	_, sink := connect(t, m, "A", "alice")

	_, err := m.Join(ctx, "A", "D1")
	require.NoError(t, err)
	_, err = m.Edit(ctx, "A", EditSubmission{DocumentID: "D1", Content: "draft"})
	require.NoError(t, err)

	m.Disconnect("A", ErrTimeout)
	require.True(t, sink.isClosed())
	require.Empty(t, m.Registry().MembersOf("D1"))
	require.Empty(t, m.Registry().RoomsOf("A"))
	_, ok := m.Session("A")
	require.False(t, ok)

	require.Eventually(t, func() bool { return len(store.saved()) == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, "draft", store.saved()[0].Content)

	// late events are dropped, not queued
	_, err = m.Edit(ctx, "A", EditSubmission{DocumentID: "D1", Content: "late"})
	require.ErrorIs(t, err, ErrSessionClosed)
	m.Disconnect("A", nil)

	// the id is free again once cleanup is done
	_, err = m.Connect(ctx, "A", "token-alice", &recSink{})
	require.NoError(t, err)

	require.NoError(t, m.Registry().Drain(ctx))
	require.Len(t, store.saved(), 1)
}

func TestManager_AuthFailures(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil)

	_, err := m.Connect(ctx, "s1", "", &recSink{})
	require.ErrorIs(t, err, ErrMissingToken)
	require.Equal(t, "missing_token", Code(err))

	_, err = m.Connect(ctx, "s1", "forged", &recSink{})
	require.ErrorIs(t, err, tokens.ErrInvalid)

	_, err = m.Connect(ctx, "s1", "token-expired", &recSink{})
	require.ErrorIs(t, err, tokens.ErrExpired)
	require.Equal(t, "token_expired", Code(err))

	_, ok := m.Session("s1")
	require.False(t, ok)
	require.Equal(t, 0, m.Sessions())

	// a refused id is immediately reusable
	_, err = m.Connect(ctx, "s1", "token-carol", &recSink{})
	require.NoError(t, err)
}

func TestManager_RefusesDuplicateID(t *testing.T) {
	m := newTestManager(t, nil)
	connect(t, m, "s1", "alice")
	_, err := m.Connect(context.Background(), "s1", "token-bob", &recSink{})
	require.ErrorIs(t, err, ErrSessionExists)
	require.Equal(t, 1, m.Sessions())
}

func TestManager_EditPolicies(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil)
	connect(t, m, "s1", "alice")
	connect(t, m, "s2", "bob")

	_, err := m.Edit(ctx, "s1", EditSubmission{DocumentID: "D2", Content: "x"})
	require.ErrorIs(t, err, ErrNoSuchRoom)

	_, err = m.Join(ctx, "s2", "D3")
	require.NoError(t, err)
	_, err = m.Edit(ctx, "s1", EditSubmission{DocumentID: "D3", Content: "x"})
	require.ErrorIs(t, err, ErrNotAMember)

	_, err = m.Join(ctx, "s1", " ")
	require.ErrorIs(t, err, ErrBadRequest)
	_, err = m.Edit(ctx, "s1", EditSubmission{Content: "x"})
	require.ErrorIs(t, err, ErrBadRequest)

	_, err = m.Join(ctx, "nobody", "D3")
	require.ErrorIs(t, err, ErrSessionClosed)

	// leaving a room twice is harmless
	require.NoError(t, m.Leave(ctx, "s2", "D3"))
	require.NoError(t, m.Leave(ctx, "s2", "D3"))
}

type fakeUsers struct{ err error }

func (f fakeUsers) ResolveIdentity(ctx context.Context, id *tokens.Identity) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.User{ID: "user-" + id.Subject, Sub: id.Subject}, nil
}

type fakePresence struct {
	mu    sync.Mutex
	rooms map[string][]string
	calls []string
	err   error
}

func (p *fakePresence) record(call string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call)
	return p.err
}

func (p *fakePresence) Online(ctx context.Context, id string, _ *tokens.Identity) error {
	return p.record("online:" + id)
}

func (p *fakePresence) Rooms(ctx context.Context, id string, rooms []string) error {
	p.mu.Lock()
	if p.rooms == nil {
		p.rooms = map[string][]string{}
	}
	p.rooms[id] = rooms
	p.mu.Unlock()
	return p.record("rooms:" + id)
}

func (p *fakePresence) Heartbeat(ctx context.Context, id string) error {
	return p.record("heartbeat:" + id)
}

func (p *fakePresence) Offline(ctx context.Context, id string) error {
	return p.record("offline:" + id)
}

func TestManager_UsersAndPresence(t *testing.T) {
	ctx := context.Background()
	presence := &fakePresence{}
	m := newTestManager(t, nil, WithUsers(fakeUsers{}), WithPresence(presence))

	s, sink := connect(t, m, "s1", "alice")
	require.Equal(t, "user-alice", s.UserID)

	_, err := m.Join(ctx, "s1", "D1")
	require.NoError(t, err)
	_, err = m.Edit(ctx, "s1", EditSubmission{DocumentID: "D1", Content: "x"})
	require.NoError(t, err)
	require.Equal(t, "user-alice", sink.updates()[0].EditorID)

	m.Heartbeat("s1")
	m.Disconnect("s1", nil)

	presence.mu.Lock()
	defer presence.mu.Unlock()
	require.Equal(t, []string{"online:s1", "rooms:s1", "heartbeat:s1", "offline:s1"}, presence.calls)
	require.Equal(t, []string{"D1"}, presence.rooms["s1"])
}

func TestManager_PresenceFailureIsNotFatal(t *testing.T) {
	m := newTestManager(t, nil, WithPresence(&fakePresence{err: errors.New("redis down")}))
	connect(t, m, "s1", "alice")
	_, err := m.Join(context.Background(), "s1", "D1")
	require.NoError(t, err)
}

func TestManager_UserResolutionFailureRefuses(t *testing.T) {
	m := newTestManager(t, nil, WithUsers(fakeUsers{err: errBoom}))
	_, err := m.Connect(context.Background(), "s1", "token-alice", &recSink{})
	require.ErrorIs(t, err, errBoom)
	_, ok := m.Session("s1")
	require.False(t, ok)
}

func TestManager_ShutdownDisconnectsAndDrains(t *testing.T) {
	ctx := context.Background()
	store := newCountingStore()
	m := NewManager(fakeVerifier{}, NewRegistry(store))
	_, sinkA := connect(t, m, "A", "alice")
	_, sinkB := connect(t, m, "B", "bob")
	_, err := m.Join(ctx, "A", "D1")
	require.NoError(t, err)
	_, err = m.Join(ctx, "B", "D2")
	require.NoError(t, err)

	require.NoError(t, m.Shutdown(ctx))
	require.True(t, sinkA.isClosed())
	require.True(t, sinkB.isClosed())
	require.Equal(t, 0, m.Sessions())
	require.Len(t, store.saved(), 2)
	require.Empty(t, m.Registry().Rooms())
}

func TestManager_ClosedSessionDropsDeliveries(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil)
	connect(t, m, "A", "alice")
	b, sinkB := connect(t, m, "B", "bob")
	_, err := m.Join(ctx, "A", "D1")
	require.NoError(t, err)
	_, err = m.Join(ctx, "B", "D1")
	require.NoError(t, err)

	// B's transport is gone but cleanup has not run yet
	b.markClosed()
	_, err = m.Edit(ctx, "A", EditSubmission{DocumentID: "D1", Content: "x"})
	require.NoError(t, err)
	require.Empty(t, sinkB.updates())
}

// roleTable maps "subject/doc" to a role.
type roleTable map[string]document.Role

func (r roleTable) Role(ctx context.Context, userID, docID string) (document.Role, error) {
	if userID == "broken" {
		return "", errBoom
	}
	return r[userID+"/"+docID], nil
}

func TestManager_AccessControl(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil, WithAccess(roleTable{
		"alice/D1": document.RoleCreator,
		"bob/D1":   document.RoleRead,
	}))
	connect(t, m, "A", "alice")
	_, sinkB := connect(t, m, "B", "bob")
	connect(t, m, "C", "carol")
	connect(t, m, "X", "broken")

	_, err := m.Join(ctx, "A", "D1")
	require.NoError(t, err)
	_, err = m.Join(ctx, "B", "D1")
	require.NoError(t, err)

	_, err = m.Join(ctx, "C", "D1")
	require.ErrorIs(t, err, ErrForbidden)
	require.Equal(t, "forbidden", Code(err))
	require.Empty(t, m.Registry().RoomsOf("C"))

	_, err = m.Join(ctx, "X", "D1")
	require.ErrorIs(t, err, errBoom)
	require.Equal(t, "internal_error", Code(err))

	// read access joins but cannot edit
	_, err = m.Edit(ctx, "B", EditSubmission{DocumentID: "D1", Content: "nope"})
	require.ErrorIs(t, err, ErrForbidden)
	d, err := m.Edit(ctx, "A", EditSubmission{DocumentID: "D1", Content: "yes"})
	require.NoError(t, err)
	require.Equal(t, int64(1), d.Version)
	ups := sinkB.updates()
	require.Len(t, ups, 1)
	require.Equal(t, "yes", ups[0].Document.Content)
}

func TestManager_JoinedCarriesRef(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, nil)
	_, sink := connect(t, m, "A", "alice")

	_, err := m.JoinRef(ctx, "A", "D1", "r1")
	require.NoError(t, err)
	_, err = m.Edit(ctx, "A", EditSubmission{DocumentID: "D1", Content: "x"})
	require.NoError(t, err)
	// joining again re-sends the current snapshot through the room
	_, err = m.JoinRef(ctx, "A", "D1", "r2")
	require.NoError(t, err)

	require.Equal(t, []string{EventJoined, EventDocumentUpdated, EventJoined}, sink.names())
	evs := sink.snapshot()
	require.Equal(t, "r1", evs[0].Ref)
	require.Equal(t, int64(0), evs[0].Data.(Joined).Document.Version)
	require.Equal(t, "r2", evs[2].Ref)
	require.Equal(t, int64(1), evs[2].Data.(Joined).Document.Version)
	require.Equal(t, []string{"A"}, m.Registry().MembersOf("D1"))
}
