package collab

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gogotex/gogotex/backend/go-collab/internal/document"
	"github.com/stretchr/testify/require"
)

func TestRegistry_JoinIsIdempotent(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(newCountingStore())

	d1, err := r.Join(ctx, "doc-1", "s1")
	require.NoError(t, err)
	d2, err := r.Join(ctx, "doc-1", "s1")
	require.NoError(t, err)

	require.Equal(t, d1.Version, d2.Version)
	require.Equal(t, []string{"s1"}, r.MembersOf("doc-1"))
	require.Equal(t, []string{"doc-1"}, r.RoomsOf("s1"))
	assertConsistent(t, r)
}

func TestRegistry_JoinReturnsLoadedSnapshot(t *testing.T) {
	ctx := context.Background()
	store := newCountingStore()
	stored := &document.Document{ID: "doc-1", Title: "Paper", Content: "\\section{Intro}", Version: 7}
	require.NoError(t, store.MemoryRepo.Save(ctx, stored))
	r := NewRegistry(store)

	got, err := r.Join(ctx, "doc-1", "s1")
	require.NoError(t, err)
	loaded, err := store.MemoryRepo.Load(ctx, "doc-1")
	require.NoError(t, err)
	require.Equal(t, loaded, got)

	// unknown documents start empty at version 0
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r = NewRegistry(newCountingStore(), WithClock(func() time.Time { return now }))
	got, err = r.Join(ctx, "fresh", "s1")
	require.NoError(t, err)
	require.Equal(t, document.Empty("fresh", now), got)
}

func TestRegistry_SubmitWithoutRoom(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Submit(context.Background(), EditSubmission{DocumentID: "D2", SessionID: "s1", Content: "x"})
	require.ErrorIs(t, err, ErrNoSuchRoom)
	require.Empty(t, r.Rooms())
}

func TestRegistry_NonMemberIsRejected(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(nil)
	_, err := r.Join(ctx, "doc-1", "s1")
	require.NoError(t, err)

	_, err = r.Submit(ctx, EditSubmission{DocumentID: "doc-1", SessionID: "intruder", Content: "x"})
	require.ErrorIs(t, err, ErrNotAMember)

	snap, ok := r.Snapshot("doc-1")
	require.True(t, ok)
	require.Equal(t, int64(0), snap.Version)
	require.Equal(t, "", snap.Content)
}

func TestRegistry_VersionGuard(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(nil)
	_, err := r.Join(ctx, "doc-1", "s1")
	require.NoError(t, err)

	d, err := r.Submit(ctx, EditSubmission{DocumentID: "doc-1", SessionID: "s1", Content: "a", Title: ptr("T")})
	require.NoError(t, err)
	require.Equal(t, int64(1), d.Version)
	require.Equal(t, "T", d.Title)

	_, err = r.Submit(ctx, EditSubmission{DocumentID: "doc-1", SessionID: "s1", Content: "b", BaseVersion: ptr(int64(0))})
	require.ErrorIs(t, err, ErrVersionConflict)
	var ce *ConflictError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, int64(1), ce.Current)

	snap, _ := r.Snapshot("doc-1")
	require.Equal(t, "a", snap.Content)
	require.Equal(t, int64(1), snap.Version)

	d, err = r.Submit(ctx, EditSubmission{DocumentID: "doc-1", SessionID: "s1", Content: "b", BaseVersion: ptr(int64(1))})
	require.NoError(t, err)
	require.Equal(t, int64(2), d.Version)
	require.Equal(t, "T", d.Title)
}

func TestRegistry_MergeFailureLeavesDocumentUntouched(t *testing.T) {
	ctx := context.Background()
	merge := func(cur *document.Document, e EditSubmission) (string, error) {
		if e.Content == "bad" {
			return "", errBoom
		}
		return cur.Content + e.Content, nil
	}
	r := NewRegistry(nil, WithMerge(merge))
	_, err := r.Join(ctx, "doc-1", "s1")
	require.NoError(t, err)

	d, err := r.Submit(ctx, EditSubmission{DocumentID: "doc-1", SessionID: "s1", Content: "ab"})
	require.NoError(t, err)
	require.Equal(t, "ab", d.Content)

	_, err = r.Submit(ctx, EditSubmission{DocumentID: "doc-1", SessionID: "s1", Content: "bad"})
	require.ErrorIs(t, err, ErrMergeFailed)
	require.Equal(t, "merge_failed", Code(err))

	snap, _ := r.Snapshot("doc-1")
	require.Equal(t, "ab", snap.Content)
	require.Equal(t, int64(1), snap.Version)
}

func TestRegistry_ConcurrentEditsGetContiguousVersions(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(nil, WithMailboxSize(4))
	const sessions, perSession = 6, 25

	sinks := make([]*recSink, sessions)
	for i := 0; i < sessions; i++ {
		sid := fmt.Sprintf("s%d", i)
		sinks[i] = &recSink{}
		r.Dispatcher().Register(sid, sinks[i])
		_, err := r.Join(ctx, "doc-1", sid)
		require.NoError(t, err)
	}

	var (
		mu       sync.Mutex
		versions []int64
		wg       sync.WaitGroup
	)
	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < perSession; j++ {
				d, err := r.Submit(ctx, EditSubmission{
					DocumentID: "doc-1",
					SessionID:  fmt.Sprintf("s%d", i),
					Content:    fmt.Sprintf("%d-%d", i, j),
				})
				if !assertNoError(t, err) {
					return
				}
				mu.Lock()
				versions = append(versions, d.Version)
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })
	require.Len(t, versions, sessions*perSession)
	for i, v := range versions {
		require.Equal(t, int64(i+1), v)
	}

	// every member saw every update, in version order
	for _, s := range sinks {
		ups := s.updates()
		require.Len(t, ups, sessions*perSession)
		for i, u := range ups {
			require.Equal(t, int64(i+1), u.Document.Version)
		}
	}
}

func assertNoError(t *testing.T, err error) bool {
	t.Helper()
	if err != nil {
		t.Errorf("unexpected error: %v", err)
		return false
	}
	return true
}

func TestRegistry_MembershipStaysConsistentUnderChurn(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(newCountingStore())
	docs := []string{"a", "b", "c"}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sid := fmt.Sprintf("s%d", i)
			for n := 0; n < 60; n++ {
				doc := docs[(i+n)%len(docs)]
				if n%3 == 2 {
					r.Leave(doc, sid)
					continue
				}
				_, _ = r.Join(ctx, doc, sid)
			}
			for _, doc := range r.RoomsOf(sid) {
				r.Leave(doc, sid)
			}
		}(i)
	}
	checked := make(chan struct{})
	go func() {
		defer close(checked)
		for {
			select {
			case <-stop:
				return
			default:
				if !assertConsistent(t, r) {
					return
				}
				time.Sleep(time.Millisecond)
			}
		}
	}()
	wg.Wait()
	close(stop)
	<-checked

	assertConsistent(t, r)
	require.NoError(t, r.Drain(ctx))
	require.Empty(t, r.Rooms())
}

func TestRegistry_LastLeaveFlushesOnce(t *testing.T) {
	ctx := context.Background()
	store := newCountingStore()
	r := NewRegistry(store)

	_, err := r.Join(ctx, "doc-1", "s1")
	require.NoError(t, err)
	_, err = r.Submit(ctx, EditSubmission{DocumentID: "doc-1", SessionID: "s1", Content: "final"})
	require.NoError(t, err)

	r.Leave("doc-1", "s1")
	r.Leave("doc-1", "s1") // racing leave is a no-op
	require.Empty(t, r.MembersOf("doc-1"))
	require.Empty(t, r.RoomsOf("s1"))

	require.Eventually(t, func() bool { return len(store.saved()) == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, r.Drain(ctx))
	saves := store.saved()
	require.Len(t, saves, 1)
	require.Equal(t, "final", saves[0].Content)
	require.Equal(t, int64(1), saves[0].Version)
}

func TestRegistry_RecreatedRoomWaitsForFlush(t *testing.T) {
	ctx := context.Background()
	store := newCountingStore()
	r := NewRegistry(store)

	_, err := r.Join(ctx, "doc-1", "s1")
	require.NoError(t, err)
	_, err = r.Submit(ctx, EditSubmission{DocumentID: "doc-1", SessionID: "s1", Content: "v1"})
	require.NoError(t, err)

	gate := make(chan struct{})
	store.mu.Lock()
	store.gate = gate
	store.mu.Unlock()
	r.Leave("doc-1", "s1")

	// still readable while the flush is pending
	snap, ok := r.Snapshot("doc-1")
	require.True(t, ok)
	require.Equal(t, "v1", snap.Content)

	joined := make(chan *document.Document, 1)
	go func() {
		d, err := r.Join(ctx, "doc-1", "s2")
		if err == nil {
			joined <- d
		}
		close(joined)
	}()

	select {
	case <-joined:
		t.Fatal("join completed before the previous room flushed")
	case <-time.After(50 * time.Millisecond):
	}

	store.mu.Lock()
	store.gate = nil
	store.mu.Unlock()
	close(gate)

	select {
	case d := <-joined:
		require.NotNil(t, d)
		require.Equal(t, "v1", d.Content)
		require.Equal(t, int64(1), d.Version)
	case <-time.After(time.Second):
		t.Fatal("join never completed")
	}
}

func TestRegistry_LoadFailure(t *testing.T) {
	ctx := context.Background()
	store := newCountingStore()
	store.loadErr = errBoom
	r := NewRegistry(store)

	_, err := r.Join(ctx, "doc-1", "s1")
	require.ErrorIs(t, err, errBoom)
	require.Empty(t, r.RoomsOf("s1"))
	require.Eventually(t, func() bool { return len(r.Rooms()) == 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, r.Drain(ctx))
	require.Empty(t, store.saved(), "a room that never loaded must not overwrite the store")
}

func TestRegistry_DrainFlushesEveryRoom(t *testing.T) {
	ctx := context.Background()
	store := newCountingStore()
	r := NewRegistry(store)

	for _, doc := range []string{"a", "b"} {
		_, err := r.Join(ctx, doc, "s1")
		require.NoError(t, err)
		_, err = r.Submit(ctx, EditSubmission{DocumentID: doc, SessionID: "s1", Content: doc + "!"})
		require.NoError(t, err)
	}
	require.Len(t, r.Rooms(), 2)

	require.NoError(t, r.Drain(ctx))
	require.Len(t, store.saved(), 2)
	require.Empty(t, r.Rooms())
	require.Empty(t, r.RoomsOf("s1"))

	_, err := r.Join(ctx, "a", "s1")
	require.ErrorIs(t, err, ErrShuttingDown)
}

func TestRegistry_RoomsListing(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(nil)
	_, err := r.Join(ctx, "b", "s1")
	require.NoError(t, err)
	_, err = r.Join(ctx, "a", "s2")
	require.NoError(t, err)
	_, err = r.Join(ctx, "a", "s1")
	require.NoError(t, err)
	_, err = r.Submit(ctx, EditSubmission{DocumentID: "a", SessionID: "s2", Content: "x"})
	require.NoError(t, err)

	rooms := r.Rooms()
	require.Len(t, rooms, 2)
	require.Equal(t, RoomInfo{ID: "a", Version: 1, Members: []string{"s1", "s2"}}, rooms[0])
	require.Equal(t, "b", rooms[1].ID)
}

func TestRegistry_JoinedPrecedesLaterUpdates(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(nil)
	r.Dispatcher().Register("writer", &recSink{})
	_, err := r.Join(ctx, "doc-1", "writer")
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_, err := r.Submit(ctx, EditSubmission{DocumentID: "doc-1", SessionID: "writer", Content: fmt.Sprint(i)})
			if !assertNoError(t, err) {
				return
			}
		}
	}()

	const rounds = 50
	reader := &recSink{}
	r.Dispatcher().Register("reader", reader)
	var joinedAt []int64
	for i := 0; i < rounds; i++ {
		d, err := r.JoinRef(ctx, "doc-1", "reader", fmt.Sprintf("j%d", i))
		require.NoError(t, err)
		joinedAt = append(joinedAt, d.Version)
		r.Leave("doc-1", "reader")
	}
	wg.Wait()

	last, joins := int64(-1), 0
	for _, ev := range reader.snapshot() {
		switch ev.Name {
		case EventJoined:
			j := ev.Data.(Joined)
			require.Equal(t, "doc-1", j.Room)
			require.Equal(t, fmt.Sprintf("j%d", joins), ev.Ref)
			require.Equal(t, joinedAt[joins], j.Document.Version)
			require.GreaterOrEqual(t, j.Document.Version, last)
			last = j.Document.Version
			joins++
		case EventDocumentUpdated:
			v := ev.Data.(DocumentUpdated).Document.Version
			require.Greater(t, v, last, "update at v%d arrived after a newer snapshot", v)
			last = v
		}
	}
	require.Equal(t, rounds, joins)
}

func TestRegistry_ActiveCoversLoadingRooms(t *testing.T) {
	ctx := context.Background()
	store := newCountingStore()
	_, err := store.Create(ctx, &document.Document{ID: "doc-1", Content: "stored"})
	require.NoError(t, err)
	r := NewRegistry(store)

	inWrite, release := make(chan struct{}), make(chan struct{})
	wrote := make(chan error, 1)
	go func() {
		wrote <- r.Exclusive(ctx, "doc-1", func() error {
			close(inWrite)
			<-release
			return store.Update(ctx, "doc-1", "direct", nil)
		})
	}()
	<-inWrite

	joined := make(chan *document.Document, 1)
	go func() {
		d, err := r.Join(ctx, "doc-1", "s1")
		assertNoError(t, err)
		joined <- d
	}()
	// the room exists but cannot load until the write is done
	require.Eventually(t, func() bool { return r.Active("doc-1") }, time.Second, time.Millisecond)
	_, ok := r.Snapshot("doc-1")
	require.False(t, ok)
	require.ErrorIs(t, r.Exclusive(ctx, "doc-1", func() error {
		require.Fail(t, "write ran while a room was loading")
		return nil
	}), ErrDocumentLive)

	close(release)
	require.NoError(t, <-wrote)
	d := <-joined
	require.Equal(t, "direct", d.Content)
	require.Equal(t, int64(1), d.Version)

	r.Leave("doc-1", "s1")
	require.NoError(t, r.Drain(ctx))
	require.False(t, r.Active("doc-1"))
	ran := false
	require.NoError(t, r.Exclusive(ctx, "doc-1", func() error { ran = true; return nil }))
	require.True(t, ran)
}
