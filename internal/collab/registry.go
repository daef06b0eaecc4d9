package collab

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gogotex/gogotex/backend/go-collab/internal/document"
	"github.com/gogotex/gogotex/backend/go-collab/pkg/logger"
	"github.com/gogotex/gogotex/backend/go-collab/pkg/metrics"
)

// Store is the persistence collaborator. It is called when a room is created
// and when it is destroyed, never per edit. Load returns document.ErrNotFound
// for unknown ids.
type Store interface {
	Load(ctx context.Context, id string) (*document.Document, error)
	Save(ctx context.Context, d *document.Document) error
}

const (
	defaultMailboxSize  = 128
	defaultFlushTimeout = 10 * time.Second
)

// Option configures a Registry.
type Option func(*Registry)

// WithMerge replaces the default whole-content merge.
func WithMerge(m MergeFunc) Option {
	return func(r *Registry) {
		if m != nil {
			r.merge = m
		}
	}
}

// WithMailboxSize bounds the queue of pending operations per room.
func WithMailboxSize(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.mailboxSize = n
		}
	}
}

// WithFlushTimeout bounds each Load and Save call.
func WithFlushTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.flushTimeout = d
		}
	}
}

// WithClock overrides the clock used for UpdatedAt and empty documents.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// Registry owns every active room. Each room runs as its own goroutine that
// holds the document and applies edits one at a time; rooms for different
// documents proceed in parallel.
//
// Membership lives here rather than in the room goroutine so that
// MembersOf and RoomsOf observe both directions of the relation under one
// lock.
type Registry struct {
	store        Store
	merge        MergeFunc
	dispatch     *Dispatcher
	log          *logger.Logger
	mailboxSize  int
	flushTimeout time.Duration
	now          func() time.Time

	mu       sync.Mutex
	rooms    map[string]*room
	closing  map[string]*room // retired rooms still flushing
	writes   map[string]chan struct{} // out-of-room writes in progress
	index    map[string]map[string]struct{}
	draining bool
}

// NewRegistry builds a registry persisting through store. store may be nil,
// in which case rooms start empty and are never saved.
func NewRegistry(store Store, opts ...Option) *Registry {
	r := &Registry{
		store:        store,
		merge:        ReplaceContent,
		log:          logger.Named("registry"),
		mailboxSize:  defaultMailboxSize,
		flushTimeout: defaultFlushTimeout,
		now:          time.Now,
		rooms:        make(map[string]*room),
		closing:      make(map[string]*room),
		writes:       make(map[string]chan struct{}),
		index:        make(map[string]map[string]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.dispatch = NewDispatcher(r)
	return r
}

// Dispatcher returns the broadcast dispatcher rooms deliver through.
func (r *Registry) Dispatcher() *Dispatcher { return r.dispatch }

// Join adds sessionID to the room of docID, creating and loading the room
// if needed, and returns the current snapshot. Joining twice keeps a single
// membership and returns the snapshot again.
func (r *Registry) Join(ctx context.Context, docID, sessionID string) (*document.Document, error) {
	return r.JoinRef(ctx, docID, sessionID, "")
}

// JoinRef is Join with the client reference echoed on the joined event the
// room sends to sessionID.
func (r *Registry) JoinRef(ctx context.Context, docID, sessionID, ref string) (*document.Document, error) {
	r.mu.Lock()
	if r.draining {
		r.mu.Unlock()
		return nil, ErrShuttingDown
	}
	rm := r.rooms[docID]
	if rm == nil {
		rm = r.newRoomLocked(docID)
	}
	rm.pending++
	r.mu.Unlock()

	reply := make(chan result, 1)
	if err := rm.send(ctx, joinMsg{sessionID: sessionID, ref: ref, reply: reply}); err != nil {
		r.mu.Lock()
		rm.pending--
		r.retireIfIdleLocked(rm)
		r.mu.Unlock()
		return nil, err
	}
	// once queued the join runs to completion, so wait regardless of ctx
	// to keep membership and the caller's view in step
	return rm.await(context.Background(), reply)
}

// Leave removes sessionID from the room of docID. Unknown rooms and
// non-members are ignored. The last leave retires the room and flushes its
// snapshot in the background.
func (r *Registry) Leave(docID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm := r.rooms[docID]
	if rm == nil {
		return
	}
	if _, ok := rm.members[sessionID]; !ok {
		return
	}
	r.removeMemberLocked(rm, sessionID)
	r.retireIfIdleLocked(rm)
}

// Submit hands an edit to the room's sequencer and waits for the outcome.
// ctx only bounds the wait: an edit already queued is applied even if the
// caller gives up.
func (r *Registry) Submit(ctx context.Context, sub EditSubmission) (*document.Document, error) {
	r.mu.Lock()
	rm := r.rooms[sub.DocumentID]
	r.mu.Unlock()
	if rm == nil {
		metrics.Edits.WithLabelValues(Code(ErrNoSuchRoom)).Inc()
		return nil, ErrNoSuchRoom
	}

	reply := make(chan result, 1)
	if err := rm.send(ctx, editMsg{sub: sub, reply: reply}); err != nil {
		return nil, err
	}
	return rm.await(ctx, reply)
}

// MembersOf returns the sessions in the room of docID, sorted. Unknown rooms
// yield an empty set.
func (r *Registry) MembersOf(docID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm := r.rooms[docID]
	if rm == nil {
		return nil
	}
	return sortedKeys(rm.members)
}

// RoomsOf returns the rooms sessionID belongs to, sorted.
func (r *Registry) RoomsOf(sessionID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sortedKeys(r.index[sessionID])
}

// Snapshot returns a copy of the live document of docID, if a loaded room
// holds it. A room that is still flushing counts as live.
func (r *Registry) Snapshot(docID string) (*document.Document, bool) {
	r.mu.Lock()
	rm := r.rooms[docID]
	if rm == nil {
		rm = r.closing[docID]
	}
	r.mu.Unlock()
	if rm == nil {
		return nil, false
	}
	return rm.snapshot()
}

// Active reports whether a room for docID exists in any phase: loading,
// serving edits or flushing its final snapshot. Stored copies of an active
// document are stale or about to be overwritten.
func (r *Registry) Active(docID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rooms[docID] != nil || r.closing[docID] != nil
}

// Exclusive runs fn, typically a direct store write, while no room holds
// docID. It returns ErrDocumentLive without calling fn if one does. A room
// created while fn runs loads only after fn returns, so it sees the write.
func (r *Registry) Exclusive(ctx context.Context, docID string, fn func() error) error {
	for {
		r.mu.Lock()
		if r.rooms[docID] != nil || r.closing[docID] != nil {
			r.mu.Unlock()
			return ErrDocumentLive
		}
		busy := r.writes[docID]
		if busy == nil {
			w := make(chan struct{})
			r.writes[docID] = w
			r.mu.Unlock()
			return r.runWrite(docID, w, fn)
		}
		r.mu.Unlock()
		select {
		case <-busy:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *Registry) runWrite(docID string, w chan struct{}, fn func() error) error {
	defer func() {
		r.mu.Lock()
		delete(r.writes, docID)
		r.mu.Unlock()
		close(w)
	}()
	return fn()
}

// RoomInfo summarizes an active room.
type RoomInfo struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Version int64    `json:"version"`
	Members []string `json:"members"`
}

// Rooms lists the active rooms, sorted by id.
func (r *Registry) Rooms() []RoomInfo {
	r.mu.Lock()
	out := make([]RoomInfo, 0, len(r.rooms))
	live := make([]*room, 0, len(r.rooms))
	for _, rm := range r.rooms {
		out = append(out, RoomInfo{ID: rm.id, Members: sortedKeys(rm.members)})
		live = append(live, rm)
	}
	r.mu.Unlock()
	for i, rm := range live {
		if snap, ok := rm.snapshot(); ok {
			out[i].Title, out[i].Version = snap.Title, snap.Version
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Drain empties every room, flushes each snapshot and waits for the flushes
// to finish or ctx to end. Joins are refused from then on.
func (r *Registry) Drain(ctx context.Context) error {
	r.mu.Lock()
	r.draining = true
	for _, rm := range r.rooms {
		for sid := range rm.members {
			r.removeMemberLocked(rm, sid)
		}
		r.retireIfIdleLocked(rm)
	}
	waits := make([]chan struct{}, 0, len(r.closing)+len(r.rooms))
	for _, rm := range r.closing {
		waits = append(waits, rm.done)
	}
	// rooms with a join in flight retire once that join is refused
	for _, rm := range r.rooms {
		waits = append(waits, rm.done)
	}
	r.mu.Unlock()

	for _, done := range waits {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.log.Infof("drained %d rooms", len(waits))
	return nil
}

func (r *Registry) newRoomLocked(docID string) *room {
	rm := &room{
		id:      docID,
		reg:     r,
		mailbox: make(chan interface{}, r.mailboxSize),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		members: make(map[string]struct{}),
		log:     r.log.With(docID),
	}
	var prev []<-chan struct{}
	if old := r.closing[docID]; old != nil {
		prev = append(prev, old.done)
	}
	if w := r.writes[docID]; w != nil {
		prev = append(prev, w)
	}
	r.rooms[docID] = rm
	metrics.RoomsActive.Inc()
	go rm.run(prev...)
	return rm
}

func (r *Registry) addMemberLocked(rm *room, sessionID string) {
	rm.members[sessionID] = struct{}{}
	rooms := r.index[sessionID]
	if rooms == nil {
		rooms = make(map[string]struct{})
		r.index[sessionID] = rooms
	}
	rooms[rm.id] = struct{}{}
}

func (r *Registry) removeMemberLocked(rm *room, sessionID string) {
	delete(rm.members, sessionID)
	if rooms := r.index[sessionID]; rooms != nil {
		delete(rooms, rm.id)
		if len(rooms) == 0 {
			delete(r.index, sessionID)
		}
	}
}

// retireIfIdleLocked removes an empty room with no join in flight from the
// map and tells its goroutine to flush and exit. A room created for the same
// document afterwards waits for that flush before loading.
func (r *Registry) retireIfIdleLocked(rm *room) {
	if rm.retired || len(rm.members) > 0 || rm.pending > 0 {
		return
	}
	rm.retired = true
	if r.rooms[rm.id] == rm {
		delete(r.rooms, rm.id)
	}
	r.closing[rm.id] = rm
	metrics.RoomsActive.Dec()
	close(rm.quit)
}

func (r *Registry) forgetClosed(rm *room) {
	r.mu.Lock()
	if r.closing[rm.id] == rm {
		delete(r.closing, rm.id)
	}
	r.mu.Unlock()
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
