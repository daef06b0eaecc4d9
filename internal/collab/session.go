package collab

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogotex/gogotex/backend/go-collab/internal/tokens"
)

// State is a step in a session's lifecycle.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticated
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Sink is the transport side of a session. Deliver must not block and
// reports whether the event was queued; Close tears the connection down and
// must be safe to call more than once.
type Sink interface {
	Deliver(ev Event) bool
	Close() error
}

// Session is one authenticated connection.
type Session struct {
	ID          string
	Identity    *tokens.Identity
	UserID      string
	ConnectedAt time.Time

	sink  Sink
	state atomic.Int32

	// ops serializes join, leave, edit and disconnect for this session.
	// Deliver never takes it: rooms call Deliver while a member may be
	// blocked in an edit of the same room.
	ops sync.Mutex
}

func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(st State) { s.state.Store(int32(st)) }

// activate moves Authenticated to Active; other states are left alone.
func (s *Session) activate() {
	s.state.CompareAndSwap(int32(StateAuthenticated), int32(StateActive))
}

// markClosed moves the session to Closed and returns the state it left.
// ok is false when the session was already closed.
func (s *Session) markClosed() (prev State, ok bool) {
	for {
		cur := s.state.Load()
		if State(cur) == StateClosed {
			return StateClosed, false
		}
		if s.state.CompareAndSwap(cur, int32(StateClosed)) {
			return State(cur), true
		}
	}
}

// Deliver forwards ev to the transport. Closed sessions drop everything.
func (s *Session) Deliver(ev Event) bool {
	if s.State() == StateClosed {
		return false
	}
	return s.sink.Deliver(ev)
}
