package collab

import (
	"sync"

	"github.com/gogotex/gogotex/backend/go-collab/pkg/logger"
	"github.com/gogotex/gogotex/backend/go-collab/pkg/metrics"
)

// Recipient receives events for one session. Deliver must not block; it
// reports false when the event was dropped.
type Recipient interface {
	Deliver(ev Event) bool
}

// Membership answers which sessions currently sit in a room.
type Membership interface {
	MembersOf(docID string) []string
}

// Dispatcher fans events out to the sessions of a room. Delivery is best
// effort and at most once: a session that has gone away is skipped.
type Dispatcher struct {
	members Membership
	log     *logger.Logger

	mu         sync.RWMutex
	recipients map[string]Recipient
}

func NewDispatcher(members Membership) *Dispatcher {
	return &Dispatcher{
		members:    members,
		log:        logger.Named("dispatch"),
		recipients: make(map[string]Recipient),
	}
}

// Register makes sessionID reachable. A later Register replaces the earlier one.
func (d *Dispatcher) Register(sessionID string, r Recipient) {
	d.mu.Lock()
	d.recipients[sessionID] = r
	d.mu.Unlock()
}

func (d *Dispatcher) Unregister(sessionID string) {
	d.mu.Lock()
	delete(d.recipients, sessionID)
	d.mu.Unlock()
}

// Publish delivers ev to the members of docID as they are at call time and
// returns how many sessions accepted it.
func (d *Dispatcher) Publish(docID string, ev Event) int {
	return d.deliver(d.members.MembersOf(docID), ev)
}

func (d *Dispatcher) deliver(sessionIDs []string, ev Event) int {
	targets := make([]Recipient, 0, len(sessionIDs))
	d.mu.RLock()
	for _, id := range sessionIDs {
		if r, ok := d.recipients[id]; ok {
			targets = append(targets, r)
		} else {
			metrics.Deliveries.WithLabelValues("gone").Inc()
		}
	}
	d.mu.RUnlock()

	n := 0
	for _, r := range targets {
		if r.Deliver(ev) {
			n++
			metrics.Deliveries.WithLabelValues("delivered").Inc()
		} else {
			metrics.Deliveries.WithLabelValues("dropped").Inc()
		}
	}
	if dropped := len(sessionIDs) - n; dropped > 0 {
		d.log.Debugf("%s: %d of %d recipients skipped", ev.Name, dropped, len(sessionIDs))
	}
	return n
}
