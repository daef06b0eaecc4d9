package collab

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gogotex/gogotex/backend/go-collab/internal/document"
	"github.com/gogotex/gogotex/backend/go-collab/pkg/logger"
	"github.com/gogotex/gogotex/backend/go-collab/pkg/metrics"
)

type result struct {
	doc *document.Document
	err error
}

type joinMsg struct {
	sessionID string
	ref       string
	reply     chan<- result
}

type editMsg struct {
	sub   EditSubmission
	reply chan<- result
}

// room is the sequencer for one document. Only its goroutine touches doc;
// members, pending and retired belong to the registry lock.
type room struct {
	id      string
	reg     *Registry
	mailbox chan interface{}
	quit    chan struct{} // closed by the registry on retirement
	done    chan struct{} // closed once flushed and stopped
	log     *logger.Logger

	members map[string]struct{}
	pending int
	retired bool

	doc *document.Document

	snapMu sync.RWMutex
	snap   *document.Document
}

// send queues msg, blocking while the mailbox is full.
func (rm *room) send(ctx context.Context, msg interface{}) error {
	select {
	case rm.mailbox <- msg:
		return nil
	case <-rm.done:
		return ErrNoSuchRoom
	case <-ctx.Done():
		return ctx.Err()
	}
}

// await waits for the reply to a queued message. A room that stops first
// answers ErrNoSuchRoom; any reply it did send before stopping wins.
func (rm *room) await(ctx context.Context, reply <-chan result) (*document.Document, error) {
	select {
	case res := <-reply:
		return res.doc, res.err
	case <-rm.done:
		select {
		case res := <-reply:
			return res.doc, res.err
		default:
			return nil, ErrNoSuchRoom
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (rm *room) snapshot() (*document.Document, bool) {
	rm.snapMu.RLock()
	defer rm.snapMu.RUnlock()
	if rm.snap == nil {
		return nil, false
	}
	return rm.snap.Clone(), true
}

func (rm *room) publish(d *document.Document) {
	rm.snapMu.Lock()
	rm.snap = d.Clone()
	rm.snapMu.Unlock()
}

// run waits for the previous room's flush and any direct write of the
// document to finish, then serves the mailbox until retired.
func (rm *room) run(prev ...<-chan struct{}) {
	defer close(rm.done)
	defer rm.reg.forgetClosed(rm)
	for _, p := range prev {
		<-p
	}
	for {
		select {
		case msg := <-rm.mailbox:
			rm.handle(msg)
		case <-rm.quit:
			rm.shutdown()
			return
		}
	}
}

func (rm *room) handle(msg interface{}) {
	switch m := msg.(type) {
	case joinMsg:
		m.reply <- rm.join(m.sessionID, m.ref)
	case editMsg:
		doc, err := rm.apply(m.sub)
		if err != nil {
			metrics.Edits.WithLabelValues(Code(err)).Inc()
			rm.log.Debugf("edit from %s rejected: %v", m.sub.SessionID, err)
		} else {
			metrics.Edits.WithLabelValues("accepted").Inc()
		}
		m.reply <- result{doc: doc, err: err}
	}
}

// join admits sessionID and sends it the joined event from the room
// goroutine, ahead of any update applied after it.
func (rm *room) join(sessionID, ref string) result {
	reg := rm.reg
	loadErr := rm.ensureLoaded()

	reg.mu.Lock()
	rm.pending--
	var err error
	switch {
	case loadErr != nil:
		err = loadErr
	case reg.draining:
		err = ErrShuttingDown
	default:
		reg.addMemberLocked(rm, sessionID)
	}
	if err != nil {
		reg.retireIfIdleLocked(rm)
	}
	reg.mu.Unlock()

	if err != nil {
		return result{err: err}
	}
	rm.log.Debugf("%s joined at v%d", sessionID, rm.doc.Version)
	reg.dispatch.deliver([]string{sessionID}, Event{
		Name: EventJoined,
		Data: Joined{Room: rm.id, Document: rm.doc.Clone()},
		Ref:  ref,
	})
	return result{doc: rm.doc.Clone()}
}

// ensureLoaded loads the document on first use. A missing document starts
// empty at version 0.
func (rm *room) ensureLoaded() error {
	if rm.doc != nil {
		return nil
	}
	reg := rm.reg
	if reg.store == nil {
		rm.doc = document.Empty(rm.id, reg.now().UTC())
		rm.publish(rm.doc)
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), reg.flushTimeout)
	defer cancel()
	d, err := reg.store.Load(ctx, rm.id)
	switch {
	case errors.Is(err, document.ErrNotFound):
		d = document.Empty(rm.id, reg.now().UTC())
	case err != nil:
		rm.log.Errorf("load failed: %v", err)
		return fmt.Errorf("load document %s: %w", rm.id, err)
	}
	rm.doc = d.Clone()
	rm.publish(rm.doc)
	return nil
}

// apply is the critical section of an edit: check, merge, version, publish,
// broadcast. A rejected edit leaves the document untouched.
func (rm *room) apply(sub EditSubmission) (*document.Document, error) {
	reg := rm.reg
	reg.mu.Lock()
	_, member := rm.members[sub.SessionID]
	reg.mu.Unlock()
	if !member {
		return nil, ErrNotAMember
	}
	if rm.doc == nil {
		return nil, ErrNoSuchRoom
	}
	if sub.BaseVersion != nil && *sub.BaseVersion != rm.doc.Version {
		return nil, &ConflictError{Expected: *sub.BaseVersion, Current: rm.doc.Version}
	}
	content, err := reg.merge(rm.doc.Clone(), sub)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMergeFailed, err)
	}

	next := rm.doc.Clone()
	next.Content = content
	if sub.Title != nil {
		next.Title = *sub.Title
	}
	next.Version++
	next.UpdatedAt = reg.now().UTC()
	rm.doc = next
	rm.publish(next)

	// members are read after the version is committed so a session whose
	// join completed earlier sees this update
	reg.dispatch.deliver(reg.MembersOf(rm.id), Event{
		Name: EventDocumentUpdated,
		Data: DocumentUpdated{EditorID: sub.EditorID, Document: next.Clone()},
	})
	return next.Clone(), nil
}

// shutdown flushes the final snapshot exactly once and answers anything
// still queued.
func (rm *room) shutdown() {
	if rm.doc != nil && rm.reg.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), rm.reg.flushTimeout)
		err := rm.reg.store.Save(ctx, rm.doc.Clone())
		cancel()
		if err != nil {
			metrics.RoomFlushes.WithLabelValues("error").Inc()
			rm.log.Errorf("flush v%d failed: %v", rm.doc.Version, err)
		} else {
			metrics.RoomFlushes.WithLabelValues("ok").Inc()
			rm.log.Debugf("flushed v%d", rm.doc.Version)
		}
	}
	for {
		select {
		case msg := <-rm.mailbox:
			switch m := msg.(type) {
			case joinMsg:
				m.reply <- result{err: ErrNoSuchRoom}
			case editMsg:
				m.reply <- result{err: ErrNoSuchRoom}
			}
		default:
			return
		}
	}
}
