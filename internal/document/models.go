package document

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by every document store when the id is unknown.
	ErrNotFound = errors.New("document not found")
	// ErrLive refuses a direct write to a document a room currently holds.
	ErrLive = errors.New("document is being edited live")
	// ErrForbidden is returned when a user lacks the role an operation needs.
	ErrForbidden = errors.New("access denied")
)

// Document is the persistent and in-memory document model. Version is the
// sole ordering authority for edits: it only ever moves forward by one per
// accepted edit while a room is active.
type Document struct {
	ID        string    `json:"id" bson:"id"`
	Title     string    `json:"title" bson:"title"`
	Content   string    `json:"content" bson:"content"`
	Version   int64     `json:"version" bson:"version"`
	OwnerID   string    `json:"userId,omitempty" bson:"ownerId,omitempty"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// Clone returns an independent copy safe to hand to another goroutine.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}

// Empty is the default snapshot for an id that has never been persisted.
func Empty(id string, now time.Time) *Document {
	return &Document{ID: id, CreatedAt: now, UpdatedAt: now}
}
