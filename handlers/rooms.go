package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gogotex/gogotex/backend/go-collab/internal/collab"
	"github.com/gogotex/gogotex/backend/go-collab/internal/document"
	"github.com/gogotex/gogotex/backend/go-collab/internal/sessions"
)

// Rooms is the read side of the room registry.
type Rooms interface {
	Rooms() []collab.RoomInfo
	Snapshot(docID string) (*document.Document, bool)
	MembersOf(docID string) []string
}

// RegisterRoomRoutes exposes the active rooms for operators and the editor's
// "who is here" panel.
func RegisterRoomRoutes(r gin.IRouter, rooms Rooms) {
	r.GET("/api/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"rooms": rooms.Rooms()})
	})

	r.GET("/api/rooms/:id", func(c *gin.Context) {
		id := c.Param("id")
		snap, ok := rooms.Snapshot(id)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "no_such_room"})
			return
		}
		members := rooms.MembersOf(id)
		if members == nil {
			members = []string{}
		}
		c.JSON(http.StatusOK, gin.H{"room": id, "document": snap, "members": members})
	})
}

// Presence lists the sessions currently online.
type Presence interface {
	List(ctx context.Context) ([]*sessions.Presence, error)
}

func RegisterPresenceRoutes(r gin.IRouter, p Presence) {
	r.GET("/api/presence", func(c *gin.Context) {
		list, err := p.List(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "presence unavailable"})
			return
		}
		if list == nil {
			list = []*sessions.Presence{}
		}
		c.JSON(http.StatusOK, gin.H{"sessions": list})
	})
}

// Archive reads immutable snapshots written on every room flush.
type Archive interface {
	Snapshot(ctx context.Context, id string, version int64) (*document.Document, error)
}

func RegisterArchiveRoutes(r gin.IRouter, a Archive) {
	r.GET("/api/documents/:id/versions/:version", func(c *gin.Context) {
		v, err := strconv.ParseInt(c.Param("version"), 10, 64)
		if err != nil || v < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid version"})
			return
		}
		d, err := a.Snapshot(c.Request.Context(), c.Param("id"), v)
		if err != nil {
			if errors.Is(err, document.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"document": d})
	})
}
