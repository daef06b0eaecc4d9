package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gogotex/gogotex/backend/go-collab/internal/document"
	"github.com/gogotex/gogotex/backend/go-collab/internal/document/service"
	"github.com/gogotex/gogotex/backend/go-collab/internal/tokens"
)

// Live exposes documents held by collaboration rooms. While a room exists,
// from the moment it starts loading until its final flush, its snapshot is
// authoritative: reads prefer it and direct writes are refused.
type Live interface {
	Snapshot(id string) (*document.Document, bool)
	Active(id string) bool
	// Exclusive runs fn only while no room holds id, or returns
	// document.ErrLive.
	Exclusive(ctx context.Context, id string, fn func() error) error
}

// Authorizer resolves a user's role on a document. An empty role is no access.
type Authorizer interface {
	Role(ctx context.Context, userID, docID string) (document.Role, error)
}

// RegisterDocumentRoutes mounts the document REST API on r. live may be nil
// when no realtime service runs in the same process; acl may be nil to skip
// access checks.
func RegisterDocumentRoutes(r gin.IRouter, svc service.Service, live Live, acl Authorizer) {
	snapshot := func(id string) (*document.Document, bool) {
		if live == nil {
			return nil, false
		}
		return live.Snapshot(id)
	}
	exclusive := func(ctx context.Context, id string, fn func() error) error {
		if live == nil {
			return fn()
		}
		return live.Exclusive(ctx, id, fn)
	}
	// allowed reports whether the caller's role satisfies want, writing the
	// error response when it does not.
	allowed := func(c *gin.Context, id string, want func(document.Role) bool) bool {
		if acl == nil {
			return true
		}
		user, ok := subject(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return false
		}
		role, err := acl.Role(c.Request.Context(), user, id)
		if err != nil {
			writeErr(c, err)
			return false
		}
		if !want(role) {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return false
		}
		return true
	}

	r.GET("/api/documents", func(c *gin.Context) {
		list, err := svc.List(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
			return
		}
		user, _ := subject(c)
		out := make([]gin.H, 0, len(list))
		for _, d := range list {
			if acl != nil {
				role, err := acl.Role(c.Request.Context(), user, d.ID)
				if err != nil || !role.CanRead() {
					continue
				}
			}
			if snap, ok := snapshot(d.ID); ok {
				d = snap
			}
			out = append(out, gin.H{"id": d.ID, "title": d.Title, "version": d.Version, "updatedAt": d.UpdatedAt})
		}
		c.JSON(http.StatusOK, out)
	})

	r.POST("/api/documents", func(c *gin.Context) {
		var req struct {
			Title   string `json:"title"`
			Content string `json:"content"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		d := &document.Document{Title: req.Title, Content: req.Content}
		d.OwnerID, _ = subject(c)
		id, err := svc.Create(c.Request.Context(), d)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "create failed"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"id": id, "title": d.Title})
	})

	r.GET("/api/documents/:id", func(c *gin.Context) {
		id := c.Param("id")
		if !allowed(c, id, document.Role.CanRead) {
			return
		}
		d, ok := snapshot(id)
		if !ok {
			var err error
			d, err = svc.Get(c.Request.Context(), id)
			if err != nil {
				writeErr(c, err)
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"document": d, "live": ok || (live != nil && live.Active(id))})
	})

	r.PATCH("/api/documents/:id", func(c *gin.Context) {
		id := c.Param("id")
		var req struct {
			Title   *string `json:"title,omitempty"`
			Content string  `json:"content"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if !allowed(c, id, document.Role.CanEdit) {
			return
		}
		ctx := c.Request.Context()
		err := exclusive(ctx, id, func() error {
			return svc.Update(ctx, id, req.Content, req.Title)
		})
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": id})
	})

	r.DELETE("/api/documents/:id", func(c *gin.Context) {
		id := c.Param("id")
		if !allowed(c, id, func(role document.Role) bool { return role == document.RoleCreator }) {
			return
		}
		ctx := c.Request.Context()
		if err := exclusive(ctx, id, func() error { return svc.Delete(ctx, id) }); err != nil {
			writeErr(c, err)
			return
		}
		if f, ok := acl.(interface {
			Forget(ctx context.Context, docID string) error
		}); ok {
			_ = f.Forget(ctx, id)
		}
		c.Status(http.StatusNoContent)
	})
}

// subject returns the verified caller, if the auth middleware stored one.
func subject(c *gin.Context) (string, bool) {
	v, ok := c.Get("identity")
	if !ok {
		return "", false
	}
	ident, ok := v.(*tokens.Identity)
	if !ok || ident.Subject == "" {
		return "", false
	}
	return ident.Subject, true
}

func writeErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, document.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, document.ErrLive):
		c.JSON(http.StatusConflict, gin.H{"error": "document is being edited live"})
	case errors.Is(err, document.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, service.ErrInvalidRole):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
