package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gogotex/gogotex/backend/go-collab/internal/document"
)

// AccessManager manages the grants on a document on behalf of a caller.
type AccessManager interface {
	List(ctx context.Context, actorID, docID string) ([]*document.Access, error)
	Grant(ctx context.Context, actorID, docID, userID string, role document.Role) (*document.Access, error)
	Revoke(ctx context.Context, actorID, docID, userID string) error
}

// RegisterAccessRoutes mounts grant management under /api/documents/:id/access.
// Every route needs an authenticated caller.
func RegisterAccessRoutes(r gin.IRouter, acl AccessManager) {
	r.GET("/api/documents/:id/access", func(c *gin.Context) {
		actor, ok := requireSubject(c)
		if !ok {
			return
		}
		list, err := acl.List(c.Request.Context(), actor, c.Param("id"))
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"access": list})
	})

	r.PUT("/api/documents/:id/access/:userId", func(c *gin.Context) {
		actor, ok := requireSubject(c)
		if !ok {
			return
		}
		var req struct {
			Role document.Role `json:"role" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		a, err := acl.Grant(c.Request.Context(), actor, c.Param("id"), c.Param("userId"), req.Role)
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(http.StatusOK, a)
	})

	r.DELETE("/api/documents/:id/access/:userId", func(c *gin.Context) {
		actor, ok := requireSubject(c)
		if !ok {
			return
		}
		if err := acl.Revoke(c.Request.Context(), actor, c.Param("id"), c.Param("userId")); err != nil {
			writeErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
}

func requireSubject(c *gin.Context) (string, bool) {
	actor, ok := subject(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
	return actor, ok
}
