package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gogotex/gogotex/backend/go-collab/internal/tokens"
)

// IdentityKey is the gin context key under which the verified identity is stored.
const IdentityKey = "identity"

// ExtractToken finds the bearer credential of a request. The Authorization
// header wins over the "token" query parameter; the header may carry either
// "Bearer <jwt>" or the bare token, since browser WebSocket clients cannot
// set headers and older clients omit the scheme.
func ExtractToken(r *http.Request) (string, bool) {
	if auth := strings.TrimSpace(r.Header.Get("Authorization")); auth != "" {
		if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
			auth = strings.TrimSpace(auth[7:])
		}
		return auth, auth != ""
	}
	if q := strings.TrimSpace(r.URL.Query().Get("token")); q != "" {
		return q, true
	}
	return "", false
}

// AuthMiddleware returns a Gin middleware that verifies bearer tokens using the provided verifier
func AuthMiddleware(ver tokens.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := ExtractToken(c.Request)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing_token"})
			return
		}
		id, err := ver.Verify(c.Request.Context(), raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": AuthErrorCode(err), "details": err.Error()})
			return
		}
		c.Set(IdentityKey, id)
		c.Next()
	}
}

// AuthErrorCode maps a verification failure to its stable wire code.
func AuthErrorCode(err error) string {
	switch {
	case errors.Is(err, tokens.ErrMalformed):
		return "malformed_token"
	case errors.Is(err, tokens.ErrExpired):
		return "token_expired"
	default:
		return "invalid_token"
	}
}

// IdentityFrom returns the identity stored by AuthMiddleware, if any.
func IdentityFrom(c *gin.Context) (*tokens.Identity, bool) {
	v, ok := c.Get(IdentityKey)
	if !ok {
		return nil, false
	}
	id, ok := v.(*tokens.Identity)
	return id, ok && id != nil
}

// rateKey prefers the authenticated subject (NAT-friendly) and falls back to client IP.
func rateKey(c *gin.Context) string {
	if id, ok := IdentityFrom(c); ok && id.Subject != "" {
		return "sub:" + id.Subject
	}
	ip := c.ClientIP()
	if ip == "" {
		ip = "unknown"
	}
	return "ip:" + ip
}
