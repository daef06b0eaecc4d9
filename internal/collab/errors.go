package collab

import (
	"context"
	"errors"
	"fmt"

	"github.com/gogotex/gogotex/backend/go-collab/internal/document"
	"github.com/gogotex/gogotex/backend/go-collab/internal/tokens"
)

// Room, edit and transport failures. Authentication failures are the
// tokens.Err* sentinels.
var (
	ErrNotAMember      = errors.New("session is not a member of this room")
	ErrNoSuchRoom      = errors.New("no active room for document")
	ErrVersionConflict = errors.New("version conflict")
	ErrMergeFailed     = errors.New("merge failed")
	ErrDocumentLive    = document.ErrLive
	ErrForbidden       = document.ErrForbidden

	ErrDisconnected = errors.New("disconnected")
	ErrTimeout      = errors.New("connection timed out")

	ErrMissingToken  = errors.New("missing bearer token")
	ErrSessionClosed = errors.New("session closed")
	ErrSessionExists = errors.New("session id already in use")
	ErrBadRequest    = errors.New("bad request")
	ErrRateLimited   = errors.New("rate limited")
	ErrShuttingDown  = errors.New("server shutting down")
)

// ConflictError is returned when an edit's base version does not match the
// room's current version. It matches ErrVersionConflict.
type ConflictError struct {
	Expected int64
	Current  int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("version conflict: based on %d, document is at %d", e.Expected, e.Current)
}

func (e *ConflictError) Is(target error) bool { return target == ErrVersionConflict }

// Code maps err onto the stable code sent to clients.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingToken):
		return "missing_token"
	case errors.Is(err, tokens.ErrMalformed):
		return "malformed_token"
	case errors.Is(err, tokens.ErrExpired):
		return "token_expired"
	case errors.Is(err, tokens.ErrInvalid):
		return "invalid_token"
	case errors.Is(err, ErrNotAMember):
		return "not_a_member"
	case errors.Is(err, ErrNoSuchRoom):
		return "no_such_room"
	case errors.Is(err, ErrVersionConflict):
		return "version_conflict"
	case errors.Is(err, ErrMergeFailed):
		return "merge_failed"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrDocumentLive):
		return "document_live"
	case errors.Is(err, ErrSessionClosed), errors.Is(err, ErrShuttingDown):
		return "session_closed"
	case errors.Is(err, ErrSessionExists):
		return "session_exists"
	case errors.Is(err, ErrBadRequest):
		return "bad_request"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrDisconnected):
		return "disconnected"
	default:
		return "internal_error"
	}
}
