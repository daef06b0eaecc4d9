package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gogotex/gogotex/backend/go-collab/internal/collab"
)

// Inbound event names.
const (
	EventJoin  = "join"
	EventLeave = "leave"
	EventEdit  = "edit"
	EventPing  = "ping"
)

// CloseAuthFailed is the close code sent after a refused handshake. The
// close reason carries the stable error code.
const CloseAuthFailed = 4401

// Frame is the envelope of every message in both directions. Ref, when a
// client sets it, is echoed on the direct reply to that message.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	Ref   string          `json:"ref,omitempty"`
}

type outFrame struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
	Ref   string      `json:"ref,omitempty"`
}

// EditPayload is the data of an edit event. UserID is accepted for older
// clients but ignored: the editor is always the authenticated user.
type EditPayload struct {
	ID          string  `json:"id"`
	Title       *string `json:"title,omitempty"`
	Content     *string `json:"content"`
	UserID      string  `json:"userId,omitempty"`
	BaseVersion *int64  `json:"baseVersion,omitempty"`
}

type ConnectedPayload struct {
	Message   string `json:"message"`
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
}

type LeftPayload struct {
	Room string `json:"room"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Ref     string `json:"ref,omitempty"`
	Version *int64 `json:"version,omitempty"`
}

type ConnectErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// decodeRoomID reads the document id of a join or leave. Clients send either
// the bare id string or an object carrying "id".
func decodeRoomID(raw json.RawMessage) (string, error) {
	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		var obj struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return "", fmt.Errorf("%w: document id must be a string", collab.ErrBadRequest)
		}
		id = obj.ID
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("%w: document id required", collab.ErrBadRequest)
	}
	return id, nil
}

func decodeEdit(raw json.RawMessage) (collab.EditSubmission, error) {
	var p EditPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return collab.EditSubmission{}, fmt.Errorf("%w: %v", collab.ErrBadRequest, err)
	}
	if strings.TrimSpace(p.ID) == "" {
		return collab.EditSubmission{}, fmt.Errorf("%w: id required", collab.ErrBadRequest)
	}
	if p.Content == nil {
		return collab.EditSubmission{}, fmt.Errorf("%w: content required", collab.ErrBadRequest)
	}
	return collab.EditSubmission{
		DocumentID:  strings.TrimSpace(p.ID),
		Title:       p.Title,
		Content:     *p.Content,
		BaseVersion: p.BaseVersion,
	}, nil
}

func errorPayload(err error, ref string) ErrorPayload {
	p := ErrorPayload{Code: collab.Code(err), Message: err.Error(), Ref: ref}
	var ce *collab.ConflictError
	if errors.As(err, &ce) {
		v := ce.Current
		p.Version = &v
	}
	if p.Code == "internal_error" {
		p.Message = "internal error"
	}
	return p
}

func encode(event string, data interface{}, ref string) ([]byte, error) {
	return json.Marshal(outFrame{Event: event, Data: data, Ref: ref})
}
