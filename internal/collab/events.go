package collab

import "github.com/gogotex/gogotex/backend/go-collab/internal/document"

// Outbound event names.
const (
	EventConnected       = "connected"
	EventJoined          = "joined"
	EventLeft            = "left"
	EventDocumentUpdated = "document_updated"
	EventError           = "error"
	EventConnectError    = "connect_error"
	EventPong            = "pong"
)

// Event is a named message pushed to a session. Ref echoes the client
// reference of the request that caused it, if any.
type Event struct {
	Name string
	Data interface{}
	Ref  string
}

// Joined is the payload of EventJoined. It is delivered by the room itself,
// so every document_updated the session receives afterwards is newer.
type Joined struct {
	Room     string             `json:"room"`
	Document *document.Document `json:"document"`
}

// DocumentUpdated is the payload of EventDocumentUpdated.
type DocumentUpdated struct {
	EditorID string             `json:"editorId"`
	Document *document.Document `json:"document"`
}

// EditSubmission proposes new content for a document. BaseVersion, when set,
// must equal the current version for the edit to be accepted.
type EditSubmission struct {
	DocumentID  string
	SessionID   string
	EditorID    string
	Title       *string
	Content     string
	BaseVersion *int64
}
