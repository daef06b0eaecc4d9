package sessions

import "time"

// Presence records which user a realtime session belongs to and which rooms
// it currently sits in. It is advisory: the collaboration registry is the
// source of truth for membership, presence only mirrors it for other
// instances and the admin API.
type Presence struct {
	SessionID   string    `json:"sessionId"`
	Subject     string    `json:"sub"`
	Email       string    `json:"email,omitempty"`
	Name        string    `json:"name,omitempty"`
	Rooms       []string  `json:"rooms"`
	ConnectedAt time.Time `json:"connectedAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}
