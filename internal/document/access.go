package document

import "time"

// Role is a user's standing on one document.
type Role string

const (
	RoleRead    Role = "read"
	RoleEdit    Role = "edit"
	RoleCreator Role = "creator"
)

func (r Role) CanRead() bool { return r == RoleRead || r == RoleEdit || r == RoleCreator }

func (r Role) CanEdit() bool { return r == RoleEdit || r == RoleCreator }

// Grantable reports whether r can be handed out. Creator only comes from
// owning the document.
func (r Role) Grantable() bool { return r == RoleRead || r == RoleEdit }

// Access grants one user a role on one document.
type Access struct {
	DocumentID string    `json:"documentId" bson:"documentId"`
	UserID     string    `json:"userId" bson:"userId"`
	Role       Role      `json:"role" bson:"role"`
	GrantedBy  string    `json:"grantedBy,omitempty" bson:"grantedBy,omitempty"`
	CreatedAt  time.Time `json:"createdAt" bson:"createdAt"`
}
