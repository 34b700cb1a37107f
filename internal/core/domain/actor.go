package domain

import "github.com/google/uuid"

// Role is the back-office role of an authenticated actor.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleFinance Role = "finance"
	RoleSupport Role = "support"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleFinance || r == RoleSupport
}

// Actor is the authenticated caller of a lifecycle operation.
// A nil *Actor means the system itself.
type Actor struct {
	ID   uuid.UUID `json:"id"`
	Role Role      `json:"role"`
}

// IDRef returns a pointer to the actor id, or nil for the system actor.
func (a *Actor) IDRef() *uuid.UUID {
	if a == nil {
		return nil
	}
	id := a.ID
	return &id
}

func (a *Actor) String() string {
	if a == nil {
		return SystemActor
	}
	return a.ID.String()
}
