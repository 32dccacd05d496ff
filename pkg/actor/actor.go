// Package actor identifies the user or system performing an action.
//
// Stock movements and address allocations record the actor's ID
// (performed_by, processed_by, assigned_by). Operations called without an
// actor fall back to SystemActor.
package actor

import (
	"context"
	"fmt"
	"time"
)

// SystemID is the fixed identifier of the system actor.
const SystemID = "00000000-0000-0000-0000-000000000000"

// Actor represents the entity performing an action in the system.
type Actor struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`

	// Role is the role name from the access token (admin, inventory, network, engineer)
	Role string `json:"role"`

	// Permissions are explicit grants carried by the token, on top of the role's
	Permissions []string `json:"permissions,omitempty"`
}

// DisplayName returns a printable name. Falls back to the email and finally
// the ID when the token had no name claim.
func (a *Actor) DisplayName() string {
	switch {
	case a == nil:
		return "System"
	case a.Name != "":
		return a.Name
	case a.Email != "":
		return a.Email
	default:
		return a.ID
	}
}

// String returns a string representation of the actor for logging
func (a *Actor) String() string {
	if a == nil {
		return "system"
	}
	return fmt.Sprintf("%s (%s)", a.DisplayName(), a.Role)
}

type contextKey string

const actorContextKey contextKey = "actor"

// FromContext retrieves the Actor from the context.
// Returns nil if no actor is present (e.g., system operations).
func FromContext(ctx context.Context) *Actor {
	if ctx == nil {
		return nil
	}
	a, ok := ctx.Value(actorContextKey).(*Actor)
	if !ok {
		return nil
	}
	return a
}

// WithActor returns a new context with the Actor attached.
func WithActor(ctx context.Context, a *Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorContextKey, a)
}

// SystemActor returns an Actor representing the system itself.
// Used by event consumers and migrations.
func SystemActor() *Actor {
	return &Actor{
		ID:    SystemID,
		Name:  "System",
		Email: "system@joitex.local",
		Role:  "admin",
	}
}

// UserCache is the local copy of a user kept in sync from user events.
type UserCache struct {
	UserID    string    `json:"user_id" db:"user_id"`
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email" db:"email"`
	RoleName  string    `json:"role_name" db:"role_name"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
