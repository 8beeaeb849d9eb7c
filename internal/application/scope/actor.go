package scope

import (
	"context"
	"slices"

	"github.com/google/uuid"
)

// Capability names an operation an actor may perform on invoices
type Capability string

const (
	CapCreate  Capability = "create"
	CapSubmit  Capability = "submit"
	CapApprove Capability = "approve"
	CapIssue   Capability = "issue"
	CapCancel  Capability = "cancel"
	CapDelete  Capability = "delete"
	CapView    Capability = "view"
)

// Actor is an authenticated user with capabilities resolved once at the boundary.
// Construct it with Resolver.NewActor.
type Actor struct {
	UserID    uuid.UUID
	Companies []uuid.UUID
	Roles     []string

	caps  map[Capability]bool
	admin bool
}

// Can reports whether the actor holds the capability
func (a *Actor) Can(c Capability) bool {
	if a == nil {
		return false
	}
	return a.admin || a.caps[c]
}

// IsAdmin reports whether the actor holds the admin role
func (a *Actor) IsAdmin() bool {
	return a != nil && a.admin
}

// MemberOf reports whether the actor may act on behalf of the company
func (a *Actor) MemberOf(companyID uuid.UUID) bool {
	if a == nil {
		return false
	}
	return a.admin || slices.Contains(a.Companies, companyID)
}

type contextKey string

const actorKey contextKey = "actor"

// WithActor stores the actor in the context
func WithActor(ctx context.Context, a *Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

// ActorFromContext extracts the actor from the context
func ActorFromContext(ctx context.Context) (*Actor, bool) {
	a, ok := ctx.Value(actorKey).(*Actor)
	return a, ok && a != nil
}

// CanAccess reports whether the actor may read or change an invoice with the given owner and company
func (a *Actor) CanAccess(ownerID uuid.UUID, companyID *uuid.UUID) bool {
	if a == nil {
		return false
	}
	if a.admin {
		return true
	}
	if companyID != nil {
		return a.MemberOf(*companyID)
	}
	return a.UserID == ownerID
}
