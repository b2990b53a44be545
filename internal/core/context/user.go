// Package context provides request-scoped values extraction.
package context

import (
	"context"

	"fleetledger/internal/core/id"
)

// Actor is the pre-authorized caller of a ledger operation.
// Authorization policy lives outside the ledger; the ledger only needs to
// know which organization the call is scoped to and who to attribute it to.
type Actor struct {
	UserID         string
	OrganizationID id.ID
	Roles          []string
}

type actorContextKey struct{}

// WithActor adds Actor to context.
func WithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// GetActor returns Actor from context.
func GetActor(ctx context.Context) *Actor {
	if v, ok := ctx.Value(actorContextKey{}).(*Actor); ok {
		return v
	}
	return nil
}

// GetUserID returns user ID from context or empty string.
func GetUserID(ctx context.Context) string {
	if a := GetActor(ctx); a != nil {
		return a.UserID
	}
	return ""
}

// GetOrganizationID returns the caller organization or the nil id.
func GetOrganizationID(ctx context.Context) id.ID {
	if a := GetActor(ctx); a != nil {
		return a.OrganizationID
	}
	return id.ID{}
}

// HasRole checks if the actor has a specific role.
func HasRole(ctx context.Context, role string) bool {
	a := GetActor(ctx)
	if a == nil {
		return false
	}
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}
