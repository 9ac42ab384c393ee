package auth

import (
	"context"

	"github.com/google/uuid"
)

const (
	ScopeGeneral        = "general"
	ScopeParkingHistory = "parking_history"
	ScopeAdmin          = "admin"
)

// Principal is the authenticated caller.
type Principal struct {
	UserID uuid.UUID
	Scopes []string
}

func (p Principal) Has(scope string) bool {
	for _, s := range p.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
