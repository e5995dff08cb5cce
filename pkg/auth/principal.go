// Package auth carries the identity of API callers.
package auth

import (
	"context"
	"errors"
)

// Roles understood by the API.
const (
	RoleCitizen = "citizen"
	RoleOfficer = "officer"
)

// Principal is the authenticated caller of a request.
type Principal struct {
	ID    string   `json:"id"`
	Roles []string `json:"roles"`
}

// HasRole reports whether the principal holds role.
func (p *Principal) HasRole(role string) bool {
	if p == nil {
		return false
	}
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type contextKey string

const principalKey contextKey = "principal"

// ErrNoPrincipal is returned when a request carries no identity.
var ErrNoPrincipal = errors.New("no principal in context")

// WithPrincipal attaches p to ctx.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// GetPrincipal retrieves the principal attached by WithPrincipal.
func GetPrincipal(ctx context.Context) (*Principal, error) {
	p, ok := ctx.Value(principalKey).(*Principal)
	if !ok || p == nil {
		return nil, ErrNoPrincipal
	}
	return p, nil
}

// ActorID returns the caller id for audit records, or "anonymous".
func ActorID(ctx context.Context) string {
	p, err := GetPrincipal(ctx)
	if err != nil {
		return "anonymous"
	}
	return p.ID
}
