// Package auth provides tenant context helpers.
//
// This package is imported by both middleware and handler packages without
// causing import cycles.
package auth

import (
	"context"
	"net/http"

	"github.com/govai/console/internal/domain"
)

// Roles carried in the token's role claim.
const (
	RoleMember = "member"
	RoleAdmin  = "admin"
	// RoleService is the BaaS service role used by backend jobs.
	RoleService = "service_role"
)

// Principal is the authenticated caller.
type Principal struct {
	UserID         string
	OrganizationID string
	Email          string
	Role           string
}

// IsAdmin reports whether the principal may use the admin API.
func (p *Principal) IsAdmin() bool {
	return p != nil && (p.Role == RoleAdmin || p.Role == RoleService)
}

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	principalContextKey    contextKey = "principal"
	organizationContextKey contextKey = "organization"
)

// GetPrincipal retrieves the authenticated principal from the context.
// Returns nil if the request is unauthenticated.
func GetPrincipal(ctx context.Context) *Principal {
	p, ok := ctx.Value(principalContextKey).(*Principal)
	if !ok {
		return nil
	}
	return p
}

// GetPrincipalFromRequest is GetPrincipal on the request context.
func GetPrincipalFromRequest(r *http.Request) *Principal {
	return GetPrincipal(r.Context())
}

// SetPrincipal stores the principal in the context.
func SetPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// GetOrganization retrieves the caller's organization, loaded per request.
func GetOrganization(ctx context.Context) *domain.Organization {
	org, ok := ctx.Value(organizationContextKey).(*domain.Organization)
	if !ok {
		return nil
	}
	return org
}

// SetOrganization stores the caller's organization in the context.
func SetOrganization(ctx context.Context, org *domain.Organization) context.Context {
	return context.WithValue(ctx, organizationContextKey, org)
}
