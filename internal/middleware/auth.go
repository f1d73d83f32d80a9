// Package middleware contains HTTP middleware for the console API.
//
// Middleware functions follow the standard Go pattern of wrapping http.Handler.
// They are designed to be composed using Stack.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/govai/console/internal/auth"
	"github.com/govai/console/internal/domain"
	"github.com/govai/console/internal/handler"
	"github.com/govai/console/internal/metrics"
)

// =============================================================================
// Claims
// =============================================================================

// Claims are the BaaS access token claims. The organization and role may be
// top-level claims or live under app_metadata.
type Claims struct {
	Email          string      `json:"email,omitempty"`
	Role           string      `json:"role,omitempty"`
	OrganizationID string      `json:"organization_id,omitempty"`
	AppMetadata    AppMetadata `json:"app_metadata,omitempty"`
	jwt.RegisteredClaims
}

// AppMetadata is the server-controlled metadata block of the token.
type AppMetadata struct {
	OrganizationID string `json:"organization_id,omitempty"`
	Role           string `json:"role,omitempty"`
}

// principal flattens the claims.
func (c *Claims) principal() *auth.Principal {
	p := &auth.Principal{
		UserID:         c.Subject,
		Email:          c.Email,
		OrganizationID: c.OrganizationID,
		Role:           c.Role,
	}
	if p.OrganizationID == "" {
		p.OrganizationID = c.AppMetadata.OrganizationID
	}
	// app_metadata.role is set server-side and wins over the BaaS role
	if c.AppMetadata.Role != "" {
		p.Role = c.AppMetadata.Role
	}
	if p.Role == "" || p.Role == "authenticated" {
		p.Role = auth.RoleMember
	}
	return p
}

// IssueToken signs an HS256 access token. Used by the admin CLI and tests.
func IssueToken(secret []byte, userID, orgID, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Role:           role,
		OrganizationID: orgID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// =============================================================================
// Auth Middleware
// =============================================================================

// OrganizationLoader loads the caller's organization.
type OrganizationLoader interface {
	GetOrganization(ctx context.Context, id string) (*domain.Organization, error)
}

// AuthMiddleware authenticates bearer tokens and resolves the tenant.
type AuthMiddleware struct {
	secret []byte
	orgs   OrganizationLoader
	logger *slog.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware.
func NewAuthMiddleware(secret []byte, orgs OrganizationLoader, logger *slog.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		secret: secret,
		orgs:   orgs,
		logger: logger,
	}
}

// parseToken validates the signature, algorithm, and expiry.
func (m *AuthMiddleware) parseToken(raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("token has no subject")
	}
	return claims, nil
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

// RequireUser authenticates the bearer token and stores the principal in
// the context. Requests without a valid token get 401.
func (m *AuthMiddleware) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			handler.UnauthorizedResponse(w, r, m.logger)
			return
		}

		claims, err := m.parseToken(raw)
		if err != nil {
			m.logger.Info("rejected access token",
				"path", r.URL.Path,
				"expired", errors.Is(err, jwt.ErrTokenExpired),
				"error", err,
			)
			handler.UnauthorizedResponse(w, r, m.logger)
			return
		}

		ctx := auth.SetPrincipal(r.Context(), claims.principal())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireTenant loads the principal's organization and stores it in the
// context. Use after RequireUser. The plan is read from the organization on
// every request so plan changes apply immediately.
func (m *AuthMiddleware) RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := auth.GetPrincipal(r.Context())
		if p == nil {
			m.logger.Error("RequireTenant called without principal in context")
			handler.UnauthorizedResponse(w, r, m.logger)
			return
		}
		if p.OrganizationID == "" {
			handler.ErrorResponse(w, r, m.logger, domain.Forbidden("", "No organization is associated with this account"))
			return
		}

		org, err := m.orgs.GetOrganization(r.Context(), p.OrganizationID)
		if err != nil {
			if domain.ErrorCode(err) == domain.ENOTFOUND {
				handler.ForbiddenResponse(w, r, m.logger)
				return
			}
			handler.ErrorResponse(w, r, m.logger, err)
			return
		}

		annotateRequest(r.Context(), p.UserID, org.ID)
		metrics.AnnotatePlan(r.Context(), string(org.PlanID))
		ctx := auth.SetOrganization(r.Context(), org)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin requires the admin or service role. Use after RequireUser.
func (m *AuthMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := auth.GetPrincipal(r.Context())
		if p == nil {
			handler.UnauthorizedResponse(w, r, m.logger)
			return
		}
		if !p.IsAdmin() {
			m.logger.Warn("admin access denied",
				"user_id", p.UserID,
				"role", p.Role,
				"path", r.URL.Path,
			)
			handler.ForbiddenResponse(w, r, m.logger)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Middleware Stack Helpers
// =============================================================================

// Stack composes multiple middleware functions into a single middleware.
// The first middleware is the outermost.
//
//	stack := Stack(loggingMw, authMw.RequireUser, authMw.RequireTenant)
//	mux.Handle("POST /api/chat", stack(chatHandler))
func Stack(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// Ensure middleware functions have correct signature
var (
	_ func(http.Handler) http.Handler = (&AuthMiddleware{}).RequireUser
	_ func(http.Handler) http.Handler = (&AuthMiddleware{}).RequireTenant
	_ func(http.Handler) http.Handler = (&AuthMiddleware{}).RequireAdmin
)
