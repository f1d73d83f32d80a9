package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/govai/console/internal/handler"
)

// OperatorAuth guards operator endpoints such as /metrics. A request passes
// with the configured scrape credentials or with an admin or service
// bearer token. With no scrape credentials and no token verifier the
// endpoint is open.
type OperatorAuth struct {
	username string
	password string
	tokens   *AuthMiddleware
	logger   *slog.Logger
}

// NewOperatorAuth creates the guard. tokens may be nil to accept scrape
// credentials only.
func NewOperatorAuth(username, password string, tokens *AuthMiddleware, logger *slog.Logger) *OperatorAuth {
	return &OperatorAuth{
		username: username,
		password: password,
		tokens:   tokens,
		logger:   logger,
	}
}

func (m *OperatorAuth) scrapeConfigured() bool {
	return m.username != "" || m.password != ""
}

// validScrapeCredentials compares both fields in constant time.
func (m *OperatorAuth) validScrapeCredentials(r *http.Request) bool {
	if !m.scrapeConfigured() {
		return false
	}
	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}
	userMatch := subtle.ConstantTimeCompare([]byte(user), []byte(m.username))
	passMatch := subtle.ConstantTimeCompare([]byte(pass), []byte(m.password))
	return userMatch&passMatch == 1
}

// validOperatorToken accepts a signed bearer token with an admin role.
func (m *OperatorAuth) validOperatorToken(r *http.Request) bool {
	if m.tokens == nil {
		return false
	}
	raw := bearerToken(r)
	if raw == "" {
		return false
	}
	claims, err := m.tokens.parseToken(raw)
	if err != nil {
		return false
	}
	return claims.principal().IsAdmin()
}

// Handler returns the guarding middleware.
func (m *OperatorAuth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.scrapeConfigured() && m.tokens == nil {
			next.ServeHTTP(w, r)
			return
		}
		if m.validScrapeCredentials(r) || m.validOperatorToken(r) {
			next.ServeHTTP(w, r)
			return
		}

		if m.scrapeConfigured() {
			w.Header().Set("WWW-Authenticate", `Basic realm="govai-metrics"`)
		}
		handler.UnauthorizedResponse(w, r, m.logger)
	})
}
