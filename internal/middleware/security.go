package middleware

import (
	"net/http"
	"strings"
)

// SecurityHeadersMiddleware adds HTTP security headers to all responses.
// The console only serves JSON, so the CSP denies everything.
type SecurityHeadersMiddleware struct {
	isSecure       bool // Whether to enable HTTPS-specific headers (true in production)
	allowedOrigins map[string]bool
}

// NewSecurityHeadersMiddleware creates a new security headers middleware.
// allowedOrigins lists the front-end origins permitted to call the API
// cross-origin.
func NewSecurityHeadersMiddleware(isSecure bool, allowedOrigins ...string) *SecurityHeadersMiddleware {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o = strings.TrimSuffix(strings.TrimSpace(o), "/"); o != "" {
			origins[o] = true
		}
	}
	return &SecurityHeadersMiddleware{
		isSecure:       isSecure,
		allowedOrigins: origins,
	}
}

// Handler returns middleware that sets security and CORS headers.
func (m *SecurityHeadersMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		h.Set("Cache-Control", "no-store")

		// max-age=31536000 = 1 year
		if m.isSecure {
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		origin := r.Header.Get("Origin")
		if origin != "" && m.allowedOrigins[origin] {
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, Accept-Language, "+RequestIDHeader)
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			h.Set("Access-Control-Expose-Headers", RequestIDHeader+", Retry-After")
			h.Set("Access-Control-Max-Age", "600")

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}
