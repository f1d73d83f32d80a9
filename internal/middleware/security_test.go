package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// =============================================================================
// Security Headers Middleware Tests
// =============================================================================

func TestSecurityHeadersMiddleware_SetsAllHeaders(t *testing.T) {
	mw := NewSecurityHeadersMiddleware(false)
	rec := httptest.NewRecorder()
	mw.Handler(okHandler(http.StatusOK)).ServeHTTP(rec, httptest.NewRequest("GET", "/api/usage", nil))

	expected := map[string]string{
		"X-Frame-Options":         "DENY",
		"X-Content-Type-Options":  "nosniff",
		"Referrer-Policy":         "no-referrer",
		"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
		"Cache-Control":           "no-store",
	}
	for header, want := range expected {
		if got := rec.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
	if rec.Header().Get("Strict-Transport-Security") != "" {
		t.Error("HSTS should not be set in development")
	}
}

func TestSecurityHeadersMiddleware_HSTSInProduction(t *testing.T) {
	mw := NewSecurityHeadersMiddleware(true)
	rec := httptest.NewRecorder()
	mw.Handler(okHandler(http.StatusOK)).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if got := rec.Header().Get("Strict-Transport-Security"); got != "max-age=31536000; includeSubDomains" {
		t.Errorf("HSTS = %q", got)
	}
}

func TestSecurityHeadersMiddleware_CORS(t *testing.T) {
	mw := NewSecurityHeadersMiddleware(false, "https://console.example.jp/", " ")

	t.Run("allowed origin", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/usage", nil)
		req.Header.Set("Origin", "https://console.example.jp")
		rec := httptest.NewRecorder()
		mw.Handler(okHandler(http.StatusOK)).ServeHTTP(rec, req)

		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://console.example.jp" {
			t.Errorf("Allow-Origin = %q", got)
		}
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})

	t.Run("unknown origin", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/usage", nil)
		req.Header.Set("Origin", "https://evil.example")
		rec := httptest.NewRecorder()
		mw.Handler(okHandler(http.StatusOK)).ServeHTTP(rec, req)

		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("Allow-Origin = %q, want empty", got)
		}
	})

	t.Run("preflight", func(t *testing.T) {
		called := false
		h := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

		req := httptest.NewRequest("OPTIONS", "/api/chat", nil)
		req.Header.Set("Origin", "https://console.example.jp")
		req.Header.Set("Access-Control-Request-Method", "POST")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if called {
			t.Error("preflight should not reach the handler")
		}
		if rec.Code != http.StatusNoContent {
			t.Errorf("status = %d, want 204", rec.Code)
		}
	})
}

func TestSecurityHeadersMiddleware_PassesThroughRequests(t *testing.T) {
	mw := NewSecurityHeadersMiddleware(false)
	h := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/api/files", nil))

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201", rec.Code)
	}
	if rec.Body.String() != `{"ok":true}` {
		t.Errorf("body = %q", rec.Body.String())
	}
}
