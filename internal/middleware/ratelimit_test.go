package middleware

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"
)

// =============================================================================
// RateLimiter Tests
// =============================================================================

func TestNewRateLimiter(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	rl := NewRateLimiter(5, time.Minute, logger)

	if rl == nil {
		t.Fatal("expected rate limiter to be created")
	}
	if rl.maxAttempts != 5 {
		t.Errorf("expected maxAttempts=5, got %d", rl.maxAttempts)
	}
	if rl.window != time.Minute {
		t.Errorf("expected window=1m, got %v", rl.window)
	}
}

func TestRateLimiter_Allow_UnderLimit(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	rl := NewRateLimiter(5, time.Minute, logger)

	// Should allow 5 requests
	for i := 0; i < 5; i++ {
		if !rl.Allow("192.168.1.1") {
			t.Errorf("request %d should be allowed", i+1)
		}
	}
}

func TestRateLimiter_Allow_AtLimit(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	rl := NewRateLimiter(5, time.Minute, logger)

	// Use up all 5 attempts
	for i := 0; i < 5; i++ {
		rl.Allow("192.168.1.1")
	}

	// 6th request should be denied
	if rl.Allow("192.168.1.1") {
		t.Error("6th request should be denied")
	}
}

func TestRateLimiter_Allow_DifferentIPs(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	rl := NewRateLimiter(2, time.Minute, logger)

	// IP 1 uses its limit
	rl.Allow("192.168.1.1")
	rl.Allow("192.168.1.1")
	if rl.Allow("192.168.1.1") {
		t.Error("IP 1 should be rate limited")
	}

	// IP 2 should still have its own limit
	if !rl.Allow("192.168.1.2") {
		t.Error("IP 2 should not be rate limited")
	}
	if !rl.Allow("192.168.1.2") {
		t.Error("IP 2 should still not be rate limited")
	}
	if rl.Allow("192.168.1.2") {
		t.Error("IP 2 should now be rate limited")
	}
}

func TestRateLimiter_Allow_WindowExpiry(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	// Use a very short window for testing
	rl := NewRateLimiter(2, 50*time.Millisecond, logger)

	// Use up the limit
	rl.Allow("192.168.1.1")
	rl.Allow("192.168.1.1")
	if rl.Allow("192.168.1.1") {
		t.Error("should be rate limited")
	}

	// Wait for window to expire
	time.Sleep(60 * time.Millisecond)

	// Should be allowed again
	if !rl.Allow("192.168.1.1") {
		t.Error("should be allowed after window expires")
	}
}

func TestRateLimiter_Reset(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	rl := NewRateLimiter(2, time.Minute, logger)

	// Use up limit
	rl.Allow("192.168.1.1")
	rl.Allow("192.168.1.1")
	if rl.Allow("192.168.1.1") {
		t.Error("should be rate limited")
	}

	// Reset the IP
	rl.Reset("192.168.1.1")

	// Should be allowed again
	if !rl.Allow("192.168.1.1") {
		t.Error("should be allowed after reset")
	}
}

// =============================================================================
// RateLimitMiddleware Tests
// =============================================================================

func newLimited(max int, key KeyFunc) http.Handler {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	mw := NewRateLimitMiddleware(NewRateLimiter(max, time.Minute, logger), key, logger)
	return mw.Limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestRateLimiter_StopEndsCleanup(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	rl := NewRateLimiter(5, time.Millisecond, logger)

	stopped := make(chan struct{})
	go func() {
		rl.Stop()
		rl.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}

	select {
	case <-rl.done:
	default:
		t.Error("cleanup goroutine still running after Stop")
	}
}

func TestRateLimiter_EvictExpired(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	rl := NewRateLimiter(5, time.Minute, logger)
	defer rl.Stop()

	rl.Allow("org_old")
	rl.Allow("org_new")
	rl.mu.Lock()
	rl.entries["org_old"].windowStart = time.Now().Add(-2 * time.Minute)
	rl.mu.Unlock()

	rl.evictExpired(time.Now())

	rl.mu.RLock()
	defer rl.mu.RUnlock()
	if _, ok := rl.entries["org_old"]; ok {
		t.Error("expired entry should be evicted")
	}
	if _, ok := rl.entries["org_new"]; !ok {
		t.Error("live entry should be kept")
	}
}

func TestRateLimitMiddleware_BlocksAfterLimit(t *testing.T) {
	h := newLimited(2, nil)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("POST", "/api/chat", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, rec.Code)
		}
	}

	req := httptest.NewRequest("POST", "/api/chat", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header should be set")
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Errorf("Content-Type = %q, want JSON", ct)
	}
	if !strings.Contains(rec.Body.String(), "rate_limit") {
		t.Errorf("body should carry rate_limit code, got: %s", rec.Body.String())
	}
}

func TestRateLimitMiddleware_ProxyHeaders(t *testing.T) {
	tests := []struct {
		name   string
		header string
		value  string
	}{
		{"X-Forwarded-For", "X-Forwarded-For", "203.0.113.5, 10.0.0.1"},
		{"X-Real-IP", "X-Real-IP", "203.0.113.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newLimited(1, nil)

			for i, remote := range []string{"10.0.0.1:1", "10.0.0.2:1"} {
				req := httptest.NewRequest("GET", "/api/usage", nil)
				req.RemoteAddr = remote
				req.Header.Set(tt.header, tt.value)
				rec := httptest.NewRecorder()
				h.ServeHTTP(rec, req)

				want := http.StatusOK
				if i == 1 {
					want = http.StatusTooManyRequests
				}
				if rec.Code != want {
					t.Errorf("request %d: status = %d, want %d", i+1, rec.Code, want)
				}
			}
		})
	}
}

func TestRateLimitMiddleware_TenantKey(t *testing.T) {
	mw := newTestAuthMiddleware(nil)
	h := Stack(mw.RequireUser)(newLimited(1, TenantKey))

	send := func(orgID, ip string) int {
		req := httptest.NewRequest("POST", "/api/chat", nil)
		req.RemoteAddr = ip + ":1234"
		req.Header.Set("Authorization", "Bearer "+mustIssue(t, "user_1", orgID, ""))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send("org_a", "10.0.0.1"); code != http.StatusOK {
		t.Fatalf("first org_a request: status = %d", code)
	}
	// Same organization from a different IP shares the bucket
	if code := send("org_a", "10.0.0.2"); code != http.StatusTooManyRequests {
		t.Errorf("second org_a request: status = %d, want 429", code)
	}
	if code := send("org_b", "10.0.0.1"); code != http.StatusOK {
		t.Errorf("org_b request: status = %d, want 200", code)
	}
}

func TestTenantKey_FallsBackToIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	if got := TenantKey(req); got != "ip:192.0.2.1" {
		t.Errorf("TenantKey = %q, want ip:192.0.2.1", got)
	}
}
