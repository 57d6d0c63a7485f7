package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAuthorizedAcceptsHeaderOrBearer(t *testing.T) {
	t.Parallel()

	s := &Server{requiredAPIKey: "topsecret"}

	req := httptest.NewRequest(http.MethodPost, "/v1/orders", nil)
	req.Header.Set("Authorization", "Bearer topsecret")
	if !s.authorized(req) {
		t.Fatalf("expected bearer token to satisfy api key check")
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/orders", nil)
	req.Header.Set("X-API-Key", "topsecret")
	if !s.authorized(req) {
		t.Fatalf("expected X-API-Key to satisfy api key check")
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/orders", nil)
	req.Header.Set("X-API-Key", "wrong")
	if s.authorized(req) {
		t.Fatalf("expected mismatched api key to be rejected")
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/orders", nil)
	req.Header.Set("Authorization", "Basic topsecret")
	if s.authorized(req) {
		t.Fatalf("expected non-bearer authorization to be rejected")
	}

	open := &Server{}
	if !open.authorized(httptest.NewRequest(http.MethodPost, "/v1/orders", nil)) {
		t.Fatalf("expected requests to pass when no api key is configured")
	}
}

func TestClientAddressPrefersFirstForwardedHop(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPost, "/v1/orders", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.10, 10.0.0.5")
	req.RemoteAddr = "127.0.0.1:12345"
	if got := clientAddress(req); got != "203.0.113.10" {
		t.Fatalf("expected first forwarded ip, got %q", got)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/orders", nil)
	req.RemoteAddr = "198.51.100.7:4000"
	if got := clientAddress(req); got != "198.51.100.7" {
		t.Fatalf("expected remote host, got %q", got)
	}
}

func TestScopedLimiterResetsAcrossWindows(t *testing.T) {
	t.Parallel()

	limiter := newScopedLimiter(1, time.Minute)
	windowStart := time.Date(2026, time.February, 12, 10, 0, 0, 0, time.UTC)

	if !limiter.Allow("orders", "198.51.100.4", windowStart.Add(10*time.Second)) {
		t.Fatalf("expected first request in window to be allowed")
	}
	if limiter.Allow("orders", "198.51.100.4", windowStart.Add(20*time.Second)) {
		t.Fatalf("expected second request in same window to be denied")
	}
	if !limiter.Allow("orders", "198.51.100.4", windowStart.Add(70*time.Second)) {
		t.Fatalf("expected request in next window to be allowed")
	}
}

func TestScopedLimiterCountsScopesSeparately(t *testing.T) {
	t.Parallel()

	limiter := newScopedLimiter(1, time.Minute)
	now := time.Date(2026, time.February, 12, 10, 0, 30, 0, time.UTC)

	if !limiter.Allow("orders", "198.51.100.4", now) {
		t.Fatalf("expected create to be allowed")
	}
	if !limiter.Allow("order-cancel", "198.51.100.4", now) {
		t.Fatalf("expected cancel quota to be independent of create quota")
	}
	if !limiter.Allow("orders", "198.51.100.5", now) {
		t.Fatalf("expected another client to have its own quota")
	}
	if limiter.Allow("order-cancel", "198.51.100.4", now) {
		t.Fatalf("expected second cancel to be denied")
	}
	if got := limiter.retryAfter(); got != "60" {
		t.Fatalf("expected retry-after of 60 seconds, got %q", got)
	}
}
