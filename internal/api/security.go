package api

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/VenkatGGG/idempotency-coordinator/pkg/httpx"
)

// withAPISecurity guards a mutating route with the optional API key and a
// per-client quota counted separately for each scope. It runs before the
// idempotency wrapper so rejected requests never touch the store.
func (s *Server) withAPISecurity(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !s.authorized(r) {
				httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid api key")
				return
			}
			if s.rateLimiter != nil && !s.rateLimiter.Allow(scope, clientAddress(r), time.Now()) {
				w.Header().Set("Retry-After", s.rateLimiter.retryAfter())
				httpx.WriteError(w, http.StatusTooManyRequests, "rate_limited", "request rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) authorized(r *http.Request) bool {
	want := strings.TrimSpace(s.requiredAPIKey)
	if want == "" {
		return true
	}
	got := presentedAPIKey(r)
	return got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// presentedAPIKey reads X-API-Key, then an Authorization bearer token.
func presentedAPIKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key
	}
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// clientAddress identifies the caller for rate limiting: the first
// X-Forwarded-For hop when present, otherwise the remote host.
func clientAddress(r *http.Request) string {
	if hop, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ","); strings.TrimSpace(hop) != "" {
		return strings.TrimSpace(hop)
	}
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
		return host
	}
	if addr == "" {
		return "unknown"
	}
	return addr
}

type limiterKey struct {
	scope  string
	client string
}

type limiterWindow struct {
	start time.Time
	used  int
}

// scopedLimiter allows limit requests per (scope, client) in each fixed window.
type scopedLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	windows map[limiterKey]limiterWindow
}

func newScopedLimiter(limit int, window time.Duration) *scopedLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &scopedLimiter{
		limit:   max(limit, 1),
		window:  window,
		windows: make(map[limiterKey]limiterWindow),
	}
}

func (l *scopedLimiter) Allow(scope, client string, now time.Time) bool {
	key := limiterKey{scope: scope, client: client}
	start := now.UTC().Truncate(l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	current := l.windows[key]
	if !current.start.Equal(start) {
		current = limiterWindow{start: start}
	}
	if current.used >= l.limit {
		return false
	}
	current.used++
	l.windows[key] = current
	if len(l.windows) >= 1000 {
		l.evictBefore(start)
	}
	return true
}

func (l *scopedLimiter) evictBefore(start time.Time) {
	for key, w := range l.windows {
		if w.start.Before(start) {
			delete(l.windows, key)
		}
	}
}

func (l *scopedLimiter) retryAfter() string {
	return strconv.Itoa(int(max(l.window.Seconds(), 1)))
}
