package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/AnshRaj112/bugtracker-backend/pkg/clientip"
	"github.com/AnshRaj112/bugtracker-backend/pkg/respond"
)

const (
	headerXContentTypeOptions     = "X-Content-Type-Options"
	headerXFrameOptions           = "X-Frame-Options"
	headerXXSSProtection          = "X-XSS-Protection"
	headerContentSecurityPolicy   = "Content-Security-Policy"
	headerStrictTransportSecurity = "Strict-Transport-Security"
	headerReferrerPolicy          = "Referrer-Policy"
)

// SecurityHeaders sets security-related response headers.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(headerXContentTypeOptions, "nosniff")
		w.Header().Set(headerXFrameOptions, "DENY")
		w.Header().Set(headerXXSSProtection, "1; mode=block")
		w.Header().Set(headerContentSecurityPolicy, "default-src 'self'")
		w.Header().Set(headerStrictTransportSecurity, "max-age=31536000; includeSubDomains")
		w.Header().Set(headerReferrerPolicy, "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// HostCheck returns 403 when r.Host does not match allowedHost.
// allowedHost should be the bare hostname without scheme or port; empty disables the check.
func HostCheck(allowedHost string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if allowedHost == "" {
				next.ServeHTTP(w, r)
				return
			}
			reqHost := r.Host
			if host, _, err := net.SplitHostPort(reqHost); err == nil {
				reqHost = host
			}
			if !strings.EqualFold(strings.TrimSpace(reqHost), strings.TrimSpace(allowedHost)) {
				respond.Fail(w, http.StatusForbidden, "Forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type limiterEntry struct {
	limiter *rate.Limiter
	lastUse time.Time
}

// IPLimiter keeps one token bucket per client IP. Buckets idle for longer
// than ttl are dropped by Sweep.
type IPLimiter struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	limit   rate.Limit
	burst   int
	ttl     time.Duration
	now     func() time.Time
}

func NewIPLimiter(limit rate.Limit, burst int, ttl time.Duration) *IPLimiter {
	return &IPLimiter{
		entries: make(map[string]*limiterEntry),
		limit:   limit,
		burst:   burst,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Allow consumes one token from ip's bucket.
func (l *IPLimiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	e, ok := l.entries[ip]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[ip] = e
	}
	e.lastUse = now
	return e.limiter.AllowN(now, 1)
}

// Sweep drops idle buckets and returns how many were removed.
func (l *IPLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	removed := 0
	for ip, e := range l.entries {
		if now.Sub(e.lastUse) > l.ttl {
			delete(l.entries, ip)
			removed++
		}
	}
	return removed
}

func (l *IPLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// RunSweeper calls Sweep every interval until stop is closed.
func (l *IPLimiter) RunSweeper(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.Sweep()
		case <-stop:
			return
		}
	}
}

// Middleware rejects requests over the limit with 429 and message. When paths
// is non-empty only those exact paths are limited.
func (l *IPLimiter) Middleware(message string, paths ...string) func(http.Handler) http.Handler {
	only := make(map[string]bool, len(paths))
	for _, p := range paths {
		only[p] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(only) > 0 && !only[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			if !l.Allow(clientip.RealClientIP(r)) {
				respond.Fail(w, http.StatusTooManyRequests, message)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

const (
	globalRateLimitRPS   = 10
	globalRateLimitBurst = 30
	authRateLimitEvery   = 5 * time.Second
	authRateLimitBurst   = 5
	limiterCleanupEvery  = 5 * time.Minute
	limiterTTL           = 30 * time.Minute
)

// AuthPaths are throttled per IP on top of the global limit.
var AuthPaths = []string{
	"/api/auth/login",
	"/api/auth/register",
	"/api/auth/refresh",
}

// Security bundles the production middleware chain and owns the limiter sweepers.
type Security struct {
	AllowedHost string
	Global      *IPLimiter
	Auth        *IPLimiter
	stop        chan struct{}
	once        sync.Once
}

func NewSecurity(allowedHost string) *Security {
	return &Security{
		AllowedHost: allowedHost,
		Global:      NewIPLimiter(rate.Limit(globalRateLimitRPS), globalRateLimitBurst, limiterTTL),
		Auth:        NewIPLimiter(rate.Every(authRateLimitEvery), authRateLimitBurst, limiterTTL),
		stop:        make(chan struct{}),
	}
}

// Start launches the background sweepers.
func (s *Security) Start() {
	go s.Global.RunSweeper(limiterCleanupEvery, s.stop)
	go s.Auth.RunSweeper(limiterCleanupEvery, s.stop)
}

func (s *Security) Stop() {
	s.once.Do(func() { close(s.stop) })
}

// Chain returns SecurityHeaders, HostCheck, the global limiter and the auth-route limiter, in that order.
func (s *Security) Chain() []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		SecurityHeaders,
		HostCheck(s.AllowedHost),
		s.Global.Middleware("Too many requests. Please slow down."),
		s.Auth.Middleware("Too many authentication attempts. Please try again later.", AuthPaths...),
	}
}
