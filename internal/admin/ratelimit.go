package admin

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	staleLimiterTTL = 10 * time.Minute
	cleanupInterval = 1 * time.Minute
)

type endpointRule struct {
	name   string
	method string // empty matches any method
	prefix string // empty matches any path
	rps    rate.Limit
	burst  int
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimitMiddleware limits admin requests per endpoint rule and client IP.
type RateLimitMiddleware struct {
	mu         sync.Mutex
	limiters   map[string]*limiterEntry // key: rule name + "|" + client IP
	rules      []endpointRule
	trustProxy bool
	logger     *slog.Logger
	nowFunc    func() time.Time
	stopOnce   sync.Once
	stopCh     chan struct{}
}

type RateLimitOption func(*RateLimitMiddleware)

// WithTrustedProxy makes the limiter key clients by X-Forwarded-For and
// X-Real-IP instead of the connection address.
func WithTrustedProxy() RateLimitOption {
	return func(rl *RateLimitMiddleware) { rl.trustProxy = true }
}

// NewRateLimitMiddleware creates a per-IP rate limiter. defaultRPS applies to
// read endpoints; reset and schema have fixed, stricter limits. It starts a
// background goroutine that evicts idle limiters until Stop is called.
func NewRateLimitMiddleware(logger *slog.Logger, defaultRPS int, opts ...RateLimitOption) *RateLimitMiddleware {
	if defaultRPS <= 0 {
		defaultRPS = 1
	}
	rl := &RateLimitMiddleware{
		limiters: make(map[string]*limiterEntry),
		logger:   logger,
		nowFunc:  time.Now,
		stopCh:   make(chan struct{}),
		rules: []endpointRule{
			{name: "reset", method: http.MethodPost, prefix: "/admin/v1/reset", rps: rate.Limit(1.0 / 60), burst: 1},    // 1 req/min
			{name: "schema", method: http.MethodPost, prefix: "/admin/v1/schema", rps: rate.Limit(10.0 / 60), burst: 3}, // 10 req/min
			{name: "default", rps: rate.Limit(defaultRPS), burst: 2 * defaultRPS},
		},
	}
	for _, opt := range opts {
		opt(rl)
	}

	go rl.cleanupLoop()
	return rl
}

// Stop shuts down the background cleanup goroutine. Safe to call multiple times.
func (rl *RateLimitMiddleware) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopCh)
	})
}

func (rl *RateLimitMiddleware) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			rl.evictStale()
		}
	}
}

func (rl *RateLimitMiddleware) evictStale() {
	now := rl.nowFunc()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, entry := range rl.limiters {
		if now.Sub(entry.lastSeen) > staleLimiterTTL {
			delete(rl.limiters, key)
		}
	}
}

// LimiterCount returns the number of live limiter entries.
func (rl *RateLimitMiddleware) LimiterCount() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

func (rl *RateLimitMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientIP := rl.clientIP(r)
		rule := rl.match(r.Method, r.URL.Path)

		if !rl.limiter(rule, clientIP).Allow() {
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			rl.logger.Warn("admin API rate limit exceeded",
				"rule", rule.name,
				"method", r.Method,
				"path", r.URL.Path,
				"client_ip", clientIP,
			)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimitMiddleware) clientIP(r *http.Request) string {
	if rl.trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// match returns the first rule for method and path. The last rule matches
// everything.
func (rl *RateLimitMiddleware) match(method, path string) endpointRule {
	for _, rule := range rl.rules {
		if rule.method != "" && !strings.EqualFold(rule.method, method) {
			continue
		}
		if rule.prefix != "" && !strings.HasPrefix(path, rule.prefix) {
			continue
		}
		return rule
	}
	return rl.rules[len(rl.rules)-1]
}

func (rl *RateLimitMiddleware) limiter(rule endpointRule, clientIP string) *rate.Limiter {
	key := rule.name + "|" + clientIP
	now := rl.nowFunc()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if entry, ok := rl.limiters[key]; ok {
		entry.lastSeen = now
		return entry.limiter
	}
	limiter := rate.NewLimiter(rule.rps, rule.burst)
	rl.limiters[key] = &limiterEntry{limiter: limiter, lastSeen: now}
	return limiter
}
