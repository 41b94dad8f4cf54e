package dashserve

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/osauer/dashserve/internal/responsewriter"
	"golang.org/x/time/rate"
)

// MiddlewareFunc is a function type that wraps an http.Handler and returns a new http.HandlerFunc.
type MiddlewareFunc func(http.Handler) http.HandlerFunc

// MiddlewareStack is a collection of middleware functions that can be applied to an http.Handler.
// Middleware in the stack is applied in order, with the first middleware being the outermost.
type MiddlewareStack []MiddlewareFunc

// Then wraps h with every middleware of the stack.
func (stack MiddlewareStack) Then(h http.Handler) http.Handler {
	// reverse order to run first MiddlewareFunc passed first
	for i := len(stack) - 1; i >= 0; i-- {
		h = stack[i](h)
	}
	return h
}

// allowedMethods is what the file server answers; everything else gets 405.
const allowedMethods = "GET, HEAD, OPTIONS"

// CORSMiddleware returns a middleware function that adds the CORS headers before the
// rest of the chain runs, so every response carries them whatever its status.
func CORSMiddleware(opts *CORSOptions) MiddlewareFunc {
	opts = normalizeCORSOptions(opts)
	return func(next http.Handler) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			opts.Apply(w.Header())
			next.ServeHTTP(w, r)
		}
	}
}

// MethodMiddleware returns a middleware function that lets GET and HEAD through,
// answers OPTIONS preflight requests with 204 and rejects any other method with 405.
func MethodMiddleware(next http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead:
			next.ServeHTTP(w, r)
		case http.MethodOptions:
			w.WriteHeader(http.StatusNoContent)
		default:
			w.Header().Set("Allow", allowedMethods)
			writeError(w, http.StatusMethodNotAllowed)
		}
	}
}

// RequestLoggerMiddleware returns a middleware function that logs method, path, status,
// bytes written and duration of every request.
func RequestLoggerMiddleware(log *slog.Logger) MiddlewareFunc {
	return func(next http.Handler) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			rec := responsewriter.New(w)
			start := time.Now()
			next.ServeHTTP(rec, r)
			log.Info("Request completed",
				"from", clientIP(r),
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.Status(),
				"bytes", rec.BytesWritten(),
				"duration", time.Since(start))
		}
	}
}

// RecoveryMiddleware returns a middleware function that recovers from panics in request handlers.
// Catches panics, logs the error, and returns a 500 Internal Server Error response.
func RecoveryMiddleware(log *slog.Logger) MiddlewareFunc {
	return func(next http.Handler) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					log.Error("Panic recovered", "error", err, "path", r.URL.Path)
					writeError(w, http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		}
	}
}

// rateLimiterEntry pairs a client's token bucket with the last time it was used.
type rateLimiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// limiterTable holds one token bucket per client IP.
type limiterTable struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	idle    time.Duration
	clients map[string]*rateLimiterEntry
	now     func() time.Time
}

// pruneThreshold is the table size above which idle entries are dropped.
const pruneThreshold = 1024

func newLimiterTable(limit rate.Limit, burst int) *limiterTable {
	if burst < 1 {
		burst = 1
	}
	return &limiterTable{
		limit:   limit,
		burst:   burst,
		idle:    10 * time.Minute,
		clients: make(map[string]*rateLimiterEntry),
		now:     time.Now,
	}
}

func (t *limiterTable) get(ip string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	entry, ok := t.clients[ip]
	if !ok {
		if len(t.clients) >= pruneThreshold {
			t.pruneLocked(now)
		}
		entry = &rateLimiterEntry{limiter: rate.NewLimiter(t.limit, t.burst)}
		t.clients[ip] = entry
	}
	entry.lastAccess = now
	return entry.limiter
}

func (t *limiterTable) pruneLocked(now time.Time) {
	for ip, entry := range t.clients {
		if now.Sub(entry.lastAccess) > t.idle {
			delete(t.clients, ip)
		}
	}
}

func (t *limiterTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.clients)
}

// RateLimitMiddleware returns a middleware function that enforces rate limiting per client IP address.
// Uses token bucket algorithm with configurable rate limit and burst capacity.
// Returns 429 Too Many Requests when rate limit is exceeded.
func RateLimitMiddleware(limit rate.Limit, burst int) MiddlewareFunc {
	table := newLimiterTable(limit, burst)
	return rateLimitMiddleware(table)
}

func rateLimitMiddleware(table *limiterTable) MiddlewareFunc {
	return func(next http.Handler) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if !table.get(clientIP(r)).Allow() {
				// Add retry-after header for better client behavior
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		}
	}
}

func clientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return ip
}

// formatLimit renders a rate for log output.
func formatLimit(limit rate.Limit) string {
	if limit == rate.Inf {
		return "unlimited"
	}
	return strconv.FormatFloat(float64(limit), 'f', -1, 64) + "/s"
}
