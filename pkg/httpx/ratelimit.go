package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/studyhub/pkg/slogx"
	"golang.org/x/time/rate"
)

// RateLimitConfig defines the rate limiting parameters.
type RateLimitConfig struct {
	// RequestsPerWindow is the number of requests allowed in the time window
	RequestsPerWindow int
	// Window is the time window for rate limiting
	Window time.Duration
	// Burst allows for temporary bursts above the rate limit (memory backend only)
	Burst int
}

// RateLimits groups the tiers the router applies to its endpoints.
type RateLimits struct {
	Strict   RateLimitConfig // credential and code submission
	Moderate RateLimitConfig // authenticated account operations
	Lenient  RateLimitConfig // reads
	Public   RateLimitConfig // health probes
}

// DefaultRateLimits returns the production tiers.
func DefaultRateLimits() RateLimits {
	return RateLimits{
		Strict:   RateLimitConfig{RequestsPerWindow: 10, Window: time.Minute, Burst: 10},
		Moderate: RateLimitConfig{RequestsPerWindow: 30, Window: time.Minute, Burst: 30},
		Lenient:  RateLimitConfig{RequestsPerWindow: 100, Window: time.Minute, Burst: 100},
		Public:   RateLimitConfig{RequestsPerWindow: 1000, Window: time.Minute, Burst: 1000},
	}
}

// RateLimitsFromEnv applies RATELIMIT_{TIER}_{REQUESTS,WINDOW_SEC,BURST}
// overrides on top of DefaultRateLimits.
func RateLimitsFromEnv() RateLimits {
	d := DefaultRateLimits()
	return RateLimits{
		Strict:   ParseRateLimitFromEnv("STRICT", d.Strict),
		Moderate: ParseRateLimitFromEnv("MODERATE", d.Moderate),
		Lenient:  ParseRateLimitFromEnv("LENIENT", d.Lenient),
		Public:   ParseRateLimitFromEnv("PUBLIC", d.Public),
	}
}

// ParseRateLimitFromEnv reads RATELIMIT_{prefix}_REQUESTS,
// RATELIMIT_{prefix}_WINDOW_SEC and RATELIMIT_{prefix}_BURST. Invalid or
// non-positive values keep the default.
func ParseRateLimitFromEnv(prefix string, def RateLimitConfig) RateLimitConfig {
	cfg := def
	if n, ok := positiveEnvInt("RATELIMIT_" + prefix + "_REQUESTS"); ok {
		cfg.RequestsPerWindow = n
	}
	if n, ok := positiveEnvInt("RATELIMIT_" + prefix + "_WINDOW_SEC"); ok {
		cfg.Window = time.Duration(n) * time.Second
	}
	if n, ok := positiveEnvInt("RATELIMIT_" + prefix + "_BURST"); ok {
		cfg.Burst = n
	}
	return cfg
}

func positiveEnvInt(key string) (int, bool) {
	n, err := strconv.Atoi(os.Getenv(key))
	return n, err == nil && n > 0
}

// Decision is the outcome of a single rate limit check.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter decides whether the request identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// LimiterFactory builds a limiter for a named route group. Backends that
// share a keyspace across routes use name to namespace their keys.
type LimiterFactory func(name string, cfg RateLimitConfig) Limiter

// MemoryLimiterFactory builds process-local token bucket limiters.
func MemoryLimiterFactory(_ string, cfg RateLimitConfig) Limiter {
	return NewMemoryLimiter(cfg)
}

// KeyExtractor is a function that extracts a unique key from the request
// for rate limiting purposes (e.g., IP address, user ID, email).
type KeyExtractor func(*http.Request) string

// IPKeyExtractor returns the client address resolved by ClientIPMiddleware.
// Without that middleware it falls back to the socket peer.
func IPKeyExtractor(r *http.Request) string {
	if ip, ok := r.Context().Value(CtxKeyClientIP).(string); ok && ip != "" {
		return ip
	}
	return peerIP(r)
}

// ClientIP is the address recorded against login attempts and unlock
// tokens. It is the same value the IP rate limiter keys on.
func ClientIP(r *http.Request) string { return IPKeyExtractor(r) }

// UserIDKeyExtractor extracts the user ID from the request context.
func UserIDKeyExtractor(r *http.Request) string {
	id, _ := UserID(r.Context())
	return id
}

// CompositeKeyExtractor joins the non-empty keys of extractors with sep.
func CompositeKeyExtractor(sep string, extractors ...KeyExtractor) KeyExtractor {
	return func(r *http.Request) string {
		var parts []string
		for _, extractor := range extractors {
			if key := extractor(r); key != "" {
				parts = append(parts, key)
			}
		}
		return strings.Join(parts, sep)
	}
}

// JSONFieldKeyExtractor extracts a top-level string field from a JSON body
// and restores the body for the handler. Values are lower-cased so that
// "Alice@x.com" and "alice@x.com" share a bucket.
func JSONFieldKeyExtractor(field string) KeyExtractor {
	return func(r *http.Request) string {
		if r.Body == nil {
			return ""
		}
		raw, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes))
		_ = r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(raw))
		if err != nil {
			return ""
		}

		var body map[string]any
		if err := json.Unmarshal(raw, &body); err != nil {
			return ""
		}
		v, _ := body[field].(string)
		return strings.ToLower(strings.TrimSpace(v))
	}
}

// memoryLimiter keeps one token bucket per key.
type memoryLimiter struct {
	limiters sync.Map // map[string]*rate.Limiter
	rate     rate.Limit
	burst    int

	mu          sync.Mutex
	lastCleanup time.Time
}

// NewMemoryLimiter returns a token bucket limiter refilling at
// RequestsPerWindow/Window with the configured burst.
func NewMemoryLimiter(cfg RateLimitConfig) Limiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = cfg.RequestsPerWindow
	}
	return &memoryLimiter{
		rate:        rate.Limit(float64(cfg.RequestsPerWindow) / cfg.Window.Seconds()),
		burst:       burst,
		lastCleanup: time.Now(),
	}
}

func (m *memoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	limiter := m.get(key)
	if limiter.Allow() {
		return Decision{Allowed: true}, nil
	}

	// Peek at when the next token lands without consuming it.
	res := limiter.Reserve()
	delay := res.Delay()
	res.Cancel()
	return Decision{Allowed: false, RetryAfter: delay}, nil
}

func (m *memoryLimiter) get(key string) *rate.Limiter {
	if l, ok := m.limiters.Load(key); ok {
		return l.(*rate.Limiter)
	}
	actual, _ := m.limiters.LoadOrStore(key, rate.NewLimiter(m.rate, m.burst))
	m.maybeCleanup()
	return actual.(*rate.Limiter)
}

// maybeCleanup drops idle buckets (full of tokens) every five minutes.
func (m *memoryLimiter) maybeCleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if time.Since(m.lastCleanup) < 5*time.Minute {
		return
	}
	m.lastCleanup = time.Now()

	m.limiters.Range(func(key, value any) bool {
		if value.(*rate.Limiter).Tokens() >= float64(m.burst) {
			m.limiters.Delete(key)
		}
		return true
	})
}

// RateLimitMiddleware limits with a process-local limiter.
func RateLimitMiddleware(cfg RateLimitConfig, keyExtractor KeyExtractor) Middleware {
	return RateLimitWith(NewMemoryLimiter(cfg), cfg, keyExtractor)
}

// RateLimitWith limits requests through l. Requests without a key and
// requests hitting a limiter backend error are let through.
func RateLimitWith(l Limiter, cfg RateLimitConfig, keyExtractor KeyExtractor) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			key := keyExtractor(r)
			if key == "" {
				log.Warn("rate limit: unable to extract key, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			d, err := l.Allow(ctx, key)
			if err != nil {
				log.Error("rate limit: backend error, allowing request", "err", err)
				next.ServeHTTP(w, r)
				return
			}
			if d.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			retryAfter := max(int(d.RetryAfter.Seconds()), 1)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.RequestsPerWindow))
			w.Header().Set("X-RateLimit-Window", cfg.Window.String())

			log.Warn("rate limit exceeded",
				"key", key,
				"endpoint", r.URL.Path,
				"retry_after", retryAfter,
			)
			WriteJSON(w, http.StatusTooManyRequests, map[string]string{
				"error":             "rate_limit_exceeded",
				"error_description": "Too many requests. Please try again later.",
			})
		})
	}
}

// RateLimitByIP creates a rate limiter that limits by IP address only.
func RateLimitByIP(cfg RateLimitConfig) Middleware {
	return RateLimitMiddleware(cfg, IPKeyExtractor)
}

// RateLimitByUser limits by authenticated user, falling back to IP.
func RateLimitByUser(cfg RateLimitConfig) Middleware {
	return RateLimitMiddleware(cfg, CompositeKeyExtractor(":",
		UserIDKeyExtractor,
		IPKeyExtractor,
	))
}
