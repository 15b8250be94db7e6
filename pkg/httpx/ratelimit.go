package httpx

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/passport/pkg/cryptox"
	"github.com/aussiebroadwan/passport/pkg/slogx"
	"golang.org/x/time/rate"
)

// ============================================================================
// Tiers
// ============================================================================

// RateLimit is a token bucket refilled at Requests per Window, with up to
// Burst requests spent at once.
type RateLimit struct {
	Requests int
	Window   time.Duration
	Burst    int
}

func (l RateLimit) every() rate.Limit {
	return rate.Limit(float64(l.Requests) / l.Window.Seconds())
}

// RateLimits are the tiers the identity service assigns to its routes.
type RateLimits struct {
	Credential RateLimit // password, magic code, passkey, one-time login
	SignIn     RateLimit // sign-in creation, email sends, missing fields
	Session    RateLimit // refresh and consent, keyed per caller
	Public     RateLimit // config and liveness
}

// DefaultRateLimits returns the production tiers.
func DefaultRateLimits() RateLimits {
	return RateLimits{
		Credential: RateLimit{Requests: 5, Window: time.Minute, Burst: 5},
		SignIn:     RateLimit{Requests: 20, Window: time.Minute, Burst: 20},
		Session:    RateLimit{Requests: 100, Window: time.Minute, Burst: 100},
		Public:     RateLimit{Requests: 1000, Window: time.Minute, Burst: 1000},
	}
}

// FromEnv overrides tiers from RATELIMIT_{CREDENTIAL,SIGNIN,SESSION,PUBLIC}_
// {REQUESTS,WINDOW_SEC,BURST}. Unset, malformed and non-positive values keep
// the current setting.
func (ls RateLimits) FromEnv(getenv func(string) string) RateLimits {
	ls.Credential = ls.Credential.fromEnv(getenv, "CREDENTIAL")
	ls.SignIn = ls.SignIn.fromEnv(getenv, "SIGNIN")
	ls.Session = ls.Session.fromEnv(getenv, "SESSION")
	ls.Public = ls.Public.fromEnv(getenv, "PUBLIC")
	return ls
}

func (l RateLimit) fromEnv(getenv func(string) string, tier string) RateLimit {
	positive := func(field string) (int, bool) {
		n, err := strconv.Atoi(getenv("RATELIMIT_" + tier + "_" + field))
		return n, err == nil && n > 0
	}
	if n, ok := positive("REQUESTS"); ok {
		l.Requests = n
	}
	if n, ok := positive("WINDOW_SEC"); ok {
		l.Window = time.Duration(n) * time.Second
	}
	if n, ok := positive("BURST"); ok {
		l.Burst = n
	}
	return l
}

// ============================================================================
// Keys
// ============================================================================

// KeyFunc names the bucket a request draws from. An empty key bypasses the
// limit.
type KeyFunc func(*http.Request) string

// ClientIP keys by the first X-Forwarded-For hop, then X-Real-IP, then the
// peer address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// HeaderFingerprint keys by a digest of header name, so bearer tokens are
// never held as map keys.
func HeaderFingerprint(name string) KeyFunc {
	return func(r *http.Request) string {
		v := strings.TrimSpace(r.Header.Get(name))
		if v == "" {
			return ""
		}
		return cryptox.FingerprintToken(v)
	}
}

// ============================================================================
// Buckets
// ============================================================================

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// buckets holds one limiter per key. Buckets idle for longer than a full
// refill are dropped on the next sweep.
type buckets struct {
	mu    sync.Mutex
	limit RateLimit
	byKey map[string]*bucket
	swept time.Time
}

func newBuckets(limit RateLimit, now time.Time) *buckets {
	return &buckets{limit: limit, byKey: make(map[string]*bucket), swept: now}
}

func (b *buckets) idleAfter() time.Duration {
	return max(b.limit.Window, 5*time.Minute)
}

// take spends one token for key at now. When none is left it reports how
// long until the next one.
func (b *buckets) take(key string, now time.Time) (bool, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if idle := b.idleAfter(); now.Sub(b.swept) >= idle {
		for k, bk := range b.byKey {
			if now.Sub(bk.seen) >= idle {
				delete(b.byKey, k)
			}
		}
		b.swept = now
	}

	bk, ok := b.byKey[key]
	if !ok {
		bk = &bucket{lim: rate.NewLimiter(b.limit.every(), b.limit.Burst)}
		b.byKey[key] = bk
	}
	bk.seen = now

	res := bk.lim.ReserveN(now, 1)
	if d := res.DelayFrom(now); d > 0 {
		res.CancelAt(now)
		return false, d
	}
	return true, 0
}

func (b *buckets) size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.byKey)
}

// ============================================================================
// Middleware
// ============================================================================

// Throttle rejects requests over limit with 429 rate_limit_exceeded. keys
// are joined into the bucket key; with none, requests are keyed by ClientIP.
func Throttle(limit RateLimit, keys ...KeyFunc) Middleware {
	if len(keys) == 0 {
		keys = []KeyFunc{ClientIP}
	}
	b := newBuckets(limit, time.Now())

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := bucketKey(r, keys)
			if key == "" {
				slogx.FromContext(r.Context()).Warn("rate limit: no key for request, allowing")
				next.ServeHTTP(w, r)
				return
			}

			ok, wait := b.take(key, time.Now())
			if ok {
				next.ServeHTTP(w, r)
				return
			}

			retryAfter := max(int((wait+time.Second-1)/time.Second), 1)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit.Requests))
			w.Header().Set("X-RateLimit-Window", limit.Window.String())

			slogx.FromContext(r.Context()).Warn("rate limit exceeded",
				"endpoint", r.URL.Path,
				"retry_after", retryAfter,
			)
			WriteError(w, http.StatusTooManyRequests, "rate_limit_exceeded",
				"Too many requests. Please try again later.",
				map[string]any{"retry_after": retryAfter})
		})
	}
}

func bucketKey(r *http.Request, keys []KeyFunc) string {
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if v := k(r); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, "|")
}
