package httpapi

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"kibarashidev/logger"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimit allows Max requests per client IP in each Window. A zero Max
// disables the limit.
type RateLimit struct {
	Max    int
	Window time.Duration
}

func (l RateLimit) enabled() bool {
	return l.Max > 0 && l.Window > 0
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipRateLimiter keeps a token bucket per client IP. Buckets refill at
// Max/Window and hold at most Max tokens.
type ipRateLimiter struct {
	name    string
	message string
	limit   RateLimit
	logger  *logger.LogMiddleware
	now     func() time.Time

	mu        sync.Mutex
	visitors  map[string]*visitor
	lastPrune time.Time
}

func newIPRateLimiter(name, message string, limit RateLimit, log *logger.LogMiddleware, now func() time.Time) *ipRateLimiter {
	return &ipRateLimiter{
		name:     name,
		message:  message,
		limit:    limit,
		logger:   log,
		now:      now,
		visitors: make(map[string]*visitor),
	}
}

func (rl *ipRateLimiter) limiterFor(ip string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Idle buckets are full again after one window, so they can be dropped.
	if now.Sub(rl.lastPrune) > rl.limit.Window {
		for k, v := range rl.visitors {
			if now.Sub(v.lastSeen) > rl.limit.Window {
				delete(rl.visitors, k)
			}
		}
		rl.lastPrune = now
	}

	v, ok := rl.visitors[ip]
	if !ok {
		every := rate.Every(rl.limit.Window / time.Duration(rl.limit.Max))
		v = &visitor{limiter: rate.NewLimiter(every, rl.limit.Max)}
		rl.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter
}

func (rl *ipRateLimiter) Middleware(next http.Handler) http.Handler {
	if !rl.limit.enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		now := rl.now()
		res := rl.limiterFor(ip, now).ReserveN(now, 1)
		if delay := res.DelayFrom(now); !res.OK() || delay > 0 {
			res.CancelAt(now)
			retryAfter := int(math.Ceil(delay.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			rl.logger.Logger(r.Context()).Warn("[HTTP] Rate limit exceeded",
				zap.String("limiter", rl.name),
				zap.String("ip", ip),
				zap.String("path", r.URL.Path))
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeError(w, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", rl.message)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
