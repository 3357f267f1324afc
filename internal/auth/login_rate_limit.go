package auth

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"panicless-backend/internal/httpx"
	"panicless-backend/internal/observability"
)

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LoginRateLimiter allows maxHits login attempts per window for each client
// IP, refilling continuously.
type LoginRateLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	window    time.Duration
	byIP      map[string]*ipLimiter
	maxMemory int
	now       func() time.Time
}

func NewLoginRateLimiter(maxHits int, window time.Duration) *LoginRateLimiter {
	if maxHits <= 0 {
		maxHits = 10
	}
	if window <= 0 {
		window = time.Minute
	}

	return &LoginRateLimiter{
		limit:     rate.Limit(float64(maxHits) / window.Seconds()),
		burst:     maxHits,
		window:    window,
		byIP:      make(map[string]*ipLimiter),
		maxMemory: 5000,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (l *LoginRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, retryAfter := l.allow(observability.ClientIP(r), l.now())
		if !allowed {
			httpx.WriteTooManyRequests(w, retryAfter, "too many login attempts")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (l *LoginRateLimiter) allow(ip string, now time.Time) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.byIP[ip]
	if !ok {
		entry = &ipLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.byIP[ip] = entry
	}
	entry.lastSeen = now

	if len(l.byIP) > l.maxMemory {
		threshold := now.Add(-l.window)
		for key, value := range l.byIP {
			if value.lastSeen.Before(threshold) {
				delete(l.byIP, key)
			}
		}
	}

	if entry.limiter.AllowN(now, 1) {
		return true, 0
	}

	reservation := entry.limiter.ReserveN(now, 1)
	retryAfter := reservation.DelayFrom(now)
	reservation.CancelAt(now)
	if retryAfter < time.Second {
		retryAfter = time.Second
	}

	return false, retryAfter
}
