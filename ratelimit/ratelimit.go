package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/a-h/voicerag/auth"
	"golang.org/x/time/rate"
)

const (
	maxIdle    = time.Hour
	pruneAbove = 10_000
)

// New limits each user, or each remote IP address for anonymous requests, to rps requests
// per second with bursts of up to burst requests. A non-positive rps disables the limit.
func New(rps float64, burst int, next http.Handler) *RateLimit {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	return &RateLimit{
		Next:     next,
		limit:    limit,
		burst:    burst,
		limiters: make(map[string]*limiter),
		now:      time.Now,
	}
}

type RateLimit struct {
	Next http.Handler

	limit    rate.Limit
	burst    int
	m        sync.Mutex
	limiters map[string]*limiter
	now      func() time.Time
}

type limiter struct {
	*rate.Limiter
	lastSeen time.Time
}

func key(r *http.Request) string {
	if user, ok := auth.GetUser(r); ok {
		return "user:" + user
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr
	}
	return "ip:" + host
}

func (rl *RateLimit) get(key string) *rate.Limiter {
	rl.m.Lock()
	defer rl.m.Unlock()
	now := rl.now()
	l, ok := rl.limiters[key]
	if !ok {
		if len(rl.limiters) >= pruneAbove {
			for k, v := range rl.limiters {
				if now.Sub(v.lastSeen) > maxIdle {
					delete(rl.limiters, k)
				}
			}
		}
		l = &limiter{Limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[key] = l
	}
	l.lastSeen = now
	return l.Limiter
}

func (rl *RateLimit) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	l := rl.get(key(r))
	if !l.AllowN(rl.now(), 1) {
		retryAfter := max(time.Second, time.Duration(float64(time.Second)/float64(rl.limit)))
		w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}
	rl.Next.ServeHTTP(w, r)
}
