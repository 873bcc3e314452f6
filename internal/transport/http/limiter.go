package http

import (
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// limiterIdle is the shortest time an address must stay quiet before its limiter is dropped.
const limiterIdle = 10 * time.Minute

// loginLimiter throttles login and signup attempts per client address.
type loginLimiter struct {
	limit rate.Limit
	burst int
	idle  time.Duration
	now   func() time.Time

	mu        sync.Mutex
	limiters  map[string]*addrLimiter
	lastPrune time.Time
}

type addrLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newLoginLimiter(perSecond float64, burst int) *loginLimiter {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	// An entry is only dropped once its bucket would have refilled anyway.
	idle := limiterIdle
	if limit != rate.Inf {
		secs := math.Min(float64(burst)/perSecond, (24 * time.Hour).Seconds())
		if refill := time.Duration(secs * float64(time.Second)); refill > idle {
			idle = refill
		}
	}
	return &loginLimiter{
		limit:    limit,
		burst:    burst,
		idle:     idle,
		now:      time.Now,
		limiters: make(map[string]*addrLimiter),
	}
}

func (l *loginLimiter) allow(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	now := l.now()
	l.mu.Lock()
	l.pruneLocked(now)
	entry, ok := l.limiters[host]
	if !ok {
		entry = &addrLimiter{lim: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[host] = entry
	}
	entry.lastSeen = now
	l.mu.Unlock()
	return entry.lim.AllowN(now, 1)
}

// pruneLocked drops limiters idle for longer than l.idle, at most once per idle period.
func (l *loginLimiter) pruneLocked(now time.Time) {
	if now.Sub(l.lastPrune) < l.idle {
		return
	}
	l.lastPrune = now
	for host, entry := range l.limiters {
		if now.Sub(entry.lastSeen) >= l.idle {
			delete(l.limiters, host)
		}
	}
}
