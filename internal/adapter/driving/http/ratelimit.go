package httphandler

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ericfisherdev/cruciverba/internal/application"
	"github.com/ericfisherdev/cruciverba/internal/config"
)

// defaultIdleTTL is how long a client's buckets survive without traffic.
const defaultIdleTTL = 24 * time.Hour

// visitor holds one client's buckets for one rule, one bucket per limit.
type visitor struct {
	limiters []*rate.Limiter
	lastSeen time.Time
}

// RateLimiter throttles requests per client IP and per named rule. Each rule
// may carry several limits (e.g. per day and per hour) that must all allow
// the request. Buckets of idle clients are removed by Sweep.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	onLimit  http.Handler
	security *application.SecurityLog
	idleTTL  time.Duration
	nowFunc  func() time.Time
}

// NewRateLimiter creates a RateLimiter. onLimit renders the response for a
// throttled request; it is called after the security event is recorded.
func NewRateLimiter(security *application.SecurityLog, onLimit http.Handler) *RateLimiter {
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		onLimit:  onLimit,
		security: security,
		idleTTL:  defaultIdleTTL,
		nowFunc:  time.Now,
	}
}

// Limit wraps next so that requests beyond limits, counted per client IP
// under rule, are answered by the onLimit handler. An empty limits list
// disables the rule.
func (rl *RateLimiter) Limit(rule string, limits config.RateLimits, next http.Handler) http.Handler {
	if len(limits) == 0 {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := GetClientIP(r)
		if !rl.Allow(rule, ip, limits) {
			rl.security.Event(application.EventRateLimitExceeded, ip,
				fmt.Sprintf("Rule %s exceeded on %s %s", rule, r.Method, r.URL.Path))
			rl.onLimit.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Allow consumes one token from every bucket of (rule, clientIP) and reports
// whether all of them had one. When any bucket is empty, no token is consumed.
func (rl *RateLimiter) Allow(rule, clientIP string, limits config.RateLimits) bool {
	now := rl.nowFunc()
	key := rule + "|" + clientIP

	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiters: make([]*rate.Limiter, 0, len(limits))}
		for _, l := range limits {
			every := rate.Every(l.Period / time.Duration(l.Count))
			v.limiters = append(v.limiters, rate.NewLimiter(every, l.Count))
		}
		rl.visitors[key] = v
	}
	v.lastSeen = now

	reservations := make([]*rate.Reservation, 0, len(v.limiters))
	for _, lim := range v.limiters {
		res := lim.ReserveN(now, 1)
		if !res.OK() || res.DelayFrom(now) > 0 {
			res.CancelAt(now)
			for _, prev := range reservations {
				prev.CancelAt(now)
			}
			return false
		}
		reservations = append(reservations, res)
	}

	return true
}

// Sweep removes clients that have not been seen for the idle TTL.
// Returns the number of removed entries.
func (rl *RateLimiter) Sweep() int {
	cutoff := rl.nowFunc().Add(-rl.idleTTL)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for key, v := range rl.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(rl.visitors, key)
			removed++
		}
	}
	return removed
}

// Run calls Sweep every interval until ctx is cancelled.
func (rl *RateLimiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Sweep()
		}
	}
}

// size returns the number of tracked (rule, client) pairs.
func (rl *RateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.visitors)
}
