package auth

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// IPLimiter keeps one token bucket per client IP.
type IPLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*visitor
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewIPLimiter allows perMinute requests per IP per minute, with bursts of
// the same size. Zero or less allows everything.
func NewIPLimiter(perMinute int) *IPLimiter {
	l := &IPLimiter{limit: rate.Inf, limiters: make(map[string]*visitor)}
	if perMinute > 0 {
		l.limit = rate.Every(time.Minute / time.Duration(perMinute))
		l.burst = perMinute
	}
	return l
}

func (l *IPLimiter) Allow(ip string) bool {
	if l.limit == rate.Inf {
		return true
	}
	l.mu.Lock()
	v, ok := l.limiters[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[ip] = v
	}
	v.lastSeen = time.Now()
	l.mu.Unlock()
	return v.limiter.Allow()
}

// Prune forgets IPs not seen since cutoff.
func (l *IPLimiter) Prune(cutoff time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for ip, v := range l.limiters {
		if v.lastSeen.Before(cutoff) {
			delete(l.limiters, ip)
			n++
		}
	}
	return n
}

// Middleware answers 429 once a client IP exceeds its budget.
func (l *IPLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "backend.errors.rate_limited"})
			return
		}
		c.Next()
	}
}
