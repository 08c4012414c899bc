package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/uicheck/config"
	"github.com/use-agent/uicheck/models"
	"golang.org/x/time/rate"
)

const (
	limiterIdle  = time.Hour
	limiterSweep = 5 * time.Minute
)

// bucket is one caller's token bucket.
type bucket struct {
	*rate.Limiter
	lastSeen time.Time
}

// buckets maps a caller identity to its token bucket.
type buckets struct {
	mu    sync.Mutex
	m     map[string]*bucket
	limit rate.Limit
	burst int
}

func newBuckets(cfg config.RateLimitConfig) *buckets {
	return &buckets{
		m:     make(map[string]*bucket),
		limit: rate.Limit(cfg.RequestsPerSecond),
		burst: cfg.Burst,
	}
}

// reserve takes one token for who and returns how long the caller must wait
// before it would have been allowed. Zero means the request may proceed.
func (b *buckets) reserve(who string, now time.Time) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	bk := b.m[who]
	if bk == nil {
		bk = &bucket{Limiter: rate.NewLimiter(b.limit, b.burst)}
		b.m[who] = bk
	}
	bk.lastSeen = now

	r := bk.ReserveN(now, 1)
	if !r.OK() {
		return limiterIdle
	}
	delay := r.DelayFrom(now)
	if delay > 0 {
		r.CancelAt(now)
	}
	return delay
}

// sweep drops buckets unused since cutoff and returns how many went.
func (b *buckets) sweep(cutoff time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for who, bk := range b.m {
		if bk.lastSeen.Before(cutoff) {
			delete(b.m, who)
			n++
		}
	}
	return n
}

// RateLimit throttles callers with one token bucket per API key, or per
// client IP when the request carries no key. Rejected requests get 429 with
// a Retry-After header. Buckets idle for an hour are dropped.
func RateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	b := newBuckets(cfg)

	go func() {
		ticker := time.NewTicker(limiterSweep)
		defer ticker.Stop()
		for now := range ticker.C {
			b.sweep(now.Add(-limiterIdle))
		}
	}()

	return func(c *gin.Context) {
		who := c.GetString("api_key")
		if who == "" {
			who = c.ClientIP()
		}

		if wait := b.reserve(who, time.Now()); wait > 0 {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			abort(c, http.StatusTooManyRequests, models.ErrCodeRateLimited, "rate limit exceeded, retry later")
			return
		}
		c.Next()
	}
}
