package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/cppla/bharatinvest/config"
	"github.com/cppla/bharatinvest/utils"
)

const limiterIdle = 5 * time.Minute

type rateLimiter struct {
	limiter *rate.Limiter
	expires time.Time
}

// limiterSet holds one token bucket per key and forgets buckets idle for limiterIdle.
type limiterSet struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	entries map[string]*rateLimiter
}

func newLimiterSet(perMinute int) *limiterSet {
	perMinute = max(perMinute, 1)
	return &limiterSet{
		limit:   rate.Every(time.Minute / time.Duration(perMinute)),
		burst:   max(perMinute/2, 1),
		entries: map[string]*rateLimiter{},
	}
}

func (s *limiterSet) allow(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for k, l := range s.entries {
		if now.After(l.expires) {
			delete(s.entries, k)
		}
	}
	l, ok := s.entries[key]
	if !ok {
		l = &rateLimiter{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.entries[key] = l
	}
	l.expires = now.Add(limiterIdle)
	return l.limiter.Allow()
}

func limitBy(perMinute int, key func(*gin.Context) string) gin.HandlerFunc {
	set := newLimiterSet(perMinute)
	return func(ctx *gin.Context) {
		if !set.allow(key(ctx)) {
			utils.Error(ctx, http.StatusTooManyRequests, 42901, "rate limit exceeded")
			ctx.Abort()
			return
		}
		ctx.Next()
	}
}

// RateLimitMiddleware applies a simple IP based rate limiter using a token bucket.
func RateLimitMiddleware() gin.HandlerFunc {
	return limitBy(config.Get().RateLimitPerMinute, func(ctx *gin.Context) string {
		return ctx.ClientIP()
	})
}

// UserRateLimit throttles ledger commands per authenticated user. It must run after
// AuthRequired; anonymous requests share the client IP bucket.
func UserRateLimit(perMinute int) gin.HandlerFunc {
	return limitBy(perMinute, func(ctx *gin.Context) string {
		if v, ok := ctx.Get(ContextUserIDKey); ok {
			return fmt.Sprintf("user:%v", v)
		}
		return "ip:" + ctx.ClientIP()
	})
}
