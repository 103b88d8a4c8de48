package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// RateLimiter is a sliding-window limiter per client. Idle clients expire
// from the cache after two windows.
type RateLimiter struct {
	mu          sync.Mutex
	clients     *cache.Cache
	clock       clockwork.Clock
	maxRequests int
	window      time.Duration
	logger      *zap.Logger
}

// NewRateLimiter allows maxRequests per window for each client.
func NewRateLimiter(maxRequests int, window time.Duration, clock clockwork.Clock, logger *zap.Logger) *RateLimiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{
		clients:     cache.New(2*window, 2*window),
		clock:       clock,
		maxRequests: maxRequests,
		window:      window,
		logger:      logger,
	}
}

// Allow records a request from clientID. When the limit is reached it returns
// false and how long until the oldest request leaves the window.
func (rl *RateLimiter) Allow(clientID string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	cutoff := now.Add(-rl.window)

	var requests []time.Time
	if v, ok := rl.clients.Get(clientID); ok {
		requests = v.([]time.Time)
	}
	valid := requests[:0:0]
	for _, t := range requests {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}

	if len(valid) >= rl.maxRequests {
		rl.clients.SetDefault(clientID, valid)
		retry := valid[0].Add(rl.window).Sub(now)
		rl.logger.Warn("Rate limit exceeded",
			zap.String("client_id", clientID),
			zap.Int("requests", len(valid)),
			zap.Int("max_requests", rl.maxRequests),
			zap.Duration("window", rl.window))
		return false, retry
	}

	rl.clients.SetDefault(clientID, append(valid, now))
	return true, 0
}

// RateLimitMiddleware rejects clients over the limit with 429 and Retry-After.
// Clients are identified by IP address.
func RateLimitMiddleware(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, retry := rl.Allow(c.ClientIP())
		if !ok {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Too many messages. Please wait a moment and try again.",
			})
			return
		}
		c.Next()
	}
}
