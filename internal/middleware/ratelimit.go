package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/codeveda/records-api/pkg/metrics"
)

// CounterStore keeps fixed window hit counters keyed by client.
type CounterStore interface {
	// Incr counts a hit and returns the new count and the time left in
	// the window.
	Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	Decr(ctx context.Context, key string) error
}

// RedisCounter shares counters between API instances.
type RedisCounter struct {
	client *redis.Client
}

func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client}
}

func (r *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, 0, err
	}
	if count == 1 {
		return count, window, r.client.PExpire(ctx, key, window).Err()
	}

	left, err := r.client.PTTL(ctx, key).Result()
	if err != nil {
		return 0, 0, err
	}
	if left < 0 {
		// the key lost its expiry; start a new window
		left = window
		if err := r.client.PExpire(ctx, key, window).Err(); err != nil {
			return 0, 0, err
		}
	}
	return count, left, nil
}

func (r *RedisCounter) Decr(ctx context.Context, key string) error {
	return r.client.Decr(ctx, key).Err()
}

// MemoryCounter keeps counters in process, for single instance deployments
// and tests.
type MemoryCounter struct {
	cache *cache.Cache
}

func NewMemoryCounter(cleanupInterval time.Duration) *MemoryCounter {
	return &MemoryCounter{cache: cache.New(cache.NoExpiration, cleanupInterval)}
}

func (m *MemoryCounter) Incr(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if err := m.cache.Add(key, int64(1), window); err == nil {
		return 1, window, nil
	}
	count, err := m.cache.IncrementInt64(key, 1)
	if err != nil {
		// expired between Add and Increment
		m.cache.Set(key, int64(1), window)
		return 1, window, nil
	}
	_, expires, _ := m.cache.GetWithExpiration(key)
	return count, time.Until(expires), nil
}

func (m *MemoryCounter) Decr(_ context.Context, key string) error {
	// a missing key means the window already ended
	_, _ = m.cache.DecrementInt64(key, 1)
	return nil
}

type RateLimitConfig struct {
	Name    string
	Max     int
	Window  time.Duration
	Message string
	// Skip exempts matching requests entirely.
	Skip func(c *gin.Context) bool
	// SkipSuccessful refunds hits that end without an error or a status of 400 or above.
	SkipSuccessful bool
}

type rateLimitBody struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter"`
}

// RateLimit is a per-IP fixed window limiter. Store errors let the request
// through.
func RateLimit(store CounterStore, config RateLimitConfig, m *metrics.Metrics) gin.HandlerFunc {
	if config.Message == "" {
		config.Message = "Too many requests from this IP, please try again later."
	}
	prefix := "ratelimit:" + config.Name + ":"

	return func(c *gin.Context) {
		if config.Max <= 0 || (config.Skip != nil && config.Skip(c)) {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		key := prefix + c.ClientIP()
		count, left, err := store.Incr(ctx, key, config.Window)
		if err != nil {
			log.Warn().Err(err).Str("limiter", config.Name).Msg("rate limit store unavailable")
			c.Next()
			return
		}

		remaining := int64(config.Max) - count
		if remaining < 0 {
			remaining = 0
		}
		reset := int(math.Ceil(left.Seconds()))
		c.Header("RateLimit-Limit", strconv.Itoa(config.Max))
		c.Header("RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		c.Header("RateLimit-Reset", strconv.Itoa(reset))

		if count > int64(config.Max) {
			m.RateLimited.WithLabelValues(config.Name).Inc()
			c.Header("Retry-After", strconv.Itoa(reset))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, rateLimitBody{
				Error:      "Too many requests",
				Message:    config.Message,
				RetryAfter: reset,
			})
			return
		}

		c.Next()

		if config.SkipSuccessful && !requestFailed(c) {
			if err := store.Decr(ctx, key); err != nil {
				log.Warn().Err(err).Str("limiter", config.Name).Msg("failed to refund rate limit hit")
			}
		}
	}
}

// SkipPaths exempts requests whose path is one of paths.
func SkipPaths(paths ...string) func(c *gin.Context) bool {
	return func(c *gin.Context) bool {
		for _, p := range paths {
			if c.Request.URL.Path == p {
				return true
			}
		}
		return false
	}
}

// GlobalRateLimit caps the whole process with a token bucket.
func GlobalRateLimit(rps float64, burst int, m *metrics.Metrics) gin.HandlerFunc {
	if rps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burst <= 0 {
		burst = int(math.Ceil(rps))
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)

	return func(c *gin.Context) {
		if !limiter.Allow() {
			m.RateLimited.WithLabelValues("global").Inc()
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, rateLimitBody{
				Error:      "Too many requests",
				Message:    "Server is busy, please try again later.",
				RetryAfter: 1,
			})
			return
		}
		c.Next()
	}
}
