package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/hospital/hms/internal/platform/auth"
)

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// IdleTTL evicts limiters for clients not seen for this long.
	IdleTTL time.Duration
}

// DefaultRateLimitConfig returns default rate limiting settings.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		BurstSize:         200,
		IdleTTL:           10 * time.Minute,
	}
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterStore holds one token bucket per client key.
type limiterStore struct {
	mu        sync.Mutex
	limiters  map[string]*clientLimiter
	cfg       RateLimitConfig
	lastSweep time.Time
	now       func() time.Time
}

func newLimiterStore(cfg RateLimitConfig) *limiterStore {
	return &limiterStore{
		limiters: make(map[string]*clientLimiter),
		cfg:      cfg,
		now:      time.Now,
	}
}

func (s *limiterStore) get(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.cfg.IdleTTL > 0 && now.Sub(s.lastSweep) > s.cfg.IdleTTL {
		for k, cl := range s.limiters {
			if now.Sub(cl.lastSeen) > s.cfg.IdleTTL {
				delete(s.limiters, k)
			}
		}
		s.lastSweep = now
	}

	cl, ok := s.limiters[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(s.cfg.RequestsPerSecond), s.cfg.BurstSize)}
		s.limiters[key] = cl
	}
	cl.lastSeen = now
	return cl.limiter
}

// RateLimit limits each client, keyed by authenticated user when known and
// by IP otherwise.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	if cfg.RequestsPerSecond <= 0 || cfg.BurstSize <= 0 {
		cfg = DefaultRateLimitConfig()
	}
	store := newLimiterStore(cfg)
	limit := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', 0, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := "ip:" + c.RealIP()
			if uid := auth.UserIDFromContext(c.Request().Context()); uid != "" {
				key = "user:" + uid + ":" + c.RealIP()
			}

			limiter := store.get(key)
			c.Response().Header().Set("X-RateLimit-Limit", limit)

			r := limiter.Reserve()
			if delay := r.Delay(); delay > 0 {
				r.Cancel()
				retryAfter := int(math.Ceil(delay.Seconds()))
				c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter))
				c.Response().Header().Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
