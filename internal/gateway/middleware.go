package gateway

import (
	"errors"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/eleven-am/liveness-backend/internal/apikey"
	"github.com/eleven-am/liveness-backend/internal/shared"
	"github.com/eleven-am/liveness-backend/internal/transport"
	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

func APIKeyAuth(auth *Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			secret := extractAPIKey(c.Request())
			if secret == "" {
				return shared.Unauthorized("missing_api_key", "missing api key")
			}

			key, err := auth.ValidateAPIKey(c.Request().Context(), secret)
			switch {
			case errors.Is(err, ErrExpiredAPIKey):
				return shared.Unauthorized("expired_api_key", err.Error())
			case err != nil:
				return shared.Unauthorized("invalid_api_key", err.Error())
			}

			apikey.SetContext(c, key)
			return next(c)
		}
	}
}

func GetAPIKey(c echo.Context) *apikey.APIKey {
	return apikey.FromContext(c)
}

// ClientProfile describes the authenticated caller of an echo request.
func ClientProfile(c echo.Context) *transport.ClientProfile {
	key := GetAPIKey(c)
	if key == nil {
		return nil
	}
	return profileFor(key, c.RealIP())
}

type RateLimiterConfig struct {
	RequestsPerSecond float64
	Burst             int
	// IdleTTL evicts limiters for callers not seen within the window.
	IdleTTL time.Duration
}

func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerSecond: 10,
		Burst:             20,
		IdleTTL:           5 * time.Minute,
	}
}

type callerLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ClientLimiter holds one token bucket per caller.
type ClientLimiter struct {
	cfg RateLimiterConfig
	now func() time.Time

	mu      sync.Mutex
	callers map[string]*callerLimiter

	stop     chan struct{}
	stopOnce sync.Once
}

func NewClientLimiter(cfg RateLimiterConfig) *ClientLimiter {
	l := &ClientLimiter{
		cfg:     cfg,
		now:     time.Now,
		callers: make(map[string]*callerLimiter),
		stop:    make(chan struct{}),
	}
	if cfg.IdleTTL > 0 {
		go l.evictLoop()
	}
	return l
}

// Reserve takes a token for key. When the bucket is empty it returns false
// and how long the caller should wait before retrying.
func (l *ClientLimiter) Reserve(key string) (bool, time.Duration) {
	now := l.now()

	l.mu.Lock()
	entry, ok := l.callers[key]
	if !ok {
		entry = &callerLimiter{
			limiter: rate.NewLimiter(rate.Limit(l.cfg.RequestsPerSecond), l.cfg.Burst),
		}
		l.callers[key] = entry
	}
	entry.lastSeen = now
	l.mu.Unlock()

	r := entry.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, time.Second
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

func (l *ClientLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.callers)
}

func (l *ClientLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *ClientLimiter) evict(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, entry := range l.callers {
		if now.Sub(entry.lastSeen) >= l.cfg.IdleTTL {
			delete(l.callers, key)
		}
	}
}

func (l *ClientLimiter) evictLoop() {
	ticker := time.NewTicker(l.cfg.IdleTTL)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.evict(l.now())
		}
	}
}

// RateLimiter limits requests per client, falling back to the remote address
// for unauthenticated routes.
func RateLimiter(l *ClientLimiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := "ip:" + c.RealIP()
			if apiKey := GetAPIKey(c); apiKey != nil {
				key = "client:" + apiKey.ClientID
			}

			if ok, wait := l.Reserve(key); !ok {
				secs := int(math.Ceil(wait.Seconds()))
				c.Response().Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
				return shared.TooManyRequests("rate_limit_exceeded", "too many requests")
			}

			return next(c)
		}
	}
}
