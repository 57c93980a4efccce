package security

/*
	RateLimitValidator enforces global and per-IP rate limits on the
	dashboard API using token buckets, with a separate (usually more
	generous) bucket for health-check-style polling. Includes automatic
	cleanup of stale per-IP limiters so long-running servers don't leak
	memory on scanner traffic.

	References:
	- https://pkg.go.dev/golang.org/x/time/rate
	- https://datatracker.ietf.org/doc/draft-ietf-httpapi-ratelimit-headers/
*/

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hibernaut/hibernaut/internal/classifier"
	"github.com/hibernaut/hibernaut/internal/clock"
	"github.com/hibernaut/hibernaut/internal/config"
	"github.com/hibernaut/hibernaut/internal/core/ports"
	"github.com/hibernaut/hibernaut/internal/logger"
)

type RateLimitValidator struct {
	logger *logger.StyledLogger

	globalLimiter           *rate.Limiter
	cleanupTicker           *time.Ticker
	stopCleanup             chan struct{}
	ipLimiters              sync.Map
	globalRequestsPerMinute int
	perIPRequestsPerMinute  int
	burstSize               int
	healthRequestsPerMinute int
	stopOnce                sync.Once
}

type ipLimiterInfo struct {
	mu           sync.RWMutex
	limiter      *rate.Limiter
	lastAccess   time.Time
	windowStart  time.Time
	tokensUsed   int
	requestLimit int
}

func NewRateLimitValidator(limits config.ServerRateLimits, log *logger.StyledLogger) *RateLimitValidator {
	rl := &RateLimitValidator{
		globalRequestsPerMinute: limits.GlobalRequestsPerMinute,
		perIPRequestsPerMinute:  limits.PerIPRequestsPerMinute,
		healthRequestsPerMinute: limits.HealthRequestsPerMinute,
		burstSize:               limits.BurstSize,
		logger:                  log,
		stopCleanup:             make(chan struct{}),
	}

	if limits.GlobalRequestsPerMinute > 0 {
		globalRate := rate.Limit(float64(limits.GlobalRequestsPerMinute) / 60.0)
		rl.globalLimiter = rate.NewLimiter(globalRate, limits.BurstSize)
	}

	cleanupInterval, err := clock.ParseDuration(limits.CleanupInterval)
	if err != nil || cleanupInterval <= 0 {
		cleanupInterval = 10 * time.Minute
	}
	rl.cleanupTicker = time.NewTicker(cleanupInterval)
	go rl.cleanupRoutine()

	return rl
}

func (rl *RateLimitValidator) Name() string { return "rate_limit" }

// Validate checks whether req should be allowed under current rate limits.
func (rl *RateLimitValidator) Validate(_ context.Context, req ports.SecurityRequest) (ports.SecurityResult, error) {
	now := time.Now()

	limit := rl.perIPRequestsPerMinute
	if req.IsHealthCheck {
		limit = rl.healthRequestsPerMinute
	}
	if limit <= 0 {
		return ports.SecurityResult{Allowed: true, ResetTime: now.Add(time.Minute)}, nil
	}

	if rl.globalLimiter != nil {
		reservation := rl.globalLimiter.Reserve()
		if !reservation.OK() || reservation.Delay() > 0 {
			if reservation.Delay() > 0 {
				reservation.Cancel()
			}
			return ports.SecurityResult{
				Allowed:    false,
				RetryAfter: 60,
				RateLimit:  limit,
				ResetTime:  now.Add(time.Minute),
				Reason:     "rate limit exceeded",
			}, nil
		}
	}

	return rl.checkIPLimit(req.ClientID, limit, now, req.IsHealthCheck), nil
}

func (rl *RateLimitValidator) checkIPLimit(clientIP string, limit int, now time.Time, isHealthCheck bool) ports.SecurityResult {
	bucketKey := clientIP
	if isHealthCheck {
		bucketKey = clientIP + ":health"
	}

	info := rl.getOrCreateLimiter(bucketKey, limit)
	info.mu.Lock()
	info.lastAccess = now
	if now.Sub(info.windowStart) >= time.Minute {
		info.windowStart = now
		info.tokensUsed = 0
	}
	limiter := info.limiter
	info.mu.Unlock()

	reservation := limiter.Reserve()
	if !reservation.OK() {
		return ports.SecurityResult{
			Allowed: false, RetryAfter: 60 / limit, RateLimit: limit,
			ResetTime: now.Add(time.Minute), Reason: "rate limit exceeded",
		}
	}

	if delay := reservation.Delay(); delay > 0 {
		reservation.Cancel()
		info.mu.RLock()
		remaining := rl.calculateRemaining(info, limit)
		info.mu.RUnlock()
		return ports.SecurityResult{
			Allowed: false, RetryAfter: int(delay.Seconds()) + 1, RateLimit: limit,
			Remaining: remaining, ResetTime: now.Add(time.Minute), Reason: "rate limit exceeded",
		}
	}

	info.mu.Lock()
	info.tokensUsed++
	remaining := rl.calculateRemaining(info, limit)
	info.mu.Unlock()

	return ports.SecurityResult{Allowed: true, RateLimit: limit, Remaining: remaining, ResetTime: now.Add(time.Minute)}
}

func (rl *RateLimitValidator) calculateRemaining(info *ipLimiterInfo, limit int) int {
	remaining := limit - info.tokensUsed
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

func (rl *RateLimitValidator) getOrCreateLimiter(key string, limit int) *ipLimiterInfo {
	fresh := &ipLimiterInfo{
		limiter:      rate.NewLimiter(rate.Limit(float64(limit)/60.0), rl.burstSize),
		lastAccess:   time.Now(),
		windowStart:  time.Now(),
		requestLimit: limit,
	}
	actual, _ := rl.ipLimiters.LoadOrStore(key, fresh)
	if info, ok := actual.(*ipLimiterInfo); ok {
		return info
	}
	return fresh
}

func (rl *RateLimitValidator) cleanupRoutine() {
	for {
		select {
		case <-rl.stopCleanup:
			return
		case <-rl.cleanupTicker.C:
			rl.cleanupOldLimiters()
		}
	}
}

func (rl *RateLimitValidator) cleanupOldLimiters() {
	cutoff := time.Now().Add(-10 * time.Minute)
	rl.ipLimiters.Range(func(key, value interface{}) bool {
		info, ok := value.(*ipLimiterInfo)
		if !ok {
			return true
		}
		info.mu.RLock()
		lastAccess := info.lastAccess
		info.mu.RUnlock()
		if lastAccess.Before(cutoff) {
			rl.ipLimiters.Delete(key)
		}
		return true
	})
}

func (rl *RateLimitValidator) Stop() {
	rl.stopOnce.Do(func() {
		if rl.cleanupTicker != nil {
			rl.cleanupTicker.Stop()
		}
		close(rl.stopCleanup)
	})
}

func (rl *RateLimitValidator) CreateMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := classifier.ExtractRealIP(r)
			isHealthCheck := r.URL.Path == "/hibernator-api/health"

			req := ports.SecurityRequest{
				ClientID:      clientIP,
				Endpoint:      r.URL.Path,
				Method:        r.Method,
				IsHealthCheck: isHealthCheck,
			}

			result, err := rl.Validate(r.Context(), req)
			if err != nil {
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.RateLimit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetTime.Unix(), 10))

			if !result.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
				rl.logger.Warn("rate limit exceeded", "client_ip", clientIP, "method", r.Method, "path", r.URL.Path, "limit", result.RateLimit, "retry_after", result.RetryAfter)
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
