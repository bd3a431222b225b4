package http

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/get-hunter/hero365-app-sub007/internal/domain"
)

var (
	errRateLimited            = errors.New("rate limited")
	errRateLimiterUnavailable = errors.New("rate limiter unavailable")
)

// RateLimit caps request volume per client address. It runs before
// authentication, so the key is the network peer rather than the subject;
// a flood of invalid credentials is throttled before it reaches the
// verification stage.
func RateLimit(limiter domain.RateLimiter, requests int, window time.Duration, failClosed bool, bypass []string) Interceptor {
	return Interceptor{
		Name:   "rate-limit",
		Bypass: bypass,
		Handle: func(c *gin.Context, _ *domain.AuthState) error {
			if limiter == nil || requests <= 0 {
				return nil
			}
			key := "client:" + c.ClientIP()
			decision, err := limiter.Allow(c.Request.Context(), key, requests, window)
			if err != nil {
				if failClosed {
					return errRateLimiterUnavailable
				}
				return nil
			}
			writeRateLimitHeaders(c, decision)
			if !decision.Allowed {
				return errRateLimited
			}
			return nil
		},
	}
}

func writeRateLimitHeaders(c *gin.Context, decision domain.RateLimitDecision) {
	if decision.Limit > 0 {
		c.Header("RateLimit-Limit", strconv.Itoa(decision.Limit))
	}
	if decision.Remaining >= 0 {
		c.Header("RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	}
	if !decision.ResetAt.IsZero() {
		c.Header("RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
		if !decision.Allowed {
			retryAfter := int64(time.Until(decision.ResetAt).Seconds())
			if retryAfter < 0 {
				retryAfter = 0
			}
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
		}
	}
}
