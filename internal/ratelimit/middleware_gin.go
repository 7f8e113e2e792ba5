package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/waitlist/internal/observability/metrics"
	"go.uber.org/zap"
)

const rateLimitedMessage = "Too many requests. Please try again later."

// Rule is one route's budget per client IP.
type Rule struct {
	Endpoint string
	Limit    int
	Window   time.Duration
}

// Middleware enforces rule per client IP. Limiter errors let the request
// through so a Redis outage does not take the API down.
func Middleware(limiter Limiter, rule Rule, log *zap.Logger, m *metrics.Metrics) gin.HandlerFunc {
	log = log.Named("ratelimit")
	return func(c *gin.Context) {
		if limiter == nil || rule.Limit <= 0 {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		key := rule.Endpoint + ":" + ClientIP(c)

		res, err := limiter.Check(ctx, key, rule.Limit, rule.Window)
		if err != nil {
			log.Warn("rate limit check failed, allowing request",
				zap.String("endpoint", rule.Endpoint),
				zap.Error(err),
			)
			m.RecordRateLimitAllowed(ctx, rule.Endpoint)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if !res.ResetAt.IsZero() {
			c.Header("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
		}

		if !res.Allowed {
			retry := int(math.Ceil(res.RetryAfter.Seconds()))
			if retry < 1 {
				retry = 1
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			m.RecordRateLimitDenied(ctx, rule.Endpoint, "budget_exhausted")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{
					"type":    "rate_limited",
					"message": rateLimitedMessage,
				},
			})
			return
		}

		m.RecordRateLimitAllowed(ctx, rule.Endpoint)
		c.Next()
	}
}

// ClientIP prefers the first X-Forwarded-For hop, then X-Real-IP.
func ClientIP(c *gin.Context) string {
	if forwarded := c.GetHeader("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if realIP := strings.TrimSpace(c.GetHeader("X-Real-IP")); realIP != "" {
		return realIP
	}
	if ip := c.ClientIP(); ip != "" {
		return ip
	}
	return "unknown"
}
