package ratelimit

import (
	"net/http"

	"github.com/SupragyaBasnet/StepStunner-sub001/libs/metrics"
	"github.com/gin-gonic/gin"
)

// ContextCallerKey lets an upstream middleware (API key auth) override the
// rate-limit bucket identity; otherwise the client IP is used.
const ContextCallerKey = "rate_caller_key"

// Middleware gates a route group with the given class's policy. Rejected
// requests still flow through the audit recorder with a failure outcome.
func Middleware(limiter *Limiter, class string) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := c.GetString(ContextCallerKey)
		if caller == "" {
			caller = c.ClientIP()
		}

		decision := limiter.Admit(c.Request.Context(), caller, class)
		if !decision.Allowed {
			metrics.RateLimitedTotal.WithLabelValues(class).Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"message":    "too many requests",
				"retryAfter": decision.RetryAfterSeconds(),
			})
			return
		}
		c.Next()
	}
}
