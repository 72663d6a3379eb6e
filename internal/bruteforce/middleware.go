package bruteforce

import (
	"net/http"

	"github.com/SupragyaBasnet/StepStunner-sub001/libs/metrics"
	"github.com/gin-gonic/gin"
)

// Middleware gates authentication-adjacent routes. It counts the attempt
// before the handler runs, so a blocked caller never reaches the login code.
func Middleware(guard *Guard) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := guard.Check(c.ClientIP())
		if status.Blocked {
			metrics.BruteForceBlockedTotal.Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"message": "too many attempts, try again later",
			})
			return
		}
		c.Next()
	}
}
