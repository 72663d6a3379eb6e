package csrf

import (
	"net/http"

	"github.com/SupragyaBasnet/StepStunner-sub001/internal/session"
	"github.com/SupragyaBasnet/StepStunner-sub001/libs/metrics"
	"github.com/gin-gonic/gin"
)

// Middleware validates the anti-forgery token on state-changing requests.
// Read-only methods pass through untouched.
func Middleware(svc *Service, headerName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}

		sid := session.FromContext(c)
		supplied := c.GetHeader(headerName)

		if sid == "" {
			reject(c, "no_session")
			return
		}
		if supplied == "" {
			reject(c, "missing_token")
			return
		}
		if !svc.Validate(c.Request.Context(), sid, supplied) {
			reject(c, "mismatch")
			return
		}
		c.Next()
	}
}

func reject(c *gin.Context, reason string) {
	metrics.CSRFRejectedTotal.WithLabelValues(reason).Inc()
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
		"message": "invalid or missing anti-forgery token",
	})
}
