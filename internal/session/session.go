package session

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ContextSessionIDKey is where the session ID lives in the gin context. The
// anti-forgery service keys tokens by it and the audit recorder copies it
// into activity records.
const ContextSessionIDKey = "session_id"

// Middleware lazily assigns an opaque session cookie. The session carries no
// server-side state of its own; it exists to bind CSRF tokens and carts to a
// browser.
func Middleware(cookieName string, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		sid, err := c.Cookie(cookieName)
		if err != nil || sid == "" {
			sid = uuid.NewString()
			c.SetCookie(cookieName, sid, int(ttl.Seconds()), "/", "", false, true)
		}
		c.Set(ContextSessionIDKey, sid)
		c.Next()
	}
}

// FromContext returns the session ID, empty when the middleware did not run.
func FromContext(c *gin.Context) string {
	return c.GetString(ContextSessionIDKey)
}
