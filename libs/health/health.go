package health

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger is implemented by backends whose reachability gates readiness
// (pgxpool.Pool, redis.Client).
type Pinger interface {
	Ping(ctx context.Context) error
}

type Manager struct {
	ready   atomic.Bool
	pingers []Pinger
}

func NewManager(initialReady bool, pingers ...Pinger) *Manager {
	m := &Manager{pingers: pingers}
	m.ready.Store(initialReady)
	return m
}

func (m *Manager) SetReady(ready bool) {
	m.ready.Store(ready)
}

func (m *Manager) IsReady(ctx context.Context) bool {
	if !m.ready.Load() {
		return false
	}
	for _, p := range m.pingers {
		if err := p.Ping(ctx); err != nil {
			return false
		}
	}
	return true
}

func LivenessHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func ReadinessHandler(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if m.IsReady(ctx) {
			c.JSON(http.StatusOK, gin.H{"status": "ready"})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
	}
}
