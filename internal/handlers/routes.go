package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"log/slog"

	"github.com/SupragyaBasnet/StepStunner-sub001/internal/audit"
	"github.com/SupragyaBasnet/StepStunner-sub001/internal/bruteforce"
	"github.com/SupragyaBasnet/StepStunner-sub001/internal/csrf"
	"github.com/SupragyaBasnet/StepStunner-sub001/internal/ratelimit"
	"github.com/SupragyaBasnet/StepStunner-sub001/internal/session"
	"github.com/SupragyaBasnet/StepStunner-sub001/internal/storage"
	"github.com/SupragyaBasnet/StepStunner-sub001/libs/apikey"
	"github.com/SupragyaBasnet/StepStunner-sub001/libs/auth"
	"github.com/gin-gonic/gin"
)

// Route classes for the rate limiter. Auth routes carry a stricter cap than
// the general API.
const (
	ClassAuth = "auth"
	ClassAPI  = "api"
)

type APIKeyStore interface {
	GetAPIKeyByPrefix(ctx context.Context, prefix string) (*storage.APIKey, error)
}

// Pipeline bundles the cross-cutting security components the router threads
// through every request: rate limiting, brute-force gating, anti-forgery and
// the terminal audit recorder.
type Pipeline struct {
	Logger        *slog.Logger
	Recorder      *audit.Recorder
	Limiter       *ratelimit.Limiter
	Guard         *bruteforce.Guard
	CSRF          *csrf.Service
	CSRFHeader    string
	SessionCookie string
	SessionTTL    time.Duration
	JWTSecret     []byte
	APIKeys       APIKeyStore
}

// Register wires the middleware chain in pipeline order: session, audit
// observer, then per-group rate limit -> brute-force -> anti-forgery ->
// business handler. The recorder sits outermost so rejected requests are
// still logged with a failure outcome.
func Register(r *gin.Engine, p Pipeline, authH *AuthHandler, shop *ShopHandler, admin *AdminHandler) {
	r.Use(session.Middleware(p.SessionCookie, p.SessionTTL))
	r.Use(p.Recorder.Middleware())
	r.Use(apiKeyCaller(p))

	api := r.Group("/api/v1")

	api.GET("/csrf", func(c *gin.Context) {
		token, err := p.CSRF.Issue(c.Request.Context(), session.FromContext(c))
		if err != nil {
			p.Logger.Error("csrf issue failed", "error", err)
			c.JSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: "internal error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"csrfToken": token})
	})

	authGroup := api.Group("/auth",
		ratelimit.Middleware(p.Limiter, ClassAuth),
		csrf.Middleware(p.CSRF, p.CSRFHeader),
	)
	authGroup.POST("/login", bruteforce.Middleware(p.Guard), audit.DeclareAction(audit.ActionLogin), authH.Login)
	authGroup.POST("/register", bruteforce.Middleware(p.Guard), audit.DeclareAction(audit.ActionRegister), authH.Register)
	authGroup.POST("/logout", auth.Optional(p.JWTSecret), audit.DeclareAction(audit.ActionLogout), authH.Logout)
	authGroup.POST("/password", auth.Middleware(p.JWTSecret), audit.DeclareAction(audit.ActionPasswordChange), authH.ChangePassword)

	shopGroup := api.Group("",
		ratelimit.Middleware(p.Limiter, ClassAPI),
		csrf.Middleware(p.CSRF, p.CSRFHeader),
		auth.Optional(p.JWTSecret),
	)
	shopGroup.GET("/products", shop.ListProducts)
	shopGroup.GET("/products/:id", shop.GetProduct)
	shopGroup.POST("/products/:id/quote", shop.Quote)
	shopGroup.GET("/cart", shop.GetCart)
	shopGroup.POST("/cart", shop.AddToCart)
	shopGroup.POST("/checkout", auth.Middleware(p.JWTSecret), audit.DeclareAction(audit.ActionOrderCreate), shop.Checkout)
	shopGroup.POST("/payments/:orderId/confirm", auth.Middleware(p.JWTSecret), audit.DeclareAction(audit.ActionPaymentSuccess), shop.ConfirmPayment)

	// Admin calls authenticate with a bearer token or an API key, neither of
	// which a cross-site request can forge, so the CSRF check stays off here.
	adminGroup := api.Group("/admin",
		ratelimit.Middleware(p.Limiter, ClassAPI),
		auth.Optional(p.JWTSecret),
		requireAdmin(),
		audit.DeclareAction(audit.ActionAdminAction),
	)
	adminGroup.GET("/stats", admin.Stats)
	adminGroup.GET("/security/events", admin.SecurityEvents)
	adminGroup.GET("/security/failed-logins", admin.FailedLogins)
	adminGroup.GET("/users/:userId/activity", admin.UserActivity)
	adminGroup.GET("/users/:userId/audit-trail", admin.AuditTrail)
	adminGroup.POST("/users/:userId/lock", admin.LockUser)
	adminGroup.POST("/users/:userId/force-reset", admin.ForcePasswordReset)
}

// apiKeyCaller authenticates X-API-Key requests and switches the rate-limit
// bucket from the client IP to the key prefix, so programmatic clients get
// their own windows. An invalid key rejects outright.
func apiKeyCaller(p Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("X-API-Key")
		if key == "" || p.APIKeys == nil {
			c.Next()
			return
		}

		_, prefix, _, err := apikey.Parse(key)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Code: "UNAUTHORIZED", Message: "invalid api key"})
			return
		}

		record, err := p.APIKeys.GetAPIKeyByPrefix(c.Request.Context(), prefix)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Code: "UNAUTHORIZED", Message: "invalid api key"})
				return
			}
			p.Logger.Error("api key lookup failed", "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: "internal error"})
			return
		}

		if err := apikey.Verify(key, apikey.Record{
			ID:        record.ID.String(),
			Label:     record.Label,
			KeyHash:   record.KeyHash,
			RevokedAt: record.RevokedAt,
		}); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Code: "UNAUTHORIZED", Message: "invalid api key"})
			return
		}

		c.Set(ratelimit.ContextCallerKey, "key:"+prefix)
		c.Set(auth.ContextRoleKey, auth.RoleAdmin)
		c.Next()
	}
}

func requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(auth.ContextRoleKey) != auth.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, errorResponse{Code: "FORBIDDEN", Message: "admin access required"})
			return
		}
		c.Next()
	}
}
