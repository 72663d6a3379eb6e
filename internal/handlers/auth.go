package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"github.com/SupragyaBasnet/StepStunner-sub001/internal/audit"
	"github.com/SupragyaBasnet/StepStunner-sub001/internal/csrf"
	"github.com/SupragyaBasnet/StepStunner-sub001/internal/security"
	"github.com/SupragyaBasnet/StepStunner-sub001/internal/session"
	"github.com/SupragyaBasnet/StepStunner-sub001/internal/storage"
	"github.com/SupragyaBasnet/StepStunner-sub001/libs/auth"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (*storage.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*storage.User, error)
	CreateUser(ctx context.Context, email, passwordHash, role string) (*storage.User, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	ResetFailedAttempts(ctx context.Context, id uuid.UUID) error
	IncrementFailedAttempts(ctx context.Context, id uuid.UUID) error
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type AuthHandler struct {
	Store     UserStore
	Logger    *slog.Logger
	JWTSecret []byte
	Issuer    string
	AccessTTL time.Duration
	Argon2    security.Argon2Params
	CSRF      *csrf.Service
	Clock     Clock
}

func NewAuthHandler(store UserStore, logger *slog.Logger, jwtSecret string, issuer string, accessTTL time.Duration, params security.Argon2Params, csrfSvc *csrf.Service) *AuthHandler {
	return &AuthHandler{
		Store:     store,
		Logger:    logger,
		JWTSecret: []byte(jwtSecret),
		Issuer:    issuer,
		AccessTTL: accessTTL,
		Argon2:    params,
		CSRF:      csrfSvc,
		Clock:     systemClock{},
	}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	Role        string `json:"role"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Code: "INVALID_REQUEST", Message: "invalid payload"})
		return
	}

	user, err := h.Store.GetUserByEmail(c.Request.Context(), strings.ToLower(req.Email))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusUnauthorized, errorResponse{Code: "UNAUTHORIZED", Message: "invalid credentials"})
			return
		}
		h.Logger.Error("login lookup failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: "internal error"})
		return
	}

	// Attribute the attempt even though the caller is not authenticated yet.
	audit.SetActor(c, user.ID)

	now := h.Clock.Now()
	if user.EffectivelyLocked(now) || !user.IsActive {
		c.JSON(http.StatusForbidden, errorResponse{Code: "ACCOUNT_LOCKED", Message: "account is locked"})
		return
	}
	if user.PasswordExpired(now) {
		c.JSON(http.StatusForbidden, errorResponse{Code: "PASSWORD_EXPIRED", Message: "password rotation required"})
		return
	}

	ok, err := security.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil || !ok {
		if err := h.Store.IncrementFailedAttempts(c.Request.Context(), user.ID); err != nil {
			h.Logger.Error("failed attempt counter update failed", "error", err)
		}
		c.JSON(http.StatusUnauthorized, errorResponse{Code: "UNAUTHORIZED", Message: "invalid credentials"})
		return
	}

	if err := h.Store.ResetFailedAttempts(c.Request.Context(), user.ID); err != nil {
		h.Logger.Error("failed attempt counter reset failed", "error", err)
	}

	token, err := auth.SignJWT(user.ID.String(), user.Role, h.JWTSecret, h.Issuer, h.AccessTTL, now)
	if err != nil {
		h.Logger.Error("token signing failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: "internal error"})
		return
	}

	c.JSON(http.StatusOK, authResponse{
		AccessToken: token,
		ExpiresIn:   int64(h.AccessTTL.Seconds()),
		Role:        user.Role,
	})
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" || len(req.Password) < 8 {
		c.JSON(http.StatusBadRequest, errorResponse{Code: "INVALID_REQUEST", Message: "email and a password of at least 8 characters are required"})
		return
	}

	hash, err := security.HashPassword(req.Password, h.Argon2)
	if err != nil {
		h.Logger.Error("password hashing failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: "internal error"})
		return
	}

	user, err := h.Store.CreateUser(c.Request.Context(), strings.ToLower(req.Email), hash, auth.RoleCustomer)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			c.JSON(http.StatusConflict, errorResponse{Code: "DUPLICATE", Message: "email already registered"})
			return
		}
		h.Logger.Error("user creation failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: "internal error"})
		return
	}

	audit.SetActor(c, user.ID)
	c.JSON(http.StatusCreated, gin.H{"id": user.ID, "email": user.Email})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	if sid := session.FromContext(c); sid != "" && h.CSRF != nil {
		if err := h.CSRF.Drop(c.Request.Context(), sid); err != nil {
			h.Logger.Error("session token drop failed", "error", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

type passwordChangeRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req passwordChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.NewPassword) < 8 {
		c.JSON(http.StatusBadRequest, errorResponse{Code: "INVALID_REQUEST", Message: "a new password of at least 8 characters is required"})
		return
	}

	userID, err := uuid.Parse(c.GetString(auth.ContextUserIDKey))
	if err != nil {
		c.JSON(http.StatusUnauthorized, errorResponse{Code: "UNAUTHORIZED", Message: "invalid token"})
		return
	}

	user, err := h.Store.GetUserByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusUnauthorized, errorResponse{Code: "UNAUTHORIZED", Message: "invalid token"})
			return
		}
		h.Logger.Error("password change lookup failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: "internal error"})
		return
	}

	ok, err := security.VerifyPassword(req.CurrentPassword, user.PasswordHash)
	if err != nil || !ok {
		c.JSON(http.StatusUnauthorized, errorResponse{Code: "UNAUTHORIZED", Message: "current password is incorrect"})
		return
	}

	hash, err := security.HashPassword(req.NewPassword, h.Argon2)
	if err != nil {
		h.Logger.Error("password hashing failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: "internal error"})
		return
	}

	// UpdatePassword also clears any forced expiry, completing the rotation
	// an admin force-reset demanded.
	if err := h.Store.UpdatePassword(c.Request.Context(), userID, hash); err != nil {
		h.Logger.Error("password update failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "password changed"})
}
