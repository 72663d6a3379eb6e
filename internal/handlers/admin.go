package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"log/slog"

	"github.com/SupragyaBasnet/StepStunner-sub001/internal/accountlock"
	"github.com/SupragyaBasnet/StepStunner-sub001/internal/report"
	"github.com/SupragyaBasnet/StepStunner-sub001/internal/storage"
	"github.com/SupragyaBasnet/StepStunner-sub001/libs/auth"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AdminHandler serves the back-office security views and the account lock
// controls. Everything here sits behind the admin gate in the router.
type AdminHandler struct {
	Reports      *report.Aggregator
	Locks        *accountlock.Service
	Logger       *slog.Logger
	LockDuration time.Duration
	Clock        Clock
}

func NewAdminHandler(reports *report.Aggregator, locks *accountlock.Service, logger *slog.Logger, lockDuration time.Duration) *AdminHandler {
	return &AdminHandler{
		Reports:      reports,
		Locks:        locks,
		Logger:       logger,
		LockDuration: lockDuration,
		Clock:        systemClock{},
	}
}

func (h *AdminHandler) SecurityEvents(c *gin.Context) {
	days := intQuery(c, "days", 7)
	limit := intQuery(c, "limit", 0)

	events, err := h.Reports.SecurityEvents(c.Request.Context(), days, limit)
	if err != nil {
		h.Logger.Error("security events query failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "days": days})
}

func (h *AdminHandler) UserActivity(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}
	days := intQuery(c, "days", 30)

	summary, err := h.Reports.UserActivitySummary(c.Request.Context(), userID, days)
	if err != nil {
		h.Logger.Error("user activity query failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "days": days, "activity": summary})
}

func (h *AdminHandler) FailedLogins(c *gin.Context) {
	hours := intQuery(c, "hours", 24)

	records, err := h.Reports.FailedLogins(c.Request.Context(), hours)
	if err != nil {
		h.Logger.Error("failed login query failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"failed_logins": records, "hours": hours})
}

type lockRequest struct {
	Action string `json:"action"`
}

func (h *AdminHandler) LockUser(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}

	var req lockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Code: "INVALID_REQUEST", Message: "invalid payload"})
		return
	}

	actor, _ := uuid.Parse(c.GetString(auth.ContextUserIDKey))

	var err error
	switch req.Action {
	case "lock":
		err = h.Locks.Lock(c.Request.Context(), actor, userID, h.Clock.Now().Add(h.LockDuration))
	case "unlock":
		err = h.Locks.Unlock(c.Request.Context(), actor, userID)
	default:
		c.JSON(http.StatusBadRequest, errorResponse{Code: "INVALID_REQUEST", Message: "action must be lock or unlock"})
		return
	}

	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, errorResponse{Code: "NOT_FOUND", Message: "user not found"})
			return
		}
		h.Logger.Error("lock transition failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: "internal error"})
		return
	}

	status, err := h.Locks.Status(c.Request.Context(), userID)
	if err != nil {
		h.Logger.Error("lock status read failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: "internal error"})
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *AdminHandler) ForcePasswordReset(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}

	actor, _ := uuid.Parse(c.GetString(auth.ContextUserIDKey))

	if err := h.Locks.ForcePasswordReset(c.Request.Context(), actor, userID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, errorResponse{Code: "NOT_FOUND", Message: "user not found"})
			return
		}
		h.Logger.Error("force reset failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "message": "password reset required on next login"})
}

func (h *AdminHandler) Stats(c *gin.Context) {
	stats, err := h.Reports.Stats(c.Request.Context())
	if err != nil {
		h.Logger.Error("stats query failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: "internal error"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *AdminHandler) AuditTrail(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}
	page := intQuery(c, "page", 1)
	limit := intQuery(c, "limit", 50)

	if _, err := h.Locks.Status(c.Request.Context(), userID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, errorResponse{Code: "NOT_FOUND", Message: "user not found"})
			return
		}
		h.Logger.Error("audit trail user lookup failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: "internal error"})
		return
	}

	trail, err := h.Reports.AuditTrail(c.Request.Context(), userID, page, limit)
	if err != nil {
		h.Logger.Error("audit trail query failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: "internal error"})
		return
	}
	c.JSON(http.StatusOK, trail)
}

func userIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Code: "INVALID_REQUEST", Message: "invalid user id"})
		return uuid.Nil, false
	}
	return id, true
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
