package console

import (
	"errors"
	"net/http"
	"time"

	"handyhub-admin-console/src/internal/middleware"
	"handyhub-admin-console/src/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type Handler interface {
	Heartbeat(c *gin.Context)
	LogoutInactivity(c *gin.Context)
	Logout(c *gin.Context)
}

type handler struct {
	service Service
	now     func() time.Time
}

func NewHandler(service Service) Handler {
	return &handler{service: service, now: time.Now}
}

func callerFrom(c *gin.Context) Caller {
	return Caller{
		UserID:    c.GetString(middleware.KeyUserID),
		SessionID: c.GetString(middleware.KeySessionID),
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}

func (h *handler) Heartbeat(c *gin.Context) {
	var req models.HeartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	conflict, err := h.service.Heartbeat(c.Request.Context(), callerFrom(c), req.Timestamp)
	if err != nil {
		if errors.Is(err, models.ErrSessionExpired) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Session expired - please login again"})
			return
		}
		logrus.WithError(err).Error("Heartbeat failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Heartbeat failed"})
		return
	}

	if conflict != nil {
		c.JSON(http.StatusConflict, conflict)
		return
	}

	c.JSON(http.StatusOK, models.HeartbeatResponse{
		Success:    true,
		ServerTime: h.now().UnixMilli(),
	})
}

func (h *handler) LogoutInactivity(c *gin.Context) {
	var req models.InactivityLogoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	err := h.service.ReportInactivity(c.Request.Context(), callerFrom(c), req)
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, gin.H{"success": true})
	case errors.Is(err, models.ErrInvalidReason):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unsupported logout reason"})
	case errors.Is(err, models.ErrSessionNotFound):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Session expired - please login again"})
	default:
		logrus.WithError(err).Error("Failed to record inactivity logout")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record logout"})
	}
}

func (h *handler) Logout(c *gin.Context) {
	redirect, err := h.service.Logout(c.Request.Context(), callerFrom(c))
	if err != nil {
		logrus.WithError(err).Error("Logout failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Logout failed"})
		return
	}

	c.JSON(http.StatusOK, models.LogoutResponse{
		Success:  true,
		Redirect: redirect,
	})
}
