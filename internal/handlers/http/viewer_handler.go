package http

import (
	"net/http"
	"strings"
	"time"

	"streamgate/internal/core/domain"
	"streamgate/internal/core/ports"
	"streamgate/internal/infrastructure/monitoring"
	"streamgate/pkg/errors"
	"streamgate/pkg/validation"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// PresenceObserver receives presence changes, for the operator event feed.
type PresenceObserver interface {
	ViewerJoined(channel domain.ChannelID, subject domain.SubjectID)
	ViewerLeft(channel domain.ChannelID, subject domain.SubjectID)
}

type ViewerHandler struct {
	viewers   ports.ViewerRepository
	presence  PresenceObserver
	collector *monitoring.PrometheusCollector
}

func NewViewerHandler(viewers ports.ViewerRepository, presence PresenceObserver, collector *monitoring.PrometheusCollector) *ViewerHandler {
	return &ViewerHandler{
		viewers:   viewers,
		presence:  presence,
		collector: collector,
	}
}

func (h *ViewerHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		api.POST("/viewers", h.Register)
		api.POST("/channels/:channel/join", h.Join)
		api.POST("/channels/:channel/leave", h.Leave)
		api.GET("/channels/:channel/stats", h.ChannelStats)
	}
}

type registerRequest struct {
	FullName    string `json:"fullName" binding:"required,max=100"`
	PhoneNumber string `json:"phoneNumber" binding:"required,max=20"`
}

func (h *ViewerHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Full name and phone number are required"})
		return
	}

	req.FullName = strings.TrimSpace(req.FullName)
	req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)

	if err := validation.ValidateFullName(req.FullName); err != nil {
		c.Error(errors.NewInvalidInputError(err.Error()))
		return
	}
	if err := validation.ValidatePhoneNumber(req.PhoneNumber); err != nil {
		c.Error(errors.NewInvalidInputError(err.Error()))
		return
	}

	viewer := &domain.Viewer{
		ID:           domain.ViewerID(uuid.New().String()),
		FullName:     req.FullName,
		PhoneNumber:  req.PhoneNumber,
		RegisteredAt: time.Now(),
	}

	if err := h.viewers.SaveViewer(c.Request.Context(), viewer); err != nil {
		c.Error(errors.NewInternalError("Registration failed"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"user": gin.H{
			"fullName":    viewer.FullName,
			"phoneNumber": viewer.PhoneNumber,
		},
	})
}

type presenceRequest struct {
	UID *uint32 `json:"uid"`
}

// Join records a viewer entering a channel.
func (h *ViewerHandler) Join(c *gin.Context) {
	channel, subject, ok := h.bindPresence(c)
	if !ok {
		return
	}

	if err := h.viewers.RecordJoin(c.Request.Context(), channel, subject); err != nil {
		c.Error(errors.NewInternalError(err.Error()))
		return
	}
	if h.presence != nil {
		h.presence.ViewerJoined(channel, subject)
	}
	h.refreshViewerGauge(c, channel)

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Leave records a viewer leaving a channel.
func (h *ViewerHandler) Leave(c *gin.Context) {
	channel, subject, ok := h.bindPresence(c)
	if !ok {
		return
	}

	if err := h.viewers.RecordLeave(c.Request.Context(), channel, subject); err != nil {
		c.Error(errors.NewInternalError(err.Error()))
		return
	}
	if h.presence != nil {
		h.presence.ViewerLeft(channel, subject)
	}
	h.refreshViewerGauge(c, channel)

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *ViewerHandler) bindPresence(c *gin.Context) (domain.ChannelID, domain.SubjectID, bool) {
	channel := c.Param("channel")
	if err := validation.ValidateChannel(channel); err != nil {
		c.Error(errors.NewInvalidInputError(err.Error()))
		return "", 0, false
	}

	var req presenceRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.UID == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "uid is required"})
		return "", 0, false
	}

	return domain.ChannelID(channel), domain.SubjectID(*req.UID), true
}

func (h *ViewerHandler) refreshViewerGauge(c *gin.Context, channel domain.ChannelID) {
	if h.collector == nil {
		return
	}
	stats, err := h.viewers.ChannelStats(c.Request.Context(), channel)
	if err != nil {
		return
	}
	h.collector.SetActiveViewers(string(channel), stats.ActiveViewers)
}

func (h *ViewerHandler) ChannelStats(c *gin.Context) {
	channel := c.Param("channel")
	if err := validation.ValidateChannel(channel); err != nil {
		c.Error(errors.NewInvalidInputError(err.Error()))
		return
	}

	stats, err := h.viewers.ChannelStats(c.Request.Context(), domain.ChannelID(channel))
	if err != nil {
		if err == domain.ErrChannelNotFound {
			c.Error(errors.NewNotFoundError("channel"))
			return
		}
		c.Error(errors.NewInternalError(err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"stats": stats})
}
