package http

import (
	"net/http"
	"strconv"
	"time"

	"streamgate/internal/core/domain"
	"streamgate/internal/core/ports"
	"streamgate/internal/infrastructure/monitoring"
	"streamgate/pkg/errors"
	"streamgate/pkg/tracing"

	"github.com/gin-gonic/gin"
)

// IssuanceObserver receives successful issuances, for the operator event feed.
type IssuanceObserver interface {
	TokenIssued(cred *domain.Credential)
}

type TokenHandler struct {
	issuer    ports.TokenSource
	collector *monitoring.PrometheusCollector
	observer  IssuanceObserver
}

func NewTokenHandler(issuer ports.TokenSource, collector *monitoring.PrometheusCollector, observer IssuanceObserver) *TokenHandler {
	return &TokenHandler{
		issuer:    issuer,
		collector: collector,
		observer:  observer,
	}
}

func (h *TokenHandler) SetupRoutes(router *gin.Engine) {
	router.POST("/token", h.IssueToken)
	router.GET("/token", h.IssueTokenQuery)
}

type tokenRequest struct {
	Channel        string  `json:"channel"`
	UID            *uint32 `json:"uid"`
	Role           string  `json:"role"`
	ExpirationTime int64   `json:"expirationTime"`
}

// IssueToken mints a credential for a (channel, uid, role) triple.
func (h *TokenHandler) IssueToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":    "Missing required parameters",
			"required": []string{"channel", "uid", "role"},
		})
		return
	}
	h.issue(c, req)
}

// IssueTokenQuery is a pure alias of the POST path that accepts the triple as
// query parameters. Same validation, same issuance, same response shapes.
func (h *TokenHandler) IssueTokenQuery(c *gin.Context) {
	channel := c.Query("channel")
	uidStr := c.Query("uid")
	role := c.Query("role")

	if channel == "" || uidStr == "" || role == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":    "Missing required parameters",
			"required": []string{"channel", "uid", "role"},
		})
		return
	}

	uid64, err := strconv.ParseUint(uidStr, 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":    "Missing required parameters",
			"required": []string{"channel", "uid", "role"},
		})
		return
	}

	uid := uint32(uid64)
	h.issue(c, tokenRequest{Channel: channel, UID: &uid, Role: role})
}

func (h *TokenHandler) issue(c *gin.Context, req tokenRequest) {
	if req.Channel == "" || req.UID == nil || req.Role == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":    "Missing required parameters",
			"required": []string{"channel", "uid", "role"},
		})
		return
	}

	ctx, span := tracing.TraceIssuance(c.Request.Context(), req.Channel, *req.UID, req.Role)
	defer span.End()

	start := time.Now()
	cred, err := h.issuer.Issue(ctx, domain.TokenRequest{
		Channel:         domain.ChannelID(req.Channel),
		Subject:         domain.SubjectID(*req.UID),
		Role:            domain.Role(req.Role),
		LifetimeSeconds: req.ExpirationTime,
	})
	if err != nil {
		tracing.RecordError(ctx, err)
		h.writeIssueError(c, err)
		return
	}

	if h.collector != nil {
		h.collector.ObserveIssuance(string(cred.Role), time.Since(start))
	}
	if h.observer != nil {
		h.observer.TokenIssued(cred)
	}

	c.JSON(http.StatusOK, gin.H{
		"token":     cred.SignedValue,
		"uid":       cred.Subject,
		"channel":   cred.Channel,
		"appId":     cred.AppID,
		"expiresAt": cred.ExpiresAt,
		"role":      cred.Role,
		"message":   "Token generated successfully",
	})
}

// writeIssueError maps typed issuance failures to the boundary responses.
// Every failure path from the issuer is an AppError, so the mapping is
// deterministic.
func (h *TokenHandler) writeIssueError(c *gin.Context, err error) {
	appErr := errors.GetAppError(err)
	if appErr == nil {
		appErr = errors.NewIssuanceFailedError(err)
	}

	if h.collector != nil {
		h.collector.IssuanceFailed(string(appErr.Code))
	}

	switch appErr.Code {
	case errors.ErrCodeMissingParameter:
		c.JSON(http.StatusBadRequest, gin.H{
			"error":    "Missing required parameters",
			"required": []string{"channel", "uid", "role"},
		})
	case errors.ErrCodeInvalidRole:
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid role",
			"message": appErr.Message,
		})
	case errors.ErrCodeServerMisconfigured:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Server configuration error",
			"message": appErr.Message,
			"token":   nil,
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to generate token",
			"message": appErr.Message,
			"token":   nil,
		})
	}
}
