package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/prperemyshlev/wearable-sync/internal/domain"
	"github.com/prperemyshlev/wearable-sync/internal/dto"
	"github.com/prperemyshlev/wearable-sync/internal/service"
	"github.com/prperemyshlev/wearable-sync/internal/utils"
)

// SyncHandlerOptions configures a sync handler
type SyncHandlerOptions struct {
	Provider         string
	SessionCookie    string
	DefaultRangeDays int
}

// SyncHandler handles wearable sync requests
type SyncHandler struct {
	syncService service.SyncService
	limiter     *service.RateLimiter
	opts        SyncHandlerOptions
	logger      *zap.Logger
	now         func() time.Time
}

// NewSyncHandler creates a new sync handler. limiter may be nil.
func NewSyncHandler(syncService service.SyncService, limiter *service.RateLimiter, opts SyncHandlerOptions, logger *zap.Logger) *SyncHandler {
	return &SyncHandler{
		syncService: syncService,
		limiter:     limiter,
		opts:        opts,
		logger:      logger,
		now:         time.Now,
	}
}

// Sync handles a sync request
// @Summary Sync wearable data
// @Description Fetch the provider's streams for a date range and store them
// @Tags sync
// @Accept json
// @Produce json
// @Param request body dto.SyncRequest true "Sync request"
// @Success 200 {object} dto.SyncResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 429 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /sync [post]
func (h *SyncHandler) Sync(c *gin.Context) {
	var req dto.SyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var invalid validator.ValidationErrors
		if errors.As(err, &invalid) {
			writeError(c, http.StatusBadRequest, "email is required", nil)
			return
		}
		writeError(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	email := utils.SanitizeEmail(req.Email)
	if email == "" {
		writeError(c, http.StatusBadRequest, "email is required", nil)
		return
	}
	if !utils.ValidateEmail(email) {
		writeError(c, http.StatusBadRequest, "email is invalid", nil)
		return
	}

	if callerEmail := c.GetString(ContextKeyEmail); callerEmail != "" && utils.SanitizeEmail(callerEmail) != email {
		writeError(c, http.StatusForbidden, "cannot sync another user's data", nil)
		return
	}

	rng, err := domain.ParseDateRange(req.StartDate, req.EndDate, h.now(), h.opts.DefaultRangeDays)
	if err != nil {
		h.respondError(c, err)
		return
	}

	if !applyRateLimit(c, h.limiter, email, h.logger) {
		return
	}

	session := domain.SessionTokens{}
	if token, err := c.Cookie(h.opts.SessionCookie); err == nil && token != "" {
		session[h.opts.Provider] = token
	}

	outcome, err := h.syncService.Sync(c.Request.Context(), &service.SyncInput{
		Email:   email,
		Code:    utils.SanitizeCode(req.Code),
		Range:   rng,
		Session: session,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.SyncResponse{
		Success:  true,
		SyncID:   outcome.SyncID,
		Summary:  outcome.Summary,
		Analysis: outcome.Analysis,
	})
}

func (h *SyncHandler) respondError(c *gin.Context, err error) {
	var validationErr *domain.ValidationError
	var notConnected *domain.NotConnectedError

	switch {
	case errors.As(err, &validationErr):
		writeError(c, http.StatusBadRequest, validationErr.Error(), gin.H{"field": validationErr.Field})
	case errors.As(err, &notConnected):
		writeError(c, http.StatusUnauthorized, notConnected.Provider+" is not connected", gin.H{"tried": notConnected.Tried})
	case errors.Is(err, domain.ErrStorageFailure):
		writeError(c, http.StatusInternalServerError, "failed to store sync", nil)
	default:
		h.logger.Error("Unexpected sync error", zap.Error(err))
		writeError(c, http.StatusInternalServerError, "internal server error", nil)
	}
}

func writeError(c *gin.Context, status int, message string, details interface{}) {
	c.JSON(status, dto.ErrorResponse{
		Success: false,
		Error:   message,
		Details: details,
	})
}
