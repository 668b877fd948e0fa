package handler

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/prperemyshlev/wearable-sync/internal/service"
	"github.com/prperemyshlev/wearable-sync/internal/utils"
)

// applyRateLimit counts the request against key and writes a 429 when the
// limit is exceeded. Redis errors let the request through.
func applyRateLimit(c *gin.Context, limiter *service.RateLimiter, key string, logger *zap.Logger) bool {
	if limiter == nil {
		return true
	}

	ctx := c.Request.Context()
	retryAfter, err := limiter.Allow(ctx, key)
	if err != nil {
		if errors.Is(err, service.ErrRateLimited) {
			c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.Limit()))
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))

			c.JSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error":   "too many sync requests",
				"details": err.Error(),
			})
			c.Abort()
			return false
		}

		logger.Warn("Rate limiter unavailable, allowing request",
			zap.String("email", utils.MaskEmail(key)),
			zap.Error(err),
		)
		return true
	}

	if remaining, err := limiter.Remaining(ctx, key); err == nil {
		c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.Limit()))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
	}

	return true
}
