package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/prperemyshlev/wearable-sync/internal/dto"
)

const healthCheckTimeout = 2 * time.Second

const (
	statusPass = "pass"
	statusFail = "fail"
)

type HealthChecker struct {
	checks map[string]func(ctx context.Context) error
}

func NewHealthChecker(infra Infrastructure) *HealthChecker {
	return &HealthChecker{
		checks: map[string]func(ctx context.Context) error{
			"postgres": infra.Postgres().Ping,
			"redis":    infra.Redis().Ping,
		},
	}
}

// check pings every dependency concurrently and reports each one by name
func (h *HealthChecker) check(ctx context.Context) (map[string]string, error) {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		errs   []error
		status = make(map[string]string, len(h.checks))
	)

	for name, ping := range h.checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := ping(ctx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				status[name] = statusFail
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			status[name] = statusPass
		}()
	}
	wg.Wait()

	return status, errors.Join(errs...)
}

func (h *HealthChecker) Handler(c *gin.Context) {
	checks, err := h.check(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, dto.HealthResponse{
			Status: statusFail,
			Checks: checks,
			Error:  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, dto.HealthResponse{
		Status: statusPass,
		Checks: checks,
	})
}
