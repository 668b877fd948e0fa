package oura

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/prperemyshlev/wearable-sync/internal/domain"
)

// ErrRefreshRejected means the token endpoint refused the refresh token
var ErrRefreshRejected = errors.New("refresh token rejected by provider")

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

type tokenErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// RefreshToken exchanges a refresh token for a new grant. Transport errors,
// 429 and 5xx responses are retried with exponential backoff; any other
// failure is returned at once.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*domain.TokenGrant, error) {
	if c.opts.ClientID == "" || c.opts.ClientSecret == "" {
		return nil, fmt.Errorf("oauth client credentials not configured: %w", ErrRefreshRejected)
	}

	var grant *domain.TokenGrant
	attempts := 0

	operation := func() error {
		attempts++

		var body tokenResponse
		var failure tokenErrorResponse
		resp, err := c.auth.R().
			SetContext(ctx).
			SetFormData(map[string]string{
				"grant_type":    "refresh_token",
				"refresh_token": refreshToken,
				"client_id":     c.opts.ClientID,
				"client_secret": c.opts.ClientSecret,
			}).
			SetResult(&body).
			SetError(&failure).
			Post(c.opts.TokenURL)
		if err != nil {
			return fmt.Errorf("token request failed: %w", err)
		}

		status := resp.StatusCode()
		if status == http.StatusTooManyRequests || status >= http.StatusInternalServerError {
			return fmt.Errorf("token endpoint returned status %d", status)
		}
		if !resp.IsSuccess() {
			return backoff.Permanent(fmt.Errorf("status %d %s: %w", status, failure.Error, ErrRefreshRejected))
		}
		if body.AccessToken == "" {
			return backoff.Permanent(errors.New("token response carried no access_token"))
		}

		grant = &domain.TokenGrant{
			AccessToken:  body.AccessToken,
			RefreshToken: body.RefreshToken,
		}
		if body.ExpiresIn > 0 {
			expiresAt := c.now().Add(time.Duration(body.ExpiresIn) * time.Second).UTC()
			grant.ExpiresAt = &expiresAt
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = c.opts.RefreshMaxElapsed

	notify := func(err error, wait time.Duration) {
		c.logger.Warn("Token refresh attempt failed, retrying",
			zap.Int("attempt", attempts),
			zap.Duration("retry_in", wait),
			zap.Error(err),
		)
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(b, ctx), notify); err != nil {
		return nil, fmt.Errorf("refresh exchange failed after %d attempts: %w", attempts, err)
	}

	return grant, nil
}
