package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/prperemyshlev/wearable-sync/internal/domain"
	"github.com/prperemyshlev/wearable-sync/internal/repository"
	"github.com/prperemyshlev/wearable-sync/internal/utils"
	"github.com/prperemyshlev/wearable-sync/pkg/observability"
)

// Resolution paths, as reported in NotConnectedError.Tried
const (
	PathStored  = "stored"
	PathRefresh = "refresh"
	PathSession = "session"
)

// CredentialResolverOptions configures a credential resolver
type CredentialResolverOptions struct {
	Provider      string
	RefreshMargin time.Duration
	// RefreshTimeout bounds a single refresh, independent of the caller's context
	RefreshTimeout time.Duration
}

// credentialResolver implements CredentialResolver
type credentialResolver struct {
	opts        CredentialResolverOptions
	identity    IdentityResolver
	credentials repository.CredentialRepository
	codec       utils.SecretCodec
	refresher   TokenRefresher
	lock        *RefreshLock
	flight      singleflight.Group
	metrics     *observability.SyncMetrics
	logger      *zap.Logger
	now         func() time.Time
}

// NewCredentialResolver creates a credential resolver
func NewCredentialResolver(
	opts CredentialResolverOptions,
	identity IdentityResolver,
	credentials repository.CredentialRepository,
	codec utils.SecretCodec,
	refresher TokenRefresher,
	lock *RefreshLock,
	metrics *observability.SyncMetrics,
	logger *zap.Logger,
) CredentialResolver {
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = 30 * time.Second
	}
	return &credentialResolver{
		opts:        opts,
		identity:    identity,
		credentials: credentials,
		codec:       codec,
		refresher:   refresher,
		lock:        lock,
		metrics:     metrics,
		logger:      logger,
		now:         time.Now,
	}
}

// ResolveToken tries the stored token, then a refresh, then the session token
func (r *credentialResolver) ResolveToken(ctx context.Context, email, code string, session domain.SessionTokens) (string, error) {
	if code == "" {
		code = r.identity.ResolveAccountCode(ctx, email)
	}

	owner := code
	if owner == "" {
		owner = utils.MaskEmail(email)
	}

	var (
		tried []string
		cause error
	)

	credential, err := r.findCredential(ctx, email, code)
	switch {
	case err == nil:
		tried = append(tried, PathStored)
		token, pathErr := r.fromCredential(ctx, credential, &tried)
		if pathErr == nil {
			return token, nil
		}
		cause = pathErr
	case errors.Is(err, repository.ErrNotFound):
	default:
		r.logger.Error("Credential lookup failed",
			zap.String("provider", r.opts.Provider),
			zap.String("owner", owner),
			zap.Error(err),
		)
		cause = err
	}

	tried = append(tried, PathSession)
	if token, ok := session.Token(r.opts.Provider); ok {
		r.logger.Info("Using session token",
			zap.String("provider", r.opts.Provider),
			zap.String("owner", owner),
		)
		return token, nil
	}

	return "", &domain.NotConnectedError{
		Provider: r.opts.Provider,
		Owner:    owner,
		Tried:    tried,
		Cause:    cause,
	}
}

// findCredential looks up by code first and falls back to email
func (r *credentialResolver) findCredential(ctx context.Context, email, code string) (*domain.Credential, error) {
	if code != "" {
		credential, err := r.credentials.FindActiveByCode(ctx, r.opts.Provider, code)
		if err == nil {
			return credential, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
	}
	return r.credentials.FindActiveByEmail(ctx, r.opts.Provider, email)
}

func (r *credentialResolver) fromCredential(ctx context.Context, credential *domain.Credential, tried *[]string) (string, error) {
	if !credential.IsExpired(r.now(), r.opts.RefreshMargin) {
		token, err := r.codec.Decode(credential.EncodedToken)
		if err != nil {
			r.logger.Warn("Stored token could not be decoded",
				zap.Int64("credential_id", credential.ID),
				zap.String("owner", credentialOwner(credential)),
				zap.Error(err),
			)
			return "", fmt.Errorf("decode stored token: %w", err)
		}
		return token, nil
	}

	if !credential.CanRefresh() {
		return "", fmt.Errorf("credential %d expired without refresh token", credential.ID)
	}

	*tried = append(*tried, PathRefresh)
	token, err := r.refresh(ctx, credential)
	if err != nil {
		r.logger.Warn("Token refresh failed",
			zap.String("provider", r.opts.Provider),
			zap.Int64("credential_id", credential.ID),
			zap.String("owner", credentialOwner(credential)),
			zap.Error(err),
		)
		return "", err
	}
	return token, nil
}

// refresh collapses concurrent refreshes of one credential in this process
func (r *credentialResolver) refresh(ctx context.Context, credential *domain.Credential) (string, error) {
	key := fmt.Sprintf("%s:%d", credential.Provider, credential.ID)

	v, err, shared := r.flight.Do(key, func() (any, error) {
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.RefreshTimeout)
		defer cancel()
		return r.refreshExclusive(refreshCtx, key, credential)
	})
	if err != nil {
		return "", err
	}
	if shared {
		r.logger.Debug("Joined in-flight token refresh", zap.Int64("credential_id", credential.ID))
	}
	return v.(string), nil
}

// refreshExclusive holds the cross-process lock around read, exchange and
// compare-and-swap write
func (r *credentialResolver) refreshExclusive(ctx context.Context, key string, credential *domain.Credential) (string, error) {
	release, acquired, err := r.lock.Acquire(ctx, key)
	defer release()
	if err != nil {
		r.logger.Warn("Refresh lock unavailable, relying on compare-and-swap", zap.Error(err))
	} else if !acquired {
		r.logger.Warn("Refresh lock wait elapsed", zap.Int64("credential_id", credential.ID))
	}

	// Another process may have refreshed while we waited.
	if token, ok := r.rereadFresh(ctx, credential); ok {
		r.metrics.TokenRefreshed(ctx, r.opts.Provider, "reused")
		return token, nil
	}

	refreshErr := func(err error) error {
		r.metrics.TokenRefreshed(ctx, r.opts.Provider, "failed")
		return &domain.RefreshError{Provider: r.opts.Provider, CredentialID: credential.ID, Err: err}
	}

	refreshToken, err := r.codec.Decode(*credential.EncodedRefreshToken)
	if err != nil {
		return "", refreshErr(fmt.Errorf("decode refresh token: %w", err))
	}

	grant, err := r.refresher.RefreshToken(ctx, refreshToken)
	if err != nil {
		return "", refreshErr(err)
	}

	encoded, err := r.codec.Encode(grant.AccessToken)
	if err != nil {
		return "", refreshErr(fmt.Errorf("encode access token: %w", err))
	}

	var encodedRefresh *string
	if grant.RefreshToken != "" {
		value, err := r.codec.Encode(grant.RefreshToken)
		if err != nil {
			return "", refreshErr(fmt.Errorf("encode refresh token: %w", err))
		}
		encodedRefresh = &value
	}

	err = r.credentials.UpdateToken(ctx, credential.ID, encoded, encodedRefresh, grant.ExpiresAt, credential.ExpiresAt)
	switch {
	case err == nil:
		r.metrics.TokenRefreshed(ctx, r.opts.Provider, "success")
		fields := []zap.Field{
			zap.String("provider", r.opts.Provider),
			zap.Int64("credential_id", credential.ID),
			zap.String("owner", credentialOwner(credential)),
		}
		if grant.ExpiresAt != nil {
			fields = append(fields, zap.Time("expires_at", *grant.ExpiresAt))
		}
		r.logger.Info("Provider token refreshed", fields...)
		return grant.AccessToken, nil
	case errors.Is(err, repository.ErrConflict):
		r.metrics.TokenRefreshed(ctx, r.opts.Provider, "conflict")
		if token, ok := r.rereadFresh(ctx, credential); ok {
			return token, nil
		}
		return grant.AccessToken, nil
	default:
		r.metrics.TokenRefreshed(ctx, r.opts.Provider, "unsaved")
		r.logger.Error("Refreshed token could not be stored",
			zap.Int64("credential_id", credential.ID),
			zap.String("owner", credentialOwner(credential)),
			zap.Error(err),
		)
		return grant.AccessToken, nil
	}
}

// rereadFresh returns the stored token when another writer replaced the
// observed token, or when the stored one is not expired. A replaced token
// counts as fresh even if its own expiry already falls inside the margin.
func (r *credentialResolver) rereadFresh(ctx context.Context, observed *domain.Credential) (string, bool) {
	current, err := r.credentials.GetByID(ctx, observed.ID)
	if err != nil || !current.IsActive {
		return "", false
	}
	replaced := current.EncodedToken != observed.EncodedToken || !sameInstant(current.ExpiresAt, observed.ExpiresAt)
	if !replaced && current.IsExpired(r.now(), r.opts.RefreshMargin) {
		return "", false
	}
	token, err := r.codec.Decode(current.EncodedToken)
	if err != nil {
		return "", false
	}
	return token, true
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// credentialOwner is the loggable owner of a credential, with emails masked
func credentialOwner(c *domain.Credential) string {
	key := c.OwnerKey()
	if strings.Contains(key, "@") {
		return utils.MaskEmail(key)
	}
	return key
}
