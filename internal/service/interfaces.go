package service

import (
	"context"

	"github.com/prperemyshlev/wearable-sync/internal/domain"
	"github.com/prperemyshlev/wearable-sync/internal/provider/oura"
)

// SyncInput is one sync request after validation
type SyncInput struct {
	Email   string
	Code    string
	Range   domain.DateRange
	Session domain.SessionTokens
}

// SyncOutcome is what a completed sync reports to the caller
type SyncOutcome struct {
	SyncID   string
	Summary  map[string]int
	Analysis *domain.AnalysisSummary
}

// SyncService runs the full sync pipeline for one user
type SyncService interface {
	Sync(ctx context.Context, input *SyncInput) (*SyncOutcome, error)
}

// IdentityResolver maps an email to its account code, or "" when none is known
type IdentityResolver interface {
	ResolveAccountCode(ctx context.Context, email string) string
}

// CredentialResolver yields a usable provider access token or a *domain.NotConnectedError
type CredentialResolver interface {
	ResolveToken(ctx context.Context, email, code string, session domain.SessionTokens) (string, error)
}

// AnalysisTrigger runs the pattern analysis for premium owners. It never fails.
type AnalysisTrigger interface {
	MaybeTrigger(ctx context.Context, email string, data domain.StreamData) *domain.AnalysisSummary
}

// StreamFetcher pulls every provider stream for a date range
type StreamFetcher interface {
	FetchAll(ctx context.Context, accessToken string, rng domain.DateRange) *oura.FetchResult
}

// TokenRefresher exchanges a refresh token at the provider
type TokenRefresher interface {
	RefreshToken(ctx context.Context, refreshToken string) (*domain.TokenGrant, error)
}
