package repository

import (
	"context"
	"time"

	"github.com/prperemyshlev/wearable-sync/internal/domain"
)

// OnboardingRepository reads one onboarding source
type OnboardingRepository interface {
	// Source is the table name, used for logging and precedence
	Source() string
	// LatestWithCode returns the most recent record for email carrying a non-empty uniqueCode
	LatestWithCode(ctx context.Context, email string) (*domain.IdentityRecord, error)
}

// CredentialRepository defines methods for integration credential operations
type CredentialRepository interface {
	FindActiveByCode(ctx context.Context, provider, code string) (*domain.Credential, error)
	FindActiveByEmail(ctx context.Context, provider, email string) (*domain.Credential, error)
	GetByID(ctx context.Context, id int64) (*domain.Credential, error)
	// UpdateToken replaces the secret and expiry only if the stored expiry still
	// equals prevExpiresAt; otherwise it returns ErrConflict.
	UpdateToken(ctx context.Context, id int64, encodedToken string, encodedRefreshToken *string, expiresAt *time.Time, prevExpiresAt *time.Time) error
}

// SyncRepository is insert-only
type SyncRepository interface {
	Create(ctx context.Context, record *domain.SyncRecord) error
}

// SubscriptionRepository defines methods for subscription lookups
type SubscriptionRepository interface {
	GetTier(ctx context.Context, email string) (domain.Tier, error)
}
