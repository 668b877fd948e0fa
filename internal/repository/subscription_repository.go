package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/prperemyshlev/wearable-sync/internal/domain"
	"github.com/prperemyshlev/wearable-sync/pkg/database"
)

type subscriptionRepository struct {
	db *database.Postgres
}

// NewSubscriptionRepository creates a new subscription repository
func NewSubscriptionRepository(db *database.Postgres) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

// GetTier returns the tier of the newest active subscription; no row means free
func (r *subscriptionRepository) GetTier(ctx context.Context, email string) (domain.Tier, error) {
	query := `
		SELECT tier
		FROM subscriptions
		WHERE lower(email) = $1 AND status = 'active'
		ORDER BY updated_at DESC
		LIMIT 1
	`

	var tier string
	err := r.db.DB.QueryRowContext(ctx, query, email).Scan(&tier)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.TierFree, nil
		}
		return "", fmt.Errorf("failed to get subscription tier: %w", err)
	}

	return domain.NormalizeTier(tier), nil
}
