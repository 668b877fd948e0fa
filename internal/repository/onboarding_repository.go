package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/prperemyshlev/wearable-sync/internal/domain"
	"github.com/prperemyshlev/wearable-sync/pkg/database"
)

// onboardingRepository implements OnboardingRepository for one funnel table
type onboardingRepository struct {
	db    *database.Postgres
	table string
	query string
}

// NewOnboardingRepository creates a repository reading the given table
func NewOnboardingRepository(db *database.Postgres, table string) OnboardingRepository {
	query := fmt.Sprintf(`
		SELECT id, email, form_data, created_at
		FROM %s
		WHERE lower(email) = $1
		  AND jsonb_typeof(form_data->'uniqueCode') = 'string'
		  AND btrim(form_data->>'uniqueCode') <> ''
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, pq.QuoteIdentifier(table))

	return &onboardingRepository{db: db, table: table, query: query}
}

func (r *onboardingRepository) Source() string {
	return r.table
}

// LatestWithCode retrieves the newest submission for email that carries a code
func (r *onboardingRepository) LatestWithCode(ctx context.Context, email string) (*domain.IdentityRecord, error) {
	record := &domain.IdentityRecord{Source: r.table}
	var formData []byte

	err := r.db.DB.QueryRowContext(ctx, r.query, email).Scan(
		&record.ID,
		&record.Email,
		&formData,
		&record.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("no %s submission with code for email: %w", r.table, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query %s: %w", r.table, err)
	}

	record.FormData = formData

	return record, nil
}
