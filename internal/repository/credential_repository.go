package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/prperemyshlev/wearable-sync/internal/domain"
	"github.com/prperemyshlev/wearable-sync/pkg/database"
)

const credentialColumns = `id, provider, user_email, user_code, encoded_token, encoded_refresh_token,
		expires_at, is_active, created_at, updated_at`

// credentialRepository implements CredentialRepository interface
type credentialRepository struct {
	db *database.Postgres
}

// NewCredentialRepository creates a new credential repository
func NewCredentialRepository(db *database.Postgres) CredentialRepository {
	return &credentialRepository{db: db}
}

// FindActiveByCode retrieves the active credential for provider owned by code.
// Duplicates resolve to the most recently updated row, then the highest id.
func (r *credentialRepository) FindActiveByCode(ctx context.Context, provider, code string) (*domain.Credential, error) {
	query := `
		SELECT ` + credentialColumns + `
		FROM integration_credentials
		WHERE provider = $1 AND user_code = $2 AND is_active
		ORDER BY updated_at DESC, id DESC
		LIMIT 1
	`

	credential, err := r.scanOne(r.db.DB.QueryRowContext(ctx, query, provider, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("no active %s credential for code: %w", provider, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get credential by code: %w", err)
	}

	return credential, nil
}

// FindActiveByEmail retrieves the active credential for provider owned by email
func (r *credentialRepository) FindActiveByEmail(ctx context.Context, provider, email string) (*domain.Credential, error) {
	query := `
		SELECT ` + credentialColumns + `
		FROM integration_credentials
		WHERE provider = $1 AND lower(user_email) = $2 AND is_active
		ORDER BY updated_at DESC, id DESC
		LIMIT 1
	`

	credential, err := r.scanOne(r.db.DB.QueryRowContext(ctx, query, provider, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("no active %s credential for email: %w", provider, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get credential by email: %w", err)
	}

	return credential, nil
}

// GetByID retrieves a credential by ID
func (r *credentialRepository) GetByID(ctx context.Context, id int64) (*domain.Credential, error) {
	query := `
		SELECT ` + credentialColumns + `
		FROM integration_credentials
		WHERE id = $1
	`

	credential, err := r.scanOne(r.db.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("credential with id %d not found: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get credential by id: %w", err)
	}

	return credential, nil
}

// UpdateToken swaps in a refreshed token, guarded by the previously observed expiry
func (r *credentialRepository) UpdateToken(
	ctx context.Context,
	id int64,
	encodedToken string,
	encodedRefreshToken *string,
	expiresAt *time.Time,
	prevExpiresAt *time.Time,
) error {
	query := `
		UPDATE integration_credentials
		SET encoded_token = $2,
		    encoded_refresh_token = COALESCE($3, encoded_refresh_token),
		    expires_at = $4,
		    updated_at = now()
		WHERE id = $1 AND expires_at IS NOT DISTINCT FROM $5
	`

	var refresh sql.NullString
	if encodedRefreshToken != nil {
		refresh = sql.NullString{String: *encodedRefreshToken, Valid: true}
	}

	result, err := r.db.DB.ExecContext(ctx, query, id, encodedToken, refresh, nullTime(expiresAt), nullTime(prevExpiresAt))
	if err != nil {
		return fmt.Errorf("failed to update credential token: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("credential %d expiry changed since read: %w", id, ErrConflict)
	}

	return nil
}

func (r *credentialRepository) scanOne(row *sql.Row) (*domain.Credential, error) {
	credential := &domain.Credential{}
	var userCode, refreshToken sql.NullString
	var expiresAt sql.NullTime

	err := row.Scan(
		&credential.ID,
		&credential.Provider,
		&credential.UserEmail,
		&userCode,
		&credential.EncodedToken,
		&refreshToken,
		&expiresAt,
		&credential.IsActive,
		&credential.CreatedAt,
		&credential.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if userCode.Valid {
		credential.UserCode = &userCode.String
	}
	if refreshToken.Valid {
		credential.EncodedRefreshToken = &refreshToken.String
	}
	if expiresAt.Valid {
		credential.ExpiresAt = &expiresAt.Time
	}

	return credential, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
