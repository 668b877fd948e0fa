package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/prperemyshlev/wearable-sync/internal/domain"
	"github.com/prperemyshlev/wearable-sync/pkg/database"
)

// syncRepository implements SyncRepository interface
type syncRepository struct {
	db *database.Postgres
}

// NewSyncRepository creates a new sync repository
func NewSyncRepository(db *database.Postgres) SyncRepository {
	return &syncRepository{db: db}
}

// Create appends a sync record. It never updates an existing row.
func (r *syncRepository) Create(ctx context.Context, record *domain.SyncRecord) error {
	query := `
		INSERT INTO wearable_syncs (
			id, user_email, provider, synced_at, start_date, end_date,
			sleep_data, daily_activity_data, daily_readiness_data, heart_rate_data, workout_data, raw_data
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	if record.ID == "" {
		record.ID = uuid.New().String()
	}

	if record.SyncedAt.IsZero() {
		record.SyncedAt = time.Now().UTC()
	}

	record.Data.Normalize()
	if record.Raw == nil {
		record.Raw = map[domain.Stream]json.RawMessage{}
	}

	payloads, err := marshalAll(
		record.Data.Sleep,
		record.Data.DailyActivity,
		record.Data.DailyReadiness,
		record.Data.HeartRate,
		record.Data.Workout,
		record.Raw,
	)
	if err != nil {
		return fmt.Errorf("failed to encode sync payload: %w", err)
	}

	_, err = r.db.DB.ExecContext(ctx, query,
		record.ID,
		record.UserEmail,
		record.Provider,
		record.SyncedAt,
		record.Range.StartDate(),
		record.Range.EndDate(),
		payloads[0],
		payloads[1],
		payloads[2],
		payloads[3],
		payloads[4],
		payloads[5],
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" { // unique_violation
			return fmt.Errorf("sync record %s: %w", record.ID, ErrDuplicateSync)
		}
		return fmt.Errorf("failed to insert sync record: %w", err)
	}

	return nil
}

func marshalAll(values ...any) ([][]byte, error) {
	out := make([][]byte, 0, len(values))
	for _, v := range values {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}
