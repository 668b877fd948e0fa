package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/prperemyshlev/wearable-sync/internal/domain"
	"github.com/prperemyshlev/wearable-sync/internal/repository"
	"github.com/prperemyshlev/wearable-sync/internal/utils"
	"github.com/prperemyshlev/wearable-sync/pkg/observability"
)

// syncService implements SyncService
type syncService struct {
	provider    string
	credentials CredentialResolver
	fetcher     StreamFetcher
	syncs       repository.SyncRepository
	analysis    AnalysisTrigger
	metrics     *observability.SyncMetrics
	logger      *zap.Logger
}

// NewSyncService creates the sync pipeline
func NewSyncService(
	provider string,
	credentials CredentialResolver,
	fetcher StreamFetcher,
	syncs repository.SyncRepository,
	analysis AnalysisTrigger,
	metrics *observability.SyncMetrics,
	logger *zap.Logger,
) SyncService {
	return &syncService{
		provider:    provider,
		credentials: credentials,
		fetcher:     fetcher,
		syncs:       syncs,
		analysis:    analysis,
		metrics:     metrics,
		logger:      logger,
	}
}

// Sync resolves a token, fetches every stream, persists one record and
// optionally analyses it. Only credential resolution and persistence can fail it.
func (s *syncService) Sync(ctx context.Context, input *SyncInput) (*SyncOutcome, error) {
	logger := s.logger.With(
		zap.String("provider", s.provider),
		zap.String("email", utils.MaskEmail(input.Email)),
	)

	token, err := s.credentials.ResolveToken(ctx, input.Email, input.Code, input.Session)
	if err != nil {
		if errors.Is(err, domain.ErrNotConnected) {
			s.metrics.SyncCompleted(ctx, "not_connected")
			logger.Info("Sync rejected, provider not connected", zap.Error(err))
		} else {
			s.metrics.SyncCompleted(ctx, "error")
			logger.Error("Credential resolution failed", zap.Error(err))
		}
		return nil, err
	}

	result := s.fetcher.FetchAll(ctx, token, input.Range)

	summary := make(map[string]int, len(domain.Streams))
	for _, stream := range domain.Streams {
		count := result.Data.Count(stream)
		summary[stream.SummaryKey()] = count
		s.metrics.StreamFetched(ctx, string(stream), count, result.Failed(stream))
	}
	if len(result.Errors) > 0 {
		failed := make([]string, 0, len(result.Errors))
		for _, stream := range domain.Streams {
			if result.Failed(stream) {
				failed = append(failed, string(stream))
			}
		}
		logger.Warn("Sync continuing with failed streams", zap.Strings("streams", failed))
	}

	record := &domain.SyncRecord{
		UserEmail: input.Email,
		Provider:  s.provider,
		Range:     input.Range,
		Data:      result.Data,
		Raw:       result.Raw,
	}
	if err := s.syncs.Create(ctx, record); err != nil {
		s.metrics.SyncCompleted(ctx, "storage_failure")
		logger.Error("Failed to persist sync record", zap.Error(err))
		return nil, &domain.StorageError{Op: "persist sync record", Err: err}
	}

	outcome := &SyncOutcome{
		SyncID:  record.ID,
		Summary: summary,
	}
	if s.analysis != nil {
		outcome.Analysis = s.analysis.MaybeTrigger(ctx, input.Email, record.Data)
	}

	s.metrics.SyncCompleted(ctx, "success")
	logger.Info("Sync completed",
		zap.String("sync_id", record.ID),
		zap.String("start_date", input.Range.StartDate()),
		zap.String("end_date", input.Range.EndDate()),
		zap.Int("failed_streams", len(result.Errors)),
		zap.Bool("analysis", outcome.Analysis != nil),
	)

	return outcome, nil
}
