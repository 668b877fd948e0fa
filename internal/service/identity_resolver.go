package service

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/prperemyshlev/wearable-sync/internal/domain"
	"github.com/prperemyshlev/wearable-sync/internal/repository"
	"github.com/prperemyshlev/wearable-sync/internal/utils"
)

// identityResolver implements IdentityResolver over onboarding sources in precedence order
type identityResolver struct {
	sources []repository.OnboardingRepository
	logger  *zap.Logger
}

// NewIdentityResolver creates a resolver. sources are consulted concurrently
// but the first source yielding a code wins, regardless of completion order.
func NewIdentityResolver(sources []repository.OnboardingRepository, logger *zap.Logger) IdentityResolver {
	return &identityResolver{sources: sources, logger: logger}
}

type lookupResult struct {
	record *domain.IdentityRecord
	err    error
}

func (r *identityResolver) ResolveAccountCode(ctx context.Context, email string) string {
	results := make([]lookupResult, len(r.sources))

	var wg sync.WaitGroup
	for i, source := range r.sources {
		wg.Add(1)
		go func() {
			defer wg.Done()
			record, err := source.LatestWithCode(ctx, email)
			results[i] = lookupResult{record: record, err: err}
		}()
	}
	wg.Wait()

	failures := 0
	for i, res := range results {
		source := r.sources[i].Source()

		if res.err != nil {
			if errors.Is(res.err, repository.ErrNotFound) {
				continue
			}
			failures++
			r.logger.Warn("Onboarding source lookup failed",
				zap.String("source", source),
				zap.String("email", utils.MaskEmail(email)),
				zap.Error(res.err),
			)
			continue
		}

		if code := res.record.UniqueCode(); code != "" {
			r.logger.Debug("Account code resolved",
				zap.String("source", source),
				zap.Int64("record_id", res.record.ID),
			)
			return code
		}
	}

	if failures > 0 && failures == len(r.sources) {
		r.logger.Error("All onboarding sources failed, continuing without account code",
			zap.String("email", utils.MaskEmail(email)),
			zap.Int("sources", len(r.sources)),
		)
	}

	return ""
}
