package service

import (
	"context"
	"fmt"
	"time"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"github.com/prperemyshlev/wearable-sync/internal/analysis"
	"github.com/prperemyshlev/wearable-sync/internal/domain"
	"github.com/prperemyshlev/wearable-sync/internal/repository"
	"github.com/prperemyshlev/wearable-sync/internal/utils"
	"github.com/prperemyshlev/wearable-sync/pkg/observability"
)

// AnalysisTriggerOptions configures an analysis trigger
type AnalysisTriggerOptions struct {
	PremiumTiers []string
	// Timeout bounds a background engine call
	Timeout time.Duration
}

// analysisTrigger implements AnalysisTrigger
type analysisTrigger struct {
	subscriptions repository.SubscriptionRepository
	engine        analysis.Engine
	pool          pond.Pool
	premium       map[domain.Tier]bool
	timeout       time.Duration
	metrics       *observability.SyncMetrics
	logger        *zap.Logger
}

// NewAnalysisTrigger creates an analysis trigger. With a nil pool the engine
// runs inside the sync call; otherwise it is queued on pool and the caller
// gets a pending summary.
func NewAnalysisTrigger(
	opts AnalysisTriggerOptions,
	subscriptions repository.SubscriptionRepository,
	engine analysis.Engine,
	pool pond.Pool,
	metrics *observability.SyncMetrics,
	logger *zap.Logger,
) AnalysisTrigger {
	premium := make(map[domain.Tier]bool, len(opts.PremiumTiers))
	for _, tier := range opts.PremiumTiers {
		premium[domain.NormalizeTier(tier)] = true
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	return &analysisTrigger{
		subscriptions: subscriptions,
		engine:        engine,
		pool:          pool,
		premium:       premium,
		timeout:       opts.Timeout,
		metrics:       metrics,
		logger:        logger,
	}
}

func (t *analysisTrigger) MaybeTrigger(ctx context.Context, email string, data domain.StreamData) *domain.AnalysisSummary {
	tier, err := t.subscriptions.GetTier(ctx, email)
	if err != nil {
		t.logger.Warn("Subscription lookup failed, skipping analysis",
			zap.String("email", utils.MaskEmail(email)),
			zap.Error(err),
		)
		t.metrics.AnalysisFinished(ctx, "tier_unknown")
		return nil
	}

	if !t.premium[tier] {
		t.metrics.AnalysisFinished(ctx, "skipped")
		return nil
	}

	input := analysis.BuildInput(email, data)

	if t.pool == nil {
		return t.run(ctx, input)
	}

	err = t.pool.Go(func() {
		bgCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.timeout)
		defer cancel()
		t.run(bgCtx, input)
	})
	if err != nil {
		t.logger.Error("Analysis could not be queued", zap.Error(err))
		t.metrics.AnalysisFinished(ctx, "dropped")
		return nil
	}

	return &domain.AnalysisSummary{Status: domain.AnalysisStatusPending}
}

// run calls the engine. Errors and panics are logged and yield nil.
func (t *analysisTrigger) run(ctx context.Context, input *analysis.Input) (summary *domain.AnalysisSummary) {
	defer func() {
		if rec := recover(); rec != nil {
			err := &domain.AnalysisError{Err: fmt.Errorf("panic: %v", rec)}
			t.logger.Error("Analysis engine panicked", zap.Error(err))
			t.metrics.AnalysisFinished(ctx, "failed")
			summary = nil
		}
	}()

	result, err := t.engine.Analyze(ctx, input)
	if err != nil {
		t.logger.Warn("Analysis unavailable for this sync",
			zap.String("email", utils.MaskEmail(input.UserEmail)),
			zap.Error(&domain.AnalysisError{Err: err}),
		)
		t.metrics.AnalysisFinished(ctx, "failed")
		return nil
	}

	t.metrics.AnalysisFinished(ctx, "success")
	return analysis.Summarize(result)
}
