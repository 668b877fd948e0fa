package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/prperemyshlev/wearable-sync/internal/analysis"
	"github.com/prperemyshlev/wearable-sync/internal/config"
	"github.com/prperemyshlev/wearable-sync/internal/handler"
	"github.com/prperemyshlev/wearable-sync/internal/provider/oura"
	"github.com/prperemyshlev/wearable-sync/internal/repository"
	"github.com/prperemyshlev/wearable-sync/internal/service"
	"github.com/prperemyshlev/wearable-sync/internal/utils"
	"github.com/prperemyshlev/wearable-sync/pkg/observability"
)

const (
	serviceName     = "wearable-sync"
	shutdownTimeout = 5 * time.Second
)

type App struct {
	infra  Infrastructure
	config *config.Config
	router *gin.Engine
	server *http.Server

	oura         *oura.Client
	analysisPool pond.Pool
}

func NewApp(infra Infrastructure, cfg *config.Config) (*App, error) {
	logger := infra.Logger()
	repos := repository.NewRepositories(infra.Postgres(), cfg.Onboarding.Sources)

	codec, err := utils.NewSecretCodec(cfg.Secrets.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize secret codec: %w", err)
	}

	metrics, err := observability.NewSyncMetrics(serviceName)
	if err != nil {
		return nil, fmt.Errorf("failed to register sync metrics: %w", err)
	}

	ouraClient := oura.NewClient(oura.Options{
		BaseURL:       cfg.Oura.APIBaseURL,
		TokenURL:      cfg.Oura.TokenURL,
		ClientID:      cfg.Oura.ClientID,
		ClientSecret:  cfg.Oura.ClientSecret,
		Concurrency:   cfg.Sync.FetchConcurrency,
		StreamTimeout: cfg.Sync.StreamTimeout.Duration,
		MaxPages:      cfg.Oura.MaxPages,
	}, logger)

	identity := service.NewIdentityResolver(repos.Onboarding, logger)
	refreshLock := service.NewRefreshLock(infra.Redis(), cfg.Sync.RefreshLockTTL.Duration, cfg.Sync.RefreshLockWait.Duration)

	credentials := service.NewCredentialResolver(
		service.CredentialResolverOptions{
			Provider:      cfg.Oura.Provider,
			RefreshMargin: cfg.Oura.RefreshMargin.Duration,
		},
		identity,
		repos.Credential,
		codec,
		ouraClient,
		refreshLock,
		metrics,
		logger,
	)

	// Analysis runs in the request unless background mode is enabled
	var analysisPool pond.Pool
	if cfg.Analysis.Background {
		analysisPool = pond.NewPool(cfg.Analysis.Workers)
	}

	analysisTrigger := service.NewAnalysisTrigger(
		service.AnalysisTriggerOptions{
			PremiumTiers: cfg.Analysis.PremiumTiers,
			Timeout:      cfg.Analysis.Timeout.Duration,
		},
		repos.Subscription,
		analysis.NewHTTPEngine(cfg.Analysis.BaseURL, cfg.Analysis.Timeout.Duration),
		analysisPool,
		metrics,
		logger,
	)

	syncService := service.NewSyncService(
		cfg.Oura.Provider,
		credentials,
		ouraClient,
		repos.Sync,
		analysisTrigger,
		metrics,
		logger,
	)

	rateLimiter := service.NewRateLimiter(infra.Redis(), cfg.Sync.RateLimitRequests, cfg.Sync.RateLimitWindow.Duration)
	healthChecker := NewHealthChecker(infra)

	syncHandler := handler.NewSyncHandler(syncService, rateLimiter, handler.SyncHandlerOptions{
		Provider:         cfg.Oura.Provider,
		SessionCookie:    cfg.Sync.SessionCookie,
		DefaultRangeDays: cfg.Sync.DefaultRangeDays,
	}, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(handler.LoggerMiddleware(logger, "/health", "/metrics"))
	router.Use(handler.CORSMiddleware(cfg.CORS.AllowedOrigins, cfg.CORS.AllowedMethods, cfg.CORS.AllowedHeaders))

	var apiMiddleware []gin.HandlerFunc
	if cfg.Auth.JWTSecret != "" {
		apiMiddleware = append(apiMiddleware, handler.AuthMiddleware(utils.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer)))
	} else {
		logger.Warn("AUTH_JWT_SECRET is not set, sync API is unauthenticated")
	}

	setupRoutes(router, syncHandler, healthChecker, infra.MetricsHandler(), apiMiddleware)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
	}

	return &App{
		infra:        infra,
		config:       cfg,
		router:       router,
		server:       srv,
		oura:         ouraClient,
		analysisPool: analysisPool,
	}, nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

func setupRoutes(
	router *gin.Engine,
	syncHandler *handler.SyncHandler,
	healthChecker *HealthChecker,
	metricsHandler http.Handler,
	apiMiddleware []gin.HandlerFunc,
) {
	router.GET("/metrics", observability.PrometheusHandler(metricsHandler))
	router.GET("/health", healthChecker.Handler)

	api := router.Group("/api/v1", apiMiddleware...)
	{
		api.POST("/sync", syncHandler.Sync)
	}
}

func (a *App) Run(ctx context.Context) error {
	errChan := make(chan error, 1)

	go func() {
		a.infra.Logger().Info("Application starting",
			zap.String("host", a.config.Server.Host),
			zap.String("port", a.config.Server.Port),
		)

		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.infra.Logger().Error("Server error", zap.Error(err))
			errChan <- err
		}
	}()

	var serverErr error
	select {
	case err := <-errChan:
		a.infra.Logger().Error("Application failed to start", zap.Error(err))
		serverErr = err
	case <-ctx.Done():
		a.infra.Logger().Info("Application stopped by context")
	}

	if err := a.Shutdown(); err != nil {
		a.infra.Logger().Error("Shutdown error", zap.Error(err))
		if serverErr != nil {
			return errors.Join(serverErr, err)
		}
		return err
	}

	return serverErr
}

func (a *App) Shutdown() error {
	a.infra.Logger().Info("Application shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// In-flight requests finish before the worker pools stop
	serverErr := a.server.Shutdown(ctx)
	a.stopWorkers(ctx)

	err := errors.Join(serverErr, a.infra.Shutdown(ctx))
	if err != nil {
		a.infra.Logger().Error("Shutdown failed", zap.Error(err))
		return err
	}

	a.infra.Logger().Info("Application exited successfully")
	return nil
}

func (a *App) stopWorkers(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if a.analysisPool != nil {
			a.analysisPool.StopAndWait()
		}
		a.oura.Close()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		a.infra.Logger().Warn("Timed out waiting for background work to drain")
	}
}
