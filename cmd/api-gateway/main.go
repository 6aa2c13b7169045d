package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/cbta-eval-api/api/swagger"
	"github.com/noah-isme/cbta-eval-api/internal/catalog"
	"github.com/noah-isme/cbta-eval-api/internal/grading"
	"github.com/noah-isme/cbta-eval-api/internal/handler"
	"github.com/noah-isme/cbta-eval-api/internal/repository"
	"github.com/noah-isme/cbta-eval-api/internal/service"
	"github.com/noah-isme/cbta-eval-api/pkg/cache"
	"github.com/noah-isme/cbta-eval-api/pkg/config"
	"github.com/noah-isme/cbta-eval-api/pkg/database"
	"github.com/noah-isme/cbta-eval-api/pkg/export"
	"github.com/noah-isme/cbta-eval-api/pkg/jobs"
	"github.com/noah-isme/cbta-eval-api/pkg/logger"
	"github.com/noah-isme/cbta-eval-api/pkg/storage"
)

// @title CBTA Evaluation API
// @version 1.0.0
// @description Competency-based training and assessment: sessions, observation checklists and graded competence reports.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	engine, err := grading.NewEngine(cat, grading.Policy{
		HowManyBands:  cfg.Grading.HowManyBands,
		HowOftenBands: cfg.Grading.HowOftenBands,
		Combiner:      cfg.Grading.Combiner,
	})
	if err != nil {
		return fmt.Errorf("grading policy: %w", err)
	}
	if err := grading.ValidateRating(cfg.Grading.DefaultSafetyRating); err != nil {
		return fmt.Errorf("GRADING_DEFAULT_SAFETY_RATING: %w", err)
	}
	logr.Info("catalog loaded",
		zap.Int("behaviors", cat.Size()),
		zap.String("combiner", engine.CombinerName()),
		zap.Strings("available_combiners", grading.Combiners()),
	)

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	metricsSvc := service.NewMetricsService()
	validate := validator.New()

	redisClient := connectRedis(ctx, cfg, logr)
	var cacheRepo service.CacheRepository
	if redisClient != nil {
		defer redisClient.Close()
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.ReportCache.TTL, logr, redisClient != nil)

	sessionRepo := repository.NewSessionRepository(db)
	exerciseRepo := repository.NewExerciseRepository(db)
	observationRepo := repository.NewObservationRepository(db)
	userRepo := repository.NewUserRepository(db)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	sessionSvc := service.NewSessionService(sessionRepo, exerciseRepo, observationRepo, cat, cacheSvc, validate, logr)
	evaluationSvc := service.NewEvaluationService(sessionSvc, engine, cacheSvc, metricsSvc, service.EvaluationConfig{
		DefaultSafetyRating: cfg.Grading.DefaultSafetyRating,
		CacheTTL:            cfg.ReportCache.TTL,
	}, logr)

	deps := routeDeps{
		cfg:      cfg,
		logger:   logr,
		auth:     authSvc,
		metrics:  metricsSvc,
		auths:    handler.NewAuthHandler(authSvc),
		users:    handler.NewUserHandler(authSvc),
		catalog:  handler.NewCatalogHandler(cat),
		sessions: handler.NewSessionHandler(sessionSvc, evaluationSvc),
		exercise: handler.NewExerciseHandler(sessionSvc),
		health:   handler.NewMetricsHandler(metricsSvc.Handler(), healthChecks(db, redisClient)),
	}

	if cfg.Reports.Enabled {
		reports, queue, err := startReports(ctx, cfg, logr, db, sessionRepo, evaluationSvc, metricsSvc, validate)
		if err != nil {
			return err
		}
		defer queue.Stop()
		deps.reports = handler.NewReportHandler(reports, logr)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           newRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func connectRedis(ctx context.Context, cfg *config.Config, logr *zap.Logger) *redis.Client {
	if !cfg.ReportCache.Enabled {
		return nil
	}
	client, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, report cache disabled", zap.Error(err))
		return nil
	}
	return client
}

func healthChecks(db *sqlx.DB, redisClient *redis.Client) map[string]handler.HealthCheck {
	checks := map[string]handler.HealthCheck{
		"database": func(ctx context.Context) error { return db.PingContext(ctx) },
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	return checks
}

func startReports(
	ctx context.Context,
	cfg *config.Config,
	logr *zap.Logger,
	db *sqlx.DB,
	sessions *repository.SessionRepository,
	evaluations *service.EvaluationService,
	metricsSvc *service.MetricsService,
	validate *validator.Validate,
) (*service.ReportService, *jobs.Queue, error) {
	store, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		return nil, nil, fmt.Errorf("init report storage: %w", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
	exportSvc := service.NewExportService(evaluations, store, signer, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Reports.SignedURLTTL,
	}, logr, export.DefaultRenderers())

	reportRepo := repository.NewReportRepository(db)
	worker := service.NewReportWorker(reportRepo, exportSvc, metricsSvc, logr)
	queue := jobs.NewQueue("reports", worker.Handle, jobs.QueueConfig{
		Workers:     cfg.Reports.WorkerConcurrency,
		MaxRetries:  cfg.Reports.WorkerRetries,
		Logger:      logr,
		OnExhausted: worker.Exhausted,
	})
	queue.Start(ctx)
	metricsSvc.RegisterQueueDepth("reports", queue.Pending)

	reportSvc := service.NewReportService(reportRepo, sessions, evaluations, queue, exportSvc, validate, logr, service.ReportServiceConfig{
		ResultTTL:       cfg.Reports.SignedURLTTL,
		CleanupInterval: cfg.Reports.CleanupInterval,
	})
	reportSvc.RecoverPendingJobs(ctx)
	reportSvc.StartCleanup(ctx)
	return reportSvc, queue, nil
}
