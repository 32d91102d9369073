package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/SaddamHosen42/obe-engine-api/api/swagger"
	"github.com/SaddamHosen42/obe-engine-api/internal/handler"
	"github.com/SaddamHosen42/obe-engine-api/internal/middleware"
	"github.com/SaddamHosen42/obe-engine-api/internal/models"
	"github.com/SaddamHosen42/obe-engine-api/internal/repository"
	"github.com/SaddamHosen42/obe-engine-api/internal/service"
	"github.com/SaddamHosen42/obe-engine-api/pkg/cache"
	"github.com/SaddamHosen42/obe-engine-api/pkg/config"
	"github.com/SaddamHosen42/obe-engine-api/pkg/database"
	"github.com/SaddamHosen42/obe-engine-api/pkg/export"
	"github.com/SaddamHosen42/obe-engine-api/pkg/jobs"
	"github.com/SaddamHosen42/obe-engine-api/pkg/logger"
	corsmiddleware "github.com/SaddamHosen42/obe-engine-api/pkg/middleware/cors"
	reqidmiddleware "github.com/SaddamHosen42/obe-engine-api/pkg/middleware/requestid"
	"github.com/SaddamHosen42/obe-engine-api/pkg/storage"
)

// @title OBE Engine API
// @version 1.0.0
// @description Outcome-based education attainment engine
// @BasePath /
// @schemes http

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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	metricsSvc := service.NewMetricsService()

	var cacheSvc *service.CacheService
	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, summary caching disabled", "error", err)
		cacheSvc = service.NewCacheService(nil, metricsSvc, cfg.Summaries.CacheTTL, logr, false)
	} else {
		defer redisClient.Close()
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Summaries.CacheTTL, logr, cfg.Summaries.CacheEnabled)
	}

	validate := validator.New()

	outcomeRepo := repository.NewOutcomeRepository(db)
	mappingRepo := repository.NewMappingRepository(db)
	assessmentRepo := repository.NewAssessmentRepository(db)
	scoreRepo := repository.NewScoreRepository(db)
	thresholdRepo := repository.NewThresholdRepository(db)
	attainmentRepo := repository.NewAttainmentRepository(db)
	jobRepo := repository.NewJobRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	summarySvc := service.NewSummaryService(outcomeRepo, attainmentRepo, cacheSvc, metricsSvc, logr)
	hierarchySvc := service.NewHierarchyService(outcomeRepo, mappingRepo, summarySvc, validate, logr)
	allocationSvc := service.NewAllocationService(assessmentRepo, summarySvc, metricsSvc, validate, logr)
	scoreSvc := service.NewScoreService(scoreRepo, scoreRepo, assessmentRepo, validate, logr)
	thresholdSvc := service.NewThresholdService(thresholdRepo, models.DefaultThresholds(), logr)

	defaultStrategy := models.RollupStrategy(cfg.Engine.DefaultRollupStrategy)
	if !defaultStrategy.Valid() {
		logr.Sugar().Warnw("unknown rollup strategy in config, using marks-first", "strategy", cfg.Engine.DefaultRollupStrategy)
		defaultStrategy = models.RollupMarksFirst
	}
	attainmentSvc := service.NewAttainmentService(outcomeRepo, mappingRepo, assessmentRepo, scoreRepo, thresholdSvc, attainmentRepo, defaultStrategy, logr)

	// Workers are assigned after their services exist; the queue only
	// dereferences them when a job is dequeued.
	var (
		recomputeWorker *service.RecomputeWorker
		exportWorker    *service.ExportWorker
	)
	queue := jobs.NewQueue("engine", func(ctx context.Context, job jobs.Job) error {
		switch models.JobType(job.Type) {
		case models.JobTypeRecompute:
			return recomputeWorker.Handle(ctx, job)
		case models.JobTypeExport:
			return exportWorker.Handle(ctx, job)
		default:
			return fmt.Errorf("unknown job type %q", job.Type)
		}
	}, jobs.QueueConfig{
		Workers:    cfg.Engine.WorkerConcurrency,
		BufferSize: cfg.Engine.JobQueueSize,
		MaxRetries: cfg.Engine.WorkerRetries,
		Logger:     logr,
	})

	recomputeSvc := service.NewRecomputeService(attainmentSvc, attainmentRepo, jobRepo, queue, summarySvc, metricsSvc, cfg.Engine.WorkerRetries, logr)
	recomputeWorker = service.NewRecomputeWorker(recomputeSvc, jobRepo, logr)

	exportStorage, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init export storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	exportSvc := service.NewExportService(summarySvc, exportStorage, signer, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Exports.SignedURLTTL,
	}, logr, export.NewCSVExporter(), export.NewPDFExporter())
	exportJobSvc := service.NewExportJobService(jobRepo, queue, exportSvc, logr, service.ExportJobConfig{
		ResultTTL:       cfg.Exports.SignedURLTTL,
		CleanupInterval: cfg.Exports.CleanupInterval,
		MaxRetries:      cfg.Exports.WorkerRetries,
	})
	exportWorker = service.NewExportWorker(jobRepo, exportSvc, cfg.Exports.WorkerRetries, logr)

	queue.Start(ctx)
	defer queue.Stop()
	recomputeSvc.RecoverPendingJobs(ctx)
	exportJobSvc.RecoverPendingJobs(ctx)
	if cfg.Exports.Enabled {
		exportJobSvc.StartCleanup(ctx)
	}

	outcomeHandler := handler.NewOutcomeHandler(hierarchySvc)
	assessmentHandler := handler.NewAssessmentHandler(allocationSvc)
	scoreHandler := handler.NewScoreHandler(scoreSvc)
	attainmentHandler := handler.NewAttainmentHandler(attainmentSvc)
	thresholdHandler := handler.NewThresholdHandler(thresholdSvc)
	summaryHandler := handler.NewSummaryHandler(summarySvc)
	jobHandler := handler.NewJobHandler(recomputeSvc, exportJobSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Actor())
	r.Use(middleware.WithResponseMeta())
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	outcomes := api.Group("/outcomes")
	{
		outcomes.POST("", middleware.Audit(auditRepo, "create", "outcome"), outcomeHandler.Create)
		outcomes.GET("", outcomeHandler.List)
		outcomes.PUT("/mappings", middleware.Audit(auditRepo, "map", "outcome"), outcomeHandler.SetMapping)
		outcomes.GET("/:id", outcomeHandler.Get)
		outcomes.PATCH("/:id", middleware.Audit(auditRepo, "update", "outcome"), outcomeHandler.UpdateDescription)
		outcomes.DELETE("/:id", middleware.Audit(auditRepo, "delete", "outcome"), outcomeHandler.Delete)
		outcomes.GET("/:id/children", outcomeHandler.Children)
		outcomes.GET("/:id/parents", outcomeHandler.Parents)
	}

	items := api.Group("/assessment-items")
	{
		items.POST("", middleware.Audit(auditRepo, "create", "assessment_item"), assessmentHandler.CreateItem)
		items.GET("", assessmentHandler.ListItems)
		items.GET("/:id", assessmentHandler.GetItem)
		items.PUT("/:id/total", middleware.Audit(auditRepo, "update", "assessment_item"), assessmentHandler.UpdateItemTotal)
		items.PUT("/:id/allocations", middleware.Audit(auditRepo, "allocate", "assessment_item"), assessmentHandler.SetAllocations)
		items.GET("/:id/allocations", assessmentHandler.GetAllocations)
	}

	api.POST("/scores", middleware.Audit(auditRepo, "ingest", "score"), scoreHandler.Ingest)

	attainment := api.Group("/attainment")
	{
		attainment.POST("/overrides", middleware.Audit(auditRepo, "override", "attainment"), attainmentHandler.Override)
		attainment.GET("/:id", attainmentHandler.Get)
		attainment.GET("/:id/overrides", attainmentHandler.Overrides)
	}

	thresholds := api.Group("/thresholds")
	{
		thresholds.GET("/defaults", thresholdHandler.Defaults)
		thresholds.GET("/:id", thresholdHandler.Get)
		thresholds.PUT("/:id", middleware.Audit(auditRepo, "update", "threshold"), thresholdHandler.Set)
		thresholds.DELETE("/:id", middleware.Audit(auditRepo, "delete", "threshold"), thresholdHandler.Clear)
	}

	summaries := api.Group("/summaries")
	{
		summaries.GET("/courses/:id", summaryHandler.Course)
		summaries.GET("/programs/:id", summaryHandler.Program)
		summaries.GET("/programs/:id/trend", summaryHandler.Trend)
		summaries.GET("/students/:id", summaryHandler.Student)
	}

	api.POST("/recompute", middleware.Audit(auditRepo, "recompute", "attainment"), jobHandler.Recompute)
	api.GET("/jobs/:id", jobHandler.Status)
	api.POST("/exports", middleware.Audit(auditRepo, "export", "summary"), jobHandler.Export)
	api.GET("/exports/download/:token", jobHandler.Download)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}
}
