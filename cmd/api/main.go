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

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/attendly-api/api/swagger"
	"github.com/noah-isme/attendly-api/internal/handler"
	"github.com/noah-isme/attendly-api/internal/middleware"
	"github.com/noah-isme/attendly-api/internal/models"
	"github.com/noah-isme/attendly-api/internal/repository"
	"github.com/noah-isme/attendly-api/internal/service"
	"github.com/noah-isme/attendly-api/pkg/cache"
	"github.com/noah-isme/attendly-api/pkg/config"
	"github.com/noah-isme/attendly-api/pkg/database"
	"github.com/noah-isme/attendly-api/pkg/jobs"
	"github.com/noah-isme/attendly-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/attendly-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/attendly-api/pkg/middleware/requestid"
	"github.com/noah-isme/attendly-api/pkg/observability"
	"github.com/noah-isme/attendly-api/pkg/storage"
)

// @title Attendly API
// @version 1.0.0
// @description Student engagement, rankings and homework video access
// @BasePath /api/v1
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

	flushSentry, err := observability.InitSentry(cfg.Sentry, cfg.Env)
	if err != nil {
		logr.Warn("sentry init failed", zap.Error(err))
	} else {
		defer flushSentry()
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db); err != nil {
			logr.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, ranking cache disabled", zap.Error(err))
		redisClient = nil
	}

	// Repositories.
	studentRepo := repository.NewStudentRepository(db)
	voucherRepo := repository.NewVoucherRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	scoringRepo := repository.NewScoringRepository(db)
	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	exportRepo := repository.NewExportRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// Services.
	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(userRepo, nil, logr, cfg.JWT)
	rankingSvc := service.NewRankingService(studentRepo, cacheRepo, metricsSvc, cfg.Rankings.CacheTTL, logr)
	studentSvc := service.NewStudentService(studentRepo, rankingSvc, nil, logr)
	voucherSvc := service.NewVoucherService(voucherRepo, studentRepo, sessionRepo, nil, logr, cfg.Vouchers)
	sessionSvc := service.NewSessionService(sessionRepo, nil, logr)
	scoringSvc := service.NewScoringService(scoringRepo, studentRepo, rankingSvc, nil, logr)

	var exportSvc *service.ExportService
	var exportQueue *jobs.Queue
	if cfg.Exports.Enabled {
		store, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
		if err != nil {
			logr.Fatal("failed to init export storage", zap.Error(err))
		}
		signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
		exportSvc = service.NewExportService(exportRepo, rankingSvc, nil, store, signer, metricsSvc, logr)
		exportQueue = jobs.NewQueue("exports", exportSvc.Process, jobs.QueueConfig{
			Workers:    cfg.Exports.WorkerConcurrency,
			MaxRetries: cfg.Exports.WorkerRetries,
			Logger:     logr,
		})
		exportSvc.SetQueue(exportQueue)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		exportQueue.Start(ctx)
		defer exportQueue.Stop()

		go func() {
			ticker := time.NewTicker(time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if removed, err := store.CleanupOlderThan(cfg.Exports.ResultTTL); err != nil {
						logr.Warn("export cleanup failed", zap.Error(err))
					} else if len(removed) > 0 {
						logr.Info("expired export artifacts removed", zap.Int("count", len(removed)))
					}
				}
			}
		}()
	}

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
	rankingHandler := handler.NewRankingHandler(rankingSvc)
	voucherHandler := handler.NewVoucherHandler(voucherSvc, metricsSvc)
	sessionHandler := handler.NewSessionHandler(sessionSvc)
	scoringHandler := handler.NewScoringHandler(scoringSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
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

	api.POST("/auth/login", authHandler.Login)

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))
	{
		authed.GET("/auth/me", authHandler.Me)
		authed.GET("/rankings/me", rankingHandler.MyRanking)
		authed.POST("/vouchers/check", voucherHandler.Check)
		authed.POST("/vouchers/confirm-view", voucherHandler.ConfirmView)
		authed.GET("/sessions", sessionHandler.List)
		authed.GET("/sessions/:id", sessionHandler.Get)
		authed.GET("/scoring/conditions", scoringHandler.ListConditions)
		authed.GET("/scoring/conditions/:id", scoringHandler.GetCondition)
	}

	staff := api.Group("")
	staff.Use(middleware.JWT(authSvc), middleware.RequireStaff())
	{
		staff.GET("/students", studentHandler.List)
		staff.GET("/students/:id", studentHandler.Get)
		staff.POST("/students", middleware.Audit(auditRepo, "create", "student"), studentHandler.Create)
		staff.PUT("/students/:id", middleware.Audit(auditRepo, "update", "student"), studentHandler.Update)
		staff.PATCH("/students/:id/score", middleware.Audit(auditRepo, "adjust_score", "student"), studentHandler.AdjustScore)
		staff.PUT("/students/weeks", middleware.Audit(auditRepo, "upsert_week", "student_week"), studentHandler.UpsertWeek)

		staff.GET("/rankings/scores", rankingHandler.ViewScores)

		staff.GET("/vouchers", voucherHandler.List)
		staff.POST("/vouchers", middleware.Audit(auditRepo, "create", "voucher"), voucherHandler.Create)
		staff.PUT("/vouchers/:id", middleware.Audit(auditRepo, "update", "voucher"), voucherHandler.Update)
		staff.DELETE("/vouchers/:id", middleware.Audit(auditRepo, "delete", "voucher"), voucherHandler.Delete)

		staff.POST("/sessions", middleware.Audit(auditRepo, "create", "session"), sessionHandler.Create)
		staff.PUT("/sessions/:id", middleware.Audit(auditRepo, "update", "session"), sessionHandler.Update)
		staff.DELETE("/sessions/:id", middleware.Audit(auditRepo, "delete", "session"), sessionHandler.Delete)

		staff.POST("/scoring/conditions", middleware.Audit(auditRepo, "create", "scoring_condition"), scoringHandler.CreateCondition)
		staff.PUT("/scoring/conditions/:id", middleware.Audit(auditRepo, "update", "scoring_condition"), scoringHandler.UpdateCondition)
		staff.DELETE("/scoring/conditions/:id", middleware.Audit(auditRepo, "delete", "scoring_condition"), scoringHandler.DeleteCondition)
		staff.POST("/scoring/calculate", middleware.Audit(auditRepo, "calculate", "score"), scoringHandler.Calculate)
		staff.POST("/scoring/history/last", scoringHandler.LastHistory)
	}

	if exportSvc != nil {
		exportHandler := handler.NewExportHandler(exportSvc)
		admins := api.Group("")
		admins.Use(middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin, models.RoleDeveloper))
		admins.POST("/exports", middleware.Audit(auditRepo, "create", "export"), exportHandler.Create)
		admins.GET("/exports/:id", exportHandler.Status)
		// Download is gated by the signed token alone so links can be shared.
		api.GET("/exports/download", exportHandler.Download)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-shutdownCtx.Done()
	logr.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
}
