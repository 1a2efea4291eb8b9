package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"immofeed/internal/authz"
	"immofeed/internal/config"
	cronrunner "immofeed/internal/cron"
	"immofeed/internal/db"
	"immofeed/internal/handler"
	"immofeed/internal/ingest"
	"immofeed/internal/logger"
	"immofeed/internal/optout"
	gormrepository "immofeed/internal/repository/gorm"
)

func main() {
	cfgPath := os.Getenv("IMF_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("IMF_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	store := gormrepository.New(dbConn.Gorm)

	fetchHTTP := &http.Client{Timeout: cfg.Fetch.Timeout}
	pipeline := ingest.NewPipeline(store, fetchHTTP, cfg.Fetch, logger)
	scheduler := ingest.NewScheduler(store, pipeline, cfg.Scheduler, logger)
	processor := optout.NewProcessor(store, cfg.OptOut, logger)

	authClient := &authz.Client{
		VerifyURL: cfg.Auth.VerifyURL,
		Timeout:   cfg.Auth.Timeout,
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	healthHandler := &handler.HealthHandler{DB: dbConn}
	healthHandler.Register(engine)

	sourceHandler := &handler.SourceHandler{Repo: store, Scheduler: scheduler}
	sourceHandler.Register(engine)
	listingHandler := &handler.ListingHandler{Repo: store}
	listingHandler.Register(engine)
	optoutHandler := &handler.OptOutHandler{Repo: store, Processor: processor}
	optoutHandler.Register(engine)

	admin := engine.Group("/api/v1/admin", authz.RequireAdminMiddleware(authClient, logger))
	sourceHandler.RegisterAdmin(admin)
	listingHandler.RegisterAdmin(admin)
	optoutHandler.RegisterAdmin(admin)
	jobHandler := &handler.JobHandler{Repo: store}
	jobHandler.RegisterAdmin(admin)
	ingestHandler := &handler.IngestHandler{Scheduler: scheduler}
	ingestHandler.RegisterAdmin(admin)

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scheduler.Start(ctx)

	cronRunner := cronrunner.New(logger, ctx)
	if cfg.Cron.Enabled {
		_, err := cronRunner.Add(cfg.Cron.IngestionRun, func(ctx context.Context) {
			if err := scheduler.RunEligibleSources(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("cron ingestion run failed", zap.Error(err))
			}
		})
		if err != nil {
			logger.Warn("cron register ingestion run failed", zap.Error(err))
		}
		cronRunner.Start()
		defer cronRunner.Stop()
	}

	go processor.Run(ctx)

	errCh := make(chan error, 2)

	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	// In-flight jobs see the cancelled context at their next stage boundary
	// and finalize as failed before we let the process exit.
	stop()
	scheduler.Wait()
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
