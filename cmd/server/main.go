package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/toonranks/toonranks/internal/api"
	"github.com/toonranks/toonranks/internal/auth"
	"github.com/toonranks/toonranks/internal/cache"
	"github.com/toonranks/toonranks/internal/db"
	"github.com/toonranks/toonranks/internal/forum"
	"github.com/toonranks/toonranks/internal/media"
	"github.com/toonranks/toonranks/internal/moderation"
	"github.com/toonranks/toonranks/internal/readinglist"
	"github.com/toonranks/toonranks/internal/series"
	"github.com/toonranks/toonranks/internal/storage"
	"github.com/toonranks/toonranks/pkg/config"
	"github.com/toonranks/toonranks/pkg/logging"
	"github.com/toonranks/toonranks/pkg/telemetry"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logging.InitLogger(&cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.GetLogger().Sync()

	logger := logging.GetLogger()
	logger.Info("Starting Toon Ranks API Server")

	// Initialize telemetry
	telemetryShutdown, err := telemetry.Init(&cfg.Telemetry)
	if err != nil {
		logger.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer telemetryShutdown()

	database, err := db.New(&cfg.Database, cfg.Logging.Level)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close()

	if err := database.MigrateWithRetry(context.Background(), cfg.Database.InitRetryDelay); err != nil {
		logger.Error("Schema initialization failed, continuing without it", zap.Error(err))
	}

	redisCache, err := cache.New(&cfg.Redis)
	if err != nil {
		logger.Warn("Redis unavailable, caching disabled", zap.Error(err))
		redisCache = nil
	}
	defer redisCache.Close()

	store, err := newObjectStore(&cfg.Storage)
	if err != nil {
		logger.Fatal("Failed to initialize object storage", zap.Error(err))
	}

	repo := db.NewRepository(database.DB)
	tokens, err := auth.NewTokenManager(&cfg.Security)
	if err != nil {
		logger.Fatal("Failed to initialize token manager", zap.Error(err))
	}
	filter := moderation.NewFilter(moderation.NewProfanity(), moderation.NewImageGuard(cfg.Moderation, nil))

	router := api.NewRouter(api.Deps{
		Auth: auth.NewService(repo, tokens,
			auth.NewRecaptchaVerifier(cfg.Captcha, nil),
			auth.NewEmailSender(cfg.Email),
			cfg.Email.VerifyURLBase),
		Forum:        forum.NewService(repo, filter, store, redisCache, cfg.Forum),
		Media:        media.NewService(repo, store, cfg.Media),
		Series:       series.NewService(repo, store, redisCache),
		ReadingLists: readinglist.NewService(repo, cfg.Forum.MaxReadingListsPerUser),
		Database:     database,
		Cache:        redisCache,
		CORSOrigins:  cfg.Server.CORSOrigins,
		RateLimit:    cfg.RateLimit.Enabled,
	})

	// Create Gin router
	if cfg.Logging.Level == "DEBUG" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var metricsSrv *http.Server
	if cfg.Telemetry.PrometheusEnabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Telemetry.PrometheusPort),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("Metrics server starting", zap.String("address", metricsSrv.Addr))
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server failed", zap.Error(err))
			}
		}()
	}

	// Start server in goroutine
	go func() {
		logger.Info("Server starting", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(ctx)
	}
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

// newObjectStore uses S3 when a bucket is configured and an in-memory store otherwise
func newObjectStore(cfg *config.StorageConfig) (storage.ObjectStore, error) {
	if cfg.Bucket == "" {
		logging.GetLogger().Warn("No S3 bucket configured, uploads are kept in memory")
		return storage.NewMemoryStore("http://localhost/uploads"), nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s3, err := storage.NewS3Store(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return s3, nil
}
