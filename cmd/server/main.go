package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cinesync/backend/internal/auth"
	"github.com/cinesync/backend/internal/config"
	"github.com/cinesync/backend/internal/container"
	"github.com/cinesync/backend/internal/logger"
	"github.com/cinesync/backend/internal/metrics"
	"github.com/cinesync/backend/internal/middleware"
	"github.com/cinesync/backend/internal/telemetry"
	"github.com/cinesync/backend/internal/validation"
)

const serviceName = "cinesync-backend"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := logger.Initialize(cfg.LogLevel, cfg.LogFile); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Close()

	logger.Log.Info("=== CineSync server starting ===",
		zap.String("environment", cfg.Environment),
		zap.String("docstore", cfg.DocstoreBackend))

	metrics.Initialize()

	ctx := context.Background()
	tp, err := telemetry.InitTracer(ctx, telemetry.Config{
		ServiceName:  serviceName,
		Environment:  cfg.Environment,
		OTLPEndpoint: cfg.OTelEndpoint,
		Enabled:      cfg.OTelEnabled,
		SamplingRate: 1.0,
	})
	if err != nil {
		logger.Log.Warn("Tracing disabled", zap.Error(err))
	}

	c, err := container.Build(ctx, cfg)
	if err != nil {
		logger.Log.Fatal("Failed to build dependencies", zap.Error(err))
	}
	if tp != nil {
		c.OnCleanup(tp.Shutdown)
	}

	validator := validation.NewServiceValidator()
	c.RegisterChecks(validator)
	if err := validator.ValidateServices(ctx); err != nil {
		logger.Log.Fatal("Service validation failed", zap.Error(err))
	}

	c.Start(true)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.TracingMiddleware(serviceName)...)
	r.Use(middleware.GinLoggerMiddleware())
	r.Use(middleware.MetricsMiddleware())

	corsConfig := cors.DefaultConfig()
	if len(cfg.CORSOrigins) == 0 || cfg.CORSOrigins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.CORSOrigins
	}
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization", "X-Request-ID")
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "Retry-After", "X-RateLimit-Remaining"}
	r.Use(cors.New(corsConfig))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/api/v1/ws"})))

	authenticate := middleware.Authenticate(c.Verifier(), auth.StoreProfileLoader(c.Store()))
	c.Handlers().RegisterRoutes(r, authenticate, c.Redis())

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Log.Info("CineSync backend listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := c.Cleanup(shutdownCtx); err != nil {
		logger.Log.Warn("Cleanup finished with errors", zap.Error(err))
	}

	logger.Log.Info("Server exited")
}
