package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"streamgate/internal/core/services"
	httphandlers "streamgate/internal/handlers/http"
	"streamgate/internal/infrastructure/middleware"
	"streamgate/internal/infrastructure/monitoring"
	repositories "streamgate/internal/infrastructure/repositories"
	wsfeed "streamgate/internal/infrastructure/signal"
	"streamgate/pkg/config"
	"streamgate/pkg/logger"
	"streamgate/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	startTime := time.Now()

	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}

	if err != nil {
		// Fallback to defaults if config cannot be loaded
		cfg = config.DefaultConfig()
	}

	// Initialize logger
	zapLogger := logger.New(cfg.Logging.Level)
	defer zapLogger.Sync()

	log := zapLogger.Sugar()

	if !cfg.IsSecureModeConfigured() {
		log.Warnw("secure mode not fully configured, token issuance will be refused",
			"app_id_set", cfg.App.ID != "",
			"certificate_set", cfg.App.Certificate != "",
		)
	}

	// Initialize tracing
	tracerProvider, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "streamgate",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: "production",
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	// Initialize repository factory
	repoFactory, err := repositories.NewRepositoryFactory(cfg, log)
	if err != nil {
		log.Fatalw("failed to create repository factory", "error", err)
	}
	defer repoFactory.Close()

	viewerRepo := repoFactory.CreateViewerRepository()

	// Initialize services
	issuer := services.NewTokenIssuer(cfg.App.ID, cfg.App.Certificate, cfg.App.TokenTTL, log)

	// Initialize monitoring
	prometheusCollector := monitoring.NewPrometheusCollector()

	// Initialize operator event feed
	var eventFeed *wsfeed.EventFeed
	if cfg.EventFeed.Enabled {
		eventFeed = wsfeed.NewEventFeed(cfg.EventFeed.PingInterval, cfg.EventFeed.PongTimeout, prometheusCollector, log)
		defer eventFeed.Close()
	}

	// Initialize HTTP handlers
	var observer httphandlers.IssuanceObserver
	var presence httphandlers.PresenceObserver
	if eventFeed != nil {
		observer = eventFeed
		presence = eventFeed
	}
	tokenHandler := httphandlers.NewTokenHandler(issuer, prometheusCollector, observer)
	viewerHandler := httphandlers.NewViewerHandler(viewerRepo, presence, prometheusCollector)

	// Configure Gin
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.RequestLogMiddleware(zapLogger))
	router.Use(middleware.ErrorHandlerMiddleware(log))
	if cfg.Tracing.Enabled {
		router.Use(middleware.TracingMiddleware())
	}
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))

	tokenHandler.SetupRoutes(router)
	viewerHandler.SetupRoutes(router)

	if eventFeed != nil {
		router.GET("/ws/events", gin.WrapF(eventFeed.HandleWebSocket))
	}

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"uptime":    time.Since(startTime).String(),
		})
	})

	// Readiness endpoint
	router.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := repoFactory.HealthCheck(ctx); err != nil {
			c.JSON(503, gin.H{
				"status":       "not_ready",
				"timestamp":    time.Now(),
				"dependencies": "unhealthy",
				"error":        err.Error(),
			})
			return
		}

		c.JSON(200, gin.H{
			"status":       "ready",
			"timestamp":    time.Now(),
			"dependencies": "ok",
		})
	})

	// Prometheus metrics endpoint
	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Starting streamgate token authority on %s", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for shutdown signals or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("Server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("Received shutdown signal", "signal", sig)
	}

	log.Info("Shutting down streamgate token authority...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("HTTP server shutdown failed", "error", err)
	}

	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Errorw("tracer shutdown failed", "error", err)
	}

	log.Info("Shutdown complete")
}
