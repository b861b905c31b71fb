package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"docreview/review-portal/review-portal-backend/internal/audit"
	"docreview/review-portal/review-portal-backend/internal/auth"
	"docreview/review-portal/review-portal-backend/internal/config"
	"docreview/review-portal/review-portal-backend/internal/database"
	"docreview/review-portal/review-portal-backend/internal/documents"
	"docreview/review-portal/review-portal-backend/internal/logging"
	"docreview/review-portal/review-portal-backend/internal/merge"
	"docreview/review-portal/review-portal-backend/internal/notifications/websocket"
	"docreview/review-portal/review-portal-backend/internal/rewrite"
	"docreview/review-portal/review-portal-backend/internal/workflow"
	"docreview/review-portal/review-portal-backend/pkg/workflows"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the JSON config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	db, err := database.Open(cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to open database", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}

	def, err := workflows.Load(cfg.Workflow.DefinitionPath)
	if err != nil {
		logger.Fatal("Failed to load workflow definition", zap.Error(err))
	}
	sm, err := workflows.NewStateMachine(def)
	if err != nil {
		logger.Fatal("Invalid workflow definition", zap.Error(err))
	}
	logger.Info("Workflow loaded", zap.String("name", def.Name), zap.Int("stages", len(def.Stages)))

	var rewriter merge.Rewriter
	if cfg.Rewrite.Endpoint != "" {
		rewriter = rewrite.NewClient(rewrite.Config{
			Endpoint: cfg.Rewrite.Endpoint,
			APIKey:   cfg.Rewrite.APIKey,
			Timeout:  cfg.Rewrite.Timeout,
		}, logger)
	} else {
		logger.Warn("No rewrite endpoint configured, rewrite mode is disabled")
	}

	events := websocket.NewManager(logger)
	defer events.Close()

	documentsService := documents.NewService(
		documents.NewRepository(db),
		audit.NewGormStore(db),
		workflow.NewEngine(sm),
		merge.NewApplier(rewriter),
		events,
		logger,
	)
	documentsHandler := documents.NewHandler(documentsService, events, logger)
	authHandler := auth.NewHandler(sm, logger)
	verifier := auth.NewVerifier(cfg.Security.JWTSecret, cfg.Security.JWTIssuer)

	// Setup Router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	api := router.Group("/api/v1")
	api.Use(verifier.Middleware())
	{
		auth.RegisterRoutes(api, authHandler)
		documentsHandler.RegisterRoutes(api)
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
		})
	})

	srv := &http.Server{
		Addr:         cfg.Server.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("addr", srv.Addr))

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exiting")
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
