package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"docreview/review-portal/review-portal-backend/internal/audit"
	"docreview/review-portal/review-portal-backend/internal/config"
	"docreview/review-portal/review-portal-backend/internal/database"
	"docreview/review-portal/review-portal-backend/internal/documents"
	"docreview/review-portal/review-portal-backend/internal/integrity"
	"docreview/review-portal/review-portal-backend/internal/logging"
	"docreview/review-portal/review-portal-backend/internal/merge"
	"docreview/review-portal/review-portal-backend/internal/workflow"
	"docreview/review-portal/review-portal-backend/pkg/workflows"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the JSON config file")
	once := flag.Bool("once", false, "run a single verification pass and exit")
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

	def, err := workflows.Load(cfg.Workflow.DefinitionPath)
	if err != nil {
		logger.Fatal("Failed to load workflow definition", zap.Error(err))
	}
	sm, err := workflows.NewStateMachine(def)
	if err != nil {
		logger.Fatal("Invalid workflow definition", zap.Error(err))
	}

	service := documents.NewService(
		documents.NewRepository(db),
		audit.NewGormStore(db),
		workflow.NewEngine(sm),
		merge.NewApplier(nil),
		nil,
		logger,
	)

	workerConfig := integrity.DefaultConfig()
	workerConfig.Schedule = cfg.Integrity.Schedule
	workerConfig.Concurrency = cfg.Integrity.Concurrency
	worker := integrity.NewWorker(service, logger, workerConfig)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *once {
		report, err := worker.RunOnce(ctx)
		if err != nil {
			logger.Fatal("Integrity pass failed", zap.Error(err))
		}
		if len(report.Inconsistent) > 0 {
			os.Exit(2)
		}
		return
	}

	if err := worker.Start(ctx); err != nil {
		logger.Fatal("Failed to start integrity worker", zap.Error(err))
	}
	<-ctx.Done()
	logger.Info("Shutdown signal received")
	worker.Stop()
	logger.Info("Integrity worker stopped")
}
