// Package integrity periodically replays the change history of stored documents and reports
// documents whose content no longer matches it.
package integrity

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"docreview/review-portal/review-portal-backend/internal/documents"
)

// Verifier is the part of the documents service the worker needs.
type Verifier interface {
	ListDocumentIDs(ctx context.Context) ([]string, error)
	VerifyDocument(ctx context.Context, id string) (*documents.VerifyResult, error)
}

// Config configures the integrity worker
type Config struct {
	Schedule    string
	Concurrency int
	RunTimeout  time.Duration
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		Schedule:    "0 */6 * * *",
		Concurrency: 4,
		RunTimeout:  30 * time.Minute,
	}
}

// Report summarizes one verification pass.
type Report struct {
	Checked      int           `json:"checked"`
	Inconsistent []string      `json:"inconsistent"`
	Failed       []string      `json:"failed"`
	Duration     time.Duration `json:"duration"`
}

// Worker schedules verification passes.
type Worker struct {
	verifier Verifier
	logger   *zap.Logger
	config   Config
	cron     *cron.Cron

	mu      sync.Mutex
	running bool
}

// NewWorker creates a new integrity worker
func NewWorker(verifier Verifier, logger *zap.Logger, config Config) *Worker {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if config.RunTimeout <= 0 {
		config.RunTimeout = DefaultConfig().RunTimeout
	}
	return &Worker{
		verifier: verifier,
		logger:   logger,
		config:   config,
		cron:     cron.New(),
	}
}

// RunOnce verifies every stored document. A failure to verify one document does not stop the pass.
func (w *Worker) RunOnce(ctx context.Context) (Report, error) {
	start := time.Now()
	ids, err := w.verifier.ListDocumentIDs(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("failed to list documents: %w", err)
	}

	var (
		mu     sync.Mutex
		report = Report{Checked: len(ids)}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.config.Concurrency)
	for _, id := range ids {
		g.Go(func() error {
			res, err := w.verifier.VerifyDocument(gctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				w.logger.Error("Failed to verify document", zap.String("document_id", id), zap.Error(err))
				report.Failed = append(report.Failed, id)
				return nil
			}
			if !res.Consistent {
				w.logger.Warn("Document content diverges from its change history",
					zap.String("document_id", id),
					zap.Int("changes", res.Changes),
					zap.String("error", res.Error))
				report.Inconsistent = append(report.Inconsistent, id)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}
	if err := ctx.Err(); err != nil {
		return Report{}, fmt.Errorf("verification interrupted: %w", err)
	}

	slices.Sort(report.Inconsistent)
	slices.Sort(report.Failed)
	report.Duration = time.Since(start)
	w.logger.Info("Integrity pass finished",
		zap.Int("checked", report.Checked),
		zap.Int("inconsistent", len(report.Inconsistent)),
		zap.Int("failed", len(report.Failed)),
		zap.Duration("duration", report.Duration))
	return report, nil
}

// Start registers the verification job and starts the scheduler.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("integrity worker already running")
	}

	_, err := w.cron.AddFunc(w.config.Schedule, func() {
		runCtx, cancel := context.WithTimeout(ctx, w.config.RunTimeout)
		defer cancel()
		if _, err := w.RunOnce(runCtx); err != nil {
			w.logger.Error("Integrity pass failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", w.config.Schedule, err)
	}

	w.logger.Info("Starting integrity worker", zap.String("schedule", w.config.Schedule))
	w.cron.Start()
	w.running = true
	return nil
}

// Stop stops the scheduler and waits for a running pass to finish.
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	<-w.cron.Stop().Done()
	w.running = false
}
