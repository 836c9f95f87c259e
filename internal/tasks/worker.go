package tasks

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/justmadeid/social-services/internal/logging"
	"github.com/justmadeid/social-services/internal/scraper"
)

const (
	messageInitializing = "Initializing scraper"
	purgeInterval       = 10 * time.Minute
)

// Worker processes queued tasks.
type Worker struct {
	store        *SQLiteStore
	runner       *Runner
	pollInterval time.Duration
	concurrency  int
	resultTTL    time.Duration
	active       atomic.Int32
	stop         chan struct{}
	wg           sync.WaitGroup
	logger       *slog.Logger
}

// Config holds worker configuration.
type Config struct {
	PollInterval time.Duration
	Concurrency  int
	// ResultTTL is how long finished tasks are kept. Zero keeps them forever.
	ResultTTL time.Duration
}

// NewWorker creates a new worker.
func NewWorker(store *SQLiteStore, runner *Runner, cfg Config, logger *slog.Logger) *Worker {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 2
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		store:        store,
		runner:       runner,
		pollInterval: cfg.PollInterval,
		concurrency:  cfg.Concurrency,
		resultTTL:    cfg.ResultTTL,
		stop:         make(chan struct{}),
		logger:       logger.With("component", "worker"),
	}
}

// Start begins processing tasks.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("starting", "concurrency", w.concurrency)

	if n, err := w.store.FailInterrupted(ctx); err != nil {
		w.logger.Error("failed to recover interrupted tasks", "error", err)
	} else if n > 0 {
		w.logger.Warn("marked interrupted tasks as failed", "count", n)
	}

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.runWorker(ctx, i)
	}
	if w.resultTTL > 0 {
		w.wg.Add(1)
		go w.runJanitor(ctx)
	}
}

// Stop gracefully stops the worker, waiting for running tasks.
func (w *Worker) Stop() {
	w.logger.Info("stopping")
	close(w.stop)
	w.wg.Wait()
	w.logger.Info("stopped")
}

// Active returns the number of tasks running right now.
func (w *Worker) Active() int {
	return int(w.active.Load())
}

func (w *Worker) runWorker(ctx context.Context, workerID int) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Drain the queue before waiting for the next tick.
			for w.processNextTask(ctx, workerID) {
				select {
				case <-w.stop:
					return
				default:
				}
			}
		}
	}
}

func (w *Worker) runJanitor(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.purge(ctx)
		}
	}
}

func (w *Worker) purge(ctx context.Context) {
	n, err := w.store.PurgeFinished(ctx, time.Now().Add(-w.resultTTL))
	if err != nil {
		w.logger.Error("failed to purge finished tasks", "error", err)
		return
	}
	if n > 0 {
		w.logger.Info("purged finished tasks", "count", n)
	}
}

// processNextTask claims and runs one task. It reports whether a task was found.
func (w *Worker) processNextTask(ctx context.Context, workerID int) bool {
	task, err := w.store.ClaimPending(ctx, messageInitializing)
	if err != nil {
		w.logger.Error("failed to claim task", "worker_id", workerID, "error", err)
		return false
	}
	if task == nil {
		return false
	}

	w.active.Add(1)
	defer w.active.Add(-1)

	ctx = logging.WithTaskID(ctx, task.ID)
	logger := logging.FromContext(ctx, w.logger)
	logger.Info("processing task", "worker_id", workerID, "operation", task.Operation)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	progress := func(p int, msg string) {
		ok, err := w.store.UpdateProgress(ctx, task.ID, p, msg)
		if err != nil {
			logger.Warn("failed to update progress", "error", err)
			return
		}
		if !ok {
			logger.Info("task revoked while running, cancelling")
			cancel()
		}
	}

	start := time.Now()
	outcome, err := w.runner.Run(runCtx, task.Operation, task.Params, progress)
	elapsed := time.Since(start).Seconds()

	entry := &ScrapeLog{
		TaskID:        task.ID,
		Operation:     task.Operation,
		Parameters:    string(task.Params),
		ExecutionTime: elapsed,
	}
	// The outcome is recorded even when the worker is being cancelled.
	recordCtx := context.WithoutCancel(ctx)
	if err != nil {
		w.failTask(recordCtx, task, err, entry)
	} else {
		w.completeTask(recordCtx, task, outcome, entry)
	}

	if err := w.store.InsertScrapeLog(recordCtx, entry); err != nil {
		logger.Warn("failed to write scrape log", "error", err)
	}
	return true
}

func (w *Worker) completeTask(ctx context.Context, task *Task, outcome *Outcome, entry *ScrapeLog) {
	logger := logging.FromContext(ctx, w.logger)

	data, err := json.Marshal(outcome.Result)
	if err != nil {
		w.failTask(ctx, task, err, entry)
		return
	}
	entry.ResultSize = outcome.Size

	ok, err := w.store.Complete(ctx, task.ID, data, outcome.Summary)
	if err != nil {
		logger.Error("failed to update task", "error", err)
		entry.Status = StatusFailure
		entry.ErrorMessage = err.Error()
		return
	}
	if !ok {
		logger.Info("task revoked, result discarded")
		entry.Status = StatusRevoked
		return
	}
	entry.Status = StatusSuccess
	logger.Info("completed task", "summary", outcome.Summary, "duration_seconds", entry.ExecutionTime)
}

func (w *Worker) failTask(ctx context.Context, task *Task, cause error, entry *ScrapeLog) {
	logger := logging.FromContext(ctx, w.logger)
	kind := scraper.KindOf(cause)

	entry.Status = StatusFailure
	entry.ErrorMessage = cause.Error()

	ok, err := w.store.Fail(ctx, task.ID, string(kind), cause.Error())
	if err != nil {
		logger.Error("failed to update task", "error", err)
		return
	}
	if !ok {
		entry.Status = StatusRevoked
		return
	}
	logger.Error("task failed", "error_type", kind, "error", cause)
}
