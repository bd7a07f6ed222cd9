package surge

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/not-mt/zapd/config"
	"github.com/not-mt/zapd/db"
	"github.com/not-mt/zapd/errors"
	"github.com/not-mt/zapd/logger"
	"github.com/not-mt/zapd/sym"
)

const (
	// MaxOrphanRecovery limits how many orphaned tasks are re-queued on
	// startup to prevent overwhelming the system after a crash
	MaxOrphanRecovery = 1000

	// SettledRetention is how long done and abandoned tasks stay pollable
	// before the janitor removes them
	SettledRetention = 24 * time.Hour

	// PruneInterval is how often the janitor sweeps settled tasks
	PruneInterval = time.Hour
)

// surgeLogger wraps zap.SugaredLogger with special methods for surge
// lifecycle operations. Uses different log levels to create visual
// distinction:
// - DEBUG level -> STARTING (✿ Opening operations)
// - WARN level -> CLOSING (❀ Closing operations)
// - INFO level -> SURGE (general worker operations)
type surgeLogger struct {
	*zap.SugaredLogger
}

// Starting logs an Opening (✿) event - uses DEBUG level for "STARTING" appearance
func (l surgeLogger) Starting(msg string, keysAndValues ...interface{}) {
	l.Debugw(sym.SurgeOpen+" "+msg, keysAndValues...)
}

// Closing logs a Closing (❀) event - uses WARN level for "CLOSING" appearance
func (l surgeLogger) Closing(msg string, keysAndValues ...interface{}) {
	l.Warnw(sym.SurgeClose+" "+msg, keysAndValues...)
}

// Surge logs general worker operations - uses INFO level
func (l surgeLogger) Surge(msg string, keysAndValues ...interface{}) {
	l.Infow(sym.Surge+" "+msg, keysAndValues...)
}

// PoolConfig contains configuration for the worker pool
type PoolConfig struct {
	Workers      int           `json:"workers"`       // Number of concurrent task workers
	TickInterval time.Duration `json:"tick_interval"` // How often each worker polls for claimable tasks

	// Retry policy: MaxRetries counts retries, not attempts. A task runs
	// at most MaxRetries+1 times before it is abandoned.
	MaxRetries int           `json:"max_retries"`
	RetryDelay time.Duration `json:"retry_delay"`

	// Workers stop claiming while system memory usage is above this
	// percentage. Zero disables the guard.
	MemoryHighWaterPct float64 `json:"memory_high_water_pct"`
}

// DefaultPoolConfig returns sensible defaults
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Workers:      2,
		TickInterval: time.Second,
		MaxRetries:   3,
		RetryDelay:   5 * time.Second,
	}
}

// PoolConfigFrom maps the surge section of the zapd configuration onto
// a pool configuration.
func PoolConfigFrom(cfg *config.SurgeConfig) PoolConfig {
	poolCfg := DefaultPoolConfig()
	if cfg == nil {
		return poolCfg
	}

	if cfg.Workers > 0 {
		poolCfg.Workers = cfg.Workers
	}
	poolCfg.TickInterval = cfg.TickInterval()
	if cfg.MaxRetries >= 0 {
		poolCfg.MaxRetries = cfg.MaxRetries
	}
	poolCfg.RetryDelay = cfg.RetryDelay()
	poolCfg.MemoryHighWaterPct = cfg.MemoryHighWaterPct
	return poolCfg
}

// WorkerPool manages a pool of workers that claim and execute zap tasks
type WorkerPool struct {
	queue          *Queue
	poolCfg        PoolConfig
	workers        int
	instance       string          // Claim tag, survives on orphaned rows for diagnostics
	parentCtx      context.Context // Parent context from which worker context is derived
	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup
	executor       Executor
	registry       *Registry
	tasksProcessed int
	activeWorkers  int // Workers currently executing tasks
	startTime      time.Time
	logger         surgeLogger
	mu             sync.Mutex
}

// NewWorkerPool creates a worker pool with an empty handler registry.
// IMPORTANT: Callers must register handlers before calling Start().
//
// The pool derives its context from the parent so server shutdown
// cancels in-flight tasks; workers persist their checkpoint and
// re-queue the task before exiting.
func NewWorkerPool(ctx context.Context, queue *Queue, poolCfg PoolConfig, log *zap.SugaredLogger) *WorkerPool {
	if poolCfg.Workers < 1 {
		poolCfg.Workers = 1
	}
	if poolCfg.TickInterval <= 0 {
		poolCfg.TickInterval = time.Second
	}
	if poolCfg.MaxRetries < 0 {
		poolCfg.MaxRetries = 0
	}

	// Child context so the pool can be stopped independently while
	// parent cancellation still propagates
	workerCtx, cancel := context.WithCancel(ctx)

	registry := NewRegistry()

	return &WorkerPool{
		queue:     queue,
		poolCfg:   poolCfg,
		workers:   poolCfg.Workers,
		instance:  fmt.Sprintf("zapd-%d", os.Getpid()),
		parentCtx: ctx,
		ctx:       workerCtx,
		cancel:    cancel,
		executor:  NewRegistryExecutor(registry),
		registry:  registry,
		logger:    surgeLogger{log.Named("surge")},
	}
}

// Start begins claiming and executing tasks.
// ✿ Opening: Recover orphaned tasks before starting workers
func (wp *WorkerPool) Start() {
	wp.mu.Lock()

	// Check if context was cancelled (after Stop()) - if so, create a new
	// one. This must happen BEFORE spawning workers to avoid races
	select {
	case <-wp.ctx.Done():
		wp.ctx, wp.cancel = context.WithCancel(wp.parentCtx)
		wp.logger.Starting("Recreated worker context after previous shutdown")
	default:
		// Context still active
	}

	wp.startTime = time.Now()
	wp.tasksProcessed = 0
	wp.mu.Unlock()

	// ✿ Opening: re-queue tasks left claimed by a crashed run
	if err := wp.recoverOrphanedTasks(); err != nil {
		wp.logger.SugaredLogger.Warnw("Failed to recover orphaned tasks", logger.FieldError, err)
		// Continue starting workers even if recovery fails
	}

	// Warn early when the memory guard would already hold workers back
	if warning := wp.checkMemoryPressure(); warning != "" {
		wp.logger.SugaredLogger.Warnw("Memory pressure warning", "warning", warning, logger.FieldCount, wp.workers)
	}

	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}

	wp.wg.Add(1)
	go wp.janitor()

	wp.logger.Surge("Worker pool started",
		logger.FieldCount, wp.workers,
		"tick_interval", wp.poolCfg.TickInterval,
		"max_retries", wp.poolCfg.MaxRetries,
	)
}

// janitor prunes settled tasks so zap_tasks cannot grow without bound.
// Poll history stays available for SettledRetention after settlement.
func (wp *WorkerPool) janitor() {
	defer wp.wg.Done()

	ticker := time.NewTicker(PruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-wp.ctx.Done():
			return
		case <-ticker.C:
			removed, err := wp.queue.store.PruneSettled(wp.ctx, SettledRetention)
			if err != nil {
				if db.IsDatabaseClosed(err) {
					return
				}
				wp.logger.SugaredLogger.Warnw("Failed to prune settled zap tasks", logger.FieldError, err)
				continue
			}
			if removed > 0 {
				wp.logger.SugaredLogger.Infow(sym.DB+" Pruned settled zap tasks", logger.FieldCount, removed)
			}
		}
	}
}

// recoverOrphanedTasks re-queues tasks stuck in the claimed dispatch.
// This handles ungraceful shutdowns (crash, kill -9, power loss): the
// claimant is gone, nothing will ever finish those tasks. Runtime
// checkpoints survive, so recovered tasks resume where they stopped and
// the application marker keeps their mutation exactly-once.
func (wp *WorkerPool) recoverOrphanedTasks() error {
	orphans, err := wp.queue.store.ListOrphans(wp.ctx, MaxOrphanRecovery)
	if err != nil {
		return errors.Wrap(err, "failed to list orphaned tasks")
	}

	if len(orphans) == 0 {
		return nil
	}

	wp.logger.Starting("Opening - found tasks orphaned by previous shutdown", logger.FieldCount, len(orphans))

	recovered := 0
	for _, task := range orphans {
		if err := wp.queue.Requeue(wp.ctx, task); err != nil {
			wp.logger.SugaredLogger.Warnw("Failed to requeue orphaned task",
				logger.FieldTaskID, task.UUID,
				logger.FieldError, err)
			continue
		}
		recovered++
		wp.logger.Starting("Recovered orphaned task",
			logger.FieldTaskID, task.UUID,
			logger.FieldRuntime, task.Runtime,
			logger.FieldDuration, task.Duration)
	}

	wp.logger.Starting("Orphan recovery complete", logger.FieldCount, recovered, "total", len(orphans))
	return nil
}

// Stop gracefully stops the worker pool.
// ❀ Closing: Workers persist their checkpoint and exit on context
// cancellation. Uses a 30-second timeout so a stuck task cannot block
// shutdown indefinitely.
func (wp *WorkerPool) Stop() {
	wp.cancel()

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	timeout := 30 * time.Second
	select {
	case <-done:
		wp.logger.Surge("WorkerPool.Stop() complete - all workers exited cleanly")
	case <-time.After(timeout):
		wp.logger.Closing("WorkerPool.Stop() timeout - workers may still be checkpointing", "timeout", timeout)
		// Workers finish checkpointing in the background; returning here
		// keeps shutdown from blocking
	}
}

// worker claims and executes tasks until the pool context is cancelled
func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	claimant := fmt.Sprintf("%s/worker-%d", wp.instance, id)

	ticker := time.NewTicker(wp.poolCfg.TickInterval)
	defer ticker.Stop()

	// Error backoff state
	errorCount := 0
	const maxConsecutiveErrors = 5
	backoffDuration := time.Second
	const maxBackoff = 30 * time.Second

	for {
		select {
		case <-wp.ctx.Done():
			return
		case <-ticker.C:
			if err := wp.processNextTask(claimant); err != nil {
				// Check if the error is shutdown noise before treating it
				// as a real failure
				select {
				case <-wp.ctx.Done():
					// Context cancelled - exit silently without logging
					return
				default:
					if errors.Is(err, sql.ErrConnDone) || db.IsDatabaseClosed(err) {
						// Database closed during shutdown - exit silently
						return
					}

					errorCount++
					wp.logger.SugaredLogger.Errorw("Worker error processing task",
						logger.FieldWorker, id,
						logger.FieldError, err,
						"consecutive_errors", errorCount)

					// Apply exponential backoff after multiple consecutive errors
					if errorCount >= maxConsecutiveErrors {
						wp.logger.SugaredLogger.Warnw("Worker backing off due to consecutive errors",
							logger.FieldWorker, id,
							"backoff", backoffDuration,
							"consecutive_errors", errorCount)
						time.Sleep(backoffDuration)
						backoffDuration = min(backoffDuration*2, maxBackoff)
					}
				}
			} else {
				// Success - reset error backoff
				if errorCount > 0 {
					wp.logger.SugaredLogger.Infow("Worker recovered from errors",
						logger.FieldWorker, id,
						"previous_error_count", errorCount)
				}
				errorCount = 0
				backoffDuration = time.Second
			}
		}
	}
}

// processNextTask claims the next due task and executes it
func (wp *WorkerPool) processNextTask(claimant string) error {
	select {
	case <-wp.ctx.Done():
		return nil // Graceful shutdown - don't claim new tasks
	default:
	}

	// Hold back while the memory guard is tripped; queued tasks wait
	if !wp.memoryOK() {
		wp.logger.SugaredLogger.Debugw("Memory above high water, deferring claim",
			"high_water_pct", wp.poolCfg.MemoryHighWaterPct)
		return nil
	}

	task, err := wp.queue.store.Claim(wp.ctx, claimant)
	if err != nil {
		return errors.Wrap(err, "failed to claim zap task")
	}
	if task == nil {
		// Nothing claimable
		return nil
	}

	wp.mu.Lock()
	wp.tasksProcessed++
	wp.activeWorkers++
	wp.mu.Unlock()
	defer func() {
		wp.mu.Lock()
		wp.activeWorkers--
		wp.mu.Unlock()
	}()

	if err := wp.executor.Execute(wp.ctx, task); err != nil {
		// ❀ Closing: interrupted tasks go back in the queue with their
		// checkpoint; they are not failures
		select {
		case <-wp.ctx.Done():
			wp.logger.Closing("Task interrupted by shutdown, re-queuing with checkpoint",
				logger.FieldTaskID, task.UUID,
				logger.FieldRuntime, task.Runtime)

			// The pool context is already cancelled; the checkpoint write
			// gets its own short deadline
			requeueCtx, cancelRequeue := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelRequeue()
			if requeueErr := wp.queue.Requeue(requeueCtx, task); requeueErr != nil {
				wp.logger.SugaredLogger.Errorw("Failed to re-queue interrupted task",
					logger.FieldTaskID, task.UUID,
					logger.FieldError, requeueErr)
			}
			return nil
		default:
			return wp.settleFailure(task, err)
		}
	}

	return wp.queue.Complete(wp.ctx, task)
}

// settleFailure decides between retry and abandonment for a failed task
func (wp *WorkerPool) settleFailure(task *Task, taskErr error) error {
	errCtx := ClassifyError("zap", taskErr)

	log := wp.logger.SugaredLogger.With(
		logger.FieldTaskID, task.UUID,
		logger.FieldResource, task.ResourceKind,
		logger.FieldResourceID, task.ResourceID,
		logger.FieldErrorCode, string(errCtx.Code),
	)

	if !errCtx.Retryable {
		log.Warnw("꩜ Permanent failure - abandoning zap task",
			logger.FieldAttempt, task.Attempts,
			logger.FieldError, taskErr)
		if err := wp.queue.Abandon(wp.ctx, task, taskErr, errCtx.Code); err != nil {
			return errors.Wrap(err, "failed to abandon zap task")
		}
		return nil
	}

	if task.Attempts >= wp.poolCfg.MaxRetries {
		log.Warnw("꩜ Retry budget spent - abandoning zap task",
			logger.FieldAttempt, task.Attempts,
			"max_retries", wp.poolCfg.MaxRetries,
			logger.FieldError, taskErr)
		if err := wp.queue.Abandon(wp.ctx, task, taskErr, errCtx.Code); err != nil {
			return errors.Wrap(err, "failed to abandon zap task")
		}
		return nil
	}

	if err := wp.queue.Release(wp.ctx, task, wp.poolCfg.RetryDelay, taskErr, errCtx.Code); err != nil {
		return errors.Wrap(err, "failed to release zap task for retry")
	}
	log.Infow("꩜ Retry scheduled",
		logger.FieldAttempt, task.Attempts,
		"max_retries", wp.poolCfg.MaxRetries,
		"delay", wp.poolCfg.RetryDelay,
		logger.FieldError, taskErr)
	return nil
}

// GetQueue returns the task queue (useful for enqueuing tasks)
func (wp *WorkerPool) GetQueue() *Queue {
	return wp.queue
}

// Workers returns the number of concurrent workers configured for this pool
func (wp *WorkerPool) Workers() int {
	return wp.workers
}

// Registry returns the handler registry for registering zap handlers.
// Use this to register handlers before calling Start():
//
//	pool := surge.NewWorkerPool(ctx, queue, poolCfg, log)
//	surge.RegisterZapHandlers(pool.Registry(), db, queue, repos, sessions, log)
//	pool.Start()
func (wp *WorkerPool) Registry() *Registry {
	return wp.registry
}
