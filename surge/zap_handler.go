package surge

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/not-mt/zapd/errors"
	"github.com/not-mt/zapd/logger"
	"github.com/not-mt/zapd/resource"
	"github.com/not-mt/zapd/sym"
)

// ZapHandler executes zap tasks against one resource repository.
//
// Execution order for a claimed task:
//  1. verify the target resource exists (absence is permanent failure)
//  2. persist RUNNING
//  3. burn runtime one second per tick, persisting after each tick
//  4. apply force += 1 inside a session, guarded by the application
//     marker so retries never double-apply
//  5. persist SUCCESS
//
// Progress persists as it happens, so a retried task resumes from its
// last checkpoint instead of burning the full duration again.
type ZapHandler struct {
	db       *sql.DB
	store    *Store
	queue    *Queue
	repo     resource.Repository
	sessions *resource.SessionManager
	log      *zap.SugaredLogger

	// Wall-clock length of one runtime second; tests shrink it
	tick  time.Duration
	sleep func(time.Duration)
}

// NewZapHandler creates a zap handler for one resource kind.
func NewZapHandler(db *sql.DB, queue *Queue, repo resource.Repository, sessions *resource.SessionManager, log *zap.SugaredLogger) *ZapHandler {
	return &ZapHandler{
		db:       db,
		store:    queue.store,
		queue:    queue,
		repo:     repo,
		sessions: sessions,
		log:      log,
		tick:     time.Second,
		sleep:    time.Sleep,
	}
}

// Kind returns the resource kind this handler serves.
func (h *ZapHandler) Kind() resource.Kind {
	return h.repo.Kind()
}

// Execute runs one zap task to completion. Any persistence failure
// aborts the attempt; the worker decides whether to retry.
func (h *ZapHandler) Execute(ctx context.Context, task *Task) error {
	log := h.log.With(
		logger.FieldTaskID, task.UUID,
		logger.FieldResource, task.ResourceKind,
		logger.FieldResourceID, task.ResourceID,
	)
	if task.CorrelationID != "" {
		log = log.With(logger.FieldRequestID, task.CorrelationID)
	}

	// The zap target must exist before burning any runtime
	if _, err := h.repo.GetByID(ctx, h.db, task.ResourceID); err != nil {
		return errors.Wrapf(err, "failed to load zap target %s/%d", task.ResourceKind, task.ResourceID)
	}

	task.MarkRunning()
	if err := h.queue.SaveProgress(ctx, task); err != nil {
		return err
	}
	log.Infow(sym.Surge+" Zap running",
		logger.FieldDuration, task.Duration,
		logger.FieldRuntime, task.Runtime,
		logger.FieldAttempt, task.Attempts,
	)

	// Burn runtime from the persisted checkpoint up to duration
	for task.Runtime < task.Duration {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		h.sleep(h.tick)
		task.Tick()
		if err := h.queue.SaveProgress(ctx, task); err != nil {
			return err
		}
		log.Debugw(sym.Surge+" Zap tick",
			logger.FieldRuntime, task.Runtime,
			logger.FieldDuration, task.Duration,
		)
	}

	// Apply the mutation inside a session. The marker insert and the
	// force increment share the transaction, so a crash between them is
	// impossible and a retry that finds the marker skips the increment.
	err := h.sessions.WithSession(ctx, func(ctx context.Context, tx *sql.Tx) error {
		first, err := h.store.MarkApplied(ctx, tx, task.UUID)
		if err != nil {
			return err
		}
		if !first {
			log.Infow(sym.Surge + " Zap already applied, skipping force increment")
			return nil
		}
		return h.repo.IncrementForce(ctx, tx, task.ResourceID, 1)
	})
	if err != nil {
		return errors.Wrapf(err, "failed to apply zap to %s/%d", task.ResourceKind, task.ResourceID)
	}

	task.MarkSuccess()
	if err := h.queue.SaveProgress(ctx, task); err != nil {
		return err
	}
	log.Infow(sym.Surge+" Zap complete",
		logger.FieldRuntime, task.Runtime,
		logger.FieldState, task.State,
	)

	return nil
}

// RegisterZapHandlers wires a zap handler for every resource kind onto
// the registry. Call before starting the worker pool.
func RegisterZapHandlers(registry *Registry, db *sql.DB, queue *Queue, repos *resource.Repositories, sessions *resource.SessionManager, log *zap.SugaredLogger) error {
	for _, kind := range repos.Kinds() {
		repo, err := repos.ByKind(kind)
		if err != nil {
			return err
		}
		registry.Register(NewZapHandler(db, queue, repo, sessions, log))
	}
	return nil
}
