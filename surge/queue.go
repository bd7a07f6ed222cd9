package surge

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/not-mt/zapd/errors"
	"github.com/not-mt/zapd/logger"
	"github.com/not-mt/zapd/resource"
	"github.com/not-mt/zapd/sym"
)

const (
	// MaxTasksLimit is the ceiling for unbounded task listings
	MaxTasksLimit = 10000
	// SubscriberChannelBufferSize is the buffer size for subscriber channels
	SubscriberChannelBufferSize = 100
)

// Queue accepts zap tasks and fans out record updates to subscribers.
// Every task write flows through the queue so subscribers see the full
// lifecycle: enqueued, progress ticks, retries, settlement.
type Queue struct {
	store       *Store
	limiter     *Limiter // Dispatch budget, nil means unlimited
	log         *zap.SugaredLogger
	mu          sync.RWMutex
	subscribers []chan *Task
}

// NewQueue creates a zap task queue. The limiter may be nil to disable
// the dispatch budget.
func NewQueue(db *sql.DB, limiter *Limiter, log *zap.SugaredLogger) *Queue {
	return &Queue{
		store:       NewStore(db),
		limiter:     limiter,
		log:         log,
		subscribers: make([]chan *Task, 0),
	}
}

// Enqueue validates and persists a new zap task, returning it
// immediately. Execution happens later on a worker; the caller keeps
// only the UUID and polls for progress.
//
// Returns an error marked ErrOverBudget when the dispatch budget is
// exhausted.
func (q *Queue) Enqueue(ctx context.Context, task *Task) (*Task, error) {
	if q.limiter != nil {
		if err := q.limiter.Allow(); err != nil {
			return nil, err
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.store.Insert(ctx, task); err != nil {
		err = errors.Wrap(err, "failed to enqueue zap task")
		err = errors.WithDetail(err, fmt.Sprintf("Task UUID: %s", task.UUID))
		err = errors.WithDetail(err, fmt.Sprintf("Resource: %s/%d", task.ResourceKind, task.ResourceID))
		return nil, err
	}

	if q.log != nil {
		q.log.Infow(sym.Surge+" Zap task enqueued",
			logger.FieldTaskID, task.UUID,
			logger.FieldResource, task.ResourceKind,
			logger.FieldResourceID, task.ResourceID,
			logger.FieldDuration, task.Duration,
		)
	}

	q.notifySubscribers(task)

	return task, nil
}

// Get retrieves a task by UUID
func (q *Queue) Get(ctx context.Context, taskUUID string) (*Task, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return q.store.Get(ctx, taskUUID)
}

// GetForResource retrieves a task by UUID scoped to one resource. This
// is the status poll path: a UUID queried under the wrong resource reads
// as not found.
func (q *Queue) GetForResource(ctx context.Context, kind resource.Kind, resourceID int64, taskUUID string) (*Task, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return q.store.GetForResource(ctx, kind, resourceID, taskUUID)
}

// ListForResource returns the zap history of one resource, newest first
func (q *Queue) ListForResource(ctx context.Context, kind resource.Kind, resourceID int64, limit int) ([]*Task, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if limit <= 0 || limit > MaxTasksLimit {
		limit = MaxTasksLimit
	}
	return q.store.ListForResource(ctx, kind, resourceID, limit)
}

// List returns tasks newest first, optionally filtered by dispatch
func (q *Queue) List(ctx context.Context, dispatch *Dispatch, limit int) ([]*Task, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if limit <= 0 || limit > MaxTasksLimit {
		limit = MaxTasksLimit
	}
	return q.store.List(ctx, dispatch, limit)
}

// SaveProgress persists the task's current state and runtime and
// notifies subscribers. Executors call this once per lifecycle change.
func (q *Queue) SaveProgress(ctx context.Context, task *Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.store.Update(ctx, task); err != nil {
		err = errors.Wrap(err, "failed to save zap task progress")
		err = errors.WithDetail(err, fmt.Sprintf("Task UUID: %s", task.UUID))
		return err
	}

	q.notifySubscribers(task)

	return nil
}

// Complete settles dispatch for a successfully executed task
func (q *Queue) Complete(ctx context.Context, task *Task) error {
	task.MarkDone()

	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.store.Update(ctx, task); err != nil {
		err = errors.Wrap(err, "failed to complete zap task")
		err = errors.WithDetail(err, fmt.Sprintf("Task UUID: %s", task.UUID))
		return err
	}

	q.notifySubscribers(task)

	return nil
}

// Release consumes one retry and re-queues the task, claimable after
// the delay. Runtime already persisted survives, so the next attempt
// resumes from the checkpoint.
func (q *Queue) Release(ctx context.Context, task *Task, delay time.Duration, cause error, code ErrorCode) error {
	task.ScheduleRetry(delay, cause, code)

	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.store.Update(ctx, task); err != nil {
		err = errors.Wrap(err, "failed to release zap task for retry")
		err = errors.WithDetail(err, fmt.Sprintf("Task UUID: %s", task.UUID))
		err = errors.WithDetail(err, fmt.Sprintf("Attempt: %d", task.Attempts))
		return err
	}

	q.notifySubscribers(task)

	return nil
}

// Abandon settles dispatch for a task that spent its retry budget or
// failed permanently. The caller-visible state is left untouched; the
// submitter is never notified.
func (q *Queue) Abandon(ctx context.Context, task *Task, cause error, code ErrorCode) error {
	task.MarkAbandoned(cause, code)

	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.store.Update(ctx, task); err != nil {
		err = errors.Wrap(err, "failed to abandon zap task")
		err = errors.WithDetail(err, fmt.Sprintf("Task UUID: %s", task.UUID))
		return err
	}

	q.notifySubscribers(task)

	return nil
}

// Requeue puts a claimed task back in the queue without consuming a
// retry. Used for shutdown interrupts and orphan recovery.
func (q *Queue) Requeue(ctx context.Context, task *Task) error {
	task.Requeue()

	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.store.Update(ctx, task); err != nil {
		err = errors.Wrap(err, "failed to requeue zap task")
		err = errors.WithDetail(err, fmt.Sprintf("Task UUID: %s", task.UUID))
		return err
	}

	q.notifySubscribers(task)

	return nil
}

// Stats returns task counts per dispatch value
func (q *Queue) Stats(ctx context.Context) (*Stats, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return q.store.CountByDispatch(ctx)
}

// Limiter returns the dispatch budget limiter, or nil if unlimited
func (q *Queue) Limiter() *Limiter {
	return q.limiter
}

// Subscribe returns a channel that receives task updates.
// The caller is responsible for calling Unsubscribe when done.
// The returned channel is buffered to prevent blocking the notifier.
func (q *Queue) Subscribe() chan *Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	ch := make(chan *Task, SubscriberChannelBufferSize)
	q.subscribers = append(q.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscriber channel from the queue.
// The channel is NOT closed by this method - callers should close it
// themselves after unsubscribing if needed. This prevents double-close
// panics.
func (q *Queue) Unsubscribe(ch chan *Task) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, sub := range q.subscribers {
		if sub == ch {
			// Remove from slice without closing - caller manages channel lifecycle
			q.subscribers = append(q.subscribers[:i], q.subscribers[i+1:]...)
			return
		}
	}
}

// notifySubscribers sends a snapshot of the task to all subscribers.
// REQUIRES: q.mu must be held by caller (either Lock or RLock).
// Uses non-blocking send to avoid stalling if a subscriber is slow.
func (q *Queue) notifySubscribers(task *Task) {
	// Snapshot so subscribers never observe later mutations
	snapshot := *task
	for _, ch := range q.subscribers {
		select {
		case ch <- &snapshot:
			// Sent successfully
		default:
			// Channel full, skip (non-blocking)
		}
	}
}
