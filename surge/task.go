// Package surge runs zap tasks asynchronously with dispatch control.
//
// A zap task increments the force of one resource after burning a
// configured runtime. Submission returns immediately with a task UUID;
// workers claim queued tasks, execute them, and retry transient
// failures on a fixed delay until the retry budget is spent. Callers
// observe progress by polling the task record or subscribing to queue
// updates.
package surge

import (
	"time"

	"github.com/google/uuid"

	"github.com/not-mt/zapd/errors"
	"github.com/not-mt/zapd/resource"
)

// State is the caller-visible lifecycle of a zap task. It only moves
// forward: PENDING -> RUNNING -> SUCCESS. There is no failure state; a
// task that exhausts its retry budget keeps its last persisted state.
type State string

const (
	StatePending State = "PENDING"
	StateRunning State = "RUNNING"
	StateSuccess State = "SUCCESS"
)

// IsValidState returns true if the string is a known task state.
func IsValidState(s string) bool {
	switch State(s) {
	case StatePending, StateRunning, StateSuccess:
		return true
	default:
		return false
	}
}

// stateRank orders states for the monotonic advance guard.
func stateRank(s State) int {
	switch s {
	case StatePending:
		return 0
	case StateRunning:
		return 1
	case StateSuccess:
		return 2
	default:
		return -1
	}
}

// Dispatch is the queue-side lifecycle of a zap task, tracked separately
// from State so retries and abandonment never disturb what callers see.
type Dispatch string

const (
	DispatchQueued    Dispatch = "queued"
	DispatchClaimed   Dispatch = "claimed"
	DispatchDone      Dispatch = "done"
	DispatchAbandoned Dispatch = "abandoned"
)

// IsValidDispatch returns true if the string is a known dispatch value.
func IsValidDispatch(s string) bool {
	switch Dispatch(s) {
	case DispatchQueued, DispatchClaimed, DispatchDone, DispatchAbandoned:
		return true
	default:
		return false
	}
}

// DefaultDuration is the runtime in seconds applied when a zap request
// does not specify one.
const DefaultDuration = 10

// Task is one zap task record. Queue bookkeeping (dispatch, attempts,
// claims) and caller-visible status (state, runtime) live on the same
// record so there is a single read path for task status. Bookkeeping
// fields never serialize: pollers see only state advance, and a task
// whose retries run out simply stops advancing.
type Task struct {
	UUID          string        `json:"uuid"`
	ResourceKind  resource.Kind `json:"resource"`
	ResourceID    int64         `json:"id"`
	CorrelationID string        `json:"correlation_id,omitempty"`
	State         State         `json:"state"`
	Duration      int64         `json:"duration"` // Total runtime to burn, in seconds
	Runtime       int64         `json:"runtime"`  // Seconds burned so far, never decreases
	Dispatch      Dispatch      `json:"-"`
	Attempts      int           `json:"-"` // Retries consumed, not total runs
	NextAttemptAt time.Time     `json:"-"`
	ClaimedBy     string        `json:"-"`
	LastError     string        `json:"-"`
	ErrorCode     ErrorCode     `json:"-"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// NewTask creates a queued zap task for one resource.
//
// The task is immediately claimable: NextAttemptAt is set to now. A zero
// duration is valid and means the zap applies without burning runtime.
func NewTask(kind resource.Kind, resourceID int64, duration int64, correlationID string) (*Task, error) {
	if !resource.ValidKind(string(kind)) {
		return nil, errors.NewInvalidRequestError("unknown resource kind: %s", kind)
	}
	if resourceID <= 0 {
		return nil, errors.NewInvalidRequestError("resource id must be positive: %d", resourceID)
	}
	if duration < 0 {
		return nil, errors.NewInvalidRequestError("duration cannot be negative: %d", duration)
	}

	now := time.Now().UTC()
	return &Task{
		UUID:          uuid.NewString(),
		ResourceKind:  kind,
		ResourceID:    resourceID,
		CorrelationID: correlationID,
		State:         StatePending,
		Duration:      duration,
		Runtime:       0,
		Dispatch:      DispatchQueued,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// advanceState moves State forward, ignoring regressions. Retried tasks
// re-enter execution already RUNNING and must stay there.
func (t *Task) advanceState(next State) {
	if stateRank(next) < stateRank(t.State) {
		return
	}
	t.State = next
}

// MarkRunning marks the task as executing.
func (t *Task) MarkRunning() {
	t.advanceState(StateRunning)
	t.UpdatedAt = time.Now().UTC()
}

// Tick records one burned runtime second.
func (t *Task) Tick() {
	t.Runtime++
	t.UpdatedAt = time.Now().UTC()
}

// MarkSuccess marks the task as successfully finished.
func (t *Task) MarkSuccess() {
	t.advanceState(StateSuccess)
	t.UpdatedAt = time.Now().UTC()
}

// MarkDone settles dispatch after a successful run.
func (t *Task) MarkDone() {
	t.Dispatch = DispatchDone
	t.ClaimedBy = ""
	t.UpdatedAt = time.Now().UTC()
}

// ScheduleRetry consumes one retry and puts the task back in the queue,
// claimable after the delay. Runtime already burned stays on the record,
// so the next attempt resumes where this one stopped.
func (t *Task) ScheduleRetry(delay time.Duration, cause error, code ErrorCode) {
	now := time.Now().UTC()
	t.Attempts++
	t.Dispatch = DispatchQueued
	t.NextAttemptAt = now.Add(delay)
	t.ClaimedBy = ""
	if cause != nil {
		t.LastError = cause.Error()
	}
	t.ErrorCode = code
	t.UpdatedAt = now
}

// MarkAbandoned settles dispatch after the retry budget is spent or a
// permanent failure. State is left untouched; callers polling the task
// see it frozen at the last persisted state.
func (t *Task) MarkAbandoned(cause error, code ErrorCode) {
	t.Dispatch = DispatchAbandoned
	t.ClaimedBy = ""
	if cause != nil {
		t.LastError = cause.Error()
	}
	t.ErrorCode = code
	t.UpdatedAt = time.Now().UTC()
}

// Requeue puts a claimed task back in the queue without consuming a
// retry. Used for shutdown interrupts and orphan recovery.
func (t *Task) Requeue() {
	now := time.Now().UTC()
	t.Dispatch = DispatchQueued
	t.NextAttemptAt = now
	t.ClaimedBy = ""
	t.UpdatedAt = now
}

// Terminal returns true once the task reached SUCCESS.
func (t *Task) Terminal() bool {
	return t.State == StateSuccess
}

// Settled returns true once dispatch will not change again.
func (t *Task) Settled() bool {
	return t.Dispatch == DispatchDone || t.Dispatch == DispatchAbandoned
}

// Remaining returns the runtime seconds still to burn.
func (t *Task) Remaining() int64 {
	if t.Runtime >= t.Duration {
		return 0
	}
	return t.Duration - t.Runtime
}

// Progress calculates runtime progress as a percentage (0-100).
func (t *Task) Progress() float64 {
	if t.Duration == 0 {
		if t.Terminal() {
			return 100
		}
		return 0
	}
	return float64(t.Runtime) / float64(t.Duration) * 100
}
