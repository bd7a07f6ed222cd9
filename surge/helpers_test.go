package surge

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/not-mt/zapd/errors"
	"github.com/not-mt/zapd/resource"
)

// createTestLogger returns a no-op logger for tests
func createTestLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

// newBenchQueue builds an unlimited queue over a migrated test database
func newBenchQueue(database *sql.DB) *Queue {
	return NewQueue(database, nil, createTestLogger())
}

// newBenchHandler wires a zap handler with a millisecond tick so tests
// burn runtime instantly
func newBenchHandler(t *testing.T, database *sql.DB, q *Queue, kind resource.Kind) *ZapHandler {
	t.Helper()
	repos := resource.NewRepositories()
	repo, err := repos.ByKind(kind)
	if err != nil {
		t.Fatalf("no repository for kind %s: %v", kind, err)
	}
	sessions := resource.NewSessionManager(resource.DBFactory{DB: database}, createTestLogger())
	h := NewZapHandler(database, q, repo, sessions, createTestLogger())
	h.tick = time.Millisecond
	return h
}

// createBenchResource seeds one record and returns its id
func createBenchResource(t *testing.T, database *sql.DB, kind resource.Kind, name string) int64 {
	t.Helper()
	repos := resource.NewRepositories()
	repo, err := repos.ByKind(kind)
	if err != nil {
		t.Fatalf("no repository for kind %s: %v", kind, err)
	}
	rec, err := repo.Create(context.Background(), database, &resource.Record{Name: name})
	if err != nil {
		t.Fatalf("failed to seed %s %q: %v", kind, name, err)
	}
	return rec.ID
}

// benchForce reads the current force on a record
func benchForce(t *testing.T, database *sql.DB, kind resource.Kind, id int64) int64 {
	t.Helper()
	repos := resource.NewRepositories()
	repo, err := repos.ByKind(kind)
	if err != nil {
		t.Fatalf("no repository for kind %s: %v", kind, err)
	}
	rec, err := repo.GetByID(context.Background(), database, id)
	if err != nil {
		t.Fatalf("failed to read %s %d: %v", kind, id, err)
	}
	return rec.Force
}

// waitFor polls cond until it holds or the deadline passes
func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

// drainTasks empties a subscription channel without blocking
func drainTasks(ch chan *Task) []*Task {
	var tasks []*Task
	for {
		select {
		case task := <-ch:
			tasks = append(tasks, task)
		default:
			return tasks
		}
	}
}

// stubHandler is a scriptable handler for registry and worker tests.
// The first failures calls return a retryable error, err overrides
// everything when set.
type stubHandler struct {
	kind     resource.Kind
	mu       sync.Mutex
	calls    int
	failures int
	err      error
}

func (h *stubHandler) Kind() resource.Kind { return h.kind }

func (h *stubHandler) Execute(ctx context.Context, task *Task) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	if h.err != nil {
		return h.err
	}
	if h.calls <= h.failures {
		return errors.New("database glitch")
	}
	return nil
}

func (h *stubHandler) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}
