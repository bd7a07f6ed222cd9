package surge

import (
	"context"
	"fmt"
	"sync"

	"github.com/not-mt/zapd/errors"
	"github.com/not-mt/zapd/resource"
)

// Handler executes zap tasks for one resource kind. Resource packages
// provide implementations; the worker pool routes claimed tasks to the
// handler registered for the task's kind without knowing how the
// mutation is applied.
type Handler interface {
	// Execute runs the task to completion or returns the failure.
	//
	// Context cancellation: handlers MUST check ctx.Done() between
	// runtime ticks and exit with their checkpoint persisted when
	// cancelled.
	Execute(ctx context.Context, task *Task) error

	// Kind returns the resource kind this handler serves.
	Kind() resource.Kind
}

// Registry manages zap handlers by resource kind.
// Thread-safe for concurrent handler registration and lookup.
type Registry struct {
	handlers map[resource.Kind]Handler
	mu       sync.RWMutex
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[resource.Kind]Handler),
	}
}

// Register adds a handler under its resource kind.
// Panics if a handler is already registered for that kind.
func (r *Registry) Register(handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kind := handler.Kind()
	if _, exists := r.handlers[kind]; exists {
		panic(fmt.Sprintf("handler already registered for resource kind: %s", kind))
	}
	r.handlers[kind] = handler
}

// Get retrieves the handler for a resource kind.
// Returns nil if no handler is registered.
func (r *Registry) Get(kind resource.Kind) Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[kind]
}

// Has checks if a handler is registered for a kind.
func (r *Registry) Has(kind resource.Kind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.handlers[kind]
	return exists
}

// Kinds returns all registered resource kinds.
func (r *Registry) Kinds() []resource.Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]resource.Kind, 0, len(r.handlers))
	for kind := range r.handlers {
		kinds = append(kinds, kind)
	}
	return kinds
}

// Executor runs one claimed task. The worker pool depends on this
// abstraction rather than on concrete handlers.
type Executor interface {
	Execute(ctx context.Context, task *Task) error
}

// RegistryExecutor adapts a Registry to the Executor interface by
// dispatching on the task's resource kind.
type RegistryExecutor struct {
	registry *Registry
}

// NewRegistryExecutor creates an executor backed by a handler registry.
func NewRegistryExecutor(registry *Registry) *RegistryExecutor {
	return &RegistryExecutor{registry: registry}
}

// Execute implements Executor by dispatching to registered handlers.
func (e *RegistryExecutor) Execute(ctx context.Context, task *Task) error {
	if task.ResourceKind == "" {
		return errors.New("zap task missing resource kind")
	}

	handler := e.registry.Get(task.ResourceKind)
	if handler == nil {
		return errors.Newf("no handler registered for resource kind: %s", task.ResourceKind)
	}

	return handler.Execute(ctx, task)
}
