// Package resource defines the resources zap tasks act on and the
// session discipline for mutating them.
//
// Widgets and gadgets expose the same Repository surface but persist
// differently: widgets as fixed columns, gadgets as JSON documents. Both
// sync HTTP handlers and async task executors go through the same
// repository; the Querier parameter decides whether an operation runs on
// the shared pool or inside a session transaction.
package resource

import (
	"context"
	"database/sql"
	"time"

	"github.com/not-mt/zapd/errors"
)

// Kind names a resource family served by zapd.
type Kind string

const (
	KindWidgets Kind = "widgets"
	KindGadgets Kind = "gadgets"
)

// ValidKind reports whether s names a known resource kind.
func ValidKind(s string) bool {
	switch Kind(s) {
	case KindWidgets, KindGadgets:
		return true
	}
	return false
}

// MaxNameLength mirrors the schema constraint on resource names.
const MaxNameLength = 100

// Record is the shared shape of a widget or gadget.
type Record struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Height    *string   `json:"height"`
	Mass      *string   `json:"mass"`
	Force     int64     `json:"force"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks record fields against schema constraints
func (r *Record) Validate() error {
	if r.Name == "" {
		return errors.NewInvalidRequestError("name cannot be empty")
	}
	if len(r.Name) > MaxNameLength {
		return errors.NewInvalidRequestError("name exceeds %d characters", MaxNameLength)
	}
	return nil
}

// Querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
// Repositories take it as a parameter so the same store code serves
// direct reads and session-scoped mutations.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Repository is the uniform persistence surface over one resource kind.
type Repository interface {
	Kind() Kind

	GetByID(ctx context.Context, q Querier, id int64) (*Record, error)
	List(ctx context.Context, q Querier, limit, offset int) ([]*Record, error)
	Create(ctx context.Context, q Querier, rec *Record) (*Record, error)
	Update(ctx context.Context, q Querier, rec *Record) (*Record, error)
	Delete(ctx context.Context, q Querier, id int64) error

	// IncrementForce applies the zap mutation: force += delta.
	IncrementForce(ctx context.Context, q Querier, id int64, delta int64) error
}

// Repositories routes a kind name to its repository.
type Repositories struct {
	widgets Repository
	gadgets Repository
}

// NewRepositories wires the standard widget and gadget stores.
func NewRepositories() *Repositories {
	return &Repositories{
		widgets: NewWidgetStore(),
		gadgets: NewGadgetStore(),
	}
}

// ByKind returns the repository for a kind, or a not-found error for
// unknown kinds.
func (r *Repositories) ByKind(kind Kind) (Repository, error) {
	switch kind {
	case KindWidgets:
		return r.widgets, nil
	case KindGadgets:
		return r.gadgets, nil
	default:
		return nil, errors.NewNotFoundError("unknown resource kind: %s", kind)
	}
}

// Kinds lists the registered resource kinds.
func (r *Repositories) Kinds() []Kind {
	return []Kind{KindWidgets, KindGadgets}
}
