package resource

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/not-mt/zapd/errors"
	"github.com/not-mt/zapd/logger"
)

// SessionFactory hands out database sessions. Every Begin call must
// return a fresh transaction; sessions are never reused across
// invocations.
type SessionFactory interface {
	Begin(ctx context.Context) (*sql.Tx, error)
}

// DBFactory opens sessions against a shared connection pool.
type DBFactory struct {
	DB *sql.DB
}

// Begin starts a fresh transaction on the pool
func (f DBFactory) Begin(ctx context.Context) (*sql.Tx, error) {
	return f.DB.BeginTx(ctx, nil)
}

// SessionFn runs inside a session. The transaction it receives is valid
// only for the duration of the call.
type SessionFn func(ctx context.Context, tx *sql.Tx) error

// SessionManager scopes resource mutations to short-lived transactions:
// a fresh session per invocation, committed when the function returns
// nil, rolled back when it returns an error, and always released before
// the error propagates to the caller.
//
// Sync request handlers and async task executors share it, so mutation
// semantics do not depend on which side of the queue the caller is on.
type SessionManager struct {
	factory SessionFactory
	log     *zap.SugaredLogger
}

// NewSessionManager creates a session manager over the given factory
func NewSessionManager(factory SessionFactory, log *zap.SugaredLogger) *SessionManager {
	if log == nil {
		log = logger.Logger
	}
	return &SessionManager{factory: factory, log: log}
}

// WithSession runs fn in a fresh transaction.
//
// Commit happens only when fn returns nil. On error the transaction is
// rolled back and fn's error is returned unchanged; a rollback failure
// is logged but never masks the original error. Panics roll back before
// propagating.
func (m *SessionManager) WithSession(ctx context.Context, fn SessionFn) error {
	tx, err := m.factory.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin session")
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		// Reached on fn error or panic: release the handle first
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			if m.log != nil {
				m.log.Warnw("Session rollback failed", logger.FieldError, rbErr)
			}
		}
	}()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit session")
	}
	committed = true

	return nil
}
