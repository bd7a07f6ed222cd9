package surge

import (
	"strings"

	"github.com/not-mt/zapd/db"
	"github.com/not-mt/zapd/errors"
)

// ErrorCode represents the classification of a task failure
type ErrorCode string

const (
	ErrorCodeResourceNotFound ErrorCode = "resource_not_found"
	ErrorCodeValidation       ErrorCode = "validation_error"
	ErrorCodeStoreError       ErrorCode = "store_error"
	ErrorCodeDatabaseBusy     ErrorCode = "database_busy"
	ErrorCodeTimeout          ErrorCode = "timeout"
	ErrorCodeUnknown          ErrorCode = "unknown"
)

// ErrorContext provides structured error information for task failures.
// Retryable decides whether the worker consumes a retry or abandons the
// task outright.
type ErrorContext struct {
	Stage     string    // Where the error occurred
	Code      ErrorCode // Error classification
	Message   string    // Human-readable message
	Retryable bool      // Can the task be retried?
}

// ClassifyError categorizes a task failure based on sentinel errors and
// message patterns. Sentinels win over patterns.
func ClassifyError(stage string, err error) ErrorContext {
	if err == nil {
		return ErrorContext{
			Stage:     stage,
			Code:      ErrorCodeUnknown,
			Message:   "unknown error",
			Retryable: false,
		}
	}

	errMsg := err.Error()
	errLower := strings.ToLower(errMsg)

	ctx := ErrorContext{
		Stage:   stage,
		Message: errMsg,
	}

	switch {
	case errors.IsNotFoundError(err):
		// The zap target is gone; retrying cannot bring it back
		ctx.Code = ErrorCodeResourceNotFound
		ctx.Retryable = false

	case errors.IsInvalidRequestError(err):
		ctx.Code = ErrorCodeValidation
		ctx.Retryable = false

	case db.IsBusy(err):
		ctx.Code = ErrorCodeDatabaseBusy
		ctx.Retryable = true

	case errors.IsStoreUnavailableError(err) || db.IsDatabaseClosed(err):
		ctx.Code = ErrorCodeStoreError
		ctx.Retryable = true

	case strings.Contains(errLower, "database") || strings.Contains(errLower, "sql"):
		ctx.Code = ErrorCodeStoreError
		ctx.Retryable = true

	case strings.Contains(errLower, "deadline exceeded") || strings.Contains(errLower, "timed out") || strings.Contains(errLower, "timeout"):
		ctx.Code = ErrorCodeTimeout
		ctx.Retryable = true

	case strings.Contains(errLower, "validation") || strings.Contains(errLower, "invalid"):
		ctx.Code = ErrorCodeValidation
		ctx.Retryable = false

	default:
		ctx.Code = ErrorCodeUnknown
		ctx.Retryable = true
	}

	return ctx
}
