package logger

import (
	"github.com/not-mt/zapd/sym"
	"go.uber.org/zap"
)

// Symbol-aware logging helpers.
// These functions log with the symbol as a structured field, not in the message.
//
// Usage:
//
//	// Instead of:
//	logger.Infow(sym.Surge + " Task started", "task_id", id)
//
//	// Use:
//	logger.SurgeInfow("Task started", "task_id", id)
//
// This makes logs queryable by symbol and keeps messages clean.

// SurgeInfow logs an info message with the Surge symbol (⚡)
func SurgeInfow(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, sym.Surge}, keysAndValues...)
		Logger.Infow(msg, fields...)
	}
}

// SurgeDebugw logs a debug message with the Surge symbol (⚡)
func SurgeDebugw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, sym.Surge}, keysAndValues...)
		Logger.Debugw(msg, fields...)
	}
}

// SurgeWarnw logs a warning message with the Surge symbol (⚡)
func SurgeWarnw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, sym.Surge}, keysAndValues...)
		Logger.Warnw(msg, fields...)
	}
}

// SurgeErrorw logs an error message with the Surge symbol (⚡)
func SurgeErrorw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, sym.Surge}, keysAndValues...)
		Logger.Errorw(msg, fields...)
	}
}

// SurgeOpenInfow logs an info message with the SurgeOpen symbol (✿)
// Used for graceful startup operations
func SurgeOpenInfow(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, sym.SurgeOpen}, keysAndValues...)
		Logger.Infow(msg, fields...)
	}
}

// SurgeCloseInfow logs an info message with the SurgeClose symbol (❀)
// Used for graceful shutdown operations
func SurgeCloseInfow(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, sym.SurgeClose}, keysAndValues...)
		Logger.Infow(msg, fields...)
	}
}

// DBInfow logs an info message with the DB symbol (⊔)
// Used for database/storage operations
func DBInfow(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, sym.DB}, keysAndValues...)
		Logger.Infow(msg, fields...)
	}
}

// DBDebugw logs a debug message with the DB symbol (⊔)
func DBDebugw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, sym.DB}, keysAndValues...)
		Logger.Debugw(msg, fields...)
	}
}

// AuthWarnw logs a warning message with the Auth symbol (⌱)
func AuthWarnw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, sym.Auth}, keysAndValues...)
		Logger.Warnw(msg, fields...)
	}
}

// WithSymbol returns a logger with the given symbol as a field.
// For ad-hoc symbol usage not covered by the helpers above.
//
// Example:
//
//	symbolLogger := logger.WithSymbol(sym.HTTP)
//	symbolLogger.Infow("Request served", "path", path)
func WithSymbol(symbol string) *zap.SugaredLogger {
	return Logger.With(FieldSymbol, symbol)
}

// ============================================================================
// Instance logger wrappers
// ============================================================================
// These functions wrap any logger with a symbol field, useful when you have
// an instance logger (e.g., s.logger, w.logger) rather than the global Logger.
//
// Usage:
//
//	// At initialization:
//	type WorkerPool struct {
//	    surgeLog *zap.SugaredLogger
//	}
//	w.surgeLog = logger.AddSurgeSymbol(baseLogger)

// AddSurgeSymbol wraps a logger with the Surge symbol (⚡)
func AddSurgeSymbol(l *zap.SugaredLogger) *zap.SugaredLogger {
	return l.With(FieldSymbol, sym.Surge)
}

// AddSurgeOpenSymbol wraps a logger with the SurgeOpen symbol (✿)
func AddSurgeOpenSymbol(l *zap.SugaredLogger) *zap.SugaredLogger {
	return l.With(FieldSymbol, sym.SurgeOpen)
}

// AddSurgeCloseSymbol wraps a logger with the SurgeClose symbol (❀)
func AddSurgeCloseSymbol(l *zap.SugaredLogger) *zap.SugaredLogger {
	return l.With(FieldSymbol, sym.SurgeClose)
}

// AddDBSymbol wraps a logger with the DB symbol (⊔)
func AddDBSymbol(l *zap.SugaredLogger) *zap.SugaredLogger {
	return l.With(FieldSymbol, sym.DB)
}

// AddHTTPSymbol wraps a logger with the HTTP symbol (⇄)
func AddHTTPSymbol(l *zap.SugaredLogger) *zap.SugaredLogger {
	return l.With(FieldSymbol, sym.HTTP)
}
