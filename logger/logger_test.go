package logger

import (
	"context"
	"testing"

	"github.com/not-mt/zapd/sym"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitialize(t *testing.T) {
	tests := []struct {
		name       string
		jsonOutput bool
		wantErr    bool
	}{
		{
			name:       "JSON output mode",
			jsonOutput: true,
			wantErr:    false,
		},
		{
			name:       "Console output mode",
			jsonOutput: false,
			wantErr:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Reset global logger
			Logger = nil
			JSONOutput = false

			err := Initialize(tt.jsonOutput)
			if (err != nil) != tt.wantErr {
				t.Errorf("Initialize() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if !tt.wantErr {
				if Logger == nil {
					t.Error("Initialize() did not set global Logger")
				}
				if JSONOutput != tt.jsonOutput {
					t.Errorf("Initialize() JSONOutput = %v, want %v", JSONOutput, tt.jsonOutput)
				}
			}

			// Cleanup
			if Logger != nil {
				Logger.Sync()
				Logger = nil
			}
		})
	}
}

func TestNilSafeWrappers(t *testing.T) {
	// All package-level wrappers must tolerate a nil Logger.
	Logger = nil
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("wrapper panicked with nil Logger: %v", r)
		}
		Logger = zap.NewNop().Sugar()
	}()

	Info("info")
	Infof("infof %d", 1)
	Infow("infow", "k", "v")
	Warn("warn")
	Warnf("warnf %d", 1)
	Warnw("warnw", "k", "v")
	Error("error")
	Errorf("errorf %d", 1)
	Errorw("errorw", "k", "v")
	Debug("debug")
	Debugf("debugf %d", 1)
	Debugw("debugw", "k", "v")
	Cleanup()
}

func TestSetLevel(t *testing.T) {
	SetLevel(zapcore.DebugLevel)
	if got := Level(); got != zapcore.DebugLevel {
		t.Errorf("Level() = %v after SetLevel(debug)", got)
	}
	SetLevel(zapcore.InfoLevel)
	if got := Level(); got != zapcore.InfoLevel {
		t.Errorf("Level() = %v after SetLevel(info)", got)
	}
}

func TestFieldsFromContext(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
		want int // number of key-value PAIRS expected
	}{
		{
			name: "empty context",
			ctx:  context.Background(),
			want: 0,
		},
		{
			name: "task id only",
			ctx:  WithTaskID(context.Background(), "abc-123"),
			want: 1,
		},
		{
			name: "task and request",
			ctx:  WithRequestID(WithTaskID(context.Background(), "abc-123"), "req-9"),
			want: 2,
		},
		{
			name: "all three",
			ctx: WithComponent(
				WithRequestID(WithTaskID(context.Background(), "abc-123"), "req-9"),
				"surge.worker"),
			want: 3,
		},
		{
			name: "empty values skipped",
			ctx:  WithTaskID(context.Background(), ""),
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := FieldsFromContext(tt.ctx)
			if len(fields) != tt.want*2 {
				t.Errorf("FieldsFromContext() returned %d elements, want %d", len(fields), tt.want*2)
			}
		})
	}
}

func TestRequestIDFromContext(t *testing.T) {
	if got := RequestIDFromContext(context.Background()); got != "" {
		t.Errorf("RequestIDFromContext(empty) = %q, want empty", got)
	}
	ctx := WithRequestID(context.Background(), "req-42")
	if got := RequestIDFromContext(ctx); got != "req-42" {
		t.Errorf("RequestIDFromContext() = %q, want %q", got, "req-42")
	}
}

// observedLogger swaps in an observer core and returns the recorded logs.
func observedLogger(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	prev := Logger
	Logger = zap.New(core).Sugar()
	t.Cleanup(func() { Logger = prev })
	return logs
}

func TestSymbolHelpersAttachSymbolField(t *testing.T) {
	logs := observedLogger(t)

	SurgeInfow("task started", FieldTaskID, "abc")
	SurgeOpenInfow("recovery complete")
	SurgeCloseInfow("drained")
	DBInfow("migration applied")

	entries := logs.All()
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}

	wantSymbols := []string{sym.Surge, sym.SurgeOpen, sym.SurgeClose, sym.DB}
	for i, entry := range entries {
		found := false
		for _, f := range entry.Context {
			if f.Key == FieldSymbol && f.String == wantSymbols[i] {
				found = true
			}
		}
		if !found {
			t.Errorf("entry %d missing symbol field %q: %+v", i, wantSymbols[i], entry.Context)
		}
	}
}

func TestAddSymbolWrappers(t *testing.T) {
	logs := observedLogger(t)

	AddSurgeSymbol(Logger).Infow("claimed", FieldTaskID, "abc")
	AddDBSymbol(Logger).Debugw("pragma set")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	for i, want := range []string{sym.Surge, sym.DB} {
		found := false
		for _, f := range entries[i].Context {
			if f.Key == FieldSymbol && f.String == want {
				found = true
			}
		}
		if !found {
			t.Errorf("entry %d missing symbol %q", i, want)
		}
	}
}

func TestComponentLogger(t *testing.T) {
	Logger = zap.NewNop().Sugar()
	l := ComponentLogger("surge.queue")
	if l == nil {
		t.Fatal("ComponentLogger returned nil")
	}
}

func TestVerbosityToLevel(t *testing.T) {
	tests := []struct {
		verbosity int
		want      zapcore.Level
	}{
		{0, zapcore.WarnLevel},
		{1, zapcore.InfoLevel},
		{2, zapcore.DebugLevel},
		{3, zapcore.DebugLevel},
		{9, zapcore.DebugLevel},
	}
	for _, tt := range tests {
		if got := VerbosityToLevel(tt.verbosity); got != tt.want {
			t.Errorf("VerbosityToLevel(%d) = %v, want %v", tt.verbosity, got, tt.want)
		}
	}
}
