package surge

import (
	"context"
	"testing"

	"github.com/not-mt/zapd/resource"
)

// ============================================================================
// Switchboard Test Universe
// ============================================================================
//
// Characters:
//   - Switchboard Operator: Maintains the registry of who handles which line
//
// Theme: The Registry is a switchboard that patches each zap task through
// to the handler wired for its resource kind. A widget zap rings the
// widget desk; an unknown kind gets a polite busy tone.
// ============================================================================

func TestRegistry_Switchboard(t *testing.T) {
	t.Run("operator starts with an empty board", func(t *testing.T) {
		board := NewRegistry()

		if board == nil {
			t.Fatal("expected a switchboard")
		}
		if len(board.Kinds()) != 0 {
			t.Errorf("expected an empty board, got %d lines", len(board.Kinds()))
		}
	})

	t.Run("operator wires both desks", func(t *testing.T) {
		board := NewRegistry()

		board.Register(&stubHandler{kind: resource.KindWidgets})
		board.Register(&stubHandler{kind: resource.KindGadgets})

		if len(board.Kinds()) != 2 {
			t.Errorf("expected 2 lines, got %d", len(board.Kinds()))
		}
		if !board.Has(resource.KindWidgets) {
			t.Error("widget line missing from the board")
		}
		if !board.Has(resource.KindGadgets) {
			t.Error("gadget line missing from the board")
		}
	})

	t.Run("operator looks up a line", func(t *testing.T) {
		board := NewRegistry()
		desk := &stubHandler{kind: resource.KindWidgets}
		board.Register(desk)

		handler := board.Get(resource.KindWidgets)
		if handler == nil {
			t.Fatal("expected to find the widget desk")
		}
		if handler.Kind() != resource.KindWidgets {
			t.Errorf("line answers for %s, want %s", handler.Kind(), resource.KindWidgets)
		}

		if board.Get(resource.Kind("sprockets")) != nil {
			t.Error("found a desk for a kind nobody wired")
		}
	})

	t.Run("double wiring a line panics", func(t *testing.T) {
		board := NewRegistry()
		board.Register(&stubHandler{kind: resource.KindWidgets})

		defer func() {
			if recover() == nil {
				t.Error("expected a panic on duplicate registration")
			}
		}()
		board.Register(&stubHandler{kind: resource.KindWidgets})
	})
}

func TestRegistryExecutor_Dispatch(t *testing.T) {
	t.Run("task reaches its desk", func(t *testing.T) {
		board := NewRegistry()
		desk := &stubHandler{kind: resource.KindWidgets}
		board.Register(desk)
		executor := NewRegistryExecutor(board)

		task, err := NewTask(resource.KindWidgets, 1, 0, "")
		if err != nil {
			t.Fatalf("failed to build task: %v", err)
		}
		if err := executor.Execute(context.Background(), task); err != nil {
			t.Fatalf("dispatch failed: %v", err)
		}
		if desk.callCount() != 1 {
			t.Errorf("desk answered %d times, want 1", desk.callCount())
		}
	})

	t.Run("missing kind gets a busy tone", func(t *testing.T) {
		executor := NewRegistryExecutor(NewRegistry())

		task := &Task{UUID: "no-kind"}
		if err := executor.Execute(context.Background(), task); err == nil {
			t.Error("expected an error for a task without a kind")
		}
	})

	t.Run("unwired kind gets a busy tone", func(t *testing.T) {
		executor := NewRegistryExecutor(NewRegistry())

		task, err := NewTask(resource.KindWidgets, 1, 0, "")
		if err != nil {
			t.Fatalf("failed to build task: %v", err)
		}
		if err := executor.Execute(context.Background(), task); err == nil {
			t.Error("expected an error for an unregistered kind")
		}
	})
}
