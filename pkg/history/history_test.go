package history

import (
	"testing"

	"github.com/menta2k/boxlabel/pkg/types"
)

func snapshotOf(n int) []types.Box {
	return []types.Box{{ClassID: n, XCenter: 0.5, YCenter: 0.5, Width: 0.1, Height: 0.1}}
}

func TestNewDefaultsDepth(t *testing.T) {
	h := New(0)
	if h.Depth() != DefaultDepth {
		t.Errorf("Expected depth %d, got %d", DefaultDepth, h.Depth())
	}
}

func TestPushBound(t *testing.T) {
	h := New(10)
	for i := 0; i < 25; i++ {
		h.Push(snapshotOf(i))
		if h.Len() > 10 {
			t.Fatalf("Undo stack grew to %d", h.Len())
		}
	}

	if h.Len() != 10 {
		t.Fatalf("Expected exactly 10 entries, got %d", h.Len())
	}

	// The 10 most recent snapshots come back newest first: 24..15
	for want := 24; want >= 15; want-- {
		got, ok := h.Undo(nil)
		if !ok {
			t.Fatalf("Expected snapshot %d, stack empty", want)
		}
		if got[0].ClassID != want {
			t.Errorf("Expected snapshot %d, got %d", want, got[0].ClassID)
		}
	}
	if _, ok := h.Undo(nil); ok {
		t.Error("Expected empty stack after popping 10 entries")
	}
}

func TestPushDeepCopies(t *testing.T) {
	h := New(3)
	snap := snapshotOf(1)
	h.Push(snap)
	snap[0].ClassID = 100

	got, _ := h.Undo(nil)
	if got[0].ClassID != 1 {
		t.Errorf("Snapshot was aliased, got class %d", got[0].ClassID)
	}
}

func TestUndoEmpty(t *testing.T) {
	h := New(5)
	if got, ok := h.Undo(snapshotOf(1)); ok || got != nil {
		t.Errorf("Expected nil,false on empty stack, got %v,%v", got, ok)
	}
	if h.RedoLen() != 0 {
		t.Error("Failed undo must not touch redo stack")
	}
}

func TestRedo(t *testing.T) {
	h := New(5)
	h.Push(snapshotOf(1))

	prev, ok := h.Undo(snapshotOf(2))
	if !ok || prev[0].ClassID != 1 {
		t.Fatalf("Expected snapshot 1, got %v", prev)
	}

	next, ok := h.Redo(prev)
	if !ok || next[0].ClassID != 2 {
		t.Fatalf("Expected redo to return snapshot 2, got %v", next)
	}
	if h.Len() != 1 {
		t.Errorf("Expected redo to push onto undo, got %d entries", h.Len())
	}
}

func TestPushInvalidatesRedo(t *testing.T) {
	h := New(5)
	h.Push(snapshotOf(1))
	h.Undo(snapshotOf(2))

	if h.RedoLen() != 1 {
		t.Fatalf("Expected one redo entry, got %d", h.RedoLen())
	}

	h.Push(snapshotOf(3))
	if h.RedoLen() != 0 {
		t.Errorf("Expected redo to be cleared by a new push, got %d", h.RedoLen())
	}
	if _, ok := h.Redo(nil); ok {
		t.Error("Redo must fail after invalidation")
	}
}

func TestClear(t *testing.T) {
	h := New(5)
	h.Push(snapshotOf(1))
	h.Push(snapshotOf(2))
	h.Undo(nil)
	h.Clear()

	if h.Len() != 0 || h.RedoLen() != 0 {
		t.Errorf("Expected empty history, got %d/%d", h.Len(), h.RedoLen())
	}
}

func BenchmarkPush(b *testing.B) {
	h := New(DefaultDepth)
	snap := make([]types.Box, 40)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		h.Push(snap)
	}
}
