// Package history keeps bounded undo and redo stacks of box-store snapshots.
package history

import "github.com/menta2k/boxlabel/pkg/types"

// DefaultDepth is the default number of snapshots kept per stack
const DefaultDepth = 10

// History is a pair of bounded snapshot stacks. Eviction is FIFO: once a
// stack is full the oldest entry is dropped.
type History struct {
	depth int
	undo  [][]types.Box
	redo  [][]types.Box
}

// New creates a history that keeps at most depth snapshots per stack
func New(depth int) *History {
	if depth <= 0 {
		depth = DefaultDepth
	}
	return &History{depth: depth}
}

// Push records the state before a destructive mutation and invalidates redo
func (h *History) Push(snapshot []types.Box) {
	h.undo = pushBounded(h.undo, copySnapshot(snapshot), h.depth)
	h.redo = nil
}

// Undo pops the most recent snapshot. current is kept on the redo stack.
func (h *History) Undo(current []types.Box) ([]types.Box, bool) {
	if len(h.undo) == 0 {
		return nil, false
	}
	last := h.undo[len(h.undo)-1]
	h.undo = h.undo[:len(h.undo)-1]
	h.redo = pushBounded(h.redo, copySnapshot(current), h.depth)
	return copySnapshot(last), true
}

// Redo re-applies the most recently undone snapshot. current goes back on the undo stack.
func (h *History) Redo(current []types.Box) ([]types.Box, bool) {
	if len(h.redo) == 0 {
		return nil, false
	}
	last := h.redo[len(h.redo)-1]
	h.redo = h.redo[:len(h.redo)-1]
	h.undo = pushBounded(h.undo, copySnapshot(current), h.depth)
	return copySnapshot(last), true
}

// Len returns the number of undo entries
func (h *History) Len() int { return len(h.undo) }

// RedoLen returns the number of redo entries
func (h *History) RedoLen() int { return len(h.redo) }

// Depth returns the per-stack capacity
func (h *History) Depth() int { return h.depth }

// Clear drops both stacks
func (h *History) Clear() {
	h.undo = nil
	h.redo = nil
}

func pushBounded(stack [][]types.Box, snapshot []types.Box, depth int) [][]types.Box {
	stack = append(stack, snapshot)
	if over := len(stack) - depth; over > 0 {
		stack = append(stack[:0:0], stack[over:]...)
	}
	return stack
}

func copySnapshot(boxes []types.Box) []types.Box {
	out := make([]types.Box, len(boxes))
	copy(out, boxes)
	return out
}
