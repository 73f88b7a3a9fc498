// Package boxstore holds the ordered list of boxes for the open image.
// Insertion order is z-order: later boxes draw on top and win hit-test ties.
package boxstore

import (
	"errors"
	"fmt"

	"github.com/menta2k/boxlabel/pkg/types"
	"github.com/menta2k/boxlabel/pkg/viewport"
)

// DefaultMinBoxSize is the smallest normalized width or height a committed box may have
const DefaultMinBoxSize = 0.01

// ErrIndexOutOfRange is returned when an index does not address a stored box
var ErrIndexOutOfRange = errors.New("box index out of range")

// Store is an ordered sequence of boxes
type Store struct {
	boxes []types.Box
}

// New creates a store holding a copy of boxes
func New(boxes []types.Box) *Store {
	s := &Store{}
	s.ReplaceAll(boxes)
	return s
}

// Add appends a box; it becomes the topmost box
func (s *Store) Add(box types.Box) {
	s.boxes = append(s.boxes, box)
}

// RemoveAt deletes the box at index
func (s *Store) RemoveAt(index int) error {
	if index < 0 || index >= len(s.boxes) {
		return fmt.Errorf("remove %d of %d: %w", index, len(s.boxes), ErrIndexOutOfRange)
	}
	s.boxes = append(s.boxes[:index], s.boxes[index+1:]...)
	return nil
}

// Set replaces the box at index
func (s *Store) Set(index int, box types.Box) error {
	if index < 0 || index >= len(s.boxes) {
		return fmt.Errorf("set %d of %d: %w", index, len(s.boxes), ErrIndexOutOfRange)
	}
	s.boxes[index] = box
	return nil
}

// At returns the box at index
func (s *Store) At(index int) (types.Box, bool) {
	if index < 0 || index >= len(s.boxes) {
		return types.Box{}, false
	}
	return s.boxes[index], true
}

// ReplaceAll swaps in a deep copy of boxes so the store never aliases a snapshot
func (s *Store) ReplaceAll(boxes []types.Box) {
	s.boxes = make([]types.Box, len(boxes))
	copy(s.boxes, boxes)
}

// Snapshot returns a deep copy of the current boxes
func (s *Store) Snapshot() []types.Box {
	out := make([]types.Box, len(s.boxes))
	copy(out, s.boxes)
	return out
}

// Len returns the number of stored boxes
func (s *Store) Len() int {
	return len(s.boxes)
}

// HitTest returns the index of the topmost box containing p, or -1.
// p is in canvas space; boxes are projected with the given canvas size.
func (s *Store) HitTest(p types.Point, canvasWidth, canvasHeight float64) int {
	for i := len(s.boxes) - 1; i >= 0; i-- {
		if viewport.ImageToCanvas(s.boxes[i], canvasWidth, canvasHeight).Contains(p) {
			return i
		}
	}
	return -1
}

// Clamp moves the box center so its edges stay inside [0,1] without changing its size.
// Sizes above 1 are capped to 1 first.
func Clamp(box types.Box) types.Box {
	box.Width = clamp(box.Width, 0, 1)
	box.Height = clamp(box.Height, 0, 1)

	halfW := box.Width / 2
	halfH := box.Height / 2
	box.XCenter = clamp(box.XCenter, halfW, 1-halfW)
	box.YCenter = clamp(box.YCenter, halfH, 1-halfH)
	return box
}

// TooSmall reports whether the box falls under the minimum committed size
func TooSmall(box types.Box, minSize float64) bool {
	return box.Width < minSize || box.Height < minSize
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
