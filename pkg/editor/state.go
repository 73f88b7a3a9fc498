package editor

import (
	"github.com/menta2k/boxlabel/pkg/boxstore"
	"github.com/menta2k/boxlabel/pkg/history"
	"github.com/menta2k/boxlabel/pkg/types"
	"github.com/menta2k/boxlabel/pkg/viewport"
)

// Mode is the active interaction state
type Mode int

const (
	// ModeIdle means nothing is selected and no box is being drawn
	ModeIdle Mode = iota
	// ModeDrawing means the pointer is down and a new box is being dragged out
	ModeDrawing
	// ModeSelected means an existing box is selected
	ModeSelected
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeDrawing:
		return "drawing"
	case ModeSelected:
		return "selected"
	default:
		return "unknown"
	}
}

// State is the tagged interaction variant. Start and Draft are only meaningful
// while drawing; Selected is -1 unless Mode is ModeSelected.
type State struct {
	Mode     Mode
	Start    types.Point
	Draft    *types.Box
	Selected int
}

func idle() State {
	return State{Mode: ModeIdle, Selected: -1}
}

// Config holds the tunable editor constants
type Config struct {
	// MinBoxSize rejects drawn boxes narrower or shorter than this (normalized)
	MinBoxSize float64
	// UndoDepth bounds the undo and redo stacks
	UndoDepth int
	MinZoom   float64
	MaxZoom   float64
	// DefaultClass is the class assigned to new boxes until SetClass is called
	DefaultClass int
}

// DefaultConfig returns the standard editor constants
func DefaultConfig() Config {
	return Config{
		MinBoxSize:   boxstore.DefaultMinBoxSize,
		UndoDepth:    history.DefaultDepth,
		MinZoom:      viewport.DefaultMinZoom,
		MaxZoom:      viewport.DefaultMaxZoom,
		DefaultClass: 0,
	}
}
