// Package editor implements the bounding-box annotation state machine.
//
// Pointer and keyboard events mutate the box store (directly, or through a
// snapshot-then-mutate on the undo history) and every mutating handler ends with
// an explicit render call. The editor is not safe for concurrent use; it expects
// to be driven from a single event loop.
package editor

import (
	"image"

	"go.uber.org/zap"

	"github.com/menta2k/boxlabel/pkg/boxstore"
	"github.com/menta2k/boxlabel/pkg/history"
	"github.com/menta2k/boxlabel/pkg/render"
	"github.com/menta2k/boxlabel/pkg/types"
	"github.com/menta2k/boxlabel/pkg/viewport"
)

// Target receives a frame after every state change
type Target interface {
	Draw(frame render.Frame) error
}

// Option configures an Editor
type Option func(*Editor)

// WithRenderer sets the render target
func WithRenderer(t Target) Option { return func(e *Editor) { e.target = t } }

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option { return func(e *Editor) { e.logger = l } }

// WithClasses sets the class id to name map used for labels
func WithClasses(c types.ClassMap) Option { return func(e *Editor) { e.classes = c } }

// WithOnClose sets the callback for Escape outside of drawing
func WithOnClose(fn func()) Option { return func(e *Editor) { e.onClose = fn } }

// WithOnNext sets the callback for the N key
func WithOnNext(fn func()) Option { return func(e *Editor) { e.onNext = fn } }

// WithOnPrevious sets the callback for the P key
func WithOnPrevious(fn func()) Option { return func(e *Editor) { e.onPrevious = fn } }

// Editor is the interaction state machine for one open image
type Editor struct {
	cfg     Config
	store   *boxstore.Store
	history *history.History
	view    viewport.Viewport
	state   State
	classID int
	classes types.ClassMap
	image   image.Image
	dirty   bool

	target     Target
	logger     *zap.Logger
	onClose    func()
	onNext     func()
	onPrevious func()
}

// New creates an idle editor with an empty store
func New(cfg Config, opts ...Option) *Editor {
	if cfg.MinBoxSize <= 0 {
		cfg.MinBoxSize = boxstore.DefaultMinBoxSize
	}
	e := &Editor{
		cfg:     cfg,
		store:   boxstore.New(nil),
		history: history.New(cfg.UndoDepth),
		view:    viewport.New(cfg.MinZoom, cfg.MaxZoom),
		state:   idle(),
		classID: cfg.DefaultClass,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	return e
}

// Load starts a session for a new image: boxes replaced, history cleared,
// viewport refitted with zoom and pan reset, state back to idle.
func (e *Editor) Load(labels types.LabelSet, img image.Image, containerWidth, containerHeight float64) {
	e.store.ReplaceAll(labels.Boxes)
	e.history.Clear()
	e.image = img

	imgW, imgH := float64(labels.ImageWidth), float64(labels.ImageHeight)
	if img != nil && (imgW <= 0 || imgH <= 0) {
		b := img.Bounds()
		imgW, imgH = float64(b.Dx()), float64(b.Dy())
	}
	e.view.Fit(imgW, imgH, containerWidth, containerHeight)
	e.state = idle()
	e.dirty = false

	e.logger.Debug("image loaded",
		zap.Int("boxes", e.store.Len()),
		zap.Float64("canvas_width", e.view.CanvasWidth),
		zap.Float64("canvas_height", e.view.CanvasHeight))
	e.render()
}

// Resize refits the canvas to a new container size, keeping zoom and pan
func (e *Editor) Resize(containerWidth, containerHeight float64) {
	if e.image == nil {
		return
	}
	zoom, offX, offY := e.view.Zoom, e.view.OffsetX, e.view.OffsetY
	b := e.image.Bounds()
	e.view.Fit(float64(b.Dx()), float64(b.Dy()), containerWidth, containerHeight)
	e.view.SetZoom(zoom)
	e.view.OffsetX, e.view.OffsetY = offX, offY
	e.render()
}

// PointerDown hit-tests topmost-first. A hit selects the box; a miss starts a draw.
func (e *Editor) PointerDown(mouseX, mouseY float64, rect viewport.Bounds) {
	if !e.view.Ready() {
		return
	}
	p := e.view.ToCanvas(mouseX, mouseY, rect)

	if hit := e.store.HitTest(p, e.view.CanvasWidth, e.view.CanvasHeight); hit >= 0 {
		e.state = State{Mode: ModeSelected, Selected: hit}
		e.render()
		return
	}

	e.state = State{Mode: ModeDrawing, Start: p, Selected: -1}
	e.render()
}

// PointerMove updates the draft while drawing; it is ignored otherwise
func (e *Editor) PointerMove(mouseX, mouseY float64, rect viewport.Bounds) {
	if e.state.Mode != ModeDrawing {
		return
	}
	p := e.view.ToCanvas(mouseX, mouseY, rect)
	draft := viewport.CanvasToNormalized(
		types.Rect{X1: e.state.Start.X, Y1: e.state.Start.Y, X2: p.X, Y2: p.Y},
		e.view.CanvasWidth, e.view.CanvasHeight, e.classID)
	e.state.Draft = &draft
	e.render()
}

// PointerUp commits the draft: too-small drafts are dropped, others are clamped,
// snapshotted and appended.
func (e *Editor) PointerUp() {
	if e.state.Mode != ModeDrawing {
		return
	}
	draft := e.state.Draft
	e.state = idle()

	if draft == nil || boxstore.TooSmall(*draft, e.cfg.MinBoxSize) {
		e.render()
		return
	}

	box := boxstore.Clamp(*draft)
	e.history.Push(e.store.Snapshot())
	e.store.Add(box)
	e.dirty = true

	e.logger.Debug("box committed",
		zap.Int("class_id", box.ClassID),
		zap.Int("boxes", e.store.Len()))
	e.render()
}

// PointerLeave cancels an in-progress draw
func (e *Editor) PointerLeave() {
	e.cancelDraft()
}

// Select marks box index as selected
func (e *Editor) Select(index int) bool {
	if _, ok := e.store.At(index); !ok {
		return false
	}
	e.state = State{Mode: ModeSelected, Selected: index}
	e.render()
	return true
}

// Deselect returns to idle without touching the store
func (e *Editor) Deselect() {
	e.state = idle()
	e.render()
}

// DeleteSelected removes the selected box; no-op when nothing is selected
func (e *Editor) DeleteSelected() bool {
	if e.state.Mode != ModeSelected {
		return false
	}
	index := e.state.Selected
	if _, ok := e.store.At(index); !ok {
		e.state = idle()
		return false
	}

	e.history.Push(e.store.Snapshot())
	if err := e.store.RemoveAt(index); err != nil {
		e.logger.Warn("delete failed", zap.Int("index", index), zap.Error(err))
	}
	e.state = idle()
	e.dirty = true
	e.render()
	return true
}

// Undo restores the previous snapshot and clears the selection
func (e *Editor) Undo() bool {
	prev, ok := e.history.Undo(e.store.Snapshot())
	if !ok {
		return false
	}
	e.store.ReplaceAll(prev)
	e.state = idle()
	e.dirty = true
	e.render()
	return true
}

// Redo re-applies the most recently undone change and clears the selection
func (e *Editor) Redo() bool {
	next, ok := e.history.Redo(e.store.Snapshot())
	if !ok {
		return false
	}
	e.store.ReplaceAll(next)
	e.state = idle()
	e.dirty = true
	e.render()
	return true
}

// SetClass chooses the class assigned to newly drawn boxes
func (e *Editor) SetClass(classID int) {
	e.classID = classID
}

// Class returns the class assigned to newly drawn boxes
func (e *Editor) Class() int {
	return e.classID
}

// RelabelSelected changes the class of the selected box
func (e *Editor) RelabelSelected(classID int) bool {
	box, ok := e.selectedBox()
	if !ok || box.ClassID == classID {
		return false
	}
	box.ClassID = classID
	return e.replaceSelected(box)
}

// NudgeSelected moves the selected box by dx, dy normalized units, keeping it inside the image
func (e *Editor) NudgeSelected(dx, dy float64) bool {
	box, ok := e.selectedBox()
	if !ok || (dx == 0 && dy == 0) {
		return false
	}
	box.XCenter += dx
	box.YCenter += dy
	return e.replaceSelected(boxstore.Clamp(box))
}

// AddBoxes appends externally proposed boxes as one undoable step.
// Boxes are clamped and too-small ones dropped; the number added is returned.
func (e *Editor) AddBoxes(boxes []types.Box) int {
	accepted := make([]types.Box, 0, len(boxes))
	for _, b := range boxes {
		b = boxstore.Clamp(b)
		if boxstore.TooSmall(b, e.cfg.MinBoxSize) {
			continue
		}
		accepted = append(accepted, b)
	}
	if len(accepted) == 0 {
		return 0
	}

	e.history.Push(e.store.Snapshot())
	for _, b := range accepted {
		e.store.Add(b)
	}
	e.dirty = true
	e.render()
	return len(accepted)
}

// SetZoom sets the zoom level, clamped to the configured limits
func (e *Editor) SetZoom(zoom float64) {
	e.view.SetZoom(zoom)
	e.render()
}

// ZoomBy multiplies the zoom level by factor
func (e *Editor) ZoomBy(factor float64) {
	e.view.ZoomBy(factor)
	e.render()
}

// Pan shifts the view by dx, dy canvas units
func (e *Editor) Pan(dx, dy float64) {
	e.view.Pan(dx, dy)
	e.render()
}

// ResetView restores zoom 1 and no pan
func (e *Editor) ResetView() {
	e.view.Reset()
	e.render()
}

// Boxes returns a copy of the current boxes
func (e *Editor) Boxes() []types.Box {
	return e.store.Snapshot()
}

// State returns the current interaction state
func (e *Editor) State() State {
	s := e.state
	if s.Draft != nil {
		d := *s.Draft
		s.Draft = &d
	}
	return s
}

// Viewport returns the current viewport state
func (e *Editor) Viewport() viewport.Viewport {
	return e.view
}

// Image returns the image being annotated
func (e *Editor) Image() image.Image {
	return e.image
}

// Classes returns the class map used for labels
func (e *Editor) Classes() types.ClassMap {
	return e.classes
}

// CanUndo reports whether an undo step is available
func (e *Editor) CanUndo() bool { return e.history.Len() > 0 }

// CanRedo reports whether a redo step is available
func (e *Editor) CanRedo() bool { return e.history.RedoLen() > 0 }

// Dirty reports whether boxes changed since the last Load or MarkClean
func (e *Editor) Dirty() bool { return e.dirty }

// MarkClean records that the current boxes were persisted
func (e *Editor) MarkClean() { e.dirty = false }

// Frame builds the render input for the current state
func (e *Editor) Frame() render.Frame {
	return render.Frame{
		Image:    e.image,
		Boxes:    e.store.Snapshot(),
		Selected: e.state.Selected,
		Draft:    e.State().Draft,
		Viewport: e.view,
		Classes:  e.classes,
	}
}

func (e *Editor) cancelDraft() bool {
	if e.state.Mode != ModeDrawing {
		return false
	}
	e.state = idle()
	e.render()
	return true
}

func (e *Editor) selectedBox() (types.Box, bool) {
	if e.state.Mode != ModeSelected {
		return types.Box{}, false
	}
	return e.store.At(e.state.Selected)
}

func (e *Editor) replaceSelected(box types.Box) bool {
	e.history.Push(e.store.Snapshot())
	if err := e.store.Set(e.state.Selected, box); err != nil {
		e.logger.Warn("update failed", zap.Int("index", e.state.Selected), zap.Error(err))
		return false
	}
	e.dirty = true
	e.render()
	return true
}

// render is called at the end of every mutating handler. A failed pass is
// logged and abandoned; the state stays as it is.
func (e *Editor) render() {
	if e.target == nil {
		return
	}
	if err := e.target.Draw(e.Frame()); err != nil {
		e.logger.Warn("render pass abandoned", zap.Error(err))
	}
}
