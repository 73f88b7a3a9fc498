package editor

import (
	"errors"
	"math"
	"testing"

	"github.com/menta2k/boxlabel/pkg/render"
	"github.com/menta2k/boxlabel/pkg/types"
	"github.com/menta2k/boxlabel/pkg/viewport"
)

// recordingTarget counts frames and can be told to fail
type recordingTarget struct {
	frames []render.Frame
	err    error
}

func (r *recordingTarget) Draw(f render.Frame) error {
	if r.err != nil {
		return r.err
	}
	r.frames = append(r.frames, f)
	return nil
}

var fullRect = viewport.Bounds{Left: 0, Top: 0, Width: 1000, Height: 1000}

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func boxNear(a, b types.Box) bool {
	return a.ClassID == b.ClassID &&
		near(a.XCenter, b.XCenter) && near(a.YCenter, b.YCenter) &&
		near(a.Width, b.Width) && near(a.Height, b.Height)
}

// newLoaded returns an editor over a 1000x1000 image fitted to a 1000x1000 container
func newLoaded(t *testing.T, boxes []types.Box, opts ...Option) (*Editor, *recordingTarget) {
	t.Helper()
	target := &recordingTarget{}
	opts = append([]Option{WithRenderer(target)}, opts...)
	e := New(DefaultConfig(), opts...)
	e.Load(types.LabelSet{Boxes: boxes, ImageWidth: 1000, ImageHeight: 1000}, nil, 1000, 1000)
	return e, target
}

var (
	boxA = types.Box{ClassID: 0, XCenter: 0.5, YCenter: 0.5, Width: 0.4, Height: 0.4}
	boxB = types.Box{ClassID: 1, XCenter: 0.5, YCenter: 0.5, Width: 0.2, Height: 0.2}
)

func TestDrawCommitsNormalizedBox(t *testing.T) {
	e, _ := newLoaded(t, nil)
	e.SetClass(2)

	e.PointerDown(200, 200, fullRect)
	if e.State().Mode != ModeDrawing {
		t.Fatalf("Expected drawing, got %s", e.State().Mode)
	}
	e.PointerMove(500, 500, fullRect)
	e.PointerUp()

	boxes := e.Boxes()
	if len(boxes) != 1 {
		t.Fatalf("Expected 1 box, got %d", len(boxes))
	}
	want := types.Box{ClassID: 2, XCenter: 0.35, YCenter: 0.35, Width: 0.3, Height: 0.3}
	if !boxNear(boxes[0], want) {
		t.Errorf("Expected %+v, got %+v", want, boxes[0])
	}
	if e.State().Mode != ModeIdle {
		t.Errorf("Expected idle after commit, got %s", e.State().Mode)
	}
	if !e.CanUndo() {
		t.Error("Commit should push an undo snapshot")
	}
	if !e.Dirty() {
		t.Error("Commit should mark the editor dirty")
	}
}

func TestDrawReversedDrag(t *testing.T) {
	e, _ := newLoaded(t, nil)

	e.PointerDown(500, 500, fullRect)
	e.PointerMove(200, 200, fullRect)
	e.PointerUp()

	boxes := e.Boxes()
	if len(boxes) != 1 {
		t.Fatalf("Expected 1 box, got %d", len(boxes))
	}
	if !near(boxes[0].XCenter, 0.35) || !near(boxes[0].Width, 0.3) {
		t.Errorf("Reversed drag should normalize, got %+v", boxes[0])
	}
}

func TestDrawRejectsTinyBox(t *testing.T) {
	e, _ := newLoaded(t, nil)

	e.PointerDown(100, 100, fullRect)
	e.PointerMove(105, 300, fullRect)
	e.PointerUp()

	if len(e.Boxes()) != 0 {
		t.Errorf("Expected box under minimum size to be dropped, got %v", e.Boxes())
	}
	if e.CanUndo() {
		t.Error("Rejected draft must not touch history")
	}
	if e.State().Mode != ModeIdle {
		t.Errorf("Expected idle, got %s", e.State().Mode)
	}
}

func TestClickWithoutDragDiscards(t *testing.T) {
	e, _ := newLoaded(t, nil)

	e.PointerDown(300, 300, fullRect)
	e.PointerUp()

	if len(e.Boxes()) != 0 {
		t.Errorf("Expected no box, got %v", e.Boxes())
	}
	if e.CanUndo() {
		t.Error("Discarded click must not touch history")
	}
}

func TestDrawWithZoom(t *testing.T) {
	e, _ := newLoaded(t, nil)
	e.SetZoom(2)
	rect := viewport.Bounds{Left: 100, Top: 100, Width: 2000, Height: 2000}

	// (mouse - left) / zoom: 500 -> 200, 1100 -> 500
	e.PointerDown(500, 500, rect)
	e.PointerMove(1100, 1100, rect)
	e.PointerUp()

	boxes := e.Boxes()
	if len(boxes) != 1 {
		t.Fatalf("Expected 1 box, got %d", len(boxes))
	}
	if !near(boxes[0].XCenter, 0.35) || !near(boxes[0].Height, 0.3) {
		t.Errorf("Expected zoom-corrected box, got %+v", boxes[0])
	}
}

func TestPointerDownSelectsTopmost(t *testing.T) {
	e, _ := newLoaded(t, []types.Box{boxA, boxB})

	// Inside both; B was added last so it wins
	e.PointerDown(500, 500, fullRect)
	s := e.State()
	if s.Mode != ModeSelected || s.Selected != 1 {
		t.Errorf("Expected B selected, got %s/%d", s.Mode, s.Selected)
	}

	// Inside A only
	e.PointerDown(320, 500, fullRect)
	s = e.State()
	if s.Mode != ModeSelected || s.Selected != 0 {
		t.Errorf("Expected A selected, got %s/%d", s.Mode, s.Selected)
	}

	// Selecting never starts a draw
	e.PointerMove(900, 900, fullRect)
	e.PointerUp()
	if len(e.Boxes()) != 2 {
		t.Errorf("Selection drag must not create a box, got %d boxes", len(e.Boxes()))
	}
}

func TestClickOutsideClearsSelection(t *testing.T) {
	e, _ := newLoaded(t, []types.Box{boxA})

	e.PointerDown(500, 500, fullRect)
	e.PointerDown(50, 50, fullRect)

	s := e.State()
	if s.Mode != ModeDrawing {
		t.Errorf("Expected drawing, got %s", s.Mode)
	}
	if s.Selected != -1 {
		t.Errorf("Selection must be cleared while drawing, got %d", s.Selected)
	}
}

func TestDeleteAndUndo(t *testing.T) {
	e, _ := newLoaded(t, []types.Box{boxA, boxB})

	if !e.Select(1) {
		t.Fatal("Select failed")
	}
	if !e.HandleKey(Key{Name: KeyDelete}) {
		t.Fatal("Delete should be consumed with a selection")
	}
	boxes := e.Boxes()
	if len(boxes) != 1 || !boxNear(boxes[0], boxA) {
		t.Fatalf("Expected [A], got %v", boxes)
	}
	if e.State().Mode != ModeIdle {
		t.Errorf("Expected idle after delete, got %s", e.State().Mode)
	}

	if !e.HandleKey(Key{Name: "z", Ctrl: true}) {
		t.Fatal("Ctrl+Z should be consumed")
	}
	boxes = e.Boxes()
	if len(boxes) != 2 || !boxNear(boxes[1], boxB) {
		t.Errorf("Expected [A, B] after undo, got %v", boxes)
	}
	if s := e.State(); s.Mode != ModeIdle || s.Selected != -1 {
		t.Errorf("Undo must clear the selection, got %s/%d", s.Mode, s.Selected)
	}
}

func TestBackspaceAndMetaUndo(t *testing.T) {
	e, _ := newLoaded(t, []types.Box{boxA})

	e.Select(0)
	e.HandleKey(Key{Name: KeyBackspace})
	if len(e.Boxes()) != 0 {
		t.Fatalf("Backspace should delete, got %v", e.Boxes())
	}
	e.HandleKey(Key{Name: "Z", Meta: true})
	if len(e.Boxes()) != 1 {
		t.Errorf("Cmd+Z should undo, got %v", e.Boxes())
	}
}

func TestDeleteWithoutSelection(t *testing.T) {
	e, target := newLoaded(t, []types.Box{boxA})
	before := len(target.frames)

	if e.HandleKey(Key{Name: KeyDelete}) {
		t.Error("Delete without selection should not be consumed")
	}
	if len(e.Boxes()) != 1 || e.CanUndo() {
		t.Error("Delete without selection must be a no-op")
	}
	if len(target.frames) != before {
		t.Error("No-op delete should not render")
	}
}

func TestUndoOnEmptyHistory(t *testing.T) {
	e, _ := newLoaded(t, []types.Box{boxA})

	if e.Undo() {
		t.Error("Undo with empty history should report false")
	}
	if len(e.Boxes()) != 1 {
		t.Error("Undo with empty history must not change boxes")
	}
}

func TestUndoDepth(t *testing.T) {
	e, _ := newLoaded(t, nil)

	for i := 0; i < 25; i++ {
		e.AddBoxes([]types.Box{{ClassID: i, XCenter: 0.5, YCenter: 0.5, Width: 0.1, Height: 0.1}})
	}

	undone := 0
	for e.Undo() {
		undone++
	}
	if undone != DefaultConfig().UndoDepth {
		t.Errorf("Expected %d undo steps, got %d", DefaultConfig().UndoDepth, undone)
	}
	if len(e.Boxes()) != 15 {
		t.Errorf("Expected 15 boxes after exhausting undo, got %d", len(e.Boxes()))
	}
}

func TestRedo(t *testing.T) {
	e, _ := newLoaded(t, []types.Box{boxA, boxB})

	e.Select(0)
	e.DeleteSelected()
	e.Undo()

	if !e.HandleKey(Key{Name: "z", Ctrl: true, Shift: true}) {
		t.Fatal("Ctrl+Shift+Z should redo")
	}
	if len(e.Boxes()) != 1 {
		t.Errorf("Expected redo to delete again, got %v", e.Boxes())
	}

	e.Undo()
	if !e.HandleKey(Key{Name: "y", Ctrl: true}) {
		t.Fatal("Ctrl+Y should redo")
	}
	if len(e.Boxes()) != 1 {
		t.Errorf("Expected redo via Ctrl+Y, got %v", e.Boxes())
	}

	e.Undo()
	e.AddBoxes([]types.Box{{XCenter: 0.2, YCenter: 0.2, Width: 0.1, Height: 0.1}})
	if e.CanRedo() {
		t.Error("A new change must clear the redo stack")
	}
}

func TestEscape(t *testing.T) {
	closed := 0
	e, _ := newLoaded(t, nil, WithOnClose(func() { closed++ }))

	e.PointerDown(100, 100, fullRect)
	e.PointerMove(400, 400, fullRect)
	if !e.HandleKey(Key{Name: KeyEscape}) {
		t.Fatal("Escape should be consumed")
	}
	if e.State().Mode != ModeIdle || e.State().Draft != nil {
		t.Errorf("Escape while drawing should cancel, got %+v", e.State())
	}
	if closed != 0 {
		t.Error("Escape while drawing must not close")
	}
	e.PointerUp()
	if len(e.Boxes()) != 0 {
		t.Error("Cancelled draft must not be committed")
	}

	e.HandleKey(Key{Name: KeyEscape})
	if closed != 1 {
		t.Errorf("Escape outside drawing should close once, got %d", closed)
	}
}

func TestPointerLeaveCancels(t *testing.T) {
	e, _ := newLoaded(t, nil)

	e.PointerDown(100, 100, fullRect)
	e.PointerMove(400, 400, fullRect)
	e.PointerLeave()
	e.PointerUp()

	if len(e.Boxes()) != 0 {
		t.Errorf("Pointer leave must cancel the draw, got %v", e.Boxes())
	}
	if e.State().Mode != ModeIdle {
		t.Errorf("Expected idle, got %s", e.State().Mode)
	}
}

func TestNavigationKeys(t *testing.T) {
	var next, prev int
	e, _ := newLoaded(t, nil,
		WithOnNext(func() { next++ }),
		WithOnPrevious(func() { prev++ }))

	e.HandleKey(Key{Name: "n"})
	e.HandleKey(Key{Name: "N"})
	e.HandleKey(Key{Name: "p"})
	if next != 2 || prev != 1 {
		t.Errorf("Expected next=2 prev=1, got next=%d prev=%d", next, prev)
	}

	// Modified letters are not navigation
	if e.HandleKey(Key{Name: "n", Ctrl: true}) {
		t.Error("Ctrl+N should not be consumed")
	}
	if next != 2 {
		t.Error("Ctrl+N must not navigate")
	}
}

func TestRenderAfterEveryMutation(t *testing.T) {
	e, target := newLoaded(t, nil)
	start := len(target.frames)

	e.PointerDown(200, 200, fullRect)
	e.PointerMove(300, 300, fullRect)
	e.PointerMove(500, 500, fullRect)
	e.PointerUp()

	if got := len(target.frames) - start; got != 4 {
		t.Errorf("Expected 4 renders, got %d", got)
	}
	last := target.frames[len(target.frames)-1]
	if len(last.Boxes) != 1 || last.Draft != nil {
		t.Errorf("Last frame should show the committed box without a draft, got %+v", last)
	}

	// Moving while idle changes nothing
	before := len(target.frames)
	e.PointerMove(10, 10, fullRect)
	if len(target.frames) != before {
		t.Error("Idle pointer move should not render")
	}
}

func TestRenderFailureKeepsState(t *testing.T) {
	e, target := newLoaded(t, nil)
	target.err = errors.New("canvas gone")

	e.PointerDown(200, 200, fullRect)
	e.PointerMove(500, 500, fullRect)
	e.PointerUp()

	if len(e.Boxes()) != 1 {
		t.Errorf("Render failure must not affect the store, got %v", e.Boxes())
	}
}

func TestDraftVisibleInFrame(t *testing.T) {
	e, target := newLoaded(t, nil)

	e.PointerDown(200, 200, fullRect)
	e.PointerMove(500, 500, fullRect)

	last := target.frames[len(target.frames)-1]
	if last.Draft == nil {
		t.Fatal("Expected draft in frame while drawing")
	}
	if !near(last.Draft.Width, 0.3) {
		t.Errorf("Expected draft width 0.3, got %v", last.Draft.Width)
	}
}

func TestRelabelAndNudge(t *testing.T) {
	e, _ := newLoaded(t, []types.Box{boxA})

	if e.RelabelSelected(4) {
		t.Error("Relabel without selection should fail")
	}
	e.Select(0)
	if !e.RelabelSelected(4) {
		t.Fatal("Relabel failed")
	}
	if e.Boxes()[0].ClassID != 4 {
		t.Errorf("Expected class 4, got %d", e.Boxes()[0].ClassID)
	}

	// Pushed far right, the box stays inside the image
	if !e.NudgeSelected(0.9, 0) {
		t.Fatal("Nudge failed")
	}
	got := e.Boxes()[0]
	if !near(got.XCenter, 0.8) || !near(got.Width, 0.4) {
		t.Errorf("Expected clamped center 0.8, got %+v", got)
	}

	e.Undo()
	e.Undo()
	if !boxNear(e.Boxes()[0], boxA) {
		t.Errorf("Expected original box after two undos, got %+v", e.Boxes()[0])
	}
}

func TestAddBoxes(t *testing.T) {
	e, _ := newLoaded(t, nil)

	added := e.AddBoxes([]types.Box{
		{XCenter: 0.99, YCenter: 0.5, Width: 0.2, Height: 0.2},
		{XCenter: 0.5, YCenter: 0.5, Width: 0.001, Height: 0.2},
	})
	if added != 1 {
		t.Fatalf("Expected 1 box added, got %d", added)
	}
	if b := e.Boxes()[0]; !near(b.XCenter, 0.9) {
		t.Errorf("Expected clamped center 0.9, got %+v", b)
	}

	e.Undo()
	if len(e.Boxes()) != 0 {
		t.Error("AddBoxes should be a single undo step")
	}
	if e.AddBoxes(nil) != 0 || e.CanUndo() {
		t.Error("Empty AddBoxes must not touch history")
	}
}

func TestLoadResets(t *testing.T) {
	e, _ := newLoaded(t, []types.Box{boxA})

	e.Select(0)
	e.DeleteSelected()
	e.SetZoom(2.5)
	e.Pan(10, 20)

	e.Load(types.LabelSet{Boxes: []types.Box{boxB}, ImageWidth: 500, ImageHeight: 250}, nil, 1000, 1000)

	vp := e.Viewport()
	if vp.Zoom != 1 || vp.OffsetX != 0 || vp.OffsetY != 0 {
		t.Errorf("Expected reset viewport, got %+v", vp)
	}
	if vp.CanvasWidth != 1000 || vp.CanvasHeight != 500 {
		t.Errorf("Expected 1000x500 canvas, got %vx%v", vp.CanvasWidth, vp.CanvasHeight)
	}
	if e.CanUndo() || e.Dirty() {
		t.Error("Load must clear history and dirty state")
	}
	if len(e.Boxes()) != 1 || !boxNear(e.Boxes()[0], boxB) {
		t.Errorf("Expected loaded boxes, got %v", e.Boxes())
	}
}

func TestZoomLimits(t *testing.T) {
	e, _ := newLoaded(t, nil)

	e.SetZoom(10)
	if e.Viewport().Zoom != DefaultConfig().MaxZoom {
		t.Errorf("Expected zoom clamped to %v, got %v", DefaultConfig().MaxZoom, e.Viewport().Zoom)
	}
	e.ZoomBy(0.01)
	if e.Viewport().Zoom != DefaultConfig().MinZoom {
		t.Errorf("Expected zoom clamped to %v, got %v", DefaultConfig().MinZoom, e.Viewport().Zoom)
	}
	e.ResetView()
	if e.Viewport().Zoom != 1 {
		t.Errorf("Expected zoom 1 after reset, got %v", e.Viewport().Zoom)
	}
}

func TestPointerIgnoredBeforeLoad(t *testing.T) {
	e := New(DefaultConfig())

	e.PointerDown(10, 10, fullRect)
	if e.State().Mode != ModeIdle {
		t.Errorf("Pointer before load should be ignored, got %s", e.State().Mode)
	}
}

func TestKeyBus(t *testing.T) {
	e, _ := newLoaded(t, []types.Box{boxA, boxB})
	bus := NewKeyBus()

	sub := e.Mount(bus)
	if bus.Len() != 1 {
		t.Fatalf("Expected 1 subscriber, got %d", bus.Len())
	}

	e.Select(0)
	if !bus.Dispatch(Key{Name: KeyDelete}) {
		t.Error("Dispatched delete should be consumed")
	}
	if len(e.Boxes()) != 1 {
		t.Errorf("Expected delete through the bus, got %v", e.Boxes())
	}

	if err := sub.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := sub.Close(); err != nil {
		t.Fatalf("Second close failed: %v", err)
	}
	if bus.Len() != 0 {
		t.Errorf("Expected no subscribers after close, got %d", bus.Len())
	}

	e.Select(0)
	if bus.Dispatch(Key{Name: KeyDelete}) {
		t.Error("Closed subscription must not receive keys")
	}
	if len(e.Boxes()) != 1 {
		t.Error("Closed subscription must not mutate the editor")
	}
}

func TestKeyBusUnsubscribeDuringDispatch(t *testing.T) {
	bus := NewKeyBus()
	var sub *Subscription
	calls := 0
	sub = bus.Subscribe(func(Key) bool {
		calls++
		sub.Close()
		return true
	})
	bus.Subscribe(func(Key) bool { return false })

	bus.Dispatch(Key{Name: "x"})
	bus.Dispatch(Key{Name: "x"})
	if calls != 1 {
		t.Errorf("Expected handler to run once, got %d", calls)
	}
	if bus.Len() != 1 {
		t.Errorf("Expected 1 remaining subscriber, got %d", bus.Len())
	}
}

func BenchmarkPointerMove(b *testing.B) {
	e := New(DefaultConfig(), WithRenderer(&recordingTarget{err: errors.New("skip")}))
	e.Load(types.LabelSet{ImageWidth: 1000, ImageHeight: 1000}, nil, 1000, 1000)
	e.PointerDown(100, 100, fullRect)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e.PointerMove(float64(100+i%800), 400, fullRect)
	}
}
