package viewport

import (
	"math"
	"testing"

	"github.com/menta2k/boxlabel/pkg/types"
)

const tolerance = 1e-9

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < tolerance
}

func TestImageToCanvas(t *testing.T) {
	box := types.Box{XCenter: 0.5, YCenter: 0.25, Width: 0.2, Height: 0.1}

	r := ImageToCanvas(box, 1000, 800)

	if !almostEqual(r.X1, 400) || !almostEqual(r.X2, 600) {
		t.Errorf("Expected x range 400..600, got %f..%f", r.X1, r.X2)
	}
	if !almostEqual(r.Y1, 160) || !almostEqual(r.Y2, 240) {
		t.Errorf("Expected y range 160..240, got %f..%f", r.Y1, r.Y2)
	}
}

func TestImageToCanvasKeepsSubPixel(t *testing.T) {
	box := types.Box{XCenter: 0.5, YCenter: 0.5, Width: 0.333, Height: 0.333}

	r := ImageToCanvas(box, 101, 101)

	if r.X1 == math.Trunc(r.X1) {
		t.Errorf("Expected sub-pixel corner, got %f", r.X1)
	}
}

func TestRoundTrip(t *testing.T) {
	boxes := []types.Box{
		{ClassID: 0, XCenter: 0.5, YCenter: 0.5, Width: 1, Height: 1},
		{ClassID: 3, XCenter: 0.35, YCenter: 0.35, Width: 0.3, Height: 0.3},
		{ClassID: 7, XCenter: 0.123, YCenter: 0.877, Width: 0.04, Height: 0.2},
	}
	sizes := [][2]float64{{1000, 1000}, {640, 480}, {333.3, 97.1}}

	for _, size := range sizes {
		for _, b := range boxes {
			r := ImageToCanvas(b, size[0], size[1])
			got := CanvasToNormalized(r, size[0], size[1], b.ClassID)

			if got.ClassID != b.ClassID ||
				!almostEqual(got.XCenter, b.XCenter) || !almostEqual(got.YCenter, b.YCenter) ||
				!almostEqual(got.Width, b.Width) || !almostEqual(got.Height, b.Height) {
				t.Errorf("Round trip on %vx%v: expected %+v, got %+v", size[0], size[1], b, got)
			}
		}
	}
}

func TestCanvasToNormalizedIgnoresDragDirection(t *testing.T) {
	forward := CanvasToNormalized(types.Rect{X1: 200, Y1: 200, X2: 500, Y2: 500}, 1000, 1000, 1)
	backward := CanvasToNormalized(types.Rect{X1: 500, Y1: 500, X2: 200, Y2: 200}, 1000, 1000, 1)

	if forward != backward {
		t.Errorf("Expected identical boxes, got %+v and %+v", forward, backward)
	}
	if !almostEqual(forward.XCenter, 0.35) || !almostEqual(forward.Width, 0.3) {
		t.Errorf("Expected center 0.35 width 0.3, got %+v", forward)
	}
}

func TestScreenToViewportInvertsRenderTransform(t *testing.T) {
	rect := Bounds{Left: 40, Top: 25}
	zoom, offX, offY := 2.5, -30.0, 12.0
	p := types.Point{X: 123.5, Y: 77.25}

	screen := ViewportToScreen(p, zoom, offX, offY)
	back := ScreenToViewport(screen.X+rect.Left, screen.Y+rect.Top, rect, zoom, offX, offY)

	if !almostEqual(back.X, p.X) || !almostEqual(back.Y, p.Y) {
		t.Errorf("Expected %+v, got %+v", p, back)
	}
}

func TestScreenToViewport(t *testing.T) {
	p := ScreenToViewport(210, 110, Bounds{Left: 10, Top: 10}, 2, 5, 0)

	if !almostEqual(p.X, 95) || !almostEqual(p.Y, 50) {
		t.Errorf("Expected (95, 50), got (%f, %f)", p.X, p.Y)
	}
}

func TestFitCanvasToContainer(t *testing.T) {
	// Wide image in a square container: width-bound
	fit := FitCanvasToContainer(2000, 1000, 800, 800)
	if !almostEqual(fit.CanvasWidth, 800) || !almostEqual(fit.CanvasHeight, 400) {
		t.Errorf("Expected 800x400, got %fx%f", fit.CanvasWidth, fit.CanvasHeight)
	}
	if !almostEqual(fit.Scale, 0.4) {
		t.Errorf("Expected scale 0.4, got %f", fit.Scale)
	}

	// Tall image: height-bound
	fit = FitCanvasToContainer(500, 1000, 800, 600)
	if !almostEqual(fit.CanvasHeight, 600) || !almostEqual(fit.CanvasWidth, 300) {
		t.Errorf("Expected 300x600, got %fx%f", fit.CanvasWidth, fit.CanvasHeight)
	}
	if !almostEqual(fit.Scale, 0.6) {
		t.Errorf("Expected scale 0.6, got %f", fit.Scale)
	}

	if fit := FitCanvasToContainer(0, 100, 100, 100); fit != (Fit{}) {
		t.Errorf("Expected zero fit for empty image, got %+v", fit)
	}
}

func TestViewportZoomClamp(t *testing.T) {
	v := New(0, 0)

	v.SetZoom(10)
	if v.Zoom != DefaultMaxZoom {
		t.Errorf("Expected zoom %f, got %f", DefaultMaxZoom, v.Zoom)
	}

	v.SetZoom(0.1)
	if v.Zoom != DefaultMinZoom {
		t.Errorf("Expected zoom %f, got %f", DefaultMinZoom, v.Zoom)
	}

	v.ZoomBy(2)
	if v.Zoom != 1 {
		t.Errorf("Expected zoom 1, got %f", v.Zoom)
	}
}

func TestViewportFitResets(t *testing.T) {
	v := New(0.5, 3)
	v.SetZoom(2)
	v.Pan(15, -4)

	v.Fit(1000, 500, 500, 500)

	if v.Zoom != 1 || v.OffsetX != 0 || v.OffsetY != 0 {
		t.Errorf("Expected reset viewport, got zoom=%f offset=(%f,%f)", v.Zoom, v.OffsetX, v.OffsetY)
	}
	if !v.Ready() {
		t.Error("Expected viewport to be ready after Fit")
	}
	if !almostEqual(v.CanvasHeight, 250) {
		t.Errorf("Expected canvas height 250, got %f", v.CanvasHeight)
	}
}

func BenchmarkScreenToViewport(b *testing.B) {
	rect := Bounds{Left: 10, Top: 20, Width: 800, Height: 600}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ScreenToViewport(float64(i%800), float64(i%600), rect, 1.5, 3, 4)
	}
}
