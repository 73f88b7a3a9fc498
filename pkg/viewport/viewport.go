// Package viewport converts between image-pixel space, normalized box space and
// on-screen canvas space, accounting for zoom and pan.
//
// The render transform is scale(zoom) followed by translate(offset):
//
//	screen = rect.origin + zoom * (canvas + offset)
//
// ScreenToViewport is its exact inverse; hit-testing depends on the two staying
// consistent.
package viewport

import (
	"math"

	"github.com/menta2k/boxlabel/pkg/types"
)

const (
	// DefaultMinZoom is the lowest zoom level a Viewport accepts by default
	DefaultMinZoom = 0.5
	// DefaultMaxZoom is the highest zoom level a Viewport accepts by default
	DefaultMaxZoom = 3.0
)

// Bounds is the on-screen placement of the canvas element (its client rect)
type Bounds struct {
	Left   float64
	Top    float64
	Width  float64
	Height float64
}

// Fit is the result of fitting an image into a container
type Fit struct {
	CanvasWidth  float64
	CanvasHeight float64
	Scale        float64
}

// ImageToCanvas maps a normalized box to canvas-space corners. No rounding is applied.
func ImageToCanvas(box types.Box, canvasWidth, canvasHeight float64) types.Rect {
	x := box.XCenter * canvasWidth
	y := box.YCenter * canvasHeight
	w := box.Width * canvasWidth
	h := box.Height * canvasHeight
	return types.Rect{
		X1: x - w/2,
		Y1: y - h/2,
		X2: x + w/2,
		Y2: y + h/2,
	}
}

// CanvasToNormalized maps two canvas-space corners back to a normalized box.
// The corners may be given in any order.
func CanvasToNormalized(r types.Rect, canvasWidth, canvasHeight float64, classID int) types.Box {
	if canvasWidth <= 0 || canvasHeight <= 0 {
		return types.Box{ClassID: classID}
	}
	x1, x2 := math.Min(r.X1, r.X2), math.Max(r.X1, r.X2)
	y1, y2 := math.Min(r.Y1, r.Y2), math.Max(r.Y1, r.Y2)
	return types.Box{
		ClassID: classID,
		XCenter: (x1 + x2) / 2 / canvasWidth,
		YCenter: (y1 + y2) / 2 / canvasHeight,
		Width:   (x2 - x1) / canvasWidth,
		Height:  (y2 - y1) / canvasHeight,
	}
}

// ScreenToViewport converts a pointer position to canvas space
func ScreenToViewport(mouseX, mouseY float64, rect Bounds, zoom, offsetX, offsetY float64) types.Point {
	if zoom == 0 {
		zoom = 1
	}
	return types.Point{
		X: (mouseX-rect.Left)/zoom - offsetX,
		Y: (mouseY-rect.Top)/zoom - offsetY,
	}
}

// ViewportToScreen is the forward render transform, relative to the canvas origin
func ViewportToScreen(p types.Point, zoom, offsetX, offsetY float64) types.Point {
	return types.Point{
		X: (p.X + offsetX) * zoom,
		Y: (p.Y + offsetY) * zoom,
	}
}

// FitCanvasToContainer sizes the canvas to the container while preserving the image aspect ratio.
// Scale is always canvasWidth/imageWidth; uniform X=Y scale holds by construction.
func FitCanvasToContainer(imageWidth, imageHeight, containerWidth, containerHeight float64) Fit {
	if imageWidth <= 0 || imageHeight <= 0 || containerWidth <= 0 || containerHeight <= 0 {
		return Fit{}
	}

	imageAspect := imageWidth / imageHeight
	containerAspect := containerWidth / containerHeight

	var fit Fit
	if imageAspect > containerAspect {
		// Wider than the container: full width, letterboxed height
		fit.CanvasWidth = containerWidth
		fit.CanvasHeight = containerWidth / imageAspect
	} else {
		fit.CanvasHeight = containerHeight
		fit.CanvasWidth = containerHeight * imageAspect
	}
	fit.Scale = fit.CanvasWidth / imageWidth
	return fit
}

// Viewport holds zoom, pan and canvas sizing for the open image
type Viewport struct {
	Zoom         float64
	OffsetX      float64
	OffsetY      float64
	CanvasWidth  float64
	CanvasHeight float64
	Scale        float64

	MinZoom float64
	MaxZoom float64
}

// New creates a viewport with the given zoom limits; zero limits fall back to the defaults
func New(minZoom, maxZoom float64) Viewport {
	if minZoom <= 0 {
		minZoom = DefaultMinZoom
	}
	if maxZoom <= 0 {
		maxZoom = DefaultMaxZoom
	}
	if maxZoom < minZoom {
		minZoom, maxZoom = maxZoom, minZoom
	}
	return Viewport{Zoom: 1, MinZoom: minZoom, MaxZoom: maxZoom}
}

// Fit recomputes the canvas for a new image or container size and resets zoom and pan
func (v *Viewport) Fit(imageWidth, imageHeight, containerWidth, containerHeight float64) {
	fit := FitCanvasToContainer(imageWidth, imageHeight, containerWidth, containerHeight)
	v.CanvasWidth = fit.CanvasWidth
	v.CanvasHeight = fit.CanvasHeight
	v.Scale = fit.Scale
	v.Reset()
}

// Reset restores zoom=1 and offset=(0,0)
func (v *Viewport) Reset() {
	v.Zoom = 1
	v.OffsetX = 0
	v.OffsetY = 0
}

// SetZoom sets the zoom level, clamped to the viewport limits
func (v *Viewport) SetZoom(zoom float64) {
	v.Zoom = clamp(zoom, v.MinZoom, v.MaxZoom)
}

// ZoomBy multiplies the current zoom by factor
func (v *Viewport) ZoomBy(factor float64) {
	if factor <= 0 {
		return
	}
	v.SetZoom(v.Zoom * factor)
}

// Pan shifts the offset by dx, dy canvas units
func (v *Viewport) Pan(dx, dy float64) {
	v.OffsetX += dx
	v.OffsetY += dy
}

// ToCanvas converts a pointer position using the current zoom and pan
func (v Viewport) ToCanvas(mouseX, mouseY float64, rect Bounds) types.Point {
	return ScreenToViewport(mouseX, mouseY, rect, v.Zoom, v.OffsetX, v.OffsetY)
}

// Ready reports whether a canvas has been sized
func (v Viewport) Ready() bool {
	return v.CanvasWidth > 0 && v.CanvasHeight > 0
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
