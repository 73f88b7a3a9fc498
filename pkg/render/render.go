// Package render redraws the annotation canvas from scratch on every call.
//
// A frame is a pure function of the image, the boxes, the interaction state and
// the viewport; nothing is retained between frames.
package render

import (
	"errors"
	"image"
	"image/color"
	"image/draw"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/f64"
	"golang.org/x/image/math/fixed"

	"github.com/menta2k/boxlabel/pkg/types"
	"github.com/menta2k/boxlabel/pkg/viewport"
)

var (
	// ErrNoImage is returned when a frame has no image to paint
	ErrNoImage = errors.New("render: no image")
	// ErrEmptyCanvas is returned when the canvas has not been sized yet
	ErrEmptyCanvas = errors.New("render: canvas has zero size")
)

// Style describes how one kind of box is stroked
type Style struct {
	Stroke color.NRGBA
	Width  int
}

// Options configures the renderer
type Options struct {
	Background color.NRGBA
	Default    Style
	Selected   Style
	Draft      Style
	LabelText  color.NRGBA
	// ShowLabels toggles the class name tags
	ShowLabels bool
}

// DefaultOptions returns the standard editor palette
func DefaultOptions() Options {
	return Options{
		Background: color.NRGBA{32, 32, 32, 255},
		Default:    Style{Stroke: color.NRGBA{0, 255, 0, 255}, Width: 2},
		Selected:   Style{Stroke: color.NRGBA{255, 204, 0, 255}, Width: 3},
		Draft:      Style{Stroke: color.NRGBA{0, 170, 255, 255}, Width: 1},
		LabelText:  color.NRGBA{0, 0, 0, 255},
		ShowLabels: true,
	}
}

// Frame is everything a redraw depends on
type Frame struct {
	Image    image.Image
	Boxes    []types.Box
	Selected int
	Draft    *types.Box
	Viewport viewport.Viewport
	Classes  types.ClassMap
}

// Renderer paints frames into NRGBA images
type Renderer struct {
	opts Options
	face font.Face
}

// New creates a renderer with default options
func New() *Renderer {
	return NewWithOptions(DefaultOptions())
}

// NewWithOptions creates a renderer with custom options
func NewWithOptions(opts Options) *Renderer {
	return &Renderer{opts: opts, face: basicfont.Face7x13}
}

// Render draws the frame: clear, zoom/pan transform, image, boxes, labels, draft
func (r *Renderer) Render(f Frame) (*image.NRGBA, error) {
	if f.Image == nil {
		return nil, ErrNoImage
	}
	cw, ch := f.Viewport.CanvasWidth, f.Viewport.CanvasHeight
	w, h := int(math.Ceil(cw)), int(math.Ceil(ch))
	if w <= 0 || h <= 0 {
		return nil, ErrEmptyCanvas
	}

	// 1. Clear
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(r.opts.Background), image.Point{}, draw.Src)

	zoom := f.Viewport.Zoom
	if zoom <= 0 {
		zoom = 1
	}
	offX, offY := f.Viewport.OffsetX, f.Viewport.OffsetY

	// 2+3. Image through scale(zoom) then translate(offset)
	src := f.Image
	sb := src.Bounds()
	scale := f.Viewport.Scale
	if scale <= 0 && sb.Dx() > 0 {
		scale = cw / float64(sb.Dx())
	}
	s2d := f64.Aff3{
		zoom * scale, 0, zoom * (offX - scale*float64(sb.Min.X)),
		0, zoom * scale, zoom * (offY - scale*float64(sb.Min.Y)),
	}
	xdraw.ApproxBiLinear.Transform(dst, s2d, src, sb, xdraw.Over, nil)

	// 4. Committed boxes in z-order
	for i, box := range f.Boxes {
		style := r.opts.Default
		if i == f.Selected {
			style = r.opts.Selected
		}
		rect := r.toScreen(box, cw, ch, zoom, offX, offY)
		strokeRect(dst, rect, style)
	}

	// 5. Class tags at each box's top-left corner
	if r.opts.ShowLabels {
		for i, box := range f.Boxes {
			style := r.opts.Default
			if i == f.Selected {
				style = r.opts.Selected
			}
			rect := r.toScreen(box, cw, ch, zoom, offX, offY)
			r.drawLabel(dst, f.Classes.Name(box.ClassID), rect.Min, style.Stroke)
		}
	}

	// 6. Draft last, above committed boxes and their tags
	if f.Draft != nil {
		strokeRect(dst, r.toScreen(*f.Draft, cw, ch, zoom, offX, offY), r.opts.Draft)
	}

	return dst, nil
}

// Overlay draws boxes onto a copy of img at native resolution, without zoom or pan
func (r *Renderer) Overlay(img image.Image, boxes []types.Box, classes types.ClassMap) (*image.NRGBA, error) {
	if img == nil {
		return nil, ErrNoImage
	}
	b := img.Bounds()
	vp := viewport.New(1, 1)
	vp.Fit(float64(b.Dx()), float64(b.Dy()), float64(b.Dx()), float64(b.Dy()))
	return r.Render(Frame{
		Image:    img,
		Boxes:    boxes,
		Selected: -1,
		Viewport: vp,
		Classes:  classes,
	})
}

func (r *Renderer) toScreen(box types.Box, cw, ch, zoom, offX, offY float64) image.Rectangle {
	rect := viewport.ImageToCanvas(box, cw, ch)
	p1 := viewport.ViewportToScreen(types.Point{X: rect.X1, Y: rect.Y1}, zoom, offX, offY)
	p2 := viewport.ViewportToScreen(types.Point{X: rect.X2, Y: rect.Y2}, zoom, offX, offY)
	return image.Rect(
		int(math.Round(p1.X)), int(math.Round(p1.Y)),
		int(math.Round(p2.X)), int(math.Round(p2.Y)),
	)
}

func (r *Renderer) drawLabel(dst *image.NRGBA, text string, at image.Point, bg color.NRGBA) {
	metrics := r.face.Metrics()
	textHeight := (metrics.Ascent + metrics.Descent).Ceil()
	textWidth := font.MeasureString(r.face, text).Ceil()

	const pad = 2
	tag := image.Rect(at.X, at.Y-textHeight-2*pad, at.X+textWidth+2*pad, at.Y)
	draw.Draw(dst, tag, image.NewUniform(bg), image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(r.opts.LabelText),
		Face: r.face,
		Dot:  fixed.P(at.X+pad, at.Y-pad-metrics.Descent.Ceil()),
	}
	d.DrawString(text)
}

func strokeRect(img *image.NRGBA, rect image.Rectangle, style Style) {
	stroke := style.Width
	if stroke < 1 {
		stroke = 1
	}
	x0, y0, x1, y1 := rect.Min.X, rect.Min.Y, rect.Max.X, rect.Max.Y
	if x1 <= x0 {
		x1 = x0 + 1
	}
	if y1 <= y0 {
		y1 = y0 + 1
	}
	for s := 0; s < stroke; s++ {
		drawHLine(img, y0+s, x0, x1, style.Stroke)
		drawHLine(img, y1-1-s, x0, x1, style.Stroke)
		drawVLine(img, x0+s, y0, y1, style.Stroke)
		drawVLine(img, x1-1-s, y0, y1, style.Stroke)
	}
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if x1 <= 0 || x0 >= img.Bounds().Dx() {
		return
	}
	if x0 < 0 {
		x0 = 0
	}
	if x1 > img.Bounds().Dx() {
		x1 = img.Bounds().Dx()
	}
	i := y*img.Stride + x0*4
	for x := x0; x < x1; x++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += 4
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	if y1 <= 0 || y0 >= img.Bounds().Dy() {
		return
	}
	if y0 < 0 {
		y0 = 0
	}
	if y1 > img.Bounds().Dy() {
		y1 = img.Bounds().Dy()
	}
	i := y0*img.Stride + x*4
	for y := y0; y < y1; y++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += img.Stride
	}
}
