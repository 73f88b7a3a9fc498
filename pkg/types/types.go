package types

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Box is a single annotation: a normalized, center-based rectangle plus a class id.
// All coordinates are in [0,1] relative to the image dimensions (YOLO format).
type Box struct {
	ClassID int     `json:"class_id"`
	XCenter float64 `json:"x_center"`
	YCenter float64 `json:"y_center"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
}

// Bounds returns the box edges in normalized space
func (b Box) Bounds() (x1, y1, x2, y2 float64) {
	halfW, halfH := b.Width/2, b.Height/2
	return b.XCenter - halfW, b.YCenter - halfH, b.XCenter + halfW, b.YCenter + halfH
}

// Valid reports whether the box satisfies the committed-box invariant
func (b Box) Valid() bool {
	return b.Within(1e-9)
}

// Within reports whether the box has a positive size and its edges lie in
// [-tol, 1+tol]. Size is allowed up to 1+tol as well.
func (b Box) Within(tol float64) bool {
	if b.Width <= 0 || b.Width > 1+tol || b.Height <= 0 || b.Height > 1+tol {
		return false
	}
	x1, y1, x2, y2 := b.Bounds()
	return x1 >= -tol && y1 >= -tol && x2 <= 1+tol && y2 <= 1+tol
}

// CornerBox is a normalized box anchored at its top-left corner.
// Vision models answer in this format.
type CornerBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Center converts a corner box to a center-based Box with the given class
func (c CornerBox) Center(classID int) Box {
	return Box{
		ClassID: classID,
		XCenter: c.X + c.W/2,
		YCenter: c.Y + c.H/2,
		Width:   c.W,
		Height:  c.H,
	}
}

// Point is a position in canvas (viewport) space
type Point struct {
	X float64
	Y float64
}

// Rect is an axis-aligned rectangle in canvas space
type Rect struct {
	X1 float64
	Y1 float64
	X2 float64
	Y2 float64
}

// Contains reports whether p lies inside r, edges included
func (r Rect) Contains(p Point) bool {
	return r.X1 <= p.X && p.X <= r.X2 && r.Y1 <= p.Y && p.Y <= r.Y2
}

// Width returns the horizontal extent of the rectangle
func (r Rect) Width() float64 { return r.X2 - r.X1 }

// Height returns the vertical extent of the rectangle
func (r Rect) Height() float64 { return r.Y2 - r.Y1 }

// LabelSet is the label payload for one image
type LabelSet struct {
	Boxes       []Box `json:"boxes"`
	ImageWidth  int   `json:"image_width"`
	ImageHeight int   `json:"image_height"`
}

// ClassMap maps a class id (decimal string) to a human readable class name
type ClassMap map[string]string

// Name returns the class name for id, or "Class {id}" when it is not mapped
func (m ClassMap) Name(id int) string {
	if name, ok := m[strconv.Itoa(id)]; ok && name != "" {
		return name
	}
	return fmt.Sprintf("Class %d", id)
}

// Lookup finds the class id for a name, ignoring case and surrounding spaces
func (m ClassMap) Lookup(name string) (int, bool) {
	name = strings.TrimSpace(name)
	for key, value := range m {
		if !strings.EqualFold(strings.TrimSpace(value), name) {
			continue
		}
		id, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		return id, true
	}
	return 0, false
}

// IDs returns the mapped class ids in ascending order
func (m ClassMap) IDs() []int {
	ids := make([]int, 0, len(m))
	for key := range m {
		if id, err := strconv.Atoi(key); err == nil {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}

// Detection is a single object reported by a vision model
type Detection struct {
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	Box        CornerBox `json:"box"`
}

// DetectionResult contains the complete detection answer from the vision model
type DetectionResult struct {
	Objects     []Detection `json:"objects"`
	Description string      `json:"description"`
}

// CopyBoxes returns a deep copy of boxes; nil stays nil
func CopyBoxes(boxes []Box) []Box {
	if boxes == nil {
		return nil
	}
	out := make([]Box, len(boxes))
	copy(out, boxes)
	return out
}
