package suggest

import (
	"context"
	"image"
	"math"
	"sort"

	"github.com/disintegration/imaging"

	"github.com/menta2k/boxlabel/pkg/types"
)

// SaliencyConfig holds configuration for the local subject search
type SaliencyConfig struct {
	EdgeThreshold   float64
	ContrastWeight  float64
	ColorWeight     float64
	MinSubjectRatio float64
	// MaxDim is the working resolution; larger images are downscaled first
	MaxDim       int
	MaxBoxes     int
	IoUThreshold float64
	DefaultClass int
}

// DefaultSaliencyConfig returns the saliency search defaults
func DefaultSaliencyConfig() SaliencyConfig {
	return SaliencyConfig{
		EdgeThreshold:   0.01,
		ContrastWeight:  0.3,
		ColorWeight:     0.2,
		MinSubjectRatio: 0.05,
		MaxDim:          256,
		MaxBoxes:        10,
		IoUThreshold:    0.3,
	}
}

// Region is a scored rectangle in working-image pixels
type Region struct {
	X      int
	Y      int
	Width  int
	Height int
	Score  float64
}

// Area returns the area of the region
func (r Region) Area() int {
	return r.Width * r.Height
}

// IoU returns the intersection over union of two regions
func (r Region) IoU(o Region) float64 {
	x1 := max(r.X, o.X)
	y1 := max(r.Y, o.Y)
	x2 := min(r.X+r.Width, o.X+o.Width)
	y2 := min(r.Y+r.Height, o.Y+o.Height)
	if x2 <= x1 || y2 <= y1 {
		return 0
	}
	inter := float64((x2 - x1) * (y2 - y1))
	return inter / (float64(r.Area()+o.Area()) - inter)
}

// SaliencySuggester proposes boxes around visually salient regions without a model
type SaliencySuggester struct {
	config SaliencyConfig
}

// NewSaliency creates a suggester with the default configuration
func NewSaliency() *SaliencySuggester {
	return &SaliencySuggester{config: DefaultSaliencyConfig()}
}

// NewSaliencyWithConfig creates a suggester with a custom configuration
func NewSaliencyWithConfig(config SaliencyConfig) *SaliencySuggester {
	return &SaliencySuggester{config: config}
}

// SuggestImage returns up to MaxBoxes non-overlapping salient regions as
// normalized boxes. The class map is not consulted.
func (s *SaliencySuggester) SuggestImage(ctx context.Context, img image.Image, _ types.ClassMap) ([]types.Box, error) {
	regions, w, h, err := s.DetectRegions(ctx, img)
	if err != nil {
		return nil, err
	}

	boxes := make([]types.Box, 0, len(regions))
	for _, r := range regions {
		boxes = append(boxes, types.Box{
			ClassID: s.config.DefaultClass,
			XCenter: (float64(r.X) + float64(r.Width)/2) / float64(w),
			YCenter: (float64(r.Y) + float64(r.Height)/2) / float64(h),
			Width:   float64(r.Width) / float64(w),
			Height:  float64(r.Height) / float64(h),
		})
	}
	return boxes, nil
}

// DetectRegions scores sliding windows over the saliency map and returns the
// best ones after non-maximum suppression, with the working image size
func (s *SaliencySuggester) DetectRegions(ctx context.Context, img image.Image) ([]Region, int, int, error) {
	work := imaging.Clone(img)
	b := work.Bounds()
	if s.config.MaxDim > 0 && (b.Dx() > s.config.MaxDim || b.Dy() > s.config.MaxDim) {
		if b.Dx() >= b.Dy() {
			work = imaging.Resize(work, s.config.MaxDim, 0, imaging.Box)
		} else {
			work = imaging.Resize(work, 0, s.config.MaxDim, imaging.Box)
		}
	}
	width, height := work.Bounds().Dx(), work.Bounds().Dy()
	if width < 3 || height < 3 {
		return nil, width, height, nil
	}

	integral := s.integralSaliency(work)
	if err := ctx.Err(); err != nil {
		return nil, width, height, err
	}

	regions := s.findRegions(integral, width, height)
	sort.Slice(regions, func(i, j int) bool { return regions[i].Score > regions[j].Score })

	var kept []Region
	for _, r := range regions {
		suppressed := false
		for _, k := range kept {
			if r.IoU(k) > s.config.IoUThreshold {
				suppressed = true
				break
			}
		}
		if suppressed {
			continue
		}
		kept = append(kept, r)
		if s.config.MaxBoxes > 0 && len(kept) == s.config.MaxBoxes {
			break
		}
	}
	return kept, width, height, nil
}

// integralSaliency builds the summed-area table of a per-pixel saliency that
// mixes neighbour color difference with brightness
func (s *SaliencySuggester) integralSaliency(img *image.NRGBA) [][]float64 {
	width, height := img.Bounds().Dx(), img.Bounds().Dy()
	at := func(x, y int) (float64, float64, float64) {
		i := y*img.Stride + x*4
		return float64(img.Pix[i]), float64(img.Pix[i+1]), float64(img.Pix[i+2])
	}

	integral := make([][]float64, height+1)
	for i := range integral {
		integral[i] = make([]float64, width+1)
	}

	for y := 0; y < height; y++ {
		var row float64
		for x := 0; x < width; x++ {
			var saliency float64
			if x > 0 && y > 0 && x < width-1 && y < height-1 {
				r1, g1, b1 := at(x, y)
				var edge float64
				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						if dx == 0 && dy == 0 {
							continue
						}
						r2, g2, b2 := at(x+dx, y+dy)
						edge += math.Sqrt((r1-r2)*(r1-r2) + (g1-g2)*(g1-g2) + (b1-b2)*(b1-b2))
					}
				}
				edge /= 8.0 * 255.0
				brightness := (r1 + g1 + b1) / (3.0 * 255.0)
				saliency = s.config.ContrastWeight*edge + s.config.ColorWeight*brightness
			}
			row += saliency
			integral[y+1][x+1] = integral[y][x+1] + row
		}
	}
	return integral
}

func (s *SaliencySuggester) findRegions(integral [][]float64, width, height int) []Region {
	var regions []Region
	minArea := int(float64(width*height) * s.config.MinSubjectRatio)

	for _, frac := range []float64{0.125, 0.25, 0.375, 0.5} {
		ww := int(float64(width) * frac)
		wh := int(float64(height) * frac)
		if ww < 4 || wh < 4 || ww*wh < minArea {
			continue
		}
		stepX := max(ww/8, 1)
		stepY := max(wh/8, 1)

		for y := 0; y+wh <= height; y += stepY {
			for x := 0; x+ww <= width; x += stepX {
				sum := integral[y+wh][x+ww] - integral[y][x+ww] - integral[y+wh][x] + integral[y][x]
				score := sum / float64(ww*wh)
				if score > s.config.EdgeThreshold {
					regions = append(regions, Region{X: x, Y: y, Width: ww, Height: wh, Score: score})
				}
			}
		}
	}
	return regions
}
