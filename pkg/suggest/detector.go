// Package suggest proposes boxes for an image before a human edits them, either
// by asking a vision model or with a local saliency search.
package suggest

import (
	"context"
	"fmt"
	"image"
	"strings"

	"go.uber.org/zap"

	"github.com/menta2k/boxlabel/pkg/boxstore"
	"github.com/menta2k/boxlabel/pkg/imageio"
	"github.com/menta2k/boxlabel/pkg/types"
)

// Suggester proposes boxes for a decoded image
type Suggester interface {
	SuggestImage(ctx context.Context, img image.Image, classes types.ClassMap) ([]types.Box, error)
}

// VisionClient is implemented by the ollama and llamacpp clients
type VisionClient interface {
	SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error)
	Detect(ctx context.Context, model, prompt, imgB64 string) (*types.DetectionResult, error)
}

// SimpleTestPrompt checks whether the model can see images at all
const SimpleTestPrompt = `What do you see in this image? Describe it briefly.`

const promptTemplate = `You are an object detector that pre-annotates images for a labeling tool.

Return JSON only:
{
  "objects": [
    {"label": "string", "confidence": 0.0, "box": {"x": 0.0, "y": 0.0, "w": 0.0, "h": 0.0}}
  ],
  "description": "short neutral sentence (<= 20 words)"
}

HARD RULES
- x, y is the TOP-LEFT corner; w, h are width and height.
- All coordinates are normalized to [0,1] (NOT pixels).
- Boxes must tightly enclose each object.%s
- If nothing is found, return {"objects": [], "description": "no objects"}.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// Config tunes how model detections become boxes
type Config struct {
	Model string
	// MaxDim downscales the image sent to the model
	MaxDim        int
	MinConfidence float64
	MinBoxSize    float64
	MaxBoxes      int
	// DefaultClass is used when no class map is given
	DefaultClass int
}

// DefaultConfig returns the suggestion defaults
func DefaultConfig() Config {
	return Config{
		MaxDim:        1024,
		MinConfidence: 0.3,
		MinBoxSize:    boxstore.DefaultMinBoxSize,
		MaxBoxes:      50,
	}
}

// Detector turns vision model answers into editor boxes
type Detector struct {
	client  VisionClient
	config  Config
	encoder *imageio.Loader
	logger  *zap.Logger
}

// NewDetector creates a detector over client
func NewDetector(client VisionClient, config Config, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{client: client, config: config, encoder: imageio.New(), logger: logger}
}

// Prompt builds the detection prompt, restricting labels to the class names when given
func Prompt(classes types.ClassMap) string {
	if len(classes) == 0 {
		return fmt.Sprintf(promptTemplate, "")
	}
	names := make([]string, 0, len(classes))
	for _, id := range classes.IDs() {
		names = append(names, fmt.Sprintf("%q", classes.Name(id)))
	}
	return fmt.Sprintf(promptTemplate,
		"\n- Use ONLY these labels: "+strings.Join(names, ", ")+". Skip any other object.")
}

// TestVision asks the model a plain question about the image
func (d *Detector) TestVision(ctx context.Context, model, imageB64 string) (string, error) {
	return d.client.SimpleQuery(ctx, model, SimpleTestPrompt, imageB64)
}

// Suggest asks the model for objects and returns the ones that map to a known
// class, pass the confidence floor and survive clamping and the size check
func (d *Detector) Suggest(ctx context.Context, model, imageB64 string, classes types.ClassMap) ([]types.Box, error) {
	result, err := d.client.Detect(ctx, model, Prompt(classes), imageB64)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}
	return d.ToBoxes(result, classes), nil
}

// SuggestImage encodes img and runs Suggest with the configured model
func (d *Detector) SuggestImage(ctx context.Context, img image.Image, classes types.ClassMap) ([]types.Box, error) {
	b64, err := d.encoder.EncodeForModel(img, "jpg", d.config.MaxDim, 85)
	if err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return d.Suggest(ctx, d.config.Model, b64, classes)
}

// ToBoxes converts a detection result into clamped center boxes
func (d *Detector) ToBoxes(result *types.DetectionResult, classes types.ClassMap) []types.Box {
	boxes := []types.Box{}
	if result == nil {
		return boxes
	}

	for _, obj := range result.Objects {
		if obj.Confidence < d.config.MinConfidence {
			continue
		}

		classID := d.config.DefaultClass
		if len(classes) > 0 {
			id, ok := classes.Lookup(obj.Label)
			if !ok {
				d.logger.Debug("skipping unknown label", zap.String("label", obj.Label))
				continue
			}
			classID = id
		}

		box := boxstore.Clamp(normalizeCorner(obj.Box).Center(classID))
		if boxstore.TooSmall(box, d.config.MinBoxSize) {
			continue
		}
		boxes = append(boxes, box)
		if d.config.MaxBoxes > 0 && len(boxes) == d.config.MaxBoxes {
			break
		}
	}

	d.logger.Debug("suggestions ready",
		zap.Int("objects", len(result.Objects)),
		zap.Int("boxes", len(boxes)))
	return boxes
}

// normalizeCorner clips a corner box to the image
func normalizeCorner(b types.CornerBox) types.CornerBox {
	x1 := clamp(b.X, 0, 1)
	y1 := clamp(b.Y, 0, 1)
	x2 := clamp(b.X+b.W, 0, 1)
	y2 := clamp(b.Y+b.H, 0, 1)
	return types.CornerBox{X: x1, Y: y1, W: x2 - x1, H: y2 - y1}
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
