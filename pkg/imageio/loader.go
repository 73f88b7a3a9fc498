// Package imageio loads, validates, encodes and crops the images being annotated.
package imageio

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/boxlabel/internal/utils"
	"github.com/menta2k/boxlabel/pkg/types"
)

var (
	// ErrUnsupportedFormat is returned for images outside the configured formats
	ErrUnsupportedFormat = errors.New("unsupported image format")
	// ErrEmptyCrop is returned when a box covers no pixels
	ErrEmptyCrop = errors.New("empty crop rectangle")
)

// Config holds configuration for the loader
type Config struct {
	DefaultQuality   int
	SupportedFormats []string
	MinImageSize     int
	Timeout          time.Duration
	UserAgent        string
}

// DefaultConfig returns the loader defaults
func DefaultConfig() Config {
	return Config{
		DefaultQuality:   85,
		SupportedFormats: []string{"jpeg", "png", "webp", "gif", "bmp", "tiff"},
		MinImageSize:     1,
		Timeout:          30 * time.Second,
		UserAgent:        "boxlabel/1.0",
	}
}

// Loader reads images from disk or over HTTP
type Loader struct {
	config Config
	client *http.Client
}

// New creates a loader with default configuration
func New() *Loader {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates a loader with custom configuration
func NewWithConfig(config Config) *Loader {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.DefaultQuality <= 0 {
		config.DefaultQuality = 85
	}
	return &Loader{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

// ImageInfo contains basic image metadata
type ImageInfo struct {
	Width       int
	Height      int
	AspectRatio float64
	Area        int
}

// LoadFile loads an image from a file path with WebP support
func (l *Loader) LoadFile(path string) (image.Image, error) {
	if img, err := imaging.Open(path); err == nil {
		return img, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image file: %w", err)
	}
	img, err := l.decodeBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// LoadURL downloads and decodes an image
func (l *Loader) LoadURL(ctx context.Context, imageURL string) (image.Image, error) {
	parsed, err := url.Parse(imageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (only http and https are supported)", parsed.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", l.config.UserAgent)

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: HTTP %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("URL does not point to an image (Content-Type: %s)", contentType)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	return l.decodeBytes(data)
}

// LoadAuthenticated downloads an image from a backend that takes the access
// token as a query parameter, the way browser image elements must.
func (l *Loader) LoadAuthenticated(ctx context.Context, imageURL, token string) (image.Image, error) {
	signed, err := AuthenticatedURL(imageURL, token)
	if err != nil {
		return nil, err
	}
	return l.LoadURL(ctx, signed)
}

// AuthenticatedURL appends token as the "token" query parameter
func AuthenticatedURL(imageURL, token string) (string, error) {
	parsed, err := url.Parse(imageURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	if token == "" {
		return parsed.String(), nil
	}
	q := parsed.Query()
	q.Set("token", token)
	parsed.RawQuery = q.Encode()
	return parsed.String(), nil
}

// Load loads an image from either a file path or URL
func (l *Loader) Load(ctx context.Context, source string) (image.Image, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return l.LoadURL(ctx, source)
	}
	return l.LoadFile(source)
}

// Decode reads and decodes an image from r
func (l *Loader) Decode(r io.Reader) (image.Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	return l.decodeBytes(data)
}

func (l *Loader) decodeBytes(data []byte) (image.Image, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err == nil {
		if !l.isFormatSupported(format) {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
		}
		return img, nil
	}

	if img, werr := webp.Decode(bytes.NewReader(data)); werr == nil {
		return img, nil
	}
	return nil, fmt.Errorf("failed to decode image: %w", err)
}

func (l *Loader) isFormatSupported(format string) bool {
	if len(l.config.SupportedFormats) == 0 {
		return true
	}
	for _, supported := range l.config.SupportedFormats {
		if strings.EqualFold(format, supported) {
			return true
		}
	}
	return false
}

// Info returns basic information about an image
func (l *Loader) Info(img image.Image) ImageInfo {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	info := ImageInfo{
		Width:  width,
		Height: height,
		Area:   width * height,
	}
	if height > 0 {
		info.AspectRatio = float64(width) / float64(height)
	}
	return info
}

// Validate checks that an image meets the minimum size
func (l *Loader) Validate(img image.Image) error {
	if img == nil {
		return errors.New("image is nil")
	}
	bounds := img.Bounds()
	if bounds.Dx() < l.config.MinImageSize || bounds.Dy() < l.config.MinImageSize {
		return fmt.Errorf("image too small: %dx%d (minimum: %d)",
			bounds.Dx(), bounds.Dy(), l.config.MinImageSize)
	}
	return nil
}

// Dimensions reads only the image header to get its size
func Dimensions(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read image header %s: %w", path, err)
	}
	return cfg.Width, cfg.Height, nil
}

// Save writes an image in the given format; an empty format uses the path extension
func (l *Loader) Save(img image.Image, path, format string, quality int, lossless bool) error {
	if format == "" {
		format = utils.GetFileExtension(path)
	}
	if quality <= 0 {
		quality = l.config.DefaultQuality
	}
	if err := utils.EnsureDir(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(format) {
	case "webp":
		return webp.Encode(f, img, &webp.Options{Lossless: lossless, Quality: float32(quality)})
	case "png":
		return imaging.Encode(f, img, imaging.PNG)
	case "jpg", "jpeg":
		return imaging.Encode(f, img, imaging.JPEG, imaging.JPEGQuality(quality))
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// CropBox crops a normalized center box out of img. When width and height are
// both positive the crop is filled to exactly that size.
func (l *Loader) CropBox(img image.Image, box types.Box, width, height int) (image.Image, error) {
	bounds := img.Bounds()
	fw, fh := float64(bounds.Dx()), float64(bounds.Dy())

	x1, y1, x2, y2 := box.Bounds()
	rect := image.Rect(
		bounds.Min.X+int(clamp(x1, 0, 1)*fw+0.5),
		bounds.Min.Y+int(clamp(y1, 0, 1)*fh+0.5),
		bounds.Min.X+int(clamp(x2, 0, 1)*fw+0.5),
		bounds.Min.Y+int(clamp(y2, 0, 1)*fh+0.5),
	).Intersect(bounds)
	if rect.Empty() {
		return nil, ErrEmptyCrop
	}

	cropped := imaging.Crop(img, rect)
	if width > 0 && height > 0 {
		cropped = imaging.Fill(cropped, width, height, imaging.Center, imaging.Lanczos)
	}
	return cropped, nil
}

// EncodeForModel converts an image to base64 for sending to vision models
func (l *Loader) EncodeForModel(img image.Image, format string, maxDim int, quality int) (string, error) {
	if maxDim > 0 {
		b := img.Bounds()
		w, h := b.Dx(), b.Dy()
		if w > maxDim || h > maxDim {
			if w >= h {
				img = imaging.Resize(img, maxDim, 0, imaging.Lanczos)
			} else {
				img = imaging.Resize(img, 0, maxDim, imaging.Lanczos)
			}
		}
	}
	if quality <= 0 {
		quality = l.config.DefaultQuality
	}

	var buf bytes.Buffer
	switch strings.ToLower(format) {
	case "png":
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return "", err
		}
	default:
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return "", err
		}
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
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
