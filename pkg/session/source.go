package session

import (
	"context"
	"fmt"
	"image"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/menta2k/boxlabel/internal/utils"
	"github.com/menta2k/boxlabel/pkg/imageio"
)

// ImageSource loads the pixels of a dataset image
type ImageSource interface {
	Open(ctx context.Context, datasetID, imagePath string) (image.Image, error)
}

// FileSource reads images from a YOLO dataset directory
// (<Root>/<dataset>/images/<path>)
type FileSource struct {
	Root   string
	Loader *imageio.Loader
}

// Open loads the image from disk
func (s FileSource) Open(ctx context.Context, datasetID, imagePath string) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if datasetID == "" || datasetID != filepath.Base(datasetID) {
		return nil, fmt.Errorf("invalid dataset id %q", datasetID)
	}
	path, err := utils.SafeJoin(filepath.Join(s.Root, datasetID, "images"), imagePath)
	if err != nil {
		return nil, err
	}
	return loaderOrDefault(s.Loader).LoadFile(path)
}

// URLSource fetches images from a label backend. The token travels as a query
// parameter because image requests cannot carry an Authorization header.
type URLSource struct {
	BaseURL string
	Token   string
	Loader  *imageio.Loader
}

// ImageURL returns the authenticated URL of an image
func (s URLSource) ImageURL(datasetID, imagePath string) (string, error) {
	q := url.Values{}
	q.Set("path", imagePath)
	raw := fmt.Sprintf("%s/api/v1/datasets/%s/image?%s",
		strings.TrimSuffix(s.BaseURL, "/"), url.PathEscape(datasetID), q.Encode())
	return imageio.AuthenticatedURL(raw, s.Token)
}

// Open downloads the image
func (s URLSource) Open(ctx context.Context, datasetID, imagePath string) (image.Image, error) {
	u, err := s.ImageURL(datasetID, imagePath)
	if err != nil {
		return nil, err
	}
	return loaderOrDefault(s.Loader).LoadURL(ctx, u)
}

func loaderOrDefault(l *imageio.Loader) *imageio.Loader {
	if l == nil {
		return imageio.New()
	}
	return l
}
