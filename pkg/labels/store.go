// Package labels is the boundary to wherever boxes are persisted: a REST label
// backend, a YOLO dataset directory, a SQLite database, optionally fronted by a
// Redis read-through cache.
package labels

import (
	"context"
	"errors"

	"github.com/menta2k/boxlabel/pkg/types"
)

// ErrNotFound is returned when the dataset or image is unknown to the store
var ErrNotFound = errors.New("labels: not found")

// Store fetches and persists the boxes of one image at a time
type Store interface {
	// GetLabels returns the boxes and pixel dimensions of an image
	GetLabels(ctx context.Context, datasetID, imagePath string) (*types.LabelSet, error)
	// SaveLabels replaces the boxes of an image
	SaveLabels(ctx context.Context, datasetID, imagePath string, boxes []types.Box) error
}

// Lister is implemented by stores that can enumerate a dataset's images
type Lister interface {
	ListImages(ctx context.Context, datasetID string) ([]string, error)
}

// savePayload is the body of a label save request
type savePayload struct {
	Boxes []types.Box `json:"boxes"`
}
