package labels

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/menta2k/boxlabel/internal/utils"
	"github.com/menta2k/boxlabel/pkg/imageio"
	"github.com/menta2k/boxlabel/pkg/types"
)

// YOLOStore reads and writes a dataset directory laid out as
//
//	<root>/<dataset>/images/<path>
//	<root>/<dataset>/labels/<path without extension>.txt
type YOLOStore struct {
	root   string
	logger *zap.Logger
}

// NewYOLOStore creates a store rooted at root
func NewYOLOStore(root string, logger *zap.Logger) *YOLOStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &YOLOStore{root: root, logger: logger}
}

// Root returns the directory holding all datasets
func (s *YOLOStore) Root() string {
	return s.root
}

// ImageFile resolves the on-disk path of an image
func (s *YOLOStore) ImageFile(datasetID, imagePath string) (string, error) {
	dataset, err := s.datasetDir(datasetID)
	if err != nil {
		return "", err
	}
	return utils.SafeJoin(filepath.Join(dataset, "images"), imagePath)
}

// LabelFile resolves the on-disk path of an image's label file
func (s *YOLOStore) LabelFile(datasetID, imagePath string) (string, error) {
	dataset, err := s.datasetDir(datasetID)
	if err != nil {
		return "", err
	}
	return utils.SafeJoin(filepath.Join(dataset, "labels"), utils.LabelFileFor(imagePath))
}

// GetLabels reads the label file; an image without one has no boxes
func (s *YOLOStore) GetLabels(ctx context.Context, datasetID, imagePath string) (*types.LabelSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	imgFile, err := s.ImageFile(datasetID, imagePath)
	if err != nil {
		return nil, err
	}
	if !utils.FileExists(imgFile) {
		return nil, fmt.Errorf("%s/%s: %w", datasetID, imagePath, ErrNotFound)
	}

	width, height, err := imageio.Dimensions(imgFile)
	if err != nil {
		return nil, err
	}

	labelFile, err := s.LabelFile(datasetID, imagePath)
	if err != nil {
		return nil, err
	}

	set := &types.LabelSet{Boxes: []types.Box{}, ImageWidth: width, ImageHeight: height}
	data, err := os.ReadFile(labelFile)
	if os.IsNotExist(err) {
		return set, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read labels: %w", err)
	}

	boxes, err := ParseYOLO(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", labelFile, err)
	}
	set.Boxes = boxes
	return set, nil
}

// SaveLabels rewrites the label file atomically
func (s *YOLOStore) SaveLabels(ctx context.Context, datasetID, imagePath string, boxes []types.Box) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	imgFile, err := s.ImageFile(datasetID, imagePath)
	if err != nil {
		return err
	}
	if !utils.FileExists(imgFile) {
		return fmt.Errorf("%s/%s: %w", datasetID, imagePath, ErrNotFound)
	}

	labelFile, err := s.LabelFile(datasetID, imagePath)
	if err != nil {
		return err
	}
	if err := utils.EnsureDir(filepath.Dir(labelFile)); err != nil {
		return fmt.Errorf("failed to create label directory: %w", err)
	}

	var buf bytes.Buffer
	if err := FormatYOLO(&buf, boxes); err != nil {
		return err
	}

	tmp := labelFile + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write labels: %w", err)
	}
	if err := os.Rename(tmp, labelFile); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace labels: %w", err)
	}

	s.logger.Debug("labels written",
		zap.String("dataset", datasetID),
		zap.String("image", imagePath),
		zap.Int("boxes", len(boxes)))
	return nil
}

// ListImages returns the dataset's image paths, sorted
func (s *YOLOStore) ListImages(ctx context.Context, datasetID string) ([]string, error) {
	dataset, err := s.datasetDir(datasetID)
	if err != nil {
		return nil, err
	}
	images := filepath.Join(dataset, "images")
	if !utils.DirExists(images) {
		return nil, fmt.Errorf("dataset %s: %w", datasetID, ErrNotFound)
	}
	return utils.ListImageFiles(images)
}

func (s *YOLOStore) datasetDir(datasetID string) (string, error) {
	if datasetID == "" || datasetID != filepath.Base(datasetID) {
		return "", fmt.Errorf("invalid dataset id %q", datasetID)
	}
	return utils.SafeJoin(s.root, datasetID)
}
