// Package session drives one editor across the images of a dataset: it loads
// labels and pixels for the image being navigated to, discards loads that a
// newer navigation superseded, and persists boxes on save.
package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/menta2k/boxlabel/pkg/editor"
	"github.com/menta2k/boxlabel/pkg/labels"
)

var (
	// ErrStale is returned by a load that a newer Open superseded
	ErrStale = errors.New("session: load superseded by a newer navigation")
	// ErrSaveInProgress is returned when a save is submitted while one is running
	ErrSaveInProgress = errors.New("session: save already in progress")
	// ErrNoImage is returned when saving before any image is ready
	ErrNoImage = errors.New("session: no image open")
	// ErrEndOfList is returned when navigating past either end of the image list
	ErrEndOfList = errors.New("session: no more images")
)

// Status is the load state of the session
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusReady
	StatusLoadFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusLoadFailed:
		return "load_failed"
	default:
		return "unknown"
	}
}

// Option configures a Session
type Option func(*Session)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option { return func(s *Session) { s.logger = l } }

// WithContainer sets the size of the area the canvas is fitted into
func WithContainer(width, height float64) Option {
	return func(s *Session) { s.containerW, s.containerH = width, height }
}

// WithImages sets the navigation order used by Next and Previous
func WithImages(paths []string) Option {
	return func(s *Session) { s.images = slices.Clone(paths) }
}

// Session ties a label store and an image source to an editor
type Session struct {
	store  labels.Store
	source ImageSource
	logger *zap.Logger

	containerW, containerH float64

	mu      sync.Mutex
	editor  *editor.Editor
	gen     uint64
	cancel  context.CancelFunc
	status  Status
	saving  bool
	dataset string
	image   string
	id      string
	lastErr error
	images  []string
}

// New creates an idle session
func New(store labels.Store, source ImageSource, ed *editor.Editor, opts ...Option) *Session {
	s := &Session{
		store:      store,
		source:     source,
		editor:     ed,
		logger:     zap.NewNop(),
		containerW: 1280,
		containerH: 800,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Open loads labels and pixels for an image and hands them to the editor.
// Any load still in flight is cancelled; if this load is itself superseded
// before it finishes it returns ErrStale and leaves the editor untouched.
func (s *Session) Open(ctx context.Context, datasetID, imagePath string) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.gen++
	gen := s.gen
	loadCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.status = StatusLoading
	s.mu.Unlock()

	s.logger.Debug("loading image",
		zap.String("dataset", datasetID),
		zap.String("image", imagePath))

	set, err := s.store.GetLabels(loadCtx, datasetID, imagePath)
	if err == nil {
		img, imgErr := s.source.Open(loadCtx, datasetID, imagePath)
		if imgErr != nil {
			err = fmt.Errorf("load image: %w", imgErr)
		} else {
			s.mu.Lock()
			defer s.mu.Unlock()
			if gen != s.gen {
				return ErrStale
			}
			s.finishLoad(cancel)
			s.editor.Load(*set, img, s.containerW, s.containerH)
			s.status = StatusReady
			s.dataset, s.image = datasetID, imagePath
			s.id = uuid.NewString()
			s.lastErr = nil
			s.logger.Info("image ready",
				zap.String("session", s.id),
				zap.String("dataset", datasetID),
				zap.String("image", imagePath),
				zap.Int("boxes", len(set.Boxes)))
			return nil
		}
	} else {
		err = fmt.Errorf("load labels: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return ErrStale
	}
	s.finishLoad(cancel)
	s.status = StatusLoadFailed
	s.lastErr = err
	s.logger.Warn("image load failed",
		zap.String("dataset", datasetID),
		zap.String("image", imagePath),
		zap.Error(err))
	return fmt.Errorf("open %s/%s: %w", datasetID, imagePath, err)
}

// finishLoad releases the load context; callers hold mu
func (s *Session) finishLoad(cancel context.CancelFunc) {
	cancel()
	s.cancel = nil
}

// Save persists the editor's boxes for the open image. The boxes stay in the
// editor whatever the outcome, so a failed save can be retried.
func (s *Session) Save(ctx context.Context) error {
	s.mu.Lock()
	if s.status != StatusReady {
		s.mu.Unlock()
		return ErrNoImage
	}
	if s.saving {
		s.mu.Unlock()
		return ErrSaveInProgress
	}
	s.saving = true
	boxes := s.editor.Boxes()
	dataset, imagePath, id := s.dataset, s.image, s.id
	s.mu.Unlock()

	err := s.store.SaveLabels(ctx, dataset, imagePath, boxes)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.saving = false
	if err != nil {
		s.logger.Warn("save failed",
			zap.String("session", id),
			zap.String("image", imagePath),
			zap.Error(err))
		return fmt.Errorf("save %s/%s: %w", dataset, imagePath, err)
	}

	// Edits made while the request was in flight stay dirty
	if s.id == id && slices.Equal(s.editor.Boxes(), boxes) {
		s.editor.MarkClean()
	}
	s.logger.Info("labels saved",
		zap.String("session", id),
		zap.String("image", imagePath),
		zap.Int("boxes", len(boxes)))
	return nil
}

// SaveAndAdvance saves and, only on success, opens next in the same dataset
func (s *Session) SaveAndAdvance(ctx context.Context, next string) error {
	if err := s.Save(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	dataset := s.dataset
	s.mu.Unlock()
	return s.Open(ctx, dataset, next)
}

// Next saves and opens the following image in the navigation order
func (s *Session) Next(ctx context.Context) error {
	return s.step(ctx, 1)
}

// Previous saves and opens the preceding image in the navigation order
func (s *Session) Previous(ctx context.Context) error {
	return s.step(ctx, -1)
}

func (s *Session) step(ctx context.Context, delta int) error {
	s.mu.Lock()
	i := slices.Index(s.images, s.image)
	target := i + delta
	if i < 0 || target < 0 || target >= len(s.images) {
		s.mu.Unlock()
		return ErrEndOfList
	}
	next := s.images[target]
	s.mu.Unlock()
	return s.SaveAndAdvance(ctx, next)
}

// Do runs fn with exclusive access to the editor. Hosts that deliver input
// events on a different goroutine than loads complete on should go through Do.
func (s *Session) Do(fn func(*editor.Editor)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.editor)
}

// Status returns the load state
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Saving reports whether a save request is in flight
func (s *Session) Saving() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saving
}

// ID identifies the current opened image; it changes on every successful Open
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Current returns the dataset and image path of the open image
func (s *Session) Current() (datasetID, imagePath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dataset, s.image
}

// Err returns the error of the last failed load, or nil
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Images returns the navigation order
func (s *Session) Images() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.images)
}

// SetImages replaces the navigation order
func (s *Session) SetImages(paths []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images = slices.Clone(paths)
}

// Close cancels any in-flight load
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.gen++
	return nil
}
