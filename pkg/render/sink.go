package render

import (
	"image"
	"sync"
)

// Sink renders frames and keeps the most recent result.
// It satisfies the editor's render target.
type Sink struct {
	renderer *Renderer

	mu     sync.Mutex
	last   *image.NRGBA
	frames int
}

// NewSink wraps a renderer; nil uses the default renderer
func NewSink(r *Renderer) *Sink {
	if r == nil {
		r = New()
	}
	return &Sink{renderer: r}
}

// Draw renders the frame. On error the previous frame is kept.
func (s *Sink) Draw(f Frame) error {
	img, err := s.renderer.Render(f)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.last = img
	s.frames++
	s.mu.Unlock()
	return nil
}

// Last returns the most recently rendered frame, or nil
func (s *Sink) Last() *image.NRGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Frames returns how many frames have been rendered
func (s *Sink) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}
