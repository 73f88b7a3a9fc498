// Package boxlabel is the core of a bounding-box annotation console.
//
// An Editor holds the boxes of one image in normalized YOLO form and turns
// pointer and keyboard input into draw, select, delete, undo and redo
// operations, re-rendering the whole canvas after each change. A Session loads
// images and labels from a label store, discards loads that were overtaken by
// a newer navigation and guards saves against double submission.
//
// Basic usage:
//
//	cfg, _ := config.Load("boxlabel.yaml")
//	ws, err := boxlabel.Open(ctx, cfg, logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer ws.Close()
//
//	sink := render.NewSink(nil)
//	sess := ws.NewSession(sink)
//	if err := sess.Open(ctx, "cats", "train/001.jpg"); err != nil {
//		log.Fatal(err)
//	}
//	sess.Do(func(ed *editor.Editor) {
//		ed.PointerDown(100, 100, viewport.Bounds{})
//		ed.PointerMove(400, 300, viewport.Bounds{})
//		ed.PointerUp()
//	})
//	if err := sess.Save(ctx); err != nil {
//		log.Fatal(err)
//	}
//
// The package consists of these components:
//
//  1. Viewport (pkg/viewport): screen, canvas and normalized coordinate mapping
//  2. Box store and history (pkg/boxstore, pkg/history): boxes, clamping, bounded undo
//  3. Editor (pkg/editor): the interaction state machine and keyboard surface
//  4. Renderer (pkg/render): full-redraw raster of image, boxes and draft
//  5. Label stores (pkg/labels): HTTP backend, YOLO directory, SQLite, Redis cache
//  6. Session (pkg/session): per-image load and save lifecycle
//  7. Suggestions (pkg/suggest): vision-model and saliency pre-annotation
package boxlabel

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/menta2k/boxlabel/internal/config"
	"github.com/menta2k/boxlabel/internal/server"
	"github.com/menta2k/boxlabel/pkg/editor"
	"github.com/menta2k/boxlabel/pkg/imageio"
	"github.com/menta2k/boxlabel/pkg/labels"
	"github.com/menta2k/boxlabel/pkg/llamacpp"
	"github.com/menta2k/boxlabel/pkg/ollama"
	"github.com/menta2k/boxlabel/pkg/render"
	"github.com/menta2k/boxlabel/pkg/session"
	"github.com/menta2k/boxlabel/pkg/suggest"
	"github.com/menta2k/boxlabel/pkg/types"
)

// Version of the boxlabel library
const Version = "1.0.0"

// Workspace wires a configuration to concrete stores, image sources and
// suggesters
type Workspace struct {
	Config    *config.Config
	Store     labels.Store
	Images    session.ImageSource
	Suggester suggest.Suggester
	Logger    *zap.Logger

	closers []io.Closer
}

// Open builds the workspace described by cfg. Close releases its resources.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Workspace, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	w := &Workspace{Config: cfg, Logger: logger}
	loader := imageio.New()

	switch cfg.Store.Kind {
	case config.StoreYOLO:
		w.Store = labels.NewYOLOStore(cfg.Store.Root, logger)
		w.Images = session.FileSource{Root: cfg.Store.Root, Loader: loader}
	case config.StoreSQLite:
		db, err := labels.OpenSQLite(cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		store, err := labels.NewSQLiteStore(ctx, db)
		if err != nil {
			db.Close()
			return nil, err
		}
		w.Store = store
		w.closers = append(w.closers, store)
		w.Images = session.FileSource{Root: cfg.Store.Root, Loader: loader}
	case config.StoreHTTP:
		w.Store = labels.NewHTTPStore(cfg.Store.URL, cfg.Store.Token, cfg.Store.Timeout)
		w.Images = session.URLSource{BaseURL: cfg.Store.URL, Token: cfg.Store.Token, Loader: loader}
	}

	if cfg.Redis.Enabled {
		client := labels.NewRedisClient(labels.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL,
		})
		cached := labels.NewCachedStore(w.Store, client, cfg.Redis.TTL, logger)
		if err := cached.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, reads will go to the store", zap.Error(err))
		}
		w.Store = cached
		w.closers = append(w.closers, cached)
	}

	s, err := NewSuggester(cfg.Vision, logger)
	if err != nil {
		w.Close()
		return nil, err
	}
	w.Suggester = s
	return w, nil
}

// NewSuggester returns the suggester for the configured provider
func NewSuggester(cfg config.VisionConfig, logger *zap.Logger) (suggest.Suggester, error) {
	detectorConfig := suggest.DefaultConfig()
	detectorConfig.Model = cfg.Model
	detectorConfig.MinConfidence = cfg.MinConfidence
	if cfg.MaxBoxes > 0 {
		detectorConfig.MaxBoxes = cfg.MaxBoxes
	}
	if cfg.MaxDim > 0 {
		detectorConfig.MaxDim = cfg.MaxDim
	}

	switch cfg.Provider {
	case config.ProviderOllama:
		client, err := ollama.NewClient(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("ollama client: %w", err)
		}
		return suggest.NewDetector(client, detectorConfig, logger), nil
	case config.ProviderLlamaCpp:
		client, err := llamacpp.NewClient(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("llama.cpp client: %w", err)
		}
		return suggest.NewDetector(client, detectorConfig, logger), nil
	case config.ProviderSaliency, "":
		saliency := suggest.DefaultSaliencyConfig()
		if cfg.MaxBoxes > 0 && cfg.MaxBoxes < saliency.MaxBoxes {
			saliency.MaxBoxes = cfg.MaxBoxes
		}
		return suggest.NewSaliencyWithConfig(saliency), nil
	}
	return nil, fmt.Errorf("unknown vision provider %q", cfg.Provider)
}

// EditorConfig converts the editor section of the configuration
func (w *Workspace) EditorConfig() editor.Config {
	c := w.Config.Editor
	return editor.Config{
		MinBoxSize:   c.MinBoxSize,
		UndoDepth:    c.UndoDepth,
		MinZoom:      c.MinZoom,
		MaxZoom:      c.MaxZoom,
		DefaultClass: c.DefaultClass,
	}
}

// Renderer returns a renderer styled by the render section
func (w *Workspace) Renderer() *render.Renderer {
	opts := render.DefaultOptions()
	opts.ShowLabels = w.Config.Render.ShowLabels
	if w.Config.Render.BoxWidth > 0 {
		opts.Default.Width = w.Config.Render.BoxWidth
	}
	if w.Config.Render.SelectedWidth > 0 {
		opts.Selected.Width = w.Config.Render.SelectedWidth
	}
	return render.NewWithOptions(opts)
}

// NewEditor creates an editor drawing into target
func (w *Workspace) NewEditor(target editor.Target, opts ...editor.Option) *editor.Editor {
	base := []editor.Option{
		editor.WithRenderer(target),
		editor.WithLogger(w.Logger),
		editor.WithClasses(types.ClassMap(w.Config.Editor.Classes)),
	}
	return editor.New(w.EditorConfig(), append(base, opts...)...)
}

// NewSession creates a session over a fresh editor drawing into target
func (w *Workspace) NewSession(target editor.Target, opts ...session.Option) *session.Session {
	return w.SessionFor(w.NewEditor(target), opts...)
}

// SessionFor creates a session driving an existing editor
func (w *Workspace) SessionFor(ed *editor.Editor, opts ...session.Option) *session.Session {
	base := []session.Option{
		session.WithLogger(w.Logger),
		session.WithContainer(float64(w.Config.Editor.ContainerWidth), float64(w.Config.Editor.ContainerHeight)),
	}
	return session.New(w.Store, w.Images, ed, append(base, opts...)...)
}

// NewServer creates the label backend over the workspace
func (w *Workspace) NewServer() *server.Server {
	sc := w.Config.Server
	return server.New(server.Options{
		Store:        w.Store,
		Images:       w.Images,
		Suggester:    w.Suggester,
		Renderer:     w.Renderer(),
		Classes:      types.ClassMap(w.Config.Editor.Classes),
		Token:        sc.Token,
		Logger:       w.Logger,
		ReadTimeout:  sc.ReadTimeout,
		WriteTimeout: sc.WriteTimeout,
		BodyLimit:    sc.BodyLimit,
		AccessLog:    sc.Mode != "release",
	})
}

// Close releases database and cache connections
func (w *Workspace) Close() error {
	var errs []error
	for i := len(w.closers) - 1; i >= 0; i-- {
		if err := w.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	w.closers = nil
	return errors.Join(errs...)
}
