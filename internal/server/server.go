// Package server exposes label stores, dataset images, overlay previews and
// box suggestions over a small REST API.
package server

import (
	"context"
	"crypto/subtle"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/menta2k/boxlabel/pkg/imageio"
	"github.com/menta2k/boxlabel/pkg/labels"
	"github.com/menta2k/boxlabel/pkg/render"
	"github.com/menta2k/boxlabel/pkg/session"
	"github.com/menta2k/boxlabel/pkg/suggest"
	"github.com/menta2k/boxlabel/pkg/types"
)

// RequestIDHeader carries the per-request id
const RequestIDHeader = "X-Request-ID"

// Options wires the server to its collaborators. Store and Images are required.
type Options struct {
	Store     labels.Store
	Images    session.ImageSource
	Suggester suggest.Suggester
	Renderer  *render.Renderer
	Classes   types.ClassMap
	// Token enables bearer authentication on /api routes when non-empty
	Token        string
	Logger       *zap.Logger
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	BodyLimit    int
	// AccessLog enables the request log middleware
	AccessLog bool
}

// Server is the label backend
type Server struct {
	app       *fiber.App
	store     labels.Store
	images    session.ImageSource
	suggester suggest.Suggester
	renderer  *render.Renderer
	classes   types.ClassMap
	token     string
	loader    *imageio.Loader
	logger    *zap.Logger
}

// New builds the fiber app and registers all routes
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Renderer == nil {
		opts.Renderer = render.New()
	}

	s := &Server{
		store:     opts.Store,
		images:    opts.Images,
		suggester: opts.Suggester,
		renderer:  opts.Renderer,
		classes:   opts.Classes,
		token:     opts.Token,
		loader:    imageio.New(),
		logger:    opts.Logger,
	}

	s.app = fiber.New(fiber.Config{
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		BodyLimit:    opts.BodyLimit,
		AppName:      "boxlabel",
	})

	s.app.Use(recover.New())
	s.app.Use(requestID)
	if opts.AccessLog {
		s.app.Use(logger.New(logger.Config{
			Format:     "[${time}] ${status} - ${latency} ${method} ${path} | ${respHeader:X-Request-ID}\n",
			TimeFormat: "15:04:05",
			TimeZone:   "Local",
		}))
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Get("/health/live", s.live)
	s.app.Get("/health/ready", s.ready)

	api := s.app.Group("/api/v1", s.authorize)
	api.Get("/datasets/:id/images", s.listImages)
	api.Get("/datasets/:id/labels", s.getLabels)
	api.Put("/datasets/:id/labels", s.saveLabels)
	api.Get("/datasets/:id/image", s.getImage)
	api.Get("/datasets/:id/preview", s.preview)
	api.Post("/datasets/:id/suggest", s.suggestDataset)
	api.Post("/suggest", s.suggestUpload)
}

// App returns the underlying fiber app
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown
func (s *Server) Listen(addr string) error {
	s.logger.Info("label server listening", zap.String("addr", addr))
	return s.app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// authorize accepts "Authorization: Bearer <token>" or a token query parameter
func (s *Server) authorize(c fiber.Ctx) error {
	if s.token == "" {
		return c.Next()
	}
	token := c.Query("token")
	if auth := c.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		token = strings.TrimPrefix(auth, "Bearer ")
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.token)) != 1 {
		return fail(c, fiber.StatusUnauthorized, "unauthorized")
	}
	return c.Next()
}

func requestID(c fiber.Ctx) error {
	id := c.Get(RequestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	c.Set(RequestIDHeader, id)
	return c.Next()
}

func fail(c fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"error": msg})
}
