package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"

	"github.com/menta2k/boxlabel/pkg/boxstore"
	"github.com/menta2k/boxlabel/pkg/labels"
	"github.com/menta2k/boxlabel/pkg/types"
)

// edgeTolerance admits boxes that a lossy exporter pushed just past an image
// edge; they are clamped back inside before saving
const edgeTolerance = 1e-6

type labelsRequest struct {
	Boxes []types.Box `json:"boxes"`
}

type boxesResponse struct {
	Boxes []types.Box `json:"boxes"`
}

func (s *Server) live(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "alive"})
}

// ready pings the store when it supports it (e.g. the redis cache)
func (s *Server) ready(c fiber.Ctx) error {
	if p, ok := s.store.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(c.Context()); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			return fail(c, fiber.StatusServiceUnavailable, "store unavailable")
		}
	}
	return c.JSON(fiber.Map{"status": "ready"})
}

func (s *Server) listImages(c fiber.Ctx) error {
	lister, ok := s.store.(labels.Lister)
	if !ok {
		return fail(c, fiber.StatusNotImplemented, "store cannot list images")
	}
	images, err := lister.ListImages(c.Context(), c.Params("id"))
	if err != nil {
		return s.storeError(c, "list images", err)
	}
	if images == nil {
		images = []string{}
	}
	return c.JSON(fiber.Map{"images": images})
}

func (s *Server) getLabels(c fiber.Ctx) error {
	imagePath := c.Query("image")
	if imagePath == "" {
		return fail(c, fiber.StatusBadRequest, "image query parameter required")
	}
	set, err := s.store.GetLabels(c.Context(), c.Params("id"), imagePath)
	if err != nil {
		return s.storeError(c, "get labels", err)
	}
	return c.JSON(set)
}

func (s *Server) saveLabels(c fiber.Ctx) error {
	imagePath := c.Query("image")
	if imagePath == "" {
		return fail(c, fiber.StatusBadRequest, "image query parameter required")
	}
	if len(c.Body()) == 0 {
		return fail(c, fiber.StatusBadRequest, "body required")
	}

	var req labelsRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid JSON payload")
	}
	for i, b := range req.Boxes {
		switch {
		case b.Valid():
		case b.Within(edgeTolerance):
			req.Boxes[i] = boxstore.Clamp(b)
		default:
			return fail(c, fiber.StatusBadRequest, fmt.Sprintf("box %d is outside the image", i))
		}
	}
	if req.Boxes == nil {
		req.Boxes = []types.Box{}
	}

	if err := s.store.SaveLabels(c.Context(), c.Params("id"), imagePath, req.Boxes); err != nil {
		return s.storeError(c, "save labels", err)
	}
	s.logger.Debug("labels saved",
		zap.String("dataset", c.Params("id")),
		zap.String("image", imagePath),
		zap.Int("boxes", len(req.Boxes)))
	return c.JSON(fiber.Map{"status": "saved", "count": len(req.Boxes)})
}

// getImage streams the dataset image as PNG. The token may come as a query
// parameter since image elements cannot send headers.
func (s *Server) getImage(c fiber.Ctx) error {
	imagePath := c.Query("path")
	if imagePath == "" {
		return fail(c, fiber.StatusBadRequest, "path query parameter required")
	}
	img, err := s.images.Open(c.Context(), c.Params("id"), imagePath)
	if err != nil {
		s.logger.Debug("image not available", zap.String("path", imagePath), zap.Error(err))
		return fail(c, fiber.StatusNotFound, "image not found")
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return fail(c, fiber.StatusInternalServerError, "failed to encode image")
	}
	c.Set("Content-Type", "image/png")
	return c.Send(buf.Bytes())
}

// preview renders the stored boxes over the image
func (s *Server) preview(c fiber.Ctx) error {
	imagePath := c.Query("image")
	if imagePath == "" {
		return fail(c, fiber.StatusBadRequest, "image query parameter required")
	}
	set, err := s.store.GetLabels(c.Context(), c.Params("id"), imagePath)
	if err != nil {
		return s.storeError(c, "get labels", err)
	}
	img, err := s.images.Open(c.Context(), c.Params("id"), imagePath)
	if err != nil {
		return fail(c, fiber.StatusNotFound, "image not found")
	}

	out, err := s.renderer.Overlay(img, set.Boxes, s.classes)
	if err != nil {
		s.logger.Error("preview render failed", zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, err.Error())
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.PNG); err != nil {
		return fail(c, fiber.StatusInternalServerError, "failed to encode preview")
	}
	c.Set("Content-Type", "image/png")
	return c.Send(buf.Bytes())
}

func (s *Server) suggestDataset(c fiber.Ctx) error {
	if s.suggester == nil {
		return fail(c, fiber.StatusServiceUnavailable, "suggestions are disabled")
	}
	imagePath := c.Query("image")
	if imagePath == "" {
		return fail(c, fiber.StatusBadRequest, "image query parameter required")
	}
	img, err := s.images.Open(c.Context(), c.Params("id"), imagePath)
	if err != nil {
		return fail(c, fiber.StatusNotFound, "image not found")
	}
	return s.respondSuggestions(c, img)
}

// suggestUpload accepts a multipart "image" file
func (s *Server) suggestUpload(c fiber.Ctx) error {
	if s.suggester == nil {
		return fail(c, fiber.StatusServiceUnavailable, "suggestions are disabled")
	}
	file, err := c.FormFile("image")
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "image required in multipart/form-data")
	}
	f, err := file.Open()
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "failed to open file")
	}
	defer f.Close()

	img, err := s.loader.Decode(f)
	if err != nil {
		return fail(c, fiber.StatusBadRequest, err.Error())
	}
	return s.respondSuggestions(c, img)
}

func (s *Server) respondSuggestions(c fiber.Ctx, img image.Image) error {
	boxes, err := s.suggester.SuggestImage(c.Context(), img, s.classes)
	if err != nil {
		s.logger.Error("suggestion failed", zap.Error(err))
		return fail(c, fiber.StatusBadGateway, err.Error())
	}
	if boxes == nil {
		boxes = []types.Box{}
	}
	return c.JSON(boxesResponse{Boxes: boxes})
}

// storeError maps store failures to HTTP statuses
func (s *Server) storeError(c fiber.Ctx, op string, err error) error {
	if errors.Is(err, labels.ErrNotFound) {
		return fail(c, fiber.StatusNotFound, "not found")
	}
	s.logger.Error(op+" failed", zap.Error(err))
	return fail(c, fiber.StatusInternalServerError, err.Error())
}
