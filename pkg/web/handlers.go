package web

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-dms/pkg/camera"
	"github.com/teslashibe/go-dms/pkg/hub"
	"github.com/teslashibe/go-dms/pkg/transform"
)

var errNoCamera = fiber.NewError(fiber.StatusServiceUnavailable, "camera not configured")

// handleError renders every error as {"error": "..."}.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		s.logger.Warn("request failed", "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

// handleStatus returns camera state and pipeline counters
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.status())
}

// handlePresets lists the camera config presets
func (s *Server) handlePresets(c *fiber.Ctx) error {
	return c.JSON(camera.Presets())
}

func (s *Server) handleGetConfig(c *fiber.Ctx) error {
	if s.opts.Camera == nil {
		return errNoCamera
	}
	return c.JSON(s.opts.Camera.Config())
}

// handleUpdateConfig applies a partial config. A running camera is reopened
// with the new config.
func (s *Server) handleUpdateConfig(c *fiber.Ctx) error {
	mgr := s.opts.Camera
	if mgr == nil {
		return errNoCamera
	}

	var params map[string]interface{}
	if err := c.BodyParser(&params); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
	}
	if err := mgr.UpdateConfig(params); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	cfg := mgr.Config()
	if mgr.State() != camera.StateClosed {
		if err := mgr.Open(c.UserContext(), cfg.Facing); err != nil {
			return openError(err)
		}
	}
	s.logger.Info("camera config updated", "width", cfg.Width, "height", cfg.Height, "format", cfg.Format)
	return c.JSON(cfg)
}

// FacingRequest selects a camera. Facing is "front", "back", "external"
// or "toggle".
type FacingRequest struct {
	Facing string `json:"facing"`
}

func (s *Server) handleFacing(c *fiber.Ctx) error {
	mgr := s.opts.Camera
	if mgr == nil {
		return errNoCamera
	}

	var req FacingRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
	}

	if req.Facing == "" || strings.EqualFold(req.Facing, "toggle") {
		if _, err := mgr.Switch(c.UserContext()); err != nil {
			return openError(err)
		}
	} else {
		f, err := transform.ParseFacing(req.Facing)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := mgr.Open(c.UserContext(), f); err != nil {
			return openError(err)
		}
	}
	return c.JSON(mgr.Status())
}

func (s *Server) handleClose(c *fiber.Ctx) error {
	if s.opts.Camera == nil {
		return errNoCamera
	}
	s.opts.Camera.Close()
	return c.JSON(s.opts.Camera.Status())
}

// OrientationRequest sets the display rotation, either in degrees or as a
// surface rotation code 0..3.
type OrientationRequest struct {
	DisplayRotation *int `json:"display_rotation"`
	SurfaceRotation *int `json:"surface_rotation"`
}

func (s *Server) handleOrientation(c *fiber.Ctx) error {
	p := s.opts.Pipeline
	if p == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "pipeline not configured")
	}

	var req OrientationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
	}
	switch {
	case req.DisplayRotation != nil:
		p.SetDisplayRotation(*req.DisplayRotation)
	case req.SurfaceRotation != nil:
		p.SetDisplayRotation(transform.DisplayRotationFromSurface(*req.SurfaceRotation))
	default:
		return fiber.NewError(fiber.StatusBadRequest, "display_rotation or surface_rotation required")
	}
	return c.JSON(fiber.Map{"inputs": p.Inputs(), "params": p.Params()})
}

// handleFrame returns the latest encoded frame
func (s *Server) handleFrame(c *fiber.Ctx) error {
	if s.opts.Snapshot == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "no frame source")
	}
	data := s.opts.Snapshot()
	if len(data) == 0 {
		return fiber.NewError(fiber.StatusNotFound, "no frame yet")
	}
	c.Set(fiber.HeaderContentType, "image/jpeg")
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.Send(data)
}

func openError(err error) error {
	switch {
	case errors.Is(err, camera.ErrNoDevice):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case camera.IsAccessError(err):
		return fiber.NewError(fiber.StatusForbidden, err.Error())
	case camera.IsClosed(err):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	}
	return err
}

// handleCameraWS streams JPEG frames to the client
func (s *Server) handleCameraWS(c *websocket.Conn) {
	client, err := hub.NewClient(s.cameraHub, c)
	if err != nil {
		return
	}
	client.Run()
}

// handleStatusWS sends the current status, then live updates
func (s *Server) handleStatusWS(c *websocket.Conn) {
	msg, err := hub.NewEvent("status", s.status())
	if err == nil {
		err = c.WriteMessage(websocket.TextMessage, msg.Data)
	}
	if err != nil {
		s.logger.Debug("initial status not sent", "error", err)
	}
	client, err := hub.NewClient(s.statusHub, c)
	if err != nil {
		return
	}
	client.Run()
}
