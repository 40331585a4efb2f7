package web

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/framefit/passportcam/internal/store"
	"github.com/framefit/passportcam/pkg/hub"
)

// handleStatus returns the current booth state.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(statusPayload{
		Kind:       "status",
		Status:     s.booth.Status().String(),
		Valid:      s.booth.HasValidFace(),
		Background: s.booth.Background(),
		Guide:      toRectDTO(s.booth.Guide()),
	})
}

// handleCapture arms the capture latch. 409 while a capture is already
// pending or in flight.
func (s *Server) handleCapture(c *fiber.Ctx) error {
	if !s.booth.RequestCapture() {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "capture already in progress",
		})
	}
	return c.JSON(fiber.Map{"accepted": true})
}

// backgroundRequest toggles background replacement.
type backgroundRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleBackground(c *fiber.Ctx) error {
	var req backgroundRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}
	s.booth.SetBackground(req.Enabled)
	return c.JSON(fiber.Map{"background": req.Enabled})
}

// viewportRequest resizes the view coordinate space the guide lives in.
type viewportRequest struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (s *Server) handleViewport(c *fiber.Ctx) error {
	var req viewportRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}
	if req.Width <= 0 || req.Height <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "viewport size must be positive",
		})
	}
	s.booth.SetViewport(req.Width, req.Height)
	return c.JSON(fiber.Map{"guide": toRectDTO(s.booth.Guide())})
}

// handleListPhotos returns the archive index, newest first.
func (s *Server) handleListPhotos(c *fiber.Ctx) error {
	return c.JSON(s.photos.List())
}

// handleGetPhoto streams one archived JPEG.
func (s *Server) handleGetPhoto(c *fiber.Ctx) error {
	data, err := s.photos.Get(c.Params("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "photo not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	c.Set(fiber.HeaderContentType, "image/jpeg")
	return c.Send(data)
}

func (s *Server) handleDeletePhoto(c *fiber.Ctx) error {
	if err := s.photos.Delete(c.Params("id")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "photo not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{"deleted": true})
}

// handleDriveStatus reports the Drive mirror connection state.
func (s *Server) handleDriveStatus(c *fiber.Ctx) error {
	connected := s.drive.IsAuthenticated()
	resp := fiber.Map{"connected": connected}
	if !connected {
		resp["auth_url"] = s.drive.AuthURL()
	}
	return c.JSON(resp)
}

func (s *Server) handleDriveAuth(c *fiber.Ctx) error {
	return c.Redirect(s.drive.AuthURL(), fiber.StatusTemporaryRedirect)
}

func (s *Server) handleDriveCallback(c *fiber.Ctx) error {
	code := c.Query("code")
	if code == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "missing authorization code",
		})
	}
	if err := s.drive.HandleCallback(code); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.SendString("Drive connected. You can close this window.")
}

// handleStatusWS attaches a client to the status feed. The hub replays the
// last status on connect.
func (s *Server) handleStatusWS(c *websocket.Conn) {
	hub.NewClient(s.statusHub, c).Run()
}

// handlePreviewWS attaches a client to the binary preview feed.
func (s *Server) handlePreviewWS(c *websocket.Conn) {
	hub.NewClient(s.previewHub, c).Run()
}
