// Package web serves the booth dashboard: a REST surface for capture and
// settings, plus websocket feeds for live status and preview frames.
package web

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/framefit/passportcam/internal/log"
	"github.com/framefit/passportcam/internal/store"
	"github.com/framefit/passportcam/pkg/hub"
	"github.com/framefit/passportcam/pkg/validity"
)

// Booth is the capture surface the dashboard drives. *pipeline.Pipeline
// satisfies it.
type Booth interface {
	Status() validity.Status
	HasValidFace() bool
	Guide() validity.Rect
	RequestCapture() bool
	SetBackground(on bool)
	Background() bool
	SetViewport(w, h float64)
}

// Config holds the server settings.
type Config struct {
	// Port to listen on.
	Port string

	// StaticDir serves the dashboard frontend when non-empty.
	StaticDir string
}

// DefaultConfig returns the standard server settings.
func DefaultConfig() Config {
	return Config{Port: "8090", StaticDir: "./web"}
}

// Server is the booth's HTTP and websocket frontend.
type Server struct {
	app    *fiber.App
	cfg    Config
	booth  Booth
	photos *store.Store
	drive  *store.DriveUploader

	statusHub  *hub.Hub
	previewHub *hub.Hub
}

// NewServer wires the routes. drive may be nil when the Drive mirror is not
// configured.
func NewServer(cfg Config, booth Booth, photos *store.Store, drive *store.DriveUploader) *Server {
	s := &Server{
		cfg:        cfg,
		booth:      booth,
		photos:     photos,
		drive:      drive,
		statusHub:  hub.New("status"),
		previewHub: hub.New("preview"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "passportcam",
		DisableStartupMessage: true,
	})

	app.Use(cors.New())

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Post("/capture", s.handleCapture)
	api.Post("/background", s.handleBackground)
	api.Post("/viewport", s.handleViewport)
	api.Get("/photos", s.handleListPhotos)
	api.Get("/photos/:id", s.handleGetPhoto)
	api.Delete("/photos/:id", s.handleDeletePhoto)

	if drive != nil {
		api.Get("/drive/status", s.handleDriveStatus)
		api.Get("/drive/auth", s.handleDriveAuth)
		api.Get("/drive/callback", s.handleDriveCallback)
	}

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/preview", websocket.New(s.handlePreviewWS))

	s.app = app
	return s
}

// Start runs the hubs and listens. Blocks until the listener fails or
// Shutdown is called; ctx cancellation stops the hubs.
func (s *Server) Start(ctx context.Context) error {
	go s.statusHub.Run(ctx)
	go s.previewHub.Run(ctx)

	log.Info("dashboard listening", "port", s.cfg.Port)
	return s.app.Listen(":" + s.cfg.Port)
}

// Shutdown gracefully stops the listener.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// statusPayload is the status feed wire format.
type statusPayload struct {
	Kind       string  `json:"kind"`
	Status     string  `json:"status"`
	Valid      bool    `json:"valid"`
	Background bool    `json:"background"`
	Guide      rectDTO `json:"guide"`
}

type rectDTO struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

func toRectDTO(r validity.Rect) rectDTO {
	return rectDTO{X: r.X, Y: r.Y, W: r.W, H: r.H}
}

// PublishStatus broadcasts a validity transition to status subscribers.
func (s *Server) PublishStatus(status validity.Status, valid bool) {
	s.statusHub.BroadcastJSON(statusPayload{
		Kind:       "status",
		Status:     status.String(),
		Valid:      valid,
		Background: s.booth.Background(),
		Guide:      toRectDTO(s.booth.Guide()),
	})
}

// PublishPreview broadcasts a preview frame to preview subscribers.
func (s *Server) PublishPreview(jpeg []byte) {
	s.previewHub.BroadcastBinary(jpeg)
}

// photoEvent is pushed on the status feed when a capture lands.
type photoEvent struct {
	Kind  string      `json:"kind"`
	Photo store.Entry `json:"photo"`
}

// PublishPhoto announces a finished capture on the status feed.
func (s *Server) PublishPhoto(entry store.Entry) {
	s.statusHub.BroadcastJSON(photoEvent{Kind: "photo", Photo: entry})
}

// captureFailedEvent is pushed when a capture request could not complete.
type captureFailedEvent struct {
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

// PublishCaptureFailed announces a failed capture attempt on the status feed.
func (s *Server) PublishCaptureFailed(err error) {
	s.statusHub.BroadcastJSON(captureFailedEvent{Kind: "capture_failed", Error: err.Error()})
}
