// Package booth assembles the camera source, detection pipeline, archive,
// and dashboard into one application.
package booth

import (
	"fmt"

	"github.com/framefit/passportcam/internal/config"
	"github.com/framefit/passportcam/pkg/validity"
)

// Source kinds.
const (
	SourceWebcam = "webcam"
	SourceRemote = "remote"
)

// Config holds all configuration for the booth application.
// Flag parsing is done in cmd/boothd; this struct is data only.
type Config struct {
	// Debug enables verbose debug logging.
	Debug bool

	// Port for the dashboard server.
	Port string

	// StaticDir serves the dashboard frontend when non-empty.
	StaticDir string

	// Source selects the camera: "webcam" or "remote".
	Source string

	// Webcam settings.
	CameraDevice int
	CameraWidth  int
	CameraHeight int

	// Remote camera settings.
	SignallingURL string
	ProducerName  string

	// Model files.
	FaceModelPath string
	SegModelPath  string

	// PhotosDir is the archive directory.
	PhotosDir string

	// Preset selects the validity thresholds: "default", "relaxed", "strict".
	Preset string

	// Background starts with background replacement enabled.
	Background bool

	// Google OAuth for the optional Drive mirror.
	DriveClientID     string
	DriveClientSecret string
	DriveFolderID     string
}

// DefaultConfig returns sensible defaults for the booth.
func DefaultConfig() Config {
	return Config{
		Port:          "8090",
		StaticDir:     "./web",
		Source:        SourceWebcam,
		CameraDevice:  0,
		CameraWidth:   1280,
		CameraHeight:  720,
		FaceModelPath: "models/face_detection_yunet.onnx",
		SegModelPath:  "models/selfie_segmentation.onnx",
		PhotosDir:     "photos",
		Preset:        "default",
	}
}

// LoadEnvConfig applies environment overrides. Call after flag parsing.
func (c *Config) LoadEnvConfig() {
	c.Port = config.Get("BOOTH_PORT", c.Port)
	c.PhotosDir = config.Get("BOOTH_PHOTOS_DIR", c.PhotosDir)
	c.FaceModelPath = config.Get("BOOTH_FACE_MODEL", c.FaceModelPath)
	c.SegModelPath = config.Get("BOOTH_SEG_MODEL", c.SegModelPath)
	c.SignallingURL = config.Get("BOOTH_SIGNALLING_URL", c.SignallingURL)
	c.CameraDevice = config.GetInt("BOOTH_CAMERA_DEVICE", c.CameraDevice)

	c.DriveClientID = config.Get("GOOGLE_CLIENT_ID", c.DriveClientID)
	c.DriveClientSecret = config.Get("GOOGLE_CLIENT_SECRET", c.DriveClientSecret)
	c.DriveFolderID = config.Get("GOOGLE_DRIVE_FOLDER", c.DriveFolderID)
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Source {
	case SourceWebcam:
	case SourceRemote:
		if c.SignallingURL == "" {
			return &ConfigError{Field: "SignallingURL",
				Message: "remote source requires a signalling URL"}
		}
	default:
		return &ConfigError{Field: "Source",
			Message: fmt.Sprintf("unknown source %q", c.Source)}
	}

	if c.FaceModelPath == "" {
		return &ConfigError{Field: "FaceModelPath",
			Message: "face detection model path is required"}
	}
	if _, err := c.Thresholds(); err != nil {
		return &ConfigError{Field: "Preset", Message: err.Error()}
	}
	return nil
}

// Thresholds resolves the preset name.
func (c *Config) Thresholds() (validity.Thresholds, error) {
	switch c.Preset {
	case "", "default":
		return validity.DefaultThresholds(), nil
	case "relaxed":
		return validity.RelaxedThresholds(), nil
	case "strict":
		return validity.StrictThresholds(), nil
	default:
		return validity.Thresholds{}, fmt.Errorf("unknown preset %q", c.Preset)
	}
}

// ConfigError describes a configuration validation failure.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}
