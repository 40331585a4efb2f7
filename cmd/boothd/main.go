// Booth daemon: on-device passport photo capture with a live dashboard.
package main

import (
	"context"
	"flag"
	stdlog "log"
	"os/signal"
	"syscall"

	"github.com/framefit/passportcam/internal/config"
	"github.com/framefit/passportcam/internal/log"
	"github.com/framefit/passportcam/pkg/booth"
)

func main() {
	config.Load()
	cfg := parseFlags()

	if cfg.Debug {
		log.Init("debug")
	} else {
		log.Init("info")
	}

	app, err := booth.New(cfg)
	if err != nil {
		stdlog.Fatalf("configuration error: %v", err)
	}

	if err := app.Init(); err != nil {
		stdlog.Fatalf("initialization failed: %v", err)
	}
	defer app.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx); err != nil {
		stdlog.Fatalf("runtime error: %v", err)
	}
}

// parseFlags parses command line flags and applies environment overrides.
func parseFlags() booth.Config {
	cfg := booth.DefaultConfig()

	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	port := flag.String("port", cfg.Port, "Dashboard port")
	src := flag.String("source", cfg.Source, "Camera source: webcam, remote")
	device := flag.Int("camera", cfg.CameraDevice, "Webcam device index")
	signalling := flag.String("signalling-url", "", "Remote camera signalling URL")
	faceModel := flag.String("face-model", cfg.FaceModelPath, "Face detection model path")
	segModel := flag.String("seg-model", cfg.SegModelPath, "Selfie segmentation model path")
	photosDir := flag.String("photos", cfg.PhotosDir, "Photo archive directory")
	preset := flag.String("preset", cfg.Preset, "Validity preset: default, relaxed, strict")
	background := flag.Bool("background", false, "Start with background replacement enabled")
	staticDir := flag.String("static", cfg.StaticDir, "Dashboard static files directory")

	flag.Parse()

	cfg.Debug = *debug
	cfg.Port = *port
	cfg.Source = *src
	cfg.CameraDevice = *device
	cfg.SignallingURL = *signalling
	cfg.FaceModelPath = *faceModel
	cfg.SegModelPath = *segModel
	cfg.PhotosDir = *photosDir
	cfg.Preset = *preset
	cfg.Background = *background
	cfg.StaticDir = *staticDir

	cfg.LoadEnvConfig()
	return cfg
}
