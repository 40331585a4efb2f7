package source

import (
	"context"
	"fmt"
	"sync"

	"gocv.io/x/gocv"

	"github.com/framefit/passportcam/internal/log"
	"github.com/framefit/passportcam/pkg/pipeline"
)

// WebcamConfig configures the local camera.
type WebcamConfig struct {
	// DeviceID is the V4L2 device index.
	DeviceID int

	// Requested capture resolution. Zero leaves the driver default.
	Width, Height int

	// JPEGQuality for frame encoding, 1-100.
	JPEGQuality int
}

// DefaultWebcamConfig returns the standard webcam settings.
func DefaultWebcamConfig() WebcamConfig {
	return WebcamConfig{
		DeviceID:    0,
		Width:       1280,
		Height:      720,
		JPEGQuality: 85,
	}
}

// Webcam reads frames from a local camera and keeps only the newest one.
type Webcam struct {
	cfg  WebcamConfig
	cap  *gocv.VideoCapture
	cell cell

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// OpenWebcam opens the device and starts the grab loop.
func OpenWebcam(cfg WebcamConfig) (*Webcam, error) {
	cap, err := gocv.OpenVideoCapture(cfg.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("source: open camera %d: %w", cfg.DeviceID, err)
	}

	if cfg.Width > 0 {
		cap.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	}
	if cfg.Height > 0 {
		cap.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}

	w := &Webcam{cfg: cfg, cap: cap}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.wg.Add(1)
	go w.grab(ctx)

	log.Info("webcam opened", "device", cfg.DeviceID,
		"width", cap.Get(gocv.VideoCaptureFrameWidth),
		"height", cap.Get(gocv.VideoCaptureFrameHeight))
	return w, nil
}

// grab pulls frames as fast as the camera delivers them. The consumer only
// ever sees the newest frame; the camera never backs up.
func (w *Webcam) grab(ctx context.Context) {
	defer w.wg.Done()

	img := gocv.NewMat()
	defer img.Close()

	for ctx.Err() == nil {
		if ok := w.cap.Read(&img); !ok || img.Empty() {
			continue
		}

		buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img,
			[]int{gocv.IMWriteJpegQuality, w.cfg.JPEGQuality})
		if err != nil {
			log.Warn("frame encode failed", "error", err)
			continue
		}
		jpeg := make([]byte, len(buf.GetBytes()))
		copy(jpeg, buf.GetBytes())
		buf.Close()

		w.cell.put(jpeg)
	}
}

// Frame returns the newest camera frame.
func (w *Webcam) Frame() (pipeline.Frame, error) {
	return w.cell.get()
}

// Close stops the grab loop and releases the device.
func (w *Webcam) Close() error {
	w.cancel()
	w.wg.Wait()
	return w.cap.Close()
}
