package detect

import (
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

// SegmenterConfig holds segmentation model configuration
type SegmenterConfig struct {
	ModelPath string // Path to the selfie-segmentation ONNX model
	InputSize int    // Model input width and height (square)
}

// DefaultSegmenterConfig returns production defaults for selfie segmentation
func DefaultSegmenterConfig() SegmenterConfig {
	return SegmenterConfig{
		ModelPath: "models/selfie_segmentation.onnx",
		InputSize: 256,
	}
}

// SelfieSegmenter computes person/background masks with an ONNX
// selfie-segmentation model through OpenCV's DNN module.
type SelfieSegmenter struct {
	net    gocv.Net
	config SegmenterConfig
	mu     sync.Mutex // Protects inference
}

// NewSelfieSegmenter loads the segmentation model.
func NewSelfieSegmenter(cfg SegmenterConfig) (*SelfieSegmenter, error) {
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", cfg.ModelPath)
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("load segmentation model: %s", cfg.ModelPath)
	}

	return &SelfieSegmenter{
		net:    net,
		config: cfg,
	}, nil
}

// Segment returns the foreground probability mask for the JPEG frame.
// The mask is at model resolution; callers rescale it to the frame.
func (s *SelfieSegmenter) Segment(jpeg []byte) (Mask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	img, err := gocv.IMDecode(jpeg, gocv.IMReadColor)
	if err != nil {
		return Mask{}, fmt.Errorf("decode image: %w", err)
	}
	defer img.Close()

	if img.Empty() {
		return Mask{}, fmt.Errorf("empty image")
	}

	size := s.config.InputSize
	blob := gocv.BlobFromImage(img, 1.0/255.0, image.Pt(size, size),
		gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	s.net.SetInput(blob, "")

	prob := s.net.Forward("")
	defer prob.Close()

	// Output is a single-channel probability plane at model resolution.
	data, err := prob.DataPtrFloat32()
	if err != nil {
		return Mask{}, fmt.Errorf("read mask output: %w", err)
	}
	if len(data) < size*size {
		return Mask{}, fmt.Errorf("unexpected mask output size %d", len(data))
	}

	out := make([]float32, size*size)
	for i, v := range data[:size*size] {
		if v < 0 {
			v = 0
		}
		if v > 1 {
			v = 1
		}
		out[i] = v
	}

	return Mask{W: size, H: size, Data: out}, nil
}

// Close releases the model resources
func (s *SelfieSegmenter) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.net.Close()
}
