package detect

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/framefit/passportcam/pkg/validity"
)

func TestYuNetNew(t *testing.T) {
	modelPath := findModelPath(t)
	if modelPath == "" {
		t.Skip("YuNet model not found, skipping test")
	}

	cfg := DefaultConfig()
	cfg.ModelPath = modelPath

	detector, err := NewYuNet(cfg)
	if err != nil {
		t.Fatalf("NewYuNet failed: %v", err)
	}
	defer detector.Close()
}

func TestYuNetNewInvalidPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ModelPath = "/nonexistent/path/model.onnx"

	_, err := NewYuNet(cfg)
	if err == nil {
		t.Error("Expected error for invalid model path")
	}
}

func TestYuNetDetectInvalidImage(t *testing.T) {
	modelPath := findModelPath(t)
	if modelPath == "" {
		t.Skip("YuNet model not found, skipping test")
	}

	cfg := DefaultConfig()
	cfg.ModelPath = modelPath

	detector, err := NewYuNet(cfg)
	if err != nil {
		t.Fatalf("NewYuNet failed: %v", err)
	}
	defer detector.Close()

	if _, err := detector.DetectFace([]byte{}); err == nil {
		t.Error("Expected error for empty image")
	}
	if _, err := detector.DetectFace([]byte("not a jpeg")); err == nil {
		t.Error("Expected error for invalid JPEG")
	}
}

func TestYuNetDetectSolidImage(t *testing.T) {
	modelPath := findModelPath(t)
	if modelPath == "" {
		t.Skip("YuNet model not found, skipping test")
	}

	cfg := DefaultConfig()
	cfg.ModelPath = modelPath

	detector, err := NewYuNet(cfg)
	if err != nil {
		t.Fatalf("NewYuNet failed: %v", err)
	}
	defer detector.Close()

	frame := solidJPEG(320, 240, color.RGBA{0, 0, 255, 255})

	face, err := detector.DetectFace(frame)
	if err != nil {
		t.Fatalf("DetectFace failed: %v", err)
	}
	if face != nil {
		t.Errorf("Expected no face in solid color image, got %+v", face)
	}
}

func TestLaplacianScorerRange(t *testing.T) {
	scorer := NewLaplacianScorer()

	solid := solidJPEG(160, 120, color.RGBA{128, 128, 128, 255})
	score, err := scorer.Score(solid, validity.Rect{})
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if score < 0 || score > 1 {
		t.Errorf("score %f out of range", score)
	}

	noisy := noisyJPEG(160, 120)
	noisyScore, err := scorer.Score(noisy, validity.Rect{})
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if noisyScore < 0 || noisyScore > 1 {
		t.Errorf("score %f out of range", noisyScore)
	}

	// A flat frame has no detail at all, so the textured frame must rate at
	// least as sharp.
	if noisyScore < score {
		t.Errorf("textured frame scored %f, below flat frame %f", noisyScore, score)
	}
}

func TestLaplacianScorerInvalidImage(t *testing.T) {
	scorer := NewLaplacianScorer()
	if _, err := scorer.Score([]byte("not a jpeg"), validity.Rect{}); err == nil {
		t.Error("Expected error for invalid JPEG")
	}
}

func TestLaplacianScorerFaceRegion(t *testing.T) {
	scorer := NewLaplacianScorer()
	frame := noisyJPEG(160, 120)

	// A normalized face region inside the frame must score without error.
	score, err := scorer.Score(frame, validity.Rect{X: 0.25, Y: 0.25, W: 0.5, H: 0.5})
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if score < 0 || score > 1 {
		t.Errorf("score %f out of range", score)
	}

	// A degenerate region falls back to the whole frame.
	if _, err := scorer.Score(frame, validity.Rect{X: 0.5, Y: 0.5, W: 0, H: 0}); err != nil {
		t.Errorf("degenerate region should fall back, got %v", err)
	}
}

// Helper functions

func findModelPath(t *testing.T) string {
	t.Helper()

	paths := []string{
		"../../../models/face_detection_yunet.onnx",
		"../../models/face_detection_yunet.onnx",
		"models/face_detection_yunet.onnx",
	}
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			continue
		}
		if _, err := os.Stat(abs); err == nil {
			return abs
		}
	}
	return ""
}

func solidJPEG(width, height int, c color.Color) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}

	var buf bytes.Buffer
	jpeg.Encode(&buf, img, nil)
	return buf.Bytes()
}

func noisyJPEG(width, height int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			// Checkerboard gives the Laplacian plenty of edges.
			v := uint8(0)
			if (x+y)%2 == 0 {
				v = 255
			}
			img.Set(x, y, color.RGBA{v, v, v, 255})
		}
	}

	var buf bytes.Buffer
	jpeg.Encode(&buf, img, &jpeg.Options{Quality: 100})
	return buf.Bytes()
}
