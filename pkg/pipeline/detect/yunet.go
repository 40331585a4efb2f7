package detect

import (
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/framefit/passportcam/pkg/validity"
)

// YuNet uses OpenCV's FaceDetectorYN for face detection.
type YuNet struct {
	detector gocv.FaceDetectorYN
	config   Config
	mu       sync.Mutex // Protects inference
}

// NewYuNet creates a new YuNet face detector using GoCV's built-in FaceDetectorYN
func NewYuNet(cfg Config) (*YuNet, error) {
	// Check if model file exists first
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", cfg.ModelPath)
	}

	detector := gocv.NewFaceDetectorYNWithParams(
		cfg.ModelPath,
		"", // No config file needed for ONNX
		image.Pt(cfg.InputWidth, cfg.InputHeight), // Initial input size
		float32(cfg.ConfidenceThresh),             // Score threshold
		0.3,                                       // NMS threshold
		5000,                                      // Top K
		int(gocv.NetBackendDefault),               // Backend
		int(gocv.NetTargetCPU),                    // Target
	)

	return &YuNet{
		detector: detector,
		config:   cfg,
	}, nil
}

// DetectFace finds the primary face in the JPEG frame. It returns nil when
// no face is present.
func (d *YuNet) DetectFace(jpeg []byte) (*Face, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	img, err := gocv.IMDecode(jpeg, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	defer img.Close()

	if img.Empty() {
		return nil, fmt.Errorf("empty image")
	}

	imgW := float64(img.Cols())
	imgH := float64(img.Rows())

	// Update detector input size to match image
	d.detector.SetInputSize(image.Pt(img.Cols(), img.Rows()))

	faces := gocv.NewMat()
	defer faces.Close()

	d.detector.Detect(img, &faces)

	// YuNet output format (15 columns per row):
	// 0-3: x, y, w, h (bounding box in pixels)
	// 4-13: right eye, left eye, nose tip, right mouth, left mouth (x,y pairs)
	// 14: face score
	var found []Face
	for r := 0; r < faces.Rows(); r++ {
		x := float64(faces.GetFloatAt(r, 0))
		y := float64(faces.GetFloatAt(r, 1))
		w := float64(faces.GetFloatAt(r, 2))
		h := float64(faces.GetFloatAt(r, 3))
		lm := Landmarks{
			EyeRight:   landmarkAt(faces, r, 4),
			EyeLeft:    landmarkAt(faces, r, 6),
			Nose:       landmarkAt(faces, r, 8),
			MouthRight: landmarkAt(faces, r, 10),
			MouthLeft:  landmarkAt(faces, r, 12),
		}
		score := float64(faces.GetFloatAt(r, 14))

		found = append(found, Face{
			Box: validity.Rect{
				X: x / imgW,
				Y: y / imgH,
				W: w / imgW,
				H: h / imgH,
			},
			Pose:      EstimatePose(lm),
			Landmarks: lm,
			Score:     score,
		})
	}

	return pickPrimary(found), nil
}

func landmarkAt(faces gocv.Mat, row, col int) Point {
	return Point{
		X: float64(faces.GetFloatAt(row, col)),
		Y: float64(faces.GetFloatAt(row, col+1)),
	}
}

// Close releases the detector resources
func (d *YuNet) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.detector.Close()
	return nil
}
