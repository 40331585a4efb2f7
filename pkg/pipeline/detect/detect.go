// Package detect provides face, quality, and segmentation detection for the
// capture pipeline.
package detect

import (
	"github.com/framefit/passportcam/pkg/validity"
)

// Point is a 2D point in pixel coordinates.
type Point struct {
	X, Y float64
}

// Landmarks are the five facial landmarks reported per face: eye centers,
// nose tip, and mouth corners. Left and right are the subject's left and
// right, not the image's.
type Landmarks struct {
	EyeRight   Point
	EyeLeft    Point
	Nose       Point
	MouthRight Point
	MouthLeft  Point
}

// Face is a single detected face. The bounding box is normalized to 0-1 in
// detector coordinates; the pipeline converts it to view coordinates.
type Face struct {
	Box       validity.Rect
	Pose      validity.Pose
	Landmarks Landmarks
	Score     float64
}

// Area returns the normalized area of the bounding box.
func (f Face) Area() float64 {
	return f.Box.W * f.Box.H
}

// Mask is a single-channel foreground probability map, same or lower
// resolution than the frame it was computed from. Values are in [0, 1] with
// 1 meaning foreground.
type Mask struct {
	W, H int
	Data []float32
}

// At returns the mask value at (x, y). Out-of-range coordinates return 0.
func (m Mask) At(x, y int) float32 {
	if x < 0 || y < 0 || x >= m.W || y >= m.H {
		return 0
	}
	return m.Data[y*m.W+x]
}

// Empty reports whether the mask holds no data.
func (m Mask) Empty() bool {
	return m.W <= 0 || m.H <= 0 || len(m.Data) < m.W*m.H
}

// FaceDetector finds the primary face in a frame.
type FaceDetector interface {
	// DetectFace returns the primary face in the JPEG frame, or nil when
	// no face is present.
	DetectFace(jpeg []byte) (*Face, error)

	// Close releases resources
	Close() error
}

// QualityScorer rates the capture quality of a face region.
type QualityScorer interface {
	// Score returns a capture-quality score in [0, 1] for the face region,
	// given in normalized 0-1 frame coordinates.
	Score(jpeg []byte, face validity.Rect) (float64, error)
}

// Segmenter computes a foreground mask for a frame.
type Segmenter interface {
	// Segment returns the foreground probability mask for the JPEG frame.
	Segment(jpeg []byte) (Mask, error)

	// Close releases resources
	Close() error
}

// Config holds detector configuration
type Config struct {
	ModelPath        string  // Path to the YuNet ONNX model
	ConfidenceThresh float64 // Minimum confidence (default 0.6)
	InputWidth       int     // Model input width
	InputHeight      int     // Model input height
}

// DefaultConfig returns production defaults for YuNet
func DefaultConfig() Config {
	return Config{
		ModelPath:        "models/face_detection_yunet.onnx",
		ConfidenceThresh: 0.6,
		InputWidth:       320,
		InputHeight:      320,
	}
}

// pickPrimary selects the primary face from multiple detections.
// Priority: confidence * 0.7 + relative area * 0.3.
func pickPrimary(faces []Face) *Face {
	if len(faces) == 0 {
		return nil
	}

	if len(faces) == 1 {
		return &faces[0]
	}

	maxArea := 0.0
	for _, f := range faces {
		if f.Area() > maxArea {
			maxArea = f.Area()
		}
	}

	bestScore := -1.0
	var best *Face
	for i := range faces {
		score := faces[i].Score*0.7 + (faces[i].Area()/maxArea)*0.3
		if score > bestScore {
			bestScore = score
			best = &faces[i]
		}
	}

	return best
}
