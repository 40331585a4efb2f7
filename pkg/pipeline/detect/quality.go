package detect

import (
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"

	"github.com/framefit/passportcam/pkg/validity"
)

// Quality score weighting and references. Sharpness saturates at a Laplacian
// standard deviation of sharpnessRef; exposure is best at mid gray.
const (
	sharpnessWeight = 0.7
	exposureWeight  = 0.3
	sharpnessRef    = 25.0
)

// LaplacianScorer rates capture quality from focus sharpness and exposure
// balance over the face region.
type LaplacianScorer struct{}

// NewLaplacianScorer creates a quality scorer.
func NewLaplacianScorer() *LaplacianScorer {
	return &LaplacianScorer{}
}

// Score returns a capture-quality score in [0, 1] for the face region.
// The region is given in normalized 0-1 frame coordinates; an empty region
// scores the whole frame.
func (s *LaplacianScorer) Score(jpeg []byte, face validity.Rect) (float64, error) {
	img, err := gocv.IMDecode(jpeg, gocv.IMReadColor)
	if err != nil {
		return 0, fmt.Errorf("decode image: %w", err)
	}
	defer img.Close()

	if img.Empty() {
		return 0, fmt.Errorf("empty image")
	}

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)

	roi := regionOf(gray, face)
	defer roi.Close()

	lap := gocv.NewMat()
	defer lap.Close()
	gocv.Laplacian(roi, &lap, gocv.MatTypeCV64F, 1, 1, 0, gocv.BorderDefault)

	_, lapStd := lap.MeanStdDev()
	mean := roi.Mean()

	sharpness := math.Min(1, lapStd.Val1/sharpnessRef)
	exposure := 1 - math.Abs(mean.Val1-128)/128

	return sharpnessWeight*sharpness + exposureWeight*exposure, nil
}

// regionOf returns the face region of the frame, clamped to the frame
// bounds. Degenerate regions fall back to the whole frame.
func regionOf(m gocv.Mat, face validity.Rect) gocv.Mat {
	w, h := float64(m.Cols()), float64(m.Rows())

	x0 := int(math.Max(0, face.X*w))
	y0 := int(math.Max(0, face.Y*h))
	x1 := int(math.Min(w, (face.X+face.W)*w))
	y1 := int(math.Min(h, (face.Y+face.H)*h))

	if x1-x0 < 2 || y1-y0 < 2 {
		return m.Clone()
	}
	return m.Region(image.Rect(x0, y0, x1, y1))
}
