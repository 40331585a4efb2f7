// Package compose produces the final still image: background replacement
// from a segmentation mask and the fixed passport crop.
package compose

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/framefit/passportcam/pkg/pipeline/detect"
)

// ErrCropExceedsFrame means the requested crop is taller than the source
// frame. This is a configuration error surfaced at output time, never
// silently clamped.
var ErrCropExceedsFrame = errors.New("compose: crop height exceeds frame")

// Rotation is the fixed rotation between detector coordinate space and
// display/output coordinate space.
type Rotation int

const (
	RotationNone Rotation = iota
	Rotation90CW
	Rotation180
	Rotation90CCW
)

// Config holds compositor parameters.
type Config struct {
	// Output crop aspect, width : height.
	AspectW, AspectH int

	// Background replacement color, solid opaque.
	Background color.RGBA

	// Fixed orientation correction between detector space and display
	// space. Applied to frame and mask before blending and undone on the
	// result.
	Rotation Rotation
	Mirror   bool
}

// DefaultConfig returns the passport defaults: 3:4 crop, white background,
// no orientation correction.
func DefaultConfig() Config {
	return Config{
		AspectW:    3,
		AspectH:    4,
		Background: color.RGBA{R: 255, G: 255, B: 255, A: 255},
	}
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	if c.AspectW <= 0 || c.AspectH <= 0 {
		return errors.New("compose: crop aspect must be positive")
	}
	if c.Background.A != 255 {
		return errors.New("compose: background color must be opaque")
	}
	return nil
}

// Compositor turns a raw frame (and optionally a segmentation mask) into the
// final cropped output photo.
type Compositor struct {
	cfg Config
}

// New creates a compositor.
func New(cfg Config) (*Compositor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Compositor{cfg: cfg}, nil
}

// Crop returns the centered aspect-ratio crop of the raw frame, no
// compositing applied.
func (c *Compositor) Crop(frame []byte) ([]byte, error) {
	img, err := gocv.IMDecode(frame, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	defer img.Close()

	if img.Empty() {
		return nil, errors.New("compose: empty frame")
	}

	oriented := c.orient(img)
	defer oriented.Close()

	cropped, err := c.crop(oriented)
	if err != nil {
		return nil, err
	}
	defer cropped.Close()

	restored := c.unorient(cropped)
	defer restored.Close()

	return encodeJPEG(restored)
}

// Replace blends the frame over the flat background color using the
// foreground mask, then applies the centered crop. The mask is rescaled to
// the frame's extent; orientation correction is applied consistently to both
// before blending and undone on the result.
func (c *Compositor) Replace(frame []byte, mask detect.Mask) ([]byte, error) {
	if mask.Empty() {
		return nil, errors.New("compose: empty mask")
	}

	img, err := gocv.IMDecode(frame, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	defer img.Close()

	if img.Empty() {
		return nil, errors.New("compose: empty frame")
	}

	oriented := c.orient(img)
	defer oriented.Close()

	blended, err := c.blend(oriented, mask)
	if err != nil {
		return nil, err
	}
	defer blended.Close()

	cropped, err := c.crop(blended)
	if err != nil {
		return nil, err
	}
	defer cropped.Close()

	restored := c.unorient(cropped)
	defer restored.Close()

	return encodeJPEG(restored)
}

// blend computes out = mask*frame + (1-mask)*background per pixel.
func (c *Compositor) blend(img gocv.Mat, mask detect.Mask) (gocv.Mat, error) {
	rows, cols := img.Rows(), img.Cols()

	maskMat := gocv.NewMatWithSize(mask.H, mask.W, gocv.MatTypeCV32F)
	defer maskMat.Close()
	for y := 0; y < mask.H; y++ {
		for x := 0; x < mask.W; x++ {
			maskMat.SetFloatAt(y, x, mask.At(x, y))
		}
	}

	// The mask tracks detector space: give it the same correction the
	// frame already received, then rescale to the frame's extent.
	orientedMask := c.orient(maskMat)
	defer orientedMask.Close()

	scaled := gocv.NewMat()
	defer scaled.Close()
	gocv.Resize(orientedMask, &scaled, image.Pt(cols, rows), 0, 0, gocv.InterpolationLinear)

	mask3 := gocv.NewMat()
	defer mask3.Close()
	gocv.Merge([]gocv.Mat{scaled, scaled, scaled}, &mask3)

	frame32 := gocv.NewMat()
	defer frame32.Close()
	img.ConvertTo(&frame32, gocv.MatTypeCV32F)

	bg := c.cfg.Background
	bgMat := gocv.NewMatWithSizeFromScalar(
		gocv.NewScalar(float64(bg.B), float64(bg.G), float64(bg.R), 0),
		rows, cols, gocv.MatTypeCV32FC3)
	defer bgMat.Close()

	// out = bg + (frame - bg) * mask
	diff := gocv.NewMat()
	defer diff.Close()
	gocv.Subtract(frame32, bgMat, &diff)
	gocv.Multiply(diff, mask3, &diff)

	out32 := gocv.NewMat()
	defer out32.Close()
	gocv.Add(diff, bgMat, &out32)

	out := gocv.NewMat()
	out32.ConvertTo(&out, gocv.MatTypeCV8U)
	return out, nil
}

// crop cuts a centered region with the configured aspect ratio: full width,
// height derived from it, vertically centered.
func (c *Compositor) crop(img gocv.Mat) (gocv.Mat, error) {
	w := img.Cols()
	h := w * c.cfg.AspectH / c.cfg.AspectW

	if h > img.Rows() {
		return gocv.Mat{}, fmt.Errorf("%w: need %d rows, frame has %d",
			ErrCropExceedsFrame, h, img.Rows())
	}

	y0 := (img.Rows() - h) / 2
	region := img.Region(image.Rect(0, y0, w, y0+h))
	defer region.Close()

	return region.Clone(), nil
}

// orient applies the fixed detector-to-display correction.
func (c *Compositor) orient(img gocv.Mat) gocv.Mat {
	rotated := rotate(img, c.cfg.Rotation)
	if !c.cfg.Mirror {
		return rotated
	}
	defer rotated.Close()

	out := gocv.NewMat()
	gocv.Flip(rotated, &out, 1)
	return out
}

// unorient undoes the correction applied by orient.
func (c *Compositor) unorient(img gocv.Mat) gocv.Mat {
	mirrored := img.Clone()
	if c.cfg.Mirror {
		gocv.Flip(img, &mirrored, 1)
	}
	defer mirrored.Close()

	return rotate(mirrored, inverse(c.cfg.Rotation))
}

func rotate(img gocv.Mat, r Rotation) gocv.Mat {
	out := gocv.NewMat()
	switch r {
	case Rotation90CW:
		gocv.Rotate(img, &out, gocv.Rotate90Clockwise)
	case Rotation180:
		gocv.Rotate(img, &out, gocv.Rotate180Clockwise)
	case Rotation90CCW:
		gocv.Rotate(img, &out, gocv.Rotate90CounterClockwise)
	default:
		out.Close()
		return img.Clone()
	}
	return out
}

func inverse(r Rotation) Rotation {
	switch r {
	case Rotation90CW:
		return Rotation90CCW
	case Rotation90CCW:
		return Rotation90CW
	default:
		return r
	}
}

func encodeJPEG(img gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	if err != nil {
		return nil, fmt.Errorf("encode output: %w", err)
	}
	defer buf.Close()

	out := make([]byte, len(buf.GetBytes()))
	copy(out, buf.GetBytes())
	return out, nil
}
