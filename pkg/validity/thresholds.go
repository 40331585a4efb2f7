package validity

import "errors"

// Thresholds holds all tunable parameters for face validity classification.
// Values are fixed at construction; there is no build-type branching.
type Thresholds struct {
	// Bounds
	SizeRatio       float64 // Face width vs guide width acceptance ratio
	CenterTolerance float64 // Max center offset in view-coordinate units

	// Orientation. Forward-facing means |roll| <= MaxRoll, |pitch| <= MaxPitch
	// and |yaw| <= MaxYaw, all radians about the straight-on pose.
	MaxRoll  float64
	MaxPitch float64
	MaxYaw   float64

	// Quality
	QualityFloor float64 // Scores >= floor are acceptable

	// Layout guide, derived from the viewport
	GuideWidthRatio float64 // Guide width as a fraction of viewport width
	GuideAspect     float64 // Guide height / width
}

// DefaultThresholds returns the recommended passport-photo thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		SizeRatio:       1.2,
		CenterTolerance: 50,

		MaxRoll:  0.2,
		MaxPitch: 0.15,
		MaxYaw:   0.15,

		QualityFloor: 0.2,

		GuideWidthRatio: 0.5,
		GuideAspect:     4.0 / 3.0,
	}
}

// RelaxedThresholds returns thresholds for poor lighting or cheap cameras:
// a wider pose band and a lower quality floor.
func RelaxedThresholds() Thresholds {
	t := DefaultThresholds()
	t.MaxRoll = 0.3
	t.MaxPitch = 0.25
	t.MaxYaw = 0.25
	t.QualityFloor = 0.1
	return t
}

// StrictThresholds returns thresholds for compliance-grade captures.
func StrictThresholds() Thresholds {
	t := DefaultThresholds()
	t.CenterTolerance = 30
	t.MaxRoll = 0.1
	t.MaxPitch = 0.1
	t.MaxYaw = 0.1
	t.QualityFloor = 0.4
	return t
}

// Validate checks the thresholds for errors.
func (t Thresholds) Validate() error {
	if t.SizeRatio <= 1 {
		return errors.New("validity: size ratio must be greater than 1")
	}
	if t.CenterTolerance < 0 {
		return errors.New("validity: center tolerance must not be negative")
	}
	if t.MaxRoll <= 0 || t.MaxPitch <= 0 || t.MaxYaw <= 0 {
		return errors.New("validity: pose tolerances must be positive")
	}
	if t.QualityFloor < 0 || t.QualityFloor > 1 {
		return errors.New("validity: quality floor must be between 0 and 1")
	}
	if t.GuideWidthRatio <= 0 || t.GuideWidthRatio > 1 {
		return errors.New("validity: guide width ratio must be in (0, 1]")
	}
	if t.GuideAspect <= 0 {
		return errors.New("validity: guide aspect must be positive")
	}
	return nil
}

// GuideFor computes the layout guide for a viewport: a centered rectangle the
// face should fill, sized from the guide ratios and clamped to the viewport.
func (t Thresholds) GuideFor(viewportW, viewportH float64) Rect {
	w := viewportW * t.GuideWidthRatio
	h := w * t.GuideAspect
	if h > viewportH {
		h = viewportH
		w = h / t.GuideAspect
	}
	return Rect{
		X: (viewportW - w) / 2,
		Y: (viewportH - h) / 2,
		W: w,
		H: h,
	}
}
