// Package validity reduces per-frame face observations to a single
// passport-photo validity status.
//
// Raw detector output (bounding box, head pose, quality score) is wrapped in
// Observation values and fed to an Evaluator, which recomputes one
// authoritative Status through a pure reducer on every update. The Status is
// valid exactly when the face is sized, centered, oriented, and sharp enough
// for a passport-style photograph.
package validity

// Rect is an axis-aligned rectangle in view coordinates.
type Rect struct {
	X, Y, W, H float64
}

// CenterX returns the horizontal center of the rectangle.
func (r Rect) CenterX() float64 {
	return r.X + r.W/2
}

// CenterY returns the vertical center of the rectangle.
func (r Rect) CenterY() float64 {
	return r.Y + r.H/2
}

// Pose holds head rotation angles in radians. Roll is rotation about the
// viewing axis, pitch about the horizontal axis, yaw about the vertical axis.
// All three are zero for a head facing the camera straight on.
type Pose struct {
	Roll, Pitch, Yaw float64
}

// FaceGeometry is the per-frame geometric detector output: where the face is
// and which way it points.
type FaceGeometry struct {
	Box  Rect
	Pose Pose
}

// BoundsStatus classifies a face bounding box against the layout guide.
type BoundsStatus int

const (
	BoundsUnknown BoundsStatus = iota
	BoundsTooSmall
	BoundsTooLarge
	BoundsOffCenter
	BoundsAcceptable
)

// String returns a human-readable name for the bounds status.
func (b BoundsStatus) String() string {
	switch b {
	case BoundsTooSmall:
		return "too_small"
	case BoundsTooLarge:
		return "too_large"
	case BoundsOffCenter:
		return "off_center"
	case BoundsAcceptable:
		return "acceptable"
	default:
		return "unknown"
	}
}

// Status is the authoritative per-frame reduction of all face signals.
// Exactly one value is live at any time.
type Status int

const (
	// StatusNoFace means no face was detected in the latest frame.
	StatusNoFace Status = iota

	// StatusTooSmall through StatusJustRight are the Found sub-statuses,
	// ordered by evaluation priority: bounds, then orientation, then quality.
	StatusTooSmall
	StatusTooLarge
	StatusOffCenter
	StatusNotFacingForward
	StatusQualityTooLow
	StatusJustRight

	// StatusErrored means the latest detection attempt failed.
	StatusErrored
)

// Valid reports whether capture is permitted in this status.
// It is true if and only if the status is StatusJustRight.
func (s Status) Valid() bool {
	return s == StatusJustRight
}

// String returns a human-readable name for the status.
func (s Status) String() string {
	switch s {
	case StatusNoFace:
		return "no_face"
	case StatusTooSmall:
		return "too_small"
	case StatusTooLarge:
		return "too_large"
	case StatusOffCenter:
		return "off_center"
	case StatusNotFacingForward:
		return "not_facing_forward"
	case StatusQualityTooLow:
		return "quality_too_low"
	case StatusJustRight:
		return "just_right"
	case StatusErrored:
		return "errored"
	default:
		return "unknown"
	}
}

type observationTag int

const (
	tagNotFound observationTag = iota
	tagFound
	tagErrored
)

// Observation is the uniform wrapper around any per-frame detector output:
// the detector found a value, found nothing, or failed. Exactly one tag is
// active at a time.
type Observation[T any] struct {
	tag   observationTag
	value T
	err   error
}

// NotFound returns an observation for a frame where the detector ran but
// found nothing.
func NotFound[T any]() Observation[T] {
	return Observation[T]{tag: tagNotFound}
}

// Found returns an observation carrying a detected value.
func Found[T any](v T) Observation[T] {
	return Observation[T]{tag: tagFound, value: v}
}

// Errored returns an observation for a frame where the detector itself
// failed.
func Errored[T any](err error) Observation[T] {
	return Observation[T]{tag: tagErrored, err: err}
}

// Value returns the observed value and whether one is present.
func (o Observation[T]) Value() (T, bool) {
	return o.value, o.tag == tagFound
}

// Missing reports whether the detector found nothing.
func (o Observation[T]) Missing() bool {
	return o.tag == tagNotFound
}

// Err returns the detection error, or nil when the observation did not fail.
func (o Observation[T]) Err() error {
	if o.tag == tagErrored {
		return o.err
	}
	return nil
}
