package validity

import "math"

// ClassifyBounds classifies a face bounding box against the layout guide.
// Checks apply in priority order and the first match wins: too large, too
// small, off center horizontally, off center vertically, acceptable.
// Pure and total; a zero-size box classifies as too small.
func ClassifyBounds(box, guide Rect, t Thresholds) BoundsStatus {
	switch {
	case box.W > t.SizeRatio*guide.W:
		return BoundsTooLarge
	case box.W*t.SizeRatio < guide.W:
		return BoundsTooSmall
	case math.Abs(box.CenterX()-guide.CenterX()) > t.CenterTolerance:
		return BoundsOffCenter
	case math.Abs(box.CenterY()-guide.CenterY()) > t.CenterTolerance:
		return BoundsOffCenter
	default:
		return BoundsAcceptable
	}
}

// FacingForward reports whether the head pose is within the forward-facing
// acceptance band: each angle within its symmetric tolerance about zero.
func FacingForward(p Pose, t Thresholds) bool {
	return math.Abs(p.Roll) <= t.MaxRoll &&
		math.Abs(p.Pitch) <= t.MaxPitch &&
		math.Abs(p.Yaw) <= t.MaxYaw
}

// AcceptableQuality reports whether a quality score passes the floor.
// The floor itself is accepted; anything below is rejected.
func AcceptableQuality(q float64, t Thresholds) bool {
	return q >= t.QualityFloor
}

// Reduce computes the authoritative status from the latest observation of
// each signal. It is a pure function: callers re-run it after every
// individual update, so a partial update still yields a consistent status
// from the most recently observed value of each axis.
//
// Evaluation order for a found face: bounds first, then orientation, then
// quality. An errored geometry observation dominates; a missing or errored
// quality observation is conservatively treated as unacceptable quality.
func Reduce(geom Observation[FaceGeometry], quality Observation[float64], guide Rect, t Thresholds) Status {
	if geom.Err() != nil {
		return StatusErrored
	}
	g, ok := geom.Value()
	if !ok {
		return StatusNoFace
	}

	switch ClassifyBounds(g.Box, guide, t) {
	case BoundsTooLarge:
		return StatusTooLarge
	case BoundsTooSmall:
		return StatusTooSmall
	case BoundsOffCenter:
		return StatusOffCenter
	}

	if !FacingForward(g.Pose, t) {
		return StatusNotFacingForward
	}

	q, ok := quality.Value()
	if !ok || !AcceptableQuality(q, t) {
		return StatusQualityTooLow
	}

	return StatusJustRight
}
