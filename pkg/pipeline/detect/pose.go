package detect

import (
	"math"

	"github.com/framefit/passportcam/pkg/validity"
)

// Pose estimation gains. The landmark geometry gives a coarse planar
// estimate, good enough to gate "facing forward" bands of a tenth of a
// radian; it is not a full PnP head-pose solve.
const (
	yawGain      = 2.0
	pitchGain    = 1.5
	pitchNeutral = 0.55 // nose position between eye line and mouth line, frontal
)

// EstimatePose derives roll, pitch, and yaw from the five facial landmarks.
// All angles are radians and zero for a face looking straight at the camera.
func EstimatePose(lm Landmarks) validity.Pose {
	// Roll: angle of the eye line. The subject's left eye sits to the
	// image right for a frontal face.
	roll := math.Atan2(lm.EyeLeft.Y-lm.EyeRight.Y, lm.EyeLeft.X-lm.EyeRight.X)

	eyeMid := midpoint(lm.EyeLeft, lm.EyeRight)
	mouthMid := midpoint(lm.MouthLeft, lm.MouthRight)
	eyeDist := distance(lm.EyeLeft, lm.EyeRight)

	var yaw, pitch float64
	if eyeDist > 1e-6 {
		// Yaw: horizontal nose offset from the eye midpoint, scaled by
		// inter-eye distance.
		yaw = math.Asin(clamp((lm.Nose.X-eyeMid.X)/eyeDist*yawGain, -1, 1))
	}

	span := mouthMid.Y - eyeMid.Y
	if math.Abs(span) > 1e-6 {
		// Pitch: vertical nose position between the eye line and mouth
		// line, relative to its frontal neutral point. A raised chin moves
		// the nose toward the eye line.
		ratio := (lm.Nose.Y - eyeMid.Y) / span
		pitch = clamp((pitchNeutral-ratio)*pitchGain, -math.Pi/2, math.Pi/2)
	}

	return validity.Pose{Roll: roll, Pitch: pitch, Yaw: yaw}
}

func midpoint(a, b Point) Point {
	return Point{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2}
}

func distance(a, b Point) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Sqrt(dx*dx + dy*dy)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
