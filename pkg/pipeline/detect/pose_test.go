package detect

import (
	"math"
	"testing"
)

// frontalLandmarks returns landmarks for a face looking straight at the
// camera. The subject's right eye appears on the image's left.
func frontalLandmarks() Landmarks {
	return Landmarks{
		EyeRight:   Point{X: 40, Y: 40},
		EyeLeft:    Point{X: 60, Y: 40},
		Nose:       Point{X: 50, Y: 40 + pitchNeutral*30},
		MouthRight: Point{X: 43, Y: 70},
		MouthLeft:  Point{X: 57, Y: 70},
	}
}

func TestEstimatePoseNeutral(t *testing.T) {
	pose := EstimatePose(frontalLandmarks())

	const eps = 1e-6
	if math.Abs(pose.Roll) > eps {
		t.Errorf("neutral roll = %f, want 0", pose.Roll)
	}
	if math.Abs(pose.Pitch) > eps {
		t.Errorf("neutral pitch = %f, want 0", pose.Pitch)
	}
	if math.Abs(pose.Yaw) > eps {
		t.Errorf("neutral yaw = %f, want 0", pose.Yaw)
	}
}

func TestEstimatePoseRoll(t *testing.T) {
	lm := frontalLandmarks()
	lm.EyeLeft.Y += 5 // tilt the eye line

	pose := EstimatePose(lm)

	want := math.Atan2(5, 20)
	if math.Abs(pose.Roll-want) > 1e-6 {
		t.Errorf("roll = %f, want %f", pose.Roll, want)
	}

	// Opposite tilt flips the sign.
	lm = frontalLandmarks()
	lm.EyeRight.Y += 5
	if got := EstimatePose(lm).Roll; got >= 0 {
		t.Errorf("opposite tilt should give negative roll, got %f", got)
	}
}

func TestEstimatePoseYawSign(t *testing.T) {
	lm := frontalLandmarks()
	lm.Nose.X += 3 // nose drifts toward the subject's left eye

	pose := EstimatePose(lm)
	if pose.Yaw <= 0 {
		t.Errorf("nose right of center should give positive yaw, got %f", pose.Yaw)
	}

	lm = frontalLandmarks()
	lm.Nose.X -= 3
	if got := EstimatePose(lm).Yaw; got >= 0 {
		t.Errorf("nose left of center should give negative yaw, got %f", got)
	}
}

func TestEstimatePosePitchSign(t *testing.T) {
	lm := frontalLandmarks()
	lm.Nose.Y -= 5 // nose toward the eye line: chin raised

	pose := EstimatePose(lm)
	if pose.Pitch <= 0 {
		t.Errorf("raised chin should give positive pitch, got %f", pose.Pitch)
	}

	lm = frontalLandmarks()
	lm.Nose.Y += 5
	if got := EstimatePose(lm).Pitch; got >= 0 {
		t.Errorf("lowered chin should give negative pitch, got %f", got)
	}
}

func TestEstimatePoseDegenerateLandmarks(t *testing.T) {
	// All landmarks in one spot must not divide by zero.
	p := Point{X: 50, Y: 50}
	pose := EstimatePose(Landmarks{EyeRight: p, EyeLeft: p, Nose: p, MouthRight: p, MouthLeft: p})

	if math.IsNaN(pose.Roll) || math.IsNaN(pose.Pitch) || math.IsNaN(pose.Yaw) {
		t.Errorf("degenerate landmarks produced NaN pose: %+v", pose)
	}
}
