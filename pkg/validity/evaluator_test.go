package validity

import (
	"errors"
	"testing"
)

var errSentinel = errors.New("detector exploded")

func testGuide() Rect {
	return Rect{X: 0, Y: 0, W: 200, H: 300}
}

func goodGeometry() FaceGeometry {
	return FaceGeometry{Box: testGuide()}
}

func TestEvaluatorInitialState(t *testing.T) {
	e := NewEvaluator(DefaultThresholds(), testGuide())

	if e.Status() != StatusNoFace {
		t.Errorf("initial status = %v, want no_face", e.Status())
	}
	if e.HasValidFace() {
		t.Error("initial state must not have a valid face")
	}
}

func TestEvaluatorJustRightScenario(t *testing.T) {
	// Guide (0,0,200,300), box matching the guide, neutral pose, quality 0.9.
	e := NewEvaluator(DefaultThresholds(), testGuide())

	e.ObserveGeometry(Found(goodGeometry()))
	e.ObserveQuality(Found(0.9))

	if e.Status() != StatusJustRight {
		t.Errorf("status = %v, want just_right", e.Status())
	}
	if !e.HasValidFace() {
		t.Error("hasValidFace should be true for just_right")
	}
}

func TestEvaluatorOversizedScenario(t *testing.T) {
	// 30% oversized box against the same guide.
	e := NewEvaluator(DefaultThresholds(), testGuide())

	e.ObserveGeometry(Found(FaceGeometry{
		Box: Rect{X: 0, Y: 0, W: 260, H: 390},
	}))
	e.ObserveQuality(Found(0.9))

	if e.Status() != StatusTooLarge {
		t.Errorf("status = %v, want too_large", e.Status())
	}
	if e.HasValidFace() {
		t.Error("oversized face must not be valid")
	}
}

func TestEvaluatorValidityConsistency(t *testing.T) {
	// hasValidFace iff status == just_right, across an arbitrary sequence
	// of updates.
	e := NewEvaluator(DefaultThresholds(), testGuide())

	steps := []func(){
		func() { e.ObserveGeometry(Found(goodGeometry())) },
		func() { e.ObserveQuality(Found(0.9)) },
		func() { e.ObserveQuality(Found(0.1)) },
		func() { e.ObserveQuality(Found(0.2)) },
		func() { e.ObserveNoFace() },
		func() { e.ObserveGeometry(Found(FaceGeometry{Box: Rect{W: 10, H: 15}})) },
		func() { e.ObserveGeometry(Errored[FaceGeometry](errSentinel)) },
		func() { e.ObserveGeometry(Found(goodGeometry())) },
		func() { e.ObserveQuality(Found(0.8)) },
		func() { e.SetGuide(Rect{X: 0, Y: 0, W: 600, H: 900}) },
	}

	for i, step := range steps {
		step()
		if e.HasValidFace() != (e.Status() == StatusJustRight) {
			t.Fatalf("step %d: hasValidFace=%v inconsistent with status %v",
				i, e.HasValidFace(), e.Status())
		}
	}
}

func TestEvaluatorNoFaceResets(t *testing.T) {
	e := NewEvaluator(DefaultThresholds(), testGuide())

	e.ObserveGeometry(Found(goodGeometry()))
	e.ObserveQuality(Found(0.9))
	if !e.HasValidFace() {
		t.Fatal("setup should produce a valid face")
	}

	e.ObserveNoFace()

	if e.Status() != StatusNoFace {
		t.Errorf("status after no-face = %v, want no_face", e.Status())
	}
	if e.HasValidFace() {
		t.Error("hasValidFace must reset on no-face")
	}

	// A new face with no fresh quality must not reuse the stale 0.9.
	e.ObserveGeometry(Found(goodGeometry()))
	if e.Status() != StatusQualityTooLow {
		t.Errorf("stale quality must not survive no-face, got %v", e.Status())
	}
}

func TestEvaluatorPartialUpdateConsistency(t *testing.T) {
	// Quality arriving before geometry still yields a coherent status at
	// every point.
	e := NewEvaluator(DefaultThresholds(), testGuide())

	e.ObserveQuality(Found(0.9))
	if e.Status() != StatusNoFace {
		t.Errorf("quality without geometry should stay no_face, got %v", e.Status())
	}

	e.ObserveGeometry(Found(goodGeometry()))
	if e.Status() != StatusJustRight {
		t.Errorf("geometry arriving second should complete the face, got %v", e.Status())
	}
}

func TestEvaluatorErroredGeometry(t *testing.T) {
	e := NewEvaluator(DefaultThresholds(), testGuide())

	e.ObserveGeometry(Errored[FaceGeometry](errSentinel))

	if e.Status() != StatusErrored {
		t.Errorf("status = %v, want errored", e.Status())
	}
	if e.HasValidFace() {
		t.Error("errored state must not be valid")
	}
}

func TestEvaluatorOnChange(t *testing.T) {
	e := NewEvaluator(DefaultThresholds(), testGuide())

	var transitions []Status
	var validity []bool
	e.OnChange(func(s Status, valid bool) {
		transitions = append(transitions, s)
		validity = append(validity, valid)
	})

	e.ObserveGeometry(Found(goodGeometry())) // -> quality_too_low
	e.ObserveQuality(Found(0.9))             // -> just_right
	e.ObserveQuality(Found(0.95))            // no transition
	e.ObserveNoFace()                        // -> no_face

	want := []Status{StatusQualityTooLow, StatusJustRight, StatusNoFace}
	if len(transitions) != len(want) {
		t.Fatalf("got %d transitions %v, want %d", len(transitions), transitions, len(want))
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %v, want %v", i, transitions[i], want[i])
		}
		if validity[i] != want[i].Valid() {
			t.Errorf("transition %d validity %v inconsistent with %v", i, validity[i], want[i])
		}
	}
}

func TestEvaluatorGuideResizeRecomputes(t *testing.T) {
	e := NewEvaluator(DefaultThresholds(), testGuide())

	e.ObserveGeometry(Found(goodGeometry()))
	e.ObserveQuality(Found(0.9))
	if e.Status() != StatusJustRight {
		t.Fatalf("setup status = %v", e.Status())
	}

	// A much larger guide makes the cached face too small without any new
	// observation arriving.
	e.SetGuide(Rect{X: 0, Y: 0, W: 600, H: 900})
	if e.Status() != StatusTooSmall {
		t.Errorf("status after resize = %v, want too_small", e.Status())
	}
}
