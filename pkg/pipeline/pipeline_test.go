package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/framefit/passportcam/pkg/pipeline/detect"
	"github.com/framefit/passportcam/pkg/validity"
)

// --- fakes ---

type fakeSource struct {
	mu    sync.Mutex
	frame Frame
	err   error
}

func (f *fakeSource) set(frame Frame) {
	f.mu.Lock()
	f.frame = frame
	f.mu.Unlock()
}

func (f *fakeSource) Frame() (Frame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return Frame{}, f.err
	}
	return f.frame, nil
}

func (f *fakeSource) Close() error { return nil }

type fakeDetector struct {
	fn func(jpeg []byte) (*detect.Face, error)
}

func (f *fakeDetector) DetectFace(jpeg []byte) (*detect.Face, error) {
	return f.fn(jpeg)
}

func (f *fakeDetector) Close() error { return nil }

type fakeScorer struct {
	score float64
	err   error
}

func (f *fakeScorer) Score(jpeg []byte, face validity.Rect) (float64, error) {
	return f.score, f.err
}

type fakeSegmenter struct {
	mask detect.Mask
	err  error
}

func (f *fakeSegmenter) Segment(jpeg []byte) (detect.Mask, error) {
	return f.mask, f.err
}

func (f *fakeSegmenter) Close() error { return nil }

type fakeFinisher struct {
	mu       sync.Mutex
	crops    int
	replaces int
	err      error
}

func (f *fakeFinisher) Crop(frame []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.crops++
	return append([]byte("crop:"), frame...), nil
}

func (f *fakeFinisher) Replace(frame []byte, mask detect.Mask) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.replaces++
	return append([]byte("composite:"), frame...), nil
}

func (f *fakeFinisher) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.crops, f.replaces
}

// centeredFace returns a detection whose view-space box matches the test
// guide exactly.
func centeredFace() *detect.Face {
	return &detect.Face{
		Box:   validity.Rect{X: 0, Y: 0, W: 0.5, H: 0.5},
		Score: 0.95,
	}
}

func newTestPipeline(t *testing.T, deps Deps) *Pipeline {
	t.Helper()

	if deps.Source == nil {
		deps.Source = &fakeSource{}
	}
	if deps.Quality == nil {
		deps.Quality = &fakeScorer{score: 0.9}
	}
	if deps.Finisher == nil {
		deps.Finisher = &fakeFinisher{}
	}

	cfg := DefaultConfig()
	cfg.ViewportW = 400
	cfg.ViewportH = 600

	p, err := New(cfg, deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Pin the guide to the canonical test rectangle; a face with the
	// normalized box (0, 0, 0.5, 0.5) lands exactly on it.
	p.eval.SetGuide(validity.Rect{X: 0, Y: 0, W: 200, H: 300})
	return p
}

// --- tests ---

func TestProcessJustRightScenario(t *testing.T) {
	p := newTestPipeline(t, Deps{
		Faces: &fakeDetector{fn: func([]byte) (*detect.Face, error) {
			return centeredFace(), nil
		}},
	})

	p.process(Frame{Seq: 1, JPEG: []byte("frame")})

	if p.Status() != validity.StatusJustRight {
		t.Errorf("status = %v, want just_right", p.Status())
	}
	if !p.HasValidFace() {
		t.Error("hasValidFace should be true")
	}
}

func TestProcessOversizedScenario(t *testing.T) {
	p := newTestPipeline(t, Deps{
		Faces: &fakeDetector{fn: func([]byte) (*detect.Face, error) {
			// 30% wider than the guide in view space.
			return &detect.Face{
				Box:   validity.Rect{X: 0, Y: 0, W: 0.65, H: 0.65},
				Score: 0.95,
			}, nil
		}},
	})

	p.process(Frame{Seq: 1, JPEG: []byte("frame")})

	if p.Status() != validity.StatusTooLarge {
		t.Errorf("status = %v, want too_large", p.Status())
	}
}

func TestProcessNoFace(t *testing.T) {
	calls := 0
	p := newTestPipeline(t, Deps{
		Faces: &fakeDetector{fn: func([]byte) (*detect.Face, error) {
			calls++
			if calls == 1 {
				return centeredFace(), nil
			}
			return nil, nil
		}},
	})

	p.process(Frame{Seq: 1, JPEG: []byte("frame")})
	if !p.HasValidFace() {
		t.Fatal("setup: first frame should be valid")
	}

	p.process(Frame{Seq: 2, JPEG: []byte("frame")})
	if p.Status() != validity.StatusNoFace {
		t.Errorf("status = %v, want no_face", p.Status())
	}
	if p.HasValidFace() {
		t.Error("hasValidFace must reset on no-face")
	}
}

func TestProcessDetectorFailureNonFatal(t *testing.T) {
	boom := errors.New("detector exploded")
	calls := 0
	p := newTestPipeline(t, Deps{
		Faces: &fakeDetector{fn: func([]byte) (*detect.Face, error) {
			calls++
			if calls == 1 {
				return nil, boom
			}
			return centeredFace(), nil
		}},
	})

	p.process(Frame{Seq: 1, JPEG: []byte("frame")})
	if p.Status() != validity.StatusErrored {
		t.Errorf("status after failure = %v, want errored", p.Status())
	}

	// The next frame recovers; the failure was scoped to its own frame.
	p.process(Frame{Seq: 2, JPEG: []byte("frame")})
	if p.Status() != validity.StatusJustRight {
		t.Errorf("status after recovery = %v, want just_right", p.Status())
	}
}

func TestProcessQualityFailureIsQualityTooLow(t *testing.T) {
	p := newTestPipeline(t, Deps{
		Faces: &fakeDetector{fn: func([]byte) (*detect.Face, error) {
			return centeredFace(), nil
		}},
		Quality: &fakeScorer{err: errors.New("scorer exploded")},
	})

	p.process(Frame{Seq: 1, JPEG: []byte("frame")})

	if p.Status() != validity.StatusQualityTooLow {
		t.Errorf("status = %v, want quality_too_low", p.Status())
	}
}

func TestCapturePlainCrop(t *testing.T) {
	fin := &fakeFinisher{}
	p := newTestPipeline(t, Deps{
		Faces: &fakeDetector{fn: func([]byte) (*detect.Face, error) {
			return centeredFace(), nil
		}},
		Finisher: fin,
	})

	if !p.RequestCapture() {
		t.Fatal("capture request should be accepted")
	}
	p.process(Frame{Seq: 1, JPEG: []byte("frame")})

	crops, replaces := fin.counts()
	if crops != 1 {
		t.Errorf("expected one crop, got %d", crops)
	}
	if replaces != 0 {
		t.Errorf("background disabled: expected no compositing, got %d", replaces)
	}
	if p.CaptureArmed() {
		t.Error("latch should be consumed")
	}
}

func TestCaptureWithBackgroundReplacement(t *testing.T) {
	fin := &fakeFinisher{}
	p := newTestPipeline(t, Deps{
		Faces: &fakeDetector{fn: func([]byte) (*detect.Face, error) {
			return centeredFace(), nil
		}},
		Segmenter: &fakeSegmenter{mask: detect.Mask{W: 1, H: 1, Data: []float32{1}}},
		Finisher:  fin,
	})
	p.SetBackground(true)

	p.RequestCapture()
	p.process(Frame{Seq: 1, JPEG: []byte("frame")})

	crops, replaces := fin.counts()
	if replaces != 1 {
		t.Errorf("expected one composite, got %d", replaces)
	}
	if crops != 0 {
		t.Errorf("background enabled: expected no plain crop, got %d", crops)
	}
}

func TestCaptureRequiresValidFace(t *testing.T) {
	p := newTestPipeline(t, Deps{
		Faces: &fakeDetector{fn: func([]byte) (*detect.Face, error) {
			return nil, nil
		}},
	})

	done := make(chan error, 1)
	p.OnCaptureFailed(func(err error) { done <- err })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.wg.Add(1)
	go p.dispatch(ctx)

	p.RequestCapture()
	p.process(Frame{Seq: 1, JPEG: []byte("frame")})

	select {
	case err := <-done:
		if !errors.Is(err, ErrFaceNotReady) {
			t.Errorf("capture-failed error = %v, want ErrFaceNotReady", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for capture-failed event")
	}

	// The failed attempt releases the latch for a fresh request.
	if !p.RequestCapture() {
		t.Error("latch should re-arm after a failed capture")
	}
}

func TestCaptureFinishFailureScopedToAttempt(t *testing.T) {
	fin := &fakeFinisher{err: errors.New("crop exceeds frame")}
	p := newTestPipeline(t, Deps{
		Faces: &fakeDetector{fn: func([]byte) (*detect.Face, error) {
			return centeredFace(), nil
		}},
		Finisher: fin,
	})

	failed := make(chan error, 1)
	p.OnCaptureFailed(func(err error) { failed <- err })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.wg.Add(1)
	go p.dispatch(ctx)

	p.RequestCapture()
	p.process(Frame{Seq: 1, JPEG: []byte("frame")})

	select {
	case err := <-failed:
		if err == nil {
			t.Error("expected a capture error")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for capture-failed event")
	}

	// Preview evaluation is unaffected.
	if p.Status() != validity.StatusJustRight {
		t.Errorf("preview status = %v, want just_right", p.Status())
	}
}

func TestPipelineEndToEnd(t *testing.T) {
	src := &fakeSource{}
	src.set(Frame{Seq: 1, JPEG: []byte("frame-1")})

	p := newTestPipeline(t, Deps{
		Source: src,
		Faces: &fakeDetector{fn: func([]byte) (*detect.Face, error) {
			return centeredFace(), nil
		}},
	})

	photos := make(chan Photo, 1)
	p.OnPhoto(func(ph Photo) { photos <- ph })

	statuses := make(chan validity.Status, 8)
	p.OnStatus(func(s validity.Status, valid bool) { statuses <- s })

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	if err := p.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start = %v, want ErrAlreadyStarted", err)
	}

	// Wait for the worker to reach just_right.
	waitForStatus(t, statuses, validity.StatusJustRight)

	p.RequestCapture()
	src.set(Frame{Seq: 2, JPEG: []byte("frame-2")})

	select {
	case ph := <-photos:
		if ph.ID == "" {
			t.Error("photo should have an id")
		}
		if string(ph.JPEG) != "crop:frame-2" {
			t.Errorf("photo = %q, want the cropped capture frame", ph.JPEG)
		}
		if ph.Background {
			t.Error("background flag should be false")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for photo")
	}
}

func waitForStatus(t *testing.T, ch <-chan validity.Status, want validity.Status) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-ch:
			if s == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for status %v", want)
		}
	}
}
