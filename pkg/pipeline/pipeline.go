// Package pipeline runs the per-frame capture loop: face detection, validity
// evaluation, and gated still-image capture.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/framefit/passportcam/internal/log"
	"github.com/framefit/passportcam/pkg/pipeline/detect"
	"github.com/framefit/passportcam/pkg/validity"
)

// Common errors returned by the pipeline.
var (
	ErrAlreadyStarted = errors.New("pipeline: already started")
	ErrFaceNotReady   = errors.New("pipeline: face not valid at capture time")
	ErrNoSegmenter    = errors.New("pipeline: background mode enabled without a segmenter")
)

// Frame is one camera frame. Seq increases monotonically; the worker skips
// frames it has already seen.
type Frame struct {
	Seq  uint64
	JPEG []byte
}

// FrameSource delivers camera frames. Frame returns the most recent frame
// available; the worker pulls as fast as it can process, so frames arriving
// while detection is in flight are dropped, never queued.
type FrameSource interface {
	// Frame returns the latest frame, or an error when none is available yet.
	Frame() (Frame, error)

	// Close releases the source.
	Close() error
}

// Finisher turns a raw frame (and optionally a mask) into the final photo.
type Finisher interface {
	Crop(frame []byte) ([]byte, error)
	Replace(frame []byte, mask detect.Mask) ([]byte, error)
}

// Photo is one finished capture. Ownership transfers to the observer.
type Photo struct {
	ID         string
	JPEG       []byte
	TakenAt    time.Time
	Background bool
}

// Config holds all tunable pipeline parameters.
type Config struct {
	Thresholds validity.Thresholds

	// Initial viewport size in view-coordinate units.
	ViewportW, ViewportH float64

	// Start with background replacement enabled.
	BackgroundReplacement bool

	// IdleDelay is how long the worker sleeps when the source has no new
	// frame yet.
	IdleDelay time.Duration
}

// DefaultConfig returns the recommended pipeline configuration.
func DefaultConfig() Config {
	return Config{
		Thresholds: validity.DefaultThresholds(),
		ViewportW:  720,
		ViewportH:  1280,
		IdleDelay:  5 * time.Millisecond,
	}
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	if err := c.Thresholds.Validate(); err != nil {
		return err
	}
	if c.ViewportW <= 0 || c.ViewportH <= 0 {
		return errors.New("pipeline: viewport size must be positive")
	}
	if c.IdleDelay <= 0 {
		return errors.New("pipeline: idle delay must be positive")
	}
	return nil
}

// Deps are the pipeline's collaborators. Source, Faces, Quality, and
// Finisher are required; Segmenter may be nil when background replacement is
// never enabled.
type Deps struct {
	Source    FrameSource
	Faces     detect.FaceDetector
	Quality   detect.QualityScorer
	Segmenter detect.Segmenter
	Finisher  Finisher
}

func (d Deps) validate() error {
	if d.Source == nil {
		return errors.New("pipeline: frame source required")
	}
	if d.Faces == nil {
		return errors.New("pipeline: face detector required")
	}
	if d.Quality == nil {
		return errors.New("pipeline: quality scorer required")
	}
	if d.Finisher == nil {
		return errors.New("pipeline: finisher required")
	}
	return nil
}

// event is one observer notification, delivered on the dispatcher goroutine.
type event struct {
	status  *statusEvent
	photo   *Photo
	preview []byte
	captErr error
}

type statusEvent struct {
	status validity.Status
	valid  bool
}

// Pipeline is the frame worker plus observer dispatcher. One goroutine pulls
// frames and runs detection synchronously; a second fans results out to
// observers so slow observers never stall the worker.
type Pipeline struct {
	cfg  Config
	deps Deps

	eval  *validity.Evaluator
	latch *Latch

	bg atomic.Bool

	vpMu sync.RWMutex
	vpW  float64
	vpH  float64

	// Observer callbacks, invoked on the dispatcher goroutine.
	cbMu            sync.RWMutex
	onStatus        func(validity.Status, bool)
	onPhoto         func(Photo)
	onCaptureFailed func(error)
	onPreview       func([]byte)

	events chan event

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	lastSeq uint64
	hasSeq  bool
}

// New creates a pipeline. Callbacks should be registered before Start.
func New(cfg Config, deps Deps) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := deps.validate(); err != nil {
		return nil, err
	}

	guide := cfg.Thresholds.GuideFor(cfg.ViewportW, cfg.ViewportH)

	p := &Pipeline{
		cfg:    cfg,
		deps:   deps,
		eval:   validity.NewEvaluator(cfg.Thresholds, guide),
		latch:  NewLatch(),
		vpW:    cfg.ViewportW,
		vpH:    cfg.ViewportH,
		events: make(chan event, 64),
	}
	p.bg.Store(cfg.BackgroundReplacement)

	p.eval.OnChange(func(s validity.Status, valid bool) {
		p.emit(event{status: &statusEvent{status: s, valid: valid}})
	})

	return p, nil
}

// OnStatus registers the observer for validity status transitions.
func (p *Pipeline) OnStatus(fn func(status validity.Status, valid bool)) {
	p.cbMu.Lock()
	p.onStatus = fn
	p.cbMu.Unlock()
}

// OnPhoto registers the observer for finished captures.
func (p *Pipeline) OnPhoto(fn func(Photo)) {
	p.cbMu.Lock()
	p.onPhoto = fn
	p.cbMu.Unlock()
}

// OnCaptureFailed registers the observer for failed capture attempts.
func (p *Pipeline) OnCaptureFailed(fn func(error)) {
	p.cbMu.Lock()
	p.onCaptureFailed = fn
	p.cbMu.Unlock()
}

// OnPreview registers the observer for processed preview frames.
func (p *Pipeline) OnPreview(fn func(jpeg []byte)) {
	p.cbMu.Lock()
	p.onPreview = fn
	p.cbMu.Unlock()
}

// Start launches the worker and dispatcher goroutines.
func (p *Pipeline) Start(ctx context.Context) error {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	if p.running {
		return ErrAlreadyStarted
	}

	ctx, p.cancel = context.WithCancel(ctx)
	p.running = true

	p.wg.Add(2)
	go p.dispatch(ctx)
	go p.run(ctx)

	log.Info("pipeline started",
		"viewport_w", p.cfg.ViewportW,
		"viewport_h", p.cfg.ViewportH,
		"background", p.bg.Load())
	return nil
}

// Stop tears the session down and waits for the workers to exit.
func (p *Pipeline) Stop() {
	p.runMu.Lock()
	if !p.running {
		p.runMu.Unlock()
		return
	}
	p.running = false
	cancel := p.cancel
	p.runMu.Unlock()

	cancel()
	p.wg.Wait()
	log.Info("pipeline stopped")
}

// IsRunning reports whether the pipeline is processing frames.
func (p *Pipeline) IsRunning() bool {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	return p.running
}

// RequestCapture arms the single-shot capture latch. It reports whether the
// request was accepted.
func (p *Pipeline) RequestCapture() bool {
	return p.latch.Request()
}

// CaptureArmed reports whether a capture request is pending.
func (p *Pipeline) CaptureArmed() bool {
	return p.latch.Armed()
}

// SetBackground toggles background replacement for subsequent captures.
func (p *Pipeline) SetBackground(on bool) {
	p.bg.Store(on)
}

// Background reports whether background replacement is enabled.
func (p *Pipeline) Background() bool {
	return p.bg.Load()
}

// SetViewport updates the viewport size, recomputing the layout guide so it
// stays centered.
func (p *Pipeline) SetViewport(w, h float64) {
	if w <= 0 || h <= 0 {
		return
	}
	p.vpMu.Lock()
	p.vpW, p.vpH = w, h
	p.vpMu.Unlock()

	p.eval.SetGuide(p.cfg.Thresholds.GuideFor(w, h))
}

// Guide returns the current layout guide.
func (p *Pipeline) Guide() validity.Rect {
	return p.eval.Guide()
}

// Status returns the current authoritative validity status.
func (p *Pipeline) Status() validity.Status {
	return p.eval.Status()
}

// HasValidFace reports whether capture is currently permitted.
func (p *Pipeline) HasValidFace() bool {
	return p.eval.HasValidFace()
}

// run is the frame worker: single consumer of the frame source.
func (p *Pipeline) run(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		frame, err := p.deps.Source.Frame()
		if err != nil {
			sleep(ctx, p.cfg.IdleDelay)
			continue
		}
		if p.hasSeq && frame.Seq == p.lastSeq {
			sleep(ctx, p.cfg.IdleDelay)
			continue
		}
		p.lastSeq = frame.Seq
		p.hasSeq = true

		p.process(frame)
	}
}

// process runs one frame through detection, evaluation, and the capture
// branch. Per-frame failures are scoped to this frame only.
func (p *Pipeline) process(frame Frame) {
	face, err := p.deps.Faces.DetectFace(frame.JPEG)
	switch {
	case err != nil:
		// Detection failures invalidate this frame but never stop the
		// worker.
		log.Debug("face detection failed", "seq", frame.Seq, "error", err)
		p.eval.ObserveGeometry(validity.Errored[validity.FaceGeometry](err))

	case face == nil:
		// No face short-circuits quality evaluation for this frame.
		p.eval.ObserveNoFace()

	default:
		p.eval.ObserveGeometry(validity.Found(p.toView(*face)))

		q, qerr := p.deps.Quality.Score(frame.JPEG, face.Box)
		if qerr != nil {
			log.Debug("quality scoring failed", "seq", frame.Seq, "error", qerr)
			p.eval.ObserveQuality(validity.Errored[float64](qerr))
		} else {
			p.eval.ObserveQuality(validity.Found(q))
		}
	}

	p.emit(event{preview: frame.JPEG})

	if p.latch.Consume() {
		p.capture(frame)
		p.latch.Done()
	}
}

// capture services one consumed capture request against the current frame.
func (p *Pipeline) capture(frame Frame) {
	if !p.eval.HasValidFace() {
		p.emit(event{captErr: ErrFaceNotReady})
		return
	}

	background := p.bg.Load()

	var out []byte
	var err error
	if background {
		out, err = p.replaceBackground(frame)
	} else {
		out, err = p.deps.Finisher.Crop(frame.JPEG)
	}
	if err != nil {
		// Fatal to this capture attempt only; the preview loop continues.
		log.Warn("capture failed", "seq", frame.Seq, "error", err)
		p.emit(event{captErr: err})
		return
	}

	photo := Photo{
		ID:         uuid.NewString(),
		JPEG:       out,
		TakenAt:    time.Now(),
		Background: background,
	}
	log.Info("captured photo", "id", photo.ID, "bytes", len(photo.JPEG), "background", background)
	p.emit(event{photo: &photo})
}

func (p *Pipeline) replaceBackground(frame Frame) ([]byte, error) {
	if p.deps.Segmenter == nil {
		return nil, ErrNoSegmenter
	}
	mask, err := p.deps.Segmenter.Segment(frame.JPEG)
	if err != nil {
		return nil, err
	}
	return p.deps.Finisher.Replace(frame.JPEG, mask)
}

// toView converts a detector result from normalized coordinates into view
// coordinates.
func (p *Pipeline) toView(face detect.Face) validity.FaceGeometry {
	p.vpMu.RLock()
	w, h := p.vpW, p.vpH
	p.vpMu.RUnlock()

	return validity.FaceGeometry{
		Box: validity.Rect{
			X: face.Box.X * w,
			Y: face.Box.Y * h,
			W: face.Box.W * w,
			H: face.Box.H * h,
		},
		Pose: face.Pose,
	}
}

// emit hands an event to the dispatcher without blocking the worker.
// Overflow drops the event; observers are best-effort.
func (p *Pipeline) emit(ev event) {
	select {
	case p.events <- ev:
	default:
		log.Warn("observer queue full, dropping event")
	}
}

// dispatch is the single observer-side goroutine: all callbacks run here, so
// observers see a consistent ordering and never race the worker.
func (p *Pipeline) dispatch(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-p.events:
			p.deliver(ev)
		}
	}
}

func (p *Pipeline) deliver(ev event) {
	p.cbMu.RLock()
	onStatus := p.onStatus
	onPhoto := p.onPhoto
	onCaptureFailed := p.onCaptureFailed
	onPreview := p.onPreview
	p.cbMu.RUnlock()

	switch {
	case ev.status != nil && onStatus != nil:
		onStatus(ev.status.status, ev.status.valid)
	case ev.photo != nil && onPhoto != nil:
		onPhoto(*ev.photo)
	case ev.captErr != nil && onCaptureFailed != nil:
		onCaptureFailed(ev.captErr)
	case ev.preview != nil && onPreview != nil:
		onPreview(ev.preview)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
