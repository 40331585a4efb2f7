package validity

import "sync"

// Evaluator caches the latest observation of each face signal and maintains
// the authoritative Status. Every update recomputes the status through the
// pure Reduce function rather than patching individual fields, so observers
// can never see a partially-updated state.
//
// The evaluator is safe for concurrent use; in practice one pipeline worker
// writes and UI-side readers poll.
type Evaluator struct {
	mu sync.RWMutex

	thresholds Thresholds
	guide      Rect

	geometry Observation[FaceGeometry]
	quality  Observation[float64]

	status Status

	// onChange fires outside the lock whenever the status value changes.
	onChange func(Status, bool)
}

// NewEvaluator creates an evaluator with the given thresholds and layout
// guide. The initial status is StatusNoFace.
func NewEvaluator(t Thresholds, guide Rect) *Evaluator {
	return &Evaluator{
		thresholds: t,
		guide:      guide,
		geometry:   NotFound[FaceGeometry](),
		quality:    NotFound[float64](),
		status:     StatusNoFace,
	}
}

// OnChange registers a callback invoked whenever the status transitions.
// The callback receives the new status and whether it permits capture.
func (e *Evaluator) OnChange(fn func(status Status, valid bool)) {
	e.mu.Lock()
	e.onChange = fn
	e.mu.Unlock()
}

// SetGuide replaces the layout guide, normally on viewport resize, and
// re-evaluates against the cached observations.
func (e *Evaluator) SetGuide(guide Rect) {
	e.mu.Lock()
	e.guide = guide
	e.recompute()
}

// Guide returns the current layout guide.
func (e *Evaluator) Guide() Rect {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.guide
}

// ObserveGeometry records the geometry observation for the latest frame.
func (e *Evaluator) ObserveGeometry(obs Observation[FaceGeometry]) {
	e.mu.Lock()
	e.geometry = obs
	e.recompute()
}

// ObserveQuality records the quality observation for the latest frame.
func (e *Evaluator) ObserveQuality(obs Observation[float64]) {
	e.mu.Lock()
	e.quality = obs
	e.recompute()
}

// ObserveNoFace records a frame in which no face was detected. Quality is
// cleared as well: a frame with no face skips quality evaluation entirely.
func (e *Evaluator) ObserveNoFace() {
	e.mu.Lock()
	e.geometry = NotFound[FaceGeometry]()
	e.quality = NotFound[float64]()
	e.recompute()
}

// Status returns the current authoritative status.
func (e *Evaluator) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

// HasValidFace reports whether the current status permits capture.
func (e *Evaluator) HasValidFace() bool {
	return e.Status().Valid()
}

// recompute re-reduces the cached observations, releases the lock, and fires
// the change callback if the status moved. Callers must hold e.mu.
func (e *Evaluator) recompute() {
	next := Reduce(e.geometry, e.quality, e.guide, e.thresholds)
	changed := next != e.status
	e.status = next
	fn := e.onChange
	e.mu.Unlock()

	if changed && fn != nil {
		fn(next, next.Valid())
	}
}
