package pipeline

import "sync"

// Latch is the single-shot capture request flag. The UI arms it; the frame
// worker consumes it at most once per arming. Requests made while a request
// is outstanding or a capture is in flight are dropped, not queued.
type Latch struct {
	mu       sync.Mutex
	armed    bool
	inFlight bool
}

// NewLatch creates an unarmed latch.
func NewLatch() *Latch {
	return &Latch{}
}

// Request arms the latch. It reports whether the request was accepted:
// false when already armed or a capture is still in flight.
func (l *Latch) Request() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.armed || l.inFlight {
		return false
	}
	l.armed = true
	return true
}

// Armed reports whether a capture request is pending, without side effect.
func (l *Latch) Armed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.armed
}

// Consume atomically clears the flag and reports whether a capture should
// occur this frame. The latch stays busy until Done, so the arming can never
// be consumed twice and re-arming waits for the capture to finish.
func (l *Latch) Consume() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.armed {
		return false
	}
	l.armed = false
	l.inFlight = true
	return true
}

// Done marks the in-flight capture finished, allowing a new request.
func (l *Latch) Done() {
	l.mu.Lock()
	l.inFlight = false
	l.mu.Unlock()
}
