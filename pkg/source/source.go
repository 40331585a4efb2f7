// Package source provides camera frame sources for the capture pipeline:
// a local V4L2 webcam and a remote WebRTC camera.
package source

import (
	"errors"
	"sync"

	"github.com/framefit/passportcam/pkg/pipeline"
)

// ErrNoFrame is returned while a source has not produced a frame yet.
var ErrNoFrame = errors.New("source: no frame available")

// cell holds the newest frame. Producers overwrite, consumers snapshot;
// frames arriving faster than the consumer reads are simply replaced.
type cell struct {
	mu    sync.RWMutex
	frame pipeline.Frame
	seq   uint64
}

// put stores jpeg as the newest frame. The cell takes ownership of the slice.
func (c *cell) put(jpeg []byte) {
	c.mu.Lock()
	c.seq++
	c.frame = pipeline.Frame{Seq: c.seq, JPEG: jpeg}
	c.mu.Unlock()
}

// get returns the newest frame, or ErrNoFrame before the first put.
func (c *cell) get() (pipeline.Frame, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.seq == 0 {
		return pipeline.Frame{}, ErrNoFrame
	}
	return c.frame, nil
}
