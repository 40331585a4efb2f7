package source

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"io"
	"os/exec"
	"sync"
	"time"
)

const decodeTimeout = 250 * time.Millisecond

// h264Decoder turns H264 access units into JPEG frames using ffmpeg over
// pipes. Decoding is rate limited so a fast stream cannot pile up
// subprocesses.
type h264Decoder struct {
	mu          sync.Mutex
	lastDecode  time.Time
	minInterval time.Duration
}

func newH264Decoder(minInterval time.Duration) *h264Decoder {
	return &h264Decoder{minInterval: minInterval}
}

// decode returns the JPEG for one access unit, or (nil, nil) when the unit
// was skipped or did not contain a decodable frame.
func (d *h264Decoder) decode(accessUnit []byte) ([]byte, error) {
	if len(accessUnit) < 100 {
		return nil, nil
	}

	d.mu.Lock()
	if time.Since(d.lastDecode) < d.minInterval {
		d.mu.Unlock()
		return nil, nil
	}
	d.lastDecode = time.Now()
	d.mu.Unlock()

	cmd := exec.Command("ffmpeg",
		"-f", "h264",
		"-i", "pipe:0",
		"-vframes", "1",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "3",
		"pipe:1",
	)

	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = io.Discard

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("source: decoder stdin: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("source: start ffmpeg: %w", err)
	}

	go func() {
		stdin.Write(accessUnit)
		stdin.Close()
	}()

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			// Partial access units fail to decode; not an error for the
			// stream as a whole.
			return nil, nil
		}
	case <-time.After(decodeTimeout):
		cmd.Process.Kill()
		<-done
		return nil, nil
	}

	data := stdout.Bytes()
	if !plausibleJPEG(data) {
		return nil, nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// plausibleJPEG rejects tiny or undecodable output before it reaches the
// pipeline.
func plausibleJPEG(data []byte) bool {
	if len(data) < 1000 {
		return false
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return false
	}
	return cfg.Width >= 100 && cfg.Height >= 100
}
