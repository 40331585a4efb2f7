package web

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/framefit/passportcam/internal/store"
	"github.com/framefit/passportcam/pkg/pipeline"
	"github.com/framefit/passportcam/pkg/validity"
)

type fakeBooth struct {
	status     validity.Status
	background bool
	captureOK  bool
	captures   int
	viewportW  float64
	viewportH  float64
}

func (f *fakeBooth) Status() validity.Status { return f.status }
func (f *fakeBooth) HasValidFace() bool      { return f.status.Valid() }
func (f *fakeBooth) Guide() validity.Rect {
	return validity.Rect{X: 10, Y: 20, W: 200, H: 300}
}
func (f *fakeBooth) RequestCapture() bool {
	if f.captureOK {
		f.captures++
	}
	return f.captureOK
}
func (f *fakeBooth) SetBackground(on bool) { f.background = on }
func (f *fakeBooth) Background() bool      { return f.background }
func (f *fakeBooth) SetViewport(w, h float64) {
	f.viewportW, f.viewportH = w, h
}

func newTestServer(t *testing.T, booth *fakeBooth) (*Server, *store.Store) {
	t.Helper()
	photos, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	cfg := DefaultConfig()
	cfg.StaticDir = ""
	return NewServer(cfg, booth, photos, nil), photos
}

func TestStatusEndpoint(t *testing.T) {
	booth := &fakeBooth{status: validity.StatusJustRight, background: true}
	s, _ := newTestServer(t, booth)

	resp, err := s.app.Test(httptest.NewRequest("GET", "/api/status", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("status code = %d", resp.StatusCode)
	}

	var payload statusPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Status != "just_right" || !payload.Valid || !payload.Background {
		t.Errorf("payload = %+v", payload)
	}
	if payload.Guide.W != 200 {
		t.Errorf("guide = %+v", payload.Guide)
	}
}

func TestCaptureAcceptedAndConflict(t *testing.T) {
	booth := &fakeBooth{captureOK: true}
	s, _ := newTestServer(t, booth)

	resp, err := s.app.Test(httptest.NewRequest("POST", "/api/capture", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("accepted capture: status = %d", resp.StatusCode)
	}
	if booth.captures != 1 {
		t.Errorf("captures = %d", booth.captures)
	}

	booth.captureOK = false
	resp, err = s.app.Test(httptest.NewRequest("POST", "/api/capture", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != 409 {
		t.Errorf("rejected capture: status = %d, want 409", resp.StatusCode)
	}
}

func TestBackgroundToggle(t *testing.T) {
	booth := &fakeBooth{}
	s, _ := newTestServer(t, booth)

	req := httptest.NewRequest("POST", "/api/background",
		bytes.NewReader([]byte(`{"enabled":true}`)))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if !booth.background {
		t.Error("background should be enabled")
	}
}

func TestViewportValidation(t *testing.T) {
	booth := &fakeBooth{}
	s, _ := newTestServer(t, booth)

	req := httptest.NewRequest("POST", "/api/viewport",
		bytes.NewReader([]byte(`{"width":-1,"height":600}`)))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != 400 {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if booth.viewportW != 0 {
		t.Error("invalid viewport must not be applied")
	}

	req = httptest.NewRequest("POST", "/api/viewport",
		bytes.NewReader([]byte(`{"width":800,"height":600}`)))
	req.Header.Set("Content-Type", "application/json")
	if _, err := s.app.Test(req); err != nil {
		t.Fatalf("request: %v", err)
	}
	if booth.viewportW != 800 || booth.viewportH != 600 {
		t.Errorf("viewport = %gx%g", booth.viewportW, booth.viewportH)
	}
}

func TestPhotoEndpoints(t *testing.T) {
	booth := &fakeBooth{}
	s, photos := newTestServer(t, booth)

	if _, err := photos.Save(pipeline.Photo{
		ID:      "p1",
		JPEG:    []byte("jpeg-data"),
		TakenAt: time.Now(),
	}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	resp, err := s.app.Test(httptest.NewRequest("GET", "/api/photos", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	var entries []store.Entry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "p1" {
		t.Errorf("entries = %+v", entries)
	}

	resp, err = s.app.Test(httptest.NewRequest("GET", "/api/photos/p1", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("content type = %s", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "jpeg-data" {
		t.Errorf("body = %q", body)
	}

	resp, err = s.app.Test(httptest.NewRequest("GET", "/api/photos/missing", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != 404 {
		t.Errorf("missing photo: status = %d", resp.StatusCode)
	}
}
