package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/soocke/board-calibrator-go/domain/calibration"
	"github.com/soocke/board-calibrator-go/domain/geometry"
	"github.com/soocke/board-calibrator-go/events"
)

var discardLogger = slog.New(slog.NewTextHandler(&discardWriter{}, nil))

type discardWriter struct{}

func (d *discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// fakeController serves a fixed snapshot.
type fakeController struct {
	mu      sync.Mutex
	running bool
	snap    calibration.Snapshot
	img     *image.RGBA
	starts  int
	stops   int
}

func (f *fakeController) calibrate(img *image.RGBA, q geometry.Quad) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.img = img
	f.snap = calibration.Snapshot{
		Session:      "s-1",
		State:        calibration.StateCalibrated,
		Recognized:   true,
		HasBounds:    true,
		Bounds:       img.Rect,
		HasBoard:     true,
		ImageSize:    geometry.Size{Width: img.Rect.Dx(), Height: img.Rect.Dy()},
		Points:       q,
		ScreenPoints: q,
		Sequence:     7,
		UpdatedAt:    time.Now(),
	}
}

func (f *fakeController) State() calibration.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap.State
}
func (f *fakeController) Start() {
	f.mu.Lock()
	f.running, f.snap.State = true, calibration.StateCalibrating
	f.starts++
	f.mu.Unlock()
}
func (f *fakeController) Stop() {
	f.mu.Lock()
	f.running, f.snap.State = false, calibration.StateUncalibrated
	f.stops++
	f.mu.Unlock()
}
func (f *fakeController) Running() bool                { return f.running }
func (f *fakeController) IsBoardRecognized() bool      { return f.snap.Recognized }
func (f *fakeController) IsBoardFullyRecognized() bool { return f.State() == calibration.StateCalibrated }
func (f *fakeController) BoardBounds() (image.Rectangle, error) {
	if !f.snap.HasBounds {
		return image.Rectangle{}, calibration.ErrNotYetCalibrated
	}
	return f.snap.Bounds, nil
}
func (f *fakeController) BoardImage() (*image.RGBA, error) {
	if f.img == nil {
		return nil, calibration.ErrNotYetCalibrated
	}
	return f.img, nil
}
func (f *fakeController) BoardImageSize() (geometry.Size, error) { return f.snap.ImageSize, nil }
func (f *fakeController) ScreenPoints() (geometry.Quad, error)   { return f.snap.ScreenPoints, nil }
func (f *fakeController) Points() (geometry.Quad, error)         { return f.snap.Points, nil }
func (f *fakeController) Snapshot() calibration.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}
func (f *fakeController) WithBoardImage(fn func(calibration.Snapshot)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.img == nil {
		return calibration.ErrNotYetCalibrated
	}
	snap := f.snap
	snap.Image = f.img
	fn(snap)
	return nil
}
func (f *fakeController) SetSubscriber(calibration.Subscriber)  {}
func (f *fakeController) AddListener(calibration.StateListener) {}
func (f *fakeController) Stats() calibration.Stats              { return calibration.Stats{Accepted: 3} }

var square = geometry.Quad{{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 100, Y: 100}, {X: 0, Y: 100}}

func board(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+3] = 200, 255
	}
	return img
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	h.ServeHTTP(w, req)
	return w
}

func TestGetState(t *testing.T) {
	fc := &fakeController{}
	s := New(discardLogger, fc, events.NewEventHub())

	w := do(t, s.Handler(), http.MethodGet, "/state")
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var resp stateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.State != "uncalibrated" || resp.Bounds != nil || resp.ImageSize != nil {
		t.Fatalf("unexpected idle state: %+v", resp)
	}

	fc.calibrate(board(40, 30), square)
	w = do(t, s.Handler(), http.MethodGet, "/state")
	resp = stateResponse{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.State != "calibrated" || !resp.FullyRecognized || resp.ImageSize == nil || resp.ImageSize.Width != 40 {
		t.Fatalf("unexpected calibrated state: %+v", resp)
	}
	if resp.Stats.Accepted != 3 || resp.Sequence != 7 {
		t.Fatalf("stats not reported: %+v", resp)
	}
}

func TestGetBoard_NotCalibrated(t *testing.T) {
	s := New(discardLogger, &fakeController{}, nil)
	if w := do(t, s.Handler(), http.MethodGet, "/board.png"); w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
	if w := do(t, s.Handler(), http.MethodGet, "/points"); w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
}

func TestGetBoard_PNG(t *testing.T) {
	fc := &fakeController{}
	fc.calibrate(board(80, 40), square)
	s := New(discardLogger, fc, nil)

	w := do(t, s.Handler(), http.MethodGet, "/board.png")
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("status %d type %q", w.Code, w.Header().Get("Content-Type"))
	}
	if w.Header().Get("X-Board-Sequence") != "7" {
		t.Fatalf("missing sequence header")
	}
	img, err := png.Decode(bytes.NewReader(w.Body.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 80 || img.Bounds().Dy() != 40 {
		t.Fatalf("unexpected size %v", img.Bounds())
	}
	r, _, _, _ := img.At(5, 5).RGBA()
	if uint8(r>>8) != 200 {
		t.Fatalf("unexpected pixel %v", color.RGBAModel.Convert(img.At(5, 5)))
	}

	w = do(t, s.Handler(), http.MethodGet, "/board.png?max=20x20")
	img, err = png.Decode(bytes.NewReader(w.Body.Bytes()))
	if err != nil || img.Bounds().Dx() != 20 || img.Bounds().Dy() != 10 {
		t.Fatalf("scaled board: %v %v", img.Bounds(), err)
	}

	w = do(t, s.Handler(), http.MethodGet, "/board.png?cx=10&cy=10&size=6")
	img, err = png.Decode(bytes.NewReader(w.Body.Bytes()))
	if err != nil || img.Bounds().Dx() != 6 || img.Bounds().Dy() != 6 {
		t.Fatalf("cropped board: %v %v", img.Bounds(), err)
	}
}

func TestGetBoard_BadQuery(t *testing.T) {
	fc := &fakeController{}
	fc.calibrate(board(8, 8), square)
	s := New(discardLogger, fc, nil)
	for _, target := range []string{"/board.png?max=big", "/board.png?cx=1&cy=2", "/board.png?cx=1&cy=2&size=0"} {
		if w := do(t, s.Handler(), http.MethodGet, target); w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", target, w.Code)
		}
	}
}

func TestGetPoints(t *testing.T) {
	fc := &fakeController{}
	fc.calibrate(board(8, 8), square)
	s := New(discardLogger, fc, nil)
	w := do(t, s.Handler(), http.MethodGet, "/points")
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var resp pointsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Points != square || resp.Sequence != 7 {
		t.Fatalf("unexpected points %+v", resp)
	}
}

func TestStartStop(t *testing.T) {
	fc := &fakeController{}
	s := New(discardLogger, fc, nil)
	if w := do(t, s.Handler(), http.MethodPost, "/start"); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "calibrating") {
		t.Fatalf("start: %d %s", w.Code, w.Body.String())
	}
	if w := do(t, s.Handler(), http.MethodPost, "/stop"); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "uncalibrated") {
		t.Fatalf("stop: %d %s", w.Code, w.Body.String())
	}
	if fc.starts != 1 || fc.stops != 1 {
		t.Fatalf("starts=%d stops=%d", fc.starts, fc.stops)
	}
}

func TestEventsStream(t *testing.T) {
	hub := events.NewEventHub()
	s := New(discardLogger, &fakeController{}, hub)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type %q", ct)
	}
	rd := bufio.NewReader(resp.Body)
	if line, _ := rd.ReadString('\n'); !strings.HasPrefix(line, ": connected") {
		t.Fatalf("unexpected preamble %q", line)
	}
	hub.Publish(events.CalibrationState, events.CalibrationStateEvent{From: "calibrating", To: "calibrated"})
	var lines []string
	for len(lines) < 2 {
		line, err := rd.ReadString('\n')
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	name := strings.TrimSpace(strings.TrimPrefix(lines[0], "event:"))
	data := strings.TrimSpace(strings.TrimPrefix(lines[1], "data:"))
	if name != events.CalibrationState || !strings.HasPrefix(data, "{") {
		t.Fatalf("unexpected event %q", lines)
	}
	got, err := events.DecodeAs[events.CalibrationStateEvent](events.Event{Data: []byte(data)})
	if err != nil || got.To != "calibrated" {
		t.Fatalf("unexpected event %q", lines)
	}
}

func TestEventsDisabled(t *testing.T) {
	s := New(discardLogger, &fakeController{}, nil)
	if w := do(t, s.Handler(), http.MethodGet, "/events"); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestStartShutdown(t *testing.T) {
	s := New(discardLogger, &fakeController{}, nil)
	addr, err := s.Start("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Get("http://" + addr + "/state")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestShutdownEndsEventStreams(t *testing.T) {
	s := New(discardLogger, &fakeController{}, events.NewEventHub())
	addr, err := s.Start("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Get("http://" + addr + "/events")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	rd := bufio.NewReader(resp.Body)
	if line, _ := rd.ReadString('\n'); !strings.HasPrefix(line, ": connected") {
		t.Fatalf("unexpected preamble %q", line)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	start := time.Now()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown with open stream: %v", err)
	}
	if d := time.Since(start); d > time.Second {
		t.Fatalf("shutdown took %v", d)
	}
}

func TestEventsStreamEndsAfterShutdownWithoutListener(t *testing.T) {
	s := New(discardLogger, &fakeController{}, events.NewEventHub())
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	// second call must not panic on the closed channel
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	done := make(chan struct{})
	go func() {
		do(t, s.Handler(), http.MethodGet, "/events")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("event stream did not end after shutdown")
	}
}
