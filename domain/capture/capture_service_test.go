package capture

import (
	"errors"
	"image"
	"image/color"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/soocke/board-calibrator-go/domain/calibration"
)

var discardLogger = slog.New(slog.NewTextHandler(&discardWriter{}, nil))

type discardWriter struct{}

func (d *discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func waitFor(t *testing.T, cond func() bool, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func TestCaptureService_NextFrameLifecycle(t *testing.T) {
	frame := solid(8, 8, color.RGBA{1, 2, 3, 255})
	svc := NewCaptureService(discardLogger, nil, Options{
		Interval: time.Millisecond,
		Grab:     func() (*image.RGBA, error) { return frame, nil },
	})
	if _, err := svc.NextFrame(); !errors.Is(err, calibration.ErrSourceUnavailable) {
		t.Fatalf("expected unavailable before start, got %v", err)
	}
	svc.Start()
	svc.Start()
	waitFor(t, func() bool { return svc.LatestFrame().Image != nil }, time.Second)
	img, err := svc.NextFrame()
	if err != nil || img != frame {
		t.Fatalf("expected latest frame, got %v %v", img, err)
	}
	if st := svc.Stats(); st.Captures == 0 || st.Sequence == 0 {
		t.Fatalf("stats not updated: %+v", st)
	}
	svc.Stop()
	svc.Stop()
	if svc.Running() {
		t.Fatalf("expected stopped")
	}
	if _, err := svc.NextFrame(); !errors.Is(err, calibration.ErrSourceUnavailable) {
		t.Fatalf("expected unavailable after stop, got %v", err)
	}
}

func TestCaptureService_SelectionFallsBackToFullScreen(t *testing.T) {
	full := solid(4, 4, color.RGBA{9, 9, 9, 255})
	var selCalls atomic.Int64
	sel := image.Rect(0, 0, 2, 2)
	svc := newCaptureService(discardLogger, func() *image.Rectangle { return &sel }, Options{
		Interval: time.Millisecond,
		Grab:     func() (*image.RGBA, error) { return full, nil },
		GrabSelection: func(image.Rectangle) (*image.RGBA, error) {
			selCalls.Add(1)
			return nil, errors.New("no display")
		},
	})
	svc.Start()
	defer svc.Stop()
	waitFor(t, func() bool { return svc.LatestFrame().Image == full }, time.Second)
	if selCalls.Load() == 0 {
		t.Fatalf("selection grabber was not tried first")
	}
}

func TestCaptureService_SelectionUsed(t *testing.T) {
	part := solid(2, 2, color.RGBA{7, 7, 7, 255})
	var got atomic.Pointer[image.Rectangle]
	svc := newCaptureService(discardLogger, nil, Options{
		Interval: time.Millisecond,
		Grab:     func() (*image.RGBA, error) { return nil, errors.New("unexpected full grab") },
		GrabSelection: func(r image.Rectangle) (*image.RGBA, error) {
			got.Store(&r)
			return part, nil
		},
	})
	sel := image.Rect(10, 10, 12, 12)
	svc.SetSelectionProvider(func() *image.Rectangle { return &sel })
	svc.Start()
	defer svc.Stop()
	waitFor(t, func() bool { return svc.LatestFrame().Image == part }, time.Second)
	if r := got.Load(); r == nil || *r != sel {
		t.Fatalf("selection not forwarded: %v", r)
	}
}

func TestCaptureService_StaleFrameUnavailable(t *testing.T) {
	var calls atomic.Int64
	frame := solid(2, 2, color.RGBA{255, 255, 255, 255})
	svc := newCaptureService(discardLogger, nil, Options{
		Interval:    time.Millisecond,
		MaxFrameAge: 20 * time.Millisecond,
		Grab: func() (*image.RGBA, error) {
			if calls.Add(1) > 1 {
				return nil, errors.New("camera gone")
			}
			return frame, nil
		},
	})
	svc.Start()
	defer svc.Stop()
	waitFor(t, func() bool { return svc.LatestFrame().Image != nil }, time.Second)
	time.Sleep(40 * time.Millisecond)
	if _, err := svc.NextFrame(); !errors.Is(err, calibration.ErrSourceUnavailable) {
		t.Fatalf("expected stale frame to be unavailable, got %v", err)
	}
	if st := svc.Stats(); st.Stale == 0 || st.Skipped == 0 {
		t.Fatalf("expected stale and skipped counts, got %+v", st)
	}
}

func TestCaptureService_RecoversFromGrabPanic(t *testing.T) {
	var calls atomic.Int64
	frame := solid(2, 2, color.RGBA{1, 1, 1, 255})
	svc := newCaptureService(discardLogger, nil, Options{
		Interval: time.Millisecond,
		Grab: func() (*image.RGBA, error) {
			if calls.Add(1) == 1 {
				panic("driver crash")
			}
			return frame, nil
		},
	})
	svc.Start()
	defer svc.Stop()
	waitFor(t, func() bool { return svc.LatestFrame().Image == frame }, time.Second)
}
