package capture

import (
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/soocke/board-calibrator-go/domain/calibration"
)

const captureStatsLogInterval = 5 * time.Second

// CaptureService acquires screen frames (selection or full screen) and exposes
// the latest capture alongside instrumentation data. It doubles as the
// calibration frame source. Use NewCaptureService to construct an instance.
type CaptureService interface {
	Start()
	Stop()
	LatestFrame() FrameSnapshot
	NextFrame() (image.Image, error)
	Running() bool
	SetSelectionProvider(func() *image.Rectangle)
	Stats() CaptureStats
}

// Options configures a capture service. Zero values use the screen grabbers,
// no pacing and no staleness limit.
type Options struct {
	Interval      time.Duration
	MaxFrameAge   time.Duration
	Grab          func() (*image.RGBA, error)
	GrabSelection func(image.Rectangle) (*image.RGBA, error)
}

type captureService struct {
	opts         Options
	running      atomic.Bool
	latest       atomic.Pointer[FrameSnapshot]
	selMu        sync.Mutex
	selFn        func() *image.Rectangle // user selection rectangle (optional)
	logger       *slog.Logger
	captures     atomic.Uint64
	skipped      atomic.Uint64
	stale        atomic.Uint64
	captureNanos atomic.Uint64
	sequence     atomic.Uint64

	lifecycle sync.Mutex
	stopCh    chan struct{}
	doneCh    chan struct{}
}

func newCaptureService(logger *slog.Logger, selectionFn func() *image.Rectangle, opts Options) *captureService {
	if opts.Grab == nil {
		opts.Grab = Grab
	}
	if opts.GrabSelection == nil {
		opts.GrabSelection = GrabSelection
	}
	return &captureService{selFn: selectionFn, logger: logger, opts: opts}
}

// NewCaptureService constructs a capture service that provides frames via
// LatestFrame and NextFrame.
func NewCaptureService(logger *slog.Logger, selectionFn func() *image.Rectangle, opts Options) CaptureService {
	return newCaptureService(logger, selectionFn, opts)
}

func (s *captureService) SetSelectionProvider(fn func() *image.Rectangle) {
	s.selMu.Lock()
	s.selFn = fn
	s.selMu.Unlock()
}

func (s *captureService) selection() *image.Rectangle {
	s.selMu.Lock()
	fn := s.selFn
	s.selMu.Unlock()
	if fn == nil {
		return nil
	}
	return fn()
}

func (s *captureService) LatestFrame() FrameSnapshot {
	snap := s.latest.Load()
	if snap == nil {
		return FrameSnapshot{}
	}
	return *snap
}

// NextFrame returns the latest capture, or calibration.ErrSourceUnavailable
// when the service is stopped, has nothing yet, or the frame is too old.
func (s *captureService) NextFrame() (image.Image, error) {
	if !s.running.Load() {
		return nil, calibration.ErrSourceUnavailable
	}
	snap := s.latest.Load()
	if snap == nil || snap.Image == nil {
		return nil, calibration.ErrSourceUnavailable
	}
	if s.opts.MaxFrameAge > 0 && time.Since(snap.CapturedAt) > s.opts.MaxFrameAge {
		s.stale.Add(1)
		return nil, calibration.ErrSourceUnavailable
	}
	return snap.Image, nil
}

func (s *captureService) Running() bool { return s.running.Load() }

func (s *captureService) Stats() CaptureStats {
	captures := s.captures.Load()
	skipped := s.skipped.Load()
	total := s.captureNanos.Load()
	var avg time.Duration
	avgMicros := 0.0
	if captures > 0 && total > 0 {
		avg = time.Duration(total / captures)
		avgMicros = float64(avg) / float64(time.Microsecond)
	}
	snapshot := s.LatestFrame()
	age := time.Duration(0)
	if !snapshot.CapturedAt.IsZero() {
		age = time.Since(snapshot.CapturedAt)
	}
	return CaptureStats{
		Captures:         captures,
		Skipped:          skipped,
		Stale:            s.stale.Load(),
		AvgCapture:       avg,
		AvgCaptureMicros: avgMicros,
		LastCapture:      snapshot.CapturedAt,
		LatestFrameAge:   age,
		Sequence:         snapshot.Sequence,
	}
}

func (s *captureService) Start() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if s.running.Load() {
		return
	}
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.running.Store(true)
	go s.loop(s.stopCh, s.doneCh)
}

// Stop halts capture and waits for the loop to exit. The latest frame is
// dropped so a later Start never serves a stale capture.
func (s *captureService) Stop() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if !s.running.Load() {
		return
	}
	s.running.Store(false)
	close(s.stopCh)
	<-s.doneCh
	s.latest.Store(nil)
}

func (s *captureService) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	logTicker := time.NewTicker(captureStatsLogInterval)
	defer logTicker.Stop()
	for {
		select {
		case <-stop:
			return
		default:
		}
		start := time.Now()
		img := s.grabOnce()

		if img == nil {
			s.skipped.Add(1)
			if !s.pause(stop, 10*time.Millisecond) {
				return
			}
			continue
		}

		elapsed := time.Since(start)
		s.captureNanos.Add(uint64(elapsed.Nanoseconds()))
		s.captures.Add(1)
		seq := s.sequence.Add(1)
		s.latest.Store(&FrameSnapshot{Image: img, CapturedAt: time.Now(), Sequence: seq})

		select {
		case <-logTicker.C:
			s.logStats()
		default:
		}

		wait := s.opts.Interval - elapsed
		if wait < 200*time.Microsecond {
			wait = 200 * time.Microsecond
		}
		if !s.pause(stop, wait) {
			return
		}
	}
}

// grabOnce tries the selection first and falls back to the full screen.
func (s *captureService) grabOnce() (img *image.RGBA) {
	defer func() {
		if r := recover(); r != nil {
			img = nil
			if s.logger != nil {
				s.logger.Error("capture panic", "error", r)
			}
		}
	}()
	if r := s.selection(); r != nil && !r.Empty() {
		if out, err := s.opts.GrabSelection(*r); err == nil {
			return out
		} else if s.logger != nil {
			s.logger.Error("capture selection", "error", err)
		}
	}
	full, err := s.opts.Grab()
	if err != nil {
		if s.logger != nil {
			s.logger.Error("capture full", "error", err)
		}
		return nil
	}
	return full
}

func (s *captureService) pause(stop <-chan struct{}, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-stop:
		return false
	case <-t.C:
		return true
	}
}

func (s *captureService) logStats() {
	if s.logger == nil {
		return
	}
	stats := s.Stats()
	s.logger.Debug("capture.stats",
		"captures", stats.Captures,
		"skipped", stats.Skipped,
		"stale", stats.Stale,
		"avg_capture", stats.AvgCapture,
		"age", stats.LatestFrameAge,
	)
}

var (
	_ Source               = (*captureService)(nil)
	_ SnapshotSource       = (*captureService)(nil)
	_ ServiceWithSelection = (*captureService)(nil)
)
