package calibration

import (
	"errors"
	"image"
	"image/color"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/soocke/board-calibrator-go/config"
	"github.com/soocke/board-calibrator-go/domain/geometry"
)

// skipIdle is how long an unpaced loop waits after an iteration without a frame.
const skipIdle = 10 * time.Millisecond

// Controller drives the frame -> recognize -> rectify -> publish loop and owns
// the calibration state machine. The loop goroutine is the only writer of the
// published artifacts; readers go through the accessors which take the
// publication read lock.
//
// Subscriber and listener callbacks run on the loop goroutine (listeners also
// run on the Start/Stop caller for the lifecycle edges). They must not call
// Stop.
type Controller struct {
	logger     *slog.Logger
	source     FrameSource
	recognizer Recognizer

	size           geometry.Size
	screen         image.Rectangle
	background     color.Color
	interval       time.Duration
	statsInterval  time.Duration
	missThreshold  int
	resetThreshold int

	lifecycle sync.Mutex // serialises Start/Stop
	running   atomic.Bool
	stopCh    chan struct{}
	doneCh    chan struct{}

	subMu      sync.Mutex
	subscriber Subscriber

	listenerMu sync.Mutex
	listeners  []StateListener

	mu           sync.RWMutex // guards the published fields below
	state        State
	session      string
	recognized   bool
	hasBounds    bool
	bounds       image.Rectangle
	front        *image.RGBA
	points       geometry.Quad
	screenPoints geometry.Quad
	frameBounds  image.Rectangle
	sequence     uint64
	updatedAt    time.Time

	// loop-owned
	back   *image.RGBA
	misses int

	stats loopStats
	lock  lockClock
}

// NewController builds an idle controller. A nil cfg uses defaults; source may
// be nil when frames only come from the subscriber.
func NewController(logger *slog.Logger, cfg *config.Config, source FrameSource, recognizer Recognizer) *Controller {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	c := &Controller{
		logger:         logger,
		source:         source,
		recognizer:     recognizer,
		size:           geometry.Size{Width: cfg.BoardWidth, Height: cfg.BoardHeight},
		screen:         cfg.ScreenRect(),
		background:     cfg.Background(),
		interval:       cfg.FrameInterval(),
		statsInterval:  cfg.StatsInterval(),
		missThreshold:  cfg.MissThreshold,
		resetThreshold: cfg.ResetThreshold,
		state:          StateUncalibrated,
	}
	if c.size.Empty() {
		c.size = geometry.Size{Width: 640, Height: 480}
	}
	if c.missThreshold < 0 {
		c.missThreshold = 0
	}
	if c.resetThreshold <= c.missThreshold {
		c.resetThreshold = 0
	}
	if c.statsInterval <= 0 {
		c.statsInterval = 5 * time.Second
	}
	return c
}

// Start begins a calibration session. Calling Start while running is a no-op.
func (c *Controller) Start() {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	if c.running.Load() {
		return
	}
	c.beginSession()
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	c.running.Store(true)
	go c.loop(c.stopCh, c.doneCh)
}

// Stop halts the loop, waits for the in-flight iteration, then resets to
// Uncalibrated and releases the published artifacts and the subscriber.
// Calling Stop when not running is a no-op.
func (c *Controller) Stop() {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	if !c.running.Load() {
		return
	}
	close(c.stopCh)
	<-c.doneCh
	c.running.Store(false)
	c.endSession()
}

// Running reports whether the loop goroutine is active.
func (c *Controller) Running() bool { return c.running.Load() }

// SetSubscriber registers the update handle. The controller does not own it;
// it is dropped on Stop.
func (c *Controller) SetSubscriber(s Subscriber) {
	c.subMu.Lock()
	c.subscriber = s
	c.subMu.Unlock()
}

func (c *Controller) currentSubscriber() Subscriber {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	return c.subscriber
}

// AddListener registers a transition callback. Listeners cannot be removed.
func (c *Controller) AddListener(l StateListener) {
	if l == nil {
		return
	}
	c.listenerMu.Lock()
	c.listeners = append(c.listeners, l)
	c.listenerMu.Unlock()
}

func (c *Controller) beginSession() {
	c.misses = 0
	c.stats.reset()
	c.mu.Lock()
	prev := c.state
	c.session = uuid.NewString()
	c.state = StateCalibrating
	c.recognized = false
	session := c.session
	c.mu.Unlock()
	if c.logger != nil {
		c.logger.Info("calibration started", "session", session, "board", c.size.String())
	}
	c.transition(prev, StateCalibrating)
}

func (c *Controller) endSession() {
	c.mu.Lock()
	prev := c.state
	session := c.session
	front := c.front
	c.front = nil
	c.state = StateUncalibrated
	c.session = ""
	c.recognized = false
	c.hasBounds = false
	c.bounds = image.Rectangle{}
	c.points = geometry.Quad{}
	c.screenPoints = geometry.Quad{}
	c.frameBounds = image.Rectangle{}
	c.mu.Unlock()

	recycleBoard(front)
	recycleBoard(c.back)
	c.back = nil
	c.misses = 0
	c.SetSubscriber(nil)
	if c.logger != nil {
		c.logger.Info("calibration stopped", "session", session)
	}
	c.transition(prev, StateUncalibrated)
}

func (c *Controller) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	statsTicker := time.NewTicker(c.statsInterval)
	defer statsTicker.Stop()
	var tick <-chan time.Time
	if c.interval > 0 {
		t := time.NewTicker(c.interval)
		defer t.Stop()
		tick = t.C
	}
	idle := time.NewTimer(skipIdle)
	defer idle.Stop()
	for {
		select {
		case <-stop:
			return
		default:
		}
		skipped := c.runIteration()

		select {
		case <-statsTicker.C:
			c.logStats()
		default:
		}

		if tick != nil {
			select {
			case <-stop:
				return
			case <-tick:
			}
			continue
		}
		if !skipped {
			continue
		}
		// unpaced loop with nothing to process
		idle.Reset(skipIdle)
		select {
		case <-stop:
			return
		case <-idle.C:
		}
	}
}

// runIteration reports whether the iteration was skipped for lack of a frame.
func (c *Controller) runIteration() (skipped bool) {
	defer func() {
		if r := recover(); r != nil {
			if c.logger != nil {
				c.logger.Error("calibration iteration panic", "error", r, "stack", string(debug.Stack()))
			}
		}
	}()
	return !c.iterate()
}

// iterate runs one frame through the pipeline and reports whether a frame was
// available. Only the loop goroutine calls it.
func (c *Controller) iterate() bool {
	c.stats.iterations.Add(1)
	frame := c.nextFrame()
	if frame == nil {
		c.stats.skipped.Add(1)
		return false
	}
	var rec Recognition
	if c.recognizer != nil {
		rec = c.recognizer.Recognize(frame)
	}
	if !rec.Outcome.Found() {
		c.miss(ErrRecognitionMiss)
		return true
	}
	if err := c.accept(frame, rec); err != nil {
		var dq *geometry.DegenerateQuadError
		if errors.As(err, &dq) {
			c.stats.degenerate.Add(1)
		}
		c.miss(err)
	}
	return true
}

// nextFrame asks the source, then exactly once the subscriber. A nil result
// means the iteration is skipped.
func (c *Controller) nextFrame() image.Image {
	if c.source != nil {
		frame, err := c.source.NextFrame()
		if err == nil && frame != nil {
			return frame
		}
		if err != nil && !errors.Is(err, ErrSourceUnavailable) && c.logger != nil {
			c.logger.Debug("frame source error", "error", err)
		}
	}
	sub := c.currentSubscriber()
	if sub == nil {
		return nil
	}
	frame := sub.ProvideSimulatedFrame()
	if frame != nil {
		c.stats.simulated.Add(1)
	}
	return frame
}

func (c *Controller) miss(cause error) {
	c.misses++
	c.stats.misses.Add(1)

	var released *image.RGBA
	c.mu.Lock()
	prev := c.state
	c.recognized = false
	switch {
	case c.resetThreshold > 0 && c.misses > c.resetThreshold && c.state != StateUncalibrated:
		released = c.front
		c.front = nil
		c.hasBounds = false
		c.bounds = image.Rectangle{}
		c.points = geometry.Quad{}
		c.screenPoints = geometry.Quad{}
		c.state = StateUncalibrated
	case c.state == StateCalibrated && c.misses > c.missThreshold:
		released = c.front
		c.front = nil
		c.points = geometry.Quad{}
		c.screenPoints = geometry.Quad{}
		c.state = StateCalibrating
	}
	next := c.state
	c.mu.Unlock()

	if released != nil {
		c.stash(released)
	}
	if prev == next {
		return
	}
	if next == StateUncalibrated {
		c.stats.resets.Add(1)
	} else {
		c.stats.demotions.Add(1)
	}
	if c.logger != nil {
		c.logger.Info("calibration lock lost", "misses", c.misses, "state", next.String(), "cause", cause)
	}
	c.transition(prev, next)
}

// stash keeps img as the scratch buffer or returns it to the pool.
func (c *Controller) stash(img *image.RGBA) {
	if c.back == nil {
		c.back = img
		return
	}
	recycleBoard(img)
}

func (c *Controller) accept(frame image.Image, rec Recognition) error {
	start := time.Now()
	t, err := geometry.ComputeRectification(rec.Quad, c.size)
	if err != nil {
		return err
	}
	scratch := c.back
	c.back = nil
	if scratch == nil || scratch.Rect != c.size.Rect() {
		recycleBoard(scratch)
		scratch = acquireBoard(c.size.Rect())
	}
	if err := geometry.ApplyTransformInto(scratch, frame, t, c.background); err != nil {
		c.back = scratch
		return err
	}
	fb := frame.Bounds()
	space := c.screen
	if space.Empty() {
		space = fb
	}
	screenPts := geometry.ProjectPoints(rec.Quad, fb, space)
	c.stats.rectifyNanos.Add(uint64(time.Since(start).Nanoseconds()))

	c.misses = 0
	now := time.Now()
	var steps []State
	c.mu.Lock()
	prev := c.state
	c.back = c.front
	c.front = scratch
	c.points = rec.Quad
	c.screenPoints = screenPts
	c.frameBounds = fb
	c.recognized = true
	c.sequence++
	c.updatedAt = now
	if c.state == StateUncalibrated {
		steps = append(steps, StateCalibrating)
		c.state = StateCalibrating
	}
	if rec.Outcome == OutcomeFull {
		if !c.hasBounds {
			c.hasBounds = true
			c.bounds = c.size.Rect()
		}
		if c.state != StateCalibrated {
			steps = append(steps, StateCalibrated)
			c.state = StateCalibrated
		}
	}
	front := c.front
	c.mu.Unlock()

	c.stats.accepted.Add(1)
	c.stats.lastAccepted.Store(now.UnixNano())
	for _, next := range steps {
		c.transition(prev, next)
		prev = next
	}
	if sub := c.currentSubscriber(); sub != nil {
		sub.OnUpdatedImage(front)
	}
	return nil
}

func (c *Controller) transition(prev, next State) {
	if prev == next {
		return
	}
	c.lock.OnTick(next == StateCalibrated, time.Now())
	if c.logger != nil {
		c.logger.Debug("calibration state transition", "from", prev.String(), "to", next.String())
	}
	c.listenerMu.Lock()
	ls := append([]StateListener(nil), c.listeners...)
	c.listenerMu.Unlock()
	for _, l := range ls {
		l(prev, next)
	}
}

// Accessors

// State is the current calibration state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsBoardRecognized reports whether the last frame of an active session
// yielded at least a partial recognition.
func (c *Controller) IsBoardRecognized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.recognized && (c.state == StateCalibrating || c.state == StateCalibrated)
}

// IsBoardFullyRecognized reports whether the controller is Calibrated.
func (c *Controller) IsBoardFullyRecognized() bool { return c.State() == StateCalibrated }

// BoardBounds is the rectified coordinate frame, fixed from the first full
// recognition of the session.
func (c *Controller) BoardBounds() (image.Rectangle, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.hasBounds {
		return image.Rectangle{}, ErrNotYetCalibrated
	}
	return c.bounds, nil
}

// BoardImage returns a copy of the latest rectified image.
func (c *Controller) BoardImage() (*image.RGBA, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.front == nil {
		return nil, ErrNotYetCalibrated
	}
	return cloneBoard(c.front), nil
}

// BoardImageSize is the size of the published board image.
func (c *Controller) BoardImageSize() (geometry.Size, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.front == nil {
		return geometry.Size{}, ErrNotYetCalibrated
	}
	return geometry.Size{Width: c.front.Rect.Dx(), Height: c.front.Rect.Dy()}, nil
}

// ScreenPoints is the accepted quad projected into screen space.
func (c *Controller) ScreenPoints() (geometry.Quad, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.front == nil {
		return geometry.Quad{}, ErrNotYetCalibrated
	}
	return c.screenPoints, nil
}

// Points is the accepted quad in frame space.
func (c *Controller) Points() (geometry.Quad, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.front == nil {
		return geometry.Quad{}, ErrNotYetCalibrated
	}
	return c.points, nil
}

// Snapshot returns the published metadata without the image.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

// WithBoardImage runs fn under the publication read lock with the image and
// the quad it was computed from. fn must not retain snap.Image or block.
func (c *Controller) WithBoardImage(fn func(snap Snapshot)) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.front == nil {
		return ErrNotYetCalibrated
	}
	snap := c.snapshotLocked()
	snap.Image = c.front
	fn(snap)
	return nil
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		Session:      c.session,
		State:        c.state,
		Recognized:   c.recognized && c.state != StateUncalibrated,
		HasBounds:    c.hasBounds,
		Bounds:       c.bounds,
		HasBoard:     c.front != nil,
		Points:       c.points,
		ScreenPoints: c.screenPoints,
		FrameBounds:  c.frameBounds,
		Sequence:     c.sequence,
		UpdatedAt:    c.updatedAt,
	}
	if c.front != nil {
		snap.ImageSize = geometry.Size{Width: c.front.Rect.Dx(), Height: c.front.Rect.Dy()}
	}
	return snap
}

// Stats returns loop counters for the current session and the locked time.
func (c *Controller) Stats() Stats {
	s := c.stats.snapshot()
	s.LockedFor, s.LockedTotal = c.lock.Values(time.Now())
	c.mu.RLock()
	s.Sequence = c.sequence
	c.mu.RUnlock()
	return s
}

// Ensure contract satisfaction
var _ ControllerContract = (*Controller)(nil)
