package calibration

import (
	"image"
	"time"

	"github.com/soocke/board-calibrator-go/domain/geometry"
)

// State enumerates the calibration lifecycle.
type State int

const (
	StateUncalibrated State = iota
	StateCalibrating
	StateCalibrated
)

func (s State) String() string {
	switch s {
	case StateUncalibrated:
		return "uncalibrated"
	case StateCalibrating:
		return "calibrating"
	case StateCalibrated:
		return "calibrated"
	default:
		return "unknown"
	}
}

// Outcome is the recognizer verdict for one frame.
type Outcome int

const (
	OutcomeNotFound Outcome = iota
	OutcomePartial
	OutcomeFull
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNotFound:
		return "not_found"
	case OutcomePartial:
		return "partial"
	case OutcomeFull:
		return "full"
	default:
		return "unknown"
	}
}

// Found reports whether the board was located at all.
func (o Outcome) Found() bool { return o == OutcomePartial || o == OutcomeFull }

// Recognition is the per-frame result of a Recognizer. Quad is meaningful only
// when Outcome is partial or full and is ordered clockwise from top-left.
type Recognition struct {
	Outcome Outcome
	Quad    geometry.Quad
}

// FrameSource supplies the most recent available frame. Returning an error
// (normally ErrSourceUnavailable) or a nil image means no frame this time.
type FrameSource interface {
	NextFrame() (image.Image, error)
}

// FrameSourceFunc adapts a function to FrameSource.
type FrameSourceFunc func() (image.Image, error)

func (f FrameSourceFunc) NextFrame() (image.Image, error) { return f() }

// Recognizer locates the board corners in a frame. It decides what counts as
// a partial or a full recognition.
type Recognizer interface {
	Recognize(frame image.Image) Recognition
}

// RecognizerFunc adapts a function to Recognizer.
type RecognizerFunc func(image.Image) Recognition

func (f RecognizerFunc) Recognize(frame image.Image) Recognition { return f(frame) }

// Subscriber receives rectified images and may stand in for a missing camera.
// Both methods run on the calibration goroutine and must return quickly.
// The image passed to OnUpdatedImage is only valid until the call returns.
// ProvideSimulatedFrame returns nil when it has nothing to offer.
type Subscriber interface {
	OnUpdatedImage(img *image.RGBA)
	ProvideSimulatedFrame() image.Image
}

// StateListener is called on each state transition.
type StateListener func(prev, next State)

// Snapshot is one consistent view of the published calibration artifacts.
// Image is only set inside WithBoardImage.
type Snapshot struct {
	Session      string
	State        State
	Recognized   bool
	HasBounds    bool
	Bounds       image.Rectangle
	HasBoard     bool
	Image        *image.RGBA
	ImageSize    geometry.Size
	Points       geometry.Quad
	ScreenPoints geometry.Quad
	FrameBounds  image.Rectangle
	Sequence     uint64
	UpdatedAt    time.Time
}

// Stats summarises the calibration loop for instrumentation.
type Stats struct {
	Iterations   uint64
	Skipped      uint64
	Simulated    uint64
	Misses       uint64
	Degenerate   uint64
	Accepted     uint64
	Demotions    uint64
	Resets       uint64
	AvgRectify   time.Duration
	LastAccepted time.Time
	Sequence     uint64
	LockedFor    time.Duration // current (or last) calibrated stretch
	LockedTotal  time.Duration
}

// Interface slices for consumers.
type StateSource interface{ State() State }
type Lifecycle interface {
	Start()
	Stop()
	Running() bool
}
type BoardReader interface {
	IsBoardRecognized() bool
	IsBoardFullyRecognized() bool
	BoardBounds() (image.Rectangle, error)
	BoardImage() (*image.RGBA, error)
	BoardImageSize() (geometry.Size, error)
	ScreenPoints() (geometry.Quad, error)
	Points() (geometry.Quad, error)
	Snapshot() Snapshot
	WithBoardImage(fn func(Snapshot)) error
}

// ControllerContract aggregate for DI.
type ControllerContract interface {
	StateSource
	Lifecycle
	BoardReader
	SetSubscriber(Subscriber)
	AddListener(StateListener)
	Stats() Stats
}
