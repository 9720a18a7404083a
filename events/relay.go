package events

import (
	"image"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/soocke/board-calibrator-go/domain/calibration"
)

// Relay is the calibration subscriber used by the service: it turns board
// updates and state transitions into hub events and serves simulated frames
// from a fallback source when the camera is unavailable.
type Relay struct {
	hub      *EventHub
	fallback calibration.FrameSource
	logger   *slog.Logger
	updates  atomic.Int64
}

// NewRelay builds a relay. fallback may be nil.
func NewRelay(logger *slog.Logger, hub *EventHub, fallback calibration.FrameSource) *Relay {
	return &Relay{hub: hub, fallback: fallback, logger: logger}
}

// OnUpdatedImage publishes board.updated. img is not retained.
func (r *Relay) OnUpdatedImage(img *image.RGBA) {
	n := r.updates.Add(1)
	if img == nil {
		return
	}
	r.hub.Publish(BoardUpdated, BoardUpdatedEvent{
		Width:  img.Rect.Dx(),
		Height: img.Rect.Dy(),
		Count:  n,
		Ts:     time.Now().UnixMilli(),
	})
}

// ProvideSimulatedFrame asks the fallback source, nil when there is none.
func (r *Relay) ProvideSimulatedFrame() image.Image {
	if r.fallback == nil {
		return nil
	}
	frame, err := r.fallback.NextFrame()
	if err != nil || frame == nil {
		return nil
	}
	return frame
}

// OnStateChange is a calibration.StateListener publishing calibration.state.
func (r *Relay) OnStateChange(prev, next calibration.State) {
	if r.logger != nil {
		r.logger.Debug("new event", "event", CalibrationState, "from", prev.String(), "to", next.String())
	}
	r.hub.Publish(CalibrationState, CalibrationStateEvent{From: prev.String(), To: next.String(), Ts: time.Now().UnixMilli()})
}

// Updates is the number of board updates seen.
func (r *Relay) Updates() int64 { return r.updates.Load() }

var _ calibration.Subscriber = (*Relay)(nil)
