package app

import (
	"github.com/soocke/board-calibrator-go/domain/calibration"
)

// Session is the controller as seen by the HTTP surface. Stop drops the
// subscriber, so every Start re-attaches it before the loop runs.
type Session struct {
	*calibration.Controller
	subscriber calibration.Subscriber
}

func NewSession(ctrl *calibration.Controller, sub calibration.Subscriber) *Session {
	return &Session{Controller: ctrl, subscriber: sub}
}

func (s *Session) Start() {
	if s.subscriber != nil {
		s.Controller.SetSubscriber(s.subscriber)
	}
	s.Controller.Start()
}

var _ calibration.ControllerContract = (*Session)(nil)
