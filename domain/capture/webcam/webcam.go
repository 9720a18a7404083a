//go:build gocv

package webcam

import (
	"fmt"
	"image"
	"log/slog"
	"sync"

	"gocv.io/x/gocv"

	"github.com/soocke/board-calibrator-go/domain/calibration"
)

// Source reads frames from a local camera through OpenCV. Frames are pulled
// synchronously from NextFrame; the device is opened on Start.
type Source struct {
	device int
	width  int
	height int
	logger *slog.Logger

	mu      sync.Mutex
	capture *gocv.VideoCapture
	mat     gocv.Mat
	failed  bool
}

// New returns a camera source for device. A zero width or height keeps the
// driver default resolution.
func New(logger *slog.Logger, device, width, height int) (*Source, error) {
	return &Source{device: device, width: width, height: height, logger: logger}, nil
}

func (s *Source) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.capture != nil {
		return
	}
	capture, err := gocv.OpenVideoCapture(s.device)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("camera open failed", "device", s.device, "error", err)
		}
		return
	}
	if s.width > 0 && s.height > 0 {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(s.width))
		capture.Set(gocv.VideoCaptureFrameHeight, float64(s.height))
	}
	s.capture = capture
	s.mat = gocv.NewMat()
	s.failed = false
	if s.logger != nil {
		s.logger.Info("camera opened", "device", s.device)
	}
}

func (s *Source) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.capture == nil {
		return
	}
	if err := s.capture.Close(); err != nil && s.logger != nil {
		s.logger.Warn("camera close", "error", err)
	}
	s.mat.Close()
	s.capture = nil
}

func (s *Source) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capture != nil
}

// NextFrame grabs one frame. A closed device or a failed read reports
// calibration.ErrSourceUnavailable.
func (s *Source) NextFrame() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.capture == nil {
		return nil, calibration.ErrSourceUnavailable
	}
	if ok := s.capture.Read(&s.mat); !ok || s.mat.Empty() {
		if !s.failed && s.logger != nil {
			s.logger.Warn("camera read failed", "device", s.device)
		}
		s.failed = true
		return nil, calibration.ErrSourceUnavailable
	}
	s.failed = false
	img, err := s.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("%w: convert camera frame: %v", calibration.ErrSourceUnavailable, err)
	}
	return img, nil
}
