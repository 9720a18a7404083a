//go:build !gocv

package webcam

import (
	"errors"
	"image"
	"log/slog"

	"github.com/soocke/board-calibrator-go/domain/calibration"
)

// ErrNoOpenCV is returned by New when the binary was built without the gocv tag.
var ErrNoOpenCV = errors.New("camera support requires building with -tags gocv")

// Source is unavailable in builds without OpenCV.
type Source struct{}

func New(*slog.Logger, int, int, int) (*Source, error) { return nil, ErrNoOpenCV }

func (*Source) Start()        {}
func (*Source) Stop()         {}
func (*Source) Running() bool { return false }

func (*Source) NextFrame() (image.Image, error) { return nil, calibration.ErrSourceUnavailable }
