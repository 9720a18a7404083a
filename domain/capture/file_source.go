package capture

import (
	"image"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	"github.com/soocke/board-calibrator-go/domain/calibration"
)

// LoadFrame decodes an image file, honouring EXIF orientation.
func LoadFrame(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrapf(err, "load frame %s", path)
	}
	return img, nil
}

// FileSource serves a still image from disk as the camera frame. The file is
// re-read when its modification time changes so a producer can overwrite it.
type FileSource struct {
	path   string
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	frame   image.Image
	modTime time.Time
	logged  bool
}

func NewFileSource(logger *slog.Logger, path string) *FileSource {
	return &FileSource{path: path, logger: logger}
}

func (f *FileSource) Start() {
	f.mu.Lock()
	f.running = true
	f.mu.Unlock()
}

func (f *FileSource) Stop() {
	f.mu.Lock()
	f.running = false
	f.frame = nil
	f.modTime = time.Time{}
	f.mu.Unlock()
}

func (f *FileSource) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

// NextFrame implements calibration.FrameSource. A missing or undecodable file
// reports calibration.ErrSourceUnavailable.
func (f *FileSource) NextFrame() (image.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running || f.path == "" {
		return nil, calibration.ErrSourceUnavailable
	}
	info, err := os.Stat(f.path)
	if err != nil {
		f.logOnce("frame file unavailable", err)
		f.frame = nil
		return nil, calibration.ErrSourceUnavailable
	}
	if f.frame == nil || !info.ModTime().Equal(f.modTime) {
		img, err := LoadFrame(f.path)
		if err != nil {
			f.logOnce("frame file unreadable", err)
			f.frame = nil
			return nil, calibration.ErrSourceUnavailable
		}
		f.frame = img
		f.modTime = info.ModTime()
		f.logged = false
	}
	return f.frame, nil
}

func (f *FileSource) logOnce(msg string, err error) {
	if f.logged || f.logger == nil {
		return
	}
	f.logger.Warn(msg, "path", f.path, "error", err)
	f.logged = true
}

var _ Source = (*FileSource)(nil)
