package app

import (
	"log/slog"

	"github.com/pkg/errors"

	"github.com/soocke/board-calibrator-go/config"
	"github.com/soocke/board-calibrator-go/domain/calibration"
	"github.com/soocke/board-calibrator-go/domain/capture"
	"github.com/soocke/board-calibrator-go/domain/capture/webcam"
	"github.com/soocke/board-calibrator-go/domain/recognizer"
	"github.com/soocke/board-calibrator-go/events"
	"github.com/soocke/board-calibrator-go/server"
)

// AppContainer assembles the frame sources, recognizer, controller, event hub
// and status server.
type AppContainer struct {
	Config     *config.Config
	Logger     *slog.Logger
	Source     capture.Source
	Fallback   *capture.FileSource // nil unless a fallback image is configured
	Recognizer *recognizer.MarkerRecognizer
	Controller *calibration.Controller
	Session    *Session
	Hub        *events.EventHub
	Relay      *events.Relay
	Server     *server.Server
}

// BuildContainer constructs all components. Nothing is started; camera devices
// are opened on Start.
func BuildContainer(cfg *config.Config, logger *slog.Logger) (*AppContainer, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	c := &AppContainer{Config: cfg, Logger: logger}

	src, err := buildSource(cfg, logger)
	if err != nil {
		return nil, err
	}
	c.Source = src
	if cfg.FallbackPath != "" {
		c.Fallback = capture.NewFileSource(logger, cfg.FallbackPath)
	}

	c.Recognizer = recognizer.NewMarkerRecognizer(logger, recognizer.ParamsFromConfig(cfg))
	c.Controller = calibration.NewController(logger, cfg, c.Source, c.Recognizer)

	c.Hub = events.NewEventHub()
	var fallback calibration.FrameSource
	if c.Fallback != nil {
		fallback = c.Fallback
	}
	c.Relay = events.NewRelay(logger, c.Hub, fallback)
	c.Controller.AddListener(c.Relay.OnStateChange)
	c.Session = NewSession(c.Controller, c.Relay)

	c.Server = server.New(logger, c.Session, c.Hub)
	return c, nil
}

func buildSource(cfg *config.Config, logger *slog.Logger) (capture.Source, error) {
	switch cfg.Source {
	case config.SourceFile:
		if cfg.FramePath == "" {
			return nil, errors.New("file source requires frame_path")
		}
		return capture.NewFileSource(logger, cfg.FramePath), nil
	case config.SourceCamera:
		cam, err := webcam.New(logger, cfg.CameraDevice, 0, 0)
		if err != nil {
			return nil, errors.Wrapf(err, "camera %d", cfg.CameraDevice)
		}
		return cam, nil
	default:
		return capture.NewCaptureService(logger, cfg.Selection, capture.Options{
			Interval:    cfg.FrameInterval(),
			MaxFrameAge: cfg.MaxFrameAge(),
		}), nil
	}
}
