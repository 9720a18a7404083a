package config

import (
	"encoding/json"
	"image"
	"image/color"
	"os"
	"strings"
	"time"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"
)

// Source kinds accepted by Config.Source.
const (
	SourceScreen = "screen"
	SourceCamera = "camera"
	SourceFile   = "file"
)

// Config holds runtime configuration for calibration, frame sources and the
// reference recognizer. Fields may be loaded from a JSON file and overridden
// by command-line flags.
type Config struct {
	Debug    bool   `json:"debug"`
	LogLevel string `json:"log_level"`

	// Rectified board size in pixels.
	BoardWidth  int `json:"board_width"`
	BoardHeight int `json:"board_height"`
	// Screen space used for the projected corner points; zero means frame space.
	ScreenWidth  int `json:"screen_width"`
	ScreenHeight int `json:"screen_height"`

	FrameIntervalMs int `json:"frame_interval_ms"`
	// Consecutive misses tolerated while calibrated before demoting.
	MissThreshold int `json:"miss_threshold"`
	// Consecutive misses before the session resets to uncalibrated; 0 disables.
	ResetThreshold  int    `json:"reset_threshold"`
	BackgroundColor string `json:"background_color"`
	StatsIntervalMs int    `json:"stats_interval_ms"`

	// Frame source
	Source        string `json:"source"`
	CameraDevice  int    `json:"camera_device"`
	FramePath     string `json:"frame_path"`
	FallbackPath  string `json:"fallback_path"`
	MaxFrameAgeMs int    `json:"max_frame_age_ms"`
	SelectionX    int    `json:"selection_x"`
	SelectionY    int    `json:"selection_y"`
	SelectionW    int    `json:"selection_w"`
	SelectionH    int    `json:"selection_h"`

	// Marker recognizer
	MarkerColor      string  `json:"marker_color"`
	MarkerTolerance  float64 `json:"marker_tolerance"`
	BlurRadius       float64 `json:"blur_radius"`
	SampleStride     int     `json:"sample_stride"`
	MinMarkerPixels  int     `json:"min_marker_pixels"`
	FullMarkerPixels int     `json:"full_marker_pixels"`

	ListenAddr string `json:"listen_addr"`
}

// DefaultConfig returns a Config populated with standard defaults.
func DefaultConfig() *Config {
	return &Config{
		Debug:            false,
		LogLevel:         "info",
		BoardWidth:       640,
		BoardHeight:      480,
		ScreenWidth:      0,
		ScreenHeight:     0,
		FrameIntervalMs:  33,
		MissThreshold:    10,
		ResetThreshold:   0,
		BackgroundColor:  "#000000",
		StatsIntervalMs:  5000,
		Source:           SourceScreen,
		CameraDevice:     0,
		MaxFrameAgeMs:    1000,
		MarkerColor:      "#ff00ff",
		MarkerTolerance:  0.25,
		BlurRadius:       1.0,
		SampleStride:     2,
		MinMarkerPixels:  4,
		FullMarkerPixels: 24,
		ListenAddr:       "127.0.0.1:8087",
	}
}

// Validate clamps/normalizes values to safe ranges.
func (c *Config) Validate() error {
	if c.BoardWidth <= 0 {
		c.BoardWidth = 640
	}
	if c.BoardHeight <= 0 {
		c.BoardHeight = 480
	}
	if c.ScreenWidth < 0 || c.ScreenHeight < 0 || (c.ScreenWidth == 0) != (c.ScreenHeight == 0) {
		c.ScreenWidth, c.ScreenHeight = 0, 0
	}
	if c.FrameIntervalMs < 0 {
		c.FrameIntervalMs = 33
	}
	if c.FrameIntervalMs == 0 {
		c.FrameIntervalMs = 1
	}
	if c.MissThreshold < 0 {
		c.MissThreshold = 10
	}
	if c.ResetThreshold < 0 || (c.ResetThreshold > 0 && c.ResetThreshold <= c.MissThreshold) {
		c.ResetThreshold = 0
	}
	if _, err := colorful.Hex(c.BackgroundColor); err != nil {
		c.BackgroundColor = "#000000"
	}
	if c.StatsIntervalMs <= 0 {
		c.StatsIntervalMs = 5000
	}
	c.Source = strings.ToLower(strings.TrimSpace(c.Source))
	switch c.Source {
	case SourceScreen, SourceCamera, SourceFile:
	default:
		c.Source = SourceScreen
	}
	if c.CameraDevice < 0 {
		c.CameraDevice = 0
	}
	if c.MaxFrameAgeMs < 0 {
		c.MaxFrameAgeMs = 1000
	}
	if _, err := colorful.Hex(c.MarkerColor); err != nil {
		c.MarkerColor = "#ff00ff"
	}
	if c.MarkerTolerance <= 0 || c.MarkerTolerance > 1 {
		c.MarkerTolerance = 0.25
	}
	if c.BlurRadius < 0 {
		c.BlurRadius = 0
	}
	if c.SampleStride <= 0 {
		c.SampleStride = 1
	}
	if c.MinMarkerPixels <= 0 {
		c.MinMarkerPixels = 1
	}
	if c.FullMarkerPixels < c.MinMarkerPixels {
		c.FullMarkerPixels = c.MinMarkerPixels
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	return nil
}

// FrameInterval is the pause between calibration iterations.
func (c *Config) FrameInterval() time.Duration {
	return time.Duration(c.FrameIntervalMs) * time.Millisecond
}

func (c *Config) StatsInterval() time.Duration {
	return time.Duration(c.StatsIntervalMs) * time.Millisecond
}

func (c *Config) MaxFrameAge() time.Duration {
	return time.Duration(c.MaxFrameAgeMs) * time.Millisecond
}

// ScreenRect returns the overlay coordinate space, or an empty rectangle when
// the corner points should stay in frame space.
func (c *Config) ScreenRect() image.Rectangle {
	if c.ScreenWidth <= 0 || c.ScreenHeight <= 0 {
		return image.Rectangle{}
	}
	return image.Rect(0, 0, c.ScreenWidth, c.ScreenHeight)
}

// Selection returns the screen capture rectangle, or nil for the full screen.
func (c *Config) Selection() *image.Rectangle {
	if c.SelectionW <= 0 || c.SelectionH <= 0 {
		return nil
	}
	r := image.Rect(c.SelectionX, c.SelectionY, c.SelectionX+c.SelectionW, c.SelectionY+c.SelectionH)
	return &r
}

// Background is the fill colour for rectified pixels outside the frame.
func (c *Config) Background() color.Color {
	col, err := colorful.Hex(c.BackgroundColor)
	if err != nil {
		return color.Black
	}
	r, g, b := col.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// Load attempts to read configuration from the given JSON file path. If the file does not
// exist it returns DefaultConfig(). On JSON error it returns defaults with the error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, errors.Wrapf(err, "open config %s", path)
	}
	defer f.Close()
	dec := json.NewDecoder(f)
	if err := dec.Decode(cfg); err != nil {
		return DefaultConfig(), errors.Wrapf(err, "decode config %s", path)
	}
	_ = cfg.Validate()
	return cfg, nil
}

// Save writes the configuration to the given path in JSON format.
func (c *Config) Save(path string) error {
	_ = c.Validate()
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create config %s", path)
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(c), "encode config")
}
