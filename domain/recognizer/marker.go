// Package recognizer holds the reference board recognizer: four coloured
// corner markers, one per frame quadrant.
package recognizer

import (
	"image"
	"image/color"
	"log/slog"

	"github.com/anthonynsimon/bild/blur"
	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/soocke/board-calibrator-go/config"
	"github.com/soocke/board-calibrator-go/domain/calibration"
	"github.com/soocke/board-calibrator-go/domain/geometry"
)

// Params tunes marker detection. Pixel counts are in sampled pixels, i.e.
// after applying Stride on both axes.
type Params struct {
	Marker     color.Color
	Tolerance  float64 // CIE Lab distance, go-colorful units
	BlurRadius float64 // 0 disables the pre-blur
	Stride     int
	MinPixels  int // per corner, below this the corner is missing
	FullPixels int // per corner, needed for a full recognition
}

// ParamsFromConfig reads the recognizer section of cfg.
func ParamsFromConfig(cfg *config.Config) Params {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	marker := color.Color(color.RGBA{255, 0, 255, 255})
	if c, err := colorful.Hex(cfg.MarkerColor); err == nil {
		marker = c
	}
	return Params{
		Marker:     marker,
		Tolerance:  cfg.MarkerTolerance,
		BlurRadius: cfg.BlurRadius,
		Stride:     cfg.SampleStride,
		MinPixels:  cfg.MinMarkerPixels,
		FullPixels: cfg.FullMarkerPixels,
	}
}

// MarkerRecognizer reports partial when a marker is found in every quadrant
// and full when each marker is dense enough and the corners form a convex quad.
type MarkerRecognizer struct {
	logger *slog.Logger
	params Params
	target colorful.Color
}

func NewMarkerRecognizer(logger *slog.Logger, p Params) *MarkerRecognizer {
	if p.Stride <= 0 {
		p.Stride = 1
	}
	if p.MinPixels <= 0 {
		p.MinPixels = 1
	}
	if p.FullPixels < p.MinPixels {
		p.FullPixels = p.MinPixels
	}
	if p.Marker == nil {
		p.Marker = color.RGBA{255, 0, 255, 255}
	}
	target, _ := colorful.MakeColor(p.Marker)
	return &MarkerRecognizer{logger: logger, params: p, target: target}
}

type blob struct {
	sumX, sumY float64
	n          int
}

func (b blob) centroid() geometry.Point {
	return geometry.Point{X: b.sumX / float64(b.n), Y: b.sumY / float64(b.n)}
}

// Recognize implements calibration.Recognizer.
func (r *MarkerRecognizer) Recognize(frame image.Image) calibration.Recognition {
	if frame == nil || frame.Bounds().Empty() {
		return calibration.Recognition{}
	}
	origin := frame.Bounds().Min
	// imaging.Clone rebases to (0,0); blur works on that copy.
	var src image.Image = imaging.Clone(frame)
	if r.params.BlurRadius > 0 {
		src = blur.Gaussian(src, r.params.BlurRadius)
	}
	blobs := r.scan(src)

	var quad geometry.Quad
	full := true
	for i, b := range blobs {
		if b.n < r.params.MinPixels {
			return calibration.Recognition{Outcome: calibration.OutcomeNotFound}
		}
		if b.n < r.params.FullPixels {
			full = false
		}
		c := b.centroid()
		quad[i] = geometry.Point{X: c.X + float64(origin.X), Y: c.Y + float64(origin.Y)}
	}
	if full && !quad.IsConvex() {
		if r.logger != nil {
			r.logger.Debug("marker quad not convex", "quad", quad)
		}
		full = false
	}
	out := calibration.OutcomePartial
	if full {
		out = calibration.OutcomeFull
	}
	return calibration.Recognition{Outcome: out, Quad: quad}
}

// scan accumulates marker pixels per quadrant in TL, TR, BR, BL order.
func (r *MarkerRecognizer) scan(img image.Image) [4]blob {
	var blobs [4]blob
	b := img.Bounds()
	midX := b.Min.X + b.Dx()/2
	midY := b.Min.Y + b.Dy()/2
	matches := make(map[uint32]bool)
	step := r.params.Stride
	for y := b.Min.Y; y < b.Max.Y; y += step {
		for x := b.Min.X; x < b.Max.X; x += step {
			cr, cg, cb, ca := img.At(x, y).RGBA()
			if ca == 0 {
				continue
			}
			key := (cr>>8)<<16 | (cg>>8)<<8 | cb>>8
			hit, seen := matches[key]
			if !seen {
				c := colorful.Color{R: float64(cr>>8) / 255, G: float64(cg>>8) / 255, B: float64(cb>>8) / 255}
				hit = c.DistanceLab(r.target) <= r.params.Tolerance
				matches[key] = hit
			}
			if !hit {
				continue
			}
			var q int
			switch {
			case x < midX && y < midY:
				q = geometry.TopLeft
			case y < midY:
				q = geometry.TopRight
			case x >= midX:
				q = geometry.BottomRight
			default:
				q = geometry.BottomLeft
			}
			blobs[q].sumX += float64(x-b.Min.X) + 0.5
			blobs[q].sumY += float64(y-b.Min.Y) + 0.5
			blobs[q].n++
		}
	}
	return blobs
}

var _ calibration.Recognizer = (*MarkerRecognizer)(nil)
