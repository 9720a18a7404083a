package geometry

import (
	"errors"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

// ApplyTransform resamples frame into a new size-sized image using t, which
// maps frame coordinates to board coordinates. Board pixels whose source falls
// outside the frame are filled with bg.
func ApplyTransform(frame image.Image, t Transform, size Size, bg color.Color) (*image.RGBA, error) {
	if size.Empty() {
		return nil, errors.New("apply transform: empty target size")
	}
	dst := image.NewRGBA(size.Rect())
	if err := ApplyTransformInto(dst, frame, t, bg); err != nil {
		return nil, err
	}
	return dst, nil
}

// ApplyTransformInto is ApplyTransform writing into an existing buffer; the
// target size is dst's bounds.
func ApplyTransformInto(dst *image.RGBA, frame image.Image, t Transform, bg color.Color) error {
	if dst == nil || frame == nil {
		return errors.New("apply transform: nil image")
	}
	inv, ok := t.Inverse()
	if !ok {
		return &DegenerateQuadError{Reason: "transform is not invertible"}
	}
	if bg == nil {
		bg = color.Transparent
	}
	fill := color.RGBAModel.Convert(bg).(color.RGBA)
	src := newSampler(frame)
	db := dst.Bounds()
	for y := db.Min.Y; y < db.Max.Y; y++ {
		row := dst.Pix[dst.PixOffset(db.Min.X, y):]
		for x := db.Min.X; x < db.Max.X; x++ {
			i := (x - db.Min.X) * 4
			// sample at pixel centres
			p := inv.Apply(Point{float64(x-db.Min.X) + 0.5, float64(y-db.Min.Y) + 0.5})
			c, inside := src.bilinear(p.X-0.5, p.Y-0.5)
			if !inside {
				c = fill
			}
			row[i], row[i+1], row[i+2], row[i+3] = c.R, c.G, c.B, c.A
		}
	}
	return nil
}

// sampler reads premultiplied RGBA from the 8-bit pixel layouts the frame
// sources produce; anything else is cloned to NRGBA once.
type sampler struct {
	pix    []uint8
	stride int
	rect   image.Rectangle
	premul bool
}

func newSampler(img image.Image) *sampler {
	switch m := img.(type) {
	case *image.RGBA:
		return &sampler{pix: m.Pix, stride: m.Stride, rect: m.Rect, premul: true}
	case *image.NRGBA:
		return &sampler{pix: m.Pix, stride: m.Stride, rect: m.Rect}
	}
	// Clone rebases the rectangle at the origin; indexing stays relative to rect.Min.
	n := imaging.Clone(img)
	return &sampler{pix: n.Pix, stride: n.Stride, rect: img.Bounds()}
}

type rgbaf struct{ r, g, b, a float64 }

func (s *sampler) at(x, y int) rgbaf {
	i := (y-s.rect.Min.Y)*s.stride + (x-s.rect.Min.X)*4
	c := rgbaf{float64(s.pix[i]), float64(s.pix[i+1]), float64(s.pix[i+2]), float64(s.pix[i+3])}
	if !s.premul {
		f := c.a / 255
		c.r, c.g, c.b = c.r*f, c.g*f, c.b*f
	}
	return c
}

func (s *sampler) bilinear(x, y float64) (color.RGBA, bool) {
	if math.IsNaN(x) || math.IsNaN(y) {
		return color.RGBA{}, false
	}
	minX, minY := float64(s.rect.Min.X), float64(s.rect.Min.Y)
	maxX, maxY := float64(s.rect.Max.X-1), float64(s.rect.Max.Y-1)
	if x < minX-0.5 || y < minY-0.5 || x > maxX+0.5 || y > maxY+0.5 || s.rect.Empty() {
		return color.RGBA{}, false
	}
	x, y = math.Max(minX, math.Min(maxX, x)), math.Max(minY, math.Min(maxY, y))
	x0, y0 := int(math.Floor(x)), int(math.Floor(y))
	x1, y1 := x0+1, y0+1
	if x1 > s.rect.Max.X-1 {
		x1 = s.rect.Max.X - 1
	}
	if y1 > s.rect.Max.Y-1 {
		y1 = s.rect.Max.Y - 1
	}
	fx, fy := x-float64(x0), y-float64(y0)
	c00, c10 := s.at(x0, y0), s.at(x1, y0)
	c01, c11 := s.at(x0, y1), s.at(x1, y1)
	mix := func(a, b, c, d float64) uint8 {
		v := lerp(lerp(a, b, fx), lerp(c, d, fx), fy)
		return uint8(math.Max(0, math.Min(255, v+0.5)))
	}
	return color.RGBA{
		R: mix(c00.r, c10.r, c01.r, c11.r),
		G: mix(c00.g, c10.g, c01.g, c11.g),
		B: mix(c00.b, c10.b, c01.b, c11.b),
		A: mix(c00.a, c10.a, c01.a, c11.a),
	}, true
}

func lerp(a, b, t float64) float64 { return a + (b-a)*t }
