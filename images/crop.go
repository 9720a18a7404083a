package images

import (
	"errors"
	"image"

	"golang.org/x/image/draw"
)

// CropCentered returns a size x size region of img centred at c, clamped to
// img bounds (at least 1x1). The result is a copy with origin (0,0) and the
// rectangle is in img coordinates.
func CropCentered(img image.Image, c image.Point, size int) (*image.RGBA, image.Rectangle, error) {
	if img == nil {
		return nil, image.Rectangle{}, errors.New("crop: nil image")
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, image.Rectangle{}, errors.New("crop: empty image")
	}
	if size < 1 {
		size = 1
	}
	half := size / 2
	x0 := max(c.X-half, b.Min.X)
	y0 := max(c.Y-half, b.Min.Y)
	x0 = min(x0, b.Max.X-1)
	y0 = min(y0, b.Max.Y-1)
	w := min(size, b.Max.X-x0)
	h := min(size, b.Max.Y-y0)
	roi := image.Rect(x0, y0, x0+w, y0+h)
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(out, out.Bounds(), img, roi.Min, draw.Src)
	return out, roi, nil
}
