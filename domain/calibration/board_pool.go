package calibration

import (
	"image"
	"sync"
)

// boardPool holds released front/back buffers. Every board of a controller
// has the configured size, so after the first session the swap buffers are
// served from here instead of being allocated.
var boardPool sync.Pool // *image.RGBA

// shapeBoard lays a tightly packed rect-sized board over buf's pixels when
// they are large enough, or allocates a new one.
func shapeBoard(buf *image.RGBA, rect image.Rectangle) *image.RGBA {
	w, h := rect.Dx(), rect.Dy()
	if w <= 0 || h <= 0 {
		return &image.RGBA{Rect: rect}
	}
	n := w * h * 4
	if buf == nil || cap(buf.Pix) < n {
		return &image.RGBA{Pix: make([]byte, n), Stride: w * 4, Rect: rect}
	}
	buf.Pix, buf.Stride, buf.Rect = buf.Pix[:n], w*4, rect
	return buf
}

// acquireBoard returns a scratch board for rectification. Pixel contents are
// unspecified; the resampler writes every pixel.
func acquireBoard(rect image.Rectangle) *image.RGBA {
	buf, _ := boardPool.Get().(*image.RGBA)
	return shapeBoard(buf, rect)
}

// recycleBoard returns a board that readers and subscribers can no longer
// reach, i.e. one swapped out under the write lock or released on Stop.
func recycleBoard(img *image.RGBA) {
	if img == nil || img.Pix == nil {
		return
	}
	boardPool.Put(img)
}

// cloneBoard copies the published board for callers that keep it past the
// read lock. Copies never go back to the pool.
func cloneBoard(img *image.RGBA) *image.RGBA {
	out := shapeBoard(nil, img.Rect)
	rowLen := img.Rect.Dx() * 4
	for y := 0; y < img.Rect.Dy(); y++ {
		copy(out.Pix[y*out.Stride:y*out.Stride+rowLen], img.Pix[y*img.Stride:y*img.Stride+rowLen])
	}
	return out
}
