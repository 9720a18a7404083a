package calibration

import (
	"image"
	"testing"
)

func TestShapeBoard_ReusesLargeEnoughBuffer(t *testing.T) {
	big := shapeBoard(nil, image.Rect(0, 0, 20, 10))
	got := shapeBoard(big, image.Rect(0, 0, 5, 4))
	if got != big {
		t.Fatalf("expected buffer reuse")
	}
	if got.Stride != 20 || len(got.Pix) != 5*4*4 || got.Rect != image.Rect(0, 0, 5, 4) {
		t.Fatalf("unexpected shape stride=%d len=%d rect=%v", got.Stride, len(got.Pix), got.Rect)
	}
	grown := shapeBoard(got, image.Rect(0, 0, 30, 30))
	if grown == got || len(grown.Pix) != 30*30*4 {
		t.Fatalf("expected a new allocation for a larger board")
	}
	if empty := shapeBoard(nil, image.Rectangle{}); empty.Pix != nil {
		t.Fatalf("empty board should have no pixels")
	}
}

func TestCloneBoard_CopiesRows(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 8, 8)).SubImage(image.Rect(2, 2, 5, 6)).(*image.RGBA)
	src.Pix[0] = 42
	out := cloneBoard(src)
	if out.Rect != src.Rect || out.Stride != 3*4 {
		t.Fatalf("rect=%v stride=%d", out.Rect, out.Stride)
	}
	if out.RGBAAt(2, 2) != src.RGBAAt(2, 2) || out.Pix[0] != 42 {
		t.Fatalf("first pixel not copied")
	}
	src.Pix[0] = 7
	if out.Pix[0] != 42 {
		t.Fatalf("clone shares pixels with the source")
	}
}
