package geometry

import (
	"fmt"
	"image"
	"math"
)

// Point is a sub-pixel position in image or board coordinates.
type Point struct {
	X, Y float64
}

func Pt(x, y float64) Point { return Point{X: x, Y: y} }

func (p Point) Sub(q Point) Point { return Point{p.X - q.X, p.Y - q.Y} }

func (p Point) String() string { return fmt.Sprintf("(%.1f,%.1f)", p.X, p.Y) }

// Quad holds the four board corners ordered clockwise from the top-left:
// top-left, top-right, bottom-right, bottom-left.
type Quad [4]Point

const (
	TopLeft = iota
	TopRight
	BottomRight
	BottomLeft
)

// Area returns the absolute polygon area (shoelace).
func (q Quad) Area() float64 {
	var s float64
	for i := 0; i < 4; i++ {
		a, b := q[i], q[(i+1)%4]
		s += a.X*b.Y - b.X*a.Y
	}
	return math.Abs(s) / 2
}

// IsConvex reports whether consecutive edges all turn the same way.
func (q Quad) IsConvex() bool {
	var sign float64
	for i := 0; i < 4; i++ {
		c := cross(q[i], q[(i+1)%4], q[(i+2)%4])
		if c == 0 {
			return false
		}
		if sign == 0 {
			sign = c
			continue
		}
		if (c > 0) != (sign > 0) {
			return false
		}
	}
	return true
}

// Bounds returns the smallest integer rectangle containing the quad.
func (q Quad) Bounds() image.Rectangle {
	minX, minY := q[0].X, q[0].Y
	maxX, maxY := minX, minY
	for _, p := range q[1:] {
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}
	return image.Rect(int(math.Floor(minX)), int(math.Floor(minY)), int(math.Ceil(maxX)), int(math.Ceil(maxY)))
}

// cross is the z component of (b-a) x (c-b).
func cross(a, b, c Point) float64 {
	ab, bc := b.Sub(a), c.Sub(b)
	return ab.X*bc.Y - ab.Y*bc.X
}

// Size is the pixel size of a rectified board.
type Size struct {
	Width, Height int
}

func (s Size) Empty() bool { return s.Width <= 0 || s.Height <= 0 }

func (s Size) Rect() image.Rectangle { return image.Rect(0, 0, s.Width, s.Height) }

func (s Size) String() string { return fmt.Sprintf("%dx%d", s.Width, s.Height) }

// Corners returns the target rectangle corners in quad order.
func (s Size) Corners() Quad {
	w, h := float64(s.Width), float64(s.Height)
	return Quad{{0, 0}, {w, 0}, {w, h}, {0, h}}
}

// DegenerateQuadError reports a quad that cannot define a perspective transform.
type DegenerateQuadError struct {
	Quad   Quad
	Reason string
}

func (e *DegenerateQuadError) Error() string {
	return fmt.Sprintf("degenerate quad %v: %s", e.Quad, e.Reason)
}
