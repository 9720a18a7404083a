package geometry

import (
	"image"
	"math"
)

const (
	// collinearEps is relative to the squared quad extent.
	collinearEps = 1e-9
	pivotEps     = 1e-12
)

// Transform is a 3x3 row-major homography mapping image space to board space.
type Transform [9]float64

// Identity returns the identity transform.
func Identity() Transform { return Transform{1, 0, 0, 0, 1, 0, 0, 0, 1} }

// Apply maps p through the homography. Points on the line at infinity map to NaN.
func (t Transform) Apply(p Point) Point {
	w := t[6]*p.X + t[7]*p.Y + t[8]
	if w == 0 {
		return Point{math.NaN(), math.NaN()}
	}
	return Point{
		X: (t[0]*p.X + t[1]*p.Y + t[2]) / w,
		Y: (t[3]*p.X + t[4]*p.Y + t[5]) / w,
	}
}

// Det returns the determinant of the matrix.
func (t Transform) Det() float64 {
	return t[0]*(t[4]*t[8]-t[5]*t[7]) -
		t[1]*(t[3]*t[8]-t[5]*t[6]) +
		t[2]*(t[3]*t[7]-t[4]*t[6])
}

// Inverse returns the inverse homography computed from the adjugate.
func (t Transform) Inverse() (Transform, bool) {
	det := t.Det()
	if math.Abs(det) < pivotEps {
		return Transform{}, false
	}
	adj := Transform{
		t[4]*t[8] - t[5]*t[7], t[2]*t[7] - t[1]*t[8], t[1]*t[5] - t[2]*t[4],
		t[5]*t[6] - t[3]*t[8], t[0]*t[8] - t[2]*t[6], t[2]*t[3] - t[0]*t[5],
		t[3]*t[7] - t[4]*t[6], t[1]*t[6] - t[0]*t[7], t[0]*t[4] - t[1]*t[3],
	}
	for i := range adj {
		adj[i] /= det
	}
	return adj, true
}

// ComputeRectification returns the homography taking src onto the corners of a
// size-sized rectangle in quad order.
func ComputeRectification(src Quad, size Size) (Transform, error) {
	if size.Empty() {
		return Transform{}, &DegenerateQuadError{Quad: src, Reason: "empty target size " + size.String()}
	}
	if err := checkCollinear(src); err != nil {
		return Transform{}, err
	}
	h, ok := solveHomography(src, size.Corners())
	if !ok {
		return Transform{}, &DegenerateQuadError{Quad: src, Reason: "singular system"}
	}
	if _, ok := h.Inverse(); !ok {
		return Transform{}, &DegenerateQuadError{Quad: src, Reason: "non-invertible transform"}
	}
	return h, nil
}

func checkCollinear(q Quad) error {
	for _, p := range q {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
			return &DegenerateQuadError{Quad: q, Reason: "non-finite corner"}
		}
	}
	b := q.Bounds()
	extent := float64(b.Dx()*b.Dx() + b.Dy()*b.Dy())
	if extent == 0 {
		return &DegenerateQuadError{Quad: q, Reason: "zero extent"}
	}
	for i := 0; i < 4; i++ {
		a, m, c := q[i], q[(i+1)%4], q[(i+2)%4]
		if math.Abs(cross(a, m, c)) <= collinearEps*extent {
			return &DegenerateQuadError{Quad: q, Reason: "collinear corners"}
		}
	}
	return nil
}

// solveHomography builds the 8x8 system for h00..h21 (h22 = 1) mapping p[i]
// onto q[i] and solves it by Gauss-Jordan elimination with partial pivoting.
func solveHomography(p, q Quad) (Transform, bool) {
	var a [8][9]float64 // augmented
	for i := 0; i < 4; i++ {
		X, Y := p[i].X, p[i].Y
		x, y := q[i].X, q[i].Y
		r := 2 * i
		a[r] = [9]float64{X, Y, 1, 0, 0, 0, -X * x, -Y * x, x}
		a[r+1] = [9]float64{0, 0, 0, X, Y, 1, -X * y, -Y * y, y}
	}
	for col := 0; col < 8; col++ {
		pivot := col
		for r := col + 1; r < 8; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(a[pivot][col]) < pivotEps {
			return Transform{}, false
		}
		a[col], a[pivot] = a[pivot], a[col]
		div := a[col][col]
		for c := col; c < 9; c++ {
			a[col][c] /= div
		}
		for r := 0; r < 8; r++ {
			if r == col || a[r][col] == 0 {
				continue
			}
			f := a[r][col]
			for c := col; c < 9; c++ {
				a[r][c] -= f * a[col][c]
			}
		}
	}
	return Transform{a[0][8], a[1][8], a[2][8], a[3][8], a[4][8], a[5][8], a[6][8], a[7][8], 1}, true
}

// ProjectPoints remaps q from imageSpace into screenSpace with a per-axis
// scale and offset. An empty imageSpace leaves q unchanged.
func ProjectPoints(q Quad, imageSpace, screenSpace image.Rectangle) Quad {
	if imageSpace.Empty() {
		return q
	}
	sx := float64(screenSpace.Dx()) / float64(imageSpace.Dx())
	sy := float64(screenSpace.Dy()) / float64(imageSpace.Dy())
	var out Quad
	for i, p := range q {
		out[i] = Point{
			X: float64(screenSpace.Min.X) + (p.X-float64(imageSpace.Min.X))*sx,
			Y: float64(screenSpace.Min.Y) + (p.Y-float64(imageSpace.Min.Y))*sy,
		}
	}
	return out
}
