package geometry

import "math"

// Point is a position in image coordinates.
type Point struct {
	X, Y float64
}

// Box is an axis-aligned rectangle in image coordinates. Corners are not
// normalised, callers keep X1<X2 and Y1<Y2.
type Box struct {
	X1, Y1, X2, Y2 float64
}

// Quad holds the four corners of a rotated box, in the order
// (x1,y1) (x2,y1) (x2,y2) (x1,y2).
type Quad [4]Point

// BoxAround is the width x height box centered at center.
func BoxAround(center Point, width, height float64) Box {
	return Box{
		X1: center.X - width/2,
		Y1: center.Y - height/2,
		X2: center.X + width/2,
		Y2: center.Y + height/2,
	}
}

func (b Box) Area() float64 {
	return (b.X2 - b.X1) * (b.Y2 - b.Y1)
}

func (b Box) Center() Point {
	return Point{X: (b.X1 + b.X2) / 2, Y: (b.Y1 + b.Y2) / 2}
}

// Coords returns the 8 coordinates of the quad, x then y for each corner.
func (q Quad) Coords() []float64 {
	out := make([]float64, 0, 8)
	for _, p := range q {
		out = append(out, p.X, p.Y)
	}
	return out
}

// Lerp returns the point at parameter t on the segment a→b.
func Lerp(a, b Point, t float64) Point {
	return Point{
		X: a.X + (b.X-a.X)*t,
		Y: a.Y + (b.Y-a.Y)*t,
	}
}

// IoU is the intersection over union of two axis-aligned boxes.
func IoU(a, b Box) float64 {
	ix1 := math.Max(a.X1, b.X1)
	iy1 := math.Max(a.Y1, b.Y1)
	ix2 := math.Min(a.X2, b.X2)
	iy2 := math.Min(a.Y2, b.Y2)
	if ix2 <= ix1 || iy2 <= iy1 {
		return 0.0
	}
	inter := (ix2 - ix1) * (iy2 - iy1)
	union := a.Area() + b.Area() - inter
	return inter / union
}

// RotateBox rotates the corners of b about its center by angleDeg.
// The result is a quad, not an axis-aligned box.
func RotateBox(b Box, angleDeg float64) Quad {
	rad := angleDeg * math.Pi / 180
	cos, sin := math.Cos(rad), math.Sin(rad)
	c := b.Center()
	rot := func(x, y float64) Point {
		dx, dy := x-c.X, y-c.Y
		return Point{X: c.X + cos*dx - sin*dy, Y: c.Y + sin*dx + cos*dy}
	}
	return Quad{
		rot(b.X1, b.Y1),
		rot(b.X2, b.Y1),
		rot(b.X2, b.Y2),
		rot(b.X1, b.Y2),
	}
}
