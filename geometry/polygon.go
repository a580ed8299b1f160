package geometry

import (
	"math"
	"sort"
)

// QuadIoU computes the exact IoU between an axis-aligned box and a convex
// quad by clipping the quad against the box edges.
func QuadIoU(b Box, q Quad) float64 {
	if b.Area() <= 0 {
		return 0.0
	}
	qArea := polygonArea(q[:])
	if qArea <= 0 {
		return 0.0
	}
	clipped := clipToBox(q[:], b)
	inter := polygonArea(clipped)
	if inter <= 0 {
		return 0.0
	}
	return inter / (b.Area() + qArea - inter)
}

// polygonArea is the absolute shoelace area, so winding order is irrelevant.
func polygonArea(pts []Point) float64 {
	if len(pts) < 3 {
		return 0
	}
	var s float64
	for i := range pts {
		j := (i + 1) % len(pts)
		s += pts[i].X*pts[j].Y - pts[j].X*pts[i].Y
	}
	return math.Abs(s) / 2
}

type halfPlane struct {
	inside    func(Point) bool
	intersect func(a, b Point) Point
}

func clipToBox(poly []Point, b Box) []Point {
	edges := []halfPlane{
		{
			inside:    func(p Point) bool { return p.X >= b.X1 },
			intersect: func(a, c Point) Point { return atX(a, c, b.X1) },
		},
		{
			inside:    func(p Point) bool { return p.X <= b.X2 },
			intersect: func(a, c Point) Point { return atX(a, c, b.X2) },
		},
		{
			inside:    func(p Point) bool { return p.Y >= b.Y1 },
			intersect: func(a, c Point) Point { return atY(a, c, b.Y1) },
		},
		{
			inside:    func(p Point) bool { return p.Y <= b.Y2 },
			intersect: func(a, c Point) Point { return atY(a, c, b.Y2) },
		},
	}
	out := poly
	for _, e := range edges {
		if len(out) == 0 {
			break
		}
		in := out
		out = make([]Point, 0, len(in)+2)
		prev := in[len(in)-1]
		for _, cur := range in {
			switch {
			case e.inside(cur):
				if !e.inside(prev) {
					out = append(out, e.intersect(prev, cur))
				}
				out = append(out, cur)
			case e.inside(prev):
				out = append(out, e.intersect(prev, cur))
			}
			prev = cur
		}
	}
	return out
}

func atX(a, b Point, x float64) Point {
	t := (x - a.X) / (b.X - a.X)
	return Point{X: x, Y: a.Y + t*(b.Y-a.Y)}
}

func atY(a, b Point, y float64) Point {
	t := (y - a.Y) / (b.Y - a.Y)
	return Point{X: a.X + t*(b.X-a.X), Y: y}
}

// NMS runs greedy non-maximum suppression and returns the indices of the
// kept boxes, highest score first.
func NMS(boxes []Box, scores []float64, iouThreshold float64) []int {
	order := make([]int, len(boxes))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return scores[order[i]] > scores[order[j]]
	})
	suppressed := make([]bool, len(boxes))
	keep := make([]int, 0, len(boxes))
	for _, i := range order {
		if suppressed[i] {
			continue
		}
		keep = append(keep, i)
		for _, j := range order {
			if j == i || suppressed[j] {
				continue
			}
			if IoU(boxes[i], boxes[j]) > iouThreshold {
				suppressed[j] = true
			}
		}
	}
	return keep
}
