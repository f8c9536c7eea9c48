// Package geometry provides the 2D primitives used to interpret vector
// drawing content: points, segments, boxes and polygons in PDF user space.
package geometry

import (
	"math"
	"sort"
)

// Point is a 2D point in drawing units.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance returns the Euclidean distance to other.
func (p Point) Distance(other Point) float64 {
	dx := p.X - other.X
	dy := p.Y - other.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Add returns p translated by other.
func (p Point) Add(other Point) Point {
	return Point{X: p.X + other.X, Y: p.Y + other.Y}
}

// Line is a straight segment between two points.
type Line struct {
	Start Point `json:"start"`
	End   Point `json:"end"`
}

// Length returns the segment length.
func (l Line) Length() float64 {
	return l.Start.Distance(l.End)
}

// Midpoint returns the segment midpoint.
func (l Line) Midpoint() Point {
	return Point{X: (l.Start.X + l.End.X) / 2, Y: (l.Start.Y + l.End.Y) / 2}
}

// Angle returns the segment angle in radians, normalized to [0, Pi).
// Opposite directions map to the same angle.
func (l Line) Angle() float64 {
	a := math.Atan2(l.End.Y-l.Start.Y, l.End.X-l.Start.X)
	if a < 0 {
		a += math.Pi
	}
	if a >= math.Pi {
		a -= math.Pi
	}
	return a
}

// DistanceTo returns the shortest distance from p to the segment.
func (l Line) DistanceTo(p Point) float64 {
	dx := l.End.X - l.Start.X
	dy := l.End.Y - l.Start.Y
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return p.Distance(l.Start)
	}
	t := ((p.X-l.Start.X)*dx + (p.Y-l.Start.Y)*dy) / lenSq
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return p.Distance(Point{X: l.Start.X + t*dx, Y: l.Start.Y + t*dy})
}

// IsHorizontal reports whether the segment is horizontal within tol drawing units.
func (l Line) IsHorizontal(tol float64) bool {
	return math.Abs(l.Start.Y-l.End.Y) <= tol
}

// IsVertical reports whether the segment is vertical within tol drawing units.
func (l Line) IsVertical(tol float64) bool {
	return math.Abs(l.Start.X-l.End.X) <= tol
}

// BBox is an axis-aligned bounding box. X0,Y0 is the lower-left corner
// and X1,Y1 the upper-right corner after Norm.
type BBox struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// Norm returns the box with corners ordered so that X0<=X1 and Y0<=Y1.
func (b BBox) Norm() BBox {
	if b.X0 > b.X1 {
		b.X0, b.X1 = b.X1, b.X0
	}
	if b.Y0 > b.Y1 {
		b.Y0, b.Y1 = b.Y1, b.Y0
	}
	return b
}

// Width returns the horizontal extent.
func (b BBox) Width() float64 { return math.Abs(b.X1 - b.X0) }

// Height returns the vertical extent.
func (b BBox) Height() float64 { return math.Abs(b.Y1 - b.Y0) }

// Area returns width times height.
func (b BBox) Area() float64 { return b.Width() * b.Height() }

// Center returns the box center.
func (b BBox) Center() Point {
	return Point{X: (b.X0 + b.X1) / 2, Y: (b.Y0 + b.Y1) / 2}
}

// Contains reports whether p lies inside or on the box boundary.
func (b BBox) Contains(p Point) bool {
	b = b.Norm()
	return p.X >= b.X0 && p.X <= b.X1 && p.Y >= b.Y0 && p.Y <= b.Y1
}

// Intersects reports whether the two boxes overlap.
func (b BBox) Intersects(other BBox) bool {
	b = b.Norm()
	other = other.Norm()
	return b.X0 <= other.X1 && b.X1 >= other.X0 && b.Y0 <= other.Y1 && b.Y1 >= other.Y0
}

// Union returns the smallest box containing both boxes.
func (b BBox) Union(other BBox) BBox {
	b = b.Norm()
	other = other.Norm()
	return BBox{
		X0: math.Min(b.X0, other.X0),
		Y0: math.Min(b.Y0, other.Y0),
		X1: math.Max(b.X1, other.X1),
		Y1: math.Max(b.Y1, other.Y1),
	}
}

// Expand returns the box grown by margin on every side.
func (b BBox) Expand(margin float64) BBox {
	b = b.Norm()
	return BBox{X0: b.X0 - margin, Y0: b.Y0 - margin, X1: b.X1 + margin, Y1: b.Y1 + margin}
}

// Polygon returns the four corners as a closed polygon in CCW order.
func (b BBox) Polygon() Polygon {
	b = b.Norm()
	return Polygon{
		{X: b.X0, Y: b.Y0},
		{X: b.X1, Y: b.Y0},
		{X: b.X1, Y: b.Y1},
		{X: b.X0, Y: b.Y1},
	}
}

// ClusterValues groups values that lie within tol of a cluster mean and
// returns one averaged representative per cluster, sorted ascending.
func ClusterValues(values []float64, tol float64) []float64 {
	if len(values) == 0 {
		return nil
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var clusters []float64
	sum := sorted[0]
	count := 1
	for _, v := range sorted[1:] {
		mean := sum / float64(count)
		if v-mean <= tol {
			sum += v
			count++
			continue
		}
		clusters = append(clusters, mean)
		sum = v
		count = 1
	}
	clusters = append(clusters, sum/float64(count))
	return clusters
}
