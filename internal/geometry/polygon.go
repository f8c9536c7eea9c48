package geometry

import "math"

// Polygon is an ordered ring of vertices. The ring is implicitly closed:
// the last vertex connects back to the first.
type Polygon []Point

// SignedArea returns the shoelace area. Positive for counter-clockwise
// winding, negative for clockwise.
func (pg Polygon) SignedArea() float64 {
	if len(pg) < 3 {
		return 0
	}
	var sum float64
	for i, p := range pg {
		q := pg[(i+1)%len(pg)]
		sum += p.X*q.Y - q.X*p.Y
	}
	return sum / 2
}

// Area returns the absolute enclosed area.
func (pg Polygon) Area() float64 {
	return math.Abs(pg.SignedArea())
}

// Perimeter returns the total edge length including the closing edge.
func (pg Polygon) Perimeter() float64 {
	if len(pg) < 2 {
		return 0
	}
	var sum float64
	for i, p := range pg {
		sum += p.Distance(pg[(i+1)%len(pg)])
	}
	return sum
}

// Centroid returns the area centroid. For degenerate rings it falls back
// to the vertex average.
func (pg Polygon) Centroid() Point {
	if len(pg) == 0 {
		return Point{}
	}
	a := pg.SignedArea()
	if math.Abs(a) < 1e-9 {
		var c Point
		for _, p := range pg {
			c.X += p.X
			c.Y += p.Y
		}
		c.X /= float64(len(pg))
		c.Y /= float64(len(pg))
		return c
	}
	var cx, cy float64
	for i, p := range pg {
		q := pg[(i+1)%len(pg)]
		cross := p.X*q.Y - q.X*p.Y
		cx += (p.X + q.X) * cross
		cy += (p.Y + q.Y) * cross
	}
	return Point{X: cx / (6 * a), Y: cy / (6 * a)}
}

// BoundingBox returns the axis-aligned bounds of the ring.
func (pg Polygon) BoundingBox() BBox {
	if len(pg) == 0 {
		return BBox{}
	}
	b := BBox{X0: pg[0].X, Y0: pg[0].Y, X1: pg[0].X, Y1: pg[0].Y}
	for _, p := range pg[1:] {
		b.X0 = math.Min(b.X0, p.X)
		b.Y0 = math.Min(b.Y0, p.Y)
		b.X1 = math.Max(b.X1, p.X)
		b.Y1 = math.Max(b.Y1, p.Y)
	}
	return b
}

// Contains reports whether p lies inside the ring, using the even-odd
// ray casting rule. Points exactly on an edge may land on either side.
func (pg Polygon) Contains(p Point) bool {
	if len(pg) < 3 {
		return false
	}
	inside := false
	j := len(pg) - 1
	for i := 0; i < len(pg); i++ {
		pi, pj := pg[i], pg[j]
		if (pi.Y > p.Y) != (pj.Y > p.Y) {
			x := pi.X + (p.Y-pi.Y)/(pj.Y-pi.Y)*(pj.X-pi.X)
			if p.X < x {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

// Edges returns the ring edges, closing edge included.
func (pg Polygon) Edges() []Line {
	if len(pg) < 2 {
		return nil
	}
	edges := make([]Line, 0, len(pg))
	for i, p := range pg {
		edges = append(edges, Line{Start: p, End: pg[(i+1)%len(pg)]})
	}
	return edges
}

// RemoveCollinear drops vertices that lie on the straight line between
// their neighbours, within tol. A rectangle traced with intermediate
// points collapses back to four corners.
func (pg Polygon) RemoveCollinear(tol float64) Polygon {
	if len(pg) < 4 {
		return pg
	}
	out := make(Polygon, 0, len(pg))
	n := len(pg)
	for i := 0; i < n; i++ {
		prev := pg[(i-1+n)%n]
		cur := pg[i]
		next := pg[(i+1)%n]
		// Perpendicular distance of cur from the prev-next chord.
		dx := next.X - prev.X
		dy := next.Y - prev.Y
		chord := math.Hypot(dx, dy)
		if chord < 1e-9 {
			continue
		}
		dist := math.Abs(dy*cur.X-dx*cur.Y+next.X*prev.Y-next.Y*prev.X) / chord
		if dist > tol {
			out = append(out, cur)
		}
	}
	if len(out) < 3 {
		return pg
	}
	return out
}

// IsSimple reports whether no two non-adjacent edges intersect.
// Self-intersecting rings produce unreliable areas and are rejected
// by callers.
func (pg Polygon) IsSimple() bool {
	edges := pg.Edges()
	n := len(edges)
	if n < 3 {
		return false
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			// Skip adjacent edges, including the first/last pair.
			if j == i+1 || (i == 0 && j == n-1) {
				continue
			}
			if segmentsIntersect(edges[i], edges[j]) {
				return false
			}
		}
	}
	return true
}

func segmentsIntersect(a, b Line) bool {
	d1 := cross(b.Start, b.End, a.Start)
	d2 := cross(b.Start, b.End, a.End)
	d3 := cross(a.Start, a.End, b.Start)
	d4 := cross(a.Start, a.End, b.End)
	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	return false
}

func cross(o, a, b Point) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}
