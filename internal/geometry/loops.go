package geometry

import (
	"math"
	"sort"
)

// LoopSet is the result of assembling line segments into closed loops.
type LoopSet struct {
	// Faces are the bounded faces of the segment graph, interior winding,
	// largest first. On a floor plan these are candidate room outlines.
	Faces []Polygon
	// Outer is the boundary of the unbounded face, the outermost closed
	// outline. Empty when no loop closed.
	Outer Polygon
}

// AssembleLoops snaps segment endpoints together within tol and walks the
// resulting planar graph to recover its closed faces. Segments that end on
// the interior of another segment (T junctions, the usual way interior
// walls meet an outline) split that segment into graph edges. Open chains
// and dangling stubs contribute nothing. Coordinates stay in input units.
func AssembleLoops(lines []Line, tol float64) LoopSet {
	if tol <= 0 {
		tol = 1e-6
	}
	sn := newSnapper(tol)

	type edge struct{ a, b int }
	var edges []edge
	seen := make(map[edge]struct{})
	addEdge := func(a, b int) {
		if a == b {
			return
		}
		k := edge{a, b}
		if a > b {
			k = edge{b, a}
		}
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		edges = append(edges, k)
	}
	for _, ln := range lines {
		addEdge(sn.index(ln.Start), sn.index(ln.End))
	}
	nodes := sn.points

	// Split edges at nodes that land on their interior.
	var split []edge
	for _, e := range edges {
		a, b := nodes[e.a], nodes[e.b]
		type hit struct {
			node int
			t    float64
		}
		hits := []hit{{e.a, 0}, {e.b, 1}}
		for n := range nodes {
			if n == e.a || n == e.b {
				continue
			}
			t, dist := projectOnSegment(nodes[n], a, b)
			if dist <= tol && t > 0 && t < 1 {
				hits = append(hits, hit{n, t})
			}
		}
		sort.Slice(hits, func(i, j int) bool { return hits[i].t < hits[j].t })
		for i := 0; i+1 < len(hits); i++ {
			split = append(split, edge{hits[i].node, hits[i+1].node})
		}
	}

	adj := make(map[int][]int)
	seen = make(map[edge]struct{})
	edgeCount := 0
	for _, e := range split {
		if e.a == e.b {
			continue
		}
		k := e
		if k.a > k.b {
			k.a, k.b = k.b, k.a
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		adj[e.a] = append(adj[e.a], e.b)
		adj[e.b] = append(adj[e.b], e.a)
		edgeCount++
	}
	if edgeCount < 3 {
		return LoopSet{}
	}

	angle := func(from, to int) float64 {
		return math.Atan2(nodes[to].Y-nodes[from].Y, nodes[to].X-nodes[from].X)
	}
	for n, nbrs := range adj {
		sort.Slice(nbrs, func(i, j int) bool {
			return angle(n, nbrs[i]) < angle(n, nbrs[j])
		})
		adj[n] = nbrs
	}

	// Walk every directed edge once. At each vertex the walk turns onto
	// the clockwise-previous neighbour relative to the reverse of the
	// incoming edge, which traces each face of the graph exactly once.
	used := make(map[[2]int]bool, edgeCount*2)
	maxSteps := edgeCount*2 + 1
	var faces []Polygon

	nodeIDs := make([]int, 0, len(adj))
	for n := range adj {
		nodeIDs = append(nodeIDs, n)
	}
	sort.Ints(nodeIDs)

	for _, u := range nodeIDs {
		for _, v := range adj[u] {
			if used[[2]int{u, v}] {
				continue
			}
			ring, ok := traceFace(u, v, adj, nodes, used, maxSteps)
			if !ok || len(ring) < 3 {
				continue
			}
			ring = ring.RemoveCollinear(tol / 2)
			if ring.Area() <= tol*tol {
				continue
			}
			if ring.SignedArea() < 0 {
				reverse(ring)
			}
			faces = append(faces, ring)
		}
	}
	if len(faces) == 0 {
		return LoopSet{}
	}

	sort.Slice(faces, func(i, j int) bool {
		return faces[i].Area() > faces[j].Area()
	})

	// The unbounded face is traced like any other and always has the
	// largest area. Report it separately as the outer outline.
	return LoopSet{Outer: faces[0], Faces: faces[1:]}
}

// projectOnSegment returns the projection parameter of p onto segment ab
// and the perpendicular distance from p to the segment.
func projectOnSegment(p, a, b Point) (t, dist float64) {
	dx := b.X - a.X
	dy := b.Y - a.Y
	lenSq := dx*dx + dy*dy
	if lenSq < 1e-18 {
		return 0, p.Distance(a)
	}
	t = ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / lenSq
	proj := Point{X: a.X + t*dx, Y: a.Y + t*dy}
	return t, p.Distance(proj)
}

func traceFace(u, v int, adj map[int][]int, nodes []Point, used map[[2]int]bool, maxSteps int) (Polygon, bool) {
	var ring Polygon
	cu, cv := u, v
	for step := 0; step < maxSteps; step++ {
		used[[2]int{cu, cv}] = true
		ring = append(ring, nodes[cu])

		nbrs := adj[cv]
		idx := -1
		for i, n := range nbrs {
			if n == cu {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, false
		}
		next := nbrs[(idx-1+len(nbrs))%len(nbrs)]
		cu, cv = cv, next
		if cu == u && cv == v {
			return ring, true
		}
	}
	return nil, false
}

func reverse(pg Polygon) {
	for i, j := 0, len(pg)-1; i < j; i, j = i+1, j-1 {
		pg[i], pg[j] = pg[j], pg[i]
	}
}

// snapper assigns stable indices to points, merging points that fall
// within tol of one another.
type snapper struct {
	tol    float64
	points []Point
	grid   map[[2]int][]int
}

func newSnapper(tol float64) *snapper {
	return &snapper{tol: tol, grid: make(map[[2]int][]int)}
}

func (s *snapper) index(p Point) int {
	cx := int(math.Floor(p.X / s.tol))
	cy := int(math.Floor(p.Y / s.tol))
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			for _, i := range s.grid[[2]int{cx + dx, cy + dy}] {
				if s.points[i].Distance(p) <= s.tol {
					return i
				}
			}
		}
	}
	s.points = append(s.points, p)
	i := len(s.points) - 1
	s.grid[[2]int{cx, cy}] = append(s.grid[[2]int{cx, cy}], i)
	return i
}
