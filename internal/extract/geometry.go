package extract

import (
	"context"
	"fmt"
	"math"
	"time"

	"loadplan/internal/domain"
	"loadplan/internal/geometry"
)

const (
	// Plausible reconstructed-room window in square feet. Faces outside
	// it are title blocks, wall poche or pen strokes, not rooms.
	minRoomAreaFt2 = 20.0
	maxRoomAreaFt2 = 1500.0

	// Endpoint snap tolerance in feet, converted to drawing units per page.
	snapFeet = 0.5
)

// GeometryExtractor reconstructs rooms from the vector line work of a
// page: wall segments are assembled into closed loops, loops are scaled
// into square footage, and room labels are bound by point-in-polygon
// tests against the positioned text runs.
type GeometryExtractor struct{}

// NewGeometryExtractor creates a GeometryExtractor.
func NewGeometryExtractor() *GeometryExtractor {
	return &GeometryExtractor{}
}

func (g *GeometryExtractor) Name() domain.CandidateSource {
	return domain.SourceGeometry
}

func (g *GeometryExtractor) Extract(ctx context.Context, in Input) (*domain.Candidate, error) {
	start := time.Now()
	d := in.Digest

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !d.HasVector() {
		return nil, fmt.Errorf("extract.GeometryExtractor: page %d has no usable vector content: %w",
			d.PageIndex, domain.ErrCapabilityUnavailable)
	}
	if in.Scale.FeetPerUnit <= 0 {
		return nil, fmt.Errorf("extract.GeometryExtractor: page %d: %w", d.PageIndex, domain.ErrScaleUnresolved)
	}

	tol := snapTolerance(in.Scale)
	loops := geometry.AssembleLoops(collectSegments(d), tol)
	outerEdges := loops.Outer.Edges()

	var rooms []domain.RoomObservation
	tangled := 0
	for _, face := range loops.Faces {
		// A self-crossing loop has no well-defined interior; its shoelace
		// area is the difference of its lobes, not a room size.
		if !face.IsSimple() {
			tangled++
			continue
		}
		areaFt2 := in.Scale.ToSquareFeet(face.Area())
		if areaFt2 < minRoomAreaFt2 || areaFt2 > maxRoomAreaFt2 {
			continue
		}
		rooms = append(rooms, domain.RoomObservation{
			Name:          labelForFace(face, d.Runs),
			Area:          round1(areaFt2),
			Perimeter:     round1(in.Scale.ToFeet(face.Perimeter())),
			ExteriorWalls: exteriorWallCount(face, outerEdges, tol),
			Centroid:      face.Centroid(),
			Outline:       face,
			FieldConfidence: map[string]float64{
				"area":           0.90,
				"perimeter":      0.85,
				"exterior_walls": 0.70,
				"name":           0.60,
			},
		})
	}
	if len(rooms) == 0 {
		return nil, fmt.Errorf("extract.GeometryExtractor: page %d yielded no plausible rooms: %w",
			d.PageIndex, domain.ErrInsufficientRoomData)
	}

	return &domain.Candidate{
		Source:     domain.SourceGeometry,
		PageIndex:  d.PageIndex,
		FloorIndex: in.FloorIndex,
		Confidence: geometryConfidence(in.Scale, len(rooms), tangled),
		Fragment:   domain.Fragment{Rooms: rooms},
		Elapsed:    time.Since(start),
	}, nil
}

// geometryConfidence scores the candidate. Room areas are only as good
// as the scale they were converted with, so the scale confidence
// dominates; finding several rooms is weak evidence the loop assembly
// read the drawing rather than the border, and any self-crossing loop
// means part of it was misassembled.
func geometryConfidence(s domain.Scale, roomCount, tangled int) float64 {
	conf := 0.35 + 0.45*s.Confidence
	if roomCount >= 3 {
		conf += 0.10
	}
	if tangled > 0 {
		conf -= 0.10
	}
	if conf > 0.90 {
		conf = 0.90
	}
	return conf
}

// snapTolerance converts the half-foot snap window into drawing units,
// clamped so pathological scales cannot weld the whole drawing together.
func snapTolerance(s domain.Scale) float64 {
	tol := snapFeet / s.FeetPerUnit
	if tol < 2 {
		tol = 2
	}
	if tol > 12 {
		tol = 12
	}
	return tol
}

func collectSegments(d *domain.PageDigest) []geometry.Line {
	segs := make([]geometry.Line, 0, len(d.Lines)+len(d.Rects)*4)
	segs = append(segs, d.Lines...)
	for _, r := range d.Rects {
		pg := r.Polygon()
		for _, e := range pg.Edges() {
			segs = append(segs, e)
		}
	}
	return segs
}

// labelForFace picks the room label: the name-like text run inside the
// face nearest its centroid. Empty when no run qualifies.
func labelForFace(face geometry.Polygon, runs []domain.TextRun) string {
	centroid := face.Centroid()
	best := ""
	bestDist := math.MaxFloat64
	for _, run := range runs {
		if !face.Contains(run.At) || !isRoomName(run.Text) {
			continue
		}
		if dist := run.At.Distance(centroid); dist < bestDist {
			bestDist = dist
			best = cleanRoomName(run.Text)
		}
	}
	return best
}

// exteriorWallCount estimates how many of the room's four notional sides
// sit on the building outline. The exterior fraction of the perimeter is
// measured edge by edge and rounded onto 0..4 sides.
func exteriorWallCount(face geometry.Polygon, outerEdges []geometry.Line, tol float64) int {
	perimeter := face.Perimeter()
	if perimeter <= 0 || len(outerEdges) == 0 {
		return 0
	}

	var exteriorLen float64
	for _, e := range face.Edges() {
		mid := e.Midpoint()
		for _, oe := range outerEdges {
			if oe.DistanceTo(mid) <= tol*1.5 {
				exteriorLen += e.Length()
				break
			}
		}
	}
	if exteriorLen == 0 {
		return 0
	}

	walls := int(math.Round(4 * exteriorLen / perimeter))
	if walls < 1 {
		walls = 1
	}
	if walls > 4 {
		walls = 4
	}
	return walls
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
