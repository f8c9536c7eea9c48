package extract_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loadplan/internal/domain"
	"loadplan/internal/extract"
	"loadplan/internal/geometry"
)

// quarterInchScale is 1/4" = 1'-0": one drawing unit (1/72 inch) is 1/18 foot.
func quarterInchScale() domain.Scale {
	return domain.Scale{FeetPerUnit: 1.0 / 18.0, Method: domain.ScaleMethodNotation, Confidence: 0.90}
}

// dividedRectangle returns the line work of a 30ft x 20ft outline with a
// vertical partition 12ft from the left wall. Outline sides are drawn as
// two strokes each, the way PDF content streams usually emit them.
func dividedRectangle() []geometry.Line {
	return []geometry.Line{
		// bottom
		{Start: geometry.Point{X: 100, Y: 100}, End: geometry.Point{X: 370, Y: 100}},
		{Start: geometry.Point{X: 370, Y: 100}, End: geometry.Point{X: 640, Y: 100}},
		// right
		{Start: geometry.Point{X: 640, Y: 100}, End: geometry.Point{X: 640, Y: 280}},
		{Start: geometry.Point{X: 640, Y: 280}, End: geometry.Point{X: 640, Y: 460}},
		// top
		{Start: geometry.Point{X: 640, Y: 460}, End: geometry.Point{X: 370, Y: 460}},
		{Start: geometry.Point{X: 370, Y: 460}, End: geometry.Point{X: 100, Y: 460}},
		// left
		{Start: geometry.Point{X: 100, Y: 460}, End: geometry.Point{X: 100, Y: 280}},
		{Start: geometry.Point{X: 100, Y: 280}, End: geometry.Point{X: 100, Y: 100}},
		// partition at x=316 (12ft from the left wall)
		{Start: geometry.Point{X: 316, Y: 100}, End: geometry.Point{X: 316, Y: 460}},
	}
}

func roomByName(t *testing.T, rooms []domain.RoomObservation, name string) domain.RoomObservation {
	t.Helper()
	for _, r := range rooms {
		if r.Name == name {
			return r
		}
	}
	t.Fatalf("room %q not found", name)
	return domain.RoomObservation{}
}

func TestGeometryExtractor_DividedRectangle(t *testing.T) {
	digest := &domain.PageDigest{
		PageIndex: 1,
		Width:     792,
		Height:    612,
		Lines:     dividedRectangle(),
		Runs: []domain.TextRun{
			{Text: "KITCHEN", At: geometry.Point{X: 208, Y: 280}},
			{Text: "GREAT ROOM", At: geometry.Point{X: 478, Y: 280}},
			{Text: "24'-0\"", At: geometry.Point{X: 370, Y: 120}},
			{Text: "SCALE: 1/4\" = 1'-0\"", At: geometry.Point{X: 600, Y: 30}},
		},
	}

	ex := extract.NewGeometryExtractor()
	cand, err := ex.Extract(context.Background(), extract.Input{
		Digest:     digest,
		Scale:      quarterInchScale(),
		FloorIndex: 1,
	})

	require.NoError(t, err)
	require.NotNil(t, cand)
	assert.Equal(t, domain.SourceGeometry, cand.Source)
	assert.Equal(t, 1, cand.PageIndex)
	assert.Equal(t, 1, cand.FloorIndex)
	assert.InDelta(t, 0.755, cand.Confidence, 1e-9)

	require.Len(t, cand.Fragment.Rooms, 2)

	kitchen := roomByName(t, cand.Fragment.Rooms, "KITCHEN")
	assert.InDelta(t, 240.0, kitchen.Area, 0.5)
	assert.InDelta(t, 64.0, kitchen.Perimeter, 0.5)
	assert.Equal(t, 3, kitchen.ExteriorWalls)
	assert.InDelta(t, 0.90, kitchen.FieldConfidence["area"], 1e-9)

	great := roomByName(t, cand.Fragment.Rooms, "GREAT ROOM")
	assert.InDelta(t, 360.0, great.Area, 0.5)
	assert.InDelta(t, 76.0, great.Perimeter, 0.5)
	assert.Equal(t, 3, great.ExteriorWalls)
}

func TestGeometryExtractor_ConfidenceBonusForManyRooms(t *testing.T) {
	lines := dividedRectangle()
	// second partition at x=478 splits the great room in two
	lines = append(lines, geometry.Line{
		Start: geometry.Point{X: 478, Y: 100},
		End:   geometry.Point{X: 478, Y: 460},
	})

	digest := &domain.PageDigest{PageIndex: 0, Width: 792, Height: 612, Lines: lines}

	ex := extract.NewGeometryExtractor()
	cand, err := ex.Extract(context.Background(), extract.Input{
		Digest:     digest,
		Scale:      quarterInchScale(),
		FloorIndex: 1,
	})

	require.NoError(t, err)
	require.Len(t, cand.Fragment.Rooms, 3)
	assert.InDelta(t, 0.855, cand.Confidence, 1e-9)
}

func TestGeometryExtractor_NoVectorContent(t *testing.T) {
	digest := &domain.PageDigest{
		PageIndex: 2,
		Width:     612,
		Height:    792,
		Lines: []geometry.Line{
			{Start: geometry.Point{X: 0, Y: 0}, End: geometry.Point{X: 100, Y: 0}},
		},
	}

	ex := extract.NewGeometryExtractor()
	cand, err := ex.Extract(context.Background(), extract.Input{Digest: digest, Scale: quarterInchScale()})

	assert.Nil(t, cand)
	assert.True(t, errors.Is(err, domain.ErrCapabilityUnavailable))
}

func TestGeometryExtractor_UnresolvedScale(t *testing.T) {
	digest := &domain.PageDigest{PageIndex: 0, Width: 792, Height: 612, Lines: dividedRectangle()}

	ex := extract.NewGeometryExtractor()
	cand, err := ex.Extract(context.Background(), extract.Input{Digest: digest, Scale: domain.Scale{}})

	assert.Nil(t, cand)
	assert.True(t, errors.Is(err, domain.ErrScaleUnresolved))
}

func TestGeometryExtractor_TinyFacesYieldNoRooms(t *testing.T) {
	// A 4ft x 4ft square (16 sq ft) is under the plausible-room floor.
	lines := []geometry.Line{
		{Start: geometry.Point{X: 100, Y: 100}, End: geometry.Point{X: 136, Y: 100}},
		{Start: geometry.Point{X: 136, Y: 100}, End: geometry.Point{X: 172, Y: 100}},
		{Start: geometry.Point{X: 172, Y: 100}, End: geometry.Point{X: 172, Y: 136}},
		{Start: geometry.Point{X: 172, Y: 136}, End: geometry.Point{X: 172, Y: 172}},
		{Start: geometry.Point{X: 172, Y: 172}, End: geometry.Point{X: 136, Y: 172}},
		{Start: geometry.Point{X: 136, Y: 172}, End: geometry.Point{X: 100, Y: 172}},
		{Start: geometry.Point{X: 100, Y: 172}, End: geometry.Point{X: 100, Y: 136}},
		{Start: geometry.Point{X: 100, Y: 136}, End: geometry.Point{X: 100, Y: 100}},
	}
	digest := &domain.PageDigest{PageIndex: 4, Width: 612, Height: 792, Lines: lines}

	ex := extract.NewGeometryExtractor()
	cand, err := ex.Extract(context.Background(), extract.Input{Digest: digest, Scale: quarterInchScale()})

	assert.Nil(t, cand)
	assert.True(t, errors.Is(err, domain.ErrInsufficientRoomData))
}

func TestGeometryExtractor_SelfCrossingLoopIsNotARoom(t *testing.T) {
	// A miswelded loop that crosses itself. Its shoelace area (23 sq ft
	// here) lands inside the plausible-room window, but the ring has no
	// well-defined interior and must not become a room.
	lines := dividedRectangle()
	lines = append(lines,
		geometry.Line{Start: geometry.Point{X: 1000, Y: 100}, End: geometry.Point{X: 1300, Y: 200}},
		geometry.Line{Start: geometry.Point{X: 1300, Y: 200}, End: geometry.Point{X: 1300, Y: 100}},
		geometry.Line{Start: geometry.Point{X: 1300, Y: 100}, End: geometry.Point{X: 1000, Y: 150}},
		geometry.Line{Start: geometry.Point{X: 1000, Y: 150}, End: geometry.Point{X: 1000, Y: 100}},
	)
	digest := &domain.PageDigest{PageIndex: 0, Width: 1584, Height: 612, Lines: lines}

	ex := extract.NewGeometryExtractor()
	cand, err := ex.Extract(context.Background(), extract.Input{
		Digest:     digest,
		Scale:      quarterInchScale(),
		FloorIndex: 1,
	})

	require.NoError(t, err)
	require.Len(t, cand.Fragment.Rooms, 2)
	for _, r := range cand.Fragment.Rooms {
		assert.Greater(t, r.Area, 100.0)
	}
	// Rejecting a tangled loop costs the candidate a flat penalty.
	assert.InDelta(t, 0.655, cand.Confidence, 1e-9)
}

func TestGeometryExtractor_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	digest := &domain.PageDigest{PageIndex: 0, Width: 792, Height: 612, Lines: dividedRectangle()}

	ex := extract.NewGeometryExtractor()
	cand, err := ex.Extract(ctx, extract.Input{Digest: digest, Scale: quarterInchScale()})

	assert.Nil(t, cand)
	assert.ErrorIs(t, err, context.Canceled)
}
