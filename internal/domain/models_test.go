package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScaleConversions(t *testing.T) {
	// 1/4" = 1'-0" on a 72 dpi page: 18 units per foot.
	s := Scale{FeetPerUnit: 1.0 / 18.0, Method: ScaleMethodNotation, Confidence: 0.9}
	assert.InDelta(t, 10.0, s.ToFeet(180), 1e-9)
	assert.InDelta(t, 100.0, s.ToSquareFeet(180*18), 1e-9)
}

func TestRoomIsCorner(t *testing.T) {
	assert.False(t, (&Room{ExteriorWalls: 0}).IsCorner())
	assert.False(t, (&Room{ExteriorWalls: 1}).IsCorner())
	assert.True(t, (&Room{ExteriorWalls: 2}).IsCorner())
	assert.True(t, (&Room{ExteriorWalls: 4}).IsCorner())
}

func TestRoomExteriorWallArea(t *testing.T) {
	r := Room{Perimeter: 48, CeilingHeight: 8, ExteriorWalls: 2}
	// Half the perimeter exposed: 24 ft x 8 ft.
	assert.InDelta(t, 192.0, r.ExteriorWallArea(), 1e-9)

	interior := Room{Perimeter: 48, CeilingHeight: 8, ExteriorWalls: 0}
	assert.Zero(t, interior.ExteriorWallArea())

	capped := Room{Perimeter: 40, CeilingHeight: 10, ExteriorWalls: 7}
	assert.InDelta(t, 400.0, capped.ExteriorWallArea(), 1e-9)
}

func TestBuildingModelTotals(t *testing.T) {
	m := BuildingModel{
		Rooms: []Room{
			{Name: "living", FloorIndex: 1, Area: 300},
			{Name: "kitchen", FloorIndex: 1, Area: 150},
			{Name: "bedroom", FloorIndex: 2, Area: 200},
		},
	}
	assert.InDelta(t, 650.0, m.TotalArea(), 1e-9)
	assert.Len(t, m.RoomsOnFloor(1), 2)
	assert.Len(t, m.RoomsOnFloor(2), 1)
	assert.Empty(t, m.RoomsOnFloor(3))
}

func TestPageDigestCapabilities(t *testing.T) {
	empty := PageDigest{}
	assert.False(t, empty.HasVector())
	assert.False(t, empty.HasRaster())

	withRaster := PageDigest{Images: []PageImage{{Format: "jpeg", Data: []byte{0xff}}}}
	assert.True(t, withRaster.HasRaster())
}
