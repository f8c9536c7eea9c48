package validate

import (
	"fmt"
	"math"
	"strconv"

	"loadplan/internal/domain"
)

// Typical bands for plausibility checks. Values outside a band are not
// rejected; they are surfaced so a reviewer can confirm the extraction
// read the drawing correctly.
const (
	wallRLow     = 8.0
	wallRHigh    = 60.0
	ceilingRLow  = 15.0
	ceilingRHigh = 90.0
	floorRLow    = 5.0
	floorRHigh   = 60.0
	windowULow   = 0.15
	windowUHigh  = 1.40
	shgcLow      = 0.15
	shgcHigh     = 0.85

	ach50Low  = 0.5
	ach50High = 40.0

	windowRatioLow  = 0.02
	windowRatioHigh = 0.35

	aspectRatioMax = 5.0

	ceilingHeightLowFt  = 6.5
	ceilingHeightHighFt = 14.0

	minSqFtPerOccupant = 100.0
)

type plausibilityRule struct {
	key   string
	name  string
	check func(model *domain.BuildingModel) []domain.Warning
}

func (r *plausibilityRule) Key() string  { return r.key }
func (r *plausibilityRule) Name() string { return r.name }

func (r *plausibilityRule) Check(model *domain.BuildingModel) []domain.Warning {
	if model == nil {
		return nil
	}
	return r.check(model)
}

// BuiltinRules returns the plausibility rules every Checker runs.
func BuiltinRules() []Rule {
	return []Rule{
		&plausibilityRule{
			key:   "plausibility.insulation",
			name:  "Insulation Range",
			check: checkInsulation,
		},
		&plausibilityRule{
			key:   "plausibility.window_ratio",
			name:  "Window To Floor Ratio",
			check: checkWindowRatio,
		},
		&plausibilityRule{
			key:   "plausibility.room_shape",
			name:  "Room Shape",
			check: checkRoomShape,
		},
		&plausibilityRule{
			key:   "plausibility.infiltration",
			name:  "Infiltration Rate",
			check: checkInfiltration,
		},
		&plausibilityRule{
			key:   "plausibility.occupancy",
			name:  "Occupancy Density",
			check: checkOccupancy,
		},
		&plausibilityRule{
			key:   "plausibility.ceiling_height",
			name:  "Ceiling Height",
			check: checkCeilingHeight,
		},
	}
}

func checkInsulation(model *domain.BuildingModel) []domain.Warning {
	var out []domain.Warning
	band := func(field, desc string, v, lo, hi float64) {
		if v == 0 || (v >= lo && v <= hi) {
			return
		}
		out = append(out, domain.Warning{
			Code:  "plausibility.insulation",
			Field: field,
			Message: fmt.Sprintf("Insulation Range: %s %s falls outside the typical %s to %s band",
				desc, fmtf(v), fmtf(lo), fmtf(hi)),
		})
	}
	env := model.Envelope
	band("envelope.wall_r_value", "wall assembly R-value", env.WallRValue, wallRLow, wallRHigh)
	band("envelope.ceiling_r_value", "ceiling assembly R-value", env.CeilingRValue, ceilingRLow, ceilingRHigh)
	band("envelope.floor_r_value", "floor assembly R-value", env.FloorRValue, floorRLow, floorRHigh)
	band("envelope.window_u_value", "window U-value", env.WindowUValue, windowULow, windowUHigh)
	band("envelope.window_shgc", "window SHGC", env.WindowSHGC, shgcLow, shgcHigh)
	return out
}

func checkWindowRatio(model *domain.BuildingModel) []domain.Warning {
	var totalArea, totalWindow float64
	for _, room := range model.Rooms {
		totalArea += room.Area
		totalWindow += room.WindowArea
	}
	if totalArea <= 0 {
		return nil
	}
	if totalWindow == 0 {
		return []domain.Warning{{
			Code:    "plausibility.window_ratio",
			Field:   "rooms",
			Message: "Window To Floor Ratio: no window area was observed anywhere in the building",
		}}
	}
	ratio := totalWindow / totalArea
	switch {
	case ratio < windowRatioLow:
		return []domain.Warning{{
			Code:  "plausibility.window_ratio",
			Field: "rooms",
			Message: fmt.Sprintf("Window To Floor Ratio: glazing covers %.1f%% of the floor area, below the typical %.0f%% minimum",
				ratio*100, windowRatioLow*100),
		}}
	case ratio > windowRatioHigh:
		return []domain.Warning{{
			Code:  "plausibility.window_ratio",
			Field: "rooms",
			Message: fmt.Sprintf("Window To Floor Ratio: glazing covers %.1f%% of the floor area, above the typical %.0f%% maximum",
				ratio*100, windowRatioHigh*100),
		}}
	}
	return nil
}

// checkRoomShape back-solves a rectangle from each room's area and
// perimeter. A perimeter shorter than 4*sqrt(area) cannot enclose the
// area at all, and a solution longer than 5:1 is usually a mis-joined
// wall loop rather than a real corridor.
func checkRoomShape(model *domain.BuildingModel) []domain.Warning {
	var out []domain.Warning
	for i, room := range model.Rooms {
		if room.Area <= 0 || room.Perimeter <= 0 {
			continue
		}
		half := room.Perimeter / 4
		disc := half*half - room.Area
		if disc < -1.0 {
			out = append(out, domain.Warning{
				Code:  "plausibility.room_shape",
				Field: fmt.Sprintf("rooms[%d].perimeter", i),
				Message: fmt.Sprintf("Room Shape: %s has a %.0f ft perimeter, too short to enclose %.0f sq ft",
					room.Name, room.Perimeter, room.Area),
			})
			continue
		}
		d := math.Sqrt(math.Max(disc, 0))
		long, short := half+d, half-d
		if short > 0 && long/short > aspectRatioMax {
			out = append(out, domain.Warning{
				Code:  "plausibility.room_shape",
				Field: fmt.Sprintf("rooms[%d].area", i),
				Message: fmt.Sprintf("Room Shape: %s measures roughly %.0f ft by %.0f ft, an aspect ratio beyond %.0f:1",
					room.Name, long, short, aspectRatioMax),
			})
		}
	}
	return out
}

func checkInfiltration(model *domain.BuildingModel) []domain.Warning {
	ach := model.Envelope.ACH50
	if ach == 0 {
		return nil
	}
	switch {
	case ach < ach50Low:
		return []domain.Warning{{
			Code:  "plausibility.infiltration",
			Field: "envelope.ach50",
			Message: fmt.Sprintf("Infiltration Rate: ACH50 of %s is tighter than passive-house construction (%s)",
				fmtf(ach), fmtf(ach50Low)),
		}}
	case ach > ach50High:
		return []domain.Warning{{
			Code:  "plausibility.infiltration",
			Field: "envelope.ach50",
			Message: fmt.Sprintf("Infiltration Rate: ACH50 of %s is leakier than uninsulated balloon framing (%s)",
				fmtf(ach), fmtf(ach50High)),
		}}
	}
	return nil
}

func checkOccupancy(model *domain.BuildingModel) []domain.Warning {
	var totalArea float64
	var occupants int
	for _, room := range model.Rooms {
		totalArea += room.Area
		occupants += room.Occupants
	}
	if occupants == 0 || totalArea <= 0 {
		return nil
	}
	perOccupant := totalArea / float64(occupants)
	if perOccupant < minSqFtPerOccupant {
		return []domain.Warning{{
			Code:  "plausibility.occupancy",
			Field: "rooms",
			Message: fmt.Sprintf("Occupancy Density: %d occupants in %.0f sq ft leaves %.0f sq ft per person, below the %.0f sq ft floor",
				occupants, totalArea, perOccupant, minSqFtPerOccupant),
		}}
	}
	return nil
}

func checkCeilingHeight(model *domain.BuildingModel) []domain.Warning {
	var out []domain.Warning
	for i, room := range model.Rooms {
		if room.CeilingHeight == 0 {
			continue
		}
		if room.CeilingHeight < ceilingHeightLowFt || room.CeilingHeight > ceilingHeightHighFt {
			out = append(out, domain.Warning{
				Code:  "plausibility.ceiling_height",
				Field: fmt.Sprintf("rooms[%d].ceiling_height", i),
				Message: fmt.Sprintf("Ceiling Height: %s lists a %s ft ceiling, outside the %s to %s ft range",
					room.Name, fmtf(room.CeilingHeight), fmtf(ceilingHeightLowFt), fmtf(ceilingHeightHighFt)),
			})
		}
	}
	return out
}

func fmtf(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
