package loadcalc

import (
	"fmt"
	"log"
	"strings"
	"time"

	"loadplan/internal/domain"
)

// Engine turns a BuildingModel plus climate design conditions into a
// SystemLoadCalculation. Construct once and share freely; Calculate holds
// no state between calls.
type Engine struct {
	factors Factors
}

// NewEngine creates an Engine with the given factor set. Most callers pass
// DefaultFactors, optionally overridden from configuration.
func NewEngine(factors Factors) *Engine {
	return &Engine{factors: factors}
}

// roomGains carries the internal-gain inputs for one room after defaults
// are applied. Defaults never write back into the model.
type roomGains struct {
	occupants int
	equipBTUH float64
}

// Calculate computes per-room component loads and building totals.
func (e *Engine) Calculate(model *domain.BuildingModel, climate domain.ClimateDesignData) (*domain.SystemLoadCalculation, error) {
	if model == nil || len(model.Rooms) == 0 {
		return nil, fmt.Errorf("loadcalc.Engine: building model has no rooms: %w", domain.ErrCalculationInput)
	}
	if climate.HeatingDesignTemp == 0 && climate.CoolingDesignTemp == 0 {
		return nil, fmt.Errorf("loadcalc.Engine: no design temperatures for %q: %w", climate.Location, domain.ErrClimateLocationUnknown)
	}

	f := e.factors
	heatingDelta := f.IndoorHeatingTemp - climate.HeatingDesignTemp
	if heatingDelta < 0 {
		heatingDelta = 0
	}
	coolingDelta := climate.CoolingDesignTemp - f.IndoorCoolingTemp
	if coolingDelta < 0 {
		coolingDelta = 0
	}
	grains := climate.DesignGrains
	if grains < 0 {
		grains = 0
	}

	divisor := f.InfiltrationDivisor(model.BuildingType, model.Stories)
	naturalACH := model.Envelope.ACH50 / divisor

	gains, warnings := e.internalGains(model.Rooms)

	result := &domain.SystemLoadCalculation{
		Location:      climate.Location,
		Climate:       climate,
		FloorAreaSqFt: model.TotalArea(),
		Stories:       model.Stories,
		Provenance:    model.Provenance,
		CalculatedAt:  time.Now().UTC(),
	}

	solarAveraged := false
	for i, room := range model.Rooms {
		breakdown, averaged, floored := e.roomLoads(room, gains[i], model, heatingDelta, coolingDelta, grains, naturalACH)
		solarAveraged = solarAveraged || averaged
		if floored != "" {
			warnings = append(warnings, domain.Warning{
				Code:    "minimum_load_floor",
				Field:   room.Name,
				Message: fmt.Sprintf("%s %s load raised to the per-square-foot floor; room has almost no exposure", room.Name, floored),
			})
		}

		result.Rooms = append(result.Rooms, breakdown)
		result.HeatingBTUH += breakdown.HeatingBTUH
		result.CoolingSensibleBTUH += breakdown.CoolingSensibleBTUH
		result.CoolingLatentBTUH += breakdown.CoolingLatentBTUH
	}
	result.CoolingBTUH = result.CoolingSensibleBTUH + result.CoolingLatentBTUH
	result.HeatingTons = result.HeatingBTUH / 12000.0
	result.CoolingTons = result.CoolingBTUH / 12000.0

	if solarAveraged {
		warnings = append(warnings, domain.Warning{
			Code:    "solar_orientation_averaged",
			Field:   "solar",
			Message: "window facing unknown for one or more rooms; solar gain averaged across facings",
		})
	}
	result.Warnings = warnings

	log.Printf("loadcalc.Engine: %s %.0f sq ft -> heating %.0f BTU/hr (%.1f tons), cooling %.0f BTU/hr (%.1f tons)",
		climate.Location, result.FloorAreaSqFt, result.HeatingBTUH, result.HeatingTons, result.CoolingBTUH, result.CoolingTons)

	return result, nil
}

// roomLoads computes the component loads for a single room. The returned
// floored string names which load ("heating", "cooling", or "heating and
// cooling") was raised to its sanity floor, empty when neither was.
func (e *Engine) roomLoads(room domain.Room, gains roomGains, model *domain.BuildingModel, heatingDelta, coolingDelta, grains, naturalACH float64) (domain.RoomLoadBreakdown, bool, string) {
	f := e.factors
	env := model.Envelope

	wallU := reciprocal(env.WallRValue)
	ceilingU := reciprocal(env.CeilingRValue)

	uplift := 1.0
	if room.IsCorner() {
		uplift = f.CornerUplift
	}

	var components []domain.ComponentLoad

	netWall := room.ExteriorWallArea() - room.WindowArea
	if netWall < 0 {
		netWall = 0
	}
	if netWall > 0 && wallU > 0 {
		components = append(components, domain.ComponentLoad{
			Component:   domain.ComponentWall,
			Area:        netWall,
			HeatingBTUH: netWall * wallU * heatingDelta * uplift,
			CoolingBTUH: netWall * wallU * (coolingDelta + f.WallETD) * uplift,
		})
	}

	// Only rooms under the roof lose through the ceiling.
	if room.FloorIndex == model.Stories && ceilingU > 0 {
		components = append(components, domain.ComponentLoad{
			Component:   domain.ComponentCeiling,
			Area:        room.Area,
			HeatingBTUH: room.Area * ceilingU * heatingDelta * uplift,
			CoolingBTUH: room.Area * ceilingU * (coolingDelta + f.CeilingETD) * uplift,
		})
	}

	if room.WindowArea > 0 && env.WindowUValue > 0 {
		components = append(components, domain.ComponentLoad{
			Component:   domain.ComponentWindow,
			Area:        room.WindowArea,
			HeatingBTUH: room.WindowArea * env.WindowUValue * heatingDelta * uplift,
			CoolingBTUH: room.WindowArea * env.WindowUValue * coolingDelta * uplift,
		})
	}

	solarGain, averaged := e.solarGain(room, env.WindowSHGC)
	if solarGain > 0 {
		components = append(components, domain.ComponentLoad{
			Component:   domain.ComponentSolar,
			Area:        room.WindowArea,
			CoolingBTUH: solarGain,
		})
	}

	volume := room.Area * room.CeilingHeight
	cfm := volume * naturalACH / 60.0
	if cfm > 0 {
		components = append(components, domain.ComponentLoad{
			Component:         domain.ComponentInfiltration,
			Area:              room.Area,
			HeatingBTUH:       f.AirSensibleFactor * cfm * heatingDelta * uplift,
			CoolingBTUH:       f.AirSensibleFactor * cfm * coolingDelta * uplift,
			CoolingLatentBTUH: f.AirLatentFactor * cfm * grains,
		})
	}

	internalSensible := float64(gains.occupants)*f.OccupantSensibleBTUH + gains.equipBTUH
	internalLatent := float64(gains.occupants) * f.OccupantLatentBTUH
	if internalSensible > 0 || internalLatent > 0 {
		components = append(components, domain.ComponentLoad{
			Component:         domain.ComponentInternal,
			HeatingBTUH:       -f.HeatingInternalCredit * internalSensible,
			CoolingBTUH:       internalSensible,
			CoolingLatentBTUH: internalLatent,
		})
	}

	breakdown := domain.RoomLoadBreakdown{
		RoomName:   room.Name,
		FloorIndex: room.FloorIndex,
		AreaSqFt:   room.Area,
		Components: components,
	}
	for _, c := range components {
		breakdown.HeatingBTUH += c.HeatingBTUH
		breakdown.CoolingSensibleBTUH += c.CoolingBTUH
		breakdown.CoolingLatentBTUH += c.CoolingLatentBTUH
	}
	if breakdown.HeatingBTUH < 0 {
		breakdown.HeatingBTUH = 0
	}

	floored := ""
	if floor := f.MinHeatingBTUHPerSqFt * room.Area; breakdown.HeatingBTUH < floor {
		breakdown.HeatingBTUH = floor
		floored = "heating"
	}
	if floor := f.MinCoolingBTUHPerSqFt * room.Area; breakdown.CoolingSensibleBTUH+breakdown.CoolingLatentBTUH < floor {
		breakdown.CoolingSensibleBTUH = floor - breakdown.CoolingLatentBTUH
		if floored != "" {
			floored = "heating and cooling"
		} else {
			floored = "cooling"
		}
	}
	breakdown.CoolingBTUH = breakdown.CoolingSensibleBTUH + breakdown.CoolingLatentBTUH

	return breakdown, averaged, floored
}

// solarGain computes a room's glass solar gain. Facing-specific areas use
// their facing's factor; windows with no recorded facing use the average,
// which the caller reports once per calculation.
func (e *Engine) solarGain(room domain.Room, shgc float64) (float64, bool) {
	if shgc <= 0 {
		return 0, false
	}
	f := e.factors

	if len(room.WindowsByOrientation) > 0 {
		gain := 0.0
		for _, o := range solarOrder {
			area := room.WindowsByOrientation[o]
			if area <= 0 {
				continue
			}
			gain += area * shgc * f.SolarFactors[o]
		}
		return gain, false
	}

	if room.WindowArea <= 0 {
		return 0, false
	}
	return room.WindowArea * shgc * f.AverageSolarFactor(), true
}

// internalGains resolves occupancy and equipment inputs. When the drawings
// carry no occupancy at all, bedrooms+1 people are assumed and placed in
// the main gathering room; when no equipment shows anywhere, kitchens get
// the standard appliance allowance.
func (e *Engine) internalGains(rooms []domain.Room) ([]roomGains, []domain.Warning) {
	f := e.factors
	gains := make([]roomGains, len(rooms))
	var warnings []domain.Warning

	anyOccupants := false
	anyEquipment := false
	for i, r := range rooms {
		if r.Occupants > 0 {
			anyOccupants = true
			gains[i].occupants = r.Occupants
		}
		if r.EquipmentWatts > 0 {
			anyEquipment = true
			gains[i].equipBTUH = r.EquipmentWatts * f.WattsToBTUH
		}
	}

	if !anyOccupants {
		bedrooms := 0
		for _, r := range rooms {
			if strings.Contains(strings.ToUpper(r.Name), "BED") {
				bedrooms++
			}
		}
		occupants := bedrooms + 1
		if occupants < 2 {
			occupants = 2
		}

		target := gatheringRoom(rooms)
		gains[target].occupants = occupants
		warnings = append(warnings, domain.Warning{
			Code:    "occupants_defaulted",
			Field:   rooms[target].Name,
			Message: fmt.Sprintf("no occupancy on drawings; %d occupants assumed in %s", occupants, rooms[target].Name),
		})
	}

	if !anyEquipment {
		kitchens := 0
		for i, r := range rooms {
			if strings.Contains(strings.ToUpper(r.Name), "KITCHEN") {
				gains[i].equipBTUH = f.KitchenApplianceBTUH
				kitchens++
			}
		}
		if kitchens > 0 {
			warnings = append(warnings, domain.Warning{
				Code:    "equipment_defaulted",
				Field:   "equipment",
				Message: fmt.Sprintf("no equipment loads on drawings; standard appliance allowance applied to %d kitchen(s)", kitchens),
			})
		}
	}

	return gains, warnings
}

// gatheringRoom returns the index of the largest living space, falling
// back to the largest room of any kind.
func gatheringRoom(rooms []domain.Room) int {
	best := -1
	for i, r := range rooms {
		name := strings.ToUpper(r.Name)
		if strings.Contains(name, "LIVING") || strings.Contains(name, "FAMILY") || strings.Contains(name, "GREAT") {
			if best < 0 || r.Area > rooms[best].Area {
				best = i
			}
		}
	}
	if best >= 0 {
		return best
	}
	for i, r := range rooms {
		if best < 0 || r.Area > rooms[best].Area {
			best = i
		}
	}
	return best
}

func reciprocal(r float64) float64 {
	if r <= 0 {
		return 0
	}
	return 1.0 / r
}
