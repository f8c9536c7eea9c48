// Package loadcalc computes component-based heating and cooling loads for
// a reconciled building, room by room. The engine is a pure function over
// its inputs: no I/O, no shared state, identical inputs give identical
// results.
package loadcalc

import "loadplan/internal/domain"

// Factors are the documented correction factors and rates the engine
// applies. Every factor is visible here rather than buried in formulas so
// a reviewer can audit the whole calculation from one table.
type Factors struct {
	// Indoor design setpoints in degrees F.
	IndoorHeatingTemp float64
	IndoorCoolingTemp float64

	// WallETD and CeilingETD are equivalent-temperature-difference
	// adjustments added to the cooling delta for opaque surfaces, covering
	// solar absorption and thermal mass. Roofs run far hotter than walls.
	WallETD    float64
	CeilingETD float64

	// SolarFactors are peak solar gain rates in BTU/hr per square foot of
	// glazing at SHGC 1.0, by facing. Glass gain = area x SHGC x factor.
	SolarFactors map[domain.Orientation]float64

	// Infiltration divisors convert a blower-door ACH50 reading to a
	// natural air change rate. Multi-story construction sees stronger
	// stack effect, so its divisor is lower (more natural leakage for the
	// same test number).
	InfiltrationDivisorSingle float64
	InfiltrationDivisorMulti  float64

	// Internal gain rates.
	OccupantSensibleBTUH float64
	OccupantLatentBTUH   float64
	WattsToBTUH          float64
	KitchenApplianceBTUH float64

	// HeatingInternalCredit is the fraction of internal gains credited
	// against the heating load. Partial because gains are absent at night
	// and during unoccupied hours, exactly when the heating peak occurs.
	HeatingInternalCredit float64

	// CornerUplift multiplies the exposure components (wall, ceiling,
	// window, infiltration) of rooms with two or more exterior walls.
	CornerUplift float64

	// Per-room sanity floors in BTU/hr per square foot. These sit well
	// below any realistic load; they only catch pathological rooms with
	// no measurable exposure, and engaging one is always warned.
	MinHeatingBTUHPerSqFt float64
	MinCoolingBTUHPerSqFt float64

	// Air heat factors: sensible BTU/hr per CFM per degree F, and latent
	// BTU/hr per CFM per grain of moisture difference.
	AirSensibleFactor float64
	AirLatentFactor   float64
}

// DefaultFactors returns the standard residential factor set.
func DefaultFactors() Factors {
	return Factors{
		IndoorHeatingTemp: 70.0,
		IndoorCoolingTemp: 75.0,

		WallETD:    8.0,
		CeilingETD: 25.0,

		SolarFactors: map[domain.Orientation]float64{
			domain.OrientationNorth: 25.0,
			domain.OrientationEast:  80.0,
			domain.OrientationSouth: 45.0,
			domain.OrientationWest:  80.0,
		},

		InfiltrationDivisorSingle: 20.0,
		InfiltrationDivisorMulti:  15.0,

		OccupantSensibleBTUH: 230.0,
		OccupantLatentBTUH:   200.0,
		WattsToBTUH:          3.412,
		KitchenApplianceBTUH: 1200.0,

		HeatingInternalCredit: 0.3,

		CornerUplift: 1.10,

		MinHeatingBTUHPerSqFt: 6.0,
		MinCoolingBTUHPerSqFt: 5.0,

		AirSensibleFactor: 1.1,
		AirLatentFactor:   0.68,
	}
}

// solarOrder fixes the iteration order over window facings so results are
// byte-for-byte reproducible.
var solarOrder = []domain.Orientation{
	domain.OrientationNorth,
	domain.OrientationEast,
	domain.OrientationSouth,
	domain.OrientationWest,
}

// AverageSolarFactor is used when a room's window facing is unknown:
// average across facings rather than assume the worst case.
func (f Factors) AverageSolarFactor() float64 {
	if len(f.SolarFactors) == 0 {
		return 0
	}
	sum := 0.0
	for _, o := range solarOrder {
		sum += f.SolarFactors[o]
	}
	return sum / float64(len(solarOrder))
}

// InfiltrationDivisor picks the ACH50 conversion divisor for the building.
// Commercial construction is treated like multi-story: taller volumes and
// mechanical pressure differences drive leakage the same direction.
func (f Factors) InfiltrationDivisor(buildingType domain.BuildingType, stories int) float64 {
	if stories > 1 || buildingType == domain.BuildingTypeCommercial {
		return f.InfiltrationDivisorMulti
	}
	return f.InfiltrationDivisorSingle
}
