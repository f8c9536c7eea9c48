// Package reconcile merges the per-page extraction candidates into the
// single BuildingModel the load engine consumes. Reconciliation is a pure
// function over the candidate list: candidates are read, never mutated,
// and identical inputs always produce the identical model.
package reconcile

import (
	"fmt"
	"log"
	"math"
	"sort"
	"strings"

	"loadplan/internal/domain"
	"loadplan/internal/geometry"
)

const (
	// nearTieEpsilon is the absolute confidence band within which two
	// sources count as tied and precedence decides instead.
	nearTieEpsilon = 0.10

	// Hard sanity gates. Below them the document is rejected rather than
	// calculated; the engine never substitutes synthetic rooms or areas.
	minPlausibleAreaFt2 = 250.0
	minRoomsPerFloor    = 2

	// areaMatchTolerance is the relative area difference under which two
	// observations may describe the same physical room.
	areaMatchTolerance = 0.35

	// defaultFieldConfidence weights a field whose extractor did not
	// score it individually.
	defaultFieldConfidence = 0.60

	defaultCeilingHeightFt = 8.0
)

// Source precedence for near-tied fields. Geometry measures the drawing;
// vision reads it the way a person does. Each wins its own territory.
var (
	geometricRank = map[domain.CandidateSource]int{
		domain.SourceGeometry: 3,
		domain.SourceText:     2,
		domain.SourceVision:   1,
	}
	semanticRank = map[domain.CandidateSource]int{
		domain.SourceVision:   3,
		domain.SourceText:     2,
		domain.SourceGeometry: 1,
	}
)

// Code-minimum assumptions for envelope values no source observed. Every
// applied default lands in provenance and a warning; rooms and areas are
// gated, never defaulted.
var envelopeDefaults = domain.BuildingEnvelope{
	WallRValue:    13,
	CeilingRValue: 30,
	FloorRValue:   19,
	WindowUValue:  0.35,
	WindowSHGC:    0.30,
	ACH50:         7.0,
	Foundation:    domain.FoundationSlab,
}

// Engine reconciles extraction candidates into one BuildingModel.
type Engine struct {
	epsilon          float64
	minTotalArea     float64
	minRoomsPerFloor int
}

// NewEngine creates an Engine with the standard gates and tie epsilon.
func NewEngine() *Engine {
	return &Engine{
		epsilon:          nearTieEpsilon,
		minTotalArea:     minPlausibleAreaFt2,
		minRoomsPerFloor: minRoomsPerFloor,
	}
}

// Reconcile merges all candidates for a document. It returns the model,
// the non-fatal warnings accumulated while merging, or a typed error when
// a hard gate rejects the document.
func (e *Engine) Reconcile(candidates []domain.Candidate) (*domain.BuildingModel, []domain.Warning, error) {
	if len(candidates) == 0 {
		return nil, nil, fmt.Errorf("reconcile.Engine: no extraction candidates: %w", domain.ErrReconciliationFailed)
	}

	ordered := orderCandidates(candidates)

	var slots []*roomSlot
	sourcesSeen := map[domain.CandidateSource]bool{}
	for _, c := range ordered {
		for _, obs := range c.Fragment.Rooms {
			sourcesSeen[c.Source] = true
			if slot := findSlot(slots, floorOf(c), obs); slot != nil {
				mergeObservation(slot, c, obs, e.epsilon)
			} else {
				slots = append(slots, newSlot(c, obs))
			}
		}
	}
	if len(slots) == 0 {
		return nil, nil, fmt.Errorf("reconcile.Engine: no candidate produced any rooms: %w", domain.ErrInsufficientRoomData)
	}

	floors := map[int][]*roomSlot{}
	for _, s := range slots {
		floors[s.floor] = append(floors[s.floor], s)
	}
	floorIdxs := make([]int, 0, len(floors))
	for f := range floors {
		floorIdxs = append(floorIdxs, f)
	}
	sort.Ints(floorIdxs)

	for _, f := range floorIdxs {
		if len(floors[f]) < e.minRoomsPerFloor {
			return nil, nil, fmt.Errorf("reconcile.Engine: floor %d has %d room(s), need at least %d: %w",
				f, len(floors[f]), e.minRoomsPerFloor, domain.ErrInsufficientRoomData)
		}
	}

	prov := make(map[string]domain.FieldProvenance)
	var warnings []domain.Warning

	rooms := e.assembleRooms(floors, floorIdxs, prov, &warnings)

	env := e.mergeEnvelope(ordered, prov)
	applyEnvelopeDefaults(&env, prov, &warnings)

	buildingType := mergeBuildingType(ordered, prov)
	stories := resolveStories(ordered, floorIdxs[len(floorIdxs)-1], prov, &warnings)

	model := &domain.BuildingModel{
		Rooms:        rooms,
		Envelope:     env,
		BuildingType: buildingType,
		Stories:      stories,
		Provenance:   prov,
	}

	if total := model.TotalArea(); total < e.minTotalArea {
		return nil, nil, fmt.Errorf("reconcile.Engine: total floor area %.0f sq ft is implausibly small for a %s building: %w",
			total, buildingType, domain.ErrImplausibleBuilding)
	}

	if len(sourcesSeen) == 1 {
		for src := range sourcesSeen {
			warnings = append(warnings, domain.Warning{
				Code:    "single_source_rooms",
				Field:   "rooms",
				Message: fmt.Sprintf("rooms were reconciled from the %s path alone; no cross-check available", src),
			})
		}
	}

	log.Printf("reconcile.Engine: %d candidates -> %d rooms on %d floor(s), %.0f sq ft",
		len(candidates), len(rooms), len(floorIdxs), model.TotalArea())

	return model, warnings, nil
}

// fieldMeta tracks the winning source and confidence for one field while
// candidates merge in.
type fieldMeta struct {
	src  domain.CandidateSource
	conf float64
	note string
}

// roomSlot accumulates every observation of what is believed to be one
// physical room.
type roomSlot struct {
	floor    int
	outline  geometry.Polygon
	centroid geometry.Point

	name       string
	nameMeta   fieldMeta
	area       float64
	areaMeta   fieldMeta
	perimeter  float64
	perimMeta  fieldMeta
	ceiling    float64
	ceilMeta   fieldMeta
	extWalls   int
	wallsMeta  fieldMeta
	windowArea float64
	winMeta    fieldMeta
	windows    map[domain.Orientation]float64
	occupants  int
	occMeta    fieldMeta
	equipWatts float64
	equipMeta  fieldMeta
}

// orderCandidates fixes the merge order: floor-major, then geometry before
// text before vision, then page order. The per-field decisions are rank-
// aware so the order does not change outcomes, only makes them stable.
func orderCandidates(candidates []domain.Candidate) []domain.Candidate {
	ordered := make([]domain.Candidate, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if floorOf(a) != floorOf(b) {
			return floorOf(a) < floorOf(b)
		}
		if geometricRank[a.Source] != geometricRank[b.Source] {
			return geometricRank[a.Source] > geometricRank[b.Source]
		}
		return a.PageIndex < b.PageIndex
	})
	return ordered
}

func floorOf(c domain.Candidate) int {
	if c.FloorIndex < 1 {
		return 1
	}
	return c.FloorIndex
}

// findSlot locates the slot an observation most plausibly describes.
// Containment of the observation's anchor point in a slot's outline is
// decisive; otherwise a shared name with a compatible area. A name alone
// is never enough: same-floor namesakes must also agree on size.
func findSlot(slots []*roomSlot, floor int, obs domain.RoomObservation) *roomSlot {
	var named *roomSlot
	for _, s := range slots {
		if s.floor != floor {
			continue
		}
		if len(s.outline) >= 3 && obs.Centroid != (geometry.Point{}) && s.outline.Contains(obs.Centroid) {
			return s
		}
		if named == nil && nameEqual(s.name, obs.Name) && areasCompatible(s.area, obs.Area) {
			named = s
		}
	}
	return named
}

func newSlot(c domain.Candidate, obs domain.RoomObservation) *roomSlot {
	s := &roomSlot{
		floor:      floorOf(c),
		outline:    obs.Outline,
		centroid:   obs.Centroid,
		name:       cleanName(obs.Name),
		area:       obs.Area,
		perimeter:  obs.Perimeter,
		ceiling:    obs.CeilingHeight,
		extWalls:   obs.ExteriorWalls,
		windowArea: obs.WindowArea,
		occupants:  obs.Occupants,
		equipWatts: obs.EquipmentWatts,
	}
	if len(obs.WindowsByOrientation) > 0 {
		s.windows = obs.WindowsByOrientation
	}
	s.nameMeta = obsMeta(c, obs, "name")
	s.areaMeta = obsMeta(c, obs, "area")
	s.perimMeta = obsMeta(c, obs, "perimeter")
	s.ceilMeta = obsMeta(c, obs, "ceiling_height")
	s.wallsMeta = obsMeta(c, obs, "exterior_walls")
	s.winMeta = obsMeta(c, obs, "window_area")
	s.occMeta = obsMeta(c, obs, "occupants")
	s.equipMeta = obsMeta(c, obs, "equipment_watts")
	return s
}

// mergeObservation folds a second observation of the same room into its
// slot, field by field. Geometric fields resolve geometry-first, semantic
// fields vision-first.
func mergeObservation(s *roomSlot, c domain.Candidate, obs domain.RoomObservation, eps float64) {
	mergeString(&s.name, &s.nameMeta, cleanName(obs.Name), obsMeta(c, obs, "name"), semanticRank, eps)
	mergeFloat(&s.area, &s.areaMeta, obs.Area, obsMeta(c, obs, "area"), geometricRank, 0.10, eps)
	mergeFloat(&s.perimeter, &s.perimMeta, obs.Perimeter, obsMeta(c, obs, "perimeter"), geometricRank, 0.10, eps)
	mergeFloat(&s.ceiling, &s.ceilMeta, obs.CeilingHeight, obsMeta(c, obs, "ceiling_height"), semanticRank, 0.05, eps)
	mergeInt(&s.extWalls, &s.wallsMeta, obs.ExteriorWalls, -1, obsMeta(c, obs, "exterior_walls"), geometricRank, eps)
	mergeFloat(&s.windowArea, &s.winMeta, obs.WindowArea, obsMeta(c, obs, "window_area"), semanticRank, 0.15, eps)
	mergeInt(&s.occupants, &s.occMeta, obs.Occupants, 0, obsMeta(c, obs, "occupants"), semanticRank, eps)
	mergeFloat(&s.equipWatts, &s.equipMeta, obs.EquipmentWatts, obsMeta(c, obs, "equipment_watts"), semanticRank, 0.15, eps)

	// Only the vision path reports per-orientation windows; first map wins.
	if len(s.windows) == 0 && len(obs.WindowsByOrientation) > 0 {
		s.windows = obs.WindowsByOrientation
	}
	if len(s.outline) < 3 && len(obs.Outline) >= 3 {
		s.outline = obs.Outline
		s.centroid = obs.Centroid
	}
}

func obsMeta(c domain.Candidate, obs domain.RoomObservation, field string) fieldMeta {
	fc, ok := obs.FieldConfidence[field]
	if !ok {
		fc = defaultFieldConfidence
	}
	return fieldMeta{src: c.Source, conf: c.Confidence * fc}
}

// assembleRooms finalizes slots into load-ready rooms: synthesized labels
// for unlabeled loops, square-perimeter assumption when no source measured
// one, ceiling and exposure defaults, and per-field provenance.
func (e *Engine) assembleRooms(floors map[int][]*roomSlot, floorIdxs []int, prov map[string]domain.FieldProvenance, warnings *[]domain.Warning) []domain.Room {
	var rooms []domain.Room
	defaultedCeilings := 0
	defaultedWalls := 0

	for _, f := range floorIdxs {
		for n, s := range floors[f] {
			if s.name == "" {
				s.name = fmt.Sprintf("ROOM %d", n+1)
				s.nameMeta = fieldMeta{note: "unlabeled on drawing"}
			}
			if s.perimeter == 0 && s.area > 0 {
				s.perimeter = 4 * math.Sqrt(s.area)
				s.perimMeta = fieldMeta{note: "assumed square from area"}
			}
			if s.ceiling == 0 {
				s.ceiling = defaultCeilingHeightFt
				s.ceilMeta = fieldMeta{note: "defaulted"}
				defaultedCeilings++
			}
			if s.extWalls < 0 {
				s.extWalls = 1
				s.wallsMeta = fieldMeta{note: "defaulted"}
				defaultedWalls++
			}

			writeRoomProvenance(prov, len(rooms), s)
			rooms = append(rooms, domain.Room{
				Name:                 s.name,
				FloorIndex:           f,
				Area:                 s.area,
				Perimeter:            s.perimeter,
				CeilingHeight:        s.ceiling,
				ExteriorWalls:        s.extWalls,
				WindowArea:           s.windowArea,
				WindowsByOrientation: s.windows,
				Occupants:            s.occupants,
				EquipmentWatts:       s.equipWatts,
			})
		}
	}

	if defaultedCeilings > 0 {
		*warnings = append(*warnings, domain.Warning{
			Code:    "ceiling_height_defaulted",
			Field:   "rooms",
			Message: fmt.Sprintf("%d room(s) had no ceiling callout; %.0f ft assumed", defaultedCeilings, defaultCeilingHeightFt),
		})
	}
	if defaultedWalls > 0 {
		*warnings = append(*warnings, domain.Warning{
			Code:    "exterior_walls_defaulted",
			Field:   "rooms",
			Message: fmt.Sprintf("%d room(s) had no readable exposure; one exterior wall assumed", defaultedWalls),
		})
	}

	return rooms
}

func writeRoomProvenance(prov map[string]domain.FieldProvenance, idx int, s *roomSlot) {
	set := func(field string, m fieldMeta) {
		prov[fmt.Sprintf("rooms[%d].%s", idx, field)] = domain.FieldProvenance{
			Source:     m.src,
			Confidence: m.conf,
			Note:       m.note,
		}
	}
	set("name", s.nameMeta)
	if s.area > 0 {
		set("area", s.areaMeta)
	}
	if s.perimeter > 0 {
		set("perimeter", s.perimMeta)
	}
	set("ceiling_height", s.ceilMeta)
	set("exterior_walls", s.wallsMeta)
	if s.windowArea > 0 {
		set("window_area", s.winMeta)
	}
	if s.occupants > 0 {
		set("occupants", s.occMeta)
	}
	if s.equipWatts > 0 {
		set("equipment_watts", s.equipMeta)
	}
}

// mergeEnvelope folds every candidate's envelope hints together. Envelope
// facts come from notes and schedules, so the semantic precedence applies
// throughout.
func (e *Engine) mergeEnvelope(ordered []domain.Candidate, prov map[string]domain.FieldProvenance) domain.BuildingEnvelope {
	var env domain.BuildingEnvelope
	var metas struct {
		wallR, ceilR, floorR, windowU, shgc, ach50, foundation, orientation fieldMeta
	}

	for _, c := range ordered {
		m := fieldMeta{src: c.Source, conf: c.Confidence}
		hints := c.Fragment.Envelope
		mergeFloat(&env.WallRValue, &metas.wallR, hints.WallRValue, m, semanticRank, 0.05, e.epsilon)
		mergeFloat(&env.CeilingRValue, &metas.ceilR, hints.CeilingRValue, m, semanticRank, 0.05, e.epsilon)
		mergeFloat(&env.FloorRValue, &metas.floorR, hints.FloorRValue, m, semanticRank, 0.05, e.epsilon)
		mergeFloat(&env.WindowUValue, &metas.windowU, hints.WindowUValue, m, semanticRank, 0.05, e.epsilon)
		mergeFloat(&env.WindowSHGC, &metas.shgc, hints.WindowSHGC, m, semanticRank, 0.05, e.epsilon)
		mergeFloat(&env.ACH50, &metas.ach50, hints.ACH50, m, semanticRank, 0.10, e.epsilon)

		foundation := string(hints.Foundation)
		if hints.Foundation == domain.FoundationUnknown {
			foundation = ""
		}
		cur := string(env.Foundation)
		mergeString(&cur, &metas.foundation, foundation, m, semanticRank, e.epsilon)
		env.Foundation = domain.FoundationType(cur)

		orientation := string(c.Fragment.Orientation)
		if c.Fragment.Orientation == domain.OrientationUnknown {
			orientation = ""
		}
		curO := string(env.Orientation)
		mergeString(&curO, &metas.orientation, orientation, m, semanticRank, e.epsilon)
		env.Orientation = domain.Orientation(curO)
	}

	writeEnvMeta := func(field string, known bool, m fieldMeta) {
		if !known {
			return
		}
		prov["envelope."+field] = domain.FieldProvenance{Source: m.src, Confidence: m.conf, Note: m.note}
	}
	writeEnvMeta("wall_r_value", env.WallRValue != 0, metas.wallR)
	writeEnvMeta("ceiling_r_value", env.CeilingRValue != 0, metas.ceilR)
	writeEnvMeta("floor_r_value", env.FloorRValue != 0, metas.floorR)
	writeEnvMeta("window_u_value", env.WindowUValue != 0, metas.windowU)
	writeEnvMeta("window_shgc", env.WindowSHGC != 0, metas.shgc)
	writeEnvMeta("ach50", env.ACH50 != 0, metas.ach50)
	writeEnvMeta("foundation", env.Foundation != "", metas.foundation)
	writeEnvMeta("orientation", env.Orientation != "", metas.orientation)

	return env
}

// applyEnvelopeDefaults fills envelope gaps with code-minimum assumptions,
// recording each one.
func applyEnvelopeDefaults(env *domain.BuildingEnvelope, prov map[string]domain.FieldProvenance, warnings *[]domain.Warning) {
	var defaulted []string
	def := func(field string, val *float64, fallback float64) {
		if *val != 0 {
			return
		}
		*val = fallback
		prov["envelope."+field] = domain.FieldProvenance{Note: "code-minimum default"}
		defaulted = append(defaulted, field)
	}
	def("wall_r_value", &env.WallRValue, envelopeDefaults.WallRValue)
	def("ceiling_r_value", &env.CeilingRValue, envelopeDefaults.CeilingRValue)
	def("floor_r_value", &env.FloorRValue, envelopeDefaults.FloorRValue)
	def("window_u_value", &env.WindowUValue, envelopeDefaults.WindowUValue)
	def("window_shgc", &env.WindowSHGC, envelopeDefaults.WindowSHGC)
	def("ach50", &env.ACH50, envelopeDefaults.ACH50)
	if env.Foundation == "" {
		env.Foundation = envelopeDefaults.Foundation
		prov["envelope.foundation"] = domain.FieldProvenance{Note: "code-minimum default"}
		defaulted = append(defaulted, "foundation")
	}

	if len(defaulted) > 0 {
		*warnings = append(*warnings, domain.Warning{
			Code:    "envelope_defaulted",
			Field:   "envelope",
			Message: fmt.Sprintf("no source observed %s; code-minimum values assumed", strings.Join(defaulted, ", ")),
		})
	}
}

func mergeBuildingType(ordered []domain.Candidate, prov map[string]domain.FieldProvenance) domain.BuildingType {
	var val string
	var meta fieldMeta
	for _, c := range ordered {
		bt := string(c.Fragment.BuildingType)
		if c.Fragment.BuildingType == domain.BuildingTypeUnknown {
			bt = ""
		}
		mergeString(&val, &meta, bt, fieldMeta{src: c.Source, conf: c.Confidence}, semanticRank, nearTieEpsilon)
	}
	if val == "" {
		prov["building.building_type"] = domain.FieldProvenance{Note: "assumed residential"}
		return domain.BuildingTypeResidential
	}
	prov["building.building_type"] = domain.FieldProvenance{Source: meta.src, Confidence: meta.conf, Note: meta.note}
	return domain.BuildingType(val)
}

// resolveStories trusts the classified floor plan pages over printed story
// claims; a mismatch is flagged, not reconciled away.
func resolveStories(ordered []domain.Candidate, floorCount int, prov map[string]domain.FieldProvenance, warnings *[]domain.Warning) int {
	claimed := 0
	claimConf := 0.0
	for _, c := range ordered {
		if c.Fragment.Stories > 0 && c.Confidence > claimConf {
			claimed = c.Fragment.Stories
			claimConf = c.Confidence
		}
	}

	if claimed > 0 && claimed != floorCount {
		*warnings = append(*warnings, domain.Warning{
			Code:    "stories_mismatch",
			Field:   "building.stories",
			Message: fmt.Sprintf("notes claim %d stories but %d floor plan page(s) were reconciled", claimed, floorCount),
		})
	}
	prov["building.stories"] = domain.FieldProvenance{
		Note: fmt.Sprintf("from %d classified floor plan page(s)", floorCount),
	}
	return floorCount
}

// mergeFloat merges one numeric field. Agreement within relTol boosts the
// held confidence; an unknown side yields to the known one; disagreement
// goes to the clearly more confident source, with precedence rank breaking
// near-ties. A value switched in on disagreement keeps 80% of its
// confidence; one held through disagreement keeps 60%.
func mergeFloat(pVal *float64, pMeta *fieldMeta, sVal float64, sMeta fieldMeta, ranks map[domain.CandidateSource]int, relTol, eps float64) {
	if sVal == 0 {
		return
	}
	if *pVal == 0 {
		*pVal = sVal
		*pMeta = sMeta
		return
	}
	if floatsAgree(*pVal, sVal, relTol) {
		pMeta.conf = boost(pMeta.conf)
		pMeta.note = "agreement"
		return
	}
	if pickSecondary(*pMeta, sMeta, ranks, eps) {
		*pVal = sVal
		*pMeta = sMeta
		pMeta.conf *= 0.8
	} else {
		pMeta.conf *= 0.6
	}
	pMeta.note = "contested"
}

// mergeInt follows mergeFloat with exact agreement and a caller-chosen
// unknown sentinel (-1 for wall counts, 0 elsewhere).
func mergeInt(pVal *int, pMeta *fieldMeta, sVal, unknown int, sMeta fieldMeta, ranks map[domain.CandidateSource]int, eps float64) {
	if sVal == unknown {
		return
	}
	if *pVal == unknown {
		*pVal = sVal
		*pMeta = sMeta
		return
	}
	if *pVal == sVal {
		pMeta.conf = boost(pMeta.conf)
		pMeta.note = "agreement"
		return
	}
	if pickSecondary(*pMeta, sMeta, ranks, eps) {
		*pVal = sVal
		*pMeta = sMeta
		pMeta.conf *= 0.8
	} else {
		pMeta.conf *= 0.6
	}
	pMeta.note = "contested"
}

func mergeString(pVal *string, pMeta *fieldMeta, sVal string, sMeta fieldMeta, ranks map[domain.CandidateSource]int, eps float64) {
	if sVal == "" {
		return
	}
	if *pVal == "" {
		*pVal = sVal
		*pMeta = sMeta
		return
	}
	if strings.EqualFold(*pVal, sVal) {
		pMeta.conf = boost(pMeta.conf)
		pMeta.note = "agreement"
		return
	}
	if pickSecondary(*pMeta, sMeta, ranks, eps) {
		*pVal = sVal
		*pMeta = sMeta
		pMeta.conf *= 0.8
	} else {
		pMeta.conf *= 0.6
	}
	pMeta.note = "contested"
}

// pickSecondary decides whether the incoming source displaces the holder:
// within epsilon the precedence rank decides, outside it raw confidence.
func pickSecondary(p, s fieldMeta, ranks map[domain.CandidateSource]int, eps float64) bool {
	if math.Abs(p.conf-s.conf) <= eps {
		return ranks[s.src] > ranks[p.src]
	}
	return s.conf > p.conf
}

// boost applies the agreement bonus: a second source landing on the same
// value is worth a fifth of the remaining headroom.
func boost(conf float64) float64 {
	b := conf + (1.0-conf)*0.2
	if b > 1.0 {
		b = 1.0
	}
	return b
}

func floatsAgree(a, b, relTol float64) bool {
	max := math.Max(math.Abs(a), math.Abs(b))
	if max == 0 {
		return true
	}
	return math.Abs(a-b) <= relTol*max
}

func areasCompatible(a, b float64) bool {
	if a <= 0 || b <= 0 {
		return false
	}
	return floatsAgree(a, b, areaMatchTolerance)
}

func nameEqual(a, b string) bool {
	a = cleanName(a)
	b = cleanName(b)
	return a != "" && b != "" && strings.EqualFold(a, b)
}

func cleanName(s string) string {
	return strings.Join(strings.Fields(strings.TrimSpace(s)), " ")
}
