package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"loadplan/internal/geometry"
)

// TextRun is a string drawn on a page at a known position in PDF user space.
type TextRun struct {
	Text string         `json:"text"`
	At   geometry.Point `json:"at"`
}

// PageImage is an embedded raster image pulled from a page.
type PageImage struct {
	Format string `json:"format"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	Data   []byte `json:"-"`
}

// PageDigest is the per-page summary the pipeline works from: page
// dimensions, vector primitives, positioned text, raster availability and
// the classification verdict. Built once during classification and treated
// as read-only afterwards.
type PageDigest struct {
	PageIndex  int             `json:"page_index"`
	Width      float64         `json:"width"`
	Height     float64         `json:"height"`
	Text       string          `json:"text"`
	TextSource TextSource      `json:"text_source"`
	Runs       []TextRun       `json:"runs,omitempty"`
	Lines      []geometry.Line `json:"lines,omitempty"`
	Rects      []geometry.BBox `json:"rects,omitempty"`
	Images     []PageImage     `json:"images,omitempty"`

	Label      PageLabel `json:"label"`
	FloorIndex int       `json:"floor_index"` // 1-based, 0 when not a floor plan
	PlanScore  float64   `json:"plan_score"`
	SheetTitle string    `json:"sheet_title,omitempty"`
}

// HasVector reports whether the page carries enough vector geometry to
// attempt geometric room detection.
func (d *PageDigest) HasVector() bool {
	return len(d.Lines)+len(d.Rects)*4 >= 8
}

// HasRaster reports whether the page carries an embedded raster image.
func (d *PageDigest) HasRaster() bool {
	return len(d.Images) > 0
}

// Scale maps drawing units to real-world feet for one page.
type Scale struct {
	FeetPerUnit float64     `json:"feet_per_unit"`
	Method      ScaleMethod `json:"method"`
	Confidence  float64     `json:"confidence"`

	// Conflicted marks a scale whose printed notation disagreed with the
	// measured dimension annotations; FeetPerUnit carries the measured
	// value.
	Conflicted bool `json:"conflicted,omitempty"`
}

// ToFeet converts a drawing-unit length to feet.
func (s Scale) ToFeet(units float64) float64 {
	return units * s.FeetPerUnit
}

// ToSquareFeet converts a drawing-unit area to square feet.
func (s Scale) ToSquareFeet(units float64) float64 {
	return units * s.FeetPerUnit * s.FeetPerUnit
}

// RoomObservation is one extraction path's view of a single room. Zero
// values mean unknown except ExteriorWalls, where unknown is -1 because
// zero exterior walls is a valid observation for an interior room.
type RoomObservation struct {
	Name                 string                  `json:"name"`
	Area                 float64                 `json:"area_sqft"`
	Perimeter            float64                 `json:"perimeter_ft"`
	CeilingHeight        float64                 `json:"ceiling_height_ft"`
	ExteriorWalls        int                     `json:"exterior_walls"`
	WindowArea           float64                 `json:"window_area_sqft"`
	WindowsByOrientation map[Orientation]float64 `json:"windows_by_orientation,omitempty"`
	Occupants            int                     `json:"occupants"`
	EquipmentWatts       float64                 `json:"equipment_watts"`
	Centroid             geometry.Point          `json:"centroid"`
	Outline              geometry.Polygon        `json:"outline,omitempty"`
	FieldConfidence      map[string]float64      `json:"field_confidence,omitempty"`
}

// EnvelopeHints are construction characteristics one extraction path was
// able to read off the drawings. Zero values mean unknown.
type EnvelopeHints struct {
	WallRValue    float64        `json:"wall_r_value"`
	CeilingRValue float64        `json:"ceiling_r_value"`
	FloorRValue   float64        `json:"floor_r_value"`
	WindowUValue  float64        `json:"window_u_value"`
	WindowSHGC    float64        `json:"window_shgc"`
	ACH50         float64        `json:"ach50"`
	Foundation    FoundationType `json:"foundation,omitempty"`
}

// Fragment is the partial building view contributed by one extraction
// candidate: rooms, envelope hints and whatever whole-building facts the
// path could observe.
type Fragment struct {
	Rooms        []RoomObservation `json:"rooms,omitempty"`
	Envelope     EnvelopeHints     `json:"envelope"`
	Stories      int               `json:"stories"`
	BuildingType BuildingType      `json:"building_type,omitempty"`
	Orientation  Orientation       `json:"orientation,omitempty"`
}

// Candidate is one extraction path's result for one page, scored with the
// path's own confidence. Candidates are immutable once produced;
// reconciliation reads them and never writes back.
type Candidate struct {
	Source     CandidateSource `json:"source"`
	PageIndex  int             `json:"page_index"`
	FloorIndex int             `json:"floor_index"`
	Confidence float64         `json:"confidence"`
	Fragment   Fragment        `json:"fragment"`
	Elapsed    time.Duration   `json:"elapsed_ns"`
}

// FieldProvenance records which extraction path supplied a reconciled
// field and at what confidence.
type FieldProvenance struct {
	Source     CandidateSource `json:"source"`
	Confidence float64         `json:"confidence"`
	Note       string          `json:"note,omitempty"`
}

// Room is a reconciled, load-ready room.
type Room struct {
	Name                 string                  `json:"name"`
	FloorIndex           int                     `json:"floor_index"`
	Area                 float64                 `json:"area_sqft"`
	Perimeter            float64                 `json:"perimeter_ft"`
	CeilingHeight        float64                 `json:"ceiling_height_ft"`
	ExteriorWalls        int                     `json:"exterior_walls"`
	WindowArea           float64                 `json:"window_area_sqft"`
	WindowsByOrientation map[Orientation]float64 `json:"windows_by_orientation,omitempty"`
	Occupants            int                     `json:"occupants"`
	EquipmentWatts       float64                 `json:"equipment_watts"`
}

// IsCorner reports whether the room has two or more exposed walls.
func (r *Room) IsCorner() bool {
	return r.ExteriorWalls >= 2
}

// ExteriorWallArea returns the gross exposed wall area in square feet,
// assuming exposed walls split the perimeter evenly across four sides.
func (r *Room) ExteriorWallArea() float64 {
	if r.ExteriorWalls <= 0 || r.Perimeter <= 0 || r.CeilingHeight <= 0 {
		return 0
	}
	walls := r.ExteriorWalls
	if walls > 4 {
		walls = 4
	}
	return r.Perimeter / 4 * float64(walls) * r.CeilingHeight
}

// BuildingEnvelope holds the construction characteristics shared by every
// room: insulation R-values, window performance, airtightness, foundation
// and which way the building faces.
type BuildingEnvelope struct {
	WallRValue    float64        `json:"wall_r_value"`
	CeilingRValue float64        `json:"ceiling_r_value"`
	FloorRValue   float64        `json:"floor_r_value"`
	WindowUValue  float64        `json:"window_u_value"`
	WindowSHGC    float64        `json:"window_shgc"`
	ACH50         float64        `json:"ach50"`
	Foundation    FoundationType `json:"foundation"`
	Orientation   Orientation    `json:"orientation"`
}

// BuildingModel is the single reconciled description of the building that
// the load engine consumes.
type BuildingModel struct {
	Rooms        []Room                     `json:"rooms"`
	Envelope     BuildingEnvelope           `json:"envelope"`
	BuildingType BuildingType               `json:"building_type"`
	Stories      int                        `json:"stories"`
	Provenance   map[string]FieldProvenance `json:"provenance,omitempty"`
}

// TotalArea returns the conditioned floor area in square feet.
func (m *BuildingModel) TotalArea() float64 {
	var sum float64
	for _, r := range m.Rooms {
		sum += r.Area
	}
	return sum
}

// RoomsOnFloor returns the rooms with the given 1-based floor index.
func (m *BuildingModel) RoomsOnFloor(floor int) []Room {
	var out []Room
	for _, r := range m.Rooms {
		if r.FloorIndex == floor {
			out = append(out, r)
		}
	}
	return out
}

// ClimateDesignData holds the outdoor design conditions for a location.
type ClimateDesignData struct {
	Location          string  `json:"location"`
	HeatingDesignTemp float64 `json:"heating_design_temp_f"`
	CoolingDesignTemp float64 `json:"cooling_design_temp_f"`
	HeatingDegreeDays float64 `json:"heating_degree_days"`
	CoolingDegreeDays float64 `json:"cooling_degree_days"`
	ClimateZone       string  `json:"climate_zone"`
	DesignGrains      float64 `json:"design_grains"`
}

// ComponentLoad is one component's contribution to a room load, in BTU/hr.
// CoolingBTUH is sensible only; latent is carried separately and only
// infiltration and internal gains produce it.
type ComponentLoad struct {
	Component         ComponentType `json:"component"`
	Area              float64       `json:"area_sqft,omitempty"`
	HeatingBTUH       float64       `json:"heating_btuh"`
	CoolingBTUH       float64       `json:"cooling_btuh"`
	CoolingLatentBTUH float64       `json:"cooling_latent_btuh,omitempty"`
}

// RoomLoadBreakdown is the per-room result: each component plus totals.
type RoomLoadBreakdown struct {
	RoomName            string          `json:"room_name"`
	FloorIndex          int             `json:"floor_index"`
	AreaSqFt            float64         `json:"area_sqft"`
	Components          []ComponentLoad `json:"components"`
	HeatingBTUH         float64         `json:"heating_btuh"`
	CoolingSensibleBTUH float64         `json:"cooling_sensible_btuh"`
	CoolingLatentBTUH   float64         `json:"cooling_latent_btuh"`
	CoolingBTUH         float64         `json:"cooling_btuh"`
}

// SystemLoadCalculation is the final result for a building: room-level
// breakdowns, building totals, equipment tonnage and everything the
// reviewer needs to judge the numbers.
type SystemLoadCalculation struct {
	Location            string                     `json:"location"`
	Climate             ClimateDesignData          `json:"climate"`
	FloorAreaSqFt       float64                    `json:"floor_area_sqft"`
	Stories             int                        `json:"stories"`
	Rooms               []RoomLoadBreakdown        `json:"rooms"`
	HeatingBTUH         float64                    `json:"heating_btuh"`
	CoolingBTUH         float64                    `json:"cooling_btuh"`
	CoolingSensibleBTUH float64                    `json:"cooling_sensible_btuh"`
	CoolingLatentBTUH   float64                    `json:"cooling_latent_btuh"`
	HeatingTons         float64                    `json:"heating_tons"`
	CoolingTons         float64                    `json:"cooling_tons"`
	Warnings            []Warning                  `json:"warnings,omitempty"`
	Provenance          map[string]FieldProvenance `json:"provenance,omitempty"`
	CalculatedAt        time.Time                  `json:"calculated_at"`
}

// Warning flags a result that deserves reviewer attention without
// invalidating the calculation.
type Warning struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// Job represents one uploaded blueprint working its way through the
// pipeline.
type Job struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	FileName    string          `db:"file_name" json:"file_name"`
	FileSize    int64           `db:"file_size" json:"file_size"`
	ContentType string          `db:"content_type" json:"content_type"`
	StorageKey  string          `db:"storage_key" json:"storage_key"`
	Location    string          `db:"location" json:"location"`
	Status      JobStatus       `db:"status" json:"status"`
	Stage       PipelineStage   `db:"stage" json:"stage"`
	Attempts    int             `db:"attempts" json:"attempts"`
	LastError   string          `db:"last_error" json:"last_error,omitempty"`
	RetryAfter  *time.Time      `db:"retry_after" json:"retry_after,omitempty"`
	Result      json.RawMessage `db:"result" json:"result,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
	CompletedAt *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
}
