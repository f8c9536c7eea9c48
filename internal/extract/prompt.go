package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"loadplan/internal/domain"
)

// BuildFloorPlanPrompt returns the extraction prompt for one floor plan
// page. When wholeDocument is true the model receives the entire PDF and
// the prompt pins it to the page; pageText carries any text already
// recovered from the page as cross-check context.
func BuildFloorPlanPrompt(pageNumber int, wholeDocument bool, pageText string) string {
	var b strings.Builder

	b.WriteString(`You are a residential HVAC load calculation assistant. Analyze the provided floor plan drawing and extract the building data needed for a heating and cooling load calculation into the following JSON structure.

`)
	if wholeDocument {
		fmt.Fprintf(&b, "The document may contain many sheets. Analyze ONLY page %d; ignore every other page.\n\n", pageNumber)
	}

	b.WriteString(`IMPORTANT INSTRUCTIONS:
- List EVERY habitable room visible on the plan. Do not skip, merge, or invent rooms. Exclude closets under 20 sq ft, wall cavities, and the garage unless it is conditioned.
- Estimate each room area in square feet using the drawing's dimension strings or scale notation. If a room shows a width-by-depth dimension (e.g. 14'-6" x 12'-0"), multiply it out.
- exterior_walls counts how many of the room's walls sit on the building outline (0-4). Use null when you cannot tell.
- Report window areas in square feet. If a north arrow is present, split them by compass orientation; otherwise leave windows_by_orientation empty and report only the total.
- Ceiling heights come from callouts such as 9' CLG; use 0 when absent.
- Envelope values come from construction notes and schedules: insulation R-values (R-19 walls, R-38 ceiling), window U-value and SHGC, blower door ACH50. Use 0 for anything the drawings do not state.
- foundation is one of "slab", "crawlspace", "basement", or "" when unknown.
- orientation is the compass direction the front of the building faces ("north", "east", "south", "west"), only when a north arrow makes it readable; otherwise "".
- building_type is "residential" or "commercial"; stories is the total above-grade storey count, 0 when unknown.
- confidence values are floats between 0.0 and 1.0; the top-level confidence scores the whole reading.

Return ONLY valid JSON with no markdown formatting, no code fences, no explanation - just the raw JSON object.

The JSON object must follow this schema:
{
  "rooms": [
    {
      "name": "",
      "area_sqft": 0,
      "ceiling_height_ft": 0,
      "exterior_walls": null,
      "window_area_sqft": 0,
      "windows_by_orientation": {"north": 0, "east": 0, "south": 0, "west": 0},
      "occupants": 0,
      "confidence": 0.0
    }
  ],
  "envelope": {
    "wall_r_value": 0, "ceiling_r_value": 0, "floor_r_value": 0,
    "window_u_value": 0, "window_shgc": 0,
    "ach50": 0, "foundation": ""
  },
  "stories": 0,
  "building_type": "",
  "orientation": "",
  "confidence": 0.0
}`)

	if pageText != "" {
		b.WriteString("\n\nText already recovered from this page, to cross-check room names and dimensions:\n")
		b.WriteString(pageText)
	}

	return b.String()
}

// visionPayload models the JSON a vision provider returns for a page.
type visionPayload struct {
	Rooms []struct {
		Name                 string             `json:"name"`
		AreaSqFt             float64            `json:"area_sqft"`
		CeilingHeightFt      float64            `json:"ceiling_height_ft"`
		ExteriorWalls        *int               `json:"exterior_walls"`
		WindowAreaSqFt       float64            `json:"window_area_sqft"`
		WindowsByOrientation map[string]float64 `json:"windows_by_orientation"`
		Occupants            int                `json:"occupants"`
		Confidence           float64            `json:"confidence"`
	} `json:"rooms"`
	Envelope struct {
		WallRValue    float64 `json:"wall_r_value"`
		CeilingRValue float64 `json:"ceiling_r_value"`
		FloorRValue   float64 `json:"floor_r_value"`
		WindowUValue  float64 `json:"window_u_value"`
		WindowSHGC    float64 `json:"window_shgc"`
		ACH50         float64 `json:"ach50"`
		Foundation    string  `json:"foundation"`
	} `json:"envelope"`
	Stories      int     `json:"stories"`
	BuildingType string  `json:"building_type"`
	Orientation  string  `json:"orientation"`
	Confidence   float64 `json:"confidence"`
}

// ParseVisionPayload decodes a model's JSON output into a Fragment plus
// the model's whole-page confidence.
func ParseVisionPayload(text string) (domain.Fragment, float64, error) {
	var payload visionPayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return domain.Fragment{}, 0, fmt.Errorf("parsing vision JSON output: %w (raw: %s)", err, truncate(text, 500))
	}

	frag := domain.Fragment{
		Stories:      payload.Stories,
		BuildingType: parseBuildingType(payload.BuildingType),
		Orientation:  parseOrientation(payload.Orientation),
	}
	frag.Envelope = domain.EnvelopeHints{
		WallRValue:    payload.Envelope.WallRValue,
		CeilingRValue: payload.Envelope.CeilingRValue,
		FloorRValue:   payload.Envelope.FloorRValue,
		WindowUValue:  payload.Envelope.WindowUValue,
		WindowSHGC:    payload.Envelope.WindowSHGC,
		ACH50:         payload.Envelope.ACH50,
		Foundation:    parseFoundation(payload.Envelope.Foundation),
	}

	for _, r := range payload.Rooms {
		if r.AreaSqFt <= 0 {
			continue
		}
		obs := domain.RoomObservation{
			Name:            cleanRoomName(strings.ToUpper(r.Name)),
			Area:            r.AreaSqFt,
			CeilingHeight:   r.CeilingHeightFt,
			ExteriorWalls:   -1,
			WindowArea:      r.WindowAreaSqFt,
			Occupants:       r.Occupants,
			FieldConfidence: roomFieldConfidence(r.Confidence),
		}
		if r.ExteriorWalls != nil && *r.ExteriorWalls >= 0 && *r.ExteriorWalls <= 4 {
			obs.ExteriorWalls = *r.ExteriorWalls
		}
		if windows := parseWindows(r.WindowsByOrientation); len(windows) > 0 {
			obs.WindowsByOrientation = windows
		}
		frag.Rooms = append(frag.Rooms, obs)
	}

	return frag, payload.Confidence, nil
}

func roomFieldConfidence(c float64) map[string]float64 {
	if c <= 0 || c > 1 {
		return nil
	}
	return map[string]float64{
		"name":           c,
		"area":           c,
		"ceiling_height": c,
		"window_area":    c,
	}
}

func parseWindows(m map[string]float64) map[domain.Orientation]float64 {
	var out map[domain.Orientation]float64
	for k, v := range m {
		if v <= 0 {
			continue
		}
		o := parseOrientation(k)
		if o == domain.OrientationUnknown || o == "" {
			continue
		}
		if out == nil {
			out = make(map[domain.Orientation]float64)
		}
		out[o] += v
	}
	return out
}

func parseOrientation(s string) domain.Orientation {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "north", "n":
		return domain.OrientationNorth
	case "east", "e":
		return domain.OrientationEast
	case "south", "s":
		return domain.OrientationSouth
	case "west", "w":
		return domain.OrientationWest
	case "":
		return ""
	default:
		return domain.OrientationUnknown
	}
}

func parseFoundation(s string) domain.FoundationType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "slab", "slab on grade", "slab-on-grade":
		return domain.FoundationSlab
	case "crawlspace", "crawl space":
		return domain.FoundationCrawlspace
	case "basement":
		return domain.FoundationBasement
	case "":
		return ""
	default:
		return domain.FoundationUnknown
	}
}

func parseBuildingType(s string) domain.BuildingType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "residential":
		return domain.BuildingTypeResidential
	case "commercial":
		return domain.BuildingTypeCommercial
	case "":
		return ""
	default:
		return domain.BuildingTypeUnknown
	}
}
