package extract

import (
	"context"
	"fmt"
	"log"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"loadplan/internal/domain"
	"loadplan/internal/geometry"
	"loadplan/internal/port"
	"loadplan/internal/scale"
)

var (
	ceilingRe     = regexp.MustCompile(`(?i)(?:CLG|CEILING)(?:\s+(?:HT|HEIGHT))?\s*[:=]?\s*(\d{1,2})'(?:\s*-?\s*(\d{1,2})\s*")?`)
	ceilingPreRe  = regexp.MustCompile(`(?i)(\d{1,2})'(?:\s*-?\s*(\d{1,2})\s*")?\s*(?:CLG|CEILING)`)
	rValueRe      = regexp.MustCompile(`(?i)\bR-?\s*(\d{1,2}(?:\.\d)?)\b`)
	uValueRe      = regexp.MustCompile(`(?i)\bU(?:-?\s*(?:VALUE|FACTOR))?\s*[-:=]?\s*(0?\.\d{1,3})\b`)
	shgcRe        = regexp.MustCompile(`(?i)\bSHGC\s*[:=]?\s*(0?\.\d{1,3})\b`)
	ach50Re       = regexp.MustCompile(`(?i)(?:(\d{1,2}(?:\.\d{1,2})?)\s*ACH\s*50|ACH\s*50\s*[:=]?\s*(\d{1,2}(?:\.\d{1,2})?))`)
	storiesRe     = regexp.MustCompile(`(?i)\b(\d|ONE|SINGLE|TWO|THREE)[\s-]*STOR(?:Y|IES|EY)\b`)
	printedAreaRe = regexp.MustCompile(`(?i)\b(\d{1,3}(?:,\d{3})+|\d{2,5})\s*(?:SQUARE\s+FEET|SQ\.?\s*FT\.?|S\.F\.|SF\b)`)
)

var storyWords = map[string]int{"ONE": 1, "SINGLE": 1, "TWO": 2, "THREE": 3}

// TextExtractor reads rooms and construction notes out of the page text:
// room labels adjacent to width-by-depth dimensions or printed
// square-footage stamps, ceiling callouts, insulation R-values, window
// performance and airtightness notes. Pages without a text layer fall
// back to OCR over the embedded raster.
type TextExtractor struct {
	ocr port.OCREngine
}

// NewTextExtractor creates a TextExtractor. The OCR engine is optional;
// without it, scanned pages yield no text candidate.
func NewTextExtractor(ocr port.OCREngine) *TextExtractor {
	return &TextExtractor{ocr: ocr}
}

func (t *TextExtractor) Name() domain.CandidateSource {
	return domain.SourceText
}

func (t *TextExtractor) Extract(ctx context.Context, in Input) (*domain.Candidate, error) {
	start := time.Now()
	d := in.Digest

	text := d.Text
	runs := d.Runs
	source := d.TextSource
	if strings.TrimSpace(text) == "" {
		recognized, err := t.recognize(ctx, d)
		if err != nil {
			return nil, err
		}
		text = recognized
		runs = nil
		source = domain.TextSourceOCR
	}

	var rooms []domain.RoomObservation
	if len(runs) > 0 {
		rooms = roomsFromRuns(runs, d.Width, d.Height)
	} else {
		rooms = roomsFromLines(text)
	}
	if clg := ceilingHeightFromText(text); clg > 0 {
		for i := range rooms {
			rooms[i].CeilingHeight = clg
			rooms[i].FieldConfidence["ceiling_height"] = 0.80
		}
	}
	envelope := envelopeHints(text)
	stories := storiesFromText(text)

	if len(rooms) == 0 && envelope == (domain.EnvelopeHints{}) && stories == 0 {
		return nil, fmt.Errorf("extract.TextExtractor: page %d text carries no usable facts: %w",
			d.PageIndex, domain.ErrInsufficientRoomData)
	}

	return &domain.Candidate{
		Source:     domain.SourceText,
		PageIndex:  d.PageIndex,
		FloorIndex: in.FloorIndex,
		Confidence: textConfidence(source, len(rooms), envelope),
		Fragment: domain.Fragment{
			Rooms:    rooms,
			Envelope: envelope,
			Stories:  stories,
		},
		Elapsed: time.Since(start),
	}, nil
}

func (t *TextExtractor) recognize(ctx context.Context, d *domain.PageDigest) (string, error) {
	if t.ocr == nil || !d.HasRaster() {
		return "", fmt.Errorf("extract.TextExtractor: page %d has no text layer: %w",
			d.PageIndex, domain.ErrCapabilityUnavailable)
	}
	text, err := t.ocr.RecognizeImage(ctx, d.Images[0].Data)
	if err != nil {
		return "", fmt.Errorf("extract.TextExtractor: ocr on page %d: %w", d.PageIndex, err)
	}
	log.Printf("extract.TextExtractor: page %d recognized %d bytes via ocr", d.PageIndex, len(text))
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("extract.TextExtractor: page %d ocr produced no text: %w",
			d.PageIndex, domain.ErrInsufficientRoomData)
	}
	return text, nil
}

func textConfidence(source domain.TextSource, roomCount int, env domain.EnvelopeHints) float64 {
	conf := 0.45
	if source == domain.TextSourceOCR {
		conf = 0.35
	}
	bonus := 0.04 * float64(roomCount)
	if bonus > 0.16 {
		bonus = 0.16
	}
	conf += bonus
	if env != (domain.EnvelopeHints{}) {
		conf += 0.05
	}
	if conf > 0.75 {
		conf = 0.75
	}
	return conf
}

// roomsFromRuns pairs each width-by-depth dimension or printed-area run
// with the nearest room-name run. Positions let a label two lines above
// its figure still bind to it.
func roomsFromRuns(runs []domain.TextRun, pageW, pageH float64) []domain.RoomObservation {
	radius := math.Hypot(pageW, pageH) * 0.06
	if radius < 30 {
		radius = 30
	}

	var rooms []domain.RoomObservation
	for _, run := range runs {
		if w, h, ok := scale.ParseDimensionPair(run.Text); ok {
			// A dimension with a zero side is a truncated or misread
			// callout, not a room.
			if w <= 0 || h <= 0 {
				continue
			}
			name := inlineName(run.Text)
			if name == "" {
				name = nearestName(runs, run.At, radius)
			}
			rooms = append(rooms, dimensionedRoom(name, w, h, run.At))
			continue
		}
		if ft2, conf, ok := printedArea(run.Text); ok {
			name := printedAreaName(run.Text)
			if name == "" {
				name = nearestName(runs, run.At, radius)
			}
			rooms = append(rooms, areaRoom(name, ft2, conf, run.At))
		}
	}
	return rooms
}

// nearestName returns the closest name-like run within the search
// radius, or empty.
func nearestName(runs []domain.TextRun, at geometry.Point, radius float64) string {
	name := ""
	bestDist := radius
	for _, other := range runs {
		if !isRoomName(other.Text) {
			continue
		}
		if dist := other.At.Distance(at); dist < bestDist {
			bestDist = dist
			name = cleanRoomName(other.Text)
		}
	}
	return name
}

// roomsFromLines handles flat OCR text: a dimension or printed area
// inherits a label from its own line or the nearest preceding name line.
func roomsFromLines(text string) []domain.RoomObservation {
	var rooms []domain.RoomObservation
	lastName := ""
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if w, h, ok := scale.ParseDimensionPair(line); ok && w > 0 && h > 0 {
			name := inlineName(line)
			if name == "" {
				name = lastName
			}
			rooms = append(rooms, dimensionedRoom(name, w, h, geometry.Point{}))
			lastName = ""
			continue
		}
		if ft2, conf, ok := printedArea(line); ok {
			name := printedAreaName(line)
			if name == "" {
				name = lastName
			}
			rooms = append(rooms, areaRoom(name, ft2, conf, geometry.Point{}))
			lastName = ""
			continue
		}
		if isRoomName(line) {
			lastName = cleanRoomName(line)
		}
	}
	return rooms
}

// inlineName extracts a leading label from a combined line such as
// "BEDROOM 2 14'-6" X 12'-0"".
func inlineName(s string) string {
	cut := strings.IndexByte(s, '\'')
	if cut < 0 {
		return ""
	}
	// Back off the feet digits preceding the quote.
	for cut > 0 && (isDigit(s[cut-1]) || s[cut-1] == ' ') {
		cut--
	}
	prefix := strings.TrimSpace(s[:cut])
	if isRoomName(prefix) {
		return cleanRoomName(prefix)
	}
	return ""
}

func dimensionedRoom(name string, w, h float64, at geometry.Point) domain.RoomObservation {
	return domain.RoomObservation{
		Name:          name,
		Area:          round1(w * h),
		Perimeter:     round1(2 * (w + h)),
		ExteriorWalls: -1,
		Centroid:      at,
		FieldConfidence: map[string]float64{
			"area":      0.75,
			"perimeter": 0.70,
			"name":      0.85,
		},
	}
}

// printedArea reads a square-footage annotation such as "285 SQ FT" or
// "1,234 SQUARE FEET". Building totals ("TOTAL LIVING AREA 1,480 SF")
// are not rooms and are rejected, as are values outside the plausible
// room window.
func printedArea(s string) (ft2, conf float64, ok bool) {
	m := printedAreaRe.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, false
	}
	if hasAny(strings.ToUpper(s), "TOTAL", "LIVING AREA", "FLOOR AREA", "GROSS") {
		return 0, 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil || v < minRoomAreaFt2 || v > maxRoomAreaFt2 {
		return 0, 0, false
	}
	// Spelled-out units are a stronger signal than a bare "SF", which OCR
	// also produces from stray marks.
	conf = 0.70
	if strings.Contains(strings.ToUpper(m[0]), "SQ") {
		conf = 0.80
	}
	return v, conf, true
}

// printedAreaName extracts the leading label from a combined line such
// as "BONUS ROOM 285 SQ FT".
func printedAreaName(s string) string {
	loc := printedAreaRe.FindStringIndex(s)
	if loc == nil {
		return ""
	}
	prefix := strings.TrimSpace(s[:loc[0]])
	if isRoomName(prefix) {
		return cleanRoomName(prefix)
	}
	return ""
}

// areaRoom builds an observation from a printed area. It claims no
// perimeter; reconciliation derives one when no other source offers it.
func areaRoom(name string, ft2, conf float64, at geometry.Point) domain.RoomObservation {
	return domain.RoomObservation{
		Name:          name,
		Area:          round1(ft2),
		ExteriorWalls: -1,
		Centroid:      at,
		FieldConfidence: map[string]float64{
			"area": conf,
			"name": 0.85,
		},
	}
}

// envelopeHints scans construction notes line by line so an R-value lands
// on the assembly its line names.
func envelopeHints(text string) domain.EnvelopeHints {
	var env domain.EnvelopeHints
	for _, line := range strings.Split(text, "\n") {
		upper := strings.ToUpper(line)

		if m := rValueRe.FindStringSubmatch(line); m != nil {
			v, _ := strconv.ParseFloat(m[1], 64)
			switch {
			case strings.Contains(upper, "WALL") && env.WallRValue == 0:
				env.WallRValue = v
			case hasAny(upper, "CEILING", "ATTIC", "ROOF") && env.CeilingRValue == 0:
				env.CeilingRValue = v
			case hasAny(upper, "FLOOR", "SLAB", "CRAWL") && env.FloorRValue == 0:
				env.FloorRValue = v
			}
		}
		if m := uValueRe.FindStringSubmatch(line); m != nil && env.WindowUValue == 0 {
			if strings.Contains(upper, "WINDOW") || strings.Contains(upper, "GLAZ") {
				env.WindowUValue, _ = strconv.ParseFloat(m[1], 64)
			}
		}
		if m := shgcRe.FindStringSubmatch(line); m != nil && env.WindowSHGC == 0 {
			env.WindowSHGC, _ = strconv.ParseFloat(m[1], 64)
		}
		if m := ach50Re.FindStringSubmatch(line); m != nil && env.ACH50 == 0 {
			val := m[1]
			if val == "" {
				val = m[2]
			}
			env.ACH50, _ = strconv.ParseFloat(val, 64)
		}
		if env.Foundation == "" {
			switch {
			case strings.Contains(upper, "SLAB ON GRADE") || strings.Contains(upper, "SLAB-ON-GRADE"):
				env.Foundation = domain.FoundationSlab
			case strings.Contains(upper, "CRAWL SPACE") || strings.Contains(upper, "CRAWLSPACE"):
				env.Foundation = domain.FoundationCrawlspace
			case strings.Contains(upper, "BASEMENT"):
				env.Foundation = domain.FoundationBasement
			}
		}
	}
	return env
}

// ceilingHeightFromText reads a ceiling callout such as "9' CLG" or
// "CEILING HEIGHT: 8'-0"" into feet. Zero when absent.
func ceilingHeightFromText(text string) float64 {
	parse := func(m []string) float64 {
		ft, _ := strconv.ParseFloat(m[1], 64)
		if m[2] != "" {
			in, _ := strconv.ParseFloat(m[2], 64)
			ft += in / 12
		}
		return ft
	}
	if m := ceilingRe.FindStringSubmatch(text); m != nil {
		return parse(m)
	}
	if m := ceilingPreRe.FindStringSubmatch(text); m != nil {
		return parse(m)
	}
	return 0
}

func storiesFromText(text string) int {
	m := storiesRe.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	token := strings.ToUpper(m[1])
	if n, ok := storyWords[token]; ok {
		return n
	}
	n, _ := strconv.Atoi(token)
	if n < 1 || n > 9 {
		return 0
	}
	return n
}

func hasAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
