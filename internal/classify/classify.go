// Package classify labels blueprint pages and picks one representative
// page per floor. Labels come from title-block and caption text when a
// page has any, backed by structural cues (vector density, room labels,
// full-page rasters) so scanned sets without a text layer still
// classify. Discipline sheets such as electrical or plumbing plans are
// labeled systems pages and never reach floor extraction, however dense
// their line work.
package classify

import (
	"regexp"
	"sort"
	"strings"

	"loadplan/internal/domain"
)

// Classification thresholds. A page below minPlanScore never becomes a
// floor plan no matter what the cues say.
const (
	minPlanScore = 0.30

	vectorRichLines = 200
	vectorSomeLines = 50
	largeImagePx    = 1000 * 1000
)

type cue struct {
	pattern *regexp.Regexp
	weight  float64
}

var labelCues = map[domain.PageLabel][]cue{
	domain.PageLabelFloorPlan: {
		{regexp.MustCompile(`(?i)\bFLOOR\s+PLAN\b`), 0.55},
		{regexp.MustCompile(`(?i)\b(MAIN|UPPER|LOWER|GROUND)\s+LEVEL\b`), 0.45},
		{regexp.MustCompile(`(?i)\bBASEMENT\s+PLAN\b`), 0.50},
		{regexp.MustCompile(`(?i)\bPLAN\b`), 0.20},
	},
	domain.PageLabelElevation: {
		{regexp.MustCompile(`(?i)\bELEVATIONS?\b`), 0.60},
	},
	domain.PageLabelSection: {
		{regexp.MustCompile(`(?i)\b(CROSS\s+)?SECTIONS?\b`), 0.55},
		{regexp.MustCompile(`(?i)\bDETAILS?\b`), 0.35},
	},
	domain.PageLabelSchedule: {
		{regexp.MustCompile(`(?i)\b(DOOR|WINDOW|FINISH|ROOM)\s+SCHEDULE\b`), 0.65},
		{regexp.MustCompile(`(?i)\bSCHEDULE\b`), 0.40},
	},
	domain.PageLabelSite: {
		{regexp.MustCompile(`(?i)\bSITE\s+PLAN\b`), 0.65},
		{regexp.MustCompile(`(?i)\bPLOT\s+PLAN\b`), 0.60},
	},
	domain.PageLabelSystems: {
		{regexp.MustCompile(`(?i)\b(ELECTRICAL|POWER|LIGHTING|PLUMBING|MECHANICAL|HVAC|FRAMING|ROOF|FOUNDATION)\s+(?:FLOOR\s+)?(?:PLANS?|LAYOUT)\b`), 0.65},
		{regexp.MustCompile(`(?i)\b(ELECTRICAL|PLUMBING|MECHANICAL|HVAC|GAS)\s+(?:NOTES|SCHEDULES?|RISERS?|DIAGRAMS?)\b`), 0.55},
	},
}

// orderedLabels fixes evaluation order so score ties resolve the same
// way every run, with floor plans taking precedence.
var orderedLabels = []domain.PageLabel{
	domain.PageLabelFloorPlan,
	domain.PageLabelElevation,
	domain.PageLabelSection,
	domain.PageLabelSchedule,
	domain.PageLabelSite,
	domain.PageLabelSystems,
}

var scaleCueRe = regexp.MustCompile(`(?i)\bSCALE\b`)

// crossRefRe matches references pointing at other sheets ("SEE
// ELECTRICAL PLAN", "PER DOOR SCHEDULE") so a note naming a discipline
// sheet does not classify the page as one.
var crossRefRe = regexp.MustCompile(`(?i)\b(?:SEE|REFER\s+TO|PER)\s+[A-Z0-9 .\-/]{0,40}?(?:PLANS?|SHEETS?|DRAWINGS?|SCHEDULES?|DETAILS?|DIAGRAMS?)\b`)

// roomLabelRe matches the room names that label habitable spaces on a
// floor plan.
var roomLabelRe = regexp.MustCompile(`(?i)\b(MASTER\s+BEDROOM|BED\s?ROOM|KITCHEN|BATH(?:ROOM)?|LIVING\s+ROOM|GREAT\s+ROOM|FAMILY\s+ROOM|DINING|GARAGE|CLOSET|LAUNDRY|PANTRY|FOYER|DEN|OFFICE|STUDY|NOOK)\b`)

// floorCue maps caption phrasing to a sort rank so floors come out
// numbered bottom-up regardless of page order.
type floorCue struct {
	pattern *regexp.Regexp
	rank    int
}

var floorCues = []floorCue{
	{regexp.MustCompile(`(?i)\bBASEMENT\b`), 0},
	{regexp.MustCompile(`(?i)\bLOWER\s+LEVEL\b`), 0},
	{regexp.MustCompile(`(?i)\b(FIRST|1ST|MAIN|GROUND)\s+(FLOOR|LEVEL)\b`), 1},
	{regexp.MustCompile(`(?i)\b(SECOND|2ND|UPPER)\s+(FLOOR|LEVEL)\b`), 2},
	{regexp.MustCompile(`(?i)\b(THIRD|3RD)\s+(FLOOR|LEVEL)\b`), 3},
	{regexp.MustCompile(`(?i)\bLEVEL\s+(\d)\b`), -1}, // rank from the digit
}

// Classifier assigns labels, scores and floor indexes to page digests.
type Classifier struct{}

// New returns a Classifier.
func New() *Classifier {
	return &Classifier{}
}

// ClassifyPages returns a copy of digests with Label, PlanScore,
// SheetTitle and FloorIndex populated. For each floor exactly one page
// keeps a positive FloorIndex; competing plan pages for the same floor
// keep their label but get FloorIndex 0 so extraction skips them.
func (c *Classifier) ClassifyPages(digests []domain.PageDigest) []domain.PageDigest {
	out := make([]domain.PageDigest, len(digests))
	copy(out, digests)

	for i := range out {
		c.classifyOne(&out[i])
	}
	assignFloors(out)
	return out
}

func (c *Classifier) classifyOne(d *domain.PageDigest) {
	// Cross-sheet references would otherwise read as captions.
	text := crossRefRe.ReplaceAllString(d.Text, " ")

	bestLabel := domain.PageLabelOther
	bestScore := 0.0

	for _, label := range orderedLabels {
		score := 0.0
		for _, cue := range labelCues[label] {
			if cue.pattern.MatchString(text) && cue.weight > score {
				score = cue.weight
			}
		}
		if score > bestScore {
			bestScore = score
			bestLabel = label
		}
	}

	// Structural cues only ever argue for "floor plan": line-work density,
	// room-name labels and full-page rasters. They can promote an
	// unlabeled drawing but never outvote an explicit caption.
	if bestLabel == domain.PageLabelOther || bestLabel == domain.PageLabelFloorPlan {
		structural := 0.0
		switch {
		case len(d.Lines) >= vectorRichLines:
			structural += 0.35
		case len(d.Lines) >= vectorSomeLines:
			structural += 0.15
		}
		for _, img := range d.Images {
			if img.Width*img.Height >= largeImagePx {
				// A full-page scan with no text layer has nothing
				// arguing against it being a plan; score it high enough
				// to reach extraction, where vision sorts it out.
				if strings.TrimSpace(d.Text) == "" {
					structural += 0.35
				} else {
					structural += 0.20
				}
				break
			}
		}
		switch n := roomLabelCount(text); {
		case n >= 3:
			structural += 0.35
		case n >= 1:
			structural += 0.15
		}
		if scaleCueRe.MatchString(text) {
			structural += 0.10
		}
		if structural > 0 {
			bestScore += structural
			bestLabel = domain.PageLabelFloorPlan
		}
	}

	if bestScore > 1.0 {
		bestScore = 1.0
	}
	if bestLabel == domain.PageLabelFloorPlan && bestScore < minPlanScore {
		bestLabel = domain.PageLabelOther
	}

	d.Label = bestLabel
	d.PlanScore = bestScore
	d.SheetTitle = sheetTitle(d.Text)
}

// roomLabelCount counts the distinct room names mentioned on a page.
// Several different rooms on one sheet is a floor plan signal a caption
// cannot give a scanned or tersely titled page.
func roomLabelCount(text string) int {
	distinct := map[string]struct{}{}
	for _, m := range roomLabelRe.FindAllString(text, -1) {
		key := strings.Join(strings.Fields(strings.ToUpper(m)), "")
		distinct[key] = struct{}{}
	}
	return len(distinct)
}

// sheetTitle takes the first non-empty line of page text, trimmed to a
// sane length.
func sheetTitle(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			if len(line) > 120 {
				line = line[:120]
			}
			return line
		}
	}
	return ""
}

// assignFloors resolves floor captions on plan pages into contiguous
// 1-based floor indexes, lowest floor first, keeping the best-scoring
// page when several claim the same floor.
func assignFloors(pages []domain.PageDigest) {
	type claim struct {
		page int
		rank int
	}
	var claims []claim

	for i := range pages {
		if pages[i].Label != domain.PageLabelFloorPlan {
			continue
		}
		rank, ok := floorRank(pages[i].Text)
		if !ok {
			// A plan page with no floor caption is its own claim; the
			// page order decides its rank relative to other unlabeled
			// pages.
			rank = 100 + i
		}
		claims = append(claims, claim{page: i, rank: rank})
	}
	if len(claims) == 0 {
		return
	}

	// Best-scoring page wins each rank.
	byRank := make(map[int]int)
	for _, cl := range claims {
		cur, ok := byRank[cl.rank]
		if !ok || pages[cl.page].PlanScore > pages[cur].PlanScore {
			byRank[cl.rank] = cl.page
		}
	}

	ranks := make([]int, 0, len(byRank))
	for r := range byRank {
		ranks = append(ranks, r)
	}
	sort.Ints(ranks)

	for floor, r := range ranks {
		pages[byRank[r]].FloorIndex = floor + 1
	}
}

func floorRank(text string) (int, bool) {
	for _, fc := range floorCues {
		m := fc.pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if fc.rank >= 0 {
			return fc.rank, true
		}
		// Rank encoded in the caption digit, e.g. "LEVEL 2".
		if len(m) > 1 && len(m[1]) == 1 && m[1][0] >= '0' && m[1][0] <= '9' {
			return int(m[1][0] - '0'), true
		}
	}
	return 0, false
}

// PlanPages returns the classified pages selected for extraction: floor
// plans holding a positive floor index, in floor order.
func PlanPages(pages []domain.PageDigest) []domain.PageDigest {
	var plans []domain.PageDigest
	for _, p := range pages {
		if p.Label == domain.PageLabelFloorPlan && p.FloorIndex > 0 {
			plans = append(plans, p)
		}
	}
	sort.Slice(plans, func(i, j int) bool {
		return plans[i].FloorIndex < plans[j].FloorIndex
	})
	return plans
}
