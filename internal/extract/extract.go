// Package extract turns classified floor plan pages into extraction
// candidates. Three independent strategies read the same page: vector
// geometry, the text layer (with OCR fallback), and an external vision
// model. Each produces a Candidate scored with its own confidence;
// reconciliation decides between them later.
package extract

import (
	"context"
	"regexp"
	"strings"

	"loadplan/internal/domain"
)

// Input is what every extraction strategy receives for one page.
type Input struct {
	Digest     *domain.PageDigest
	Scale      domain.Scale
	PDF        []byte // whole document, for strategies that need it
	FloorIndex int    // 1-based floor this page depicts
}

// Strategy is one extraction path. Extract returns a candidate or an
// error; an error means this path contributes nothing for the page and
// the pipeline carries on with the other paths.
type Strategy interface {
	Name() domain.CandidateSource
	Extract(ctx context.Context, in Input) (*domain.Candidate, error)
}

// Words that appear in sheet furniture rather than room labels.
var labelStopwords = map[string]bool{
	"SCALE":     true,
	"PLAN":      true,
	"FLOOR":     true,
	"LEVEL":     true,
	"SHEET":     true,
	"NOTE":      true,
	"NOTES":     true,
	"DATE":      true,
	"DRAWN":     true,
	"REV":       true,
	"REVISION":  true,
	"ELEVATION": true,
	"SECTION":   true,
	"DETAIL":    true,
	"SCHEDULE":  true,
	"TYP":       true,
	"TYPICAL":   true,
}

var (
	roomNameRe   = regexp.MustCompile(`^[A-Z][A-Z0-9 .\-/&]{1,30}$`)
	bareNumberRe = regexp.MustCompile(`^[0-9 .\-/]+$`)
)

// isRoomName reports whether a text run looks like a room label rather
// than a dimension, a note or sheet furniture.
func isRoomName(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || strings.ContainsAny(s, `'"=:`) {
		return false
	}
	if !roomNameRe.MatchString(s) {
		return false
	}
	for _, w := range strings.Fields(s) {
		if labelStopwords[w] {
			return false
		}
	}
	// A bare number is a grid bubble or a dimension fragment.
	if bareNumberRe.MatchString(s) {
		return false
	}
	return true
}

func cleanRoomName(s string) string {
	return strings.Join(strings.Fields(strings.TrimSpace(s)), " ")
}
