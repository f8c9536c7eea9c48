// Package scale resolves the drawing scale of plan pages so drawing-unit
// geometry can be converted to feet. Explicit scale notation in the page
// text is cross-checked against ratios measured between dimension
// annotations and nearby line work; a configured page-size default is
// the last resort.
package scale

import (
	"fmt"
	"math"
	"regexp"
	"strconv"

	"loadplan/internal/domain"
	"loadplan/internal/geometry"
)

const (
	// Plausible drawing-units-per-foot window. 1"=20' plots sit near 3.6,
	// 1"=1' details near 72.
	minUnitsPerFoot = 2.0
	maxUnitsPerFoot = 200.0

	minDimensionFeet = 2.0
	maxDimensionFeet = 100.0

	minSupport = 2

	// Relative disagreement between printed notation and measured
	// dimensions tolerated before the notation is rejected.
	notationAgreementTol = 0.15
)

// Architectural notation: 1/4" = 1'-0", 3/16"=1'-0", 1" = 20'.
var archScaleRe = regexp.MustCompile(`(\d+(?:/\d+)?)\s*(?:"|'')\s*=\s*(\d+)'(?:\s*-?\s*(\d+)\s*(?:"|''))?`)

// Ratio notation: SCALE 1:48. Only honoured on a line that mentions SCALE,
// a bare ratio elsewhere is usually a part count or a sheet number.
var ratioScaleRe = regexp.MustCompile(`(?i)SCALE[^\n]*?\b1\s*:\s*(\d{1,4})\b`)

// Feet-inches dimension: 24'-6", 12', 9'-4 1/2".
var feetInchesRe = regexp.MustCompile(`(\d{1,3})'(?:\s*-?\s*(\d{1,2})(?:\s+(\d+)/(\d+))?\s*(?:"|''))?`)

var dimSepRe = regexp.MustCompile(`^\s*[xX×]\s*$`)

// Resolver resolves page scales.
type Resolver struct {
	// DefaultFeetPerInch drives the page-size fallback: how many real
	// feet one paper inch represents when nothing better is found.
	// Zero disables the fallback.
	DefaultFeetPerInch float64
}

// NewResolver returns a Resolver with the given fallback. A typical
// residential default is 4 (1/4" = 1'-0").
func NewResolver(defaultFeetPerInch float64) *Resolver {
	return &Resolver{DefaultFeetPerInch: defaultFeetPerInch}
}

// Resolve determines the scale of one page. Resolution is deterministic:
// the same digest always yields the same scale.
func (r *Resolver) Resolve(d *domain.PageDigest) (domain.Scale, error) {
	notation, hasNotation := ParseScaleNotation(d.Text)
	measured, hasMeasured := r.fromDimensions(d)

	switch {
	case hasNotation && hasMeasured:
		return crossCheck(notation, measured), nil
	case hasNotation:
		return notation, nil
	case hasMeasured:
		return measured, nil
	}
	if r.DefaultFeetPerInch > 0 {
		return domain.Scale{
			FeetPerUnit: r.DefaultFeetPerInch / 72.0,
			Method:      domain.ScaleMethodPageSize,
			Confidence:  0.30,
		}, nil
	}
	return domain.Scale{}, fmt.Errorf("scale.Resolve: page %d: %w", d.PageIndex, domain.ErrScaleUnresolved)
}

// crossCheck reconciles printed notation against the ratio measured from
// dimension annotations. Agreement corroborates the notation; beyond the
// tolerance the legend does not match what was drawn, and the measured
// ratio wins at reduced confidence with the conflict marked.
func crossCheck(notation, measured domain.Scale) domain.Scale {
	rel := math.Abs(notation.FeetPerUnit-measured.FeetPerUnit) / notation.FeetPerUnit
	if rel <= notationAgreementTol {
		notation.Confidence += (1 - notation.Confidence) * 0.2
		return notation
	}
	measured.Confidence *= 0.8
	measured.Conflicted = true
	return measured
}

// ParseScaleNotation reads an explicit scale statement out of page text.
func ParseScaleNotation(text string) (domain.Scale, bool) {
	if m := archScaleRe.FindStringSubmatch(text); m != nil {
		paperInches := parseFraction(m[1])
		realFeet, _ := strconv.ParseFloat(m[2], 64)
		if m[3] != "" {
			in, _ := strconv.ParseFloat(m[3], 64)
			realFeet += in / 12
		}
		if paperInches > 0 && realFeet > 0 {
			return domain.Scale{
				FeetPerUnit: realFeet / paperInches / 72.0,
				Method:      domain.ScaleMethodNotation,
				Confidence:  0.90,
			}, true
		}
	}
	if m := ratioScaleRe.FindStringSubmatch(text); m != nil {
		ratio, _ := strconv.ParseFloat(m[1], 64)
		if ratio > 0 {
			// One drawing unit is ratio real units; 12 inches per foot.
			return domain.Scale{
				FeetPerUnit: ratio / 12.0 / 72.0,
				Method:      domain.ScaleMethodNotation,
				Confidence:  0.85,
			}, true
		}
	}
	return domain.Scale{}, false
}

// fromDimensions pairs feet-inch annotations with nearby line work and
// looks for a consistent units-per-foot ratio. At least two agreeing
// pairs are required.
func (r *Resolver) fromDimensions(d *domain.PageDigest) (domain.Scale, bool) {
	if len(d.Runs) == 0 || len(d.Lines) == 0 {
		return domain.Scale{}, false
	}

	diag := math.Hypot(d.Width, d.Height)
	searchRadius := diag * 0.08
	if searchRadius < 40 {
		searchRadius = 40
	}

	var ratios []float64
	for _, run := range d.Runs {
		// A width-by-depth pair labels a room's interior size; neither
		// number measures the line work around it.
		if _, _, ok := ParseDimensionPair(run.Text); ok {
			continue
		}
		for _, feet := range FindFeetInches(run.Text) {
			if feet < minDimensionFeet || feet > maxDimensionFeet {
				continue
			}
			line, ok := nearestLongLine(d.Lines, run.At, searchRadius)
			if !ok {
				continue
			}
			upf := line.Length() / feet
			if upf >= minUnitsPerFoot && upf <= maxUnitsPerFoot {
				ratios = append(ratios, upf)
			}
		}
	}
	if len(ratios) < minSupport {
		return domain.Scale{}, false
	}

	// Cluster the ratios and take the best supported cluster.
	med := median(ratios)
	tol := med * 0.08
	centers := geometry.ClusterValues(ratios, tol)

	bestCenter, bestCount := 0.0, 0
	for _, c := range centers {
		count := 0
		for _, v := range ratios {
			if math.Abs(v-c) <= tol {
				count++
			}
		}
		if count > bestCount {
			bestCount = count
			bestCenter = c
		}
	}
	if bestCount < minSupport || bestCenter <= 0 {
		return domain.Scale{}, false
	}

	conf := 0.50 + 0.05*float64(bestCount)
	if conf > 0.80 {
		conf = 0.80
	}
	return domain.Scale{
		FeetPerUnit: 1.0 / bestCenter,
		Method:      domain.ScaleMethodDimension,
		Confidence:  conf,
	}, true
}

// nearestLongLine finds the closest line to p within radius, preferring
// longer lines when several are near. Short tick marks are ignored.
func nearestLongLine(lines []geometry.Line, p geometry.Point, radius float64) (geometry.Line, bool) {
	const minLineLen = 20.0

	var best geometry.Line
	bestScore := -1.0
	for _, ln := range lines {
		if ln.Length() < minLineLen {
			continue
		}
		dist := ln.Midpoint().Distance(p)
		if dist > radius {
			continue
		}
		// Prefer near and long.
		score := ln.Length() / (1 + dist)
		if score > bestScore {
			bestScore = score
			best = ln
		}
	}
	return best, bestScore >= 0
}

// ParseFeetInches parses a single feet-inches token such as 24'-6" or 12'
// into decimal feet.
func ParseFeetInches(s string) (float64, bool) {
	m := feetInchesRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	return feetFromMatch(m), true
}

// FindFeetInches returns every feet-inches value mentioned in s.
func FindFeetInches(s string) []float64 {
	var out []float64
	for _, m := range feetInchesRe.FindAllStringSubmatch(s, -1) {
		out = append(out, feetFromMatch(m))
	}
	return out
}

// ParseDimensionPair parses a width-by-depth room dimension such as
// 14'-6" x 12'-0" into decimal feet.
func ParseDimensionPair(s string) (w, h float64, ok bool) {
	locs := feetInchesRe.FindAllStringSubmatchIndex(s, -1)
	for i := 0; i+1 < len(locs); i++ {
		between := s[locs[i][1]:locs[i+1][0]]
		if !dimSepRe.MatchString(between) {
			continue
		}
		return feetFromMatch(groupsAt(s, locs[i])), feetFromMatch(groupsAt(s, locs[i+1])), true
	}
	return 0, 0, false
}

func groupsAt(s string, idx []int) []string {
	m := make([]string, len(idx)/2)
	for i := range m {
		if lo, hi := idx[2*i], idx[2*i+1]; lo >= 0 {
			m[i] = s[lo:hi]
		}
	}
	return m
}

func feetFromMatch(m []string) float64 {
	feet, _ := strconv.ParseFloat(m[1], 64)
	if m[2] != "" {
		in, _ := strconv.ParseFloat(m[2], 64)
		feet += in / 12
	}
	if m[3] != "" && m[4] != "" {
		num, _ := strconv.ParseFloat(m[3], 64)
		den, _ := strconv.ParseFloat(m[4], 64)
		if den > 0 {
			feet += num / den / 12
		}
	}
	return feet
}

func parseFraction(s string) float64 {
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			num, _ := strconv.ParseFloat(s[:i], 64)
			den, _ := strconv.ParseFloat(s[i+1:], 64)
			if den == 0 {
				return 0
			}
			return num / den
		}
	}
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j] < sorted[j-1]; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	return sorted[len(sorted)/2]
}
