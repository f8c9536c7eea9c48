package pdf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loadplan/internal/domain"
	"loadplan/internal/geometry"
)

func TestParseContent_TextShowing(t *testing.T) {
	stream := []byte(`BT /F1 12 Tf 1 0 0 1 72 700 Tm (LIVING ROOM) Tj 0 -20 Td (14'-6" x 12'-0") Tj ET`)
	pc := parseContent(stream)

	require.Len(t, pc.runs, 2)
	assert.Equal(t, "LIVING ROOM", pc.runs[0].Text)
	assert.Equal(t, geometry.Point{X: 72, Y: 700}, pc.runs[0].At)
	assert.Equal(t, `14'-6" x 12'-0"`, pc.runs[1].Text)
	assert.Equal(t, geometry.Point{X: 72, Y: 680}, pc.runs[1].At)
}

func TestParseContent_TJArray(t *testing.T) {
	stream := []byte(`BT 100 500 Td [(SCALE: 1/4) -30 (" = 1'-0")] TJ ET`)
	pc := parseContent(stream)

	require.Len(t, pc.runs, 1)
	assert.Equal(t, `SCALE: 1/4" = 1'-0"`, pc.runs[0].Text)
}

func TestParseContent_StringEscapes(t *testing.T) {
	stream := []byte(`BT (A\(B\)C \101) Tj ET`)
	pc := parseContent(stream)

	require.Len(t, pc.runs, 1)
	assert.Equal(t, "A(B)C A", pc.runs[0].Text)
}

func TestParseContent_NestedParens(t *testing.T) {
	stream := []byte(`BT ((nested) text) Tj ET`)
	pc := parseContent(stream)

	require.Len(t, pc.runs, 1)
	assert.Equal(t, "(nested) text", pc.runs[0].Text)
}

func TestParseContent_PathOperators(t *testing.T) {
	stream := []byte(`72 72 m 172 72 l 172 172 l 72 172 l h S 10 10 50 40 re f`)
	pc := parseContent(stream)

	require.Len(t, pc.lines, 4)
	assert.Equal(t, geometry.Point{X: 72, Y: 72}, pc.lines[0].Start)
	assert.Equal(t, geometry.Point{X: 172, Y: 72}, pc.lines[0].End)
	// h closes back to the subpath start.
	assert.Equal(t, geometry.Point{X: 72, Y: 72}, pc.lines[3].End)

	require.Len(t, pc.rects, 1)
	assert.Equal(t, geometry.BBox{X0: 10, Y0: 10, X1: 60, Y1: 50}, pc.rects[0])
}

func TestParseContent_CurveChord(t *testing.T) {
	stream := []byte(`0 0 m 10 0 20 10 30 10 c S`)
	pc := parseContent(stream)

	require.Len(t, pc.lines, 1)
	assert.Equal(t, geometry.Point{X: 30, Y: 10}, pc.lines[0].End)
}

func TestParseContent_SkipsInlineImagesAndDicts(t *testing.T) {
	stream := []byte(`BI /W 4 /H 4 ID 0123456789abcdef EI 100 100 m 200 100 l S << /Type /Whatever >> (after) Tj`)
	pc := parseContent(stream)

	require.Len(t, pc.lines, 1)
	assert.Equal(t, geometry.Point{X: 200, Y: 100}, pc.lines[0].End)
	require.Len(t, pc.runs, 1)
	assert.Equal(t, "after", pc.runs[0].Text)
}

func TestParseContent_EmptyAndGarbage(t *testing.T) {
	assert.Empty(t, parseContent(nil).runs)
	pc := parseContent([]byte(`%% comment only`))
	assert.Empty(t, pc.runs)
	assert.Empty(t, pc.lines)
}

func TestJoinRuns(t *testing.T) {
	runs := []domain.TextRun{
		{Text: "FIRST", At: geometry.Point{X: 10, Y: 700}},
		{Text: "FLOOR", At: geometry.Point{X: 60, Y: 700}},
		{Text: "PLAN", At: geometry.Point{X: 10, Y: 680}},
	}
	assert.Equal(t, "FIRST FLOOR\nPLAN", joinRuns(runs))
	assert.Equal(t, "", joinRuns(nil))
}
