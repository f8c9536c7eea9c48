// Package pdf turns blueprint PDF bytes into per-page digests: positioned
// text runs, vector line work and embedded raster images, parsed from the
// decoded content streams that pdfcpu exposes.
package pdf

import (
	"strconv"
	"strings"
	"unicode"

	"loadplan/internal/domain"
	"loadplan/internal/geometry"
)

// pageContent is everything recovered from one page's content stream.
type pageContent struct {
	runs  []domain.TextRun
	lines []geometry.Line
	rects []geometry.BBox
}

// parseContent scans a decoded content stream for the operators that
// matter here: path construction (m, l, c, re, h) for wall line work and
// text positioning/showing (Tm, Td, TD, T*, Tj, TJ, ', ") for labels and
// dimension strings. Graphics state operators are ignored; coordinates
// are taken in default user space.
func parseContent(data []byte) pageContent {
	var pc pageContent

	var nums []float64
	var pending []string

	var cur, subpathStart geometry.Point
	pathOpen := false

	var textPos, lineStart geometry.Point
	leading := 12.0

	resetNums := func() { nums = nums[:0] }
	takePending := func() string {
		s := strings.Join(pending, "")
		pending = pending[:0]
		return s
	}
	emit := func(text string) {
		text = cleanRunText(text)
		if text == "" {
			return
		}
		pc.runs = append(pc.runs, domain.TextRun{Text: text, At: textPos})
	}

	i := 0
	for i < len(data) {
		c := data[i]
		switch {
		case c == '(':
			s, next := readLiteralString(data, i)
			pending = append(pending, s)
			i = next
		case c == '<':
			// Hex strings and dictionaries carry no geometry we use.
			i = skipAngle(data, i)
		case c == '%':
			for i < len(data) && data[i] != '\n' && data[i] != '\r' {
				i++
			}
		case c == '/':
			// Name object: consume the slash and the name.
			i++
			for i < len(data) && !isPDFSpace(data[i]) && !isPDFDelim(data[i]) {
				i++
			}
		case isPDFSpace(c) || isPDFDelim(c):
			i++
		default:
			start := i
			for i < len(data) && !isPDFSpace(data[i]) && !isPDFDelim(data[i]) {
				i++
			}
			tok := string(data[start:i])
			if v, err := strconv.ParseFloat(tok, 64); err == nil {
				nums = append(nums, v)
				continue
			}

			switch tok {
			case "m":
				if len(nums) >= 2 {
					cur = geometry.Point{X: nums[len(nums)-2], Y: nums[len(nums)-1]}
					subpathStart = cur
					pathOpen = true
				}
			case "l":
				if pathOpen && len(nums) >= 2 {
					next := geometry.Point{X: nums[len(nums)-2], Y: nums[len(nums)-1]}
					pc.lines = append(pc.lines, geometry.Line{Start: cur, End: next})
					cur = next
				}
			case "c", "v", "y":
				// Curves are approximated by their chord. Walls are
				// straight; curved content is mostly annotation.
				if pathOpen && len(nums) >= 2 {
					next := geometry.Point{X: nums[len(nums)-2], Y: nums[len(nums)-1]}
					pc.lines = append(pc.lines, geometry.Line{Start: cur, End: next})
					cur = next
				}
			case "re":
				if len(nums) >= 4 {
					x, y := nums[len(nums)-4], nums[len(nums)-3]
					w, h := nums[len(nums)-2], nums[len(nums)-1]
					pc.rects = append(pc.rects, geometry.BBox{X0: x, Y0: y, X1: x + w, Y1: y + h}.Norm())
				}
			case "h":
				if pathOpen && cur.Distance(subpathStart) > 1e-9 {
					pc.lines = append(pc.lines, geometry.Line{Start: cur, End: subpathStart})
					cur = subpathStart
				}
			case "BT":
				textPos = geometry.Point{}
				lineStart = geometry.Point{}
			case "Tm":
				if len(nums) >= 6 {
					textPos = geometry.Point{X: nums[len(nums)-2], Y: nums[len(nums)-1]}
					lineStart = textPos
				}
			case "Td":
				if len(nums) >= 2 {
					lineStart = lineStart.Add(geometry.Point{X: nums[len(nums)-2], Y: nums[len(nums)-1]})
					textPos = lineStart
				}
			case "TD":
				if len(nums) >= 2 {
					leading = -nums[len(nums)-1]
					lineStart = lineStart.Add(geometry.Point{X: nums[len(nums)-2], Y: nums[len(nums)-1]})
					textPos = lineStart
				}
			case "TL":
				if len(nums) >= 1 {
					leading = nums[len(nums)-1]
				}
			case "T*":
				lineStart.Y -= leading
				textPos = lineStart
			case "Tj", "TJ":
				emit(takePending())
			case "'":
				lineStart.Y -= leading
				textPos = lineStart
				emit(takePending())
			case "\"":
				lineStart.Y -= leading
				textPos = lineStart
				emit(takePending())
			case "BI":
				// Inline image: skip to EI.
				i = skipInlineImage(data, i)
			default:
				// Any other operator consumes its operands.
				pending = pending[:0]
			}
			resetNums()
		}
	}
	return pc
}

// readLiteralString reads a parenthesized PDF string starting at data[i] == '('
// and returns the decoded text plus the index just past the closing paren.
// Balanced nested parentheses and backslash escapes are honoured.
func readLiteralString(data []byte, i int) (string, int) {
	var sb strings.Builder
	depth := 1
	i++
	for i < len(data) && depth > 0 {
		c := data[i]
		switch c {
		case '\\':
			if i+1 >= len(data) {
				i++
				continue
			}
			i++
			switch data[i] {
			case 'n':
				sb.WriteByte('\n')
			case 'r':
				sb.WriteByte('\r')
			case 't':
				sb.WriteByte('\t')
			case 'b', 'f':
				// Ignored control escapes.
			case '\\', '(', ')':
				sb.WriteByte(data[i])
			default:
				if data[i] >= '0' && data[i] <= '7' {
					val := int(data[i] - '0')
					for n := 0; n < 2 && i+1 < len(data) && data[i+1] >= '0' && data[i+1] <= '7'; n++ {
						i++
						val = val*8 + int(data[i]-'0')
					}
					sb.WriteByte(byte(val))
				} else {
					sb.WriteByte(data[i])
				}
			}
		case '(':
			depth++
			sb.WriteByte(c)
		case ')':
			depth--
			if depth > 0 {
				sb.WriteByte(c)
			}
		default:
			sb.WriteByte(c)
		}
		i++
	}
	return sb.String(), i
}

func skipAngle(data []byte, i int) int {
	if i+1 < len(data) && data[i+1] == '<' {
		// Dictionary: skip to matching >>.
		depth := 1
		i += 2
		for i+1 < len(data) && depth > 0 {
			if data[i] == '<' && data[i+1] == '<' {
				depth++
				i += 2
				continue
			}
			if data[i] == '>' && data[i+1] == '>' {
				depth--
				i += 2
				continue
			}
			i++
		}
		return i
	}
	// Hex string: skip to '>'.
	for i < len(data) && data[i] != '>' {
		i++
	}
	return i + 1
}

func skipInlineImage(data []byte, i int) int {
	for i+1 < len(data) {
		if data[i] == 'E' && data[i+1] == 'I' &&
			(i == 0 || isPDFSpace(data[i-1])) &&
			(i+2 >= len(data) || isPDFSpace(data[i+2])) {
			return i + 2
		}
		i++
	}
	return len(data)
}

func isPDFSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\f' || c == 0
}

func isPDFDelim(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

// cleanRunText strips non-printable characters and collapses runs of
// whitespace inside a single shown string.
func cleanRunText(text string) string {
	var sb strings.Builder
	prevSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			if !prevSpace && sb.Len() > 0 {
				sb.WriteByte(' ')
				prevSpace = true
			}
		} else if unicode.IsPrint(r) {
			sb.WriteRune(r)
			prevSpace = false
		}
	}
	return strings.TrimSpace(sb.String())
}

// joinRuns assembles run text into page text, starting a new line whenever
// the vertical position moves.
func joinRuns(runs []domain.TextRun) string {
	var sb strings.Builder
	lastY := 0.0
	for i, r := range runs {
		if i > 0 {
			if r.At.Y != lastY {
				sb.WriteByte('\n')
			} else {
				sb.WriteByte(' ')
			}
		}
		sb.WriteString(r.Text)
		lastY = r.At.Y
	}
	return sb.String()
}
