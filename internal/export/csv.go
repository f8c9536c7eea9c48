// Package export renders a finished load calculation as CSV or XLSX for
// download.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"loadplan/internal/domain"
)

// UTF-8 BOM bytes for Excel compatibility on Windows.
var BOM = []byte{0xEF, 0xBB, 0xBF}

// columns defines the room-loads header row.
var columns = []string{
	"Room",
	"Floor",
	"Area (sq ft)",
	"Heating (BTU/hr)",
	"Cooling Sensible (BTU/hr)",
	"Cooling Latent (BTU/hr)",
	"Cooling Total (BTU/hr)",
}

// Writer wraps csv.Writer for exporting a load calculation as CSV.
type Writer struct {
	csv *csv.Writer
}

// NewWriter creates a Writer that writes CSV to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{csv: csv.NewWriter(w)}
}

// WriteHeader writes the room-loads header row.
func (w *Writer) WriteHeader() error {
	return w.csv.Write(columns)
}

// WriteCalculation writes one row per room followed by a TOTAL row.
func (w *Writer) WriteCalculation(calc *domain.SystemLoadCalculation) error {
	for i := range calc.Rooms {
		if err := w.csv.Write(roomToRow(&calc.Rooms[i])); err != nil {
			return err
		}
	}

	total := make([]string, len(columns))
	total[0] = "TOTAL"
	total[2] = formatArea(calc.FloorAreaSqFt)
	total[3] = formatBTUH(calc.HeatingBTUH)
	total[4] = formatBTUH(calc.CoolingSensibleBTUH)
	total[5] = formatBTUH(calc.CoolingLatentBTUH)
	total[6] = formatBTUH(calc.CoolingBTUH)
	return w.csv.Write(total)
}

// Flush flushes the underlying csv.Writer buffer.
func (w *Writer) Flush() {
	w.csv.Flush()
}

// Error returns any error from the underlying csv.Writer.
func (w *Writer) Error() error {
	return w.csv.Error()
}

func roomToRow(r *domain.RoomLoadBreakdown) []string {
	row := make([]string, len(columns))
	row[0] = r.RoomName
	row[1] = strconv.Itoa(r.FloorIndex)
	row[2] = formatArea(r.AreaSqFt)
	row[3] = formatBTUH(r.HeatingBTUH)
	row[4] = formatBTUH(r.CoolingSensibleBTUH)
	row[5] = formatBTUH(r.CoolingLatentBTUH)
	row[6] = formatBTUH(r.CoolingBTUH)
	return row
}

// Loads are reported as whole BTU/hr; areas keep one decimal.
func formatBTUH(v float64) string {
	return strconv.FormatFloat(v, 'f', 0, 64)
}

func formatArea(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}

// nonAlphanumeric matches characters that are not alphanumeric, hyphen, or underscore.
var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// multiUnderscore matches consecutive underscores.
var multiUnderscore = regexp.MustCompile(`_{2,}`)

// SanitizeFilename cleans a blueprint name for use in Content-Disposition.
// Replaces non-alphanumeric chars (except - _) with _, collapses consecutive
// underscores, and truncates to 100 chars.
func SanitizeFilename(name string) string {
	s := nonAlphanumeric.ReplaceAllString(name, "_")
	s = multiUnderscore.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if len(s) > 100 {
		s = s[:100]
	}
	return s
}

// BuildFilename returns a sanitized filename for Content-Disposition.
// The source file's own extension is dropped first, so "plan.pdf" exports
// as "plan_{YYYY-MM-DD}.csv" rather than "plan_pdf_...".
func BuildFilename(sourceName, ext string) string {
	base := strings.TrimSuffix(sourceName, filepath.Ext(sourceName))
	sanitized := SanitizeFilename(base)
	date := time.Now().Format("2006-01-02")
	return fmt.Sprintf("%s_%s.%s", sanitized, date, ext)
}
