package export

import (
	"fmt"
	"math"

	"github.com/xuri/excelize/v2"

	"loadplan/internal/domain"
)

const (
	roomSheet    = "Room Loads"
	warningSheet = "Warnings"
)

// WriteXLSX renders the calculation as an Excel workbook. The Room Loads
// sheet carries one row per room with totals and equipment sizing below;
// a Warnings sheet is added when the result has any.
func WriteXLSX(calc *domain.SystemLoadCalculation) ([]byte, error) {
	f := excelize.NewFile()

	if index, _ := f.GetSheetIndex(roomSheet); index == -1 {
		if _, err := f.NewSheet(roomSheet); err != nil {
			return nil, err
		}
	}
	// drop the default empty sheet
	_ = f.DeleteSheet("Sheet1")
	activeIndex, _ := f.GetSheetIndex(roomSheet)
	f.SetActiveSheet(activeIndex)

	for i, h := range columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(roomSheet, cell, h)
	}

	row := 2
	write := func(col int, v any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(roomSheet, cell, v)
	}

	for i := range calc.Rooms {
		r := &calc.Rooms[i]
		write(1, r.RoomName)
		write(2, r.FloorIndex)
		write(3, r.AreaSqFt)
		write(4, math.Round(r.HeatingBTUH))
		write(5, math.Round(r.CoolingSensibleBTUH))
		write(6, math.Round(r.CoolingLatentBTUH))
		write(7, math.Round(r.CoolingBTUH))
		row++
	}

	write(1, "TOTAL")
	write(3, calc.FloorAreaSqFt)
	write(4, math.Round(calc.HeatingBTUH))
	write(5, math.Round(calc.CoolingSensibleBTUH))
	write(6, math.Round(calc.CoolingLatentBTUH))
	write(7, math.Round(calc.CoolingBTUH))
	row += 2

	write(1, "Location")
	write(2, calc.Location)
	row++
	write(1, "Heating Equipment (tons)")
	write(2, calc.HeatingTons)
	row++
	write(1, "Cooling Equipment (tons)")
	write(2, calc.CoolingTons)

	_ = f.SetColWidth(roomSheet, "A", "A", 24) // room
	_ = f.SetColWidth(roomSheet, "B", "B", 8)  // floor
	_ = f.SetColWidth(roomSheet, "C", "G", 18) // area and loads

	if len(calc.Warnings) > 0 {
		if err := writeWarningSheet(f, calc.Warnings); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func writeWarningSheet(f *excelize.File, warnings []domain.Warning) error {
	if _, err := f.NewSheet(warningSheet); err != nil {
		return err
	}

	headers := []string{"Code", "Field", "Message"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(warningSheet, cell, h)
	}
	for i, w := range warnings {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, i+2)
			_ = f.SetCellValue(warningSheet, cell, v)
		}
		write(1, w.Code)
		write(2, w.Field)
		write(3, w.Message)
	}

	_ = f.SetColWidth(warningSheet, "A", "B", 20)
	_ = f.SetColWidth(warningSheet, "C", "C", 80)
	return nil
}
