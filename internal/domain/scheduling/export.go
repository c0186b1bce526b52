package scheduling

import (
	"bytes"
	"fmt"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/hospital/hms/internal/availability"
	"github.com/hospital/hms/internal/scheduleview"
)

const exportSheet = "Week"

var statusFill = map[availability.SlotStatus]string{
	availability.SlotAvailable:  "#C6EFCE",
	availability.SlotBooked:     "#9BC2E6",
	availability.SlotBlocked:    "#F8CBAD",
	availability.SlotOutOfHours: "#E7E6E6",
}

// slotLabel is the cell text for one slot.
func slotLabel(s availability.Slot) string {
	switch s.Status {
	case availability.SlotAvailable:
		return "free"
	case availability.SlotOutOfHours:
		if s.Reason == availability.ReasonBreak {
			return "break"
		}
		return "-"
	default:
		if s.Reason != "" && s.Reason != string(s.Status) {
			return fmt.Sprintf("%s (%s)", s.Status, s.Reason)
		}
		return string(s.Status)
	}
}

// WeekWorkbook renders a week as a grid of time rows by weekday columns and
// returns the xlsx body with a suggested file name.
func WeekWorkbook(doctorID uuid.UUID, week scheduleview.WeekView) (*bytes.Buffer, string, error) {
	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(exportSheet)
	if err != nil {
		return nil, "", fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	lastCol, _ := excelize.ColumnNumberToName(1 + len(week.Days))
	f.SetColWidth(exportSheet, "A", "A", 8)
	f.SetColWidth(exportSheet, "B", lastCol, 20)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, "", fmt.Errorf("header style: %w", err)
	}
	styles := make(map[availability.SlotStatus]int, len(statusFill))
	for status, color := range statusFill {
		id, err := f.NewStyle(&excelize.Style{
			Fill:      excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
			Alignment: &excelize.Alignment{Horizontal: "center"},
		})
		if err != nil {
			return nil, "", fmt.Errorf("slot style: %w", err)
		}
		styles[status] = id
	}

	f.SetCellValue(exportSheet, "A1", fmt.Sprintf("Doctor %s, week %s to %s", doctorID, week.Start, week.End))
	f.MergeCell(exportSheet, "A1", lastCol+"1")
	f.SetCellStyle(exportSheet, "A1", "A1", headerStyle)

	f.SetCellValue(exportSheet, "A2", "Time")
	for i, day := range week.Days {
		c, _ := excelize.CoordinatesToCellName(2+i, 2)
		f.SetCellValue(exportSheet, c, fmt.Sprintf("%s %s", day.Weekday[:3], day.Date))
	}
	f.SetCellStyle(exportSheet, "A2", lastCol+"2", headerStyle)

	if len(week.Days) > 0 {
		for r, slot := range week.Days[0].Slots {
			row := 3 + r
			timeCell, _ := excelize.CoordinatesToCellName(1, row)
			f.SetCellValue(exportSheet, timeCell, slot.Time.String())
			for i, day := range week.Days {
				if r >= len(day.Slots) {
					continue
				}
				s := day.Slots[r]
				c, _ := excelize.CoordinatesToCellName(2+i, row)
				f.SetCellValue(exportSheet, c, slotLabel(s))
				f.SetCellStyle(exportSheet, c, c, styles[s.Status])
			}
		}
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		return nil, "", fmt.Errorf("write workbook: %w", err)
	}
	return buf, fmt.Sprintf("calendar_%s_%s.xlsx", doctorID, week.Start), nil
}
