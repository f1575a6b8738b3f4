// pkg/loader/excel.go
package loader

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

// readXLSXGrid returns the first sheet with merged ranges expanded, so every
// covered cell carries the top-left value. Cells are read unformatted:
// numbers keep their full precision and date-styled serials become ISO
// dates, whatever number format the workbook displays them with.
func readXLSXGrid(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	sheet := sheets[0]

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	resolveDates(f, sheet, rows)

	merges, err := f.GetMergeCells(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read merged cells of %q: %w", sheet, err)
	}

	for _, m := range merges {
		startCol, startRow, err := excelize.CellNameToCoordinates(m.GetStartAxis())
		if err != nil {
			continue
		}
		endCol, endRow, err := excelize.CellNameToCoordinates(m.GetEndAxis())
		if err != nil {
			continue
		}
		var value string
		if startRow-1 < len(rows) && startCol-1 < len(rows[startRow-1]) {
			value = rows[startRow-1][startCol-1]
		}

		for r := startRow - 1; r < endRow && r < len(rows); r++ {
			if len(rows[r]) < endCol {
				grown := make([]string, endCol)
				copy(grown, rows[r])
				rows[r] = grown
			}
			for c := startCol - 1; c < endCol; c++ {
				rows[r][c] = value
			}
		}
	}

	return rows, nil
}

// resolveDates rewrites numeric cells carrying a date number format as
// "2006-01-02" or "2006-01-02 15:04:05"
func resolveDates(f *excelize.File, sheet string, rows [][]string) {
	date1904 := false
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		date1904 = *props.Date1904
	}
	styles := make(map[int]bool)

	for r, row := range rows {
		for c, raw := range row {
			serial, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				continue
			}
			if typ, err := f.GetCellType(sheet, cell); err != nil ||
				(typ != excelize.CellTypeNumber && typ != excelize.CellTypeUnset) {
				continue
			}
			styleID, err := f.GetCellStyle(sheet, cell)
			if err != nil || styleID == 0 {
				continue
			}
			isDate, seen := styles[styleID]
			if !seen {
				isDate = isDateStyle(f, styleID)
				styles[styleID] = isDate
			}
			if !isDate {
				continue
			}
			t, err := excelize.ExcelDateToTime(serial, date1904)
			if err != nil {
				continue
			}
			row[c] = formatSerialDate(t)
		}
	}
}

func formatSerialDate(t time.Time) string {
	t = t.Round(time.Second)
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
		return t.Format("2006-01-02")
	}
	return t.Format("2006-01-02 15:04:05")
}

func isDateStyle(f *excelize.File, styleID int) bool {
	style, err := f.GetStyle(styleID)
	if err != nil || style == nil {
		return false
	}
	if style.CustomNumFmt != nil {
		return IsDateNumFmt(*style.CustomNumFmt)
	}
	return isBuiltinDateFmt(style.NumFmt)
}

// builtin ids 14-22 and 45-47 are dates and times; 27-36 and 50-58 are the
// East Asian date variants
func isBuiltinDateFmt(id int) bool {
	switch {
	case id >= 14 && id <= 22, id >= 27 && id <= 36, id >= 45 && id <= 47, id >= 50 && id <= 58:
		return true
	}
	return false
}

// IsDateNumFmt reports whether a custom number format renders a date or
// time. Quoted literals, escaped characters and bracketed sections such as
// colors or locales are ignored.
func IsDateNumFmt(format string) bool {
	if strings.EqualFold(format, "general") {
		return false
	}
	inQuote, inBracket, escaped := false, false, false
	for _, r := range strings.ToLower(format) {
		switch {
		case escaped:
			escaped = false
		case inQuote:
			inQuote = r != '"'
		case inBracket:
			inBracket = r != ']'
		case r == '\\':
			escaped = true
		case r == '"':
			inQuote = true
		case r == '[':
			inBracket = true
		case strings.ContainsRune("dmyhs", r):
			return true
		}
	}
	return false
}

// readXLSGrid reads the first sheet of a legacy BIFF workbook. The parser
// panics on some malformed files; that is reported as an error.
func readXLSGrid(path string) (grid [][]string, err error) {
	defer func() {
		if r := recover(); r != nil {
			grid, err = nil, fmt.Errorf("malformed xls workbook: %v", r)
		}
	}()

	wb, err := xls.Open(path, "utf-8")
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}

	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, errors.New("workbook has no sheets")
	}

	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			grid = append(grid, nil)
			continue
		}
		last := row.LastCol()
		if last < 0 {
			last = 0
		}
		cells := make([]string, last)
		for j := row.FirstCol(); j < last; j++ {
			if j >= 0 {
				cells[j] = row.Col(j)
			}
		}
		grid = append(grid, cells)
	}

	return grid, nil
}
