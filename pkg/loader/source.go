// pkg/loader/source.go
package loader

import (
	"fmt"
	"strings"

	"github.com/David-Botos/retail-bi/pkg/model"
)

// naMarkers are the spreadsheet and export spellings read as missing values
var naMarkers = map[string]struct{}{
	"": {}, "#N/A": {}, "#N/A N/A": {}, "#NA": {}, "-1.#IND": {}, "-1.#QNAN": {},
	"-NaN": {}, "-nan": {}, "1.#IND": {}, "1.#QNAN": {}, "<NA>": {}, "N/A": {},
	"NA": {}, "NULL": {}, "NaN": {}, "None": {}, "n/a": {}, "nan": {}, "null": {},
}

func isNAMarker(s string) bool {
	_, ok := naMarkers[s]
	return ok
}

func cellValue(s string) interface{} {
	if isNAMarker(s) {
		return nil
	}
	return s
}

// Source is a file read into a raw grid, before any header is chosen.
// Spreadsheet grids have fully blank rows dropped, so grid positions are
// row numbers as seen by header detection. CSV grids keep delimiter-only
// rows as data.
type Source struct {
	Path      string
	Name      string
	Type      model.FileType
	Grid      [][]string
	Encoding  string
	Delimiter rune
	Method    string

	anomalies  []string
	fixedWidth int
}

// IsSpreadsheet reports whether the header row has to be located
func (s *Source) IsSpreadsheet() bool {
	return s.Type == model.FileTypeExcel
}

// Anomalies returns findings recorded while reading the file
func (s *Source) Anomalies() []string {
	return append([]string(nil), s.anomalies...)
}

// Preview returns at most n leading rows
func (s *Source) Preview(n int) [][]string {
	if n > len(s.Grid) {
		n = len(s.Grid)
	}
	return s.Grid[:n]
}

// Frame builds a dataset using the given grid row as header
func (s *Source) Frame(headerRow int) (*model.Dataset, error) {
	if headerRow < 0 || headerRow >= len(s.Grid) {
		return nil, fmt.Errorf("header row %d out of range: %s has %d rows", headerRow, s.Name, len(s.Grid))
	}

	width := s.fixedWidth
	if width == 0 {
		for _, r := range s.Grid[headerRow:] {
			if len(r) > width {
				width = len(r)
			}
		}
	}

	names := headerNames(s.Grid[headerRow], width)
	body := s.Grid[headerRow+1:]
	rows := make([][]interface{}, 0, len(body))
	for _, raw := range body {
		row := make([]interface{}, width)
		for j := 0; j < width && j < len(raw); j++ {
			row[j] = cellValue(raw[j])
		}
		rows = append(rows, row)
	}

	return model.NewDataset(names, rows)
}

// headerNames names empty header cells "Unnamed: <i>" and suffixes repeated
// names with ".1", ".2", ...
func headerNames(header []string, width int) []string {
	names := make([]string, width)
	used := make(map[string]int, width)
	for j := 0; j < width; j++ {
		name := ""
		if j < len(header) {
			name = header[j]
		}
		if strings.TrimSpace(name) == "" || isNAMarker(name) {
			name = fmt.Sprintf("Unnamed: %d", j)
		}

		if n, seen := used[name]; seen {
			for {
				n++
				candidate := fmt.Sprintf("%s.%d", name, n)
				if _, taken := used[candidate]; !taken {
					used[name] = n
					name = candidate
					break
				}
			}
		}
		used[name] = 0
		names[j] = name
	}
	return names
}

func compactGrid(rows [][]string) [][]string {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		if !isBlankRow(r) {
			out = append(out, r)
		}
	}
	return out
}

func isBlankRow(r []string) bool {
	for _, c := range r {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
