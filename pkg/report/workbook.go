// pkg/report/workbook.go
package report

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/David-Botos/retail-bi/pkg/loader"
	"github.com/David-Botos/retail-bi/pkg/model"
)

const (
	SheetSummary    = "Resumen"
	SheetRows       = "Filas_Problematicas"
	SheetColumns    = "Estadisticas_Columnas"
	SheetRowInfo    = "Info_Problemas"
	detailPrefix    = "Detalle_"
	maxDetailSheets = 5
	maxDetailRows   = 100
	maxSheetName    = 31
)

// WriteWorkbook writes the multi-sheet analysis workbook
func WriteWorkbook(w io.Writer, ps *model.ProblemSet) error {
	view, err := BuildView(ps)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return err
	}
	summary, err := summaryDataset(ps, view.NumRows())
	if err != nil {
		return err
	}
	if err := loader.WriteSheet(f, SheetSummary, summary, false); err != nil {
		return fmt.Errorf("failed to write %s sheet: %w", SheetSummary, err)
	}

	if err := loader.WriteSheet(f, SheetRows, view, false); err != nil {
		return fmt.Errorf("failed to write %s sheet: %w", SheetRows, err)
	}

	stats, err := columnStatsDataset(ps)
	if err != nil {
		return err
	}
	if err := loader.WriteSheet(f, SheetColumns, stats, false); err != nil {
		return fmt.Errorf("failed to write %s sheet: %w", SheetColumns, err)
	}

	for i := range ps.Defects {
		if i == maxDetailSheets {
			break
		}
		d := &ps.Defects[i]
		if len(d.Indices) == 0 {
			continue
		}
		detail, err := detailDataset(ps.Snapshot, d)
		if err != nil {
			return err
		}
		name := uniqueSheetName(f, detailPrefix+d.Column)
		if err := loader.WriteSheet(f, name, detail, false); err != nil {
			return fmt.Errorf("failed to write %s sheet: %w", name, err)
		}
	}

	f.SetActiveSheet(0)
	return f.Write(w)
}

func summaryDataset(ps *model.ProblemSet, problemRows int) (*model.Dataset, error) {
	total := ps.Snapshot.NumRows()
	share := 0.0
	if total > 0 {
		share = float64(problemRows) / float64(total) * 100
	}
	return model.NewDataset([]string{"Métrica", "Valor"}, [][]interface{}{
		{"Total filas en archivo original", int64(total)},
		{"Total filas problemáticas", int64(problemRows)},
		{"Porcentaje de filas problemáticas", fmt.Sprintf("%.2f%%", share)},
		{"Total columnas problemáticas", int64(len(ps.Defects))},
		{"Fecha de análisis", ps.GeneratedAt.Format("2006-01-02 15:04:05")},
	})
}

func columnStatsDataset(ps *model.ProblemSet) (*model.Dataset, error) {
	columns := []string{
		"Columna", "Tipo_Detectado", "Total_Problemas", "Porcentaje_Problemas",
		"Total_Registros", "Valores_Nulos", "Valores_Vacios", "Valores_Unicos",
	}
	rows := make([][]interface{}, len(ps.Defects))
	for i, d := range ps.Defects {
		rows[i] = []interface{}{
			d.Column,
			d.Type.Label(),
			int64(d.Count),
			fmt.Sprintf("%.2f%%", d.Percentage),
			int64(d.Stats.TotalRows),
			int64(d.Stats.NullCount),
			int64(d.Stats.BlankCount),
			int64(d.Stats.DistinctCount),
		}
	}
	return model.NewDataset(columns, rows)
}

func detailDataset(snapshot *model.Dataset, d *model.DefectRecord) (*model.Dataset, error) {
	indices := d.Indices
	if len(indices) > maxDetailRows {
		indices = indices[:maxDetailRows]
	}
	values, _ := snapshot.Column(d.Column)

	var rows [][]interface{}
	for _, label := range indices {
		pos, ok := snapshot.Position(label)
		if !ok {
			continue
		}
		rows = append(rows, []interface{}{int64(label), values[pos], d.Type.Label()})
	}

	columns := []string{ColOriginalIndex, d.Column, "Tipo_Problema"}
	if d.Column == ColOriginalIndex || d.Column == "Tipo_Problema" {
		columns[1] = d.Column + "_valor"
	}
	return model.NewDataset(columns, rows)
}

// SheetName turns an arbitrary label into a valid worksheet name
func SheetName(label string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '_'
		}
		return r
	}, label)
	name = strings.Trim(name, "'")
	if name == "" {
		name = "Hoja"
	}
	return truncateRunes(name, maxSheetName)
}

func uniqueSheetName(f *excelize.File, label string) string {
	base := SheetName(label)
	name := base
	for n := 1; ; n++ {
		if idx, _ := f.GetSheetIndex(name); idx == -1 {
			return name
		}
		suffix := fmt.Sprintf("~%d", n)
		name = truncateRunes(base, maxSheetName-len(suffix)) + suffix
	}
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
