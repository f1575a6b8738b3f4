package loader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/David-Botos/retail-bi/pkg/model"
	"github.com/David-Botos/retail-bi/pkg/profile"
)

func newTestLocator() *HeaderLocator {
	return NewHeaderLocator(profile.NewScorer(profile.DefaultWeights()), DefaultLocatorOptions(), nil)
}

func excelSource(grid [][]string) *Source {
	return &Source{Name: "test.xlsx", Type: model.FileTypeExcel, Grid: grid}
}

func writeWorkbook(t *testing.T, path string, rows [][]interface{}, merges ...[2]string) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, r := range rows {
		if r == nil {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		row := r
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	for _, m := range merges {
		require.NoError(t, f.MergeCell("Sheet1", m[0], m[1]))
	}
	require.NoError(t, f.SaveAs(path))
}

func TestLocatePrefersClearlyBetterRow(t *testing.T) {
	src := excelSource([][]string{
		{"0", "1", "2"},
		{"Fecha", "Producto", "Cantidad"},
		{"2023-01-01", "Widget", "5"},
	})

	res, err := newTestLocator().Locate(src.Grid, src.Frame)
	require.NoError(t, err)

	assert.Equal(t, 1, res.DetectedRow)
	assert.Equal(t, 1, res.HeaderRow)
	assert.InDelta(t, 39.0, res.BestScore, 1e-9)
	assert.InDelta(t, 1.0, res.Row0Score, 1e-9)
	assert.Equal(t, []string{"Fecha", "Producto", "Cantidad"}, res.Dataset.Columns())
	assert.Equal(t, 1, res.Dataset.NumRows())
	require.Len(t, res.Candidates, 3)
	assert.True(t, res.Candidates[1].IsCandidate)
	assert.False(t, res.Candidates[0].IsCandidate)
}

func TestCandidatesKeepOnlyNonBlankValues(t *testing.T) {
	src := excelSource([][]string{
		{"Reporte", "", " nan "},
		{" Fecha ", "", "Producto", "Cantidad"},
		{"2023-01-01", "", "Widget", "5"},
	})

	res, err := newTestLocator().Locate(src.Grid, src.Frame)
	require.NoError(t, err)
	require.Len(t, res.Candidates, 3)
	assert.Equal(t, []string{"Reporte"}, res.Candidates[0].Values)
	assert.Equal(t, []string{"Fecha", "Producto", "Cantidad"}, res.Candidates[1].Values)
}

func TestLocateKeepsRowZeroWithoutClearWinner(t *testing.T) {
	src := excelSource([][]string{
		{"Fecha", "Producto", "Cantidad"},
		{"Fecha de alta", "Producto", "Cantidad"},
		{"2023-01-01", "Widget", "5"},
	})

	res, err := newTestLocator().Locate(src.Grid, src.Frame)
	require.NoError(t, err)
	assert.Equal(t, 0, res.HeaderRow)
	assert.Empty(t, res.Anomalies)
}

func TestLocateReprobesDegenerateHeader(t *testing.T) {
	src := excelSource([][]string{
		{"Reporte de ventas del mes", "", ""},
		{"Cliente", "Monto", ""},
		{"Ana", "100", "Norte"},
	})

	res, err := newTestLocator().Locate(src.Grid, src.Frame)
	require.NoError(t, err)

	assert.Equal(t, 0, res.DetectedRow)
	assert.Equal(t, 1, res.HeaderRow)
	assert.Equal(t, []string{"Cliente", "Monto", "Unnamed: 2"}, res.Dataset.Columns())
	assert.Contains(t, res.Anomalies, "Encabezado degenerado en fila 0; se usó la fila 1")
}

func TestLocateKeepsDegenerateHeaderWhenNoAlternative(t *testing.T) {
	src := excelSource([][]string{
		{"Titulo", "", ""},
		{"x", "", ""},
		{"y", "", ""},
		{"z", "", "w"},
	})

	res, err := newTestLocator().Locate(src.Grid, src.Frame)
	require.NoError(t, err)

	assert.Equal(t, 0, res.HeaderRow)
	assert.Equal(t, []string{"Titulo", "Unnamed: 1", "Unnamed: 2"}, res.Dataset.Columns())
	assert.Contains(t, res.Anomalies, "Encabezado degenerado en fila 0; no se encontró una alternativa")
}

func TestLocateFallsBackToRowZeroOnFrameError(t *testing.T) {
	src := excelSource([][]string{
		{"0", "1", "2"},
		{"Fecha", "Producto", "Cantidad"},
		{"2023-01-01", "Widget", "5"},
	})
	frame := func(row int) (*model.Dataset, error) {
		if row != 0 {
			return nil, errors.New("boom")
		}
		return src.Frame(0)
	}

	res, err := newTestLocator().Locate(src.Grid, frame)
	require.NoError(t, err)
	assert.Equal(t, 1, res.DetectedRow)
	assert.Equal(t, 0, res.HeaderRow)
	assert.Equal(t, []string{"0", "1", "2"}, res.Dataset.Columns())
	assert.NotEmpty(t, res.Anomalies)
}

func TestHeaderNames(t *testing.T) {
	assert.Equal(t,
		[]string{"A", "A.1", "Unnamed: 2", "A.2", "Unnamed: 4"},
		headerNames([]string{"A", "A", " ", "A"}, 5))
	assert.Equal(t,
		[]string{"A.1", "A", "A.2"},
		headerNames([]string{"A.1", "A", "A"}, 3))
}

func TestReadCSVWithBOMSemicolonAndRaggedRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ventas.csv")
	content := "\xEF\xBB\xBFFecha;Producto;Cantidad\n" +
		"2023-01-01;Widget;5\n" +
		"\n" +
		"2023-01-02;Gadget;NA;extra\n" +
		"2023-01-03;Cable\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	ds, meta, err := NewLoader(DefaultOptions(), nil).Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"Fecha", "Producto", "Cantidad"}, ds.Columns())
	assert.Equal(t, 3, ds.NumRows())
	qty, _ := ds.Column("Cantidad")
	assert.Equal(t, []interface{}{"5", nil, nil}, qty)

	assert.Equal(t, model.FileTypeCSV, meta.FileType)
	assert.Equal(t, ";", meta.Delimiter)
	assert.Equal(t, "utf-8-sig", meta.Encoding)
	assert.Equal(t, model.Shape{Rows: 3, Cols: 3}, meta.Shape)
	assert.Contains(t, meta.Anomalies,
		"1 filas tienen más campos que el encabezado (3); se recortaron los campos sobrantes")
}

func TestReadCSVWindows1252(t *testing.T) {
	path := filepath.Join(t.TempDir(), "latin.csv")
	require.NoError(t, os.WriteFile(path, []byte("Categor\xeda,Cantidad\nPort\xe1til,3\n"), 0o644))

	ds, meta, err := NewLoader(DefaultOptions(), nil).Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"Categoría", "Cantidad"}, ds.Columns())
	cat, _ := ds.Column("Categoría")
	assert.Equal(t, []interface{}{"Portátil"}, cat)
	assert.Equal(t, "cp1252", meta.Encoding)
	assert.Contains(t, meta.Anomalies, "El archivo no es UTF-8 válido; se decodificó como Windows-1252")
}

func TestReadCSVHeaderAlwaysRowZero(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.csv")
	require.NoError(t, os.WriteFile(path, []byte("0,1,2\nFecha,Producto,Cantidad\n"), 0o644))

	ds, meta, err := NewLoader(DefaultOptions(), nil).Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "1", "2"}, ds.Columns())
	assert.Equal(t, 0, meta.FinalHeaderRow)
	assert.Contains(t, meta.Anomalies, "Columnas con nombres genéricos detectadas: 0, 1, 2")
	assert.Contains(t, meta.Anomalies, "La primera fila de datos parece contener encabezados")
}

func TestReadCSVKeepsEmptyFieldRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ventas.csv")
	content := "\n\nProducto,Cantidad\nA,5\n,\nB,3\n \n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	ds, _, err := NewLoader(DefaultOptions(), nil).Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Producto", "Cantidad"}, ds.Columns())
	require.Equal(t, 3, ds.NumRows())
	assert.Equal(t, []interface{}{nil, nil}, ds.Row(1))
	assert.Equal(t, "B", ds.Row(2)[0])
}

func TestCSVGrid(t *testing.T) {
	records := [][]string{
		{""},
		{"Producto", "Cantidad"},
		{"A", "5"},
		{"", ""},
		{"  "},
		{"B", "3"},
	}
	assert.Equal(t, [][]string{
		{"Producto", "Cantidad"},
		{"A", "5"},
		{"", ""},
		{"B", "3"},
	}, csvGrid(records))
}

func TestReadEmptyAndUnsupported(t *testing.T) {
	dir := t.TempDir()
	l := NewLoader(DefaultOptions(), nil)

	empty := filepath.Join(dir, "empty.csv")
	require.NoError(t, os.WriteFile(empty, []byte("\n  \n"), 0o644))
	_, err := l.Read(empty)
	assert.ErrorIs(t, err, ErrEmptySource)

	_, err = l.Read(filepath.Join(dir, "notes.txt"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = l.Read(filepath.Join(dir, "missing.csv"))
	assert.Error(t, err)
}

func TestLoadWorkbookWithTitleAndMergedCells(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ventas.xlsx")
	writeWorkbook(t, path, [][]interface{}{
		{"Reporte de ventas"},
		nil,
		{"Fecha", "Producto", "Cantidad"},
		{"2023-01-01", "Widget", 5},
		{"2023-01-02", "Gadget", 3.7},
	}, [2]string{"A1", "C1"})

	l := NewLoader(DefaultOptions(), nil)
	src, err := l.Read(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Reporte de ventas", "Reporte de ventas", "Reporte de ventas"}, src.Grid[0])

	ds, meta, err := l.Resolve(src)
	require.NoError(t, err)

	assert.Equal(t, []string{"Fecha", "Producto", "Cantidad"}, ds.Columns())
	assert.Equal(t, 2, ds.NumRows())
	assert.Equal(t, 1, meta.FinalHeaderRow)
	assert.Equal(t, model.FileTypeExcel, meta.FileType)
	qty, _ := ds.Column("Cantidad")
	assert.Equal(t, []interface{}{"5", "3.7"}, qty)
}

func TestLoadWorkbookReadsTypedCells(t *testing.T) {
	path := filepath.Join(t.TempDir(), "precios.xlsx")
	f := excelize.NewFile()
	defer f.Close()

	shortDate, err := f.NewStyle(&excelize.Style{NumFmt: 14})
	require.NoError(t, err)
	dateTime, err := f.NewStyle(&excelize.Style{NumFmt: 22})
	require.NoError(t, err)
	thousands, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	require.NoError(t, err)

	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]interface{}{"Fecha", "Alta", "Precio"}))
	cells := []struct {
		date, stamp time.Time
		price       float64
	}{
		{time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC), 1234.5},
		{time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC), time.Date(2024, 2, 3, 9, 5, 0, 0, time.UTC), 2000},
	}
	for i, c := range cells {
		row := i + 2
		require.NoError(t, f.SetCellValue("Sheet1", fmt.Sprintf("A%d", row), c.date))
		require.NoError(t, f.SetCellStyle("Sheet1", fmt.Sprintf("A%d", row), fmt.Sprintf("A%d", row), shortDate))
		require.NoError(t, f.SetCellValue("Sheet1", fmt.Sprintf("B%d", row), c.stamp))
		require.NoError(t, f.SetCellStyle("Sheet1", fmt.Sprintf("B%d", row), fmt.Sprintf("B%d", row), dateTime))
		require.NoError(t, f.SetCellValue("Sheet1", fmt.Sprintf("C%d", row), c.price))
		require.NoError(t, f.SetCellStyle("Sheet1", fmt.Sprintf("C%d", row), fmt.Sprintf("C%d", row), thousands))
	}
	require.NoError(t, f.SaveAs(path))

	ds, _, err := NewLoader(DefaultOptions(), nil).Load(path)
	require.NoError(t, err)
	require.Equal(t, []string{"Fecha", "Alta", "Precio"}, ds.Columns())

	dates, _ := ds.Column("Fecha")
	assert.Equal(t, []interface{}{"2024-01-15", "2024-02-03"}, dates)
	stamps, _ := ds.Column("Alta")
	assert.Equal(t, []interface{}{"2024-01-15 10:30:00", "2024-02-03 09:05:00"}, stamps)
	prices, _ := ds.Column("Precio")
	assert.Equal(t, []interface{}{"1234.5", "2000"}, prices)
}

func TestIsDateNumFmt(t *testing.T) {
	for format, want := range map[string]bool{
		"dd/mm/yyyy":    true,
		"[$-409]mmm-yy": true,
		"[h]:mm:ss":     true,
		"#,##0.00":      false,
		"[Red]0.00":     false,
		`0.0 "days"`:    false,
		"General":       false,
		`\d0`:           false,
	} {
		assert.Equal(t, want, IsDateNumFmt(format), format)
	}
}

func TestLoadCorruptWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("not a zip"), 0o644))

	_, _, err := NewLoader(DefaultOptions(), nil).Load(path)
	assert.Error(t, err)
}

func TestInspectFindsAnomalies(t *testing.T) {
	ds, err := model.NewDataset(
		[]string{"Unnamed: 0", "Unnamed: 1", "Producto"},
		[][]interface{}{{nil, "1", "Widget"}, {nil, "2", "Gadget"}})
	require.NoError(t, err)

	findings := NewLoader(DefaultOptions(), nil).Inspect(ds)
	assert.Contains(t, findings, "Columnas con nombres genéricos detectadas: Unnamed: 0, Unnamed: 1")
	assert.Contains(t, findings, "Más del 50% de las columnas tienen nombres genéricos - posible problema de encabezados")
	assert.Contains(t, findings, "Columnas completamente vacías: Unnamed: 0")
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ds, err := model.NewDataset(
		[]string{"Fecha", "Cantidad", "Producto"},
		[][]interface{}{{"01-01-2023", int64(5), "Widget"}, {"02-01-2023", int64(0), "Sin registro"}})
	require.NoError(t, err)

	l := NewLoader(DefaultOptions(), nil)
	for _, name := range []string{"out.csv", "out.xlsx"} {
		path := filepath.Join(dir, name)
		require.NoError(t, Save(path, ds))

		back, _, err := l.Load(path)
		require.NoError(t, err, name)
		assert.Equal(t, ds.Columns(), back.Columns(), name)
		qty, _ := back.Column("Cantidad")
		assert.Equal(t, []interface{}{"5", "0"}, qty, name)
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	err = Save(filepath.Join(dir, "out.json"), ds)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestSaveWithIndexCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.csv")
	ds, err := model.NewDataset([]string{"A"}, [][]interface{}{{"x"}, {"y"}, {nil}})
	require.NoError(t, err)

	require.NoError(t, SaveWithIndex(path, ds.SelectRows([]int{2, 0}), true))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, ",A\n2,\n0,x\n", string(raw))
}

func TestOutputExtension(t *testing.T) {
	assert.Equal(t, ".xlsx", OutputExtension(".xls"))
	assert.Equal(t, ".xlsx", OutputExtension(".XLSX"))
	assert.Equal(t, ".csv", OutputExtension(".csv"))
}
