// pkg/loader/writer.go
package loader

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/David-Botos/retail-bi/pkg/model"
)

// OutputExtension maps a source extension to the one the writers can produce
func OutputExtension(sourceExt string) string {
	switch strings.ToLower(sourceExt) {
	case ".xls", ".xlsx":
		return ".xlsx"
	default:
		return ".csv"
	}
}

// Save writes a dataset as CSV or XLSX depending on the path extension.
// Data goes to a temporary file first so a failed write leaves nothing behind.
func Save(path string, ds *model.Dataset) error {
	return SaveWithIndex(path, ds, false)
}

// SaveWithIndex is Save with an optional leading column holding row labels
func SaveWithIndex(path string, ds *model.Dataset, withIndex bool) (err error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".csv" && ext != ".xlsx" {
		return fmt.Errorf("%w: cannot write %s", ErrUnsupportedFormat, ext)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*"+ext)
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if ext == ".csv" {
		err = writeCSV(tmp, ds, withIndex)
	} else {
		err = writeXLSX(tmp, ds, withIndex)
	}
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}

	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temporary file: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move output into place: %w", err)
	}
	return nil
}

func writeCSV(w io.Writer, ds *model.Dataset, withIndex bool) error {
	cw := csv.NewWriter(w)

	header := ds.Columns()
	if withIndex {
		header = append([]string{""}, header...)
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	index := ds.Index()
	for i := 0; i < ds.NumRows(); i++ {
		row := ds.Row(i)
		record := make([]string, 0, len(header))
		if withIndex {
			record = append(record, strconv.Itoa(index[i]))
		}
		for _, v := range row {
			record = append(record, csvValue(v))
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func csvValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case time.Time:
		return val.Format("2006-01-02 15:04:05")
	default:
		return fmt.Sprint(val)
	}
}

func writeXLSX(w io.Writer, ds *model.Dataset, withIndex bool) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := WriteSheet(f, "Sheet1", ds, withIndex); err != nil {
		return err
	}
	return f.Write(w)
}

// WriteSheet streams a dataset into a sheet of f, creating the sheet when needed
func WriteSheet(f *excelize.File, sheet string, ds *model.Dataset, withIndex bool) error {
	if idx, _ := f.GetSheetIndex(sheet); idx == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return err
		}
	}

	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return err
	}

	header := make([]interface{}, 0, ds.NumCols()+1)
	if withIndex {
		header = append(header, "")
	}
	for _, c := range ds.Columns() {
		header = append(header, c)
	}
	if err := sw.SetRow("A1", header); err != nil {
		return err
	}

	index := ds.Index()
	for i := 0; i < ds.NumRows(); i++ {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := make([]interface{}, 0, len(header))
		if withIndex {
			row = append(row, index[i])
		}
		row = append(row, ds.Row(i)...)
		if err := sw.SetRow(cell, row); err != nil {
			return err
		}
	}

	return sw.Flush()
}
