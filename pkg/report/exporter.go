// pkg/report/exporter.go
package report

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/David-Botos/retail-bi/pkg/loader"
	"github.com/David-Botos/retail-bi/pkg/model"
)

// File name suffixes of the problem artifacts
const (
	TextReportSuffix = "_reporte_columnas_problematicas.txt"
	WorkbookSuffix   = "_filas_problematicas_analisis.xlsx"
	NativeSuffix     = "_filas_problematicas"
)

// Exporter writes every problem artifact of a run
type Exporter struct {
	logger *zap.Logger
}

// NewExporter creates an exporter; a nil logger disables logging
func NewExporter(logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{logger: logger.Named("report")}
}

// Export writes the text report, the analysis workbook and the native-format
// problem rows into dir. Artifacts that fail are skipped; the paths written
// are returned along with the joined errors.
func (e *Exporter) Export(ctx context.Context, ps *model.ProblemSet, dir string) ([]string, error) {
	if ps.Empty() {
		e.logger.Info("No problem rows to export", zap.String("file", ps.SourceFile))
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create problems directory: %w", err)
	}

	stem := sourceStem(ps.SourceFile)
	steps := []struct {
		name  string
		write func(string) (string, error)
	}{
		{"text report", func(d string) (string, error) { return e.ExportText(ps, d, stem) }},
		{"analysis workbook", func(d string) (string, error) { return e.ExportWorkbook(ps, d, stem) }},
		{"native export", func(d string) (string, error) { return e.ExportNative(ps, d, stem) }},
	}

	var paths []string
	var errs []error
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		path, err := step.write(dir)
		if err != nil {
			e.logger.Error("Failed to export "+step.name,
				zap.String("file", ps.SourceFile),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
			continue
		}
		paths = append(paths, path)
	}

	return paths, errors.Join(errs...)
}

// ExportText writes <stem>_reporte_columnas_problematicas.txt
func (e *Exporter) ExportText(ps *model.ProblemSet, dir, stem string) (string, error) {
	path := filepath.Join(dir, stem+TextReportSuffix)
	if err := writeAtomic(path, func(w io.Writer) error { return WriteText(w, ps) }); err != nil {
		return "", err
	}
	e.logger.Info("Text report exported", zap.String("path", path))
	return path, nil
}

// ExportWorkbook writes <stem>_filas_problematicas_analisis.xlsx
func (e *Exporter) ExportWorkbook(ps *model.ProblemSet, dir, stem string) (string, error) {
	path := filepath.Join(dir, stem+WorkbookSuffix)
	if err := writeAtomic(path, func(w io.Writer) error { return WriteWorkbook(w, ps) }); err != nil {
		return "", err
	}
	e.logger.Info("Problem rows workbook exported",
		zap.String("path", path),
		zap.Int("problem_rows", len(ps.Rows)),
		zap.Int("problem_columns", len(ps.Defects)))
	return path, nil
}

// ExportNative writes the flagged rows, without diagnostics, in the format of
// the source file
func (e *Exporter) ExportNative(ps *model.ProblemSet, dir, stem string) (string, error) {
	rows, err := ProblemRows(ps)
	if err != nil {
		return "", err
	}

	ext := nativeExtension(ps)
	path := filepath.Join(dir, stem+NativeSuffix+ext)

	if ext == ".csv" {
		err = loader.SaveWithIndex(path, rows, true)
	} else {
		err = writeAtomic(path, func(w io.Writer) error { return writeNativeWorkbook(w, ps, rows) })
	}
	if err != nil {
		return "", err
	}

	e.logger.Info("Problem rows exported in source format",
		zap.String("path", path),
		zap.Int("rows", rows.NumRows()),
		zap.Int("columns", rows.NumCols()))
	return path, nil
}

func writeNativeWorkbook(w io.Writer, ps *model.ProblemSet, rows *model.Dataset) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetRows); err != nil {
		return err
	}
	if err := loader.WriteSheet(f, SheetRows, rows, true); err != nil {
		return err
	}

	info := make([][]interface{}, len(ps.Rows))
	for i, label := range ps.Rows {
		tags := ps.TagsForRow(label)
		info[i] = []interface{}{int64(label), strings.Join(tags, "; "), int64(len(tags))}
	}
	infoDS, err := model.NewDataset([]string{ColOriginalIndex, "Columnas_con_Problemas", "Cantidad_Problemas"}, info)
	if err != nil {
		return err
	}
	if err := loader.WriteSheet(f, SheetRowInfo, infoDS, false); err != nil {
		return err
	}

	return f.Write(w)
}

func nativeExtension(ps *model.ProblemSet) string {
	if ps.Load != nil && ps.Load.FileType != "" {
		if ps.Load.FileType == model.FileTypeCSV {
			return ".csv"
		}
		return ".xlsx"
	}
	return loader.OutputExtension(filepath.Ext(ps.SourceFile))
}

func sourceStem(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// writeAtomic writes through a temporary file renamed into place
func writeAtomic(path string, write func(io.Writer) error) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*"+filepath.Ext(path))
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err = write(tmp); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
