// pkg/loader/loader.go
package loader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/David-Botos/retail-bi/pkg/model"
	"github.com/David-Botos/retail-bi/pkg/profile"
)

var (
	// ErrUnsupportedFormat is returned for extensions other than .csv, .xlsx and .xls
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrEmptySource is returned when a file holds no non-blank row
	ErrEmptySource = errors.New("source file has no data")
)

// leftoverHeaderScore is the score above which the first data row is
// reported as a probable second header
const leftoverHeaderScore = 15.0

// Options configures a Loader
type Options struct {
	Locator LocatorOptions
	Weights profile.Weights
	// Delimiter forces the CSV delimiter; zero means sniff it
	Delimiter rune
}

// DefaultOptions returns the loader defaults
func DefaultOptions() Options {
	return Options{
		Locator: DefaultLocatorOptions(),
		Weights: profile.DefaultWeights(),
	}
}

// Loader reads source files into datasets
type Loader struct {
	opts    Options
	scorer  *profile.Scorer
	locator *HeaderLocator
	logger  *zap.Logger
}

// NewLoader creates a loader; a nil logger disables logging
func NewLoader(opts Options, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	scorer := profile.NewScorer(opts.Weights)
	return &Loader{
		opts:    opts,
		scorer:  scorer,
		locator: NewHeaderLocator(scorer, opts.Locator, logger.Named("header")),
		logger:  logger,
	}
}

// Read loads the raw grid of a file without choosing a header
func (l *Loader) Read(path string) (*Source, error) {
	ext := strings.ToLower(filepath.Ext(path))
	fileType, ok := model.FileTypeForExtension(ext)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}

	var (
		src *Source
		err error
	)
	switch ext {
	case ".csv":
		var raw []byte
		raw, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		src, err = readCSV(raw, l.opts.Delimiter)
	case ".xlsx":
		src, err = gridSource(readXLSXGrid(path))
	case ".xls":
		src, err = gridSource(readXLSGrid(path))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", filepath.Base(path), err)
	}

	src.Path = path
	src.Name = filepath.Base(path)
	src.Type = fileType
	if src.Encoding == "" {
		src.Encoding = "binary"
	}

	l.logger.Debug("Read source file",
		zap.String("file", src.Name),
		zap.String("type", string(fileType)),
		zap.Int("rows", len(src.Grid)))

	return src, nil
}

func gridSource(rows [][]string, err error) (*Source, error) {
	if err != nil {
		return nil, err
	}
	grid := compactGrid(rows)
	if len(grid) == 0 {
		return nil, ErrEmptySource
	}
	return &Source{Grid: grid}, nil
}

// Resolve builds the dataset of a source. Spreadsheets go through header
// detection; CSV files always use their first row.
func (l *Loader) Resolve(src *Source) (*model.Dataset, *model.LoadMetadata, error) {
	meta := &model.LoadMetadata{
		FileName: src.Name,
		FileType: src.Type,
		Encoding: src.Encoding,
	}
	meta.AddAnomaly(src.Anomalies()...)
	if src.Delimiter != 0 {
		meta.Delimiter = delimiterName(src.Delimiter)
	}

	var ds *model.Dataset
	if src.IsSpreadsheet() {
		res, err := l.locator.Locate(src.Preview(l.opts.Locator.PreviewRows), src.Frame)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to frame %s: %w", src.Name, err)
		}
		ds = res.Dataset
		meta.DetectedHeaderRow = res.DetectedRow
		meta.FinalHeaderRow = res.HeaderRow
		meta.BestScore = res.BestScore
		meta.AddAnomaly(res.Anomalies...)
		meta.Method = fmt.Sprintf("excel con detección de encabezados (fila %d)", res.HeaderRow)
	} else {
		var err error
		ds, err = src.Frame(0)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to frame %s: %w", src.Name, err)
		}
		meta.Method = src.Method
	}

	meta.AddAnomaly(l.Inspect(ds)...)
	meta.Columns = ds.Columns()
	meta.Shape = ds.Shape()

	for _, a := range meta.Anomalies {
		l.logger.Warn("Load anomaly", zap.String("file", src.Name), zap.String("anomaly", a))
	}

	return ds, meta, nil
}

// Load reads and resolves a file in one step
func (l *Loader) Load(path string) (*model.Dataset, *model.LoadMetadata, error) {
	src, err := l.Read(path)
	if err != nil {
		return nil, nil, err
	}
	return l.Resolve(src)
}

// Inspect returns findings about a freshly loaded dataset
func (l *Loader) Inspect(ds *model.Dataset) []string {
	var findings []string
	columns := ds.Columns()

	generic := profile.GenericColumnNames(columns)
	if len(generic) > 0 {
		findings = append(findings, fmt.Sprintf(
			"Columnas con nombres genéricos detectadas: %s", strings.Join(generic, ", ")))
		if float64(len(generic)) > 0.5*float64(len(columns)) {
			findings = append(findings,
				"Más del 50% de las columnas tienen nombres genéricos - posible problema de encabezados")
		}
	}

	var empty []string
	for _, c := range columns {
		values, _ := ds.Column(c)
		allNull := true
		for _, v := range values {
			if !model.IsNull(v) {
				allNull = false
				break
			}
		}
		if allNull && len(values) > 0 {
			empty = append(empty, c)
		}
	}
	if len(empty) > 0 {
		findings = append(findings, fmt.Sprintf(
			"Columnas completamente vacías: %s", strings.Join(empty, ", ")))
	}

	if ds.NumRows() > 0 {
		first := ds.Row(0)
		values := make([]string, len(first))
		for i, v := range first {
			values[i] = model.Stringify(v)
		}
		if l.scorer.ScoreRow(values, 0) > leftoverHeaderScore {
			findings = append(findings,
				"La primera fila de datos parece contener encabezados")
		}
	}

	return findings
}
