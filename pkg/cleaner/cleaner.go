// pkg/cleaner/cleaner.go
package cleaner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/David-Botos/retail-bi/pkg/config"
	"github.com/David-Botos/retail-bi/pkg/loader"
	"github.com/David-Botos/retail-bi/pkg/model"
	"github.com/David-Botos/retail-bi/pkg/profile"
)

const maxLoggedExamples = 5

// ReportExporter writes the problem artifacts of a run into dir
type ReportExporter interface {
	Export(ctx context.Context, problems *model.ProblemSet, dir string) ([]string, error)
}

// Options configures a DataCleaner
type Options struct {
	SourceDir     string
	DestDir       string
	ProblemsDir   string
	ExportReports bool
	Loader        loader.Options
}

// DefaultOptions returns the directory layout used by the reseller's workflow
func DefaultOptions() Options {
	return Options{
		SourceDir:     "archive_original",
		DestDir:       "archive_processed",
		ProblemsDir:   "Problems_to_solve",
		ExportReports: true,
		Loader:        loader.DefaultOptions(),
	}
}

// OptionsFromConfig maps the environment configuration onto Options. The
// weights file, when set, must exist and parse.
func OptionsFromConfig(cfg config.CleanerConfig) (Options, error) {
	opts := DefaultOptions()
	opts.SourceDir = cfg.SourceDir
	opts.DestDir = cfg.DestDir
	opts.ProblemsDir = cfg.ProblemsDir
	opts.ExportReports = cfg.ExportReports

	opts.Loader.Locator.PreviewRows = cfg.PreviewRows
	opts.Loader.Locator.ReprobeLimit = cfg.ReprobeLimit
	opts.Loader.Locator.MinMargin = cfg.MinMargin
	opts.Loader.Delimiter = cfg.DelimiterRune()

	if cfg.WeightsFile != "" {
		w, err := profile.LoadWeightsFile(cfg.WeightsFile)
		if err != nil {
			return opts, err
		}
		opts.Loader.Weights = w
	}
	return opts, nil
}

// Result describes one successfully cleaned file
type Result struct {
	RunID          string
	SourceFile     string
	OutputPath     string
	OriginalShape  model.Shape
	FinalShape     model.Shape
	ProblemRows    int
	ProblemColumns int
	Columns        int
	ColumnTypes    map[string]model.ColumnType
	Operations     int
	Load           *model.LoadMetadata
	Problems       *model.ProblemSet
	Cleaned        *model.Dataset
	Reports        []string
	Trace          []State
	Duration       time.Duration
}

// BatchSummary is the outcome of processing a whole source directory
type BatchSummary struct {
	Results          []*Result
	Failures         []*FileError
	Attempted        int
	Succeeded        int
	Failed           int
	TotalRows        int
	TotalProblemRows int
	Duration         time.Duration
}

// DataCleaner cleans retail exports: it loads a file, detects column types,
// normalizes every column and records what it had to repair.
// It processes one file at a time and is not safe for concurrent use.
type DataCleaner struct {
	opts    Options
	loader  *loader.Loader
	tracker *ProblemTracker
	audit   AuditRecorder
	reports ReportExporter
	logger  *zap.Logger
	now     func() time.Time
}

// NewDataCleaner creates a new DataCleaner instance
func NewDataCleaner(opts Options, logger *zap.Logger) (*DataCleaner, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if opts.SourceDir == "" || opts.DestDir == "" || opts.ProblemsDir == "" {
		return nil, errors.New("source, destination and problems directories are required")
	}

	return &DataCleaner{
		opts:    opts,
		loader:  loader.NewLoader(opts.Loader, logger.Named("loader")),
		tracker: NewProblemTracker(),
		audit:   NopAuditRecorder{},
		logger:  logger,
		now:     time.Now,
	}, nil
}

// WithAuditRecorder sets where repaired cells are recorded
func (c *DataCleaner) WithAuditRecorder(r AuditRecorder) *DataCleaner {
	if r == nil {
		r = NopAuditRecorder{}
	}
	c.audit = r
	return c
}

// WithReportExporter sets the writer of problem reports
func (c *DataCleaner) WithReportExporter(e ReportExporter) *DataCleaner {
	c.reports = e
	return c
}

// ValidateDirectories checks the source directory and creates the output ones.
// Nothing is created when the source is missing.
func (c *DataCleaner) ValidateDirectories() error {
	info, err := os.Stat(c.opts.SourceDir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrDirectoryNotFound, c.opts.SourceDir)
	}

	for _, dir := range []string{c.opts.DestDir, c.opts.ProblemsDir} {
		if _, err := os.Stat(dir); err == nil {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		c.logger.Info("Created directory", zap.String("path", dir))
	}
	return nil
}

// ValidFiles lists the supported files of the source directory by name
func (c *DataCleaner) ValidFiles() ([]string, error) {
	entries, err := os.ReadDir(c.opts.SourceDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDirectoryNotFound, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := model.FileTypeForExtension(filepath.Ext(e.Name())); ok {
			files = append(files, e.Name())
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoValidFiles, c.opts.SourceDir)
	}
	sort.Strings(files)
	return files, nil
}

// OutputPath returns where the cleaned version of a source file is written
func (c *DataCleaner) OutputPath(sourceFile string) string {
	ext := filepath.Ext(sourceFile)
	stem := strings.TrimSuffix(sourceFile, ext)
	return filepath.Join(c.opts.DestDir, stem+"_processed"+loader.OutputExtension(ext))
}

// ProcessFile cleans one file of the source directory. An empty name selects
// the first valid file. Failures are returned as *FileError.
func (c *DataCleaner) ProcessFile(ctx context.Context, name string) (*Result, error) {
	start := c.now()
	p := NewPipeline()
	runID := uuid.New().String()

	fail := func(err error) (*Result, error) {
		at := p.Fail()
		c.logger.Error("Failed to process file",
			zap.String("file", name),
			zap.String("state", at.String()),
			zap.Error(err))
		return nil, &FileError{File: name, State: at, Err: err}
	}
	advance := func(next State) error {
		if err := p.Advance(next); err != nil {
			return err
		}
		return ctx.Err()
	}

	if err := c.ValidateDirectories(); err != nil {
		return fail(err)
	}
	if err := advance(StateDirectoryValidated); err != nil {
		return fail(err)
	}

	files, err := c.ValidFiles()
	if err != nil {
		return fail(err)
	}
	if name == "" {
		name = files[0]
		c.logger.Info("Processing first available file", zap.String("file", name))
	} else if !contains(files, name) {
		return fail(fmt.Errorf("%w: %s", ErrFileNotFound, name))
	}
	if err := advance(StateFileSelected); err != nil {
		return fail(err)
	}

	path := filepath.Join(c.opts.SourceDir, name)
	src, err := c.loader.Read(path)
	if err != nil {
		if errors.Is(err, loader.ErrEmptySource) {
			return fail(fmt.Errorf("%w: %w", ErrEmptyFile, err))
		}
		return fail(fmt.Errorf("%w: %w", ErrLoadFailure, err))
	}
	if err := advance(StateLoaded); err != nil {
		return fail(err)
	}

	ds, meta, err := c.loader.Resolve(src)
	if err != nil {
		return fail(fmt.Errorf("%w: %w", ErrLoadFailure, err))
	}
	if src.IsSpreadsheet() {
		if err := advance(StateHeaderResolved); err != nil {
			return fail(err)
		}
	}
	if ds.NumRows() == 0 {
		return fail(fmt.Errorf("%w: %s", ErrEmptyFile, name))
	}

	c.logger.Info("Loaded file",
		zap.String("file", name),
		zap.String("method", meta.Method),
		zap.Int("header_row", meta.FinalHeaderRow),
		zap.String("shape", ds.Shape().String()))

	originalShape := ds.Shape()
	types := c.DetectTypes(ds)
	if err := advance(StateTypesDetected); err != nil {
		return fail(err)
	}

	cctx := model.CleaningContext{RunID: runID, FileName: name}
	ops, err := c.normalize(cctx, ds, types)
	if err != nil {
		return fail(err)
	}
	if err := advance(StateNormalized); err != nil {
		return fail(err)
	}

	problems := c.tracker.ProblemSet(name, meta, c.now())
	c.logProblemExamples(ds, problems)
	if err := advance(StateProblemsAggregated); err != nil {
		return fail(err)
	}

	out := c.OutputPath(name)
	if err := loader.Save(out, ds); err != nil {
		return fail(fmt.Errorf("%w: %w", ErrSaveFailure, err))
	}
	if err := p.Advance(StateSaved); err != nil {
		return fail(err)
	}
	c.logger.Info("Saved cleaned file", zap.String("path", out))

	if err := c.audit.RecordCleaningOperations(ctx, ops); err != nil {
		c.logger.Warn("Failed to record cleaning operations",
			zap.String("file", name),
			zap.Int("operations", len(ops)),
			zap.Error(err))
	}

	var reports []string
	if c.opts.ExportReports && c.reports != nil && !problems.Empty() {
		reports, err = c.reports.Export(ctx, problems, c.opts.ProblemsDir)
		if err != nil {
			c.logger.Warn("Failed to export problem reports", zap.String("file", name), zap.Error(err))
		}
	}

	if err := p.Advance(StateDone); err != nil {
		return fail(err)
	}

	res := &Result{
		RunID:          runID,
		SourceFile:     name,
		OutputPath:     out,
		OriginalShape:  originalShape,
		FinalShape:     ds.Shape(),
		ProblemRows:    len(problems.Rows),
		ProblemColumns: len(problems.Defects),
		Columns:        ds.NumCols(),
		ColumnTypes:    types,
		Operations:     len(ops),
		Load:           meta,
		Problems:       problems,
		Cleaned:        ds,
		Reports:        reports,
		Trace:          p.Trace(),
		Duration:       c.now().Sub(start),
	}

	c.logger.Info("Cleaning completed",
		zap.String("file", name),
		zap.Int("problem_rows", res.ProblemRows),
		zap.Int("problem_columns", res.ProblemColumns),
		zap.Int("operations", res.Operations),
		zap.Duration("duration", res.Duration))

	return res, nil
}

// ProcessAll cleans every valid file. A failing file is logged and skipped;
// only directory errors and cancellation abort the batch.
func (c *DataCleaner) ProcessAll(ctx context.Context) (*BatchSummary, error) {
	start := c.now()

	if err := c.ValidateDirectories(); err != nil {
		return nil, err
	}
	files, err := c.ValidFiles()
	if err != nil {
		return nil, err
	}

	c.logger.Info("Processing files", zap.Int("count", len(files)))

	summary := &BatchSummary{}
	for _, name := range files {
		if err := ctx.Err(); err != nil {
			summary.Duration = c.now().Sub(start)
			return summary, err
		}

		summary.Attempted++
		res, err := c.ProcessFile(ctx, name)
		if err != nil {
			var fe *FileError
			if !errors.As(err, &fe) {
				fe = &FileError{File: name, State: StateFailed, Err: err}
			}
			summary.Failures = append(summary.Failures, fe)
			summary.Failed++
			continue
		}

		summary.Results = append(summary.Results, res)
		summary.Succeeded++
		summary.TotalRows += res.FinalShape.Rows
		summary.TotalProblemRows += res.ProblemRows
	}

	summary.Duration = c.now().Sub(start)
	c.logger.Info("Batch completed",
		zap.Int("attempted", summary.Attempted),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Duration("duration", summary.Duration))

	return summary, nil
}

// DetectTypes classifies every column of a dataset
func (c *DataCleaner) DetectTypes(ds *model.Dataset) map[string]model.ColumnType {
	types := make(map[string]model.ColumnType, ds.NumCols())
	for _, col := range ds.Columns() {
		values, _ := ds.Column(col)
		types[col] = profile.DetectColumnType(col, values)
	}
	return types
}

// normalize rewrites every column of ds in place and feeds the tracker
func (c *DataCleaner) normalize(cctx model.CleaningContext, ds *model.Dataset, types map[string]model.ColumnType) ([]model.CleaningOperation, error) {
	c.tracker.Reset(ds.Clone())
	index := ds.Index()
	cleanedAt := c.now().UTC()

	var ops []model.CleaningOperation
	for _, col := range ds.Columns() {
		values, _ := ds.Column(col)
		t := types[col]

		mask := make([]bool, len(values))
		for i, v := range values {
			mask[i] = IsProblemValue(v)
		}

		colCtx := cctx.ForColumn(col, t)
		out, repairs := NormalizeColumn(t, values)
		for _, r := range repairs {
			mask[r.Position] = true
			ops = append(ops, colCtx.Operation(index[r.Position], r.Original, r.Value, r.Operation, r.Reason, cleanedAt))
		}

		if len(repairs) > 0 {
			rec, err := c.tracker.AnalyzeColumn(col, mask)
			if err != nil {
				return nil, err
			}
			c.tracker.Add(rec)
			c.logger.Info("Column has problem values",
				zap.String("column", col),
				zap.String("type", t.String()),
				zap.Int("count", rec.Count))
		}

		if err := ds.SetColumn(col, out); err != nil {
			return nil, err
		}
	}
	return ops, nil
}

func (c *DataCleaner) logProblemExamples(ds *model.Dataset, problems *model.ProblemSet) {
	if problems.Empty() {
		return
	}
	c.logger.Info("Problem rows identified",
		zap.Int("rows", len(problems.Rows)),
		zap.Int("columns", len(problems.Defects)))

	limit := len(problems.Rows)
	if limit > maxLoggedExamples {
		limit = maxLoggedExamples
	}
	for _, label := range problems.Rows[:limit] {
		pos, ok := ds.Position(label)
		if !ok {
			continue
		}
		c.logger.Debug("Problem row example",
			zap.Int("row", label),
			zap.Any("values", ds.Row(pos)),
			zap.Strings("columns", problems.TagsForRow(label)))
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
