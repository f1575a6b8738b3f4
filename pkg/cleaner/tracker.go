// pkg/cleaner/tracker.go
package cleaner

import (
	"fmt"
	"sort"
	"time"

	"github.com/David-Botos/retail-bi/pkg/model"
	"github.com/David-Botos/retail-bi/pkg/profile"
)

const maxDefectSamples = 10

// ProblemTracker accumulates defect records and problem rows for one file.
// It is owned by a single run and reset before the next one.
type ProblemTracker struct {
	snapshot *model.Dataset
	defects  []model.DefectRecord
	rows     map[int]struct{}
}

// NewProblemTracker creates an empty tracker
func NewProblemTracker() *ProblemTracker {
	return &ProblemTracker{rows: make(map[int]struct{})}
}

// Reset clears all state and keeps snapshot as the pre-cleaning reference
func (t *ProblemTracker) Reset(snapshot *model.Dataset) {
	t.snapshot = snapshot
	t.defects = nil
	t.rows = make(map[int]struct{})
}

// AnalyzeColumn builds the defect record of a column from the snapshot.
// mask is positional and must cover every row.
func (t *ProblemTracker) AnalyzeColumn(column string, mask []bool) (model.DefectRecord, error) {
	if t.snapshot == nil {
		return model.DefectRecord{}, fmt.Errorf("tracker has no snapshot")
	}
	values, ok := t.snapshot.Column(column)
	if !ok {
		return model.DefectRecord{}, fmt.Errorf("column %q not in snapshot", column)
	}
	if len(mask) != len(values) {
		return model.DefectRecord{}, fmt.Errorf("mask for %q has %d entries, column has %d", column, len(mask), len(values))
	}

	index := t.snapshot.Index()
	rec := model.DefectRecord{
		Column: column,
		Type:   profile.DetectColumnType(column, values),
		Stats:  columnStats(values),
	}

	counts := make(map[string]int)
	var order []string
	for pos, bad := range mask {
		if !bad {
			continue
		}
		v := values[pos]
		rec.Count++
		rec.Indices = append(rec.Indices, index[pos])
		if len(rec.Samples) < maxDefectSamples {
			rec.Samples = append(rec.Samples, v)
		}
		if model.IsNull(v) {
			continue
		}
		key := model.Stringify(v)
		if _, seen := counts[key]; !seen {
			order = append(order, key)
		}
		counts[key]++
	}

	if len(values) > 0 {
		rec.Percentage = float64(rec.Count) / float64(len(values)) * 100
	}
	for _, k := range order {
		rec.Frequencies = append(rec.Frequencies, model.ValueCount{Value: k, Count: counts[k]})
	}
	sort.SliceStable(rec.Frequencies, func(i, j int) bool {
		return rec.Frequencies[i].Count > rec.Frequencies[j].Count
	})
	sort.Ints(rec.Indices)

	return rec, nil
}

func columnStats(values []interface{}) model.ColumnStats {
	stats := model.ColumnStats{TotalRows: len(values)}
	distinct := make(map[string]struct{})
	for _, v := range values {
		if model.IsNull(v) {
			stats.NullCount++
			continue
		}
		s := model.Stringify(v)
		if s == "" {
			stats.BlankCount++
		}
		distinct[s] = struct{}{}
	}
	stats.DistinctCount = len(distinct)
	return stats
}

// Add stores a defect record and marks its rows as problematic
func (t *ProblemTracker) Add(rec model.DefectRecord) {
	t.defects = append(t.defects, rec)
	for _, label := range rec.Indices {
		t.rows[label] = struct{}{}
	}
}

// Rows returns the sorted, de-duplicated problem row labels
func (t *ProblemTracker) Rows() []int {
	rows := make([]int, 0, len(t.rows))
	for r := range t.rows {
		rows = append(rows, r)
	}
	sort.Ints(rows)
	return rows
}

// Defects returns the records in the order columns were processed
func (t *ProblemTracker) Defects() []model.DefectRecord {
	return append([]model.DefectRecord(nil), t.defects...)
}

// ProblemSet packages the tracked state for reporting
func (t *ProblemTracker) ProblemSet(sourceFile string, load *model.LoadMetadata, at time.Time) *model.ProblemSet {
	return &model.ProblemSet{
		SourceFile:  sourceFile,
		Snapshot:    t.snapshot,
		Defects:     t.Defects(),
		Rows:        t.Rows(),
		Load:        load,
		GeneratedAt: at,
	}
}
