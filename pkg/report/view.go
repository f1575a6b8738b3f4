// pkg/report/view.go
package report

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/David-Botos/retail-bi/pkg/model"
)

// Diagnostic columns prepended to the problem-rows view
const (
	ColOriginalIndex = "Indice_Original"
	ColProblemTags   = "Columnas_Problematicas"
	ColNullCount     = "Total_Nulos"
	ColBlankCount    = "Total_Vacios"
	ColCompleteness  = "Porcentaje_Completitud"
)

// ErrNoSnapshot is returned when a problem set carries no pre-cleaning data
var ErrNoSnapshot = errors.New("problem set has no pre-cleaning snapshot")

// ProblemRows returns the flagged rows of the pre-cleaning snapshot, in
// label order and without diagnostics
func ProblemRows(ps *model.ProblemSet) (*model.Dataset, error) {
	if ps.Snapshot == nil {
		return nil, ErrNoSnapshot
	}
	return ps.Snapshot.SelectRows(ps.Rows), nil
}

// BuildView builds the problematic-rows view: every flagged row of the
// snapshot with its problem tags and completeness figures in front.
func BuildView(ps *model.ProblemSet) (*model.Dataset, error) {
	rows, err := ProblemRows(ps)
	if err != nil {
		return nil, err
	}

	columns := append(diagnosticNames(rows.Columns()), rows.Columns()...)

	labels := rows.Index()
	data := make([][]interface{}, rows.NumRows())
	for pos := range data {
		values := rows.Row(pos)
		nulls, blanks := countMissing(values)

		completeness := 0.0
		if len(values) > 0 {
			valid := len(values) - nulls - blanks
			completeness = math.Round(float64(valid)/float64(len(values))*100*100) / 100
		}

		row := make([]interface{}, 0, len(columns))
		row = append(row,
			int64(labels[pos]),
			strings.Join(ps.TagsForRow(labels[pos]), "; "),
			int64(nulls),
			int64(blanks),
			completeness,
		)
		data[pos] = append(row, values...)
	}

	view, err := model.NewDataset(columns, data)
	if err != nil {
		return nil, fmt.Errorf("failed to build problem rows view: %w", err)
	}
	return view, nil
}

// diagnosticNames suffixes a diagnostic column with _1, _2, ... when the
// source already has a column of that name
func diagnosticNames(source []string) []string {
	taken := make(map[string]bool, len(source))
	for _, c := range source {
		taken[c] = true
	}

	diag := []string{ColOriginalIndex, ColProblemTags, ColNullCount, ColBlankCount, ColCompleteness}
	for i, name := range diag {
		candidate := name
		for n := 1; taken[candidate]; n++ {
			candidate = fmt.Sprintf("%s_%d", name, n)
		}
		diag[i] = candidate
		taken[candidate] = true
	}
	return diag
}

func countMissing(values []interface{}) (nulls, blanks int) {
	for _, v := range values {
		if model.IsNull(v) {
			nulls++
		} else if s, ok := v.(string); ok && s == "" {
			blanks++
		}
	}
	return nulls, blanks
}
