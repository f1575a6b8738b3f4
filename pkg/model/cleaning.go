// pkg/model/cleaning.go
package model

import (
	"fmt"
	"sort"
	"time"
)

// ColumnType is the semantic type assigned to a column at cleaning time
type ColumnType int

const (
	ColumnTypeUnknown ColumnType = iota
	ColumnTypeDate
	ColumnTypeNumeric
	ColumnTypeText
)

// String returns the identifier used in logs and audit rows
func (t ColumnType) String() string {
	switch t {
	case ColumnTypeDate:
		return "date"
	case ColumnTypeNumeric:
		return "numeric"
	case ColumnTypeText:
		return "text"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// Label returns the Spanish label printed in reports
func (t ColumnType) Label() string {
	switch t {
	case ColumnTypeDate:
		return "fecha"
	case ColumnTypeNumeric:
		return "numérica"
	case ColumnTypeText:
		return "texto"
	default:
		return "desconocido"
	}
}

// ValueCount is one entry of a frequency table
type ValueCount struct {
	Value string
	Count int
}

// ColumnStats summarizes a column before cleaning
type ColumnStats struct {
	TotalRows     int
	NullCount     int
	BlankCount    int
	DistinctCount int
}

// DefectRecord describes the invalid cells found in one column
type DefectRecord struct {
	Column      string
	Type        ColumnType
	Count       int
	Percentage  float64
	Frequencies []ValueCount
	Indices     []int
	Samples     []interface{}
	Stats       ColumnStats
}

// HasIndex reports whether the row label is among the affected rows
func (r *DefectRecord) HasIndex(label int) bool {
	i := sort.SearchInts(r.Indices, label)
	return i < len(r.Indices) && r.Indices[i] == label
}

// Tag renders the "column(type)" marker used in problem-row diagnostics
func (r *DefectRecord) Tag() string {
	return fmt.Sprintf("%s(%s)", r.Column, r.Type.Label())
}

// ProblemSet is everything known about the defects of one processed file
type ProblemSet struct {
	SourceFile  string
	Snapshot    *Dataset
	Defects     []DefectRecord
	Rows        []int
	Load        *LoadMetadata
	GeneratedAt time.Time
}

// Empty reports whether no defect was recorded
func (p *ProblemSet) Empty() bool {
	return p == nil || len(p.Rows) == 0
}

// Defect returns the record for a column
func (p *ProblemSet) Defect(column string) (*DefectRecord, bool) {
	for i := range p.Defects {
		if p.Defects[i].Column == column {
			return &p.Defects[i], true
		}
	}
	return nil, false
}

// TagsForRow lists the "column(type)" markers of every defect touching a row
func (p *ProblemSet) TagsForRow(label int) []string {
	var tags []string
	for i := range p.Defects {
		if p.Defects[i].HasIndex(label) {
			tags = append(tags, p.Defects[i].Tag())
		}
	}
	return tags
}

// CleaningOperation represents a single repaired cell
type CleaningOperation struct {
	RunID             string      // Identifier shared by all operations of one file run
	FileName          string      // Source file name
	ColumnName        string      // Column that was cleaned
	ColumnType        string      // Detected column type
	RowIndex          int         // Original row label
	OriginalValue     interface{} // Original value (may be nil)
	NewValue          string      // Value written by the normalizer
	CleaningOperation string      // Type of cleaning performed (e.g., "default_fill")
	CleaningReason    string      // Reason for cleaning (e.g., "null_value")
	CleanedAt         time.Time
}

// CleaningContext identifies the column being normalized
type CleaningContext struct {
	RunID      string
	FileName   string
	ColumnName string
	ColumnType ColumnType
}

// ForColumn narrows the context to one column
func (c CleaningContext) ForColumn(name string, t ColumnType) CleaningContext {
	c.ColumnName = name
	c.ColumnType = t
	return c
}

// Operation builds the audit row of one repaired cell
func (c CleaningContext) Operation(row int, original interface{}, newValue, op, reason string, at time.Time) CleaningOperation {
	return CleaningOperation{
		RunID:             c.RunID,
		FileName:          c.FileName,
		ColumnName:        c.ColumnName,
		ColumnType:        c.ColumnType.String(),
		RowIndex:          row,
		OriginalValue:     original,
		NewValue:          newValue,
		CleaningOperation: op,
		CleaningReason:    reason,
		CleanedAt:         at,
	}
}
