// pkg/model/dataset.go
package model

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// Shape is the (rows, columns) size of a dataset
type Shape struct {
	Rows int
	Cols int
}

// String renders the shape as "(rows, cols)"
func (s Shape) String() string {
	return fmt.Sprintf("(%d, %d)", s.Rows, s.Cols)
}

// Dataset is an ordered collection of named, equally long columns.
// Cell values are nil, string, int64, float64 or time.Time.
type Dataset struct {
	columns []string
	values  map[string][]interface{}
	index   []int
}

// NewDataset builds a dataset from row-major values. Short rows are padded
// with nil, long rows are rejected.
func NewDataset(columns []string, rows [][]interface{}) (*Dataset, error) {
	seen := make(map[string]struct{}, len(columns))
	for _, name := range columns {
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("duplicate column name %q", name)
		}
		seen[name] = struct{}{}
	}

	ds := &Dataset{
		columns: append([]string(nil), columns...),
		values:  make(map[string][]interface{}, len(columns)),
		index:   make([]int, len(rows)),
	}
	for _, name := range columns {
		ds.values[name] = make([]interface{}, len(rows))
	}

	for i, row := range rows {
		if len(row) > len(columns) {
			return nil, fmt.Errorf("row %d has %d values, expected at most %d", i, len(row), len(columns))
		}
		ds.index[i] = i
		for j, v := range row {
			ds.values[columns[j]][i] = v
		}
	}

	return ds, nil
}

// Columns returns the column names in source order
func (d *Dataset) Columns() []string {
	return append([]string(nil), d.columns...)
}

// NumRows returns the row count
func (d *Dataset) NumRows() int {
	return len(d.index)
}

// NumCols returns the column count
func (d *Dataset) NumCols() int {
	return len(d.columns)
}

// Shape returns the dataset dimensions
func (d *Dataset) Shape() Shape {
	return Shape{Rows: d.NumRows(), Cols: d.NumCols()}
}

// Column returns the values of a column. The slice must not be modified.
func (d *Dataset) Column(name string) ([]interface{}, bool) {
	vals, ok := d.values[name]
	return vals, ok
}

// SetColumn replaces the values of an existing column
func (d *Dataset) SetColumn(name string, values []interface{}) error {
	if _, ok := d.values[name]; !ok {
		return fmt.Errorf("unknown column %q", name)
	}
	if len(values) != d.NumRows() {
		return fmt.Errorf("column %q: got %d values, dataset has %d rows", name, len(values), d.NumRows())
	}
	d.values[name] = values
	return nil
}

// Index returns the original row label of every row
func (d *Dataset) Index() []int {
	return append([]int(nil), d.index...)
}

// Row returns the values of the row at position pos, in column order
func (d *Dataset) Row(pos int) []interface{} {
	row := make([]interface{}, len(d.columns))
	for j, name := range d.columns {
		row[j] = d.values[name][pos]
	}
	return row
}

// Position returns the position of the row carrying the given label
func (d *Dataset) Position(label int) (int, bool) {
	for pos, l := range d.index {
		if l == label {
			return pos, true
		}
	}
	return 0, false
}

// Clone returns a copy that shares no slices with d
func (d *Dataset) Clone() *Dataset {
	out := &Dataset{
		columns: append([]string(nil), d.columns...),
		values:  make(map[string][]interface{}, len(d.values)),
		index:   append([]int(nil), d.index...),
	}
	for name, vals := range d.values {
		out.values[name] = append([]interface{}(nil), vals...)
	}
	return out
}

// SelectRows returns the rows whose labels are listed, in the order given.
// Unknown labels are skipped.
func (d *Dataset) SelectRows(labels []int) *Dataset {
	positions := make(map[int]int, len(d.index))
	for pos, l := range d.index {
		positions[l] = pos
	}

	out := &Dataset{
		columns: append([]string(nil), d.columns...),
		values:  make(map[string][]interface{}, len(d.columns)),
	}
	for _, label := range labels {
		if _, ok := positions[label]; ok {
			out.index = append(out.index, label)
		}
	}
	for _, name := range d.columns {
		src := d.values[name]
		vals := make([]interface{}, len(out.index))
		for i, label := range out.index {
			vals[i] = src[positions[label]]
		}
		out.values[name] = vals
	}
	return out
}

// Stringify renders a cell as report text: nil becomes
// "nan" and integral floats keep a trailing ".0".
func Stringify(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "nan"
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		if math.IsNaN(val) {
			return "nan"
		}
		if val == math.Trunc(val) && math.Abs(val) < 1e16 {
			return strconv.FormatFloat(val, 'f', 1, 64)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case time.Time:
		return val.Format("2006-01-02 15:04:05")
	case bool:
		if val {
			return "True"
		}
		return "False"
	default:
		return fmt.Sprintf("%v", val)
	}
}

// IsNull reports whether a cell holds no value
func IsNull(v interface{}) bool {
	if v == nil {
		return true
	}
	if f, ok := v.(float64); ok && math.IsNaN(f) {
		return true
	}
	return false
}
