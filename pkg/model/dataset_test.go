package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDatasetRejectsDuplicateColumns(t *testing.T) {
	_, err := NewDataset([]string{"a", "a"}, nil)
	require.Error(t, err)
}

func TestNewDatasetPadsShortRows(t *testing.T) {
	ds, err := NewDataset([]string{"a", "b"}, [][]interface{}{{"x"}, {"y", "z"}})
	require.NoError(t, err)

	assert.Equal(t, Shape{Rows: 2, Cols: 2}, ds.Shape())
	col, ok := ds.Column("b")
	require.True(t, ok)
	assert.Equal(t, []interface{}{nil, "z"}, col)
	assert.Equal(t, []int{0, 1}, ds.Index())
}

func TestCloneIsIndependent(t *testing.T) {
	ds, err := NewDataset([]string{"a"}, [][]interface{}{{"x"}, {"y"}})
	require.NoError(t, err)

	clone := ds.Clone()
	require.NoError(t, ds.SetColumn("a", []interface{}{"changed", "y"}))

	col, _ := clone.Column("a")
	assert.Equal(t, "x", col[0])
}

func TestSetColumnLengthMismatch(t *testing.T) {
	ds, err := NewDataset([]string{"a"}, [][]interface{}{{"x"}})
	require.NoError(t, err)

	assert.Error(t, ds.SetColumn("a", []interface{}{"x", "y"}))
	assert.Error(t, ds.SetColumn("missing", []interface{}{"x"}))
}

func TestSelectRowsKeepsLabels(t *testing.T) {
	ds, err := NewDataset([]string{"a", "b"}, [][]interface{}{{"r0", 0}, {"r1", 1}, {"r2", 2}})
	require.NoError(t, err)

	sub := ds.SelectRows([]int{2, 0, 9})
	assert.Equal(t, []int{2, 0}, sub.Index())
	assert.Equal(t, []interface{}{"r2", 2}, sub.Row(0))

	pos, ok := sub.Position(0)
	require.True(t, ok)
	assert.Equal(t, 1, pos)
}

func TestStringify(t *testing.T) {
	cases := []struct {
		in   interface{}
		want string
	}{
		{nil, "nan"},
		{"abc", "abc"},
		{int64(-3), "-3"},
		{5.0, "5.0"},
		{3.7, "3.7"},
		{time.Date(2023, 1, 5, 0, 0, 0, 0, time.UTC), "2023-01-05 00:00:00"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Stringify(tc.in))
	}
}

func TestProblemSetTagsForRow(t *testing.T) {
	ps := &ProblemSet{
		Defects: []DefectRecord{
			{Column: "Cantidad", Type: ColumnTypeNumeric, Indices: []int{1, 2}},
			{Column: "Producto", Type: ColumnTypeText, Indices: []int{2}},
		},
		Rows: []int{1, 2},
	}

	assert.Equal(t, []string{"Cantidad(numérica)"}, ps.TagsForRow(1))
	assert.Equal(t, []string{"Cantidad(numérica)", "Producto(texto)"}, ps.TagsForRow(2))
	assert.Empty(t, ps.TagsForRow(0))
	assert.False(t, ps.Empty())
}

func TestCleaningContextOperation(t *testing.T) {
	at := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	base := CleaningContext{RunID: "run-1", FileName: "ventas.csv"}

	op := base.ForColumn("Cantidad", ColumnTypeNumeric).Operation(3, "abc", "0", "coercion_default", "unparseable_number", at)
	assert.Equal(t, CleaningOperation{
		RunID:             "run-1",
		FileName:          "ventas.csv",
		ColumnName:        "Cantidad",
		ColumnType:        ColumnTypeNumeric.String(),
		RowIndex:          3,
		OriginalValue:     "abc",
		NewValue:          "0",
		CleaningOperation: "coercion_default",
		CleaningReason:    "unparseable_number",
		CleanedAt:         at,
	}, op)
	assert.Empty(t, base.ColumnName)
}

func TestLoadMetadataAddAnomaly(t *testing.T) {
	var m LoadMetadata
	m.AddAnomaly()
	assert.Nil(t, m.Anomalies)
	m.AddAnomaly("a", "b")
	m.AddAnomaly("c")
	assert.Equal(t, []string{"a", "b", "c"}, m.Anomalies)
}
