package publish

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/David-Botos/retail-bi/pkg/cleaner"
	"github.com/David-Botos/retail-bi/pkg/model"
)

type mockTarget struct {
	mock.Mock
}

func (m *mockTarget) EnsureSchema(ctx context.Context, schema string) error {
	return m.Called(ctx, schema).Error(0)
}

func (m *mockTarget) CreateTableIfNotExists(ctx context.Context, schema, table string, columnDefs []string) error {
	return m.Called(ctx, schema, table, columnDefs).Error(0)
}

func (m *mockTarget) BatchInsert(ctx context.Context, schema, table string, columns []string, rows [][]interface{}, batchSize int) (int64, error) {
	args := m.Called(ctx, schema, table, columns, rows, batchSize)
	return args.Get(0).(int64), args.Error(1)
}

func cleanedResult(t *testing.T, name string, fecha string) *cleaner.Result {
	t.Helper()
	ds, err := model.NewDataset([]string{"Fecha", "Cantidad", "Producto"}, [][]interface{}{
		{fecha, int64(5), "Widget"},
		{"01-01-1900", int64(0), "Sin registro"},
	})
	require.NoError(t, err)
	return &cleaner.Result{
		SourceFile: name,
		Cleaned:    ds,
		ColumnTypes: map[string]model.ColumnType{
			"Fecha":    model.ColumnTypeDate,
			"Cantidad": model.ColumnTypeNumeric,
			"Producto": model.ColumnTypeText,
		},
	}
}

func testOptions() Options {
	return Options{Schema: "ventas", Workers: 1, ChunkSize: 500, MaxRetries: 2}
}

func TestTableName(t *testing.T) {
	cases := map[string]string{
		"Ventas Categorías 2024.xlsx": "ventas_categorias_2024",
		"2024-inventario.csv":         "t_2024_inventario",
		"###.csv":                     "tabla",
		"Año__Fiscal--Q1.xls":         "ano_fiscal_q1",
	}
	for in, want := range cases {
		assert.Equal(t, want, TableName(in), in)
	}
}

func TestColumnDefinitions(t *testing.T) {
	defs := ColumnDefinitions([]string{"Fecha", "Monto", "Nota"}, map[string]model.ColumnType{
		"Fecha": model.ColumnTypeDate,
		"Monto": model.ColumnTypeNumeric,
	})
	assert.Equal(t, []string{`"Fecha" DATE NULL`, `"Monto" BIGINT NULL`, `"Nota" TEXT NULL`}, defs)
}

func TestConvertValue(t *testing.T) {
	v, err := ConvertValue("15-01-2023", model.ColumnTypeDate)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 1, 15, 0, 0, 0, 0, time.UTC), v)

	v, err = ConvertValue("42", model.ColumnTypeNumeric)
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	v, err = ConvertValue(int64(7), model.ColumnTypeText)
	require.NoError(t, err)
	assert.Equal(t, "7", v)

	v, err = ConvertValue(nil, model.ColumnTypeNumeric)
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = ConvertValue("2023/01/15", model.ColumnTypeDate)
	assert.Error(t, err)
}

func TestCategorizeError(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorCategory
	}{
		{nil, ErrorCategoryNone},
		{&pgconn.PgError{Code: "08006"}, ErrorCategoryConnectionLevel},
		{&pgconn.PgError{Code: "40P01"}, ErrorCategoryChunkLevel},
		{&pgconn.PgError{Code: "22007"}, ErrorCategoryDataConversion},
		{&pgconn.PgError{Code: "23505"}, ErrorCategoryRowLevel},
		{&pgconn.PgError{Code: "42P01"}, ErrorCategoryTableLevel},
		{&ConversionError{Column: "Fecha", Err: errors.New("bad")}, ErrorCategoryDataConversion},
		{context.Canceled, ErrorCategoryCritical},
		{context.DeadlineExceeded, ErrorCategoryConnectionLevel},
		{errors.New("dial tcp: connection refused"), ErrorCategoryConnectionLevel},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CategorizeError(tc.err), "%v", tc.err)
	}
	assert.True(t, ErrorCategoryConnectionLevel.Retryable())
	assert.False(t, ErrorCategoryTableLevel.Retryable())
}

func TestPublishRetriesConnectionErrors(t *testing.T) {
	target := new(mockTarget)
	target.On("EnsureSchema", mock.Anything, "ventas").Return(nil)
	target.On("CreateTableIfNotExists", mock.Anything, "ventas", "ventas_enero", mock.Anything).Return(nil)
	target.On("BatchInsert", mock.Anything, "ventas", "ventas_enero", []string{"Fecha", "Cantidad", "Producto"}, mock.Anything, 500).
		Return(int64(0), &pgconn.PgError{Code: "08006"}).Once()
	target.On("BatchInsert", mock.Anything, "ventas", "ventas_enero", mock.Anything, mock.MatchedBy(func(rows [][]interface{}) bool {
		return len(rows) == 2 && rows[0][1] == int64(5) && rows[1][0] == time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)
	}), 500).Return(int64(2), nil).Once()

	m := NewManager(target, testOptions(), zaptest.NewLogger(t))
	summary, err := m.Publish(context.Background(), []*cleaner.Result{cleanedResult(t, "Ventas Enero.csv", "15-01-2023")})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, int64(2), summary.TotalRows)
	require.Len(t, summary.Results, 1)
	assert.Equal(t, 1, summary.Results[0].RetryCount)
	assert.Equal(t, 100.0, summary.SuccessRate())
	target.AssertExpectations(t)
}

func TestPublishDoesNotRetryTableErrors(t *testing.T) {
	target := new(mockTarget)
	target.On("EnsureSchema", mock.Anything, "ventas").Return(nil)
	target.On("CreateTableIfNotExists", mock.Anything, "ventas", "stock", mock.Anything).
		Return(&pgconn.PgError{Code: "42501", Message: "permission denied"}).Once()

	m := NewManager(target, testOptions(), zaptest.NewLogger(t))
	summary, err := m.Publish(context.Background(), []*cleaner.Result{cleanedResult(t, "stock.xlsx", "15-01-2023")})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.ErrorCategories[ErrorCategoryTableLevel])
	target.AssertNotCalled(t, "BatchInsert", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPublishConversionFailure(t *testing.T) {
	target := new(mockTarget)
	target.On("EnsureSchema", mock.Anything, "ventas").Return(nil)

	m := NewManager(target, testOptions(), zaptest.NewLogger(t))
	summary, err := m.Publish(context.Background(), []*cleaner.Result{cleanedResult(t, "malo.csv", "no es fecha")})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Results[0].Errors, 1)
	assert.Equal(t, ErrorCategoryDataConversion, summary.Results[0].Errors[0].Category)
	target.AssertNotCalled(t, "CreateTableIfNotExists", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPublishSchemaFailure(t *testing.T) {
	target := new(mockTarget)
	target.On("EnsureSchema", mock.Anything, "ventas").Return(errors.New("permission denied"))

	m := NewManager(target, testOptions(), zaptest.NewLogger(t))
	_, err := m.Publish(context.Background(), []*cleaner.Result{cleanedResult(t, "a.csv", "15-01-2023")})
	assert.Error(t, err)
}

func TestPublishSkipsResultsWithoutData(t *testing.T) {
	target := new(mockTarget)

	m := NewManager(target, testOptions(), zaptest.NewLogger(t))
	summary, err := m.Publish(context.Background(), []*cleaner.Result{{SourceFile: "vacio.csv"}})
	require.NoError(t, err)
	assert.Empty(t, summary.Results)
	target.AssertNotCalled(t, "EnsureSchema", mock.Anything, mock.Anything)
}

func TestCalculateWorkerCount(t *testing.T) {
	assert.Equal(t, 1, calculateWorkerCount(1))
	assert.LessOrEqual(t, calculateWorkerCount(100), maxWorkers)
	assert.GreaterOrEqual(t, calculateWorkerCount(100), 1)
}
