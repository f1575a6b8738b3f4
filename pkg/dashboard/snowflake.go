// pkg/dashboard/snowflake.go
package dashboard

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/David-Botos/retail-bi/pkg/connector"
)

const (
	factSalesTable   = "FACT_SALES"
	dimProductsTable = "DIM_PRODUCTS"
)

// SnowflakeWarehouse queries the gold sales tables in Snowflake. User input
// is always bound as a parameter.
type SnowflakeWarehouse struct {
	db      *sqlx.DB
	schema  string
	timeout time.Duration
	logger  *zap.Logger
}

// NewSnowflakeWarehouse creates a warehouse over an open connector. The
// tables are read from the connector's schema.
func NewSnowflakeWarehouse(conn *connector.SnowflakeConnector, logger *zap.Logger) *SnowflakeWarehouse {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnowflakeWarehouse{
		db:      conn.DB(),
		schema:  conn.Schema(),
		timeout: conn.QueryTimeout(),
		logger:  logger.Named("snowflake-warehouse"),
	}
}

func (w *SnowflakeWarehouse) table(name string) string {
	if w.schema == "" {
		return name
	}
	return fmt.Sprintf("%s.%s", w.schema, name)
}

func (w *SnowflakeWarehouse) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if w.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, w.timeout)
}

func (w *SnowflakeWarehouse) selectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	ctx, cancel := w.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	err := w.db.SelectContext(ctx, dest, query, args...)
	w.logger.Debug("Executed warehouse query",
		zap.String("query", query),
		zap.Int("args", len(args)),
		zap.Duration("duration", time.Since(start)),
		zap.Error(err))
	return err
}

// Sales returns every sale with its quantity. Non-numeric quantities read as 0.
func (w *SnowflakeWarehouse) Sales(ctx context.Context) ([]SaleLine, error) {
	query := fmt.Sprintf(`SELECT
		TO_VARCHAR(codigo_producto) AS codigo_producto,
		COALESCE(TRY_TO_DOUBLE(TO_VARCHAR(cantidad)), 0) AS cantidad
	FROM %s`, w.table(factSalesTable))

	var lines []SaleLine
	if err := w.selectContext(ctx, &lines, query); err != nil {
		return nil, err
	}
	return lines, nil
}

// Products returns the product dimension
func (w *SnowflakeWarehouse) Products(ctx context.Context) ([]Product, error) {
	query := fmt.Sprintf(`SELECT
		TO_VARCHAR(codigo_producto) AS codigo_producto,
		nombre_del_producto,
		categoria
	FROM %s`, w.table(dimProductsTable))

	var products []Product
	if err := w.selectContext(ctx, &products, query); err != nil {
		return nil, err
	}
	return products, nil
}

// Categories returns the distinct product categories in order
func (w *SnowflakeWarehouse) Categories(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf(
		"SELECT DISTINCT categoria FROM %s WHERE categoria IS NOT NULL ORDER BY categoria",
		w.table(dimProductsTable))

	var categories []string
	if err := w.selectContext(ctx, &categories, query); err != nil {
		return nil, err
	}
	return categories, nil
}

// Inventory returns the latest stock of every product with the units sold in
// the 30 days up to the product's last sale
func (w *SnowflakeWarehouse) Inventory(ctx context.Context, category string) ([]StockLine, error) {
	sales := w.table(factSalesTable)
	query := fmt.Sprintf(`WITH product_max_date AS (
		SELECT codigo_producto, MAX(CAST(fecha AS DATE)) AS max_fecha_producto
		FROM %[1]s
		GROUP BY codigo_producto
	),
	latest_stock AS (
		SELECT
			codigo_producto,
			nombre_del_producto,
			categoria,
			stock_actual,
			ROW_NUMBER() OVER (PARTITION BY codigo_producto ORDER BY fecha DESC) AS rn
		FROM %[1]s
	),
	sales_last_30_days AS (
		SELECT s.codigo_producto, SUM(s.cantidad) AS unidades_vendidas_30d
		FROM %[1]s s
		JOIN product_max_date pmd ON s.codigo_producto = pmd.codigo_producto
		WHERE CAST(s.fecha AS DATE) >= DATEADD(day, -30, pmd.max_fecha_producto)
		GROUP BY s.codigo_producto
	)
	SELECT
		TO_VARCHAR(ls.codigo_producto) AS codigo_producto,
		COALESCE(ls.nombre_del_producto, '') AS nombre_del_producto,
		COALESCE(ls.categoria, '') AS categoria,
		COALESCE(TRY_TO_DOUBLE(TO_VARCHAR(ls.stock_actual)), 0) AS stock_actual,
		COALESCE(s30.unidades_vendidas_30d, 0)::FLOAT AS unidades_vendidas_30d
	FROM latest_stock ls
	LEFT JOIN sales_last_30_days s30 ON ls.codigo_producto = s30.codigo_producto
	WHERE ls.rn = 1`, sales)

	var args []interface{}
	if category != "" {
		query += " AND ls.categoria = ?"
		args = append(args, category)
	}

	var lines []StockLine
	if err := w.selectContext(ctx, &lines, query, args...); err != nil {
		return nil, err
	}
	return lines, nil
}

// SalesDateRange returns the first and last sale dates
func (w *SnowflakeWarehouse) SalesDateRange(ctx context.Context) (time.Time, time.Time, bool, error) {
	query := fmt.Sprintf(
		"SELECT MIN(CAST(fecha AS DATE)) AS min_date, MAX(CAST(fecha AS DATE)) AS max_date FROM %s",
		w.table(factSalesTable))

	ctx, cancel := w.withTimeout(ctx)
	defer cancel()

	var row struct {
		Min sql.NullTime `db:"min_date"`
		Max sql.NullTime `db:"max_date"`
	}
	if err := w.db.GetContext(ctx, &row, query); err != nil {
		return time.Time{}, time.Time{}, false, err
	}
	if !row.Min.Valid || !row.Max.Valid {
		return time.Time{}, time.Time{}, false, nil
	}
	return row.Min.Time, row.Max.Time, true, nil
}

// DailySales returns the units sold per day within [start, end]
func (w *SnowflakeWarehouse) DailySales(ctx context.Context, start, end time.Time) ([]DailyUnits, error) {
	query := fmt.Sprintf(`SELECT
		CAST(fecha AS DATE) AS fecha_venta,
		COALESCE(SUM(cantidad), 0)::FLOAT AS total_unidades
	FROM %s
	WHERE CAST(fecha AS DATE) BETWEEN ? AND ?
	GROUP BY 1
	ORDER BY 1`, w.table(factSalesTable))

	var days []DailyUnits
	if err := w.selectContext(ctx, &days, query, start.Format(DateLayout), end.Format(DateLayout)); err != nil {
		return nil, err
	}
	return days, nil
}
