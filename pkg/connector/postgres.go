// pkg/connector/postgres.go
package connector

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/David-Botos/retail-bi/pkg/config"
)

// maxPostgresParams is the bind parameter limit of the wire protocol
const maxPostgresParams = 65535

// PostgresConnector writes published tables and, with the postgres audit
// driver, the repair audit trail
type PostgresConnector struct {
	db     *sqlx.DB
	logger *zap.Logger
	cfg    *config.PostgresConfig
}

// NewPostgresConnector opens a pgx-backed pool and pings the server
func NewPostgresConnector(ctx context.Context, cfg *config.PostgresConfig) (*PostgresConnector, error) {
	logger := zap.L().Named("postgres")
	logger.Info("Opening PostgreSQL connection",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("database", cfg.Database))

	db, err := sqlx.Open("pgx", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL: %w", err)
	}
	configurePool(db.DB, cfg.Pool)

	if err := ping(ctx, db.DB, 5*time.Second); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach PostgreSQL at %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	logPoolStats(logger, cfg.Database, db.DB)
	return &PostgresConnector{db: db, logger: logger, cfg: cfg}, nil
}

// DB returns the underlying database connection
func (c *PostgresConnector) DB() *sqlx.DB {
	return c.db
}

// Validate verifies the connection and the right to create tables
func (c *PostgresConnector) Validate(ctx context.Context) error {
	var version string
	if err := c.db.QueryRowContext(ctx, "SELECT version()").Scan(&version); err != nil {
		return fmt.Errorf("failed to query PostgreSQL version: %w", err)
	}
	c.logger.Info("Connected to PostgreSQL", zap.String("version", version))

	_, err := c.db.ExecContext(ctx, `
		DO $$
		BEGIN
			CREATE TEMP TABLE _permission_check (id serial, test text);
			INSERT INTO _permission_check (test) VALUES ('test');
			DROP TABLE _permission_check;
		EXCEPTION WHEN OTHERS THEN
			RAISE EXCEPTION 'Permission check failed: %', SQLERRM;
		END $$;
	`)
	if err != nil {
		return fmt.Errorf("permission validation failed: %w", err)
	}

	c.logger.Info("PostgreSQL connection validated",
		zap.String("database", c.cfg.Database),
		zap.String("host", c.cfg.Host),
		zap.Int("port", c.cfg.Port))

	return nil
}

// Close closes the database connection
func (c *PostgresConnector) Close() error {
	c.logger.Info("Closing PostgreSQL connection")
	logPoolStats(c.logger, c.cfg.Database, c.db.DB)
	return c.db.Close()
}

// EnsureSchema creates a schema if it doesn't exist
func (c *PostgresConnector) EnsureSchema(ctx context.Context, schema string) error {
	_, err := c.ExecWithTimeout(ctx, "CREATE SCHEMA IF NOT EXISTS "+pq.QuoteIdentifier(schema), 30*time.Second)
	return err
}

// ExecWithTimeout executes a query with a timeout
func (c *PostgresConnector) ExecWithTimeout(
	ctx context.Context,
	query string,
	timeout time.Duration,
	args ...interface{},
) (sql.Result, error) {
	return execWithTimeout(ctx, c.db, query, timeout, args...)
}

// BatchInsert loads rows in chunks of at most batchSize inside a single
// transaction, so a failed load leaves the table untouched and reports zero
// rows
func (c *PostgresConnector) BatchInsert(
	ctx context.Context,
	schema string,
	table string,
	columns []string,
	valueRows [][]interface{},
	batchSize int,
) (inserted int64, err error) {
	if len(valueRows) == 0 || len(columns) == 0 {
		return 0, nil
	}
	batchSize = chunkSize(batchSize, len(columns))

	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin load of %s: %w", QualifiedName(schema, table), err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			inserted = 0
		}
	}()

	for start := 0; start < len(valueRows); start += batchSize {
		chunk := valueRows[start:min(start+batchSize, len(valueRows))]
		query, args := BuildInsertQuery(schema, table, columns, chunk)

		chunkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		res, execErr := tx.ExecContext(chunkCtx, query, args...)
		cancel()
		if execErr != nil {
			return 0, fmt.Errorf("insert of rows %d-%d failed: %w", start, start+len(chunk)-1, execErr)
		}
		if n, raErr := res.RowsAffected(); raErr == nil {
			inserted += n
		} else {
			inserted += int64(len(chunk))
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit load of %s: %w", QualifiedName(schema, table), err)
	}
	c.logger.Debug("Rows loaded",
		zap.String("table", QualifiedName(schema, table)),
		zap.Int64("rows", inserted))
	return inserted, nil
}

// chunkSize caps the requested size so one statement stays under the bind
// parameter limit
func chunkSize(requested, columns int) int {
	if requested <= 0 {
		requested = 1000
	}
	if limit := maxPostgresParams / columns; requested > limit {
		return limit
	}
	return requested
}

// CreateTableIfNotExists creates the table unless information_schema already
// lists it. Existing tables are never altered.
func (c *PostgresConnector) CreateTableIfNotExists(
	ctx context.Context,
	schema string,
	table string,
	columnDefs []string,
) error {
	name := QualifiedName(schema, table)

	var found int
	err := c.db.GetContext(ctx, &found,
		"SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = $1 AND table_name = $2",
		schema, table)
	if err != nil {
		return fmt.Errorf("failed to look up %s: %w", name, err)
	}
	if found > 0 {
		c.logger.Debug("Table exists", zap.String("table", name))
		return nil
	}

	if _, err := c.ExecWithTimeout(ctx, BuildCreateTable(schema, table, columnDefs), 30*time.Second); err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	c.logger.Info("Table created", zap.String("table", name), zap.Int("columns", len(columnDefs)))
	return nil
}

// QualifiedName quotes and joins a schema and table name
func QualifiedName(schema, table string) string {
	return pq.QuoteIdentifier(schema) + "." + pq.QuoteIdentifier(table)
}

// BuildCreateTable renders a CREATE TABLE statement; column definitions are
// used verbatim
func BuildCreateTable(schema, table string, columnDefs []string) string {
	return fmt.Sprintf("CREATE TABLE %s (\n\t%s\n)",
		QualifiedName(schema, table),
		strings.Join(columnDefs, ",\n\t"))
}

// BuildInsertQuery renders a multi-row INSERT with numbered placeholders
func BuildInsertQuery(schema, table string, columns []string, rows [][]interface{}) (string, []interface{}) {
	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = pq.QuoteIdentifier(col)
	}

	placeholders := make([]string, len(rows))
	args := make([]interface{}, 0, len(rows)*len(columns))
	for j, row := range rows {
		rowPlaceholders := make([]string, len(columns))
		for k := range columns {
			rowPlaceholders[k] = fmt.Sprintf("$%d", j*len(columns)+k+1)
			var val interface{}
			if k < len(row) {
				val = row[k]
			}
			args = append(args, val)
		}
		placeholders[j] = "(" + strings.Join(rowPlaceholders, ", ") + ")"
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		QualifiedName(schema, table), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
	return query, args
}
