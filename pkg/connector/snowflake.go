// pkg/connector/snowflake.go
package connector

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/snowflakedb/gosnowflake"
	"go.uber.org/zap"

	"github.com/David-Botos/retail-bi/pkg/config"
)

// SnowflakeConnector is a read handle on the sales warehouse
type SnowflakeConnector struct {
	db     *sqlx.DB
	logger *zap.Logger
	cfg    *config.SnowflakeConfig
}

// NewSnowflakeConnector opens the pool, sets the session statement timeout
// and pings the account
func NewSnowflakeConnector(ctx context.Context, cfg *config.SnowflakeConfig) (*SnowflakeConnector, error) {
	logger := zap.L().Named("snowflake")

	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}

	logger.Info("Opening warehouse connection",
		zap.String("account", cfg.Account),
		zap.String("database", cfg.Database),
		zap.String("schema", cfg.Schema),
		zap.String("warehouse", cfg.Warehouse))

	db, err := sqlx.Open("snowflake", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open Snowflake: %w", err)
	}
	configurePool(db.DB, cfg.Pool)

	if err := ping(ctx, db.DB, 10*time.Second); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach Snowflake account %s: %w", cfg.Account, err)
	}

	if secs := int(cfg.QueryTimeout / time.Second); secs > 0 {
		stmt := fmt.Sprintf("ALTER SESSION SET STATEMENT_TIMEOUT_IN_SECONDS = %d", secs)
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			logger.Warn("Session timeout not applied", zap.Error(err))
		}
	}

	logPoolStats(logger, cfg.Database, db.DB)
	return &SnowflakeConnector{db: db, logger: logger, cfg: cfg}, nil
}

// DB returns the underlying database connection
func (c *SnowflakeConnector) DB() *sqlx.DB {
	return c.db
}

// Schema returns the schema holding the sales tables
func (c *SnowflakeConnector) Schema() string {
	return c.cfg.Schema
}

// QueryTimeout returns the per-query timeout
func (c *SnowflakeConnector) QueryTimeout() time.Duration {
	return c.cfg.QueryTimeout
}

// Validate verifies the Snowflake connection and access rights
func (c *SnowflakeConnector) Validate(ctx context.Context) error {
	var role, database, warehouse string
	err := c.db.QueryRowContext(ctx, "SELECT CURRENT_ROLE(), CURRENT_DATABASE(), CURRENT_WAREHOUSE()").Scan(
		&role, &database, &warehouse)
	if err != nil {
		return fmt.Errorf("failed to verify Snowflake access: %w", err)
	}

	c.logger.Info("Connected to Snowflake",
		zap.String("role", role),
		zap.String("database", database),
		zap.String("warehouse", warehouse))

	if !strings.EqualFold(database, c.cfg.Database) {
		return fmt.Errorf("connected to wrong database: %s (expected: %s)",
			database, c.cfg.Database)
	}

	found, err := c.hasSchema(ctx)
	if err != nil {
		return fmt.Errorf("failed to verify schema: %w", err)
	}
	if !found {
		c.logger.Warn("Sales schema not found", zap.String("schema", c.cfg.Schema))
	}

	return nil
}

// Close closes the database connection
func (c *SnowflakeConnector) Close() error {
	c.logger.Info("Closing Snowflake connection")
	logPoolStats(c.logger, c.cfg.Database, c.db.DB)
	return c.db.Close()
}

func (c *SnowflakeConnector) hasSchema(ctx context.Context) (bool, error) {
	var count int
	err := c.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM INFORMATION_SCHEMA.SCHEMATA WHERE SCHEMA_NAME = ?",
		strings.ToUpper(c.cfg.Schema)).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ExecWithTimeout executes a statement with a timeout
func (c *SnowflakeConnector) ExecWithTimeout(
	ctx context.Context,
	query string,
	timeout time.Duration,
	args ...interface{},
) (sql.Result, error) {
	return execWithTimeout(ctx, c.db, query, timeout, args...)
}
