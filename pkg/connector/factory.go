// pkg/connector/factory.go
package connector

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/David-Botos/retail-bi/pkg/config"
)

// ConnectorFactory creates database connectors. Connection settings are read
// from the environment only when a connector is first requested.
type ConnectorFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewConnectorFactory creates a new connector factory
func NewConnectorFactory(cfg *config.Config, logger *zap.Logger) *ConnectorFactory {
	return &ConnectorFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateSnowflakeConnector creates a new Snowflake connector
func (f *ConnectorFactory) CreateSnowflakeConnector(ctx context.Context) (*SnowflakeConnector, error) {
	f.logger.Info("Creating Snowflake connector")

	sfCfg, err := config.LoadSnowflakeConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load Snowflake configuration: %w", err)
	}
	if f.cfg != nil && f.cfg.Dashboard.WarehouseSchema != "" {
		sfCfg.Schema = f.cfg.Dashboard.WarehouseSchema
	}

	connector, err := NewSnowflakeConnector(ctx, sfCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Snowflake connector: %w", err)
	}

	return connector, nil
}

// CreatePostgresConnector creates a new PostgreSQL connector
func (f *ConnectorFactory) CreatePostgresConnector(ctx context.Context) (*PostgresConnector, error) {
	f.logger.Info("Creating PostgreSQL connector")

	pgCfg, err := config.LoadPostgresConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load PostgreSQL configuration: %w", err)
	}

	connector, err := NewPostgresConnector(ctx, pgCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create PostgreSQL connector: %w", err)
	}

	return connector, nil
}

// OpenAuditStore opens the database that keeps the cleaning audit trail.
// It returns nil when auditing is disabled.
func (f *ConnectorFactory) OpenAuditStore(ctx context.Context) (*sqlx.DB, error) {
	audit := f.cfg.Audit

	switch audit.Driver {
	case config.AuditDriverNone:
		return nil, nil
	case config.AuditDriverSQLite:
		f.logger.Info("Opening SQLite audit store", zap.String("path", audit.DSN))
		db, err := sqlx.Open("sqlite", audit.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open SQLite audit store: %w", err)
		}
		// SQLite allows a single writer
		db.SetMaxOpenConns(1)
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to open SQLite audit store: %w", err)
		}
		return db, nil
	case config.AuditDriverPostgres:
		pg, err := f.CreatePostgresConnector(ctx)
		if err != nil {
			return nil, err
		}
		return pg.DB(), nil
	default:
		return nil, fmt.Errorf("unknown audit driver %q", audit.Driver)
	}
}
