// pkg/config/database.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/snowflakedb/gosnowflake"
)

// PoolConfig sizes a database/sql pool. Zero values keep the driver default.
type PoolConfig struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// SnowflakeConfig is the sales warehouse read by the dashboard
type SnowflakeConfig struct {
	User          string
	Password      string
	Account       string
	Warehouse     string
	Database      string
	Schema        string
	Role          string
	Authenticator gosnowflake.AuthType

	Pool         PoolConfig
	QueryTimeout time.Duration
}

// PostgresConfig is the target of published tables and of the postgres
// audit driver
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	Pool             PoolConfig
	StatementTimeout time.Duration
}

var authenticators = map[string]gosnowflake.AuthType{
	"snowflake":             gosnowflake.AuthTypeSnowflake,
	"oauth":                 gosnowflake.AuthTypeOAuth,
	"externalbrowser":       gosnowflake.AuthTypeExternalBrowser,
	"username_password_mfa": gosnowflake.AuthTypeUsernamePasswordMFA,
	"jwt":                   gosnowflake.AuthTypeJwt,
	"token":                 gosnowflake.AuthTypeTokenAccessor,
	"okta":                  gosnowflake.AuthTypeOkta,
}

// requireEnv reads every key and reports all missing ones at once
func requireEnv(keys ...string) (map[string]string, error) {
	values := make(map[string]string, len(keys))
	var missing []string
	for _, key := range keys {
		v := os.Getenv(key)
		if v == "" {
			missing = append(missing, key)
			continue
		}
		values[key] = v
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return values, nil
}

func seconds(key string, def int) time.Duration {
	return time.Duration(getEnvAsInt(key, def)) * time.Second
}

// loadPool reads PREFIX_MAX_OPEN_CONNS and friends
func loadPool(prefix string, def PoolConfig) PoolConfig {
	return PoolConfig{
		MaxOpen:     getEnvAsInt(prefix+"_MAX_OPEN_CONNS", def.MaxOpen),
		MaxIdle:     getEnvAsInt(prefix+"_MAX_IDLE_CONNS", def.MaxIdle),
		MaxLifetime: seconds(prefix+"_CONN_MAX_LIFETIME_SECONDS", int(def.MaxLifetime.Seconds())),
		MaxIdleTime: seconds(prefix+"_CONN_MAX_IDLE_TIME_SECONDS", int(def.MaxIdleTime.Seconds())),
	}
}

// LoadSnowflakeConfig reads the SNOWFLAKE_* variables. The schema comes from
// WAREHOUSE_SCHEMA so the dashboard and the warehouse loaders agree on it.
func LoadSnowflakeConfig() (*SnowflakeConfig, error) {
	env, err := requireEnv("SNOWFLAKE_USER", "SNOWFLAKE_PASSWORD", "SNOWFLAKE_ACCOUNT", "SNOWFLAKE_WAREHOUSE")
	if err != nil {
		return nil, err
	}

	authName := strings.ToLower(getEnv("SNOWFLAKE_AUTHENTICATOR", "snowflake"))
	auth, ok := authenticators[authName]
	if !ok {
		return nil, fmt.Errorf("unknown SNOWFLAKE_AUTHENTICATOR %q", authName)
	}

	return &SnowflakeConfig{
		User:          env["SNOWFLAKE_USER"],
		Password:      env["SNOWFLAKE_PASSWORD"],
		Account:       env["SNOWFLAKE_ACCOUNT"],
		Warehouse:     env["SNOWFLAKE_WAREHOUSE"],
		Database:      getEnv("SNOWFLAKE_DATABASE", "TECNOMUNDO_DB"),
		Schema:        getEnv("WAREHOUSE_SCHEMA", "TECNOMUNDO_DATA_GOLD"),
		Role:          getEnv("SNOWFLAKE_ROLE", ""),
		Authenticator: auth,
		Pool: loadPool("SNOWFLAKE", PoolConfig{
			MaxOpen:     4,
			MaxIdle:     2,
			MaxLifetime: 10 * time.Minute,
			MaxIdleTime: 5 * time.Minute,
		}),
		QueryTimeout: seconds("SNOWFLAKE_QUERY_TIMEOUT_SECONDS", 60),
	}, nil
}

// DSN renders the driver connection string
func (c *SnowflakeConfig) DSN() (string, error) {
	dsn, err := gosnowflake.DSN(&gosnowflake.Config{
		Account:       c.Account,
		User:          c.User,
		Password:      c.Password,
		Database:      c.Database,
		Schema:        c.Schema,
		Warehouse:     c.Warehouse,
		Role:          c.Role,
		Authenticator: c.Authenticator,
	})
	if err != nil {
		return "", fmt.Errorf("failed to build Snowflake DSN: %w", err)
	}
	return dsn, nil
}

// LoadPostgresConfig reads the POSTGRES_* variables
func LoadPostgresConfig() (*PostgresConfig, error) {
	env, err := requireEnv("POSTGRES_USER", "POSTGRES_PASSWORD", "POSTGRES_DB")
	if err != nil {
		return nil, err
	}

	port := getEnvAsInt("POSTGRES_PORT", 5432)
	if port <= 0 || port > 65535 {
		return nil, errors.New("POSTGRES_PORT must be between 1 and 65535")
	}

	return &PostgresConfig{
		Host:     getEnv("POSTGRES_HOST", "localhost"),
		Port:     port,
		User:     env["POSTGRES_USER"],
		Password: env["POSTGRES_PASSWORD"],
		Database: env["POSTGRES_DB"],
		SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		Pool: loadPool("POSTGRES", PoolConfig{
			MaxOpen:     8,
			MaxIdle:     4,
			MaxLifetime: 30 * time.Minute,
			MaxIdleTime: 10 * time.Minute,
		}),
		StatementTimeout: seconds("POSTGRES_STATEMENT_TIMEOUT_SECONDS", 300),
	}, nil
}

// DSN renders a key/value connection string. Values with spaces or quotes
// are single-quoted.
func (c *PostgresConfig) DSN() string {
	pairs := []struct{ k, v string }{
		{"host", c.Host},
		{"port", fmt.Sprint(c.Port)},
		{"user", c.User},
		{"password", c.Password},
		{"dbname", c.Database},
		{"sslmode", c.SSLMode},
	}
	// pgx forwards unknown keys as session parameters
	if ms := c.StatementTimeout.Milliseconds(); ms > 0 {
		pairs = append(pairs, struct{ k, v string }{"statement_timeout", fmt.Sprint(ms)})
	}
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, p.k+"="+quoteDSNValue(p.v))
	}
	return strings.Join(parts, " ")
}

func quoteDSNValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}
