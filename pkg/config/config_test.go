package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "archive_original", cfg.Cleaner.SourceDir)
	assert.Equal(t, "archive_processed", cfg.Cleaner.DestDir)
	assert.Equal(t, "Problems_to_solve", cfg.Cleaner.ProblemsDir)
	assert.True(t, cfg.Cleaner.ExportReports)
	assert.Equal(t, 15, cfg.Cleaner.PreviewRows)
	assert.Equal(t, 2, cfg.Cleaner.ReprobeLimit)
	assert.Equal(t, 5.0, cfg.Cleaner.MinMargin)
	assert.Equal(t, rune(0), cfg.Cleaner.DelimiterRune())

	assert.Equal(t, ":5000", cfg.Dashboard.Addr)
	assert.Equal(t, BackendFiles, cfg.Dashboard.Backend)
	assert.Equal(t, 300*time.Second, cfg.Dashboard.CacheTTL)
	assert.Equal(t, time.Hour, cfg.Dashboard.CacheLongTTL)
	assert.Equal(t, []string{"*"}, cfg.Dashboard.AllowedOrigins)
	assert.Equal(t, "TECNOMUNDO_DATA_GOLD", cfg.Dashboard.WarehouseSchema)

	assert.Equal(t, AuditDriverSQLite, cfg.Audit.Driver)
	assert.Equal(t, "cleaning_audit.db", cfg.Audit.DSN)
	assert.Equal(t, 5000, cfg.Publish.ChunkSize)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("CLEANER_SOURCE_DIR", "in")
	t.Setenv("CLEANER_EXPORT_REPORTS", "false")
	t.Setenv("HEADER_MIN_MARGIN", "7.5")
	t.Setenv("CSV_DELIMITER", `\t`)
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.test, \"http://b.test\" ,")
	t.Setenv("AUDIT_DRIVER", "NONE")
	t.Setenv("HEADER_PREVIEW_ROWS", "not-a-number")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "in", cfg.Cleaner.SourceDir)
	assert.False(t, cfg.Cleaner.ExportReports)
	assert.Equal(t, 7.5, cfg.Cleaner.MinMargin)
	assert.Equal(t, '\t', cfg.Cleaner.DelimiterRune())
	assert.Equal(t, 15, cfg.Cleaner.PreviewRows)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Dashboard.AllowedOrigins)
	assert.Equal(t, AuditDriverNone, cfg.Audit.Driver)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"DASHBOARD_BACKEND":    "redis",
		"AUDIT_DRIVER":         "mongo",
		"CSV_DELIMITER":        ";;",
		"HEADER_REPROBE_LIMIT": "-1",
		"CHUNK_SIZE":           "-5",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("DATA_FOLDER=ventas_categorizadas\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("DATA_FOLDER") })

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "ventas_categorizadas", cfg.Dashboard.DataFolder)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func TestLoadSnowflakeConfig(t *testing.T) {
	t.Setenv("SNOWFLAKE_USER", "")
	t.Setenv("SNOWFLAKE_PASSWORD", "")
	_, err := LoadSnowflakeConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SNOWFLAKE_USER, SNOWFLAKE_PASSWORD")

	t.Setenv("SNOWFLAKE_USER", "analyst")
	t.Setenv("SNOWFLAKE_PASSWORD", "secret")
	t.Setenv("SNOWFLAKE_ACCOUNT", "acme-1")
	t.Setenv("SNOWFLAKE_WAREHOUSE", "COMPUTE_WH")
	t.Setenv("SNOWFLAKE_ROLE", "ANALYST")
	t.Setenv("SNOWFLAKE_MAX_OPEN_CONNS", "2")

	cfg, err := LoadSnowflakeConfig()
	require.NoError(t, err)
	assert.Equal(t, "TECNOMUNDO_DATA_GOLD", cfg.Schema)
	assert.Equal(t, 2, cfg.Pool.MaxOpen)
	assert.Equal(t, 2, cfg.Pool.MaxIdle)

	dsn, err := cfg.DSN()
	require.NoError(t, err)
	assert.Contains(t, dsn, "warehouse=COMPUTE_WH")
	assert.Contains(t, dsn, "role=ANALYST")

	t.Setenv("SNOWFLAKE_AUTHENTICATOR", "carrier-pigeon")
	_, err = LoadSnowflakeConfig()
	assert.Error(t, err)
}

func TestLoadPostgresConfig(t *testing.T) {
	t.Setenv("POSTGRES_USER", "bi")
	t.Setenv("POSTGRES_PASSWORD", "pw")
	t.Setenv("POSTGRES_DB", "retail")
	t.Setenv("POSTGRES_PORT", "6543")
	t.Setenv("POSTGRES_STATEMENT_TIMEOUT_SECONDS", "0")

	cfg, err := LoadPostgresConfig()
	require.NoError(t, err)
	assert.Equal(t, "host=localhost port=6543 user=bi password=pw dbname=retail sslmode=disable", cfg.DSN())

	cfg.Password = "it's secret"
	cfg.StatementTimeout = 2 * time.Second
	assert.Equal(t, `host=localhost port=6543 user=bi password='it\'s secret' dbname=retail sslmode=disable statement_timeout=2000`, cfg.DSN())

	t.Setenv("POSTGRES_PORT", "70000")
	_, err = LoadPostgresConfig()
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	cfg := &Config{LogLevel: "DEBUG", LogFormat: "console"}
	logger, err := cfg.NewLogger()
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(-1))

	cfg = &Config{LogLevel: "warn", LogFormat: "json"}
	logger, err = cfg.NewLogger()
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(0))

	cfg.LogLevel = "loud"
	_, err = cfg.NewLogger()
	assert.Error(t, err)
}
