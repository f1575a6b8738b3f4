// pkg/config/config.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/joho/godotenv"
)

// Config represents the application configuration
type Config struct {
	Cleaner   CleanerConfig
	Dashboard DashboardConfig
	Audit     AuditConfig
	Publish   PublishConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// CleanerConfig holds the directory layout and header detection settings
type CleanerConfig struct {
	SourceDir     string
	DestDir       string
	ProblemsDir   string
	ExportReports bool

	PreviewRows  int
	ReprobeLimit int
	MinMargin    float64
	// Delimiter forces the CSV delimiter; empty means sniff it
	Delimiter   string
	WeightsFile string
}

// DashboardConfig holds the HTTP server settings
type DashboardConfig struct {
	DataFolder      string
	Addr            string
	Backend         string
	CacheTTL        time.Duration
	CacheLongTTL    time.Duration
	CacheSize       int
	RateLimitRPS    float64
	RateLimitBurst  int
	AllowedOrigins  []string
	WarehouseSchema string
	ShutdownTimeout time.Duration
}

// AuditConfig selects where repaired cells are recorded
type AuditConfig struct {
	Driver string
	DSN    string
}

// PublishConfig holds the settings for loading cleaned files into PostgreSQL
type PublishConfig struct {
	Schema         string
	ChunkSize      int
	RetryAttempts  int
	RetryDelay     time.Duration
	WorkerPoolSize int
}

const (
	BackendFiles     = "files"
	BackendWarehouse = "warehouse"

	AuditDriverSQLite   = "sqlite"
	AuditDriverPostgres = "postgres"
	AuditDriverNone     = "none"
)

// LoadConfig loads configuration from environment variables. The given env
// files are loaded first and must exist; without any, an optional .env in the
// working directory is used. Variables already set are never overridden.
func LoadConfig(envFiles ...string) (*Config, error) {
	if err := loadEnvFiles(envFiles); err != nil {
		return nil, err
	}

	cfg := &Config{
		Cleaner: CleanerConfig{
			SourceDir:     getEnv("CLEANER_SOURCE_DIR", "archive_original"),
			DestDir:       getEnv("CLEANER_DEST_DIR", "archive_processed"),
			ProblemsDir:   getEnv("CLEANER_PROBLEMS_DIR", "Problems_to_solve"),
			ExportReports: getEnvAsBool("CLEANER_EXPORT_REPORTS", true),
			PreviewRows:   getEnvAsInt("HEADER_PREVIEW_ROWS", 15),
			ReprobeLimit:  getEnvAsInt("HEADER_REPROBE_LIMIT", 2),
			MinMargin:     getEnvAsFloat("HEADER_MIN_MARGIN", 5.0),
			Delimiter:     os.Getenv("CSV_DELIMITER"),
			WeightsFile:   getEnv("HEADER_WEIGHTS_FILE", ""),
		},
		Dashboard: DashboardConfig{
			DataFolder:      getEnv("DATA_FOLDER", "archive_categorized"),
			Addr:            getEnv("SERVER_ADDR", ":5000"),
			Backend:         getEnv("DASHBOARD_BACKEND", BackendFiles),
			CacheTTL:        time.Duration(getEnvAsInt("CACHE_TTL_SECONDS", 300)) * time.Second,
			CacheLongTTL:    time.Duration(getEnvAsInt("CACHE_LONG_TTL_SECONDS", 3600)) * time.Second,
			CacheSize:       getEnvAsInt("CACHE_SIZE", 256),
			RateLimitRPS:    getEnvAsFloat("RATE_LIMIT_RPS", 20),
			RateLimitBurst:  getEnvAsInt("RATE_LIMIT_BURST", 40),
			AllowedOrigins:  getEnvAsStringSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			WarehouseSchema: getEnv("WAREHOUSE_SCHEMA", "TECNOMUNDO_DATA_GOLD"),
			ShutdownTimeout: time.Duration(getEnvAsInt("SHUTDOWN_TIMEOUT_SECONDS", 10)) * time.Second,
		},
		Audit: AuditConfig{
			Driver: strings.ToLower(getEnv("AUDIT_DRIVER", AuditDriverSQLite)),
			DSN:    getEnv("AUDIT_DSN", "cleaning_audit.db"),
		},
		Publish: PublishConfig{
			Schema:         getEnv("PUBLISH_SCHEMA", "public"),
			ChunkSize:      getEnvAsInt("CHUNK_SIZE", 5000),
			RetryAttempts:  getEnvAsInt("RETRY_ATTEMPTS", 3),
			RetryDelay:     time.Duration(getEnvAsInt("RETRY_DELAY_MS", 1000)) * time.Millisecond,
			WorkerPoolSize: getEnvAsInt("WORKER_POOL_SIZE", 0), // 0 means use runtime.NumCPU()
		},
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadEnvFiles(files []string) error {
	if len(files) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("failed to load env files %v: %w", files, err)
	}
	return nil
}

// Validate ensures all required configuration is present and valid
func (c *Config) Validate() error {
	if c.Cleaner.SourceDir == "" || c.Cleaner.DestDir == "" || c.Cleaner.ProblemsDir == "" {
		return errors.New("cleaner directories cannot be empty")
	}
	if c.Cleaner.PreviewRows <= 0 {
		return errors.New("header preview rows must be positive")
	}
	if c.Cleaner.ReprobeLimit < 0 {
		return errors.New("header reprobe limit cannot be negative")
	}
	if c.Cleaner.Delimiter != "" && utf8.RuneCountInString(c.Cleaner.Delimiter) != 1 {
		return fmt.Errorf("csv delimiter must be a single character, got %q", c.Cleaner.Delimiter)
	}

	switch c.Dashboard.Backend {
	case BackendFiles, BackendWarehouse:
	default:
		return fmt.Errorf("unknown dashboard backend %q", c.Dashboard.Backend)
	}
	if c.Dashboard.CacheSize <= 0 {
		return errors.New("cache size must be positive")
	}
	if c.Dashboard.RateLimitRPS <= 0 || c.Dashboard.RateLimitBurst <= 0 {
		return errors.New("rate limit must be positive")
	}

	switch c.Audit.Driver {
	case AuditDriverSQLite, AuditDriverPostgres, AuditDriverNone:
	default:
		return fmt.Errorf("unknown audit driver %q", c.Audit.Driver)
	}

	if c.Publish.ChunkSize <= 0 {
		return errors.New("chunk size must be positive")
	}
	if c.Publish.RetryAttempts < 0 {
		return errors.New("retry attempts cannot be negative")
	}

	return nil
}

// DelimiterRune returns the forced CSV delimiter, or 0 to sniff it
func (c CleanerConfig) DelimiterRune() rune {
	if c.Delimiter == "" {
		return 0
	}
	if c.Delimiter == `\t` {
		return '\t'
	}
	r, _ := utf8.DecodeRuneInString(c.Delimiter)
	return r
}

// Helper functions for environment variables
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsStringSlice parses a comma separated list, ignoring blank items
func getEnvAsStringSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var result []string
	for _, v := range strings.Split(value, ",") {
		v = strings.Trim(strings.TrimSpace(v), `"`)
		if v != "" {
			result = append(result, v)
		}
	}

	if len(result) == 0 {
		return defaultValue
	}
	return result
}
