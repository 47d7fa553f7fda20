package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Database  DatabaseConfig
	Business  BusinessConfig
	Import    ImportConfig
	Telemetry TelemetryConfig
}

type DatabaseConfig struct {
	Driver     string
	Host       string
	Port       int
	User       string
	Password   string
	DBName     string
	SSLMode    string
	SQLitePath string
}

type BusinessConfig struct {
	Timezone          string
	EventPrefix       string
	ProviderDirectory string
}

type ImportConfig struct {
	HeaderRow int
	Columns   string // field=column overrides, e.g. "item_sold=7,tip=15"
}

type TelemetryConfig struct {
	Enabled      bool
	ServiceName  string
	OTLPEndpoint string
	MetricsPort  string
	Environment  string
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: failed to load .env file: %v", err)
	}

	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	headerRow, err := strconv.Atoi(getEnv("IMPORT_HEADER_ROW", "23"))
	if err != nil {
		return nil, fmt.Errorf("invalid IMPORT_HEADER_ROW: %w", err)
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Driver:     strings.ToLower(getEnv("DB_DRIVER", DriverPostgres)),
			Host:       getEnv("DB_HOST", "localhost"),
			Port:       dbPort,
			User:       getEnv("DB_USER", "posrecon"),
			Password:   getEnv("DB_PASSWORD", ""),
			DBName:     getEnv("DB_NAME", "posrecon"),
			SSLMode:    getEnv("DB_SSLMODE", "disable"),
			SQLitePath: getEnv("SQLITE_PATH", "posrecon.db"),
		},
		Business: BusinessConfig{
			Timezone:          getEnv("BUSINESS_TIMEZONE", "America/New_York"),
			EventPrefix:       getEnv("BACKFILL_EVENT_PREFIX", "manual"),
			ProviderDirectory: getEnv("PROVIDER_DIRECTORY_FILE", ""),
		},
		Import: ImportConfig{
			HeaderRow: headerRow,
			Columns:   getEnv("IMPORT_COLUMNS", ""),
		},
		Telemetry: TelemetryConfig{
			Enabled:      getBoolEnv("OTEL_ENABLED", false),
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "posrecon-admin"),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
			MetricsPort:  getEnv("METRICS_PORT", "9464"),
			Environment:  getEnv("ENVIRONMENT", "development"),
		},
	}

	switch cfg.Database.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("DB_DRIVER must be %q or %q, got %q", DriverPostgres, DriverSQLite, cfg.Database.Driver)
	}
	if cfg.Database.Driver == DriverSQLite && cfg.Database.SQLitePath == "" {
		return nil, fmt.Errorf("SQLITE_PATH is required when DB_DRIVER=sqlite")
	}

	if _, err := time.LoadLocation(cfg.Business.Timezone); err != nil {
		return nil, fmt.Errorf("invalid BUSINESS_TIMEZONE %q: %w", cfg.Business.Timezone, err)
	}
	if strings.TrimSpace(cfg.Business.EventPrefix) == "" || strings.Contains(cfg.Business.EventPrefix, "%") {
		return nil, fmt.Errorf("BACKFILL_EVENT_PREFIX must be a non-empty literal prefix")
	}

	if cfg.Import.HeaderRow < 0 {
		return nil, fmt.Errorf("IMPORT_HEADER_ROW must not be negative")
	}

	if _, err := strconv.Atoi(cfg.Telemetry.MetricsPort); err != nil {
		return nil, fmt.Errorf("invalid METRICS_PORT: %w", err)
	}

	return cfg, nil
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	// Accept: true, false, 1, 0, yes, no (case-insensitive)
	switch strings.ToLower(value) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultValue
	}
}
