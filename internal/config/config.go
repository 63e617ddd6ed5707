package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Backend selects the storage engine.
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Config holds all environment configuration
type Config struct {
	Port                int
	Backend             string
	DatabaseURL         string
	SQLitePath          string
	DefaultLease        time.Duration
	ReceiveMax          int
	MonitorInterval     time.Duration
	LogLevel            string
	LogFormat           string
	DBConnectionTimeout time.Duration
}

// helper: read env var as int seconds → convert to duration
func getEnvAsDuration(name string, defaultVal time.Duration) time.Duration {
	if value, exists := os.LookupEnv(name); exists {
		if i, err := strconv.Atoi(value); err == nil {
			return time.Duration(i) * time.Second
		}
	}
	return defaultVal
}

func getEnvAsInt(name string, defaultVal int) int {
	if value, exists := os.LookupEnv(name); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultVal
}

func getEnv(name, defaultVal string) string {
	if value, exists := os.LookupEnv(name); exists {
		return value
	}
	return defaultVal
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		Port:                getEnvAsInt("PORT", 8080),
		Backend:             getEnv("BACKEND", BackendPostgres),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		SQLitePath:          getEnv("SQLITE_PATH", "rowq.db"),
		DefaultLease:        getEnvAsDuration("DEFAULT_LEASE", 30*time.Second),
		ReceiveMax:          getEnvAsInt("RECEIVE_MAX", 10),
		MonitorInterval:     getEnvAsDuration("MONITOR_INTERVAL", 15*time.Second),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LogFormat:           getEnv("LOG_FORMAT", "text"),
		DBConnectionTimeout: getEnvAsDuration("DB_CONNECTION_TIMEOUT", 5*time.Second),
	}

	// Basic validation
	switch cfg.Backend {
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is required for the postgres backend")
		}
	case BackendSQLite:
		if cfg.SQLitePath == "" {
			return nil, errors.New("SQLITE_PATH is required for the sqlite backend")
		}
	default:
		return nil, fmt.Errorf("unknown BACKEND: %q", cfg.Backend)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid PORT: %d", cfg.Port)
	}
	if cfg.ReceiveMax <= 0 {
		return nil, fmt.Errorf("invalid RECEIVE_MAX: %d", cfg.ReceiveMax)
	}
	if cfg.DefaultLease <= 0 {
		return nil, fmt.Errorf("invalid DEFAULT_LEASE: %s", cfg.DefaultLease)
	}

	return cfg, nil
}
