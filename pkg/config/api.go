package config

import (
	"fmt"
	"strings"
	"time"
)

// Store drivers understood by the API.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

const (
	defaultHashIterations = 100000
	minSaltBytes          = 16
)

// APIConfig holds runtime configuration for the API service.
type APIConfig struct {
	Environment      string
	Addr             string
	DBDriver         string
	DatabaseURL      string
	SQLitePath       string
	MigrateOnStart   bool
	HashIterations   int
	SaltBytes        int
	OpenRegistration bool
	AuthRealm        string
	CacheRedisAddr   string
	CacheRedisPass   string
	CacheRedisDB     int
	CacheTTL         time.Duration
	NSQDAddr         string
	NSQTopic         string
	EventsHeartbeat  time.Duration
	ShutdownTimeout  time.Duration
	LogLevel         string
}

// LoadAPIConfig constructs an APIConfig from environment variables.
func LoadAPIConfig() APIConfig {
	iterations := defaultHashIterations
	if IsSet("CI") {
		iterations = 1
	}
	return APIConfig{
		Environment:      GetString("APP_ENV", "development"),
		Addr:             GetString("API_ADDR", ":8000"),
		DBDriver:         strings.ToLower(GetString("DB_DRIVER", DriverSQLite)),
		DatabaseURL:      GetString("DATABASE_URL", "postgres://notes:notes@db:5432/notes?sslmode=disable"),
		SQLitePath:       GetString("SQLITE_PATH", "/tmp/notes.db"),
		MigrateOnStart:   GetBool("MIGRATE_ON_START", true),
		HashIterations:   GetInt("PASSWORD_HASH_ITERATIONS", iterations),
		SaltBytes:        GetInt("PASSWORD_SALT_BYTES", 64),
		OpenRegistration: GetBool("OPEN_REGISTRATION", true),
		AuthRealm:        GetString("AUTH_REALM", "notes"),
		CacheRedisAddr:   GetString("CACHE_REDIS_ADDR", ""),
		CacheRedisPass:   GetString("CACHE_REDIS_PASSWORD", ""),
		CacheRedisDB:     GetInt("CACHE_REDIS_DB", 0),
		CacheTTL:         GetSeconds("CACHE_TTL_SECONDS", 60),
		NSQDAddr:         GetString("NSQD_ADDR", ""),
		NSQTopic:         GetString("NSQ_TOPIC", "notes"),
		EventsHeartbeat:  GetSeconds("EVENTS_HEARTBEAT_SECONDS", 15),
		ShutdownTimeout:  GetSeconds("SHUTDOWN_TIMEOUT_SECONDS", 10),
		LogLevel:         GetString("LOG_LEVEL", "info"),
	}
}

// Validate rejects configurations the API cannot start with.
func (c APIConfig) Validate() error {
	switch c.DBDriver {
	case DriverPostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("DATABASE_URL is required for driver %q", c.DBDriver)
		}
	case DriverSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("SQLITE_PATH is required for driver %q", c.DBDriver)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.HashIterations < 1 {
		return fmt.Errorf("PASSWORD_HASH_ITERATIONS must be positive, got %d", c.HashIterations)
	}
	if c.SaltBytes < minSaltBytes {
		return fmt.Errorf("PASSWORD_SALT_BYTES must be at least %d, got %d", minSaltBytes, c.SaltBytes)
	}
	return nil
}

// DSN returns the data source for the configured SQL driver.
func (c APIConfig) DSN() string {
	if c.DBDriver == DriverSQLite {
		return c.SQLitePath
	}
	return c.DatabaseURL
}
