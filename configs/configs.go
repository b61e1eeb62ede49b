// Package configs provides application configuration loaded from environment variables.
// All configuration is externalized via environment variables for 12-factor app compliance.
package configs

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all application configuration.
// Load it once at startup using AppLoad().
type AppConfig struct {
	// App is the application tag attached to every log record.
	App string

	// LogPath is the log file path. Empty means stdout only.
	LogPath string

	// LogLevel is the minimum logrus level name ("debug", "info", ...).
	LogLevel string

	// PostgresDSN is the Postgres connection string for the candles table.
	PostgresDSN string

	// MongoURI is the MongoDB connection string for raw candle retention.
	MongoURI string

	// MongoDB is the Mongo database name.
	MongoDB string

	// Broker contains the quote-service connection settings.
	Broker BrokerConfig

	// Collector contains fetch-window and throttle tuning.
	Collector CollectorConfig
}

// BrokerConfig holds broker websocket session settings.
type BrokerConfig struct {
	// URL is the broker websocket endpoint.
	URL string

	// UserID is the broker account login.
	UserID string

	// Password is the broker account password.
	Password string

	// Mode selects the account type: "real" or "demo".
	Mode string

	// RequestsPerSecond caps outbound broker commands.
	RequestsPerSecond float64
}

// CollectorConfig holds settings for one collection cycle.
type CollectorConfig struct {
	// PresentWindow is how many recent candles to request per cycle.
	PresentWindow int

	// BackfillWindow is how many historical candles to request per backfill step.
	BackfillWindow int

	// BackfillCooldown is the pause between the present and backfill fetches.
	BackfillCooldown time.Duration

	// SymbolDelay is the pause between (symbol, timeframe) pairs.
	SymbolDelay time.Duration
}

// getPostgresDSN constructs the Postgres DSN from environment variables.
func getPostgresDSN() string {
	user := getEnv("PGSQL_USER", "postgres")
	password := url.QueryEscape(getEnv("PGSQL_PASS", ""))
	host := getEnv("PGSQL_HOST", "localhost")
	port := getEnv("PGSQL_PORT", "5432")
	dbname := getEnv("PGSQL_DB", "tinyco")

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=prefer",
		user, password, host, port, dbname,
	)
}

// getMongoURI constructs the MongoDB URI from environment variables.
func getMongoURI() string {
	user := getEnv("MONGODB_USER", "")
	password := url.QueryEscape(getEnv("MONGODB_PASS", ""))
	host := getEnv("MONGODB_HOST", "localhost:27017")

	if user == "" {
		return fmt.Sprintf("mongodb://%s", host)
	}
	return fmt.Sprintf("mongodb://%s:%s@%s", user, password, host)
}

// AppLoad loads all application configuration from environment variables.
// It attempts to load a .env file first (for local development).
// Call this once at application startup.
func AppLoad() *AppConfig {
	_ = godotenv.Load() // Ignore error - .env is optional

	return &AppConfig{
		App:         getEnv("APPLICATION", "harvest"),
		LogPath:     getEnv("LOG_PATH", ""),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		PostgresDSN: getPostgresDSN(),
		MongoURI:    getMongoURI(),
		MongoDB:     getEnv("MONGODB_DB", "xtb"),
		Broker: BrokerConfig{
			URL:               getEnv("BROKER_URL", "wss://ws.xtb.com/real"),
			UserID:            getEnv("BROKER_USER", ""),
			Password:          getEnv("BROKER_PASS", ""),
			Mode:              getEnv("BROKER_MODE", "real"),
			RequestsPerSecond: getEnvFloat("BROKER_RPS", 2.0),
		},
		Collector: CollectorConfig{
			PresentWindow:    getEnvInt("PRESENT_WINDOW", 300),
			BackfillWindow:   getEnvInt("BACKFILL_WINDOW", 500),
			BackfillCooldown: time.Duration(getEnvInt("BACKFILL_COOLDOWN_MS", 500)) * time.Millisecond,
			SymbolDelay:      time.Duration(getEnvInt("SYMBOL_DELAY_MS", 1000)) * time.Millisecond,
		},
	}
}

// getEnv returns the environment variable value or a default.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
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

// getEnvFloat returns the environment variable as float64 or a default.
func getEnvFloat(key string, defaultValue float64) float64 {
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
