// Package config provides configuration for the switchboard engine.
// It loads settings from environment variables with the SWITCHBOARD_ prefix
// and provides sensible defaults for all options.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the engine and its store backends.
type Config struct {
	Identity  IdentityConfig
	Store     StoreConfig
	Retrieval RetrievalConfig
	Profile   ProfileConfig
}

// IdentityConfig controls identifier normalization and resolution.
type IdentityConfig struct {
	// DefaultCountryCode is prefixed to 10-digit phone numbers (default: "1").
	DefaultCountryCode string

	// ResolveThreshold is the minimum combined confidence for a match (default: 0.8).
	ResolveThreshold float64

	// NameMatchFloor is the minimum string-similarity ratio, 0-100, for name
	// evidence to be admitted (default: 75).
	NameMatchFloor int
}

// StoreConfig selects and configures the semantic store backend.
type StoreConfig struct {
	Engine      string        // Store engine: memory, sqlite, postgres (default: memory)
	PostgresDSN string        // PostgreSQL connection string
	SQLitePath  string        // Path to the SQLite database file (default: ./data/switchboard.db)
	Timeout     time.Duration // Per-call store timeout (default: 5s)
	RetryDelay  time.Duration // Backoff before the single retry (default: 500ms)
}

// RetrievalConfig controls context retrieval defaults.
type RetrievalConfig struct {
	MaxItems         int           // Ranked items returned per request (default: 10)
	WindowDays       int           // Chronological fetch window (default: 90)
	DecayWindowDays  int           // Recency decay window (default: 30)
	ThreadWindowDays int           // Thread grouping window (default: 7)
	FetchLimit       int           // Max fragments per chronological fetch (default: 200)
	NeighborK        int           // Nearest-neighbor candidates fetched (default: 50)
	MinSimilarity    float64       // Nearest-neighbor admission floor (default: 0.1)
	ProfileTTL       time.Duration // Profile cache TTL (default: 1h)
	KeywordsPath     string        // Optional YAML keyword-table override
}

// ProfileConfig controls the profile cache.
type ProfileConfig struct {
	CacheSize int // Max cached profiles (default: 4096)
}

// LoadConfig loads configuration from environment variables with defaults.
// All environment variables use the SWITCHBOARD_ prefix.
func LoadConfig() *Config {
	return &Config{
		Identity: IdentityConfig{
			DefaultCountryCode: getEnv("SWITCHBOARD_COUNTRY_CODE", "1"),
			ResolveThreshold:   getEnvFloat("SWITCHBOARD_RESOLVE_THRESHOLD", 0.8),
			NameMatchFloor:     getEnvInt("SWITCHBOARD_NAME_MATCH_FLOOR", 75),
		},
		Store: StoreConfig{
			Engine:      getEnv("SWITCHBOARD_STORE_ENGINE", "memory"),
			PostgresDSN: getEnv("SWITCHBOARD_POSTGRES_DSN", ""),
			SQLitePath:  getEnv("SWITCHBOARD_SQLITE_PATH", "./data/switchboard.db"),
			Timeout:     getEnvDuration("SWITCHBOARD_STORE_TIMEOUT", 5*time.Second),
			RetryDelay:  getEnvDuration("SWITCHBOARD_STORE_RETRY_DELAY", 500*time.Millisecond),
		},
		Retrieval: RetrievalConfig{
			MaxItems:         getEnvInt("SWITCHBOARD_MAX_ITEMS", 10),
			WindowDays:       getEnvInt("SWITCHBOARD_WINDOW_DAYS", 90),
			DecayWindowDays:  getEnvInt("SWITCHBOARD_DECAY_WINDOW_DAYS", 30),
			ThreadWindowDays: getEnvInt("SWITCHBOARD_THREAD_WINDOW_DAYS", 7),
			FetchLimit:       getEnvInt("SWITCHBOARD_FETCH_LIMIT", 200),
			NeighborK:        getEnvInt("SWITCHBOARD_NEIGHBOR_K", 50),
			MinSimilarity:    getEnvFloat("SWITCHBOARD_MIN_SIMILARITY", 0.1),
			ProfileTTL:       getEnvDuration("SWITCHBOARD_PROFILE_TTL", time.Hour),
			KeywordsPath:     getEnv("SWITCHBOARD_KEYWORDS_PATH", ""),
		},
		Profile: ProfileConfig{
			CacheSize: getEnvInt("SWITCHBOARD_PROFILE_CACHE_SIZE", 4096),
		},
	}
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value. Unparseable values fall back to the default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default
// value. Unparseable values fall back to the default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable (e.g. "5s", "1h")
// or returns a default value. Unparseable values fall back to the default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
