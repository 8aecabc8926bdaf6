package config

import (
	"os"
	"path/filepath"
	"time"
)

type Config struct {
	ServerAddress string

	// StoreBackend selects the document store: "sqlite" or "badger".
	StoreBackend string

	// SQLitePath is the database file for the sqlite backend.
	// ":memory:" keeps everything in RAM.
	SQLitePath string

	// BadgerDir is the data directory for the badger backend.
	BadgerDir string

	// PresenceWindow is how recent a heartbeat must be to show online.
	PresenceWindow time.Duration

	JSONLogs bool
}

// Load reads configuration from the environment. Paths are not touched
// here; each backend creates what it needs when it opens.
func Load() *Config {
	return &Config{
		ServerAddress:  getEnv("SERVER_ADDRESS", ":8080"),
		StoreBackend:   getEnv("STORE_BACKEND", "sqlite"),
		SQLitePath:     getEnv("SQLITE_PATH", filepath.Join("data", "ripple.db")),
		BadgerDir:      getEnv("BADGER_DIR", filepath.Join("data", "badger")),
		PresenceWindow: getDuration("PRESENCE_WINDOW", 5*time.Minute),
		JSONLogs:       getEnv("LOG_FORMAT", "text") == "json",
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
