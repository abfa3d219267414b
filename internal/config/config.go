// Package config loads application configuration from the environment.
//
// A .env file is honored in development (godotenv), real environment
// variables always win. Every knob has a default that works for a laptop
// run: local MongoDB, a SQLite file under data/, auth disabled until a
// JWT_SECRET is provided.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Backend kinds accepted by PRIMARY_BACKEND.
const (
	BackendDocument   = "document"
	BackendRelational = "relational"
)

type Config struct {
	Port int

	// Document backend (MongoDB)
	MongoURI string
	MongoDB  string

	// Relational backend (SQLite)
	SQLitePath string

	// PrimaryBackend designates which store is consulted first on reads
	// and whose identifier is canonical. Read ONCE at startup and fixed
	// for the process lifetime — changing it while the process runs is
	// undefined behavior and not supported.
	PrimaryBackend string

	JWTSecret string

	// AdminPassword seeds the built-in admin account on first start.
	// Empty disables seeding.
	AdminPassword string
}

// Load reads the configuration. The .env file is optional; a missing file
// is not an error.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Port:           getEnvInt("PORT", 8080),
		MongoURI:       getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:        getEnv("MONGO_DB", "vulnarena"),
		SQLitePath:     getEnv("SQLITE_PATH", "data/vulnarena.db"),
		PrimaryBackend: getEnv("PRIMARY_BACKEND", BackendDocument),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		AdminPassword:  getEnv("ADMIN_PASSWORD", ""),
	}

	if cfg.PrimaryBackend != BackendDocument && cfg.PrimaryBackend != BackendRelational {
		return Config{}, fmt.Errorf("config: PRIMARY_BACKEND must be %q or %q, got %q",
			BackendDocument, BackendRelational, cfg.PrimaryBackend)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}
