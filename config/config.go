// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"os"
	"path/filepath"
	"strconv"
)

// Config はアプリケーション設定を表す。
type Config struct {
	Port             string
	DatabaseURL      string
	Dialect          string
	MigrationsDir    string
	SnapshotPath     string
	MigrationLogPath string
	TrackingTable    string
	TrackingSchema   string
	LogLevel         string

	GoogleCloudProject string
	OtelEnabled        bool
	OtelInsecure       bool
	OtelEndpoint       string
	OtelServiceName    string
	OtelSamplingRate   float64
}

// Load は環境変数から設定を読み込む。
func Load() *Config {
	migrationsDir := getEnv("MIGRATIONS_DIR", "./migrations")
	return &Config{
		Port:             getEnv("PORT", "8080"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		Dialect:          getEnv("DB_DIALECT", "postgres"),
		MigrationsDir:    migrationsDir,
		SnapshotPath:     getEnv("SNAPSHOT_PATH", filepath.Join(migrationsDir, "schema_snapshot.json")),
		MigrationLogPath: getEnv("MIGRATION_LOG_PATH", filepath.Join(migrationsDir, "migration_log")),
		TrackingTable:    getEnv("TRACKING_TABLE", "_schema_migrations"),
		TrackingSchema:   os.Getenv("TRACKING_SCHEMA"),
		LogLevel:         getEnv("LOG_LEVEL", "INFO"),

		GoogleCloudProject: os.Getenv("GOOGLE_CLOUD_PROJECT"),
		OtelEnabled:        getEnvBool("OTEL_ENABLED", false),
		OtelInsecure:       getEnvBool("OTEL_INSECURE", false),
		OtelEndpoint:       getEnv("OTEL_ENDPOINT", "localhost:4317"),
		OtelServiceName:    getEnv("OTEL_SERVICE_NAME", "schema-migrator"),
		OtelSamplingRate:   getEnvFloat("OTEL_SAMPLING_RATE", 1.0),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvFloat(key string, defaultVal float64) float64 {
	f, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultVal
	}
	return f
}
