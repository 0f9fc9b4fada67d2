// Package config loads service configuration from the environment, with an
// optional YAML file supplying defaults for anything the environment leaves
// unset.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spacefeed/spacefeed/internal/models"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration values.
type Config struct {
	// Object storage (S3-compatible)
	SpacesKey      string
	SpacesSecret   string
	SpacesRegion   string
	SpacesBucket   string
	SpacesPrefix   string
	SpacesEndpoint string

	// SurrealDB connection
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string

	// Collection naming
	CollectionMode models.CollectionMode
	CollectionName string

	// Control API
	Port string

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// fileConfig mirrors Config for the optional YAML file. Environment
// variables win over file values.
type fileConfig struct {
	SpacesKey      string `yaml:"spaces_key"`
	SpacesSecret   string `yaml:"spaces_secret"`
	SpacesRegion   string `yaml:"spaces_region"`
	SpacesBucket   string `yaml:"spaces_bucket"`
	SpacesPrefix   string `yaml:"spaces_prefix"`
	SpacesEndpoint string `yaml:"spaces_endpoint"`

	SurrealDBURL       string `yaml:"surrealdb_url"`
	SurrealDBNamespace string `yaml:"surrealdb_namespace"`
	SurrealDBDatabase  string `yaml:"surrealdb_database"`
	SurrealDBUser      string `yaml:"surrealdb_user"`
	SurrealDBPass      string `yaml:"surrealdb_pass"`

	CollectionMode string `yaml:"collection_mode"`
	CollectionName string `yaml:"collection_name"`

	Port     string `yaml:"port"`
	LogFile  string `yaml:"log_file"`
	LogLevel string `yaml:"log_level"`
}

// Load reads configuration, layered env > file > defaults. path may be empty
// to skip the file entirely.
func Load(path string) (Config, error) {
	var fc fileConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	get := func(key, fileVal, defaultVal string) string {
		if val := os.Getenv(key); val != "" {
			return val
		}
		if fileVal != "" {
			return fileVal
		}
		return defaultVal
	}

	cfg := Config{
		SpacesKey:      get("SPACES_KEY", fc.SpacesKey, ""),
		SpacesSecret:   get("SPACES_SECRET", fc.SpacesSecret, ""),
		SpacesRegion:   get("SPACES_REGION", fc.SpacesRegion, ""),
		SpacesBucket:   get("SPACES_BUCKET", fc.SpacesBucket, ""),
		SpacesPrefix:   get("SPACES_PREFIX", fc.SpacesPrefix, ""),
		SpacesEndpoint: get("SPACES_ENDPOINT", fc.SpacesEndpoint, ""),

		SurrealDBURL:       get("SURREALDB_URL", fc.SurrealDBURL, "ws://localhost:8000/rpc"),
		SurrealDBNamespace: get("SURREALDB_NAMESPACE", fc.SurrealDBNamespace, "spacefeed"),
		SurrealDBDatabase:  get("SURREALDB_DATABASE", fc.SurrealDBDatabase, "ingest"),
		SurrealDBUser:      get("SURREALDB_USER", fc.SurrealDBUser, "root"),
		SurrealDBPass:      get("SURREALDB_PASS", fc.SurrealDBPass, "root"),

		CollectionMode: models.CollectionMode(get("COLLECTION_MODE", fc.CollectionMode, string(models.ModePerFile))),
		CollectionName: get("COLLECTION_NAME", fc.CollectionName, ""),

		Port:     get("SPACEFEED_PORT", fc.Port, "8000"),
		LogFile:  get("SPACEFEED_LOG_FILE", fc.LogFile, ""),
		LogLevel: parseLogLevel(get("SPACEFEED_LOG_LEVEL", fc.LogLevel, "INFO")),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if !c.CollectionMode.Valid() {
		return fmt.Errorf("invalid COLLECTION_MODE %q (want %q or %q)",
			c.CollectionMode, models.ModePerFile, models.ModeFixed)
	}
	if c.CollectionMode == models.ModeFixed && c.CollectionName == "" {
		return fmt.Errorf("COLLECTION_NAME is required when COLLECTION_MODE is %q", models.ModeFixed)
	}
	return nil
}

// ValidateStorage checks the settings only the ingestion server needs.
// Client-side commands skip this.
func (c Config) ValidateStorage() error {
	if c.SpacesBucket == "" {
		return fmt.Errorf("SPACES_BUCKET is required")
	}
	if c.SpacesRegion == "" && c.SpacesEndpoint == "" {
		return fmt.Errorf("one of SPACES_REGION or SPACES_ENDPOINT is required")
	}
	return nil
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
