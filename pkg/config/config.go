package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config represents the complete application configuration.
type Config struct {
	Server   ServerConfig   `json:"server"`
	Dataset  DatasetConfig  `json:"dataset"`
	Logging  LoggingConfig  `json:"logging"`
	Playback PlaybackConfig `json:"playback"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	// Port is the HTTP server port (default: 8080)
	Port string `json:"port"`

	// Host is the server bind address (default: "0.0.0.0")
	Host string `json:"host"`

	// StaticDir holds the landing page and map client assets.
	// Static serving is skipped when the directory does not exist.
	StaticDir string `json:"static_dir"`

	// AllowedOrigins for CORS (default: all)
	AllowedOrigins []string `json:"allowed_origins"`

	// ReadTimeoutSeconds and WriteTimeoutSeconds bound a single request
	ReadTimeoutSeconds  int `json:"read_timeout_seconds"`
	WriteTimeoutSeconds int `json:"write_timeout_seconds"`

	// IdleTimeoutSeconds is how long keep-alive connections stay open
	IdleTimeoutSeconds int `json:"idle_timeout_seconds"`

	// RateLimitPerSecond caps API requests across all clients
	// 0 = no rate limit
	RateLimitPerSecond float64 `json:"rate_limit_per_second"`

	// RateLimitBurst is the token bucket size (default: 20)
	RateLimitBurst int `json:"rate_limit_burst"`
}

// DatasetConfig locates the flight collection.
type DatasetConfig struct {
	// Path to the GeoJSON FeatureCollection; a ".zst" suffix means
	// zstd-compressed
	Path string `json:"path"`
}

// LoggingConfig controls the application logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error (default: info)
	Level string `json:"level"`

	// Dir enables rotating JSON log files in this directory.
	// Empty logs text to stderr.
	Dir string `json:"dir"`
}

// PlaybackConfig controls the WebSocket playback stream.
type PlaybackConfig struct {
	// StreamIntervalMs is the delay between frames (one frame per
	// ten-minute step) when the client does not ask for one
	StreamIntervalMs int `json:"stream_interval_ms"`

	// MinStreamIntervalMs is the fastest frame rate a client may request
	MinStreamIntervalMs int `json:"min_stream_interval_ms"`
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Load reads configuration from a JSON file.
// If the file doesn't exist, returns a default configuration.
// A .env file in the working directory, when present, is loaded into the
// environment first; environment variables then override file values.
func Load(path string) (*Config, error) {
	// Missing .env is fine
	_ = godotenv.Load()

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// defaults
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		// Parse JSON over the defaults so omitted fields keep them
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Override with environment variables
	cfg.applyEnvironmentOverrides()

	return cfg, nil
}

// Save writes the configuration to a JSON file.
func (c *Config) Save(path string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Marshal to JSON with indentation
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:                "8080",
			Host:                "0.0.0.0",
			StaticDir:           "web/static",
			AllowedOrigins:      []string{"*"},
			ReadTimeoutSeconds:  15,
			WriteTimeoutSeconds: 15,
			IdleTimeoutSeconds:  60,
			RateLimitPerSecond:  0,
			RateLimitBurst:      20,
		},
		Dataset: DatasetConfig{
			Path: "dataset/airplane_flights_1day.geojson",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Playback: PlaybackConfig{
			StreamIntervalMs:    1000,
			MinStreamIntervalMs: 50,
		},
	}
}

// Validate checks that the configuration can be served.
func (c *Config) Validate() error {
	if c.Dataset.Path == "" {
		return fmt.Errorf("dataset.path is required")
	}
	port, err := strconv.Atoi(c.Server.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("server.port %q is not a valid TCP port", c.Server.Port)
	}
	if c.Server.RateLimitPerSecond < 0 {
		return fmt.Errorf("server.rate_limit_per_second must not be negative")
	}
	if c.Server.RateLimitPerSecond > 0 && c.Server.RateLimitBurst < 1 {
		return fmt.Errorf("server.rate_limit_burst must be at least 1 when rate limiting")
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level %q must be one of debug, info, warn, error", c.Logging.Level)
	}
	if c.Playback.MinStreamIntervalMs < 1 {
		return fmt.Errorf("playback.min_stream_interval_ms must be at least 1")
	}
	if c.Playback.StreamIntervalMs < c.Playback.MinStreamIntervalMs {
		return fmt.Errorf("playback.stream_interval_ms must be at least %d", c.Playback.MinStreamIntervalMs)
	}
	return nil
}

// Addr returns the listen address host:port.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// applyEnvironmentOverrides applies environment variable overrides to the config.
// This lets deployments point at a dataset without editing the config file.
func (c *Config) applyEnvironmentOverrides() {
	if port := os.Getenv("FLIGHT_PLAYBACK_PORT"); port != "" {
		c.Server.Port = port
	}
	if host := os.Getenv("FLIGHT_PLAYBACK_HOST"); host != "" {
		c.Server.Host = host
	}
	if dir := os.Getenv("FLIGHT_PLAYBACK_STATIC_DIR"); dir != "" {
		c.Server.StaticDir = dir
	}
	if path := os.Getenv("FLIGHT_PLAYBACK_DATASET"); path != "" {
		c.Dataset.Path = path
	}
	if level := os.Getenv("FLIGHT_PLAYBACK_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if dir := os.Getenv("FLIGHT_PLAYBACK_LOG_DIR"); dir != "" {
		c.Logging.Dir = dir
	}
}
