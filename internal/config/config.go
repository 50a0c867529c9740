package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/halvardor/rangepull/internal/progress"
	"gopkg.in/yaml.v3"
)

// Config defines configuration for the rangepull CLI.
type Config struct {
	URL                   string      `yaml:"url"`
	OutputDir             string      `yaml:"output_dir"`
	OutputFileName        string      `yaml:"output_file_name"`
	ChunkSize             int64       `yaml:"chunk_size"`
	MaxConcurrentRequests int         `yaml:"max_concurrent_requests"`
	Progress              bool        `yaml:"progress"`
	Resume                bool        `yaml:"resume"`
	Checksum              string      `yaml:"checksum"`
	Conflict              string      `yaml:"conflict"`
	ConnectionTimeout     time.Duration `yaml:"connection_timeout"`
	Retry                 RetryConfig `yaml:"retry"`
}

// RetryConfig defines retry behavior.
type RetryConfig struct {
	Attempts int           `yaml:"attempts"`
	Backoff  time.Duration `yaml:"backoff"`
}

// Default returns a Config with sensible defaults, mirroring
// rangefetch.DefaultConfig.
func Default() Config {
	return Config{
		ChunkSize:             10 * 1024 * 1024,
		MaxConcurrentRequests: 8,
		Resume:                true,
		Checksum:              "none",
		Conflict:              "overwrite",
		ConnectionTimeout:     30 * time.Second,
		Retry: RetryConfig{
			Attempts: 3,
			Backoff:  time.Second,
		},
	}
}

// yamlConfig is used for YAML unmarshaling with string chunk size and
// durations, the forms a human writes in a config file.
type yamlConfig struct {
	URL                   string          `yaml:"url"`
	OutputDir             string          `yaml:"output_dir"`
	OutputFileName        string          `yaml:"output_file_name"`
	ChunkSize             string          `yaml:"chunk_size"`
	MaxConcurrentRequests int             `yaml:"max_concurrent_requests"`
	Progress              bool            `yaml:"progress"`
	Resume                *bool           `yaml:"resume"`
	Checksum              string          `yaml:"checksum"`
	Conflict              string          `yaml:"conflict"`
	ConnectionTimeout     string          `yaml:"connection_timeout"`
	Retry                 yamlRetryConfig `yaml:"retry"`
}

type yamlRetryConfig struct {
	Attempts int    `yaml:"attempts"`
	Backoff  string `yaml:"backoff"`
}

// LoadFromFile loads configuration from a YAML file, seeded with Default
// and overridden by whatever the file sets.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()

	if yc.URL != "" {
		cfg.URL = yc.URL
	}
	if yc.OutputDir != "" {
		cfg.OutputDir = yc.OutputDir
	}
	if yc.OutputFileName != "" {
		cfg.OutputFileName = yc.OutputFileName
	}
	if yc.MaxConcurrentRequests != 0 {
		cfg.MaxConcurrentRequests = yc.MaxConcurrentRequests
	}
	if yc.ChunkSize != "" {
		size, err := progress.ParseBytes(yc.ChunkSize)
		if err != nil {
			return Config{}, fmt.Errorf("parse chunk_size: %w", err)
		}
		cfg.ChunkSize = size
	}
	cfg.Progress = yc.Progress
	if yc.Resume != nil {
		cfg.Resume = *yc.Resume
	}
	if yc.Checksum != "" {
		cfg.Checksum = yc.Checksum
	}
	if yc.Conflict != "" {
		cfg.Conflict = yc.Conflict
	}
	if yc.ConnectionTimeout != "" {
		d, err := time.ParseDuration(yc.ConnectionTimeout)
		if err != nil {
			return Config{}, fmt.Errorf("parse connection_timeout: %w", err)
		}
		cfg.ConnectionTimeout = d
	}
	if yc.Retry.Attempts != 0 {
		cfg.Retry.Attempts = yc.Retry.Attempts
	}
	if yc.Retry.Backoff != "" {
		d, err := time.ParseDuration(yc.Retry.Backoff)
		if err != nil {
			return Config{}, fmt.Errorf("parse retry.backoff: %w", err)
		}
		cfg.Retry.Backoff = d
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the RANGEPULL_ prefix.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("RANGEPULL_URL"); v != "" {
		c.URL = v
	}
	if v := os.Getenv("RANGEPULL_OUTPUT_DIR"); v != "" {
		c.OutputDir = v
	}
	if v := os.Getenv("RANGEPULL_OUTPUT_FILE_NAME"); v != "" {
		c.OutputFileName = v
	}
	if v := os.Getenv("RANGEPULL_CHUNK_SIZE"); v != "" {
		size, err := progress.ParseBytes(v)
		if err != nil {
			return fmt.Errorf("parse RANGEPULL_CHUNK_SIZE: %w", err)
		}
		c.ChunkSize = size
	}
	if v := os.Getenv("RANGEPULL_MAX_CONCURRENT_REQUESTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse RANGEPULL_MAX_CONCURRENT_REQUESTS: %w", err)
		}
		c.MaxConcurrentRequests = n
	}
	if v := os.Getenv("RANGEPULL_PROGRESS"); v != "" {
		c.Progress = v == "true" || v == "1"
	}
	if v := os.Getenv("RANGEPULL_RESUME"); v != "" {
		c.Resume = v == "true" || v == "1"
	}
	if v := os.Getenv("RANGEPULL_CHECKSUM"); v != "" {
		c.Checksum = v
	}
	if v := os.Getenv("RANGEPULL_CONFLICT"); v != "" {
		c.Conflict = v
	}
	if v := os.Getenv("RANGEPULL_RETRY_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse RANGEPULL_RETRY_ATTEMPTS: %w", err)
		}
		c.Retry.Attempts = n
	}
	if v := os.Getenv("RANGEPULL_RETRY_BACKOFF"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse RANGEPULL_RETRY_BACKOFF: %w", err)
		}
		c.Retry.Backoff = d
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.URL == "" {
		return errors.New("config: url is required")
	}
	if c.ChunkSize <= 0 {
		return errors.New("config: chunk_size must be positive")
	}
	if c.MaxConcurrentRequests <= 0 {
		return errors.New("config: max_concurrent_requests must be positive")
	}
	return nil
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored.
func (c Config) Merge(override Config) Config {
	if override.URL != "" {
		c.URL = override.URL
	}
	if override.OutputDir != "" {
		c.OutputDir = override.OutputDir
	}
	if override.OutputFileName != "" {
		c.OutputFileName = override.OutputFileName
	}
	if override.ChunkSize != 0 {
		c.ChunkSize = override.ChunkSize
	}
	if override.MaxConcurrentRequests != 0 {
		c.MaxConcurrentRequests = override.MaxConcurrentRequests
	}
	if override.Progress {
		c.Progress = override.Progress
	}
	if override.Resume {
		c.Resume = override.Resume
	}
	if override.Checksum != "" {
		c.Checksum = override.Checksum
	}
	if override.Conflict != "" {
		c.Conflict = override.Conflict
	}
	if override.ConnectionTimeout != 0 {
		c.ConnectionTimeout = override.ConnectionTimeout
	}
	if override.Retry.Attempts != 0 {
		c.Retry.Attempts = override.Retry.Attempts
	}
	if override.Retry.Backoff != 0 {
		c.Retry.Backoff = override.Retry.Backoff
	}
	return c
}
