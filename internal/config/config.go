// Package config handles application configuration: built-in defaults, an
// optional YAML file and environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultDataDir       = "tmpdata/"
	DefaultStoreName     = "uk_biobank.duckdb"
	DefaultMetaDBName    = "metastore.db"
	DefaultModel         = "claude-haiku-4-5"
	DefaultMaxTokens     = 1000
	DefaultSQLMaxRetries = 3
	MaxSQLRetries        = 5
	DefaultRowLimit      = 50
	DefaultSampleRows    = 3
	DefaultListenAddr    = ":8080"
)

// Config holds every tunable of the application.
type Config struct {
	DataDir    string `yaml:"data_dir"`
	StoreName  string `yaml:"store_name"`   // default store identifier inside DataDir
	MetaDBName string `yaml:"meta_db_name"` // SQLite metastore file inside DataDir

	APIKey        string `yaml:"api_key"`
	Model         string `yaml:"model"`
	MaxTokens     int    `yaml:"max_tokens"`
	SQLMaxRetries int    `yaml:"sql_max_retries"` // attempts at producing runnable SQL, capped at 5
	QueryRowLimit int    `yaml:"query_row_limit"`
	SampleRows    int    `yaml:"sample_rows"` // rows shown per table to the agent

	LogLevel string `yaml:"log_level"` // debug, info, warn, error
	SeqURL   string `yaml:"seq_url"`

	ListenAddr         string   `yaml:"listen_addr"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	RateLimitRPS       float64  `yaml:"rate_limit_rps"`
	RateLimitBurst     int      `yaml:"rate_limit_burst"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DataDir:            DefaultDataDir,
		StoreName:          DefaultStoreName,
		MetaDBName:         DefaultMetaDBName,
		Model:              DefaultModel,
		MaxTokens:          DefaultMaxTokens,
		SQLMaxRetries:      DefaultSQLMaxRetries,
		QueryRowLimit:      DefaultRowLimit,
		SampleRows:         DefaultSampleRows,
		LogLevel:           "info",
		ListenAddr:         DefaultListenAddr,
		CORSAllowedOrigins: []string{"*"},
		RateLimitRPS:       1,
		RateLimitBurst:     5,
	}
}

// Load builds a Config from defaults, then the YAML file at path (skipped
// when path is empty), then the environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.clamp()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setString(&c.APIKey, "ANTHROPIC_API_KEY")
	setString(&c.DataDir, "DATA_DIR")
	setString(&c.StoreName, "STORE_NAME")
	setString(&c.MetaDBName, "META_DB_NAME")
	setString(&c.Model, "LLM_MODEL")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.SeqURL, "SEQ_URL")
	setString(&c.ListenAddr, "LISTEN_ADDR")

	var errs []error
	setInt := func(dst *int, key string) {
		v := os.Getenv(key)
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %q is not an integer", key, v))
			return
		}
		*dst = n
	}
	setInt(&c.SQLMaxRetries, "SQL_MAX_RETRIES")
	setInt(&c.QueryRowLimit, "QUERY_ROW_LIMIT")
	setInt(&c.RateLimitBurst, "RATE_LIMIT_BURST")

	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("RATE_LIMIT_RPS: %q is not a number", v))
		} else {
			c.RateLimitRPS = f
		}
	}
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		c.CORSAllowedOrigins = splitList(v)
	}
	return errors.Join(errs...)
}

func (c *Config) clamp() {
	if c.SQLMaxRetries < 1 {
		c.SQLMaxRetries = 1
	} else if c.SQLMaxRetries > MaxSQLRetries {
		c.SQLMaxRetries = MaxSQLRetries
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.SampleRows < 0 {
		c.SampleRows = 0
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("data directory must be set")
	}
	if strings.TrimSpace(c.StoreName) == "" {
		return fmt.Errorf("store name must be set")
	}
	if c.QueryRowLimit < 0 {
		return fmt.Errorf("query row limit must not be negative")
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("rate limit must be positive")
	}
	return nil
}

// SlogLevel maps LogLevel to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// MetaDBPath returns the location of the metastore file.
func (c *Config) MetaDBPath() string {
	if filepath.IsAbs(c.MetaDBName) {
		return c.MetaDBName
	}
	return filepath.Join(c.DataDir, c.MetaDBName)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
