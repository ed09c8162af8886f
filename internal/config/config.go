// Package config handles loading and validating codecall configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

func init() {
	// Load .env file if it exists
	_ = godotenv.Load()
}

// Config is the root configuration for codecall.
type Config struct {
	DataDir       string               `json:"data_dir,omitempty" yaml:"data_dir,omitempty"` // Persistent data directory. Default: ~/.codecall/data. Override: CODECALL_DATA_DIR env var.
	Validation    ValidationConfig     `json:"validation" yaml:"validation"`
	Execution     ExecutionConfig      `json:"execution" yaml:"execution"`
	Audit         *AuditConfig         `json:"audit,omitempty" yaml:"audit,omitempty"`                 // nil = audit trail disabled
	Storage       *StorageConfig       `json:"storage,omitempty" yaml:"storage,omitempty"`             // nil = SQLite default (derived from data dir)
	Observability *ObservabilityConfig `json:"observability,omitempty" yaml:"observability,omitempty"` // nil = observability disabled
	MCP           []MCPServerConfig    `json:"mcp,omitempty" yaml:"mcp,omitempty"`                     // External MCP tool servers.
}

// ValidationConfig selects the default rule set applied to scripts.
type ValidationConfig struct {
	Preset string `json:"preset" yaml:"preset"` // "strict", "standard", or "agent-script". Default: "standard".
}

// DefaultPreset returns the configured preset with a default of "standard".
func (v *ValidationConfig) DefaultPreset() string {
	if v != nil && v.Preset != "" {
		return v.Preset
	}
	return "standard"
}

// ExecutionConfig bounds a single script execution.
type ExecutionConfig struct {
	TimeoutSeconds int `json:"timeout_seconds" yaml:"timeout_seconds"` // Wall-clock budget. Default: 5.
	MaxSourceBytes int `json:"max_source_bytes" yaml:"max_source_bytes"` // Default: 262144 (256 KB).
	MaxLogLines    int `json:"max_log_lines" yaml:"max_log_lines"`     // Default: 256.
	MaxLogBytes    int `json:"max_log_bytes" yaml:"max_log_bytes"`     // Default: 65536 (64 KB).
}

// Timeout returns the execution budget with a default of 5s.
func (e *ExecutionConfig) Timeout() time.Duration {
	if e != nil && e.TimeoutSeconds > 0 {
		return time.Duration(e.TimeoutSeconds) * time.Second
	}
	return 5 * time.Second
}

// SourceLimit returns the max script size with a default of 256 KB.
func (e *ExecutionConfig) SourceLimit() int {
	if e != nil && e.MaxSourceBytes > 0 {
		return e.MaxSourceBytes
	}
	return 256 << 10
}

// LogLines returns the console line cap with a default of 256.
func (e *ExecutionConfig) LogLines() int {
	if e != nil && e.MaxLogLines > 0 {
		return e.MaxLogLines
	}
	return 256
}

// LogBytes returns the console byte cap with a default of 64 KB.
func (e *ExecutionConfig) LogBytes() int {
	if e != nil && e.MaxLogBytes > 0 {
		return e.MaxLogBytes
	}
	return 64 << 10
}

// AuditConfig configures the execution audit trail.
// When nil, nothing is recorded.
type AuditConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	LogPath string `json:"log_path,omitempty" yaml:"log_path,omitempty"` // JSONL file path. Default: derived from data dir.
}

// StorageConfig configures the persistence backend for execution records.
// When nil, defaults to SQLite with the database path derived from the data dir.
type StorageConfig struct {
	Driver   string                 `json:"driver" yaml:"driver"`                         // "sqlite" (default) or "postgres".
	SQLite   *SQLiteStorageConfig   `json:"sqlite,omitempty" yaml:"sqlite,omitempty"`     // SQLite-specific settings.
	Postgres *PostgresStorageConfig `json:"postgres,omitempty" yaml:"postgres,omitempty"` // PostgreSQL-specific settings.
}

// StorageDriver returns the configured driver, defaulting to "sqlite".
func (s *StorageConfig) StorageDriver() string {
	if s != nil && s.Driver != "" {
		return s.Driver
	}
	return "sqlite"
}

// SQLiteStorageConfig holds SQLite-specific settings.
type SQLiteStorageConfig struct {
	Path string `json:"path,omitempty" yaml:"path,omitempty"` // Database file path. Default: derived from data dir.
}

// PostgresStorageConfig holds PostgreSQL-specific settings.
type PostgresStorageConfig struct {
	DSN              string `json:"dsn" yaml:"dsn"` // Override: CODECALL_DB_DSN env var.
	MaxOpenConns     int    `json:"max_open_conns" yaml:"max_open_conns"`           // Default: 25
	MaxIdleConns     int    `json:"max_idle_conns" yaml:"max_idle_conns"`           // Default: 5
	ConnMaxLifetimeS int    `json:"conn_max_lifetime_s" yaml:"conn_max_lifetime_s"` // Default: 1800 (30 min)
}

// ObservabilityConfig configures metrics and tracing.
// When nil, all observability features are disabled with zero overhead.
type ObservabilityConfig struct {
	Metrics *MetricsConfig `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Tracing *TracingConfig `json:"tracing,omitempty" yaml:"tracing,omitempty"`
}

// MetricsConfig configures Prometheus metrics collection.
type MetricsConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// TracingConfig configures OpenTelemetry distributed tracing.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Endpoint    string  `json:"endpoint" yaml:"endpoint"`         // OTLP endpoint, e.g. "localhost:4317"
	Protocol    string  `json:"protocol" yaml:"protocol"`         // "grpc" or "http". Default: "grpc"
	ServiceName string  `json:"service_name" yaml:"service_name"` // Default: "codecall"
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate"`   // 0.0–1.0. Default: 1.0
	Insecure    bool    `json:"insecure" yaml:"insecure"`         // Skip TLS for dev
}

// MCPServerConfig defines a single external MCP server connection.
// codecall acts as an MCP client, connecting at startup, discovering tools,
// and registering them in the pipeline under namespaced names.
type MCPServerConfig struct {
	Name      string            `json:"name" yaml:"name"`                           // Server ID used for tool namespacing (e.g., "github").
	Transport string            `json:"transport" yaml:"transport"`                 // "stdio", "sse", or "streamable_http".
	Command   string            `json:"command,omitempty" yaml:"command,omitempty"` // Executable to launch (stdio only).
	Args      []string          `json:"args,omitempty" yaml:"args,omitempty"`       // Command arguments (stdio only).
	Env       map[string]string `json:"env,omitempty" yaml:"env,omitempty"`         // Subprocess env vars (stdio only). Values support ${VAR} expansion.
	URL       string            `json:"url,omitempty" yaml:"url,omitempty"`         // Server endpoint (sse/streamable_http only).
	Headers   map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"` // HTTP headers (sse/streamable_http). Values support ${VAR} expansion.
}

// DefaultConfigPath returns the default config file path (~/.codecall/config.yaml).
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "configs/codecall.yaml" // fallback for environments without a home dir
	}
	return filepath.Join(home, ".codecall", "config.yaml")
}

// Default returns a usable configuration without a config file.
func Default() *Config {
	return &Config{}
}

// Load reads a JSON or YAML config file and returns a validated Config.
// The format is detected by file extension: .yml/.yaml for YAML, everything
// else for JSON. Environment variables take precedence over config values.
func Load(path string) (*Config, error) {
	// Expand ~ in config path.
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path %s: %w", path, err)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", resolved, err)
	}

	var cfg Config
	switch ext := strings.ToLower(filepath.Ext(resolved)); ext {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config %s: %w", resolved, err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing JSON config %s: %w", resolved, err)
		}
	}

	// Environment variable overrides take precedence over config values.
	if envDD := os.Getenv("CODECALL_DATA_DIR"); envDD != "" {
		cfg.DataDir = envDD
	}
	if envPreset := os.Getenv("CODECALL_PRESET"); envPreset != "" {
		cfg.Validation.Preset = envPreset
	}
	if envDSN := os.Getenv("CODECALL_DB_DSN"); envDSN != "" {
		if cfg.Storage == nil {
			cfg.Storage = &StorageConfig{Driver: "postgres"}
		}
		if cfg.Storage.Postgres == nil {
			cfg.Storage.Postgres = &PostgresStorageConfig{}
		}
		cfg.Storage.Postgres.DSN = envDSN
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// resolvePath expands ~ to the user home directory and returns an absolute path.
func resolvePath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}
	return filepath.Abs(path)
}

// ResolvedDataDir returns the data directory, resolving ~ if needed.
func (c *Config) ResolvedDataDir() string {
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		return filepath.Join(home, ".codecall", "data")
	}
	resolved, err := resolvePath(c.DataDir)
	if err != nil {
		return c.DataDir
	}
	return resolved
}

// DatabasePath returns the default SQLite database path under the data directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.ResolvedDataDir(), "codecall.db")
}

// AuditLogPath returns the audit log path, derived from the data directory
// when not set explicitly.
func (c *Config) AuditLogPath() string {
	if c.Audit != nil && c.Audit.LogPath != "" {
		return c.Audit.LogPath
	}
	return filepath.Join(c.ResolvedDataDir(), "audit.jsonl")
}

// StorageDriverName returns the effective storage driver name.
func (c *Config) StorageDriverName() string {
	if c.Storage != nil {
		return c.Storage.StorageDriver()
	}
	return "sqlite"
}

func (c *Config) validate() error {
	switch p := c.Validation.DefaultPreset(); p {
	case "strict", "standard", "agent-script":
		// valid
	default:
		return fmt.Errorf("validation.preset %q is not supported (use strict, standard, or agent-script)", p)
	}
	if c.Execution.TimeoutSeconds < 0 {
		return fmt.Errorf("execution.timeout_seconds must not be negative")
	}
	if c.Execution.MaxSourceBytes < 0 {
		return fmt.Errorf("execution.max_source_bytes must not be negative")
	}
	// Storage driver validation.
	if c.Storage != nil && c.Storage.Driver != "" {
		switch c.Storage.Driver {
		case "sqlite", "postgres":
			// valid
		default:
			return fmt.Errorf("storage.driver %q is not supported (use sqlite or postgres)", c.Storage.Driver)
		}
	}
	if c.Storage != nil && c.Storage.StorageDriver() == "postgres" {
		if c.Storage.Postgres == nil || c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn is required for the postgres driver (set CODECALL_DB_DSN env var)")
		}
	}
	// MCP server config validation.
	mcpNames := make(map[string]bool, len(c.MCP))
	for i, srv := range c.MCP {
		if srv.Name == "" {
			return fmt.Errorf("mcp[%d].name is required", i)
		}
		if mcpNames[srv.Name] {
			return fmt.Errorf("mcp[%d]: duplicate server name %q", i, srv.Name)
		}
		mcpNames[srv.Name] = true
		switch srv.Transport {
		case "stdio":
			if srv.Command == "" {
				return fmt.Errorf("mcp[%d] (%q): command is required for stdio transport", i, srv.Name)
			}
		case "sse", "streamable_http":
			if srv.URL == "" {
				return fmt.Errorf("mcp[%d] (%q): url is required for %s transport", i, srv.Name, srv.Transport)
			}
		default:
			return fmt.Errorf("mcp[%d] (%q): transport must be stdio, sse, or streamable_http", i, srv.Name)
		}
	}
	return nil
}
