// Package config handles loading and validating Msimamizi configuration.
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

// Config is the root configuration for Msimamizi.
type Config struct {
	DataDir       string               `json:"data_dir,omitempty" yaml:"data_dir,omitempty"` // Persistent data directory. Default: ~/.msimamizi/data. Override: MSIMAMIZI_DATA_DIR env var.
	Supervisor    SupervisorConfig     `json:"supervisor" yaml:"supervisor"`
	Agents        []AgentConfig        `json:"agents" yaml:"agents"`
	Backend       BackendConfig        `json:"backend" yaml:"backend"`
	Storage       *StorageConfig       `json:"storage,omitempty" yaml:"storage,omitempty"`             // nil = SQLite default (derived from data dir)
	Server        *ServerConfig        `json:"server,omitempty" yaml:"server,omitempty"`               // nil = API server disabled
	Observability *ObservabilityConfig `json:"observability,omitempty" yaml:"observability,omitempty"` // nil = observability disabled
	Scheduler     *SchedulerConfig     `json:"scheduler,omitempty" yaml:"scheduler,omitempty"`         // nil = cron scheduler disabled
}

// SupervisorConfig tunes the supervision engine.
type SupervisorConfig struct {
	MaxParallelAgents   int     `json:"max_parallel_agents" yaml:"max_parallel_agents"`     // Default: 3.
	AgentTimeoutSeconds int     `json:"agent_timeout_seconds" yaml:"agent_timeout_seconds"` // Per-agent-call deadline. Default: 30.
	MaxRetries          int     `json:"max_retries" yaml:"max_retries"`                     // Global retry budget per run. Default: 3.
	ConsensusRequired   bool    `json:"consensus_required" yaml:"consensus_required"`
	ConsensusThreshold  float64 `json:"consensus_threshold" yaml:"consensus_threshold"` // 0.0–1.0. Default: 0.7.
	MaxCheckpoints      int     `json:"max_checkpoints" yaml:"max_checkpoints"`         // Safety cap on routing rounds. Default: 100.
}

// AgentTimeout returns the per-agent-call timeout with a default of 30s.
func (s SupervisorConfig) AgentTimeout() time.Duration {
	if s.AgentTimeoutSeconds > 0 {
		return time.Duration(s.AgentTimeoutSeconds) * time.Second
	}
	return 30 * time.Second
}

// AgentConfig declares one agent in the roster.
type AgentConfig struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name,omitempty" yaml:"name,omitempty"`
	Role     string `json:"role" yaml:"role"` // "researcher", "analyzer", "writer", "executor", "reviewer".
	Type     string `json:"type,omitempty" yaml:"type,omitempty"`
	Priority int    `json:"priority,omitempty" yaml:"priority,omitempty"` // Lower is preferred when routing fallbacks.
	URL      string `json:"url,omitempty" yaml:"url,omitempty"`           // Per-agent endpoint override for the HTTP backend.
}

// BackendConfig configures how agent calls are executed.
type BackendConfig struct {
	Type           string `json:"type" yaml:"type"`                         // "http" (default) or "echo" for local smoke tests.
	BaseURL        string `json:"base_url,omitempty" yaml:"base_url,omitempty"` // Default endpoint when an agent has no URL of its own.
	Token          string `json:"token,omitempty" yaml:"token,omitempty"`   // Bearer token. Override: MSIMAMIZI_BACKEND_TOKEN env var.
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`   // HTTP client timeout. Default: 60.
}

// BackendType returns the configured backend type, defaulting to "http".
func (b BackendConfig) BackendType() string {
	if b.Type != "" {
		return b.Type
	}
	return "http"
}

// Timeout returns the HTTP client timeout with a default of 60s.
func (b BackendConfig) Timeout() time.Duration {
	if b.TimeoutSeconds > 0 {
		return time.Duration(b.TimeoutSeconds) * time.Second
	}
	return 60 * time.Second
}

// StorageConfig configures the persistence backend.
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
	Path        string `json:"path,omitempty" yaml:"path,omitempty"` // Database file path. Default: derived from data dir.
	JournalMode string `json:"journal_mode" yaml:"journal_mode"`     // "wal" (default), "delete", "truncate", etc.
}

// PostgresStorageConfig holds PostgreSQL-specific settings.
type PostgresStorageConfig struct {
	DSN              string `json:"dsn" yaml:"dsn"` // Override: MSIMAMIZI_DB_DSN env var.
	MaxOpenConns     int    `json:"max_open_conns" yaml:"max_open_conns"`           // Default: 25
	MaxIdleConns     int    `json:"max_idle_conns" yaml:"max_idle_conns"`           // Default: 5
	ConnMaxLifetimeS int    `json:"conn_max_lifetime_s" yaml:"conn_max_lifetime_s"` // Default: 1800 (30 min)
}

// ServerConfig configures the HTTP API and the run event stream.
type ServerConfig struct {
	Enabled             bool              `json:"enabled" yaml:"enabled"`
	ListenAddr          string            `json:"listen_addr" yaml:"listen_addr"` // Default: ":8080".
	EnableDocs          bool              `json:"enable_docs" yaml:"enable_docs"` // Serve OpenAPI docs.
	MaxRequestSizeBytes int64             `json:"max_request_size_bytes" yaml:"max_request_size_bytes"`
	APIKeys             map[string]string `json:"api_keys,omitempty" yaml:"api_keys,omitempty"` // API key → caller name. Empty = no auth.
	WebSocket           *WebSocketConfig  `json:"websocket,omitempty" yaml:"websocket,omitempty"` // nil = event stream disabled.
	RateLimit           *RateLimitConfig  `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"` // nil = unlimited.
}

// RateLimitConfig configures the per-caller token bucket on the HTTP API.
type RateLimitConfig struct {
	RequestsPerMinute int `json:"requests_per_minute" yaml:"requests_per_minute"`
	BurstSize         int `json:"burst_size,omitempty" yaml:"burst_size,omitempty"` // 0 = RequestsPerMinute.
}

// Addr returns the listen address with a default of ":8080".
func (s *ServerConfig) Addr() string {
	if s != nil && s.ListenAddr != "" {
		return s.ListenAddr
	}
	return ":8080"
}

// MaxRequestSize returns the request size cap with a default of 1 MB.
func (s *ServerConfig) MaxRequestSize() int64 {
	if s != nil && s.MaxRequestSizeBytes > 0 {
		return s.MaxRequestSizeBytes
	}
	return 1 << 20
}

// WebSocketConfig configures the WebSocket event stream endpoint.
type WebSocketConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"`                       // Default: "/ws/events".
	Token   string `json:"token,omitempty" yaml:"token,omitempty"` // Bearer token for subscribers. Empty = no auth.
}

// WSPath returns the WebSocket path with a default of "/ws/events".
func (w *WebSocketConfig) WSPath() string {
	if w != nil && w.Path != "" {
		return w.Path
	}
	return "/ws/events"
}

// ObservabilityConfig configures metrics, tracing, and health checks.
// When nil, all observability features are disabled with zero overhead.
type ObservabilityConfig struct {
	Metrics *MetricsConfig `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Tracing *TracingConfig `json:"tracing,omitempty" yaml:"tracing,omitempty"`
	Health  *HealthConfig  `json:"health,omitempty" yaml:"health,omitempty"`
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"` // Default: "/metrics"
}

// MetricsPath returns the exposition path with a default of "/metrics".
func (m *MetricsConfig) MetricsPath() string {
	if m != nil && m.Path != "" {
		return m.Path
	}
	return "/metrics"
}

// TracingConfig configures OpenTelemetry distributed tracing.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Endpoint    string  `json:"endpoint" yaml:"endpoint"`         // OTLP endpoint, e.g. "localhost:4317"
	Protocol    string  `json:"protocol" yaml:"protocol"`         // "grpc" or "http". Default: "grpc"
	ServiceName string  `json:"service_name" yaml:"service_name"` // Default: "msimamizi"
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate"`   // 0.0–1.0. Default: 1.0
	Insecure    bool    `json:"insecure" yaml:"insecure"`         // Skip TLS for dev
}

// HealthConfig configures dependency health checks for readiness probes.
type HealthConfig struct {
	IncludeDB bool `json:"include_db" yaml:"include_db"`
}

// SchedulerConfig configures cron-driven recurring objectives.
// When nil, no schedules are executed.
type SchedulerConfig struct {
	Enabled   bool             `json:"enabled" yaml:"enabled"`
	Schedules []ScheduleConfig `json:"schedules" yaml:"schedules"`
}

// ScheduleConfig is one recurring objective.
type ScheduleConfig struct {
	Name      string `json:"name" yaml:"name"`
	Cron      string `json:"cron" yaml:"cron"` // Standard 5-field cron expression.
	Objective string `json:"objective" yaml:"objective"`
}

// DefaultConfigPath returns the default config file path (~/.msimamizi/config.yaml).
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "configs/msimamizi.yaml" // fallback for environments without a home dir
	}
	return filepath.Join(home, ".msimamizi", "config.yaml")
}

// Load reads a JSON or YAML config file and returns a validated Config.
// The format is detected by file extension: .yml/.yaml for YAML, everything
// else for JSON. Tokens and connection strings can be set in the config file
// or overridden by environment variables; environment variables take
// precedence.
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

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides folds MSIMAMIZI_* environment variables into the config.
// Env vars take precedence over file values.
func applyEnvOverrides(cfg *Config) {
	if env := os.Getenv("MSIMAMIZI_DATA_DIR"); env != "" {
		cfg.DataDir = env
	}
	if env := os.Getenv("MSIMAMIZI_BACKEND_TOKEN"); env != "" {
		cfg.Backend.Token = env
	}
	if env := os.Getenv("MSIMAMIZI_BACKEND_URL"); env != "" {
		cfg.Backend.BaseURL = env
	}
	if env := os.Getenv("MSIMAMIZI_DB_DSN"); env != "" {
		if cfg.Storage == nil {
			cfg.Storage = &StorageConfig{Driver: "postgres"}
		}
		if cfg.Storage.Postgres == nil {
			cfg.Storage.Postgres = &PostgresStorageConfig{}
		}
		cfg.Storage.Postgres.DSN = env
	}
	if env := os.Getenv("MSIMAMIZI_LISTEN_ADDR"); env != "" {
		if cfg.Server == nil {
			cfg.Server = &ServerConfig{Enabled: true}
		}
		cfg.Server.ListenAddr = env
	}
	if env := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); env != "" {
		if cfg.Observability == nil {
			cfg.Observability = &ObservabilityConfig{}
		}
		if cfg.Observability.Tracing == nil {
			cfg.Observability.Tracing = &TracingConfig{Enabled: true}
		}
		cfg.Observability.Tracing.Endpoint = env
	}
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
		return filepath.Join(home, ".msimamizi", "data")
	}
	resolved, err := resolvePath(c.DataDir)
	if err != nil {
		return c.DataDir
	}
	return resolved
}

// DatabasePath returns the default SQLite database path under the data directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.ResolvedDataDir(), "msimamizi.db")
}

// StorageDriverName returns the effective storage driver name.
func (c *Config) StorageDriverName() string {
	if c.Storage != nil {
		return c.Storage.StorageDriver()
	}
	return "sqlite"
}

func (c *Config) validate() error {
	if len(c.Agents) == 0 {
		return fmt.Errorf("agents: at least one agent is required")
	}
	seen := make(map[string]bool, len(c.Agents))
	for i, a := range c.Agents {
		if a.ID == "" {
			return fmt.Errorf("agents[%d].id is required", i)
		}
		if seen[a.ID] {
			return fmt.Errorf("agents[%d]: duplicate agent id %q", i, a.ID)
		}
		seen[a.ID] = true
		switch a.Role {
		case "researcher", "analyzer", "writer", "executor", "reviewer", "":
			// valid
		default:
			return fmt.Errorf("agents[%d] (%q): role %q is not supported", i, a.ID, a.Role)
		}
	}

	if t := c.Supervisor.ConsensusThreshold; t < 0 || t > 1 {
		return fmt.Errorf("supervisor.consensus_threshold must be within [0,1], got %v", t)
	}
	if c.Supervisor.MaxParallelAgents < 0 {
		return fmt.Errorf("supervisor.max_parallel_agents must not be negative")
	}
	if c.Supervisor.MaxRetries < 0 {
		return fmt.Errorf("supervisor.max_retries must not be negative")
	}

	switch c.Backend.BackendType() {
	case "http":
		if c.Backend.BaseURL == "" {
			missing := false
			for _, a := range c.Agents {
				if a.URL == "" {
					missing = true
					break
				}
			}
			if missing {
				return fmt.Errorf("backend.base_url is required when agents lack per-agent urls")
			}
		}
	case "echo":
		// Local smoke-test backend, nothing to validate.
	default:
		return fmt.Errorf("backend.type %q is not supported (use http or echo)", c.Backend.Type)
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
	if c.Storage.StorageDriver() == "postgres" {
		if c.Storage.Postgres == nil || c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn is required for the postgres driver (set MSIMAMIZI_DB_DSN env var)")
		}
	}

	// Tracing validation.
	if c.Observability != nil && c.Observability.Tracing != nil && c.Observability.Tracing.Enabled {
		tr := c.Observability.Tracing
		if tr.Endpoint == "" {
			return fmt.Errorf("observability.tracing.endpoint is required when tracing is enabled")
		}
		switch tr.Protocol {
		case "", "grpc", "http":
			// valid
		default:
			return fmt.Errorf("observability.tracing.protocol %q is not supported (use grpc or http)", tr.Protocol)
		}
		if tr.SampleRate < 0 || tr.SampleRate > 1 {
			return fmt.Errorf("observability.tracing.sample_rate must be within [0,1]")
		}
	}

	// Schedule validation.
	if c.Scheduler != nil && c.Scheduler.Enabled {
		if len(c.Scheduler.Schedules) == 0 {
			return fmt.Errorf("scheduler.schedules must contain at least one schedule when enabled")
		}
		for i, s := range c.Scheduler.Schedules {
			if s.Cron == "" {
				return fmt.Errorf("scheduler.schedules[%d].cron is required", i)
			}
			if s.Objective == "" {
				return fmt.Errorf("scheduler.schedules[%d].objective is required", i)
			}
		}
	}

	return nil
}
