// Package config loads and validates spackbridge configuration from a YAML
// file, a .env file, and SPACKBRIDGE_* environment overrides (in that order
// of increasing precedence).
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the spackbridge service.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
	Spack       SpackConfig       `yaml:"spack"`
	Singularity SingularityConfig `yaml:"singularity"`
	Sessions    SessionsConfig    `yaml:"sessions"`
	Git         GitConfig         `yaml:"git"`
	Events      EventsConfig      `yaml:"events"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host      string `yaml:"host"`
	APIPort   int    `yaml:"api_port"`
	AdminPort int    `yaml:"admin_port"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SpackConfig holds settings for the wrapped spack executable.
type SpackConfig struct {
	// Executable is the path of the spack binary on the host.
	Executable string `yaml:"executable"`
	// GlobalRepo is the shared spack package repository on the host.
	GlobalRepo string `yaml:"global_repo"`
	// TempRoots are the directories searched for spack staging areas when
	// build logs must be recovered from disk.
	TempRoots []string `yaml:"temp_roots"`

	// Timeouts per operation class. Metadata queries finish in seconds,
	// full installs can take hours.
	QueryTimeoutSeconds   int `yaml:"query_timeout_seconds"`
	InstallTimeoutSeconds int `yaml:"install_timeout_seconds"`
	CreateTimeoutSeconds  int `yaml:"create_timeout_seconds"`
}

// QueryTimeout returns the metadata-query timeout as a duration.
func (c SpackConfig) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutSeconds) * time.Second
}

// InstallTimeout returns the install timeout as a duration.
func (c SpackConfig) InstallTimeout() time.Duration {
	return time.Duration(c.InstallTimeoutSeconds) * time.Second
}

// CreateTimeout returns the recipe-generation timeout as a duration.
func (c SpackConfig) CreateTimeout() time.Duration {
	return time.Duration(c.CreateTimeoutSeconds) * time.Second
}

// SingularityConfig holds settings for sandboxed execution.
type SingularityConfig struct {
	Executable string `yaml:"executable"`
	// Image is the container image that carries spack; it is the last
	// element of the sandbox prefix and acts as the in-sandbox tool path.
	Image string `yaml:"image"`
	// SystemBinds are read-only host paths exposed inside the container.
	SystemBinds []string `yaml:"system_binds"`
	// ReposConfigDest is the in-container path where the session's
	// repos.yaml is expected by spack.
	ReposConfigDest string `yaml:"repos_config_dest"`
	// PackagesDest is the in-container path for the session's packages.
	PackagesDest string `yaml:"packages_dest"`
}

// SessionsConfig holds session bookkeeping settings.
type SessionsConfig struct {
	Root                 string `yaml:"root"`
	DatabasePath         string `yaml:"database_path"`
	TTLHours             int    `yaml:"ttl_hours"`
	SweepIntervalMinutes int    `yaml:"sweep_interval_minutes"`
}

// TTL returns the idle session lifetime as a duration.
func (c SessionsConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

// SweepInterval returns the sweep cadence as a duration.
func (c SessionsConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMinutes) * time.Minute
}

// RetryBackoffMode enumerates backoff growth strategies.
type RetryBackoffMode string

const (
	RetryBackoffFixed       RetryBackoffMode = "fixed"
	RetryBackoffLinear      RetryBackoffMode = "linear"
	RetryBackoffExponential RetryBackoffMode = "exponential"
)

// RetryConfig holds retry/backoff settings for transient git failures.
type RetryConfig struct {
	Backoff        RetryBackoffMode `yaml:"backoff"`
	InitialSeconds int              `yaml:"initial_seconds"`
	MaxSeconds     int              `yaml:"max_seconds"`
	MaxRetries     int              `yaml:"max_retries"`
}

// GitConfig holds settings for the spack-repo source-control workflow.
type GitConfig struct {
	RepoURL       string      `yaml:"repo_url"`
	RepoPath      string      `yaml:"repo_path"`
	DefaultBranch string      `yaml:"default_branch"`
	AuthorName    string      `yaml:"author_name"`
	AuthorEmail   string      `yaml:"author_email"`
	Retry         RetryConfig `yaml:"retry"`
}

// EventsConfig holds settings for the optional NATS progress-event fanout.
type EventsConfig struct {
	Enabled bool   `yaml:"enabled"`
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
}

// Load reads configuration from the given YAML path. A missing file yields
// the defaults. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	// Not fatal when absent; mirrors local-development convention.
	_ = godotenv.Load()

	cfg := Defaults()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Defaults plus env only.
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants that would otherwise surface as confusing
// runtime failures.
func (c *Config) Validate() error {
	if c.Server.APIPort <= 0 || c.Server.APIPort > 65535 {
		return fmt.Errorf("server.api_port %d out of range", c.Server.APIPort)
	}
	if c.Server.AdminPort <= 0 || c.Server.AdminPort > 65535 {
		return fmt.Errorf("server.admin_port %d out of range", c.Server.AdminPort)
	}
	if c.Server.APIPort == c.Server.AdminPort {
		return fmt.Errorf("server.api_port and server.admin_port must differ")
	}
	if c.Spack.Executable == "" {
		return fmt.Errorf("spack.executable must not be empty")
	}
	if c.Spack.QueryTimeoutSeconds <= 0 || c.Spack.InstallTimeoutSeconds <= 0 {
		return fmt.Errorf("spack timeouts must be positive")
	}
	if c.Sessions.Root == "" {
		return fmt.Errorf("sessions.root must not be empty")
	}
	if c.Events.Enabled && c.Events.NATSURL == "" {
		return fmt.Errorf("events.nats_url required when events are enabled")
	}
	return nil
}
