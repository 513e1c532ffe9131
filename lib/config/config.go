// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the variable Load reads the config path from.
const EnvironmentVariable = "BUILDWRIGHT_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the master configuration.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	Paths     PathsConfig     `yaml:"paths"`
	Redis     RedisConfig     `yaml:"redis"`
	Docker    DockerConfig    `yaml:"docker"`
	GitHub    GitHubConfig    `yaml:"github"`
	Timeouts  TimeoutsConfig  `yaml:"timeouts"`
	Stream    StreamConfig    `yaml:"stream"`
	Git       GitConfig       `yaml:"git"`
	Manifest  ManifestConfig  `yaml:"manifest"`
	Server    ServerConfig    `yaml:"server"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// EnvironmentOverrides contains per-environment overrides.
	// These are applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Paths     *PathsConfig     `yaml:"paths,omitempty"`
	Redis     *RedisConfig     `yaml:"redis,omitempty"`
	Server    *ServerConfig    `yaml:"server,omitempty"`
	Telemetry *TelemetryConfig `yaml:"telemetry,omitempty"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// Root is the base directory for worker data.
	Root string `yaml:"root"`

	// Builds holds one checkout directory per builder slug.
	Builds string `yaml:"builds"`

	// SSHKeys holds one key pair directory per builder slug.
	SSHKeys string `yaml:"ssh_keys"`

	// Data is the badger store directory.
	Data string `yaml:"data"`
}

// RedisConfig configures the stage queues and the live-log cache.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	// QueuePrefix prefixes stage queue keys: "<prefix>:<stage>".
	QueuePrefix string `yaml:"queue_prefix"`

	// LiveLogPrefix prefixes live-log keys.
	LiveLogPrefix string `yaml:"live_log_prefix"`

	// PopTimeout bounds one blocking pop; workers loop on it.
	PopTimeout time.Duration `yaml:"pop_timeout"`

	// LiveLogTTL is how long live output survives a finished build.
	LiveLogTTL time.Duration `yaml:"live_log_ttl"`
}

// DockerConfig configures dependency containers.
type DockerConfig struct {
	// Host overrides DOCKER_HOST when set.
	Host string `yaml:"host"`

	// ReadinessPolls is how many waits follow a dependency start.
	ReadinessPolls int `yaml:"readiness_polls"`

	// ReadinessInterval is the length of each wait.
	ReadinessInterval time.Duration `yaml:"readiness_interval"`
}

// GitHubConfig configures the GitHub API client.
type GitHubConfig struct {
	BaseURL string `yaml:"base_url"`

	// StatusContext is the commit status context builds report under.
	StatusContext string `yaml:"status_context"`

	// RequestsPerSecond caps commit status calls. Zero is unlimited.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// TimeoutsConfig holds fallbacks for builders without their own.
type TimeoutsConfig struct {
	// Default applies to clone and build when the builder sets none.
	Default time.Duration `yaml:"default"`
}

// StreamConfig configures output streaming.
type StreamConfig struct {
	// ChunkSize is how many bytes of output are read between two
	// saves of the build record.
	ChunkSize int `yaml:"chunk_size"`
}

// GitConfig locates the git and ssh executables.
type GitConfig struct {
	Binary    string `yaml:"binary"`
	SSHBinary string `yaml:"ssh_binary"`
}

// ManifestConfig configures the in-repository build manifest.
type ManifestConfig struct {
	Filename string `yaml:"filename"`
}

// ServerConfig configures the worker's HTTP surfaces.
type ServerConfig struct {
	// URL is the public web front-end, used for build links and
	// webhook delivery.
	URL string `yaml:"url"`

	// MetricsAddress is where /metrics and /healthz are served.
	// Empty disables the listener.
	MetricsAddress string `yaml:"metrics_address"`
}

// TelemetryConfig configures tracing.
type TelemetryConfig struct {
	// Trace selects the span exporter: "none" or "stdout".
	Trace string `yaml:"trace"`
}

// Default returns the default configuration.
// These defaults are used as a base before loading the config file.
// They exist primarily to ensure all fields have sensible zero-values,
// not as a fallback - the config file is required.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".cache", "buildwright")

	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			Root:    defaultRoot,
			Builds:  filepath.Join(defaultRoot, "builds"),
			SSHKeys: filepath.Join(defaultRoot, "ssh-keys"),
			Data:    filepath.Join(defaultRoot, "data"),
		},
		Redis: RedisConfig{
			Address:       "localhost:6379",
			QueuePrefix:   "buildwright:queue",
			LiveLogPrefix: "buildwright:live",
			PopTimeout:    5 * time.Second,
			LiveLogTTL:    24 * time.Hour,
		},
		Docker: DockerConfig{
			ReadinessPolls:    3,
			ReadinessInterval: time.Second,
		},
		GitHub: GitHubConfig{
			BaseURL:           "https://api.github.com",
			StatusContext:     "continuous-integration/buildwright",
			RequestsPerSecond: 5,
		},
		Timeouts: TimeoutsConfig{
			Default: 10 * time.Minute,
		},
		Stream: StreamConfig{
			ChunkSize: 1024,
		},
		Git: GitConfig{
			Binary:    "git",
			SSHBinary: "ssh",
		},
		Manifest: ManifestConfig{
			Filename: ".buildwright.yml",
		},
		Server: ServerConfig{
			URL:            "http://localhost:8080",
			MetricsAddress: "127.0.0.1:9464",
		},
		Telemetry: TelemetryConfig{
			Trace: "none",
		},
	}
}

// Load loads configuration from the BUILDWRIGHT_CONFIG environment
// variable. There are no fallbacks: if it is not set, this fails.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvironmentVariable)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your buildwright.yaml config file, or use --config flag", EnvironmentVariable)
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment variables do not
// override config values. The only expansion performed is ${HOME} and similar
// path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	// Apply environment-specific overrides (development/staging/production sections in the file).
	cfg.applyEnvironmentOverrides()

	// Expand ${HOME} and similar variables in paths for portability.
	cfg.expandVariables()

	return cfg, nil
}

// loadFile loads a single configuration file, merging into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		// Production defaults: no span output on stdout.
		if overrides == nil {
			overrides = &ConfigOverrides{
				Telemetry: &TelemetryConfig{Trace: "none"},
			}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.Paths != nil {
		if overrides.Paths.Root != "" {
			c.Paths.Root = overrides.Paths.Root
		}
		if overrides.Paths.Builds != "" {
			c.Paths.Builds = overrides.Paths.Builds
		}
		if overrides.Paths.SSHKeys != "" {
			c.Paths.SSHKeys = overrides.Paths.SSHKeys
		}
		if overrides.Paths.Data != "" {
			c.Paths.Data = overrides.Paths.Data
		}
	}

	if overrides.Redis != nil {
		if overrides.Redis.Address != "" {
			c.Redis.Address = overrides.Redis.Address
		}
		if overrides.Redis.Password != "" {
			c.Redis.Password = overrides.Redis.Password
		}
		if overrides.Redis.DB != 0 {
			c.Redis.DB = overrides.Redis.DB
		}
		if overrides.Redis.QueuePrefix != "" {
			c.Redis.QueuePrefix = overrides.Redis.QueuePrefix
		}
		if overrides.Redis.LiveLogPrefix != "" {
			c.Redis.LiveLogPrefix = overrides.Redis.LiveLogPrefix
		}
	}

	if overrides.Server != nil {
		if overrides.Server.URL != "" {
			c.Server.URL = overrides.Server.URL
		}
		if overrides.Server.MetricsAddress != "" {
			c.Server.MetricsAddress = overrides.Server.MetricsAddress
		}
	}

	if overrides.Telemetry != nil && overrides.Telemetry.Trace != "" {
		c.Telemetry.Trace = overrides.Telemetry.Trace
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"BUILDWRIGHT_ROOT": c.Paths.Root,
		"HOME":             os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["BUILDWRIGHT_ROOT"] = c.Paths.Root // Update for dependent paths.

	c.Paths.Builds = expandVars(c.Paths.Builds, vars)
	c.Paths.SSHKeys = expandVars(c.Paths.SSHKeys, vars)
	c.Paths.Data = expandVars(c.Paths.Data, vars)
	c.Git.Binary = expandVars(c.Git.Binary, vars)
	c.Git.SSHBinary = expandVars(c.Git.SSHBinary, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Paths.Root == "" {
		errs = append(errs, fmt.Errorf("paths.root is required"))
	}
	for name, path := range map[string]string{
		"paths.builds":   c.Paths.Builds,
		"paths.ssh_keys": c.Paths.SSHKeys,
		"paths.data":     c.Paths.Data,
	} {
		if path != "" && !filepath.IsAbs(path) {
			errs = append(errs, fmt.Errorf("%s must be absolute (got %q)", name, path))
		}
	}

	if c.Redis.Address == "" {
		errs = append(errs, fmt.Errorf("redis.address is required"))
	}
	if c.Redis.PopTimeout < time.Second {
		// Redis blocking commands take whole seconds.
		errs = append(errs, fmt.Errorf("redis.pop_timeout must be at least 1s (got %s)", c.Redis.PopTimeout))
	}

	if c.Docker.ReadinessPolls < 0 {
		errs = append(errs, fmt.Errorf("docker.readiness_polls must not be negative"))
	}
	if c.Timeouts.Default <= 0 {
		errs = append(errs, fmt.Errorf("timeouts.default must be positive"))
	}
	if c.Stream.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("stream.chunk_size must be positive"))
	}
	if c.Manifest.Filename == "" || strings.ContainsRune(c.Manifest.Filename, '/') {
		errs = append(errs, fmt.Errorf("manifest.filename must be a plain file name (got %q)", c.Manifest.Filename))
	}
	if c.Server.URL == "" {
		errs = append(errs, fmt.Errorf("server.url is required"))
	}

	traceValues := []string{"none", "stdout"}
	if !slices.Contains(traceValues, c.Telemetry.Trace) {
		errs = append(errs, fmt.Errorf("telemetry.trace must be one of: %v", traceValues))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsurePaths creates all configured directories if they don't exist.
func (c *Config) EnsurePaths() error {
	paths := []string{
		c.Paths.Root,
		c.Paths.Builds,
		c.Paths.SSHKeys,
		c.Paths.Data,
	}

	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}

	// Key directories hold private keys.
	if c.Paths.SSHKeys != "" {
		if err := os.Chmod(c.Paths.SSHKeys, 0700); err != nil {
			return fmt.Errorf("restricting %s: %w", c.Paths.SSHKeys, err)
		}
	}

	return nil
}

// Timeout returns seconds as a duration, or the default when
// seconds is not positive.
func (c *Config) Timeout(seconds int) time.Duration {
	if seconds <= 0 {
		return c.Timeouts.Default
	}
	return time.Duration(seconds) * time.Second
}
