package config

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/distcache/internal/foundation/errors"
)

// DefaultPath is the configuration file looked up when no --config flag is given.
const DefaultPath = "distcache.yaml"

// Config represents the distcache configuration file.
type Config struct {
	Source      SourceConfig      `yaml:"source"`
	Environment EnvironmentConfig `yaml:"environment"`
	Packaging   PackagingConfig   `yaml:"packaging"`
	Artifact    ArtifactConfig    `yaml:"artifact"`
	Handoff     HandoffConfig     `yaml:"handoff"`
	Cache       CacheConfig       `yaml:"cache"`
	Timeouts    TimeoutsConfig    `yaml:"timeouts"`
	Retry       RetryConfig       `yaml:"retry"`
	Logging     LoggingConfig     `yaml:"logging"`
	Ledger      LedgerConfig      `yaml:"ledger"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// SourceConfig names the repository both revisions are fetched from.
type SourceConfig struct {
	URL string `yaml:"url"`
}

// EnvironmentConfig selects and parameterizes the isolated build environment.
type EnvironmentConfig struct {
	Runtime      RuntimeType `yaml:"runtime"`                 // podman|docker|local
	Binary       string      `yaml:"binary,omitempty"`        // override runtime executable path
	Image        string      `yaml:"image,omitempty"`         // container image (container runtimes only)
	Workdir      string      `yaml:"workdir,omitempty"`       // source checkout directory inside the environment
	RunArgs      []string    `yaml:"run_args,omitempty"`      // extra arguments for `<runtime> run`
	WorkspaceDir string      `yaml:"workspace_dir,omitempty"` // base directory for local environments
}

// PackagingConfig describes the packaging procedure run inside the environment.
type PackagingConfig struct {
	Command   string            `yaml:"command"`
	Archive   string            `yaml:"archive"` // path of the produced archive, relative to the checkout
	Jobs      int               `yaml:"jobs,omitempty"`
	Env       map[string]string `yaml:"env,omitempty"`
	OutputDir string            `yaml:"output_dir,omitempty"` // where the archive is copied out to
}

// ArtifactConfig names the entries the archive must contain and publish extracts.
type ArtifactConfig struct {
	DistDir  string `yaml:"dist_dir"`
	LockFile string `yaml:"lock_file"`
	Tree     string `yaml:"tree"`
}

// Entries returns the required top-level archive entries in staging order.
func (a ArtifactConfig) Entries() []string {
	return []string{a.DistDir, a.LockFile, a.Tree}
}

// HandoffConfig configures where the build stage leaves the archive for publish.
type HandoffConfig struct {
	Backend   HandoffBackend `yaml:"backend"` // filesystem|nats
	Name      string         `yaml:"name"`
	Directory string         `yaml:"directory,omitempty"`
	Retention string         `yaml:"retention"`
	NATSURL   string         `yaml:"nats_url,omitempty"`
	Bucket    string         `yaml:"bucket,omitempty"`
}

// RetentionDuration returns the parsed retention window.
func (h HandoffConfig) RetentionDuration() time.Duration {
	d, _ := time.ParseDuration(h.Retention)
	return d
}

// CacheConfig describes the remote distribution-cache repository.
type CacheConfig struct {
	URL         string      `yaml:"url"`
	TagPrefix   string      `yaml:"tag_prefix"`
	MarkerFile  string      `yaml:"marker_file"`
	AuthorName  string      `yaml:"author_name"`
	AuthorEmail string      `yaml:"author_email"`
	Auth        *AuthConfig `yaml:"auth,omitempty"`
}

// TimeoutsConfig holds per-stage wall-clock limits.
type TimeoutsConfig struct {
	Build   string `yaml:"build"`
	Publish string `yaml:"publish"`
}

// BuildTimeout returns the parsed build stage timeout.
func (t TimeoutsConfig) BuildTimeout() time.Duration {
	d, _ := time.ParseDuration(t.Build)
	return d
}

// PublishTimeout returns the parsed publish stage timeout.
func (t TimeoutsConfig) PublishTimeout() time.Duration {
	d, _ := time.ParseDuration(t.Publish)
	return d
}

// RetryConfig configures the optional retry policy for hand-off transfers and pushes.
type RetryConfig struct {
	MaxRetries   int              `yaml:"max_retries"`
	Backoff      RetryBackoffMode `yaml:"backoff,omitempty"`
	InitialDelay string           `yaml:"initial_delay,omitempty"`
	MaxDelay     string           `yaml:"max_delay,omitempty"`
}

// LoggingConfig selects slog level and handler.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// LedgerConfig points at the local SQLite run ledger.
type LedgerConfig struct {
	Path     string `yaml:"path"`
	Disabled bool   `yaml:"disabled,omitempty"`
}

// MetricsConfig configures the Prometheus text exposition written at the end of a run.
type MetricsConfig struct {
	Textfile string `yaml:"textfile,omitempty"`
}

// Load loads configuration from the specified file. An empty path means DefaultPath,
// which may be absent; an explicit path must exist.
func Load(configPath string) (*Config, error) {
	if err := loadEnvFile(); err != nil {
		fmt.Fprintf(os.Stderr, "Note: .env file not found or couldn't be loaded: %v\n", err)
	}

	explicit := configPath != ""
	if !explicit {
		configPath = DefaultPath
	}

	var cfg Config
	data, err := os.ReadFile(configPath) // #nosec G304 -- path supplied by the operator
	switch {
	case err == nil:
		if err := decode(data, &cfg); err != nil {
			return nil, errors.ConfigError("failed to parse configuration").
				WithCause(err).
				WithContext("path", configPath).
				Build()
		}
	case os.IsNotExist(err) && !explicit:
		// defaults only
	case os.IsNotExist(err):
		return nil, errors.ConfigError("configuration file not found").
			WithContext("path", configPath).
			Build()
	default:
		return nil, errors.ConfigError("failed to read configuration file").
			WithCause(err).
			WithContext("path", configPath).
			Build()
	}

	if err := ApplyDefaults(&cfg); err != nil {
		return nil, err
	}
	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// decode expands ${VAR} references and strictly unmarshals YAML.
func decode(data []byte, cfg *Config) error {
	expanded := os.ExpandEnv(string(data))
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !stderrors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	var cfg Config
	_ = ApplyDefaults(&cfg)
	return &cfg
}

// Init creates a new configuration file with example content.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return errors.ConfigError("configuration file already exists (use --force to overwrite)").
			WithContext("path", configPath).
			Build()
	}

	example := Default()
	example.Source.URL = "https://github.com/example/project.git"
	example.Environment.Runtime = RuntimePodman
	example.Environment.Image = "ghcr.io/example/build-tasks:latest"
	example.Cache.URL = "git@github.com:example/project-dist.git"
	example.Cache.Auth = &AuthConfig{
		Type:   AuthTypeDeployKey,
		KeyEnv: DefaultDeployKeyEnv,
	}
	_ = ApplyDefaults(example)

	data, err := yaml.Marshal(example)
	if err != nil {
		return errors.InternalError("failed to marshal example configuration").WithCause(err).Build()
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return errors.FileSystemError("failed to write configuration file").
			WithCause(err).
			WithContext("path", configPath).
			Build()
	}
	return nil
}
