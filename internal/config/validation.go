package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"git.home.luguber.info/inful/distcache/internal/foundation/errors"
)

// ValidateConfig validates the complete configuration structure.
func ValidateConfig(cfg *Config) error {
	validator := newConfigurationValidator(cfg)
	if err := validator.validate(); err != nil {
		return errors.ConfigError("invalid configuration").WithCause(err).Build()
	}
	return nil
}

// configurationValidator coordinates validation across all configuration domains.
type configurationValidator struct {
	config *Config
}

func newConfigurationValidator(config *Config) *configurationValidator {
	return &configurationValidator{config: config}
}

func (cv *configurationValidator) validate() error {
	if err := cv.validateEnvironment(); err != nil {
		return err
	}
	if err := cv.validateArtifact(); err != nil {
		return err
	}
	if err := cv.validateHandoff(); err != nil {
		return err
	}
	if err := cv.validateCache(); err != nil {
		return err
	}
	if err := cv.validateDurations(); err != nil {
		return err
	}
	return nil
}

func (cv *configurationValidator) validateEnvironment() error {
	if _, err := runtimeNormalizer.Parse(string(cv.config.Environment.Runtime)); err != nil {
		return err
	}
	if !filepath.IsAbs(cv.config.Environment.Workdir) && cv.config.Environment.Runtime.IsContainer() {
		return fmt.Errorf("environment workdir must be absolute: %s", cv.config.Environment.Workdir)
	}
	if strings.TrimSpace(cv.config.Packaging.Command) == "" {
		return fmt.Errorf("packaging command cannot be empty")
	}
	if filepath.IsAbs(cv.config.Packaging.Archive) || strings.HasPrefix(filepath.Clean(cv.config.Packaging.Archive), "..") {
		return fmt.Errorf("packaging archive must be relative to the checkout: %s", cv.config.Packaging.Archive)
	}
	return nil
}

func (cv *configurationValidator) validateArtifact() error {
	seen := make(map[string]bool)
	for _, entry := range cv.config.Artifact.Entries() {
		if entry == "" || strings.ContainsAny(entry, "/\\") || entry == "." || entry == ".." {
			return fmt.Errorf("artifact entry must be a plain top-level name: %q", entry)
		}
		if entry == ".git" || entry == cv.config.Cache.MarkerFile {
			return fmt.Errorf("artifact entry collides with reserved name: %q", entry)
		}
		if seen[entry] {
			return fmt.Errorf("duplicate artifact entry: %q", entry)
		}
		seen[entry] = true
	}
	return nil
}

func (cv *configurationValidator) validateHandoff() error {
	h := cv.config.Handoff
	switch NormalizeHandoffBackend(string(h.Backend)) {
	case HandoffFilesystem:
		if h.Directory == "" {
			return fmt.Errorf("handoff directory cannot be empty")
		}
	case HandoffNATS:
		if h.NATSURL == "" || h.Bucket == "" {
			return fmt.Errorf("nats handoff requires nats_url and bucket")
		}
	default:
		_, err := handoffNormalizer.Parse(string(h.Backend))
		return err
	}
	if h.Name == "" || strings.ContainsAny(h.Name, "/\\") {
		return fmt.Errorf("invalid handoff artifact name: %q", h.Name)
	}
	return nil
}

func (cv *configurationValidator) validateCache() error {
	c := cv.config.Cache
	if c.TagPrefix == "" || strings.ContainsAny(c.TagPrefix, " ~^:?*[\\") {
		return fmt.Errorf("invalid cache tag prefix: %q", c.TagPrefix)
	}
	if c.MarkerFile == "" || strings.ContainsAny(c.MarkerFile, "/\\") {
		return fmt.Errorf("invalid merge-base marker file name: %q", c.MarkerFile)
	}
	if c.Auth == nil {
		return nil
	}
	switch c.Auth.Type {
	case AuthTypeNone, "":
	case AuthTypeDeployKey:
		if c.Auth.KeyEnv == "" && c.Auth.KeyPath == "" {
			return fmt.Errorf("deploy_key auth requires key_env or key_path")
		}
		if _, err := parseDuration("cache.auth.key_lifetime", c.Auth.KeyLifetime); err != nil {
			return err
		}
	case AuthTypeSSHAgent:
	case AuthTypeToken:
		if c.Auth.Token == "" {
			return fmt.Errorf("token auth requires a token")
		}
	case AuthTypeBasic:
		if c.Auth.Username == "" || c.Auth.Password == "" {
			return fmt.Errorf("basic auth requires username and password")
		}
	default:
		return fmt.Errorf("unsupported cache auth type: %s", c.Auth.Type)
	}
	return nil
}

func (cv *configurationValidator) validateDurations() error {
	for _, d := range []struct{ field, value string }{
		{"timeouts.build", cv.config.Timeouts.Build},
		{"timeouts.publish", cv.config.Timeouts.Publish},
		{"handoff.retention", cv.config.Handoff.Retention},
		{"retry.initial_delay", cv.config.Retry.InitialDelay},
		{"retry.max_delay", cv.config.Retry.MaxDelay},
	} {
		if _, err := parseDuration(d.field, d.value); err != nil {
			return err
		}
	}
	if _, err := retryBackoffNormalizer.Parse(string(cv.config.Retry.Backoff)); err != nil {
		return err
	}
	return nil
}

func parseDuration(field, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive: %s", field, value)
	}
	return d, nil
}

// RequireBuild checks the settings only the build stage needs.
func (c *Config) RequireBuild() error {
	if strings.TrimSpace(c.Source.URL) == "" {
		return errors.ConfigError("source.url is required for the build stage").Build()
	}
	if c.Environment.Runtime.IsContainer() && c.Environment.Image == "" {
		return errors.ConfigError("environment.image is required for container runtimes").
			WithContext("runtime", string(c.Environment.Runtime)).
			Build()
	}
	return nil
}

// RequirePublish checks the settings only the publish stage needs.
func (c *Config) RequirePublish() error {
	if strings.TrimSpace(c.Cache.URL) == "" {
		return errors.ConfigError("cache.url is required for the publish stage").Build()
	}
	return nil
}
