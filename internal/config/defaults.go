package config

import (
	"fmt"
	"path/filepath"
)

// DefaultApplier applies defaults for a specific configuration domain.
type DefaultApplier interface {
	ApplyDefaults(cfg *Config) error
	Domain() string
}

// EnvironmentDefaultApplier handles build environment defaults.
type EnvironmentDefaultApplier struct{}

func (e *EnvironmentDefaultApplier) Domain() string { return "environment" }

func (e *EnvironmentDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Environment.Runtime == "" {
		cfg.Environment.Runtime = RuntimePodman
	} else if rt := NormalizeRuntime(string(cfg.Environment.Runtime)); rt != "" {
		cfg.Environment.Runtime = rt
	}
	if cfg.Environment.Workdir == "" {
		cfg.Environment.Workdir = "/build/src"
	}
	return nil
}

// PackagingDefaultApplier handles packaging defaults.
type PackagingDefaultApplier struct{}

func (p *PackagingDefaultApplier) Domain() string { return "packaging" }

func (p *PackagingDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Packaging.Command == "" {
		cfg.Packaging.Command = "make dist-archive"
	}
	if cfg.Packaging.Archive == "" {
		cfg.Packaging.Archive = "dist.tar.zst"
	}
	if cfg.Packaging.Jobs < 0 {
		cfg.Packaging.Jobs = 0
	}
	if cfg.Packaging.OutputDir == "" {
		cfg.Packaging.OutputDir = filepath.Join(".distcache", "out")
	}
	return nil
}

// ArtifactDefaultApplier handles artifact entry names.
type ArtifactDefaultApplier struct{}

func (a *ArtifactDefaultApplier) Domain() string { return "artifact" }

func (a *ArtifactDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Artifact.DistDir == "" {
		cfg.Artifact.DistDir = "dist"
	}
	if cfg.Artifact.LockFile == "" {
		cfg.Artifact.LockFile = "package-lock.json"
	}
	if cfg.Artifact.Tree == "" {
		cfg.Artifact.Tree = "tree"
	}
	return nil
}

// HandoffDefaultApplier handles hand-off store defaults.
type HandoffDefaultApplier struct{}

func (h *HandoffDefaultApplier) Domain() string { return "handoff" }

func (h *HandoffDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Handoff.Backend == "" {
		cfg.Handoff.Backend = HandoffFilesystem
	} else if b := NormalizeHandoffBackend(string(cfg.Handoff.Backend)); b != "" {
		cfg.Handoff.Backend = b
	}
	if cfg.Handoff.Name == "" {
		cfg.Handoff.Name = "dist"
	}
	if cfg.Handoff.Directory == "" {
		cfg.Handoff.Directory = filepath.Join(".distcache", "handoff")
	}
	if cfg.Handoff.Retention == "" {
		cfg.Handoff.Retention = "24h"
	}
	if cfg.Handoff.Backend == HandoffNATS {
		if cfg.Handoff.NATSURL == "" {
			cfg.Handoff.NATSURL = "nats://127.0.0.1:4222"
		}
		if cfg.Handoff.Bucket == "" {
			cfg.Handoff.Bucket = "distcache-handoff"
		}
	}
	return nil
}

// CacheDefaultApplier handles cache repository defaults.
type CacheDefaultApplier struct{}

func (c *CacheDefaultApplier) Domain() string { return "cache" }

func (c *CacheDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Cache.TagPrefix == "" {
		cfg.Cache.TagPrefix = "sha-"
	}
	if cfg.Cache.MarkerFile == "" {
		cfg.Cache.MarkerFile = "merge-base"
	}
	if cfg.Cache.AuthorName == "" {
		cfg.Cache.AuthorName = "distcache"
	}
	if cfg.Cache.AuthorEmail == "" {
		cfg.Cache.AuthorEmail = "distcache@localhost"
	}
	if a := cfg.Cache.Auth; a != nil {
		if a.Type == AuthTypeDeployKey && a.KeyEnv == "" && a.KeyPath == "" {
			a.KeyEnv = DefaultDeployKeyEnv
		}
		if a.User == "" {
			a.User = "git"
		}
		if a.KeyLifetime == "" {
			a.KeyLifetime = "5m"
		}
	}
	return nil
}

// TimeoutsDefaultApplier handles stage timeout defaults.
type TimeoutsDefaultApplier struct{}

func (t *TimeoutsDefaultApplier) Domain() string { return "timeouts" }

func (t *TimeoutsDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Timeouts.Build == "" {
		cfg.Timeouts.Build = "20m"
	}
	if cfg.Timeouts.Publish == "" {
		cfg.Timeouts.Publish = "5m"
	}
	return nil
}

// RetryDefaultApplier handles retry defaults. Retries are off unless configured.
type RetryDefaultApplier struct{}

func (r *RetryDefaultApplier) Domain() string { return "retry" }

func (r *RetryDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Retry.MaxRetries < 0 {
		cfg.Retry.MaxRetries = 0
	}
	if cfg.Retry.Backoff == "" {
		cfg.Retry.Backoff = RetryBackoffExponential
	} else if m := NormalizeRetryBackoff(string(cfg.Retry.Backoff)); m != "" {
		cfg.Retry.Backoff = m
	}
	if cfg.Retry.InitialDelay == "" {
		cfg.Retry.InitialDelay = "1s"
	}
	if cfg.Retry.MaxDelay == "" {
		cfg.Retry.MaxDelay = "30s"
	}
	return nil
}

// ObservabilityDefaultApplier handles logging and ledger defaults.
type ObservabilityDefaultApplier struct{}

func (o *ObservabilityDefaultApplier) Domain() string { return "observability" }

func (o *ObservabilityDefaultApplier) ApplyDefaults(cfg *Config) error {
	cfg.Logging.Level = NormalizeLogLevel(string(cfg.Logging.Level))
	cfg.Logging.Format = NormalizeLogFormat(string(cfg.Logging.Format))
	if cfg.Ledger.Path == "" {
		cfg.Ledger.Path = filepath.Join(".distcache", "runs.db")
	}
	return nil
}

// defaultAppliers lists appliers in execution order.
func defaultAppliers() []DefaultApplier {
	return []DefaultApplier{
		&EnvironmentDefaultApplier{},
		&PackagingDefaultApplier{},
		&ArtifactDefaultApplier{},
		&HandoffDefaultApplier{},
		&CacheDefaultApplier{},
		&TimeoutsDefaultApplier{},
		&RetryDefaultApplier{},
		&ObservabilityDefaultApplier{},
	}
}

// ApplyDefaults runs every domain applier against cfg.
func ApplyDefaults(cfg *Config) error {
	for _, applier := range defaultAppliers() {
		if err := applier.ApplyDefaults(cfg); err != nil {
			return fmt.Errorf("failed to apply %s defaults: %w", applier.Domain(), err)
		}
	}
	return nil
}
