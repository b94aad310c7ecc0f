// Package environment provisions the isolated, ephemeral environment the build
// stage merges and packages in, and tears it down again.
package environment

import (
	"context"
	"fmt"

	"git.home.luguber.info/inful/distcache/internal/config"
	"git.home.luguber.info/inful/distcache/internal/foundation/errors"
	"git.home.luguber.info/inful/distcache/internal/process"
)

// Exec describes a command run inside an environment.
type Exec struct {
	Args []string          // program and arguments
	Dir  string            // working directory relative to the environment workdir
	Env  map[string]string // extra environment variables
}

// Environment is a provisioned, isolated place to run commands.
type Environment interface {
	// ID identifies the environment (container id or directory).
	ID() string
	// Workdir is the absolute source checkout directory inside the environment.
	Workdir() string
	// Run executes a command inside the environment.
	Run(ctx context.Context, e Exec) (process.Result, error)
	// CopyOut copies a file from the environment (relative to Workdir) to a host path.
	CopyOut(ctx context.Context, src, dst string) error
	// Teardown destroys the environment. It must be safe to call more than once.
	Teardown(ctx context.Context) error
}

// Provisioner creates environments.
type Provisioner interface {
	Provision(ctx context.Context) (Environment, error)
	Runtime() config.RuntimeType
}

// NewProvisioner selects the provisioner for the configured runtime.
func NewProvisioner(cfg config.EnvironmentConfig, runner process.Runner) (Provisioner, error) {
	if runner == nil {
		runner = process.NewExecRunner()
	}
	switch cfg.Runtime {
	case config.RuntimePodman, config.RuntimeDocker:
		return NewContainerProvisioner(cfg, runner), nil
	case config.RuntimeLocal:
		return NewLocalProvisioner(cfg, runner), nil
	default:
		return nil, errors.ConfigError(fmt.Sprintf("unsupported environment runtime: %s", cfg.Runtime)).Build()
	}
}

func envPairs(env map[string]string) []string {
	pairs := make([]string, 0, len(env))
	for k, v := range env {
		pairs = append(pairs, k+"="+v)
	}
	return pairs
}
