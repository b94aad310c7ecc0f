package environment

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"git.home.luguber.info/inful/distcache/internal/config"
	"git.home.luguber.info/inful/distcache/internal/foundation/errors"
	"git.home.luguber.info/inful/distcache/internal/logfields"
	"git.home.luguber.info/inful/distcache/internal/observability"
	"git.home.luguber.info/inful/distcache/internal/process"
	"git.home.luguber.info/inful/distcache/internal/workspace"
)

// LocalProvisioner isolates a build in a fresh host directory. It relies on
// the host toolchain and is meant for runners that are already sandboxed.
type LocalProvisioner struct {
	baseDir string
	runner  process.Runner
}

// NewLocalProvisioner creates a provisioner for host-directory environments.
func NewLocalProvisioner(cfg config.EnvironmentConfig, runner process.Runner) *LocalProvisioner {
	return &LocalProvisioner{baseDir: cfg.WorkspaceDir, runner: runner}
}

// Runtime returns config.RuntimeLocal.
func (p *LocalProvisioner) Runtime() config.RuntimeType { return config.RuntimeLocal }

// Provision creates the workspace and its source checkout directory.
func (p *LocalProvisioner) Provision(ctx context.Context) (Environment, error) {
	ws := workspace.NewManager(p.baseDir, "distcache-build")
	if err := ws.Create(); err != nil {
		return nil, errors.EnvironmentError("failed to create local build workspace").WithCause(err).Build()
	}
	src, err := ws.CreateSubdir("src")
	if err != nil {
		_ = ws.Cleanup()
		return nil, errors.EnvironmentError("failed to create local checkout directory").WithCause(err).Build()
	}
	observability.InfoContext(ctx, "Provisioned local build environment", logfields.Runtime(string(config.RuntimeLocal)), logfields.Environment(ws.GetPath()))
	return &localEnv{ws: ws, id: ws.GetPath(), workdir: src, runner: p.runner}, nil
}

type localEnv struct {
	ws      *workspace.Manager
	id      string
	workdir string
	runner  process.Runner

	once        sync.Once
	teardownErr error
}

func (l *localEnv) ID() string      { return l.id }
func (l *localEnv) Workdir() string { return l.workdir }

func (l *localEnv) Run(ctx context.Context, e Exec) (process.Result, error) {
	if len(e.Args) == 0 {
		return process.Result{}, fmt.Errorf("empty command")
	}
	dir := l.workdir
	if e.Dir != "" {
		if filepath.IsAbs(e.Dir) {
			dir = e.Dir
		} else {
			dir = filepath.Join(l.workdir, e.Dir)
		}
	}
	env := envPairs(e.Env)
	sort.Strings(env)
	return l.runner.Run(ctx, process.Command{Name: e.Args[0], Args: e.Args[1:], Dir: dir, Env: env})
}

func (l *localEnv) CopyOut(_ context.Context, src, dst string) error {
	if !filepath.IsAbs(src) {
		src = filepath.Join(l.workdir, src)
	}
	in, err := os.Open(src) // #nosec G304 -- path inside our own workspace
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst) // #nosec G304 -- destination chosen by the build stage
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}

func (l *localEnv) Teardown(ctx context.Context) error {
	l.once.Do(func() {
		if err := l.ws.Cleanup(); err != nil {
			l.teardownErr = errors.EnvironmentError("failed to remove local build environment").
				WithCause(err).
				WithContext("path", l.id).
				Build()
			return
		}
		observability.InfoContext(ctx, "Removed local build environment", logfields.Environment(l.id))
	})
	return l.teardownErr
}
