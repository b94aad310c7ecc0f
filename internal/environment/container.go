package environment

import (
	"context"
	"log/slog"
	"path"
	"sort"
	"strings"
	"sync"

	"git.home.luguber.info/inful/distcache/internal/config"
	"git.home.luguber.info/inful/distcache/internal/foundation/errors"
	"git.home.luguber.info/inful/distcache/internal/logfields"
	"git.home.luguber.info/inful/distcache/internal/observability"
	"git.home.luguber.info/inful/distcache/internal/process"
)

// ContainerProvisioner starts a long-lived container through the podman or
// docker CLI and runs every build step in it with `exec`.
type ContainerProvisioner struct {
	runtime config.RuntimeType
	binary  string
	image   string
	workdir string
	runArgs []string
	runner  process.Runner
}

// NewContainerProvisioner creates a provisioner for a container runtime.
func NewContainerProvisioner(cfg config.EnvironmentConfig, runner process.Runner) *ContainerProvisioner {
	binary := cfg.Binary
	if binary == "" {
		binary = string(cfg.Runtime)
	}
	return &ContainerProvisioner{
		runtime: cfg.Runtime,
		binary:  binary,
		image:   cfg.Image,
		workdir: cfg.Workdir,
		runArgs: cfg.RunArgs,
		runner:  runner,
	}
}

// Runtime returns the container runtime in use.
func (p *ContainerProvisioner) Runtime() config.RuntimeType { return p.runtime }

// Provision starts a detached container that idles until torn down.
func (p *ContainerProvisioner) Provision(ctx context.Context) (Environment, error) {
	args := []string{"run", "--detach", "--init"}
	args = append(args, p.runArgs...)
	args = append(args, p.image, "sleep", "infinity")

	res, err := p.runner.Run(ctx, process.Command{Name: p.binary, Args: args})
	if err != nil {
		return nil, errors.EnvironmentError("failed to start build container").
			WithCause(err).
			WithContext("runtime", string(p.runtime)).
			WithContext("image", p.image).
			Build()
	}
	id := strings.TrimSpace(string(res.Stdout))
	if i := strings.LastIndexByte(id, '\n'); i >= 0 {
		id = id[i+1:]
	}
	if id == "" {
		return nil, errors.EnvironmentError("container runtime returned no container id").
			WithContext("runtime", string(p.runtime)).
			Build()
	}

	env := &containerEnv{binary: p.binary, id: id, workdir: p.workdir, runner: p.runner}
	observability.InfoContext(ctx, "Provisioned build container", logfields.Runtime(string(p.runtime)), logfields.Environment(id), slog.String("image", p.image))

	if _, err := env.Run(ctx, Exec{Args: []string{"mkdir", "-p", p.workdir}, Dir: "/"}); err != nil {
		_ = env.Teardown(context.WithoutCancel(ctx))
		return nil, errors.EnvironmentError("failed to prepare container workdir").
			WithCause(err).
			WithContext("workdir", p.workdir).
			Build()
	}
	return env, nil
}

type containerEnv struct {
	binary  string
	id      string
	workdir string
	runner  process.Runner

	once        sync.Once
	teardownErr error
}

func (c *containerEnv) ID() string      { return c.id }
func (c *containerEnv) Workdir() string { return c.workdir }

func (c *containerEnv) Run(ctx context.Context, e Exec) (process.Result, error) {
	dir := c.workdir
	if e.Dir != "" {
		if path.IsAbs(e.Dir) {
			dir = e.Dir
		} else {
			dir = path.Join(c.workdir, e.Dir)
		}
	}
	args := []string{"exec", "--workdir", dir}
	keys := make([]string, 0, len(e.Env))
	for k := range e.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "--env", k+"="+e.Env[k])
	}
	args = append(args, c.id)
	args = append(args, e.Args...)
	return c.runner.Run(ctx, process.Command{Name: c.binary, Args: args})
}

func (c *containerEnv) CopyOut(ctx context.Context, src, dst string) error {
	if !path.IsAbs(src) {
		src = path.Join(c.workdir, src)
	}
	_, err := c.runner.Run(ctx, process.Command{Name: c.binary, Args: []string{"cp", c.id + ":" + src, dst}})
	return err
}

func (c *containerEnv) Teardown(ctx context.Context) error {
	c.once.Do(func() {
		_, err := c.runner.Run(ctx, process.Command{Name: c.binary, Args: []string{"rm", "--force", c.id}})
		if err != nil {
			c.teardownErr = errors.EnvironmentError("failed to remove build container").
				WithCause(err).
				WithContext("container", c.id).
				Build()
			return
		}
		observability.InfoContext(ctx, "Removed build container", logfields.Environment(c.id))
	})
	return c.teardownErr
}
