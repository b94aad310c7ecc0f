package stages

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/distcache/internal/archive"
	"git.home.luguber.info/inful/distcache/internal/config"
	"git.home.luguber.info/inful/distcache/internal/environment"
	"git.home.luguber.info/inful/distcache/internal/process"
)

// fakeEnv answers git and packaging commands from a script and serves a
// prepared archive through CopyOut.
type fakeEnv struct {
	mu        sync.Mutex
	commands  []environment.Exec
	archive   string
	fail      map[string]error
	conflicts []string
	block     bool
	teardowns int
}

func (f *fakeEnv) ID() string      { return "fake-env" }
func (f *fakeEnv) Workdir() string { return "/build/src" }

func (f *fakeEnv) Run(ctx context.Context, e environment.Exec) (process.Result, error) {
	f.mu.Lock()
	f.commands = append(f.commands, e)
	f.mu.Unlock()

	name := e.Args[0]
	if name == "git" && len(e.Args) > 1 {
		name = e.Args[1]
	}
	if err, ok := f.fail[name]; ok {
		return process.Result{ExitCode: 1}, err
	}
	switch name {
	case "sh":
		if f.block {
			<-ctx.Done()
			return process.Result{}, ctx.Err()
		}
	case "rev-parse":
		return process.Result{Stdout: []byte("0123abcd\n")}, nil
	case "diff":
		return process.Result{Stdout: []byte(strings.Join(f.conflicts, "\n") + "\n")}, nil
	}
	return process.Result{}, nil
}

func (f *fakeEnv) CopyOut(_ context.Context, _ string, dst string) error {
	in, err := os.Open(f.archive)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func (f *fakeEnv) Teardown(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.teardowns++
	return nil
}

func (f *fakeEnv) gitSubcommands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.commands {
		if c.Args[0] == "git" {
			out = append(out, c.Args[1])
		}
	}
	return out
}

func (f *fakeEnv) packagingEnv() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.commands {
		if c.Args[0] == "sh" {
			return c.Env
		}
	}
	return nil
}

type fakeProvisioner struct {
	env *fakeEnv
	err error
}

func (p *fakeProvisioner) Provision(context.Context) (environment.Environment, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.env, nil
}

func (p *fakeProvisioner) Runtime() config.RuntimeType { return config.RuntimeLocal }

// makeArchive packages a small distribution tree containing the given top-level entries.
func makeArchive(t *testing.T, entries ...string) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"dist/index.js":     "module.exports = 1\n",
		"dist/.git/HEAD":    "ref: refs/heads/main\n",
		"package-lock.json": "{}\n",
		"tree":              "dist/index.js\n",
	}
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	}
	path := filepath.Join(t.TempDir(), "dist.tar.zst")
	require.NoError(t, archive.Create(path, root, entries))
	return path
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Source.URL = "https://example.com/project.git"
	cfg.Environment.Runtime = config.RuntimeLocal
	cfg.Packaging.OutputDir = filepath.Join(t.TempDir(), "out")
	cfg.Packaging.Archive = "dist.tar.zst"
	cfg.Handoff.Directory = filepath.Join(t.TempDir(), "handoff")
	cfg.Cache.Auth = &config.AuthConfig{Type: config.AuthTypeNone}
	cfg.Ledger.Disabled = true
	return cfg
}
