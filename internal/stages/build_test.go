package stages

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/distcache/internal/foundation/errors"
	"git.home.luguber.info/inful/distcache/internal/git"
	"git.home.luguber.info/inful/distcache/internal/handoff"
	"git.home.luguber.info/inful/distcache/internal/process"
	"git.home.luguber.info/inful/distcache/internal/retry"
)

func newBuild(t *testing.T, env *fakeEnv) (*BuildStage, *handoff.MemoryStore) {
	t.Helper()
	cfg := testConfig(t)
	store := handoff.NewMemoryStore()
	stage := NewBuildStage(cfg, &fakeProvisioner{env: env}, handoff.NewTransfer(store, retry.DefaultPolicy(), time.Hour))
	stage.numCPU = func() int { return 3 }
	return stage, store
}

func TestBuildStageHandsOffArchive(t *testing.T) {
	env := &fakeEnv{archive: makeArchive(t, "dist", "package-lock.json", "tree")}
	stage, store := newBuild(t, env)

	req, err := NewRequest("run-1", "base1", "head2")
	require.NoError(t, err)
	res, err := stage.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "run-1/dist", res.Key)
	assert.True(t, res.Merged)
	assert.Equal(t, "0123abcd", res.Commit)
	assert.Equal(t, 1, store.Len())
	assert.Positive(t, res.Record.Size)
	assert.FileExists(t, res.ArchivePath)

	assert.Equal(t, []string{"init", "remote", "fetch", "checkout", "merge", "rev-parse"}, env.gitSubcommands())
	assert.Equal(t, "3", env.packagingEnv()["JOBS"])
	assert.GreaterOrEqual(t, env.teardowns, 1)
}

func TestBuildStageSameRevisionSkipsMerge(t *testing.T) {
	env := &fakeEnv{archive: makeArchive(t, "dist", "package-lock.json", "tree")}
	stage, _ := newBuild(t, env)
	stage.cfg.Packaging.Jobs = 8

	req, err := NewRequest("run-1", "base1", "")
	require.NoError(t, err)
	res, err := stage.Run(context.Background(), req)
	require.NoError(t, err)

	assert.False(t, res.Merged)
	assert.NotContains(t, env.gitSubcommands(), "merge")
	assert.Equal(t, "8", env.packagingEnv()["JOBS"])
}

func TestBuildStageMergeConflict(t *testing.T) {
	env := &fakeEnv{
		archive:   makeArchive(t, "dist", "package-lock.json", "tree"),
		fail:      map[string]error{"merge": &process.ExitError{Command: "git merge", ExitCode: 1}},
		conflicts: []string{"src/app.js", "package.json"},
	}
	stage, store := newBuild(t, env)

	req, err := NewRequest("run-1", "base1", "head2")
	require.NoError(t, err)
	_, err = stage.Run(context.Background(), req)
	require.Error(t, err)

	assert.Equal(t, ferrors.CategoryMerge, ferrors.GetCategory(err))
	var conflict *git.MergeConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, []string{"src/app.js", "package.json"}, conflict.Paths)

	assert.Zero(t, store.Len(), "nothing may be handed off")
	assert.Equal(t, 1, env.teardowns)
	assert.Nil(t, env.packagingEnv(), "packaging must not run")
}

func TestBuildStageMissingEntries(t *testing.T) {
	env := &fakeEnv{archive: makeArchive(t, "dist", "package-lock.json")}
	stage, store := newBuild(t, env)

	req, err := NewRequest("run-1", "base1", "")
	require.NoError(t, err)
	_, err = stage.Run(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, ferrors.CategoryPackaging, ferrors.GetCategory(err))
	assert.Contains(t, err.Error(), "tree")
	assert.Zero(t, store.Len())
}

func TestBuildStagePackagingFailureTearsDown(t *testing.T) {
	env := &fakeEnv{fail: map[string]error{"sh": &process.ExitError{Command: "sh -c make dist-archive", ExitCode: 2}}}
	stage, store := newBuild(t, env)

	req, err := NewRequest("run-1", "base1", "")
	require.NoError(t, err)
	_, err = stage.Run(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, ferrors.CategoryPackaging, ferrors.GetCategory(err))
	assert.Equal(t, 1, env.teardowns)
	assert.Zero(t, store.Len())
}

func TestBuildStageProvisionFailure(t *testing.T) {
	cfg := testConfig(t)
	stage := NewBuildStage(cfg, &fakeProvisioner{err: errors.New("no runtime")},
		handoff.NewTransfer(handoff.NewMemoryStore(), retry.DefaultPolicy(), time.Hour))

	req, err := NewRequest("run-1", "base1", "")
	require.NoError(t, err)
	_, err = stage.Run(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, ferrors.CategoryEnvironment, ferrors.GetCategory(err))
}

func TestBuildStageRequiresSource(t *testing.T) {
	env := &fakeEnv{}
	stage, _ := newBuild(t, env)
	stage.cfg.Source.URL = ""

	req, err := NewRequest("run-1", "base1", "")
	require.NoError(t, err)
	_, err = stage.Run(context.Background(), req)
	require.Error(t, err)
	assert.Empty(t, env.gitSubcommands())
}
