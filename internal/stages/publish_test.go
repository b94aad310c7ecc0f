package stages

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/distcache/internal/config"
	ferrors "git.home.luguber.info/inful/distcache/internal/foundation/errors"
	"git.home.luguber.info/inful/distcache/internal/handoff"
	"git.home.luguber.info/inful/distcache/internal/retry"
)

func newBareRemote(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available for file transport")
	}
	path := filepath.Join(t.TempDir(), "cache.git")
	_, err := gogit.PlainInit(path, true)
	require.NoError(t, err)
	return path
}

// handedOff stores an archive under the run's hand-off key.
func handedOff(t *testing.T, store handoff.Store, cfg *config.Config, runID string) {
	t.Helper()
	key, err := handoff.Key(runID, cfg.Handoff.Name)
	require.NoError(t, err)
	f, err := os.Open(makeArchive(t, "dist", "package-lock.json", "tree"))
	require.NoError(t, err)
	defer f.Close()
	_, err = store.Put(context.Background(), key, f, time.Hour)
	require.NoError(t, err)
}

func newPublish(t *testing.T, store handoff.Store, remote string) *PublishStage {
	t.Helper()
	cfg := testConfig(t)
	cfg.Cache.URL = remote
	when := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return NewPublishStage(cfg, handoff.NewTransfer(store, retry.DefaultPolicy(), time.Hour), nil).
		WithWorkDir(t.TempDir()).
		WithClock(func() time.Time { return when })
}

func TestPublishStageCreatesOneTaggedCommit(t *testing.T) {
	remote := newBareRemote(t)
	store := handoff.NewMemoryStore()
	stage := newPublish(t, store, remote)
	handedOff(t, store, stage.cfg, "run-1")

	req, err := NewRequest("run-1", "base1", "head2")
	require.NoError(t, err)
	res, err := stage.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "sha-head2", res.Tag)

	bare, err := gogit.PlainOpen(remote)
	require.NoError(t, err)
	ref, err := bare.Tag("sha-head2")
	require.NoError(t, err)
	assert.Equal(t, res.Commit, ref.Hash().String())

	commit, err := bare.CommitObject(ref.Hash())
	require.NoError(t, err)
	assert.Equal(t, "Build for head2", commit.Message)
	assert.Zero(t, commit.NumParents())

	tree, err := commit.Tree()
	require.NoError(t, err)
	var names []string
	for _, e := range tree.Entries {
		names = append(names, e.Name)
	}
	sort.Strings(names)
	assert.Equal(t, []string{"dist", "merge-base", "package-lock.json", "tree"}, names)

	marker, err := commit.File("merge-base")
	require.NoError(t, err)
	content, err := marker.Contents()
	require.NoError(t, err)
	assert.Equal(t, "base1", content)

	_, err = commit.File("dist/.git/HEAD")
	assert.Error(t, err, ".git entries must never be committed")
}

func TestPublishStageAbsentHeadUsesBase(t *testing.T) {
	remote := newBareRemote(t)
	store := handoff.NewMemoryStore()
	stage := newPublish(t, store, remote)
	handedOff(t, store, stage.cfg, "run-1")

	req, err := NewRequest("run-1", "base1", "")
	require.NoError(t, err)
	res, err := stage.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "sha-base1", res.Tag)

	bare, err := gogit.PlainOpen(remote)
	require.NoError(t, err)
	ref, err := bare.Tag("sha-base1")
	require.NoError(t, err)
	commit, err := bare.CommitObject(ref.Hash())
	require.NoError(t, err)
	assert.Equal(t, "Build for base1", commit.Message)
}

func TestPublishStageRejectsSecondPublishOfSameHead(t *testing.T) {
	remote := newBareRemote(t)
	store := handoff.NewMemoryStore()
	stage := newPublish(t, store, remote)
	handedOff(t, store, stage.cfg, "run-1")
	handedOff(t, store, stage.cfg, "run-2")

	first, err := NewRequest("run-1", "base1", "head2")
	require.NoError(t, err)
	_, err = stage.Run(context.Background(), first)
	require.NoError(t, err)

	second, err := NewRequest("run-2", "other-base", "head2")
	require.NoError(t, err)
	_, err = stage.Run(context.Background(), second)
	require.Error(t, err)
	assert.Equal(t, ferrors.CategoryAlreadyExists, ferrors.GetCategory(err))
}

func TestPublishStageMissingArtifact(t *testing.T) {
	store := handoff.NewMemoryStore()
	stage := newPublish(t, store, filepath.Join(t.TempDir(), "unused.git"))

	req, err := NewRequest("run-1", "base1", "")
	require.NoError(t, err)
	_, err = stage.Run(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, ferrors.CategoryHandoff, ferrors.GetCategory(err))
	assert.Equal(t, 13, ferrors.NewCLIErrorAdapter(false, nil).ExitCodeFor(err))
}

func TestPublishStageExpiredArtifact(t *testing.T) {
	store := handoff.NewMemoryStore()
	stage := newPublish(t, store, filepath.Join(t.TempDir(), "unused.git"))
	handedOff(t, store, stage.cfg, "run-1")
	store.SetClock(func() time.Time { return time.Now().Add(2 * time.Hour) })

	req, err := NewRequest("run-1", "base1", "")
	require.NoError(t, err)
	_, err = stage.Run(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expired")
}

func TestPublishStageReleasesCredential(t *testing.T) {
	remote := newBareRemote(t)
	store := handoff.NewMemoryStore()
	stage := newPublish(t, store, remote)
	handedOff(t, store, stage.cfg, "run-1")

	creds := &countingCredentials{}
	stage.credentials = creds

	req, err := NewRequest("run-1", "base1", "")
	require.NoError(t, err)
	_, err = stage.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, creds.acquired)
	assert.Equal(t, 1, creds.released)
}
