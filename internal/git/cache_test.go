package git

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/distcache/internal/foundation/errors"
)

var testAuthor = Signature{Name: "distcache", Email: "distcache@localhost"}

func writeEntries(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "dist", "js"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dist", "js", "app.js"), []byte("console.log(1)\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package-lock.json"), []byte("{}\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tree"), []byte("dist/js/app.js\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "merge-base"), []byte("base1"), 0o600))
}

func newCommittedRepo(t *testing.T) (*CacheRepo, plumbing.Hash) {
	t.Helper()
	dir := t.TempDir()
	repo, err := InitCacheRepo(dir)
	require.NoError(t, err)
	writeEntries(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stray.txt"), []byte("not staged"), 0o600))

	hash, err := repo.Commit([]string{"dist", "package-lock.json", "tree", "merge-base"}, "Build for head2", testAuthor, time.Now())
	require.NoError(t, err)
	return repo, hash
}

func TestCacheRepoCommitsOnlyNamedEntries(t *testing.T) {
	repo, hash := newCommittedRepo(t)

	entries, err := repo.TopLevelEntries(hash)
	require.NoError(t, err)
	assert.Equal(t, []string{"dist", "merge-base", "package-lock.json", "tree"}, entries)

	commit, err := repo.repo.CommitObject(hash)
	require.NoError(t, err)
	assert.Equal(t, "Build for head2", commit.Message)
	assert.Equal(t, 0, commit.NumParents())

	f, err := commit.File("merge-base")
	require.NoError(t, err)
	content, err := f.Contents()
	require.NoError(t, err)
	assert.Equal(t, "base1", content)
}

func TestCacheRepoTag(t *testing.T) {
	repo, hash := newCommittedRepo(t)
	require.NoError(t, repo.Tag("sha-head2", hash))

	ref, err := repo.repo.Tag("sha-head2")
	require.NoError(t, err)
	assert.Equal(t, hash, ref.Hash())

	err = repo.Tag("sha-head2", hash)
	require.Error(t, err)
	assert.Equal(t, ferrors.CategoryAlreadyExists, ferrors.GetCategory(err))
}

func newBareRemote(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available for file transport")
	}
	path := filepath.Join(t.TempDir(), "cache.git")
	_, err := git.PlainInit(path, true)
	require.NoError(t, err)
	return path
}

func TestPushTagToEmptyRemote(t *testing.T) {
	remote := newBareRemote(t)
	ctx := context.Background()

	exists, err := RemoteTagExists(ctx, remote, "sha-head2", nil)
	require.NoError(t, err)
	assert.False(t, exists)

	repo, hash := newCommittedRepo(t)
	require.NoError(t, repo.Tag("sha-head2", hash))
	require.NoError(t, repo.PushTag(ctx, remote, "sha-head2", nil))

	exists, err = RemoteTagExists(ctx, remote, "sha-head2", nil)
	require.NoError(t, err)
	assert.True(t, exists)

	bare, err := git.PlainOpen(remote)
	require.NoError(t, err)
	ref, err := bare.Tag("sha-head2")
	require.NoError(t, err)
	assert.Equal(t, hash, ref.Hash())

	refs, err := bare.References()
	require.NoError(t, err)
	var branches int
	require.NoError(t, refs.ForEach(func(r *plumbing.Reference) error {
		if r.Name().IsBranch() {
			branches++
		}
		return nil
	}))
	assert.Zero(t, branches, "only the tag may be pushed")
}

func TestPushTagRefusesExistingTag(t *testing.T) {
	remote := newBareRemote(t)
	ctx := context.Background()

	first, hash := newCommittedRepo(t)
	require.NoError(t, first.Tag("sha-head2", hash))
	require.NoError(t, first.PushTag(ctx, remote, "sha-head2", nil))

	second, hash2 := newCommittedRepo(t)
	require.NoError(t, second.Tag("sha-head2", hash2))
	err := second.PushTag(ctx, remote, "sha-head2", nil)
	require.Error(t, err)
	assert.Equal(t, ferrors.CategoryAlreadyExists, ferrors.GetCategory(err))

	var exists *TagExistsError
	assert.True(t, errors.As(err, &exists))

	bare, err := git.PlainOpen(remote)
	require.NoError(t, err)
	ref, err := bare.Tag("sha-head2")
	require.NoError(t, err)
	assert.Equal(t, hash, ref.Hash(), "remote tag must keep its original target")
}
