package git

import (
	stderrors "errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"git.home.luguber.info/inful/distcache/internal/foundation/errors"
)

// Signature identifies the author of cache commits.
type Signature struct {
	Name  string
	Email string
}

// CacheRepo is a freshly initialized local repository holding one cache commit.
type CacheRepo struct {
	path string
	repo *git.Repository
}

// InitCacheRepo initializes a new, empty repository at path. It never clones:
// cache history is rebuilt from the artifact on every run.
func InitCacheRepo(path string) (*CacheRepo, error) {
	repo, err := git.PlainInit(path, false)
	if err != nil {
		return nil, errors.StagingError("failed to initialize cache repository").
			WithCause(err).
			WithContext("path", path).
			Build()
	}
	return &CacheRepo{path: path, repo: repo}, nil
}

// Path returns the worktree path.
func (c *CacheRepo) Path() string { return c.path }

// Commit stages exactly the given top-level entries and commits them.
func (c *CacheRepo) Commit(entries []string, message string, author Signature, when time.Time) (plumbing.Hash, error) {
	wt, err := c.repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, errors.StagingError("failed to open cache worktree").WithCause(err).Build()
	}
	for _, entry := range entries {
		if err := wt.AddWithOptions(&git.AddOptions{Path: entry}); err != nil {
			return plumbing.ZeroHash, errors.StagingError("failed to stage cache entry").
				WithCause(err).
				WithContext("entry", entry).
				Build()
		}
	}
	hash, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{Name: author.Name, Email: author.Email, When: when},
	})
	if err != nil {
		return plumbing.ZeroHash, errors.StagingError("failed to commit cache entries").WithCause(err).Build()
	}
	return hash, nil
}

// Tag creates a lightweight tag pointing at hash.
func (c *CacheRepo) Tag(name string, hash plumbing.Hash) error {
	if _, err := c.repo.CreateTag(name, hash, nil); err != nil {
		if stderrors.Is(err, git.ErrTagExists) {
			return ClassifyGitError(&TagExistsError{Tag: name, URL: c.path, Err: err}, "tag", c.path)
		}
		return errors.StagingError("failed to create cache tag").
			WithCause(err).
			WithContext("tag", name).
			Build()
	}
	return nil
}

// TopLevelEntries lists the names at the root of the commit's tree.
func (c *CacheRepo) TopLevelEntries(hash plumbing.Hash) ([]string, error) {
	commit, err := c.repo.CommitObject(hash)
	if err != nil {
		return nil, fmt.Errorf("load commit %s: %w", hash, err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("load tree of %s: %w", hash, err)
	}
	names := make([]string, 0, len(tree.Entries))
	for _, e := range tree.Entries {
		names = append(names, e.Name)
	}
	sort.Strings(names)
	return names, nil
}
