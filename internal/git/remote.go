package git

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/storage/memory"

	"git.home.luguber.info/inful/distcache/internal/logfields"
	"git.home.luguber.info/inful/distcache/internal/observability"
)

const cacheRemoteName = "cache"

// RemoteTagExists reports whether refs/tags/<tag> is already on the remote.
// An empty remote repository has no tags.
func RemoteTagExists(ctx context.Context, url, tag string, auth transport.AuthMethod) (bool, error) {
	remote := git.NewRemote(memory.NewStorage(), &config.RemoteConfig{
		Name: cacheRemoteName,
		URLs: []string{url},
	})

	refs, err := remote.ListContext(ctx, &git.ListOptions{Auth: auth})
	if err != nil {
		if stderrors.Is(err, transport.ErrEmptyRemoteRepository) {
			return false, nil
		}
		if stderrors.Is(err, transport.ErrAuthenticationRequired) || stderrors.Is(err, transport.ErrAuthorizationFailed) {
			err = &AuthError{Op: "ls-remote", URL: url, Err: err}
		}
		return false, ClassifyGitError(err, "ls-remote", url)
	}

	want := plumbing.NewTagReferenceName(tag)
	for _, ref := range refs {
		if ref.Name() == want {
			return true, nil
		}
	}
	return false, nil
}

// PushTag pushes only refs/tags/<tag>, never forcing. An existing remote tag
// is reported as TagExistsError.
func (c *CacheRepo) PushTag(ctx context.Context, url, tag string, auth transport.AuthMethod) error {
	if _, err := c.repo.Remote(cacheRemoteName); stderrors.Is(err, git.ErrRemoteNotFound) {
		if _, err := c.repo.CreateRemote(&config.RemoteConfig{Name: cacheRemoteName, URLs: []string{url}}); err != nil {
			return ClassifyGitError(err, "remote add", url)
		}
	}

	ref := plumbing.NewTagReferenceName(tag).String()
	spec := config.RefSpec(fmt.Sprintf("%s:%s", ref, ref))
	err := c.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: cacheRemoteName,
		RefSpecs:   []config.RefSpec{spec},
		Auth:       auth,
	})
	switch {
	case err == nil:
		observability.InfoContext(ctx, "Pushed cache tag", logfields.Tag(tag), logfields.URL(url))
		return nil
	case stderrors.Is(err, git.NoErrAlreadyUpToDate):
		return ClassifyGitError(&TagExistsError{Tag: tag, URL: url, Err: err}, "push", url)
	case isRejectedExisting(err):
		return ClassifyGitError(&TagExistsError{Tag: tag, URL: url, Err: err}, "push", url)
	case stderrors.Is(err, transport.ErrAuthenticationRequired) || stderrors.Is(err, transport.ErrAuthorizationFailed):
		return ClassifyGitError(&AuthError{Op: "push", URL: url, Err: err}, "push", url)
	default:
		return ClassifyGitError(err, "push", url)
	}
}

func isRejectedExisting(err error) bool {
	l := strings.ToLower(err.Error())
	return strings.Contains(l, "already exists") || strings.Contains(l, "non-fast-forward")
}
