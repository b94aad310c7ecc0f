package git

import (
	"context"
	stderrors "errors"
	"strings"

	"git.home.luguber.info/inful/distcache/internal/environment"
	"git.home.luguber.info/inful/distcache/internal/logfields"
	"git.home.luguber.info/inful/distcache/internal/observability"
	"git.home.luguber.info/inful/distcache/internal/process"
	"git.home.luguber.info/inful/distcache/internal/revision"
)

// Fetched revisions land under a private namespace so branch names, tags and
// raw SHAs all resolve the same way after the fetch.
const (
	baseRef = "refs/distcache/base"
	headRef = "refs/distcache/head"
)

// Runner executes a command inside the build environment.
type Runner interface {
	Run(ctx context.Context, e environment.Exec) (process.Result, error)
}

// Identity is the committer used for merge commits inside the environment.
type Identity struct {
	Name  string
	Email string
}

// SourceResult describes the prepared checkout.
type SourceResult struct {
	Commit string // resulting HEAD
	Merged bool   // head was merged onto base
}

// PrepareSource materializes base and head in the environment's workdir,
// checks out base and merges head on top when they differ.
func PrepareSource(ctx context.Context, env Runner, url string, pair revision.Pair, id Identity) (SourceResult, error) {
	gitEnv := map[string]string{
		"GIT_TERMINAL_PROMPT": "0",
		"GIT_AUTHOR_NAME":     id.Name,
		"GIT_AUTHOR_EMAIL":    id.Email,
		"GIT_COMMITTER_NAME":  id.Name,
		"GIT_COMMITTER_EMAIL": id.Email,
	}
	run := func(args ...string) (process.Result, error) {
		return env.Run(ctx, environment.Exec{Args: append([]string{"git"}, args...), Env: gitEnv})
	}

	if _, err := run("init", "--quiet", "."); err != nil {
		return SourceResult{}, ClassifyGitError(err, "init", url)
	}
	if _, err := run("remote", "add", "origin", url); err != nil {
		return SourceResult{}, ClassifyGitError(err, "remote add", url)
	}

	refspecs := []string{"+" + string(pair.Base) + ":" + baseRef}
	if pair.IsMerge() {
		refspecs = append(refspecs, "+"+string(pair.Head)+":"+headRef)
	}
	if _, err := run(append([]string{"fetch", "--no-tags", "--quiet", "origin"}, refspecs...)...); err != nil {
		return SourceResult{}, ClassifyGitError(err, "fetch", url)
	}
	observability.InfoContext(ctx, "Fetched revisions", logfields.Base(pair.Base.String()), logfields.Head(pair.Head.String()))

	if _, err := run("checkout", "--quiet", "--detach", baseRef); err != nil {
		return SourceResult{}, ClassifyGitError(err, "checkout", url)
	}

	result := SourceResult{}
	if pair.IsMerge() {
		if _, err := run("merge", "--no-edit", "--quiet", headRef); err != nil {
			return SourceResult{}, ClassifyGitError(mergeFailure(ctx, run, pair, err), "merge", url)
		}
		result.Merged = true
		observability.InfoContext(ctx, "Merged head onto base", logfields.Base(pair.Base.String()), logfields.Head(pair.Head.String()))
	}

	res, err := run("rev-parse", "HEAD")
	if err != nil {
		return SourceResult{}, ClassifyGitError(err, "rev-parse", url)
	}
	result.Commit = strings.TrimSpace(string(res.Stdout))
	return result, nil
}

// mergeFailure turns a failed merge into a MergeConflictError listing unmerged paths.
func mergeFailure(ctx context.Context, run func(...string) (process.Result, error), pair revision.Pair, mergeErr error) error {
	var exitErr *process.ExitError
	if !stderrors.As(mergeErr, &exitErr) || ctx.Err() != nil {
		return mergeErr
	}
	conflict := &MergeConflictError{Base: pair.Base.String(), Head: pair.Head.String(), Err: mergeErr}
	res, err := run("diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return conflict
	}
	for _, line := range strings.Split(string(res.Stdout), "\n") {
		if p := strings.TrimSpace(line); p != "" {
			conflict.Paths = append(conflict.Paths, p)
		}
	}
	return conflict
}
