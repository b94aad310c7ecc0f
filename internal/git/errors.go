package git

import (
	stderrors "errors"
	"strings"

	"git.home.luguber.info/inful/distcache/internal/foundation/errors"
)

// ClassifyGitError translates go-git or command-line git errors into ClassifiedErrors.
func ClassifyGitError(err error, op string, url string) error {
	if err == nil {
		return nil
	}

	if _, ok := errors.AsClassified(err); ok {
		return err
	}

	builder := errors.GitError("git "+op+" failed").
		WithCause(err).
		WithContext("op", op).
		WithContext("url", url)

	var (
		conflict *MergeConflictError
		exists   *TagExistsError
		authErr  *AuthError
		notFound *NotFoundError
	)
	switch {
	case stderrors.As(err, &conflict):
		return builder.WithCategory(errors.CategoryMerge).Fatal().UserAction().
			WithContext("conflicts", conflict.Paths).
			Build()
	case stderrors.As(err, &exists):
		return builder.WithCategory(errors.CategoryAlreadyExists).Fatal().
			WithContext("tag", exists.Tag).
			Build()
	case stderrors.As(err, &authErr):
		return builder.WithCategory(errors.CategoryAuth).UserAction().Build()
	case stderrors.As(err, &notFound):
		return builder.WithCategory(errors.CategoryNotFound).Build()
	}

	l := strings.ToLower(err.Error())
	switch {
	case strings.Contains(l, "authentication failed") || strings.Contains(l, "authentication required") ||
		strings.Contains(l, "not authorized") || strings.Contains(l, "could not read username") ||
		strings.Contains(l, "invalid credentials") || strings.Contains(l, "permission denied (publickey") ||
		strings.Contains(l, "unable to authenticate"):
		builder.WithCategory(errors.CategoryAuth).UserAction()
	case strings.Contains(l, "couldn't find remote ref") || strings.Contains(l, "repository not found") ||
		strings.Contains(l, "does not exist") || strings.Contains(l, "not our ref"):
		builder.WithCategory(errors.CategoryNotFound)
	case strings.Contains(l, "remote hung up") || strings.Contains(l, "connection reset") ||
		strings.Contains(l, "connection refused") || strings.Contains(l, "timeout") ||
		strings.Contains(l, "no route to host") || strings.Contains(l, "could not resolve host"):
		builder.WithCategory(errors.CategoryNetwork).Retryable()
	case strings.Contains(l, "rate limit") || strings.Contains(l, "too many requests"):
		builder.WithCategory(errors.CategoryNetwork).RateLimit()
	case strings.Contains(l, "unsupported protocol") || strings.Contains(l, "protocol not supported"):
		builder.WithCategory(errors.CategoryConfig)
	}

	return builder.Build()
}

// IsTransient reports whether a classified git error is worth retrying.
func IsTransient(err error) bool {
	return errors.IsRetryable(err)
}
