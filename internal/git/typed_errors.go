package git

import (
	"fmt"
	"strings"
)

// MergeConflictError reports a head revision that cannot be merged onto base automatically.
type MergeConflictError struct {
	Base, Head string
	Paths      []string
	Err        error
}

func (e *MergeConflictError) Error() string {
	if len(e.Paths) == 0 {
		return fmt.Sprintf("merge of %s onto %s failed: %v", e.Head, e.Base, e.Err)
	}
	return fmt.Sprintf("merge of %s onto %s has conflicts in: %s", e.Head, e.Base, strings.Join(e.Paths, ", "))
}
func (e *MergeConflictError) Unwrap() error { return e.Err }

// TagExistsError reports a cache tag that is already present on the remote.
type TagExistsError struct {
	Tag, URL string
	Err      error
}

func (e *TagExistsError) Error() string {
	return fmt.Sprintf("tag %s already exists on %s", e.Tag, e.URL)
}
func (e *TagExistsError) Unwrap() error { return e.Err }

// AuthError reports a remote that rejected the credential.
type AuthError struct {
	Op, URL string
	Err     error
}

func (e *AuthError) Error() string { return fmt.Sprintf("%s auth error for %s: %v", e.Op, e.URL, e.Err) }
func (e *AuthError) Unwrap() error { return e.Err }

// NotFoundError reports a missing repository or revision.
type NotFoundError struct {
	Op, URL string
	Err     error
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s not found %s: %v", e.Op, e.URL, e.Err) }
func (e *NotFoundError) Unwrap() error { return e.Err }
