// Package git holds the two kinds of repository work the pipeline does.
//
// Source preparation runs the git CLI inside the build environment: it
// fetches the base and head revisions, checks out base and merges head on
// top, and reports conflicts as MergeConflictError.
//
// Cache publication uses go-git on the host: it initializes a fresh
// repository, commits the staged artifact entries, creates the head tag and
// pushes only that tag, refusing to replace a tag that already exists.
package git
