// Package handoff passes the build artifact from the build stage to the
// publish stage under a fixed name with a bounded retention window.
package handoff

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// Store keeps hand-off artifacts. Records are immutable: Put on an existing
// key fails. Expired records behave as if they did not exist.
type Store interface {
	// Put stores the content of r under key, retrievable until now+retention.
	Put(ctx context.Context, key string, r io.Reader, retention time.Duration) (Record, error)

	// Get opens the artifact stored under key. The caller must close the reader.
	// Returns ErrNotFound for missing or expired records.
	Get(ctx context.Context, key string) (io.ReadCloser, Record, error)

	// Delete removes a record. Returns ErrNotFound if it doesn't exist.
	Delete(ctx context.Context, key string) error

	// Prune removes records expired at now and reports how many were removed.
	Prune(ctx context.Context, now time.Time) (int, error)

	// Close releases any resources held by the store.
	Close() error
}

// Record describes a stored artifact.
type Record struct {
	Key       string    `json:"key"`
	Size      int64     `json:"size"`
	Digest    string    `json:"digest"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the record is past its retention window at now.
func (r Record) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// Key builds the storage key of an artifact: one namespace per pipeline run.
func Key(runID, name string) (string, error) {
	for _, part := range []string{runID, name} {
		if part == "" || part == "." || part == ".." || strings.ContainsAny(part, "/\\") {
			return "", fmt.Errorf("invalid hand-off key component %q", part)
		}
	}
	return runID + "/" + name, nil
}

func splitKey(key string) (string, string, error) {
	run, name, ok := strings.Cut(key, "/")
	if !ok {
		return "", "", fmt.Errorf("invalid hand-off key %q", key)
	}
	if _, err := Key(run, name); err != nil {
		return "", "", err
	}
	return run, name, nil
}

// ErrNotFound is returned when an artifact doesn't exist or has expired.
type ErrNotFound struct {
	Key     string
	Expired bool
}

func (e ErrNotFound) Error() string {
	if e.Expired {
		return "hand-off artifact expired: " + e.Key
	}
	return "hand-off artifact not found: " + e.Key
}

// IsNotFound returns true if the error is ErrNotFound.
func IsNotFound(err error) bool {
	var nf ErrNotFound
	return stderrors.As(err, &nf)
}

// ErrExists is returned when Put targets a key that is already stored.
type ErrExists struct {
	Key string
}

func (e ErrExists) Error() string {
	return "hand-off artifact already exists: " + e.Key
}
