package handoff

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/distcache/internal/config"
	"git.home.luguber.info/inful/distcache/internal/foundation/errors"
	"git.home.luguber.info/inful/distcache/internal/logfields"
	"git.home.luguber.info/inful/distcache/internal/observability"
	"git.home.luguber.info/inful/distcache/internal/retry"
)

// Open builds the store selected by the configured backend.
func Open(ctx context.Context, cfg config.HandoffConfig) (Store, error) {
	switch cfg.Backend {
	case config.HandoffNATS:
		s, err := NewNATSStore(ctx, cfg.NATSURL, cfg.Bucket, cfg.RetentionDuration())
		if err != nil {
			return nil, errors.HandoffError("open NATS hand-off store").
				WithCause(err).
				WithContext("url", cfg.NATSURL).
				Retryable().
				Build()
		}
		return s, nil
	case config.HandoffFilesystem, "":
		s, err := NewFSStore(cfg.Directory)
		if err != nil {
			return nil, errors.HandoffError("open filesystem hand-off store").
				WithCause(err).
				WithContext("directory", cfg.Directory).
				Build()
		}
		return s, nil
	default:
		return nil, errors.ConfigError("unsupported hand-off backend").
			WithContext("backend", string(cfg.Backend)).
			Build()
	}
}

// Transfer moves archives between local files and a Store with retry.
type Transfer struct {
	store     Store
	policy    retry.Policy
	retention time.Duration
}

// NewTransfer wraps store with the given retry policy and retention window.
func NewTransfer(store Store, policy retry.Policy, retention time.Duration) *Transfer {
	return &Transfer{store: store, policy: policy, retention: retention}
}

// PutFile uploads the file at path under key.
func (t *Transfer) PutFile(ctx context.Context, key, path string) (Record, error) {
	var rec Record
	err := retry.Do(ctx, t.policy, "handoff put", retryablePut, func(ctx context.Context) error {
		// #nosec G304 - path is the archive copied out of the build environment
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		rec, err = t.store.Put(ctx, key, f, t.retention)
		return err
	})
	if err != nil {
		b := errors.HandoffError("hand off artifact").
			WithCause(err).
			WithContext("key", key).
			WithContext("path", path)
		var exists ErrExists
		if stderrors.As(err, &exists) {
			b = b.WithCategory(errors.CategoryAlreadyExists)
		}
		return Record{}, b.Build()
	}
	observability.InfoContext(ctx, "Artifact handed off", logfields.Artifact(key), logfields.Bytes(rec.Size), slog.String("digest", rec.Digest))
	return rec, nil
}

// GetFile downloads key into the file at path.
func (t *Transfer) GetFile(ctx context.Context, key, path string) (Record, error) {
	var rec Record
	err := retry.Do(ctx, t.policy, "handoff get", retryableGet, func(ctx context.Context) error {
		r, got, err := t.store.Get(ctx, key)
		if err != nil {
			return err
		}
		defer func() { _ = r.Close() }()
		if err := writeFile(path, r); err != nil {
			return err
		}
		rec = got
		return nil
	})
	if err != nil {
		b := errors.HandoffError("receive handed-off artifact").
			WithCause(err).
			WithContext("key", key)
		var nf ErrNotFound
		if stderrors.As(err, &nf) {
			b = b.WithContext("missing", true).WithContext("expired", nf.Expired)
		}
		return Record{}, b.Build()
	}
	observability.InfoContext(ctx, "Artifact received", logfields.Artifact(key), logfields.Bytes(rec.Size))
	return rec, nil
}

func writeFile(path string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	// #nosec G304 - path is inside the staging workspace
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("copy artifact: %w", err)
	}
	return f.Close()
}

func retryablePut(err error) bool {
	var exists ErrExists
	return !stderrors.As(err, &exists) && !stderrors.Is(err, os.ErrNotExist) && !stderrors.Is(err, context.Canceled)
}

func retryableGet(err error) bool {
	return !IsNotFound(err) && !stderrors.Is(err, context.Canceled)
}
