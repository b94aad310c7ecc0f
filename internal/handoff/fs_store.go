package handoff

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FSStore is a filesystem-based implementation of Store:
//
//	<base>/
//	  objects/
//	    <run-id>/
//	      <name>            artifact bytes
//	      <name>.meta.json  Record
type FSStore struct {
	basePath string
	mu       sync.RWMutex
	now      func() time.Time
}

// NewFSStore creates a new filesystem-based hand-off store.
func NewFSStore(basePath string) (*FSStore, error) {
	dir := filepath.Join(basePath, "objects")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", dir, err)
	}
	return &FSStore{basePath: basePath, now: time.Now}, nil
}

// Put streams r into the store, recording its size and sha256 digest.
func (fs *FSStore) Put(ctx context.Context, key string, r io.Reader, retention time.Duration) (Record, error) {
	run, name, err := splitKey(key)
	if err != nil {
		return Record{}, err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	objectPath := fs.objectPath(run, name)
	if _, err := os.Stat(objectPath); err == nil {
		return Record{}, ErrExists{Key: key}
	}
	if err := os.MkdirAll(filepath.Dir(objectPath), 0o750); err != nil {
		return Record{}, fmt.Errorf("create object directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(objectPath), "."+name+".tmp-*")
	if err != nil {
		return Record{}, fmt.Errorf("create temp object: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	h := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, h), readerWithContext(ctx, r))
	if err != nil {
		_ = tmp.Close()
		return Record{}, fmt.Errorf("write object: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return Record{}, fmt.Errorf("sync object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return Record{}, fmt.Errorf("close object: %w", err)
	}

	now := fs.now()
	rec := Record{
		Key:       key,
		Size:      size,
		Digest:    "sha256:" + hex.EncodeToString(h.Sum(nil)),
		CreatedAt: now,
	}
	if retention > 0 {
		rec.ExpiresAt = now.Add(retention)
	}

	if err := fs.writeMetadata(run, name, rec); err != nil {
		return Record{}, err
	}
	if err := os.Rename(tmp.Name(), objectPath); err != nil {
		_ = os.Remove(fs.metadataPath(run, name))
		return Record{}, fmt.Errorf("commit object: %w", err)
	}
	return rec, nil
}

// Get opens the artifact. The returned reader fails at EOF if the content
// does not match the recorded digest.
func (fs *FSStore) Get(_ context.Context, key string) (io.ReadCloser, Record, error) {
	run, name, err := splitKey(key)
	if err != nil {
		return nil, Record{}, err
	}

	fs.mu.RLock()
	defer fs.mu.RUnlock()

	rec, err := fs.readMetadata(run, name)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, Record{}, ErrNotFound{Key: key}
		}
		return nil, Record{}, err
	}
	if rec.Expired(fs.now()) {
		return nil, Record{}, ErrNotFound{Key: key, Expired: true}
	}

	// #nosec G304 - objectPath is internal, constructed from a validated key
	f, err := os.Open(fs.objectPath(run, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, Record{}, ErrNotFound{Key: key}
		}
		return nil, Record{}, fmt.Errorf("open object: %w", err)
	}
	return &verifyingReader{f: f, h: sha256.New(), want: rec.Digest, key: key}, rec, nil
}

// Delete removes an artifact and its metadata.
func (fs *FSStore) Delete(_ context.Context, key string) error {
	run, name, err := splitKey(key)
	if err != nil {
		return err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.deleteUnlocked(run, name)
}

// Prune removes every expired record.
func (fs *FSStore) Prune(ctx context.Context, now time.Time) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	objectsDir := filepath.Join(fs.basePath, "objects")
	runs, err := os.ReadDir(objectsDir)
	if err != nil {
		return 0, fmt.Errorf("list runs: %w", err)
	}

	removed := 0
	for _, run := range runs {
		if !run.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		entries, err := os.ReadDir(filepath.Join(objectsDir, run.Name()))
		if err != nil {
			return removed, fmt.Errorf("list run %s: %w", run.Name(), err)
		}
		for _, e := range entries {
			name, ok := strings.CutSuffix(e.Name(), ".meta.json")
			if !ok {
				continue
			}
			rec, err := fs.readMetadata(run.Name(), name)
			if err != nil || !rec.Expired(now) {
				continue
			}
			if err := fs.deleteUnlocked(run.Name(), name); err != nil && !IsNotFound(err) {
				return removed, fmt.Errorf("delete %s: %w", rec.Key, err)
			}
			removed++
		}
	}
	return removed, nil
}

// Close releases resources.
func (fs *FSStore) Close() error {
	return nil
}

func (fs *FSStore) deleteUnlocked(run, name string) error {
	if err := os.Remove(fs.objectPath(run, name)); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound{Key: run + "/" + name}
		}
		return fmt.Errorf("delete object: %w", err)
	}
	_ = os.Remove(fs.metadataPath(run, name))
	// Best effort: drop the run directory once empty
	_ = os.Remove(filepath.Join(fs.basePath, "objects", run))
	return nil
}

func (fs *FSStore) objectPath(run, name string) string {
	return filepath.Join(fs.basePath, "objects", run, name)
}

func (fs *FSStore) metadataPath(run, name string) string {
	return fs.objectPath(run, name) + ".meta.json"
}

func (fs *FSStore) readMetadata(run, name string) (Record, error) {
	// #nosec G304 - metadataPath is internal, constructed from a validated key
	data, err := os.ReadFile(fs.metadataPath(run, name))
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return rec, nil
}

func (fs *FSStore) writeMetadata(run, name string, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if err := os.WriteFile(fs.metadataPath(run, name), data, 0o600); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

type verifyingReader struct {
	f    *os.File
	h    hash.Hash
	want string
	key  string
}

func (v *verifyingReader) Read(p []byte) (int, error) {
	n, err := v.f.Read(p)
	v.h.Write(p[:n])
	if err == io.EOF {
		if got := "sha256:" + hex.EncodeToString(v.h.Sum(nil)); got != v.want {
			return n, fmt.Errorf("hand-off artifact %s is corrupt: digest %s, want %s", v.key, got, v.want)
		}
	}
	return n, err
}

func (v *verifyingReader) Close() error { return v.f.Close() }

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
