package handoff

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	metaCreatedAt = "created_at"
	metaExpiresAt = "expires_at"
)

// NATSStore keeps hand-off artifacts in a JetStream object store bucket.
// The bucket TTL bounds retention server-side; each object also carries
// its own expiry so shorter windows are honored on read.
type NATSStore struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	obs    jetstream.ObjectStore
	bucket string
	now    func() time.Time
}

// NewNATSStore connects to NATS and opens (or creates) the bucket.
func NewNATSStore(ctx context.Context, url, bucket string, retention time.Duration) (*NATSStore, error) {
	if url == "" {
		return nil, fmt.Errorf("nats url is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("nats bucket is required")
	}

	conn, err := nats.Connect(url, nats.Name("distcache"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	s := &NATSStore{conn: conn, js: js, bucket: bucket, now: time.Now}
	if err := s.initBucket(ctx, retention); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize object bucket: %w", err)
	}

	slog.Info("NATS hand-off store initialized", "url", url, "bucket", bucket)
	return s, nil
}

func (s *NATSStore) initBucket(ctx context.Context, retention time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	obs, err := s.js.ObjectStore(ctx, s.bucket)
	if err == nil {
		s.obs = obs
		return nil
	}
	if !stderrors.Is(err, jetstream.ErrBucketNotFound) {
		return err
	}

	obs, err = s.js.CreateObjectStore(ctx, jetstream.ObjectStoreConfig{
		Bucket:      s.bucket,
		Description: "distcache build artifact hand-off",
		TTL:         retention,
	})
	if err != nil {
		return fmt.Errorf("failed to create object bucket: %w", err)
	}
	s.obs = obs
	slog.Info("Created object bucket for hand-off", "bucket", s.bucket, "ttl", retention)
	return nil
}

// Put uploads the artifact. JetStream computes and verifies the digest.
func (s *NATSStore) Put(ctx context.Context, key string, r io.Reader, retention time.Duration) (Record, error) {
	if _, _, err := splitKey(key); err != nil {
		return Record{}, err
	}

	if _, err := s.obs.GetInfo(ctx, key); err == nil {
		return Record{}, ErrExists{Key: key}
	} else if !stderrors.Is(err, jetstream.ErrObjectNotFound) {
		return Record{}, fmt.Errorf("check object %s: %w", key, err)
	}

	now := s.now().UTC()
	meta := jetstream.ObjectMeta{
		Name:     key,
		Metadata: map[string]string{metaCreatedAt: now.Format(time.RFC3339Nano)},
	}
	if retention > 0 {
		meta.Metadata[metaExpiresAt] = now.Add(retention).Format(time.RFC3339Nano)
	}

	info, err := s.obs.Put(ctx, meta, r)
	if err != nil {
		return Record{}, fmt.Errorf("put object %s: %w", key, err)
	}
	return recordFromInfo(info), nil
}

// Get opens a stored artifact.
func (s *NATSStore) Get(ctx context.Context, key string) (io.ReadCloser, Record, error) {
	info, err := s.obs.GetInfo(ctx, key)
	if err != nil {
		if stderrors.Is(err, jetstream.ErrObjectNotFound) {
			return nil, Record{}, ErrNotFound{Key: key}
		}
		return nil, Record{}, fmt.Errorf("get object info %s: %w", key, err)
	}
	rec := recordFromInfo(info)
	if rec.Expired(s.now()) {
		return nil, Record{}, ErrNotFound{Key: key, Expired: true}
	}

	res, err := s.obs.Get(ctx, key)
	if err != nil {
		if stderrors.Is(err, jetstream.ErrObjectNotFound) {
			return nil, Record{}, ErrNotFound{Key: key}
		}
		return nil, Record{}, fmt.Errorf("get object %s: %w", key, err)
	}
	return res, rec, nil
}

// Delete removes an artifact.
func (s *NATSStore) Delete(ctx context.Context, key string) error {
	if err := s.obs.Delete(ctx, key); err != nil {
		if stderrors.Is(err, jetstream.ErrObjectNotFound) {
			return ErrNotFound{Key: key}
		}
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

// Prune deletes objects whose own expiry has passed.
func (s *NATSStore) Prune(ctx context.Context, now time.Time) (int, error) {
	infos, err := s.obs.List(ctx)
	if err != nil {
		if stderrors.Is(err, jetstream.ErrNoObjectsFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("list objects: %w", err)
	}

	removed := 0
	for _, info := range infos {
		if info.Deleted || !recordFromInfo(info).Expired(now) {
			continue
		}
		if err := s.obs.Delete(ctx, info.Name); err != nil && !stderrors.Is(err, jetstream.ErrObjectNotFound) {
			return removed, fmt.Errorf("delete object %s: %w", info.Name, err)
		}
		removed++
	}
	return removed, nil
}

// Close drains the NATS connection.
func (s *NATSStore) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Drain()
}

func recordFromInfo(info *jetstream.ObjectInfo) Record {
	rec := Record{
		Key:       info.Name,
		Size:      int64(info.Size), // #nosec G115 - object sizes fit in int64
		Digest:    info.Digest,
		CreatedAt: info.ModTime,
	}
	if v, ok := info.Metadata[metaCreatedAt]; ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			rec.CreatedAt = t
		}
	}
	if v, ok := info.Metadata[metaExpiresAt]; ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			rec.ExpiresAt = t
		}
	}
	return rec
}
