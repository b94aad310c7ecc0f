package handoff

import (
	"context"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against a live server: DISTCACHE_TEST_NATS_URL=nats://127.0.0.1:4222
func TestNATSStoreRoundTrip(t *testing.T) {
	url := os.Getenv("DISTCACHE_TEST_NATS_URL")
	if url == "" {
		t.Skip("DISTCACHE_TEST_NATS_URL not set")
	}
	ctx := context.Background()
	bucket := "distcache-test-" + uuid.NewString()[:8]

	store, err := NewNATSStore(ctx, url, bucket, time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.js.DeleteObjectStore(context.Background(), bucket)
		_ = store.Close()
	})

	rec, err := store.Put(ctx, "run-1/dist", strings.NewReader("payload"), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(7), rec.Size)
	assert.False(t, rec.ExpiresAt.IsZero())

	_, err = store.Put(ctx, "run-1/dist", strings.NewReader("again"), time.Minute)
	assert.IsType(t, ErrExists{}, err)

	r, _, err := store.Get(ctx, "run-1/dist")
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, "payload", string(data))

	removed, err := store.Prune(ctx, time.Now().Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, _, err = store.Get(ctx, "run-1/dist")
	assert.True(t, IsNotFound(err))
}
