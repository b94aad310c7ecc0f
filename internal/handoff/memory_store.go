package handoff

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of Store for testing.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	calls   MemoryCalls
	now     func() time.Time
}

// MemoryCalls tracks method invocations for test verification.
type MemoryCalls struct {
	Put    int
	Get    int
	Delete int
	Prune  int
}

type memoryObject struct {
	record Record
	data   []byte
}

// NewMemoryStore creates a new in-memory hand-off store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memoryObject), now: time.Now}
}

// SetClock overrides the store clock.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Put stores a copy of the content of r.
func (m *MemoryStore) Put(ctx context.Context, key string, r io.Reader, retention time.Duration) (Record, error) {
	if _, _, err := splitKey(key); err != nil {
		return Record{}, err
	}
	data, err := io.ReadAll(readerWithContext(ctx, r))
	if err != nil {
		return Record{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls.Put++

	if _, ok := m.objects[key]; ok {
		return Record{}, ErrExists{Key: key}
	}

	sum := sha256.Sum256(data)
	now := m.now()
	rec := Record{
		Key:       key,
		Size:      int64(len(data)),
		Digest:    "sha256:" + hex.EncodeToString(sum[:]),
		CreatedAt: now,
	}
	if retention > 0 {
		rec.ExpiresAt = now.Add(retention)
	}
	m.objects[key] = memoryObject{record: rec, data: data}
	return rec, nil
}

// Get returns a reader over a stored artifact.
func (m *MemoryStore) Get(_ context.Context, key string) (io.ReadCloser, Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls.Get++

	obj, ok := m.objects[key]
	if !ok {
		return nil, Record{}, ErrNotFound{Key: key}
	}
	if obj.record.Expired(m.now()) {
		return nil, Record{}, ErrNotFound{Key: key, Expired: true}
	}
	return io.NopCloser(bytes.NewReader(obj.data)), obj.record, nil
}

// Delete removes an artifact.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls.Delete++

	if _, ok := m.objects[key]; !ok {
		return ErrNotFound{Key: key}
	}
	delete(m.objects, key)
	return nil
}

// Prune removes every record expired at now.
func (m *MemoryStore) Prune(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls.Prune++

	removed := 0
	for key, obj := range m.objects {
		if obj.record.Expired(now) {
			delete(m.objects, key)
			removed++
		}
	}
	return removed, nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error {
	return nil
}

// Calls returns the method invocation counts.
func (m *MemoryStore) Calls() MemoryCalls {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls
}

// Len returns the number of stored artifacts, expired ones included.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
