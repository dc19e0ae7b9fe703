package objectstore

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-process Store, used by the CLI dry-run mode and tests.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

func memoryKey(bucket, key string) string { return bucket + "/" + key }

func (m *MemoryStore) Get(_ context.Context, bucket, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[memoryKey(bucket, key)]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", bucket, key, ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryStore) Copy(_ context.Context, bucket, sourceKey, destKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[memoryKey(bucket, sourceKey)]
	if !ok {
		return fmt.Errorf("%s/%s: %w", bucket, sourceKey, ErrNotFound)
	}
	m.objects[memoryKey(bucket, destKey)] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryStore) Put(_ context.Context, bucket, key string, data []byte, _ string, ifAbsent bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := memoryKey(bucket, key)
	if _, exists := m.objects[k]; exists && ifAbsent {
		return nil
	}
	m.objects[k] = append([]byte(nil), data...)
	return nil
}

// Keys lists stored keys of bucket, for assertions.
func (m *MemoryStore) Keys(bucket string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	prefix := bucket + "/"
	for k := range m.objects {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			keys = append(keys, k[len(prefix):])
		}
	}
	return keys
}
