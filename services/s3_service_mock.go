package services

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockObjectStore is an in-memory ObjectStore for tests
type MockObjectStore struct {
	objects    map[string][]byte
	types      map[string]string
	mu         sync.RWMutex
	putError   error
	signError  error
	deletedKey []string
}

// NewMockObjectStore creates an empty mock store
func NewMockObjectStore() *MockObjectStore {
	return &MockObjectStore{
		objects: make(map[string][]byte),
		types:   make(map[string]string),
	}
}

// FailPutsWith makes every PutObject return err
func (m *MockObjectStore) FailPutsWith(err error) {
	m.mu.Lock()
	m.putError = err
	m.mu.Unlock()
}

// FailPresignWith makes every PresignGet return err
func (m *MockObjectStore) FailPresignWith(err error) {
	m.mu.Lock()
	m.signError = err
	m.mu.Unlock()
}

// PutObject stores a copy of body
func (m *MockObjectStore) PutObject(ctx context.Context, key, contentType string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putError != nil {
		return m.putError
	}
	m.objects[key] = append([]byte(nil), body...)
	m.types[key] = contentType
	return nil
}

// PresignGet returns a fake URL for an existing object
func (m *MockObjectStore) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if key == "" {
		return "", nil
	}

	m.mu.RLock()
	_, exists := m.objects[key]
	signErr := m.signError
	m.mu.RUnlock()

	if signErr != nil {
		return "", signErr
	}
	if !exists {
		return "", fmt.Errorf("object not found in mock store: %s", key)
	}
	return fmt.Sprintf("https://test-bucket.s3.ap-northeast-2.amazonaws.com/%s?mock=true&ttl=%d", key, int(ttl.Seconds())), nil
}

// DeleteObject removes key
func (m *MockObjectStore) DeleteObject(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.objects, key)
	delete(m.types, key)
	m.deletedKey = append(m.deletedKey, key)
	m.mu.Unlock()
	return nil
}

// Object returns the stored body and content type of key
func (m *MockObjectStore) Object(key string) ([]byte, string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	body, ok := m.objects[key]
	return body, m.types[key], ok
}

// Deleted lists the keys removed so far, in order
func (m *MockObjectStore) Deleted() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.deletedKey...)
}

// Keys lists every stored key
func (m *MockObjectStore) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	return keys
}
