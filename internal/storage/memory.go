package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps objects in process memory. It backs local development
// when no bucket is configured, and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

type memoryObject struct {
	contentType string
	data        []byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memoryObject)}
}

func (s *MemoryStore) Upload(ctx context.Context, objectName, contentType string, r io.Reader) (int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, fmt.Errorf("Upload: read body: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[objectName] = memoryObject{contentType: contentType, data: data}
	return int64(len(data)), nil
}

func (s *MemoryStore) Download(ctx context.Context, objectName string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[objectName]
	if !ok {
		return nil, fmt.Errorf("Download %s: %w", objectName, ErrObjectNotFound)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (s *MemoryStore) Delete(ctx context.Context, objectName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, objectName)
	return nil
}

func (s *MemoryStore) List(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var names []string
	for name := range s.objects {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// SignedURL has nothing to sign in memory; it returns a memory:// locator.
func (s *MemoryStore) SignedURL(ctx context.Context, objectName string, ttl time.Duration) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.objects[objectName]; !ok {
		return "", fmt.Errorf("SignedURL %s: %w", objectName, ErrObjectNotFound)
	}
	return "memory://" + url.PathEscape(objectName), nil
}

var _ ObjectStore = (*MemoryStore)(nil)
