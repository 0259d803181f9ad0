// Package memory keeps jobs, leads, progress and blobs in process memory for
// development and tests.
package memory

import (
	"context"
	"errors"
	"strings"
	"sync"
)

type blob struct {
	contentType string
	data        []byte
}

// BlobStore holds HTML snapshots in a map. Like the durable stores it never
// overwrites a path: snapshot paths carry the content hash.
type BlobStore struct {
	mu    sync.RWMutex
	blobs map[string]blob
}

// NewBlobStore creates an empty store.
func NewBlobStore() *BlobStore {
	return &BlobStore{blobs: make(map[string]blob)}
}

// PutObject keeps a copy of data under path and returns a memory:// URI.
func (s *BlobStore) PutObject(_ context.Context, path string, contentType string, data []byte) (string, error) {
	path = strings.TrimPrefix(strings.TrimSpace(path), "/")
	if path == "" {
		return "", errors.New("blob path is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.blobs[path]; !exists {
		s.blobs[path] = blob{contentType: contentType, data: append([]byte(nil), data...)}
	}
	return "memory://" + path, nil
}

// Object returns a copy of the bytes stored at path.
func (s *BlobStore) Object(path string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[path]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), b.data...), true
}

// ContentType returns the content type recorded for path.
func (s *BlobStore) ContentType(path string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.blobs[path].contentType
}

// Len reports how many objects are stored.
func (s *BlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
