// Package memstorage keeps blobs in process memory
package memstorage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
)

var ErrNotFound = errors.New("blob not found")

type blob struct {
	data        []byte
	contentType string
}

type MemStorage struct {
	mu    sync.RWMutex
	blobs map[string]blob
}

func New() *MemStorage {
	return &MemStorage{blobs: make(map[string]blob)}
}

func (s *MemStorage) Put(ctx context.Context, key string, size int64, contentType string, r io.Reader) error {
	if r == nil {
		return errors.New("nil reader passed to storage.Put")
	}
	buf := bytes.NewBuffer(make([]byte, 0, max(size, 0)))
	if _, err := io.Copy(buf, r); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = blob{data: buf.Bytes(), contentType: contentType}
	return nil
}

func (s *MemStorage) Get(ctx context.Context, key string) (io.ReadCloser, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[key]
	if !ok {
		return nil, "", ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b.data)), b.contentType, nil
}

func (s *MemStorage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, key)
	return nil
}

// Len returns the number of stored blobs.
func (s *MemStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
