// Package store provides durable storage for controller state as small JSON
// documents. The real implementation writes files in a data directory; the
// memory implementation backs tests.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrNotFound is returned by Load when no document exists under the key.
var ErrNotFound = errors.New("store: document not found")

// Store persists named JSON documents.
type Store interface {
	// Load decodes the document stored under key into v.
	// Returns ErrNotFound if the document does not exist.
	Load(key string, v any) error

	// Save encodes v and writes it under key, replacing any previous value.
	Save(key string, v any) error
}

// FileStore keeps each document as <dir>/<key>.json. Writes go through a
// temporary file and rename so a crash mid-write cannot corrupt a document.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates the data directory if needed and returns a FileStore.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

// Load decodes the document stored under key into v.
func (s *FileStore) Load(key string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("read %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// Save writes v under key atomically.
func (s *FileStore) Save(key string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	tmp := s.path(key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := os.Rename(tmp, s.path(key)); err != nil {
		return fmt.Errorf("rename %s: %w", key, err)
	}
	return nil
}

// MemStore is an in-memory Store for tests.
type MemStore struct {
	mu   sync.Mutex
	docs map[string][]byte

	// SaveError, if set, is returned by Save.
	SaveError error

	// Saves counts successful Save calls per key.
	Saves map[string]int
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		docs:  make(map[string][]byte),
		Saves: make(map[string]int),
	}
}

// Load decodes the stored document into v.
func (m *MemStore) Load(key string, v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.docs[key]
	if !ok {
		return ErrNotFound
	}
	return json.Unmarshal(data, v)
}

// Save stores the encoded document.
func (m *MemStore) Save(key string, v any) error {
	if m.SaveError != nil {
		return m.SaveError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.docs[key] = data
	m.Saves[key]++
	return nil
}
