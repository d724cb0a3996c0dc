// Package cursor persists resume cursors between migration runs.
package cursor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/BartekS5/blobmigrate/internal/etl"
)

var _ etl.CursorStore = (*FileStore)(nil)

// FileStore keeps one cursor per entity type in a YAML file:
//
//	Account: 1520
//	Contract: 88
type FileStore struct {
	mu   sync.Mutex
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) read() (map[string]int64, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]int64{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("reading cursor file: %w", err)
	}
	cursors := map[string]int64{}
	if err := yaml.Unmarshal(data, &cursors); err != nil {
		return nil, fmt.Errorf("parsing cursor file %s: %w", s.path, err)
	}
	return cursors, nil
}

func (s *FileStore) Load(_ context.Context, entityType string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cursors, err := s.read()
	if err != nil {
		return 0, false, err
	}
	c, ok := cursors[entityType]
	return c, ok, nil
}

// All returns every stored cursor.
func (s *FileStore) All(_ context.Context) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// Save replaces the file atomically via a temp file in the same directory.
func (s *FileStore) Save(_ context.Context, entityType string, cursor int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cursors, err := s.read()
	if err != nil {
		return err
	}
	cursors[entityType] = cursor

	data, err := yaml.Marshal(cursors)
	if err != nil {
		return fmt.Errorf("encoding cursors: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".cursor-*")
	if err != nil {
		return fmt.Errorf("creating temp cursor file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing cursor file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing cursor file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replacing cursor file: %w", err)
	}
	return nil
}
