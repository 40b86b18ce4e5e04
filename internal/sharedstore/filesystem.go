package sharedstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"kaloriq-go/internal/kq"
)

// FileSystemStore keeps one file per key:
//
//	<root>/
//	  <namespace>/
//	    <escaped key>
//
// Writes go to a temp file in the same directory and are renamed into place,
// so a reader sees either the old or the new document, never a mix.
type FileSystemStore struct {
	dir string
}

// NewFileSystemStore creates the namespace directory under root.
func NewFileSystemStore(root, namespace string) (*FileSystemStore, error) {
	if namespace == "" {
		return nil, fmt.Errorf("namespace is required")
	}
	dir := filepath.Join(root, url.PathEscape(namespace))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create namespace directory: %w", err)
	}
	return &FileSystemStore{dir: dir}, nil
}

// Dir returns the namespace directory.
func (s *FileSystemStore) Dir() string { return s.dir }

func (s *FileSystemStore) path(key string) string {
	return filepath.Join(s.dir, url.PathEscape(key))
}

func (s *FileSystemStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("reading %s: %w", key, err)
	}
	return data, true, nil
}

func (s *FileSystemStore) Set(_ context.Context, key string, value []byte) error {
	tmpFile, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(value); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path(key)); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	success = true
	return nil
}

func (s *FileSystemStore) Delete(_ context.Context, key string) error {
	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

func (s *FileSystemStore) Close() error { return nil }

var _ kq.SharedStore = (*FileSystemStore)(nil)
