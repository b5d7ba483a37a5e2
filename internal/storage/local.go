package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// LocalStorage keeps a blob in a single file
type LocalStorage struct {
	Path string
}

// NewLocalStorage creates a new local storage instance
func NewLocalStorage(path string) *LocalStorage {
	return &LocalStorage{
		Path: path,
	}
}

// EnsureDir ensures the parent directory exists
func (ls *LocalStorage) EnsureDir() error {
	dir := filepath.Dir(ls.Path)
	return os.MkdirAll(dir, 0700)
}

// Load reads the whole file
func (ls *LocalStorage) Load(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(ls.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read %s: %w", ls.Path, err)
	}
	return data, nil
}

// Save overwrites the file. The data goes to a temp file in the same
// directory first and is renamed into place, so readers see either the old
// or the new content.
func (ls *LocalStorage) Save(_ context.Context, data []byte) error {
	if err := ls.EnsureDir(); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(ls.Path), "."+filepath.Base(ls.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", ls.Path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", ls.Path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", ls.Path, err)
	}
	if err := os.Chmod(tmpPath, 0600); err != nil {
		return fmt.Errorf("failed to set permissions on %s: %w", ls.Path, err)
	}

	if err := os.Rename(tmpPath, ls.Path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", ls.Path, err)
	}
	return nil
}
