package preflight

import (
	"fmt"
	"os"
	"path/filepath"
)

// Storage holds converted files until they have been uploaded.
type Storage interface {
	// Save writes data under name and returns the absolute path of the stored file
	Save(name string, data []byte) (string, error)

	// Delete removes a stored file by the path Save returned
	Delete(path string) error
}

// LocalStorage implements Storage in a directory on the local filesystem
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates the staging directory if needed.
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating staging directory: %w", err)
	}
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolving staging directory: %w", err)
	}
	return &LocalStorage{basePath: abs}, nil
}

// Save writes a file into the staging directory
func (l *LocalStorage) Save(name string, data []byte) (string, error) {
	path := filepath.Join(l.basePath, filepath.Base(name))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	return path, nil
}

// Delete removes a staged file
func (l *LocalStorage) Delete(path string) error {
	if filepath.Dir(path) != l.basePath {
		return fmt.Errorf("deleting file: %s is outside the staging directory", path)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("deleting file: %w", err)
	}
	return nil
}
