package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalStorage persists uploaded blobs on disk under a base directory.
// The store is append-only: files are created exclusively and there is no
// overwrite path, so a stored reference never changes content.
type LocalStorage struct {
	baseDir string
}

// NewLocalStorage ensures the base directory exists and returns a handle.
func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = "./uploads"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads directory: %w", err)
	}
	return &LocalStorage{baseDir: baseDir}, nil
}

// Save writes the given bytes to the provided relative path under the base
// dir. The target must not exist yet.
func (s *LocalStorage) Save(filename string, data []byte) (string, error) {
	file, path, err := s.create(filename)
	if err != nil {
		return "", err
	}
	defer file.Close() //nolint:errcheck
	if _, err := file.Write(data); err != nil {
		return "", fmt.Errorf("write upload file %s: %w", path, err)
	}
	return filename, nil
}

// SaveStream copies from reader into a newly created file.
func (s *LocalStorage) SaveStream(filename string, r io.Reader) (string, error) {
	file, path, err := s.create(filename)
	if err != nil {
		return "", err
	}
	defer file.Close() //nolint:errcheck
	if _, err := io.Copy(file, r); err != nil {
		return "", fmt.Errorf("write upload stream %s: %w", path, err)
	}
	return filename, nil
}

// Open returns a read-only handle for the stored file.
func (s *LocalStorage) Open(filename string) (*os.File, error) {
	path := s.resolve(filename)
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open upload file: %w", err)
	}
	return file, nil
}

// Path exposes the underlying absolute path (useful for debugging).
func (s *LocalStorage) Path(filename string) string {
	return s.resolve(filename)
}

func (s *LocalStorage) create(filename string) (*os.File, string, error) {
	path := s.resolve(filename)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, "", fmt.Errorf("prepare upload directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, "", fmt.Errorf("create upload file %s: %w", path, err)
	}
	return file, path, nil
}

func (s *LocalStorage) resolve(filename string) string {
	if filepath.IsAbs(filename) {
		return filename
	}
	return filepath.Join(s.baseDir, filename)
}
