package images

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// FileStore is the filesystem surface the core depends on.
// Implementations return *StoreError for every failure.
type FileStore interface {
	// Exists reports whether path exists. A missing path is (false, nil).
	Exists(path string) (bool, error)
	IsDir(path string) (bool, error)
	MkdirAll(path string) error
	// RemoveAll removes a directory and everything below it.
	RemoveAll(path string) error
	Remove(path string) error
	// Glob lists entries of dir matching a filepath.Match pattern.
	Glob(dir, pattern string) ([]string, error)
	Open(path string) (io.ReadCloser, error)
	// WriteAtomic streams write into a temporary file next to path and
	// renames it into place, so readers never observe a partial file.
	WriteAtomic(path string, write func(w io.Writer) error) error
}

// LocalStore implements FileStore on the host filesystem.
type LocalStore struct {
	DirMode  fs.FileMode
	FileMode fs.FileMode
}

// NewLocalStore returns a LocalStore with 0755 directories and 0644 files.
func NewLocalStore() *LocalStore {
	return &LocalStore{DirMode: 0755, FileMode: 0644}
}

func (s *LocalStore) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, &StoreError{Op: "stat", Path: path, Err: err}
}

func (s *LocalStore) IsDir(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, &StoreError{Op: "stat", Path: path, Err: err}
	}
	return info.IsDir(), nil
}

func (s *LocalStore) MkdirAll(path string) error {
	if err := os.MkdirAll(path, s.DirMode); err != nil {
		return &StoreError{Op: "mkdir", Path: path, Err: err}
	}
	return nil
}

func (s *LocalStore) RemoveAll(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return &StoreError{Op: "remove dir", Path: path, Err: err}
	}
	return nil
}

func (s *LocalStore) Remove(path string) error {
	if err := os.Remove(path); err != nil {
		return &StoreError{Op: "remove", Path: path, Err: err}
	}
	return nil
}

func (s *LocalStore) Glob(dir, pattern string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, &StoreError{Op: "glob", Path: filepath.Join(dir, pattern), Err: err}
	}
	return matches, nil
}

func (s *LocalStore) Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &StoreError{Op: "open", Path: path, Err: err}
	}
	return f, nil
}

func (s *LocalStore) WriteAtomic(path string, write func(w io.Writer) error) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return &StoreError{Op: "create temp", Path: path, Err: err}
	}
	tmpPath := tmp.Name()

	if err := write(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return &StoreError{Op: "close temp", Path: tmpPath, Err: err}
	}
	if err := os.Chmod(tmpPath, s.FileMode); err != nil {
		os.Remove(tmpPath)
		return &StoreError{Op: "chmod", Path: tmpPath, Err: err}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return &StoreError{Op: "rename", Path: path, Err: err}
	}
	return nil
}
