// Package fileutil provides write-then-rename helpers so a reader never sees a
// partially written artifact under its final name.
package fileutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// AtomicFile is a temporary sibling of a destination path. Data written to it
// becomes visible at the destination only after Commit.
type AtomicFile struct {
	*os.File
	final string
	done  bool
}

// CreateAtomic opens a hidden temporary file next to path, creating parent
// directories as needed.
func CreateAtomic(path string) (*AtomicFile, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create parent directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.part")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	return &AtomicFile{File: tmp, final: path}, nil
}

// Commit flushes the temporary file and renames it over the destination.
func (a *AtomicFile) Commit() error {
	if a.done {
		return errors.New("atomic file already finalized")
	}
	a.done = true
	if err := a.Sync(); err != nil {
		_ = a.Close()
		_ = os.Remove(a.Name())
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := a.Close(); err != nil {
		_ = os.Remove(a.Name())
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(a.Name(), a.final); err != nil {
		_ = os.Remove(a.Name())
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// Abort discards the temporary file. It is safe to call after Commit.
func (a *AtomicFile) Abort() {
	if a.done {
		return
	}
	a.done = true
	_ = a.Close()
	_ = os.Remove(a.Name())
}

// WriteFileAtomic writes data to path through a temporary sibling.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	f, err := CreateAtomic(path)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Abort()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Chmod(perm); err != nil {
		f.Abort()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	return f.Commit()
}

// RemoveIfExists deletes path, treating a missing file as success.
func RemoveIfExists(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Exists reports whether path names an existing regular file.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
