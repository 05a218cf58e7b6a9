package storage

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"github.com/briskdb/briskdb/util"
)

// FileFactory holds a path and a read-only flag and produces at most one
// open RandomAccessFile, lazily, on first Access. The same type serves both
// the data file and its "<name>-log" companion.
type FileFactory struct {
	mu       sync.Mutex
	path     string
	readOnly bool
	handle   RandomAccessFile
}

// NewFileFactory returns a factory bound to path; no file is opened yet.
func NewFileFactory(path string, readOnly bool) *FileFactory {
	return &FileFactory{path: path, readOnly: readOnly}
}

// Access returns the open handle, opening it first if necessary.
func (ff *FileFactory) Access() (RandomAccessFile, error) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if ff.handle != nil {
		return ff.handle, nil
	}

	if err := util.EnsureDir(filepath.Dir(ff.path)); err != nil {
		return nil, errors.Wrapf(err, "ensure parent directory for %s", ff.path)
	}

	f, err := openOSFile(ff.path, ff.readOnly)
	if err != nil {
		return nil, err
	}
	ff.handle = f
	return ff.handle, nil
}

// Exists reports whether the path exists on disk, or the handle is already
// open (covers the case where the file was created by Access but not yet
// flushed to a directory listing on some filesystems).
func (ff *FileFactory) Exists() (bool, error) {
	ff.mu.Lock()
	open := ff.handle != nil
	ff.mu.Unlock()
	if open {
		return true, nil
	}
	return util.PathExists(ff.path)
}

// GetLength returns the file's size: from the open handle if one exists,
// else by stat'ing the path directly.
func (ff *FileFactory) GetLength() (int64, error) {
	ff.mu.Lock()
	handle := ff.handle
	ff.mu.Unlock()

	if handle != nil {
		return handle.Length()
	}

	exists, err := util.PathExists(ff.path)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}
	f, err := openOSFile(ff.path, true)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return f.Length()
}

// Close closes the handle if open. Idempotent.
func (ff *FileFactory) Close() error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if ff.handle == nil {
		return nil
	}
	err := ff.handle.Close()
	ff.handle = nil
	return err
}

// Delete closes the handle (if open) then removes the file from disk. Not
// an error if the file never existed.
func (ff *FileFactory) Delete() error {
	if err := ff.Close(); err != nil {
		return err
	}
	exists, err := util.PathExists(ff.path)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	if err := os.Remove(ff.path); err != nil {
		return errors.Wrapf(err, "delete %s", ff.path)
	}
	return nil
}

// Path returns the bound path.
func (ff *FileFactory) Path() string {
	return ff.path
}
