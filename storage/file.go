package storage

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

// RandomAccessFile is positional read/write of byte ranges on a file
// handle, plus length query/set, flush, and vectored gather/scatter
// variants. It does not serialize concurrent access to disjoint byte
// ranges, but individual calls are safe to issue concurrently.
type RandomAccessFile interface {
	Length() (int64, error)
	SetLength(length int64) error
	ReadAt(buf []byte, offset int64) (int, error)
	WriteAt(buf []byte, offset int64) error
	Flush() error
	ReadAtVectored(bufs [][]byte, base int64) error
	WriteAtVectored(bufs [][]byte, base int64) error
	Close() error
}

// osFile is the default RandomAccessFile: a thin wrapper over *os.File,
// direct WriteAt/ReadAt, no buffering beyond what the kernel does for us,
// Sync() as the flush barrier.
type osFile struct {
	file *os.File
}

func openOSFile(path string, readOnly bool) (*osFile, error) {
	flag := os.O_RDWR | os.O_CREATE
	if readOnly {
		flag = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flag, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	return &osFile{file: f}, nil
}

func (f *osFile) Length() (int64, error) {
	info, err := f.file.Stat()
	if err != nil {
		return 0, errors.Wrap(err, "stat")
	}
	return info.Size(), nil
}

func (f *osFile) SetLength(length int64) error {
	if err := f.file.Truncate(length); err != nil {
		return errors.Wrapf(err, "truncate to %d", length)
	}
	return nil
}

func (f *osFile) ReadAt(buf []byte, offset int64) (int, error) {
	n, err := f.file.ReadAt(buf, offset)
	if err != nil && !isEOF(err) {
		return n, errors.Wrapf(err, "read at %d", offset)
	}
	return n, nil
}

func (f *osFile) WriteAt(buf []byte, offset int64) error {
	_, err := f.file.WriteAt(buf, offset)
	if err != nil {
		return errors.Wrapf(err, "write at %d", offset)
	}
	return nil
}

func (f *osFile) Flush() error {
	if err := f.file.Sync(); err != nil {
		return errors.Wrap(err, "flush")
	}
	return nil
}

// ReadAtVectored reads each buffer in bufs from consecutive offsets starting
// at base, in order. Go's standard library has no portable preadv; a loop
// over ReadAt avoids a platform-specific syscall wrapper for the sake of a
// single-process embedded store.
func (f *osFile) ReadAtVectored(bufs [][]byte, base int64) error {
	offset := base
	for _, buf := range bufs {
		if _, err := f.ReadAt(buf, offset); err != nil {
			return err
		}
		offset += int64(len(buf))
	}
	return nil
}

// WriteAtVectored is the scatter counterpart of ReadAtVectored.
func (f *osFile) WriteAtVectored(bufs [][]byte, base int64) error {
	offset := base
	for _, buf := range bufs {
		if err := f.WriteAt(buf, offset); err != nil {
			return err
		}
		offset += int64(len(buf))
	}
	return nil
}

func (f *osFile) Close() error {
	if err := f.file.Close(); err != nil {
		return errors.Wrap(err, "close")
	}
	return nil
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
