package mmap

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
)

var (
	// ErrClosed is returned by reads after Close.
	ErrClosed = errors.New("mmap: file is closed")
	// ErrOutOfBounds is returned for ranges outside the file.
	ErrOutOfBounds = errors.New("mmap: range out of bounds")
)

// Hint tells the kernel how a mapping will be read.
type Hint uint8

const (
	Normal Hint = iota
	Sequential
	Random
	WillNeed
)

// File is a read-only mapping of a whole file. It is safe for concurrent
// reads.
type File struct {
	data    []byte
	closed  atomic.Bool
	release func() error
}

// Open maps the file at path. Empty files map to an empty File.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := fi.Size()
	if size == 0 {
		return &File{}, nil
	}
	if int64(int(size)) != size {
		return nil, fmt.Errorf("mmap: %s: %d bytes do not fit the address space", path, size)
	}

	data, release, err := mapFile(f, int(size))
	if err != nil {
		return nil, fmt.Errorf("mmap: %s: %w", path, err)
	}
	return &File{data: data, release: release}, nil
}

// Len returns the size of the file.
func (f *File) Len() int64 { return int64(len(f.data)) }

// Bytes returns the whole mapping, or nil after Close.
func (f *File) Bytes() []byte {
	if f.closed.Load() {
		return nil
	}
	return f.data
}

// Slice returns n bytes at off without copying.
func (f *File) Slice(off, n int64) ([]byte, error) {
	if f.closed.Load() {
		return nil, ErrClosed
	}
	if off < 0 || n < 0 || off+n > f.Len() {
		return nil, fmt.Errorf("%w: [%d,%d) of %d", ErrOutOfBounds, off, off+n, f.Len())
	}
	return f.data[off : off+n], nil
}

// ReadAt implements io.ReaderAt.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	if f.closed.Load() {
		return 0, ErrClosed
	}
	if off < 0 {
		return 0, fmt.Errorf("%w: offset %d", ErrOutOfBounds, off)
	}
	if off >= f.Len() {
		return 0, io.EOF
	}
	n := copy(p, f.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Advise passes h to the kernel. Hints are best effort.
func (f *File) Advise(h Hint) error {
	if f.closed.Load() {
		return ErrClosed
	}
	if len(f.data) == 0 {
		return nil
	}
	return advise(f.data, h)
}

// Close releases the mapping. Calling it again is a no-op.
func (f *File) Close() error {
	if f.closed.Swap(true) || f.release == nil {
		return nil
	}
	return f.release()
}
