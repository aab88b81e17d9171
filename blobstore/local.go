package blobstore

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	ifs "github.com/hupe1980/rangeidx/internal/fs"
	"github.com/hupe1980/rangeidx/internal/mmap"
)

// LocalStore implements BlobStore using the local file system.
// With an empty root, names are used as paths as given.
type LocalStore struct {
	root string
	fs   ifs.FileSystem
}

// NewLocalStore creates a new LocalStore rooted at the given directory.
func NewLocalStore(root string) *LocalStore {
	return &LocalStore{root: root, fs: ifs.Default}
}

func (s *LocalStore) path(name string) string {
	if s.root == "" {
		return filepath.FromSlash(name)
	}
	return filepath.Join(s.root, filepath.FromSlash(name))
}

// Open opens a blob for reading. Files are memory mapped: messages are
// read at scattered offsets.
func (s *LocalStore) Open(_ context.Context, name string) (Blob, error) {
	m, err := mmap.Open(s.path(name))
	if err != nil {
		return nil, err
	}
	_ = m.Advise(mmap.Random)
	return &localBlob{m: m}, nil
}

// Put writes a blob through a temporary file and a rename.
func (s *LocalStore) Put(_ context.Context, name string, data []byte) error {
	p := s.path(name)
	if err := s.fs.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	return ifs.WriteFileAtomic(s.fs, p, data, "."+uuid.NewString()+".tmp")
}

// List returns the names under root starting with prefix. With an empty
// root the names are paths and the walk starts at the prefix directory.
func (s *LocalStore) List(ctx context.Context, prefix string) ([]string, error) {
	base, relative := s.root, true
	if base == "" {
		base, relative = prefixDir(prefix), false
	}

	var names []string
	err := filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := p
		if relative {
			if name, err = filepath.Rel(base, p); err != nil {
				return err
			}
		}
		name = filepath.ToSlash(name)
		if strings.HasPrefix(name, prefix) && !strings.HasSuffix(name, ".tmp") {
			names = append(names, name)
		}
		return nil
	})
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func prefixDir(prefix string) string {
	switch {
	case prefix == "":
		return "."
	case strings.HasSuffix(prefix, "/"):
		return filepath.FromSlash(prefix)
	default:
		return filepath.Dir(filepath.FromSlash(prefix))
	}
}

type localBlob struct {
	m *mmap.File
}

func (b *localBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}
	return b.m.ReadAt(p, off)
}

func (b *localBlob) Close() error {
	return b.m.Close()
}

func (b *localBlob) Size() int64 {
	return b.m.Len()
}

func (b *localBlob) Bytes() ([]byte, error) {
	return b.m.Bytes(), nil
}
