package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	ifs "github.com/hupe1980/rangeidx/internal/fs"
)

// Request identifies a cached artifact. Equal requests map to the same path.
type Request struct {
	// Category prefixes the file name, e.g. "index".
	Category string
	// Key is the material hashed into the name, e.g. a resource URL.
	Key []string
	// Version is hashed with Key so format changes never reuse old files.
	Version int
	// Extension is appended to the file name, including the dot.
	Extension string
}

// BuildFunc writes an artifact to path. The manager moves it into place
// once BuildFunc returns nil.
type BuildFunc func(ctx context.Context, path string) error

// Manager hands out cache paths and builds missing artifacts at most once.
//
// Within a process concurrent builds of the same artifact are collapsed.
// Across processes a lock file next to the artifact serializes builders.
// Artifacts are written to a temporary name and renamed into place, so
// readers never observe a partial file.
type Manager struct {
	root   string
	fs     ifs.FileSystem
	logger *slog.Logger
	group  singleflight.Group
}

// Option configures a Manager.
type Option func(*Manager)

// WithFileSystem replaces the file system, mostly for fault injection.
func WithFileSystem(fsys ifs.FileSystem) Option {
	return func(m *Manager) { m.fs = fsys }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// New returns a manager storing artifacts under root.
func New(root string, opts ...Option) (*Manager, error) {
	if root == "" {
		return nil, errors.New("cache: empty root")
	}
	m := &Manager{root: root, fs: ifs.Default, logger: slog.Default()}
	for _, fn := range opts {
		fn(m)
	}
	if err := m.fs.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("cache: create root: %w", err)
	}
	return m, nil
}

// DefaultRoot returns the per-user cache directory for this module.
func DefaultRoot() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "rangeidx")
}

// Root returns the cache directory.
func (m *Manager) Root() string { return m.root }

// PathFor returns the deterministic path of req without building anything.
func (m *Manager) PathFor(req Request) string {
	h := xxhash.New()
	_, _ = h.WriteString(req.Category)
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(strconv.Itoa(req.Version))
	for _, k := range req.Key {
		_, _ = h.Write([]byte{0})
		_, _ = h.WriteString(k)
	}
	category := strings.Map(func(r rune) rune {
		if r == '/' || r == os.PathSeparator {
			return '_'
		}
		return r
	}, req.Category)
	name := fmt.Sprintf("%s-%016x%s", category, h.Sum64(), req.Extension)
	return filepath.Join(m.root, name)
}

// Path returns the path of the artifact described by req, calling build
// first if it does not exist yet.
func (m *Manager) Path(ctx context.Context, req Request, build BuildFunc) (string, error) {
	path := m.PathFor(req)
	if m.exists(path) {
		m.logger.DebugContext(ctx, "cache hit", "category", req.Category, "path", path)
		return path, nil
	}

	_, err, _ := m.group.Do(path, func() (any, error) {
		return nil, m.buildLocked(ctx, req, path, build)
	})
	if err != nil {
		return "", err
	}
	return path, nil
}

// Remove deletes a cached artifact, typically one that failed validation.
func (m *Manager) Remove(path string) error {
	if err := m.fs.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("cache: remove %s: %w", path, err)
	}
	return nil
}

func (m *Manager) buildLocked(ctx context.Context, req Request, path string, build BuildFunc) error {
	unlock, err := lockFile(path + ".lock")
	if err != nil {
		return fmt.Errorf("cache: lock %s: %w", path, err)
	}
	defer unlock()

	// Another process may have finished while we waited for the lock.
	if m.exists(path) {
		return nil
	}

	tmp := path + "." + uuid.NewString() + ".tmp"
	if err := build(ctx, tmp); err != nil {
		_ = m.fs.Remove(tmp)
		return err
	}
	if err := m.fs.Rename(tmp, path); err != nil {
		_ = m.fs.Remove(tmp)
		return fmt.Errorf("cache: publish %s: %w", path, err)
	}
	m.logger.DebugContext(ctx, "cache artifact built", "category", req.Category, "path", path)
	return nil
}

func (m *Manager) exists(path string) bool {
	_, err := m.fs.Stat(path)
	return err == nil
}
