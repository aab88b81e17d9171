package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/hupe1980/rangeidx/internal/cache"
)

// ErrNoStore is returned for a URL whose scheme has no mounted store.
var ErrNoStore = errors.New("blobstore: no store for url")

// Transport resolves URLs to mounted stores. A URL without a scheme, or
// with the file scheme, is a local path.
//
// Transport satisfies retrieve.Transport.
type Transport struct {
	mu     sync.RWMutex
	mounts []mount
	local  BlobStore
	logger *slog.Logger

	blockCache cache.BlockCache
	blockSize  int64
}

type mount struct {
	prefix string
	store  BlobStore
}

// TransportOption configures a Transport.
type TransportOption func(*Transport)

// WithMount serves every URL starting with prefix from store. The store
// receives the rest of the URL as blob name.
func WithMount(prefix string, store BlobStore) TransportOption {
	return func(t *Transport) {
		t.mounts = append(t.mounts, mount{prefix: prefix, store: store})
	}
}

// WithLocalStore replaces the store used for local paths.
func WithLocalStore(store BlobStore) TransportOption {
	return func(t *Transport) {
		t.local = store
	}
}

// WithBlockCache caches remote reads in c with the given block size.
// Local paths are never cached; they are memory mapped.
func WithBlockCache(c cache.BlockCache, blockSize int64) TransportOption {
	return func(t *Transport) {
		t.blockCache = c
		t.blockSize = blockSize
	}
}

// WithTransportLogger sets the logger.
func WithTransportLogger(l *slog.Logger) TransportOption {
	return func(t *Transport) {
		t.logger = l
	}
}

// NewTransport creates a Transport.
func NewTransport(opts ...TransportOption) *Transport {
	t := &Transport{
		local:  NewLocalStore(""),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	mounts := t.mounts
	t.mounts = nil
	for _, m := range mounts {
		t.Mount(m.prefix, m.store)
	}
	return t
}

// Mount adds or replaces the store for prefix.
func (t *Transport) Mount(prefix string, store BlobStore) {
	if t.blockCache != nil {
		store = NewCachingStore(store, t.blockCache, t.blockSize, WithNamespace(prefix))
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for i, m := range t.mounts {
		if m.prefix == prefix {
			t.mounts[i].store = store
			return
		}
	}
	t.mounts = append(t.mounts, mount{prefix: prefix, store: store})
	// Longest prefix first.
	sort.SliceStable(t.mounts, func(i, j int) bool {
		return len(t.mounts[i].prefix) > len(t.mounts[j].prefix)
	})
}

// IsLocal reports whether u names a local file.
func IsLocal(u string) bool {
	if strings.HasPrefix(u, "file://") {
		return true
	}
	parsed, err := url.Parse(u)
	if err != nil {
		return true
	}
	// Single letters are Windows drive names.
	return len(parsed.Scheme) <= 1
}

func (t *Transport) resolve(u string) (BlobStore, string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, m := range t.mounts {
		if strings.HasPrefix(u, m.prefix) {
			return m.store, strings.TrimPrefix(u, m.prefix), nil
		}
	}
	if IsLocal(u) {
		return t.local, strings.TrimPrefix(u, "file://"), nil
	}
	return nil, "", fmt.Errorf("%w: %s", ErrNoStore, u)
}

// Open opens the blob behind u.
func (t *Transport) Open(ctx context.Context, u string) (Blob, error) {
	store, name, err := t.resolve(u)
	if err != nil {
		return nil, err
	}
	return store.Open(ctx, name)
}

// FetchRange reads length bytes at start. The result is shorter only when
// the blob ends first.
func (t *Transport) FetchRange(ctx context.Context, u string, start, length int64) ([]byte, error) {
	b, err := t.Open(ctx, u)
	if err != nil {
		return nil, err
	}
	defer func() { _ = b.Close() }()

	data, err := ReadRange(ctx, b, start, length)
	if err != nil {
		return nil, err
	}
	t.logger.Debug("fetched range", "url", u, "offset", start, "length", length, "bytes", len(data))
	return data, nil
}

// FetchWhole reads the entire blob.
func (t *Transport) FetchWhole(ctx context.Context, u string) ([]byte, error) {
	b, err := t.Open(ctx, u)
	if err != nil {
		return nil, err
	}
	defer func() { _ = b.Close() }()

	if m, ok := b.(Mappable); ok {
		data, err := m.Bytes()
		if err != nil {
			return nil, err
		}
		// The mapping dies with the blob.
		return append([]byte(nil), data...), nil
	}
	data := make([]byte, b.Size())
	n, err := b.ReadAt(ctx, data, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return data[:n], nil
}

// Exists reports whether u names an existing blob.
func (t *Transport) Exists(ctx context.Context, u string) (bool, error) {
	b, err := t.Open(ctx, u)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	_ = b.Close()
	return true, nil
}

// Put writes data to u.
func (t *Transport) Put(ctx context.Context, u string, data []byte) error {
	store, name, err := t.resolve(u)
	if err != nil {
		return err
	}
	return store.Put(ctx, name, data)
}

// List returns the URLs of all blobs starting with prefix.
func (t *Transport) List(ctx context.Context, prefix string) ([]string, error) {
	store, name, err := t.resolve(prefix)
	if err != nil {
		return nil, err
	}
	names, err := store.List(ctx, name)
	if err != nil {
		return nil, err
	}
	base := strings.TrimSuffix(prefix, name)
	urls := make([]string, len(names))
	for i, n := range names {
		urls[i] = base + n
	}
	return urls, nil
}
