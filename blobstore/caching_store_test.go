package blobstore

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/rangeidx/internal/cache"
)

type mockBlob struct {
	data      []byte
	reads     int
	readBytes int
}

func (m *mockBlob) Close() error { return nil }
func (m *mockBlob) Size() int64  { return int64(len(m.data)) }
func (m *mockBlob) ReadAt(_ context.Context, p []byte, off int64) (int, error) {
	m.reads++
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	m.readBytes += n
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

type mockStore struct {
	blobs map[string]*mockBlob
	opens int
}

func (m *mockStore) Open(_ context.Context, name string) (Blob, error) {
	m.opens++
	if b, ok := m.blobs[name]; ok {
		return b, nil
	}
	return nil, ErrNotFound
}

func (m *mockStore) Put(_ context.Context, name string, data []byte) error {
	if m.blobs == nil {
		m.blobs = make(map[string]*mockBlob)
	}
	m.blobs[name] = &mockBlob{data: data}
	return nil
}

func (m *mockStore) List(context.Context, string) ([]string, error) { return nil, nil }

func TestCachingStore_ReadAt(t *testing.T) {
	data := make([]byte, 1024)
	for i := range data {
		data[i] = byte(i % 255)
	}

	inner := &mockStore{
		blobs: map[string]*mockBlob{
			"test": {data: data},
		},
	}

	c := cache.NewLRUBlockCache(1024*1024, nil) // 1MB cache
	store := NewCachingStore(inner, c, 256)     // 256 bytes block size
	ctx := context.Background()

	blob, err := store.Open(ctx, "test")
	require.NoError(t, err)

	// 1. Read first block (bytes 0-100)
	buf := make([]byte, 100)
	n, err := blob.ReadAt(ctx, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 100, n)
	assert.Equal(t, data[:100], buf)

	mBlob := inner.blobs["test"]
	assert.Equal(t, 1, mBlob.reads)
	assert.Equal(t, 256, mBlob.readBytes) // Read full block 0

	// 2. Read same range again -> cache hit
	n, err = blob.ReadAt(ctx, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 100, n)
	assert.Equal(t, 1, mBlob.reads)

	// 3. Read spanning blocks 0 and 1; only block 1 is fetched.
	buf2 := make([]byte, 100)
	n, err = blob.ReadAt(ctx, buf2, 200)
	require.NoError(t, err)
	assert.Equal(t, 100, n)
	assert.Equal(t, data[200:300], buf2)
	assert.Equal(t, 2, mBlob.reads)
	assert.Equal(t, 512, mBlob.readBytes)

	// 4. Missing blocks 2 and 3 are coalesced into one read.
	buf3 := make([]byte, 512)
	n, err = blob.ReadAt(ctx, buf3, 512)
	require.NoError(t, err)
	assert.Equal(t, 512, n)
	assert.Equal(t, data[512:], buf3)
	assert.Equal(t, 3, mBlob.reads)
	assert.Equal(t, 1024, mBlob.readBytes)

	st := c.Stats()
	assert.Positive(t, st.Hits)
	assert.Positive(t, st.Misses)
}

func TestCachingStore_SmallFile(t *testing.T) {
	data := []byte("hello")
	inner := &mockStore{
		blobs: map[string]*mockBlob{
			"small": {data: data},
		},
	}
	store := NewCachingStore(inner, cache.NewLRUBlockCache(1024, nil), 256)
	ctx := context.Background()

	blob, err := store.Open(ctx, "small")
	require.NoError(t, err)

	buf := make([]byte, 10)
	n, err := blob.ReadAt(ctx, buf, 0)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 5, n)
	assert.Equal(t, data, buf[:n])

	n, err = blob.ReadAt(ctx, buf, 5)
	assert.ErrorIs(t, err, io.EOF)
	assert.Zero(t, n)
}

func TestCachingStore_PutInvalidates(t *testing.T) {
	inner := &mockStore{}
	store := NewCachingStore(inner, cache.NewLRUBlockCache(1024, nil), 4, WithNamespace("mem://"))
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "a", []byte("old!")))
	blob, err := store.Open(ctx, "a")
	require.NoError(t, err)
	got, err := ReadRange(ctx, blob, 0, 4)
	require.NoError(t, err)
	assert.Equal(t, "old!", string(got))

	require.NoError(t, store.Put(ctx, "a", []byte("new!")))
	blob, err = store.Open(ctx, "a")
	require.NoError(t, err)
	got, err = ReadRange(ctx, blob, 0, 4)
	require.NoError(t, err)
	assert.Equal(t, "new!", string(got))
}
