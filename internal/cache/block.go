package cache

import "context"

// BlockKey identifies one aligned block of a blob.
type BlockKey struct {
	// Path is the namespaced name of the blob, usually its URL.
	Path string
	// Block is the offset divided by the block size.
	Block int64
}

// Stats counts cache activity.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Bytes     int64
	Blocks    int
}

// BlockCache stores immutable blocks. Callers must not modify slices passed
// to Set or returned by Get.
type BlockCache interface {
	Get(ctx context.Context, key BlockKey) ([]byte, bool)
	Set(ctx context.Context, key BlockKey, b []byte)
	// Invalidate drops every block of path.
	Invalidate(path string)
	Stats() Stats
}
