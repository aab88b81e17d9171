package index

import (
	"context"
	"fmt"

	"github.com/hupe1980/rangeidx/cache"
)

// Store persists an index to a single file.
type Store interface {
	// Name identifies the format; it is part of the cache key.
	Name() string
	// Extension is the file extension including the dot.
	Extension() string
	Save(ctx context.Context, path string, idx *Index) error
	Load(ctx context.Context, path string) (*Index, error)
}

// Cache is the subset of cache.Manager used by FromCacheOrBuild.
type Cache interface {
	Path(ctx context.Context, req cache.Request, build cache.BuildFunc) (string, error)
	Remove(path string) error
}

// BuildFunc scans a resource into an index.
type BuildFunc func(ctx context.Context) (*Index, error)

// CacheCategory is the cache category of persisted indexes.
const CacheCategory = "grib-index"

// FromCacheOrBuild returns the cached index of resource when one exists
// and validates, otherwise builds, persists and returns a new one.
//
// Concurrent callers for the same resource share a single build. A cached
// file that cannot be loaded or belongs to another version is removed and
// rebuilt once. extra is additional key material, for instance a
// remapping that changes the stored attributes.
func FromCacheOrBuild(ctx context.Context, c Cache, store Store, resource string, build BuildFunc, extra ...string) (*Index, bool, error) {
	req := cache.Request{
		Category:  CacheCategory,
		Key:       append([]string{resource, store.Name()}, extra...),
		Version:   Version,
		Extension: store.Extension(),
	}

	for attempt := 0; ; attempt++ {
		var built *Index
		path, err := c.Path(ctx, req, func(ctx context.Context, tmp string) error {
			idx, err := build(ctx)
			if err != nil {
				return err
			}
			if err := store.Save(ctx, tmp, idx); err != nil {
				return fmt.Errorf("index: save %s: %w", resource, err)
			}
			built = idx
			return nil
		})
		if err != nil {
			return nil, false, err
		}
		if built != nil {
			return built, true, nil
		}

		idx, err := store.Load(ctx, path)
		if err == nil {
			err = idx.Validate(resource)
		}
		if err == nil {
			return idx, false, nil
		}
		if attempt > 0 {
			return nil, false, fmt.Errorf("index: cached %s: %w", resource, err)
		}
		if rmErr := c.Remove(path); rmErr != nil {
			return nil, false, rmErr
		}
	}
}
