package rangeidx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/rangeidx/blobstore"
	"github.com/hupe1980/rangeidx/blobstore/httpstore"
	"github.com/hupe1980/rangeidx/cache"
	"github.com/hupe1980/rangeidx/grib"
	"github.com/hupe1980/rangeidx/index"
	"github.com/hupe1980/rangeidx/index/jsonlstore"
	"github.com/hupe1980/rangeidx/index/sqlitestore"
	icache "github.com/hupe1980/rangeidx/internal/cache"
	"github.com/hupe1980/rangeidx/internal/resource"
	"github.com/hupe1980/rangeidx/retrieve"
)

// Client is the entry point for indexing and retrieval. It holds what the
// operations share: the cache of persisted indexes, the transport, the
// executor settings, logging and metrics. A Client is safe for concurrent use.
type Client struct {
	opts      options
	cache     index.Cache
	transport retrieve.Transport
	store     index.Store
	executor  *retrieve.Executor
	rc        *resource.Controller
	logger    *Logger
	metrics   MetricsCollector
}

// New creates a Client.
func New(optFns ...Option) (*Client, error) {
	o := applyOptions(optFns)

	if _, err := o.strategy(""); err != nil {
		return nil, fmt.Errorf("rangeidx: default method: %w", err)
	}

	c := &Client{
		opts:    o,
		logger:  o.logger,
		metrics: o.metricsCollector,
		rc: resource.NewController(resource.Config{
			MemoryLimitBytes:   o.memoryLimit,
			MaxInFlight:        o.maxInFlight,
			IOLimitBytesPerSec: o.ioBytesPerSec,
		}),
	}

	c.cache = o.cache
	if c.cache == nil {
		dir := o.cacheDir
		if dir == "" {
			dir = cache.DefaultRoot()
		}
		m, err := cache.New(dir, cache.WithLogger(o.logger.Logger))
		if err != nil {
			return nil, err
		}
		c.cache = m
	}

	c.store = o.store
	if c.store == nil {
		c.store = sqlitestore.New(sqlitestore.WithLogger(o.logger.Logger))
	}

	c.transport = o.transport
	if c.transport == nil {
		c.transport = c.defaultTransport()
	}

	c.executor = retrieve.NewExecutor(c.transport, func(eo *retrieve.Options) {
		eo.MaxThreads = o.maxThreads
		eo.Logger = o.logger.Logger
		eo.Resources = c.rc
	})
	return c, nil
}

func (c *Client) defaultTransport() *blobstore.Transport {
	l := c.logger.Logger
	topts := []blobstore.TransportOption{
		blobstore.WithTransportLogger(l),
		blobstore.WithMount("http://", httpstore.New("http://", httpstore.WithLogger(l))),
		blobstore.WithMount("https://", httpstore.New("https://", httpstore.WithLogger(l))),
	}
	if c.opts.blockCacheBytes > 0 {
		bc := icache.NewShardedLRUBlockCache(c.opts.blockCacheBytes, c.rc)
		topts = append(topts, blobstore.WithBlockCache(bc, blobstore.DefaultBlockSize))
	}
	return blobstore.NewTransport(topts...)
}

// Transport returns the transport of the client.
func (c *Client) Transport() retrieve.Transport { return c.transport }

// Logger returns the logger of the client.
func (c *Client) Logger() *Logger { return c.logger }

// resourceID canonicalizes u so that one file maps to one cache entry.
func resourceID(u string) string {
	if !blobstore.IsLocal(u) {
		return u
	}
	p := strings.TrimPrefix(u, "file://")
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// Index returns a source over all records of the GRIB resource u. The
// index is loaded from the cache or built by scanning u once, even when
// several goroutines or processes ask at the same time. dec extracts the
// attributes of every message and later decodes retrieved records.
func (c *Client) Index(ctx context.Context, u string, dec grib.Decoder) (*Source, error) {
	id := resourceID(u)
	idx, err := c.loadOrBuild(ctx, id, func(ctx context.Context) (*index.Index, error) {
		r, size, closeFn, err := c.open(ctx, u)
		if err != nil {
			return nil, &index.BuildError{Resource: id, Err: err}
		}
		defer closeFn()

		idx, err := index.Build(ctx, id, grib.Records(ctx, r, size, dec), index.WithRemapping(c.opts.remapping))
		if err != nil {
			return nil, err
		}
		return idx, nil
	})
	if err != nil {
		return nil, err
	}
	return c.FromIndex(idx, dec), nil
}

// OpenSidecar returns a source over a published JSON lines index. Entries
// without _path belong to dataURL. The parsed index is cached in the
// client's index store like a scanned one.
func (c *Client) OpenSidecar(ctx context.Context, indexURL, dataURL string, dec grib.Decoder) (*Source, error) {
	id := resourceID(indexURL)
	idx, err := c.loadOrBuild(ctx, id, func(ctx context.Context) (*index.Index, error) {
		data, err := c.transport.FetchWhole(ctx, indexURL)
		if err != nil {
			return nil, &index.BuildError{Resource: id, Err: err}
		}
		r, release, err := jsonlstore.NewReader(indexURL, bytes.NewReader(data))
		if err != nil {
			return nil, &index.BuildError{Resource: id, Err: err}
		}
		defer release()

		idx, err := jsonlstore.ReadSidecar(ctx, r, indexURL, dataURL)
		if err != nil {
			return nil, &index.BuildError{Resource: id, Err: err}
		}
		if len(c.opts.remapping) > 0 {
			idx, err = remap(idx, c.opts.remapping)
			if err != nil {
				return nil, &index.BuildError{Resource: id, Err: err}
			}
		}
		// Cached indexes are keyed and validated by the sidecar location.
		return index.New(id, idx.Version(), idx.Schema(), idx.Entries())
	})
	if err != nil {
		return nil, err
	}
	return c.FromIndex(idx, dec), nil
}

// FromIndex wraps an existing index. dec may be nil when only raw bytes are
// needed.
func (c *Client) FromIndex(idx *index.Index, dec grib.Decoder) *Source {
	return newSource(c, idx, dec)
}

// IndexAll indexes every resource below prefix whose name ends in suffix
// and merges them in listing order. The transport must be able to list.
func (c *Client) IndexAll(ctx context.Context, prefix, suffix string, dec grib.Decoder) (*Multi, error) {
	l, ok := c.transport.(interface {
		List(ctx context.Context, prefix string) ([]string, error)
	})
	if !ok {
		return nil, ErrListUnsupported
	}
	urls, err := l.List(ctx, prefix)
	if err != nil {
		return nil, translateError(err)
	}

	var matched []string
	for _, u := range urls {
		if strings.HasSuffix(u, suffix) {
			matched = append(matched, u)
		}
	}

	sources := make([]*Source, len(matched))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.maxThreads)
	for i, u := range matched {
		g.Go(func() error {
			s, err := c.Index(gctx, u, dec)
			if err != nil {
				return err
			}
			sources[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return Merge(sources...), nil
}

func (c *Client) loadOrBuild(ctx context.Context, id string, build index.BuildFunc) (*index.Index, error) {
	start := time.Now()
	var extra []string
	if len(c.opts.remapping) > 0 {
		extra = append(extra, c.opts.remapping.String())
	}
	idx, built, err := index.FromCacheOrBuild(ctx, c.cache, c.store, id, build, extra...)
	d := time.Since(start)

	entries := 0
	if idx != nil {
		entries = idx.Len()
	}
	c.logger.LogIndexBuild(ctx, id, entries, built, d, err)
	c.metrics.RecordIndexBuild(entries, built, d, err)
	if err != nil {
		return nil, translateError(err)
	}
	return idx, nil
}

// open returns a ReaderAt over u. Local files are memory mapped when the
// transport can open blobs; anything else is fetched whole, since scanning
// touches every message.
func (c *Client) open(ctx context.Context, u string) (io.ReaderAt, int64, func(), error) {
	if o, ok := c.transport.(interface {
		Open(ctx context.Context, u string) (blobstore.Blob, error)
	}); ok && blobstore.IsLocal(u) {
		b, err := o.Open(ctx, u)
		if err != nil {
			return nil, 0, nil, err
		}
		return blobstore.ReaderAt(ctx, b), b.Size(), func() { _ = b.Close() }, nil
	}
	data, err := c.transport.FetchWhole(ctx, u)
	if err != nil {
		return nil, 0, nil, err
	}
	return bytes.NewReader(data), int64(len(data)), func() {}, nil
}

func remap(idx *index.Index, r index.Remapping) (*index.Index, error) {
	entries := idx.Entries()
	for i := range entries {
		entries[i].Attrs = r.Apply(entries[i].Attrs)
	}
	return index.New(idx.Resource(), idx.Version(), append(idx.Schema(), r.Keys()...), entries)
}
