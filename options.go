package rangeidx

import (
	"log/slog"

	"github.com/hupe1980/rangeidx/index"
	"github.com/hupe1980/rangeidx/parts"
	"github.com/hupe1980/rangeidx/retrieve"
)

// Default configuration values.
const (
	DefaultMethod       = "auto"
	DefaultDownloadCost = parts.DefaultDownloadCost
	DefaultSplitCost    = parts.DefaultRequestCost
	DefaultMaxThreads   = retrieve.DefaultMaxThreads
)

type options struct {
	cacheDir         string
	cache            index.Cache
	transport        retrieve.Transport
	store            index.Store
	maxThreads       int
	method           string
	downloadCost     float64
	splitCost        float64
	strict           bool
	aliases          map[string]string
	remapping        index.Remapping
	maxInFlight      int64
	ioBytesPerSec    int64
	blockCacheBytes  int64
	memoryLimit      int64
	metricsCollector MetricsCollector
	logger           *Logger
}

// Option configures a Client.
type Option func(*options)

// WithCacheDir sets the directory of persisted indexes.
// The default is the "rangeidx" directory below os.UserCacheDir.
func WithCacheDir(dir string) Option {
	return func(o *options) {
		o.cacheDir = dir
	}
}

// WithCache replaces the cache collaborator. It takes precedence over
// WithCacheDir.
func WithCache(c index.Cache) Option {
	return func(o *options) {
		o.cache = c
	}
}

// WithTransport replaces the transport used to scan and fetch resources.
//
// The default transport reads local paths through memory maps and http(s)
// URLs with range requests. Other schemes are added by passing a
// blobstore.Transport with more mounts:
//
//	t := blobstore.NewTransport(
//	    blobstore.WithMount("s3://my-bucket/", s3.NewStore(client, "my-bucket", "")),
//	)
//	c, _ := rangeidx.New(rangeidx.WithTransport(t))
func WithTransport(t retrieve.Transport) Option {
	return func(o *options) {
		o.transport = t
	}
}

// WithIndexStore sets the format of persisted indexes. The default is
// sqlitestore.
func WithIndexStore(s index.Store) Option {
	return func(o *options) {
		o.store = s
	}
}

// WithMaxThreads bounds the concurrent range requests of one retrieval.
func WithMaxThreads(n int) Option {
	return func(o *options) {
		o.maxThreads = n
	}
}

// WithMethod sets the default grouping method, e.g. "auto", "cluster(5)"
// or "blocked(4096)|optimal-split".
func WithMethod(method string) Option {
	return func(o *options) {
		o.method = method
	}
}

// WithCostModel sets the weights used by "optimal-split" when the method
// string gives none.
func WithCostModel(downloadCost, splitCost float64) Option {
	return func(o *options) {
		o.downloadCost = downloadCost
		o.splitCost = splitCost
	}
}

// WithStrict makes selections on keys outside the index schema fail with
// ErrUnknownKey instead of being ignored.
func WithStrict(strict bool) Option {
	return func(o *options) {
		o.strict = strict
	}
}

// WithAliases translates selection and order keys, e.g.
// {"variable": "param"}.
func WithAliases(aliases map[string]string) Option {
	return func(o *options) {
		o.aliases = aliases
	}
}

// WithRemapping stores derived attributes in every index built by the client.
func WithRemapping(r index.Remapping) Option {
	return func(o *options) {
		o.remapping = r
	}
}

// WithRequestLimit caps concurrent range requests across all retrievals
// of the client. Zero means unlimited.
func WithRequestLimit(n int64) Option {
	return func(o *options) {
		o.maxInFlight = n
	}
}

// WithIORate caps the bytes per second fetched by the client. Zero means
// unlimited.
func WithIORate(bytesPerSec int64) Option {
	return func(o *options) {
		o.ioBytesPerSec = bytesPerSec
	}
}

// WithBlockCache keeps up to bytes of remote data in memory. It applies to
// the default transport only.
func WithBlockCache(bytes int64) Option {
	return func(o *options) {
		o.blockCacheBytes = bytes
	}
}

// WithMemoryLimit caps the bytes held by the block cache across all
// retrievals. Blocks beyond the limit are fetched but not cached.
func WithMemoryLimit(bytes int64) Option {
	return func(o *options) {
		o.memoryLimit = bytes
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &rangeidx.BasicMetricsCollector{}
//	c, _ := rangeidx.New(rangeidx.WithMetricsCollector(metrics))
//	// ... use c ...
//	stats := metrics.GetStats()
//	fmt.Printf("Downloaded: %d bytes\n", stats.DownloadedBytes)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := rangeidx.NewJSONLogger(slog.LevelInfo)
//	c, _ := rangeidx.New(rangeidx.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		maxThreads:       DefaultMaxThreads,
		method:           DefaultMethod,
		downloadCost:     DefaultDownloadCost,
		splitCost:        DefaultSplitCost,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	if o.maxThreads <= 0 {
		o.maxThreads = 1
	}
	return o
}

// strategy resolves a method string. The empty method is the client
// default; every "optimal-split" without arguments, piped or not, uses the
// configured cost model.
func (o *options) strategy(method string) (parts.Strategy, error) {
	if method == "" {
		method = o.method
	}
	return parts.Parse(method, parts.WithCosts(o.downloadCost, o.splitCost))
}
