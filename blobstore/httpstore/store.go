package httpstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jellydator/ttlcache/v3"

	"github.com/hupe1980/rangeidx/blobstore"
	"github.com/hupe1980/rangeidx/internal/resource"
)

const (
	// DefaultMaxTries bounds attempts per request, the first one included.
	DefaultMaxTries = 5
	// DefaultSizeTTL is how long a HEAD size stays cached.
	DefaultSizeTTL = 10 * time.Minute
)

// ErrUnknownSize is returned when a server reports no Content-Length.
var ErrUnknownSize = errors.New("httpstore: unknown content length")

// StatusError reports an unexpected HTTP status.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("httpstore: %s: %s", e.URL, e.Status)
}

// Temporary reports whether retrying may help.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Store implements blobstore.BlobStore over HTTP range requests. Blob
// names are appended to the base URL.
type Store struct {
	base       string
	client     *http.Client
	header     http.Header
	sizes      *ttlcache.Cache[string, int64]
	maxTries   uint
	newBackOff func() backoff.BackOff
	rc         *resource.Controller
	logger     *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithHTTPClient sets the client used for all requests.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Store) {
		s.client = c
	}
}

// WithHeader adds a header to every request, for instance an API key.
func WithHeader(key, value string) Option {
	return func(s *Store) {
		s.header.Add(key, value)
	}
}

// WithMaxTries bounds the attempts per request.
func WithMaxTries(n uint) Option {
	return func(s *Store) {
		s.maxTries = max(n, 1)
	}
}

// WithBackOff sets the retry schedule factory.
func WithBackOff(f func() backoff.BackOff) Option {
	return func(s *Store) {
		s.newBackOff = f
	}
}

// WithSizeTTL sets how long blob sizes are remembered.
func WithSizeTTL(d time.Duration) Option {
	return func(s *Store) {
		s.sizes = ttlcache.New(ttlcache.WithTTL[string, int64](d))
	}
}

// WithResources charges requests and downloaded bytes to rc.
func WithResources(rc *resource.Controller) Option {
	return func(s *Store) {
		s.rc = rc
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// New creates a Store for URLs starting with base.
func New(base string, opts ...Option) *Store {
	s := &Store{
		base:     base,
		client:   http.DefaultClient,
		header:   make(http.Header),
		sizes:    ttlcache.New(ttlcache.WithTTL[string, int64](DefaultSizeTTL)),
		maxTries: DefaultMaxTries,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 100 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			return b
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) url(name string) string {
	return s.base + name
}

// Open resolves the blob size with a HEAD request. Sizes are cached.
func (s *Store) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	u := s.url(name)
	if item := s.sizes.Get(u); item != nil {
		return &blob{store: s, url: u, size: item.Value()}, nil
	}

	size, err := s.head(ctx, u)
	if err != nil {
		return nil, err
	}
	s.sizes.Set(u, size, ttlcache.DefaultTTL)
	return &blob{store: s, url: u, size: size}, nil
}

// Put uploads data with a PUT request.
func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	u := s.url(name)
	s.sizes.Delete(u)

	resp, err := s.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, u, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.ContentLength = int64(len(data))
		return req, nil
	}, http.StatusOK, http.StatusCreated, http.StatusNoContent)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

// List is not supported: plain HTTP has no listing.
func (s *Store) List(context.Context, string) ([]string, error) {
	return nil, fmt.Errorf("httpstore: list: %w", errors.ErrUnsupported)
}

func (s *Store) head(ctx context.Context, u string) (int64, error) {
	resp, err := s.do(ctx, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodHead, u, nil)
	}, http.StatusOK)
	if err != nil {
		return 0, err
	}
	_ = resp.Body.Close()
	if resp.ContentLength < 0 {
		return 0, fmt.Errorf("%w: %s", ErrUnknownSize, u)
	}
	return resp.ContentLength, nil
}

// do sends the request built by newReq with retries. 404 maps to
// blobstore.ErrNotFound. Statuses outside want are errors; 429 and 5xx
// are retried.
func (s *Store) do(ctx context.Context, newReq func() (*http.Request, error), want ...int) (*http.Response, error) {
	op := func() (*http.Response, error) {
		req, err := newReq()
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		for k, vs := range s.header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}

		resp, err := s.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			return nil, err
		}
		for _, code := range want {
			if resp.StatusCode == code {
				return resp, nil
			}
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return nil, backoff.Permanent(fmt.Errorf("httpstore: %s: %w", req.URL, blobstore.ErrNotFound))
		}
		serr := &StatusError{URL: req.URL.String(), StatusCode: resp.StatusCode, Status: resp.Status}
		if !serr.Temporary() {
			return nil, backoff.Permanent(serr)
		}
		if ra, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && ra > 0 {
			return nil, backoff.RetryAfter(ra)
		}
		return nil, serr
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(s.newBackOff()),
		backoff.WithMaxTries(s.maxTries),
		backoff.WithNotify(func(err error, d time.Duration) {
			s.logger.Warn("http request failed, retrying", "error", err, "backoff", d)
		}),
	)
}

// blob reads byte ranges of one URL.
type blob struct {
	store *Store
	url   string
	size  int64
}

func (b *blob) Size() int64 {
	return b.size
}

func (b *blob) Close() error {
	return nil
}

func (b *blob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if off >= b.size {
		return 0, io.EOF
	}
	rc, err := b.ReadRange(ctx, off, int64(len(p)))
	if err != nil {
		return 0, err
	}
	defer func() { _ = rc.Close() }()

	n, err := io.ReadFull(rc, p)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return n, io.EOF
	}
	return n, err
}

// ReadRange requests bytes [off, off+length) clamped to the blob size.
// A server that ignores the Range header answers 200; the body is then
// skipped to off and cut at length.
func (b *blob) ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error) {
	if off >= b.size || length <= 0 {
		return io.NopCloser(strings.NewReader("")), nil
	}
	end := min(off+length, b.size) - 1

	if err := b.store.rc.AcquireRequest(ctx); err != nil {
		return nil, err
	}

	resp, err := b.store.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", off, end))
		return req, nil
	}, http.StatusPartialContent, http.StatusOK)
	if err != nil {
		b.store.rc.ReleaseRequest()
		return nil, err
	}

	var body io.Reader = resp.Body
	switch resp.StatusCode {
	case http.StatusPartialContent:
		if start, ok := contentRangeStart(resp.Header.Get("Content-Range")); ok && start != off {
			_ = resp.Body.Close()
			b.store.rc.ReleaseRequest()
			return nil, fmt.Errorf("httpstore: %s: content range starts at %d, requested %d", b.url, start, off)
		}
	case http.StatusOK:
		b.store.logger.Debug("server ignored range request", "url", b.url, "offset", off)
		if _, err := io.CopyN(io.Discard, resp.Body, off); err != nil {
			_ = resp.Body.Close()
			b.store.rc.ReleaseRequest()
			return nil, err
		}
	}
	body = io.LimitReader(body, end-off+1)
	body = resource.NewRateLimitedReader(ctx, body, b.store.rc)

	return &rangeBody{Reader: body, closer: resp.Body, release: b.store.rc.ReleaseRequest}, nil
}

type rangeBody struct {
	io.Reader
	closer  io.Closer
	release func()
	closed  bool
}

func (r *rangeBody) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	defer r.release()
	return r.closer.Close()
}

// contentRangeStart parses "bytes a-b/total".
func contentRangeStart(v string) (int64, bool) {
	v, ok := strings.CutPrefix(v, "bytes ")
	if !ok {
		return 0, false
	}
	first, _, ok := strings.Cut(v, "-")
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(first, 10, 64)
	return n, err == nil
}
