package jsonlstore

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/hupe1980/rangeidx/codec"
	"github.com/hupe1980/rangeidx/index"
	"github.com/hupe1980/rangeidx/selection"
)

// Reserved keys.
const (
	KeyPath     = "_path"
	KeyOffset   = "_offset"
	KeyLength   = "_length"
	KeyVersion  = "_version"
	KeyResource = "_resource"
	KeySchema   = "_schema"
)

// maxLine bounds a single JSON line.
const maxLine = 4 << 20

var (
	// ErrMissingPath is returned for entries without _path when no data
	// URL was given.
	ErrMissingPath = errors.New("jsonlstore: entry without _path")
	// ErrMalformedLine is returned for lines that are not a valid entry.
	ErrMalformedLine = errors.New("jsonlstore: malformed line")
)

// Store implements index.Store.
type Store struct {
	compression Compression
	codec       codec.Codec
	logger      *slog.Logger
}

var _ index.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithCompression sets the compression of written files.
func WithCompression(c Compression) Option {
	return func(s *Store) { s.compression = c }
}

// WithCodec sets the JSON codec used to write lines.
func WithCodec(c codec.Codec) Option {
	return func(s *Store) { s.codec = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New creates a Store writing uncompressed files by default.
func New(opts ...Option) *Store {
	s := &Store{codec: codec.Default, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Name() string {
	if s.compression == None {
		return "jsonl"
	}
	return "jsonl-" + s.compression.String()
}

func (s *Store) Extension() string { return s.compression.Extension() }

// Save writes idx to path.
func (s *Store) Save(ctx context.Context, path string, idx *index.Index) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := s.Write(ctx, f, idx); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Write encodes idx to w.
func (s *Store) Write(ctx context.Context, w io.Writer, idx *index.Index) error {
	cw, err := s.compression.writer(w)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(cw)

	writeLine := func(v any) error {
		b, err := s.codec.Marshal(v)
		if err != nil {
			return err
		}
		if _, err := bw.Write(b); err != nil {
			return err
		}
		return bw.WriteByte('\n')
	}

	header := map[string]any{
		KeyVersion:  idx.Version(),
		KeyResource: idx.Resource(),
		KeySchema:   idx.Schema(),
	}
	if err := writeLine(header); err != nil {
		return err
	}

	line := make(map[string]any)
	for i := range idx.Len() {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		e := idx.Entry(i)
		clear(line)
		for k, v := range e.Attrs {
			line[k] = v
		}
		line[KeyPath] = e.Path
		line[KeyOffset] = e.Offset
		line[KeyLength] = e.Length
		if err := writeLine(line); err != nil {
			return err
		}
	}

	if err := bw.Flush(); err != nil {
		return err
	}
	return cw.Close()
}

// Load reads the index at path. The compression follows the extension of
// path, so any file written by a Store can be loaded.
func (s *Store) Load(ctx context.Context, path string) (*index.Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, release, err := CompressionFor(path).reader(f)
	if err != nil {
		return nil, err
	}
	defer release()

	return Read(ctx, r, ReadOptions{})
}

// ReadOptions configures Read.
type ReadOptions struct {
	// Resource names the index when the input has no header.
	Resource string
	// IndexURL resolves relative _path values.
	IndexURL string
	// DataURL is the path of entries without _path.
	DataURL string
}

// ReadSidecar parses a published sidecar index fetched from indexURL.
// Entries without _path belong to dataURL.
func ReadSidecar(ctx context.Context, r io.Reader, indexURL, dataURL string) (*index.Index, error) {
	resource := dataURL
	if resource == "" {
		resource = indexURL
	}
	return Read(ctx, r, ReadOptions{Resource: resource, IndexURL: indexURL, DataURL: dataURL})
}

// Read parses JSON lines from r. Input with a header line is loaded with the
// stored schema and version; otherwise the schema is discovered from the
// first entry and the current version is assumed.
func Read(ctx context.Context, r io.Reader, opts ReadOptions) (*index.Index, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), maxLine)

	var (
		hdr  *header
		recs []*record
		n    int
	)
	for sc.Scan() {
		n++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if n%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		obj := make(map[string]any)
		if err := (codec.GoJSON{}).UnmarshalNumbers(line, &obj); err != nil {
			return nil, fmt.Errorf("%w %d: %v", ErrMalformedLine, n, err)
		}
		if _, ok := obj[KeyVersion]; ok && hdr == nil && len(recs) == 0 {
			h, err := parseHeader(obj)
			if err != nil {
				return nil, fmt.Errorf("%w %d: %v", ErrMalformedLine, n, err)
			}
			hdr = h
			continue
		}
		rec, err := parseRecord(line, obj, opts)
		if err != nil {
			return nil, fmt.Errorf("%w %d: %w", ErrMalformedLine, n, err)
		}
		recs = append(recs, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	if hdr != nil {
		entries := make([]index.Entry, len(recs))
		for i, rec := range recs {
			entries[i] = index.Entry{Path: rec.path, Offset: rec.offset, Length: rec.length, Attrs: rec.attrs}
		}
		resource := hdr.resource
		if resource == "" {
			resource = opts.Resource
		}
		return index.New(resource, hdr.version, hdr.schema, entries)
	}

	return index.Build(ctx, opts.Resource, func(yield func(index.RawRecord, error) bool) {
		for _, rec := range recs {
			if !yield(rec, nil) {
				return
			}
		}
	})
}

type header struct {
	version  int
	resource string
	schema   []string
}

func parseHeader(obj map[string]any) (*header, error) {
	h := &header{}
	n, ok := obj[KeyVersion].(json.Number)
	if !ok {
		return nil, fmt.Errorf("%s is not a number", KeyVersion)
	}
	v, err := n.Int64()
	if err != nil {
		return nil, err
	}
	h.version = int(v)
	h.resource, _ = obj[KeyResource].(string)
	if raw, ok := obj[KeySchema].([]any); ok {
		for _, k := range raw {
			s, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("%s holds %T", KeySchema, k)
			}
			h.schema = append(h.schema, s)
		}
	}
	return h, nil
}

// record is one parsed line. It implements index.RawRecord and
// index.PathRecord.
type record struct {
	path   string
	offset int64
	length int64
	keys   []string
	attrs  map[string]string
}

func (r *record) Keys() []string { return r.keys }

func (r *record) Get(key string) (string, bool) {
	v, ok := r.attrs[key]
	return v, ok
}

func (r *record) Offset() int64 { return r.offset }
func (r *record) Length() int64 { return r.length }
func (r *record) Path() string  { return r.path }

func parseRecord(line []byte, obj map[string]any, opts ReadOptions) (*record, error) {
	rec := &record{attrs: make(map[string]string, len(obj))}

	var err error
	if rec.offset, err = intField(obj, KeyOffset); err != nil {
		return nil, err
	}
	if rec.length, err = intField(obj, KeyLength); err != nil {
		return nil, err
	}

	switch p := obj[KeyPath].(type) {
	case string:
		rec.path = resolve(opts.IndexURL, p)
	case nil:
		if opts.DataURL == "" {
			return nil, ErrMissingPath
		}
		rec.path = opts.DataURL
	default:
		return nil, fmt.Errorf("%s holds %T", KeyPath, p)
	}

	for k, v := range obj {
		if len(k) > 0 && k[0] == '_' {
			continue
		}
		s, ok := formatValue(v)
		if !ok {
			continue
		}
		rec.attrs[k] = s
		rec.keys = append(rec.keys, k)
	}
	sortByPosition(line, rec.keys)
	return rec, nil
}

func intField(obj map[string]any, key string) (int64, error) {
	n, ok := obj[key].(json.Number)
	if !ok {
		return 0, fmt.Errorf("missing or non-numeric %s", key)
	}
	return n.Int64()
}

// formatValue renders a JSON value the way selection values are
// normalized, so that 500 and 500.0 both become "500". Nulls are absent.
func formatValue(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return strconv.FormatInt(i, 10), true
		}
		if f, err := x.Float64(); err == nil {
			return selection.FormatFloat(f), true
		}
		return x.String(), true
	case bool:
		return strconv.FormatBool(x), true
	}
	b, err := codec.Default.Marshal(v)
	if err != nil {
		return "", false
	}
	return string(b), true
}

// sortByPosition orders keys by where they first appear in line, which
// restores the key order of the object.
func sortByPosition(line []byte, keys []string) {
	pos := make(map[string]int, len(keys))
	for _, k := range keys {
		quoted, _ := codec.Default.Marshal(k)
		pos[k] = bytes.Index(line, append(quoted, ':'))
		if pos[k] < 0 {
			pos[k] = bytes.Index(line, quoted)
		}
	}
	slices.SortFunc(keys, func(a, b string) int { return pos[a] - pos[b] })
}

// resolve interprets p relative to the location of the index.
func resolve(indexURL, p string) string {
	if indexURL == "" || p == "" {
		return p
	}
	if u, err := url.Parse(p); err == nil && len(u.Scheme) > 1 {
		return p
	}
	if base, err := url.Parse(indexURL); err == nil && len(base.Scheme) > 1 && base.Scheme != "file" {
		ref, err := url.Parse(p)
		if err != nil {
			return p
		}
		return base.ResolveReference(ref).String()
	}
	if filepath.IsAbs(p) {
		return p
	}
	dir := filepath.Dir(stripFileScheme(indexURL))
	return filepath.Join(dir, p)
}

func stripFileScheme(s string) string {
	if u, err := url.Parse(s); err == nil && u.Scheme == "file" {
		return u.Path
	}
	return s
}
