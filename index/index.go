package index

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"iter"
	"maps"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/rangeidx/selection"
)

// Version is embedded in every persisted index. Bump it whenever stored
// data would be read differently, so stale caches are rebuilt.
const Version = 1

var (
	// ErrUnknownKey is returned by strict lookups that constrain an
	// attribute missing from the schema.
	ErrUnknownKey = errors.New("index: unknown selection key")
	// ErrVersionMismatch is returned when a persisted index has another version.
	ErrVersionMismatch = errors.New("index: version mismatch")
	// ErrResourceMismatch is returned when a persisted index belongs to
	// another resource.
	ErrResourceMismatch = errors.New("index: resource mismatch")
	// ErrInvalidEntry is returned for entries with a negative offset or a
	// non-positive length.
	ErrInvalidEntry = errors.New("index: invalid entry")
)

// BuildError reports a failure while scanning a resource.
type BuildError struct {
	Resource string
	Err      error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("index: build %s: %v", e.Resource, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// Index maps attribute values to record locations. It is read-only once
// built; Append is the only mutation.
type Index struct {
	resource string
	version  int
	schema   []string
	entries  []Entry

	paths    []string
	pathIDs  map[string]int
	byPath   []*roaring.Bitmap
	postings map[string]map[string]*roaring.Bitmap
}

// New assembles an index from already decoded entries, as done by stores
// when loading. Attributes outside schema are dropped.
func New(resource string, version int, schema []string, entries []Entry) (*Index, error) {
	idx := &Index{
		resource: resource,
		version:  version,
		schema:   uniqueKeys(schema),
		pathIDs:  make(map[string]int),
		postings: make(map[string]map[string]*roaring.Bitmap, len(schema)),
	}
	for _, k := range schema {
		idx.postings[k] = make(map[string]*roaring.Bitmap)
	}
	if err := idx.Append(entries...); err != nil {
		return nil, err
	}
	return idx, nil
}

// Build scans records once and indexes them. The schema is the key list of
// the first record; keys outside it are ignored and keys missing from a
// later record are stored as absent. A failing record aborts the build.
func Build(ctx context.Context, resource string, records iter.Seq2[RawRecord, error], opts ...BuildOption) (*Index, error) {
	o := buildOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	var (
		idx    *Index
		schema []string
	)
	for rec, err := range records {
		if err == nil {
			err = ctx.Err()
		}
		if err != nil {
			return nil, &BuildError{Resource: resource, Err: err}
		}
		if idx == nil {
			schema = append(slices.Clone(rec.Keys()), o.remapping.Keys()...)
			if idx, err = New(resource, Version, schema, nil); err != nil {
				return nil, &BuildError{Resource: resource, Err: err}
			}
		}

		attrs := make(map[string]string, len(schema))
		for _, k := range rec.Keys() {
			if _, known := idx.postings[k]; !known {
				continue
			}
			if v, ok := rec.Get(k); ok {
				attrs[k] = v
			}
		}
		attrs = o.remapping.Apply(attrs)

		path := resource
		if pr, ok := rec.(PathRecord); ok && pr.Path() != "" {
			path = pr.Path()
		}
		e := Entry{Path: path, Offset: rec.Offset(), Length: rec.Length(), Attrs: attrs}
		if err := idx.Append(e); err != nil {
			return nil, &BuildError{Resource: resource, Err: err}
		}
	}
	if idx == nil {
		idx, _ = New(resource, Version, nil, nil)
	}
	return idx, nil
}

// uniqueKeys drops repeated keys, keeping the first occurrence. A
// remapping may redefine a scanned key.
func uniqueKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// BuildOption configures Build.
type BuildOption func(*buildOptions)

type buildOptions struct {
	remapping Remapping
}

// WithRemapping stores derived attributes next to the scanned ones.
func WithRemapping(r Remapping) BuildOption {
	return func(o *buildOptions) { o.remapping = r }
}

// Append adds entries, keeping the schema fixed.
func (x *Index) Append(entries ...Entry) error {
	for _, e := range entries {
		if e.Offset < 0 || e.Length <= 0 {
			return fmt.Errorf("%w: %s@%d+%d", ErrInvalidEntry, e.Path, e.Offset, e.Length)
		}
		id := uint32(len(x.entries))

		attrs := make(map[string]string, len(x.schema))
		for _, k := range x.schema {
			v, ok := e.Attrs[k]
			if !ok {
				continue
			}
			attrs[k] = v
			bm, ok := x.postings[k][v]
			if !ok {
				bm = roaring.New()
				x.postings[k][v] = bm
			}
			bm.Add(id)
		}
		e.Attrs = attrs

		pid, ok := x.pathIDs[e.Path]
		if !ok {
			pid = len(x.paths)
			x.pathIDs[e.Path] = pid
			x.paths = append(x.paths, e.Path)
			x.byPath = append(x.byPath, roaring.New())
		}
		x.byPath[pid].Add(id)
		x.entries = append(x.entries, e)
	}
	return nil
}

// Resource returns the identity of the indexed resource.
func (x *Index) Resource() string { return x.resource }

// Version returns the format version the index was built with.
func (x *Index) Version() int { return x.version }

// Schema returns the attribute names in discovery order.
func (x *Index) Schema() []string { return slices.Clone(x.schema) }

// HasKey reports whether key is part of the schema.
func (x *Index) HasKey(key string) bool {
	_, ok := x.postings[key]
	return ok
}

// Len returns the number of entries.
func (x *Index) Len() int { return len(x.entries) }

// Entry returns entry i in build order.
func (x *Index) Entry(i int) Entry { return x.entries[i] }

// Entries returns all entries in build order.
func (x *Index) Entries() []Entry { return slices.Clone(x.entries) }

// Paths returns the indexed paths in first-seen order.
func (x *Index) Paths() []string { return slices.Clone(x.paths) }

// Values returns the distinct observed values of key, sorted.
func (x *Index) Values(key string) []string {
	return slices.Sorted(maps.Keys(x.postings[key]))
}

// LookupOption configures Lookup.
type LookupOption func(*LookupOptions)

// LookupOptions controls how lookups treat keys outside the schema.
type LookupOptions struct {
	// Strict makes unknown keys fail with ErrUnknownKey.
	Strict bool
	// OnUnknownKey is called for every ignored unknown key.
	OnUnknownKey func(key string)
}

// NewLookupOptions applies opts to the permissive defaults.
func NewLookupOptions(opts ...LookupOption) LookupOptions {
	o := LookupOptions{}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// Unknown handles a constrained key missing from the schema. It returns
// ErrUnknownKey in strict mode and reports the key otherwise.
func (o LookupOptions) Unknown(key string) error {
	if o.Strict {
		return fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	if o.OnUnknownKey != nil {
		o.OnUnknownKey(key)
	}
	return nil
}

// Strict makes Lookup fail with ErrUnknownKey on keys outside the schema.
func Strict(strict bool) LookupOption {
	return func(o *LookupOptions) { o.Strict = strict }
}

// OnUnknownKey is called for every ignored key outside the schema.
func OnUnknownKey(fn func(key string)) LookupOption {
	return func(o *LookupOptions) { o.OnUnknownKey = fn }
}

// Lookup returns the entries matching sel: equality for scalars, membership
// for lists and predicates, conjoined over all constrained keys. Entries
// come in ascending offset order within each path and paths in first-seen
// order. Keys outside the schema are ignored unless Strict is set.
func (x *Index) Lookup(sel selection.Selection, opts ...LookupOption) ([]Entry, error) {
	o := NewLookupOptions(opts...)

	match := roaring.New()
	match.AddRange(0, uint64(len(x.entries)))

	for _, k := range sel.Constrained() {
		values, known := x.postings[k]
		if !known {
			if err := o.Unknown(k); err != nil {
				return nil, err
			}
			continue
		}

		v := sel[k]
		allowed := roaring.New()
		if v.Enumerable() {
			for _, s := range v.Values() {
				if bm, ok := values[s]; ok {
					allowed.Or(bm)
				}
			}
		} else {
			for s, bm := range values {
				if v.Match(s, true) {
					allowed.Or(bm)
				}
			}
		}
		match.And(allowed)
		if match.IsEmpty() {
			return nil, nil
		}
	}

	out := make([]Entry, 0, match.GetCardinality())
	for pid := range x.paths {
		ids := roaring.And(match, x.byPath[pid])
		start := len(out)
		it := ids.Iterator()
		for it.HasNext() {
			out = append(out, x.entries[it.Next()])
		}
		slices.SortStableFunc(out[start:], func(a, b Entry) int {
			return cmp.Compare(a.Offset, b.Offset)
		})
	}
	return out, nil
}

// Validate checks that a loaded index belongs to resource and has the
// current version.
func (x *Index) Validate(resource string) error {
	if x.version != Version {
		return fmt.Errorf("%w: have %d, want %d", ErrVersionMismatch, x.version, Version)
	}
	if resource != "" && x.resource != resource {
		return fmt.Errorf("%w: have %q, want %q", ErrResourceMismatch, x.resource, resource)
	}
	return nil
}
