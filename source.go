package rangeidx

import (
	"context"
	"fmt"
	"io"
	"iter"
	"time"

	"github.com/hupe1980/rangeidx/grib"
	"github.com/hupe1980/rangeidx/index"
	"github.com/hupe1980/rangeidx/order"
	"github.com/hupe1980/rangeidx/parts"
	"github.com/hupe1980/rangeidx/retrieve"
	"github.com/hupe1980/rangeidx/selection"
)

// Source is an ordered view of the records of an index. Select and
// OrderBy return new views; a Source itself never changes.
type Source struct {
	client  *Client
	idx     *index.Index
	dec     grib.Decoder
	sel     selection.Selection
	order   order.Spec
	entries []index.Entry
}

func newSource(c *Client, idx *index.Index, dec grib.Decoder) *Source {
	return &Source{
		client:  c,
		idx:     idx,
		dec:     dec,
		sel:     selection.Selection{},
		entries: idx.Entries(),
	}
}

// Index returns the underlying index.
func (s *Source) Index() *index.Index { return s.idx }

// Selection returns the accumulated constraints of the view.
func (s *Source) Selection() selection.Selection { return s.sel }

// Order returns the ordering of the view.
func (s *Source) Order() order.Spec { return s.order }

// Select narrows the view. Arguments are merged left to right as by
// selection.Normalize and then composed with the constraints already in
// place, so selecting twice keeps only records allowed by both. Keys pass
// through the client's aliases. The current ordering is kept.
func (s *Source) Select(args ...map[string]any) (*Source, error) {
	ctx := context.Background()
	start := time.Now()

	sel, err := selection.Normalize(args...)
	if err != nil {
		return nil, translateError(err)
	}
	merged := selection.Merge(s.sel, sel.Rename(s.client.opts.aliases))

	entries, err := s.idx.Lookup(merged,
		index.Strict(s.client.opts.strict),
		index.OnUnknownKey(func(k string) { s.client.logger.LogUnknownKey(ctx, k) }),
	)
	s.client.logger.LogLookup(ctx, merged.String(), len(entries), err)
	s.client.metrics.RecordLookup(len(entries), time.Since(start), err)
	if err != nil {
		return nil, translateError(err)
	}
	if !s.order.Empty() {
		entries = order.Sort(entries, index.Entry.Get, s.order)
	}

	out := *s
	out.sel = merged
	out.entries = entries
	return &out, nil
}

// OrderBy returns the view sorted by the given keys, see order.Normalize.
// The sort is stable: records equal under the new keys keep their current
// relative order.
func (s *Source) OrderBy(args ...any) (*Source, error) {
	spec, err := order.Normalize(args...)
	if err != nil {
		return nil, translateError(err)
	}
	spec = s.renameKeys(spec)

	out := *s
	out.entries = order.Sort(s.entries, index.Entry.Get, spec)
	// Earlier keys break ties, so re-sorting after a selection gives
	// the same order.
	out.order = spec
	for _, k := range s.order {
		if !hasKey(spec, k.Name) {
			out.order = append(out.order, k)
		}
	}
	return &out, nil
}

func (s *Source) renameKeys(spec order.Spec) order.Spec {
	aliases := s.client.opts.aliases
	if len(aliases) == 0 {
		return spec
	}
	out := make(order.Spec, 0, len(spec))
	for _, k := range spec {
		if to, ok := aliases[k.Name]; ok {
			k.Name = to
		}
		out = out.Then(order.Spec{k})
	}
	return out
}

func hasKey(spec order.Spec, name string) bool {
	for _, k := range spec {
		if k.Name == name {
			return true
		}
	}
	return false
}

// Len returns the number of records in the view.
func (s *Source) Len() int { return len(s.entries) }

// Entry returns the location and attributes of record n.
func (s *Source) Entry(n int) (index.Entry, error) {
	return order.Slice[index.Entry](s.entries).At(n)
}

// Entries returns all entries in view order.
func (s *Source) Entries() []index.Entry {
	return append([]index.Entry(nil), s.entries...)
}

// Plan groups the records of the view into range requests with method.
// The empty method is the client default.
func (s *Source) Plan(method string) (*retrieve.Plan, error) {
	strategy, err := s.client.opts.strategy(method)
	if err != nil {
		return nil, err
	}
	paths, byPath := index.GroupByPath(s.entries)
	plan, err := retrieve.NewPlan(paths, byPath, strategy)
	if err != nil {
		return nil, err
	}
	s.client.metrics.RecordPlan(plan.Stats())
	return plan, nil
}

// Retrieve fetches every record of the view. The returned Fieldset is
// usable even when err is not nil: records whose block failed report the
// error on access.
func (s *Source) Retrieve(ctx context.Context, method string) (*Fieldset, error) {
	plan, err := s.Plan(method)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := s.client.executor.Execute(ctx, plan)
	d := time.Since(start)

	stats := res.Stats()
	s.client.logger.WithMethod(method).LogFetch(ctx, stats, d, err)
	s.client.metrics.RecordFetch(stats, d, err)

	return &Fieldset{entries: s.entries, result: res, dec: s.dec}, translateError(err)
}

// At fetches record n on its own.
func (s *Source) At(ctx context.Context, n int) (Record, error) {
	e, err := s.Entry(n)
	if err != nil {
		return Record{}, err
	}
	data, err := s.client.transport.FetchRange(ctx, e.Path, e.Offset, e.Length)
	if err == nil && int64(len(data)) < e.Length {
		err = fmt.Errorf("%w: got %d of %d bytes", retrieve.ErrTruncated, len(data), e.Length)
	}
	if err != nil {
		return Record{}, translateError(&retrieve.FetchError{Path: e.Path, Offset: e.Offset, Length: e.Length, Err: err})
	}
	return Record{Entry: e, Data: data[:e.Length], dec: s.dec}, nil
}

// All retrieves the view with the default method and yields its records in
// order.
func (s *Source) All(ctx context.Context) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		fs, err := s.Retrieve(ctx, "")
		if fs == nil {
			yield(Record{}, err)
			return
		}
		for r, err := range fs.All() {
			if !yield(r, err) {
				return
			}
		}
	}
}

// Download writes the bytes of every record of the view to w, in view
// order. Nothing is written when any record could not be fetched.
func (s *Source) Download(ctx context.Context, w io.Writer) (parts.Stats, error) {
	fs, err := s.Retrieve(ctx, "")
	if err != nil {
		if fs != nil {
			return fs.Stats(), err
		}
		return parts.Stats{}, err
	}
	_, err = fs.WriteTo(w)
	return fs.Stats(), err
}

func (s *Source) String() string {
	return fmt.Sprintf("Source(%s, %d records, select=%s, order=%s)", s.idx.Resource(), len(s.entries), s.sel, s.order)
}
