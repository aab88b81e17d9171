package rangeidx

import (
	"context"
	"io"
	"iter"

	"github.com/hupe1980/rangeidx/index"
	"github.com/hupe1980/rangeidx/order"
	"github.com/hupe1980/rangeidx/parts"
)

// Multi concatenates sources. Until OrderBy is called each source keeps its
// own order and positions are resolved through prefix sums of the source
// lengths, which are only asked for when needed. OrderBy sorts across all
// sources; the resulting permutation is kept and followed by every accessor.
type Multi struct {
	sources []*Source
	entries *order.Concat[index.Entry]
	order   order.Spec
	// perm maps view positions to concatenation positions; nil is identity.
	perm []int
}

// Merge concatenates sources. Nested merges stay flat.
func Merge(sources ...*Source) *Multi {
	m := &Multi{sources: sources}
	seqs := make([]order.Sequence[index.Entry], len(sources))
	for i, s := range sources {
		seqs[i] = entrySeq{s}
	}
	m.entries = order.NewConcat(seqs...)
	return m
}

type entrySeq struct{ s *Source }

func (e entrySeq) Len() int                      { return e.s.Len() }
func (e entrySeq) At(i int) (index.Entry, error) { return e.s.Entry(i) }

// Merge appends the sources of others. Orderings of the merged views are
// not carried over.
func (m *Multi) Merge(others ...*Multi) *Multi {
	sources := append([]*Source(nil), m.sources...)
	for _, o := range others {
		sources = append(sources, o.sources...)
	}
	return Merge(sources...)
}

// Sources returns the merged sources.
func (m *Multi) Sources() []*Source { return m.sources }

// Order returns the ordering applied across sources.
func (m *Multi) Order() order.Spec { return m.order }

// Len returns the total number of records.
func (m *Multi) Len() int { return m.entries.Len() }

// Entry returns entry n of the view.
func (m *Multi) Entry(n int) (index.Entry, error) {
	return m.view().At(n)
}

func (m *Multi) view() order.Sequence[index.Entry] {
	return order.Permute[index.Entry](m.entries, m.perm)
}

func (m *Multi) position(n int) (int, error) {
	if m.perm == nil {
		return n, nil
	}
	if n < 0 || n >= len(m.perm) {
		return 0, order.ErrOutOfRange
	}
	return m.perm[n], nil
}

// At fetches record n.
func (m *Multi) At(ctx context.Context, n int) (Record, error) {
	pos, err := m.position(n)
	if err != nil {
		return Record{}, err
	}
	i, local, err := m.entries.Locate(pos)
	if err != nil {
		return Record{}, err
	}
	return m.sources[i].At(ctx, local)
}

// Select applies the selection to every source. An ordering in place is
// applied again to the narrowed view.
func (m *Multi) Select(args ...map[string]any) (*Multi, error) {
	out := make([]*Source, len(m.sources))
	for i, s := range m.sources {
		sel, err := s.Select(args...)
		if err != nil {
			return nil, err
		}
		out[i] = sel
	}
	return Merge(out...).sorted(m.order)
}

// OrderBy sorts the records of all sources as one sequence. The sort is
// stable: records equal under the new keys keep their current relative
// order, which is why earlier keys are kept as tie breakers.
func (m *Multi) OrderBy(args ...any) (*Multi, error) {
	spec, err := order.Normalize(args...)
	if err != nil {
		return nil, translateError(err)
	}
	if len(m.sources) > 0 {
		spec = m.sources[0].renameKeys(spec)
	}
	for _, k := range m.order {
		if !hasKey(spec, k.Name) {
			spec = append(spec, k)
		}
	}
	return Merge(m.sources...).sorted(spec)
}

// sorted orders the plain concatenation m by spec.
func (m *Multi) sorted(spec order.Spec) (*Multi, error) {
	m.order = spec
	if spec.Empty() {
		return m, nil
	}
	perm, err := order.SortSequence[index.Entry](m.entries, index.Entry.Get, spec)
	if err != nil {
		return nil, err
	}
	m.perm = perm
	return m, nil
}

// Retrieve fetches every source and returns the records in view order. On
// error the records retrieved so far are still returned; records of a
// source that could not be planned report its error on access.
func (m *Multi) Retrieve(ctx context.Context, method string) (order.Sequence[Record], error) {
	seq, _, err := m.retrieve(ctx, method)
	return seq, err
}

func (m *Multi) retrieve(ctx context.Context, method string) (order.Sequence[Record], parts.Stats, error) {
	seqs := make([]order.Sequence[Record], 0, len(m.sources))
	var (
		stats    parts.Stats
		firstErr error
	)
	for _, s := range m.sources {
		fs, err := s.Retrieve(ctx, method)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		if fs == nil {
			seqs = append(seqs, failedSeq{n: s.Len(), err: err})
			continue
		}
		stats.Add(fs.Stats())
		seqs = append(seqs, fs)
	}
	return order.Permute(order.Merge(seqs...), m.perm), stats, firstErr
}

// failedSeq stands in for a source that produced no fieldset, so that the
// positions of later sources stay aligned.
type failedSeq struct {
	n   int
	err error
}

func (f failedSeq) Len() int               { return f.n }
func (f failedSeq) At(int) (Record, error) { return Record{}, f.err }

// All yields every record in view order.
func (m *Multi) All(ctx context.Context) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		seq, _, err := m.retrieve(ctx, "")
		if seq.Len() == 0 && err != nil {
			yield(Record{}, err)
			return
		}
		for i := range seq.Len() {
			if !yield(seq.At(i)) {
				return
			}
		}
	}
}

// Download writes the bytes of every record to w in view order. Nothing is
// written when any record could not be fetched.
func (m *Multi) Download(ctx context.Context, w io.Writer) (parts.Stats, error) {
	seq, stats, err := m.retrieve(ctx, "")
	if err != nil {
		return stats, err
	}
	for i := range seq.Len() {
		r, err := seq.At(i)
		if err != nil {
			return stats, err
		}
		if _, err := w.Write(r.Data); err != nil {
			return stats, err
		}
	}
	return stats, nil
}
