package rangeidx

import (
	"io"
	"iter"

	"github.com/hupe1980/rangeidx/grib"
	"github.com/hupe1980/rangeidx/index"
	"github.com/hupe1980/rangeidx/order"
	"github.com/hupe1980/rangeidx/parts"
	"github.com/hupe1980/rangeidx/retrieve"
)

// Record is one retrieved record. Data aliases the fetched block.
type Record struct {
	index.Entry
	Data []byte

	dec grib.Decoder
}

// Decode decodes the record with the decoder of its source.
func (r Record) Decode() (grib.Record, error) {
	if r.dec == nil {
		return nil, ErrNoDecoder
	}
	return r.dec.Decode(r.Data)
}

// Fieldset holds the retrieved records of a view, in view order.
type Fieldset struct {
	entries []index.Entry
	result  *retrieve.Result
	dec     grib.Decoder
}

var _ order.Sequence[Record] = (*Fieldset)(nil)

// Len returns the number of records.
func (f *Fieldset) Len() int { return len(f.entries) }

// At returns record i, or the error of the block holding it.
func (f *Fieldset) At(i int) (Record, error) {
	e, err := order.Slice[index.Entry](f.entries).At(i)
	if err != nil {
		return Record{}, err
	}
	data, err := f.result.Record(e.Path, e.Part())
	if err != nil {
		return Record{}, translateError(err)
	}
	return Record{Entry: e, Data: data, dec: f.dec}, nil
}

// All yields every record in order.
func (f *Fieldset) All() iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		for i := range f.entries {
			if !yield(f.At(i)) {
				return
			}
		}
	}
}

// Err aggregates every failed block, or returns nil.
func (f *Fieldset) Err() error { return f.result.Err() }

// Stats reports requested and downloaded bytes.
func (f *Fieldset) Stats() parts.Stats { return f.result.Stats() }

// WriteTo writes the bytes of every record to w in order. It stops at the
// first record that is not available.
func (f *Fieldset) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for r, err := range f.All() {
		if err != nil {
			return total, err
		}
		n, err := w.Write(r.Data)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
