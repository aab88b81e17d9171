package grib

import (
	"context"
	"fmt"
	"io"
	"iter"

	"github.com/hupe1980/rangeidx/index"
)

// Record is a decoded message.
type Record interface {
	// Keys lists the attribute names in a stable order.
	Keys() []string
	// Get returns an attribute rendered as a string.
	Get(name string) (string, bool)
	// Values returns the data values of the field.
	Values() ([]float64, error)
}

// Decoder turns the bytes of one message into a Record. Implementations
// usually wrap a native GRIB library.
type Decoder interface {
	Decode(msg []byte) (Record, error)
}

// DecoderFunc adapts a function to Decoder.
type DecoderFunc func(msg []byte) (Record, error)

func (f DecoderFunc) Decode(msg []byte) (Record, error) { return f(msg) }

// DecodeError reports a message the decoder rejected.
type DecodeError struct {
	Offset int64
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("grib: decode message at %d: %v", e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Records scans r and decodes every message into an index record.
func Records(ctx context.Context, r io.ReaderAt, size int64, dec Decoder) iter.Seq2[index.RawRecord, error] {
	return func(yield func(index.RawRecord, error) bool) {
		for msg, err := range Scan(ctx, r, size) {
			if err != nil {
				yield(nil, err)
				return
			}
			buf := make([]byte, msg.Length)
			if n, err := r.ReadAt(buf, msg.Offset); n != len(buf) {
				if err == nil {
					err = io.ErrUnexpectedEOF
				}
				yield(nil, err)
				return
			}
			rec, err := dec.Decode(buf)
			if err != nil {
				yield(nil, &DecodeError{Offset: msg.Offset, Err: err})
				return
			}
			if !yield(&located{Record: rec, msg: msg}, nil) {
				return
			}
		}
	}
}

type located struct {
	Record
	msg Message
}

func (l *located) Offset() int64 { return l.msg.Offset }
func (l *located) Length() int64 { return l.msg.Length }
