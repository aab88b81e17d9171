package testutil

import (
	"iter"
	"maps"
	"math/rand"
	"slices"
	"sync"

	"github.com/hupe1980/rangeidx/index"
)

// RNG is a seeded, thread-safe random source.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG with the given seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Domain lists the possible values of each attribute.
type Domain map[string][]string

// Record is a synthetic record. It satisfies index.RawRecord and the
// grib.Record interface.
type Record struct {
	File   string
	Off    int64
	Len    int64
	Fields []string
	Attrs  map[string]string
	Data   []float64
}

// NewRecord builds a record from key/value pairs, keeping key order.
func NewRecord(kv ...string) *Record {
	r := &Record{Attrs: make(map[string]string, len(kv)/2)}
	for i := 0; i+1 < len(kv); i += 2 {
		r.Fields = append(r.Fields, kv[i])
		r.Attrs[kv[i]] = kv[i+1]
	}
	return r
}

// At sets the location of the record and returns it.
func (r *Record) At(offset, length int64) *Record {
	r.Off, r.Len = offset, length
	return r
}

func (r *Record) Keys() []string { return slices.Clone(r.Fields) }

func (r *Record) Get(key string) (string, bool) {
	v, ok := r.Attrs[key]
	return v, ok
}

func (r *Record) Offset() int64 { return r.Off }
func (r *Record) Length() int64 { return r.Len }
func (r *Record) Path() string  { return r.File }

func (r *Record) Values() ([]float64, error) { return slices.Clone(r.Data), nil }

// Records yields recs as index records.
func Records(recs ...*Record) iter.Seq2[index.RawRecord, error] {
	return func(yield func(index.RawRecord, error) bool) {
		for _, r := range recs {
			if !yield(r, nil) {
				return
			}
		}
	}
}

// FailingRecords yields recs and then err.
func FailingRecords(err error, recs ...*Record) iter.Seq2[index.RawRecord, error] {
	return func(yield func(index.RawRecord, error) bool) {
		for _, r := range recs {
			if !yield(r, nil) {
				return
			}
		}
		yield(nil, err)
	}
}

// RandomRecords returns n records of path with attributes drawn from
// domain, laid out at increasing offsets with random gaps.
func (r *RNG) RandomRecords(path string, n int, domain Domain) []*Record {
	keys := slices.Sorted(maps.Keys(domain))
	out := make([]*Record, 0, n)
	off := int64(r.Intn(64))
	for range n {
		rec := &Record{File: path, Attrs: make(map[string]string, len(keys))}
		for _, k := range keys {
			vs := domain[k]
			rec.Fields = append(rec.Fields, k)
			rec.Attrs[k] = vs[r.Intn(len(vs))]
		}
		rec.Len = int64(1 + r.Intn(256))
		rec.Off = off
		off += rec.Len + int64(r.Intn(64))
		out = append(out, rec)
	}
	return out
}

// Bytes returns n pseudo-random bytes.
func (r *RNG) Bytes(n int) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := make([]byte, n)
	_, _ = r.rand.Read(b)
	return b
}
