package order

import (
	"errors"
	"fmt"
	"iter"
	"sort"
	"sync"
)

// ErrOutOfRange is returned for an index outside a sequence.
var ErrOutOfRange = errors.New("order: index out of range")

// Sequence is a random access collection.
type Sequence[T any] interface {
	Len() int
	At(i int) (T, error)
}

// Merger is implemented by sequences that know how to merge with others
// better than plain concatenation.
type Merger[T any] interface {
	Merge(others ...Sequence[T]) Sequence[T]
}

// Merge combines seqs into one logical sequence. The first sequence decides
// how: its Merger is used when it implements one, concatenation otherwise.
func Merge[T any](seqs ...Sequence[T]) Sequence[T] {
	if len(seqs) > 0 {
		if m, ok := seqs[0].(Merger[T]); ok {
			return m.Merge(seqs[1:]...)
		}
	}
	return NewConcat(seqs...)
}

// Slice adapts a slice to Sequence.
type Slice[T any] []T

func (s Slice[T]) Len() int { return len(s) }

func (s Slice[T]) At(i int) (T, error) {
	if i < 0 || i >= len(s) {
		var zero T
		return zero, fmt.Errorf("%w: %d of %d", ErrOutOfRange, i, len(s))
	}
	return s[i], nil
}

// Concat is the concatenation of sequences, each keeping its own order.
//
// Lengths are asked for lazily, once per source, and turned into prefix sums
// so that index n resolves to (source i, n - offset i).
type Concat[T any] struct {
	seqs []Sequence[T]

	mu sync.Mutex
	// prefix[i] is the global index of the first element of seqs[i], known
	// for i <= len(prefix)-1.
	prefix []int
}

// NewConcat returns the concatenation of seqs. Nested concatenations are
// flattened.
func NewConcat[T any](seqs ...Sequence[T]) *Concat[T] {
	flat := make([]Sequence[T], 0, len(seqs))
	for _, s := range seqs {
		if c, ok := s.(*Concat[T]); ok {
			flat = append(flat, c.seqs...)
			continue
		}
		flat = append(flat, s)
	}
	return &Concat[T]{seqs: flat, prefix: []int{0}}
}

// Sources returns the concatenated sequences.
func (c *Concat[T]) Sources() []Sequence[T] { return c.seqs }

// Merge appends others, keeping nested sources flat.
func (c *Concat[T]) Merge(others ...Sequence[T]) Sequence[T] {
	return NewConcat(append([]Sequence[T]{c}, others...)...)
}

// Len returns the total length, measuring every source.
func (c *Concat[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.measure(len(c.seqs))
	return c.prefix[len(c.seqs)]
}

// Locate maps a global index to a source and a local index.
func (c *Concat[T]) Locate(n int) (source, local int, err error) {
	if n < 0 {
		return 0, 0, fmt.Errorf("%w: %d", ErrOutOfRange, n)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	for c.prefix[len(c.prefix)-1] <= n && len(c.prefix) <= len(c.seqs) {
		c.measure(len(c.prefix))
	}
	known := len(c.prefix) - 1
	// First source whose end lies beyond n.
	i := sort.Search(known, func(i int) bool { return c.prefix[i+1] > n })
	if i == known {
		return 0, 0, fmt.Errorf("%w: %d of %d", ErrOutOfRange, n, c.prefix[known])
	}
	return i, n - c.prefix[i], nil
}

// At returns element n.
func (c *Concat[T]) At(n int) (T, error) {
	i, local, err := c.Locate(n)
	if err != nil {
		var zero T
		return zero, err
	}
	return c.seqs[i].At(local)
}

// All iterates every element in order.
func (c *Concat[T]) All() iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for _, s := range c.seqs {
			for i := range s.Len() {
				if !yield(s.At(i)) {
					return
				}
			}
		}
	}
}

// measure extends prefix until it covers the first upto sources.
func (c *Concat[T]) measure(upto int) {
	for len(c.prefix) <= upto {
		i := len(c.prefix) - 1
		c.prefix = append(c.prefix, c.prefix[i]+c.seqs[i].Len())
	}
}
