package order

import "fmt"

// Permuted is a view of a sequence in another order: element i of the view
// is element Perm[i] of the underlying sequence.
type Permuted[T any] struct {
	seq  Sequence[T]
	perm []int
}

// Permute returns seq reordered by perm, which must be a permutation of
// [0, seq.Len()). A nil perm is the identity.
func Permute[T any](seq Sequence[T], perm []int) Sequence[T] {
	if perm == nil {
		return seq
	}
	return &Permuted[T]{seq: seq, perm: perm}
}

func (p *Permuted[T]) Len() int { return len(p.perm) }

func (p *Permuted[T]) At(i int) (T, error) {
	if i < 0 || i >= len(p.perm) {
		var zero T
		return zero, fmt.Errorf("%w: %d of %d", ErrOutOfRange, i, len(p.perm))
	}
	return p.seq.At(p.perm[i])
}

// SortSequence returns the permutation that orders seq under spec. Every
// element is read once.
func SortSequence[T any](seq Sequence[T], attr func(item T, key string) (string, bool), spec Spec) ([]int, error) {
	items := make([]T, seq.Len())
	for i := range items {
		v, err := seq.At(i)
		if err != nil {
			return nil, err
		}
		items[i] = v
	}
	return Permutation(len(items), func(i int, key string) (string, bool) {
		return attr(items[i], key)
	}, spec), nil
}
