package order

import (
	"cmp"
	"slices"
	"strconv"
	"strings"

	"github.com/hupe1980/rangeidx/selection"
)

// AttrFunc returns the value of attribute key for item i.
type AttrFunc func(i int, key string) (string, bool)

// Permutation returns the stable order of n items under spec.
//
// Ascending and descending keys compare numerically when every present
// value of the key parses as a number and as strings otherwise. Explicit
// keys rank values by their position in the list; values absent from the
// list follow all listed values. Items lacking the attribute come last for
// every direction. None keys are ignored.
func Permutation(n int, attr AttrFunc, spec Spec) []int {
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	cols := make([]column, 0, len(spec))
	for _, k := range spec {
		if k.Direction == None {
			continue
		}
		cols = append(cols, newColumn(k, n, attr))
	}
	if len(cols) == 0 {
		return perm
	}
	slices.SortStableFunc(perm, func(a, b int) int {
		for _, c := range cols {
			if r := c.compare(a, b); r != 0 {
				return r
			}
		}
		return 0
	})
	return perm
}

// Sort returns a stably ordered copy of items.
func Sort[T any](items []T, attr func(item T, key string) (string, bool), spec Spec) []T {
	perm := Permutation(len(items), func(i int, key string) (string, bool) {
		return attr(items[i], key)
	}, spec)
	out := make([]T, len(items))
	for i, p := range perm {
		out[i] = items[p]
	}
	return out
}

type column struct {
	key     Key
	present []bool
	strs    []string
	nums    []float64
	ranks   []int
	numeric bool
}

func newColumn(k Key, n int, attr AttrFunc) column {
	c := column{
		key:     k,
		present: make([]bool, n),
		strs:    make([]string, n),
		numeric: true,
	}
	for i := range n {
		c.strs[i], c.present[i] = attr(i, k.Name)
	}

	switch k.Direction {
	case Explicit:
		rank := make(map[string]int, 2*len(k.Values))
		for i, v := range k.Values {
			if _, ok := rank[v]; !ok {
				rank[v] = i
			}
			if cv, ok := canonicalNumber(v); ok {
				if _, dup := rank[cv]; !dup {
					rank[cv] = i
				}
			}
		}
		c.ranks = make([]int, n)
		for i := range n {
			switch {
			case !c.present[i]:
				c.ranks[i] = len(k.Values) + 1
			default:
				r, ok := rank[c.strs[i]]
				if !ok {
					if cv, isNum := canonicalNumber(c.strs[i]); isNum {
						r, ok = rank[cv]
					}
				}
				if !ok {
					r = len(k.Values)
				}
				c.ranks[i] = r
			}
		}
	case Ascending, Descending:
		c.nums = make([]float64, n)
		for i := range n {
			if !c.present[i] {
				continue
			}
			f, err := strconv.ParseFloat(strings.TrimSpace(c.strs[i]), 64)
			if err != nil {
				c.numeric = false
				break
			}
			c.nums[i] = f
		}
	}
	return c
}

func (c column) compare(a, b int) int {
	if c.key.Direction == Explicit {
		return cmp.Compare(c.ranks[a], c.ranks[b])
	}

	pa, pb := c.present[a], c.present[b]
	switch {
	case !pa && !pb:
		return 0
	case !pa:
		return 1
	case !pb:
		return -1
	}

	var r int
	switch {
	case c.key.Direction == Custom:
		return c.key.Compare(c.strs[a], c.strs[b])
	case c.numeric:
		r = cmp.Compare(c.nums[a], c.nums[b])
	default:
		r = strings.Compare(c.strs[a], c.strs[b])
	}
	if c.key.Direction == Descending {
		return -r
	}
	return r
}

func canonicalNumber(s string) (string, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return "", false
	}
	return selection.FormatFloat(f), true
}
