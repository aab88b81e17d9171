package selection

import (
	"maps"
	"slices"
	"strings"
)

// Selection maps attribute keys to constraints.
type Selection map[string]Value

// Normalize merges the given maps left to right, later maps winning on
// conflicts, and validates every value. Keyword style arguments are
// passed as the last map.
func Normalize(args ...map[string]any) (Selection, error) {
	sel := make(Selection)
	for _, m := range args {
		// Sorted so that the first invalid key reported is deterministic.
		for _, k := range slices.Sorted(maps.Keys(m)) {
			v, err := NormalizeValue(k, m[k])
			if err != nil {
				return nil, err
			}
			sel[k] = v
		}
	}
	return sel, nil
}

// MustNormalize is like Normalize but panics on error.
func MustNormalize(args ...map[string]any) Selection {
	sel, err := Normalize(args...)
	if err != nil {
		panic(err)
	}
	return sel
}

// Constrained returns the sorted keys that actually filter.
func (s Selection) Constrained() []string {
	var keys []string
	for k, v := range s {
		if v.Constrains() {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}

// Empty reports whether s filters nothing.
func (s Selection) Empty() bool { return len(s.Constrained()) == 0 }

// Match reports whether attrs satisfy every constrained key.
func (s Selection) Match(attrs map[string]string) bool {
	for k, v := range s {
		if !v.Constrains() {
			continue
		}
		a, ok := attrs[k]
		if !v.Match(a, ok) {
			return false
		}
	}
	return true
}

// Rename returns a copy of s with keys translated through aliases.
// Keys without an alias are kept. When an alias and its target are both
// present the two constraints are merged.
func (s Selection) Rename(aliases map[string]string) Selection {
	if len(aliases) == 0 {
		return s
	}
	out := make(Selection, len(s))
	for _, k := range slices.Sorted(maps.Keys(s)) {
		name := k
		if to, ok := aliases[k]; ok {
			name = to
		}
		if prev, ok := out[name]; ok {
			out[name] = mergeValue(prev, s[k])
			continue
		}
		out[name] = s[k]
	}
	return out
}

func (s Selection) String() string {
	keys := slices.Sorted(maps.Keys(s))
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+s[k].String())
	}
	return "{" + strings.Join(parts, " ") + "}"
}

// Merge composes a new constraint set onto an existing selection, as done
// when a selected source is selected again. Keys present on both sides
// keep only the values allowed by both, in the existing order; keys on one
// side only are taken verbatim. Applying the same constraints twice gives
// the same result as applying them once.
func Merge(existing, constraints Selection) Selection {
	out := make(Selection, len(existing)+len(constraints))
	maps.Copy(out, existing)
	for k, v := range constraints {
		prev, ok := out[k]
		if !ok {
			out[k] = v
			continue
		}
		out[k] = mergeValue(prev, v)
	}
	return out
}

func mergeValue(a, b Value) Value {
	switch {
	case !b.Constrains():
		if a.kind == Unset {
			return b
		}
		return a
	case !a.Constrains():
		return b
	case a.Enumerable() && b.Enumerable():
		var vs []string
		for _, x := range a.values {
			if b.set.Contains(x) {
				vs = append(vs, x)
			}
		}
		return narrowed(a, vs)
	case a.Enumerable():
		return filterValues(a, b.pred)
	case b.Enumerable():
		return filterValues(b, a.pred)
	}
	pa, pb := a.pred, b.pred
	return Where(func(s string) bool { return pa(s) && pb(s) })
}

func filterValues(v Value, pred func(string) bool) Value {
	var vs []string
	for _, x := range v.values {
		if pred(x) {
			vs = append(vs, x)
		}
	}
	return narrowed(v, vs)
}

// narrowed keeps a scalar a scalar while its value survives.
func narrowed(v Value, vs []string) Value {
	if v.kind == Scalar && len(vs) == 1 {
		return Eq(vs[0])
	}
	return In(vs...)
}

// ParseArgs turns command line style "key=v1/v2" arguments into a map
// suitable for Normalize. A value of "*" selects ALL.
func ParseArgs(args []string) (map[string]any, error) {
	out := make(map[string]any, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, &InvalidSelectionError{Key: k, Value: arg}
		}
		switch {
		case v == "*":
			out[k] = ALL
		case strings.Contains(v, "/"):
			out[k] = strings.Split(v, "/")
		default:
			out[k] = v
		}
	}
	return out, nil
}

