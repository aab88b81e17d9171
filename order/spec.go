package order

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/hupe1980/rangeidx/selection"
)

// Direction is how one key takes part in ordering.
type Direction uint8

const (
	// None skips the key.
	None Direction = iota
	// Ascending sorts by natural order.
	Ascending
	// Descending sorts by reverse natural order.
	Descending
	// Explicit sorts by position in Key.Values.
	Explicit
	// Custom sorts with Key.Compare.
	Custom
)

func (d Direction) String() string {
	switch d {
	case None:
		return "none"
	case Ascending:
		return "ascending"
	case Descending:
		return "descending"
	case Explicit:
		return "explicit"
	case Custom:
		return "custom"
	}
	return fmt.Sprintf("direction(%d)", uint8(d))
}

// Key orders by one attribute.
type Key struct {
	Name      string
	Direction Direction
	// Values is the total order used by Explicit keys.
	Values []string
	// Compare is used by Custom keys.
	Compare func(a, b string) int
}

// Asc orders name ascending.
func Asc(name string) Key { return Key{Name: name, Direction: Ascending} }

// Desc orders name descending.
func Desc(name string) Key { return Key{Name: name, Direction: Descending} }

// ByList orders name by the position of its value in values.
func ByList(name string, values ...string) Key {
	return Key{Name: name, Direction: Explicit, Values: values}
}

func (k Key) String() string {
	if k.Direction == Explicit {
		return k.Name + "=[" + strings.Join(k.Values, ",") + "]"
	}
	return k.Name + "=" + k.Direction.String()
}

// Spec is a list of keys applied in order, the first being most significant.
type Spec []Key

// Empty reports whether the spec orders anything.
func (s Spec) Empty() bool {
	for _, k := range s {
		if k.Direction != None {
			return false
		}
	}
	return true
}

// Then returns s extended by other. A key already in s is replaced in place.
func (s Spec) Then(other Spec) Spec {
	out := slices.Clone(s)
	for _, k := range other {
		if i := slices.IndexFunc(out, func(x Key) bool { return x.Name == k.Name }); i >= 0 {
			out[i] = k
			continue
		}
		out = append(out, k)
	}
	return out
}

func (s Spec) String() string {
	parts := make([]string, len(s))
	for i, k := range s {
		parts[i] = k.String()
	}
	return "{" + strings.Join(parts, " ") + "}"
}

// InvalidOrderError reports an unsupported order argument.
type InvalidOrderError struct {
	Key   string
	Value any
}

func (e *InvalidOrderError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("order: unsupported argument %#v (%T)", e.Value, e.Value)
	}
	return fmt.Sprintf("order: unsupported order %#v (%T) for key %q", e.Value, e.Value, e.Key)
}

// Normalize builds a Spec from loosely typed arguments. Accepted forms:
//
//	"level"                            ascending
//	[]string{"level", "param"}         each ascending
//	Key, []Key, Spec                   as given
//	map[string]any{"level": v}         v is "ascending", "descending", nil,
//	                                   a list of values or func(a, b string) int
//
// Keys of one map are applied in sorted order; pass several maps or Key
// values to control significance precisely.
func Normalize(args ...any) (Spec, error) {
	var spec Spec
	for _, a := range args {
		switch x := a.(type) {
		case nil:
		case string:
			spec = spec.Then(Spec{Asc(x)})
		case []string:
			for _, name := range x {
				spec = spec.Then(Spec{Asc(name)})
			}
		case Key:
			spec = spec.Then(Spec{x})
		case []Key:
			spec = spec.Then(Spec(x))
		case Spec:
			spec = spec.Then(x)
		case map[string]any:
			for _, name := range slices.Sorted(maps.Keys(x)) {
				k, err := normalizeKey(name, x[name])
				if err != nil {
					return nil, err
				}
				spec = spec.Then(Spec{k})
			}
		case map[string]string:
			for _, name := range slices.Sorted(maps.Keys(x)) {
				k, err := normalizeKey(name, x[name])
				if err != nil {
					return nil, err
				}
				spec = spec.Then(Spec{k})
			}
		default:
			return nil, &InvalidOrderError{Value: a}
		}
	}
	return spec, nil
}

func normalizeKey(name string, v any) (Key, error) {
	switch x := v.(type) {
	case nil:
		return Key{Name: name, Direction: None}, nil
	case string:
		switch strings.ToLower(x) {
		case "ascending", "asc":
			return Asc(name), nil
		case "descending", "desc":
			return Desc(name), nil
		}
	case func(a, b string) int:
		return Key{Name: name, Direction: Custom, Compare: x}, nil
	case []string:
		return ByList(name, x...), nil
	case selection.Value:
		if x.Enumerable() {
			return ByList(name, x.Values()...), nil
		}
	case []any:
		values := make([]string, 0, len(x))
		for _, e := range x {
			s, ok := selection.FormatScalar(e)
			if !ok {
				return Key{}, &InvalidOrderError{Key: name, Value: v}
			}
			values = append(values, s)
		}
		return ByList(name, values...), nil
	default:
		// Typed slices such as []int.
		if sel, err := selection.NormalizeValue(name, v); err == nil && sel.Kind() == selection.List {
			return ByList(name, sel.Values()...), nil
		}
	}
	return Key{}, &InvalidOrderError{Key: name, Value: v}
}
