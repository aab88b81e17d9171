package selection

import (
	"cmp"
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
)

// Kind classifies a selection value.
type Kind uint8

const (
	// Unset leaves the key unconstrained.
	Unset Kind = iota
	// All accepts every observed value of the key.
	All
	// Scalar requires equality with one value.
	Scalar
	// List requires membership in a finite set of values.
	List
	// Predicate delegates to a caller function.
	Predicate
)

func (k Kind) String() string {
	switch k {
	case Unset:
		return "unset"
	case All:
		return "all"
	case Scalar:
		return "scalar"
	case List:
		return "list"
	case Predicate:
		return "predicate"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// AllValues is the type of the ALL sentinel.
type AllValues struct{}

// ALL selects every value of a key.
var ALL = AllValues{}

// TimeLayout is used to turn time.Time selection values into strings.
const TimeLayout = "2006-01-02 15:04:05"

// Value is one normalized selection constraint.
type Value struct {
	kind   Kind
	values []string
	set    mapset.Set[string]
	pred   func(string) bool
}

// Eq constrains a key to a single value.
func Eq(v string) Value {
	return Value{kind: Scalar, values: []string{v}, set: mapset.NewThreadUnsafeSet(v)}
}

// In constrains a key to a set of values. Order is kept for display and
// for merging.
func In(values ...string) Value {
	vs := dedupe(values)
	return Value{kind: List, values: vs, set: mapset.NewThreadUnsafeSet(vs...)}
}

// Where constrains a key with a predicate on its string value.
func Where(fn func(string) bool) Value {
	return Value{kind: Predicate, pred: fn}
}

// Kind returns the kind of v.
func (v Value) Kind() Kind { return v.kind }

// Values returns the allowed values of a Scalar or List.
func (v Value) Values() []string { return slices.Clone(v.values) }

// Constrains reports whether v filters anything.
func (v Value) Constrains() bool {
	return v.kind == Scalar || v.kind == List || v.kind == Predicate
}

// Enumerable reports whether v is a finite set of values.
func (v Value) Enumerable() bool { return v.kind == Scalar || v.kind == List }

// Match reports whether an attribute value satisfies v. ok is false when
// the attribute is absent; absent attributes never satisfy a constraint.
func (v Value) Match(s string, ok bool) bool {
	switch v.kind {
	case Unset, All:
		return true
	case Scalar, List:
		return ok && v.set.Contains(s)
	case Predicate:
		return ok && v.pred(s)
	}
	return false
}

func (v Value) String() string {
	switch v.kind {
	case Scalar:
		return v.values[0]
	case List:
		return "[" + strings.Join(v.values, ",") + "]"
	}
	return v.kind.String()
}

// InvalidSelectionError reports a selection value of an unsupported shape.
type InvalidSelectionError struct {
	Key   string
	Value any
}

func (e *InvalidSelectionError) Error() string {
	return fmt.Sprintf("selection: invalid value %#v (%T) for key %q", e.Value, e.Value, e.Key)
}

// NormalizeValue converts one user supplied value into a Value.
func NormalizeValue(key string, v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Value{}, nil
	case AllValues, *AllValues:
		return Value{kind: All}, nil
	case Value:
		return x, nil
	case func(string) bool:
		if x == nil {
			return Value{}, nil
		}
		return Where(x), nil
	case mapset.Set[string]:
		vs := x.ToSlice()
		slices.Sort(vs)
		return In(vs...), nil
	case []string:
		return In(x...), nil
	}

	if s, ok := FormatScalar(v); ok {
		return Eq(s), nil
	}

	rv := reflect.ValueOf(v)
	if elems, ok := setElements(rv); ok {
		vs := make([]string, 0, len(elems))
		for _, e := range elems {
			s, ok := FormatScalar(e)
			if !ok {
				return Value{}, &InvalidSelectionError{Key: key, Value: v}
			}
			vs = append(vs, s)
		}
		slices.SortFunc(vs, compareValues)
		return In(vs...), nil
	}
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		vs := make([]string, 0, rv.Len())
		for i := range rv.Len() {
			s, ok := FormatScalar(rv.Index(i).Interface())
			if !ok {
				return Value{}, &InvalidSelectionError{Key: key, Value: v}
			}
			vs = append(vs, s)
		}
		return In(vs...), nil
	}
	return Value{}, &InvalidSelectionError{Key: key, Value: v}
}

// FormatScalar renders a scalar the way attribute values are stored.
// Integral floats lose their fraction so that 500 and 500.0 compare equal.
func FormatScalar(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case time.Time:
		return x.Format(TimeLayout), true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), true
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool()), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(rv.Uint(), 10), true
	case reflect.Float32, reflect.Float64:
		return FormatFloat(rv.Float()), true
	}
	return "", false
}

// setElements returns the members of a mapset.Set of any element type.
func setElements(rv reflect.Value) ([]any, bool) {
	if !rv.IsValid() || !rv.MethodByName("Cardinality").IsValid() {
		return nil, false
	}
	m := rv.MethodByName("ToSlice")
	if !m.IsValid() || m.Type().NumIn() != 0 || m.Type().NumOut() != 1 || m.Type().Out(0).Kind() != reflect.Slice {
		return nil, false
	}
	slice := m.Call(nil)[0]
	out := make([]any, slice.Len())
	for i := range out {
		out[i] = slice.Index(i).Interface()
	}
	return out, true
}

// compareValues orders numbers numerically and everything else as text.
func compareValues(a, b string) int {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA == nil && errB == nil {
		return cmp.Compare(fa, fb)
	}
	return strings.Compare(a, b)
}

// FormatFloat renders f without a trailing ".0" when it is integral.
func FormatFloat(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
