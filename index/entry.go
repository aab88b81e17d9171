package index

import (
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/hupe1980/rangeidx/parts"
)

// Entry locates one record and carries its attributes. Attributes missing
// from a record are absent from Attrs.
type Entry struct {
	Path   string
	Offset int64
	Length int64
	Attrs  map[string]string
}

// Part returns the byte span of the entry.
func (e Entry) Part() parts.Part {
	return parts.Part{Offset: e.Offset, Length: e.Length}
}

// Get returns attribute key.
func (e Entry) Get(key string) (string, bool) {
	v, ok := e.Attrs[key]
	return v, ok
}

// RawRecord is what a scanner yields for every record of a resource.
type RawRecord interface {
	// Keys lists the attribute names of the record in a stable order.
	Keys() []string
	// Get returns the value of an attribute normalized to a string.
	Get(key string) (string, bool)
	Offset() int64
	Length() int64
}

// PathRecord is implemented by records that live in a different resource
// than the one being indexed, for example entries of a sidecar index.
type PathRecord interface {
	Path() string
}

// GroupByPath groups entries by path. Paths keep their first-seen order and
// the parts of each path are sorted by offset with duplicates removed.
func GroupByPath(entries []Entry) ([]string, map[string][]parts.Part) {
	var paths []string
	byPath := make(map[string][]parts.Part)
	for _, e := range entries {
		if _, ok := byPath[e.Path]; !ok {
			paths = append(paths, e.Path)
		}
		byPath[e.Path] = append(byPath[e.Path], e.Part())
	}
	for p, ps := range byPath {
		byPath[p] = parts.Sort(ps)
	}
	return paths, byPath
}

var placeholder = regexp.MustCompile(`\{([^}]*)\}`)

// Remapping derives attributes from templates such as
//
//	{"param_level": "{param}{levelist}"}
//
// A placeholder whose attribute is missing is dropped together with the
// literal text right before it.
type Remapping map[string]string

// Apply returns attrs extended with the derived attributes.
func (r Remapping) Apply(attrs map[string]string) map[string]string {
	if len(r) == 0 {
		return attrs
	}
	out := maps.Clone(attrs)
	if out == nil {
		out = make(map[string]string, len(r))
	}
	for name, tmpl := range r {
		out[name] = r.expand(tmpl, attrs)
	}
	return out
}

// Keys returns the derived attribute names in sorted order.
func (r Remapping) Keys() []string {
	return slices.Sorted(maps.Keys(r))
}

// String renders the remapping deterministically, for cache keys.
func (r Remapping) String() string {
	var sb strings.Builder
	for _, k := range r.Keys() {
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(r[k])
		sb.WriteByte(';')
	}
	return sb.String()
}

func (r Remapping) expand(tmpl string, attrs map[string]string) string {
	var bits []string
	last := 0
	for _, m := range placeholder.FindAllStringSubmatchIndex(tmpl, -1) {
		bits = append(bits, tmpl[last:m[0]])
		if v, ok := attrs[tmpl[m[2]:m[3]]]; ok {
			bits = append(bits, v)
		} else {
			bits = bits[:len(bits)-1]
		}
		last = m[1]
	}
	bits = append(bits, tmpl[last:])
	return strings.Join(bits, "")
}
