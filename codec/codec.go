// Package codec centralizes JSON encoding of index metadata and sidecar
// lines.
//
// Persisted indexes record the codec name so that a file written with one
// codec is read back with the same one.
package codec

import (
	"bytes"
	"fmt"
	"io"
	"slices"
)

// Codec encodes and decodes values. Implementations are safe for
// concurrent use.
type Codec interface {
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// NumberDecoder is implemented by codecs that keep number literals as
// json.Number instead of widening them to float64.
type NumberDecoder interface {
	UnmarshalNumbers(data []byte, v any) error
}

// Default encodes newly written files.
var Default Codec = GoJSON{}

var registry = map[string]Codec{
	JSON{}.Name():   JSON{},
	GoJSON{}.Name(): GoJSON{},
}

// ByName returns a built-in codec. The empty name is the default codec.
func ByName(name string) (Codec, error) {
	if name == "" {
		return Default, nil
	}
	if c, ok := registry[name]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("codec: unknown codec %q", name)
}

// Names lists the built-in codecs.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// MustMarshal encodes v with c, or Default when c is nil, and panics on
// error. It is meant for fixtures.
func MustMarshal(c Codec, v any) []byte {
	if c == nil {
		c = Default
	}
	b, err := c.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("codec %s: %v", c.Name(), err))
	}
	return b
}

func reader(b []byte) io.Reader { return bytes.NewReader(b) }
