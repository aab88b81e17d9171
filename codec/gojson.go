package codec

import gojson "github.com/goccy/go-json"

// GoJSON is backed by github.com/goccy/go-json. It is the default, since
// sidecar indexes can hold hundreds of thousands of lines.
type GoJSON struct{}

func (GoJSON) Name() string                       { return "go-json" }
func (GoJSON) Marshal(v any) ([]byte, error)      { return gojson.Marshal(v) }
func (GoJSON) Unmarshal(data []byte, v any) error { return gojson.Unmarshal(data, v) }

// UnmarshalNumbers keeps numbers as json.Number so that integral levels
// such as 500 are not widened to float64.
func (GoJSON) UnmarshalNumbers(data []byte, v any) error {
	dec := gojson.NewDecoder(reader(data))
	dec.UseNumber()
	return dec.Decode(v)
}
