package codec

import "encoding/json"

// JSON is the standard library codec. It is kept for files written by
// tools that pin encoding/json output.
type JSON struct{}

func (JSON) Name() string                       { return "json" }
func (JSON) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (JSON) UnmarshalNumbers(data []byte, v any) error {
	dec := json.NewDecoder(reader(data))
	dec.UseNumber()
	return dec.Decode(v)
}
