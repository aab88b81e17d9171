package testutil

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/hupe1980/rangeidx/codec"
	"github.com/hupe1980/rangeidx/grib"
)

type payload struct {
	Keys   []string          `json:"k"`
	Attrs  map[string]string `json:"a"`
	Values []float64         `json:"v,omitempty"`
}

// EncodeGRIB writes recs as GRIB messages whose payload is a JSON document
// understood by Decoder. gap bytes of padding separate messages. Each
// record's File, Off and Len are updated to its position in the output.
func EncodeGRIB(path string, edition int, gap int, recs ...*Record) []byte {
	var buf bytes.Buffer
	for i, r := range recs {
		if i > 0 {
			buf.Write(bytes.Repeat([]byte{0}, gap))
		}
		body := codec.MustMarshal(nil, payload{Keys: r.Fields, Attrs: r.Attrs, Values: r.Data})

		start := buf.Len()
		switch edition {
		case 1:
			total := 8 + len(body) + 4
			buf.WriteString("GRIB")
			buf.Write([]byte{byte(total >> 16), byte(total >> 8), byte(total), 1})
		default:
			total := 16 + len(body) + 4
			buf.WriteString("GRIB")
			buf.Write([]byte{0, 0, 0, 2})
			_ = binary.Write(&buf, binary.BigEndian, uint64(total))
		}
		buf.Write(body)
		buf.WriteString("7777")

		r.File = path
		r.Off = int64(start)
		r.Len = int64(buf.Len() - start)
	}
	return buf.Bytes()
}

// Decoder decodes messages produced by EncodeGRIB.
type Decoder struct{}

var _ grib.Decoder = Decoder{}

func (Decoder) Decode(msg []byte) (grib.Record, error) {
	if len(msg) < 12 || !bytes.HasPrefix(msg, []byte("GRIB")) {
		return nil, errors.New("testutil: not a GRIB message")
	}
	hdr := 16
	if msg[7] == 1 {
		hdr = 8
	}
	if len(msg) < hdr+4 {
		return nil, fmt.Errorf("testutil: short message of %d bytes", len(msg))
	}
	var p payload
	if err := codec.Default.Unmarshal(msg[hdr:len(msg)-4], &p); err != nil {
		return nil, err
	}
	return &Record{Fields: p.Keys, Attrs: p.Attrs, Data: p.Values}, nil
}
