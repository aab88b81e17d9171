package jsonlstore

import (
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the framing of a JSONL file.
type Compression uint8

const (
	None Compression = iota
	Zstd
	LZ4
)

// CompressionFor infers the compression from a file name or URL.
func CompressionFor(name string) Compression {
	switch {
	case strings.HasSuffix(name, ".zst"), strings.HasSuffix(name, ".zstd"):
		return Zstd
	case strings.HasSuffix(name, ".lz4"):
		return LZ4
	}
	return None
}

// Extension returns the file extension including the dot.
func (c Compression) Extension() string {
	switch c {
	case Zstd:
		return ".jsonl.zst"
	case LZ4:
		return ".jsonl.lz4"
	}
	return ".jsonl"
}

func (c Compression) String() string {
	switch c {
	case None:
		return "none"
	case Zstd:
		return "zstd"
	case LZ4:
		return "lz4"
	}
	return fmt.Sprintf("compression(%d)", uint8(c))
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// writer wraps w. Closing the result flushes the frame but leaves w open.
func (c Compression) writer(w io.Writer) (io.WriteCloser, error) {
	switch c {
	case Zstd:
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	case LZ4:
		return lz4.NewWriter(w), nil
	}
	return nopWriteCloser{w}, nil
}

// reader wraps r. The returned close function releases decoder state.
func (c Compression) reader(r io.Reader) (io.Reader, func(), error) {
	switch c {
	case Zstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return dec, dec.Close, nil
	case LZ4:
		return lz4.NewReader(r), func() {}, nil
	}
	return r, func() {}, nil
}

// NewReader decompresses r according to the extension of name. Call the
// returned function when done reading.
func NewReader(name string, r io.Reader) (io.Reader, func(), error) {
	return CompressionFor(name).reader(r)
}
