package grib

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"iter"
)

var (
	// ErrUnsupportedEdition is returned for editions other than 1 and 2.
	ErrUnsupportedEdition = errors.New("grib: unsupported edition")
	// ErrTruncated is returned when a message runs past the end of the data.
	ErrTruncated = errors.New("grib: truncated message")
	// ErrMissingEndMarker is returned when a message does not end in "7777".
	ErrMissingEndMarker = errors.New("grib: missing end marker")
)

var (
	magic     = []byte("GRIB")
	endMarker = []byte("7777")
)

const scanChunk = 64 << 10

// Message locates one GRIB message.
type Message struct {
	Offset  int64
	Length  int64
	Edition int
}

// Scan iterates the messages in the first size bytes of r. Bytes between
// messages are skipped. Iteration stops at the first malformed message.
func Scan(ctx context.Context, r io.ReaderAt, size int64) iter.Seq2[Message, error] {
	return func(yield func(Message, error) bool) {
		pos := int64(0)
		for pos < size {
			if err := ctx.Err(); err != nil {
				yield(Message{}, err)
				return
			}
			off, err := findMagic(r, pos, size)
			if err != nil {
				yield(Message{}, err)
				return
			}
			if off < 0 {
				return
			}
			msg, err := readHeader(r, off, size)
			if err != nil {
				yield(Message{}, err)
				return
			}
			if !yield(msg, nil) {
				return
			}
			pos = msg.Offset + msg.Length
		}
	}
}

// findMagic returns the offset of the next "GRIB" at or after pos, or -1.
func findMagic(r io.ReaderAt, pos, size int64) (int64, error) {
	buf := make([]byte, scanChunk+len(magic)-1)
	for pos < size {
		n := int64(len(buf))
		if pos+n > size {
			n = size - pos
		}
		if _, err := r.ReadAt(buf[:n], pos); err != nil && !errors.Is(err, io.EOF) {
			return 0, err
		}
		if i := bytes.Index(buf[:n], magic); i >= 0 {
			return pos + int64(i), nil
		}
		if pos+n >= size {
			break
		}
		// Overlap so a magic split across chunks is found.
		pos += n - int64(len(magic)-1)
	}
	return -1, nil
}

func readHeader(r io.ReaderAt, off, size int64) (Message, error) {
	hdr := make([]byte, 16)
	n := min(int64(len(hdr)), size-off)
	if n < 8 {
		return Message{}, fmt.Errorf("%w at %d", ErrTruncated, off)
	}
	if _, err := r.ReadAt(hdr[:n], off); err != nil && !errors.Is(err, io.EOF) {
		return Message{}, err
	}

	msg := Message{Offset: off, Edition: int(hdr[7])}
	switch msg.Edition {
	case 1:
		msg.Length = int64(hdr[4])<<16 | int64(hdr[5])<<8 | int64(hdr[6])
	case 2:
		if n < 16 {
			return Message{}, fmt.Errorf("%w at %d", ErrTruncated, off)
		}
		msg.Length = int64(binary.BigEndian.Uint64(hdr[8:16]))
	default:
		return Message{}, fmt.Errorf("%w %d at %d", ErrUnsupportedEdition, msg.Edition, off)
	}

	if msg.Length < 8+int64(len(endMarker)) || off+msg.Length > size {
		return Message{}, fmt.Errorf("%w at %d: length %d", ErrTruncated, off, msg.Length)
	}
	tail := make([]byte, len(endMarker))
	if _, err := r.ReadAt(tail, off+msg.Length-int64(len(endMarker))); err != nil && !errors.Is(err, io.EOF) {
		return Message{}, err
	}
	if !bytes.Equal(tail, endMarker) {
		return Message{}, fmt.Errorf("%w at %d", ErrMissingEndMarker, off)
	}
	return msg, nil
}
