package parts

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsortedParts is returned when parts are not sorted by offset.
	ErrUnsortedParts = errors.New("parts: input not sorted by offset")
	// ErrOverlappingParts is returned when two input parts overlap.
	ErrOverlappingParts = errors.New("parts: input parts overlap")
	// ErrInvalidPart is returned for negative offsets or non-positive lengths.
	ErrInvalidPart = errors.New("parts: invalid part")
	// ErrPartOutsideBlock is returned when slicing a part that a block does not contain.
	ErrPartOutsideBlock = errors.New("parts: part outside block")
)

// Part is one contiguous byte span to retrieve, usually one record.
type Part struct {
	Offset int64
	Length int64
}

// End returns the exclusive end offset.
func (p Part) End() int64 { return p.Offset + p.Length }

func (p Part) String() string {
	return fmt.Sprintf("[%d,%d)", p.Offset, p.End())
}

// Block is a span fetched with a single range request. It may be larger than
// the union of its Parts when gaps were merged in.
type Block struct {
	Offset int64
	Length int64
	// Parts are the original parts served by this block, in offset order.
	Parts []Part
}

// End returns the exclusive end offset.
func (b Block) End() int64 { return b.Offset + b.Length }

// Contains reports whether p lies entirely inside b.
func (b Block) Contains(p Part) bool {
	return p.Offset >= b.Offset && p.End() <= b.End()
}

// Slice returns the bytes of p from data, where data holds the bytes of b
// starting at b.Offset. The result aliases data.
func (b Block) Slice(data []byte, p Part) ([]byte, error) {
	if !b.Contains(p) {
		return nil, fmt.Errorf("%w: %s not in %s", ErrPartOutsideBlock, p, Part{b.Offset, b.Length})
	}
	start := p.Offset - b.Offset
	end := start + p.Length
	if end > int64(len(data)) {
		return nil, fmt.Errorf("%w: %s needs %d bytes, block holds %d", ErrPartOutsideBlock, p, end, len(data))
	}
	return data[start:end:end], nil
}

func newBlock(p Part) Block {
	return Block{Offset: p.Offset, Length: p.Length, Parts: []Part{p}}
}

// extend grows b to cover p and everything in between.
func (b *Block) extend(p Part) {
	if end := p.End(); end > b.End() {
		b.Length = end - b.Offset
	}
	b.Parts = append(b.Parts, p)
}

// Validate checks that parts are well formed, sorted by offset and
// non-overlapping. Adjacent parts are allowed.
func Validate(parts []Part) error {
	for i, p := range parts {
		if p.Offset < 0 || p.Length <= 0 {
			return fmt.Errorf("%w: %s", ErrInvalidPart, p)
		}
		if i == 0 {
			continue
		}
		prev := parts[i-1]
		if p.Offset < prev.Offset {
			return fmt.Errorf("%w: %s before %s", ErrUnsortedParts, p, prev)
		}
		if p.Offset < prev.End() {
			return fmt.Errorf("%w: %s and %s", ErrOverlappingParts, prev, p)
		}
	}
	return nil
}
