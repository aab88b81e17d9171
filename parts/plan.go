package parts

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
)

// ErrInvalidPlan is returned when a strategy produced blocks that break the
// coverage or ordering guarantees.
var ErrInvalidPlan = errors.New("parts: invalid plan")

// Plan validates parts and groups them with s. Empty input yields no blocks.
func Plan(parts []Part, s Strategy) ([]Block, error) {
	if err := Validate(parts); err != nil {
		return nil, err
	}
	blocks := s.Group(parts)
	if err := CheckBlocks(parts, blocks); err != nil {
		return nil, fmt.Errorf("%s: %w", s, err)
	}
	return blocks, nil
}

// CheckBlocks verifies that blocks cover every part exactly once, that each
// part lies inside its block and that blocks are ordered and disjoint.
func CheckBlocks(parts []Part, blocks []Block) error {
	k := 0
	for i, b := range blocks {
		if b.Length <= 0 || b.Offset < 0 {
			return fmt.Errorf("%w: empty block at %d", ErrInvalidPlan, b.Offset)
		}
		if i > 0 && b.Offset < blocks[i-1].End() {
			return fmt.Errorf("%w: block %d overlaps previous", ErrInvalidPlan, i)
		}
		for _, p := range b.Parts {
			if k >= len(parts) || parts[k] != p {
				return fmt.Errorf("%w: block %d holds unexpected part %s", ErrInvalidPlan, i, p)
			}
			if !b.Contains(p) {
				return fmt.Errorf("%w: part %s outside block %d", ErrInvalidPlan, p, i)
			}
			k++
		}
	}
	if k != len(parts) {
		return fmt.Errorf("%w: %d of %d parts placed", ErrInvalidPlan, k, len(parts))
	}
	return nil
}

// Stats summarizes the cost of a plan.
type Stats struct {
	Parts           int
	Requests        int
	RequestedBytes  int64
	DownloadedBytes int64
}

// Overhead returns the fraction of downloaded bytes that were not requested.
func (s Stats) Overhead() float64 {
	if s.DownloadedBytes == 0 {
		return 0
	}
	return float64(s.DownloadedBytes-s.RequestedBytes) / float64(s.DownloadedBytes)
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.Parts += o.Parts
	s.Requests += o.Requests
	s.RequestedBytes += o.RequestedBytes
	s.DownloadedBytes += o.DownloadedBytes
}

// Measure computes the stats of a block list.
func Measure(blocks []Block) Stats {
	var st Stats
	for _, b := range blocks {
		st.Requests++
		st.DownloadedBytes += b.Length
		for _, p := range b.Parts {
			st.Parts++
			st.RequestedBytes += p.Length
		}
	}
	return st
}

// Sort orders parts by offset and drops exact duplicates, which occur when
// the same record is selected twice.
func Sort(parts []Part) []Part {
	out := slices.Clone(parts)
	slices.SortStableFunc(out, func(a, b Part) int {
		if a.Offset != b.Offset {
			return cmp.Compare(a.Offset, b.Offset)
		}
		return cmp.Compare(a.Length, b.Length)
	})
	return slices.Compact(out)
}

