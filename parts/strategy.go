package parts

import (
	"fmt"
	"strconv"
)

// Strategy groups a sorted, non-overlapping list of parts into blocks.
//
// Implementations must not reorder parts, must place every part in exactly
// one block and must produce non-overlapping blocks in offset order.
type Strategy interface {
	Group(parts []Part) []Block
	String() string
}

// Default cost model of CostOptimal.
const (
	DefaultDownloadCost = 1.0
	DefaultRequestCost  = 3.0
)

// DefaultMinClusters is the default target of Cluster.
const DefaultMinClusters = 5

// OneBlock fetches everything with a single request ("minimum-split").
type OneBlock struct{}

func (OneBlock) Group(parts []Part) []Block {
	if len(parts) == 0 {
		return nil
	}
	b := newBlock(parts[0])
	for _, p := range parts[1:] {
		b.extend(p)
	}
	return []Block{b}
}

func (OneBlock) String() string { return "minimum-split" }

// OnePerRecord issues one request per part ("maximum-split").
type OnePerRecord struct{}

func (OnePerRecord) Group(parts []Part) []Block {
	if len(parts) == 0 {
		return nil
	}
	blocks := make([]Block, len(parts))
	for i, p := range parts {
		blocks[i] = newBlock(p)
	}
	return blocks
}

func (OnePerRecord) String() string { return "maximum-split" }

// CostOptimal merges the next part into the current block when downloading
// the gap costs no more than issuing another request ("optimal-split").
//
// It is a single greedy pass. The result is not globally optimal.
type CostOptimal struct {
	// DownloadCost is the cost of downloading one unwanted byte.
	DownloadCost float64
	// RequestCost is the fixed cost of one request.
	RequestCost float64
}

func (s CostOptimal) Group(parts []Part) []Block {
	if len(parts) == 0 {
		return nil
	}
	var blocks []Block
	cur := newBlock(parts[0])
	for _, p := range parts[1:] {
		gap := p.Offset - cur.End()
		if float64(gap)*s.DownloadCost <= s.RequestCost {
			cur.extend(p)
			continue
		}
		blocks = append(blocks, cur)
		cur = newBlock(p)
	}
	return append(blocks, cur)
}

func (s CostOptimal) String() string {
	if s.DownloadCost == DefaultDownloadCost && s.RequestCost == DefaultRequestCost {
		return "optimal-split"
	}
	return fmt.Sprintf("optimal-split(%s,%s)", formatArg(s.DownloadCost), formatArg(s.RequestCost))
}

// Sharp returns the cost model expressed as a transfer rate in bytes per
// second and a per-request latency in seconds. A gap is merged when
// downloading it takes no longer than the latency of one more request.
func Sharp(transferRate, requestLatency float64) CostOptimal {
	return CostOptimal{DownloadCost: 1 / transferRate, RequestCost: requestLatency}
}

// Blocked aligns every part to Size boundaries and merges aligned spans that
// touch or overlap ("blocked(N)").
//
// Block offsets and lengths are multiples of Size. The last block may run
// past the end of the resource; the fetch layer tolerates the short read.
type Blocked struct {
	Size int64
}

func (s Blocked) Group(parts []Part) []Block {
	if len(parts) == 0 {
		return nil
	}
	size := max(s.Size, 1)
	var blocks []Block
	for _, p := range parts {
		start := roundDown(p.Offset, size)
		end := roundUp(p.End(), size)
		if n := len(blocks); n > 0 && start <= blocks[n-1].End() {
			last := &blocks[n-1]
			if end > last.End() {
				last.Length = end - last.Offset
			}
			last.Parts = append(last.Parts, p)
			continue
		}
		blocks = append(blocks, Block{Offset: start, Length: end - start, Parts: []Part{p}})
	}
	return blocks
}

func (s Blocked) String() string { return fmt.Sprintf("blocked(%d)", s.Size) }

// Cluster repeatedly merges the two adjacent blocks separated by the
// smallest gap until at most MinClusters blocks remain ("cluster(N)").
// Ties go to the leftmost pair.
type Cluster struct {
	MinClusters int
}

func (s Cluster) Group(parts []Part) []Block {
	blocks := OnePerRecord{}.Group(parts)
	target := max(s.MinClusters, 1)
	for len(blocks) > target {
		best := 0
		bestGap := blocks[1].Offset - blocks[0].End()
		for i := 1; i < len(blocks)-1; i++ {
			if gap := blocks[i+1].Offset - blocks[i].End(); gap < bestGap {
				best, bestGap = i, gap
			}
		}
		merged := blocks[best]
		merged.Parts = append(merged.Parts[:len(merged.Parts):len(merged.Parts)], blocks[best+1].Parts...)
		merged.Length = blocks[best+1].End() - merged.Offset
		blocks[best] = merged
		blocks = append(blocks[:best+1], blocks[best+2:]...)
	}
	return blocks
}

func (s Cluster) String() string { return fmt.Sprintf("cluster(%d)", s.MinClusters) }

// Auto picks a block size without tuning. Starting from the largest part
// length rounded up to a power of two, the size is halved while it stays at
// least the smallest part length; the smallest size tried is used for a
// Blocked grouping.
type Auto struct{}

func (Auto) Group(parts []Part) []Block {
	if len(parts) == 0 {
		return nil
	}
	smallest, largest := parts[0].Length, parts[0].Length
	for _, p := range parts[1:] {
		smallest = min(smallest, p.Length)
		largest = max(largest, p.Length)
	}
	size := nextPowerOfTwo(largest)
	// Every intermediate grouping would be discarded, so only the last
	// candidate size is materialized.
	for size/2 >= smallest && size > 1 {
		size /= 2
	}
	return Blocked{Size: size}.Group(parts)
}

func (Auto) String() string { return "auto" }

// Pipe applies Inner first and then regroups the resulting blocks with
// Outer. It is written "outer|inner".
type Pipe struct {
	Outer Strategy
	Inner Strategy
}

func (s Pipe) Group(parts []Part) []Block {
	inner := s.Inner.Group(parts)
	if len(inner) == 0 {
		return nil
	}
	spans := make([]Part, len(inner))
	for i, b := range inner {
		spans[i] = Part{Offset: b.Offset, Length: b.Length}
	}
	outer := s.Outer.Group(spans)

	// Outer blocks hold inner spans in order, so the original parts are
	// recovered by walking both lists together.
	k := 0
	for i := range outer {
		var original []Part
		for range outer[i].Parts {
			original = append(original, inner[k].Parts...)
			k++
		}
		outer[i].Parts = original
	}
	return outer
}

func (s Pipe) String() string { return s.Outer.String() + "|" + s.Inner.String() }

func roundDown(a, b int64) int64 { return (a / b) * b }

func roundUp(a, b int64) int64 { return ((a + b - 1) / b) * b }

func nextPowerOfTwo(n int64) int64 {
	p := int64(1)
	for p < n {
		p <<= 1
	}
	return p
}

func formatArg(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
