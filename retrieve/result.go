package retrieve

import (
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"

	"github.com/hupe1980/rangeidx/parts"
)

// BlockResult is the outcome of one block fetch.
type BlockResult struct {
	Block parts.Block
	Data  []byte
	Err   error
}

// Result holds the fetched bytes of a plan, addressable per record.
type Result struct {
	paths  []string
	blocks map[string][]BlockResult
}

func newResult(plan *Plan) *Result {
	r := &Result{
		paths:  plan.Paths,
		blocks: make(map[string][]BlockResult, len(plan.Paths)),
	}
	for _, path := range plan.Paths {
		bs := plan.Blocks[path]
		slots := make([]BlockResult, len(bs))
		for i, b := range bs {
			slots[i].Block = b
		}
		r.blocks[path] = slots
	}
	return r
}

// Paths returns the fetched paths in plan order.
func (r *Result) Paths() []string { return r.paths }

// Blocks returns the block results of path in offset order.
func (r *Result) Blocks(path string) []BlockResult { return r.blocks[path] }

// Record returns the bytes of the part p of path. The slice aliases the
// block buffer. A part whose block failed returns that block's error.
func (r *Result) Record(path string, p parts.Part) ([]byte, error) {
	bs := r.blocks[path]
	i := sort.Search(len(bs), func(i int) bool { return bs[i].Block.End() > p.Offset })
	if i == len(bs) || !bs[i].Block.Contains(p) {
		return nil, fmt.Errorf("%w: %s %s", parts.ErrPartOutsideBlock, path, p)
	}
	if bs[i].Err != nil {
		return nil, bs[i].Err
	}
	return bs[i].Block.Slice(bs[i].Data, p)
}

// Err aggregates every failed block, or returns nil.
func (r *Result) Err() error {
	var result *multierror.Error
	for _, path := range r.paths {
		for _, b := range r.blocks[path] {
			if b.Err != nil {
				result = multierror.Append(result, b.Err)
			}
		}
	}
	return result.ErrorOrNil()
}

// Stats reports planned bytes and the bytes actually received.
func (r *Result) Stats() parts.Stats {
	var s parts.Stats
	for _, path := range r.paths {
		for _, b := range r.blocks[path] {
			s.Requests++
			s.Parts += len(b.Block.Parts)
			for _, p := range b.Block.Parts {
				s.RequestedBytes += p.Length
			}
			s.DownloadedBytes += int64(len(b.Data))
		}
	}
	return s
}
