package retrieve

import (
	"fmt"

	"github.com/hupe1980/rangeidx/parts"
)

// Plan lists the blocks to fetch per path. Paths keep the order in which
// the selection produced them.
type Plan struct {
	Paths  []string
	Blocks map[string][]parts.Block
}

// NewPlan groups the parts of every path with s.
func NewPlan(paths []string, byPath map[string][]parts.Part, s parts.Strategy) (*Plan, error) {
	p := &Plan{
		Paths:  make([]string, 0, len(paths)),
		Blocks: make(map[string][]parts.Block, len(paths)),
	}
	for _, path := range paths {
		blocks, err := parts.Plan(byPath[path], s)
		if err != nil {
			return nil, fmt.Errorf("retrieve: plan %s: %w", path, err)
		}
		if len(blocks) == 0 {
			continue
		}
		p.Paths = append(p.Paths, path)
		p.Blocks[path] = blocks
	}
	return p, nil
}

// Requests returns the number of range requests the plan issues.
func (p *Plan) Requests() int {
	n := 0
	for _, path := range p.Paths {
		n += len(p.Blocks[path])
	}
	return n
}

// Stats sums the byte statistics of all paths.
func (p *Plan) Stats() parts.Stats {
	var s parts.Stats
	for _, path := range p.Paths {
		s.Add(parts.Measure(p.Blocks[path]))
	}
	return s
}
