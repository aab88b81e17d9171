package cache

import (
	"context"

	"github.com/cespare/xxhash/v2"

	"github.com/hupe1980/rangeidx/internal/resource"
)

const (
	maxShards = 64
	// minShardBytes keeps shards large enough for a few blocks each.
	minShardBytes = 4 << 20
)

// Sharded is a BlockCache made of independent LRU shards.
type Sharded struct {
	shards []*LRU
}

var _ BlockCache = (*Sharded)(nil)

// NewShardedLRUBlockCache splits capacity over up to 64 shards. Small
// capacities get fewer shards.
func NewShardedLRUBlockCache(capacity int64, rc *resource.Controller) *Sharded {
	n := 1
	for n < maxShards && capacity/int64(n*2) >= minShardBytes {
		n *= 2
	}
	s := &Sharded{shards: make([]*LRU, n)}
	for i := range s.shards {
		s.shards[i] = NewLRUBlockCache(capacity/int64(n), rc)
	}
	return s
}

func (s *Sharded) shard(key BlockKey) *LRU {
	// Blocks of one path spread over all shards.
	h := xxhash.Sum64String(key.Path) ^ (uint64(key.Block) * 0x9e3779b97f4a7c15)
	return s.shards[h%uint64(len(s.shards))]
}

// Shards returns the number of shards.
func (s *Sharded) Shards() int { return len(s.shards) }

func (s *Sharded) Get(ctx context.Context, key BlockKey) ([]byte, bool) {
	return s.shard(key).Get(ctx, key)
}

func (s *Sharded) Set(ctx context.Context, key BlockKey, b []byte) {
	s.shard(key).Set(ctx, key, b)
}

// Invalidate drops every block of path from all shards.
func (s *Sharded) Invalidate(path string) {
	for _, sh := range s.shards {
		sh.Invalidate(path)
	}
}

// Stats sums the counters of all shards.
func (s *Sharded) Stats() Stats {
	var total Stats
	for _, sh := range s.shards {
		st := sh.Stats()
		total.Hits += st.Hits
		total.Misses += st.Misses
		total.Evictions += st.Evictions
		total.Bytes += st.Bytes
		total.Blocks += st.Blocks
	}
	return total
}
