package cache

import (
	"context"
	"sync"

	"github.com/hupe1980/rangeidx/internal/resource"
)

type node struct {
	key        BlockKey
	data       []byte
	prev, next *node
}

// LRU is a byte bounded least recently used BlockCache.
type LRU struct {
	mu       sync.Mutex
	capacity int64
	rc       *resource.Controller

	// head is a sentinel; head.next is the most recently used node.
	head   node
	nodes  map[BlockKey]*node
	byPath map[string]map[int64]*node
	stats  Stats
}

var _ BlockCache = (*LRU)(nil)

// NewLRUBlockCache returns an LRU holding up to capacity bytes. rc may be
// nil.
func NewLRUBlockCache(capacity int64, rc *resource.Controller) *LRU {
	c := &LRU{
		capacity: capacity,
		rc:       rc,
		nodes:    make(map[BlockKey]*node),
		byPath:   make(map[string]map[int64]*node),
	}
	c.head.prev, c.head.next = &c.head, &c.head
	return c
}

// Get returns the block of key and marks it as recently used.
func (c *LRU) Get(_ context.Context, key BlockKey) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.nodes[key]
	if !ok {
		c.stats.Misses++
		return nil, false
	}
	c.stats.Hits++
	c.unlink(n)
	c.pushFront(n)
	return n.data, true
}

// Set stores b under key, evicting the least recently used blocks as
// needed. A block is skipped when it exceeds the capacity or the
// controller refuses the memory.
func (c *LRU) Set(_ context.Context, key BlockKey, b []byte) {
	size := int64(len(b))
	if size > c.capacity {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.nodes[key]; ok {
		c.remove(old, false)
	}
	for c.stats.Bytes+size > c.capacity && c.head.prev != &c.head {
		c.remove(c.head.prev, true)
	}
	if c.rc != nil && c.rc.AcquireMemory(size) != nil {
		return
	}

	n := &node{key: key, data: b}
	c.nodes[key] = n
	blocks := c.byPath[key.Path]
	if blocks == nil {
		blocks = make(map[int64]*node)
		c.byPath[key.Path] = blocks
	}
	blocks[key.Block] = n
	c.pushFront(n)
	c.stats.Bytes += size
	c.stats.Blocks++
}

// Invalidate drops every block of path.
func (c *LRU) Invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, n := range c.byPath[path] {
		c.remove(n, false)
	}
}

// Stats returns a snapshot of the counters.
func (c *LRU) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Size returns the cached bytes.
func (c *LRU) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats.Bytes
}

func (c *LRU) pushFront(n *node) {
	n.prev, n.next = &c.head, c.head.next
	c.head.next.prev = n
	c.head.next = n
}

func (c *LRU) unlink(n *node) {
	n.prev.next = n.next
	n.next.prev = n.prev
	n.prev, n.next = nil, nil
}

func (c *LRU) remove(n *node, evicted bool) {
	c.unlink(n)
	delete(c.nodes, n.key)
	if blocks := c.byPath[n.key.Path]; blocks != nil {
		delete(blocks, n.key.Block)
		if len(blocks) == 0 {
			delete(c.byPath, n.key.Path)
		}
	}
	size := int64(len(n.data))
	c.stats.Bytes -= size
	c.stats.Blocks--
	if evicted {
		c.stats.Evictions++
	}
	if c.rc != nil {
		c.rc.ReleaseMemory(size)
	}
}
