package cache

import (
	"sync"

	"github.com/pyrite-lang/pyrite/internal/transpile"
)

// memoryCache is a thread-safe LRU of decoded artifacts with a max entry
// count. It fronts the on-disk store within one process.
type memoryCache struct {
	mu       sync.Mutex
	capacity int
	head     *lruNode
	tail     *lruNode
	table    map[Key]*lruNode
}

type lruNode struct {
	key  Key
	val  *transpile.Artifact
	prev *lruNode
	next *lruNode
}

// newMemoryCache creates a cache holding capacity entries; capacity<=0
// defaults to 256.
func newMemoryCache(capacity int) *memoryCache {
	if capacity <= 0 {
		capacity = 256
	}
	return &memoryCache{capacity: capacity, table: make(map[Key]*lruNode)}
}

func (c *memoryCache) detach(n *lruNode) {
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if c.head == n {
		c.head = n.next
	}
	if c.tail == n {
		c.tail = n.prev
	}
	n.prev, n.next = nil, nil
}

func (c *memoryCache) pushFront(n *lruNode) {
	n.next = c.head
	if c.head != nil {
		c.head.prev = n
	}
	c.head = n
	if c.tail == nil {
		c.tail = n
	}
}

func (c *memoryCache) get(key Key) (*transpile.Artifact, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.table[key]
	if !ok {
		return nil, false
	}
	if c.head != n {
		c.detach(n)
		c.pushFront(n)
	}
	return n.val, true
}

func (c *memoryCache) put(key Key, a *transpile.Artifact) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n, ok := c.table[key]; ok {
		n.val = a
		c.detach(n)
		c.pushFront(n)
		return
	}
	n := &lruNode{key: key, val: a}
	c.pushFront(n)
	c.table[key] = n
	for len(c.table) > c.capacity && c.tail != nil {
		old := c.tail
		c.detach(old)
		delete(c.table, old.key)
	}
}

func (c *memoryCache) invalidate(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n, ok := c.table[key]; ok {
		c.detach(n)
		delete(c.table, key)
	}
}

func (c *memoryCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.head, c.tail = nil, nil
	c.table = make(map[Key]*lruNode)
}

func (c *memoryCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.table)
}
