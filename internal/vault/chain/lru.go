package chain

import "container/list"

// DefaultCacheSize bounds the manager's chain cache.
const DefaultCacheSize = 20

// lruCache is a small bounded cache of loaded chains keyed by chain id.
// The cache is write-through: Save replaces the cached object, so a hit
// always reflects the last persisted state. No locking: the cache is
// owned by the engine's single executor.
type lruCache struct {
	capacity int
	ll       *list.List
	items    map[string]*list.Element
}

type lruEntry struct {
	id    string
	chain *Chain
}

func newLRUCache(capacity int) *lruCache {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	return &lruCache{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[string]*list.Element, capacity),
	}
}

// get returns the cached chain and promotes it, or nil on miss.
func (c *lruCache) get(id string) *Chain {
	el, ok := c.items[id]
	if !ok {
		return nil
	}
	c.ll.MoveToFront(el)
	return el.Value.(*lruEntry).chain
}

// put inserts or replaces a chain, evicting the least recently used
// entry when full.
func (c *lruCache) put(id string, ch *Chain) {
	if el, ok := c.items[id]; ok {
		el.Value.(*lruEntry).chain = ch
		c.ll.MoveToFront(el)
		return
	}

	c.items[id] = c.ll.PushFront(&lruEntry{id: id, chain: ch})

	if c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.items, oldest.Value.(*lruEntry).id)
		}
	}
}

// remove drops a chain from the cache (after delete or external
// invalidation).
func (c *lruCache) remove(id string) {
	if el, ok := c.items[id]; ok {
		c.ll.Remove(el)
		delete(c.items, id)
	}
}

// len reports the number of cached chains.
func (c *lruCache) len() int { return c.ll.Len() }
