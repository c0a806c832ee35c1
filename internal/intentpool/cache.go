package intentpool

import (
	"container/list"
	"sync"

	"github.com/arvo-net/arvo/types"
)

// IntentCache defines an interface for remembering intent identifiers the
// node has already seen, whether or not they are still in the pool. A cache
// hit means the intent is a duplicate and must not be re-propagated.
type IntentCache interface {
	// Reset resets the cache to an empty state.
	Reset()

	// Push adds the given intent ID to the cache, returning false if it
	// already exists.
	Push(id types.IntentID) bool

	// Remove removes the given intent ID from the cache.
	Remove(id types.IntentID)
}

var _ IntentCache = (*LRUIntentCache)(nil)

// LRUIntentCache maintains a thread-safe LRU cache of seen intent IDs.
type LRUIntentCache struct {
	mtx      sync.Mutex
	size     int
	cacheMap map[types.IntentID]*list.Element
	list     *list.List
}

func NewLRUIntentCache(cacheSize int) *LRUIntentCache {
	return &LRUIntentCache{
		size:     cacheSize,
		cacheMap: make(map[types.IntentID]*list.Element, cacheSize),
		list:     list.New(),
	}
}

func (c *LRUIntentCache) Reset() {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	c.cacheMap = make(map[types.IntentID]*list.Element, c.size)
	c.list.Init()
}

func (c *LRUIntentCache) Push(id types.IntentID) bool {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	moved, ok := c.cacheMap[id]
	if ok {
		c.list.MoveToBack(moved)
		return false
	}

	if c.list.Len() >= c.size {
		front := c.list.Front()
		if front != nil {
			frontID := front.Value.(types.IntentID)
			c.list.Remove(front)
			delete(c.cacheMap, frontID)
		}
	}

	e := c.list.PushBack(id)
	c.cacheMap[id] = e
	return true
}

func (c *LRUIntentCache) Remove(id types.IntentID) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	e, ok := c.cacheMap[id]
	if ok {
		c.list.Remove(e)
		delete(c.cacheMap, id)
	}
}

var _ IntentCache = (*NopIntentCache)(nil)

// NopIntentCache defines a no-op intent ID cache.
type NopIntentCache struct{}

func (NopIntentCache) Reset()                   {}
func (NopIntentCache) Push(types.IntentID) bool { return true }
func (NopIntentCache) Remove(id types.IntentID) {}
