package identity

import (
	"container/list"
	"sync"
	"time"
)

type cacheItem struct {
	key       string
	identity  Identity
	expiresAt time.Time
}

// cache is a capacity-bounded LRU keyed by credential digest. Entries expire
// on read; eviction walks from the back when the capacity is exceeded.
type cache struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	byKey    map[string]*list.Element
	now      func() time.Time
}

func newCache(capacity int, now func() time.Time) *cache {
	if capacity <= 0 {
		capacity = 1
	}
	return &cache{
		capacity: capacity,
		ll:       list.New(),
		byKey:    make(map[string]*list.Element, capacity),
		now:      now,
	}
}

func (c *cache) get(key string) (Identity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.byKey[key]
	if !ok {
		return Identity{}, false
	}
	it := el.Value.(*cacheItem)
	if !c.now().Before(it.expiresAt) {
		c.ll.Remove(el)
		delete(c.byKey, it.key)
		return Identity{}, false
	}
	c.ll.MoveToFront(el)
	return it.identity, true
}

func (c *cache) put(key string, identity Identity, ttl time.Duration) {
	if key == "" || ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(ttl)
	if el, ok := c.byKey[key]; ok {
		it := el.Value.(*cacheItem)
		it.identity = identity
		it.expiresAt = expiresAt
		c.ll.MoveToFront(el)
		return
	}

	el := c.ll.PushFront(&cacheItem{key: key, identity: identity, expiresAt: expiresAt})
	c.byKey[key] = el

	for c.ll.Len() > c.capacity {
		back := c.ll.Back()
		if back == nil {
			break
		}
		old := back.Value.(*cacheItem)
		delete(c.byKey, old.key)
		c.ll.Remove(back)
	}
}
