package cache

import (
	"container/list"
	"sync"

	"github.com/atharv3903/routeplay/internal/model"
)

// DefaultCapacity is the number of incident routes kept when no capacity is
// configured.
const DefaultCapacity = 256

type routeEntry struct {
	key int
	val model.AccidentRoute
}

// RouteCache is a bounded LRU of upstream answers keyed by incident vertex.
// It's safe for concurrent use.
type RouteCache struct {
	mu       sync.Mutex
	m        map[int]*list.Element
	ll       *list.List
	capacity int
	// stats
	puts      int
	gets      int
	hits      int
	evictions int
}

func NewRouteCache() *RouteCache {
	return NewRouteCacheWithCap(DefaultCapacity)
}

// NewRouteCacheWithCap falls back to DefaultCapacity when capacity <= 0.
func NewRouteCacheWithCap(capacity int) *RouteCache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &RouteCache{
		m:        make(map[int]*list.Element, capacity),
		ll:       list.New(),
		capacity: capacity,
	}
}

// Get returns the cached route for vertex and moves it to the front.
func (c *RouteCache) Get(vertex int) (model.AccidentRoute, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gets++
	el, ok := c.m[vertex]
	if !ok {
		return model.AccidentRoute{}, false
	}
	c.hits++
	c.ll.MoveToFront(el)
	return el.Value.(routeEntry).val, true
}

// Put stores v for vertex, evicting the least recently used entry when full.
func (c *RouteCache) Put(vertex int, v model.AccidentRoute) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.puts++
	if el, ok := c.m[vertex]; ok {
		el.Value = routeEntry{key: vertex, val: v}
		c.ll.MoveToFront(el)
		return
	}

	c.m[vertex] = c.ll.PushFront(routeEntry{key: vertex, val: v})

	if c.ll.Len() > c.capacity {
		if tail := c.ll.Back(); tail != nil {
			delete(c.m, tail.Value.(routeEntry).key)
			c.ll.Remove(tail)
			c.evictions++
		}
	}
}

func (c *RouteCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Clear drops every entry and resets stats.
func (c *RouteCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m = make(map[int]*list.Element, c.capacity)
	c.ll.Init()
	c.puts = 0
	c.gets = 0
	c.hits = 0
	c.evictions = 0
}

func (c *RouteCache) Stats() model.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return model.CacheStats{Gets: c.gets, Hits: c.hits, Puts: c.puts, Evictions: c.evictions}
}
