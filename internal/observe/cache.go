package observe

import (
	"reflect"
	"runtime"
	"sync"
	"unsafe"
	"weak"
)

// identity is the address of an underlying object. Slices that share a
// backing array but differ in length are distinct objects.
type identity struct {
	addr uintptr
	n    int
}

// Cache maps underlying objects to their facades. Entries are weak: the cache
// never keeps a facade, or the object behind it, alive. A facade holds its
// object, so an address cannot be reused while its facade is reachable.
//
// Frozen objects are the exception. Frozen-ness belongs to the object, not
// to whichever facade froze it, so the cache holds frozen objects strongly.
// That also pins their addresses against reuse.
type Cache struct {
	mu      sync.Mutex
	entries map[identity]weak.Pointer[Facade]
	frozen  map[identity]any
}

// NewCache creates an empty identity cache.
func NewCache() *Cache {
	return &Cache{
		entries: make(map[identity]weak.Pointer[Facade]),
		frozen:  make(map[identity]any),
	}
}

// freeze records v as frozen. It reports false for objects without a stable
// identity, which the caller must track itself.
func (c *Cache) freeze(v any) bool {
	id, _, cacheable := identify(v)
	if !cacheable {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frozen[id] = v
	return true
}

func (c *Cache) isFrozen(v any) bool {
	id, _, cacheable := identify(v)
	if !cacheable {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.frozen[id]
	return ok
}

func (c *Cache) load(id identity, build func() *Facade) *Facade {
	c.mu.Lock()
	defer c.mu.Unlock()

	if wp, ok := c.entries[id]; ok {
		if f := wp.Value(); f != nil {
			return f
		}
	}

	f := build()
	wp := weak.Make(f)
	c.entries[id] = wp
	runtime.AddCleanup(f, c.evict, cacheEntry{id: id, wp: wp})
	return f
}

type cacheEntry struct {
	id identity
	wp weak.Pointer[Facade]
}

func (c *Cache) evict(e cacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries[e.id] == e.wp {
		delete(c.entries, e.id)
	}
}

// identify reports whether v is an object and, if so, whether it has a
// stable identity. Empty slices without a backing array all share one
// address and are wrapped without caching.
func identify(v any) (id identity, isObject bool, cacheable bool) {
	switch t := v.(type) {
	case map[string]any:
		if t == nil {
			return identity{}, false, false
		}
		return identity{addr: reflect.ValueOf(t).Pointer()}, true, true
	case []any:
		if t == nil {
			return identity{}, false, false
		}
		if cap(t) == 0 {
			return identity{}, true, false
		}
		return identity{addr: uintptr(unsafe.Pointer(unsafe.SliceData(t))), n: len(t)}, true, true
	}
	return identity{}, false, false
}
