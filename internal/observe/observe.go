// Package observe wraps nested state objects in facades that route every
// read and write through caller supplied hooks.
//
// Objects are map[string]any values and []any values. Everything else is a
// primitive and passes through Observe untouched. Facades are created lazily
// when a nested object is reached through Get, so cyclic graphs are never
// walked eagerly.
package observe

import (
	"sort"
	"strconv"
)

// Hooks intercept operations on observed objects. A nil hook leaves the
// operation to the underlying object; a non-nil hook fully replaces it.
type Hooks struct {
	// Get receives the raw target, the key, the facade the read went through
	// and a continuation that observes the raw value stored under key.
	Get func(target any, key string, receiver *Facade, next func() any) any

	// Set performs the write itself. Its result is the result of Facade.Set.
	Set func(target any, key string, value any, receiver *Facade) bool

	Delete func(target any, key string) bool
	Has    func(target any, key string) bool
	Keys   func(target any) []string
	Define func(target any, key string, value any) bool
	Lookup func(target any, key string) (any, bool)
	Freeze func(target any) bool
	Frozen func(target any) bool
}

// Facade is the observable stand-in for one underlying object. Exactly one
// Facade exists per object per Cache while the facade is reachable.
type Facade struct {
	target any
	hooks  *Hooks
	cache  *Cache
	frozen bool // only for objects the cache cannot identify
}

// Observe returns the facade for value, creating it on first observation.
// Values that are not objects are returned unchanged. A nil cache gets a
// private one, which gives up identity across calls.
func Observe(value any, hooks *Hooks, cache *Cache) any {
	if f, ok := value.(*Facade); ok {
		return f
	}
	id, isObject, cacheable := identify(value)
	if !isObject {
		return value
	}
	if hooks == nil {
		hooks = &Hooks{}
	}
	if cache == nil {
		cache = NewCache()
	}
	build := func() *Facade {
		return &Facade{target: value, hooks: hooks, cache: cache}
	}
	if !cacheable {
		return build()
	}
	return cache.load(id, build)
}

// Raw returns the underlying object.
func (f *Facade) Raw() any {
	return f.target
}

// Get reads key, observing the result.
func (f *Facade) Get(key string) any {
	next := func() any {
		v, _ := f.Lookup(key)
		return Observe(v, f.hooks, f.cache)
	}
	if f.hooks.Get != nil {
		return f.hooks.Get(f.target, key, f, next)
	}
	return next()
}

// Set writes value under key. Facades passed as values are stored as their
// underlying objects so the state tree never contains wrappers.
func (f *Facade) Set(key string, value any) bool {
	value = Unwrap(value)
	if f.hooks.Set != nil {
		return f.hooks.Set(f.target, key, value, f)
	}
	return f.Assign(key, value)
}

// Assign is the default write: a plain assignment that fails silently on a
// frozen object or an array index out of range. Set hooks use it to apply
// the write they intercepted.
func (f *Facade) Assign(key string, value any) bool {
	if f.isFrozen() {
		return false
	}
	value = Unwrap(value)
	switch t := f.target.(type) {
	case map[string]any:
		t[key] = value
		return true
	case []any:
		i, ok := index(key, len(t))
		if !ok {
			return false
		}
		t[i] = value
		return true
	}
	return false
}

// Delete removes key. Array elements are cleared to nil instead.
func (f *Facade) Delete(key string) bool {
	if f.hooks.Delete != nil {
		return f.hooks.Delete(f.target, key)
	}
	if f.isFrozen() {
		return false
	}
	switch t := f.target.(type) {
	case map[string]any:
		delete(t, key)
		return true
	case []any:
		i, ok := index(key, len(t))
		if !ok {
			return false
		}
		t[i] = nil
		return true
	}
	return false
}

// Has reports whether key exists on the object.
func (f *Facade) Has(key string) bool {
	if f.hooks.Has != nil {
		return f.hooks.Has(f.target, key)
	}
	switch t := f.target.(type) {
	case map[string]any:
		_, ok := t[key]
		return ok
	case []any:
		if key == "length" {
			return true
		}
		_, ok := index(key, len(t))
		return ok
	}
	return false
}

// Keys enumerates own keys. Map keys are sorted; array keys are the indexes.
func (f *Facade) Keys() []string {
	if f.hooks.Keys != nil {
		return f.hooks.Keys(f.target)
	}
	switch t := f.target.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return keys
	case []any:
		keys := make([]string, len(t))
		for i := range t {
			keys[i] = strconv.Itoa(i)
		}
		return keys
	}
	return nil
}

// Len returns the number of keys or elements.
func (f *Facade) Len() int {
	switch t := f.target.(type) {
	case map[string]any:
		return len(t)
	case []any:
		return len(t)
	}
	return 0
}

// Lookup returns the raw own value stored under key without observing it.
func (f *Facade) Lookup(key string) (any, bool) {
	if f.hooks.Lookup != nil {
		return f.hooks.Lookup(f.target, key)
	}
	switch t := f.target.(type) {
	case map[string]any:
		v, ok := t[key]
		return v, ok
	case []any:
		if key == "length" {
			return len(t), true
		}
		i, ok := index(key, len(t))
		if !ok {
			return nil, false
		}
		return t[i], true
	}
	return nil, false
}

// Define stores value under key without going through the Set hook.
func (f *Facade) Define(key string, value any) bool {
	if f.hooks.Define != nil {
		return f.hooks.Define(f.target, key, value)
	}
	return f.Assign(key, value)
}

// Freeze makes every later default write, delete or define fail, through
// this facade or any later facade over the same object.
func (f *Facade) Freeze() bool {
	if f.hooks.Freeze != nil {
		return f.hooks.Freeze(f.target)
	}
	if !f.cache.freeze(f.target) {
		f.frozen = true
	}
	return true
}

// Frozen reports whether the underlying object has been frozen.
func (f *Facade) Frozen() bool {
	if f.hooks.Frozen != nil {
		return f.hooks.Frozen(f.target)
	}
	return f.isFrozen()
}

func (f *Facade) isFrozen() bool {
	return f.frozen || f.cache.isFrozen(f.target)
}

// Unwrap returns the underlying object of a facade, or v itself.
func Unwrap(v any) any {
	if f, ok := v.(*Facade); ok {
		return f.target
	}
	return v
}

func index(key string, n int) (int, bool) {
	i, err := strconv.Atoi(key)
	if err != nil || i < 0 || i >= n {
		return 0, false
	}
	return i, true
}
