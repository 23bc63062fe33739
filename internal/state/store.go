// Package state holds the shared state tree and the set of keys renders
// depend on.
package state

import (
	"sort"

	"github.com/livefir/zealtime/internal/observe"
)

// Store wraps one root state object in an observable facade. Writes to a key
// that a render has read invoke the renderer before the write returns.
type Store struct {
	tree   map[string]any
	cache  *observe.Cache
	hooks  *observe.Hooks
	root   *observe.Facade
	deps   map[string]struct{}
	render func()
}

// New creates a store over an empty state tree.
func New() *Store {
	s := &Store{
		tree:  make(map[string]any),
		cache: observe.NewCache(),
		deps:  make(map[string]struct{}),
	}
	s.hooks = &observe.Hooks{
		Get: func(target any, key string, receiver *observe.Facade, next func() any) any {
			return next()
		},
		Set: s.onSet,
	}
	s.root = observe.Observe(s.tree, s.hooks, s.cache).(*observe.Facade)
	return s
}

// SetRenderer installs the function run when a tracked key is written.
func (s *Store) SetRenderer(render func()) {
	s.render = render
}

// Root returns the facade over the whole state tree.
func (s *Store) Root() *observe.Facade {
	return s.root
}

// Get reads a top-level key through the root facade.
func (s *Store) Get(key string) any {
	return s.root.Get(key)
}

// Set writes a top-level key through the root facade.
func (s *Store) Set(key string, value any) bool {
	return s.root.Set(key, value)
}

// Has reports whether a top-level key exists.
func (s *Store) Has(key string) bool {
	return s.root.Has(key)
}

// Delete removes a top-level key. Deletes never render.
func (s *Store) Delete(key string) bool {
	return s.root.Delete(key)
}

// Observe wraps v with the store's hooks and identity cache.
func (s *Store) Observe(v any) any {
	return observe.Observe(v, s.hooks, s.cache)
}

// Track adds key to the dependency set. Keys are never removed.
func (s *Store) Track(key string) {
	s.deps[key] = struct{}{}
}

// Tracked reports whether key is in the dependency set.
func (s *Store) Tracked(key string) bool {
	_, ok := s.deps[key]
	return ok
}

// Dependencies returns the dependency set, sorted.
func (s *Store) Dependencies() []string {
	keys := make([]string, 0, len(s.deps))
	for k := range s.deps {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// onSet applies the write to whichever object it targets and renders when
// the key is tracked. Tracking is by key name at any depth, so writing
// state[id]["content"] renders when some template reads $(content).
// A rejected write (frozen object) is silently dropped and never renders.
func (s *Store) onSet(target any, key string, value any, receiver *observe.Facade) bool {
	if !receiver.Assign(key, value) {
		return true
	}
	if s.Tracked(key) && s.render != nil {
		s.render()
	}
	return true
}
