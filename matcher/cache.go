package matcher

import "sync"

// Cache holds one tree per key. Trees are never mutated after they are
// stored; a rebuild stores a new tree and readers holding the old one finish
// their scan against it.
//
// Every Rebuild or Delete bumps the key's generation. A LoadOrBuild whose
// build overlapped one of them returns its tree without caching it.
type Cache[K comparable, T any] struct {
	mu    sync.RWMutex
	trees map[K]*Tree[T]
	gens  map[K]uint64
}

func NewCache[K comparable, T any]() *Cache[K, T] {
	return &Cache[K, T]{
		trees: make(map[K]*Tree[T]),
		gens:  make(map[K]uint64),
	}
}

func (c *Cache[K, T]) Load(key K) (*Tree[T], bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.trees[key]
	return t, ok
}

// LoadOrBuild returns the cached tree for key, building it from the entries
// returned by build if there is none. build should read the current entries
// itself. If another caller stores a tree first, that tree wins.
func (c *Cache[K, T]) LoadOrBuild(key K, build func() ([]Entry[T], error)) (*Tree[T], error) {
	c.mu.RLock()
	t, ok := c.trees[key]
	gen := c.gens[key]
	c.mu.RUnlock()
	if ok {
		return t, nil
	}

	entries, err := build()
	if err != nil {
		return nil, err
	}
	built := New(entries)

	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.trees[key]; ok {
		return t, nil
	}
	if c.gens[key] == gen {
		c.trees[key] = built
	}
	return built, nil
}

// Rebuild replaces the tree for key with one built from entries.
func (c *Cache[K, T]) Rebuild(key K, entries []Entry[T]) *Tree[T] {
	built := New(entries)
	c.mu.Lock()
	c.trees[key] = built
	c.gens[key]++
	c.mu.Unlock()
	return built
}

// Delete drops the tree for key; the next LoadOrBuild rebuilds it.
func (c *Cache[K, T]) Delete(key K) {
	c.mu.Lock()
	delete(c.trees, key)
	c.gens[key]++
	c.mu.Unlock()
}

func (c *Cache[K, T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.trees)
}
