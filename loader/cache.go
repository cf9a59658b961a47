package loader

import (
	"sort"
	"sync"
	"time"

	"github.com/chazu/mop/vm"
)

// ---------------------------------------------------------------------------
// classCache: content-addressed index of compiled classes
// ---------------------------------------------------------------------------

// entry is one compiled source.
type entry struct {
	hash       Hash
	name       string
	path       string
	class      *vm.Class
	compiledAt time.Time
}

// classCache indexes compiled classes by source hash, by class name, and by
// source path. A name or path points at the most recent entry for it.
type classCache struct {
	mu     sync.RWMutex
	byHash map[Hash]*entry
	byName map[string]*entry
	byPath map[string]*entry
}

func newClassCache() *classCache {
	return &classCache{
		byHash: make(map[Hash]*entry),
		byName: make(map[string]*entry),
		byPath: make(map[string]*entry),
	}
}

func (c *classCache) lookupHash(h Hash) *entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.byHash[h]
}

func (c *classCache) lookupName(name string) *entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.byName[name]
}

func (c *classCache) lookupPath(path string) *entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.byPath[path]
}

// put indexes e and returns the entry it displaced under the same name, if
// that entry holds a different class.
func (c *classCache) put(e *entry) *entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.byName[e.name]
	c.byHash[e.hash] = e
	c.byName[e.name] = e
	if e.path != "" {
		c.byPath[e.path] = e
	}
	if prev != nil && prev.class != e.class {
		return prev
	}
	return nil
}

// dropPath forgets the entry compiled from path so the next load recompiles
// it. The hash index keeps the class: unchanged content still hits.
func (c *classCache) dropPath(path string) *entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.byPath[path]
	if e == nil {
		return nil
	}
	delete(c.byPath, path)
	if c.byName[e.name] == e {
		delete(c.byName, e.name)
	}
	return e
}

func (c *classCache) clear() {
	c.mu.Lock()
	c.byHash = make(map[Hash]*entry)
	c.byName = make(map[string]*entry)
	c.byPath = make(map[string]*entry)
	c.mu.Unlock()
}

func (c *classCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byHash)
}

// names returns the cached class names in sorted order.
func (c *classCache) names() []string {
	c.mu.RLock()
	names := make([]string, 0, len(c.byName))
	for n := range c.byName {
		names = append(names, n)
	}
	c.mu.RUnlock()
	sort.Strings(names)
	return names
}
