// Package fdcache is a small reference-counted file-handle cache shared
// by every BinaryInfo the filter creates for one iterator (spec.md §5:
// "The file-descriptor cache is owned by the iterator and used by all
// BinaryInfo objects it transitively creates; single-threaded access
// only"), grounded on the original's src/fd-cache/fd-cache.h.
//
// Two or more BinaryInfo instances can legitimately point at the same
// ELF file (e.g. a statically linked binary re-mmapped at two load
// addresses across a fork), so opening by path once and refcounting
// handles avoids redundant file descriptors.
package fdcache

import (
	"fmt"
	"os"
)

type entry struct {
	file *os.File
	refs int
}

// Cache is a path-keyed, refcounted *os.File pool. Not safe for
// concurrent use — the core is single-threaded per spec.md §5.
type Cache struct {
	entries map[string]*entry
}

// New creates an empty Cache.
func New() *Cache {
	return &Cache{entries: make(map[string]*entry)}
}

// Handle is a refcounted reference to an open file. Callers must call
// Put exactly once for every successful Get.
type Handle struct {
	path  string
	entry *entry
}

// File returns the underlying *os.File. Its read position is shared
// across all holders of this path's handle — callers must use
// ReadAt/seek-and-restore, never a bare sequential Read, which is
// exactly how pkg/bininfo uses it.
func (h *Handle) File() *os.File { return h.entry.file }

// Get returns a Handle for path, opening it read-only on first
// reference and reusing the same *os.File on subsequent references.
func (c *Cache) Get(path string) (*Handle, error) {
	if e, ok := c.entries[path]; ok {
		e.refs++
		return &Handle{path: path, entry: e}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("fdcache: open %s: %w", path, err)
	}
	e := &entry{file: f, refs: 1}
	c.entries[path] = e
	return &Handle{path: path, entry: e}, nil
}

// Put releases one reference to h's path, closing the underlying file
// once the last reference is released.
func (c *Cache) Put(h *Handle) {
	if h == nil {
		return
	}
	e, ok := c.entries[h.path]
	if !ok || e != h.entry {
		return
	}
	e.refs--
	if e.refs <= 0 {
		e.file.Close()
		delete(c.entries, h.path)
	}
}

// Len reports how many distinct paths are currently cached, exposed for
// internal/metrics' fd-cache size gauge.
func (c *Cache) Len() int {
	return len(c.entries)
}

// Close releases every cached handle regardless of refcount. Iterators
// sharing the cache never call it; whoever created the cache does
// (internal/app's App.Stop).
func (c *Cache) Close() {
	for path, e := range c.entries {
		e.file.Close()
		delete(c.entries, path)
	}
}
