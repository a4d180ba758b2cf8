// Package catalog holds the collections of one partition.  Documents are
// kept in fixed-size buckets that carry lazily computed per-path
// statistics, which scans use to skip buckets a filter cannot match.
package catalog

import (
	"sort"
	"sync"

	"github.com/brimdata/docpipe/dperr"
)

type Catalog struct {
	bucketSize int

	mu    sync.RWMutex
	colls map[string]*Collection
}

// New returns an empty Catalog whose collections use buckets of
// bucketSize documents, or DefaultBucketSize if bucketSize is not
// positive.
func New(bucketSize int) *Catalog {
	if bucketSize <= 0 {
		bucketSize = DefaultBucketSize
	}
	return &Catalog{
		bucketSize: bucketSize,
		colls:      make(map[string]*Collection),
	}
}

// Lookup returns the named collection or a NamespaceNotFound error.
func (c *Catalog) Lookup(name string) (*Collection, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if coll, ok := c.colls[name]; ok {
		return coll, nil
	}
	return nil, dperr.E(dperr.NamespaceError, dperr.NamespaceNotFound, "collection %q does not exist", name)
}

// Create returns the named collection, creating it if needed.
func (c *Catalog) Create(name string) *Collection {
	c.mu.Lock()
	defer c.mu.Unlock()
	coll, ok := c.colls[name]
	if !ok {
		coll = newCollection(name, c.bucketSize)
		c.colls[name] = coll
	}
	return coll
}

func (c *Catalog) Drop(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.colls[name]
	delete(c.colls, name)
	return ok
}

// Snapshot returns a snapshot of the named collection.  A collection that
// does not exist reads as empty.
func (c *Catalog) Snapshot(name string) *Snapshot {
	coll, err := c.Lookup(name)
	if err != nil {
		return &Snapshot{Collection: name}
	}
	return coll.Snapshot()
}

func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.colls))
	for name := range c.colls {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
