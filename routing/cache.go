package routing

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/brimdata/docpipe"
	"go.uber.org/zap"
)

// Snapshot is an immutable set of tables.
type Snapshot struct {
	tables map[string]*Table
}

func (s *Snapshot) Get(coll string) (*Table, bool) {
	t, ok := s.tables[coll]
	return t, ok
}

// Cache is a process's view of the routing Store.  Readers use whatever
// snapshot is current and never wait for a refresh; a refresh loads from
// the store and swaps in a new snapshot.
type Cache struct {
	store   Store
	primary string
	logger  *zap.Logger
	snap    atomic.Pointer[Snapshot]
	// mu serializes refreshes.
	mu sync.Mutex
}

// NewCache returns a Cache over store.  Collections with no table in the
// store are treated as unsharded on primary.
func NewCache(store Store, primary string, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Cache{store: store, primary: primary, logger: logger}
	c.snap.Store(&Snapshot{tables: map[string]*Table{}})
	return c
}

// Get returns the cached table of coll, loading it if it is not cached.
func (c *Cache) Get(ctx context.Context, coll string) (*Table, error) {
	if t, ok := c.snap.Load().Get(coll); ok {
		return t, nil
	}
	return c.Refresh(ctx, coll)
}

// Refresh reloads the table of coll from the store.
func (c *Cache) Refresh(ctx context.Context, coll string) (*Table, error) {
	t, err := c.store.Load(ctx, coll)
	if err != nil {
		return nil, err
	}
	if t == nil {
		t = &Table{Collection: coll, Primary: c.primary}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.snap.Load()
	tables := make(map[string]*Table, len(old.tables)+1)
	for k, v := range old.tables {
		tables[k] = v
	}
	tables[coll] = t
	c.snap.Store(&Snapshot{tables: tables})
	if prev, ok := old.tables[coll]; !ok || !prev.Version.Equal(t.Version) {
		c.logger.Debug("routing refreshed",
			zap.String("collection", coll),
			zap.Stringer("version", t.Version),
			zap.Bool("sharded", t.Sharded))
	}
	return t, nil
}

// Invalidate drops coll from the cache so the next Get reloads it.
func (c *Cache) Invalidate(coll string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.snap.Load()
	if _, ok := old.tables[coll]; !ok {
		return
	}
	tables := make(map[string]*Table, len(old.tables))
	for k, v := range old.tables {
		if k != coll {
			tables[k] = v
		}
	}
	c.snap.Store(&Snapshot{tables: tables})
}

// Snapshot returns the current snapshot.
func (c *Cache) Snapshot() *Snapshot {
	return c.snap.Load()
}

// ResolveOwner returns the shard that owns the documents of coll with
// shard key value key, and the routing version the answer holds for.
func (c *Cache) ResolveOwner(ctx context.Context, coll string, key docpipe.Value) (string, Version, error) {
	t, err := c.Get(ctx, coll)
	if err != nil {
		return "", Version{}, err
	}
	owner, err := t.Owner(key)
	return owner, t.Version, err
}
