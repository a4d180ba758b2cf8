// Package cluster runs pipelines over a set of partitions.  The
// coordinator splits a pipeline into the stages each partition runs over
// its own documents and the stages that run over the merged result, fans
// the partition half out, and merges the streams it gets back.
//
// Every partition lives in this process, so the merge half always runs in
// the coordinator's goroutine.  The merge location policy picks which
// partition is recorded as the merger (Plan.Merger, "mergeLocation" in
// explain) and whether localOnly may read a single partition directly; it
// never changes where or how the merge executes.
package cluster

import (
	"context"
	"sort"

	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/compiler/dag"
	"github.com/brimdata/docpipe/dperr"
	"github.com/brimdata/docpipe/routing"
	"github.com/brimdata/docpipe/shard"
	"github.com/brimdata/docpipe/zbuf"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const DefaultRetries = 3

type Config struct {
	// Primary holds unsharded collections.  It defaults to the lowest
	// partition id.
	Primary string
	// Retries bounds the re-dispatches after stale routing.  Zero means
	// DefaultRetries and a negative value disables retries.
	Retries     int
	MemMaxBytes int
	Registerer  prometheus.Registerer
	Logger      *zap.Logger
}

type Cluster struct {
	logger      *zap.Logger
	shards      []shard.Shard
	byID        map[string]shard.Shard
	primary     string
	store       routing.Store
	cache       *routing.Cache
	metrics     *metrics
	retries     int
	memMaxBytes int
}

// New returns a coordinator over shards whose routing lives in store.
// Coordinators built over the same shards and store each keep their own
// routing cache.
func New(shards []shard.Shard, store routing.Store, conf Config) (*Cluster, error) {
	if len(shards) == 0 {
		return nil, dperr.E(dperr.InvalidArgument, "a cluster needs at least one partition")
	}
	logger := conf.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	byID := make(map[string]shard.Shard, len(shards))
	sorted := append([]shard.Shard(nil), shards...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID() < sorted[j].ID() })
	for _, s := range sorted {
		if _, ok := byID[s.ID()]; ok {
			return nil, dperr.E(dperr.InvalidArgument, "duplicate partition id %q", s.ID())
		}
		byID[s.ID()] = s
	}
	primary := conf.Primary
	if primary == "" {
		primary = sorted[0].ID()
	}
	if _, ok := byID[primary]; !ok {
		return nil, dperr.E(dperr.InvalidArgument, "primary partition %q is not in the cluster", primary)
	}
	retries := conf.Retries
	switch {
	case retries == 0:
		retries = DefaultRetries
	case retries < 0:
		retries = 0
	}
	logger = logger.Named("cluster")
	return &Cluster{
		logger:      logger,
		shards:      sorted,
		byID:        byID,
		primary:     primary,
		store:       store,
		cache:       routing.NewCache(store, primary, logger),
		metrics:     newMetrics(conf.Registerer),
		retries:     retries,
		memMaxBytes: conf.MemMaxBytes,
	}, nil
}

func (c *Cluster) Primary() string {
	return c.primary
}

func (c *Cluster) Cache() *routing.Cache {
	return c.cache
}

// ShardIDs returns the partition ids in sorted order.
func (c *Cluster) ShardIDs() []string {
	ids := make([]string, 0, len(c.shards))
	for _, s := range c.shards {
		ids = append(ids, s.ID())
	}
	return ids
}

func (c *Cluster) Shard(id string) (shard.Shard, bool) {
	s, ok := c.byID[id]
	return s, ok
}

// Insert routes each of docs to the partition that owns its shard key.
func (c *Cluster) Insert(ctx context.Context, coll string, docs ...*docpipe.Document) error {
	table, err := c.cache.Get(ctx, coll)
	if err != nil {
		return err
	}
	byShard, err := partition(table, docs)
	if err != nil {
		return err
	}
	for _, id := range sortedKeys(byShard) {
		if err := c.byID[id].Insert(ctx, coll, byShard[id]...); err != nil {
			return err
		}
	}
	return nil
}

// ShardCollection splits coll on key at points, moves every document to
// the partition that owns it and installs the new routing table.
func (c *Cluster) ShardCollection(ctx context.Context, coll, key string, points []docpipe.Value) (*routing.Table, error) {
	table, err := routing.NewSharded(coll, key, c.primary, points, c.ShardIDs())
	if err != nil {
		return nil, err
	}
	if err := c.redistribute(ctx, table); err != nil {
		return nil, err
	}
	c.logger.Info("collection sharded",
		zap.String("collection", coll),
		zap.String("key", key),
		zap.Int("chunks", len(table.Chunks)),
		zap.Stringer("version", table.Version))
	return table, nil
}

// MovePrimary moves the unsharded collection coll to partition to.
func (c *Cluster) MovePrimary(ctx context.Context, coll, to string) (*routing.Table, error) {
	if _, ok := c.byID[to]; !ok {
		return nil, dperr.E(dperr.InvalidArgument, "unknown partition %q", to)
	}
	old, err := c.cache.Refresh(ctx, coll)
	if err != nil {
		return nil, err
	}
	if old.Sharded {
		return nil, dperr.E(dperr.InvalidArgument, "%s is sharded", coll)
	}
	table := old.Copy()
	table.Primary = to
	if table.Version.IsZero() {
		table.Version = routing.NewEpoch()
	} else {
		table.Version = table.Version.Next()
	}
	if err := c.redistribute(ctx, table); err != nil {
		return nil, err
	}
	return table, nil
}

// Drop removes coll from every partition and from routing.
func (c *Cluster) Drop(ctx context.Context, coll string) error {
	var errs error
	for _, s := range c.shards {
		errs = multierr.Append(errs, s.Drop(ctx, coll))
	}
	errs = multierr.Append(errs, c.store.Delete(ctx, coll))
	c.cache.Invalidate(coll)
	return errs
}

func (c *Cluster) redistribute(ctx context.Context, table *routing.Table) error {
	docs, err := c.readAll(ctx, table.Collection)
	if err != nil {
		return err
	}
	byShard, err := partition(table, docs)
	if err != nil {
		return err
	}
	for _, s := range c.shards {
		if err := s.ReplaceAll(ctx, table.Collection, byShard[s.ID()]); err != nil {
			return err
		}
	}
	return c.install(ctx, table)
}

func (c *Cluster) install(ctx context.Context, table *routing.Table) error {
	if err := c.store.Save(ctx, table); err != nil {
		return err
	}
	for _, s := range c.shards {
		if err := s.SetVersion(ctx, table.Collection, table.Version); err != nil {
			return err
		}
	}
	_, err := c.cache.Refresh(ctx, table.Collection)
	return err
}

// readAll reads every document of coll from every partition regardless of
// routing.
func (c *Cluster) readAll(ctx context.Context, coll string) ([]*docpipe.Document, error) {
	var out []*docpipe.Document
	for _, s := range c.shards {
		cursor, err := s.Open(ctx, &shard.Request{
			Collection: coll,
			AnyVersion: true,
			Pipeline:   dag.NewSequential(&dag.Scan{Kind: "Scan", Collection: coll}),
		})
		if err != nil {
			return nil, err
		}
		docs, err := zbuf.PullAll(cursor)
		err = multierr.Append(err, cursor.Close())
		if err != nil {
			return nil, err
		}
		out = append(out, docs...)
	}
	return out, nil
}

func partition(table *routing.Table, docs []*docpipe.Document) (map[string][]*docpipe.Document, error) {
	out := make(map[string][]*docpipe.Document)
	for _, doc := range docs {
		id := table.Primary
		if table.Sharded {
			key, err := table.KeyOf(doc)
			if err != nil {
				return nil, err
			}
			if id, err = table.Owner(key); err != nil {
				return nil, err
			}
		}
		out[id] = append(out[id], doc)
	}
	return out, nil
}

func sortedKeys(m map[string][]*docpipe.Document) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
