package cluster

import (
	"context"

	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/compiler/dag"
	"github.com/brimdata/docpipe/dperr"
	"github.com/brimdata/docpipe/expr"
	"github.com/brimdata/docpipe/field"
	"github.com/brimdata/docpipe/match"
	"github.com/brimdata/docpipe/runtime/op/load"
	"github.com/brimdata/docpipe/shard"
	"github.com/brimdata/docpipe/zbuf"
)

// mergeEnv serves the merge half of a pipeline: it reads other
// collections across the cluster and writes through routing.
type mergeEnv struct {
	cluster *Cluster
	ectx    *expr.Context
}

func (*mergeEnv) Scan(context.Context, *expr.Context, *dag.Scan) (zbuf.Puller, error) {
	return nil, dperr.E(dperr.InternalAssertion, "the merger has no partition input to scan")
}

// Open reads coll from every partition that may hold a match for filter,
// one partition after another.
func (e *mergeEnv) Open(ctx context.Context, coll string, filter *match.Filter) (zbuf.Puller, error) {
	table, err := e.cluster.cache.Get(ctx, coll)
	if err != nil {
		return nil, err
	}
	scan := &dag.Scan{Kind: "Scan", Collection: coll, Filter: filter}
	if filter != nil {
		scan.Bounds = filter.Bounds(e.ectx.Collator != nil)
	}
	var shards []shard.Shard
	for _, id := range table.Target(scan.Bounds) {
		if s, ok := e.cluster.byID[id]; ok {
			shards = append(shards, s)
		}
	}
	return &concat{
		ctx:    ctx,
		shards: shards,
		req: shard.Request{
			Collection: coll,
			AnyVersion: true,
			Pipeline:   dag.NewSequential(scan),
			Expr:       e.ectx,
		},
	}, nil
}

func (e *mergeEnv) Target(_ context.Context, ns dag.Namespace) (load.Target, error) {
	return &target{cluster: e.cluster, coll: ns.Coll}, nil
}

// concat pulls the streams of shards in order.
type concat struct {
	ctx    context.Context
	shards []shard.Shard
	req    shard.Request
	cursor shard.Cursor
}

func (c *concat) Pull(done bool) (zbuf.Batch, error) {
	for {
		if c.cursor == nil {
			if done || len(c.shards) == 0 {
				c.shards = nil
				return nil, nil
			}
			req := c.req
			cursor, err := c.shards[0].Open(c.ctx, &req)
			if err != nil {
				return nil, err
			}
			c.shards = c.shards[1:]
			c.cursor = cursor
		}
		batch, err := c.cursor.Pull(done)
		if batch != nil && err == nil && !done {
			return batch, nil
		}
		cerr := c.cursor.Close()
		c.cursor = nil
		if err != nil {
			return nil, err
		}
		if cerr != nil {
			return nil, cerr
		}
	}
}

// target is a collection written through the cluster's routing.
type target struct {
	cluster *Cluster
	coll    string
}

var _ load.Target = (*target)(nil)

func (t *target) Exists(ctx context.Context) (bool, error) {
	for _, s := range t.cluster.shards {
		ok, err := s.Has(ctx, t.coll)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

// Find asks the partitions in id order for a document matching key.
func (t *target) Find(ctx context.Context, on field.List, key []docpipe.Value) (*docpipe.Document, bool, error) {
	_, doc, ok, err := t.find(ctx, on, key)
	return doc, ok, err
}

func (t *target) find(ctx context.Context, on field.List, key []docpipe.Value) (shard.Shard, *docpipe.Document, bool, error) {
	for _, s := range t.cluster.shards {
		doc, ok, err := s.Find(ctx, t.coll, on, key)
		if err != nil {
			return nil, nil, false, err
		}
		if ok {
			return s, doc, true, nil
		}
	}
	return nil, nil, false, nil
}

func (t *target) Replace(ctx context.Context, on field.List, key []docpipe.Value, doc *docpipe.Document) error {
	s, _, ok, err := t.find(ctx, on, key)
	if err != nil {
		return err
	}
	if !ok {
		return t.Insert(ctx, doc)
	}
	return s.Replace(ctx, t.coll, on, key, doc)
}

func (t *target) Insert(ctx context.Context, doc *docpipe.Document) error {
	return t.cluster.Insert(ctx, t.coll, doc)
}

// ReplaceAll puts docs on the primary partition of an unsharded
// collection and clears the other partitions.
func (t *target) ReplaceAll(ctx context.Context, docs []*docpipe.Document) error {
	table, err := t.cluster.cache.Get(ctx, t.coll)
	if err != nil {
		return err
	}
	if table.Sharded {
		return dperr.E(dperr.InvalidArgument, dperr.Code(28769), "%s cannot be sharded", t.coll)
	}
	for _, s := range t.cluster.shards {
		var err error
		if s.ID() == table.Primary {
			err = s.ReplaceAll(ctx, t.coll, docs)
		} else if ok, _ := s.Has(ctx, t.coll); ok {
			err = s.Drop(ctx, t.coll)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
