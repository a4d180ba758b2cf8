package shard

import (
	"context"
	"sync"

	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/catalog"
	"github.com/brimdata/docpipe/compiler/dag"
	"github.com/brimdata/docpipe/compiler/kernel"
	"github.com/brimdata/docpipe/dperr"
	"github.com/brimdata/docpipe/expr"
	"github.com/brimdata/docpipe/field"
	"github.com/brimdata/docpipe/match"
	"github.com/brimdata/docpipe/routing"
	"github.com/brimdata/docpipe/runtime/op"
	"github.com/brimdata/docpipe/runtime/op/load"
	"github.com/brimdata/docpipe/zbuf"
	"go.uber.org/zap"
)

// Local is a partition held in process.
type Local struct {
	id      string
	catalog *catalog.Catalog
	logger  *zap.Logger

	mu       sync.Mutex
	versions map[string]routing.Version
}

var _ Shard = (*Local)(nil)

func NewLocal(id string, cat *catalog.Catalog, logger *zap.Logger) *Local {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Local{
		id:       id,
		catalog:  cat,
		logger:   logger.With(zap.String("shard", id)),
		versions: make(map[string]routing.Version),
	}
}

func (l *Local) ID() string {
	return l.id
}

func (l *Local) Catalog() *catalog.Catalog {
	return l.catalog
}

// SetVersion records the routing version of coll this partition serves.
func (l *Local) SetVersion(_ context.Context, coll string, v routing.Version) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.versions[coll] = v
	return nil
}

func (l *Local) Version(coll string) routing.Version {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.versions[coll]
}

// Open checks req's routing version, snapshots the collection and starts
// the pipeline over the snapshot.  Writes that land after Open are not
// seen by the cursor.
func (l *Local) Open(ctx context.Context, req *Request) (Cursor, error) {
	if !req.AnyVersion {
		if v := l.Version(req.Collection); !v.Equal(req.Version) {
			return nil, dperr.E(dperr.RoutingStale, "shard %s holds version %s of %s but the request was routed with %s", l.id, v, req.Collection, req.Version)
		}
	}
	var cancel context.CancelFunc
	if req.MaxTime > 0 {
		ctx, cancel = context.WithTimeout(ctx, req.MaxTime)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	octx := op.NewContext(ctx, req.Expr, l.logger)
	octx.MemMaxBytes = req.MemMaxBytes
	env := &localEnv{
		catalog: l.catalog,
		snaps:   map[string]*catalog.Snapshot{req.Collection: l.catalog.Snapshot(req.Collection)},
	}
	b := kernel.NewBuilder(octx, env, req.Explain)
	puller, err := b.Build(req.Pipeline, nil)
	if err != nil {
		octx.Cancel()
		cancel()
		return nil, err
	}
	l.logger.Debug("open",
		zap.String("collection", req.Collection),
		zap.Stringer("version", req.Version),
		zap.Bool("explain", req.Explain))
	return &localCursor{Puller: puller, builder: b, octx: octx, cancel: cancel}, nil
}

func (l *Local) Find(_ context.Context, coll string, on field.List, key []docpipe.Value) (*docpipe.Document, bool, error) {
	c, err := l.catalog.Lookup(coll)
	if err != nil {
		return nil, false, nil
	}
	doc, _, ok := c.FindOne(on, key)
	return doc, ok, nil
}

// Replace overwrites the document matching key or inserts doc when the
// match is gone.
func (l *Local) Replace(_ context.Context, coll string, on field.List, key []docpipe.Value, doc *docpipe.Document) error {
	c := l.catalog.Create(coll)
	if _, loc, ok := c.FindOne(on, key); ok {
		c.Replace(loc, doc)
		return nil
	}
	c.Insert(doc)
	return nil
}

func (l *Local) Insert(_ context.Context, coll string, docs ...*docpipe.Document) error {
	l.catalog.Create(coll).Insert(docs...)
	return nil
}

func (l *Local) ReplaceAll(_ context.Context, coll string, docs []*docpipe.Document) error {
	l.catalog.Create(coll).ReplaceAll(docs)
	return nil
}

func (l *Local) Drop(_ context.Context, coll string) error {
	l.catalog.Drop(coll)
	l.mu.Lock()
	delete(l.versions, coll)
	l.mu.Unlock()
	return nil
}

func (l *Local) Has(_ context.Context, coll string) (bool, error) {
	_, err := l.catalog.Lookup(coll)
	return err == nil, nil
}

type localCursor struct {
	zbuf.Puller
	builder *kernel.Builder
	octx    *op.Context
	cancel  context.CancelFunc
	once    sync.Once
}

func (c *localCursor) Stats() []kernel.StageStats {
	return c.builder.Stats()
}

func (c *localCursor) Close() error {
	c.once.Do(func() {
		c.octx.Cancel()
		c.cancel()
	})
	return nil
}

// localEnv serves the partition half of a pipeline, which reads only
// the partition's own documents and never writes.
type localEnv struct {
	catalog *catalog.Catalog
	snaps   map[string]*catalog.Snapshot
}

func (e *localEnv) Scan(ctx context.Context, ectx *expr.Context, scan *dag.Scan) (zbuf.Puller, error) {
	snap, ok := e.snaps[scan.Collection]
	if !ok {
		snap = e.catalog.Snapshot(scan.Collection)
		e.snaps[scan.Collection] = snap
	}
	return snap.NewScanner(ctx, ectx, scan.Filter, scan.Bounds), nil
}

func (*localEnv) Open(context.Context, string, *match.Filter) (zbuf.Puller, error) {
	return nil, dperr.E(dperr.InternalAssertion, "a partition cannot read other collections")
}

func (*localEnv) Target(_ context.Context, ns dag.Namespace) (load.Target, error) {
	return nil, dperr.E(dperr.InternalAssertion, "a partition cannot write to %s", ns)
}
