// Package driver runs aggregate, getMore, killCursors and explain commands
// against a cluster.  It owns the compiled pipeline cache and the open
// cursors.
package driver

import (
	"context"
	"time"

	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/cluster"
	"github.com/brimdata/docpipe/compiler/describe"
	"github.com/brimdata/docpipe/compiler/optimizer"
	"github.com/brimdata/docpipe/cursor"
	"github.com/brimdata/docpipe/dperr"
	"github.com/brimdata/docpipe/expr"
	"go.uber.org/zap"
)

const DefaultCacheSize = 256

const (
	QueryPlanner   = "queryPlanner"
	ExecutionStats = "executionStats"
)

type Config struct {
	Optimizer optimizer.Config
	// Location is the merge location used when a request does not name
	// one.
	Location  cluster.Location
	Cursor    cursor.Config
	CacheSize int
	Logger    *zap.Logger
}

type Engine struct {
	cluster  *cluster.Cluster
	cursors  *cursor.Manager
	cache    *compileCache
	location cluster.Location
	logger   *zap.Logger
}

func New(c *cluster.Cluster, conf Config) (*Engine, error) {
	if conf.Logger == nil {
		conf.Logger = zap.NewNop()
	}
	cache, err := newCompileCache(conf.Optimizer, conf.CacheSize)
	if err != nil {
		return nil, err
	}
	if conf.Cursor.Logger == nil {
		conf.Cursor.Logger = conf.Logger
	}
	return &Engine{
		cluster:  c,
		cursors:  cursor.NewManager(conf.Cursor),
		cache:    cache,
		location: conf.Location,
		logger:   conf.Logger.Named("driver"),
	}, nil
}

func (e *Engine) Cluster() *cluster.Cluster {
	return e.cluster
}

func (e *Engine) Cursors() *cursor.Manager {
	return e.cursors
}

// query compiles req into a cluster query.
func (e *Engine) query(req *AggregateRequest) (*cluster.Query, *compiled, error) {
	loc := e.location
	if req.Location != "" {
		var err error
		if loc, err = cluster.ParseLocation(req.Location); err != nil {
			return nil, nil, err
		}
	}
	p, err := e.cache.compile(req)
	if err != nil {
		return nil, nil, err
	}
	ectx := expr.NewContext()
	ectx.Logger = e.logger
	ectx.Now = docpipe.NewTime(time.Now())
	if req.Collation != "" {
		if ectx.Collator, err = newCollator(req.Collation); err != nil {
			return nil, nil, err
		}
	}
	if req.Let != nil {
		if ectx.Vars, err = evalLet(ectx, req.Let); err != nil {
			return nil, nil, err
		}
	}
	return &cluster.Query{
		Pipeline: p.seq,
		Location: loc,
		Expr:     ectx,
		MaxTime:  req.MaxTime,
		Explain:  req.Explain,
	}, p, nil
}

// evalLet evaluates the let option.  Each variable sees $$NOW and the
// variables defined before it.
func evalLet(ectx *expr.Context, let *docpipe.Document) (map[string]docpipe.Value, error) {
	vars := make(map[string]docpipe.Value, let.Len())
	for _, f := range let.Fields() {
		names := make(map[string]bool, len(vars))
		for name := range vars {
			names[name] = true
		}
		prog, err := expr.Parse(f.Value, &expr.ParseContext{Vars: names})
		if err != nil {
			return nil, err
		}
		ectx.Vars = vars
		v, err := prog.Eval(ectx, docpipe.EmptyDocument)
		if err != nil {
			return nil, err
		}
		vars[f.Name] = v
	}
	return vars, nil
}

// Aggregate starts req and returns its first batch.  The query outlives
// ctx: it runs until its cursor is exhausted, killed or reaped.
func (e *Engine) Aggregate(ctx context.Context, req *AggregateRequest) (cursor.Batch, error) {
	if req.Explain {
		return cursor.Batch{}, dperr.E(dperr.InvalidArgument, "use Explain for explain requests")
	}
	q, _, err := e.query(req)
	if err != nil {
		return cursor.Batch{}, err
	}
	cur, err := e.cluster.Aggregate(context.WithoutCancel(ctx), q)
	if err != nil {
		return cursor.Batch{}, err
	}
	return e.cursors.Open(cur, req.Collection, req.BatchSize)
}

func (e *Engine) GetMore(_ context.Context, req *GetMoreRequest) (cursor.Batch, error) {
	return e.cursors.GetMore(req.ID, req.BatchSize)
}

// KillCursors kills ids and reports which were killed and which were not
// found.
func (e *Engine) KillCursors(_ context.Context, ids []int64) ([]int64, []int64, error) {
	return e.cursors.Kill(ids...)
}

// Explain describes how req would run.  With executionStats verbosity
// the query runs to completion in explain mode, where writers do not
// write, and the per-stage document counts are reported.
func (e *Engine) Explain(ctx context.Context, req *AggregateRequest, verbosity string) (*docpipe.Document, error) {
	if verbosity == "" {
		verbosity = QueryPlanner
	}
	if verbosity != QueryPlanner && verbosity != ExecutionStats {
		return nil, dperr.E(dperr.InvalidArgument, dperr.BadValue, "verbosity string must be one of {'queryPlanner', 'executionStats'}")
	}
	q, p, err := e.query(req)
	if err != nil {
		return nil, err
	}
	q.Explain = true
	var b docpipe.Builder
	b.Set("pipeline", describe.Pipeline(p.seq))
	b.Set("rewrites", describe.Rewrites(p.rewrites))
	if verbosity == QueryPlanner {
		plan, err := e.cluster.Plan(ctx, q)
		if err != nil {
			return nil, err
		}
		for _, f := range plan.Document().Fields() {
			b.Set(f.Name, f.Value)
		}
		b.Set("ok", docpipe.NewInt32(1))
		return b.Document(), nil
	}
	cur, err := e.cluster.Aggregate(ctx, q)
	if err != nil {
		return nil, err
	}
	var n int64
	for {
		batch, err := cur.Pull(false)
		if err != nil {
			cur.Close()
			return nil, err
		}
		if batch == nil {
			break
		}
		n += int64(len(batch.Documents()))
		batch.Unref()
	}
	if err := cur.Close(); err != nil {
		return nil, err
	}
	for _, f := range cur.Explain().Fields() {
		b.Set(f.Name, f.Value)
	}
	b.Set("nReturned", docpipe.NewInt64(n))
	b.Set("ok", docpipe.NewInt32(1))
	return b.Document(), nil
}

// Status summarizes the engine for the status endpoint.
func (e *Engine) Status() *docpipe.Document {
	ids := e.cluster.ShardIDs()
	shards := make([]docpipe.Value, 0, len(ids))
	for _, id := range ids {
		shards = append(shards, docpipe.NewString(id))
	}
	return docpipe.D(
		"ok", docpipe.NewInt32(1),
		"primary", docpipe.NewString(e.cluster.Primary()),
		"shards", docpipe.NewArray(shards),
		"cursors", docpipe.NewInt64(int64(e.cursors.Len())),
		"mergeLocation", docpipe.NewString(e.location.String()),
	)
}

// Run reaps idle cursors until ctx is done.
func (e *Engine) Run(ctx context.Context) {
	e.cursors.Run(ctx.Done())
}

func (e *Engine) Close() error {
	return e.cursors.Close()
}
