package cluster

import (
	"context"
	"sync"
	"time"

	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/compiler/dag"
	"github.com/brimdata/docpipe/compiler/kernel"
	"github.com/brimdata/docpipe/dperr"
	"github.com/brimdata/docpipe/expr"
	"github.com/brimdata/docpipe/routing"
	"github.com/brimdata/docpipe/runtime/op"
	"github.com/brimdata/docpipe/runtime/op/combine"
	"github.com/brimdata/docpipe/runtime/op/merge"
	"github.com/brimdata/docpipe/shard"
	"github.com/brimdata/docpipe/zbuf"
	"github.com/cenkalti/backoff"
	"github.com/looplab/fsm"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Query is a pipeline to run across the cluster.  Pipeline begins with a
// Scan of the collection or with $documents.
type Query struct {
	Pipeline *dag.Sequential
	Location Location
	Expr     *expr.Context
	// MaxTime bounds the whole query and each partition request.
	MaxTime time.Duration
	Explain bool
}

// Plan splits q and decides where its halves run without running
// anything.
func (c *Cluster) Plan(ctx context.Context, q *Query) (*Plan, error) {
	split, err := Split(q.Pipeline, q.Location)
	if err != nil {
		return nil, err
	}
	p, _, err := c.plan(ctx, split, exprContext(q))
	return p, err
}

func (c *Cluster) plan(ctx context.Context, split *SplitPipeline, ectx *expr.Context) (*Plan, *routing.Table, error) {
	p := &Plan{Split: split}
	loc := split.Location
	if loc.Kind == SpecificPartition {
		if _, ok := c.byID[loc.Shard]; !ok {
			return nil, nil, dperr.E(dperr.InvalidArgument, "unknown partition %q", loc.Shard)
		}
		p.Merger = loc.Shard
	}
	coll := split.Collection()
	if coll == "" {
		return p, nil, nil
	}
	table, err := c.cache.Get(ctx, coll)
	if err != nil {
		return nil, nil, err
	}
	p.Targets = table.Target(split.Bounds(ectx.Collator != nil))
	p.Version = table.Version.String()
	switch loc.Kind {
	case AnyPartition:
		if len(p.Targets) > 0 {
			p.Merger = p.Targets[0]
		}
	case LocalOnly:
		// Without a single owning partition the merge falls back to the
		// coordinator.
		if len(p.Targets) == 1 {
			p.Merger = p.Targets[0]
			p.Direct = true
		}
	}
	return p, table, nil
}

func exprContext(q *Query) *expr.Context {
	if q.Expr != nil {
		return q.Expr
	}
	return expr.NewContext()
}

// Aggregate starts q and returns the cursor over its merged result.
// Partitions that reject the request for stale routing cause a routing
// refresh and a new dispatch, with exponential backoff, before any
// document has been returned.
func (c *Cluster) Aggregate(ctx context.Context, q *Query) (*Cursor, error) {
	split, err := Split(q.Pipeline, q.Location)
	if err != nil {
		return nil, err
	}
	var cancel context.CancelFunc
	if q.MaxTime > 0 {
		ctx, cancel = context.WithTimeout(ctx, q.MaxTime)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	octx := op.NewContext(ctx, exprContext(q), c.logger)
	octx.MemMaxBytes = c.memMaxBytes
	plan, cursors, err := c.dispatch(octx, split, q)
	if err != nil {
		octx.Cancel()
		cancel()
		c.metrics.fail(err)
		return nil, err
	}
	cur := &Cursor{
		cluster: c,
		plan:    plan,
		octx:    octx,
		cancel:  cancel,
		logger:  c.logger.With(zap.String("collection", split.Collection())),
	}
	cur.fsm = cur.newFSM()
	if err := cur.start(cursors, q.Explain); err != nil {
		cur.Close()
		c.metrics.fail(err)
		return nil, err
	}
	return cur, nil
}

func (c *Cluster) dispatch(octx *op.Context, split *SplitPipeline, q *Query) (*Plan, []shard.Cursor, error) {
	// WithMaxRetries treats zero as unlimited, so no retries needs StopBackOff.
	var retry backoff.BackOff = &backoff.StopBackOff{}
	if c.retries > 0 {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = 10 * time.Millisecond
		eb.MaxInterval = time.Second
		retry = backoff.WithMaxRetries(eb, uint64(c.retries))
	}
	policy := backoff.WithContext(retry, octx)
	var plan *Plan
	var cursors []shard.Cursor
	var fatal error
	var attempt int
	err := backoff.Retry(func() error {
		if attempt > 0 {
			c.metrics.retries.Inc()
		}
		attempt++
		var table *routing.Table
		var err error
		plan, table, err = c.plan(octx, split, octx.Expr)
		if err != nil {
			fatal = err
			return nil
		}
		cursors, err = c.open(octx, plan, table, q)
		if dperr.IsKind(err, dperr.RoutingStale) {
			c.logger.Info("stale routing",
				zap.String("collection", split.Collection()),
				zap.Int("attempt", attempt),
				zap.Error(err))
			if _, rerr := c.cache.Refresh(octx, split.Collection()); rerr != nil {
				fatal = rerr
				return nil
			}
			return err
		}
		fatal = err
		return nil
	}, policy)
	if fatal != nil {
		return nil, nil, fatal
	}
	if err != nil {
		if cerr := octx.Check(); cerr != nil {
			return nil, nil, cerr
		}
		return nil, nil, err
	}
	return plan, cursors, nil
}

// open sends the shard half of plan to every targeted partition at once.
func (c *Cluster) open(octx *op.Context, plan *Plan, table *routing.Table, q *Query) ([]shard.Cursor, error) {
	if len(plan.Targets) == 0 {
		return nil, nil
	}
	cursors := make([]shard.Cursor, len(plan.Targets))
	var g errgroup.Group
	for k, id := range plan.Targets {
		k, s := k, c.byID[id]
		req := &shard.Request{
			Collection:  table.Collection,
			Version:     table.Version,
			Pipeline:    plan.Split.Shard,
			Expr:        octx.Expr,
			MaxTime:     q.MaxTime,
			Explain:     q.Explain,
			MemMaxBytes: c.memMaxBytes,
		}
		g.Go(func() error {
			c.metrics.dispatched.Inc()
			cursor, err := s.Open(octx, req)
			cursors[k] = cursor
			return err
		})
	}
	if err := g.Wait(); err != nil {
		for _, cursor := range cursors {
			if cursor != nil {
				cursor.Close()
			}
		}
		return nil, err
	}
	return cursors, nil
}

const (
	stateDispatched = "dispatched"
	statePartial    = "partialResultsReceived"
	stateMerging    = "merging"
	stateDone       = "done"
	stateFailed     = "failed"

	eventReceive = "receive"
	eventMerge   = "merge"
	eventFinish  = "finish"
	eventFail    = "fail"
)

// Cursor is the merged result of a distributed query.
type Cursor struct {
	cluster    *Cluster
	plan       *Plan
	octx       *op.Context
	cancel     context.CancelFunc
	logger     *zap.Logger
	fsm        *fsm.FSM
	group      *errgroup.Group
	partitions []*partitionPuller
	builder    *kernel.Builder
	out        zbuf.Puller

	yielded   int64
	eos       bool
	err       error
	closeOnce sync.Once
	closeErr  error
}

var _ zbuf.Puller = (*Cursor)(nil)

func (cur *Cursor) newFSM() *fsm.FSM {
	active := []string{stateDispatched, statePartial, stateMerging}
	return fsm.NewFSM(stateDispatched,
		fsm.Events{
			{Name: eventReceive, Src: []string{stateDispatched}, Dst: statePartial},
			{Name: eventMerge, Src: []string{statePartial}, Dst: stateMerging},
			{Name: eventFinish, Src: active, Dst: stateDone},
			{Name: eventFail, Src: active, Dst: stateFailed},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				cur.logger.Debug("merge state", zap.String("from", e.Src), zap.String("to", e.Dst))
			},
		},
	)
}

func (cur *Cursor) event(name string) {
	if cur.fsm.Can(name) {
		cur.fsm.Event(context.Background(), name)
	}
}

// State reports where the query is in its lifecycle.
func (cur *Cursor) State() string {
	return cur.fsm.Current()
}

func (cur *Cursor) Plan() *Plan {
	return cur.plan
}

func (cur *Cursor) start(cursors []shard.Cursor, explain bool) error {
	octx := cur.octx
	var parents []zbuf.Puller
	if cur.plan.Direct && len(cursors) == 1 {
		p := &partitionPuller{id: cur.plan.Targets[0], cursor: cursors[0], coord: cur}
		cur.partitions = append(cur.partitions, p)
		parents = append(parents, p)
	} else if len(cursors) > 0 {
		g, gctx := errgroup.WithContext(octx)
		cur.group = g
		for k, cursor := range cursors {
			pctx, stop := context.WithCancel(gctx)
			p := &partitionPuller{
				id:     cur.plan.Targets[k],
				cursor: cursor,
				coord:  cur,
				ch:     make(chan op.Result),
				gctx:   gctx,
				stop:   stop,
			}
			cur.partitions = append(cur.partitions, p)
			parents = append(parents, p)
			g.Go(func() error {
				defer stop()
				return p.run(pctx)
			})
		}
	}
	split := cur.plan.Split
	var parent zbuf.Puller
	if len(split.Shard.Ops) > 0 {
		switch {
		case len(parents) == 0:
			parent = zbuf.NewSlicePuller()
		case !split.MergeKeys.IsNil():
			parent = merge.New(octx, parents, split.MergeKeys)
		default:
			parent = combine.New(parents)
		}
	}
	cur.builder = kernel.NewBuilder(octx, &mergeEnv{cluster: cur.cluster, ectx: octx.Expr}, explain)
	out, err := cur.builder.Build(split.Merge, parent)
	if err != nil {
		return err
	}
	cur.out = out
	cur.logger.Debug("dispatched",
		zap.Strings("targets", cur.plan.Targets),
		zap.String("mergeLocation", cur.plan.MergeLocation()),
		zap.String("policy", split.Location.String()))
	return nil
}

// Pull returns the next batch of merged documents.  Once a batch has been
// returned, a failure is reported as a partial merge failure and nothing
// more is returned.
func (cur *Cursor) Pull(done bool) (zbuf.Batch, error) {
	if cur.err != nil {
		return nil, cur.err
	}
	if cur.eos {
		return nil, nil
	}
	batch, err := cur.out.Pull(done)
	if err != nil {
		return nil, cur.fail(err)
	}
	if batch == nil {
		cur.eos = true
		cur.event(eventFinish)
		cur.logger.Debug("query done", zap.Int64("documents", cur.yielded))
		return nil, nil
	}
	cur.event(eventReceive)
	cur.event(eventMerge)
	cur.yielded += int64(len(batch.Documents()))
	return batch, nil
}

func (cur *Cursor) fail(err error) error {
	if cur.yielded > 0 {
		switch dperr.KindOf(err) {
		case dperr.MaxTimeExpired, dperr.Cancelled, dperr.PartialMergeFailure:
		default:
			err = dperr.E(dperr.PartialMergeFailure, "partial merge failure after %d documents: %w", cur.yielded, err)
		}
	}
	cur.err = err
	cur.event(eventFail)
	cur.cluster.metrics.fail(err)
	cur.logger.Info("query failed", zap.Int64("documents", cur.yielded), zap.Error(err))
	cur.Close()
	return err
}

// Close stops every partition request and waits for them to release
// their cursors.
func (cur *Cursor) Close() error {
	cur.closeOnce.Do(func() {
		cur.cancel()
		if cur.group != nil {
			cur.group.Wait()
		}
		var errs error
		for _, p := range cur.partitions {
			if p.ch == nil {
				p.closeErr = p.cursor.Close()
			}
			errs = multierr.Append(errs, p.closeErr)
		}
		cur.octx.Cancel()
		cur.event(eventFail)
		cur.closeErr = errs
	})
	return cur.closeErr
}

// Explain describes the plan with the per-stage statistics of the merger
// and of each partition.
func (cur *Cursor) Explain() *docpipe.Document {
	b := docpipe.NewBuilder(cur.plan.Document())
	shards := make([]docpipe.Value, 0, len(cur.partitions))
	for _, p := range cur.partitions {
		shards = append(shards, docpipe.NewDocumentValue(docpipe.D(
			"partition", docpipe.NewString(p.id),
			"stages", stageStats(p.cursor.Stats()),
		)))
	}
	b.Append("shards", docpipe.NewArray(shards))
	if cur.builder != nil {
		b.Append("mergerStages", stageStats(cur.builder.Stats()))
	}
	b.Append("state", docpipe.NewString(cur.State()))
	return b.Document()
}

func stageStats(stats []kernel.StageStats) docpipe.Value {
	vals := make([]docpipe.Value, 0, len(stats))
	for _, s := range stats {
		vals = append(vals, docpipe.NewDocumentValue(s.Document()))
	}
	return docpipe.NewArray(vals)
}

// partitionPuller reads one partition's stream.  With a channel, a
// goroutine in the coordinator's group keeps one batch in flight ahead of
// the merger.  Without one, the merger pulls the partition cursor
// directly.
type partitionPuller struct {
	id       string
	cursor   shard.Cursor
	coord    *Cursor
	ch       chan op.Result
	gctx     context.Context
	stop     context.CancelFunc
	eos      bool
	closeErr error
}

func (p *partitionPuller) run(ctx context.Context) error {
	defer close(p.ch)
	defer func() {
		p.closeErr = p.cursor.Close()
	}()
	for {
		batch, err := p.cursor.Pull(false)
		select {
		case p.ch <- op.Result{Batch: batch, Err: err}:
		case <-ctx.Done():
			if batch != nil {
				batch.Unref()
			}
			return nil
		}
		if err != nil {
			return err
		}
		if batch == nil {
			return nil
		}
	}
}

func (p *partitionPuller) Pull(done bool) (zbuf.Batch, error) {
	if p.eos {
		return nil, nil
	}
	if p.ch == nil {
		batch, err := p.cursor.Pull(done)
		if batch == nil || err != nil {
			p.eos = true
		}
		return batch, err
	}
	if done {
		p.eos = true
		p.stop()
		for r := range p.ch {
			if r.Batch != nil {
				r.Batch.Unref()
			}
		}
		return nil, nil
	}
	r, ok := <-p.ch
	if !ok {
		// The group was cancelled before this stream ended.
		p.eos = true
		if err := p.coord.group.Wait(); err != nil {
			return nil, err
		}
		return nil, op.ContextError(p.gctx.Err())
	}
	if r.Batch == nil || r.Err != nil {
		p.eos = true
	}
	return r.Batch, r.Err
}
