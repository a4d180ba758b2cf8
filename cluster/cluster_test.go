package cluster

import (
	"context"
	"fmt"
	"testing"

	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/catalog"
	"github.com/brimdata/docpipe/compiler/dag"
	"github.com/brimdata/docpipe/compiler/optimizer"
	"github.com/brimdata/docpipe/compiler/parser"
	"github.com/brimdata/docpipe/dperr"
	"github.com/brimdata/docpipe/routing"
	"github.com/brimdata/docpipe/runtime/op/optest"
	"github.com/brimdata/docpipe/shard"
	"github.com/brimdata/docpipe/zbuf"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocals(n int) []*shard.Local {
	var out []*shard.Local
	for k := 0; k < n; k++ {
		out = append(out, shard.NewLocal(fmt.Sprintf("s%d", k), catalog.New(4), nil))
	}
	return out
}

func newCluster(t *testing.T, locals []*shard.Local, store routing.Store, conf Config) *Cluster {
	t.Helper()
	shards := make([]shard.Shard, 0, len(locals))
	for _, l := range locals {
		shards = append(shards, l)
	}
	if conf.Registerer == nil {
		conf.Registerer = prometheus.NewRegistry()
	}
	c, err := New(shards, store, conf)
	require.NoError(t, err)
	return c
}

func loadDocs(t *testing.T, c *Cluster) {
	t.Helper()
	ctx := context.Background()
	var docs []*docpipe.Document
	for k := 0; k < 30; k++ {
		docs = append(docs, docpipe.MustParseDocument(fmt.Sprintf(`{"_id":%d,"a":%d,"g":"x%d"}`, k, k%7, k%3)))
	}
	require.NoError(t, c.Insert(ctx, "c", docs...))
	var foreign []*docpipe.Document
	for k := 0; k < 7; k++ {
		foreign = append(foreign, docpipe.MustParseDocument(fmt.Sprintf(`{"_id":%d,"name":"n%d"}`, k, k)))
	}
	require.NoError(t, c.Insert(ctx, "f", foreign...))
}

func query(t *testing.T, coll, pipeline string, loc Location) *Query {
	t.Helper()
	seq, err := parser.ParsePipeline(docpipe.MustParse(pipeline), nil)
	require.NoError(t, err)
	if len(seq.Ops) == 0 || !isDocuments(seq.Ops[0]) {
		seq = dag.NewSequential(append([]dag.Op{&dag.Scan{Kind: "Scan", Collection: coll}}, seq.Ops...)...)
	}
	seq, err = optimizer.New(optimizer.DefaultConfig(), false).Optimize(seq)
	require.NoError(t, err)
	return &Query{Pipeline: seq, Location: loc}
}

func isDocuments(o dag.Op) bool {
	_, ok := o.(*dag.Documents)
	return ok
}

func collect(t *testing.T, c *Cluster, q *Query) ([]string, error) {
	t.Helper()
	cur, err := c.Aggregate(context.Background(), q)
	if err != nil {
		return nil, err
	}
	defer cur.Close()
	docs, err := zbuf.PullAll(cur)
	if err != nil {
		return nil, err
	}
	assert.Equal(t, stateDone, cur.State())
	return optest.Strings(docs), nil
}

var transparencyCases = []struct {
	pipeline string
	ordered  bool
}{
	{`[{"$match":{"a":{"$gte":3}}},{"$project":{"a":1}}]`, false},
	{`[{"$sort":{"a":-1,"_id":1}}]`, true},
	{`[{"$sort":{"a":1,"_id":1}},{"$limit":5}]`, true},
	{`[{"$group":{"_id":"$g","n":{"$sum":1},"m":{"$max":"$a"}}}]`, false},
	{`[{"$count":"n"}]`, true},
	{`[{"$sort":{"_id":1}},{"$skip":25}]`, true},
	{`[{"$match":{"_id":{"$lt":4}}},{"$lookup":{"from":"f","localField":"a","foreignField":"_id","as":"f"}}]`, false},
	{`[{"$match":{"_id":{"$lt":3}}},{"$unionWith":{"coll":"f","pipeline":[{"$match":{"_id":{"$lt":2}}}]}}]`, false},
	{`[{"$documents":[{"x":1},{"x":2}]},{"$set":{"y":{"$add":["$x",1]}}}]`, true},
	{`[{"$match":{"_id":15}}]`, true},
	{`[{"$match":{"_id":{"$in":[]}}}]`, true},
}

func TestLocationTransparency(t *testing.T) {
	ref := newCluster(t, newLocals(1), routing.NewMemoryStore(), Config{})
	loadDocs(t, ref)
	sharded := newCluster(t, newLocals(3), routing.NewMemoryStore(), Config{})
	loadDocs(t, sharded)
	_, err := sharded.ShardCollection(context.Background(), "c", "_id", []docpipe.Value{docpipe.NewInt32(10), docpipe.NewInt32(20)})
	require.NoError(t, err)
	unsharded := newCluster(t, newLocals(3), routing.NewMemoryStore(), Config{Primary: "s2"})
	loadDocs(t, unsharded)

	for _, c := range transparencyCases {
		expected, err := collect(t, ref, query(t, "c", c.pipeline, Location{}))
		require.NoError(t, err, c.pipeline)
		for _, cl := range []*Cluster{sharded, unsharded} {
			for _, loc := range Locations("s1") {
				t.Run(fmt.Sprintf("%s/%s/%s", cl.Primary(), loc, c.pipeline), func(t *testing.T) {
					out, err := collect(t, cl, query(t, "c", c.pipeline, loc))
					require.NoError(t, err)
					if c.ordered {
						assert.Equal(t, expected, out)
					} else {
						assert.ElementsMatch(t, expected, out)
					}
				})
			}
		}
	}
}

func TestShardCollection(t *testing.T) {
	locals := newLocals(3)
	c := newCluster(t, locals, routing.NewMemoryStore(), Config{})
	loadDocs(t, c)
	assert.Equal(t, 30, locals[0].Catalog().Snapshot("c").Len())
	table, err := c.ShardCollection(context.Background(), "c", "_id", []docpipe.Value{docpipe.NewInt32(10), docpipe.NewInt32(20)})
	require.NoError(t, err)
	assert.True(t, table.Sharded)
	for _, l := range locals {
		assert.Equal(t, 10, l.Catalog().Snapshot("c").Len(), l.ID())
		assert.True(t, l.Version("c").Equal(table.Version))
	}
	_, err = c.ShardCollection(context.Background(), "c", "", nil)
	assert.Error(t, err)
}

func TestMovePrimary(t *testing.T) {
	locals := newLocals(2)
	c := newCluster(t, locals, routing.NewMemoryStore(), Config{})
	loadDocs(t, c)
	table, err := c.MovePrimary(context.Background(), "c", "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", table.Primary)
	assert.Equal(t, 0, locals[0].Catalog().Snapshot("c").Len())
	assert.Equal(t, 30, locals[1].Catalog().Snapshot("c").Len())
	out, err := collect(t, c, query(t, "c", `[{"$count":"n"}]`, Location{}))
	require.NoError(t, err)
	assert.Equal(t, optest.Canonical(`{"n":30}`), out)
	_, err = c.MovePrimary(context.Background(), "c", "nope")
	assert.Error(t, err)
}

func TestTargeting(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := newCluster(t, newLocals(3), routing.NewMemoryStore(), Config{Registerer: reg})
	loadDocs(t, c)
	_, err := c.ShardCollection(context.Background(), "c", "_id", []docpipe.Value{docpipe.NewInt32(10), docpipe.NewInt32(20)})
	require.NoError(t, err)

	plan, err := c.Plan(context.Background(), query(t, "c", `[{"$match":{"_id":15}}]`, Location{Kind: LocalOnly}))
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, plan.Targets)
	assert.True(t, plan.Direct)
	assert.Equal(t, "partition:s1", plan.MergeLocation())

	before := testutil.ToFloat64(c.metrics.dispatched)
	out, err := collect(t, c, query(t, "c", `[{"$match":{"_id":15}}]`, Location{Kind: LocalOnly}))
	require.NoError(t, err)
	assert.Equal(t, optest.Canonical(`{"_id":15,"a":1,"g":"x0"}`), out)
	assert.Equal(t, before+1, testutil.ToFloat64(c.metrics.dispatched))

	plan, err = c.Plan(context.Background(), query(t, "c", `[{"$match":{"_id":{"$gte":5,"$lt":12}}}]`, Location{Kind: LocalOnly}))
	require.NoError(t, err)
	assert.Equal(t, []string{"s0", "s1"}, plan.Targets)
	assert.False(t, plan.Direct)
	assert.Equal(t, "coordinator", plan.MergeLocation())

	plan, err = c.Plan(context.Background(), query(t, "c", `[{"$sort":{"a":1}}]`, Location{Kind: AnyPartition}))
	require.NoError(t, err)
	assert.Equal(t, []string{"s0", "s1", "s2"}, plan.Targets)
	assert.Equal(t, "partition:s0", plan.MergeLocation())

	_, err = c.Plan(context.Background(), query(t, "c", `[]`, Location{Kind: SpecificPartition, Shard: "s9"}))
	assert.Equal(t, dperr.BadValue, dperr.CodeOf(err))
}

func TestStaleRouting(t *testing.T) {
	ctx := context.Background()
	locals := newLocals(2)
	store := routing.NewMemoryStore()
	admin := newCluster(t, locals, store, Config{})
	loadDocs(t, admin)
	reg := prometheus.NewRegistry()
	stale := newCluster(t, locals, store, Config{Registerer: reg})
	strictReg := prometheus.NewRegistry()
	strict := newCluster(t, locals, store, Config{Retries: -1, Registerer: strictReg})
	// Prime both caches with the unsharded routing.
	_, err := stale.Cache().Get(ctx, "c")
	require.NoError(t, err)
	_, err = strict.Cache().Get(ctx, "c")
	require.NoError(t, err)

	_, err = admin.ShardCollection(ctx, "c", "a", []docpipe.Value{docpipe.NewInt32(3)})
	require.NoError(t, err)

	out, err := collect(t, stale, query(t, "c", `[{"$count":"n"}]`, Location{}))
	require.NoError(t, err)
	assert.Equal(t, optest.Canonical(`{"n":30}`), out)
	assert.Equal(t, 1.0, testutil.ToFloat64(stale.metrics.retries))

	_, err = collect(t, strict, query(t, "c", `[{"$count":"n"}]`, Location{}))
	assert.True(t, dperr.IsKind(err, dperr.RoutingStale), "%v", err)
	assert.Equal(t, dperr.StaleConfig, dperr.CodeOf(err))
	assert.Equal(t, 0.0, testutil.ToFloat64(strict.metrics.retries))
}

func TestWriters(t *testing.T) {
	ctx := context.Background()
	locals := newLocals(2)
	c := newCluster(t, locals, routing.NewMemoryStore(), Config{})
	loadDocs(t, c)
	_, err := c.ShardCollection(ctx, "c", "_id", []docpipe.Value{docpipe.NewInt32(15)})
	require.NoError(t, err)

	_, err = collect(t, c, query(t, "c", `[{"$match":{"a":0}},{"$out":"zeros"}]`, Location{}))
	require.NoError(t, err)
	assert.Equal(t, 5, locals[0].Catalog().Snapshot("zeros").Len())
	assert.Equal(t, 0, locals[1].Catalog().Snapshot("zeros").Len())

	// $merge into a sharded collection routes each insert to its owner.
	_, err = c.ShardCollection(ctx, "zeros", "_id", []docpipe.Value{docpipe.NewInt32(15)})
	require.NoError(t, err)
	_, err = collect(t, c, query(t, "c", `[{"$match":{"a":1}},{"$merge":{"into":"zeros"}}]`, Location{}))
	require.NoError(t, err)
	out, err := collect(t, c, query(t, "zeros", `[{"$sort":{"_id":1}}]`, Location{}))
	require.NoError(t, err)
	assert.Len(t, out, 10)
	assert.Equal(t, 5, locals[0].Catalog().Snapshot("zeros").Len())
	assert.Equal(t, 5, locals[1].Catalog().Snapshot("zeros").Len())

	_, err = collect(t, c, query(t, "c", `[{"$out":"zeros"}]`, Location{}))
	assert.Equal(t, dperr.Code(28769), dperr.CodeOf(err))
}

func TestExplain(t *testing.T) {
	locals := newLocals(2)
	c := newCluster(t, locals, routing.NewMemoryStore(), Config{})
	loadDocs(t, c)
	_, err := c.ShardCollection(context.Background(), "c", "_id", []docpipe.Value{docpipe.NewInt32(15)})
	require.NoError(t, err)
	q := query(t, "c", `[{"$sort":{"a":1}},{"$out":"sorted"}]`, Location{Kind: AnyPartition})
	q.Explain = true
	cur, err := c.Aggregate(context.Background(), q)
	require.NoError(t, err)
	docs, err := zbuf.PullAll(cur)
	require.NoError(t, err)
	assert.Empty(t, docs)
	require.NoError(t, cur.Close())
	explain := cur.Explain()
	assert.Equal(t, "partition:s0", explain.Get("mergeLocation").Str())
	assert.Equal(t, "sortedMerge", explain.Get("splitPipeline").Document().Get("mergeType").Str())
	shards := explain.Get("shards").Array()
	require.Len(t, shards, 2)
	stages := shards[0].Document().Get("stages").Array()
	require.Len(t, stages, 2)
	n, ok := stages[1].Document().Get("nReturned").AsInt64()
	require.True(t, ok)
	assert.EqualValues(t, 15, n)
	assert.Equal(t, stateDone, explain.Get("state").Str())
	for _, l := range locals {
		has, err := l.Has(context.Background(), "sorted")
		require.NoError(t, err)
		assert.False(t, has)
	}
}

func TestParseLocation(t *testing.T) {
	for _, loc := range Locations("s3") {
		parsed, err := ParseLocation(loc.String())
		require.NoError(t, err)
		assert.Equal(t, loc, parsed)
	}
	_, err := ParseLocation("specificPartition:")
	assert.Error(t, err)
	_, err = ParseLocation("everywhere")
	assert.Error(t, err)
}

func TestExplainSpecificPartition(t *testing.T) {
	locals := newLocals(2)
	c := newCluster(t, locals, routing.NewMemoryStore(), Config{})
	loadDocs(t, c)
	_, err := c.ShardCollection(context.Background(), "c", "_id", []docpipe.Value{docpipe.NewInt32(15)})
	require.NoError(t, err)
	q := query(t, "c", `[{"$sort":{"a":1}}]`, Location{Kind: SpecificPartition, Shard: "s1"})
	q.Explain = true
	cur, err := c.Aggregate(context.Background(), q)
	require.NoError(t, err)
	_, err = zbuf.PullAll(cur)
	require.NoError(t, err)
	require.NoError(t, cur.Close())
	explain := cur.Explain()
	assert.Equal(t, "specificPartition:s1", explain.Get("mergeLocationPolicy").Str())
	assert.Equal(t, "partition:s1", explain.Get("mergeLocation").Str())
}
