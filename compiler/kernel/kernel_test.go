package kernel_test

import (
	"context"
	"testing"

	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/catalog"
	"github.com/brimdata/docpipe/compiler/dag"
	"github.com/brimdata/docpipe/compiler/kernel"
	"github.com/brimdata/docpipe/compiler/parser"
	"github.com/brimdata/docpipe/dperr"
	"github.com/brimdata/docpipe/expr"
	"github.com/brimdata/docpipe/field"
	"github.com/brimdata/docpipe/match"
	"github.com/brimdata/docpipe/runtime/op"
	"github.com/brimdata/docpipe/runtime/op/load"
	"github.com/brimdata/docpipe/runtime/op/optest"
	"github.com/brimdata/docpipe/zbuf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// env keeps every collection in one catalog.
type env struct {
	catalog *catalog.Catalog
	opens   int
}

func newEnv(colls map[string][]string) *env {
	e := &env{catalog: catalog.New(2)}
	for name, docs := range colls {
		e.catalog.Create(name).Insert(optest.Docs(docs...)...)
	}
	return e
}

func (e *env) Scan(ctx context.Context, ectx *expr.Context, scan *dag.Scan) (zbuf.Puller, error) {
	return e.catalog.Snapshot(scan.Collection).NewScanner(ctx, ectx, scan.Filter, scan.Bounds), nil
}

func (e *env) Open(ctx context.Context, coll string, filter *match.Filter) (zbuf.Puller, error) {
	e.opens++
	var bounds []match.Bound
	if filter != nil {
		bounds = filter.Bounds(false)
	}
	return e.catalog.Snapshot(coll).NewScanner(ctx, expr.NewContext(), filter, bounds), nil
}

func (e *env) Target(_ context.Context, ns dag.Namespace) (load.Target, error) {
	return &target{catalog: e.catalog, coll: ns.Coll}, nil
}

type target struct {
	catalog *catalog.Catalog
	coll    string
}

func (t *target) Exists(context.Context) (bool, error) {
	_, err := t.catalog.Lookup(t.coll)
	return err == nil, nil
}

func (t *target) Find(_ context.Context, on field.List, key []docpipe.Value) (*docpipe.Document, bool, error) {
	doc, _, ok := t.catalog.Create(t.coll).FindOne(on, key)
	return doc, ok, nil
}

func (t *target) Replace(_ context.Context, on field.List, key []docpipe.Value, doc *docpipe.Document) error {
	c := t.catalog.Create(t.coll)
	if _, loc, ok := c.FindOne(on, key); ok {
		c.Replace(loc, doc)
	}
	return nil
}

func (t *target) Insert(_ context.Context, doc *docpipe.Document) error {
	t.catalog.Create(t.coll).Insert(doc)
	return nil
}

func (t *target) ReplaceAll(_ context.Context, docs []*docpipe.Document) error {
	t.catalog.Create(t.coll).ReplaceAll(docs)
	return nil
}

func scanned(t *testing.T, coll, s string) *dag.Sequential {
	t.Helper()
	seq, err := parser.ParsePipeline(docpipe.MustParse(s), nil)
	require.NoError(t, err)
	if coll == "" {
		return seq
	}
	return dag.NewSequential(append([]dag.Op{&dag.Scan{Kind: "Scan", Collection: coll}}, seq.Ops...)...)
}

func run(t *testing.T, e *env, seq *dag.Sequential, explain bool) ([]string, []kernel.StageStats, error) {
	t.Helper()
	octx := op.DefaultContext()
	defer octx.Cancel()
	b := kernel.NewBuilder(octx, e, explain)
	out, err := b.Build(seq, nil)
	if err != nil {
		return nil, nil, err
	}
	docs, err := zbuf.PullAll(out)
	return optest.Strings(docs), b.Stats(), err
}

func TestBuild(t *testing.T) {
	e := newEnv(map[string][]string{
		"c": {`{"_id":1,"a":3}`, `{"_id":2,"a":1}`, `{"_id":3,"a":2}`, `{"_id":4}`},
	})
	out, stats, err := run(t, e, scanned(t, "c", `[
		{"$match":{"a":{"$exists":true}}},
		{"$set":{"b":{"$multiply":["$a",2]}}},
		{"$sort":{"a":1}},
		{"$project":{"_id":0,"b":1}}
	]`), false)
	require.NoError(t, err)
	assert.Equal(t, optest.Canonical(`{"b":2}`, `{"b":4}`, `{"b":6}`), out)
	var names []string
	for _, s := range stats {
		names = append(names, s.Stage)
	}
	assert.Equal(t, []string{"$cursor", "$match", "$addFields", "$sort", "$project"}, names)
	assert.EqualValues(t, 4, stats[0].Docs)
	assert.EqualValues(t, 3, stats[1].Docs)
}

func TestDocuments(t *testing.T) {
	out, _, err := run(t, newEnv(nil), scanned(t, "", `[
		{"$documents":[{"x":1},{"x":2},{"x":3}]},
		{"$unwind":{"path":"$x","includeArrayIndex":"i"}},
		{"$skip":1}
	]`), false)
	require.NoError(t, err)
	assert.Equal(t, optest.Canonical(`{"x":2,"i":null}`, `{"x":3,"i":null}`), out)
}

func TestNoSource(t *testing.T) {
	_, _, err := run(t, newEnv(nil), scanned(t, "", `[{"$limit":1}]`), false)
	assert.True(t, dperr.IsKind(err, dperr.InternalAssertion))
}

func TestReplaceRootNotDocument(t *testing.T) {
	e := newEnv(map[string][]string{"c": {`{"a":1}`}})
	_, _, err := run(t, e, scanned(t, "c", `[{"$replaceRoot":{"newRoot":"$a"}}]`), false)
	assert.Equal(t, dperr.Code(40228), dperr.CodeOf(err))
}

func TestUnionWith(t *testing.T) {
	e := newEnv(map[string][]string{
		"c": {`{"a":1}`},
		"f": {`{"b":1}`, `{"b":2}`},
	})
	out, _, err := run(t, e, scanned(t, "c", `[{"$unionWith":{"coll":"f","pipeline":[{"$match":{"b":2}}]}}]`), false)
	require.NoError(t, err)
	assert.Equal(t, optest.Canonical(`{"a":1}`, `{"b":2}`), out)
	assert.Equal(t, 1, e.opens)
}

func TestLookup(t *testing.T) {
	e := newEnv(map[string][]string{
		"c": {`{"_id":1,"k":"x"}`, `{"_id":2,"k":"y"}`},
		"f": {`{"k":"x","v":1}`, `{"k":"x","v":2}`},
	})
	out, _, err := run(t, e, scanned(t, "c", `[{"$lookup":{"from":"f","localField":"k","foreignField":"k","as":"m"}},{"$project":{"n":{"$size":"$m"}}}]`), false)
	require.NoError(t, err)
	assert.Equal(t, optest.Canonical(`{"_id":1,"n":2}`, `{"_id":2,"n":0}`), out)
}

func TestMergeUpdatePipeline(t *testing.T) {
	e := newEnv(map[string][]string{
		"c":   {`{"_id":1,"v":10}`, `{"_id":2,"v":20}`},
		"out": {`{"_id":1,"n":1}`},
	})
	seq := scanned(t, "c", `[{"$merge":{"into":"out","whenMatched":[{"$set":{"n":{"$add":["$n","$$new.v"]}}}],"whenNotMatched":"insert"}}]`)
	out, _, err := run(t, e, seq, false)
	require.NoError(t, err)
	assert.Empty(t, out)
	docs := e.catalog.Snapshot("out").Documents()
	assert.Equal(t, optest.Canonical(`{"_id":1,"n":11}`, `{"_id":2,"v":20}`), optest.Strings(docs))
}

func TestExplainDoesNotWrite(t *testing.T) {
	e := newEnv(map[string][]string{"c": {`{"_id":1}`}})
	_, stats, err := run(t, e, scanned(t, "c", `[{"$out":"copy"}]`), true)
	require.NoError(t, err)
	assert.Equal(t, "$out", stats[1].Stage)
	_, err = e.catalog.Lookup("copy")
	assert.Error(t, err)
}
