package optimizer_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/compiler/dag"
	"github.com/brimdata/docpipe/compiler/optimizer"
	"github.com/brimdata/docpipe/compiler/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pipeline(t *testing.T, s string) *dag.Sequential {
	t.Helper()
	seq, err := parser.ParsePipeline(docpipe.MustParse(s), nil)
	require.NoError(t, err)
	return seq
}

func scanned(t *testing.T, s string) *dag.Sequential {
	seq := pipeline(t, s)
	ops := append([]dag.Op{&dag.Scan{Kind: "Scan", Collection: "c"}}, seq.Ops...)
	return dag.NewSequential(ops...)
}

// shape renders the op types of seq, e.g. "Scan,Sort,Limit".
func shape(seq *dag.Sequential) string {
	var names []string
	for _, op := range seq.Ops {
		name := fmt.Sprintf("%T", op)
		names = append(names, strings.TrimPrefix(name, "*dag."))
	}
	return strings.Join(names, ",")
}

func optimize(t *testing.T, config optimizer.Config, seq *dag.Sequential) (*dag.Sequential, []optimizer.Rewrite) {
	t.Helper()
	o := optimizer.New(config, false)
	out, err := o.Optimize(seq)
	require.NoError(t, err)
	return out, o.Rewrites()
}

func TestCoalesce(t *testing.T) {
	config := optimizer.Config{Coalesce: true}
	cases := []struct {
		pipeline string
		shape    string
	}{
		{`[{"$match": {"a": 1}}, {"$match": {"b": 2}}]`, "Match"},
		{`[{"$addFields": {"a": 1}}, {"$addFields": {"b": 2}}]`, "AddFields"},
		{`[{"$addFields": {"a": 1}}, {"$addFields": {"b": "$a"}}]`, "AddFields,AddFields"},
		{`[{"$unset": "a"}, {"$unset": ["b", "c"]}]`, "Unset"},
		{`[{"$unset": "a"}, {"$unset": "a.b"}]`, "Unset,Unset"},
		{`[{"$project": {"a": 0}}, {"$project": {"b": 0}}]`, "Unset"},
		{`[{"$project": {"a": 1}}, {"$project": {"b": 0}}]`, "Project,Project"},
		{`[{"$limit": 5}, {"$limit": 3}]`, "Limit"},
		{`[{"$skip": 5}, {"$skip": 3}]`, "Skip"},
		{`[{"$sort": {"a": 1}}, {"$limit": 3}]`, "Sort"},
		{`[{"$match": {"$text": {"$search": "x"}}}, {"$match": {"b": 2}}]`, "Match,Match"},
	}
	for _, c := range cases {
		t.Run(c.pipeline, func(t *testing.T) {
			out, _ := optimize(t, config, pipeline(t, c.pipeline))
			assert.Equal(t, c.shape, shape(out))
		})
	}
}

func TestCoalesceCounts(t *testing.T) {
	config := optimizer.Config{Coalesce: true}
	out, rewrites := optimize(t, config, pipeline(t, `[{"$limit": 5}, {"$limit": 3}, {"$limit": 9}]`))
	require.Len(t, out.Ops, 1)
	assert.EqualValues(t, 3, out.Ops[0].(*dag.Limit).Count)
	assert.Len(t, rewrites, 2)

	out, _ = optimize(t, config, pipeline(t, `[{"$skip": 5}, {"$skip": 3}]`))
	assert.EqualValues(t, 8, out.Ops[0].(*dag.Skip).Count)

	out, _ = optimize(t, config, pipeline(t, `[{"$sort": {"a": 1}}, {"$limit": 3}, {"$limit": 2}]`))
	require.Len(t, out.Ops, 1)
	assert.EqualValues(t, 2, out.Ops[0].(*dag.Sort).Limit)
}

func TestPushdown(t *testing.T) {
	config := optimizer.Config{Pushdown: true}
	out, rewrites := optimize(t, config, scanned(t, `[
		{"$sort": {"a": 1}},
		{"$match": {"a": {"$gte": 3}}},
		{"$limit": 2}
	]`))
	assert.Equal(t, "Scan,Sort,Limit", shape(out))
	scan := out.Ops[0].(*dag.Scan)
	require.NotNil(t, scan.Filter)
	require.Len(t, scan.Bounds, 1)
	assert.Equal(t, "a", scan.Bounds[0].Path.String())
	assert.Len(t, rewrites, 2)
}

func TestPushdownLeavesTopKSort(t *testing.T) {
	config := optimizer.Config{Pushdown: true}
	out, _ := optimize(t, config, scanned(t, `[
		{"$sort": {"a": 1}},
		{"$limit": 2},
		{"$match": {"a": 1}}
	]`))
	assert.Equal(t, "Scan,Sort,Limit,Match", shape(out))
	top, _ := optimize(t, optimizer.DefaultConfig(), scanned(t, `[
		{"$sort": {"a": 1}},
		{"$limit": 2},
		{"$match": {"a": 1}}
	]`))
	assert.Equal(t, "Scan,Sort,Match", shape(top))
}

func TestPushdownDoesNotModifyInput(t *testing.T) {
	in := scanned(t, `[{"$match": {"a": 1}}, {"$match": {"b": 1}}]`)
	out, _ := optimize(t, optimizer.DefaultConfig(), in)
	assert.Equal(t, "Scan", shape(out))
	assert.Equal(t, "Scan,Match,Match", shape(in))
	assert.Nil(t, in.Ops[0].(*dag.Scan).Filter)
}

func TestSortElision(t *testing.T) {
	config := optimizer.Config{SortElision: true}
	cases := []struct {
		pipeline string
		shape    string
	}{
		{`[{"$sort": {"a": 1}}, {"$match": {"b": 1}}, {"$sort": {"a": 1}}]`, "Sort,Match"},
		{`[{"$sort": {"a": 1, "b": 1}}, {"$sort": {"a": 1}}]`, "Sort"},
		{`[{"$sort": {"a": 1}}, {"$sort": {"a": 1, "b": 1}}]`, "Sort,Sort"},
		{`[{"$sort": {"a": 1}}, {"$sort": {"a": -1}}]`, "Sort,Sort"},
		{`[{"$sort": {"a": 1}}, {"$addFields": {"a": 1}}, {"$sort": {"a": 1}}]`, "Sort,AddFields,Sort"},
		{`[{"$sort": {"a": 1}}, {"$addFields": {"b": 1}}, {"$sort": {"a": 1}}]`, "Sort,AddFields"},
		{`[{"$sort": {"a": 1}}, {"$unwind": "$a"}, {"$sort": {"a": 1}}]`, "Sort,Unwind,Sort"},
		{`[{"$sort": {"a": 1}}, {"$project": {"b": 0}}, {"$sort": {"a": 1}}]`, "Sort,Project"},
		{`[{"$sort": {"a": 1}}, {"$group": {"_id": "$a"}}, {"$sort": {"_id": 1}}]`, "Sort,Group,Sort"},
		{`[{"$densify": {"field": "a", "range": {"step": 1, "bounds": "full"}}}, {"$sort": {"a": 1}}]`, "Densify"},
		{`[{"$densify": {"field": "a", "partitionByFields": ["p"], "range": {"step": 1, "bounds": "partition"}}}, {"$sort": {"p": 1, "a": 1}}]`, "Densify"},
		{`[{"$densify": {"field": "a", "partitionByFields": ["p"], "range": {"step": 1, "bounds": "full"}}}, {"$sort": {"p": 1, "a": 1}}]`, "Densify,Sort"},
	}
	for _, c := range cases {
		t.Run(c.pipeline, func(t *testing.T) {
			out, _ := optimize(t, config, pipeline(t, c.pipeline))
			assert.Equal(t, c.shape, shape(out))
		})
	}
}

func TestSortElisionKeepsTopK(t *testing.T) {
	out, _ := optimize(t, optimizer.Config{SortElision: true}, pipeline(t, `[
		{"$sort": {"a": 1}},
		{"$sort": {"a": 1}},
		{"$limit": 4}
	]`))
	assert.Equal(t, "Sort,Limit", shape(out))
	out, rewrites := optimize(t, optimizer.DefaultConfig(), pipeline(t, `[
		{"$sort": {"a": 1}},
		{"$sort": {"a": 1}},
		{"$limit": 4}
	]`))
	assert.Equal(t, "Sort", shape(out))
	assert.EqualValues(t, 4, out.Ops[0].(*dag.Sort).Limit)
	assert.NotEmpty(t, rewrites)
}

func TestDisabled(t *testing.T) {
	in := scanned(t, `[{"$match": {"a": 1}}, {"$limit": 1}, {"$limit": 2}]`)
	out, rewrites := optimize(t, optimizer.Disabled(), in)
	assert.Equal(t, shape(in), shape(out))
	assert.Empty(t, rewrites)
}

func TestToggles(t *testing.T) {
	toggles := optimizer.Toggles()
	require.Len(t, toggles, 5)
	assert.Equal(t, optimizer.DefaultConfig(), toggles[0])
	assert.Equal(t, "coalesce=false,pushdown=true,sortElision=true", toggles[2].String())
}

func TestSortKeys(t *testing.T) {
	seq := pipeline(t, `[{"$sort": {"a": -1}}, {"$limit": 3}, {"$set": {"b": 1}}]`)
	assert.Equal(t, "a:desc", optimizer.SortKeys(seq).String())
	seq = pipeline(t, `[{"$sort": {"a": -1}}, {"$replaceWith": {"a": 1}}]`)
	assert.True(t, optimizer.SortKeys(seq).IsNil())
}
