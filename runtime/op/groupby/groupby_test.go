package groupby_test

import (
	"testing"

	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/compiler/dag"
	"github.com/brimdata/docpipe/runtime/op"
	"github.com/brimdata/docpipe/runtime/op/groupby"
	"github.com/brimdata/docpipe/runtime/op/optest"
	"github.com/brimdata/docpipe/zbuf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const groupSpec = `{"$group": {
	"_id": "$k",
	"sum": {"$sum": "$v"},
	"avg": {"$avg": "$v"},
	"min": {"$min": "$v"},
	"max": {"$max": "$v"},
	"n": {"$count": {}},
	"set": {"$addToSet": "$v"}
}}`

func group(t *testing.T, octx *op.Context, parent zbuf.Puller, mode dag.GroupMode) zbuf.Puller {
	g := optest.Stage(t, groupSpec).(*dag.Group)
	aggs, err := groupby.NewAggregators(g.Aggs)
	require.NoError(t, err)
	return groupby.New(octx, parent, g.ID, aggs, mode)
}

var input = []string{
	`{"k":"a","v":1}`,
	`{"k":"b","v":10}`,
	`{"k":"a","v":3}`,
	`{"v":7}`,
	`{"k":"b","v":20}`,
	`{"k":"a","v":1}`,
}

func TestGroup(t *testing.T) {
	octx := op.DefaultContext()
	out, err := zbuf.PullAll(group(t, octx, zbuf.NewSlicePuller(optest.Docs(input...)...), dag.GroupComplete))
	require.NoError(t, err)
	require.Len(t, out, 3)
	// Groups come out in first-seen order and a missing key groups as null.
	assert.Equal(t, "a", out[0].Get("_id").Str())
	assert.Equal(t, "b", out[1].Get("_id").Str())
	assert.Equal(t, docpipe.KindNull, out[2].Get("_id").Kind())
	a := out[0]
	assert.EqualValues(t, 5, a.Get("sum").Int())
	f, _ := a.Get("avg").AsFloat64()
	assert.InDelta(t, 5.0/3, f, 1e-9)
	assert.EqualValues(t, 1, a.Get("min").Int())
	assert.EqualValues(t, 3, a.Get("max").Int())
	assert.EqualValues(t, 3, a.Get("n").Int())
	assert.Len(t, a.Get("set").Array(), 2)
}

func TestGroupPartialMerge(t *testing.T) {
	octx := op.DefaultContext()
	complete, err := zbuf.PullAll(group(t, octx, zbuf.NewSlicePuller(optest.Docs(input...)...), dag.GroupComplete))
	require.NoError(t, err)

	// Split the input over two partitions, run each partially, and merge.
	var partials []*docpipe.Document
	for _, part := range [][]string{input[:3], input[3:]} {
		docs, err := zbuf.PullAll(group(t, octx, zbuf.NewSlicePuller(optest.Docs(part...)...), dag.GroupPartial))
		require.NoError(t, err)
		partials = append(partials, docs...)
	}
	merged, err := zbuf.PullAll(group(t, octx, zbuf.NewSlicePuller(partials...), dag.GroupMerge))
	require.NoError(t, err)
	require.Len(t, merged, len(complete))
	for k := range complete {
		for _, name := range []string{"_id", "sum", "avg", "min", "max", "n"} {
			assert.True(t, docpipe.Equal(complete[k].Get(name), merged[k].Get(name)), "%s: %s != %s", name, complete[k], merged[k])
		}
		assert.Len(t, merged[k].Get("set").Array(), len(complete[k].Get("set").Array()))
	}
}

func TestCount(t *testing.T) {
	in := optest.Docs(`{"a":1}`, `{"a":2}`, `{"a":3}`)
	out, err := zbuf.PullAll(groupby.NewCount(zbuf.NewSlicePuller(in...), "n", dag.GroupComplete))
	require.NoError(t, err)
	assert.Equal(t, optest.Canonical(`{"n":3}`), optest.Strings(out))

	out, err = zbuf.PullAll(groupby.NewCount(zbuf.NewSlicePuller(), "n", dag.GroupComplete))
	require.NoError(t, err)
	assert.Empty(t, out)

	partials := optest.Docs(`{"n":3}`, `{"n":4}`)
	out, err = zbuf.PullAll(groupby.NewCount(zbuf.NewSlicePuller(partials...), "n", dag.GroupMerge))
	require.NoError(t, err)
	assert.Equal(t, optest.Canonical(`{"n":7}`), optest.Strings(out))
}
