package lookup_test

import (
	"context"
	"testing"

	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/compiler/dag"
	"github.com/brimdata/docpipe/match"
	"github.com/brimdata/docpipe/runtime/op"
	"github.com/brimdata/docpipe/runtime/op/lookup"
	"github.com/brimdata/docpipe/runtime/op/optest"
	"github.com/brimdata/docpipe/zbuf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// source serves collections from memory and counts the queries it answers.
type source struct {
	colls   map[string][]*docpipe.Document
	queries int
}

func (s *source) Open(ctx context.Context, coll string, filter *match.Filter) (zbuf.Puller, error) {
	s.queries++
	ectx := op.DefaultContext().Expr
	var out []*docpipe.Document
	for _, doc := range s.colls[coll] {
		d, ok, err := filter.Apply(ectx, doc)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, d)
		}
	}
	return zbuf.NewSlicePuller(out...), nil
}

func TestLookup(t *testing.T) {
	src := &source{colls: map[string][]*docpipe.Document{
		"items": optest.Docs(
			`{"_id":1,"sku":"a","qty":5}`,
			`{"_id":2,"sku":"b","qty":1}`,
			`{"_id":3,"sku":"a","qty":2}`,
			`{"_id":4,"qty":9}`,
		),
	}}
	spec := optest.Stage(t, `{"$lookup": {"from": "items", "localField": "item", "foreignField": "sku", "as": "found"}}`).(*dag.Lookup)
	in := optest.Docs(
		`{"_id":"x","item":"a"}`,
		`{"_id":"y","item":["b","c"]}`,
		`{"_id":"z"}`,
		`{"_id":"w","item":[]}`,
	)
	out, err := zbuf.PullAll(lookup.New(op.DefaultContext(), zbuf.NewSlicePuller(in...), src, spec))
	require.NoError(t, err)
	expected := optest.Canonical(
		`{"_id":"x","item":"a","found":[{"_id":1,"sku":"a","qty":5},{"_id":3,"sku":"a","qty":2}]}`,
		`{"_id":"y","item":["b","c"],"found":[{"_id":2,"sku":"b","qty":1}]}`,
		// A missing local field matches foreign documents without the field.
		`{"_id":"z","found":[{"_id":4,"qty":9}]}`,
		`{"_id":"w","item":[],"found":[]}`,
	)
	assert.Equal(t, expected, optest.Strings(out))
}

func TestGraphLookup(t *testing.T) {
	src := &source{colls: map[string][]*docpipe.Document{
		"employees": optest.Docs(
			`{"_id":1,"name":"Dev"}`,
			`{"_id":2,"name":"Eliot","reportsTo":"Dev"}`,
			`{"_id":3,"name":"Ron","reportsTo":"Eliot"}`,
			`{"_id":4,"name":"Andrew","reportsTo":"Eliot"}`,
			`{"_id":5,"name":"Asya","reportsTo":"Ron"}`,
		),
	}}
	spec := optest.Stage(t, `{"$graphLookup": {
		"from": "employees",
		"startWith": "$reportsTo",
		"connectFromField": "reportsTo",
		"connectToField": "name",
		"as": "chain",
		"depthField": "d"
	}}`).(*dag.GraphLookup)
	in := optest.Docs(`{"_id":5,"name":"Asya","reportsTo":"Ron"}`)
	out, err := zbuf.PullAll(lookup.NewGraph(op.DefaultContext(), zbuf.NewSlicePuller(in...), src, spec))
	require.NoError(t, err)
	require.Len(t, out, 1)
	chain := out[0].Get("chain").Array()
	require.Len(t, chain, 3)
	var names []string
	for k, v := range chain {
		names = append(names, v.Document().Get("name").Str())
		assert.EqualValues(t, k, v.Document().Get("d").Int())
	}
	assert.Equal(t, []string{"Ron", "Eliot", "Dev"}, names)
	// Dev has no reportsTo so the search stops without another query.
	assert.Equal(t, 3, src.queries)

	limited := *spec
	limited.MaxDepth = 0
	out, err = zbuf.PullAll(lookup.NewGraph(op.DefaultContext(), zbuf.NewSlicePuller(in...), src, &limited))
	require.NoError(t, err)
	assert.Len(t, out[0].Get("chain").Array(), 1)
}
