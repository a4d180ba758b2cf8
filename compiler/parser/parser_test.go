package parser_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/compiler/dag"
	"github.com/brimdata/docpipe/compiler/parser"
	"github.com/brimdata/docpipe/dperr"
	"github.com/brimdata/docpipe/field"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, s string) (*dag.Sequential, error) {
	t.Helper()
	return parser.ParsePipeline(docpipe.MustParse(s), nil)
}

func TestParseStages(t *testing.T) {
	seq, err := parse(t, `[
		{"$match": {"a": {"$gt": 1}}},
		{"$project": {"a": 1, "b": 1}},
		{"$addFields": {"c": {"$add": ["$a", 1]}}},
		{"$set": {"d": 1}},
		{"$unset": ["b"]},
		{"$sort": {"a": -1}},
		{"$skip": 1},
		{"$limit": 10},
		{"$unwind": "$c"},
		{"$group": {"_id": "$a", "n": {"$sum": 1}, "all": {"$push": "$c"}}},
		{"$replaceWith": {"k": "$_id"}},
		{"$count": "total"}
	]`)
	require.NoError(t, err)
	var kinds []string
	for _, op := range seq.Ops {
		switch op := op.(type) {
		case *dag.Match:
			kinds = append(kinds, "match")
		case *dag.Project:
			kinds = append(kinds, "project")
		case *dag.AddFields:
			kinds = append(kinds, "addFields")
		case *dag.Unset:
			assert.Equal(t, field.List{field.New("b")}, op.Paths)
			kinds = append(kinds, "unset")
		case *dag.Sort:
			assert.Equal(t, "a:desc", op.Keys.String())
			kinds = append(kinds, "sort")
		case *dag.Skip:
			assert.EqualValues(t, 1, op.Count)
			kinds = append(kinds, "skip")
		case *dag.Limit:
			assert.EqualValues(t, 10, op.Count)
			kinds = append(kinds, "limit")
		case *dag.Unwind:
			assert.Equal(t, field.New("c"), op.Path)
			kinds = append(kinds, "unwind")
		case *dag.Group:
			require.Len(t, op.Aggs, 2)
			assert.Equal(t, "$sum", op.Aggs[0].Op)
			assert.Equal(t, "all", op.Aggs[1].Name)
			kinds = append(kinds, "group")
		case *dag.ReplaceRoot:
			kinds = append(kinds, "replaceRoot")
		case *dag.Count:
			assert.Equal(t, "total", op.Field)
			kinds = append(kinds, "count")
		default:
			t.Fatalf("unexpected op %T", op)
		}
	}
	assert.Equal(t, []string{"match", "project", "addFields", "addFields", "unset", "sort", "skip", "limit", "unwind", "group", "replaceRoot", "count"}, kinds)
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		pipeline string
		code     dperr.Code
	}{
		{`[{}]`, 40323},
		{`[{"$match": {}, "$limit": 1}]`, 40323},
		{`[5]`, 40323},
		{`[{"$bogus": 1}]`, 40324},
		{`[{"$limit": 0}]`, 15958},
		{`[{"$limit": -3}]`, 15958},
		{`[{"$limit": "x"}]`, 15957},
		{`[{"$limit": 1.5}]`, 15957},
		{`[{"$skip": -1}]`, 15956},
		{`[{"$skip": "x"}]`, 15972},
		{`[{"$sort": {}}]`, 15976},
		{`[{"$sort": {"a": 2}}]`, 15975},
		{`[{"$sort": 1}]`, 15973},
		{`[{"$match": 1}]`, 15959},
		{`[{"$project": 1}]`, 15969},
		{`[{"$addFields": []}]`, 40272},
		{`[{"$match": {}}, {"$documents": []}]`, 40602},
		{`[{"$out": "x"}, {"$match": {}}]`, 40601},
		{`[{"$merge": "x"}, {"$limit": 1}]`, 40601},
		{`[{"$unwind": "a"}]`, 28818},
		{`[{"$unwind": 1}]`, 15981},
		{`[{"$unwind": {}}]`, 28812},
		{`[{"$unwind": {"path": "$a", "bogus": true}}]`, 40415},
		{`[{"$unwind": {"path": "$a", "includeArrayIndex": "$i"}}]`, 28822},
		{`[{"$group": {"n": {"$sum": 1}}}]`, 15955},
		{`[{"$group": {"_id": null, "a.b": {"$sum": 1}}}]`, 40235},
		{`[{"$group": {"_id": null, "n": 1}}]`, 40234},
		{`[{"$group": {"_id": null, "n": {"$bogus": 1}}}]`, 15952},
		{`[{"$count": 1}]`, 40156},
		{`[{"$count": ""}]`, 40157},
		{`[{"$count": "$n"}]`, 40158},
		{`[{"$count": "a.b"}]`, 40160},
		{`[{"$replaceRoot": {}}]`, 40231},
		{`[{"$replaceRoot": {"newRoot": "$a", "x": 1}}]`, 40415},
		{`[{"$unset": 1}]`, 31002},
		{`[{"$unset": []}]`, 31119},
		{`[{"$unset": [1]}]`, 31120},
		{`[{"$lookup": {"from": "b", "localField": "x", "foreignField": "y"}}]`, 4572},
		{`[{"$lookup": {"from": "b", "as": "o", "localField": "x", "foreignField": "y", "z": 1}}]`, 40415},
		{`[{"$graphLookup": {"from": "b", "startWith": "$x", "connectFromField": "p", "as": "o"}}]`, 40105},
		{`[{"$graphLookup": {"from": "b", "startWith": "$x", "connectFromField": "p", "connectToField": "q", "as": "o", "maxDepth": -1}}]`, 40101},
		{`[{"$unionWith": {"coll": "b", "pipeline": [{"$out": "c"}]}}]`, 31441},
		{`[{"$unionWith": {"pipeline": [{"$match": {}}]}}]`, 40414},
		{`[{"$unionWith": {"coll": "b", "extra": 1}}]`, 40415},
		{`[{"$merge": {"into": "x", "whenMatched": "upsert"}}]`, dperr.BadValue},
		{`[{"$merge": {"into": "x", "whenNotMatched": "replace"}}]`, dperr.BadValue},
		{`[{"$merge": {"into": "x", "let": {"a": 1}}}]`, 51199},
		{`[{"$merge": {"into": "x", "whenMatched": [{"$sort": {"a": 1}}]}}]`, 51187},
		{`[{"$merge": {"whenMatched": "fail"}}]`, 40414},
		{`[{"$densify": {"field": "a", "range": {"step": 0, "bounds": "full"}}}]`, 5733401},
		{`[{"$densify": {"field": "a", "range": {"step": 1, "bounds": [5, 1]}}}]`, 5733402},
		{`[{"$densify": {"field": "a", "range": {"step": 1, "bounds": "all"}}}]`, 5946802},
		{`[{"$densify": {"field": "a", "range": {"step": 1}}}]`, 40414},
		{`[{"$densify": {"field": "a", "range": {"step": 1, "bounds": "full", "unit": "fortnight"}}}]`, dperr.BadValue},
		{`[{"$sort": {"s": {"$meta": "textScore"}}}]`, 40218},
		{`[{"$project": {"s": {"$meta": "textScore"}}}]`, 40218},
		{`[{"$match": {"a": 1}}, {"$match": {"$text": {"$search": "x"}}}]`, 17313},
		{`[{"$project": {"a": {"$bogus": 1}}}]`, dperr.InvalidExpression},
	}
	for _, c := range cases {
		c := c
		t.Run(c.pipeline, func(t *testing.T) {
			_, err := parse(t, c.pipeline)
			require.Error(t, err)
			assert.Equal(t, c.code, dperr.CodeOf(err), "error: %s", err)
		})
	}
}

func TestParseNotArray(t *testing.T) {
	_, err := parser.ParsePipeline(docpipe.NewInt32(1), nil)
	require.Error(t, err)
	assert.True(t, dperr.IsKind(err, dperr.TypeMismatch))
}

func TestUnknownStageSuggestion(t *testing.T) {
	_, err := parse(t, `[{"$matc": {}}]`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did you mean '$match'?")
	_, err = parse(t, `[{"$zzzzzzzzzzz": {}}]`)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "did you mean")
}

func TestUnknownArgumentKind(t *testing.T) {
	_, err := parse(t, `[{"$unionWith": {"coll": "b", "extra": 1}}]`)
	require.Error(t, err)
	assert.True(t, dperr.IsKind(err, dperr.UnknownArgument))
}

func TestTextScoreAvailability(t *testing.T) {
	_, err := parse(t, `[{"$match": {"$text": {"$search": "x"}}}, {"$sort": {"s": {"$meta": "textScore"}}}]`)
	require.NoError(t, err)
	_, err = parse(t, `[{"$match": {"$text": {"$search": "x"}}}, {"$group": {"_id": null}}, {"$project": {"s": {"$meta": "textScore"}}}]`)
	assert.Equal(t, dperr.Code(40218), dperr.CodeOf(err))
	_, err = parse(t, `[{"$project": {"s": {"$meta": "searchScore"}}}]`)
	require.NoError(t, err)
}

func TestParseMerge(t *testing.T) {
	seq, err := parse(t, `[{"$merge": "target"}]`)
	require.NoError(t, err)
	m := seq.Ops[0].(*dag.Merge)
	assert.Equal(t, dag.Namespace{Coll: "target"}, m.Into)
	assert.Equal(t, field.List{field.New("_id")}, m.On)
	assert.Equal(t, "merge", m.WhenMatched)
	assert.Equal(t, "insert", m.WhenNotMatched)

	seq, err = parse(t, `[{"$merge": {
		"into": {"db": "d", "coll": "c"},
		"on": ["k1", "k2"],
		"whenMatched": [{"$set": {"total": {"$add": ["$total", "$$new.total", "$$bonus"]}}}],
		"let": {"bonus": 1},
		"whenNotMatched": "discard"
	}}]`)
	require.NoError(t, err)
	m = seq.Ops[0].(*dag.Merge)
	assert.Equal(t, "d.c", m.Into.String())
	assert.Equal(t, field.List{field.New("k1"), field.New("k2")}, m.On)
	assert.Equal(t, "pipeline", m.WhenMatched)
	assert.Equal(t, "discard", m.WhenNotMatched)
	require.NotNil(t, m.UpdatePipeline)
	require.Len(t, m.UpdatePipeline.Ops, 1)
	var names []string
	for _, l := range m.Let {
		names = append(names, l.Name)
	}
	assert.Equal(t, []string{"new", "bonus"}, names)

	_, err = parse(t, `[{"$merge": {"into": "c", "whenMatched": [{"$set": {"x": "$$nope"}}]}}]`)
	require.Error(t, err)
}

func TestParseDensify(t *testing.T) {
	seq, err := parse(t, `[{"$densify": {"field": "t", "partitionByFields": ["p"], "range": {"step": 1, "unit": "hour", "bounds": "full"}}}]`)
	require.NoError(t, err)
	d := seq.Ops[0].(*dag.Densify)
	assert.Equal(t, field.New("t"), d.Field)
	assert.Equal(t, field.List{field.New("p")}, d.PartitionBy)
	assert.Equal(t, "hour", d.Unit)
	assert.Equal(t, "full", d.Bounds)
	assert.Nil(t, dag.OrderOf(d))

	seq, err = parse(t, `[{"$densify": {"field": "n", "range": {"step": 2, "bounds": [0, 10]}}}]`)
	require.NoError(t, err)
	d = seq.Ops[0].(*dag.Densify)
	assert.Equal(t, "", d.Bounds)
	assert.EqualValues(t, 10, d.Hi.Int())
	assert.Equal(t, "n:asc", dag.OrderOf(d).String())
}

func TestParseUnionWithDocuments(t *testing.T) {
	seq, err := parse(t, `[{"$unionWith": {"pipeline": [{"$documents": [{"a": 1}]}, {"$match": {"a": 1}}]}}]`)
	require.NoError(t, err)
	u := seq.Ops[0].(*dag.UnionWith)
	assert.Equal(t, "", u.Coll)
	require.Len(t, u.Pipeline.Ops, 2)
	_, ok := u.Pipeline.Ops[0].(*dag.Documents)
	assert.True(t, ok)

	_, err = parse(t, `[{"$documents": [{"a": 1}, {"a": {"$add": [1, 2]}}]}]`)
	require.NoError(t, err)
	_, err = parse(t, `[{"$documents": "$x"}]`)
	assert.Equal(t, dperr.Code(5858203), dperr.CodeOf(err))
}

func TestLetVariables(t *testing.T) {
	spec := docpipe.MustParse(`[{"$addFields": {"x": "$$limit"}}]`)
	_, err := parser.ParsePipeline(spec, nil)
	require.Error(t, err)
	_, err = parser.ParsePipeline(spec, &parser.Options{Let: []string{"limit"}})
	require.NoError(t, err)
}

func TestParseSource(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first.json")
	require.NoError(t, os.WriteFile(first, []byte(`[{"$match": {"a": 1}}]`), 0644))
	second := filepath.Join(dir, "second.json")
	require.NoError(t, os.WriteFile(second, []byte(`{"$limit": 2}`), 0644))
	seq, err := parser.ParseSource([]string{first, second}, `[{"$skip": 1}]`, nil)
	require.NoError(t, err)
	require.Len(t, seq.Ops, 3)
	assert.IsType(t, &dag.Limit{}, seq.Ops[1])

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("[\n  {\"$match\": {\"a\": 1}},\n  {\"$limit\" 2}\n]"), 0644))
	_, err = parser.ParseSource([]string{bad}, "", nil)
	require.Error(t, err)
	var serr *parser.SyntaxError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, bad, serr.Filename)
	assert.Equal(t, 3, serr.Line)
	assert.Equal(t, `  {"$limit" 2}`, serr.Text)
	assert.Contains(t, serr.Error(), "bad.json: line 3")

	seq, err = parser.ParseSource(nil, "", nil)
	require.NoError(t, err)
	assert.Empty(t, seq.Ops)
}
