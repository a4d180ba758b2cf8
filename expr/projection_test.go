package expr_test

import (
	"testing"

	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/dperr"
	"github.com/brimdata/docpipe/expr"
	"github.com/brimdata/docpipe/field"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func project(t *testing.T, spec, input string) string {
	t.Helper()
	p, err := expr.ParseProjection(docpipe.MustParseDocument(spec), nil)
	require.NoError(t, err)
	out, err := p.Apply(expr.NewContext(), docpipe.MustParseDocument(input))
	require.NoError(t, err)
	b, err := docpipe.MarshalExtJSON(out)
	require.NoError(t, err)
	return string(b)
}

func canonical(t *testing.T, s string) string {
	t.Helper()
	b, err := docpipe.MarshalExtJSON(docpipe.MustParseDocument(s))
	require.NoError(t, err)
	return string(b)
}

func TestProjectInclusion(t *testing.T) {
	cases := []struct {
		spec, input, output string
	}{
		{`{"a":1}`, `{"_id":1,"b":2,"a":3}`, `{"_id":1,"a":3}`},
		{`{"a":1,"_id":0}`, `{"_id":1,"b":2,"a":3}`, `{"a":3}`},
		{`{"a.b":1}`, `{"a":{"b":1,"c":2},"d":1}`, `{"a":{"b":1}}`},
		{`{"a":{"b":true}}`, `{"a":{"b":1,"c":2}}`, `{"a":{"b":1}}`},
		// No scaffolding for paths absent from the input.
		{`{"a.b":1}`, `{"x":1}`, `{}`},
		{`{"a.b":1}`, `{"a":5}`, `{}`},
		{`{"a.b":1}`, `{"a":[{"b":1,"c":1},2,{"c":3},[{"b":4}]]}`, `{"a":[{"b":1},{},[{"b":4}]]}`},
		{`{"x":"$a","y":{"$add":["$a",1]}}`, `{"a":1,"b":2}`, `{"x":1,"y":2}`},
		{`{"c":"$a","a":1}`, `{"a":1,"b":2}`, `{"a":1,"c":1}`},
		{`{"a.c":{"$literal":5}}`, `{"a":{"b":1}}`, `{"a":{"c":5}}`},
		{`{"n.c":"$a"}`, `{"a":1}`, `{"n":{"c":1}}`},
		{`{"x":"$missing","a":1}`, `{"a":1}`, `{"a":1}`},
	}
	for _, c := range cases {
		assert.Equal(t, canonical(t, c.output), project(t, c.spec, c.input), "spec %s", c.spec)
	}
}

func TestProjectExclusion(t *testing.T) {
	cases := []struct {
		spec, input, output string
	}{
		{`{"a":0}`, `{"_id":1,"a":1,"b":2}`, `{"_id":1,"b":2}`},
		{`{"_id":0}`, `{"_id":1,"a":1}`, `{"a":1}`},
		{`{"a.b":0}`, `{"a":[{"b":1,"c":1},2,[{"b":3}]]}`, `{"a":[{"c":1},2,[{}]]}`},
		{`{"a":false,"_id":1}`, `{"_id":1,"a":1,"b":2}`, `{"_id":1,"b":2}`},
	}
	for _, c := range cases {
		assert.Equal(t, canonical(t, c.output), project(t, c.spec, c.input), "spec %s", c.spec)
	}
}

func TestProjectMetadata(t *testing.T) {
	p, err := expr.ParseProjection(docpipe.MustParseDocument(`{"a":0,"score":{"$meta":"textScore"}}`), nil)
	require.NoError(t, err)
	assert.False(t, p.IsInclusion())
	in := docpipe.MustParseDocument(`{"a":1,"b":2}`).WithMeta("textScore", docpipe.NewDouble(2))
	out, err := p.Apply(nil, in)
	require.NoError(t, err)
	assert.Equal(t, canonical(t, `{"b":2,"score":2.0}`), mustMarshal(t, out))
	_, ok := out.Meta("textScore")
	assert.True(t, ok)
}

func mustMarshal(t *testing.T, d *docpipe.Document) string {
	t.Helper()
	b, err := docpipe.MarshalExtJSON(d)
	require.NoError(t, err)
	return string(b)
}

func TestProjectErrors(t *testing.T) {
	cases := []struct {
		spec string
		code int
	}{
		{`{}`, 51272},
		{`{"a":1,"b":0}`, 31254},
		{`{"a":0,"b":1}`, 31253},
		{`{"a":0,"b":"$x"}`, 31252},
		{`{"a":1,"a.b":1}`, 31250},
		{`{"a.b":1,"a":1}`, 31250},
		{`{"a":{}}`, 51270},
		{`{"$a":1}`, 16410},
		{`{"a..b":1}`, 15998},
	}
	for _, c := range cases {
		_, err := expr.ParseProjection(docpipe.MustParseDocument(c.spec), nil)
		require.Error(t, err, "spec %s", c.spec)
		assert.Equal(t, dperr.Code(c.code), dperr.CodeOf(err), "spec %s: %s", c.spec, err)
	}
}

func TestProjectPreserves(t *testing.T) {
	p, err := expr.ParseProjection(docpipe.MustParseDocument(`{"a":1,"b.c":1,"d":"$x"}`), nil)
	require.NoError(t, err)
	assert.True(t, p.Preserves(field.Dotted("a")))
	assert.True(t, p.Preserves(field.Dotted("a.z")))
	assert.True(t, p.Preserves(field.Dotted("b.c")))
	assert.False(t, p.Preserves(field.Dotted("b")))
	assert.False(t, p.Preserves(field.Dotted("d")))
	assert.False(t, p.Preserves(field.Dotted("e")))

	p, err = expr.ParseProjection(docpipe.MustParseDocument(`{"a":0}`), nil)
	require.NoError(t, err)
	assert.False(t, p.Preserves(field.Dotted("a")))
	assert.True(t, p.Preserves(field.Dotted("e")))
}

func addFields(t *testing.T, spec string, in *docpipe.Document) *docpipe.Document {
	t.Helper()
	a, err := expr.ParseAddFields("$addFields", docpipe.MustParseDocument(spec), nil)
	require.NoError(t, err)
	out, err := a.Apply(expr.NewContext(), in)
	require.NoError(t, err)
	return out
}

func TestAddFields(t *testing.T) {
	in := docpipe.MustParseDocument(`{"_id":1,"a":{"x":1},"b":2}`)
	assert.Equal(t, canonical(t, `{"_id":1,"a":{"x":1},"b":3,"c":4}`), mustMarshal(t, addFields(t, `{"c":4,"b":3}`, in)))
	assert.Equal(t, canonical(t, `{"_id":1,"a":{"x":1,"y":2},"b":2}`), mustMarshal(t, addFields(t, `{"a":{"y":"$b"}}`, in)))
	assert.Equal(t, canonical(t, `{"_id":1,"a":{"x":1},"b":2,"e":{}}`), mustMarshal(t, addFields(t, `{"e":{}}`, in)))
	// Expressions see the input document, not earlier assignments.
	assert.Equal(t, canonical(t, `{"_id":1,"a":{"x":1},"b":10,"c":3}`), mustMarshal(t, addFields(t, `{"b":10,"c":{"$add":["$b",1]}}`, in)))
	// Missing results remove the field.
	assert.Equal(t, canonical(t, `{"_id":1,"a":{"x":1}}`), mustMarshal(t, addFields(t, `{"b":"$$REMOVE","z":"$nope"}`, in)))

	_, err := expr.ParseAddFields("$addFields", docpipe.MustParseDocument(`{"a":1,"a.b":2}`), nil)
	assert.Equal(t, dperr.Code(31250), dperr.CodeOf(err))
	_, err = expr.ParseAddFields("$set", docpipe.EmptyDocument, nil)
	assert.Equal(t, dperr.Code(40177), dperr.CodeOf(err))
}

// Sequences of $project and $addFields over the same field: the last
// stage in the chain wins.
func TestMultipleProjects(t *testing.T) {
	in := docpipe.MustParseDocument(`{"_id":1,"a":1,"b":2}`)

	out := addFields(t, `{"a":"first"}`, in)
	out = addFields(t, `{"a":"second"}`, out)
	assert.Equal(t, canonical(t, `{"_id":1,"a":"second","b":2}`), mustMarshal(t, out))

	p, err := expr.ParseProjection(docpipe.MustParseDocument(`{"a":0}`), nil)
	require.NoError(t, err)
	out, err = p.Apply(nil, in)
	require.NoError(t, err)
	out = addFields(t, `{"a":"readded"}`, out)
	assert.Equal(t, canonical(t, `{"_id":1,"b":2,"a":"readded"}`), mustMarshal(t, out))

	out = addFields(t, `{"c":5}`, in)
	p, err = expr.ParseProjection(docpipe.MustParseDocument(`{"c":0}`), nil)
	require.NoError(t, err)
	out, err = p.Apply(nil, out)
	require.NoError(t, err)
	assert.Equal(t, canonical(t, `{"_id":1,"a":1,"b":2}`), mustMarshal(t, out))
}

func TestAddFieldsConcat(t *testing.T) {
	a, err := expr.ParseAddFields("$addFields", docpipe.MustParseDocument(`{"x":1}`), nil)
	require.NoError(t, err)
	b, err := expr.ParseAddFields("$addFields", docpipe.MustParseDocument(`{"x":2,"y":"$z"}`), nil)
	require.NoError(t, err)
	assert.False(t, b.Dependencies().Reads(field.Dotted("x")))
	assert.True(t, a.Writes(field.Dotted("x.q")))
	fused := a.Concat(b)
	out, err := fused.Apply(nil, docpipe.MustParseDocument(`{"z":3}`))
	require.NoError(t, err)
	assert.Equal(t, canonical(t, `{"z":3,"x":2,"y":3}`), mustMarshal(t, out))
}
