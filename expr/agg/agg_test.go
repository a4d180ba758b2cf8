package agg_test

import (
	"testing"

	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/expr/agg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func values(s string) []docpipe.Value {
	return docpipe.MustParse(s).Array()
}

func run(t *testing.T, op string, vals []docpipe.Value) docpipe.Value {
	t.Helper()
	pattern, err := agg.NewPattern(op)
	require.NoError(t, err)
	f := pattern()
	for _, v := range vals {
		f.Consume(v)
	}
	return f.Result()
}

// runSplit consumes vals in two partitions and merges the partials.
func runSplit(t *testing.T, op string, vals []docpipe.Value, at int) docpipe.Value {
	t.Helper()
	pattern, err := agg.NewPattern(op)
	require.NoError(t, err)
	merger := pattern()
	for _, part := range [][]docpipe.Value{vals[:at], vals[at:]} {
		if len(part) == 0 {
			continue
		}
		f := pattern()
		for _, v := range part {
			f.Consume(v)
		}
		merger.ConsumeAsPartial(f.ResultAsPartial())
	}
	return merger.Result()
}

func TestAccumulators(t *testing.T) {
	in := values(`[3, "x", null, 1.5, 3, {"$numberLong":"2"}]`)
	cases := []struct {
		op       string
		expected string
	}{
		{"$sum", `9.5`},
		{"$avg", `2.375`},
		{"$min", `1.5`},
		{"$max", `"x"`},
		{"$first", `3`},
		{"$last", `{"$numberLong":"2"}`},
		{"$push", `[3, "x", null, 1.5, 3, {"$numberLong":"2"}]`},
		{"$addToSet", `[3, "x", null, 1.5, {"$numberLong":"2"}]`},
		{"$count", `6`},
	}
	for _, c := range cases {
		expected := docpipe.MustParse(c.expected)
		got := run(t, c.op, in)
		assert.True(t, docpipe.Equal(expected, got), "%s: got %s", c.op, got)
		for at := 1; at < len(in); at++ {
			split := runSplit(t, c.op, in, at)
			assert.True(t, docpipe.Equal(got, split), "%s split at %d: got %s", c.op, at, split)
		}
	}
}

func TestEmptyGroups(t *testing.T) {
	assert.True(t, docpipe.Equal(docpipe.NewInt32(0), run(t, "$sum", values(`["a"]`))))
	assert.Equal(t, docpipe.KindNull, run(t, "$avg", values(`["a"]`)).Kind())
	assert.Equal(t, docpipe.KindNull, run(t, "$min", values(`[null]`)).Kind())
	assert.Equal(t, docpipe.KindNull, run(t, "$first", []docpipe.Value{docpipe.Missing}).Kind())
}

func TestSumPromotion(t *testing.T) {
	got := run(t, "$sum", values(`[2147483647, 1]`))
	assert.Equal(t, docpipe.KindInt64, got.Kind())
	got = run(t, "$sum", values(`[1, {"$numberDecimal":"0.5"}]`))
	assert.Equal(t, docpipe.KindDecimal128, got.Kind())
}

func TestUnknownAccumulator(t *testing.T) {
	_, err := agg.NewPattern("$median")
	assert.Error(t, err)
	assert.True(t, agg.IsAccumulator("$push"))
	assert.Contains(t, agg.Names(), "$addToSet")
}
