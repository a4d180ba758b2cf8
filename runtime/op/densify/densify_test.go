package densify_test

import (
	"testing"

	"github.com/brimdata/docpipe/compiler/dag"
	"github.com/brimdata/docpipe/dperr"
	"github.com/brimdata/docpipe/runtime/op"
	"github.com/brimdata/docpipe/runtime/op/densify"
	"github.com/brimdata/docpipe/runtime/op/optest"
	"github.com/brimdata/docpipe/zbuf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, spec string, in ...string) ([]string, error) {
	d := optest.Stage(t, `{"$densify": `+spec+`}`).(*dag.Densify)
	out, err := zbuf.PullAll(densify.New(op.DefaultContext(), zbuf.NewSlicePuller(optest.Docs(in...)...), d))
	return optest.Strings(out), err
}

func TestDensify(t *testing.T) {
	cases := []struct {
		name     string
		spec     string
		in       []string
		expected []string
	}{
		{
			name:     "full",
			spec:     `{"field": "a", "range": {"step": 1, "bounds": "full"}}`,
			in:       []string{`{"a":4}`, `{"a":1}`},
			expected: []string{`{"a":1}`, `{"a":2}`, `{"a":3}`, `{"a":4}`},
		},
		{
			name:     "explicit bounds exclude the upper bound",
			spec:     `{"field": "a", "range": {"step": 1, "bounds": [0, 3]}}`,
			in:       []string{`{"a":1,"x":true}`},
			expected: []string{`{"a":0}`, `{"a":1,"x":true}`, `{"a":2}`},
		},
		{
			name: "partition",
			spec: `{"field": "a", "partitionByFields": ["p"], "range": {"step": 1, "bounds": "partition"}}`,
			in:   []string{`{"p":"y","a":12}`, `{"p":"x","a":1}`, `{"p":"x","a":3}`, `{"p":"y","a":10}`},
			expected: []string{
				`{"p":"x","a":1}`, `{"p":"x","a":2}`, `{"p":"x","a":3}`,
				`{"p":"y","a":10}`, `{"p":"y","a":11}`, `{"p":"y","a":12}`,
			},
		},
		{
			name: "partition with full bounds",
			spec: `{"field": "a", "partitionByFields": ["p"], "range": {"step": 2, "bounds": "full"}}`,
			in:   []string{`{"p":"x","a":0}`, `{"p":"y","a":4}`},
			expected: []string{
				`{"p":"x","a":0}`, `{"p":"x","a":2}`, `{"p":"x","a":4}`,
				`{"p":"y","a":0}`, `{"p":"y","a":2}`, `{"p":"y","a":4}`,
			},
		},
		{
			name: "dates",
			spec: `{"field": "t", "range": {"step": 1, "unit": "hour", "bounds": "full"}}`,
			in: []string{
				`{"t":{"$date":"2024-01-01T00:00:00Z"}}`,
				`{"t":{"$date":"2024-01-01T02:00:00Z"}}`,
			},
			expected: []string{
				`{"t":{"$date":"2024-01-01T00:00:00Z"}}`,
				`{"t":{"$date":"2024-01-01T01:00:00Z"}}`,
				`{"t":{"$date":"2024-01-01T02:00:00Z"}}`,
			},
		},
		{
			name:     "nulls pass through",
			spec:     `{"field": "a", "range": {"step": 1, "bounds": "full"}}`,
			in:       []string{`{"a":null}`, `{"a":2}`, `{"a":0}`},
			expected: []string{`{"a":null}`, `{"a":0}`, `{"a":1}`, `{"a":2}`},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			out, err := run(t, c.spec, c.in...)
			require.NoError(t, err)
			assert.Equal(t, optest.Canonical(c.expected...), out)
		})
	}
}

func TestDensifyErrors(t *testing.T) {
	_, err := run(t, `{"field": "a", "range": {"step": 1, "bounds": "full"}}`, `{"a":"x"}`)
	assert.Equal(t, dperr.Code(5733201), dperr.CodeOf(err))
	_, err = run(t, `{"field": "a", "range": {"step": 1, "unit": "day", "bounds": "full"}}`, `{"a":1}`)
	assert.Equal(t, dperr.Code(6053600), dperr.CodeOf(err))
}
