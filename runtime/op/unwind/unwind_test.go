package unwind_test

import (
	"testing"

	"github.com/brimdata/docpipe/field"
	"github.com/brimdata/docpipe/runtime/op/optest"
	"github.com/brimdata/docpipe/runtime/op/unwind"
	"github.com/brimdata/docpipe/zbuf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnwind(t *testing.T) {
	in := optest.Docs(
		`{"_id":1,"a":[1,2]}`,
		`{"_id":2,"a":[]}`,
		`{"_id":3,"a":null}`,
		`{"_id":4}`,
		`{"_id":5,"a":"x"}`,
	)
	cases := []struct {
		name     string
		index    field.Path
		preserve bool
		expected []string
	}{
		{
			name:     "plain",
			expected: optest.Canonical(`{"_id":1,"a":1}`, `{"_id":1,"a":2}`, `{"_id":5,"a":"x"}`),
		},
		{
			name:     "preserve",
			preserve: true,
			expected: optest.Canonical(
				`{"_id":1,"a":1}`, `{"_id":1,"a":2}`,
				`{"_id":2}`, `{"_id":3,"a":null}`, `{"_id":4}`,
				`{"_id":5,"a":"x"}`,
			),
		},
		{
			name:  "index",
			index: field.New("i"),
			expected: optest.Canonical(
				`{"_id":1,"a":1,"i":{"$numberLong":"0"}}`,
				`{"_id":1,"a":2,"i":{"$numberLong":"1"}}`,
				`{"_id":5,"a":"x","i":null}`,
			),
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			out, err := zbuf.PullAll(unwind.New(zbuf.NewSlicePuller(in...), field.New("a"), c.index, c.preserve))
			require.NoError(t, err)
			assert.Equal(t, c.expected, optest.Strings(out))
		})
	}
}

func TestUnwindNested(t *testing.T) {
	in := optest.Docs(`{"a":{"b":[1,2]},"c":0}`)
	out, err := zbuf.PullAll(unwind.New(zbuf.NewSlicePuller(in...), field.Dotted("a.b"), nil, false))
	require.NoError(t, err)
	assert.Equal(t, optest.Canonical(`{"a":{"b":1},"c":0}`, `{"a":{"b":2},"c":0}`), optest.Strings(out))
}
