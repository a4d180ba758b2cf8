package sort_test

import (
	"fmt"
	"testing"

	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/compiler/dag"
	"github.com/brimdata/docpipe/runtime/op"
	"github.com/brimdata/docpipe/runtime/op/optest"
	"github.com/brimdata/docpipe/runtime/op/sort"
	"github.com/brimdata/docpipe/zbuf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func sortOf(t *testing.T, spec string) *dag.Sort {
	return optest.Stage(t, `{"$sort": `+spec+`}`).(*dag.Sort)
}

func TestSortStable(t *testing.T) {
	defer goleak.VerifyNone(t)
	in := optest.Docs(
		`{"a":2,"i":0}`,
		`{"a":1,"i":1}`,
		`{"i":2}`,
		`{"a":null,"i":3}`,
		`{"a":1,"i":4}`,
	)
	octx := op.DefaultContext()
	defer octx.Cancel()
	out, err := zbuf.PullAll(sort.New(octx, zbuf.NewSlicePuller(in...), sortOf(t, `{"a":1}`).Keys, 0))
	require.NoError(t, err)
	// Missing sorts as null, and ties keep input order.
	expected := optest.Canonical(
		`{"i":2}`,
		`{"a":null,"i":3}`,
		`{"a":1,"i":1}`,
		`{"a":1,"i":4}`,
		`{"a":2,"i":0}`,
	)
	assert.Equal(t, expected, optest.Strings(out))
}

func TestSortTopK(t *testing.T) {
	defer goleak.VerifyNone(t)
	var in []*docpipe.Document
	for k := 0; k < 500; k++ {
		in = append(in, docpipe.D("a", docpipe.NewInt32(int32((k*7919)%500))))
	}
	octx := op.DefaultContext()
	defer octx.Cancel()
	out, err := zbuf.PullAll(sort.New(octx, zbuf.NewSlicePuller(in...), sortOf(t, `{"a":-1}`).Keys, 3))
	require.NoError(t, err)
	assert.Equal(t, optest.Canonical(`{"a":499}`, `{"a":498}`, `{"a":497}`), optest.Strings(out))
}

func TestSortSpills(t *testing.T) {
	defer goleak.VerifyNone(t)
	var in []*docpipe.Document
	for k := 0; k < 1000; k++ {
		in = append(in, docpipe.D(
			"a", docpipe.NewInt32(int32(k%10)),
			"s", docpipe.NewString(fmt.Sprintf("doc-%04d", k)),
		))
	}
	octx := op.DefaultContext()
	defer octx.Cancel()
	octx.MemMaxBytes = 4096
	s := sort.New(octx, zbuf.NewPuller(zbuf.NewArray(in), 100), sortOf(t, `{"a":1}`).Keys, 0)
	out, err := zbuf.PullAll(s)
	require.NoError(t, err)
	require.Len(t, out, 1000)
	assert.Greater(t, s.Spills(), 1)
	for k := 1; k < len(out); k++ {
		prev, cur := out[k-1], out[k]
		require.LessOrEqual(t, prev.Get("a").Int(), cur.Get("a").Int())
		if prev.Get("a").Int() == cur.Get("a").Int() {
			// Equal keys keep input order across runs.
			require.Less(t, prev.Get("s").Str(), cur.Get("s").Str())
		}
	}
}

func TestSortDoneEarly(t *testing.T) {
	defer goleak.VerifyNone(t)
	in := optest.NewRecorder(optest.Docs(`{"a":3}`, `{"a":1}`, `{"a":2}`)...)
	octx := op.DefaultContext()
	defer octx.Cancel()
	s := sort.New(octx, in, sortOf(t, `{"a":1}`).Keys, 0)
	b, err := s.Pull(false)
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, optest.Canonical(`{"a":1}`, `{"a":2}`, `{"a":3}`), optest.Strings(b.Documents()))
	b, err = s.Pull(true)
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestSortDoneBeforeStart(t *testing.T) {
	defer goleak.VerifyNone(t)
	in := optest.NewRecorder(optest.Docs(`{"a":1}`)...)
	octx := op.DefaultContext()
	defer octx.Cancel()
	b, err := sort.New(octx, in, sortOf(t, `{"a":1}`).Keys, 0).Pull(true)
	require.NoError(t, err)
	assert.Nil(t, b)
	assert.True(t, in.Done)
}
