package zbuf_test

import (
	"testing"

	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/order"
	"github.com/brimdata/docpipe/zbuf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func docs(ss ...string) []*docpipe.Document {
	var out []*docpipe.Document
	for _, s := range ss {
		out = append(out, docpipe.MustParseDocument(s))
	}
	return out
}

func TestPullerBatches(t *testing.T) {
	in := docs(`{"a":1}`, `{"a":2}`, `{"a":3}`)
	p := zbuf.NewPuller(zbuf.NewArray(in), 2)
	b, err := p.Pull(false)
	require.NoError(t, err)
	assert.Len(t, b.Documents(), 2)
	b, err = p.Pull(false)
	require.NoError(t, err)
	assert.Len(t, b.Documents(), 1)
	b, err = p.Pull(false)
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestPullerDone(t *testing.T) {
	p := zbuf.NewSlicePuller(docs(`{"a":1}`, `{"a":2}`)...)
	b, err := p.Pull(true)
	require.NoError(t, err)
	assert.Nil(t, b)
	b, err = p.Pull(false)
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestPullerReader(t *testing.T) {
	in := docs(`{"a":1}`, `{"a":2}`, `{"a":3}`)
	r := zbuf.NewPullerReader(zbuf.NewPuller(zbuf.NewArray(in), 1))
	out, err := zbuf.PullAll(zbuf.NewPuller(r, 10))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestComparator(t *testing.T) {
	keys, err := order.ParseSortSpec(docpipe.MustParse(`{"a":1,"b":-1}`))
	require.NoError(t, err)
	cmp := zbuf.NewComparator(keys, nil)
	in := docs(`{"a":2,"b":1}`, `{"b":5}`, `{"a":[3,1],"b":0}`, `{"a":1,"b":7}`, `{"a":null,"b":6}`)
	sorted := append([]*docpipe.Document(nil), in...)
	// Insertion sort keeps the check independent of package sort.
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && cmp.Compare(sorted[j-1], sorted[j]) > 0; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	var got []string
	for _, d := range sorted {
		got = append(got, d.String())
	}
	assert.Equal(t, []string{
		in[4].String(), in[1].String(), in[3].String(), in[2].String(), in[0].String(),
	}, got)
}

func TestComparatorDescendingArray(t *testing.T) {
	keys, err := order.ParseSortSpec(docpipe.MustParse(`{"a":-1}`))
	require.NoError(t, err)
	cmp := zbuf.NewComparator(keys, nil)
	a := docpipe.MustParseDocument(`{"a":[1,9]}`)
	b := docpipe.MustParseDocument(`{"a":5}`)
	assert.Negative(t, cmp.Compare(a, b))
}
