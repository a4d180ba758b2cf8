package skip_test

import (
	"testing"

	"github.com/brimdata/docpipe/runtime/op/optest"
	"github.com/brimdata/docpipe/runtime/op/skip"
	"github.com/brimdata/docpipe/zbuf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSkip(t *testing.T) {
	in := optest.Docs(`{"a":1}`, `{"a":2}`, `{"a":3}`, `{"a":4}`, `{"a":5}`)
	out, err := zbuf.PullAll(skip.New(zbuf.NewPuller(zbuf.NewArray(in), 2), 3))
	require.NoError(t, err)
	assert.Equal(t, optest.Canonical(`{"a":4}`, `{"a":5}`), optest.Strings(out))

	out, err = zbuf.PullAll(skip.New(zbuf.NewSlicePuller(in...), 9))
	require.NoError(t, err)
	assert.Empty(t, out)
}
