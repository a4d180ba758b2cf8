package queryflags

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/compiler/optimizer"
	"github.com/brimdata/docpipe/compiler/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, argv ...string) (*Flags, []string) {
	t.Helper()
	var f Flags
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	f.SetFlags(fs)
	require.NoError(t, fs.Parse(argv))
	require.NoError(t, f.Init())
	return &f, fs.Args()
}

func TestParse(t *testing.T) {
	f, args := parse(t, `{"$limit": 1}`, "in.json")
	v, rest, err := f.Parse(args)
	require.NoError(t, err)
	assert.Equal(t, docpipe.MustParse(`[{"$limit": 1}]`).String(), v.String())
	assert.Equal(t, []string{"in.json"}, rest)

	dir := t.TempDir()
	inc := filepath.Join(dir, "stages.json")
	require.NoError(t, os.WriteFile(inc, []byte(`[{"$match": {"a": 1}}]`), 0644))
	f, args = parse(t, "-I", inc, "-I", inc, "in.json")
	v, rest, err = f.Parse(args)
	require.NoError(t, err)
	assert.Len(t, v.Array(), 2)
	assert.Equal(t, []string{"in.json"}, rest)

	_, _, err = (&Flags{}).Parse(nil)
	assert.EqualError(t, err, "no pipeline given")

	_, _, err = (&Flags{}).Parse([]string{`[{"$limit" 1}]`})
	var serr *parser.SyntaxError
	assert.ErrorAs(t, err, &serr)
}

func TestInit(t *testing.T) {
	f, _ := parse(t, "-no.pushdown")
	assert.True(t, f.Optimizer.Coalesce)
	assert.False(t, f.Optimizer.Pushdown)
	f, _ = parse(t, "-O0")
	assert.Equal(t, optimizer.Disabled(), f.Optimizer)

	var bad Flags
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	bad.SetFlags(fs)
	require.NoError(t, fs.Parse([]string{"-merge", "nowhere"}))
	assert.Error(t, bad.Init())

	req, err := f.Request("c", docpipe.MustParse(`[]`))
	require.NoError(t, err)
	assert.Equal(t, "c", req.Collection)
	assert.Equal(t, -1, req.BatchSize)
}
