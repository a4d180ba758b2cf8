package storage

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/brimdata/docpipe/dperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURI(t *testing.T) {
	u, err := ParseURI("s3://bucket/dir/file.json")
	require.NoError(t, err)
	assert.True(t, u.HasScheme(S3Scheme))
	bucket, key := bucketKey(u)
	assert.Equal(t, "bucket", bucket)
	assert.Equal(t, "dir/file.json", key)

	u, err = ParseURI("data/file.json")
	require.NoError(t, err)
	assert.True(t, u.HasScheme(FileScheme))
	assert.True(t, filepath.IsAbs(u.Filepath()))
	assert.Equal(t, "file.json", u.Base())
}

func TestFileSystem(t *testing.T) {
	ctx := context.Background()
	engine := NewLocalEngine()
	dir := MustParseURI(t.TempDir())
	u := dir.AppendPath("sub", "c.json")

	ok, err := engine.Exists(ctx, u)
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = engine.Get(ctx, u)
	assert.True(t, dperr.IsKind(err, dperr.NamespaceError))

	require.NoError(t, Put(ctx, engine, u, strings.NewReader(`{"a":1}`)))
	b, err := Get(ctx, engine, u)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(b))

	infos, err := engine.List(ctx, dir.AppendPath("sub"))
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "c.json", infos[0].Name)

	require.NoError(t, engine.Delete(ctx, u))
	ok, err = engine.Exists(ctx, u)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRouterDisabledScheme(t *testing.T) {
	r := NewRouter()
	r.Enable(FileScheme)
	_, err := r.Get(context.Background(), MustParseURI("s3://b/k"))
	assert.ErrorContains(t, err, "not enabled")
}
