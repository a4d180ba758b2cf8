package catalog_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/catalog"
	"github.com/brimdata/docpipe/dperr"
	"github.com/brimdata/docpipe/expr"
	"github.com/brimdata/docpipe/field"
	"github.com/brimdata/docpipe/match"
	"github.com/brimdata/docpipe/pkg/storage"
	"github.com/brimdata/docpipe/zbuf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func numbered(n int) []*docpipe.Document {
	docs := make([]*docpipe.Document, n)
	for k := range docs {
		docs[k] = docpipe.D("_id", docpipe.NewInt32(int32(k)), "a", docpipe.NewInt32(int32(k)))
	}
	return docs
}

func scan(t *testing.T, snap *catalog.Snapshot, filter string) ([]*docpipe.Document, catalog.ScanStats) {
	t.Helper()
	f := match.MustParse(filter)
	s := snap.NewScanner(context.Background(), expr.NewContext(), f, f.Bounds(false))
	docs, err := zbuf.PullAll(s)
	require.NoError(t, err)
	return docs, s.Stats()
}

func TestBucketPruning(t *testing.T) {
	c := catalog.New(10)
	c.Create("c").Insert(numbered(100)...)
	snap := c.Snapshot("c")
	require.Len(t, snap.Buckets, 10)

	docs, stats := scan(t, snap, `{"a": {"$gte": 42, "$lt": 45}}`)
	assert.Len(t, docs, 3)
	assert.EqualValues(t, 1, stats.BucketsScanned)
	assert.EqualValues(t, 9, stats.BucketsSkipped)

	docs, stats = scan(t, snap, `{"a": {"$gt": 1000}}`)
	assert.Empty(t, docs)
	assert.EqualValues(t, 0, stats.BucketsScanned)

	// A null bound matches documents where the path is absent.
	docs, stats = scan(t, snap, `{"b": null}`)
	assert.Len(t, docs, 100)
	assert.EqualValues(t, 0, stats.BucketsSkipped)
}

func TestStatsArrays(t *testing.T) {
	c := catalog.New(0)
	c.Create("c").Insert(
		docpipe.MustParseDocument(`{"a": [1, 50]}`),
		docpipe.MustParseDocument(`{"a": null}`),
		docpipe.MustParseDocument(`{}`),
	)
	b := c.Snapshot("c").Buckets[0]
	s := b.Stats(field.Dotted("a"))
	assert.True(t, s.HasArray)
	assert.True(t, s.HasNull)
	assert.True(t, s.HasMissing)
	docs, _ := scan(t, c.Snapshot("c"), `{"a": 50}`)
	assert.Len(t, docs, 1)
}

func TestSnapshotIsolation(t *testing.T) {
	c := catalog.New(4)
	coll := c.Create("c")
	coll.Insert(numbered(6)...)
	before := coll.Snapshot()
	coll.Insert(numbered(3)...)
	_, loc, ok := coll.FindOne([]field.Path{field.Dotted("_id")}, []docpipe.Value{docpipe.NewInt32(1)})
	require.True(t, ok)
	coll.Replace(loc, docpipe.D("_id", docpipe.NewInt32(1), "a", docpipe.NewString("x")))
	assert.Equal(t, 6, before.Len())
	assert.Equal(t, `{"_id":1,"a":1}`, before.Documents()[1].String())
	assert.Equal(t, 9, coll.Len())
	assert.Equal(t, `{"_id":1,"a":"x"}`, coll.Snapshot().Documents()[1].String())
}

func TestUpsert(t *testing.T) {
	coll := catalog.New(2).Create("c")
	on := []field.Path{field.Dotted("k")}
	coll.Upsert(on, docpipe.MustParseDocument(`{"k": 1, "v": 1}`))
	coll.Upsert(on, docpipe.MustParseDocument(`{"k": 2, "v": 1}`))
	coll.Upsert(on, docpipe.MustParseDocument(`{"k": 1, "v": 2}`))
	coll.Upsert(on, docpipe.MustParseDocument(`{"k": 3, "v": 1}`))
	var out []string
	for _, doc := range coll.Snapshot().Documents() {
		out = append(out, doc.String())
	}
	assert.Equal(t, []string{`{"k":1,"v":2}`, `{"k":2,"v":1}`, `{"k":3,"v":1}`}, out)
	coll.ReplaceAll(numbered(1))
	_, _, ok := coll.FindOne(on, []docpipe.Value{docpipe.NewInt32(1)})
	assert.False(t, ok)
}

func TestLookup(t *testing.T) {
	c := catalog.New(0)
	_, err := c.Lookup("nope")
	assert.True(t, dperr.HasCode(err, dperr.NamespaceNotFound))
	assert.Zero(t, c.Snapshot("nope").Len())
	c.Create("b")
	c.Create("a")
	assert.Equal(t, []string{"a", "b"}, c.Names())
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "docs.json")
	var data string
	for k := 0; k < 5; k++ {
		data += fmt.Sprintf("{\"a\": %d}\n", k)
	}
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))
	c := catalog.New(0)
	n, err := c.Load(context.Background(), storage.NewLocalEngine(), "c", storage.MustParseURI(path))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 5, c.Snapshot("c").Len())

	_, err = c.Load(context.Background(), storage.NewLocalEngine(), "c", storage.MustParseURI(filepath.Join(dir, "missing.json")))
	assert.True(t, dperr.IsKind(err, dperr.NamespaceError))
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "2.json"), []byte(`{"a": 2}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "1.ndjson"), []byte("{\"a\": 0}\n{\"a\": 1}\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip me"), 0644))
	docs, err := catalog.ReadSource(context.Background(), storage.NewLocalEngine(), storage.MustParseURI(dir))
	require.NoError(t, err)
	require.Len(t, docs, 3)
	for k, doc := range docs {
		assert.EqualValues(t, k, doc.Get("a").Int())
	}

	_, err = catalog.ReadSource(context.Background(), storage.NewLocalEngine(), storage.MustParseURI(t.TempDir()))
	assert.True(t, dperr.HasCode(err, dperr.NamespaceNotFound))
}
