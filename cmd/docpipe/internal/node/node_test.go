package node

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/config"
	"github.com/brimdata/docpipe/driver"
	"github.com/brimdata/docpipe/shard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type docs []*docpipe.Document

func (d *docs) Write(doc *docpipe.Document) error {
	*d = append(*d, doc)
	return nil
}

func writeFile(t *testing.T, name, body string) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestOpenAndQuery(t *testing.T) {
	path := writeFile(t, "c.json", `
{"_id": 1, "a": "x"}
{"_id": 2, "a": "y"}
{"_id": 3, "a": "x"}
{"_id": 4, "a": "z"}
`)
	conf := config.Default()
	conf.Shards = []string{"s0", "s1"}
	conf.Cursor.BatchSize = 1
	conf.Collections = []config.Collection{{
		Name:        "c",
		Source:      path,
		ShardKey:    "_id",
		SplitPoints: []string{"3"},
	}}
	ctx := context.Background()
	n, err := Open(ctx, conf, zap.NewNop())
	require.NoError(t, err)
	defer n.Close()

	for _, id := range []string{"s0", "s1"} {
		s, ok := n.Engine.Cluster().Shard(id)
		require.True(t, ok)
		has, err := s.Has(ctx, "c")
		require.NoError(t, err)
		assert.True(t, has, id)
	}

	var out docs
	count, err := n.Query(ctx, &driver.AggregateRequest{
		Collection: "c",
		Pipeline:   docpipe.MustParse(`[{"$match": {"a": "x"}}, {"$sort": {"_id": -1}}]`),
		BatchSize:  -1,
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	require.Len(t, out, 2)
	assert.EqualValues(t, 3, out[0].Get("_id").Int())
	assert.Zero(t, n.Engine.Cursors().Len())
}

func TestMovePrimary(t *testing.T) {
	conf := config.Default()
	conf.Shards = []string{"s0", "s1"}
	conf.Collections = []config.Collection{{
		Name:    "c",
		Source:  writeFile(t, "c.json", `[{"a": 1}, {"a": 2}]`),
		Primary: "s1",
	}}
	n, err := Open(context.Background(), conf, zap.NewNop())
	require.NoError(t, err)
	defer n.Close()
	for id, expected := range map[string]int{"s0": 0, "s1": 2} {
		s, ok := n.Engine.Cluster().Shard(id)
		require.True(t, ok)
		coll, err := s.(*shard.Local).Catalog().Lookup("c")
		require.NoError(t, err)
		assert.Equal(t, expected, coll.Len(), id)
	}
}

func TestMissingSource(t *testing.T) {
	conf := config.Default()
	conf.Collections = []config.Collection{{Name: "c", Source: filepath.Join(t.TempDir(), "nope.json")}}
	_, err := Open(context.Background(), conf, zap.NewNop())
	assert.ErrorContains(t, err, "collection c")
}
