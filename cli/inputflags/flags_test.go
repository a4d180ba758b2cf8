package inputflags

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, args ...string) *Flags {
	var f Flags
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	f.SetFlags(fs)
	require.NoError(t, fs.Parse(args))
	return &f
}

func TestCollections(t *testing.T) {
	f := parse(t, "-shards", "3", "-shardkey", "a", "-split", `1,"m"`)
	require.NoError(t, f.Init())
	assert.Equal(t, []string{"s0", "s1", "s2"}, f.ShardIDs())
	colls, err := f.Collections([]string{"data/orders.json", "people=s3://bucket/p.ndjson"})
	require.NoError(t, err)
	require.Len(t, colls, 2)
	assert.Equal(t, "orders", colls[0].Name)
	assert.Equal(t, "data/orders.json", colls[0].Source)
	assert.Equal(t, "people", colls[1].Name)
	assert.Equal(t, "s3://bucket/p.ndjson", colls[1].Source)
	assert.Equal(t, "a", colls[1].ShardKey)
	points, err := colls[1].Points()
	require.NoError(t, err)
	assert.Len(t, points, 2)
}

func TestCollectionErrors(t *testing.T) {
	f := parse(t)
	require.NoError(t, f.Init())
	_, err := f.Collections([]string{"a.json", "x/a.json"})
	assert.ErrorContains(t, err, "named twice")
	_, err = f.Collections([]string{"=a.json"})
	assert.Error(t, err)

	assert.Error(t, parse(t, "-shards", "0").Init())
	assert.Error(t, parse(t, "-split", "1").Init())
}
