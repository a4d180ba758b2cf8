package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alecthomas/units"
	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/service/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

const sample = `
listen: ":8080"
shards: [s0, s1, s2]
routing:
  store: redis
  redis:
    addr: localhost:6379
optimizer:
  coalesce: false
  pushdown: true
  sortElision: true
merge:
  location: specificPartition:s1
  retries: 5
sort:
  memMaxBytes: 64MiB
cursor:
  batchSize: 50
  idleTimeout: 90s
log:
  level: debug
  path: /tmp/docpipe.log
  mode: rotate
  components:
    cluster: debug
collections:
  - name: orders
    source: s3://bucket/orders.json
    shardKey: _id
    splitPoints: ["100", '"m"']
`

func TestParse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docpipe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0644))
	conf, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":8080", conf.Listen)
	assert.Equal(t, []string{"s0", "s1", "s2"}, conf.Shards)
	assert.Equal(t, "localhost:6379", conf.Routing.Redis.Addr)
	assert.Equal(t, "docpipe:routing:", conf.Routing.Redis.Key)
	assert.False(t, conf.Optimizer.Coalesce)
	assert.True(t, conf.Optimizer.SortElision)
	assert.Equal(t, 5, conf.Merge.Retries)
	assert.EqualValues(t, 64*units.MiB, conf.Sort.MemMaxBytes)
	assert.Equal(t, 90*time.Second, time.Duration(conf.Cursor.IdleTimeout))
	assert.Equal(t, zapcore.DebugLevel, conf.Log.Level)
	assert.Equal(t, logger.FileModeRotate, conf.Log.Mode)
	assert.Equal(t, zapcore.DebugLevel, conf.Log.Components["cluster"])
	require.Len(t, conf.Collections, 1)
	points, err := conf.Collections[0].Points()
	require.NoError(t, err)
	assert.Equal(t, []docpipe.Value{docpipe.NewInt32(100), docpipe.NewString("m")}, points)
}

func TestDefaults(t *testing.T) {
	conf, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultListen, conf.Listen)
	assert.Positive(t, int64(conf.Sort.MemMaxBytes))
	assert.LessOrEqual(t, int64(conf.Sort.MemMaxBytes), int64(MaxSortMemory))
	require.NoError(t, conf.Validate())
}

func TestInvalid(t *testing.T) {
	cases := map[string]string{
		"duplicate shard": `shards: [a, a]`,
		"store":           `routing: {store: etcd}`,
		"redis addr":      `routing: {store: redis}`,
		"location":        `merge: {location: everywhere}`,
		"size":            `sort: {memMaxBytes: lots}`,
		"duration":        `cursor: {idleTimeout: soon}`,
		"primary":         `collections: [{name: c, primary: s9}]`,
		"points":          `collections: [{name: c, splitPoints: ["1"]}]`,
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, Parse([]byte(src), Default()))
		})
	}
}

func TestMarshal(t *testing.T) {
	conf := Default()
	conf.Sort.MemMaxBytes = Bytes(2 * units.MiB)
	b, err := yaml.Marshal(conf)
	require.NoError(t, err)
	again := Default()
	require.NoError(t, Parse(b, again))
	assert.Equal(t, conf.Sort, again.Sort)
	assert.Equal(t, conf.Cursor, again.Cursor)
}
