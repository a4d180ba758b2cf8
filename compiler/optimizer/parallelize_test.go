package optimizer_test

import (
	"testing"

	"github.com/brimdata/docpipe/compiler/dag"
	"github.com/brimdata/docpipe/compiler/optimizer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParallelize(t *testing.T) {
	cases := []struct {
		pipeline string
		shard    string
		merge    string
		keys     string
		reason   string
	}{
		{
			pipeline: `[{"$match": {"a": 1}}, {"$project": {"a": 1}}]`,
			shard:    "Scan,Match,Project",
		},
		{
			pipeline: `[{"$match": {"a": 1}}, {"$sort": {"a": -1}}, {"$project": {"a": 1}}]`,
			shard:    "Scan,Match,Sort",
			merge:    "Project",
			keys:     "a:desc",
			reason:   "$sort",
		},
		{
			pipeline: `[{"$limit": 3}, {"$set": {"b": 1}}]`,
			shard:    "Scan,Limit",
			merge:    "Limit,AddFields",
			reason:   "$limit",
		},
		{
			pipeline: `[{"$unwind": "$a"}, {"$group": {"_id": "$a", "n": {"$sum": 1}}}, {"$sort": {"n": 1}}]`,
			shard:    "Scan,Unwind,Group",
			merge:    "Group,Sort",
			reason:   "$group",
		},
		{
			pipeline: `[{"$count": "n"}]`,
			shard:    "Scan,Count",
			merge:    "Count",
			reason:   "$count",
		},
		{
			pipeline: `[{"$skip": 1}, {"$limit": 1}]`,
			shard:    "Scan",
			merge:    "Skip,Limit",
			reason:   "$skip",
		},
		{
			pipeline: `[{"$match": {"a": 1}}, {"$out": "target"}]`,
			shard:    "Scan,Match",
			merge:    "Out",
			reason:   "$out",
		},
	}
	for _, c := range cases {
		t.Run(c.pipeline, func(t *testing.T) {
			split := optimizer.Parallelize(scanned(t, c.pipeline))
			assert.Equal(t, c.shard, shape(split.Shard))
			assert.Equal(t, c.merge, shape(split.Merge))
			assert.Equal(t, c.keys, split.MergeKeys.String())
			assert.Equal(t, c.reason, split.Reason)
			assert.Equal(t, c.merge == "" && c.keys == "", split.IsLocal())
		})
	}
}

func TestParallelizeTopK(t *testing.T) {
	seq, err := optimizer.New(optimizer.DefaultConfig(), false).Optimize(scanned(t, `[{"$sort": {"a": 1}}, {"$limit": 2}]`))
	require.NoError(t, err)
	split := optimizer.Parallelize(seq)
	assert.Equal(t, "Scan,Sort", shape(split.Shard))
	assert.Equal(t, "Limit", shape(split.Merge))
	assert.EqualValues(t, 2, split.Shard.Ops[1].(*dag.Sort).Limit)
	assert.EqualValues(t, 2, split.Merge.Ops[0].(*dag.Limit).Count)
}

func TestParallelizeGroupModes(t *testing.T) {
	seq := scanned(t, `[{"$group": {"_id": "$a", "n": {"$sum": 1}}}]`)
	split := optimizer.Parallelize(seq)
	assert.Equal(t, dag.GroupPartial, split.Shard.Ops[1].(*dag.Group).Mode)
	assert.Equal(t, dag.GroupMerge, split.Merge.Ops[0].(*dag.Group).Mode)
	// The input pipeline is left alone.
	assert.Equal(t, dag.GroupComplete, seq.Ops[1].(*dag.Group).Mode)
}

func TestParallelizeDocuments(t *testing.T) {
	split := optimizer.Parallelize(pipeline(t, `[{"$documents": [{"a": 1}]}, {"$sort": {"a": 1}}]`))
	assert.Empty(t, split.Shard.Ops)
	assert.Equal(t, "Documents,Sort", shape(split.Merge))
	assert.Equal(t, "$documents", split.Reason)
}
