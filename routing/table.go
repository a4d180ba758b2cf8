// Package routing holds the versioned map from collections to the
// partitions that own their documents.
package routing

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/dperr"
	"github.com/brimdata/docpipe/field"
	"github.com/brimdata/docpipe/match"
	"github.com/segmentio/ksuid"
)

// Version identifies one state of a collection's routing.  A new epoch
// means the collection was sharded, unsharded or recreated; a new minor
// version means ownership moved within the epoch.
type Version struct {
	Epoch ksuid.KSUID `json:"epoch"`
	Minor uint32      `json:"minor"`
}

// NewEpoch returns the first version of a new epoch.
func NewEpoch() Version {
	return Version{Epoch: ksuid.New()}
}

func (v Version) IsZero() bool {
	return v.Epoch == ksuid.Nil && v.Minor == 0
}

func (v Version) Equal(to Version) bool {
	return v.Epoch == to.Epoch && v.Minor == to.Minor
}

// Next returns v with its minor version incremented.
func (v Version) Next() Version {
	return Version{Epoch: v.Epoch, Minor: v.Minor + 1}
}

func (v Version) String() string {
	if v.IsZero() {
		return "unversioned"
	}
	return fmt.Sprintf("%s|%d", v.Epoch, v.Minor)
}

// Chunk is the range [Min, Max) of shard key values owned by Shard.
type Chunk struct {
	Min   docpipe.Value
	Max   docpipe.Value
	Shard string
}

// Contains is true when key lies in c.  The last chunk of a table ends at
// MaxKey, which it includes.
func (c Chunk) Contains(key docpipe.Value) bool {
	if docpipe.Compare(key, c.Min) < 0 {
		return false
	}
	return docpipe.Compare(key, c.Max) < 0 || c.Max.Kind() == docpipe.KindMaxKey
}

type chunkJSON struct {
	Min   json.RawMessage `json:"min"`
	Max   json.RawMessage `json:"max"`
	Shard string          `json:"shard"`
}

func (c Chunk) MarshalJSON() ([]byte, error) {
	min, err := docpipe.MarshalValueExtJSON(c.Min)
	if err != nil {
		return nil, err
	}
	max, err := docpipe.MarshalValueExtJSON(c.Max)
	if err != nil {
		return nil, err
	}
	return json.Marshal(chunkJSON{Min: min, Max: max, Shard: c.Shard})
}

func (c *Chunk) UnmarshalJSON(b []byte) error {
	var cj chunkJSON
	if err := json.Unmarshal(b, &cj); err != nil {
		return err
	}
	min, err := docpipe.ParseExtJSON(cj.Min)
	if err != nil {
		return err
	}
	max, err := docpipe.ParseExtJSON(cj.Max)
	if err != nil {
		return err
	}
	*c = Chunk{Min: min, Max: max, Shard: cj.Shard}
	return nil
}

// Table is the routing of one collection.  An unsharded collection lives
// entirely on Primary.  A sharded collection is split into Chunks on the
// values of ShardKey; the chunks are sorted and cover MinKey to MaxKey.
type Table struct {
	Collection string  `json:"collection"`
	Sharded    bool    `json:"sharded"`
	Primary    string  `json:"primary"`
	Version    Version `json:"version"`
	ShardKey   string  `json:"shardKey,omitempty"`
	Chunks     []Chunk `json:"chunks,omitempty"`
}

// NewUnsharded returns the table of a collection held by primary.
func NewUnsharded(coll, primary string) *Table {
	return &Table{
		Collection: coll,
		Primary:    primary,
		Version:    NewEpoch(),
	}
}

// NewSharded returns the table of coll split on key at the given points.
// The chunks are assigned to shards round robin.
func NewSharded(coll, key, primary string, points []docpipe.Value, shards []string) (*Table, error) {
	if key == "" {
		return nil, dperr.E(dperr.InvalidArgument, "shard key must be given")
	}
	if len(shards) == 0 {
		return nil, dperr.E(dperr.InvalidArgument, "no shards to distribute %s across", coll)
	}
	points = append([]docpipe.Value(nil), points...)
	sort.SliceStable(points, func(i, j int) bool {
		return docpipe.Compare(points[i], points[j]) < 0
	})
	t := &Table{
		Collection: coll,
		Sharded:    true,
		Primary:    primary,
		Version:    NewEpoch(),
		ShardKey:   key,
	}
	lo := docpipe.MinKey
	for k, p := range append(points, docpipe.MaxKey) {
		if docpipe.Compare(p, lo) == 0 {
			continue
		}
		t.Chunks = append(t.Chunks, Chunk{Min: lo, Max: p, Shard: shards[k%len(shards)]})
		lo = p
	}
	return t, nil
}

// KeyOf returns the shard key value of doc.  A missing key routes as null.
func (t *Table) KeyOf(doc *docpipe.Document) (docpipe.Value, error) {
	v := doc.Lookup(field.Dotted(t.ShardKey))
	switch {
	case v.IsMissing():
		return docpipe.Null, nil
	case v.IsArray():
		return docpipe.Value{}, dperr.E(dperr.InvalidArgument, dperr.Code(13334), "shard key %s cannot be an array", t.ShardKey)
	}
	return v, nil
}

// Owner returns the shard that owns documents with shard key key.
func (t *Table) Owner(key docpipe.Value) (string, error) {
	if !t.Sharded {
		return t.Primary, nil
	}
	if key.IsMissing() {
		key = docpipe.Null
	}
	for _, c := range t.Chunks {
		if c.Contains(key) {
			return c.Shard, nil
		}
	}
	return "", dperr.E(dperr.InternalAssertion, "no chunk of %s holds shard key %s", t.Collection, key)
}

// Shards returns the shards holding t's data in sorted order.
func (t *Table) Shards() []string {
	if !t.Sharded {
		return []string{t.Primary}
	}
	set := make(map[string]struct{})
	for _, c := range t.Chunks {
		set[c.Shard] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Target returns the sorted shards that can hold documents satisfying
// bounds.  Only a bound on the shard key narrows the result.
func (t *Table) Target(bounds []match.Bound) []string {
	if !t.Sharded {
		return []string{t.Primary}
	}
	key := field.Dotted(t.ShardKey)
	set := make(map[string]struct{})
	for _, c := range t.Chunks {
		if chunkMatches(c, key, bounds) {
			set[c.Shard] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func chunkMatches(c Chunk, key field.Path, bounds []match.Bound) bool {
	for _, b := range bounds {
		if len(b.Path) == 0 && len(b.Intervals) == 0 {
			// The filter matches nothing.
			return false
		}
		if b.Path.Equal(key) && !b.Overlaps(c.Min, c.Max) {
			return false
		}
	}
	return true
}

// Copy returns a deep copy of t.
func (t *Table) Copy() *Table {
	c := *t
	c.Chunks = append([]Chunk(nil), t.Chunks...)
	return &c
}
