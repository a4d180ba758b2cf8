package catalog

import (
	"github.com/axiomhq/hyperloglog"
	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/field"
	"github.com/brimdata/docpipe/match"
)

// Stats summarizes the values a bucket holds at one path.  Min and Max
// bound every value match.Values returns for the path, with absent paths
// counted as missing, so a bound that misses [Min, Max] misses every
// document in the bucket.
type Stats struct {
	Path       field.Path
	Min        docpipe.Value
	Max        docpipe.Value
	HasNull    bool
	HasArray   bool
	HasMissing bool
	// Count is the number of values folded into the summary, which can
	// exceed the number of documents when the path reaches arrays.
	Count  int
	sketch *hyperloglog.Sketch
}

func newStats(path field.Path, docs []*docpipe.Document) *Stats {
	s := &Stats{
		Path:   path,
		sketch: hyperloglog.New(),
	}
	for _, doc := range docs {
		for _, v := range match.Values(doc, path) {
			s.add(v)
		}
	}
	return s
}

func (s *Stats) add(v docpipe.Value) {
	switch {
	case v.IsMissing():
		s.HasMissing = true
	case v.Kind() == docpipe.KindNull:
		s.HasNull = true
	case v.IsArray():
		s.HasArray = true
	}
	if s.Count == 0 || docpipe.Compare(v, s.Min) < 0 {
		s.Min = v
	}
	if s.Count == 0 || docpipe.Compare(v, s.Max) > 0 {
		s.Max = v
	}
	s.Count++
	s.sketch.Insert([]byte(docpipe.Key(v)))
}

// Distinct estimates the number of distinct values at the path.
func (s *Stats) Distinct() uint64 {
	return s.sketch.Estimate()
}

// Excludes is true when no document summarized by s can satisfy b.
func (s *Stats) Excludes(b match.Bound) bool {
	if s.Count == 0 {
		return false
	}
	return !b.Overlaps(s.Min, s.Max)
}

func (s *Stats) Document() *docpipe.Document {
	return docpipe.D(
		"path", docpipe.NewString(s.Path.String()),
		"min", s.Min,
		"max", s.Max,
		"hasNull", docpipe.NewBool(s.HasNull),
		"hasArray", docpipe.NewBool(s.HasArray),
		"hasMissing", docpipe.NewBool(s.HasMissing),
		"count", docpipe.NewInt64(int64(s.Count)),
		"distinct", docpipe.NewInt64(int64(s.Distinct())),
	)
}
