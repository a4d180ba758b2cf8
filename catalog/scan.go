package catalog

import (
	"context"

	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/expr"
	"github.com/brimdata/docpipe/match"
	"github.com/brimdata/docpipe/zbuf"
)

// Snapshot is a collection's bucket list at a point in time.
type Snapshot struct {
	Collection string
	Buckets    []*Bucket
}

func (s *Snapshot) Len() int {
	var n int
	for _, b := range s.Buckets {
		n += b.Len()
	}
	return n
}

func (s *Snapshot) Documents() []*docpipe.Document {
	docs := make([]*docpipe.Document, 0, s.Len())
	for _, b := range s.Buckets {
		docs = append(docs, b.docs...)
	}
	return docs
}

// ScanStats counts the work a Scanner did.
type ScanStats struct {
	BucketsScanned int64
	BucketsSkipped int64
	DocsExamined   int64
	DocsReturned   int64
}

// Scanner pulls the documents of a snapshot bucket by bucket.  Buckets
// whose statistics rule out bounds are skipped without reading their
// documents and the rest are filtered document by document.  A scan is
// finite and cannot be restarted.
type Scanner struct {
	ctx    context.Context
	ectx   *expr.Context
	filter *match.Filter
	bounds []match.Bound
	snap   *Snapshot
	next   int
	stats  ScanStats
}

var _ zbuf.Puller = (*Scanner)(nil)

// NewScanner returns a Scanner over s.  A nil filter matches every
// document.
func (s *Snapshot) NewScanner(ctx context.Context, ectx *expr.Context, filter *match.Filter, bounds []match.Bound) *Scanner {
	return &Scanner{
		ctx:    ctx,
		ectx:   ectx,
		filter: filter,
		bounds: bounds,
		snap:   s,
	}
}

func (s *Scanner) Pull(done bool) (zbuf.Batch, error) {
	if done {
		s.next = len(s.snap.Buckets)
		return nil, nil
	}
	for s.next < len(s.snap.Buckets) {
		if err := s.ctx.Err(); err != nil {
			return nil, err
		}
		b := s.snap.Buckets[s.next]
		s.next++
		if b.Excludes(s.bounds) {
			s.stats.BucketsSkipped++
			continue
		}
		s.stats.BucketsScanned++
		s.stats.DocsExamined += int64(b.Len())
		docs, err := s.filterBucket(b)
		if err != nil {
			return nil, err
		}
		if len(docs) > 0 {
			s.stats.DocsReturned += int64(len(docs))
			return zbuf.NewArray(docs), nil
		}
	}
	return nil, nil
}

func (s *Scanner) filterBucket(b *Bucket) ([]*docpipe.Document, error) {
	if s.filter == nil {
		return b.docs, nil
	}
	var out []*docpipe.Document
	for _, doc := range b.docs {
		doc, ok, err := s.filter.Apply(s.ectx, doc)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (s *Scanner) Stats() ScanStats {
	return s.stats
}
