package catalog

import (
	"sync"

	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/field"
	"github.com/brimdata/docpipe/match"
	"github.com/segmentio/ksuid"
)

// DefaultBucketSize is the number of documents per bucket.
const DefaultBucketSize = 64

// A Bucket is an immutable run of documents in a collection.  Writes
// replace buckets rather than modify them, so a snapshot's buckets never
// change underneath a reader.  Per-path statistics are computed on first
// use.
type Bucket struct {
	ID   ksuid.KSUID
	docs []*docpipe.Document

	mu    sync.Mutex
	stats map[string]*Stats
}

func newBucket(docs []*docpipe.Document) *Bucket {
	return &Bucket{
		ID:   ksuid.New(),
		docs: docs,
	}
}

func (b *Bucket) Documents() []*docpipe.Document {
	return b.docs
}

func (b *Bucket) Len() int {
	return len(b.docs)
}

// Stats returns the summary of the values at path.
func (b *Bucket) Stats(path field.Path) *Stats {
	key := path.String()
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.stats[key]; ok {
		return s
	}
	if b.stats == nil {
		b.stats = make(map[string]*Stats)
	}
	s := newStats(path, b.docs)
	b.stats[key] = s
	return s
}

// Excludes is true when the bucket's statistics prove that none of its
// documents can satisfy every bound.
func (b *Bucket) Excludes(bounds []match.Bound) bool {
	for _, bound := range bounds {
		if len(bound.Intervals) == 0 {
			return true
		}
		if b.Stats(bound.Path).Excludes(bound) {
			return true
		}
	}
	return false
}

// with returns a copy of b with the document in slot replaced.
func (b *Bucket) with(slot int, doc *docpipe.Document) *Bucket {
	docs := make([]*docpipe.Document, len(b.docs))
	copy(docs, b.docs)
	docs[slot] = doc
	return newBucket(docs)
}
