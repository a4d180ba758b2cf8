package catalog

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/field"
)

// Collection is a named list of buckets.  Readers take a Snapshot, which
// is never disturbed by later writes; writers serialize on a mutex and
// publish a new bucket list when done.
type Collection struct {
	Name       string
	bucketSize int

	buckets atomic.Pointer[[]*Bucket]

	mu      sync.Mutex
	indexes map[string]map[string]Loc
}

// Loc locates a document within the current bucket list.
type Loc struct {
	Bucket int
	Slot   int
}

func newCollection(name string, bucketSize int) *Collection {
	c := &Collection{
		Name:       name,
		bucketSize: bucketSize,
	}
	c.buckets.Store(&[]*Bucket{})
	return c
}

// Snapshot returns the collection as of now.
func (c *Collection) Snapshot() *Snapshot {
	return &Snapshot{
		Collection: c.Name,
		Buckets:    *c.buckets.Load(),
	}
}

// Insert appends docs to the collection, filling the last bucket before
// starting new ones.
func (c *Collection) Insert(docs ...*docpipe.Document) {
	if len(docs) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	buckets := append([]*Bucket(nil), *c.buckets.Load()...)
	for _, doc := range docs {
		n := len(buckets) - 1
		if n < 0 || buckets[n].Len() >= c.bucketSize {
			buckets = append(buckets, newBucket(nil))
			n++
		}
		last := buckets[n].docs
		fresh := make([]*docpipe.Document, len(last), len(last)+1)
		copy(fresh, last)
		buckets[n] = newBucket(append(fresh, doc))
		c.indexDoc(doc, Loc{Bucket: n, Slot: len(last)})
	}
	c.buckets.Store(&buckets)
}

// ReplaceAll atomically swaps the collection's contents for docs.
func (c *Collection) ReplaceAll(docs []*docpipe.Document) {
	buckets := chunk(docs, c.bucketSize)
	c.mu.Lock()
	c.indexes = nil
	c.buckets.Store(&buckets)
	c.mu.Unlock()
}

func chunk(docs []*docpipe.Document, size int) []*Bucket {
	buckets := make([]*Bucket, 0, (len(docs)+size-1)/size)
	for len(docs) > 0 {
		n := size
		if n > len(docs) {
			n = len(docs)
		}
		buckets = append(buckets, newBucket(docs[:n:n]))
		docs = docs[n:]
	}
	return buckets
}

// FindOne returns a document whose values at the paths in on equal key.
func (c *Collection) FindOne(on []field.Path, key []docpipe.Value) (*docpipe.Document, Loc, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	loc, ok := c.index(on)[indexKey(key)]
	if !ok {
		return nil, Loc{}, false
	}
	return (*c.buckets.Load())[loc.Bucket].docs[loc.Slot], loc, true
}

// Replace overwrites the document at loc, which must come from FindOne
// with no ReplaceAll in between.
func (c *Collection) Replace(loc Loc, doc *docpipe.Document) {
	c.mu.Lock()
	defer c.mu.Unlock()
	buckets := append([]*Bucket(nil), *c.buckets.Load()...)
	old := buckets[loc.Bucket].docs[loc.Slot]
	for spec, index := range c.indexes {
		on := parseIndexSpec(spec)
		delete(index, indexKey(KeyOf(old, on)))
		index[indexKey(KeyOf(doc, on))] = loc
	}
	buckets[loc.Bucket] = buckets[loc.Bucket].with(loc.Slot, doc)
	c.buckets.Store(&buckets)
}

// Upsert replaces the document matching doc on the paths in on, or
// inserts doc when there is none.
func (c *Collection) Upsert(on []field.Path, doc *docpipe.Document) {
	if _, loc, ok := c.FindOne(on, KeyOf(doc, on)); ok {
		c.Replace(loc, doc)
		return
	}
	c.Insert(doc)
}

func (c *Collection) Len() int {
	var n int
	for _, b := range *c.buckets.Load() {
		n += b.Len()
	}
	return n
}

// index returns the key index for on, building it on first use.
// The caller holds c.mu.
func (c *Collection) index(on []field.Path) map[string]Loc {
	spec := indexSpec(on)
	if index, ok := c.indexes[spec]; ok {
		return index
	}
	index := make(map[string]Loc)
	for i, b := range *c.buckets.Load() {
		for slot, doc := range b.docs {
			key := indexKey(KeyOf(doc, on))
			if _, ok := index[key]; !ok {
				index[key] = Loc{Bucket: i, Slot: slot}
			}
		}
	}
	if c.indexes == nil {
		c.indexes = make(map[string]map[string]Loc)
	}
	c.indexes[spec] = index
	return index
}

func (c *Collection) indexDoc(doc *docpipe.Document, loc Loc) {
	for spec, index := range c.indexes {
		key := indexKey(KeyOf(doc, parseIndexSpec(spec)))
		if _, ok := index[key]; !ok {
			index[key] = loc
		}
	}
}

// KeyOf returns the values of doc at each path in on.
func KeyOf(doc *docpipe.Document, on []field.Path) []docpipe.Value {
	key := make([]docpipe.Value, len(on))
	for k, p := range on {
		key[k] = doc.Lookup(p)
	}
	return key
}

func indexKey(vals []docpipe.Value) string {
	var b strings.Builder
	for _, v := range vals {
		b.WriteString(docpipe.Key(v))
		b.WriteByte(0)
	}
	return b.String()
}

func indexSpec(on []field.Path) string {
	s := make([]string, 0, len(on))
	for _, p := range on {
		s = append(s, p.String())
	}
	return strings.Join(s, "\x00")
}

func parseIndexSpec(spec string) []field.Path {
	var on []field.Path
	for _, s := range strings.Split(spec, "\x00") {
		on = append(on, field.Dotted(s))
	}
	return on
}
