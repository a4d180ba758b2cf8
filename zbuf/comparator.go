package zbuf

import (
	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/match"
	"github.com/brimdata/docpipe/order"
)

// Comparator orders documents by a list of sort keys.  Missing values sort
// as null.  When a key path reaches arrays, an ascending key uses the least
// element and a descending key the greatest.
type Comparator struct {
	keys     order.SortKeys
	collator docpipe.Collator
}

func NewComparator(keys order.SortKeys, collator docpipe.Collator) *Comparator {
	return &Comparator{keys: keys, collator: collator}
}

func (c *Comparator) Keys() order.SortKeys {
	return c.keys
}

// Key extracts the sort key values of doc.
func (c *Comparator) Key(doc *docpipe.Document) []docpipe.Value {
	out := make([]docpipe.Value, len(c.keys))
	for k, key := range c.keys {
		out[k] = c.keyValue(doc, key)
	}
	return out
}

func (c *Comparator) keyValue(doc *docpipe.Document, key order.SortKey) docpipe.Value {
	if key.Meta != "" {
		if v, ok := doc.Meta(key.Meta); ok {
			return v
		}
		return docpipe.Null
	}
	var cands []docpipe.Value
	for _, v := range match.Lookup(doc, key.Key) {
		switch {
		case v.IsArray() && len(v.Array()) > 0:
			cands = append(cands, v.Array()...)
		case v.IsArray():
			cands = append(cands, docpipe.Undefined)
		case v.IsMissing():
			cands = append(cands, docpipe.Null)
		default:
			cands = append(cands, v)
		}
	}
	var best docpipe.Value
	var found bool
	for _, v := range cands {
		if !found {
			best, found = v, true
			continue
		}
		r := docpipe.CompareWithCollator(v, best, c.collator)
		if (key.Order == order.Asc && r < 0) || (key.Order == order.Desc && r > 0) {
			best = v
		}
	}
	if !found {
		return docpipe.Null
	}
	return best
}

// CompareKeys compares two results of Key.
func (c *Comparator) CompareKeys(a, b []docpipe.Value) int {
	for k, key := range c.keys {
		r := docpipe.CompareWithCollator(a[k], b[k], c.collator)
		if r == 0 {
			continue
		}
		if key.Order == order.Desc {
			return -r
		}
		return r
	}
	return 0
}

func (c *Comparator) Compare(a, b *docpipe.Document) int {
	return c.CompareKeys(c.Key(a), c.Key(b))
}
