// Package unwind implements $unwind, which emits one document per element
// of an array field.
package unwind

import (
	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/field"
	"github.com/brimdata/docpipe/zbuf"
)

type Op struct {
	parent   zbuf.Puller
	path     field.Path
	index    field.Path
	preserve bool
}

// New returns an $unwind of path.  A non-nil index names the field that
// receives each element's array index.
func New(parent zbuf.Puller, path, index field.Path, preserve bool) *Op {
	return &Op{
		parent:   parent,
		path:     path,
		index:    index,
		preserve: preserve,
	}
}

func (o *Op) Pull(done bool) (zbuf.Batch, error) {
	for {
		batch, err := o.parent.Pull(done)
		if batch == nil || err != nil {
			return nil, err
		}
		var out []*docpipe.Document
		for _, doc := range batch.Documents() {
			out = o.unwind(doc, out)
		}
		batch.Unref()
		if len(out) > 0 {
			return zbuf.NewArray(out), nil
		}
	}
}

func (o *Op) unwind(doc *docpipe.Document, out []*docpipe.Document) []*docpipe.Document {
	v := get(doc, o.path)
	switch {
	case v.IsArray() && len(v.Array()) > 0:
		for k, elem := range v.Array() {
			d := doc.SetPath(o.path, elem)
			if o.index != nil {
				d = d.SetPath(o.index, docpipe.NewInt64(int64(k)))
			}
			out = append(out, d)
		}
	case v.IsArray():
		if o.preserve {
			out = append(out, o.withNullIndex(doc.RemovePath(o.path)))
		}
	case v.IsNullish():
		if o.preserve {
			out = append(out, o.withNullIndex(doc))
		}
	default:
		// A scalar unwinds as a single element.
		out = append(out, o.withNullIndex(doc))
	}
	return out
}

func (o *Op) withNullIndex(doc *docpipe.Document) *docpipe.Document {
	if o.index == nil {
		return doc
	}
	return doc.SetPath(o.index, docpipe.Null)
}

// get resolves path through nested documents only.  A path that meets an
// array before its last element resolves to missing.
func get(doc *docpipe.Document, path field.Path) docpipe.Value {
	v := doc.Get(path[0])
	for _, name := range path[1:] {
		d := v.Document()
		if d == nil {
			return docpipe.Missing
		}
		v = d.Get(name)
	}
	return v
}

var _ zbuf.Puller = (*Op)(nil)