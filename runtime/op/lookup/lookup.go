// Package lookup implements $lookup and $graphLookup, which join each
// input document with documents read from another collection.
package lookup

import (
	"context"

	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/compiler/dag"
	"github.com/brimdata/docpipe/field"
	"github.com/brimdata/docpipe/match"
	"github.com/brimdata/docpipe/runtime/op"
	"github.com/brimdata/docpipe/zbuf"
)

// Source reads the documents of a collection that satisfy filter, across
// every partition.
type Source interface {
	Open(ctx context.Context, coll string, filter *match.Filter) (zbuf.Puller, error)
}

// Op is a $lookup with localField and foreignField.
type Op struct {
	octx   *op.Context
	parent zbuf.Puller
	source Source
	spec   *dag.Lookup
}

func New(octx *op.Context, parent zbuf.Puller, source Source, spec *dag.Lookup) *Op {
	return &Op{octx: octx, parent: parent, source: source, spec: spec}
}

func (o *Op) Pull(done bool) (zbuf.Batch, error) {
	batch, err := o.parent.Pull(done)
	if batch == nil || err != nil {
		return nil, err
	}
	defer batch.Unref()
	docs := batch.Documents()
	out := make([]*docpipe.Document, 0, len(docs))
	for _, doc := range docs {
		matches, err := o.join(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, doc.SetPath(o.spec.As, docpipe.NewArray(matches)))
	}
	return zbuf.NewArray(out), nil
}

func (o *Op) join(doc *docpipe.Document) ([]docpipe.Value, error) {
	local := doc.Lookup(o.spec.LocalField)
	var keys []docpipe.Value
	switch {
	case local.IsMissing():
		keys = []docpipe.Value{docpipe.Null}
	case local.IsArray():
		keys = local.Array()
	default:
		keys = []docpipe.Value{local}
	}
	filter, err := inFilter(o.spec.ForeignField, keys, nil)
	if err != nil {
		return nil, err
	}
	found, err := read(o.octx, o.source, o.spec.From, filter)
	if err != nil {
		return nil, err
	}
	out := make([]docpipe.Value, 0, len(found))
	for _, d := range found {
		out = append(out, docpipe.NewDocumentValue(d))
	}
	return out, nil
}

// inFilter returns the filter {path: {$in: vals}}, conjoined with restrict
// when it is not nil.
func inFilter(path field.Path, vals []docpipe.Value, restrict *match.Filter) (*match.Filter, error) {
	filter, err := match.Parse(docpipe.D(path.String(), docpipe.NewDocumentValue(docpipe.D("$in", docpipe.NewArray(vals)))), nil)
	if err != nil || restrict == nil {
		return filter, err
	}
	return match.And(filter, restrict, nil)
}

func read(octx *op.Context, source Source, coll string, filter *match.Filter) ([]*docpipe.Document, error) {
	p, err := source.Open(octx, coll, filter)
	if err != nil {
		return nil, err
	}
	docs, err := zbuf.PullAll(p)
	if err != nil {
		return nil, err
	}
	for k, d := range docs {
		docs[k] = d.StripMeta()
	}
	return docs, nil
}
