package lookup

import (
	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/compiler/dag"
	"github.com/brimdata/docpipe/runtime/op"
	"github.com/brimdata/docpipe/zbuf"
)

// Graph is a $graphLookup: a breadth-first search of the foreign
// collection that starts from the values of startWith and follows
// connectFromField to connectToField.  Each foreign document appears at
// most once in the result, at the depth where it was first reached.
type Graph struct {
	octx   *op.Context
	parent zbuf.Puller
	source Source
	spec   *dag.GraphLookup
}

func NewGraph(octx *op.Context, parent zbuf.Puller, source Source, spec *dag.GraphLookup) *Graph {
	return &Graph{octx: octx, parent: parent, source: source, spec: spec}
}

func (g *Graph) Pull(done bool) (zbuf.Batch, error) {
	batch, err := g.parent.Pull(done)
	if batch == nil || err != nil {
		return nil, err
	}
	defer batch.Unref()
	docs := batch.Documents()
	out := make([]*docpipe.Document, 0, len(docs))
	for _, doc := range docs {
		start, err := g.spec.StartWith.Eval(g.octx.Expr, doc)
		if err != nil {
			return nil, err
		}
		found, err := g.search(start)
		if err != nil {
			return nil, err
		}
		out = append(out, doc.SetPath(g.spec.As, docpipe.NewArray(found)))
	}
	return zbuf.NewArray(out), nil
}

func (g *Graph) search(start docpipe.Value) ([]docpipe.Value, error) {
	queried := make(map[string]struct{})
	seen := make(map[string]struct{})
	frontier := g.next(nil, queried, start)
	var out []docpipe.Value
	for depth := int64(0); len(frontier) > 0; depth++ {
		if g.spec.MaxDepth >= 0 && depth > g.spec.MaxDepth {
			break
		}
		if err := g.octx.Check(); err != nil {
			return nil, err
		}
		filter, err := inFilter(g.spec.ConnectToField, frontier, g.spec.Restrict)
		if err != nil {
			return nil, err
		}
		found, err := read(g.octx, g.source, g.spec.From, filter)
		if err != nil {
			return nil, err
		}
		frontier = nil
		for _, doc := range found {
			id := docpipe.Key(doc.Get("_id"))
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			if from := doc.Lookup(g.spec.ConnectFromField); !from.IsMissing() {
				frontier = g.next(frontier, queried, from)
			}
			if g.spec.DepthField != nil {
				doc = doc.SetPath(g.spec.DepthField, docpipe.NewInt64(depth))
			}
			out = append(out, docpipe.NewDocumentValue(doc))
		}
	}
	return out, nil
}

// next appends to frontier the values in v, expanding arrays, that have
// not been queried yet.
func (g *Graph) next(frontier []docpipe.Value, queried map[string]struct{}, v docpipe.Value) []docpipe.Value {
	vals := []docpipe.Value{v}
	if v.IsArray() {
		vals = v.Array()
	}
	for _, v := range vals {
		if v.IsMissing() {
			v = docpipe.Null
		}
		key := docpipe.Key(v)
		if _, ok := queried[key]; ok {
			continue
		}
		queried[key] = struct{}{}
		frontier = append(frontier, v)
	}
	return frontier
}
